package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Names of the conversion rates read by the carbon accountant.
const (
	RateCO2ToDiamond      = "CO2_TO_DIAMOND"
	RateKmToDiamond       = "KM_TO_DIAMOND"
	RateDonationToDiamond = "DONATION_TO_DIAMOND"
	RateRupeeToCO2        = "RUPEE_TO_CO2"
)

// ConversionRate is a named coefficient mapping a physical quantity to
// reward units. Names are unique, so at most one rate per name is active.
type ConversionRate struct {
	Name        string          `json:"name"`
	Rate        decimal.Decimal `json:"rate"`
	Description string          `json:"description,omitempty"`
	Active      bool            `json:"active"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// RatePlaces is the number of decimal places a conversion rate keeps.
const RatePlaces = 4

// RateLimit is the exclusive upper bound of a conversion rate.
var RateLimit = decimal.New(1, 6)

// DefaultValidityDays is used when an option has no validity configured.
const DefaultValidityDays = 90

// RedemptionOption is a reward that can be bought with diamonds.
type RedemptionOption struct {
	ID             uuid.UUID       `json:"id"`
	Title          string          `json:"title"`
	Category       string          `json:"category"`
	DiamondCost    decimal.Decimal `json:"diamond_cost"`
	ValidityDays   int             `json:"validity_days"`
	StockAvailable int             `json:"stock_available"`
	Active         bool            `json:"active"`
}

// RedemptionStatus is the state of an issued voucher.
type RedemptionStatus string

const (
	RedemptionActive  RedemptionStatus = "active"
	RedemptionUsed    RedemptionStatus = "used"
	RedemptionExpired RedemptionStatus = "expired"
)

// Redemption is a voucher issued against a diamond debit.
type Redemption struct {
	ID            uuid.UUID        `json:"id"`
	UserID        uuid.UUID        `json:"user_id"`
	OptionID      uuid.UUID        `json:"option_id"`
	DiamondsSpent decimal.Decimal  `json:"diamonds_spent"`
	Status        RedemptionStatus `json:"status"`
	VoucherCode   string           `json:"voucher_code"`
	ExpiresAt     time.Time        `json:"expires_at"`
	CreatedAt     time.Time        `json:"created_at"`
}

// NGO is a donation partner. Totals are maintained as donations are made.
type NGO struct {
	ID                     uuid.UUID       `json:"id"`
	Name                   string          `json:"name"`
	Active                 bool            `json:"active"`
	TotalDonationsReceived decimal.Decimal `json:"total_donations_received"`
	CO2OffsetKg            decimal.Decimal `json:"co2_offset_kg"`
}

// Donation is a completed contribution to an NGO and the diamonds it earned.
type Donation struct {
	ID             uuid.UUID       `json:"id"`
	UserID         uuid.UUID       `json:"user_id"`
	NGOID          uuid.UUID       `json:"ngo_id"`
	Amount         decimal.Decimal `json:"amount"`
	DiamondsEarned decimal.Decimal `json:"diamonds_earned"`
	CO2Equivalent  decimal.Decimal `json:"co2_equivalent"`
	PaymentID      string          `json:"payment_id"`
	CreatedAt      time.Time       `json:"created_at"`
}
