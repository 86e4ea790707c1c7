package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Currency selects one of the reward ledgers. Points are whole numbers;
// diamonds carry two decimal places.
type Currency string

const (
	CurrencyPoints   Currency = "points"
	CurrencyDiamonds Currency = "diamonds"
)

// Valid reports whether c names a known currency.
func (c Currency) Valid() bool {
	return c == CurrencyPoints || c == CurrencyDiamonds
}

// Places returns the number of decimal places amounts in c may carry.
func (c Currency) Places() int32 {
	if c == CurrencyPoints {
		return 0
	}
	return 2
}

// EntryKind classifies a ledger entry.
type EntryKind string

const (
	KindEarnedRide     EntryKind = "earned_ride"
	KindEarnedDonation EntryKind = "earned_donation"
	KindEarnedBonus    EntryKind = "earned_bonus"
	KindRedeemed       EntryKind = "redeemed"
	KindExpired        EntryKind = "expired"
)

// IsEarn reports whether entries of kind k add to a balance.
func (k EntryKind) IsEarn() bool {
	switch k {
	case KindEarnedRide, KindEarnedDonation, KindEarnedBonus:
		return true
	}
	return false
}

// IsSpend reports whether entries of kind k subtract from a balance.
func (k EntryKind) IsSpend() bool {
	return k == KindRedeemed || k == KindExpired
}

// LedgerEntry is an immutable, signed movement on one user's wallet.
// Reference points at the originating ride, donation or redemption.
type LedgerEntry struct {
	ID          uuid.UUID       `json:"id"`
	UserID      uuid.UUID       `json:"user_id"`
	Currency    Currency        `json:"currency"`
	Amount      decimal.Decimal `json:"amount"`
	Kind        EntryKind       `json:"kind"`
	Reference   string          `json:"reference,omitempty"`
	Description string          `json:"description,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Wallet is the cached balance of one user in one currency. Balance always
// equals the sum of the user's ledger entries in that currency.
type Wallet struct {
	UserID           uuid.UUID       `json:"user_id"`
	Currency         Currency        `json:"currency"`
	Balance          decimal.Decimal `json:"balance"`
	LifetimeEarned   decimal.Decimal `json:"lifetime_earned"`
	LifetimeRedeemed decimal.Decimal `json:"lifetime_redeemed"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// Level is the tier a user reaches from lifetime earnings.
type Level struct {
	Name string `json:"name"`
	Rank int    `json:"rank"`
}

var levels = []struct {
	below int64
	level Level
}{
	{100, Level{"Carbon Novice", 1}},
	{500, Level{"Eco Warrior", 2}},
	{1000, Level{"Green Champion", 3}},
	{5000, Level{"Diamond Collector", 4}},
}

// LevelFor returns the level reached with the given lifetime earnings.
func LevelFor(lifetimeEarned decimal.Decimal) Level {
	for _, l := range levels {
		if lifetimeEarned.LessThan(decimal.NewFromInt(l.below)) {
			return l.level
		}
	}
	return Level{"Carbon Legend", 5}
}

// WalletSummary is a wallet together with the owner's level.
type WalletSummary struct {
	Wallet
	Level Level `json:"level"`
}

// StatementRow is one line of a wallet statement export: a ledger entry with
// the running balance after it was applied.
type StatementRow struct {
	EntryID     string    `json:"entry_id"`
	Currency    string    `json:"currency"`
	Kind        string    `json:"kind"`
	Amount      string    `json:"amount"`
	Balance     string    `json:"balance"`
	Reference   string    `json:"reference,omitempty"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
