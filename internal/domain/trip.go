// Package domain contains the core data types for the EcoPool API.
// It holds entities, state tables and sentinel errors and is imported by
// every other internal package (repo, service, handler).
package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TripStatus is the lifecycle state of a published trip.
type TripStatus string

const (
	TripScheduled TripStatus = "scheduled"
	TripActive    TripStatus = "active"
	TripCompleted TripStatus = "completed"
	TripCancelled TripStatus = "cancelled"
)

// GenderAny is the gender preference that accepts every passenger.
const GenderAny = "any"

// genderPreferences lists the accepted values for Trip.GenderPreference.
var genderPreferences = map[string]bool{GenderAny: true, "male": true, "female": true}

// ValidGenderPreference reports whether p is a known preference.
// Comparison is case-insensitive.
func ValidGenderPreference(p string) bool {
	return genderPreferences[strings.ToLower(p)]
}

// FuelType names the fuel of the driver's vehicle. It selects the emission
// factor used for CO2 accounting.
type FuelType string

const (
	FuelPetrol   FuelType = "petrol"
	FuelDiesel   FuelType = "diesel"
	FuelElectric FuelType = "electric"
	FuelHybrid   FuelType = "hybrid"
)

// Place is a named coordinate.
type Place struct {
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
	Lng  float64 `json:"lng"`
}

// Trip is a published route offer with a fixed capacity and schedule.
// AvailableSeats is only changed by accepting or cancelling requests and
// always stays within [0, Capacity].
type Trip struct {
	ID               uuid.UUID       `json:"id"`
	DriverID         uuid.UUID       `json:"driver_id"`
	OrganizationID   uuid.UUID       `json:"organization_id"`
	Origin           Place           `json:"origin"`
	Destination      Place           `json:"destination"`
	DepartureTime    time.Time       `json:"departure_time"`
	Capacity         int             `json:"capacity"`
	AvailableSeats   int             `json:"available_seats"`
	PricePerSeat     decimal.Decimal `json:"price_per_seat"`
	GenderPreference string          `json:"gender_preference"`
	FuelType         FuelType        `json:"fuel_type"`
	Status           TripStatus      `json:"status"`
	Notes            string          `json:"notes,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// IsOpen reports whether the trip can still take requests.
func (t Trip) IsOpen() bool {
	return t.Status == TripScheduled
}
