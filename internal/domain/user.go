package domain

import (
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RoleAdmin grants access to rate administration.
const RoleAdmin = "admin"

// User is the subset of a commuter profile the core reads. Profiles are
// owned by the identity service; only ride statistics are written here.
type User struct {
	ID             uuid.UUID       `json:"id"`
	OrganizationID uuid.UUID       `json:"organization_id"`
	Gender         string          `json:"gender,omitempty"`
	Role           string          `json:"role"`
	TotalRides     int             `json:"total_rides"`
	TotalCO2Saved  decimal.Decimal `json:"total_co2_saved"`
}

// FitsGenderPreference reports whether a trip with the given gender
// preference is open to u.
func (u User) FitsGenderPreference(genderPreference string) bool {
	return strings.EqualFold(genderPreference, GenderAny) || strings.EqualFold(genderPreference, u.Gender)
}
