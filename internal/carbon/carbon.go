// Package carbon converts distance, fuel and passenger counts into CO2 saved
// and CO2 saved into reward units.
//
// All arithmetic uses decimal.Decimal so that results such as 0.21*10*3 are
// exact and floor/round operations behave predictably.
package carbon

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/pkordes/ecopool/backend/internal/domain"
)

// DefaultEmissionFactors are kg CO2 per km used when no factor is configured.
var DefaultEmissionFactors = map[domain.FuelType]decimal.Decimal{
	domain.FuelPetrol:   decimal.RequireFromString("0.21"),
	domain.FuelDiesel:   decimal.RequireFromString("0.24"),
	domain.FuelElectric: decimal.RequireFromString("0.05"),
	domain.FuelHybrid:   decimal.RequireFromString("0.12"),
}

// DefaultRates are used for conversion rates that have no active row.
var DefaultRates = map[string]decimal.Decimal{
	domain.RateCO2ToDiamond:      decimal.NewFromInt(10),
	domain.RateKmToDiamond:       decimal.NewFromInt(2),
	domain.RateDonationToDiamond: decimal.NewFromInt(5),
	domain.RateRupeeToCO2:        decimal.RequireFromString("0.1"),
}

var (
	pointsPerKg     = decimal.NewFromInt(10)
	kgPerTreeYearly = decimal.RequireFromString("21.77")
)

// RateSource supplies configured factors and rates. Both methods return
// domain.ErrNotFound when nothing is configured for the key.
type RateSource interface {
	Rate(ctx context.Context, name string) (decimal.Decimal, error)
	EmissionFactor(ctx context.Context, fuel domain.FuelType) (decimal.Decimal, error)
}

// Accountant applies the carbon formulas with rates from a RateSource,
// falling back to the defaults.
type Accountant struct {
	rates RateSource
}

// NewAccountant returns an Accountant reading from rates. A nil source
// means defaults only.
func NewAccountant(rates RateSource) *Accountant {
	return &Accountant{rates: rates}
}

// CO2Saved returns kg of CO2 saved by carrying passengers in one vehicle over
// distanceKm instead of everyone driving alone.
func (a *Accountant) CO2Saved(ctx context.Context, distanceKm decimal.Decimal, fuel domain.FuelType, passengers int) (decimal.Decimal, error) {
	if distanceKm.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: distance must not be negative", domain.ErrValidation)
	}
	if passengers < 0 {
		return decimal.Zero, fmt.Errorf("%w: passenger count must not be negative", domain.ErrValidation)
	}
	factor, err := a.emissionFactor(ctx, fuel)
	if err != nil {
		return decimal.Zero, err
	}
	return CO2Saved(factor, distanceKm, passengers), nil
}

// Diamonds returns the diamonds earned for co2Kg saved over distanceKm,
// rounded to two places.
func (a *Accountant) Diamonds(ctx context.Context, co2Kg, distanceKm decimal.Decimal) (decimal.Decimal, error) {
	co2Rate, err := a.rate(ctx, domain.RateCO2ToDiamond)
	if err != nil {
		return decimal.Zero, err
	}
	kmRate, err := a.rate(ctx, domain.RateKmToDiamond)
	if err != nil {
		return decimal.Zero, err
	}
	return Diamonds(co2Kg, distanceKm, co2Rate, kmRate), nil
}

// DonationDiamonds returns the diamonds earned by donating amount and the
// CO2 offset it stands for, both rounded to two places.
func (a *Accountant) DonationDiamonds(ctx context.Context, amount decimal.Decimal) (diamonds, co2Kg decimal.Decimal, err error) {
	diamondRate, err := a.rate(ctx, domain.RateDonationToDiamond)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	co2Rate, err := a.rate(ctx, domain.RateRupeeToCO2)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	return amount.Mul(diamondRate).RoundBank(2), amount.Mul(co2Rate).RoundBank(2), nil
}

func (a *Accountant) emissionFactor(ctx context.Context, fuel domain.FuelType) (decimal.Decimal, error) {
	if a.rates != nil {
		f, err := a.rates.EmissionFactor(ctx, fuel)
		switch {
		case err == nil:
			return f, nil
		case !errors.Is(err, domain.ErrNotFound):
			return decimal.Zero, fmt.Errorf("carbon.Accountant.emissionFactor: %w", err)
		}
	}
	if f, ok := DefaultEmissionFactors[fuel]; ok {
		return f, nil
	}
	return DefaultEmissionFactors[domain.FuelPetrol], nil
}

func (a *Accountant) rate(ctx context.Context, name string) (decimal.Decimal, error) {
	if a.rates != nil {
		r, err := a.rates.Rate(ctx, name)
		switch {
		case err == nil:
			return r, nil
		case !errors.Is(err, domain.ErrNotFound):
			return decimal.Zero, fmt.Errorf("carbon.Accountant.rate: %s: %w", name, err)
		}
	}
	return DefaultRates[name], nil
}

// CO2Saved is factor*d*(n+1) - factor*d: the emissions of everyone driving
// alone minus the emissions of the shared vehicle.
func CO2Saved(factor, distanceKm decimal.Decimal, passengers int) decimal.Decimal {
	carpooling := factor.Mul(distanceKm)
	alone := carpooling.Mul(decimal.NewFromInt(int64(passengers) + 1))
	return alone.Sub(carpooling)
}

// RewardPoints is floor(co2Kg * 10).
func RewardPoints(co2Kg decimal.Decimal) int64 {
	return co2Kg.Mul(pointsPerKg).Floor().IntPart()
}

// Diamonds is co2Kg*co2Rate + distanceKm*kmRate rounded to two places.
func Diamonds(co2Kg, distanceKm, co2Rate, kmRate decimal.Decimal) decimal.Decimal {
	return co2Kg.Mul(co2Rate).Add(distanceKm.Mul(kmRate)).RoundBank(2)
}

// TreesEquivalent is the number of trees that absorb co2Kg in a year.
func TreesEquivalent(co2Kg decimal.Decimal) decimal.Decimal {
	return co2Kg.Div(kgPerTreeYearly).RoundBank(2)
}

// Split divides total evenly across parts participants. Shares are cut to
// the given number of decimal places; the remainder is returned separately.
func Split(total decimal.Decimal, parts int, places int32) (share, remainder decimal.Decimal) {
	if parts <= 0 {
		return decimal.Zero, total
	}
	share = total.Div(decimal.NewFromInt(int64(parts))).Truncate(places)
	remainder = total.Sub(share.Mul(decimal.NewFromInt(int64(parts))))
	return share, remainder
}
