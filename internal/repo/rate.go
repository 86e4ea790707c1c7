package repo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/pkordes/ecopool/backend/internal/domain"
)

// RateRepo stores conversion rates and fuel emission factors. It satisfies
// carbon.RateSource.
type RateRepo interface {
	// Rate returns the value of an active rate, or domain.ErrNotFound.
	Rate(ctx context.Context, name string) (decimal.Decimal, error)

	// EmissionFactor returns kg CO2 per km for fuel, or domain.ErrNotFound.
	EmissionFactor(ctx context.Context, fuel domain.FuelType) (decimal.Decimal, error)

	// Get returns a rate whether active or not.
	Get(ctx context.Context, name string) (domain.ConversionRate, error)

	// List returns every configured rate ordered by name.
	List(ctx context.Context) ([]domain.ConversionRate, error)

	// Upsert inserts a rate or replaces the value, description and active
	// flag of the existing one.
	Upsert(ctx context.Context, rate domain.ConversionRate) (domain.ConversionRate, error)
}

type pgRateRepo struct {
	db db
}

// NewRateRepo constructs a RateRepo backed by the provided db connection.
func NewRateRepo(db db) RateRepo {
	return &pgRateRepo{db: db}
}

const rateColumns = `name, rate, description, active, updated_at`

func (r *pgRateRepo) Rate(ctx context.Context, name string) (decimal.Decimal, error) {
	const q = `SELECT rate FROM conversion_rates WHERE name = @name AND active`

	var v pgtype.Numeric
	if err := r.db.QueryRow(ctx, q, pgx.NamedArgs{"name": name}).Scan(&v); err != nil {
		return decimal.Zero, fmt.Errorf("repo.RateRepo.Rate: %w", mapErr(err))
	}
	return fromNumeric(v), nil
}

func (r *pgRateRepo) EmissionFactor(ctx context.Context, fuel domain.FuelType) (decimal.Decimal, error) {
	const q = `SELECT emission_factor FROM emission_factors WHERE fuel_type = @fuel`

	var v pgtype.Numeric
	if err := r.db.QueryRow(ctx, q, pgx.NamedArgs{"fuel": string(fuel)}).Scan(&v); err != nil {
		return decimal.Zero, fmt.Errorf("repo.RateRepo.EmissionFactor: %w", mapErr(err))
	}
	return fromNumeric(v), nil
}

func (r *pgRateRepo) Get(ctx context.Context, name string) (domain.ConversionRate, error) {
	const q = `SELECT ` + rateColumns + ` FROM conversion_rates WHERE name = @name`

	result, err := scanRate(r.db.QueryRow(ctx, q, pgx.NamedArgs{"name": name}))
	if err != nil {
		return domain.ConversionRate{}, fmt.Errorf("repo.RateRepo.Get: %w", err)
	}
	return result, nil
}

func (r *pgRateRepo) List(ctx context.Context) ([]domain.ConversionRate, error) {
	const q = `SELECT ` + rateColumns + ` FROM conversion_rates ORDER BY name`

	rows, err := r.db.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("repo.RateRepo.List: %w", err)
	}
	defer rows.Close()

	rates := []domain.ConversionRate{}
	for rows.Next() {
		rate, err := scanRate(rows)
		if err != nil {
			return nil, fmt.Errorf("repo.RateRepo.List: scan: %w", err)
		}
		rates = append(rates, rate)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repo.RateRepo.List: rows: %w", err)
	}
	return rates, nil
}

// Upsert keys on name. The primary key on name keeps one row, hence at most
// one active rate, per name.
func (r *pgRateRepo) Upsert(ctx context.Context, rate domain.ConversionRate) (domain.ConversionRate, error) {
	const q = `
		INSERT INTO conversion_rates (name, rate, description, active)
		VALUES (@name, @rate, @description, @active)
		ON CONFLICT (name) DO UPDATE
		SET rate        = EXCLUDED.rate,
		    description = EXCLUDED.description,
		    active      = EXCLUDED.active,
		    updated_at  = now()
		RETURNING ` + rateColumns

	args := pgx.NamedArgs{
		"name":        rate.Name,
		"rate":        numeric(rate.Rate),
		"description": rate.Description,
		"active":      rate.Active,
	}
	result, err := scanRate(r.db.QueryRow(ctx, q, args))
	if err != nil {
		return domain.ConversionRate{}, fmt.Errorf("repo.RateRepo.Upsert: %w", err)
	}
	return result, nil
}

func scanRate(s scanner) (domain.ConversionRate, error) {
	var (
		c domain.ConversionRate
		v pgtype.Numeric
	)
	if err := s.Scan(&c.Name, &v, &c.Description, &c.Active, &c.UpdatedAt); err != nil {
		return domain.ConversionRate{}, mapErr(err)
	}
	c.Rate = fromNumeric(v)
	return c, nil
}
