package repo

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/pkordes/ecopool/backend/internal/domain"
)

// UserRepo reads commuter profiles and maintains their ride statistics.
// Profiles themselves are written by the identity service.
type UserRepo interface {
	// GetByID returns domain.ErrNotFound for unknown users.
	GetByID(ctx context.Context, id uuid.UUID) (domain.User, error)

	// AddRideStats counts one more completed ride and adds co2Kg to the
	// user's lifetime total.
	AddRideStats(ctx context.Context, id uuid.UUID, co2Kg decimal.Decimal) error
}

type pgUserRepo struct {
	db db
}

// NewUserRepo constructs a UserRepo backed by the provided db connection.
func NewUserRepo(db db) UserRepo {
	return &pgUserRepo{db: db}
}

func (r *pgUserRepo) GetByID(ctx context.Context, id uuid.UUID) (domain.User, error) {
	const q = `
		SELECT id, organization_id, gender, role, total_rides, total_co2_saved
		FROM users
		WHERE id = @id`

	var (
		u        domain.User
		uid, org pgtype.UUID
		co2      pgtype.Numeric
	)
	err := r.db.QueryRow(ctx, q, pgx.NamedArgs{"id": id}).
		Scan(&uid, &org, &u.Gender, &u.Role, &u.TotalRides, &co2)
	if err != nil {
		return domain.User{}, fmt.Errorf("repo.UserRepo.GetByID: %w", mapErr(err))
	}
	u.ID = uuid.UUID(uid.Bytes)
	u.OrganizationID = uuid.UUID(org.Bytes)
	u.TotalCO2Saved = fromNumeric(co2)
	return u, nil
}

func (r *pgUserRepo) AddRideStats(ctx context.Context, id uuid.UUID, co2Kg decimal.Decimal) error {
	const q = `
		UPDATE users
		SET total_rides     = total_rides + 1,
		    total_co2_saved = total_co2_saved + @co2
		WHERE id = @id`

	tag, err := r.db.Exec(ctx, q, pgx.NamedArgs{"id": id, "co2": numeric(co2Kg)})
	if err != nil {
		return fmt.Errorf("repo.UserRepo.AddRideStats: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("repo.UserRepo.AddRideStats: %w", domain.ErrNotFound)
	}
	return nil
}
