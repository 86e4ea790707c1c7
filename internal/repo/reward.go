package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/pkordes/ecopool/backend/internal/domain"
)

// RewardRepo persists the redemption catalogue, issued vouchers, NGO
// partners and donations.
type RewardRepo interface {
	// ListOptions returns active options ordered by cost.
	ListOptions(ctx context.Context) ([]domain.RedemptionOption, error)

	// GetOptionForUpdate locks and returns an option, active or not.
	GetOptionForUpdate(ctx context.Context, id uuid.UUID) (domain.RedemptionOption, error)

	// DecrementStock takes one unit of stock. Returns domain.ErrOutOfStock
	// when none is left.
	DecrementStock(ctx context.Context, id uuid.UUID) (domain.RedemptionOption, error)

	// CreateRedemption records an issued voucher. A duplicate voucher code
	// returns domain.ErrConflict.
	CreateRedemption(ctx context.Context, r domain.Redemption) (domain.Redemption, error)

	// VoucherExists reports whether code was already issued.
	VoucherExists(ctx context.Context, code string) (bool, error)

	// ListRedemptions returns a user's vouchers, newest first.
	ListRedemptions(ctx context.Context, userID uuid.UUID) ([]domain.Redemption, error)

	// GetNGOForUpdate locks and returns an NGO partner.
	GetNGOForUpdate(ctx context.Context, id uuid.UUID) (domain.NGO, error)

	// AddNGODonation adds a donation to the partner's running totals.
	AddNGODonation(ctx context.Context, id uuid.UUID, amount, co2Kg decimal.Decimal) (domain.NGO, error)

	// CreateDonation records a donation. A reused payment id returns
	// domain.ErrConflict.
	CreateDonation(ctx context.Context, d domain.Donation) (domain.Donation, error)
}

type pgRewardRepo struct {
	db db
}

// NewRewardRepo constructs a RewardRepo backed by the provided db connection.
func NewRewardRepo(db db) RewardRepo {
	return &pgRewardRepo{db: db}
}

const (
	optionColumns     = `id, title, category, diamond_cost, validity_days, stock_available, active`
	redemptionColumns = `id, user_id, option_id, diamonds_spent, status, voucher_code, expires_at, created_at`
	ngoColumns        = `id, name, active, total_donations_received, co2_offset_kg`
	donationColumns   = `id, user_id, ngo_id, amount, diamonds_earned, co2_equivalent, payment_id, created_at`
)

func (r *pgRewardRepo) ListOptions(ctx context.Context) ([]domain.RedemptionOption, error) {
	const q = `SELECT ` + optionColumns + ` FROM redemption_options WHERE active ORDER BY diamond_cost, title`

	rows, err := r.db.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("repo.RewardRepo.ListOptions: %w", err)
	}
	defer rows.Close()

	options := []domain.RedemptionOption{}
	for rows.Next() {
		o, err := scanOption(rows)
		if err != nil {
			return nil, fmt.Errorf("repo.RewardRepo.ListOptions: scan: %w", err)
		}
		options = append(options, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repo.RewardRepo.ListOptions: rows: %w", err)
	}
	return options, nil
}

func (r *pgRewardRepo) GetOptionForUpdate(ctx context.Context, id uuid.UUID) (domain.RedemptionOption, error) {
	const q = `SELECT ` + optionColumns + ` FROM redemption_options WHERE id = @id FOR UPDATE`

	o, err := scanOption(r.db.QueryRow(ctx, q, pgx.NamedArgs{"id": id}))
	if err != nil {
		return domain.RedemptionOption{}, fmt.Errorf("repo.RewardRepo.GetOptionForUpdate: %w", err)
	}
	return o, nil
}

func (r *pgRewardRepo) DecrementStock(ctx context.Context, id uuid.UUID) (domain.RedemptionOption, error) {
	const q = `
		UPDATE redemption_options
		SET stock_available = stock_available - 1
		WHERE id = @id AND stock_available > 0
		RETURNING ` + optionColumns

	o, err := scanOption(r.db.QueryRow(ctx, q, pgx.NamedArgs{"id": id}))
	if errors.Is(err, domain.ErrNotFound) {
		return domain.RedemptionOption{}, fmt.Errorf("repo.RewardRepo.DecrementStock: %w", domain.ErrOutOfStock)
	}
	if err != nil {
		return domain.RedemptionOption{}, fmt.Errorf("repo.RewardRepo.DecrementStock: %w", err)
	}
	return o, nil
}

func (r *pgRewardRepo) CreateRedemption(ctx context.Context, red domain.Redemption) (domain.Redemption, error) {
	const q = `
		INSERT INTO redemptions (user_id, option_id, diamonds_spent, status, voucher_code, expires_at)
		VALUES (@user_id, @option_id, @diamonds_spent, @status, @voucher_code, @expires_at)
		RETURNING ` + redemptionColumns

	args := pgx.NamedArgs{
		"user_id":        red.UserID,
		"option_id":      red.OptionID,
		"diamonds_spent": numeric(red.DiamondsSpent),
		"status":         string(red.Status),
		"voucher_code":   red.VoucherCode,
		"expires_at":     red.ExpiresAt,
	}
	result, err := scanRedemption(r.db.QueryRow(ctx, q, args))
	if err != nil {
		return domain.Redemption{}, fmt.Errorf("repo.RewardRepo.CreateRedemption: %w", err)
	}
	return result, nil
}

func (r *pgRewardRepo) VoucherExists(ctx context.Context, code string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM redemptions WHERE voucher_code = @code)`

	var exists bool
	if err := r.db.QueryRow(ctx, q, pgx.NamedArgs{"code": code}).Scan(&exists); err != nil {
		return false, fmt.Errorf("repo.RewardRepo.VoucherExists: %w", err)
	}
	return exists, nil
}

func (r *pgRewardRepo) ListRedemptions(ctx context.Context, userID uuid.UUID) ([]domain.Redemption, error) {
	const q = `
		SELECT ` + redemptionColumns + `
		FROM redemptions
		WHERE user_id = @user_id
		ORDER BY created_at DESC, id`

	rows, err := r.db.Query(ctx, q, pgx.NamedArgs{"user_id": userID})
	if err != nil {
		return nil, fmt.Errorf("repo.RewardRepo.ListRedemptions: %w", err)
	}
	defer rows.Close()

	out := []domain.Redemption{}
	for rows.Next() {
		red, err := scanRedemption(rows)
		if err != nil {
			return nil, fmt.Errorf("repo.RewardRepo.ListRedemptions: scan: %w", err)
		}
		out = append(out, red)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repo.RewardRepo.ListRedemptions: rows: %w", err)
	}
	return out, nil
}

func (r *pgRewardRepo) GetNGOForUpdate(ctx context.Context, id uuid.UUID) (domain.NGO, error) {
	const q = `SELECT ` + ngoColumns + ` FROM ngo_partners WHERE id = @id FOR UPDATE`

	n, err := scanNGO(r.db.QueryRow(ctx, q, pgx.NamedArgs{"id": id}))
	if err != nil {
		return domain.NGO{}, fmt.Errorf("repo.RewardRepo.GetNGOForUpdate: %w", err)
	}
	return n, nil
}

func (r *pgRewardRepo) AddNGODonation(ctx context.Context, id uuid.UUID, amount, co2Kg decimal.Decimal) (domain.NGO, error) {
	const q = `
		UPDATE ngo_partners
		SET total_donations_received = total_donations_received + @amount,
		    co2_offset_kg            = co2_offset_kg + @co2
		WHERE id = @id
		RETURNING ` + ngoColumns

	args := pgx.NamedArgs{"id": id, "amount": numeric(amount), "co2": numeric(co2Kg)}
	n, err := scanNGO(r.db.QueryRow(ctx, q, args))
	if err != nil {
		return domain.NGO{}, fmt.Errorf("repo.RewardRepo.AddNGODonation: %w", err)
	}
	return n, nil
}

func (r *pgRewardRepo) CreateDonation(ctx context.Context, d domain.Donation) (domain.Donation, error) {
	const q = `
		INSERT INTO donations (user_id, ngo_id, amount, diamonds_earned, co2_equivalent, payment_id)
		VALUES (@user_id, @ngo_id, @amount, @diamonds_earned, @co2_equivalent, @payment_id)
		RETURNING ` + donationColumns

	args := pgx.NamedArgs{
		"user_id":         d.UserID,
		"ngo_id":          d.NGOID,
		"amount":          numeric(d.Amount),
		"diamonds_earned": numeric(d.DiamondsEarned),
		"co2_equivalent":  numeric(d.CO2Equivalent),
		"payment_id":      d.PaymentID,
	}
	result, err := scanDonation(r.db.QueryRow(ctx, q, args))
	if err != nil {
		return domain.Donation{}, fmt.Errorf("repo.RewardRepo.CreateDonation: %w", err)
	}
	return result, nil
}

func scanOption(s scanner) (domain.RedemptionOption, error) {
	var (
		o    domain.RedemptionOption
		id   pgtype.UUID
		cost pgtype.Numeric
	)
	if err := s.Scan(&id, &o.Title, &o.Category, &cost, &o.ValidityDays, &o.StockAvailable, &o.Active); err != nil {
		return domain.RedemptionOption{}, mapErr(err)
	}
	o.ID = uuid.UUID(id.Bytes)
	o.DiamondCost = fromNumeric(cost)
	return o, nil
}

func scanRedemption(s scanner) (domain.Redemption, error) {
	var (
		red              domain.Redemption
		id, user, option pgtype.UUID
		spent            pgtype.Numeric
		status           string
	)
	err := s.Scan(&id, &user, &option, &spent, &status, &red.VoucherCode, &red.ExpiresAt, &red.CreatedAt)
	if err != nil {
		return domain.Redemption{}, mapErr(err)
	}
	red.ID = uuid.UUID(id.Bytes)
	red.UserID = uuid.UUID(user.Bytes)
	red.OptionID = uuid.UUID(option.Bytes)
	red.DiamondsSpent = fromNumeric(spent)
	red.Status = domain.RedemptionStatus(status)
	return red, nil
}

func scanNGO(s scanner) (domain.NGO, error) {
	var (
		n          domain.NGO
		id         pgtype.UUID
		total, co2 pgtype.Numeric
	)
	if err := s.Scan(&id, &n.Name, &n.Active, &total, &co2); err != nil {
		return domain.NGO{}, mapErr(err)
	}
	n.ID = uuid.UUID(id.Bytes)
	n.TotalDonationsReceived = fromNumeric(total)
	n.CO2OffsetKg = fromNumeric(co2)
	return n, nil
}

func scanDonation(s scanner) (domain.Donation, error) {
	var (
		d                     domain.Donation
		id, user, ngo         pgtype.UUID
		amount, diamonds, co2 pgtype.Numeric
	)
	err := s.Scan(&id, &user, &ngo, &amount, &diamonds, &co2, &d.PaymentID, &d.CreatedAt)
	if err != nil {
		return domain.Donation{}, mapErr(err)
	}
	d.ID = uuid.UUID(id.Bytes)
	d.UserID = uuid.UUID(user.Bytes)
	d.NGOID = uuid.UUID(ngo.Bytes)
	d.Amount = fromNumeric(amount)
	d.DiamondsEarned = fromNumeric(diamonds)
	d.CO2Equivalent = fromNumeric(co2)
	return d, nil
}
