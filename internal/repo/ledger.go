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

// LedgerRepo persists ledger entries and the wallets they feed. Entries are
// append-only: there is no update or delete.
type LedgerRepo interface {
	// Append inserts an entry. A second ride earning for the same user,
	// currency and ride returns domain.ErrConflict.
	Append(ctx context.Context, e domain.LedgerEntry) (domain.LedgerEntry, error)

	// GetWallet returns the wallet, or an empty one if the user never earned
	// in that currency.
	GetWallet(ctx context.Context, userID uuid.UUID, currency domain.Currency) (domain.Wallet, error)

	// Credit adds amount to balance and lifetime earned, creating the wallet
	// on first use.
	Credit(ctx context.Context, userID uuid.UUID, currency domain.Currency, amount decimal.Decimal) (domain.Wallet, error)

	// Debit subtracts amount when the balance covers it and adds it to
	// lifetime redeemed. Returns domain.ErrInsufficientBalance otherwise.
	Debit(ctx context.Context, userID uuid.UUID, currency domain.Currency, amount decimal.Decimal) (domain.Wallet, error)

	// Sum returns the sum of all entries of a user in a currency.
	Sum(ctx context.Context, userID uuid.UUID, currency domain.Currency) (decimal.Decimal, error)

	// ListPaged returns one page of entries, newest first, and the total count.
	ListPaged(ctx context.Context, userID uuid.UUID, currency domain.Currency, p domain.PaginationParams) ([]domain.LedgerEntry, int64, error)

	// ListAll returns every entry of a user in a currency, oldest first.
	ListAll(ctx context.Context, userID uuid.UUID, currency domain.Currency) ([]domain.LedgerEntry, error)
}

type pgLedgerRepo struct {
	db db
}

// NewLedgerRepo constructs a LedgerRepo backed by the provided db connection.
func NewLedgerRepo(db db) LedgerRepo {
	return &pgLedgerRepo{db: db}
}

const (
	entryColumns  = `id, user_id, currency, amount, kind, reference, description, created_at`
	walletColumns = `user_id, currency, balance, lifetime_earned, lifetime_redeemed, updated_at`
)

func (r *pgLedgerRepo) Append(ctx context.Context, e domain.LedgerEntry) (domain.LedgerEntry, error) {
	const q = `
		INSERT INTO ledger_entries (user_id, currency, amount, kind, reference, description)
		VALUES (@user_id, @currency, @amount, @kind, @reference, @description)
		RETURNING ` + entryColumns

	args := pgx.NamedArgs{
		"user_id":     e.UserID,
		"currency":    string(e.Currency),
		"amount":      numeric(e.Amount),
		"kind":        string(e.Kind),
		"reference":   e.Reference,
		"description": e.Description,
	}
	result, err := scanEntry(r.db.QueryRow(ctx, q, args))
	if err != nil {
		return domain.LedgerEntry{}, fmt.Errorf("repo.LedgerRepo.Append: %w", err)
	}
	return result, nil
}

func (r *pgLedgerRepo) GetWallet(ctx context.Context, userID uuid.UUID, currency domain.Currency) (domain.Wallet, error) {
	const q = `SELECT ` + walletColumns + ` FROM wallets WHERE user_id = @user_id AND currency = @currency`

	w, err := scanWallet(r.db.QueryRow(ctx, q, pgx.NamedArgs{"user_id": userID, "currency": string(currency)}))
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Wallet{UserID: userID, Currency: currency}, nil
	}
	if err != nil {
		return domain.Wallet{}, fmt.Errorf("repo.LedgerRepo.GetWallet: %w", err)
	}
	return w, nil
}

func (r *pgLedgerRepo) Credit(ctx context.Context, userID uuid.UUID, currency domain.Currency, amount decimal.Decimal) (domain.Wallet, error) {
	const q = `
		INSERT INTO wallets (user_id, currency, balance, lifetime_earned)
		VALUES (@user_id, @currency, @amount, @amount)
		ON CONFLICT (user_id, currency) DO UPDATE
		SET balance         = wallets.balance + EXCLUDED.balance,
		    lifetime_earned = wallets.lifetime_earned + EXCLUDED.lifetime_earned,
		    updated_at      = now()
		RETURNING ` + walletColumns

	args := pgx.NamedArgs{"user_id": userID, "currency": string(currency), "amount": numeric(amount)}
	w, err := scanWallet(r.db.QueryRow(ctx, q, args))
	if err != nil {
		return domain.Wallet{}, fmt.Errorf("repo.LedgerRepo.Credit: %w", err)
	}
	return w, nil
}

// Debit is a single conditional UPDATE, so two concurrent debits can never
// both pass the balance check.
func (r *pgLedgerRepo) Debit(ctx context.Context, userID uuid.UUID, currency domain.Currency, amount decimal.Decimal) (domain.Wallet, error) {
	const q = `
		UPDATE wallets
		SET balance           = balance - @amount,
		    lifetime_redeemed = lifetime_redeemed + @amount,
		    updated_at        = now()
		WHERE user_id = @user_id AND currency = @currency AND balance >= @amount
		RETURNING ` + walletColumns

	args := pgx.NamedArgs{"user_id": userID, "currency": string(currency), "amount": numeric(amount)}
	w, err := scanWallet(r.db.QueryRow(ctx, q, args))
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Wallet{}, fmt.Errorf("repo.LedgerRepo.Debit: %w", domain.ErrInsufficientBalance)
	}
	if err != nil {
		return domain.Wallet{}, fmt.Errorf("repo.LedgerRepo.Debit: %w", err)
	}
	return w, nil
}

func (r *pgLedgerRepo) Sum(ctx context.Context, userID uuid.UUID, currency domain.Currency) (decimal.Decimal, error) {
	const q = `
		SELECT COALESCE(SUM(amount), 0)
		FROM ledger_entries
		WHERE user_id = @user_id AND currency = @currency`

	var sum pgtype.Numeric
	if err := r.db.QueryRow(ctx, q, pgx.NamedArgs{"user_id": userID, "currency": string(currency)}).Scan(&sum); err != nil {
		return decimal.Zero, fmt.Errorf("repo.LedgerRepo.Sum: %w", err)
	}
	return fromNumeric(sum), nil
}

func (r *pgLedgerRepo) ListPaged(ctx context.Context, userID uuid.UUID, currency domain.Currency, p domain.PaginationParams) ([]domain.LedgerEntry, int64, error) {
	const countQ = `SELECT COUNT(*) FROM ledger_entries WHERE user_id = @user_id AND currency = @currency`
	const q = `
		SELECT ` + entryColumns + `
		FROM ledger_entries
		WHERE user_id = @user_id AND currency = @currency
		ORDER BY created_at DESC, id
		LIMIT @limit OFFSET @offset`

	args := pgx.NamedArgs{
		"user_id":  userID,
		"currency": string(currency),
		"limit":    p.Limit,
		"offset":   p.Offset(),
	}

	var total int64
	if err := r.db.QueryRow(ctx, countQ, args).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("repo.LedgerRepo.ListPaged: count: %w", err)
	}
	entries, err := r.list(ctx, q, args)
	if err != nil {
		return nil, 0, fmt.Errorf("repo.LedgerRepo.ListPaged: %w", err)
	}
	return entries, total, nil
}

func (r *pgLedgerRepo) ListAll(ctx context.Context, userID uuid.UUID, currency domain.Currency) ([]domain.LedgerEntry, error) {
	const q = `
		SELECT ` + entryColumns + `
		FROM ledger_entries
		WHERE user_id = @user_id AND currency = @currency
		ORDER BY created_at, id`

	entries, err := r.list(ctx, q, pgx.NamedArgs{"user_id": userID, "currency": string(currency)})
	if err != nil {
		return nil, fmt.Errorf("repo.LedgerRepo.ListAll: %w", err)
	}
	return entries, nil
}

func (r *pgLedgerRepo) list(ctx context.Context, q string, args pgx.NamedArgs) ([]domain.LedgerEntry, error) {
	rows, err := r.db.Query(ctx, q, args)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.LedgerEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

func scanEntry(s scanner) (domain.LedgerEntry, error) {
	var (
		e              domain.LedgerEntry
		id, user       pgtype.UUID
		amount         pgtype.Numeric
		currency, kind string
	)
	if err := s.Scan(&id, &user, &currency, &amount, &kind, &e.Reference, &e.Description, &e.CreatedAt); err != nil {
		return domain.LedgerEntry{}, mapErr(err)
	}
	e.ID = uuid.UUID(id.Bytes)
	e.UserID = uuid.UUID(user.Bytes)
	e.Currency = domain.Currency(currency)
	e.Amount = fromNumeric(amount)
	e.Kind = domain.EntryKind(kind)
	return e, nil
}

func scanWallet(s scanner) (domain.Wallet, error) {
	var (
		w                         domain.Wallet
		user                      pgtype.UUID
		currency                  string
		balance, earned, redeemed pgtype.Numeric
	)
	if err := s.Scan(&user, &currency, &balance, &earned, &redeemed, &w.UpdatedAt); err != nil {
		return domain.Wallet{}, mapErr(err)
	}
	w.UserID = uuid.UUID(user.Bytes)
	w.Currency = domain.Currency(currency)
	w.Balance = fromNumeric(balance)
	w.LifetimeEarned = fromNumeric(earned)
	w.LifetimeRedeemed = fromNumeric(redeemed)
	return w, nil
}
