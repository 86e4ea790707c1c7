// Package repo contains all database access logic for the EcoPool API.
// Each resource has its own file with an interface and a Postgres implementation.
// No business logic lives here, only SQL and type mapping.
package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/pkordes/ecopool/backend/internal/domain"
)

// db is the minimal interface satisfied by *pgxpool.Pool, pgx.Conn, and pgx.Tx.
// Accepting this interface instead of *pgxpool.Pool directly allows integration
// tests to pass a transaction that is rolled back after each test, giving free
// per-test isolation without any manual cleanup.
type db interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repos bundles every repository bound to the same connection or transaction.
type Repos struct {
	Users    UserRepo
	Trips    TripRepo
	Requests RequestRepo
	Rides    RideRepo
	Ledger   LedgerRepo
	Rates    RateRepo
	Rewards  RewardRepo
}

// NewRepos binds every Postgres repository to db.
func NewRepos(db db) Repos {
	return Repos{
		Users:    NewUserRepo(db),
		Trips:    NewTripRepo(db),
		Requests: NewRequestRepo(db),
		Rides:    NewRideRepo(db),
		Ledger:   NewLedgerRepo(db),
		Rates:    NewRateRepo(db),
		Rewards:  NewRewardRepo(db),
	}
}

// Store runs units of work. Every repository call made through the Repos
// passed to fn belongs to one transaction: if fn returns an error nothing it
// wrote is persisted.
type Store interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, r Repos) error) error
}

// PgStore is the Postgres Store. Entity-level exclusion comes from row locks
// (SELECT ... FOR UPDATE) and conditional updates taken inside the
// transaction.
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore constructs a PgStore over pool.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// WithinTx runs fn in a read-committed transaction, committing when fn
// returns nil and rolling back otherwise.
func (s *PgStore) WithinTx(ctx context.Context, fn func(ctx context.Context, r Repos) error) error {
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		return fn(ctx, NewRepos(tx))
	})
	return transient(err)
}

// TxStore adapts an already open transaction to Store. fn runs inside a
// savepoint so a failing unit of work leaves the outer transaction usable.
// Integration tests use it to run services inside a rolled-back transaction.
type TxStore struct {
	tx pgx.Tx
}

// NewTxStore wraps tx.
func NewTxStore(tx pgx.Tx) *TxStore {
	return &TxStore{tx: tx}
}

// WithinTx runs fn inside a savepoint of the wrapped transaction.
func (s *TxStore) WithinTx(ctx context.Context, fn func(ctx context.Context, r Repos) error) error {
	err := pgx.BeginFunc(ctx, s.tx, func(sp pgx.Tx) error {
		return fn(ctx, NewRepos(sp))
	})
	return transient(err)
}

// scanner is satisfied by both pgx.Row and pgx.Rows, allowing the scan helpers
// to be reused for both QueryRow and Query calls.
type scanner interface {
	Scan(dest ...any) error
}

// mapErr translates driver errors into domain sentinels.
func mapErr(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", domain.ErrConflict, pgErr.ConstraintName)
	}
	return err
}

// retryableCodes are the SQLSTATEs that abort a transaction without any
// fault in the statements it ran.
var retryableCodes = map[string]bool{
	"40001": true, // serialization_failure
	"40P01": true, // deadlock_detected
	"55P03": true, // lock_not_available
}

// transient marks err with domain.ErrTransient when the database aborted the
// unit of work and a retry may succeed.
func transient(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && retryableCodes[pgErr.Code] {
		return fmt.Errorf("%w: %s (SQLSTATE %s)", domain.ErrTransient, pgErr.Message, pgErr.Code)
	}
	return err
}

// numeric converts a decimal into the pgx NUMERIC representation.
func numeric(d decimal.Decimal) pgtype.Numeric {
	return pgtype.Numeric{Int: d.Coefficient(), Exp: d.Exponent(), Valid: true}
}

// fromNumeric converts a scanned NUMERIC into a decimal. NULL becomes zero.
func fromNumeric(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid || n.Int == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(n.Int, n.Exp)
}

// fromUUIDs converts a scanned uuid[] into domain IDs.
func fromUUIDs(in []pgtype.UUID) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(in))
	for _, id := range in {
		if id.Valid {
			out = append(out, uuid.UUID(id.Bytes))
		}
	}
	return out
}
