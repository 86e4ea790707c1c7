package repo_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/pkordes/ecopool/backend/internal/domain"
	"github.com/pkordes/ecopool/backend/internal/repo"
	"github.com/pkordes/ecopool/backend/testutil"
)

// newTestTx opens a transaction against the test database. The transaction
// is rolled back when the test finishes, giving free per-test isolation.
func newTestTx(t *testing.T) pgx.Tx {
	t.Helper()
	pool := testutil.NewPool(t)

	tx, err := pool.Begin(context.Background())
	require.NoError(t, err, "begin transaction")

	t.Cleanup(func() {
		_ = tx.Rollback(context.Background())
	})
	return tx
}

// newTestRepos binds every repository to a rolled-back transaction.
func newTestRepos(t *testing.T) (repo.Repos, pgx.Tx) {
	t.Helper()
	tx := newTestTx(t)
	return repo.NewRepos(tx), tx
}

// seedUser inserts a commuter directly; profiles are not written by the repos.
func seedUser(t *testing.T, tx pgx.Tx, org uuid.UUID, gender string) uuid.UUID {
	t.Helper()
	var id uuid.UUID
	err := tx.QueryRow(context.Background(),
		`INSERT INTO users (organization_id, gender) VALUES ($1, $2) RETURNING id`, org, gender).Scan(&id)
	require.NoError(t, err, "seed user")
	return id
}

// tripFixture returns a scheduled trip with sensible defaults. Callers can
// override individual fields after calling this function.
func tripFixture(driver, org uuid.UUID) domain.Trip {
	return domain.Trip{
		DriverID:         driver,
		OrganizationID:   org,
		Origin:           domain.Place{Name: "Koramangala", Lat: 12.9352, Lng: 77.6245},
		Destination:      domain.Place{Name: "Whitefield", Lat: 12.9698, Lng: 77.7500},
		DepartureTime:    time.Now().Add(2 * time.Hour).UTC().Truncate(time.Second),
		Capacity:         3,
		AvailableSeats:   3,
		PricePerSeat:     decimal.RequireFromString("45.50"),
		GenderPreference: domain.GenderAny,
		FuelType:         domain.FuelPetrol,
		Status:           domain.TripScheduled,
		Notes:            "office run",
	}
}

// seedTrip creates a driver and a trip owned by them.
func seedTrip(t *testing.T, r repo.Repos, tx pgx.Tx) domain.Trip {
	t.Helper()
	org := uuid.New()
	driver := seedUser(t, tx, org, "female")
	trip, err := r.Trips.Create(context.Background(), tripFixture(driver, org))
	require.NoError(t, err, "seed trip")
	return trip
}
