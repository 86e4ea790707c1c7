package repo_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkordes/ecopool/backend/internal/domain"
	"github.com/pkordes/ecopool/backend/internal/repo"
)

func TestRequestRepo_CreateAndGet(t *testing.T) {
	r, tx := newTestRepos(t)
	ctx := context.Background()
	trip := seedTrip(t, r, tx)
	passenger := seedUser(t, tx, trip.OrganizationID, "male")

	created, err := r.Requests.Create(ctx, domain.TripRequest{
		TripID: trip.ID, PassengerID: passenger, SeatsRequested: 2,
		Message: "near the gate", Status: domain.RequestPending,
	})
	require.NoError(t, err)

	got, err := r.Requests.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, 2, got.SeatsRequested)
	assert.Equal(t, "near the gate", got.Message)
	assert.Equal(t, domain.RequestPending, got.Status)
}

func TestRequestRepo_SecondOpenRequestConflicts(t *testing.T) {
	r, tx := newTestRepos(t)
	ctx := context.Background()
	trip := seedTrip(t, r, tx)
	passenger := seedUser(t, tx, trip.OrganizationID, "male")
	req := domain.TripRequest{TripID: trip.ID, PassengerID: passenger, SeatsRequested: 1, Status: domain.RequestPending}

	first, err := r.Requests.Create(ctx, req)
	require.NoError(t, err)

	// The duplicate is attempted in a savepoint so the failed insert does not
	// abort the test transaction.
	sp, err := tx.Begin(ctx)
	require.NoError(t, err)
	_, err = repo.NewRepos(sp).Requests.Create(ctx, req)
	assert.ErrorIs(t, err, domain.ErrConflict)
	require.NoError(t, sp.Rollback(ctx))

	// Once the first request is closed a new one is allowed.
	_, err = r.Requests.SetStatus(ctx, first.ID, domain.RequestCancelled)
	require.NoError(t, err)
	_, err = r.Requests.Create(ctx, req)
	assert.NoError(t, err)
}

func TestRequestRepo_HasOpen(t *testing.T) {
	r, tx := newTestRepos(t)
	ctx := context.Background()
	trip := seedTrip(t, r, tx)
	passenger := seedUser(t, tx, trip.OrganizationID, "male")

	open, err := r.Requests.HasOpen(ctx, trip.ID, passenger)
	require.NoError(t, err)
	assert.False(t, open)

	req, err := r.Requests.Create(ctx, domain.TripRequest{TripID: trip.ID, PassengerID: passenger, SeatsRequested: 1, Status: domain.RequestPending})
	require.NoError(t, err)
	open, err = r.Requests.HasOpen(ctx, trip.ID, passenger)
	require.NoError(t, err)
	assert.True(t, open)

	_, err = r.Requests.SetStatus(ctx, req.ID, domain.RequestRejected)
	require.NoError(t, err)
	open, err = r.Requests.HasOpen(ctx, trip.ID, passenger)
	require.NoError(t, err)
	assert.False(t, open)
}

func TestRequestRepo_RejectPending(t *testing.T) {
	r, tx := newTestRepos(t)
	ctx := context.Background()
	trip := seedTrip(t, r, tx)

	var ids []uuid.UUID
	for range 3 {
		p := seedUser(t, tx, trip.OrganizationID, "male")
		req, err := r.Requests.Create(ctx, domain.TripRequest{TripID: trip.ID, PassengerID: p, SeatsRequested: 1, Status: domain.RequestPending})
		require.NoError(t, err)
		ids = append(ids, req.ID)
	}
	_, err := r.Requests.SetStatus(ctx, ids[0], domain.RequestAccepted)
	require.NoError(t, err)

	n, err := r.Requests.RejectPending(ctx, trip.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	all, err := r.Requests.ListByTrip(ctx, trip.ID)
	require.NoError(t, err)
	require.Len(t, all, 3)
	statuses := map[uuid.UUID]domain.RequestStatus{}
	for _, req := range all {
		statuses[req.ID] = req.Status
	}
	assert.Equal(t, domain.RequestAccepted, statuses[ids[0]])
	assert.Equal(t, domain.RequestRejected, statuses[ids[1]])
	assert.Equal(t, domain.RequestRejected, statuses[ids[2]])
}

func TestRequestRepo_ListByPassenger(t *testing.T) {
	r, tx := newTestRepos(t)
	ctx := context.Background()
	passenger := seedUser(t, tx, uuid.New(), "male")

	for range 2 {
		trip := seedTrip(t, r, tx)
		_, err := r.Requests.Create(ctx, domain.TripRequest{TripID: trip.ID, PassengerID: passenger, SeatsRequested: 1, Status: domain.RequestPending})
		require.NoError(t, err)
	}

	got, err := r.Requests.ListByPassenger(ctx, passenger)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}
