package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkordes/ecopool/backend/internal/domain"
	"github.com/pkordes/ecopool/backend/internal/events"
	"github.com/pkordes/ecopool/backend/internal/service"
)

// ---- Create ----------------------------------------------------------------

func TestRequestService_Create_Pending(t *testing.T) {
	w := newWorld(t)
	trip := w.publishTrip(t, nil)
	p := w.user("female")

	req, err := service.NewRequestService(w.deps()).Create(context.Background(), p.ID, trip.ID, 2, " window seat ")

	require.NoError(t, err)
	assert.Equal(t, domain.RequestPending, req.Status)
	assert.Equal(t, 2, req.SeatsRequested)
	assert.Equal(t, "window seat", req.Message)
	assert.Equal(t, 3, w.trip(t, trip.ID).AvailableSeats, "creating a request reserves nothing")
}

func TestRequestService_Create_Errors(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	svc := service.NewRequestService(w.deps())
	trip := w.publishTrip(t, nil)
	p := w.user("female")

	_, err := svc.Create(ctx, p.ID, trip.ID, 0, "")
	assert.ErrorIs(t, err, domain.ErrValidation, "zero seats")

	_, err = svc.Create(ctx, w.driver.ID, trip.ID, 1, "")
	assert.ErrorIs(t, err, domain.ErrForbidden, "driver requesting own trip")

	_, err = svc.Create(ctx, p.ID, trip.ID, 4, "")
	assert.ErrorIs(t, err, domain.ErrInsufficientSeats, "more seats than available")

	_, err = svc.Create(ctx, p.ID, trip.ID, 1, "")
	require.NoError(t, err)
	_, err = svc.Create(ctx, p.ID, trip.ID, 1, "")
	assert.ErrorIs(t, err, domain.ErrConflict, "second open request")

	_, err = svc.Create(ctx, p.ID, uuid.New(), 1, "")
	assert.ErrorIs(t, err, domain.ErrNotFound, "unknown trip")
}

func TestRequestService_Create_ConflictBeforeTripState(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	trip := w.publishTrip(t, nil)
	p := w.user("female")
	svc := service.NewRequestService(w.deps())
	_, err := svc.Create(ctx, p.ID, trip.ID, 1, "")
	require.NoError(t, err)
	_, err = service.NewTripService(w.deps()).Cancel(ctx, w.driver.ID, trip.ID)
	require.NoError(t, err)

	// The earlier request was rejected by the cancel, so only the trip state
	// stands in the way now.
	_, err = svc.Create(ctx, p.ID, trip.ID, 1, "")

	require.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestRequestService_Create_OtherOrganizationOrGender(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	svc := service.NewRequestService(w.deps())
	womenOnly := w.publishTrip(t, func(tr *domain.Trip) { tr.GenderPreference = "female" })
	outsider := w.store.AddUser(domain.User{OrganizationID: uuid.New(), Gender: "female"})

	_, err := svc.Create(ctx, w.user("male").ID, womenOnly.ID, 1, "")
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = svc.Create(ctx, outsider.ID, womenOnly.ID, 1, "")
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

// ---- Accept ----------------------------------------------------------------

func TestRequestService_Accept_OpensRideThenJoins(t *testing.T) {
	w := newWorld(t)
	trip := w.publishTrip(t, nil)
	first, second := w.user("female"), w.user("male")

	out1 := w.board(t, trip, first, 1)
	out2 := w.board(t, trip, second, 2)

	assert.Equal(t, domain.RequestAccepted, out1.Request.Status)
	assert.Equal(t, 2, out1.Trip.AvailableSeats)
	require.NotNil(t, out1.Ride)
	assert.Equal(t, domain.RideStarted, out1.Ride.Status)
	assert.Equal(t, []uuid.UUID{first.ID}, out1.Ride.PassengerIDs)

	assert.Equal(t, 0, out2.Trip.AvailableSeats)
	require.NotNil(t, out2.Ride)
	assert.Equal(t, out1.Ride.ID, out2.Ride.ID, "one ride per trip")
	assert.Equal(t, []uuid.UUID{first.ID, second.ID}, out2.Ride.PassengerIDs)
}

func TestRequestService_Accept_InsufficientSeatsChangesNothing(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	trip := w.publishTrip(t, func(tr *domain.Trip) { tr.Capacity = 2 })
	svc := service.NewRequestService(w.deps())
	a, b := w.user("female"), w.user("female")

	reqA, err := svc.Create(ctx, a.ID, trip.ID, 2, "")
	require.NoError(t, err)
	reqB, err := svc.Create(ctx, b.ID, trip.ID, 1, "")
	require.NoError(t, err)
	_, err = svc.Accept(ctx, w.driver.ID, reqA.ID)
	require.NoError(t, err)

	_, err = svc.Accept(ctx, w.driver.ID, reqB.ID)

	require.ErrorIs(t, err, domain.ErrInsufficientSeats)
	assert.Equal(t, 0, w.trip(t, trip.ID).AvailableSeats)
	mine, err := svc.ListMine(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, domain.RequestPending, mine[0].Status)
}

func TestRequestService_Accept_OnlyDriverAndOnlyPending(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	trip := w.publishTrip(t, nil)
	p := w.user("female")
	svc := service.NewRequestService(w.deps())
	req, err := svc.Create(ctx, p.ID, trip.ID, 1, "")
	require.NoError(t, err)

	_, err = svc.Accept(ctx, p.ID, req.ID)
	require.ErrorIs(t, err, domain.ErrForbidden)

	_, err = svc.Accept(ctx, w.driver.ID, req.ID)
	require.NoError(t, err)
	_, err = svc.Accept(ctx, w.driver.ID, req.ID)
	require.ErrorIs(t, err, domain.ErrInvalidTransition)
	assert.Equal(t, 2, w.trip(t, trip.ID).AvailableSeats, "seats are reserved once")
}

// Many passengers race for the last seats. Exactly as many accepts as there
// are seats may succeed and the count never goes negative.
func TestRequestService_Accept_ConcurrentNeverOverbooks(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	trip := w.publishTrip(t, func(tr *domain.Trip) { tr.Capacity = 3 })
	svc := service.NewRequestService(w.deps())

	const n = 12
	ids := make([]uuid.UUID, n)
	for i := range n {
		req, err := svc.Create(ctx, w.user("female").ID, trip.ID, 1, "")
		require.NoError(t, err)
		ids[i] = req.ID
	}

	start := make(chan struct{})
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		accepted  int
		noSeats   int
		unexpects []error
	)
	for _, id := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := svc.Accept(ctx, w.driver.ID, id)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				accepted++
			case errors.Is(err, domain.ErrInsufficientSeats):
				noSeats++
			default:
				unexpects = append(unexpects, err)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Empty(t, unexpects)
	assert.Equal(t, 3, accepted)
	assert.Equal(t, n-3, noSeats)
	assert.Equal(t, 0, w.trip(t, trip.ID).AvailableSeats)
}

// ---- Reject ----------------------------------------------------------------

func TestRequestService_Reject(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	trip := w.publishTrip(t, nil)
	p := w.user("female")
	svc := service.NewRequestService(w.deps())
	req, err := svc.Create(ctx, p.ID, trip.ID, 1, "")
	require.NoError(t, err)

	out, err := svc.Reject(ctx, w.driver.ID, req.ID)

	require.NoError(t, err)
	assert.Equal(t, domain.RequestRejected, out.Request.Status)
	assert.Equal(t, 3, out.Trip.AvailableSeats)
	assert.Nil(t, out.Ride)

	_, err = svc.Reject(ctx, w.driver.ID, req.ID)
	require.ErrorIs(t, err, domain.ErrInvalidTransition)
}

// ---- Cancel ----------------------------------------------------------------

func TestRequestService_Cancel_Pending(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	trip := w.publishTrip(t, nil)
	p := w.user("female")
	svc := service.NewRequestService(w.deps())
	req, err := svc.Create(ctx, p.ID, trip.ID, 1, "")
	require.NoError(t, err)

	_, err = svc.Cancel(ctx, w.driver.ID, req.ID)
	require.ErrorIs(t, err, domain.ErrForbidden, "only the requester may cancel")

	out, err := svc.Cancel(ctx, p.ID, req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RequestCancelled, out.Request.Status)
	assert.Equal(t, 3, out.Trip.AvailableSeats)

	// A cancelled request no longer blocks a new one.
	_, err = svc.Create(ctx, p.ID, trip.ID, 1, "")
	require.NoError(t, err)
}

func TestRequestService_Cancel_AcceptedReleasesSeatsAndLeavesRide(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	trip := w.publishTrip(t, nil)
	stay, leave := w.user("female"), w.user("female")
	w.board(t, trip, stay, 1)
	out := w.board(t, trip, leave, 2)
	require.Equal(t, 0, out.Trip.AvailableSeats)

	got, err := service.NewRequestService(w.deps()).Cancel(ctx, leave.ID, out.Request.ID)

	require.NoError(t, err)
	assert.Equal(t, domain.RequestCancelled, got.Request.Status)
	assert.Equal(t, 2, got.Trip.AvailableSeats)
	require.NotNil(t, got.Ride)
	assert.Equal(t, []uuid.UUID{stay.ID}, got.Ride.PassengerIDs)
	assert.Contains(t, w.events.types(), events.RequestCancelled)
}

func TestRequestService_Cancel_AcceptedRefusedOnceRideMoves(t *testing.T) {
	ctx := context.Background()
	complete := func(t *testing.T, w *world, ride domain.Ride) {
		_, err := service.NewRideService(w.deps()).Complete(ctx, w.driver.ID, ride.ID, dec("10"))
		require.NoError(t, err)
	}
	cancel := func(t *testing.T, w *world, ride domain.Ride) {
		_, err := service.NewRideService(w.deps()).Cancel(ctx, w.driver.ID, ride.ID)
		require.NoError(t, err)
	}

	for name, after := range map[string]func(*testing.T, *world, domain.Ride){
		"in progress": func(*testing.T, *world, domain.Ride) {},
		"completed":   complete,
		"cancelled":   cancel,
	} {
		t.Run(name, func(t *testing.T) {
			w := newWorld(t)
			ride, riders := w.rideInProgress(t, 2)
			after(t, w, ride)
			before := w.trip(t, ride.TripID)
			svc := service.NewRequestService(w.deps())
			mine, err := svc.ListMine(ctx, riders[1].ID)
			require.NoError(t, err)
			require.Len(t, mine, 1)

			_, err = svc.Cancel(ctx, riders[1].ID, mine[0].ID)

			require.ErrorIs(t, err, domain.ErrInvalidTransition)
			assert.Equal(t, before.AvailableSeats, w.trip(t, ride.TripID).AvailableSeats, "seats stay reserved")
			mine, err = svc.ListMine(ctx, riders[1].ID)
			require.NoError(t, err)
			assert.Equal(t, domain.RequestAccepted, mine[0].Status)
			got, err := service.NewRideService(w.deps()).Get(ctx, w.driver.ID, ride.ID)
			require.NoError(t, err)
			assert.Len(t, got.PassengerIDs, 2, "the ride keeps its passengers")
		})
	}
}

func TestRequestService_Cancel_PendingAfterCompletion(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	trip := w.publishTrip(t, nil)
	svc := service.NewRequestService(w.deps())
	late, err := svc.Create(ctx, w.user("female").ID, trip.ID, 1, "")
	require.NoError(t, err)
	rides := service.NewRideService(w.deps())
	ride, err := rides.Open(ctx, w.driver.ID, trip.ID)
	require.NoError(t, err)
	_, err = rides.Start(ctx, w.driver.ID, ride.ID)
	require.NoError(t, err)
	_, err = rides.Complete(ctx, w.driver.ID, ride.ID, dec("5"))
	require.NoError(t, err)

	out, err := svc.Cancel(ctx, late.PassengerID, late.ID)

	require.NoError(t, err, "a pending request holds no seats and may always be withdrawn")
	assert.Equal(t, domain.RequestCancelled, out.Request.Status)
	assert.Equal(t, 3, out.Trip.AvailableSeats)
}

// ---- listings --------------------------------------------------------------

func TestRequestService_ListForTrip_OnlyDriver(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	trip := w.publishTrip(t, nil)
	p := w.user("female")
	svc := service.NewRequestService(w.deps())
	_, err := svc.Create(ctx, p.ID, trip.ID, 1, "")
	require.NoError(t, err)

	reqs, err := svc.ListForTrip(ctx, w.driver.ID, trip.ID)
	require.NoError(t, err)
	assert.Len(t, reqs, 1)

	_, err = svc.ListForTrip(ctx, p.ID, trip.ID)
	require.ErrorIs(t, err, domain.ErrForbidden)
}
