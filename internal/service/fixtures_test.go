package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/pkordes/ecopool/backend/internal/domain"
	"github.com/pkordes/ecopool/backend/internal/events"
	"github.com/pkordes/ecopool/backend/internal/livepos"
	"github.com/pkordes/ecopool/backend/internal/repo"
	"github.com/pkordes/ecopool/backend/internal/repo/memstore"
	"github.com/pkordes/ecopool/backend/internal/service"
)

// ---- test doubles ----------------------------------------------------------

// recordingPublisher keeps every published event.
type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []events.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.Type, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

var _ events.Publisher = (*recordingPublisher)(nil)

// mapCache is an in-process livepos.Cache.
type mapCache struct {
	mu  sync.Mutex
	pos map[uuid.UUID]domain.Position
}

func newMapCache() *mapCache { return &mapCache{pos: map[uuid.UUID]domain.Position{}} }

func (c *mapCache) Set(_ context.Context, id uuid.UUID, p domain.Position) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pos[id] = p
	return nil
}

func (c *mapCache) Get(_ context.Context, id uuid.UUID) (domain.Position, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.pos[id]
	return p, ok, nil
}

func (c *mapCache) Remove(_ context.Context, id uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pos, id)
	return nil
}

var _ livepos.Cache = (*mapCache)(nil)

// failingCreditLedger wraps a real LedgerRepo and fails every Credit.
type failingCreditLedger struct {
	repo.LedgerRepo
	err error
}

func (l failingCreditLedger) Credit(context.Context, uuid.UUID, domain.Currency, decimal.Decimal) (domain.Wallet, error) {
	return domain.Wallet{}, l.err
}

// failingCreditStore runs units of work on inner with Credit failing.
type failingCreditStore struct {
	inner repo.Store
	err   error
}

func (s failingCreditStore) WithinTx(ctx context.Context, fn func(ctx context.Context, r repo.Repos) error) error {
	return s.inner.WithinTx(ctx, func(ctx context.Context, r repo.Repos) error {
		r.Ledger = failingCreditLedger{LedgerRepo: r.Ledger, err: s.err}
		return fn(ctx, r)
	})
}

var errCreditDown = errors.New("credit down")

// ---- fixture world ---------------------------------------------------------

var testNow = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

// world is one organization on a fresh in-memory store with a fixed clock.
type world struct {
	store     *memstore.Store
	events    *recordingPublisher
	positions *mapCache
	org       uuid.UUID
	driver    domain.User
}

func newWorld(t *testing.T) *world {
	t.Helper()
	w := &world{
		store:     memstore.New(),
		events:    &recordingPublisher{},
		positions: newMapCache(),
		org:       uuid.New(),
	}
	w.store.SetClock(func() time.Time { return testNow })
	w.driver = w.user("male")
	return w
}

func (w *world) deps() service.Deps {
	return service.Deps{
		Store:     w.store,
		Events:    w.events,
		Positions: w.positions,
		Now:       func() time.Time { return testNow },
	}
}

func (w *world) user(gender string) domain.User {
	return w.store.AddUser(domain.User{OrganizationID: w.org, Gender: gender})
}

func validTrip() domain.Trip {
	return domain.Trip{
		Origin:           domain.Place{Name: "Koramangala", Lat: 12.9352, Lng: 77.6245},
		Destination:      domain.Place{Name: "Whitefield", Lat: 12.9698, Lng: 77.7500},
		DepartureTime:    testNow.Add(2 * time.Hour),
		Capacity:         3,
		PricePerSeat:     decimal.NewFromInt(50),
		GenderPreference: domain.GenderAny,
		FuelType:         domain.FuelPetrol,
	}
}

// publishTrip creates a trip driven by the world's driver.
func (w *world) publishTrip(t *testing.T, mutate func(*domain.Trip)) domain.Trip {
	t.Helper()
	trip := validTrip()
	if mutate != nil {
		mutate(&trip)
	}
	got, err := service.NewTripService(w.deps()).Create(context.Background(), w.driver.ID, trip)
	require.NoError(t, err)
	return got
}

// board files and accepts a request of seats for passenger on trip.
func (w *world) board(t *testing.T, trip domain.Trip, passenger domain.User, seats int) domain.RequestOutcome {
	t.Helper()
	svc := service.NewRequestService(w.deps())
	req, err := svc.Create(context.Background(), passenger.ID, trip.ID, seats, "")
	require.NoError(t, err)
	out, err := svc.Accept(context.Background(), w.driver.ID, req.ID)
	require.NoError(t, err)
	return out
}

// rideInProgress returns a started ride of a trip with the given number of
// one-seat passengers aboard.
func (w *world) rideInProgress(t *testing.T, passengers int) (domain.Ride, []domain.User) {
	t.Helper()
	trip := w.publishTrip(t, func(tr *domain.Trip) { tr.Capacity = max(passengers, 1) })
	riders := make([]domain.User, 0, passengers)
	var rideID uuid.UUID
	for range passengers {
		p := w.user("female")
		riders = append(riders, p)
		out := w.board(t, trip, p, 1)
		rideID = out.Ride.ID
	}
	rides := service.NewRideService(w.deps())
	if rideID == uuid.Nil {
		ride, err := rides.Open(context.Background(), w.driver.ID, trip.ID)
		require.NoError(t, err)
		rideID = ride.ID
	}
	ride, err := rides.Start(context.Background(), w.driver.ID, rideID)
	require.NoError(t, err)
	return ride, riders
}

func (w *world) wallet(t *testing.T, userID uuid.UUID, c domain.Currency) domain.WalletSummary {
	t.Helper()
	ws, err := service.NewRewardService(w.deps()).Wallet(context.Background(), userID, c)
	require.NoError(t, err)
	return ws
}

func (w *world) trip(t *testing.T, id uuid.UUID) domain.Trip {
	t.Helper()
	got, err := service.NewTripService(w.deps()).Get(context.Background(), id)
	require.NoError(t, err)
	return got
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }
