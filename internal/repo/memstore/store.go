// Package memstore is an in-memory repo.Store. A single mutex serialises
// units of work; each unit runs against a copy of the state that replaces
// the committed state only when the unit returns nil.
package memstore

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pkordes/ecopool/backend/internal/domain"
	"github.com/pkordes/ecopool/backend/internal/repo"
)

type walletKey struct {
	user     uuid.UUID
	currency domain.Currency
}

type state struct {
	users       map[uuid.UUID]domain.User
	trips       map[uuid.UUID]domain.Trip
	requests    map[uuid.UUID]domain.TripRequest
	requestSeq  []uuid.UUID
	rides       map[uuid.UUID]domain.Ride
	tracking    []domain.TrackingPoint
	entries     []domain.LedgerEntry
	wallets     map[walletKey]domain.Wallet
	rates       map[string]domain.ConversionRate
	factors     map[domain.FuelType]decimal.Decimal
	options     map[uuid.UUID]domain.RedemptionOption
	redemptions []domain.Redemption
	ngos        map[uuid.UUID]domain.NGO
	donations   []domain.Donation
}

func newState() *state {
	return &state{
		users:    map[uuid.UUID]domain.User{},
		trips:    map[uuid.UUID]domain.Trip{},
		requests: map[uuid.UUID]domain.TripRequest{},
		rides:    map[uuid.UUID]domain.Ride{},
		wallets:  map[walletKey]domain.Wallet{},
		rates:    map[string]domain.ConversionRate{},
		factors:  map[domain.FuelType]decimal.Decimal{},
		options:  map[uuid.UUID]domain.RedemptionOption{},
		ngos:     map[uuid.UUID]domain.NGO{},
	}
}

// clone copies everything a unit of work may mutate. Ride passenger slices
// are the only nested references.
func (st *state) clone() *state {
	c := &state{
		users:       maps.Clone(st.users),
		trips:       maps.Clone(st.trips),
		requests:    maps.Clone(st.requests),
		requestSeq:  slices.Clone(st.requestSeq),
		rides:       make(map[uuid.UUID]domain.Ride, len(st.rides)),
		tracking:    slices.Clone(st.tracking),
		entries:     slices.Clone(st.entries),
		wallets:     maps.Clone(st.wallets),
		rates:       maps.Clone(st.rates),
		factors:     maps.Clone(st.factors),
		options:     maps.Clone(st.options),
		redemptions: slices.Clone(st.redemptions),
		ngos:        maps.Clone(st.ngos),
		donations:   slices.Clone(st.donations),
	}
	for id, r := range st.rides {
		c.rides[id] = copyRide(r)
	}
	return c
}

func copyRide(r domain.Ride) domain.Ride {
	r.PassengerIDs = slices.Clone(r.PassengerIDs)
	if r.Position != nil {
		p := *r.Position
		r.Position = &p
	}
	return r
}

// Store is the in-memory repo.Store.
type Store struct {
	mu    sync.Mutex
	state *state
	now   func() time.Time
}

var _ repo.Store = (*Store)(nil)

// New returns an empty Store stamping records with time.Now.
func New() *Store {
	return &Store{state: newState(), now: time.Now}
}

// SetClock replaces the clock used for created and updated timestamps.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// WithinTx runs fn against a private copy of the state and commits the copy
// if fn succeeds. Units of work never interleave.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, r repo.Repos) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	work := s.state.clone()
	if err := fn(ctx, newRepos(work, s.now)); err != nil {
		return err
	}
	s.state = work
	return nil
}

// ---- seeding ----

// AddUser stores u, assigning an id when it has none.
func (s *Store) AddUser(u domain.User) domain.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.Role == "" {
		u.Role = "commuter"
	}
	s.state.users[u.ID] = u
	return u
}

// AddOption stores a redemption option, assigning an id when it has none.
func (s *Store) AddOption(o domain.RedemptionOption) domain.RedemptionOption {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	if o.ValidityDays == 0 {
		o.ValidityDays = domain.DefaultValidityDays
	}
	s.state.options[o.ID] = o
	return o
}

// AddNGO stores an NGO partner, assigning an id when it has none.
func (s *Store) AddNGO(n domain.NGO) domain.NGO {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	s.state.ngos[n.ID] = n
	return n
}

// SetRate stores an active conversion rate.
func (s *Store) SetRate(name string, rate decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.rates[name] = domain.ConversionRate{Name: name, Rate: rate, Active: true, UpdatedAt: s.now()}
}

// SetEmissionFactor stores the kg CO2 per km of fuel.
func (s *Store) SetEmissionFactor(fuel domain.FuelType, factor decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.factors[fuel] = factor
}

func newRepos(st *state, now func() time.Time) repo.Repos {
	return repo.Repos{
		Users:    &userRepo{st: st},
		Trips:    &tripRepo{st: st, now: now},
		Requests: &requestRepo{st: st, now: now},
		Rides:    &rideRepo{st: st, now: now},
		Ledger:   &ledgerRepo{st: st, now: now},
		Rates:    &rateRepo{st: st, now: now},
		Rewards:  &rewardRepo{st: st, now: now},
	}
}
