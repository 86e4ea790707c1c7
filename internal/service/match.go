package service

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/pkordes/ecopool/backend/internal/domain"
	"github.com/pkordes/ecopool/backend/internal/geo"
	"github.com/pkordes/ecopool/backend/internal/observability"
	"github.com/pkordes/ecopool/backend/internal/repo"
)

// SearchCriteria describes the route a passenger wants to travel.
type SearchCriteria struct {
	Origin         geo.Point
	Destination    geo.Point
	SeatsNeeded    int
	MaxDeviationKm float64
	// DepartureDate, when set, restricts results to trips leaving on the same
	// UTC calendar day.
	DepartureDate *time.Time
}

// TripMatch is a candidate trip with its route overlap.
type TripMatch struct {
	Trip                   domain.Trip `json:"trip"`
	Score                  float64     `json:"score"`
	OriginDeviationKm      float64     `json:"origin_deviation_km"`
	DestinationDeviationKm float64     `json:"destination_deviation_km"`
}

// MatchTrips filters pool by the hard constraints and ranks the survivors
// by overlap score, best first. Ties go to the earlier departure and then to
// the lower trip id. It never returns nil.
func MatchTrips(c SearchCriteria, pool []domain.Trip, requester domain.User, now time.Time) []TripMatch {
	maxDev := c.MaxDeviationKm
	if maxDev <= 0 {
		maxDev = geo.DefaultMaxDeviationKm
	}
	search := geo.Route{Origin: c.Origin, Destination: c.Destination}

	out := []TripMatch{}
	for _, t := range pool {
		if t.OrganizationID != requester.OrganizationID {
			continue
		}
		if !requester.FitsGenderPreference(t.GenderPreference) {
			continue
		}
		if t.AvailableSeats < c.SeatsNeeded {
			continue
		}
		if t.Status != domain.TripScheduled || !t.DepartureTime.After(now) {
			continue
		}
		if c.DepartureDate != nil && !sameUTCDay(t.DepartureTime, *c.DepartureDate) {
			continue
		}

		route := geo.Route{
			Origin:      geo.Point{Lat: t.Origin.Lat, Lng: t.Origin.Lng},
			Destination: geo.Point{Lat: t.Destination.Lat, Lng: t.Destination.Lng},
		}
		res := geo.Score(route, search, maxDev)
		if !res.Matched {
			continue
		}
		out = append(out, TripMatch{
			Trip:                   t,
			Score:                  res.Score,
			OriginDeviationKm:      res.OriginDeviationKm,
			DestinationDeviationKm: res.DestinationDeviationKm,
		})
	}

	slices.SortFunc(out, func(a, b TripMatch) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		if c := a.Trip.DepartureTime.Compare(b.Trip.DepartureTime); c != 0 {
			return c
		}
		return cmp.Compare(a.Trip.ID.String(), b.Trip.ID.String())
	})
	return out
}

func sameUTCDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

// MatchService answers trip searches for a requester.
type MatchService struct {
	deps Deps
}

// NewMatchService constructs a MatchService.
func NewMatchService(d Deps) *MatchService {
	return &MatchService{deps: d.withDefaults()}
}

// Search loads the requester and the schedulable trips of their organization
// and ranks them against c.
func (s *MatchService) Search(ctx context.Context, requesterID uuid.UUID, c SearchCriteria) ([]TripMatch, error) {
	start := time.Now()
	defer func() { observability.MatchLatency.Observe(time.Since(start).Seconds()) }()

	if c.SeatsNeeded == 0 {
		c.SeatsNeeded = 1
	}
	if c.SeatsNeeded < 0 {
		return nil, fmt.Errorf("service.MatchService.Search: %w: seats_needed must be positive", domain.ErrValidation)
	}
	if c.MaxDeviationKm < 0 {
		return nil, fmt.Errorf("service.MatchService.Search: %w: max_deviation_km must not be negative", domain.ErrValidation)
	}

	now := s.deps.Now()
	var (
		requester domain.User
		pool      []domain.Trip
	)
	err := s.deps.Store.WithinTx(ctx, func(ctx context.Context, r repo.Repos) error {
		var err error
		if requester, err = r.Users.GetByID(ctx, requesterID); err != nil {
			return err
		}
		pool, err = r.Trips.ListSchedulable(ctx, requester.OrganizationID, now)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("service.MatchService.Search: %w", err)
	}

	matches := MatchTrips(c, pool, requester, now)
	observability.MatchSearchesTotal.Inc()
	observability.MatchResultsTotal.Add(float64(len(matches)))
	return matches, nil
}
