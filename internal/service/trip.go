package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/pkordes/ecopool/backend/internal/domain"
	"github.com/pkordes/ecopool/backend/internal/events"
	"github.com/pkordes/ecopool/backend/internal/repo"
)

// TripService publishes and cancels trips.
type TripService struct {
	deps Deps
}

// NewTripService constructs a TripService.
func NewTripService(d Deps) *TripService {
	return &TripService{deps: d.withDefaults()}
}

var knownFuels = map[domain.FuelType]bool{
	domain.FuelPetrol: true, domain.FuelDiesel: true, domain.FuelElectric: true, domain.FuelHybrid: true,
}

// validateTrip checks business rules and fills defaults on trip.
func (s *TripService) validateTrip(trip *domain.Trip) error {
	trip.Origin.Name = strings.TrimSpace(trip.Origin.Name)
	trip.Destination.Name = strings.TrimSpace(trip.Destination.Name)
	if trip.Origin.Name == "" || trip.Destination.Name == "" {
		return fmt.Errorf("%w: origin and destination names are required", domain.ErrValidation)
	}
	for _, p := range []domain.Place{trip.Origin, trip.Destination} {
		if p.Lat < -90 || p.Lat > 90 || p.Lng < -180 || p.Lng > 180 {
			return fmt.Errorf("%w: coordinates out of range", domain.ErrValidation)
		}
	}
	if trip.Capacity < 1 {
		return fmt.Errorf("%w: capacity must be at least 1", domain.ErrValidation)
	}
	if trip.PricePerSeat.IsNegative() {
		return fmt.Errorf("%w: price_per_seat must not be negative", domain.ErrValidation)
	}
	if trip.GenderPreference == "" {
		trip.GenderPreference = domain.GenderAny
	}
	if !domain.ValidGenderPreference(trip.GenderPreference) {
		return fmt.Errorf("%w: unknown gender_preference %q", domain.ErrValidation, trip.GenderPreference)
	}
	trip.GenderPreference = strings.ToLower(trip.GenderPreference)
	if trip.FuelType == "" {
		trip.FuelType = domain.FuelPetrol
	}
	if !knownFuels[trip.FuelType] {
		return fmt.Errorf("%w: unknown fuel_type %q", domain.ErrValidation, trip.FuelType)
	}
	if !trip.DepartureTime.After(s.deps.Now()) {
		return fmt.Errorf("%w: departure_time must be in the future", domain.ErrValidation)
	}
	return nil
}

// Create publishes a trip driven by driverID. The trip belongs to the
// driver's organization and starts with every seat available.
func (s *TripService) Create(ctx context.Context, driverID uuid.UUID, trip domain.Trip) (domain.Trip, error) {
	if err := s.validateTrip(&trip); err != nil {
		return domain.Trip{}, fmt.Errorf("service.TripService.Create: %w", err)
	}

	var created domain.Trip
	err := s.deps.Store.WithinTx(ctx, func(ctx context.Context, r repo.Repos) error {
		driver, err := r.Users.GetByID(ctx, driverID)
		if err != nil {
			return err
		}
		trip.DriverID = driver.ID
		trip.OrganizationID = driver.OrganizationID
		trip.AvailableSeats = trip.Capacity
		trip.Status = domain.TripScheduled
		created, err = r.Trips.Create(ctx, trip)
		return err
	})
	if err != nil {
		return domain.Trip{}, fmt.Errorf("service.TripService.Create: %w", err)
	}

	s.deps.publish(ctx, events.Event{Type: events.TripCreated, Subject: created.ID, Actor: driverID})
	return created, nil
}

// Get returns a single trip by ID.
func (s *TripService) Get(ctx context.Context, id uuid.UUID) (domain.Trip, error) {
	var trip domain.Trip
	err := s.deps.Store.WithinTx(ctx, func(ctx context.Context, r repo.Repos) error {
		var err error
		trip, err = r.Trips.GetByID(ctx, id)
		return err
	})
	if err != nil {
		return domain.Trip{}, fmt.Errorf("service.TripService.Get: %w", err)
	}
	return trip, nil
}

// Cancel lets the driver withdraw a scheduled or active trip. Pending
// requests are rejected and a live ride is cancelled with it.
func (s *TripService) Cancel(ctx context.Context, actor, tripID uuid.UUID) (domain.Trip, error) {
	var (
		trip       domain.Trip
		rideClosed *domain.Ride
	)
	err := s.deps.Store.WithinTx(ctx, func(ctx context.Context, r repo.Repos) error {
		cur, err := r.Trips.GetForUpdate(ctx, tripID)
		if err != nil {
			return err
		}
		if cur.DriverID != actor {
			return fmt.Errorf("%w: only the driver may cancel the trip", domain.ErrForbidden)
		}
		if cur.Status != domain.TripScheduled && cur.Status != domain.TripActive {
			return fmt.Errorf("%w: trip is %s", domain.ErrInvalidTransition, cur.Status)
		}
		if _, err := r.Requests.RejectPending(ctx, tripID); err != nil {
			return err
		}

		ride, err := r.Rides.GetByTripForUpdate(ctx, tripID)
		switch {
		case errors.Is(err, domain.ErrNotFound):
		case err != nil:
			return err
		case !ride.Status.IsTerminal():
			ride.Status = domain.RideCancelled
			end := s.deps.Now()
			ride.EndTime = &end
			updated, err := r.Rides.Update(ctx, ride)
			if err != nil {
				return err
			}
			rideClosed = &updated
		}

		trip, err = r.Trips.SetStatus(ctx, tripID, domain.TripCancelled)
		return err
	})
	if err != nil {
		return domain.Trip{}, fmt.Errorf("service.TripService.Cancel: %w", err)
	}

	s.deps.publish(ctx, events.Event{Type: events.TripCancelled, Subject: trip.ID, Actor: actor})
	if rideClosed != nil {
		s.deps.dropPosition(ctx, rideClosed.ID)
		s.deps.publish(ctx, events.Event{Type: events.RideCancelled, Subject: rideClosed.ID, Actor: actor})
	}
	return trip, nil
}
