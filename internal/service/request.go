package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/pkordes/ecopool/backend/internal/domain"
	"github.com/pkordes/ecopool/backend/internal/events"
	"github.com/pkordes/ecopool/backend/internal/observability"
	"github.com/pkordes/ecopool/backend/internal/repo"
)

// RequestService moves seat requests through their states and keeps the
// trip's available seats in step.
type RequestService struct {
	deps Deps
}

// NewRequestService constructs a RequestService.
func NewRequestService(d Deps) *RequestService {
	return &RequestService{deps: d.withDefaults()}
}

// Create files a pending request for seats on a trip. Available seats are
// only checked here, never reserved; Accept reserves them.
func (s *RequestService) Create(ctx context.Context, actor, tripID uuid.UUID, seats int, message string) (domain.TripRequest, error) {
	if seats < 1 {
		return domain.TripRequest{}, fmt.Errorf("service.RequestService.Create: %w: seats must be at least 1", domain.ErrValidation)
	}

	var req domain.TripRequest
	err := s.deps.Store.WithinTx(ctx, func(ctx context.Context, r repo.Repos) error {
		trip, err := r.Trips.GetByID(ctx, tripID)
		if err != nil {
			return err
		}
		if trip.DriverID == actor {
			return fmt.Errorf("%w: drivers cannot request their own trip", domain.ErrForbidden)
		}
		passenger, err := r.Users.GetByID(ctx, actor)
		if err != nil {
			return err
		}
		if passenger.OrganizationID != trip.OrganizationID || !passenger.FitsGenderPreference(trip.GenderPreference) {
			return fmt.Errorf("%w: trip is not open to this passenger", domain.ErrForbidden)
		}
		open, err := r.Requests.HasOpen(ctx, tripID, actor)
		if err != nil {
			return err
		}
		if open {
			return fmt.Errorf("%w: an open request already exists", domain.ErrConflict)
		}
		if !trip.IsOpen() {
			return fmt.Errorf("%w: trip is %s", domain.ErrInvalidTransition, trip.Status)
		}
		if seats > trip.AvailableSeats {
			return fmt.Errorf("%w: %d requested, %d available", domain.ErrInsufficientSeats, seats, trip.AvailableSeats)
		}

		req, err = r.Requests.Create(ctx, domain.TripRequest{
			TripID:         tripID,
			PassengerID:    actor,
			SeatsRequested: seats,
			Message:        strings.TrimSpace(message),
			Status:         domain.RequestPending,
		})
		return err
	})
	if err != nil {
		return domain.TripRequest{}, fmt.Errorf("service.RequestService.Create: %w", err)
	}

	observability.RequestTransitionsTotal.WithLabelValues(string(req.Status)).Inc()
	s.deps.publish(ctx, events.Event{Type: events.RequestCreated, Subject: req.ID, Actor: actor, Data: req})
	return req, nil
}

// Accept lets the driver take a pending request. Seats are reserved with a
// conditional update; when they no longer suffice nothing changes and
// domain.ErrInsufficientSeats is returned. The first accepted passenger
// opens the trip's ride and later ones join it.
func (s *RequestService) Accept(ctx context.Context, actor, requestID uuid.UUID) (domain.RequestOutcome, error) {
	var out domain.RequestOutcome
	err := s.deps.Store.WithinTx(ctx, func(ctx context.Context, r repo.Repos) error {
		req, trip, err := s.lockForDriver(ctx, r, actor, requestID)
		if err != nil {
			return err
		}
		if !req.Status.CanTransition(domain.RequestAccepted) {
			return fmt.Errorf("%w: request is %s", domain.ErrInvalidTransition, req.Status)
		}
		if !trip.IsOpen() {
			return fmt.Errorf("%w: trip is %s", domain.ErrInvalidTransition, trip.Status)
		}

		if out.Trip, err = r.Trips.ReserveSeats(ctx, trip.ID, req.SeatsRequested); err != nil {
			return err
		}
		if out.Request, err = r.Requests.SetStatus(ctx, req.ID, domain.RequestAccepted); err != nil {
			return err
		}
		ride, err := s.seatPassenger(ctx, r, trip, req.PassengerID)
		if err != nil {
			return err
		}
		out.Ride = &ride
		return nil
	})
	if err != nil {
		return domain.RequestOutcome{}, fmt.Errorf("service.RequestService.Accept: %w", err)
	}

	observability.RequestTransitionsTotal.WithLabelValues(string(domain.RequestAccepted)).Inc()
	s.deps.publish(ctx, events.Event{Type: events.RequestAccepted, Subject: out.Request.ID, Actor: actor, Data: out.Request})
	return out, nil
}

// seatPassenger opens the trip's ride with passengerID aboard, or adds
// passengerID to the ride that is already open.
func (s *RequestService) seatPassenger(ctx context.Context, r repo.Repos, trip domain.Trip, passengerID uuid.UUID) (domain.Ride, error) {
	ride, err := r.Rides.GetByTripForUpdate(ctx, trip.ID)
	if errors.Is(err, domain.ErrNotFound) {
		return r.Rides.Create(ctx, domain.Ride{
			TripID:       trip.ID,
			DriverID:     trip.DriverID,
			PassengerIDs: []uuid.UUID{passengerID},
			Status:       domain.RideStarted,
		})
	}
	if err != nil {
		return domain.Ride{}, err
	}
	if ride.Status.IsTerminal() {
		return domain.Ride{}, fmt.Errorf("%w: ride is %s", domain.ErrInvalidTransition, ride.Status)
	}
	if err := r.Rides.AddPassenger(ctx, ride.ID, passengerID); err != nil {
		return domain.Ride{}, err
	}
	return r.Rides.GetByID(ctx, ride.ID)
}

// Reject lets the driver turn down a pending request. Seats are untouched.
func (s *RequestService) Reject(ctx context.Context, actor, requestID uuid.UUID) (domain.RequestOutcome, error) {
	var out domain.RequestOutcome
	err := s.deps.Store.WithinTx(ctx, func(ctx context.Context, r repo.Repos) error {
		req, trip, err := s.lockForDriver(ctx, r, actor, requestID)
		if err != nil {
			return err
		}
		if !req.Status.CanTransition(domain.RequestRejected) {
			return fmt.Errorf("%w: request is %s", domain.ErrInvalidTransition, req.Status)
		}
		out.Trip = trip
		out.Request, err = r.Requests.SetStatus(ctx, req.ID, domain.RequestRejected)
		return err
	})
	if err != nil {
		return domain.RequestOutcome{}, fmt.Errorf("service.RequestService.Reject: %w", err)
	}

	observability.RequestTransitionsTotal.WithLabelValues(string(domain.RequestRejected)).Inc()
	s.deps.publish(ctx, events.Event{Type: events.RequestRejected, Subject: out.Request.ID, Actor: actor, Data: out.Request})
	return out, nil
}

// Cancel lets the passenger withdraw a request. Withdrawing an accepted
// request is only possible while the trip is scheduled and its ride has not
// moved; it gives the seats back and takes the passenger off the ride.
func (s *RequestService) Cancel(ctx context.Context, actor, requestID uuid.UUID) (domain.RequestOutcome, error) {
	var out domain.RequestOutcome
	err := s.deps.Store.WithinTx(ctx, func(ctx context.Context, r repo.Repos) error {
		req, trip, err := lockRequest(ctx, r, requestID)
		if err != nil {
			return err
		}
		if req.PassengerID != actor {
			return fmt.Errorf("%w: only the requester may cancel", domain.ErrForbidden)
		}
		if !req.Status.CanTransition(domain.RequestCancelled) {
			return fmt.Errorf("%w: request is %s", domain.ErrInvalidTransition, req.Status)
		}

		if req.Status == domain.RequestAccepted {
			if trip.Status != domain.TripScheduled {
				return fmt.Errorf("%w: trip is %s", domain.ErrInvalidTransition, trip.Status)
			}
			ride, err := r.Rides.GetByTripForUpdate(ctx, trip.ID)
			switch {
			case errors.Is(err, domain.ErrNotFound):
			case err != nil:
				return err
			case ride.Status != domain.RideStarted:
				return fmt.Errorf("%w: ride is %s", domain.ErrInvalidTransition, ride.Status)
			default:
				if err := r.Rides.RemovePassenger(ctx, ride.ID, actor); err != nil {
					return err
				}
				if ride, err = r.Rides.GetByID(ctx, ride.ID); err != nil {
					return err
				}
				out.Ride = &ride
			}
			if trip, err = r.Trips.ReleaseSeats(ctx, trip.ID, req.SeatsRequested); err != nil {
				return err
			}
		}

		out.Trip = trip
		out.Request, err = r.Requests.SetStatus(ctx, req.ID, domain.RequestCancelled)
		return err
	})
	if err != nil {
		return domain.RequestOutcome{}, fmt.Errorf("service.RequestService.Cancel: %w", err)
	}

	observability.RequestTransitionsTotal.WithLabelValues(string(domain.RequestCancelled)).Inc()
	s.deps.publish(ctx, events.Event{Type: events.RequestCancelled, Subject: out.Request.ID, Actor: actor, Data: out.Request})
	return out, nil
}

// lockForDriver locks a request and its trip and checks that actor drives
// the trip.
func (s *RequestService) lockForDriver(ctx context.Context, r repo.Repos, actor, requestID uuid.UUID) (domain.TripRequest, domain.Trip, error) {
	req, trip, err := lockRequest(ctx, r, requestID)
	if err != nil {
		return domain.TripRequest{}, domain.Trip{}, err
	}
	if trip.DriverID != actor {
		return domain.TripRequest{}, domain.Trip{}, fmt.Errorf("%w: only the driver may decide on requests", domain.ErrForbidden)
	}
	return req, trip, nil
}

// lockRequest locks the trip of a request and then the request itself.
// Every unit of work that touches several rows locks trip, then request,
// then ride; the trip id is read without a lock first to keep that order.
func lockRequest(ctx context.Context, r repo.Repos, requestID uuid.UUID) (domain.TripRequest, domain.Trip, error) {
	peek, err := r.Requests.GetByID(ctx, requestID)
	if err != nil {
		return domain.TripRequest{}, domain.Trip{}, err
	}
	trip, err := r.Trips.GetForUpdate(ctx, peek.TripID)
	if err != nil {
		return domain.TripRequest{}, domain.Trip{}, err
	}
	req, err := r.Requests.GetForUpdate(ctx, requestID)
	if err != nil {
		return domain.TripRequest{}, domain.Trip{}, err
	}
	return req, trip, nil
}

// ListForTrip returns every request on a trip, oldest first. Only the
// driver may list them.
func (s *RequestService) ListForTrip(ctx context.Context, actor, tripID uuid.UUID) ([]domain.TripRequest, error) {
	var reqs []domain.TripRequest
	err := s.deps.Store.WithinTx(ctx, func(ctx context.Context, r repo.Repos) error {
		trip, err := r.Trips.GetByID(ctx, tripID)
		if err != nil {
			return err
		}
		if trip.DriverID != actor {
			return fmt.Errorf("%w: only the driver may list requests", domain.ErrForbidden)
		}
		reqs, err = r.Requests.ListByTrip(ctx, tripID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("service.RequestService.ListForTrip: %w", err)
	}
	return reqs, nil
}

// ListMine returns the requests made by actor, newest first.
func (s *RequestService) ListMine(ctx context.Context, actor uuid.UUID) ([]domain.TripRequest, error) {
	var reqs []domain.TripRequest
	err := s.deps.Store.WithinTx(ctx, func(ctx context.Context, r repo.Repos) error {
		var err error
		reqs, err = r.Requests.ListByPassenger(ctx, actor)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("service.RequestService.ListMine: %w", err)
	}
	return reqs, nil
}
