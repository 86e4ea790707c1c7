package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pkordes/ecopool/backend/internal/carbon"
	"github.com/pkordes/ecopool/backend/internal/domain"
	"github.com/pkordes/ecopool/backend/internal/events"
	"github.com/pkordes/ecopool/backend/internal/observability"
	"github.com/pkordes/ecopool/backend/internal/repo"
)

const (
	defaultTrackingLimit = 50
	maxTrackingLimit     = 500
)

// RideService runs a ride from its opening to a terminal state and pays
// out the rewards of a completed ride.
type RideService struct {
	deps Deps
}

// NewRideService constructs a RideService.
func NewRideService(d Deps) *RideService {
	return &RideService{deps: d.withDefaults()}
}

// LocationUpdate is one position report from the driver's device.
type LocationUpdate struct {
	Lat      float64
	Lng      float64
	SpeedKmh *float64
	Heading  *float64
}

// Open returns the ride of a trip, creating it when the driver opens it
// before any passenger was accepted.
func (s *RideService) Open(ctx context.Context, actor, tripID uuid.UUID) (domain.Ride, error) {
	var (
		ride    domain.Ride
		created bool
	)
	err := s.deps.Store.WithinTx(ctx, func(ctx context.Context, r repo.Repos) error {
		trip, err := r.Trips.GetForUpdate(ctx, tripID)
		if err != nil {
			return err
		}
		if trip.DriverID != actor {
			return fmt.Errorf("%w: only the driver may open the ride", domain.ErrForbidden)
		}
		ride, err = r.Rides.GetByTripForUpdate(ctx, tripID)
		if err == nil || !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		if trip.Status != domain.TripScheduled && trip.Status != domain.TripActive {
			return fmt.Errorf("%w: trip is %s", domain.ErrInvalidTransition, trip.Status)
		}
		ride, err = r.Rides.Create(ctx, domain.Ride{TripID: trip.ID, DriverID: trip.DriverID, Status: domain.RideStarted})
		created = err == nil
		return err
	})
	if err != nil {
		return domain.Ride{}, fmt.Errorf("service.RideService.Open: %w", err)
	}
	if created {
		s.deps.publish(ctx, events.Event{Type: events.RideOpened, Subject: ride.ID, Actor: actor})
	}
	return ride, nil
}

// Get returns a ride to one of its participants.
func (s *RideService) Get(ctx context.Context, actor, rideID uuid.UUID) (domain.Ride, error) {
	var ride domain.Ride
	err := s.deps.Store.WithinTx(ctx, func(ctx context.Context, r repo.Repos) error {
		var err error
		if ride, err = r.Rides.GetByID(ctx, rideID); err != nil {
			return err
		}
		return mustParticipate(ride, actor)
	})
	if err != nil {
		return domain.Ride{}, fmt.Errorf("service.RideService.Get: %w", err)
	}
	return ride, nil
}

// Start moves a started ride in progress and the trip to active.
func (s *RideService) Start(ctx context.Context, actor, rideID uuid.UUID) (domain.Ride, error) {
	var ride domain.Ride
	err := s.deps.Store.WithinTx(ctx, func(ctx context.Context, r repo.Repos) error {
		cur, trip, err := s.driverRide(ctx, r, actor, rideID, domain.RideInProgress)
		if err != nil {
			return err
		}
		now := s.deps.Now()
		cur.Status = domain.RideInProgress
		cur.StartTime = &now
		if ride, err = r.Rides.Update(ctx, cur); err != nil {
			return err
		}
		_, err = r.Trips.SetStatus(ctx, trip.ID, domain.TripActive)
		return err
	})
	if err != nil {
		return domain.Ride{}, fmt.Errorf("service.RideService.Start: %w", err)
	}

	observability.RideTransitionsTotal.WithLabelValues(string(ride.Status)).Inc()
	s.deps.publish(ctx, events.Event{Type: events.RideStarted, Subject: ride.ID, Actor: actor})
	return ride, nil
}

// UpdateLocation records a position of a ride that is being tracked. The
// live position cache is written after the unit of work commits.
func (s *RideService) UpdateLocation(ctx context.Context, actor, rideID uuid.UUID, loc LocationUpdate) (domain.TrackingPoint, error) {
	if loc.Lat < -90 || loc.Lat > 90 || loc.Lng < -180 || loc.Lng > 180 {
		return domain.TrackingPoint{}, fmt.Errorf("service.RideService.UpdateLocation: %w: coordinates out of range", domain.ErrValidation)
	}

	var point domain.TrackingPoint
	err := s.deps.Store.WithinTx(ctx, func(ctx context.Context, r repo.Repos) error {
		ride, err := r.Rides.GetForUpdate(ctx, rideID)
		if err != nil {
			return err
		}
		if ride.DriverID != actor {
			return fmt.Errorf("%w: only the driver reports positions", domain.ErrForbidden)
		}
		if !ride.Status.Tracking() {
			return fmt.Errorf("%w: ride is %s", domain.ErrInvalidTransition, ride.Status)
		}
		point, err = r.Rides.AddTrackingPoint(ctx, domain.TrackingPoint{
			RideID:     rideID,
			Lat:        loc.Lat,
			Lng:        loc.Lng,
			SpeedKmh:   loc.SpeedKmh,
			Heading:    loc.Heading,
			RecordedAt: s.deps.Now(),
		})
		if err != nil {
			return err
		}
		ride.Position = &domain.Position{Lat: loc.Lat, Lng: loc.Lng}
		_, err = r.Rides.Update(ctx, ride)
		return err
	})
	if err != nil {
		return domain.TrackingPoint{}, fmt.Errorf("service.RideService.UpdateLocation: %w", err)
	}

	s.deps.setPosition(ctx, rideID, domain.Position{Lat: point.Lat, Lng: point.Lng})
	s.deps.publish(ctx, events.Event{Type: events.RideLocation, Subject: rideID, Actor: actor, Data: point})
	return point, nil
}

// Complete closes a ride in progress over distanceKm and pays every
// participant an equal share of the points and diamonds it earned. The
// share is cut to whole points and to hundredths of a diamond; whatever
// does not divide evenly is reported and not paid out.
func (s *RideService) Complete(ctx context.Context, actor, rideID uuid.UUID, distanceKm decimal.Decimal) (domain.RideCompletion, error) {
	if !distanceKm.IsPositive() {
		return domain.RideCompletion{}, fmt.Errorf("service.RideService.Complete: %w: distance must be positive", domain.ErrValidation)
	}

	var (
		res     domain.RideCompletion
		entries []domain.LedgerEntry
	)
	err := s.deps.Store.WithinTx(ctx, func(ctx context.Context, r repo.Repos) error {
		ride, trip, err := s.driverRide(ctx, r, actor, rideID, domain.RideCompleted)
		if err != nil {
			return err
		}

		acct := carbon.NewAccountant(r.Rates)
		co2, err := acct.CO2Saved(ctx, distanceKm, trip.FuelType, len(ride.PassengerIDs))
		if err != nil {
			return err
		}
		totalDiamonds, err := acct.Diamonds(ctx, co2, distanceKm)
		if err != nil {
			return err
		}
		totalPoints := carbon.RewardPoints(co2)

		participants := ride.Participants()
		pointsShare, pointsLeft := carbon.Split(decimal.NewFromInt(totalPoints), len(participants), domain.CurrencyPoints.Places())
		diamondShare, diamondsLeft := carbon.Split(totalDiamonds, len(participants), domain.CurrencyDiamonds.Places())

		end := s.deps.Now()
		ride.Status = domain.RideCompleted
		ride.EndTime = &end
		ride.DistanceCovered = distanceKm
		ride.CO2Saved = co2
		if ride, err = r.Rides.Update(ctx, ride); err != nil {
			return err
		}
		if _, err := r.Trips.SetStatus(ctx, trip.ID, domain.TripCompleted); err != nil {
			return err
		}

		ref := ride.ID.String()
		for _, userID := range participants {
			for _, p := range []Posting{
				{UserID: userID, Currency: domain.CurrencyPoints, Amount: pointsShare},
				{UserID: userID, Currency: domain.CurrencyDiamonds, Amount: diamondShare},
			} {
				if !p.Amount.IsPositive() {
					continue
				}
				p.Kind = domain.KindEarnedRide
				p.Reference = ref
				p.Description = fmt.Sprintf("Ride %s to %s", trip.Origin.Name, trip.Destination.Name)
				e, err := credit(ctx, r, p)
				if err != nil {
					return err
				}
				entries = append(entries, e)
			}
			if err := r.Users.AddRideStats(ctx, userID, co2); err != nil {
				return err
			}
		}

		res = domain.RideCompletion{
			Ride:                  ride,
			CO2Saved:              co2,
			TreesEquivalent:       carbon.TreesEquivalent(co2),
			TotalPoints:           totalPoints,
			PointsPerPerson:       pointsShare.IntPart(),
			UndistributedPoints:   pointsLeft.IntPart(),
			TotalDiamonds:         totalDiamonds,
			DiamondsPerPerson:     diamondShare,
			UndistributedDiamonds: diamondsLeft,
		}
		return nil
	})
	if err != nil {
		return domain.RideCompletion{}, fmt.Errorf("service.RideService.Complete: %w", err)
	}

	countPostings(entries...)
	observability.RideTransitionsTotal.WithLabelValues(string(domain.RideCompleted)).Inc()
	observability.CO2SavedKgTotal.Add(res.CO2Saved.InexactFloat64())
	s.deps.dropPosition(ctx, rideID)
	s.deps.publish(ctx, events.Event{Type: events.RideCompleted, Subject: rideID, Actor: actor, Data: res})
	s.deps.Logger.InfoContext(ctx, "ride completed",
		"ride_id", rideID.String(), "co2_saved_kg", res.CO2Saved.String(),
		"participants", len(res.Ride.Participants()), "points_per_person", res.PointsPerPerson)
	return res, nil
}

// Cancel abandons a ride that has not finished. The trip is cancelled with
// it and its pending requests are rejected.
func (s *RideService) Cancel(ctx context.Context, actor, rideID uuid.UUID) (domain.Ride, error) {
	var ride domain.Ride
	err := s.deps.Store.WithinTx(ctx, func(ctx context.Context, r repo.Repos) error {
		cur, trip, err := s.driverRide(ctx, r, actor, rideID, domain.RideCancelled)
		if err != nil {
			return err
		}
		if _, err := r.Requests.RejectPending(ctx, trip.ID); err != nil {
			return err
		}
		end := s.deps.Now()
		cur.Status = domain.RideCancelled
		cur.EndTime = &end
		if ride, err = r.Rides.Update(ctx, cur); err != nil {
			return err
		}
		_, err = r.Trips.SetStatus(ctx, trip.ID, domain.TripCancelled)
		return err
	})
	if err != nil {
		return domain.Ride{}, fmt.Errorf("service.RideService.Cancel: %w", err)
	}

	observability.RideTransitionsTotal.WithLabelValues(string(ride.Status)).Inc()
	s.deps.dropPosition(ctx, rideID)
	s.deps.publish(ctx, events.Event{Type: events.RideCancelled, Subject: rideID, Actor: actor})
	return ride, nil
}

// RaiseEmergency puts a live ride into the emergency state. Any participant
// may raise it. The last live position is kept for responders. A trip that
// was still scheduled becomes active so it is no longer offered to
// passengers.
func (s *RideService) RaiseEmergency(ctx context.Context, actor, rideID uuid.UUID) (domain.Ride, error) {
	var ride domain.Ride
	err := s.deps.Store.WithinTx(ctx, func(ctx context.Context, r repo.Repos) error {
		cur, trip, err := lockRide(ctx, r, rideID)
		if err != nil {
			return err
		}
		if err := mustParticipate(cur, actor); err != nil {
			return err
		}
		if !cur.Status.CanTransition(domain.RideEmergency) {
			return fmt.Errorf("%w: ride is %s", domain.ErrInvalidTransition, cur.Status)
		}
		end := s.deps.Now()
		cur.Status = domain.RideEmergency
		cur.EndTime = &end
		if ride, err = r.Rides.Update(ctx, cur); err != nil {
			return err
		}
		if trip.Status == domain.TripScheduled {
			_, err = r.Trips.SetStatus(ctx, trip.ID, domain.TripActive)
		}
		return err
	})
	if err != nil {
		return domain.Ride{}, fmt.Errorf("service.RideService.RaiseEmergency: %w", err)
	}

	observability.RideTransitionsTotal.WithLabelValues(string(ride.Status)).Inc()
	s.deps.Logger.ErrorContext(ctx, "ride emergency raised", "ride_id", rideID.String(), "raised_by", actor.String())
	s.deps.publish(ctx, events.Event{Type: events.RideEmergency, Subject: rideID, Actor: actor, Data: ride.Position})
	return ride, nil
}

// Tracking returns the latest recorded points of a ride, newest first.
// A limit of zero or less means 50.
func (s *RideService) Tracking(ctx context.Context, actor, rideID uuid.UUID, limit int) ([]domain.TrackingPoint, error) {
	if limit <= 0 {
		limit = defaultTrackingLimit
	}
	limit = min(limit, maxTrackingLimit)

	var points []domain.TrackingPoint
	err := s.deps.Store.WithinTx(ctx, func(ctx context.Context, r repo.Repos) error {
		ride, err := r.Rides.GetByID(ctx, rideID)
		if err != nil {
			return err
		}
		if err := mustParticipate(ride, actor); err != nil {
			return err
		}
		points, err = r.Rides.ListTracking(ctx, rideID, limit)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("service.RideService.Tracking: %w", err)
	}
	if points == nil {
		points = []domain.TrackingPoint{}
	}
	return points, nil
}

// driverRide locks a ride and its trip, checks that actor drives it and
// that it may move to next.
func (s *RideService) driverRide(ctx context.Context, r repo.Repos, actor, rideID uuid.UUID, next domain.RideStatus) (domain.Ride, domain.Trip, error) {
	ride, trip, err := lockRide(ctx, r, rideID)
	if err != nil {
		return domain.Ride{}, domain.Trip{}, err
	}
	if ride.DriverID != actor {
		return domain.Ride{}, domain.Trip{}, fmt.Errorf("%w: only the driver may do this", domain.ErrForbidden)
	}
	if !ride.Status.CanTransition(next) {
		return domain.Ride{}, domain.Trip{}, fmt.Errorf("%w: ride is %s", domain.ErrInvalidTransition, ride.Status)
	}
	return ride, trip, nil
}

// lockRide locks the trip of a ride before the ride itself, the same order
// the request and trip units of work use.
func lockRide(ctx context.Context, r repo.Repos, rideID uuid.UUID) (domain.Ride, domain.Trip, error) {
	peek, err := r.Rides.GetByID(ctx, rideID)
	if err != nil {
		return domain.Ride{}, domain.Trip{}, err
	}
	trip, err := r.Trips.GetForUpdate(ctx, peek.TripID)
	if err != nil {
		return domain.Ride{}, domain.Trip{}, err
	}
	ride, err := r.Rides.GetForUpdate(ctx, rideID)
	if err != nil {
		return domain.Ride{}, domain.Trip{}, err
	}
	return ride, trip, nil
}

// mustParticipate returns domain.ErrForbidden unless actor takes part in ride.
func mustParticipate(ride domain.Ride, actor uuid.UUID) error {
	if !ride.IsParticipant(actor) {
		return fmt.Errorf("%w: not a participant of this ride", domain.ErrForbidden)
	}
	return nil
}
