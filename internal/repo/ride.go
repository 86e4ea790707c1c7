package repo

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/pkordes/ecopool/backend/internal/domain"
)

// RideRepo defines the persistence operations for Rides, their passenger
// sets and their tracking points.
type RideRepo interface {
	// Create inserts a ride with its initial passengers. A second ride for
	// the same trip returns domain.ErrConflict.
	Create(ctx context.Context, ride domain.Ride) (domain.Ride, error)

	// GetByID returns domain.ErrNotFound if the ride does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (domain.Ride, error)

	// GetForUpdate is GetByID with an exclusive row lock.
	GetForUpdate(ctx context.Context, id uuid.UUID) (domain.Ride, error)

	// GetByTripForUpdate locks and returns the ride of a trip, or
	// domain.ErrNotFound if the trip has none yet.
	GetByTripForUpdate(ctx context.Context, tripID uuid.UUID) (domain.Ride, error)

	// AddPassenger joins userID to the ride. Idempotent.
	AddPassenger(ctx context.Context, rideID, userID uuid.UUID) error

	// RemovePassenger drops userID from the ride. Idempotent.
	RemovePassenger(ctx context.Context, rideID, userID uuid.UUID) error

	// Update persists status, position, times, distance and CO2 of a ride.
	Update(ctx context.Context, ride domain.Ride) (domain.Ride, error)

	// AddTrackingPoint appends a recorded position.
	AddTrackingPoint(ctx context.Context, p domain.TrackingPoint) (domain.TrackingPoint, error)

	// ListTracking returns up to limit points, newest first.
	ListTracking(ctx context.Context, rideID uuid.UUID, limit int) ([]domain.TrackingPoint, error)
}

type pgRideRepo struct {
	db db
}

// NewRideRepo constructs a RideRepo backed by the provided db connection.
func NewRideRepo(db db) RideRepo {
	return &pgRideRepo{db: db}
}

// rideSelect reads a ride together with its passenger ids in join order.
const rideSelect = `
	SELECT r.id, r.trip_id, r.driver_id,
	       ARRAY(SELECT p.user_id FROM ride_passengers p WHERE p.ride_id = r.id ORDER BY p.joined_at, p.user_id),
	       r.status, r.current_lat, r.current_lng, r.start_time, r.end_time,
	       r.distance_covered, r.co2_saved, r.created_at, r.updated_at
	FROM rides r`

func (r *pgRideRepo) Create(ctx context.Context, ride domain.Ride) (domain.Ride, error) {
	const q = `
		INSERT INTO rides (trip_id, driver_id, status)
		VALUES (@trip_id, @driver_id, @status)
		RETURNING id`

	var id pgtype.UUID
	args := pgx.NamedArgs{"trip_id": ride.TripID, "driver_id": ride.DriverID, "status": string(ride.Status)}
	if err := r.db.QueryRow(ctx, q, args).Scan(&id); err != nil {
		return domain.Ride{}, fmt.Errorf("repo.RideRepo.Create: %w", mapErr(err))
	}
	rideID := uuid.UUID(id.Bytes)
	for _, p := range ride.PassengerIDs {
		if err := r.AddPassenger(ctx, rideID, p); err != nil {
			return domain.Ride{}, fmt.Errorf("repo.RideRepo.Create: %w", err)
		}
	}
	return r.GetByID(ctx, rideID)
}

func (r *pgRideRepo) GetByID(ctx context.Context, id uuid.UUID) (domain.Ride, error) {
	const q = rideSelect + ` WHERE r.id = @id`

	result, err := scanRide(r.db.QueryRow(ctx, q, pgx.NamedArgs{"id": id}))
	if err != nil {
		return domain.Ride{}, fmt.Errorf("repo.RideRepo.GetByID: %w", err)
	}
	return result, nil
}

func (r *pgRideRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (domain.Ride, error) {
	const q = rideSelect + ` WHERE r.id = @id FOR UPDATE OF r`

	result, err := scanRide(r.db.QueryRow(ctx, q, pgx.NamedArgs{"id": id}))
	if err != nil {
		return domain.Ride{}, fmt.Errorf("repo.RideRepo.GetForUpdate: %w", err)
	}
	return result, nil
}

func (r *pgRideRepo) GetByTripForUpdate(ctx context.Context, tripID uuid.UUID) (domain.Ride, error) {
	const q = rideSelect + ` WHERE r.trip_id = @trip_id FOR UPDATE OF r`

	result, err := scanRide(r.db.QueryRow(ctx, q, pgx.NamedArgs{"trip_id": tripID}))
	if err != nil {
		return domain.Ride{}, fmt.Errorf("repo.RideRepo.GetByTripForUpdate: %w", err)
	}
	return result, nil
}

func (r *pgRideRepo) AddPassenger(ctx context.Context, rideID, userID uuid.UUID) error {
	const q = `
		INSERT INTO ride_passengers (ride_id, user_id)
		VALUES (@ride_id, @user_id)
		ON CONFLICT DO NOTHING`

	if _, err := r.db.Exec(ctx, q, pgx.NamedArgs{"ride_id": rideID, "user_id": userID}); err != nil {
		return fmt.Errorf("repo.RideRepo.AddPassenger: %w", err)
	}
	return nil
}

func (r *pgRideRepo) RemovePassenger(ctx context.Context, rideID, userID uuid.UUID) error {
	const q = `DELETE FROM ride_passengers WHERE ride_id = @ride_id AND user_id = @user_id`

	if _, err := r.db.Exec(ctx, q, pgx.NamedArgs{"ride_id": rideID, "user_id": userID}); err != nil {
		return fmt.Errorf("repo.RideRepo.RemovePassenger: %w", err)
	}
	return nil
}

func (r *pgRideRepo) Update(ctx context.Context, ride domain.Ride) (domain.Ride, error) {
	const q = `
		UPDATE rides
		SET status           = @status,
		    current_lat      = @current_lat,
		    current_lng      = @current_lng,
		    start_time       = @start_time,
		    end_time         = @end_time,
		    distance_covered = @distance_covered,
		    co2_saved        = @co2_saved,
		    updated_at       = now()
		WHERE id = @id`

	var lat, lng *float64
	if ride.Position != nil {
		lat, lng = &ride.Position.Lat, &ride.Position.Lng
	}
	args := pgx.NamedArgs{
		"id":               ride.ID,
		"status":           string(ride.Status),
		"current_lat":      lat,
		"current_lng":      lng,
		"start_time":       ride.StartTime,
		"end_time":         ride.EndTime,
		"distance_covered": numeric(ride.DistanceCovered),
		"co2_saved":        numeric(ride.CO2Saved),
	}
	tag, err := r.db.Exec(ctx, q, args)
	if err != nil {
		return domain.Ride{}, fmt.Errorf("repo.RideRepo.Update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.Ride{}, fmt.Errorf("repo.RideRepo.Update: %w", domain.ErrNotFound)
	}
	return r.GetByID(ctx, ride.ID)
}

func (r *pgRideRepo) AddTrackingPoint(ctx context.Context, p domain.TrackingPoint) (domain.TrackingPoint, error) {
	const q = `
		INSERT INTO ride_tracking_points (ride_id, lat, lng, speed_kmh, heading, recorded_at)
		VALUES (@ride_id, @lat, @lng, @speed_kmh, @heading, @recorded_at)
		RETURNING id, ride_id, lat, lng, speed_kmh, heading, recorded_at`

	args := pgx.NamedArgs{
		"ride_id":     p.RideID,
		"lat":         p.Lat,
		"lng":         p.Lng,
		"speed_kmh":   p.SpeedKmh,
		"heading":     p.Heading,
		"recorded_at": p.RecordedAt,
	}
	result, err := scanTrackingPoint(r.db.QueryRow(ctx, q, args))
	if err != nil {
		return domain.TrackingPoint{}, fmt.Errorf("repo.RideRepo.AddTrackingPoint: %w", err)
	}
	return result, nil
}

func (r *pgRideRepo) ListTracking(ctx context.Context, rideID uuid.UUID, limit int) ([]domain.TrackingPoint, error) {
	const q = `
		SELECT id, ride_id, lat, lng, speed_kmh, heading, recorded_at
		FROM ride_tracking_points
		WHERE ride_id = @ride_id
		ORDER BY recorded_at DESC, id
		LIMIT @limit`

	rows, err := r.db.Query(ctx, q, pgx.NamedArgs{"ride_id": rideID, "limit": limit})
	if err != nil {
		return nil, fmt.Errorf("repo.RideRepo.ListTracking: %w", err)
	}
	defer rows.Close()

	var points []domain.TrackingPoint
	for rows.Next() {
		p, err := scanTrackingPoint(rows)
		if err != nil {
			return nil, fmt.Errorf("repo.RideRepo.ListTracking: scan: %w", err)
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repo.RideRepo.ListTracking: rows: %w", err)
	}
	return points, nil
}

func scanRide(s scanner) (domain.Ride, error) {
	var (
		ride               domain.Ride
		id, trip, driver   pgtype.UUID
		passengers         []pgtype.UUID
		status             string
		lat, lng           pgtype.Float8
		distance, co2      pgtype.Numeric
		startTime, endTime pgtype.Timestamptz
	)
	err := s.Scan(&id, &trip, &driver, &passengers, &status, &lat, &lng, &startTime, &endTime,
		&distance, &co2, &ride.CreatedAt, &ride.UpdatedAt)
	if err != nil {
		return domain.Ride{}, mapErr(err)
	}

	ride.ID = uuid.UUID(id.Bytes)
	ride.TripID = uuid.UUID(trip.Bytes)
	ride.DriverID = uuid.UUID(driver.Bytes)
	ride.PassengerIDs = fromUUIDs(passengers)
	ride.Status = domain.RideStatus(status)
	if lat.Valid && lng.Valid {
		ride.Position = &domain.Position{Lat: lat.Float64, Lng: lng.Float64}
	}
	if startTime.Valid {
		t := startTime.Time
		ride.StartTime = &t
	}
	if endTime.Valid {
		t := endTime.Time
		ride.EndTime = &t
	}
	ride.DistanceCovered = fromNumeric(distance)
	ride.CO2Saved = fromNumeric(co2)
	return ride, nil
}

func scanTrackingPoint(s scanner) (domain.TrackingPoint, error) {
	var (
		p          domain.TrackingPoint
		id, ride   pgtype.UUID
		speed, hdg pgtype.Float8
	)
	if err := s.Scan(&id, &ride, &p.Lat, &p.Lng, &speed, &hdg, &p.RecordedAt); err != nil {
		return domain.TrackingPoint{}, mapErr(err)
	}
	p.ID = uuid.UUID(id.Bytes)
	p.RideID = uuid.UUID(ride.Bytes)
	if speed.Valid {
		v := speed.Float64
		p.SpeedKmh = &v
	}
	if hdg.Valid {
		v := hdg.Float64
		p.Heading = &v
	}
	return p, nil
}
