package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/pkordes/ecopool/backend/internal/domain"
)

// TripRepo defines the persistence operations for Trips.
// The service layer depends on this interface, not the concrete Postgres implementation,
// which allows the service to be unit-tested with a mock or the in-memory store.
type TripRepo interface {
	// Create inserts a new trip and returns the persisted record (with DB-generated
	// id, created_at, and updated_at populated).
	Create(ctx context.Context, trip domain.Trip) (domain.Trip, error)

	// GetByID retrieves a single trip by its UUID primary key.
	// Returns domain.ErrNotFound if no trip with that ID exists.
	GetByID(ctx context.Context, id uuid.UUID) (domain.Trip, error)

	// GetForUpdate is GetByID with an exclusive row lock held until the
	// surrounding transaction ends.
	GetForUpdate(ctx context.Context, id uuid.UUID) (domain.Trip, error)

	// ListSchedulable returns scheduled trips of an organization departing
	// after the given instant, ordered by departure.
	ListSchedulable(ctx context.Context, organizationID uuid.UUID, after time.Time) ([]domain.Trip, error)

	// ReserveSeats atomically subtracts n seats when at least n are available.
	// Returns domain.ErrInsufficientSeats and changes nothing otherwise.
	ReserveSeats(ctx context.Context, id uuid.UUID, n int) (domain.Trip, error)

	// ReleaseSeats gives n seats back. Releasing more seats than were
	// reserved is an error and changes nothing.
	ReleaseSeats(ctx context.Context, id uuid.UUID, n int) (domain.Trip, error)

	// SetStatus overwrites the trip status.
	SetStatus(ctx context.Context, id uuid.UUID, status domain.TripStatus) (domain.Trip, error)
}

// pgTripRepo is the Postgres implementation of TripRepo.
type pgTripRepo struct {
	db db
}

// NewTripRepo constructs a TripRepo backed by the provided db connection.
// In production pass a pgx.Tx from PgStore; in tests pass a pgx.Tx for rollback isolation.
func NewTripRepo(db db) TripRepo {
	return &pgTripRepo{db: db}
}

const tripColumns = `id, driver_id, organization_id,
	origin_name, origin_lat, origin_lng,
	destination_name, destination_lat, destination_lng,
	departure_time, capacity, available_seats, price_per_seat,
	gender_preference, fuel_type, status, notes, created_at, updated_at`

// Create inserts a new trip row and returns the full persisted record.
func (r *pgTripRepo) Create(ctx context.Context, trip domain.Trip) (domain.Trip, error) {
	const q = `
		INSERT INTO trips (driver_id, organization_id,
			origin_name, origin_lat, origin_lng,
			destination_name, destination_lat, destination_lng,
			departure_time, capacity, available_seats, price_per_seat,
			gender_preference, fuel_type, status, notes)
		VALUES (@driver_id, @organization_id,
			@origin_name, @origin_lat, @origin_lng,
			@destination_name, @destination_lat, @destination_lng,
			@departure_time, @capacity, @available_seats, @price_per_seat,
			@gender_preference, @fuel_type, @status, @notes)
		RETURNING ` + tripColumns

	args := pgx.NamedArgs{
		"driver_id":         trip.DriverID,
		"organization_id":   trip.OrganizationID,
		"origin_name":       trip.Origin.Name,
		"origin_lat":        trip.Origin.Lat,
		"origin_lng":        trip.Origin.Lng,
		"destination_name":  trip.Destination.Name,
		"destination_lat":   trip.Destination.Lat,
		"destination_lng":   trip.Destination.Lng,
		"departure_time":    trip.DepartureTime,
		"capacity":          trip.Capacity,
		"available_seats":   trip.AvailableSeats,
		"price_per_seat":    numeric(trip.PricePerSeat),
		"gender_preference": trip.GenderPreference,
		"fuel_type":         string(trip.FuelType),
		"status":            string(trip.Status),
		"notes":             trip.Notes,
	}

	result, err := scanTrip(r.db.QueryRow(ctx, q, args))
	if err != nil {
		return domain.Trip{}, fmt.Errorf("repo.TripRepo.Create: %w", err)
	}
	return result, nil
}

// GetByID retrieves a trip by primary key.
func (r *pgTripRepo) GetByID(ctx context.Context, id uuid.UUID) (domain.Trip, error) {
	q := `SELECT ` + tripColumns + ` FROM trips WHERE id = @id`

	result, err := scanTrip(r.db.QueryRow(ctx, q, pgx.NamedArgs{"id": id}))
	if err != nil {
		return domain.Trip{}, fmt.Errorf("repo.TripRepo.GetByID: %w", err)
	}
	return result, nil
}

// GetForUpdate retrieves a trip and locks its row.
func (r *pgTripRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (domain.Trip, error) {
	q := `SELECT ` + tripColumns + ` FROM trips WHERE id = @id FOR UPDATE`

	result, err := scanTrip(r.db.QueryRow(ctx, q, pgx.NamedArgs{"id": id}))
	if err != nil {
		return domain.Trip{}, fmt.Errorf("repo.TripRepo.GetForUpdate: %w", err)
	}
	return result, nil
}

// ListSchedulable returns the candidate pool for matching.
func (r *pgTripRepo) ListSchedulable(ctx context.Context, organizationID uuid.UUID, after time.Time) ([]domain.Trip, error) {
	q := `
		SELECT ` + tripColumns + `
		FROM trips
		WHERE organization_id = @organization_id
		  AND status = 'scheduled'
		  AND departure_time > @after
		ORDER BY departure_time, id`

	rows, err := r.db.Query(ctx, q, pgx.NamedArgs{"organization_id": organizationID, "after": after})
	if err != nil {
		return nil, fmt.Errorf("repo.TripRepo.ListSchedulable: %w", err)
	}
	defer rows.Close()

	var trips []domain.Trip
	for rows.Next() {
		t, err := scanTrip(rows)
		if err != nil {
			return nil, fmt.Errorf("repo.TripRepo.ListSchedulable: scan: %w", err)
		}
		trips = append(trips, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repo.TripRepo.ListSchedulable: rows: %w", err)
	}
	return trips, nil
}

// ReserveSeats is a single conditional UPDATE: the seat check and the
// decrement cannot be interleaved by a concurrent accept.
func (r *pgTripRepo) ReserveSeats(ctx context.Context, id uuid.UUID, n int) (domain.Trip, error) {
	q := `
		UPDATE trips
		SET available_seats = available_seats - @n,
		    updated_at      = now()
		WHERE id = @id AND available_seats >= @n
		RETURNING ` + tripColumns

	result, err := scanTrip(r.db.QueryRow(ctx, q, pgx.NamedArgs{"id": id, "n": n}))
	if errors.Is(err, domain.ErrNotFound) {
		// Either the trip is gone or it lacks seats; tell them apart.
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return domain.Trip{}, fmt.Errorf("repo.TripRepo.ReserveSeats: %w", getErr)
		}
		return domain.Trip{}, fmt.Errorf("repo.TripRepo.ReserveSeats: %w", domain.ErrInsufficientSeats)
	}
	if err != nil {
		return domain.Trip{}, fmt.Errorf("repo.TripRepo.ReserveSeats: %w", err)
	}
	return result, nil
}

// ReleaseSeats restores seats. Going past capacity violates
// trips_seats_range and fails the statement.
func (r *pgTripRepo) ReleaseSeats(ctx context.Context, id uuid.UUID, n int) (domain.Trip, error) {
	q := `
		UPDATE trips
		SET available_seats = available_seats + @n,
		    updated_at      = now()
		WHERE id = @id
		RETURNING ` + tripColumns

	result, err := scanTrip(r.db.QueryRow(ctx, q, pgx.NamedArgs{"id": id, "n": n}))
	if err != nil {
		return domain.Trip{}, fmt.Errorf("repo.TripRepo.ReleaseSeats: %w", err)
	}
	return result, nil
}

// SetStatus updates the status column.
func (r *pgTripRepo) SetStatus(ctx context.Context, id uuid.UUID, status domain.TripStatus) (domain.Trip, error) {
	q := `
		UPDATE trips
		SET status = @status, updated_at = now()
		WHERE id = @id
		RETURNING ` + tripColumns

	result, err := scanTrip(r.db.QueryRow(ctx, q, pgx.NamedArgs{"id": id, "status": string(status)}))
	if err != nil {
		return domain.Trip{}, fmt.Errorf("repo.TripRepo.SetStatus: %w", err)
	}
	return result, nil
}

// scanTrip maps a single database row into a domain.Trip.
func scanTrip(s scanner) (domain.Trip, error) {
	var (
		t               domain.Trip
		id, driver, org pgtype.UUID
		price           pgtype.Numeric
		fuel, status    string
	)

	err := s.Scan(&id, &driver, &org,
		&t.Origin.Name, &t.Origin.Lat, &t.Origin.Lng,
		&t.Destination.Name, &t.Destination.Lat, &t.Destination.Lng,
		&t.DepartureTime, &t.Capacity, &t.AvailableSeats, &price,
		&t.GenderPreference, &fuel, &status, &t.Notes, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return domain.Trip{}, mapErr(err)
	}

	t.ID = uuid.UUID(id.Bytes)
	t.DriverID = uuid.UUID(driver.Bytes)
	t.OrganizationID = uuid.UUID(org.Bytes)
	t.PricePerSeat = fromNumeric(price)
	t.FuelType = domain.FuelType(fuel)
	t.Status = domain.TripStatus(status)
	return t, nil
}
