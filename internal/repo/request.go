package repo

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/pkordes/ecopool/backend/internal/domain"
)

// RequestRepo defines the persistence operations for TripRequests.
type RequestRepo interface {
	// Create inserts a new pending request. A second open request by the same
	// passenger on the same trip violates a unique index and returns
	// domain.ErrConflict.
	Create(ctx context.Context, req domain.TripRequest) (domain.TripRequest, error)

	// GetByID returns domain.ErrNotFound if the request does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (domain.TripRequest, error)

	// GetForUpdate is GetByID with an exclusive row lock.
	GetForUpdate(ctx context.Context, id uuid.UUID) (domain.TripRequest, error)

	// HasOpen reports whether the passenger holds a pending or accepted
	// request on the trip.
	HasOpen(ctx context.Context, tripID, passengerID uuid.UUID) (bool, error)

	// ListByTrip returns all requests of a trip, oldest first.
	ListByTrip(ctx context.Context, tripID uuid.UUID) ([]domain.TripRequest, error)

	// ListByPassenger returns all requests made by a passenger, newest first.
	ListByPassenger(ctx context.Context, passengerID uuid.UUID) ([]domain.TripRequest, error)

	// SetStatus overwrites the status of a request.
	SetStatus(ctx context.Context, id uuid.UUID, status domain.RequestStatus) (domain.TripRequest, error)

	// RejectPending rejects every pending request of a trip and returns how
	// many were changed.
	RejectPending(ctx context.Context, tripID uuid.UUID) (int64, error)
}

type pgRequestRepo struct {
	db db
}

// NewRequestRepo constructs a RequestRepo backed by the provided db connection.
func NewRequestRepo(db db) RequestRepo {
	return &pgRequestRepo{db: db}
}

const requestColumns = `id, trip_id, passenger_id, seats_requested, message, status, created_at, updated_at`

func (r *pgRequestRepo) Create(ctx context.Context, req domain.TripRequest) (domain.TripRequest, error) {
	const q = `
		INSERT INTO trip_requests (trip_id, passenger_id, seats_requested, message, status)
		VALUES (@trip_id, @passenger_id, @seats_requested, @message, @status)
		RETURNING ` + requestColumns

	args := pgx.NamedArgs{
		"trip_id":         req.TripID,
		"passenger_id":    req.PassengerID,
		"seats_requested": req.SeatsRequested,
		"message":         req.Message,
		"status":          string(req.Status),
	}
	result, err := scanRequest(r.db.QueryRow(ctx, q, args))
	if err != nil {
		return domain.TripRequest{}, fmt.Errorf("repo.RequestRepo.Create: %w", err)
	}
	return result, nil
}

func (r *pgRequestRepo) GetByID(ctx context.Context, id uuid.UUID) (domain.TripRequest, error) {
	const q = `SELECT ` + requestColumns + ` FROM trip_requests WHERE id = @id`

	result, err := scanRequest(r.db.QueryRow(ctx, q, pgx.NamedArgs{"id": id}))
	if err != nil {
		return domain.TripRequest{}, fmt.Errorf("repo.RequestRepo.GetByID: %w", err)
	}
	return result, nil
}

func (r *pgRequestRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (domain.TripRequest, error) {
	const q = `SELECT ` + requestColumns + ` FROM trip_requests WHERE id = @id FOR UPDATE`

	result, err := scanRequest(r.db.QueryRow(ctx, q, pgx.NamedArgs{"id": id}))
	if err != nil {
		return domain.TripRequest{}, fmt.Errorf("repo.RequestRepo.GetForUpdate: %w", err)
	}
	return result, nil
}

func (r *pgRequestRepo) HasOpen(ctx context.Context, tripID, passengerID uuid.UUID) (bool, error) {
	const q = `
		SELECT EXISTS (
			SELECT 1 FROM trip_requests
			WHERE trip_id = @trip_id
			  AND passenger_id = @passenger_id
			  AND status IN ('pending', 'accepted')
		)`

	var exists bool
	err := r.db.QueryRow(ctx, q, pgx.NamedArgs{"trip_id": tripID, "passenger_id": passengerID}).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("repo.RequestRepo.HasOpen: %w", err)
	}
	return exists, nil
}

func (r *pgRequestRepo) ListByTrip(ctx context.Context, tripID uuid.UUID) ([]domain.TripRequest, error) {
	const q = `
		SELECT ` + requestColumns + `
		FROM trip_requests
		WHERE trip_id = @trip_id
		ORDER BY created_at, id`

	return r.list(ctx, "ListByTrip", q, pgx.NamedArgs{"trip_id": tripID})
}

func (r *pgRequestRepo) ListByPassenger(ctx context.Context, passengerID uuid.UUID) ([]domain.TripRequest, error) {
	const q = `
		SELECT ` + requestColumns + `
		FROM trip_requests
		WHERE passenger_id = @passenger_id
		ORDER BY created_at DESC, id`

	return r.list(ctx, "ListByPassenger", q, pgx.NamedArgs{"passenger_id": passengerID})
}

func (r *pgRequestRepo) list(ctx context.Context, op, q string, args pgx.NamedArgs) ([]domain.TripRequest, error) {
	rows, err := r.db.Query(ctx, q, args)
	if err != nil {
		return nil, fmt.Errorf("repo.RequestRepo.%s: %w", op, err)
	}
	defer rows.Close()

	var out []domain.TripRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("repo.RequestRepo.%s: scan: %w", op, err)
		}
		out = append(out, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repo.RequestRepo.%s: rows: %w", op, err)
	}
	return out, nil
}

func (r *pgRequestRepo) SetStatus(ctx context.Context, id uuid.UUID, status domain.RequestStatus) (domain.TripRequest, error) {
	const q = `
		UPDATE trip_requests
		SET status = @status, updated_at = now()
		WHERE id = @id
		RETURNING ` + requestColumns

	result, err := scanRequest(r.db.QueryRow(ctx, q, pgx.NamedArgs{"id": id, "status": string(status)}))
	if err != nil {
		return domain.TripRequest{}, fmt.Errorf("repo.RequestRepo.SetStatus: %w", err)
	}
	return result, nil
}

func (r *pgRequestRepo) RejectPending(ctx context.Context, tripID uuid.UUID) (int64, error) {
	const q = `
		UPDATE trip_requests
		SET status = 'rejected', updated_at = now()
		WHERE trip_id = @trip_id AND status = 'pending'`

	tag, err := r.db.Exec(ctx, q, pgx.NamedArgs{"trip_id": tripID})
	if err != nil {
		return 0, fmt.Errorf("repo.RequestRepo.RejectPending: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanRequest(s scanner) (domain.TripRequest, error) {
	var (
		req                 domain.TripRequest
		id, trip, passenger pgtype.UUID
		status              string
	)
	err := s.Scan(&id, &trip, &passenger, &req.SeatsRequested, &req.Message, &status, &req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		return domain.TripRequest{}, mapErr(err)
	}
	req.ID = uuid.UUID(id.Bytes)
	req.TripID = uuid.UUID(trip.Bytes)
	req.PassengerID = uuid.UUID(passenger.Bytes)
	req.Status = domain.RequestStatus(status)
	return req, nil
}
