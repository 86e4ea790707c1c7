package handler

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/pkordes/ecopool/backend/internal/domain"
)

// CreateRequestBody is the body of POST /trips/{id}/requests.
type CreateRequestBody struct {
	Seats   int    `json:"seats"`
	Message string `json:"message,omitempty"`
}

// CreateRequest handles POST /trips/{id}/requests.
func (s *Server) CreateRequest(w http.ResponseWriter, r *http.Request) error {
	actor, err := actorID(r)
	if err != nil {
		return err
	}
	tripID, err := pathUUID(r, "id")
	if err != nil {
		return err
	}
	var body CreateRequestBody
	if err := decodeJSON(r, &body); err != nil {
		return err
	}

	req, err := s.requests.Create(r.Context(), actor, tripID, body.Seats, body.Message)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusCreated, req)
	return nil
}

// ListTripRequests handles GET /trips/{id}/requests. Only the driver may
// list them.
func (s *Server) ListTripRequests(w http.ResponseWriter, r *http.Request) error {
	actor, err := actorID(r)
	if err != nil {
		return err
	}
	tripID, err := pathUUID(r, "id")
	if err != nil {
		return err
	}
	reqs, err := s.requests.ListForTrip(r.Context(), actor, tripID)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, nonNil(reqs))
	return nil
}

// ListMyRequests handles GET /requests/mine.
func (s *Server) ListMyRequests(w http.ResponseWriter, r *http.Request) error {
	actor, err := actorID(r)
	if err != nil {
		return err
	}
	reqs, err := s.requests.ListMine(r.Context(), actor)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, nonNil(reqs))
	return nil
}

// AcceptRequest handles POST /requests/{id}/accept.
func (s *Server) AcceptRequest(w http.ResponseWriter, r *http.Request) error {
	return s.transitionRequest(w, r, s.requests.Accept)
}

// RejectRequest handles POST /requests/{id}/reject.
func (s *Server) RejectRequest(w http.ResponseWriter, r *http.Request) error {
	return s.transitionRequest(w, r, s.requests.Reject)
}

// CancelRequest handles POST /requests/{id}/cancel.
func (s *Server) CancelRequest(w http.ResponseWriter, r *http.Request) error {
	return s.transitionRequest(w, r, s.requests.Cancel)
}

// transitionRequest runs one of the request state changes and writes the
// resulting request, trip and ride.
func (s *Server) transitionRequest(w http.ResponseWriter, r *http.Request,
	op func(ctx context.Context, actor, requestID uuid.UUID) (domain.RequestOutcome, error),
) error {
	actor, err := actorID(r)
	if err != nil {
		return err
	}
	id, err := pathUUID(r, "id")
	if err != nil {
		return err
	}
	out, err := op(r.Context(), actor, id)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, out)
	return nil
}

// nonNil turns a nil slice into an empty one so lists encode as [].
func nonNil[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
