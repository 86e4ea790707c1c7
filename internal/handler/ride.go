package handler

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/pkordes/ecopool/backend/internal/service"
)

// LocationRequest is the body of POST /rides/{id}/location.
type LocationRequest struct {
	Lat      float64  `json:"lat"`
	Lng      float64  `json:"lng"`
	SpeedKmh *float64 `json:"speed_kmh,omitempty"`
	Heading  *float64 `json:"heading,omitempty"`
}

// CompleteRideRequest is the body of POST /rides/{id}/complete.
type CompleteRideRequest struct {
	DistanceKm decimal.Decimal `json:"distance_km"`
}

// OpenRide handles POST /trips/{id}/ride. It is idempotent: opening a trip
// that already has a ride returns that ride.
func (s *Server) OpenRide(w http.ResponseWriter, r *http.Request) error {
	actor, err := actorID(r)
	if err != nil {
		return err
	}
	tripID, err := pathUUID(r, "id")
	if err != nil {
		return err
	}
	ride, err := s.rides.Open(r.Context(), actor, tripID)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, ride)
	return nil
}

// GetRide handles GET /rides/{id}.
func (s *Server) GetRide(w http.ResponseWriter, r *http.Request) error {
	actor, err := actorID(r)
	if err != nil {
		return err
	}
	id, err := pathUUID(r, "id")
	if err != nil {
		return err
	}
	ride, err := s.rides.Get(r.Context(), actor, id)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, ride)
	return nil
}

// GetTracking handles GET /rides/{id}/tracking?limit=.
func (s *Server) GetTracking(w http.ResponseWriter, r *http.Request) error {
	actor, err := actorID(r)
	if err != nil {
		return err
	}
	id, err := pathUUID(r, "id")
	if err != nil {
		return err
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		return err
	}
	n := 0
	if limit != nil {
		n = *limit
	}
	points, err := s.rides.Tracking(r.Context(), actor, id, n)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, nonNil(points))
	return nil
}

// StartRide handles POST /rides/{id}/start.
func (s *Server) StartRide(w http.ResponseWriter, r *http.Request) error {
	actor, err := actorID(r)
	if err != nil {
		return err
	}
	id, err := pathUUID(r, "id")
	if err != nil {
		return err
	}
	ride, err := s.rides.Start(r.Context(), actor, id)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, ride)
	return nil
}

// UpdateLocation handles POST /rides/{id}/location.
func (s *Server) UpdateLocation(w http.ResponseWriter, r *http.Request) error {
	actor, err := actorID(r)
	if err != nil {
		return err
	}
	id, err := pathUUID(r, "id")
	if err != nil {
		return err
	}
	var body LocationRequest
	if err := decodeJSON(r, &body); err != nil {
		return err
	}

	point, err := s.rides.UpdateLocation(r.Context(), actor, id, service.LocationUpdate{
		Lat:      body.Lat,
		Lng:      body.Lng,
		SpeedKmh: body.SpeedKmh,
		Heading:  body.Heading,
	})
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusCreated, point)
	return nil
}

// CompleteRide handles POST /rides/{id}/complete and answers with the
// carbon and reward breakdown.
func (s *Server) CompleteRide(w http.ResponseWriter, r *http.Request) error {
	actor, err := actorID(r)
	if err != nil {
		return err
	}
	id, err := pathUUID(r, "id")
	if err != nil {
		return err
	}
	var body CompleteRideRequest
	if err := decodeJSON(r, &body); err != nil {
		return err
	}

	done, err := s.rides.Complete(r.Context(), actor, id, body.DistanceKm)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, done)
	return nil
}

// CancelRide handles POST /rides/{id}/cancel.
func (s *Server) CancelRide(w http.ResponseWriter, r *http.Request) error {
	actor, err := actorID(r)
	if err != nil {
		return err
	}
	id, err := pathUUID(r, "id")
	if err != nil {
		return err
	}
	ride, err := s.rides.Cancel(r.Context(), actor, id)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, ride)
	return nil
}

// RaiseEmergency handles POST /rides/{id}/emergency. Any participant may
// raise it.
func (s *Server) RaiseEmergency(w http.ResponseWriter, r *http.Request) error {
	actor, err := actorID(r)
	if err != nil {
		return err
	}
	id, err := pathUUID(r, "id")
	if err != nil {
		return err
	}
	ride, err := s.rides.RaiseEmergency(r.Context(), actor, id)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, ride)
	return nil
}
