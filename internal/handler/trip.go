package handler

import (
	"net/http"
	"time"

	openapi_types "github.com/oapi-codegen/runtime/types"
	"github.com/shopspring/decimal"

	"github.com/pkordes/ecopool/backend/internal/domain"
	"github.com/pkordes/ecopool/backend/internal/geo"
	"github.com/pkordes/ecopool/backend/internal/service"
)

// CreateTripRequest is the body of POST /trips.
type CreateTripRequest struct {
	Origin           domain.Place    `json:"origin"`
	Destination      domain.Place    `json:"destination"`
	DepartureTime    time.Time       `json:"departure_time"`
	Capacity         int             `json:"capacity"`
	PricePerSeat     decimal.Decimal `json:"price_per_seat"`
	GenderPreference string          `json:"gender_preference,omitempty"`
	FuelType         domain.FuelType `json:"fuel_type,omitempty"`
	Notes            string          `json:"notes,omitempty"`
}

// Coordinate is a bare lat/lng pair in a search body.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// SearchTripsRequest is the body of POST /trips/search.
type SearchTripsRequest struct {
	Origin         Coordinate          `json:"origin"`
	Destination    Coordinate          `json:"destination"`
	SeatsNeeded    int                 `json:"seats_needed,omitempty"`
	MaxDeviationKm float64             `json:"max_deviation_km,omitempty"`
	DepartureDate  *openapi_types.Date `json:"departure_date,omitempty"`
}

// CreateTrip handles POST /trips. The caller becomes the driver.
func (s *Server) CreateTrip(w http.ResponseWriter, r *http.Request) error {
	actor, err := actorID(r)
	if err != nil {
		return err
	}
	var body CreateTripRequest
	if err := decodeJSON(r, &body); err != nil {
		return err
	}

	created, err := s.trips.Create(r.Context(), actor, requestToTrip(body))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusCreated, created)
	return nil
}

// GetTrip handles GET /trips/{id}.
func (s *Server) GetTrip(w http.ResponseWriter, r *http.Request) error {
	id, err := pathUUID(r, "id")
	if err != nil {
		return err
	}
	trip, err := s.trips.Get(r.Context(), id)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, trip)
	return nil
}

// CancelTrip handles POST /trips/{id}/cancel.
func (s *Server) CancelTrip(w http.ResponseWriter, r *http.Request) error {
	actor, err := actorID(r)
	if err != nil {
		return err
	}
	id, err := pathUUID(r, "id")
	if err != nil {
		return err
	}
	trip, err := s.trips.Cancel(r.Context(), actor, id)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, trip)
	return nil
}

// SearchTrips handles POST /trips/search. It always answers with a JSON
// array, empty when nothing matches.
func (s *Server) SearchTrips(w http.ResponseWriter, r *http.Request) error {
	actor, err := actorID(r)
	if err != nil {
		return err
	}
	var body SearchTripsRequest
	if err := decodeJSON(r, &body); err != nil {
		return err
	}

	matches, err := s.matches.Search(r.Context(), actor, requestToCriteria(body))
	if err != nil {
		return err
	}
	if matches == nil {
		matches = []service.TripMatch{}
	}
	writeJSON(w, http.StatusOK, matches)
	return nil
}

// --- mapping helpers --------------------------------------------------------

// requestToTrip converts a CreateTripRequest body into a domain.Trip.
// Field rules are enforced by the service.
func requestToTrip(body CreateTripRequest) domain.Trip {
	return domain.Trip{
		Origin:           body.Origin,
		Destination:      body.Destination,
		DepartureTime:    body.DepartureTime,
		Capacity:         body.Capacity,
		PricePerSeat:     body.PricePerSeat,
		GenderPreference: body.GenderPreference,
		FuelType:         body.FuelType,
		Notes:            body.Notes,
	}
}

// requestToCriteria converts a search body into service criteria.
// The departure date is interpreted as a UTC calendar day.
func requestToCriteria(body SearchTripsRequest) service.SearchCriteria {
	c := service.SearchCriteria{
		Origin:         geo.Point{Lat: body.Origin.Lat, Lng: body.Origin.Lng},
		Destination:    geo.Point{Lat: body.Destination.Lat, Lng: body.Destination.Lng},
		SeatsNeeded:    body.SeatsNeeded,
		MaxDeviationKm: body.MaxDeviationKm,
	}
	if body.DepartureDate != nil {
		d := body.DepartureDate.Time.UTC()
		c.DepartureDate = &d
	}
	return c
}
