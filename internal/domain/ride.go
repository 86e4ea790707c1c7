package domain

import (
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RideStatus is the state of a live ride.
type RideStatus string

const (
	RideStarted    RideStatus = "started"
	RideInProgress RideStatus = "in_progress"
	RideCompleted  RideStatus = "completed"
	RideCancelled  RideStatus = "cancelled"
	RideEmergency  RideStatus = "emergency"
)

// RideTransitions is the ride state machine. Completed, cancelled and
// emergency are terminal.
var RideTransitions = map[RideStatus][]RideStatus{
	RideStarted:    {RideInProgress, RideCancelled, RideEmergency},
	RideInProgress: {RideCompleted, RideCancelled, RideEmergency},
}

// CanTransition reports whether a ride may move from s to next.
func (s RideStatus) CanTransition(next RideStatus) bool {
	return canTransition(RideTransitions, s, next)
}

// IsTerminal reports whether no further transition is possible from s.
func (s RideStatus) IsTerminal() bool {
	_, ok := RideTransitions[s]
	return !ok
}

// Tracking reports whether location updates are accepted in state s.
func (s RideStatus) Tracking() bool {
	return s == RideStarted || s == RideInProgress
}

// Position is the last reported coordinate of a ride.
type Position struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Ride is the live journey for a trip. There is at most one ride per trip.
type Ride struct {
	ID              uuid.UUID       `json:"id"`
	TripID          uuid.UUID       `json:"trip_id"`
	DriverID        uuid.UUID       `json:"driver_id"`
	PassengerIDs    []uuid.UUID     `json:"passenger_ids"`
	Status          RideStatus      `json:"status"`
	Position        *Position       `json:"position,omitempty"`
	StartTime       *time.Time      `json:"start_time,omitempty"`
	EndTime         *time.Time      `json:"end_time,omitempty"`
	DistanceCovered decimal.Decimal `json:"distance_covered"`
	CO2Saved        decimal.Decimal `json:"co2_saved"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// IsPassenger reports whether userID rides as a passenger.
func (r Ride) IsPassenger(userID uuid.UUID) bool {
	return slices.Contains(r.PassengerIDs, userID)
}

// IsParticipant reports whether userID is the driver or a passenger.
func (r Ride) IsParticipant(userID uuid.UUID) bool {
	return r.DriverID == userID || r.IsPassenger(userID)
}

// Participants returns the driver followed by every passenger.
func (r Ride) Participants() []uuid.UUID {
	out := make([]uuid.UUID, 0, len(r.PassengerIDs)+1)
	out = append(out, r.DriverID)
	return append(out, r.PassengerIDs...)
}

// TrackingPoint is one recorded position of a ride.
type TrackingPoint struct {
	ID         uuid.UUID `json:"id"`
	RideID     uuid.UUID `json:"ride_id"`
	Lat        float64   `json:"lat"`
	Lng        float64   `json:"lng"`
	SpeedKmh   *float64  `json:"speed_kmh,omitempty"`
	Heading    *float64  `json:"heading,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}

// RideCompletion is the result of completing a ride. Per-person amounts are
// what every participant was credited; the undistributed fields hold the
// remainder of the even split.
type RideCompletion struct {
	Ride                  Ride            `json:"ride"`
	CO2Saved              decimal.Decimal `json:"co2_saved"`
	TreesEquivalent       decimal.Decimal `json:"trees_equivalent"`
	TotalPoints           int64           `json:"total_points"`
	PointsPerPerson       int64           `json:"reward_points"`
	UndistributedPoints   int64           `json:"undistributed_points"`
	TotalDiamonds         decimal.Decimal `json:"total_diamonds"`
	DiamondsPerPerson     decimal.Decimal `json:"diamonds_per_person"`
	UndistributedDiamonds decimal.Decimal `json:"undistributed_diamonds"`
}
