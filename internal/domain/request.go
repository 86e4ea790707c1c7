package domain

import (
	"time"

	"github.com/google/uuid"
)

// RequestStatus is the state of a passenger's seat request.
type RequestStatus string

const (
	RequestPending   RequestStatus = "pending"
	RequestAccepted  RequestStatus = "accepted"
	RequestRejected  RequestStatus = "rejected"
	RequestCancelled RequestStatus = "cancelled"
)

// RequestTransitions is the request state machine. States without an entry
// are terminal.
var RequestTransitions = map[RequestStatus][]RequestStatus{
	RequestPending:  {RequestAccepted, RequestRejected, RequestCancelled},
	RequestAccepted: {RequestCancelled},
}

// CanTransition reports whether a request may move from s to next.
func (s RequestStatus) CanTransition(next RequestStatus) bool {
	return canTransition(RequestTransitions, s, next)
}

// IsOpen reports whether the request still holds, or may come to hold, seats.
func (s RequestStatus) IsOpen() bool {
	return s == RequestPending || s == RequestAccepted
}

// TripRequest is a passenger's bid for seats on a trip.
type TripRequest struct {
	ID             uuid.UUID     `json:"id"`
	TripID         uuid.UUID     `json:"trip_id"`
	PassengerID    uuid.UUID     `json:"passenger_id"`
	SeatsRequested int           `json:"seats_requested"`
	Message        string        `json:"message,omitempty"`
	Status         RequestStatus `json:"status"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// RequestOutcome is returned by request transitions: the request and the
// trip state after the change.
type RequestOutcome struct {
	Request TripRequest `json:"request"`
	Trip    Trip        `json:"trip"`
	// Ride is set when accepting the request opened or joined a ride.
	Ride *Ride `json:"ride,omitempty"`
}

func canTransition[S comparable](table map[S][]S, from, to S) bool {
	next, ok := table[from]
	if !ok {
		return false
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}
