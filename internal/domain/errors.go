package domain

import "errors"

// ErrNotFound is returned by repo and service functions when the requested
// resource does not exist in the database.
// Handlers should map this to HTTP 404.
var ErrNotFound = errors.New("not found")

// ErrValidation is returned by service functions when input fails business
// rule validation (e.g. missing distance on ride completion, zero seats).
// Handlers should map this to HTTP 422 Unprocessable Entity.
var ErrValidation = errors.New("validation error")

// ErrForbidden is returned when the acting user is not allowed to perform the
// operation, such as a passenger trying to start a ride.
// Handlers should map this to HTTP 403.
var ErrForbidden = errors.New("forbidden")

// ErrInvalidTransition is returned when a state machine precondition does not
// hold: accepting a request that is no longer pending, completing a ride twice.
var ErrInvalidTransition = errors.New("invalid transition")

// ErrInsufficientSeats is returned when a trip has fewer available seats than
// a request needs. Nothing is persisted when it is returned.
var ErrInsufficientSeats = errors.New("insufficient seats")

// ErrInsufficientBalance is returned when a wallet cannot cover a debit.
var ErrInsufficientBalance = errors.New("insufficient balance")

// ErrOutOfStock is returned when a redemption option has no stock left.
var ErrOutOfStock = errors.New("out of stock")

// ErrConflict is returned when a create would duplicate an existing live
// record, e.g. a second open request by the same passenger on one trip.
var ErrConflict = errors.New("conflict")

// ErrLedgerDivergence signals that a cached wallet balance no longer equals
// the sum of its ledger entries. It always indicates a bug.
var ErrLedgerDivergence = errors.New("ledger divergence")

// ErrTransient is returned when a unit of work was aborted by the database
// (deadlock, serialization failure, lock timeout) and nothing was written.
// Running the same operation again may succeed.
var ErrTransient = errors.New("transient failure")
