// Package handler implements the HTTP handlers for the EcoPool API.
// All handlers are methods on Server. Methods are split into domain-specific
// files (trip.go, ride.go, wallet.go, etc.) but share the same Server struct
// so they can access its dependencies.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"github.com/pkordes/ecopool/backend/internal/domain"
	"github.com/pkordes/ecopool/backend/internal/middleware"
	"github.com/pkordes/ecopool/backend/internal/service"
)

// TripServicer defines the trip operations the handlers depend on.
// Defining the interface here (in the consumer package) lets handler tests
// inject a mock without touching the database or service layer.
type TripServicer interface {
	Create(ctx context.Context, driverID uuid.UUID, trip domain.Trip) (domain.Trip, error)
	Get(ctx context.Context, id uuid.UUID) (domain.Trip, error)
	Cancel(ctx context.Context, actor, tripID uuid.UUID) (domain.Trip, error)
}

// MatchServicer ranks trips for a requester.
type MatchServicer interface {
	Search(ctx context.Context, requesterID uuid.UUID, c service.SearchCriteria) ([]service.TripMatch, error)
}

// RequestServicer defines the seat request operations.
type RequestServicer interface {
	Create(ctx context.Context, actor, tripID uuid.UUID, seats int, message string) (domain.TripRequest, error)
	Accept(ctx context.Context, actor, requestID uuid.UUID) (domain.RequestOutcome, error)
	Reject(ctx context.Context, actor, requestID uuid.UUID) (domain.RequestOutcome, error)
	Cancel(ctx context.Context, actor, requestID uuid.UUID) (domain.RequestOutcome, error)
	ListForTrip(ctx context.Context, actor, tripID uuid.UUID) ([]domain.TripRequest, error)
	ListMine(ctx context.Context, actor uuid.UUID) ([]domain.TripRequest, error)
}

// RideServicer defines the ride lifecycle operations.
type RideServicer interface {
	Open(ctx context.Context, actor, tripID uuid.UUID) (domain.Ride, error)
	Get(ctx context.Context, actor, rideID uuid.UUID) (domain.Ride, error)
	Start(ctx context.Context, actor, rideID uuid.UUID) (domain.Ride, error)
	UpdateLocation(ctx context.Context, actor, rideID uuid.UUID, loc service.LocationUpdate) (domain.TrackingPoint, error)
	Complete(ctx context.Context, actor, rideID uuid.UUID, distanceKm decimal.Decimal) (domain.RideCompletion, error)
	Cancel(ctx context.Context, actor, rideID uuid.UUID) (domain.Ride, error)
	RaiseEmergency(ctx context.Context, actor, rideID uuid.UUID) (domain.Ride, error)
	Tracking(ctx context.Context, actor, rideID uuid.UUID, limit int) ([]domain.TrackingPoint, error)
}

// RewardServicer defines the wallet, redemption and donation operations.
type RewardServicer interface {
	Wallet(ctx context.Context, userID uuid.UUID, currency domain.Currency) (domain.WalletSummary, error)
	Transactions(ctx context.Context, userID uuid.UUID, currency domain.Currency, p domain.PaginationParams) ([]domain.LedgerEntry, int64, error)
	Statement(ctx context.Context, userID uuid.UUID, currency domain.Currency) ([]domain.StatementRow, error)
	ListOptions(ctx context.Context) ([]domain.RedemptionOption, error)
	ListRedemptions(ctx context.Context, userID uuid.UUID) ([]domain.Redemption, error)
	Redeem(ctx context.Context, userID, optionID uuid.UUID) (domain.Redemption, error)
	Donate(ctx context.Context, userID uuid.UUID, in service.DonationInput) (domain.Donation, error)
	SetRate(ctx context.Context, rate domain.ConversionRate) (domain.ConversionRate, error)
}

// Services bundles the servicers a Server needs. Nil fields are allowed in
// tests that only exercise some routes.
type Services struct {
	Trips    TripServicer
	Matches  MatchServicer
	Requests RequestServicer
	Rides    RideServicer
	Rewards  RewardServicer
}

// Server holds the handler dependencies.
// Methods are in domain-specific files but all operate on this struct.
type Server struct {
	trips    TripServicer
	matches  MatchServicer
	requests RequestServicer
	rides    RideServicer
	rewards  RewardServicer
	logger   *slog.Logger
}

// NewServer constructs the Server with all its dependencies.
func NewServer(svc Services, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		trips:    svc.Trips,
		matches:  svc.Matches,
		requests: svc.Requests,
		rides:    svc.Rides,
		rewards:  svc.Rewards,
		logger:   logger,
	}
}

// NewHealthHandler returns a Server for health-check-only use.
func NewHealthHandler() *Server {
	return NewServer(Services{}, nil)
}

// NewRouter mounts every API route on a chi router. Health, metrics and the
// OpenAPI document are public; everything else needs a bearer token, and
// /admin additionally needs the admin role.
// Cross-cutting middleware (request id, logging, CORS, body limit) is added
// by the caller in front of the returned handler.
func NewRouter(s *Server, auth *middleware.Authenticator) chi.Router {
	r := chi.NewRouter()

	r.Get("/healthz", s.GetHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Get("/openapi.yaml", s.GetOpenAPI)

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware)

		r.Post("/trips", s.handle(s.CreateTrip))
		r.Post("/trips/search", s.handle(s.SearchTrips))
		r.Get("/trips/{id}", s.handle(s.GetTrip))
		r.Post("/trips/{id}/cancel", s.handle(s.CancelTrip))
		r.Get("/trips/{id}/requests", s.handle(s.ListTripRequests))
		r.Post("/trips/{id}/requests", s.handle(s.CreateRequest))
		r.Post("/trips/{id}/ride", s.handle(s.OpenRide))

		r.Get("/requests/mine", s.handle(s.ListMyRequests))
		r.Post("/requests/{id}/accept", s.handle(s.AcceptRequest))
		r.Post("/requests/{id}/reject", s.handle(s.RejectRequest))
		r.Post("/requests/{id}/cancel", s.handle(s.CancelRequest))

		r.Get("/rides/{id}", s.handle(s.GetRide))
		r.Get("/rides/{id}/tracking", s.handle(s.GetTracking))
		r.Post("/rides/{id}/start", s.handle(s.StartRide))
		r.Post("/rides/{id}/location", s.handle(s.UpdateLocation))
		r.Post("/rides/{id}/complete", s.handle(s.CompleteRide))
		r.Post("/rides/{id}/cancel", s.handle(s.CancelRide))
		r.Post("/rides/{id}/emergency", s.handle(s.RaiseEmergency))

		r.Get("/wallets/{currency}", s.handle(s.GetWallet))
		r.Get("/wallets/{currency}/transactions", s.handle(s.ListTransactions))
		r.Get("/wallets/{currency}/statement", s.handle(s.GetStatement))

		r.Get("/redemptions/options", s.handle(s.ListRedemptionOptions))
		r.Get("/redemptions", s.handle(s.ListRedemptions))
		r.Post("/redemptions", s.handle(s.Redeem))
		r.Post("/donations", s.handle(s.Donate))

		r.With(middleware.RequireAdmin).Put("/admin/rates/{name}", s.handle(s.SetRate))
	})

	return r
}

// handlerFunc is an API handler that reports failures by returning them.
type handlerFunc func(w http.ResponseWriter, r *http.Request) error

// handle adapts fn to http.HandlerFunc, writing returned errors as the
// error envelope.
func (s *Server) handle(fn handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := fn(w, r); err != nil {
			s.writeError(w, r, err)
		}
	}
}
