package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/pkordes/ecopool/backend/internal/domain"
	"github.com/pkordes/ecopool/backend/internal/handler"
	"github.com/pkordes/ecopool/backend/internal/middleware"
	"github.com/pkordes/ecopool/backend/internal/service"
)

// ---- mocks -----------------------------------------------------------------
// Each mock is a test double for one handler servicer.
// Set only the method fields your test needs.

type mockTripServicer struct {
	create func(ctx context.Context, driverID uuid.UUID, trip domain.Trip) (domain.Trip, error)
	get    func(ctx context.Context, id uuid.UUID) (domain.Trip, error)
	cancel func(ctx context.Context, actor, tripID uuid.UUID) (domain.Trip, error)
}

func (m *mockTripServicer) Create(ctx context.Context, driverID uuid.UUID, t domain.Trip) (domain.Trip, error) {
	return m.create(ctx, driverID, t)
}
func (m *mockTripServicer) Get(ctx context.Context, id uuid.UUID) (domain.Trip, error) {
	return m.get(ctx, id)
}
func (m *mockTripServicer) Cancel(ctx context.Context, actor, tripID uuid.UUID) (domain.Trip, error) {
	return m.cancel(ctx, actor, tripID)
}

type mockMatchServicer struct {
	search func(ctx context.Context, requesterID uuid.UUID, c service.SearchCriteria) ([]service.TripMatch, error)
}

func (m *mockMatchServicer) Search(ctx context.Context, requesterID uuid.UUID, c service.SearchCriteria) ([]service.TripMatch, error) {
	return m.search(ctx, requesterID, c)
}

type requestOp func(ctx context.Context, actor, requestID uuid.UUID) (domain.RequestOutcome, error)

type mockRequestServicer struct {
	create      func(ctx context.Context, actor, tripID uuid.UUID, seats int, message string) (domain.TripRequest, error)
	accept      requestOp
	reject      requestOp
	cancel      requestOp
	listForTrip func(ctx context.Context, actor, tripID uuid.UUID) ([]domain.TripRequest, error)
	listMine    func(ctx context.Context, actor uuid.UUID) ([]domain.TripRequest, error)
}

func (m *mockRequestServicer) Create(ctx context.Context, actor, tripID uuid.UUID, seats int, message string) (domain.TripRequest, error) {
	return m.create(ctx, actor, tripID, seats, message)
}
func (m *mockRequestServicer) Accept(ctx context.Context, actor, id uuid.UUID) (domain.RequestOutcome, error) {
	return m.accept(ctx, actor, id)
}
func (m *mockRequestServicer) Reject(ctx context.Context, actor, id uuid.UUID) (domain.RequestOutcome, error) {
	return m.reject(ctx, actor, id)
}
func (m *mockRequestServicer) Cancel(ctx context.Context, actor, id uuid.UUID) (domain.RequestOutcome, error) {
	return m.cancel(ctx, actor, id)
}
func (m *mockRequestServicer) ListForTrip(ctx context.Context, actor, tripID uuid.UUID) ([]domain.TripRequest, error) {
	return m.listForTrip(ctx, actor, tripID)
}
func (m *mockRequestServicer) ListMine(ctx context.Context, actor uuid.UUID) ([]domain.TripRequest, error) {
	return m.listMine(ctx, actor)
}

type rideOp func(ctx context.Context, actor, id uuid.UUID) (domain.Ride, error)

type mockRideServicer struct {
	open           rideOp
	get            rideOp
	start          rideOp
	cancel         rideOp
	raiseEmergency rideOp
	updateLocation func(ctx context.Context, actor, rideID uuid.UUID, loc service.LocationUpdate) (domain.TrackingPoint, error)
	complete       func(ctx context.Context, actor, rideID uuid.UUID, distanceKm decimal.Decimal) (domain.RideCompletion, error)
	tracking       func(ctx context.Context, actor, rideID uuid.UUID, limit int) ([]domain.TrackingPoint, error)
}

func (m *mockRideServicer) Open(ctx context.Context, actor, id uuid.UUID) (domain.Ride, error) {
	return m.open(ctx, actor, id)
}
func (m *mockRideServicer) Get(ctx context.Context, actor, id uuid.UUID) (domain.Ride, error) {
	return m.get(ctx, actor, id)
}
func (m *mockRideServicer) Start(ctx context.Context, actor, id uuid.UUID) (domain.Ride, error) {
	return m.start(ctx, actor, id)
}
func (m *mockRideServicer) UpdateLocation(ctx context.Context, actor, id uuid.UUID, loc service.LocationUpdate) (domain.TrackingPoint, error) {
	return m.updateLocation(ctx, actor, id, loc)
}
func (m *mockRideServicer) Complete(ctx context.Context, actor, id uuid.UUID, d decimal.Decimal) (domain.RideCompletion, error) {
	return m.complete(ctx, actor, id, d)
}
func (m *mockRideServicer) Cancel(ctx context.Context, actor, id uuid.UUID) (domain.Ride, error) {
	return m.cancel(ctx, actor, id)
}
func (m *mockRideServicer) RaiseEmergency(ctx context.Context, actor, id uuid.UUID) (domain.Ride, error) {
	return m.raiseEmergency(ctx, actor, id)
}
func (m *mockRideServicer) Tracking(ctx context.Context, actor, id uuid.UUID, limit int) ([]domain.TrackingPoint, error) {
	return m.tracking(ctx, actor, id, limit)
}

type mockRewardServicer struct {
	wallet          func(ctx context.Context, userID uuid.UUID, c domain.Currency) (domain.WalletSummary, error)
	transactions    func(ctx context.Context, userID uuid.UUID, c domain.Currency, p domain.PaginationParams) ([]domain.LedgerEntry, int64, error)
	statement       func(ctx context.Context, userID uuid.UUID, c domain.Currency) ([]domain.StatementRow, error)
	listOptions     func(ctx context.Context) ([]domain.RedemptionOption, error)
	listRedemptions func(ctx context.Context, userID uuid.UUID) ([]domain.Redemption, error)
	redeem          func(ctx context.Context, userID, optionID uuid.UUID) (domain.Redemption, error)
	donate          func(ctx context.Context, userID uuid.UUID, in service.DonationInput) (domain.Donation, error)
	setRate         func(ctx context.Context, rate domain.ConversionRate) (domain.ConversionRate, error)
}

func (m *mockRewardServicer) Wallet(ctx context.Context, userID uuid.UUID, c domain.Currency) (domain.WalletSummary, error) {
	return m.wallet(ctx, userID, c)
}
func (m *mockRewardServicer) Transactions(ctx context.Context, userID uuid.UUID, c domain.Currency, p domain.PaginationParams) ([]domain.LedgerEntry, int64, error) {
	return m.transactions(ctx, userID, c, p)
}
func (m *mockRewardServicer) Statement(ctx context.Context, userID uuid.UUID, c domain.Currency) ([]domain.StatementRow, error) {
	return m.statement(ctx, userID, c)
}
func (m *mockRewardServicer) ListOptions(ctx context.Context) ([]domain.RedemptionOption, error) {
	return m.listOptions(ctx)
}
func (m *mockRewardServicer) ListRedemptions(ctx context.Context, userID uuid.UUID) ([]domain.Redemption, error) {
	return m.listRedemptions(ctx, userID)
}
func (m *mockRewardServicer) Redeem(ctx context.Context, userID, optionID uuid.UUID) (domain.Redemption, error) {
	return m.redeem(ctx, userID, optionID)
}
func (m *mockRewardServicer) Donate(ctx context.Context, userID uuid.UUID, in service.DonationInput) (domain.Donation, error) {
	return m.donate(ctx, userID, in)
}
func (m *mockRewardServicer) SetRate(ctx context.Context, rate domain.ConversionRate) (domain.ConversionRate, error) {
	return m.setRate(ctx, rate)
}

// compile-time checks: every mock must satisfy its handler interface.
var (
	_ handler.TripServicer    = (*mockTripServicer)(nil)
	_ handler.MatchServicer   = (*mockMatchServicer)(nil)
	_ handler.RequestServicer = (*mockRequestServicer)(nil)
	_ handler.RideServicer    = (*mockRideServicer)(nil)
	_ handler.RewardServicer  = (*mockRewardServicer)(nil)
)

// ---- helpers ---------------------------------------------------------------

// api wires a Server with the given mocks into the real router, the same
// way main.go wires it in production, and holds a caller identity.
type api struct {
	h      http.Handler
	auth   *middleware.Authenticator
	userID uuid.UUID
}

func newAPI(svc handler.Services) *api {
	auth := middleware.NewAuthenticator([]byte("handler-test-secret"))
	return &api{
		h:      handler.NewRouter(handler.NewServer(svc, nil), auth),
		auth:   auth,
		userID: uuid.New(),
	}
}

// do sends a request as the api's user with the commuter role.
func (a *api) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	return a.doAs(t, "commuter", method, path, body)
}

// doAs sends a request as the api's user with the given role.
func (a *api) doAs(t *testing.T, role, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	token, err := a.auth.Issue(a.userID, role, time.Hour)
	require.NoError(t, err)
	req := httptest.NewRequest(method, path, encodeBody(t, body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	a.h.ServeHTTP(rec, req)
	return rec
}

// encodeBody marshals v, passes strings through verbatim and maps nil to an
// empty body.
func encodeBody(t *testing.T, v any) io.Reader {
	t.Helper()
	switch b := v.(type) {
	case nil:
		return http.NoBody
	case string:
		return bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(v)
		require.NoError(t, err)
		return bytes.NewBuffer(raw)
	}
}

// errorCode decodes the error envelope and returns its code.
func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp handler.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp.Error.Code
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func tripFixture(driver uuid.UUID) domain.Trip {
	return domain.Trip{
		ID:               uuid.New(),
		DriverID:         driver,
		OrganizationID:   uuid.New(),
		Origin:           domain.Place{Name: "Koramangala", Lat: 12.9352, Lng: 77.6245},
		Destination:      domain.Place{Name: "Whitefield", Lat: 12.9698, Lng: 77.75},
		DepartureTime:    time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
		Capacity:         3,
		AvailableSeats:   3,
		PricePerSeat:     decimal.NewFromInt(50),
		GenderPreference: domain.GenderAny,
		FuelType:         domain.FuelPetrol,
		Status:           domain.TripScheduled,
	}
}
