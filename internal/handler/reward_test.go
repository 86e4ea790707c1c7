package handler_test

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkordes/ecopool/backend/internal/domain"
	"github.com/pkordes/ecopool/backend/internal/handler"
	"github.com/pkordes/ecopool/backend/internal/service"
)

// ---- redemptions -----------------------------------------------------------

func TestListRedemptionOptions_200(t *testing.T) {
	svc := &mockRewardServicer{
		listOptions: func(context.Context) ([]domain.RedemptionOption, error) {
			return []domain.RedemptionOption{{ID: uuid.New(), Title: "Coffee", DiamondCost: decimal.NewFromInt(15), StockAvailable: 4, Active: true}}, nil
		},
	}

	rec := newAPI(handler.Services{Rewards: svc}).do(t, http.MethodGet, "/redemptions/options", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	opts := decode[[]domain.RedemptionOption](t, rec)
	require.Len(t, opts, 1)
	assert.Equal(t, "Coffee", opts[0].Title)
}

func TestRedeem_201(t *testing.T) {
	optionID := uuid.New()
	svc := &mockRewardServicer{
		redeem: func(_ context.Context, userID, gotOption uuid.UUID) (domain.Redemption, error) {
			return domain.Redemption{
				ID: uuid.New(), UserID: userID, OptionID: gotOption,
				DiamondsSpent: decimal.NewFromInt(15), VoucherCode: "EC-0A1B2C3D",
				ExpiresAt: time.Date(2026, 5, 31, 8, 0, 0, 0, time.UTC),
			}, nil
		},
	}
	a := newAPI(handler.Services{Rewards: svc})

	rec := a.do(t, http.MethodPost, "/redemptions", map[string]any{"option_id": optionID})

	require.Equal(t, http.StatusCreated, rec.Code)
	red := decode[domain.Redemption](t, rec)
	assert.Equal(t, optionID, red.OptionID)
	assert.Equal(t, a.userID, red.UserID)
	assert.Equal(t, "EC-0A1B2C3D", red.VoucherCode)
}

func TestRedeem_409_Codes(t *testing.T) {
	for code, sentinel := range map[string]error{
		"out_of_stock":         domain.ErrOutOfStock,
		"insufficient_balance": domain.ErrInsufficientBalance,
	} {
		t.Run(code, func(t *testing.T) {
			svc := &mockRewardServicer{
				redeem: func(context.Context, uuid.UUID, uuid.UUID) (domain.Redemption, error) {
					return domain.Redemption{}, fmt.Errorf("service.RewardService.Redeem: %w", sentinel)
				},
			}

			rec := newAPI(handler.Services{Rewards: svc}).do(t, http.MethodPost, "/redemptions", map[string]any{"option_id": uuid.New()})

			require.Equal(t, http.StatusConflict, rec.Code)
			assert.Equal(t, code, errorCode(t, rec))
		})
	}
}

func TestListRedemptions_EmptyIsArray(t *testing.T) {
	svc := &mockRewardServicer{
		listRedemptions: func(context.Context, uuid.UUID) ([]domain.Redemption, error) { return nil, nil },
	}

	rec := newAPI(handler.Services{Rewards: svc}).do(t, http.MethodGet, "/redemptions", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

// ---- POST /donations -------------------------------------------------------

func TestDonate_201(t *testing.T) {
	ngo := uuid.New()
	var got service.DonationInput
	svc := &mockRewardServicer{
		donate: func(_ context.Context, userID uuid.UUID, in service.DonationInput) (domain.Donation, error) {
			got = in
			return domain.Donation{ID: uuid.New(), UserID: userID, NGOID: in.NGOID, Amount: in.Amount, DiamondsEarned: in.Amount.Mul(decimal.NewFromInt(5))}, nil
		},
	}

	rec := newAPI(handler.Services{Rewards: svc}).do(t, http.MethodPost, "/donations",
		map[string]any{"ngo_id": ngo, "amount": "250", "payment_id": "pay_123"})

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, ngo, got.NGOID)
	assert.Equal(t, "250", got.Amount.String())
	assert.Equal(t, "pay_123", got.PaymentID)
	assert.Contains(t, rec.Body.String(), `"diamonds_earned":"1250"`)
}

// ---- PUT /admin/rates/{name} -----------------------------------------------

func TestSetRate_AdminOnly(t *testing.T) {
	var got domain.ConversionRate
	svc := &mockRewardServicer{
		setRate: func(_ context.Context, rate domain.ConversionRate) (domain.ConversionRate, error) {
			got = rate
			return rate, nil
		},
	}
	a := newAPI(handler.Services{Rewards: svc})
	body := map[string]any{"rate": "7.5", "description": "diamonds per km"}

	rec := a.do(t, http.MethodPut, "/admin/rates/KM_TO_DIAMOND", body)
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "forbidden", errorCode(t, rec))
	assert.Empty(t, got.Name, "service must not be reached")

	rec = a.doAs(t, domain.RoleAdmin, http.MethodPut, "/admin/rates/KM_TO_DIAMOND", body)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "KM_TO_DIAMOND", got.Name)
	assert.Equal(t, "7.5", got.Rate.String())
	assert.True(t, got.Active)
}

// ---- body limit ------------------------------------------------------------

func TestDecode_413_WhenBodyCutOff(t *testing.T) {
	// The limit middleware wraps the body in http.MaxBytesReader; a decode
	// that runs into it must surface as 413 rather than a validation error.
	a := newAPI(handler.Services{Rewards: &mockRewardServicer{}})
	a.h = limitBody(a.h, 8)

	rec := a.do(t, http.MethodPost, "/donations", map[string]any{"ngo_id": uuid.New(), "payment_id": "pay_123"})

	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, "body_too_large", errorCode(t, rec))
}

// limitBody caps bodies without consulting Content-Length, so the limit is
// hit while decoding.
func limitBody(next http.Handler, n int64) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, n)
		next.ServeHTTP(w, r)
	})
}
