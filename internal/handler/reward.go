package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pkordes/ecopool/backend/internal/domain"
	"github.com/pkordes/ecopool/backend/internal/service"
)

// RedeemRequest is the body of POST /redemptions.
type RedeemRequest struct {
	OptionID uuid.UUID `json:"option_id"`
}

// DonateRequest is the body of POST /donations.
type DonateRequest struct {
	NGOID     uuid.UUID       `json:"ngo_id"`
	Amount    decimal.Decimal `json:"amount"`
	PaymentID string          `json:"payment_id"`
}

// SetRateRequest is the body of PUT /admin/rates/{name}.
type SetRateRequest struct {
	Rate        decimal.Decimal `json:"rate"`
	Description string          `json:"description,omitempty"`
}

// ListRedemptionOptions handles GET /redemptions/options.
func (s *Server) ListRedemptionOptions(w http.ResponseWriter, r *http.Request) error {
	opts, err := s.rewards.ListOptions(r.Context())
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, nonNil(opts))
	return nil
}

// ListRedemptions handles GET /redemptions, the caller's vouchers.
func (s *Server) ListRedemptions(w http.ResponseWriter, r *http.Request) error {
	actor, err := actorID(r)
	if err != nil {
		return err
	}
	list, err := s.rewards.ListRedemptions(r.Context(), actor)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, nonNil(list))
	return nil
}

// Redeem handles POST /redemptions.
func (s *Server) Redeem(w http.ResponseWriter, r *http.Request) error {
	actor, err := actorID(r)
	if err != nil {
		return err
	}
	var body RedeemRequest
	if err := decodeJSON(r, &body); err != nil {
		return err
	}
	red, err := s.rewards.Redeem(r.Context(), actor, body.OptionID)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusCreated, red)
	return nil
}

// Donate handles POST /donations.
func (s *Server) Donate(w http.ResponseWriter, r *http.Request) error {
	actor, err := actorID(r)
	if err != nil {
		return err
	}
	var body DonateRequest
	if err := decodeJSON(r, &body); err != nil {
		return err
	}
	don, err := s.rewards.Donate(r.Context(), actor, service.DonationInput{
		NGOID:     body.NGOID,
		Amount:    body.Amount,
		PaymentID: body.PaymentID,
	})
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusCreated, don)
	return nil
}

// SetRate handles PUT /admin/rates/{name}. The router only lets admins in.
func (s *Server) SetRate(w http.ResponseWriter, r *http.Request) error {
	var body SetRateRequest
	if err := decodeJSON(r, &body); err != nil {
		return err
	}
	rate, err := s.rewards.SetRate(r.Context(), domain.ConversionRate{
		Name:        chi.URLParam(r, "name"),
		Rate:        body.Rate,
		Description: body.Description,
		Active:      true,
	})
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, rate)
	return nil
}
