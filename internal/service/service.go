// Package service contains the business logic for the EcoPool API.
// Services validate inputs, enforce business rules, and orchestrate repo calls
// inside one repo.Store unit of work per operation. No SQL lives here.
package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pkordes/ecopool/backend/internal/domain"
	"github.com/pkordes/ecopool/backend/internal/events"
	"github.com/pkordes/ecopool/backend/internal/livepos"
	"github.com/pkordes/ecopool/backend/internal/observability"
	"github.com/pkordes/ecopool/backend/internal/repo"
)

// Deps are the collaborators shared by every service. Only Store is
// required; nil fields get no-op or process defaults.
type Deps struct {
	Store     repo.Store
	Events    events.Publisher
	Positions livepos.Cache
	Logger    *slog.Logger
	Now       func() time.Time

	// VoucherCode generates redemption codes. Defaults to newVoucherCode.
	VoucherCode func() string
}

func (d Deps) withDefaults() Deps {
	if d.Events == nil {
		d.Events = events.NopPublisher{}
	}
	if d.Positions == nil {
		d.Positions = livepos.Nop{}
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.VoucherCode == nil {
		d.VoucherCode = newVoucherCode
	}
	return d
}

// publish sends e after commit. Failures are logged and counted, never
// returned: the unit of work has already committed.
func (d Deps) publish(ctx context.Context, e events.Event) {
	if e.At.IsZero() {
		e.At = d.Now().UTC()
	}
	if err := d.Events.Publish(ctx, e); err != nil {
		observability.SideEffectFailuresTotal.WithLabelValues("events").Inc()
		d.Logger.WarnContext(ctx, "event publish failed",
			"type", string(e.Type), "subject", e.Subject.String(), "error", err)
	}
}

// setPosition writes the live position of a ride after commit.
func (d Deps) setPosition(ctx context.Context, rideID uuid.UUID, p domain.Position) {
	if err := d.Positions.Set(ctx, rideID, p); err != nil {
		observability.SideEffectFailuresTotal.WithLabelValues("positions").Inc()
		d.Logger.WarnContext(ctx, "live position write failed", "ride_id", rideID.String(), "error", err)
	}
}

// dropPosition forgets the live position of a ride that reached a terminal state.
func (d Deps) dropPosition(ctx context.Context, rideID uuid.UUID) {
	if err := d.Positions.Remove(ctx, rideID); err != nil {
		observability.SideEffectFailuresTotal.WithLabelValues("positions").Inc()
		d.Logger.WarnContext(ctx, "live position remove failed", "ride_id", rideID.String(), "error", err)
	}
}

// newVoucherCode returns "EC-" and eight upper-case hex digits.
func newVoucherCode() string {
	id := uuid.New()
	return "EC-" + strings.ToUpper(strings.ReplaceAll(id.String(), "-", "")[:8])
}
