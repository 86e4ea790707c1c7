package memstore

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pkordes/ecopool/backend/internal/domain"
)

// ---- users ----

type userRepo struct {
	st *state
}

func (r *userRepo) GetByID(_ context.Context, id uuid.UUID) (domain.User, error) {
	u, ok := r.st.users[id]
	if !ok {
		return domain.User{}, fmt.Errorf("memstore.UserRepo.GetByID: %w", domain.ErrNotFound)
	}
	return u, nil
}

func (r *userRepo) AddRideStats(_ context.Context, id uuid.UUID, co2Kg decimal.Decimal) error {
	u, ok := r.st.users[id]
	if !ok {
		return fmt.Errorf("memstore.UserRepo.AddRideStats: %w", domain.ErrNotFound)
	}
	u.TotalRides++
	u.TotalCO2Saved = u.TotalCO2Saved.Add(co2Kg)
	r.st.users[id] = u
	return nil
}

// ---- trips ----

type tripRepo struct {
	st  *state
	now func() time.Time
}

func (r *tripRepo) Create(_ context.Context, t domain.Trip) (domain.Trip, error) {
	if t.AvailableSeats < 0 || t.AvailableSeats > t.Capacity {
		return domain.Trip{}, fmt.Errorf("memstore.TripRepo.Create: %w: seats out of range", domain.ErrValidation)
	}
	t.ID = uuid.New()
	t.CreatedAt = r.now()
	t.UpdatedAt = t.CreatedAt
	r.st.trips[t.ID] = t
	return t, nil
}

func (r *tripRepo) GetByID(_ context.Context, id uuid.UUID) (domain.Trip, error) {
	t, ok := r.st.trips[id]
	if !ok {
		return domain.Trip{}, fmt.Errorf("memstore.TripRepo.GetByID: %w", domain.ErrNotFound)
	}
	return t, nil
}

func (r *tripRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (domain.Trip, error) {
	return r.GetByID(ctx, id)
}

func (r *tripRepo) ListSchedulable(_ context.Context, organizationID uuid.UUID, after time.Time) ([]domain.Trip, error) {
	var out []domain.Trip
	for _, t := range r.st.trips {
		if t.OrganizationID == organizationID && t.Status == domain.TripScheduled && t.DepartureTime.After(after) {
			out = append(out, t)
		}
	}
	slices.SortFunc(out, func(a, b domain.Trip) int {
		if c := a.DepartureTime.Compare(b.DepartureTime); c != 0 {
			return c
		}
		return cmp.Compare(a.ID.String(), b.ID.String())
	})
	return out, nil
}

func (r *tripRepo) ReserveSeats(_ context.Context, id uuid.UUID, n int) (domain.Trip, error) {
	t, ok := r.st.trips[id]
	if !ok {
		return domain.Trip{}, fmt.Errorf("memstore.TripRepo.ReserveSeats: %w", domain.ErrNotFound)
	}
	if t.AvailableSeats < n {
		return domain.Trip{}, fmt.Errorf("memstore.TripRepo.ReserveSeats: %w", domain.ErrInsufficientSeats)
	}
	t.AvailableSeats -= n
	t.UpdatedAt = r.now()
	r.st.trips[id] = t
	return t, nil
}

func (r *tripRepo) ReleaseSeats(_ context.Context, id uuid.UUID, n int) (domain.Trip, error) {
	t, ok := r.st.trips[id]
	if !ok {
		return domain.Trip{}, fmt.Errorf("memstore.TripRepo.ReleaseSeats: %w", domain.ErrNotFound)
	}
	if t.AvailableSeats+n > t.Capacity {
		return domain.Trip{}, fmt.Errorf("memstore.TripRepo.ReleaseSeats: releasing %d seats exceeds capacity %d", n, t.Capacity)
	}
	t.AvailableSeats += n
	t.UpdatedAt = r.now()
	r.st.trips[id] = t
	return t, nil
}

func (r *tripRepo) SetStatus(_ context.Context, id uuid.UUID, status domain.TripStatus) (domain.Trip, error) {
	t, ok := r.st.trips[id]
	if !ok {
		return domain.Trip{}, fmt.Errorf("memstore.TripRepo.SetStatus: %w", domain.ErrNotFound)
	}
	t.Status = status
	t.UpdatedAt = r.now()
	r.st.trips[id] = t
	return t, nil
}

// ---- requests ----

type requestRepo struct {
	st  *state
	now func() time.Time
}

func (r *requestRepo) Create(ctx context.Context, req domain.TripRequest) (domain.TripRequest, error) {
	if _, ok := r.st.trips[req.TripID]; !ok {
		return domain.TripRequest{}, fmt.Errorf("memstore.RequestRepo.Create: %w", domain.ErrNotFound)
	}
	if req.Status.IsOpen() {
		open, _ := r.HasOpen(ctx, req.TripID, req.PassengerID)
		if open {
			return domain.TripRequest{}, fmt.Errorf("memstore.RequestRepo.Create: %w: open request exists", domain.ErrConflict)
		}
	}
	req.ID = uuid.New()
	req.CreatedAt = r.now()
	req.UpdatedAt = req.CreatedAt
	r.st.requests[req.ID] = req
	r.st.requestSeq = append(r.st.requestSeq, req.ID)
	return req, nil
}

func (r *requestRepo) GetByID(_ context.Context, id uuid.UUID) (domain.TripRequest, error) {
	req, ok := r.st.requests[id]
	if !ok {
		return domain.TripRequest{}, fmt.Errorf("memstore.RequestRepo.GetByID: %w", domain.ErrNotFound)
	}
	return req, nil
}

func (r *requestRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (domain.TripRequest, error) {
	return r.GetByID(ctx, id)
}

func (r *requestRepo) HasOpen(_ context.Context, tripID, passengerID uuid.UUID) (bool, error) {
	for _, req := range r.st.requests {
		if req.TripID == tripID && req.PassengerID == passengerID && req.Status.IsOpen() {
			return true, nil
		}
	}
	return false, nil
}

func (r *requestRepo) ListByTrip(_ context.Context, tripID uuid.UUID) ([]domain.TripRequest, error) {
	var out []domain.TripRequest
	for _, id := range r.st.requestSeq {
		if req := r.st.requests[id]; req.TripID == tripID {
			out = append(out, req)
		}
	}
	return out, nil
}

func (r *requestRepo) ListByPassenger(_ context.Context, passengerID uuid.UUID) ([]domain.TripRequest, error) {
	var out []domain.TripRequest
	for _, id := range slices.Backward(r.st.requestSeq) {
		if req := r.st.requests[id]; req.PassengerID == passengerID {
			out = append(out, req)
		}
	}
	return out, nil
}

func (r *requestRepo) SetStatus(_ context.Context, id uuid.UUID, status domain.RequestStatus) (domain.TripRequest, error) {
	req, ok := r.st.requests[id]
	if !ok {
		return domain.TripRequest{}, fmt.Errorf("memstore.RequestRepo.SetStatus: %w", domain.ErrNotFound)
	}
	req.Status = status
	req.UpdatedAt = r.now()
	r.st.requests[id] = req
	return req, nil
}

func (r *requestRepo) RejectPending(_ context.Context, tripID uuid.UUID) (int64, error) {
	var n int64
	for id, req := range r.st.requests {
		if req.TripID == tripID && req.Status == domain.RequestPending {
			req.Status = domain.RequestRejected
			req.UpdatedAt = r.now()
			r.st.requests[id] = req
			n++
		}
	}
	return n, nil
}

// ---- rides ----

type rideRepo struct {
	st  *state
	now func() time.Time
}

func (r *rideRepo) Create(_ context.Context, ride domain.Ride) (domain.Ride, error) {
	for _, existing := range r.st.rides {
		if existing.TripID == ride.TripID {
			return domain.Ride{}, fmt.Errorf("memstore.RideRepo.Create: %w: trip already has a ride", domain.ErrConflict)
		}
	}
	ride.ID = uuid.New()
	ride.PassengerIDs = slices.Clone(ride.PassengerIDs)
	if ride.PassengerIDs == nil {
		ride.PassengerIDs = []uuid.UUID{}
	}
	ride.CreatedAt = r.now()
	ride.UpdatedAt = ride.CreatedAt
	r.st.rides[ride.ID] = ride
	return copyRide(ride), nil
}

func (r *rideRepo) GetByID(_ context.Context, id uuid.UUID) (domain.Ride, error) {
	ride, ok := r.st.rides[id]
	if !ok {
		return domain.Ride{}, fmt.Errorf("memstore.RideRepo.GetByID: %w", domain.ErrNotFound)
	}
	return copyRide(ride), nil
}

func (r *rideRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (domain.Ride, error) {
	return r.GetByID(ctx, id)
}

func (r *rideRepo) GetByTripForUpdate(_ context.Context, tripID uuid.UUID) (domain.Ride, error) {
	for _, ride := range r.st.rides {
		if ride.TripID == tripID {
			return copyRide(ride), nil
		}
	}
	return domain.Ride{}, fmt.Errorf("memstore.RideRepo.GetByTripForUpdate: %w", domain.ErrNotFound)
}

func (r *rideRepo) AddPassenger(_ context.Context, rideID, userID uuid.UUID) error {
	ride, ok := r.st.rides[rideID]
	if !ok {
		return fmt.Errorf("memstore.RideRepo.AddPassenger: %w", domain.ErrNotFound)
	}
	if !slices.Contains(ride.PassengerIDs, userID) {
		ride.PassengerIDs = append(ride.PassengerIDs, userID)
		r.st.rides[rideID] = ride
	}
	return nil
}

func (r *rideRepo) RemovePassenger(_ context.Context, rideID, userID uuid.UUID) error {
	ride, ok := r.st.rides[rideID]
	if !ok {
		return nil
	}
	ride.PassengerIDs = slices.DeleteFunc(ride.PassengerIDs, func(id uuid.UUID) bool { return id == userID })
	r.st.rides[rideID] = ride
	return nil
}

func (r *rideRepo) Update(_ context.Context, ride domain.Ride) (domain.Ride, error) {
	cur, ok := r.st.rides[ride.ID]
	if !ok {
		return domain.Ride{}, fmt.Errorf("memstore.RideRepo.Update: %w", domain.ErrNotFound)
	}
	cur.Status = ride.Status
	cur.Position = ride.Position
	cur.StartTime = ride.StartTime
	cur.EndTime = ride.EndTime
	cur.DistanceCovered = ride.DistanceCovered
	cur.CO2Saved = ride.CO2Saved
	cur.UpdatedAt = r.now()
	cur = copyRide(cur)
	r.st.rides[ride.ID] = cur
	return copyRide(cur), nil
}

func (r *rideRepo) AddTrackingPoint(_ context.Context, p domain.TrackingPoint) (domain.TrackingPoint, error) {
	if _, ok := r.st.rides[p.RideID]; !ok {
		return domain.TrackingPoint{}, fmt.Errorf("memstore.RideRepo.AddTrackingPoint: %w", domain.ErrNotFound)
	}
	p.ID = uuid.New()
	if p.RecordedAt.IsZero() {
		p.RecordedAt = r.now()
	}
	r.st.tracking = append(r.st.tracking, p)
	return p, nil
}

func (r *rideRepo) ListTracking(_ context.Context, rideID uuid.UUID, limit int) ([]domain.TrackingPoint, error) {
	var out []domain.TrackingPoint
	for _, p := range r.st.tracking {
		if p.RideID == rideID {
			out = append(out, p)
		}
	}
	// Stable on insertion order so equal timestamps come back newest first.
	slices.Reverse(out)
	slices.SortStableFunc(out, func(a, b domain.TrackingPoint) int {
		return b.RecordedAt.Compare(a.RecordedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ---- ledger ----

type ledgerRepo struct {
	st  *state
	now func() time.Time
}

func (r *ledgerRepo) Append(_ context.Context, e domain.LedgerEntry) (domain.LedgerEntry, error) {
	if e.Amount.IsZero() {
		return domain.LedgerEntry{}, fmt.Errorf("memstore.LedgerRepo.Append: %w: zero amount", domain.ErrValidation)
	}
	if e.Kind == domain.KindEarnedRide {
		for _, x := range r.st.entries {
			if x.Kind == e.Kind && x.UserID == e.UserID && x.Currency == e.Currency && x.Reference == e.Reference {
				return domain.LedgerEntry{}, fmt.Errorf("memstore.LedgerRepo.Append: %w: ride already paid", domain.ErrConflict)
			}
		}
	}
	e.ID = uuid.New()
	e.CreatedAt = r.now()
	r.st.entries = append(r.st.entries, e)
	return e, nil
}

func (r *ledgerRepo) GetWallet(_ context.Context, userID uuid.UUID, currency domain.Currency) (domain.Wallet, error) {
	w, ok := r.st.wallets[walletKey{userID, currency}]
	if !ok {
		return domain.Wallet{UserID: userID, Currency: currency}, nil
	}
	return w, nil
}

func (r *ledgerRepo) Credit(_ context.Context, userID uuid.UUID, currency domain.Currency, amount decimal.Decimal) (domain.Wallet, error) {
	key := walletKey{userID, currency}
	w, ok := r.st.wallets[key]
	if !ok {
		w = domain.Wallet{UserID: userID, Currency: currency}
	}
	w.Balance = w.Balance.Add(amount)
	w.LifetimeEarned = w.LifetimeEarned.Add(amount)
	w.UpdatedAt = r.now()
	r.st.wallets[key] = w
	return w, nil
}

func (r *ledgerRepo) Debit(_ context.Context, userID uuid.UUID, currency domain.Currency, amount decimal.Decimal) (domain.Wallet, error) {
	key := walletKey{userID, currency}
	w, ok := r.st.wallets[key]
	if !ok || w.Balance.LessThan(amount) {
		return domain.Wallet{}, fmt.Errorf("memstore.LedgerRepo.Debit: %w", domain.ErrInsufficientBalance)
	}
	w.Balance = w.Balance.Sub(amount)
	w.LifetimeRedeemed = w.LifetimeRedeemed.Add(amount)
	w.UpdatedAt = r.now()
	r.st.wallets[key] = w
	return w, nil
}

func (r *ledgerRepo) Sum(ctx context.Context, userID uuid.UUID, currency domain.Currency) (decimal.Decimal, error) {
	entries, _ := r.ListAll(ctx, userID, currency)
	sum := decimal.Zero
	for _, e := range entries {
		sum = sum.Add(e.Amount)
	}
	return sum, nil
}

func (r *ledgerRepo) ListPaged(ctx context.Context, userID uuid.UUID, currency domain.Currency, p domain.PaginationParams) ([]domain.LedgerEntry, int64, error) {
	all, _ := r.ListAll(ctx, userID, currency)
	slices.Reverse(all)
	total := int64(len(all))
	start := min(p.Offset(), len(all))
	end := min(start+p.Limit, len(all))
	return all[start:end], total, nil
}

func (r *ledgerRepo) ListAll(_ context.Context, userID uuid.UUID, currency domain.Currency) ([]domain.LedgerEntry, error) {
	var out []domain.LedgerEntry
	for _, e := range r.st.entries {
		if e.UserID == userID && e.Currency == currency {
			out = append(out, e)
		}
	}
	return out, nil
}

// ---- rates ----

type rateRepo struct {
	st  *state
	now func() time.Time
}

func (r *rateRepo) Rate(_ context.Context, name string) (decimal.Decimal, error) {
	c, ok := r.st.rates[name]
	if !ok || !c.Active {
		return decimal.Zero, fmt.Errorf("memstore.RateRepo.Rate: %w", domain.ErrNotFound)
	}
	return c.Rate, nil
}

func (r *rateRepo) EmissionFactor(_ context.Context, fuel domain.FuelType) (decimal.Decimal, error) {
	f, ok := r.st.factors[fuel]
	if !ok {
		return decimal.Zero, fmt.Errorf("memstore.RateRepo.EmissionFactor: %w", domain.ErrNotFound)
	}
	return f, nil
}

func (r *rateRepo) Get(_ context.Context, name string) (domain.ConversionRate, error) {
	c, ok := r.st.rates[name]
	if !ok {
		return domain.ConversionRate{}, fmt.Errorf("memstore.RateRepo.Get: %w", domain.ErrNotFound)
	}
	return c, nil
}

func (r *rateRepo) List(_ context.Context) ([]domain.ConversionRate, error) {
	out := make([]domain.ConversionRate, 0, len(r.st.rates))
	for _, c := range r.st.rates {
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b domain.ConversionRate) int { return cmp.Compare(a.Name, b.Name) })
	return out, nil
}

func (r *rateRepo) Upsert(_ context.Context, c domain.ConversionRate) (domain.ConversionRate, error) {
	c.UpdatedAt = r.now()
	r.st.rates[c.Name] = c
	return c, nil
}

// ---- rewards ----

type rewardRepo struct {
	st  *state
	now func() time.Time
}

func (r *rewardRepo) ListOptions(_ context.Context) ([]domain.RedemptionOption, error) {
	out := []domain.RedemptionOption{}
	for _, o := range r.st.options {
		if o.Active {
			out = append(out, o)
		}
	}
	slices.SortFunc(out, func(a, b domain.RedemptionOption) int {
		if c := a.DiamondCost.Cmp(b.DiamondCost); c != 0 {
			return c
		}
		return cmp.Compare(a.Title, b.Title)
	})
	return out, nil
}

func (r *rewardRepo) GetOptionForUpdate(_ context.Context, id uuid.UUID) (domain.RedemptionOption, error) {
	o, ok := r.st.options[id]
	if !ok {
		return domain.RedemptionOption{}, fmt.Errorf("memstore.RewardRepo.GetOptionForUpdate: %w", domain.ErrNotFound)
	}
	return o, nil
}

func (r *rewardRepo) DecrementStock(_ context.Context, id uuid.UUID) (domain.RedemptionOption, error) {
	o, ok := r.st.options[id]
	if !ok || o.StockAvailable <= 0 {
		return domain.RedemptionOption{}, fmt.Errorf("memstore.RewardRepo.DecrementStock: %w", domain.ErrOutOfStock)
	}
	o.StockAvailable--
	r.st.options[id] = o
	return o, nil
}

func (r *rewardRepo) CreateRedemption(ctx context.Context, red domain.Redemption) (domain.Redemption, error) {
	if exists, _ := r.VoucherExists(ctx, red.VoucherCode); exists {
		return domain.Redemption{}, fmt.Errorf("memstore.RewardRepo.CreateRedemption: %w: voucher code", domain.ErrConflict)
	}
	red.ID = uuid.New()
	red.CreatedAt = r.now()
	r.st.redemptions = append(r.st.redemptions, red)
	return red, nil
}

func (r *rewardRepo) VoucherExists(_ context.Context, code string) (bool, error) {
	return slices.ContainsFunc(r.st.redemptions, func(x domain.Redemption) bool { return x.VoucherCode == code }), nil
}

func (r *rewardRepo) ListRedemptions(_ context.Context, userID uuid.UUID) ([]domain.Redemption, error) {
	out := []domain.Redemption{}
	for _, red := range slices.Backward(r.st.redemptions) {
		if red.UserID == userID {
			out = append(out, red)
		}
	}
	return out, nil
}

func (r *rewardRepo) GetNGOForUpdate(_ context.Context, id uuid.UUID) (domain.NGO, error) {
	n, ok := r.st.ngos[id]
	if !ok {
		return domain.NGO{}, fmt.Errorf("memstore.RewardRepo.GetNGOForUpdate: %w", domain.ErrNotFound)
	}
	return n, nil
}

func (r *rewardRepo) AddNGODonation(_ context.Context, id uuid.UUID, amount, co2Kg decimal.Decimal) (domain.NGO, error) {
	n, ok := r.st.ngos[id]
	if !ok {
		return domain.NGO{}, fmt.Errorf("memstore.RewardRepo.AddNGODonation: %w", domain.ErrNotFound)
	}
	n.TotalDonationsReceived = n.TotalDonationsReceived.Add(amount)
	n.CO2OffsetKg = n.CO2OffsetKg.Add(co2Kg)
	r.st.ngos[id] = n
	return n, nil
}

func (r *rewardRepo) CreateDonation(_ context.Context, d domain.Donation) (domain.Donation, error) {
	if slices.ContainsFunc(r.st.donations, func(x domain.Donation) bool { return x.PaymentID == d.PaymentID }) {
		return domain.Donation{}, fmt.Errorf("memstore.RewardRepo.CreateDonation: %w: payment already recorded", domain.ErrConflict)
	}
	d.ID = uuid.New()
	d.CreatedAt = r.now()
	r.st.donations = append(r.st.donations, d)
	return d, nil
}
