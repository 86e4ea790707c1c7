package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pkordes/ecopool/backend/internal/carbon"
	"github.com/pkordes/ecopool/backend/internal/domain"
	"github.com/pkordes/ecopool/backend/internal/events"
	"github.com/pkordes/ecopool/backend/internal/observability"
	"github.com/pkordes/ecopool/backend/internal/repo"
)

// voucherAttempts bounds how often Redeem draws a new code after a collision.
const voucherAttempts = 5

// RewardService moves points and diamonds through the ledger and spends
// them on vouchers and donations.
type RewardService struct {
	deps Deps
}

// NewRewardService constructs a RewardService.
func NewRewardService(d Deps) *RewardService {
	return &RewardService{deps: d.withDefaults()}
}

// Posting describes one ledger movement requested by a caller.
type Posting struct {
	UserID      uuid.UUID
	Currency    domain.Currency
	Amount      decimal.Decimal
	Kind        domain.EntryKind
	Reference   string
	Description string
}

func validatePosting(p Posting) error {
	if !p.Currency.Valid() {
		return fmt.Errorf("%w: unknown currency %q", domain.ErrValidation, p.Currency)
	}
	if !p.Amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive", domain.ErrValidation)
	}
	if !p.Amount.Equal(p.Amount.Truncate(p.Currency.Places())) {
		return fmt.Errorf("%w: %s allow %d decimal places", domain.ErrValidation, p.Currency, p.Currency.Places())
	}
	return nil
}

// credit adds p to the user's wallet and appends the matching entry. It runs
// inside the caller's unit of work so rides and donations can pay out
// atomically with their own writes.
func credit(ctx context.Context, r repo.Repos, p Posting) (domain.LedgerEntry, error) {
	if err := validatePosting(p); err != nil {
		return domain.LedgerEntry{}, err
	}
	if !p.Kind.IsEarn() {
		return domain.LedgerEntry{}, fmt.Errorf("%w: %q is not an earning", domain.ErrValidation, p.Kind)
	}
	entry, err := r.Ledger.Append(ctx, domain.LedgerEntry{
		UserID: p.UserID, Currency: p.Currency, Amount: p.Amount,
		Kind: p.Kind, Reference: p.Reference, Description: p.Description,
	})
	if err != nil {
		return domain.LedgerEntry{}, err
	}
	if _, err := r.Ledger.Credit(ctx, p.UserID, p.Currency, p.Amount); err != nil {
		return domain.LedgerEntry{}, err
	}
	return entry, nil
}

// debit subtracts p from the wallet when the balance covers it and appends
// a negative entry.
func debit(ctx context.Context, r repo.Repos, p Posting) (domain.LedgerEntry, error) {
	if err := validatePosting(p); err != nil {
		return domain.LedgerEntry{}, err
	}
	if !p.Kind.IsSpend() {
		return domain.LedgerEntry{}, fmt.Errorf("%w: %q is not a spend", domain.ErrValidation, p.Kind)
	}
	if _, err := r.Ledger.Debit(ctx, p.UserID, p.Currency, p.Amount); err != nil {
		return domain.LedgerEntry{}, err
	}
	return r.Ledger.Append(ctx, domain.LedgerEntry{
		UserID: p.UserID, Currency: p.Currency, Amount: p.Amount.Neg(),
		Kind: p.Kind, Reference: p.Reference, Description: p.Description,
	})
}

// countPostings records committed entries.
func countPostings(entries ...domain.LedgerEntry) {
	for _, e := range entries {
		observability.LedgerPostingsTotal.WithLabelValues(string(e.Currency), string(e.Kind)).Inc()
	}
}

// Credit posts an earning outside any ride or donation, such as a bonus.
func (s *RewardService) Credit(ctx context.Context, p Posting) (domain.LedgerEntry, error) {
	var entry domain.LedgerEntry
	err := s.deps.Store.WithinTx(ctx, func(ctx context.Context, r repo.Repos) error {
		var err error
		entry, err = credit(ctx, r, p)
		return err
	})
	if err != nil {
		return domain.LedgerEntry{}, fmt.Errorf("service.RewardService.Credit: %w", err)
	}
	countPostings(entry)
	return entry, nil
}

// Debit posts a spend. It fails with domain.ErrInsufficientBalance and
// changes nothing when the wallet cannot cover the amount.
func (s *RewardService) Debit(ctx context.Context, p Posting) (domain.LedgerEntry, error) {
	var entry domain.LedgerEntry
	err := s.deps.Store.WithinTx(ctx, func(ctx context.Context, r repo.Repos) error {
		var err error
		entry, err = debit(ctx, r, p)
		return err
	})
	if err != nil {
		return domain.LedgerEntry{}, fmt.Errorf("service.RewardService.Debit: %w", err)
	}
	countPostings(entry)
	return entry, nil
}

// Redeem buys one unit of an option with diamonds and issues a voucher.
// Checks run in order: option exists and is active, stock is left, the
// wallet covers the cost.
func (s *RewardService) Redeem(ctx context.Context, userID, optionID uuid.UUID) (domain.Redemption, error) {
	var (
		red   domain.Redemption
		entry domain.LedgerEntry
	)
	err := s.deps.Store.WithinTx(ctx, func(ctx context.Context, r repo.Repos) error {
		opt, err := r.Rewards.GetOptionForUpdate(ctx, optionID)
		if err != nil {
			return err
		}
		if !opt.Active {
			return fmt.Errorf("%w: option %s is not available", domain.ErrNotFound, optionID)
		}
		if opt.StockAvailable <= 0 {
			return domain.ErrOutOfStock
		}
		if _, err := r.Ledger.Debit(ctx, userID, domain.CurrencyDiamonds, opt.DiamondCost); err != nil {
			return err
		}
		if _, err := r.Rewards.DecrementStock(ctx, optionID); err != nil {
			return err
		}

		code, err := s.uniqueVoucherCode(ctx, r)
		if err != nil {
			return err
		}
		validity := opt.ValidityDays
		if validity <= 0 {
			validity = domain.DefaultValidityDays
		}
		red, err = r.Rewards.CreateRedemption(ctx, domain.Redemption{
			UserID:        userID,
			OptionID:      optionID,
			DiamondsSpent: opt.DiamondCost,
			Status:        domain.RedemptionActive,
			VoucherCode:   code,
			ExpiresAt:     s.deps.Now().Add(time.Duration(validity) * 24 * time.Hour),
		})
		if err != nil {
			return err
		}

		entry, err = r.Ledger.Append(ctx, domain.LedgerEntry{
			UserID:      userID,
			Currency:    domain.CurrencyDiamonds,
			Amount:      opt.DiamondCost.Neg(),
			Kind:        domain.KindRedeemed,
			Reference:   red.ID.String(),
			Description: "Redeemed " + opt.Title,
		})
		return err
	})
	if err != nil {
		return domain.Redemption{}, fmt.Errorf("service.RewardService.Redeem: %w", err)
	}

	countPostings(entry)
	observability.RedemptionsTotal.Inc()
	s.deps.publish(ctx, events.Event{Type: events.VoucherRedeemed, Subject: red.ID, Actor: userID, Data: red})
	return red, nil
}

func (s *RewardService) uniqueVoucherCode(ctx context.Context, r repo.Repos) (string, error) {
	for range voucherAttempts {
		code := s.deps.VoucherCode()
		exists, err := r.Rewards.VoucherExists(ctx, code)
		if err != nil {
			return "", err
		}
		if !exists {
			return code, nil
		}
	}
	return "", fmt.Errorf("%w: no free voucher code after %d attempts", domain.ErrConflict, voucherAttempts)
}

// DonationInput is a completed payment to an NGO partner.
type DonationInput struct {
	NGOID     uuid.UUID
	Amount    decimal.Decimal
	PaymentID string
}

// Donate records a donation, credits the diamonds it earns and adds it to
// the partner's totals. A payment id can be recorded only once.
func (s *RewardService) Donate(ctx context.Context, userID uuid.UUID, in DonationInput) (domain.Donation, error) {
	in.PaymentID = strings.TrimSpace(in.PaymentID)
	if !in.Amount.IsPositive() {
		return domain.Donation{}, fmt.Errorf("service.RewardService.Donate: %w: amount must be positive", domain.ErrValidation)
	}
	if in.PaymentID == "" {
		return domain.Donation{}, fmt.Errorf("service.RewardService.Donate: %w: payment_id is required", domain.ErrValidation)
	}

	var (
		don     domain.Donation
		entries []domain.LedgerEntry
	)
	err := s.deps.Store.WithinTx(ctx, func(ctx context.Context, r repo.Repos) error {
		ngo, err := r.Rewards.GetNGOForUpdate(ctx, in.NGOID)
		if err != nil {
			return err
		}
		if !ngo.Active {
			return fmt.Errorf("%w: ngo %s is not active", domain.ErrNotFound, in.NGOID)
		}

		diamonds, co2, err := carbon.NewAccountant(r.Rates).DonationDiamonds(ctx, in.Amount)
		if err != nil {
			return err
		}
		don, err = r.Rewards.CreateDonation(ctx, domain.Donation{
			UserID:         userID,
			NGOID:          ngo.ID,
			Amount:         in.Amount,
			DiamondsEarned: diamonds,
			CO2Equivalent:  co2,
			PaymentID:      in.PaymentID,
		})
		if err != nil {
			return err
		}
		if diamonds.IsPositive() {
			e, err := credit(ctx, r, Posting{
				UserID:      userID,
				Currency:    domain.CurrencyDiamonds,
				Amount:      diamonds,
				Kind:        domain.KindEarnedDonation,
				Reference:   don.ID.String(),
				Description: "Donation to " + ngo.Name,
			})
			if err != nil {
				return err
			}
			entries = append(entries, e)
		}
		_, err = r.Rewards.AddNGODonation(ctx, ngo.ID, in.Amount, co2)
		return err
	})
	if err != nil {
		return domain.Donation{}, fmt.Errorf("service.RewardService.Donate: %w", err)
	}

	countPostings(entries...)
	observability.DonationsTotal.Inc()
	s.deps.publish(ctx, events.Event{Type: events.DonationReceived, Subject: don.ID, Actor: userID, Data: don})
	return don, nil
}

// Wallet returns the user's wallet in currency together with the level
// reached from lifetime earnings.
func (s *RewardService) Wallet(ctx context.Context, userID uuid.UUID, currency domain.Currency) (domain.WalletSummary, error) {
	if !currency.Valid() {
		return domain.WalletSummary{}, fmt.Errorf("service.RewardService.Wallet: %w: unknown currency %q", domain.ErrValidation, currency)
	}
	var w domain.Wallet
	err := s.deps.Store.WithinTx(ctx, func(ctx context.Context, r repo.Repos) error {
		var err error
		w, err = r.Ledger.GetWallet(ctx, userID, currency)
		return err
	})
	if err != nil {
		return domain.WalletSummary{}, fmt.Errorf("service.RewardService.Wallet: %w", err)
	}
	return domain.WalletSummary{Wallet: w, Level: domain.LevelFor(w.LifetimeEarned)}, nil
}

// Transactions returns one page of the user's entries, newest first, and
// the total number of entries.
func (s *RewardService) Transactions(ctx context.Context, userID uuid.UUID, currency domain.Currency, p domain.PaginationParams) ([]domain.LedgerEntry, int64, error) {
	if !currency.Valid() {
		return nil, 0, fmt.Errorf("service.RewardService.Transactions: %w: unknown currency %q", domain.ErrValidation, currency)
	}
	var (
		entries []domain.LedgerEntry
		total   int64
	)
	err := s.deps.Store.WithinTx(ctx, func(ctx context.Context, r repo.Repos) error {
		var err error
		entries, total, err = r.Ledger.ListPaged(ctx, userID, currency, p)
		return err
	})
	if err != nil {
		return nil, 0, fmt.Errorf("service.RewardService.Transactions: %w", err)
	}
	return entries, total, nil
}

// Statement returns the whole ledger of a user in currency, oldest first,
// with the balance after each entry.
func (s *RewardService) Statement(ctx context.Context, userID uuid.UUID, currency domain.Currency) ([]domain.StatementRow, error) {
	if !currency.Valid() {
		return nil, fmt.Errorf("service.RewardService.Statement: %w: unknown currency %q", domain.ErrValidation, currency)
	}
	var entries []domain.LedgerEntry
	err := s.deps.Store.WithinTx(ctx, func(ctx context.Context, r repo.Repos) error {
		var err error
		entries, err = r.Ledger.ListAll(ctx, userID, currency)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("service.RewardService.Statement: %w", err)
	}

	places := currency.Places()
	balance := decimal.Zero
	rows := make([]domain.StatementRow, 0, len(entries))
	for _, e := range entries {
		balance = balance.Add(e.Amount)
		rows = append(rows, domain.StatementRow{
			EntryID:     e.ID.String(),
			Currency:    string(e.Currency),
			Kind:        string(e.Kind),
			Amount:      e.Amount.StringFixed(places),
			Balance:     balance.StringFixed(places),
			Reference:   e.Reference,
			Description: e.Description,
			CreatedAt:   e.CreatedAt,
		})
	}
	return rows, nil
}

// Reconcile compares the cached wallet balance with the sum of the ledger.
// A mismatch returns domain.ErrLedgerDivergence along with the wallet.
func (s *RewardService) Reconcile(ctx context.Context, userID uuid.UUID, currency domain.Currency) (domain.Wallet, error) {
	var (
		w   domain.Wallet
		sum decimal.Decimal
	)
	err := s.deps.Store.WithinTx(ctx, func(ctx context.Context, r repo.Repos) error {
		var err error
		if w, err = r.Ledger.GetWallet(ctx, userID, currency); err != nil {
			return err
		}
		sum, err = r.Ledger.Sum(ctx, userID, currency)
		return err
	})
	if err != nil {
		return domain.Wallet{}, fmt.Errorf("service.RewardService.Reconcile: %w", err)
	}
	if !w.Balance.Equal(sum) {
		s.deps.Logger.ErrorContext(ctx, "wallet diverged from ledger",
			"user_id", userID.String(), "currency", string(currency),
			"balance", w.Balance.String(), "ledger_sum", sum.String())
		return w, fmt.Errorf("service.RewardService.Reconcile: %w: balance %s, ledger %s",
			domain.ErrLedgerDivergence, w.Balance, sum)
	}
	return w, nil
}

// ListOptions returns the active redemption catalogue, cheapest first.
func (s *RewardService) ListOptions(ctx context.Context) ([]domain.RedemptionOption, error) {
	var opts []domain.RedemptionOption
	err := s.deps.Store.WithinTx(ctx, func(ctx context.Context, r repo.Repos) error {
		var err error
		opts, err = r.Rewards.ListOptions(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("service.RewardService.ListOptions: %w", err)
	}
	return opts, nil
}

// ListRedemptions returns the vouchers issued to a user, newest first.
func (s *RewardService) ListRedemptions(ctx context.Context, userID uuid.UUID) ([]domain.Redemption, error) {
	var reds []domain.Redemption
	err := s.deps.Store.WithinTx(ctx, func(ctx context.Context, r repo.Repos) error {
		var err error
		reds, err = r.Rewards.ListRedemptions(ctx, userID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("service.RewardService.ListRedemptions: %w", err)
	}
	return reds, nil
}

// SetRate creates or replaces a named conversion rate. Callers gate it to
// administrators.
func (s *RewardService) SetRate(ctx context.Context, rate domain.ConversionRate) (domain.ConversionRate, error) {
	rate.Name = strings.ToUpper(strings.TrimSpace(rate.Name))
	if rate.Name == "" {
		return domain.ConversionRate{}, fmt.Errorf("service.RewardService.SetRate: %w: name is required", domain.ErrValidation)
	}
	if rate.Rate.IsNegative() {
		return domain.ConversionRate{}, fmt.Errorf("service.RewardService.SetRate: %w: rate must not be negative", domain.ErrValidation)
	}
	if !rate.Rate.Equal(rate.Rate.Truncate(domain.RatePlaces)) || rate.Rate.GreaterThanOrEqual(domain.RateLimit) {
		return domain.ConversionRate{}, fmt.Errorf("service.RewardService.SetRate: %w: rate allows %d decimal places and must be below %s",
			domain.ErrValidation, domain.RatePlaces, domain.RateLimit)
	}

	var saved domain.ConversionRate
	err := s.deps.Store.WithinTx(ctx, func(ctx context.Context, r repo.Repos) error {
		var err error
		saved, err = r.Rates.Upsert(ctx, rate)
		return err
	})
	if err != nil {
		return domain.ConversionRate{}, fmt.Errorf("service.RewardService.SetRate: %w", err)
	}
	s.deps.Logger.InfoContext(ctx, "conversion rate set", "name", saved.Name, "rate", saved.Rate.String(), "active", saved.Active)
	return saved, nil
}

