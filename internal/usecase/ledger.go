package usecase

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/verisafe/account-integrity/internal/core/domain"
	"github.com/verisafe/account-integrity/internal/core/port"
	"github.com/verisafe/account-integrity/internal/infra/telemetry"
	"github.com/verisafe/account-integrity/internal/repository"
)

var (
	// ErrNoPointsAvailable indicates no tier in the account's consumption
	// hierarchy holds a balance. An expected outcome, not a system failure.
	ErrNoPointsAvailable = errors.New("no points available")
	// ErrInvalidTier indicates a tier name outside the known set.
	ErrInvalidTier = errors.New("invalid tier")
	// ErrUnknownAccount indicates no ledger exists for the user.
	ErrUnknownAccount = errors.New("unknown account")
)

// BalanceReport is the read-only projection of an account's ledger.
type BalanceReport struct {
	UserID    string
	PlanTier  domain.PlanTier
	PerTier   map[domain.PlanTier]int
	Total     int
	Hierarchy []domain.PlanTier
}

// PointLedgerService owns tier-isolated consumption and crediting over the
// ledger store.
type PointLedgerService struct {
	ledger  port.LedgerRepository
	logger  *zap.Logger
	metrics *telemetry.Metrics
}

// NewPointLedgerService constructs a PointLedgerService.
func NewPointLedgerService(ledger port.LedgerRepository, logger *zap.Logger) *PointLedgerService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PointLedgerService{ledger: ledger, logger: logger}
}

// WithMetrics attaches domain metric collectors.
func (s *PointLedgerService) WithMetrics(metrics *telemetry.Metrics) *PointLedgerService {
	s.metrics = metrics
	return s
}

// Consume debits one point from the first tier in the account's consumption
// hierarchy holding a balance and returns the tier used. Each candidate tier
// is tried with a single conditional decrement, so concurrent consumers can
// never both spend the same point. Tiers below the plan's hierarchy are never
// touched: a business account fails with ErrNoPointsAvailable rather than
// draw from basic points.
func (s *PointLedgerService) Consume(ctx context.Context, userID string) (domain.PlanTier, error) {
	if userID == "" {
		return "", fmt.Errorf("user id is required")
	}

	ledger, err := s.ledger.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", ErrUnknownAccount
		}
		return "", fmt.Errorf("load ledger: %w", err)
	}

	for _, tier := range domain.ConsumptionHierarchy(ledger.PlanTier) {
		consumed, err := s.ledger.ConsumeFrom(ctx, userID, tier)
		if err != nil {
			return "", fmt.Errorf("consume from %s: %w", tier, err)
		}
		if consumed {
			s.metrics.ObserveConsume(string(tier), "consumed")
			return tier, nil
		}
	}

	s.metrics.ObserveConsume(string(ledger.PlanTier), "exhausted")
	return "", ErrNoPointsAvailable
}

// CreditTier adds points to an explicitly named tier. A purchase targets the
// tier the user paid for regardless of their current plan; when the credited
// paid tier outranks the plan, the plan is upgraded, never downgraded.
func (s *PointLedgerService) CreditTier(ctx context.Context, userID string, tier domain.PlanTier, amount int) (*domain.AccountLedger, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	if !tier.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTier, tier)
	}
	if amount <= 0 {
		return nil, fmt.Errorf("credit amount must be positive, got %d", amount)
	}

	if err := s.ledger.Ensure(ctx, userID, domain.TierFree); err != nil {
		return nil, fmt.Errorf("ensure ledger: %w", err)
	}

	updated, err := s.ledger.CreditTier(ctx, userID, tier, amount, tier.IsPaid())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUnknownAccount
		}
		return nil, fmt.Errorf("credit %s tier: %w", tier, err)
	}

	s.logger.Info("tier credited",
		zap.String("user_id", userID),
		zap.String("tier", string(tier)),
		zap.Int("amount", amount),
		zap.Int("aggregate_balance", updated.AggregateBalance),
	)

	return updated, nil
}

// Balance returns the per-tier balances, the aggregate, and the account's
// consumption hierarchy. No side effects.
func (s *PointLedgerService) Balance(ctx context.Context, userID string) (*BalanceReport, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}

	ledger, err := s.ledger.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUnknownAccount
		}
		return nil, fmt.Errorf("load ledger: %w", err)
	}

	return &BalanceReport{
		UserID:   ledger.UserID,
		PlanTier: ledger.PlanTier,
		PerTier: map[domain.PlanTier]int{
			domain.TierFree:     ledger.FreePoints,
			domain.TierBasic:    ledger.BasicPoints,
			domain.TierStandard: ledger.StandardPoints,
			domain.TierBusiness: ledger.BusinessPoints,
		},
		Total:     ledger.AggregateBalance,
		Hierarchy: domain.ConsumptionHierarchy(ledger.PlanTier),
	}, nil
}
