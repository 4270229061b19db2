package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/verisafe/account-integrity/internal/core/domain"
	"github.com/verisafe/account-integrity/internal/core/port"
	"github.com/verisafe/account-integrity/internal/infra/logger"
	"github.com/verisafe/account-integrity/internal/infra/telemetry"
	"github.com/verisafe/account-integrity/internal/repository"
)

var (
	// ErrDuplicateTransaction indicates the transaction was already credited.
	// Gateways deliver webhooks at least once; this is the expected answer to
	// a redelivery, not a failure.
	ErrDuplicateTransaction = errors.New("transaction already credited")
	// ErrVerificationFailed indicates the gateway rejected the transaction or
	// the verification call itself failed.
	ErrVerificationFailed = errors.New("gateway verification failed")
	// ErrUnknownGateway indicates no verifier is registered for the gateway.
	ErrUnknownGateway = errors.New("unknown gateway")
)

// CreditOutcome classifies the result of handling a gateway event.
type CreditOutcome string

const (
	OutcomeCredited  CreditOutcome = "credited"
	OutcomeIgnored   CreditOutcome = "ignored"
	OutcomeDuplicate CreditOutcome = "duplicate"
	OutcomeFailed    CreditOutcome = "failed"
)

// CreditResult reports what a gateway event produced.
type CreditResult struct {
	Outcome       CreditOutcome
	TransactionID string
	UserID        string
	Tier          domain.PlanTier
	Points        int
	Amount        int64
	Currency      string
}

const defaultVerifyTimeout = 30 * time.Second

// CreditingService turns verified gateway events into exactly-once ledger
// credits. Verification is the only trusted source of amount, tier, and
// customer identity; the inbound payload contributes nothing but the
// transaction id.
type CreditingService struct {
	payments      port.PaymentRepository
	crediting     port.CreditingStore
	accounts      port.AccountRepository
	cache         port.AccountCache
	verifiers     map[domain.Gateway]port.GatewayClient
	events        port.AlertPublisher
	logger        *zap.Logger
	metrics       *telemetry.Metrics
	now           func() time.Time
	verifyTimeout time.Duration
	cacheTTL      time.Duration
}

// NewCreditingService constructs a CreditingService.
func NewCreditingService(
	payments port.PaymentRepository,
	crediting port.CreditingStore,
	accounts port.AccountRepository,
	verifiers []port.GatewayClient,
	events port.AlertPublisher,
	log *zap.Logger,
) *CreditingService {
	if log == nil {
		log = zap.NewNop()
	}

	byName := make(map[domain.Gateway]port.GatewayClient, len(verifiers))
	for _, verifier := range verifiers {
		if verifier != nil {
			byName[verifier.Name()] = verifier
		}
	}

	return &CreditingService{
		payments:      payments,
		crediting:     crediting,
		accounts:      accounts,
		verifiers:     byName,
		events:        events,
		logger:        log,
		now:           func() time.Time { return time.Now().UTC() },
		verifyTimeout: defaultVerifyTimeout,
	}
}

// WithAccountCache attaches a short-TTL email→user-id cache.
func (s *CreditingService) WithAccountCache(cache port.AccountCache, ttl time.Duration) *CreditingService {
	s.cache = cache
	s.cacheTTL = ttl
	return s
}

// WithMetrics attaches domain metric collectors.
func (s *CreditingService) WithMetrics(metrics *telemetry.Metrics) *CreditingService {
	s.metrics = metrics
	return s
}

// WithVerifyTimeout overrides the bound on the gateway verification call.
func (s *CreditingService) WithVerifyTimeout(timeout time.Duration) *CreditingService {
	if timeout > 0 {
		s.verifyTimeout = timeout
	}
	return s
}

// WithClock allows injection of a custom clock (primarily for testing).
func (s *CreditingService) WithClock(now func() time.Time) *CreditingService {
	if now != nil {
		s.now = now
	}
	return s
}

// HandleGatewayEvent runs the crediting protocol for one parsed webhook
// event. It is safely re-entrant: redelivering the same event after any
// partial failure either completes the credit or reports a duplicate, never
// a second credit.
func (s *CreditingService) HandleGatewayEvent(ctx context.Context, event domain.GatewayEvent) (*CreditResult, error) {
	if event.Kind != domain.EventChargeCompleted {
		// Transfer-pending and unrecognized events are acknowledged without
		// touching the verifier or the stores.
		s.metrics.ObserveCredit(string(event.Gateway), string(OutcomeIgnored))
		s.logger.Info("gateway event ignored",
			zap.String("gateway", string(event.Gateway)),
			zap.String("event_type", event.RawEventType),
			zap.String("kind", string(event.Kind)),
		)
		return &CreditResult{Outcome: OutcomeIgnored, TransactionID: event.TransactionID}, nil
	}

	if event.TransactionID == "" {
		return nil, fmt.Errorf("charge event without transaction id")
	}

	existing, err := s.payments.GetByTransactionID(ctx, event.TransactionID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("lookup payment record: %w", err)
	}
	if existing != nil && existing.Status == domain.PaymentStatusCompleted {
		s.metrics.ObserveCredit(string(event.Gateway), string(OutcomeDuplicate))
		return s.duplicateResult(existing), ErrDuplicateTransaction
	}

	if _, err := s.payments.CreatePending(ctx, domain.PaymentRecord{
		TransactionID: event.TransactionID,
		Gateway:       event.Gateway,
		Currency:      "",
	}); err != nil {
		return nil, fmt.Errorf("record pending payment: %w", err)
	}

	verifier, ok := s.verifiers[event.Gateway]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownGateway, event.Gateway)
	}

	verifyCtx, cancel := context.WithTimeout(ctx, s.verifyTimeout)
	verification, err := verifier.VerifyTransaction(verifyCtx, event.TransactionID)
	cancel()
	if err != nil {
		// A timed-out or errored verification counts as failed; the gateway
		// will redeliver and the pending record lets the retry converge.
		return s.failTransaction(ctx, event, "", fmt.Sprintf("verification call failed: %v", err))
	}
	if !verification.Succeeded {
		return s.failTransaction(ctx, event, "", fmt.Sprintf("gateway reported status %q", verification.GatewayStatus))
	}

	userID, err := s.resolveAccount(ctx, verification.CustomerEmail)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			result, ferr := s.failTransaction(ctx, event, "", "no account matches verified customer email")
			if ferr != nil && !errors.Is(ferr, ErrVerificationFailed) {
				return result, ferr
			}
			return result, ErrUnknownAccount
		}
		return nil, fmt.Errorf("resolve account: %w", err)
	}

	points := verification.Points
	record := domain.PaymentRecord{
		TransactionID:   event.TransactionID,
		UserID:          userID,
		Amount:          verification.Amount,
		Currency:        verification.Currency,
		Gateway:         event.Gateway,
		Status:          domain.PaymentStatusCompleted,
		PointsPurchased: &points,
		TierCredited:    &verification.Tier,
	}
	credit := port.TierCredit{
		UserID:      userID,
		Tier:        verification.Tier,
		Points:      verification.Points,
		UpgradePlan: verification.Tier.IsPaid(),
	}

	processedAt := s.now()
	updated, err := s.crediting.RecordCompletionAndCredit(ctx, record, credit, processedAt)
	if err != nil {
		if errors.Is(err, repository.ErrAlreadyProcessed) {
			s.metrics.ObserveCredit(string(event.Gateway), string(OutcomeDuplicate))
			return &CreditResult{Outcome: OutcomeDuplicate, TransactionID: event.TransactionID, UserID: userID}, ErrDuplicateTransaction
		}
		return nil, fmt.Errorf("record and credit: %w", err)
	}

	s.publishCredited(ctx, event, userID, verification)
	s.metrics.ObserveCredit(string(event.Gateway), string(OutcomeCredited))
	s.metrics.ObserveCreditedPoints(string(verification.Tier), verification.Points)

	s.logger.Info("payment credited",
		zap.String("transaction_id", event.TransactionID),
		zap.String("gateway", string(event.Gateway)),
		zap.String("user_id", userID),
		zap.String("tier", string(verification.Tier)),
		zap.Int("points", verification.Points),
		zap.Int("aggregate_balance", updated.AggregateBalance),
	)

	return &CreditResult{
		Outcome:       OutcomeCredited,
		TransactionID: event.TransactionID,
		UserID:        userID,
		Tier:          verification.Tier,
		Points:        verification.Points,
		Amount:        verification.Amount,
		Currency:      verification.Currency,
	}, nil
}

func (s *CreditingService) resolveAccount(ctx context.Context, email string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(email))
	if normalized == "" {
		return "", repository.ErrNotFound
	}

	if s.cache != nil {
		if userID, hit, err := s.cache.GetUserID(ctx, normalized); err != nil {
			s.logger.Warn("account cache read failed", zap.Error(err))
		} else if hit {
			return userID, nil
		}
	}

	account, err := s.accounts.GetByEmail(ctx, normalized)
	if err != nil {
		return "", err
	}

	if s.cache != nil && s.cacheTTL > 0 {
		if err := s.cache.SetUserID(ctx, normalized, account.ID, s.cacheTTL); err != nil {
			s.logger.Warn("account cache write failed", zap.Error(err))
		}
	}

	return account.ID, nil
}

func (s *CreditingService) failTransaction(ctx context.Context, event domain.GatewayEvent, userID, reason string) (*CreditResult, error) {
	if err := s.payments.MarkFailed(ctx, event.TransactionID, userID); err != nil {
		return nil, fmt.Errorf("mark payment failed: %w", err)
	}

	s.publishFailed(ctx, event, userID, reason)
	s.metrics.ObserveCredit(string(event.Gateway), string(OutcomeFailed))

	s.logger.Warn("payment verification failed",
		zap.String("transaction_id", event.TransactionID),
		zap.String("gateway", string(event.Gateway)),
		zap.String("reason", reason),
	)

	return &CreditResult{Outcome: OutcomeFailed, TransactionID: event.TransactionID, UserID: userID},
		fmt.Errorf("%w: %s", ErrVerificationFailed, reason)
}

func (s *CreditingService) publishFailed(ctx context.Context, event domain.GatewayEvent, userID, reason string) {
	if s.events == nil {
		return
	}

	if err := s.events.PublishPaymentFailed(ctx, domain.PaymentFailedEvent{
		EventID:       uuid.NewString(),
		TransactionID: event.TransactionID,
		Gateway:       event.Gateway,
		UserID:        userID,
		Reason:        reason,
		OccurredAt:    s.now(),
	}); err != nil {
		s.logger.Warn("publish payment failed event failed", zap.Error(err))
	}
}

func (s *CreditingService) publishCredited(ctx context.Context, event domain.GatewayEvent, userID string, verification *domain.Verification) {
	if s.events == nil {
		return
	}

	if err := s.events.PublishPaymentCredited(ctx, domain.PaymentCreditedEvent{
		EventID:       uuid.NewString(),
		TransactionID: event.TransactionID,
		Gateway:       event.Gateway,
		UserID:        userID,
		Tier:          verification.Tier,
		Points:        verification.Points,
		Amount:        verification.Amount,
		Currency:      verification.Currency,
		OccurredAt:    s.now(),
	}); err != nil {
		s.logger.Warn("publish payment credited event failed",
			zap.String("customer_email", logger.MaskEmail(verification.CustomerEmail)),
			zap.Error(err),
		)
	}
}

func (s *CreditingService) duplicateResult(record *domain.PaymentRecord) *CreditResult {
	result := &CreditResult{
		Outcome:       OutcomeDuplicate,
		TransactionID: record.TransactionID,
		UserID:        record.UserID,
		Amount:        record.Amount,
		Currency:      record.Currency,
	}
	if record.TierCredited != nil {
		result.Tier = *record.TierCredited
	}
	if record.PointsPurchased != nil {
		result.Points = *record.PointsPurchased
	}
	return result
}
