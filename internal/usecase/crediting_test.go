package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/verisafe/account-integrity/internal/core/domain"
	"github.com/verisafe/account-integrity/internal/core/port"
	"github.com/verisafe/account-integrity/internal/repository"
)

type stubPayments struct {
	records       map[string]*domain.PaymentRecord
	pendingCalls  []string
	failedCalls   []string
	getErr        error
	createErr     error
	markFailedErr error
}

func newStubPayments() *stubPayments {
	return &stubPayments{records: make(map[string]*domain.PaymentRecord)}
}

func (s *stubPayments) GetByTransactionID(_ context.Context, transactionID string) (*domain.PaymentRecord, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	record, ok := s.records[transactionID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *record
	return &copied, nil
}

func (s *stubPayments) CreatePending(_ context.Context, record domain.PaymentRecord) (bool, error) {
	if s.createErr != nil {
		return false, s.createErr
	}
	s.pendingCalls = append(s.pendingCalls, record.TransactionID)
	if _, ok := s.records[record.TransactionID]; ok {
		return false, nil
	}
	record.Status = domain.PaymentStatusPending
	s.records[record.TransactionID] = &record
	return true, nil
}

func (s *stubPayments) MarkFailed(_ context.Context, transactionID, _ string) error {
	if s.markFailedErr != nil {
		return s.markFailedErr
	}
	s.failedCalls = append(s.failedCalls, transactionID)
	if record, ok := s.records[transactionID]; ok && record.Status != domain.PaymentStatusCompleted {
		record.Status = domain.PaymentStatusFailed
	}
	return nil
}

type stubCrediting struct {
	calls []port.TierCredit
	err   error
}

func (s *stubCrediting) RecordCompletionAndCredit(_ context.Context, record domain.PaymentRecord, credit port.TierCredit, _ time.Time) (*domain.AccountLedger, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.calls = append(s.calls, credit)
	return &domain.AccountLedger{
		UserID:           credit.UserID,
		PlanTier:         credit.Tier,
		AggregateBalance: credit.Points,
	}, nil
}

type stubAccounts struct {
	byEmail map[string]*domain.Account
	calls   int
}

func (s *stubAccounts) GetByEmail(_ context.Context, email string) (*domain.Account, error) {
	s.calls++
	account, ok := s.byEmail[email]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return account, nil
}

type stubVerifier struct {
	gateway      domain.Gateway
	verification *domain.Verification
	err          error
	calls        int
}

func (s *stubVerifier) Name() domain.Gateway { return s.gateway }

func (s *stubVerifier) ParseWebhook([]byte) (domain.GatewayEvent, error) {
	return domain.GatewayEvent{}, errors.New("not used")
}

func (s *stubVerifier) VerifyTransaction(context.Context, string) (*domain.Verification, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.verification, nil
}

type capturedEvents struct {
	blocked  []domain.LoginBlockedEvent
	failed   []domain.PaymentFailedEvent
	credited []domain.PaymentCreditedEvent
}

func (c *capturedEvents) PublishLoginBlocked(_ context.Context, event domain.LoginBlockedEvent) error {
	c.blocked = append(c.blocked, event)
	return nil
}

func (c *capturedEvents) PublishPaymentFailed(_ context.Context, event domain.PaymentFailedEvent) error {
	c.failed = append(c.failed, event)
	return nil
}

func (c *capturedEvents) PublishPaymentCredited(_ context.Context, event domain.PaymentCreditedEvent) error {
	c.credited = append(c.credited, event)
	return nil
}

type stubAccountCache struct {
	entries map[string]string
	hits    int
	misses  int
	writes  int
}

func (s *stubAccountCache) GetUserID(_ context.Context, email string) (string, bool, error) {
	if userID, ok := s.entries[email]; ok {
		s.hits++
		return userID, true, nil
	}
	s.misses++
	return "", false, nil
}

func (s *stubAccountCache) SetUserID(_ context.Context, email, userID string, _ time.Duration) error {
	s.writes++
	if s.entries == nil {
		s.entries = make(map[string]string)
	}
	s.entries[email] = userID
	return nil
}

func chargeEvent(gateway domain.Gateway, transactionID string) domain.GatewayEvent {
	return domain.GatewayEvent{
		Gateway:       gateway,
		Kind:          domain.EventChargeCompleted,
		TransactionID: transactionID,
		RawEventType:  "charge.success",
		ReceivedAt:    time.Now().UTC(),
	}
}

func TestHandleGatewayEventCreditsVerifiedCharge(t *testing.T) {
	payments := newStubPayments()
	store := &stubCrediting{}
	accounts := &stubAccounts{byEmail: map[string]*domain.Account{
		"buyer@example.com": {ID: "user-1", Email: "buyer@example.com"},
	}}
	verifier := &stubVerifier{
		gateway: domain.GatewayPaystack,
		verification: &domain.Verification{
			Succeeded:     true,
			Amount:        500000,
			Currency:      "NGN",
			CustomerEmail: "buyer@example.com",
			Tier:          domain.TierStandard,
			Points:        40,
		},
	}
	events := &capturedEvents{}
	svc := NewCreditingService(payments, store, accounts, []port.GatewayClient{verifier}, events, zaptest.NewLogger(t))

	result, err := svc.HandleGatewayEvent(context.Background(), chargeEvent(domain.GatewayPaystack, "PSK-1"))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if result.Outcome != OutcomeCredited {
		t.Fatalf("expected credited, got %s", result.Outcome)
	}
	if result.UserID != "user-1" || result.Tier != domain.TierStandard || result.Points != 40 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.Amount != 500000 || result.Currency != "NGN" {
		t.Fatalf("verification amounts not carried: %+v", result)
	}

	if len(payments.pendingCalls) != 1 {
		t.Fatalf("expected one pending record, got %d", len(payments.pendingCalls))
	}
	if len(store.calls) != 1 {
		t.Fatalf("expected one credit, got %d", len(store.calls))
	}
	if credit := store.calls[0]; credit.UserID != "user-1" || credit.Tier != domain.TierStandard || credit.Points != 40 || !credit.UpgradePlan {
		t.Fatalf("unexpected credit: %+v", credit)
	}
	if len(events.credited) != 1 {
		t.Fatalf("expected one credited event, got %d", len(events.credited))
	}
	if events.credited[0].TransactionID != "PSK-1" || events.credited[0].Points != 40 {
		t.Fatalf("unexpected credited event: %+v", events.credited[0])
	}
}

func TestHandleGatewayEventDuplicateCompleted(t *testing.T) {
	payments := newStubPayments()
	points := 40
	tier := domain.TierStandard
	payments.records["PSK-1"] = &domain.PaymentRecord{
		TransactionID:   "PSK-1",
		UserID:          "user-1",
		Amount:          500000,
		Currency:        "NGN",
		Status:          domain.PaymentStatusCompleted,
		PointsPurchased: &points,
		TierCredited:    &tier,
	}
	store := &stubCrediting{}
	verifier := &stubVerifier{gateway: domain.GatewayPaystack}
	svc := NewCreditingService(payments, store, &stubAccounts{}, []port.GatewayClient{verifier}, nil, zaptest.NewLogger(t))

	result, err := svc.HandleGatewayEvent(context.Background(), chargeEvent(domain.GatewayPaystack, "PSK-1"))
	if !errors.Is(err, ErrDuplicateTransaction) {
		t.Fatalf("expected ErrDuplicateTransaction, got %v", err)
	}
	if result == nil || result.Outcome != OutcomeDuplicate {
		t.Fatalf("expected duplicate result, got %+v", result)
	}
	if result.UserID != "user-1" || result.Points != 40 || result.Tier != domain.TierStandard {
		t.Fatalf("duplicate result missing original details: %+v", result)
	}
	if verifier.calls != 0 {
		t.Fatal("duplicate must not reach the verifier")
	}
	if len(store.calls) != 0 {
		t.Fatal("duplicate must not credit again")
	}
}

func TestHandleGatewayEventVerificationFailure(t *testing.T) {
	payments := newStubPayments()
	verifier := &stubVerifier{
		gateway:      domain.GatewayFlutterwave,
		verification: &domain.Verification{Succeeded: false, GatewayStatus: "failed"},
	}
	events := &capturedEvents{}
	svc := NewCreditingService(payments, &stubCrediting{}, &stubAccounts{}, []port.GatewayClient{verifier}, events, zaptest.NewLogger(t))

	result, err := svc.HandleGatewayEvent(context.Background(), chargeEvent(domain.GatewayFlutterwave, "FLW-9"))
	if !errors.Is(err, ErrVerificationFailed) {
		t.Fatalf("expected ErrVerificationFailed, got %v", err)
	}
	if result == nil || result.Outcome != OutcomeFailed {
		t.Fatalf("expected failed result, got %+v", result)
	}
	if len(payments.failedCalls) != 1 || payments.failedCalls[0] != "FLW-9" {
		t.Fatalf("expected record marked failed, got %v", payments.failedCalls)
	}
	if len(events.failed) != 1 {
		t.Fatalf("expected one failure event, got %d", len(events.failed))
	}
	if events.failed[0].TransactionID != "FLW-9" {
		t.Fatalf("unexpected failure event: %+v", events.failed[0])
	}
}

func TestHandleGatewayEventVerifierErrorCountsAsFailed(t *testing.T) {
	payments := newStubPayments()
	verifier := &stubVerifier{gateway: domain.GatewayPaystack, err: errors.New("connection reset")}
	svc := NewCreditingService(payments, &stubCrediting{}, &stubAccounts{}, []port.GatewayClient{verifier}, nil, zaptest.NewLogger(t))

	_, err := svc.HandleGatewayEvent(context.Background(), chargeEvent(domain.GatewayPaystack, "PSK-2"))
	if !errors.Is(err, ErrVerificationFailed) {
		t.Fatalf("expected ErrVerificationFailed, got %v", err)
	}
	if len(payments.failedCalls) != 1 {
		t.Fatalf("expected record marked failed, got %v", payments.failedCalls)
	}
}

func TestHandleGatewayEventUnknownAccount(t *testing.T) {
	payments := newStubPayments()
	verifier := &stubVerifier{
		gateway: domain.GatewayPaystack,
		verification: &domain.Verification{
			Succeeded:     true,
			CustomerEmail: "stranger@example.com",
			Tier:          domain.TierBasic,
			Points:        10,
		},
	}
	svc := NewCreditingService(payments, &stubCrediting{}, &stubAccounts{}, []port.GatewayClient{verifier}, nil, zaptest.NewLogger(t))

	result, err := svc.HandleGatewayEvent(context.Background(), chargeEvent(domain.GatewayPaystack, "PSK-3"))
	if !errors.Is(err, ErrUnknownAccount) {
		t.Fatalf("expected ErrUnknownAccount, got %v", err)
	}
	if result == nil || result.Outcome != OutcomeFailed {
		t.Fatalf("expected failed result, got %+v", result)
	}
	if len(payments.failedCalls) != 1 {
		t.Fatal("expected record marked failed")
	}
}

func TestHandleGatewayEventIgnoresNonCharge(t *testing.T) {
	payments := newStubPayments()
	verifier := &stubVerifier{gateway: domain.GatewayFlutterwave}
	svc := NewCreditingService(payments, &stubCrediting{}, &stubAccounts{}, []port.GatewayClient{verifier}, nil, zaptest.NewLogger(t))

	for _, kind := range []domain.EventKind{domain.EventTransferPending, domain.EventUnrecognized} {
		result, err := svc.HandleGatewayEvent(context.Background(), domain.GatewayEvent{
			Gateway:       domain.GatewayFlutterwave,
			Kind:          kind,
			TransactionID: "FLW-7",
		})
		if err != nil {
			t.Fatalf("%s: %v", kind, err)
		}
		if result.Outcome != OutcomeIgnored {
			t.Fatalf("%s: expected ignored, got %s", kind, result.Outcome)
		}
	}
	if verifier.calls != 0 {
		t.Fatal("ignored events must not reach the verifier")
	}
	if len(payments.pendingCalls) != 0 {
		t.Fatal("ignored events must not create payment records")
	}
}

func TestHandleGatewayEventUnknownGateway(t *testing.T) {
	verifier := &stubVerifier{gateway: domain.GatewayPaystack}
	svc := NewCreditingService(newStubPayments(), &stubCrediting{}, &stubAccounts{}, []port.GatewayClient{verifier}, nil, zaptest.NewLogger(t))

	_, err := svc.HandleGatewayEvent(context.Background(), chargeEvent(domain.GatewayFlutterwave, "FLW-1"))
	if !errors.Is(err, ErrUnknownGateway) {
		t.Fatalf("expected ErrUnknownGateway, got %v", err)
	}
}

func TestHandleGatewayEventRedeliveryAfterPartialFailure(t *testing.T) {
	// The dual write reports the record already completed; redelivery must
	// settle as a duplicate rather than a second credit.
	payments := newStubPayments()
	store := &stubCrediting{err: repository.ErrAlreadyProcessed}
	accounts := &stubAccounts{byEmail: map[string]*domain.Account{
		"buyer@example.com": {ID: "user-1"},
	}}
	verifier := &stubVerifier{
		gateway: domain.GatewayPaystack,
		verification: &domain.Verification{
			Succeeded:     true,
			CustomerEmail: "buyer@example.com",
			Tier:          domain.TierBasic,
			Points:        10,
		},
	}
	svc := NewCreditingService(payments, store, accounts, []port.GatewayClient{verifier}, nil, zaptest.NewLogger(t))

	result, err := svc.HandleGatewayEvent(context.Background(), chargeEvent(domain.GatewayPaystack, "PSK-4"))
	if !errors.Is(err, ErrDuplicateTransaction) {
		t.Fatalf("expected ErrDuplicateTransaction, got %v", err)
	}
	if result == nil || result.Outcome != OutcomeDuplicate {
		t.Fatalf("expected duplicate result, got %+v", result)
	}
}

func TestResolveAccountReadsThroughCache(t *testing.T) {
	payments := newStubPayments()
	accounts := &stubAccounts{byEmail: map[string]*domain.Account{
		"buyer@example.com": {ID: "user-1"},
	}}
	cache := &stubAccountCache{}
	verifier := &stubVerifier{
		gateway: domain.GatewayPaystack,
		verification: &domain.Verification{
			Succeeded:     true,
			CustomerEmail: "Buyer@Example.com",
			Tier:          domain.TierBasic,
			Points:        10,
		},
	}
	svc := NewCreditingService(payments, &stubCrediting{}, accounts, []port.GatewayClient{verifier}, nil, zaptest.NewLogger(t)).
		WithAccountCache(cache, time.Minute)

	if _, err := svc.HandleGatewayEvent(context.Background(), chargeEvent(domain.GatewayPaystack, "PSK-5")); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	if accounts.calls != 1 || cache.writes != 1 {
		t.Fatalf("expected one store read and one cache write, got reads=%d writes=%d", accounts.calls, cache.writes)
	}

	if _, err := svc.HandleGatewayEvent(context.Background(), chargeEvent(domain.GatewayPaystack, "PSK-6")); err != nil {
		t.Fatalf("second delivery: %v", err)
	}
	if accounts.calls != 1 {
		t.Fatalf("expected cached lookup, store read %d times", accounts.calls)
	}
	if cache.hits != 1 {
		t.Fatalf("expected one cache hit, got %d", cache.hits)
	}
}
