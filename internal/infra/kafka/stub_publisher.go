package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/verisafe/account-integrity/internal/core/domain"
	"github.com/verisafe/account-integrity/internal/core/port"
	"github.com/verisafe/account-integrity/internal/infra/logger"
)

// StubPublisher logs alerts instead of sending them to Kafka. Useful for
// development environments without a broker.
type StubPublisher struct {
	logger *zap.Logger
}

// NewStubPublisher constructs a development-friendly alert publisher.
func NewStubPublisher(logger *zap.Logger) *StubPublisher {
	return &StubPublisher{logger: logger}
}

func (p *StubPublisher) logEvent(eventType, subject string, at time.Time, payload any) {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	p.logger.Info("Stub alert published",
		zap.String("event_type", eventType),
		zap.String("subject", subject),
		zap.Time("timestamp", at.UTC()),
		zap.Any("payload", payload),
	)
}

// PublishLoginBlocked logs security.login.blocked events.
func (p *StubPublisher) PublishLoginBlocked(_ context.Context, event domain.LoginBlockedEvent) error {
	payload := map[string]any{
		"email":           logger.MaskEmail(event.Email),
		"ip_address":      logger.MaskIP(event.IPAddress),
		"attempt_count":   event.AttemptCount,
		"severity":        string(event.Severity),
		"already_blocked": event.AlreadyBlocked,
		"blocked_until":   event.BlockedUntil,
	}
	p.logEvent("security.login.blocked", logger.MaskEmail(event.Email), event.OccurredAt, payload)
	return nil
}

// PublishPaymentFailed logs payment.failed events.
func (p *StubPublisher) PublishPaymentFailed(_ context.Context, event domain.PaymentFailedEvent) error {
	payload := map[string]any{
		"transaction_id": event.TransactionID,
		"gateway":        string(event.Gateway),
		"user_id":        event.UserID,
		"reason":         event.Reason,
	}
	p.logEvent("payment.failed", event.TransactionID, event.OccurredAt, payload)
	return nil
}

// PublishPaymentCredited logs payment.credited events.
func (p *StubPublisher) PublishPaymentCredited(_ context.Context, event domain.PaymentCreditedEvent) error {
	payload := map[string]any{
		"transaction_id": event.TransactionID,
		"gateway":        string(event.Gateway),
		"user_id":        event.UserID,
		"tier":           string(event.Tier),
		"points":         event.Points,
		"amount":         event.Amount,
		"currency":       event.Currency,
	}
	p.logEvent("payment.credited", event.TransactionID, event.OccurredAt, payload)
	return nil
}

var _ port.AlertPublisher = (*StubPublisher)(nil)
