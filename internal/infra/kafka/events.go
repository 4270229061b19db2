package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/verisafe/account-integrity/internal/core/domain"
	"github.com/verisafe/account-integrity/internal/core/port"
	"github.com/verisafe/account-integrity/internal/infra/config"
)

const schemaVersion = "1.0"

// AlertPublisher implements port.AlertPublisher using Kafka.
type AlertPublisher struct {
	producer *Producer
	logger   *zap.Logger
	appCfg   config.AppSettings
}

// NewAlertPublisher constructs a Kafka-backed alert publisher.
func NewAlertPublisher(producer *Producer, appCfg config.AppSettings, logger *zap.Logger) *AlertPublisher {
	return &AlertPublisher{producer: producer, appCfg: appCfg, logger: logger}
}

type envelopeMetadata map[string]string

type eventEnvelope struct {
	EventID   string           `json:"event_id"`
	EventType string           `json:"event_type"`
	Subject   string           `json:"subject,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
	Version   string           `json:"version"`
	Payload   any              `json:"payload"`
	Metadata  envelopeMetadata `json:"metadata,omitempty"`
}

func (p *AlertPublisher) publish(ctx context.Context, eventID, eventType, subject string, ts time.Time, payload any) error {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	id := eventID
	if id == "" {
		id = uuid.NewString()
	}

	metadata := envelopeMetadata{
		"service":     p.appCfg.Name,
		"environment": p.appCfg.Env,
	}

	envelope := eventEnvelope{
		EventID:   id,
		EventType: eventType,
		Subject:   subject,
		Timestamp: ts.UTC(),
		Version:   schemaVersion,
		Payload:   payload,
		Metadata:  metadata,
	}

	bytes, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: p.producer.TopicName(eventType),
		Key:   sarama.StringEncoder(subject),
		Value: sarama.ByteEncoder(bytes),
	}

	select {
	case p.producer.Producer().Input() <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PublishLoginBlocked publishes security.login.blocked events.
func (p *AlertPublisher) PublishLoginBlocked(ctx context.Context, event domain.LoginBlockedEvent) error {
	payload := struct {
		Email          string    `json:"email"`
		IPAddress      string    `json:"ip_address,omitempty"`
		UserAgent      string    `json:"user_agent,omitempty"`
		AttemptCount   int       `json:"attempt_count"`
		Severity       string    `json:"severity"`
		AlreadyBlocked bool      `json:"already_blocked"`
		BlockedUntil   time.Time `json:"blocked_until"`
		OccurredAt     time.Time `json:"occurred_at"`
	}{
		Email:          event.Email,
		IPAddress:      event.IPAddress,
		UserAgent:      event.UserAgent,
		AttemptCount:   event.AttemptCount,
		Severity:       string(event.Severity),
		AlreadyBlocked: event.AlreadyBlocked,
		BlockedUntil:   event.BlockedUntil.UTC(),
		OccurredAt:     event.OccurredAt.UTC(),
	}

	return p.publish(ctx, event.EventID, "security.login.blocked", event.Email, event.OccurredAt, payload)
}

// PublishPaymentFailed publishes payment.failed events.
func (p *AlertPublisher) PublishPaymentFailed(ctx context.Context, event domain.PaymentFailedEvent) error {
	payload := struct {
		TransactionID string    `json:"transaction_id"`
		Gateway       string    `json:"gateway"`
		UserID        string    `json:"user_id,omitempty"`
		Reason        string    `json:"reason"`
		OccurredAt    time.Time `json:"occurred_at"`
	}{
		TransactionID: event.TransactionID,
		Gateway:       string(event.Gateway),
		UserID:        event.UserID,
		Reason:        event.Reason,
		OccurredAt:    event.OccurredAt.UTC(),
	}

	return p.publish(ctx, event.EventID, "payment.failed", event.TransactionID, event.OccurredAt, payload)
}

// PublishPaymentCredited publishes payment.credited events.
func (p *AlertPublisher) PublishPaymentCredited(ctx context.Context, event domain.PaymentCreditedEvent) error {
	payload := struct {
		TransactionID string    `json:"transaction_id"`
		Gateway       string    `json:"gateway"`
		UserID        string    `json:"user_id"`
		Tier          string    `json:"tier"`
		Points        int       `json:"points"`
		Amount        int64     `json:"amount"`
		Currency      string    `json:"currency"`
		OccurredAt    time.Time `json:"occurred_at"`
	}{
		TransactionID: event.TransactionID,
		Gateway:       string(event.Gateway),
		UserID:        event.UserID,
		Tier:          string(event.Tier),
		Points:        event.Points,
		Amount:        event.Amount,
		Currency:      event.Currency,
		OccurredAt:    event.OccurredAt.UTC(),
	}

	return p.publish(ctx, event.EventID, "payment.credited", event.TransactionID, event.OccurredAt, payload)
}

var _ port.AlertPublisher = (*AlertPublisher)(nil)
