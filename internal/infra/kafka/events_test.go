package kafka

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap/zaptest"

	"github.com/verisafe/account-integrity/internal/core/domain"
	"github.com/verisafe/account-integrity/internal/infra/config"
)

type fakeAsyncProducer struct {
	input  chan *sarama.ProducerMessage
	errors chan *sarama.ProducerError
}

func newFakeAsyncProducer() *fakeAsyncProducer {
	return &fakeAsyncProducer{
		input:  make(chan *sarama.ProducerMessage, 1),
		errors: make(chan *sarama.ProducerError, 1),
	}
}

func (f *fakeAsyncProducer) AsyncClose() {}

func (f *fakeAsyncProducer) Close() error { return nil }

func (f *fakeAsyncProducer) Input() chan<- *sarama.ProducerMessage { return f.input }

func (f *fakeAsyncProducer) Successes() <-chan *sarama.ProducerMessage { return nil }

func (f *fakeAsyncProducer) Errors() <-chan *sarama.ProducerError { return f.errors }

func (f *fakeAsyncProducer) IsTransactional() bool { return false }

func (f *fakeAsyncProducer) BeginTxn() error { return nil }

func (f *fakeAsyncProducer) CommitTxn() error { return nil }

func (f *fakeAsyncProducer) AbortTxn() error { return nil }

func (f *fakeAsyncProducer) AddOffsetsToTxn(offsets map[string][]*sarama.PartitionOffsetMetadata, groupID string) error {
	return nil
}

func (f *fakeAsyncProducer) AddMessageToTxn(msg *sarama.ConsumerMessage, groupID string, metadata *string) error {
	return nil
}

func (f *fakeAsyncProducer) TxnStatus() sarama.ProducerTxnStatusFlag {
	return sarama.ProducerTxnStatusFlag(0)
}

func newTestPublisher(t *testing.T, asyncProducer sarama.AsyncProducer) *AlertPublisher {
	t.Helper()

	producer := &Producer{
		producer: asyncProducer,
		logger:   zaptest.NewLogger(t),
		cfg: config.KafkaSettings{
			TopicPrefix: "acct",
		},
		errs: make(chan error, 1),
		quit: make(chan struct{}),
	}

	return NewAlertPublisher(producer, config.AppSettings{
		Name: "account-integrity",
		Env:  "test",
	}, zaptest.NewLogger(t))
}

func TestPublishLoginBlocked(t *testing.T) {
	asyncProducer := newFakeAsyncProducer()
	publisher := newTestPublisher(t, asyncProducer)

	occurredAt := time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)
	event := domain.LoginBlockedEvent{
		EventID:      "event-123",
		Email:        "victim@example.com",
		IPAddress:    "203.0.113.7",
		AttemptCount: 5,
		Severity:     domain.SeverityHigh,
		BlockedUntil: occurredAt.Add(15 * time.Minute),
		OccurredAt:   occurredAt,
	}

	if err := publisher.PublishLoginBlocked(context.Background(), event); err != nil {
		t.Fatalf("PublishLoginBlocked returned error: %v", err)
	}

	select {
	case msg := <-asyncProducer.input:
		if msg.Topic != "acct.security.login.blocked" {
			t.Fatalf("unexpected topic: %s", msg.Topic)
		}

		bytes, err := msg.Value.Encode()
		if err != nil {
			t.Fatalf("Value.Encode returned error: %v", err)
		}

		var envelope map[string]any
		if err := json.Unmarshal(bytes, &envelope); err != nil {
			t.Fatalf("failed to unmarshal envelope: %v", err)
		}

		if got := envelope["event_type"]; got != "security.login.blocked" {
			t.Fatalf("unexpected event_type: %v", got)
		}

		if got := envelope["subject"]; got != event.Email {
			t.Fatalf("unexpected subject: %v", got)
		}

		timestamp, ok := envelope["timestamp"].(string)
		if !ok {
			t.Fatalf("timestamp not a string: %T", envelope["timestamp"])
		}
		if timestamp != occurredAt.Format(time.RFC3339Nano) {
			t.Fatalf("unexpected timestamp: %s", timestamp)
		}

		payload, ok := envelope["payload"].(map[string]any)
		if !ok {
			t.Fatalf("payload not a map: %T", envelope["payload"])
		}

		if got := payload["email"]; got != event.Email {
			t.Fatalf("unexpected email: %v", got)
		}

		if got := payload["severity"]; got != string(domain.SeverityHigh) {
			t.Fatalf("unexpected severity: %v", got)
		}

		attempts, ok := payload["attempt_count"].(float64)
		if !ok {
			t.Fatalf("attempt_count not numeric: %T", payload["attempt_count"])
		}
		if int(attempts) != event.AttemptCount {
			t.Fatalf("unexpected attempt_count: %v", attempts)
		}

		envelopeMetadata, ok := envelope["metadata"].(map[string]any)
		if !ok {
			t.Fatalf("envelope metadata not a map: %T", envelope["metadata"])
		}
		if envelopeMetadata["service"] != "account-integrity" {
			t.Fatalf("unexpected metadata service: %v", envelopeMetadata["service"])
		}
		if envelopeMetadata["environment"] != "test" {
			t.Fatalf("unexpected metadata environment: %v", envelopeMetadata["environment"])
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message on async producer input channel")
	}
}

func TestPublishPaymentCredited(t *testing.T) {
	asyncProducer := newFakeAsyncProducer()
	publisher := newTestPublisher(t, asyncProducer)

	occurredAt := time.Date(2026, 3, 14, 11, 0, 0, 0, time.UTC)
	event := domain.PaymentCreditedEvent{
		EventID:       "evt-001",
		TransactionID: "PSK-20260314-0001",
		Gateway:       domain.GatewayPaystack,
		UserID:        "user-789",
		Tier:          domain.TierStandard,
		Points:        40,
		Amount:        250000,
		Currency:      "NGN",
		OccurredAt:    occurredAt,
	}

	if err := publisher.PublishPaymentCredited(context.Background(), event); err != nil {
		t.Fatalf("PublishPaymentCredited returned error: %v", err)
	}

	select {
	case msg := <-asyncProducer.input:
		if msg.Topic != "acct.payment.credited" {
			t.Fatalf("unexpected topic: %s", msg.Topic)
		}

		keyBytes, err := msg.Key.Encode()
		if err != nil {
			t.Fatalf("Key.Encode returned error: %v", err)
		}
		if string(keyBytes) != event.TransactionID {
			t.Fatalf("unexpected message key: %s", keyBytes)
		}

		bytes, err := msg.Value.Encode()
		if err != nil {
			t.Fatalf("Value.Encode returned error: %v", err)
		}

		var envelope map[string]any
		if err := json.Unmarshal(bytes, &envelope); err != nil {
			t.Fatalf("failed to unmarshal envelope: %v", err)
		}

		if got := envelope["event_type"]; got != "payment.credited" {
			t.Fatalf("unexpected event_type: %v", got)
		}

		payload, ok := envelope["payload"].(map[string]any)
		if !ok {
			t.Fatalf("payload not a map: %T", envelope["payload"])
		}

		if got := payload["transaction_id"]; got != event.TransactionID {
			t.Fatalf("unexpected transaction_id: %v", got)
		}
		if got := payload["gateway"]; got != string(domain.GatewayPaystack) {
			t.Fatalf("unexpected gateway: %v", got)
		}
		if got := payload["tier"]; got != string(domain.TierStandard) {
			t.Fatalf("unexpected tier: %v", got)
		}

		points, ok := payload["points"].(float64)
		if !ok {
			t.Fatalf("points not numeric: %T", payload["points"])
		}
		if int(points) != event.Points {
			t.Fatalf("unexpected points: %v", points)
		}

		amount, ok := payload["amount"].(float64)
		if !ok {
			t.Fatalf("amount not numeric: %T", payload["amount"])
		}
		if int64(amount) != event.Amount {
			t.Fatalf("unexpected amount: %v", amount)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message on async producer input channel")
	}
}
