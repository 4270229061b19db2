package domain

import (
	"fmt"
	"time"
)

// Gateway identifies a supported payment gateway.
type Gateway string

const (
	GatewayPaystack    Gateway = "paystack"
	GatewayFlutterwave Gateway = "flutterwave"
)

// ParseGateway validates a gateway name from a request path or payload.
func ParseGateway(raw string) (Gateway, error) {
	switch Gateway(raw) {
	case GatewayPaystack:
		return GatewayPaystack, nil
	case GatewayFlutterwave:
		return GatewayFlutterwave, nil
	default:
		return "", fmt.Errorf("unknown gateway %q", raw)
	}
}

// PaymentStatus enumerates payment record states.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
)

// PaymentRecord mirrors the persisted payment row. TransactionID doubles as
// the idempotency key: every delivery of the same gateway event references
// the same row.
type PaymentRecord struct {
	TransactionID   string
	UserID          string
	Amount          int64
	Currency        string
	Gateway         Gateway
	Status          PaymentStatus
	PointsPurchased *int
	TierCredited    *PlanTier
	ProcessedAt     *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// EventKind classifies a parsed gateway webhook before the crediting
// pipeline sees it.
type EventKind string

const (
	// EventChargeCompleted is a charge the gateway claims succeeded; the
	// claim still goes through verification before any write.
	EventChargeCompleted EventKind = "charge.completed"
	// EventTransferPending is a bank-transfer style event that has not
	// reached a successful state; acknowledged and ignored.
	EventTransferPending EventKind = "transfer.pending"
	// EventUnrecognized covers event types this core does not act on.
	EventUnrecognized EventKind = "unrecognized"
)

// GatewayEvent is the typed form of an inbound webhook. Parsers in the
// gateway layer produce it; the pipeline never branches on raw JSON. Only
// TransactionID is trusted from the payload, and only as a lookup key for
// verification.
type GatewayEvent struct {
	Gateway       Gateway
	Kind          EventKind
	TransactionID string
	RawEventType  string
	ClaimedEmail  string
	ReceivedAt    time.Time
}

// Verification is the gateway's authoritative answer about a transaction.
// Amount, currency, email, tier, and points all come from here, never from
// the inbound payload.
type Verification struct {
	Succeeded     bool
	Amount        int64
	Currency      string
	CustomerEmail string
	Tier          PlanTier
	Points        int
	GatewayStatus string
}
