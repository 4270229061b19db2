package domain

import "time"

// LoginBlockedEvent is emitted when the limiter blocks an email, and again
// (deduplicated) when a blocked email keeps hammering the login path.
type LoginBlockedEvent struct {
	EventID        string
	Email          string
	IPAddress      string
	UserAgent      string
	AttemptCount   int
	Severity       AlertSeverity
	AlreadyBlocked bool
	BlockedUntil   time.Time
	OccurredAt     time.Time
}

// PaymentFailedEvent is emitted when gateway verification rejects a
// transaction or the verification call itself fails.
type PaymentFailedEvent struct {
	EventID       string
	TransactionID string
	Gateway       Gateway
	UserID        string
	Reason        string
	OccurredAt    time.Time
}

// PaymentCreditedEvent is emitted after the atomic record-and-credit commit.
type PaymentCreditedEvent struct {
	EventID       string
	TransactionID string
	Gateway       Gateway
	UserID        string
	Tier          PlanTier
	Points        int
	Amount        int64
	Currency      string
	OccurredAt    time.Time
}
