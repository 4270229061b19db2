package domain

import "time"

// LoginAttempt mirrors the persisted tracking window for failed logins
// against a single email address. At most one active window exists per email
// at any instant; expired windows are superseded, not mutated.
type LoginAttempt struct {
	ID           string
	Email        string
	IPAddress    string
	UserAgent    string
	AttemptCount int
	FirstAttempt time.Time
	LastAttempt  time.Time
	BlockedUntil *time.Time
	IsActive     bool
	CreatedAt    time.Time
}

// Blocked reports whether the window carries an active block at the given
// instant.
func (a LoginAttempt) Blocked(now time.Time) bool {
	return a.BlockedUntil != nil && now.Before(*a.BlockedUntil)
}

// BlockStatus is the read-only answer the authentication path consults
// before touching credential verification.
type BlockStatus struct {
	Blocked           bool
	BlockedUntil      *time.Time
	RemainingAttempts int
}

// AlertSeverity grades limiter alerts for the notification sink. Severity is
// advisory only; the block decision is governed solely by the threshold.
type AlertSeverity string

const (
	SeverityMedium   AlertSeverity = "medium"
	SeverityHigh     AlertSeverity = "high"
	SeverityCritical AlertSeverity = "critical"
)

// SeverityForAttempts classifies an attempt count for alerting.
func SeverityForAttempts(count int) AlertSeverity {
	switch {
	case count >= 10:
		return SeverityCritical
	case count >= 5:
		return SeverityHigh
	default:
		return SeverityMedium
	}
}
