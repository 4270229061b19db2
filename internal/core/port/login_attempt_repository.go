package port

import (
	"context"
	"time"

	"github.com/verisafe/account-integrity/internal/core/domain"
)

// LoginAttemptRepository persists failed-login tracking windows. Increment
// and block are conditional updates so two concurrent failures can never both
// slip under the threshold.
type LoginAttemptRepository interface {
	// ActiveWindow returns the active window whose last attempt falls after
	// windowStart, or repository.ErrNotFound.
	ActiveWindow(ctx context.Context, email string, windowStart time.Time) (*domain.LoginAttempt, error)
	// StartWindow inserts a fresh tracking window with attempt count one.
	StartWindow(ctx context.Context, attempt domain.LoginAttempt) error
	// Increment atomically bumps the attempt count of the active window,
	// guarded by count < maxCount; the updated row is returned, or
	// repository.ErrNotFound when no eligible window matched the guard.
	Increment(ctx context.Context, email string, windowStart time.Time, maxCount int, ip, userAgent string, now time.Time) (*domain.LoginAttempt, error)
	// Block sets blocked_until on the window. The update is guarded so an
	// existing later block is never moved earlier.
	Block(ctx context.Context, id string, until time.Time) error
	// DeactivateBefore marks windows older than the horizon inactive,
	// preserving them for audit. Returns the number of rows swept.
	DeactivateBefore(ctx context.Context, horizon time.Time) (int64, error)
}
