package port

import (
	"context"
	"time"

	"github.com/verisafe/account-integrity/internal/core/domain"
)

// AlertPublisher delivers alert events to the notification sink. Delivery is
// fire-and-forget: a publish failure must never fail the operation that
// raised the alert.
type AlertPublisher interface {
	PublishLoginBlocked(ctx context.Context, event domain.LoginBlockedEvent) error
	PublishPaymentFailed(ctx context.Context, event domain.PaymentFailedEvent) error
	PublishPaymentCredited(ctx context.Context, event domain.PaymentCreditedEvent) error
}

// AlertSuppressor deduplicates repeat alerts for the same subject within a
// window, so a hammered blocked email cannot flood the notification sink.
type AlertSuppressor interface {
	// FirstWithin reports whether this is the first alert for the key inside
	// the window; subsequent calls within ttl report false.
	FirstWithin(ctx context.Context, key string, ttl time.Duration) (bool, error)
}
