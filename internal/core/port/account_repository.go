package port

import (
	"context"
	"time"

	"github.com/verisafe/account-integrity/internal/core/domain"
)

// AccountRepository resolves collaborator-owned account records. This core
// only ever reads them.
type AccountRepository interface {
	// GetByEmail returns the account owning the email, or
	// repository.ErrNotFound.
	GetByEmail(ctx context.Context, email string) (*domain.Account, error)
}

// AccountCache is a short-TTL read-through cache over email→user-id lookups,
// owned by the service instance rather than held in process-wide state.
type AccountCache interface {
	GetUserID(ctx context.Context, email string) (string, bool, error)
	SetUserID(ctx context.Context, email, userID string, ttl time.Duration) error
}
