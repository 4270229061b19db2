package port

import (
	"context"

	"github.com/verisafe/account-integrity/internal/core/domain"
)

// LedgerRepository defines the persistence operations over per-account point
// balances. Every mutation is a store-level conditional update; callers never
// read-modify-write balances at the application level.
type LedgerRepository interface {
	// Get returns the ledger row for the user, or repository.ErrNotFound.
	Get(ctx context.Context, userID string) (*domain.AccountLedger, error)
	// Ensure creates a zero-balance ledger for the user if none exists.
	Ensure(ctx context.Context, userID string, plan domain.PlanTier) error
	// ConsumeFrom atomically decrements the named tier and the aggregate by
	// one, guarded by balance > 0. It reports whether a decrement happened.
	ConsumeFrom(ctx context.Context, userID string, tier domain.PlanTier) (bool, error)
	// CreditTier atomically increments the named tier and the aggregate by
	// amount. When upgradePlan is set, the plan tier is raised to the
	// credited tier if it outranks the current plan; it is never lowered.
	// The updated row is returned.
	CreditTier(ctx context.Context, userID string, tier domain.PlanTier, amount int, upgradePlan bool) (*domain.AccountLedger, error)
}
