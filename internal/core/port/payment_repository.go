package port

import (
	"context"
	"time"

	"github.com/verisafe/account-integrity/internal/core/domain"
)

// PaymentRepository persists gateway payment attempts keyed by transaction id.
type PaymentRepository interface {
	// GetByTransactionID returns the record, or repository.ErrNotFound.
	GetByTransactionID(ctx context.Context, transactionID string) (*domain.PaymentRecord, error)
	// CreatePending inserts a pending record on first sight of a transaction
	// id. It reports false without error when the row already exists.
	CreatePending(ctx context.Context, record domain.PaymentRecord) (bool, error)
	// MarkFailed transitions a record to failed. The transition is guarded so
	// a completed record is never moved backward.
	MarkFailed(ctx context.Context, transactionID, userID string) error
}

// TierCredit names the ledger mutation the crediting transaction performs.
type TierCredit struct {
	UserID      string
	Tier        domain.PlanTier
	Points      int
	UpgradePlan bool
}

// CreditingStore executes the dual write at the heart of the pipeline: one
// completed payment record plus one ledger credit, both committed or both
// rolled back.
type CreditingStore interface {
	RecordCompletionAndCredit(ctx context.Context, record domain.PaymentRecord, credit TierCredit, processedAt time.Time) (*domain.AccountLedger, error)
}
