package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/verisafe/account-integrity/internal/core/domain"
	"github.com/verisafe/account-integrity/internal/core/port"
)

type txBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// CreditingStore implements port.CreditingStore: one transaction writes the
// completed payment record and the matching ledger credit. A split outcome
// (recorded but not credited, or credited but not recorded) cannot commit.
type CreditingStore struct {
	db       txBeginner
	payments *PaymentRepository
	ledger   *LedgerRepository
}

// NewCreditingStore wires the transactional dual-write store.
func NewCreditingStore(db txBeginner, payments *PaymentRepository, ledger *LedgerRepository) *CreditingStore {
	return &CreditingStore{db: db, payments: payments, ledger: ledger}
}

// RecordCompletionAndCredit completes the payment record and credits the
// ledger atomically. repository.ErrAlreadyProcessed is returned when another
// delivery of the same transaction already committed.
func (s *CreditingStore) RecordCompletionAndCredit(ctx context.Context, record domain.PaymentRecord, credit port.TierCredit, processedAt time.Time) (*domain.AccountLedger, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin crediting tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	payments := s.payments.WithTx(tx)
	ledger := s.ledger.WithTx(tx)

	// The pending row normally exists from first sight of the webhook; the
	// insert is repeated here so a lost pending write cannot strand the
	// completion.
	if _, err := payments.CreatePending(ctx, record); err != nil {
		return nil, err
	}

	if err := payments.complete(ctx, record, processedAt); err != nil {
		return nil, err
	}

	if err := ledger.Ensure(ctx, credit.UserID, domain.TierFree); err != nil {
		return nil, err
	}

	updated, err := ledger.CreditTier(ctx, credit.UserID, credit.Tier, credit.Points, credit.UpgradePlan)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit crediting tx: %w", err)
	}

	return updated, nil
}

var _ port.CreditingStore = (*CreditingStore)(nil)
