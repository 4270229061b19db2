package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/verisafe/account-integrity/internal/core/domain"
	"github.com/verisafe/account-integrity/internal/core/port"
	"github.com/verisafe/account-integrity/internal/repository"
)

// PaymentRepository implements port.PaymentRepository using PostgreSQL.
type PaymentRepository struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
	now     func() time.Time
}

// NewPaymentRepository wires a PostgreSQL-backed payment record repository.
func NewPaymentRepository(exec pgExecutor) *PaymentRepository {
	repo := &PaymentRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		now:     func() time.Time { return time.Now().UTC() },
	}
	if pool, ok := exec.(*pgxpool.Pool); ok {
		repo.pool = pool
	}
	return repo
}

// WithTx returns a repository instance operating within the supplied transaction.
func (r *PaymentRepository) WithTx(tx pgx.Tx) *PaymentRepository {
	if tx == nil {
		return r
	}
	return &PaymentRepository{
		pool:    r.pool,
		exec:    tx,
		builder: r.builder,
		now:     r.now,
	}
}

// GetByTransactionID retrieves a payment record by its idempotency key.
func (r *PaymentRepository) GetByTransactionID(ctx context.Context, transactionID string) (*domain.PaymentRecord, error) {
	stmt, args, err := r.builder.
		Select(
			"transaction_id",
			"user_id",
			"amount",
			"currency",
			"gateway",
			"status",
			"points_purchased",
			"tier_credited",
			"processed_at",
			"created_at",
			"updated_at",
		).
		From("acct.payment_records").
		Where(squirrel.Eq{"transaction_id": transactionID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select payment sql: %w", err)
	}

	row := r.exec.QueryRow(ctx, stmt, args...)

	var (
		record      domain.PaymentRecord
		userID      sql.NullString
		points      sql.NullInt64
		tier        sql.NullString
		processedAt *time.Time
	)

	if err := row.Scan(
		&record.TransactionID,
		&userID,
		&record.Amount,
		&record.Currency,
		&record.Gateway,
		&record.Status,
		&points,
		&tier,
		&processedAt,
		&record.CreatedAt,
		&record.UpdatedAt,
	); err != nil {
		if err == pgx.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan payment: %w", err)
	}

	if userID.Valid {
		record.UserID = userID.String
	}
	if points.Valid {
		value := int(points.Int64)
		record.PointsPurchased = &value
	}
	if tier.Valid {
		value := domain.PlanTier(tier.String)
		record.TierCredited = &value
	}
	record.ProcessedAt = processedAt

	return &record, nil
}

// CreatePending inserts a pending record on first sight of a transaction id.
// A concurrent or earlier insert wins silently; the caller re-reads to learn
// the existing status.
func (r *PaymentRepository) CreatePending(ctx context.Context, record domain.PaymentRecord) (bool, error) {
	now := r.now()

	var userID any
	if record.UserID != "" {
		userID = record.UserID
	}

	stmt, args, err := r.builder.
		Insert("acct.payment_records").
		Columns("transaction_id", "user_id", "amount", "currency", "gateway", "status", "created_at", "updated_at").
		Values(record.TransactionID, userID, record.Amount, record.Currency, record.Gateway, domain.PaymentStatusPending, now, now).
		Suffix("ON CONFLICT (transaction_id) DO NOTHING").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build insert payment sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return false, fmt.Errorf("insert payment: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

// MarkFailed transitions a record to failed. Completed records are never
// moved backward; the guard makes redelivered failures a no-op.
func (r *PaymentRepository) MarkFailed(ctx context.Context, transactionID, userID string) error {
	update := r.builder.
		Update("acct.payment_records").
		Set("status", domain.PaymentStatusFailed).
		Set("updated_at", r.now())

	if userID != "" {
		update = update.Set("user_id", userID)
	}

	stmt, args, err := update.
		Where(squirrel.Eq{"transaction_id": transactionID}).
		Where(squirrel.NotEq{"status": domain.PaymentStatusCompleted}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build mark failed sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("mark payment failed: %w", err)
	}

	return nil
}

// complete transitions a pending record to completed with gateway-verified
// values. The status guard serializes concurrent deliveries of the same
// transaction: only one writer observes an affected row.
func (r *PaymentRepository) complete(ctx context.Context, record domain.PaymentRecord, processedAt time.Time) error {
	stmt, args, err := r.builder.
		Update("acct.payment_records").
		Set("user_id", record.UserID).
		Set("amount", record.Amount).
		Set("currency", record.Currency).
		Set("status", domain.PaymentStatusCompleted).
		Set("points_purchased", record.PointsPurchased).
		Set("tier_credited", record.TierCredited).
		Set("processed_at", processedAt).
		Set("updated_at", r.now()).
		Where(squirrel.Eq{"transaction_id": record.TransactionID}).
		Where(squirrel.NotEq{"status": domain.PaymentStatusCompleted}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build complete payment sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("complete payment: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return repository.ErrAlreadyProcessed
	}

	return nil
}

var _ port.PaymentRepository = (*PaymentRepository)(nil)
