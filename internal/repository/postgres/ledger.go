package postgres

import (
	"context"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/verisafe/account-integrity/internal/core/domain"
	"github.com/verisafe/account-integrity/internal/core/port"
	"github.com/verisafe/account-integrity/internal/repository"
)

type pgExecutor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// tierColumn maps a plan tier to its balance column. All balance mutations go
// through this table; no SQL is ever built from a caller-supplied field name.
var tierColumn = map[domain.PlanTier]string{
	domain.TierFree:     "free_points",
	domain.TierBasic:    "basic_points",
	domain.TierStandard: "standard_points",
	domain.TierBusiness: "business_points",
}

// tierRankSQL computes a tier's privilege rank inside an UPDATE, mirroring
// the ordering in the domain package.
const tierRankSQL = "CASE plan_tier WHEN 'free' THEN 0 WHEN 'basic' THEN 1 WHEN 'standard' THEN 2 ELSE 3 END"

const ledgerColumns = "user_id, plan_tier, free_points, basic_points, standard_points, business_points, aggregate_balance, created_at, updated_at"

// LedgerRepository implements port.LedgerRepository using PostgreSQL.
type LedgerRepository struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
	now     func() time.Time
}

// NewLedgerRepository wires a PostgreSQL-backed ledger repository.
func NewLedgerRepository(exec pgExecutor) *LedgerRepository {
	repo := &LedgerRepository{
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
func (r *LedgerRepository) WithTx(tx pgx.Tx) *LedgerRepository {
	if tx == nil {
		return r
	}
	return &LedgerRepository{
		pool:    r.pool,
		exec:    tx,
		builder: r.builder,
		now:     r.now,
	}
}

// Get retrieves the ledger row for a user.
func (r *LedgerRepository) Get(ctx context.Context, userID string) (*domain.AccountLedger, error) {
	stmt, args, err := r.builder.
		Select(
			"user_id",
			"plan_tier",
			"free_points",
			"basic_points",
			"standard_points",
			"business_points",
			"aggregate_balance",
			"created_at",
			"updated_at",
		).
		From("acct.account_ledgers").
		Where(squirrel.Eq{"user_id": userID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select ledger sql: %w", err)
	}

	return r.scanLedger(r.exec.QueryRow(ctx, stmt, args...))
}

// Ensure creates a zero-balance ledger for the user if one does not exist.
func (r *LedgerRepository) Ensure(ctx context.Context, userID string, plan domain.PlanTier) error {
	now := r.now()

	stmt, args, err := r.builder.
		Insert("acct.account_ledgers").
		Columns("user_id", "plan_tier", "free_points", "basic_points", "standard_points", "business_points", "aggregate_balance", "created_at", "updated_at").
		Values(userID, plan, 0, 0, 0, 0, 0, now, now).
		Suffix("ON CONFLICT (user_id) DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert ledger sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert ledger: %w", err)
	}

	return nil
}

// ConsumeFrom decrements the named tier balance and the aggregate by one in a
// single statement guarded by balance > 0. Two concurrent consumers against a
// balance of one serialize at the row: exactly one observes an affected row.
func (r *LedgerRepository) ConsumeFrom(ctx context.Context, userID string, tier domain.PlanTier) (bool, error) {
	column, ok := tierColumn[tier]
	if !ok {
		return false, fmt.Errorf("no balance column for tier %q", tier)
	}

	stmt, args, err := r.builder.
		Update("acct.account_ledgers").
		Set(column, squirrel.Expr(column+" - 1")).
		Set("aggregate_balance", squirrel.Expr("aggregate_balance - 1")).
		Set("updated_at", r.now()).
		Where(squirrel.Eq{"user_id": userID}).
		Where(squirrel.Expr(column + " > 0")).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build consume sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return false, fmt.Errorf("consume %s point: %w", tier, err)
	}

	return tag.RowsAffected() == 1, nil
}

// CreditTier increments the named tier balance and the aggregate by amount.
// When upgradePlan is set the plan tier is raised to the credited tier if it
// outranks the current plan; it is never lowered.
func (r *LedgerRepository) CreditTier(ctx context.Context, userID string, tier domain.PlanTier, amount int, upgradePlan bool) (*domain.AccountLedger, error) {
	column, ok := tierColumn[tier]
	if !ok {
		return nil, fmt.Errorf("no balance column for tier %q", tier)
	}
	if amount <= 0 {
		return nil, fmt.Errorf("credit amount must be positive, got %d", amount)
	}

	update := r.builder.
		Update("acct.account_ledgers").
		Set(column, squirrel.Expr(column+" + ?", amount)).
		Set("aggregate_balance", squirrel.Expr("aggregate_balance + ?", amount)).
		Set("updated_at", r.now())

	if upgradePlan {
		rank := tierPrivilegeRank(tier)
		update = update.Set("plan_tier", squirrel.Expr(
			"CASE WHEN "+tierRankSQL+" < ? THEN ? ELSE plan_tier END",
			rank, string(tier),
		))
	}

	stmt, args, err := update.
		Where(squirrel.Eq{"user_id": userID}).
		Suffix("RETURNING " + ledgerColumns).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build credit sql: %w", err)
	}

	ledger, err := r.scanLedger(r.exec.QueryRow(ctx, stmt, args...))
	if err != nil {
		return nil, err
	}

	return ledger, nil
}

func (r *LedgerRepository) scanLedger(row pgx.Row) (*domain.AccountLedger, error) {
	var ledger domain.AccountLedger
	if err := row.Scan(
		&ledger.UserID,
		&ledger.PlanTier,
		&ledger.FreePoints,
		&ledger.BasicPoints,
		&ledger.StandardPoints,
		&ledger.BusinessPoints,
		&ledger.AggregateBalance,
		&ledger.CreatedAt,
		&ledger.UpdatedAt,
	); err != nil {
		if err == pgx.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan ledger: %w", err)
	}

	return &ledger, nil
}

func tierPrivilegeRank(tier domain.PlanTier) int {
	switch tier {
	case domain.TierBusiness:
		return 3
	case domain.TierStandard:
		return 2
	case domain.TierBasic:
		return 1
	default:
		return 0
	}
}

var _ port.LedgerRepository = (*LedgerRepository)(nil)
