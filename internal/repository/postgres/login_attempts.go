package postgres

import (
	"context"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/verisafe/account-integrity/internal/core/domain"
	"github.com/verisafe/account-integrity/internal/core/port"
	"github.com/verisafe/account-integrity/internal/repository"
)

const loginAttemptColumns = "id, email, ip_address, user_agent, attempt_count, first_attempt, last_attempt, blocked_until, is_active, created_at"

// LoginAttemptRepository implements port.LoginAttemptRepository using
// PostgreSQL.
type LoginAttemptRepository struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewLoginAttemptRepository wires a PostgreSQL-backed login attempt repository.
func NewLoginAttemptRepository(exec pgExecutor) *LoginAttemptRepository {
	repo := &LoginAttemptRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
	if pool, ok := exec.(*pgxpool.Pool); ok {
		repo.pool = pool
	}
	return repo
}

// ActiveWindow returns the newest active tracking window for the email whose
// last attempt falls after windowStart.
func (r *LoginAttemptRepository) ActiveWindow(ctx context.Context, email string, windowStart time.Time) (*domain.LoginAttempt, error) {
	stmt, args, err := r.builder.
		Select(
			"id",
			"email",
			"ip_address",
			"user_agent",
			"attempt_count",
			"first_attempt",
			"last_attempt",
			"blocked_until",
			"is_active",
			"created_at",
		).
		From("acct.login_attempts").
		Where(squirrel.Eq{"email": email, "is_active": true}).
		Where(squirrel.Gt{"last_attempt": windowStart}).
		OrderBy("last_attempt DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select login attempt sql: %w", err)
	}

	return r.scanAttempt(r.exec.QueryRow(ctx, stmt, args...))
}

// StartWindow inserts a fresh tracking window.
func (r *LoginAttemptRepository) StartWindow(ctx context.Context, attempt domain.LoginAttempt) error {
	stmt, args, err := r.builder.
		Insert("acct.login_attempts").
		Columns("id", "email", "ip_address", "user_agent", "attempt_count", "first_attempt", "last_attempt", "blocked_until", "is_active", "created_at").
		Values(
			attempt.ID,
			attempt.Email,
			attempt.IPAddress,
			attempt.UserAgent,
			attempt.AttemptCount,
			attempt.FirstAttempt,
			attempt.LastAttempt,
			attempt.BlockedUntil,
			attempt.IsActive,
			attempt.CreatedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert login attempt sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert login attempt: %w", err)
	}

	return nil
}

// Increment bumps the attempt count of the active window in one guarded
// statement. The count guard keeps the counter from growing past maxCount,
// and makes increment-then-reread safe under concurrent failures: each caller
// sees the count its own increment produced.
func (r *LoginAttemptRepository) Increment(ctx context.Context, email string, windowStart time.Time, maxCount int, ip, userAgent string, now time.Time) (*domain.LoginAttempt, error) {
	stmt, args, err := r.builder.
		Update("acct.login_attempts").
		Set("attempt_count", squirrel.Expr("attempt_count + 1")).
		Set("last_attempt", now).
		Set("ip_address", ip).
		Set("user_agent", userAgent).
		Where(squirrel.Eq{"email": email, "is_active": true}).
		Where(squirrel.Gt{"last_attempt": windowStart}).
		Where(squirrel.Lt{"attempt_count": maxCount}).
		Suffix("RETURNING " + loginAttemptColumns).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build increment login attempt sql: %w", err)
	}

	return r.scanAttempt(r.exec.QueryRow(ctx, stmt, args...))
}

// Block sets blocked_until on the window. An existing later block wins, so a
// block can never be shortened by a racing writer.
func (r *LoginAttemptRepository) Block(ctx context.Context, id string, until time.Time) error {
	stmt, args, err := r.builder.
		Update("acct.login_attempts").
		Set("blocked_until", until).
		Where(squirrel.Eq{"id": id}).
		Where(squirrel.Or{
			squirrel.Eq{"blocked_until": nil},
			squirrel.Lt{"blocked_until": until},
		}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build block sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("block login attempts: %w", err)
	}

	return nil
}

// DeactivateBefore marks windows whose last attempt predates the horizon
// inactive, keeping the rows for audit.
func (r *LoginAttemptRepository) DeactivateBefore(ctx context.Context, horizon time.Time) (int64, error) {
	stmt, args, err := r.builder.
		Update("acct.login_attempts").
		Set("is_active", false).
		Where(squirrel.Eq{"is_active": true}).
		Where(squirrel.Lt{"last_attempt": horizon}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build deactivate sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("deactivate login attempts: %w", err)
	}

	return tag.RowsAffected(), nil
}

func (r *LoginAttemptRepository) scanAttempt(row pgx.Row) (*domain.LoginAttempt, error) {
	var (
		attempt      domain.LoginAttempt
		blockedUntil *time.Time
	)

	if err := row.Scan(
		&attempt.ID,
		&attempt.Email,
		&attempt.IPAddress,
		&attempt.UserAgent,
		&attempt.AttemptCount,
		&attempt.FirstAttempt,
		&attempt.LastAttempt,
		&blockedUntil,
		&attempt.IsActive,
		&attempt.CreatedAt,
	); err != nil {
		if err == pgx.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan login attempt: %w", err)
	}

	attempt.BlockedUntil = blockedUntil

	return &attempt, nil
}

var _ port.LoginAttemptRepository = (*LoginAttemptRepository)(nil)
