package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v2"

	"github.com/verisafe/account-integrity/internal/core/domain"
	"github.com/verisafe/account-integrity/internal/repository"
)

func TestLedgerRepository_Get(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewLedgerRepository(mock)

	createdAt := time.Now().UTC()
	rows := pgxmock.NewRows([]string{
		"user_id", "plan_tier", "free_points", "basic_points", "standard_points", "business_points", "aggregate_balance", "created_at", "updated_at",
	}).AddRow(
		"user-1", domain.TierStandard, 1, 3, 40, 0, 44, createdAt, createdAt,
	)

	mock.ExpectQuery(`SELECT .*FROM acct\.account_ledgers`).
		WithArgs("user-1").
		WillReturnRows(rows)

	ledger, err := repo.Get(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if ledger.PlanTier != domain.TierStandard {
		t.Fatalf("expected standard plan, got %s", ledger.PlanTier)
	}
	if ledger.StandardPoints != 40 || ledger.AggregateBalance != 44 {
		t.Fatalf("unexpected balances: %+v", ledger)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestLedgerRepository_Get_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewLedgerRepository(mock)

	mock.ExpectQuery(`SELECT .*FROM acct\.account_ledgers`).
		WithArgs("ghost").
		WillReturnError(pgx.ErrNoRows)

	if _, err := repo.Get(context.Background(), "ghost"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestLedgerRepository_Ensure(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewLedgerRepository(mock)
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return now }

	mock.ExpectExec(`INSERT INTO acct\.account_ledgers .*ON CONFLICT \(user_id\) DO NOTHING`).
		WithArgs("user-1", domain.TierFree, 0, 0, 0, 0, 0, now, now).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	if err := repo.Ensure(context.Background(), "user-1", domain.TierFree); err != nil {
		t.Fatalf("Ensure returned error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestLedgerRepository_ConsumeFrom(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewLedgerRepository(mock)
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return now }

	mock.ExpectExec(`UPDATE acct\.account_ledgers SET basic_points = basic_points - 1, aggregate_balance = aggregate_balance - 1`).
		WithArgs(now, "user-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	consumed, err := repo.ConsumeFrom(context.Background(), "user-1", domain.TierBasic)
	if err != nil {
		t.Fatalf("ConsumeFrom returned error: %v", err)
	}
	if !consumed {
		t.Fatal("expected a consumed point")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestLedgerRepository_ConsumeFrom_EmptyBalance(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewLedgerRepository(mock)
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return now }

	// The balance guard matched no row; the caller moves down the hierarchy.
	mock.ExpectExec(`UPDATE acct\.account_ledgers SET standard_points = standard_points - 1`).
		WithArgs(now, "user-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	consumed, err := repo.ConsumeFrom(context.Background(), "user-1", domain.TierStandard)
	if err != nil {
		t.Fatalf("ConsumeFrom returned error: %v", err)
	}
	if consumed {
		t.Fatal("expected no consumed point")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestLedgerRepository_CreditTier_UpgradesPlan(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewLedgerRepository(mock)
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return now }

	rows := pgxmock.NewRows([]string{
		"user_id", "plan_tier", "free_points", "basic_points", "standard_points", "business_points", "aggregate_balance", "created_at", "updated_at",
	}).AddRow(
		"user-1", domain.TierStandard, 1, 0, 40, 0, 41, now, now,
	)

	mock.ExpectQuery(`UPDATE acct\.account_ledgers SET standard_points = standard_points \+ .*RETURNING`).
		WithArgs(40, 40, now, 2, "standard", "user-1").
		WillReturnRows(rows)

	ledger, err := repo.CreditTier(context.Background(), "user-1", domain.TierStandard, 40, true)
	if err != nil {
		t.Fatalf("CreditTier returned error: %v", err)
	}
	if ledger.PlanTier != domain.TierStandard || ledger.StandardPoints != 40 {
		t.Fatalf("unexpected ledger: %+v", ledger)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestLedgerRepository_CreditTier_NoUpgrade(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewLedgerRepository(mock)
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return now }

	rows := pgxmock.NewRows([]string{
		"user_id", "plan_tier", "free_points", "basic_points", "standard_points", "business_points", "aggregate_balance", "created_at", "updated_at",
	}).AddRow(
		"user-1", domain.TierFree, 6, 0, 0, 0, 6, now, now,
	)

	mock.ExpectQuery(`UPDATE acct\.account_ledgers SET free_points = free_points \+ .*RETURNING`).
		WithArgs(5, 5, now, "user-1").
		WillReturnRows(rows)

	ledger, err := repo.CreditTier(context.Background(), "user-1", domain.TierFree, 5, false)
	if err != nil {
		t.Fatalf("CreditTier returned error: %v", err)
	}
	if ledger.PlanTier != domain.TierFree || ledger.FreePoints != 6 {
		t.Fatalf("unexpected ledger: %+v", ledger)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestLedgerRepository_CreditTier_RejectsNonPositiveAmount(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewLedgerRepository(mock)

	if _, err := repo.CreditTier(context.Background(), "user-1", domain.TierBasic, 0, false); err == nil {
		t.Fatal("expected error for zero amount")
	}
}
