package postgres

import "github.com/jackc/pgx/v5/pgxpool"

// Repositories groups concrete PostgreSQL repository implementations.
type Repositories struct {
	Ledger        *LedgerRepository
	Payments      *PaymentRepository
	LoginAttempts *LoginAttemptRepository
	Accounts      *AccountRepository
	Crediting     *CreditingStore
}

// NewRepositories wires all repositories backed by the provided pool.
func NewRepositories(pool *pgxpool.Pool) *Repositories {
	ledger := NewLedgerRepository(pool)
	payments := NewPaymentRepository(pool)

	return &Repositories{
		Ledger:        ledger,
		Payments:      payments,
		LoginAttempts: NewLoginAttemptRepository(pool),
		Accounts:      NewAccountRepository(pool),
		Crediting:     NewCreditingStore(pool, payments, ledger),
	}
}
