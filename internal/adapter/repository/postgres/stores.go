package postgres

import (
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/osparrot/swiftpayme-platform-sub005/internal/usecase"
)

// NewStores wires every repository to pool. Units of work begin at isolation.
func NewStores(pool *pgxpool.Pool, isolation pgx.TxIsoLevel) usecase.Stores {
	return usecase.Stores{
		TxManager: NewTxManager(pool, isolation),
		Accounts:  NewAccountRepository(pool),
		Journals:  NewJournalRepository(pool),
		BucketOps: NewBucketOperationRepository(pool),
		History:   NewHistoryRepository(pool),
		Ledger:    NewLedgerRepository(pool),
		Outbox:    NewOutboxRepository(pool),
		Audit:     NewAuditRepository(pool),
	}
}
