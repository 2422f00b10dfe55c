package usecase

import (
	"context"
	"time"

	"github.com/osparrot/swiftpayme-platform-sub005/internal/domain"
)

// AccountRepository defines data access for accounts.
type AccountRepository interface {
	// Create fails with domain.ErrDuplicateReference when the creation reference exists.
	Create(ctx context.Context, tx Transaction, account *domain.Account) error
	GetByID(ctx context.Context, id string) (*domain.Account, error)
	GetByNumber(ctx context.Context, number string) (*domain.Account, error)
	GetByReference(ctx context.Context, reference string) (*domain.Account, error)
	// GetByIDsForUpdate locks the rows in ascending ID order for the life of tx.
	GetByIDsForUpdate(ctx context.Context, tx Transaction, ids []string) ([]*domain.Account, error)
	// Update writes buckets, status and hierarchy when the stored version still
	// equals account.Version, then increments account.Version.
	Update(ctx context.Context, tx Transaction, account *domain.Account) error
	List(ctx context.Context, filter domain.AccountFilter) ([]*domain.Account, error)
	NextAccountNumber(ctx context.Context, tx Transaction) (int64, error)
}

// JournalRepository defines data access for journal entries.
type JournalRepository interface {
	// Create fails with domain.ErrDuplicateReference when the reference exists.
	Create(ctx context.Context, tx Transaction, entry *domain.JournalEntry) error
	GetByID(ctx context.Context, id string) (*domain.JournalEntry, error)
	GetByReference(ctx context.Context, reference string) (*domain.JournalEntry, error)
	MarkReversed(ctx context.Context, tx Transaction, id, reversedBy string) error
	ListByAccount(ctx context.Context, accountID string, limit, offset int) ([]*domain.JournalEntry, error)
}

// BucketOperationRepository defines data access for bucket move records.
type BucketOperationRepository interface {
	Create(ctx context.Context, tx Transaction, op *domain.BucketOperation) error
	GetByReference(ctx context.Context, reference string) (*domain.BucketOperation, error)
}

// HistoryRepository defines data access for the balance history.
type HistoryRepository interface {
	// Append stores records in order and assigns their sequence numbers.
	Append(ctx context.Context, tx Transaction, records []*domain.BalanceHistoryEntry) error
	List(ctx context.Context, filter domain.AuditTrailFilter) ([]*domain.BalanceHistoryEntry, error)
	// LatestValues returns, per account, the newest recorded value of each bucket.
	LatestValues(ctx context.Context) (map[string]map[domain.Bucket]domain.BalanceHistoryEntry, error)
}

// LedgerRepository defines data access for ledger-wide reports.
type LedgerRepository interface {
	// Snapshots returns each account's current bucket, as of asOf when it is set.
	Snapshots(ctx context.Context, asOf *time.Time, filter domain.TrialBalanceFilter) ([]domain.AccountSnapshot, error)
}

// OutboxRepository defines data access for outbox events.
type OutboxRepository interface {
	Create(ctx context.Context, tx Transaction, event *domain.OutboxEvent) error
	GetUnpublished(ctx context.Context, limit int) ([]*domain.OutboxEvent, error)
	MarkPublished(ctx context.Context, id string, publishedAt time.Time) error
	MarkFailed(ctx context.Context, id string) error
	DeletePublished(ctx context.Context, before time.Time) error
}

// AuditRepository defines data access for audit logs.
type AuditRepository interface {
	CreateTx(ctx context.Context, tx Transaction, log *domain.AuditLog) error
	List(ctx context.Context, filter domain.AuditFilter) ([]*domain.AuditLog, error)
}

// Transaction represents a database transaction.
type Transaction interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// TransactionManager handles transaction lifecycle.
type TransactionManager interface {
	Begin(ctx context.Context) (Transaction, error)
}

// Retrier re-runs a unit of work on transient store failures.
type Retrier interface {
	Retry(ctx context.Context, operation func() error) error
}

// IDGenerator generates unique IDs.
type IDGenerator interface {
	Generate() string
}

// Cache defines caching operations.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// IdempotencyStore handles idempotency key storage.
type IdempotencyStore interface {
	// CheckAndSet atomically checks if key exists, sets if not.
	// Returns (exists, existingValue, error).
	CheckAndSet(ctx context.Context, key string, response []byte, ttl time.Duration) (bool, []byte, error)
	// Update updates an existing key with the final response.
	Update(ctx context.Context, key string, response []byte, ttl time.Duration) error
	// Release drops a key whose request did not succeed so it can be retried.
	Release(ctx context.Context, key string) error
}
