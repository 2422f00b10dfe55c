package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/osparrot/swiftpayme-platform-sub005/internal/usecase"
)

// Isolation level names accepted by ParseIsolationLevel.
const (
	IsolationReadCommitted  = "read_committed"
	IsolationRepeatableRead = "repeatable_read"
	IsolationSerializable   = "serializable"
)

// ParseIsolationLevel maps a configuration name to a pgx isolation level.
// An empty name keeps the server default.
func ParseIsolationLevel(name string) (pgx.TxIsoLevel, error) {
	switch name {
	case "":
		return "", nil
	case IsolationReadCommitted:
		return pgx.ReadCommitted, nil
	case IsolationRepeatableRead:
		return pgx.RepeatableRead, nil
	case IsolationSerializable:
		return pgx.Serializable, nil
	default:
		return "", fmt.Errorf("unknown isolation level %q", name)
	}
}

type pgxPool interface {
	BeginTx(context.Context, pgx.TxOptions) (pgx.Tx, error)
}

// TxManager implements usecase.TransactionManager. Every unit of work runs
// read-write at the configured isolation level; rows it changes are still
// locked explicitly with SELECT ... FOR UPDATE.
type TxManager struct {
	pool pgxPool
	opts pgx.TxOptions
}

// NewTxManager creates a TxManager that begins transactions at isolation.
func NewTxManager(pool *pgxpool.Pool, isolation pgx.TxIsoLevel) *TxManager {
	return newTxManagerWithPool(pool, isolation)
}

func newTxManagerWithPool(pool pgxPool, isolation pgx.TxIsoLevel) *TxManager {
	return &TxManager{pool: pool, opts: pgx.TxOptions{IsoLevel: isolation}}
}

// Begin starts a unit of work.
func (m *TxManager) Begin(ctx context.Context) (usecase.Transaction, error) {
	tx, err := m.pool.BeginTx(ctx, m.opts)
	if err != nil {
		return nil, fmt.Errorf("begin %s transaction: %w", m.isolationName(), err)
	}

	return &Tx{tx: tx}, nil
}

func (m *TxManager) isolationName() string {
	if m.opts.IsoLevel == "" {
		return "default"
	}
	return string(m.opts.IsoLevel)
}

// Tx wraps a pgx transaction so repositories can recover it from a usecase.Transaction.
type Tx struct {
	tx pgx.Tx
}

// Commit commits the transaction.
func (t *Tx) Commit(ctx context.Context) error {
	return t.tx.Commit(ctx)
}

// Rollback rolls back the transaction. Rolling back a finished transaction is a no-op.
func (t *Tx) Rollback(ctx context.Context) error {
	if err := t.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return err
	}
	return nil
}

// PgxTx returns the underlying pgx.Tx.
func (t *Tx) PgxTx() pgx.Tx {
	return t.tx
}
