package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/osparrot/swiftpayme-platform-sub005/internal/domain"
	"github.com/osparrot/swiftpayme-platform-sub005/internal/usecase"
)

const historyColumns = `sequence, id, account_id, bucket, previous_value, new_value, delta, operation,
	transaction_id, journal_entry_id, reference, reason, performed_by, occurred_at`

// HistoryRepository implements usecase.HistoryRepository over balance_history.
type HistoryRepository struct {
	db DBTX
}

// NewHistoryRepository creates a new HistoryRepository.
func NewHistoryRepository(db DBTX) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// Append inserts records in order. The bigserial sequence orders them ledger-wide.
func (r *HistoryRepository) Append(ctx context.Context, t usecase.Transaction, records []*domain.BalanceHistoryEntry) error {
	tx, err := txFrom(t)
	if err != nil {
		return err
	}

	for _, rec := range records {
		err := tx.QueryRow(ctx, `INSERT INTO balance_history
			(id, account_id, bucket, previous_value, new_value, delta, operation,
			 transaction_id, journal_entry_id, reference, reason, performed_by, occurred_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
			RETURNING sequence`,
			rec.ID,
			rec.AccountID,
			string(rec.Bucket),
			decimalToNumeric(rec.PreviousValue),
			decimalToNumeric(rec.NewValue),
			decimalToNumeric(rec.Delta),
			string(rec.Operation),
			rec.TransactionID,
			rec.JournalEntryID,
			rec.Reference,
			rec.Reason,
			rec.PerformedBy,
			rec.Timestamp,
		).Scan(&rec.Sequence)
		if err != nil {
			return fmt.Errorf("insert history %s: %w", rec.ID, err)
		}
	}
	return nil
}

// List returns history records matching f, newest first.
func (r *HistoryRepository) List(ctx context.Context, f domain.AuditTrailFilter) ([]*domain.BalanceHistoryEntry, error) {
	var q filter
	if f.AccountID != "" {
		q.add("account_id = ?", f.AccountID)
	}
	if f.JournalEntryID != "" {
		q.add("journal_entry_id = ?", f.JournalEntryID)
	}
	if f.TransactionID != "" {
		q.add("transaction_id = ?", f.TransactionID)
	}
	if f.Reference != "" {
		q.add("reference = ?", f.Reference)
	}
	if f.Actor != "" {
		q.add("performed_by = ?", f.Actor)
	}
	if f.Bucket != "" {
		q.add("bucket = ?", string(f.Bucket))
	}
	if f.From != nil {
		q.add("occurred_at >= ?", *f.From)
	}
	if f.To != nil {
		q.add("occurred_at <= ?", *f.To)
	}

	query := `SELECT ` + historyColumns + ` FROM balance_history` + q.where() + ` ORDER BY sequence DESC`
	query += q.page(f.Limit, f.Offset)

	rows, err := r.db.Query(ctx, query, q.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]*domain.BalanceHistoryEntry, 0)
	for rows.Next() {
		rec, err := scanHistory(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// LatestValues returns the newest record of every (account, bucket) pair.
func (r *HistoryRepository) LatestValues(ctx context.Context) (map[string]map[domain.Bucket]domain.BalanceHistoryEntry, error) {
	rows, err := r.db.Query(ctx, `SELECT DISTINCT ON (account_id, bucket) `+historyColumns+`
		FROM balance_history ORDER BY account_id, bucket, sequence DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]map[domain.Bucket]domain.BalanceHistoryEntry)
	for rows.Next() {
		rec, err := scanHistory(rows)
		if err != nil {
			return nil, err
		}
		buckets, ok := out[rec.AccountID]
		if !ok {
			buckets = make(map[domain.Bucket]domain.BalanceHistoryEntry)
			out[rec.AccountID] = buckets
		}
		buckets[rec.Bucket] = *rec
	}
	return out, rows.Err()
}

func scanHistory(row pgx.Row) (*domain.BalanceHistoryEntry, error) {
	var (
		rec                   domain.BalanceHistoryEntry
		bucket, operation     string
		prev, newValue, delta pgtype.Numeric
	)
	err := row.Scan(
		&rec.Sequence,
		&rec.ID,
		&rec.AccountID,
		&bucket,
		&prev,
		&newValue,
		&delta,
		&operation,
		&rec.TransactionID,
		&rec.JournalEntryID,
		&rec.Reference,
		&rec.Reason,
		&rec.PerformedBy,
		&rec.Timestamp,
	)
	if err != nil {
		return nil, err
	}

	rec.Bucket = domain.Bucket(bucket)
	rec.Operation = domain.BalanceOperation(operation)
	rec.PreviousValue = numericToDecimal(prev)
	rec.NewValue = numericToDecimal(newValue)
	rec.Delta = numericToDecimal(delta)
	rec.Timestamp = rec.Timestamp.UTC()
	return &rec, nil
}

// LedgerRepository implements usecase.LedgerRepository.
type LedgerRepository struct {
	db DBTX
}

// NewLedgerRepository creates a new LedgerRepository.
func NewLedgerRepository(db DBTX) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// Snapshots returns the current bucket of every account matching f. With asOf
// set, each value is the newest current-bucket history record at or before asOf.
func (r *LedgerRepository) Snapshots(ctx context.Context, asOf *time.Time, f domain.TrialBalanceFilter) ([]domain.AccountSnapshot, error) {
	types := make([]string, 0, len(f.Types))
	for _, t := range f.Types {
		types = append(types, string(t))
	}

	var (
		rows pgx.Rows
		err  error
	)
	if asOf == nil {
		rows, err = r.db.Query(ctx, `SELECT a.id, a.type, a.currency, a.current_balance
			FROM accounts a
			WHERE ($1 = '' OR a.currency = $1)
			  AND (cardinality($2::text[]) = 0 OR a.type = ANY($2))
			ORDER BY a.currency, a.type, a.id`, f.Currency, types)
	} else {
		rows, err = r.db.Query(ctx, `SELECT a.id, a.type, a.currency, COALESCE(h.new_value, 0)
			FROM accounts a
			LEFT JOIN LATERAL (
				SELECT new_value FROM balance_history
				WHERE account_id = a.id AND bucket = 'current' AND occurred_at <= $3
				ORDER BY sequence DESC
				LIMIT 1
			) h ON TRUE
			WHERE ($1 = '' OR a.currency = $1)
			  AND (cardinality($2::text[]) = 0 OR a.type = ANY($2))
			  AND a.created_at <= $3
			ORDER BY a.currency, a.type, a.id`, f.Currency, types, *asOf)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	snapshots := make([]domain.AccountSnapshot, 0)
	for rows.Next() {
		var (
			s           domain.AccountSnapshot
			accountType string
			current     pgtype.Numeric
		)
		if err := rows.Scan(&s.AccountID, &accountType, &s.Currency, &current); err != nil {
			return nil, err
		}
		s.Type = domain.AccountType(accountType)
		s.Current = numericToDecimal(current)
		snapshots = append(snapshots, s)
	}
	return snapshots, rows.Err()
}
