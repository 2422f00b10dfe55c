package memory

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/osparrot/swiftpayme-platform-sub005/internal/domain"
	"github.com/osparrot/swiftpayme-platform-sub005/internal/usecase"
)

// HistoryRepository implements usecase.HistoryRepository.
type HistoryRepository struct{ s *Store }

// Append stages records and assigns their sequence numbers.
// Sequence numbers of rolled back records are not reused.
func (r HistoryRepository) Append(_ context.Context, t usecase.Transaction, records []*domain.BalanceHistoryEntry) error {
	mt, err := asTx(t)
	if err != nil {
		return err
	}
	if err := r.s.fault(FailHistoryAppend); err != nil {
		return err
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, rec := range records {
		r.s.historySeq++
		rec.Sequence = r.s.historySeq
		c := *rec
		mt.history = append(mt.history, &c)
	}
	return nil
}

// List returns matching records, newest first.
func (r HistoryRepository) List(_ context.Context, filter domain.AuditTrailFilter) ([]*domain.BalanceHistoryEntry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []*domain.BalanceHistoryEntry
	for i := len(r.s.history) - 1; i >= 0; i-- {
		rec := r.s.history[i]
		if filter.AccountID != "" && rec.AccountID != filter.AccountID {
			continue
		}
		if filter.JournalEntryID != "" && rec.JournalEntryID != filter.JournalEntryID {
			continue
		}
		if filter.TransactionID != "" && rec.TransactionID != filter.TransactionID {
			continue
		}
		if filter.Reference != "" && rec.Reference != filter.Reference {
			continue
		}
		if filter.Actor != "" && rec.PerformedBy != filter.Actor {
			continue
		}
		if filter.Bucket != "" && rec.Bucket != filter.Bucket {
			continue
		}
		if !inRange(rec.Timestamp, filter.From, filter.To) {
			continue
		}
		c := *rec
		out = append(out, &c)
	}
	return paginate(out, filter.Limit, filter.Offset), nil
}

// LatestValues returns the newest record per account and bucket.
func (r HistoryRepository) LatestValues(_ context.Context) (map[string]map[domain.Bucket]domain.BalanceHistoryEntry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	out := make(map[string]map[domain.Bucket]domain.BalanceHistoryEntry)
	for _, rec := range r.s.history {
		byBucket, ok := out[rec.AccountID]
		if !ok {
			byBucket = make(map[domain.Bucket]domain.BalanceHistoryEntry)
			out[rec.AccountID] = byBucket
		}
		byBucket[rec.Bucket] = *rec
	}
	return out, nil
}

// LedgerRepository implements usecase.LedgerRepository.
type LedgerRepository struct{ s *Store }

// Snapshots returns the current bucket of every account. With asOf set, the
// value is the newest history record at or before asOf.
func (r LedgerRepository) Snapshots(_ context.Context, asOf *time.Time, filter domain.TrialBalanceFilter) ([]domain.AccountSnapshot, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var historic map[string]decimal.Decimal
	if asOf != nil {
		historic = make(map[string]decimal.Decimal)
		for _, rec := range r.s.history {
			if rec.Bucket == domain.BucketCurrent && !rec.Timestamp.After(*asOf) {
				historic[rec.AccountID] = rec.NewValue
			}
		}
	}

	out := make([]domain.AccountSnapshot, 0, len(r.s.accounts))
	for _, acc := range r.s.accounts {
		if filter.Currency != "" && acc.Currency != filter.Currency {
			continue
		}
		if !filter.Includes(acc.Type) {
			continue
		}
		current := acc.Balances.Current
		if asOf != nil {
			if acc.CreatedAt.After(*asOf) {
				continue
			}
			current = historic[acc.ID]
		}
		out = append(out, domain.AccountSnapshot{
			AccountID: acc.ID,
			Type:      acc.Type,
			Currency:  acc.Currency,
			Current:   current,
		})
	}
	return out, nil
}
