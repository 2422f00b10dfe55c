// Package memory provides an in-process store with the same contracts as the
// postgres repositories. It backs tests and the STORAGE_DRIVER=memory dev mode.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/osparrot/swiftpayme-platform-sub005/internal/domain"
	"github.com/osparrot/swiftpayme-platform-sub005/internal/usecase"
)

// ErrTxDone is returned when a finished transaction is used again.
var ErrTxDone = errors.New("memory: transaction already finished")

// Fault injection points.
const (
	FailBegin          = "begin"
	FailCommit         = "commit"
	FailAccountCreate  = "accounts.create"
	FailAccountUpdate  = "accounts.update"
	FailJournalCreate  = "journals.create"
	FailBucketOpCreate = "bucket_ops.create"
	FailHistoryAppend  = "history.append"
	FailOutboxCreate   = "outbox.create"
	FailAuditCreate    = "audit.create"
)

// Store holds committed ledger state. Each account has a row lock that a
// transaction holds from GetByIDsForUpdate until commit or rollback.
type Store struct {
	mu sync.Mutex

	accounts    map[string]*domain.Account
	byNumber    map[string]string
	byReference map[string]string
	journals    map[string]*domain.JournalEntry
	journalRefs map[string]string
	journalList []string
	bucketOps   map[string]*domain.BucketOperation
	history     []*domain.BalanceHistoryEntry
	outbox      []*domain.OutboxEvent
	audit       []*domain.AuditLog

	accountSeq int64
	historySeq int64

	rowLocks map[string]chan struct{}
	failures map[string]error
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		accounts:    make(map[string]*domain.Account),
		byNumber:    make(map[string]string),
		byReference: make(map[string]string),
		journals:    make(map[string]*domain.JournalEntry),
		journalRefs: make(map[string]string),
		bucketOps:   make(map[string]*domain.BucketOperation),
		rowLocks:    make(map[string]chan struct{}),
		failures:    make(map[string]error),
	}
}

// Stores returns every repository backed by s.
func (s *Store) Stores() usecase.Stores {
	return usecase.Stores{
		TxManager: TxManager{s},
		Accounts:  AccountRepository{s},
		Journals:  JournalRepository{s},
		BucketOps: BucketOperationRepository{s},
		History:   HistoryRepository{s},
		Ledger:    LedgerRepository{s},
		Outbox:    OutboxRepository{s},
		Audit:     AuditRepository{s},
	}
}

// FailNext makes the next call at point fail with err.
func (s *Store) FailNext(point string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[point] = err
}

func (s *Store) fault(point string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err, ok := s.failures[point]
	if !ok {
		return nil
	}
	delete(s.failures, point)
	return err
}

func (s *Store) rowLock(id string) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.rowLocks[id]
	if !ok {
		l = make(chan struct{}, 1)
		s.rowLocks[id] = l
	}
	return l
}

// TxManager implements usecase.TransactionManager.
type TxManager struct{ s *Store }

// Begin starts a transaction.
func (m TxManager) Begin(ctx context.Context) (usecase.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := m.s.fault(FailBegin); err != nil {
		return nil, err
	}
	return &tx{s: m.s, held: map[string]chan struct{}{}, accounts: map[string]*domain.Account{}}, nil
}

// tx buffers writes until commit.
type tx struct {
	s    *Store
	done bool
	held map[string]chan struct{}

	accounts    map[string]*domain.Account
	newAccounts []*domain.Account
	journals    []*domain.JournalEntry
	reversed    map[string]string
	bucketOps   []*domain.BucketOperation
	history     []*domain.BalanceHistoryEntry
	outbox      []*domain.OutboxEvent
	audit       []*domain.AuditLog
}

func asTx(t usecase.Transaction) (*tx, error) {
	mt, ok := t.(*tx)
	if !ok || mt == nil {
		return nil, errors.New("memory: foreign transaction")
	}
	if mt.done {
		return nil, ErrTxDone
	}
	return mt, nil
}

// lock acquires row locks for ids in ascending order.
func (t *tx) lock(ctx context.Context, ids []string) error {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	for _, id := range sorted {
		if _, ok := t.held[id]; ok {
			continue
		}
		l := t.s.rowLock(id)
		select {
		case l <- struct{}{}:
			t.held[id] = l
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (t *tx) release() {
	for id, l := range t.held {
		<-l
		delete(t.held, id)
	}
	t.done = true
}

func (t *tx) Commit(_ context.Context) error {
	if t.done {
		return ErrTxDone
	}
	defer t.release()
	if err := t.s.fault(FailCommit); err != nil {
		return err
	}

	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, acc := range t.newAccounts {
		if _, ok := s.byReference[acc.Reference]; ok {
			return domain.ErrDuplicateReference
		}
	}
	for _, e := range t.journals {
		if _, ok := s.journalRefs[e.Reference]; ok {
			return domain.ErrDuplicateReference
		}
	}
	for _, op := range t.bucketOps {
		if _, ok := s.bucketOps[op.Reference]; ok {
			return domain.ErrDuplicateReference
		}
	}
	for id := range t.reversed {
		if e, ok := s.journals[id]; ok && e.ReversedBy != nil {
			return domain.ErrAlreadyReversed
		}
	}

	for _, acc := range t.newAccounts {
		s.accounts[acc.ID] = acc
		s.byNumber[acc.AccountNumber] = acc.ID
		s.byReference[acc.Reference] = acc.ID
	}
	for id, acc := range t.accounts {
		s.accounts[id] = acc
	}
	for _, e := range t.journals {
		s.journals[e.ID] = e
		s.journalRefs[e.Reference] = e.ID
		s.journalList = append(s.journalList, e.ID)
	}
	for id, by := range t.reversed {
		if e, ok := s.journals[id]; ok {
			reversedBy := by
			e.ReversedBy = &reversedBy
		}
	}
	for _, op := range t.bucketOps {
		s.bucketOps[op.Reference] = op
	}
	s.history = append(s.history, t.history...)
	s.outbox = append(s.outbox, t.outbox...)
	s.audit = append(s.audit, t.audit...)
	return nil
}

func (t *tx) Rollback(_ context.Context) error {
	if t.done {
		return nil
	}
	t.release()
	return nil
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	end := offset + limit
	if limit <= 0 || end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}

func inRange(at time.Time, from, to *time.Time) bool {
	if from != nil && at.Before(*from) {
		return false
	}
	if to != nil && at.After(*to) {
		return false
	}
	return true
}
