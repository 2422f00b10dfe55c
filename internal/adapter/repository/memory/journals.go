package memory

import (
	"context"
	"fmt"

	"github.com/osparrot/swiftpayme-platform-sub005/internal/domain"
	"github.com/osparrot/swiftpayme-platform-sub005/internal/usecase"
)

// JournalRepository implements usecase.JournalRepository.
type JournalRepository struct{ s *Store }

// Create stages a journal entry. The reference is checked again at commit.
func (r JournalRepository) Create(_ context.Context, t usecase.Transaction, entry *domain.JournalEntry) error {
	mt, err := asTx(t)
	if err != nil {
		return err
	}
	if err := r.s.fault(FailJournalCreate); err != nil {
		return err
	}

	r.s.mu.Lock()
	_, exists := r.s.journalRefs[entry.Reference]
	r.s.mu.Unlock()
	if exists {
		return fmt.Errorf("%w: %s", domain.ErrDuplicateReference, entry.Reference)
	}
	mt.journals = append(mt.journals, cloneEntry(entry))
	return nil
}

// GetByID returns a committed entry.
func (r JournalRepository) GetByID(_ context.Context, id string) (*domain.JournalEntry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.journals[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrJournalEntryNotFound, id)
	}
	return cloneEntry(e), nil
}

// GetByReference returns the committed entry with reference.
func (r JournalRepository) GetByReference(ctx context.Context, reference string) (*domain.JournalEntry, error) {
	r.s.mu.Lock()
	id, ok := r.s.journalRefs[reference]
	r.s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrJournalEntryNotFound, reference)
	}
	return r.GetByID(ctx, id)
}

// MarkReversed links an entry to its reversal. An entry is reversed at most once.
func (r JournalRepository) MarkReversed(_ context.Context, t usecase.Transaction, id, reversedBy string) error {
	mt, err := asTx(t)
	if err != nil {
		return err
	}

	r.s.mu.Lock()
	e, ok := r.s.journals[id]
	alreadyReversed := ok && e.ReversedBy != nil
	r.s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrJournalEntryNotFound, id)
	}
	if _, staged := mt.reversed[id]; staged || alreadyReversed {
		return fmt.Errorf("%w: %s", domain.ErrAlreadyReversed, id)
	}
	if mt.reversed == nil {
		mt.reversed = make(map[string]string)
	}
	mt.reversed[id] = reversedBy
	return nil
}

// ListByAccount lists committed entries with a leg on accountID, newest first.
func (r JournalRepository) ListByAccount(_ context.Context, accountID string, limit, offset int) ([]*domain.JournalEntry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []*domain.JournalEntry
	for i := len(r.s.journalList) - 1; i >= 0; i-- {
		e := r.s.journals[r.s.journalList[i]]
		for _, leg := range e.Legs {
			if leg.AccountID == accountID {
				out = append(out, cloneEntry(e))
				break
			}
		}
	}
	return paginate(out, limit, offset), nil
}

// BucketOperationRepository implements usecase.BucketOperationRepository.
type BucketOperationRepository struct{ s *Store }

// Create stages a bucket operation record.
func (r BucketOperationRepository) Create(_ context.Context, t usecase.Transaction, op *domain.BucketOperation) error {
	mt, err := asTx(t)
	if err != nil {
		return err
	}
	if err := r.s.fault(FailBucketOpCreate); err != nil {
		return err
	}

	r.s.mu.Lock()
	_, exists := r.s.bucketOps[op.Reference]
	r.s.mu.Unlock()
	if exists {
		return fmt.Errorf("%w: %s", domain.ErrDuplicateReference, op.Reference)
	}
	c := *op
	mt.bucketOps = append(mt.bucketOps, &c)
	return nil
}

// GetByReference returns the committed operation with reference.
func (r BucketOperationRepository) GetByReference(_ context.Context, reference string) (*domain.BucketOperation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	op, ok := r.s.bucketOps[reference]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrBucketOpNotFound, reference)
	}
	c := *op
	return &c, nil
}

func cloneEntry(e *domain.JournalEntry) *domain.JournalEntry {
	c := *e
	c.Legs = append([]domain.JournalLeg(nil), e.Legs...)
	c.Tags = append([]string(nil), e.Tags...)
	if e.Metadata != nil {
		c.Metadata = make(map[string]any, len(e.Metadata))
		for k, v := range e.Metadata {
			c.Metadata[k] = v
		}
	}
	if e.ReversalOf != nil {
		v := *e.ReversalOf
		c.ReversalOf = &v
	}
	if e.ReversedBy != nil {
		v := *e.ReversedBy
		c.ReversedBy = &v
	}
	return &c
}
