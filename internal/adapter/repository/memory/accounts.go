package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/osparrot/swiftpayme-platform-sub005/internal/domain"
	"github.com/osparrot/swiftpayme-platform-sub005/internal/usecase"
)

// AccountRepository implements usecase.AccountRepository.
type AccountRepository struct{ s *Store }

// Create stages a new account.
func (r AccountRepository) Create(_ context.Context, t usecase.Transaction, account *domain.Account) error {
	mt, err := asTx(t)
	if err != nil {
		return err
	}
	if err := r.s.fault(FailAccountCreate); err != nil {
		return err
	}

	r.s.mu.Lock()
	_, exists := r.s.byReference[account.Reference]
	r.s.mu.Unlock()
	if exists {
		return fmt.Errorf("%w: %s", domain.ErrDuplicateReference, account.Reference)
	}
	for _, staged := range mt.newAccounts {
		if staged.Reference == account.Reference {
			return fmt.Errorf("%w: %s", domain.ErrDuplicateReference, account.Reference)
		}
	}
	mt.newAccounts = append(mt.newAccounts, account.Clone())
	return nil
}

// GetByID returns the committed account.
func (r AccountRepository) GetByID(_ context.Context, id string) (*domain.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	acc, ok := r.s.accounts[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrAccountNotFound, id)
	}
	return acc.Clone(), nil
}

// GetByNumber returns the committed account with the given account number.
func (r AccountRepository) GetByNumber(ctx context.Context, number string) (*domain.Account, error) {
	r.s.mu.Lock()
	id, ok := r.s.byNumber[number]
	r.s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrAccountNotFound, number)
	}
	return r.GetByID(ctx, id)
}

// GetByReference returns the account created under reference.
func (r AccountRepository) GetByReference(ctx context.Context, reference string) (*domain.Account, error) {
	r.s.mu.Lock()
	id, ok := r.s.byReference[reference]
	r.s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: reference %s", domain.ErrAccountNotFound, reference)
	}
	return r.GetByID(ctx, id)
}

// GetByIDsForUpdate locks the accounts in ascending ID order and returns them in that order.
// Missing accounts are left out of the result.
func (r AccountRepository) GetByIDsForUpdate(ctx context.Context, t usecase.Transaction, ids []string) ([]*domain.Account, error) {
	mt, err := asTx(t)
	if err != nil {
		return nil, err
	}
	if err := mt.lock(ctx, ids); err != nil {
		return nil, err
	}

	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)

	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*domain.Account, 0, len(sorted))
	for i, id := range sorted {
		if i > 0 && sorted[i-1] == id {
			continue
		}
		if staged, ok := mt.accounts[id]; ok {
			out = append(out, staged.Clone())
			continue
		}
		if acc, ok := r.s.accounts[id]; ok {
			out = append(out, acc.Clone())
		}
	}
	return out, nil
}

// Update stages the account when its version still matches.
func (r AccountRepository) Update(_ context.Context, t usecase.Transaction, account *domain.Account) error {
	mt, err := asTx(t)
	if err != nil {
		return err
	}
	if _, ok := mt.held[account.ID]; !ok {
		return fmt.Errorf("memory: account %s updated without a row lock", account.ID)
	}
	if err := r.s.fault(FailAccountUpdate); err != nil {
		return err
	}

	current, ok := mt.accounts[account.ID]
	if !ok {
		r.s.mu.Lock()
		current, ok = r.s.accounts[account.ID]
		r.s.mu.Unlock()
	}
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrAccountNotFound, account.ID)
	}
	if current.Version != account.Version {
		return fmt.Errorf("%w: account %s at version %d, expected %d",
			domain.ErrConcurrencyConflict, account.ID, current.Version, account.Version)
	}

	account.Version++
	staged := account.Clone()
	staged.DrainHistory()
	mt.accounts[account.ID] = staged
	return nil
}

// List returns committed accounts ordered by account number.
func (r AccountRepository) List(_ context.Context, filter domain.AccountFilter) ([]*domain.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []*domain.Account
	for _, acc := range r.s.accounts {
		if filter.UserID != "" && acc.UserID != filter.UserID {
			continue
		}
		if filter.Currency != "" && acc.Currency != filter.Currency {
			continue
		}
		if filter.Type != "" && acc.Type != filter.Type {
			continue
		}
		if filter.Status != "" && acc.Status != filter.Status {
			continue
		}
		if filter.ParentID != "" && (acc.ParentID == nil || *acc.ParentID != filter.ParentID) {
			continue
		}
		out = append(out, acc.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AccountNumber < out[j].AccountNumber })
	return paginate(out, filter.Limit, filter.Offset), nil
}

// NextAccountNumber draws from a non-transactional sequence.
func (r AccountRepository) NextAccountNumber(_ context.Context, _ usecase.Transaction) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.accountSeq++
	return r.s.accountSeq, nil
}
