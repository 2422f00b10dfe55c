package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/osparrot/swiftpayme-platform-sub005/internal/domain"
)

// AccountUseCase handles account business logic.
type AccountUseCase struct {
	deps Dependencies
}

// NewAccountUseCase creates a new AccountUseCase.
func NewAccountUseCase(deps Dependencies) *AccountUseCase {
	return &AccountUseCase{deps: deps.withDefaults()}
}

// CreateAccountInput represents input for creating an account.
type CreateAccountInput struct {
	Reference    string
	Name         string
	UserID       string
	Type         domain.AccountType
	Category     string
	Currency     string
	CurrencyKind domain.CurrencyKind
	ParentID     *string
	// AllowNegativeBalance defaults to true for debit-normal types when nil.
	AllowNegativeBalance *bool
	CreditLimit          *decimal.Decimal
	MinBalance           *decimal.Decimal
	MaxBalance           *decimal.Decimal
	Refs                 domain.IntegrationRefs
	Metadata             map[string]any
	Actor                string
}

// AccountActionInput identifies an administrative action on one account.
type AccountActionInput struct {
	AccountID string
	Reason    string
	Actor     string
}

// SetParentInput moves an account under a new parent. A nil ParentID detaches it.
type SetParentInput struct {
	AccountID string
	ParentID  *string
	Reason    string
	Actor     string
}

// CreateAccount creates a new account. A repeated reference with the same
// definition returns the account created first.
func (uc *AccountUseCase) CreateAccount(ctx context.Context, input CreateAccountInput) (account *domain.Account, err error) {
	d := uc.deps
	ctx, span := d.Tracer.Start(ctx, "ledger.create_account",
		trace.WithAttributes(attribute.String("ledger.reference", input.Reference)))
	defer func() { endSpan(span, err) }()

	input.Actor = resolveActor(ctx, input.Actor)
	if err := domain.ValidateReference(input.Reference); err != nil {
		return nil, err
	}
	if err := domain.ValidateActor(input.Actor); err != nil {
		return nil, err
	}

	candidate, err := uc.newAccount(input)
	if err != nil {
		return nil, err
	}

	if existing, err := uc.replay(ctx, candidate); existing != nil || err != nil {
		return existing, err
	}

	now := d.Clock()
	err = d.runUnitOfWork(ctx, func(ctx context.Context, tx Transaction) error {
		acc := candidate.Clone()
		if acc.ParentID != nil {
			locked, err := d.Accounts.GetByIDsForUpdate(ctx, tx, []string{*acc.ParentID})
			if err != nil {
				return err
			}
			if len(locked) != 1 {
				return fmt.Errorf("%w: parent %s", domain.ErrAccountNotFound, *acc.ParentID)
			}
			if err := domain.CheckParent(acc, locked[0], uc.lookup(ctx)); err != nil {
				return err
			}
		}

		seq, err := d.Accounts.NextAccountNumber(ctx, tx)
		if err != nil {
			return fmt.Errorf("allocate account number: %w", err)
		}
		acc.ID = d.IDGen.Generate()
		acc.AccountNumber = domain.FormatAccountNumber(acc.Type, acc.Currency, seq)
		acc.CreatedAt = now
		acc.UpdatedAt = now

		if err := d.Accounts.Create(ctx, tx, acc); err != nil {
			return err
		}
		if err := d.audit(ctx, tx, &domain.AuditLog{
			Actor:        input.Actor,
			Action:       domain.AuditActionAccountCreate,
			ResourceType: domain.AggregateTypeAccount,
			ResourceID:   acc.ID,
			Reference:    input.Reference,
			AfterState:   domain.AccountState(acc),
			CreatedAt:    now,
		}); err != nil {
			return err
		}
		if err := uc.emit(ctx, tx, domain.EventTypeAccountCreated, acc); err != nil {
			return err
		}
		account = acc
		return nil
	})
	if errors.Is(err, domain.ErrDuplicateReference) {
		existing, replayErr := uc.replay(context.WithoutCancel(ctx), candidate)
		if replayErr != nil {
			return nil, replayErr
		}
		if existing != nil {
			return existing, nil
		}
		return nil, err
	}
	if err != nil {
		d.Logger.Warn().Err(err).
			Str("reference", input.Reference).
			Str("error_kind", string(domain.ErrorKind(err))).
			Msg("account creation rejected")
		return nil, err
	}

	d.Logger.Info().
		Str("account_id", account.ID).
		Str("account_number", account.AccountNumber).
		Str("type", string(account.Type)).
		Str("currency", account.Currency).
		Str("actor", input.Actor).
		Msg("account created")
	if d.Metrics != nil {
		d.Metrics.AccountsCreated.Inc()
	}
	return account, nil
}

func (uc *AccountUseCase) newAccount(input CreateAccountInput) (*domain.Account, error) {
	currency := strings.ToUpper(strings.TrimSpace(input.Currency))
	kind := input.CurrencyKind
	if kind == "" {
		inferred, ok := domain.InferCurrencyKind(currency)
		if !ok {
			return nil, fmt.Errorf("%w: unknown currency %q needs an explicit kind", domain.ErrInvalidCurrencyKind, currency)
		}
		kind = inferred
	}

	allowNegative := input.Type.DebitNormal()
	if input.AllowNegativeBalance != nil {
		allowNegative = *input.AllowNegativeBalance
	}

	acc := &domain.Account{
		Reference:            input.Reference,
		Name:                 strings.TrimSpace(input.Name),
		UserID:               input.UserID,
		Type:                 input.Type,
		Category:             input.Category,
		Currency:             currency,
		CurrencyKind:         kind,
		ParentID:             input.ParentID,
		AllowNegativeBalance: allowNegative,
		CreditLimit:          input.CreditLimit,
		MinBalance:           input.MinBalance,
		MaxBalance:           input.MaxBalance,
		Status:               domain.AccountStatusActive,
		Refs:                 input.Refs,
		Metadata:             input.Metadata,
	}
	if err := acc.Validate(); err != nil {
		return nil, err
	}
	acc.PayloadHash = acc.CreationPayloadHash()
	return acc, nil
}

// replay returns the account already created under candidate's reference.
func (uc *AccountUseCase) replay(ctx context.Context, candidate *domain.Account) (*domain.Account, error) {
	existing, err := uc.deps.Accounts.GetByReference(ctx, candidate.Reference)
	if errors.Is(err, domain.ErrAccountNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if existing.PayloadHash != candidate.PayloadHash {
		return nil, fmt.Errorf("%w: %s", domain.ErrDuplicateReference, candidate.Reference)
	}
	return existing, nil
}

// GetAccount retrieves an account by ID.
func (uc *AccountUseCase) GetAccount(ctx context.Context, id string) (*domain.Account, error) {
	return uc.deps.Accounts.GetByID(ctx, id)
}

// GetAccountByNumber retrieves an account by its account number.
func (uc *AccountUseCase) GetAccountByNumber(ctx context.Context, number string) (*domain.Account, error) {
	return uc.deps.Accounts.GetByNumber(ctx, strings.ToUpper(number))
}

// ListAccounts lists accounts with pagination.
func (uc *AccountUseCase) ListAccounts(ctx context.Context, filter domain.AccountFilter) ([]*domain.Account, error) {
	if filter.Type != "" && !filter.Type.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidAccountType, filter.Type)
	}
	filter.Currency = strings.ToUpper(filter.Currency)
	filter.Limit, filter.Offset = domain.ValidatePagination(filter.Limit, filter.Offset)
	return uc.deps.Accounts.List(ctx, filter)
}

// GetBalance returns one bucket of an account.
func (uc *AccountUseCase) GetBalance(ctx context.Context, accountID string, bucket domain.Bucket) (decimal.Decimal, error) {
	acc, err := uc.deps.Accounts.GetByID(ctx, accountID)
	if err != nil {
		return decimal.Zero, err
	}
	return acc.Balance(bucket)
}

// GetBalances returns all six buckets of an account.
func (uc *AccountUseCase) GetBalances(ctx context.Context, accountID string) (domain.Balances, error) {
	acc, err := uc.deps.Accounts.GetByID(ctx, accountID)
	if err != nil {
		return domain.Balances{}, err
	}
	return acc.Balances, nil
}

// SetAccountParent re-parents an account, rejecting cycles and currency mismatches.
func (uc *AccountUseCase) SetAccountParent(ctx context.Context, input SetParentInput) (*domain.Account, error) {
	ids := []string{input.AccountID}
	if input.ParentID != nil {
		ids = append(ids, *input.ParentID)
	}

	return uc.mutate(ctx, "set_parent", AccountActionInput{
		AccountID: input.AccountID,
		Reason:    input.Reason,
		Actor:     input.Actor,
	}, ids, func(ctx context.Context, locked map[string]*domain.Account) (*domain.AuditLog, string, error) {
		acc := locked[input.AccountID]
		if err := acc.CheckMutable(); err != nil && !errors.Is(err, domain.ErrAccountInactive) {
			return nil, "", err
		}
		before := domain.AccountState(acc)

		if input.ParentID == nil {
			acc.ParentID = nil
		} else {
			parent, ok := locked[*input.ParentID]
			if !ok {
				return nil, "", fmt.Errorf("%w: parent %s", domain.ErrAccountNotFound, *input.ParentID)
			}
			if err := domain.CheckParent(acc, parent, uc.lookup(ctx)); err != nil {
				return nil, "", err
			}
			parentID := parent.ID
			acc.ParentID = &parentID
		}

		return &domain.AuditLog{
			Action:      domain.AuditActionAccountSetParent,
			BeforeState: before,
			AfterState:  domain.AccountState(acc),
		}, "", nil
	})
}

// CloseAccount soft-deletes an account with a zero current balance.
func (uc *AccountUseCase) CloseAccount(ctx context.Context, input AccountActionInput) (*domain.Account, error) {
	return uc.mutate(ctx, "close", input, []string{input.AccountID},
		func(ctx context.Context, locked map[string]*domain.Account) (*domain.AuditLog, string, error) {
			acc := locked[input.AccountID]
			before := domain.AccountState(acc)
			if err := acc.Close(uc.deps.Clock()); err != nil {
				return nil, "", err
			}
			return &domain.AuditLog{
				Action:      domain.AuditActionAccountClose,
				BeforeState: before,
				AfterState:  domain.AccountState(acc),
			}, domain.EventTypeAccountClosed, nil
		})
}

// DeactivateAccount blocks balance changes on an account until it is activated again.
func (uc *AccountUseCase) DeactivateAccount(ctx context.Context, input AccountActionInput) (*domain.Account, error) {
	return uc.setStatus(ctx, input, domain.AccountStatusInactive, domain.AuditActionAccountDeactivate)
}

// ActivateAccount re-enables an inactive account.
func (uc *AccountUseCase) ActivateAccount(ctx context.Context, input AccountActionInput) (*domain.Account, error) {
	return uc.setStatus(ctx, input, domain.AccountStatusActive, domain.AuditActionAccountActivate)
}

func (uc *AccountUseCase) setStatus(ctx context.Context, input AccountActionInput, status domain.AccountStatus, action domain.AuditAction) (*domain.Account, error) {
	return uc.mutate(ctx, string(status), input, []string{input.AccountID},
		func(ctx context.Context, locked map[string]*domain.Account) (*domain.AuditLog, string, error) {
			acc := locked[input.AccountID]
			before := domain.AccountState(acc)
			if err := acc.SetStatus(status, uc.deps.Clock()); err != nil {
				return nil, "", err
			}
			return &domain.AuditLog{
				Action:      action,
				BeforeState: before,
				AfterState:  domain.AccountState(acc),
			}, domain.EventTypeAccountStatusChange, nil
		})
}

type accountMutation func(ctx context.Context, locked map[string]*domain.Account) (*domain.AuditLog, string, error)

// mutate locks ids, applies fn to the locked accounts and writes the target
// account, its audit log and an optional lifecycle event in one unit of work.
func (uc *AccountUseCase) mutate(ctx context.Context, operation string, input AccountActionInput, ids []string, fn accountMutation) (account *domain.Account, err error) {
	d := uc.deps
	ctx, span := d.Tracer.Start(ctx, "ledger.account_"+operation,
		trace.WithAttributes(attribute.String("ledger.account_id", input.AccountID)))
	defer func() { endSpan(span, err) }()

	input.Actor = resolveActor(ctx, input.Actor)
	if err := domain.ValidateActor(input.Actor); err != nil {
		return nil, err
	}
	if input.AccountID == "" {
		return nil, fmt.Errorf("%w: account is required", domain.ErrInvalidIDFormat)
	}

	err = d.runUnitOfWork(ctx, func(ctx context.Context, tx Transaction) error {
		locked, err := d.Accounts.GetByIDsForUpdate(ctx, tx, ids)
		if err != nil {
			return err
		}
		byID, err := lockedByID(locked, []string{input.AccountID})
		if err != nil {
			return err
		}

		log, eventType, err := fn(ctx, byID)
		if err != nil {
			return err
		}

		acc := byID[input.AccountID]
		now := d.Clock()
		acc.UpdatedAt = now
		if err := d.Accounts.Update(ctx, tx, acc); err != nil {
			return fmt.Errorf("update account %s: %w", acc.ID, err)
		}

		log.Actor = input.Actor
		log.ResourceType = domain.AggregateTypeAccount
		log.ResourceID = acc.ID
		log.Reason = input.Reason
		log.CreatedAt = now
		if err := d.audit(ctx, tx, log); err != nil {
			return err
		}
		if eventType != "" {
			if err := uc.emit(ctx, tx, eventType, acc); err != nil {
				return err
			}
		}
		account = acc
		return nil
	})
	if err != nil {
		d.Logger.Warn().Err(err).
			Str("operation", operation).
			Str("account_id", input.AccountID).
			Msg("account operation rejected")
		return nil, err
	}

	d.Logger.Info().
		Str("operation", operation).
		Str("account_id", account.ID).
		Str("status", string(account.Status)).
		Str("actor", input.Actor).
		Msg("account updated")
	if d.Metrics != nil {
		d.Metrics.AccountOperations.WithLabelValues(operation).Inc()
	}
	return account, nil
}

func (uc *AccountUseCase) emit(ctx context.Context, tx Transaction, eventType string, acc *domain.Account) error {
	if uc.deps.Outbox == nil {
		return nil
	}
	event := domain.NewAccountEvent(uc.deps.IDGen.Generate(), eventType, acc, uc.deps.Clock())
	if err := uc.deps.Outbox.Create(ctx, tx, event); err != nil {
		return fmt.Errorf("queue account event: %w", err)
	}
	return nil
}

// lookup resolves ancestors outside the lock set while walking a hierarchy.
func (uc *AccountUseCase) lookup(ctx context.Context) func(id string) (*domain.Account, error) {
	return func(id string) (*domain.Account, error) {
		return uc.deps.Accounts.GetByID(ctx, id)
	}
}
