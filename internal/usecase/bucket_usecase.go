package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/osparrot/swiftpayme-platform-sub005/internal/domain"
)

// BucketUseCase moves value between the buckets of one account:
// freeze/unfreeze, reserve/release and escrow.
type BucketUseCase struct {
	deps Dependencies
}

// NewBucketUseCase creates a new BucketUseCase.
func NewBucketUseCase(deps Dependencies) *BucketUseCase {
	return &BucketUseCase{deps: deps.withDefaults()}
}

// BucketMoveInput requests one bucket move. A nil Amount means the whole source
// bucket for freeze and unfreeze and is rejected by the other operations.
type BucketMoveInput struct {
	Reference string
	AccountID string
	Amount    *decimal.Decimal
	Reason    string
	Actor     string
}

// BucketMoveResult is the committed operation and the account balances after it.
type BucketMoveResult struct {
	Operation *domain.BucketOperation
	Balances  domain.Balances
	Replayed  bool
}

// Freeze moves available value to frozen.
func (uc *BucketUseCase) Freeze(ctx context.Context, input BucketMoveInput) (*BucketMoveResult, error) {
	return uc.Move(ctx, domain.BucketOpFreeze, input)
}

// Unfreeze moves frozen value back to available.
func (uc *BucketUseCase) Unfreeze(ctx context.Context, input BucketMoveInput) (*BucketMoveResult, error) {
	return uc.Move(ctx, domain.BucketOpUnfreeze, input)
}

// Reserve moves available value to reserved.
func (uc *BucketUseCase) Reserve(ctx context.Context, input BucketMoveInput) (*BucketMoveResult, error) {
	return uc.Move(ctx, domain.BucketOpReserve, input)
}

// Release moves reserved value back to available.
func (uc *BucketUseCase) Release(ctx context.Context, input BucketMoveInput) (*BucketMoveResult, error) {
	return uc.Move(ctx, domain.BucketOpRelease, input)
}

// PlaceInEscrow moves available value to escrow.
func (uc *BucketUseCase) PlaceInEscrow(ctx context.Context, input BucketMoveInput) (*BucketMoveResult, error) {
	return uc.Move(ctx, domain.BucketOpEscrow, input)
}

// ReleaseEscrow moves escrowed value back to available.
func (uc *BucketUseCase) ReleaseEscrow(ctx context.Context, input BucketMoveInput) (*BucketMoveResult, error) {
	return uc.Move(ctx, domain.BucketOpEscrowRelease, input)
}

// Move runs one bucket operation under the posting protocol: idempotent by
// reference, account locked, history and outbox written in one unit of work.
func (uc *BucketUseCase) Move(ctx context.Context, kind domain.BucketOperationKind, input BucketMoveInput) (result *BucketMoveResult, err error) {
	d := uc.deps
	ctx, span := d.Tracer.Start(ctx, "ledger.bucket_move",
		trace.WithAttributes(
			attribute.String("ledger.operation", string(kind)),
			attribute.String("ledger.reference", input.Reference),
			attribute.String("ledger.account_id", input.AccountID),
		))
	defer func() {
		uc.observe(kind, input, result, err)
		endSpan(span, err)
	}()

	input.Actor = resolveActor(ctx, input.Actor)
	if err = uc.validate(kind, input); err != nil {
		return nil, err
	}
	hash := domain.BucketMovePayloadHash(kind, input.AccountID, input.Amount, input.Reason)

	if result, err = uc.replay(ctx, input.Reference, hash); result != nil || err != nil {
		return result, err
	}

	var op *domain.BucketOperation
	var balances domain.Balances
	err = d.runUnitOfWork(ctx, func(ctx context.Context, tx Transaction) error {
		locked, err := d.Accounts.GetByIDsForUpdate(ctx, tx, []string{input.AccountID})
		if err != nil {
			return err
		}
		if len(locked) != 1 {
			return fmt.Errorf("%w: %s", domain.ErrAccountNotFound, input.AccountID)
		}
		// Read the clock under the row lock so history timestamps follow commit order.
		now := d.Clock()
		acc := locked[0]
		before := domain.AccountState(acc)

		records, err := kind.Apply(acc, domain.BucketMove{
			Amount:    input.Amount,
			Reference: input.Reference,
			Reason:    input.Reason,
			Actor:     input.Actor,
			At:        now,
		})
		if err != nil {
			return err
		}

		op = &domain.BucketOperation{
			ID:          d.IDGen.Generate(),
			Reference:   input.Reference,
			AccountID:   acc.ID,
			Kind:        kind,
			Amount:      records[0].Delta.Abs(),
			Reason:      input.Reason,
			Actor:       input.Actor,
			PayloadHash: hash,
			CreatedAt:   now,
		}
		if err := d.BucketOps.Create(ctx, tx, op); err != nil {
			return err
		}
		if err := d.persistAccounts(ctx, tx, locked, now); err != nil {
			return err
		}
		if err := d.emitBalanceEvents(ctx, tx, locked, input.Reference, now); err != nil {
			return err
		}
		if err := d.audit(ctx, tx, &domain.AuditLog{
			Actor:        input.Actor,
			Action:       kind.AuditAction(),
			ResourceType: domain.AggregateTypeAccount,
			ResourceID:   acc.ID,
			Reference:    input.Reference,
			Reason:       input.Reason,
			BeforeState:  before,
			AfterState:   domain.AccountState(acc),
			CreatedAt:    now,
		}); err != nil {
			return err
		}
		balances = acc.Balances
		return nil
	})
	if errors.Is(err, domain.ErrDuplicateReference) {
		replayed, replayErr := uc.replay(context.WithoutCancel(ctx), input.Reference, hash)
		if replayErr != nil {
			return nil, replayErr
		}
		if replayed != nil {
			return replayed, nil
		}
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	rememberReference(ctx, d, "bucket:"+input.Reference, hash)
	return &BucketMoveResult{Operation: op, Balances: balances}, nil
}

// IsBalanceSufficient reports whether bucket covers amount. It never mutates.
func (uc *BucketUseCase) IsBalanceSufficient(ctx context.Context, accountID string, amount decimal.Decimal, bucket domain.Bucket) (bool, error) {
	if err := domain.ValidateAmount(amount); err != nil {
		return false, err
	}
	acc, err := uc.deps.Accounts.GetByID(ctx, accountID)
	if err != nil {
		return false, err
	}
	return acc.IsBalanceSufficient(amount, bucket)
}

func (uc *BucketUseCase) validate(kind domain.BucketOperationKind, input BucketMoveInput) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: %q", domain.ErrInvalidOperation, kind)
	}
	if err := domain.ValidateReference(input.Reference); err != nil {
		return err
	}
	if err := domain.ValidateActor(input.Actor); err != nil {
		return err
	}
	if input.AccountID == "" {
		return fmt.Errorf("%w: account is required", domain.ErrInvalidIDFormat)
	}
	if input.Amount != nil {
		return domain.ValidateAmount(*input.Amount)
	}
	if kind != domain.BucketOpFreeze && kind != domain.BucketOpUnfreeze {
		return domain.ErrInvalidAmount
	}
	return nil
}

func (uc *BucketUseCase) replay(ctx context.Context, reference, hash string) (*BucketMoveResult, error) {
	d := uc.deps

	if cached, ok := cachedReference(ctx, d, "bucket:"+reference); ok && cached != hash {
		return nil, fmt.Errorf("%w: %s", domain.ErrDuplicateReference, reference)
	}

	existing, err := d.BucketOps.GetByReference(ctx, reference)
	if errors.Is(err, domain.ErrBucketOpNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if existing.PayloadHash != hash {
		return nil, fmt.Errorf("%w: %s", domain.ErrDuplicateReference, reference)
	}

	acc, err := d.Accounts.GetByID(ctx, existing.AccountID)
	if err != nil {
		return nil, err
	}
	return &BucketMoveResult{Operation: existing, Balances: acc.Balances, Replayed: true}, nil
}

func (uc *BucketUseCase) observe(kind domain.BucketOperationKind, input BucketMoveInput, result *BucketMoveResult, err error) {
	d := uc.deps
	outcome := "committed"
	switch {
	case err != nil:
		outcome = "rejected"
		d.Logger.Warn().Err(err).
			Str("operation", string(kind)).
			Str("reference", input.Reference).
			Str("account_id", input.AccountID).
			Str("error_kind", string(domain.ErrorKind(err))).
			Msg("bucket move rejected")
	case result.Replayed:
		outcome = "replayed"
	default:
		d.Logger.Info().
			Str("operation", string(kind)).
			Str("reference", input.Reference).
			Str("account_id", input.AccountID).
			Str("amount", result.Operation.Amount.String()).
			Str("actor", input.Actor).
			Msg("bucket move committed")
	}
	if d.Metrics != nil {
		d.Metrics.BucketOperations.WithLabelValues(string(kind), outcome).Inc()
	}
}
