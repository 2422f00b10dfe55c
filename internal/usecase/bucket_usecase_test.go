package usecase_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osparrot/swiftpayme-platform-sub005/internal/adapter/repository/memory"
	"github.com/osparrot/swiftpayme-platform-sub005/internal/domain"
	"github.com/osparrot/swiftpayme-platform-sub005/internal/usecase"
)

func TestBucketUseCase_ReserveScenario(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()
	a := l.open(t, "alice", domain.AccountTypeLiability, "USD")
	l.fund(t, a, "100.00000000")

	_, err := l.buckets.Reserve(ctx, usecase.BucketMoveInput{
		Reference: "reserve-1",
		AccountID: a.ID,
		Amount:    decPtr("40"),
		Reason:    "pending withdrawal",
		Actor:     "crypto-purchase",
	})
	require.NoError(t, err)

	b := l.balances(t, a.ID)
	assert.True(t, b.Available.Equal(dec("60")))
	assert.True(t, b.Reserved.Equal(dec("40")))

	_, err = l.buckets.Reserve(ctx, usecase.BucketMoveInput{
		Reference: "reserve-2",
		AccountID: a.ID,
		Amount:    decPtr("70"),
		Reason:    "too much",
		Actor:     "crypto-purchase",
	})
	assert.ErrorIs(t, err, domain.ErrInsufficientAvailableBalance)

	var insufficient *domain.InsufficientBalanceError
	require.True(t, errors.As(err, &insufficient))
	assert.Equal(t, domain.BucketAvailable, insufficient.Bucket)

	b = l.balances(t, a.ID)
	assert.True(t, b.Available.Equal(dec("60")))
	assert.True(t, b.Reserved.Equal(dec("40")))
}

func TestBucketUseCase_Moves(t *testing.T) {
	tests := []struct {
		name          string
		kind          domain.BucketOperationKind
		setup         []domain.BucketOperationKind
		amount        *string
		wantAvailable string
		wantHolding   string
		holding       domain.Bucket
		wantErr       error
	}{
		{
			name:          "freeze whole available by default",
			kind:          domain.BucketOpFreeze,
			wantAvailable: "0",
			wantHolding:   "100",
			holding:       domain.BucketFrozen,
		},
		{
			name:          "freeze part",
			kind:          domain.BucketOpFreeze,
			amount:        strPtr("25"),
			wantAvailable: "75",
			wantHolding:   "25",
			holding:       domain.BucketFrozen,
		},
		{
			name:          "unfreeze whole frozen by default",
			kind:          domain.BucketOpUnfreeze,
			setup:         []domain.BucketOperationKind{domain.BucketOpFreeze},
			wantAvailable: "100",
			wantHolding:   "0",
			holding:       domain.BucketFrozen,
		},
		{
			name:    "unfreeze with nothing frozen",
			kind:    domain.BucketOpUnfreeze,
			holding: domain.BucketFrozen,
			wantErr: domain.ErrInsufficientFrozenBalance,
		},
		{
			name:    "release more than reserved",
			kind:    domain.BucketOpRelease,
			amount:  strPtr("1"),
			holding: domain.BucketReserved,
			wantErr: domain.ErrInsufficientReservedBalance,
		},
		{
			name:          "escrow",
			kind:          domain.BucketOpEscrow,
			amount:        strPtr("60"),
			wantAvailable: "40",
			wantHolding:   "60",
			holding:       domain.BucketEscrow,
		},
		{
			name:    "escrow release without escrow",
			kind:    domain.BucketOpEscrowRelease,
			amount:  strPtr("1"),
			holding: domain.BucketEscrow,
			wantErr: domain.ErrInsufficientEscrowBalance,
		},
		{
			name:    "reserve requires an amount",
			kind:    domain.BucketOpReserve,
			holding: domain.BucketReserved,
			wantErr: domain.ErrInvalidAmount,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newLedger(t)
			ctx := context.Background()
			a := l.open(t, "alice", domain.AccountTypeLiability, "USD")
			l.fund(t, a, "100")

			for i, kind := range tt.setup {
				_, err := l.buckets.Move(ctx, kind, usecase.BucketMoveInput{
					Reference: "setup-" + string(rune('a'+i)),
					AccountID: a.ID,
					Reason:    "setup",
					Actor:     "compliance",
				})
				require.NoError(t, err)
			}
			before := l.balances(t, a.ID)

			in := usecase.BucketMoveInput{
				Reference: "move",
				AccountID: a.ID,
				Reason:    "test",
				Actor:     "compliance",
			}
			if tt.amount != nil {
				in.Amount = decPtr(*tt.amount)
			}

			result, err := l.buckets.Move(ctx, tt.kind, in)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, before, l.balances(t, a.ID))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.kind, result.Operation.Kind)

			b := l.balances(t, a.ID)
			assert.True(t, b.Available.Equal(dec(tt.wantAvailable)), "available %s", b.Available)
			assert.True(t, b.Get(tt.holding).Equal(dec(tt.wantHolding)), "%s %s", tt.holding, b.Get(tt.holding))
			assert.True(t, b.Current.Equal(dec("100")), "bucket moves never touch current")
		})
	}
}

func TestBucketUseCase_IdempotentMove(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()
	a := l.open(t, "alice", domain.AccountTypeLiability, "USD")
	l.fund(t, a, "100")

	in := usecase.BucketMoveInput{
		Reference: "freeze-aml",
		AccountID: a.ID,
		Amount:    decPtr("30"),
		Reason:    "aml review",
		Actor:     "compliance",
	}
	first, err := l.buckets.Freeze(ctx, in)
	require.NoError(t, err)

	second, err := l.buckets.Freeze(ctx, in)
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.Operation.ID, second.Operation.ID)
	assert.True(t, l.balances(t, a.ID).Frozen.Equal(dec("30")))

	in.Amount = decPtr("31")
	_, err = l.buckets.Freeze(ctx, in)
	assert.ErrorIs(t, err, domain.ErrDuplicateReference)

	logs, err := l.reports.GetAuditLogs(ctx, domain.AuditFilter{Action: domain.AuditActionBalanceFreeze})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "compliance", logs[0].Actor)
	assert.Equal(t, "aml review", logs[0].Reason)
}

func TestBucketUseCase_FailureIsAtomic(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()
	a := l.open(t, "alice", domain.AccountTypeLiability, "USD")
	l.fund(t, a, "100")
	before := l.balances(t, a.ID)

	l.store.FailNext(memory.FailAuditCreate, errors.New("audit store down"))
	_, err := l.buckets.Reserve(ctx, usecase.BucketMoveInput{
		Reference: "reserve-fail",
		AccountID: a.ID,
		Amount:    decPtr("10"),
		Actor:     "tester",
	})
	require.Error(t, err)
	assert.Equal(t, before, l.balances(t, a.ID))

	records, err := l.reports.GetAuditTrail(ctx, domain.AuditTrailFilter{Reference: "reserve-fail"})
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestBucketUseCase_InactiveAccount(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()
	a := l.open(t, "alice", domain.AccountTypeLiability, "USD")
	l.fund(t, a, "100")

	_, err := l.accounts.DeactivateAccount(ctx, usecase.AccountActionInput{AccountID: a.ID, Reason: "kyc", Actor: "admin"})
	require.NoError(t, err)

	_, err = l.buckets.Freeze(ctx, usecase.BucketMoveInput{Reference: "f", AccountID: a.ID, Actor: "compliance"})
	assert.ErrorIs(t, err, domain.ErrAccountInactive)
}

func TestBucketUseCase_IsBalanceSufficient(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()
	a := l.open(t, "alice", domain.AccountTypeLiability, "USD")
	l.fund(t, a, "100")

	tests := []struct {
		amount string
		bucket domain.Bucket
		want   bool
	}{
		{"100", "", true},
		{"100.00000001", domain.BucketAvailable, false},
		{"50", domain.BucketCurrent, true},
		{"1", domain.BucketFrozen, false},
	}
	for _, tt := range tests {
		got, err := l.buckets.IsBalanceSufficient(ctx, a.ID, dec(tt.amount), tt.bucket)
		require.NoError(t, err)
		if got != tt.want {
			t.Errorf("IsBalanceSufficient(%s, %q) = %v, want %v", tt.amount, tt.bucket, got, tt.want)
		}
	}

	_, err := l.buckets.IsBalanceSufficient(ctx, a.ID, dec("1"), domain.Bucket("savings"))
	assert.ErrorIs(t, err, domain.ErrInvalidBucket)
}

func strPtr(s string) *string { return &s }
