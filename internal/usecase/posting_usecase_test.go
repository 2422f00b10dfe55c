package usecase_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/osparrot/swiftpayme-platform-sub005/internal/adapter/repository/memory"
	"github.com/osparrot/swiftpayme-platform-sub005/internal/domain"
	"github.com/osparrot/swiftpayme-platform-sub005/internal/usecase"
	"github.com/osparrot/swiftpayme-platform-sub005/internal/usecase/mocks"
)

func TestPostingUseCase_PostJournalEntry_MultiLeg(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()

	a := l.open(t, "custody", domain.AccountTypeAsset, "USD")
	b := l.open(t, "wallet-b", domain.AccountTypeLiability, "USD")
	c := l.open(t, "wallet-c", domain.AccountTypeLiability, "USD")

	result, err := l.postings.PostJournalEntry(ctx, usecase.PostJournalEntryInput{
		Reference: "je-1",
		Currency:  "USD",
		Legs: []domain.JournalLeg{
			{AccountID: a.ID, Debit: dec("50")},
			{AccountID: b.ID, Credit: dec("30")},
			{AccountID: c.ID, Credit: dec("20")},
		},
		Actor: "asset-approval",
	})
	require.NoError(t, err)
	assert.False(t, result.Replayed)
	assert.Len(t, result.Balances, 3)

	assert.True(t, l.balances(t, a.ID).Current.Equal(dec("-50")))
	assert.True(t, l.balances(t, b.ID).Current.Equal(dec("30")))
	assert.True(t, l.balances(t, c.ID).Current.Equal(dec("20")))

	records, err := l.reports.GetAuditTrail(ctx, domain.AuditTrailFilter{JournalEntryID: result.Entry.ID})
	require.NoError(t, err)
	require.Len(t, records, 3)
	seen := map[string]bool{}
	for _, r := range records {
		seen[r.AccountID] = true
		assert.Equal(t, domain.BucketCurrent, r.Bucket)
		assert.Equal(t, "asset-approval", r.PerformedBy)
	}
	assert.Len(t, seen, 3)
}

func TestPostingUseCase_PostTransaction_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(in *usecase.PostTransactionInput)
		wantErr error
	}{
		{
			name:    "missing reference",
			mutate:  func(in *usecase.PostTransactionInput) { in.Reference = "" },
			wantErr: domain.ErrMissingReference,
		},
		{
			name:    "missing actor",
			mutate:  func(in *usecase.PostTransactionInput) { in.Actor = "" },
			wantErr: domain.ErrMissingActor,
		},
		{
			name:    "same account",
			mutate:  func(in *usecase.PostTransactionInput) { in.CreditAccountID = in.DebitAccountID },
			wantErr: domain.ErrSameAccount,
		},
		{
			name:    "non-positive amount",
			mutate:  func(in *usecase.PostTransactionInput) { in.Amount = dec("0") },
			wantErr: domain.ErrInvalidAmount,
		},
		{
			name:    "currency mismatch",
			mutate:  func(in *usecase.PostTransactionInput) { in.Currency = "EUR" },
			wantErr: domain.ErrCurrencyMismatch,
		},
		{
			name:    "insufficient balance",
			mutate:  func(in *usecase.PostTransactionInput) { in.Amount = dec("1000") },
			wantErr: domain.ErrInsufficientBalance,
		},
		{
			name:    "fee without fee account",
			mutate:  func(in *usecase.PostTransactionInput) { in.Fee = dec("1") },
			wantErr: domain.ErrMissingFeeAccount,
		},
		{
			name: "fee rate finer than eight digits",
			mutate: func(in *usecase.PostTransactionInput) {
				in.Amount = dec("0.00000001")
				in.FeeRateBps = 1
				in.FeeAccountID = in.CreditAccountID
			},
			wantErr: domain.ErrPrecisionLoss,
		},
		{
			name:    "future timestamp",
			mutate:  func(in *usecase.PostTransactionInput) { in.Timestamp = time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC) },
			wantErr: domain.ErrFutureTimestamp,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newLedger(t)
			from := l.open(t, "alice", domain.AccountTypeLiability, "USD")
			to := l.open(t, "bob", domain.AccountTypeLiability, "USD")
			l.fund(t, from, "100")
			before := l.balances(t, from.ID)

			in := usecase.PostTransactionInput{
				Reference:       "tx-1",
				DebitAccountID:  from.ID,
				CreditAccountID: to.ID,
				Amount:          dec("10"),
				Currency:        "USD",
				Actor:           "tester",
			}
			tt.mutate(&in)

			_, err := l.postings.PostTransaction(context.Background(), in)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			assert.Equal(t, before, l.balances(t, from.ID))
			assert.True(t, l.balances(t, to.ID).Current.IsZero())
		})
	}
}

func TestPostingUseCase_PostTransaction_WithFee(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()

	from := l.open(t, "alice", domain.AccountTypeLiability, "USD")
	to := l.open(t, "bob", domain.AccountTypeLiability, "USD")
	fees := l.open(t, "fees", domain.AccountTypeRevenue, "USD")
	l.fund(t, from, "2000")

	result, err := l.postings.PostTransaction(ctx, usecase.PostTransactionInput{
		Reference:       "tx-fee",
		DebitAccountID:  from.ID,
		CreditAccountID: to.ID,
		Amount:          dec("1000"),
		FeeRateBps:      150,
		FeeAccountID:    fees.ID,
		Currency:        "USD",
		Actor:           "tester",
	})
	require.NoError(t, err)
	require.Len(t, result.Entry.Legs, 3)
	assert.Equal(t, domain.EntryKindTransaction, result.Entry.Kind)

	assert.True(t, l.balances(t, from.ID).Current.Equal(dec("985")), "2000 - 1000 - 15")
	assert.True(t, l.balances(t, to.ID).Current.Equal(dec("1000")))
	assert.True(t, l.balances(t, fees.ID).Current.Equal(dec("15")))
}

func TestPostingUseCase_ConcurrentDebitsNeverOverdraw(t *testing.T) {
	for run := 0; run < 20; run++ {
		l := newLedger(t)
		a := l.open(t, "alice", domain.AccountTypeLiability, "USD")
		b := l.open(t, "bob", domain.AccountTypeLiability, "USD")
		l.fund(t, a, "10")

		amounts := []string{"8", "5"}
		errs := make([]error, len(amounts))
		var wg sync.WaitGroup
		for i, amount := range amounts {
			wg.Add(1)
			go func(i int, amount string) {
				defer wg.Done()
				_, errs[i] = l.postings.PostTransaction(context.Background(), usecase.PostTransactionInput{
					Reference:       "debit-" + amount,
					DebitAccountID:  a.ID,
					CreditAccountID: b.ID,
					Amount:          dec(amount),
					Currency:        "USD",
					Actor:           "tester",
				})
			}(i, amount)
		}
		wg.Wait()

		succeeded := 0
		for _, err := range errs {
			if err == nil {
				succeeded++
				continue
			}
			if !errors.Is(err, domain.ErrInsufficientBalance) {
				t.Fatalf("run %d: unexpected error %v", run, err)
			}
		}
		if succeeded != 1 {
			t.Fatalf("run %d: expected exactly one success, got %d", run, succeeded)
		}

		current := l.balances(t, a.ID).Current
		if !current.Equal(dec("2")) && !current.Equal(dec("5")) {
			t.Fatalf("run %d: unexpected current %s", run, current)
		}
	}
}

func TestPostingUseCase_Idempotency(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()

	a := l.open(t, "alice", domain.AccountTypeLiability, "USD")
	b := l.open(t, "bob", domain.AccountTypeLiability, "USD")
	l.fund(t, a, "100")

	in := usecase.PostTransactionInput{
		Reference:       "tx-idem",
		DebitAccountID:  a.ID,
		CreditAccountID: b.ID,
		Amount:          dec("25"),
		Currency:        "USD",
		Actor:           "tester",
	}
	first, err := l.postings.PostTransaction(ctx, in)
	require.NoError(t, err)

	second, err := l.postings.PostTransaction(ctx, in)
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.Entry.ID, second.Entry.ID)
	assert.True(t, l.balances(t, a.ID).Current.Equal(dec("75")), "replay must not post twice")
	assert.Equal(t, 1.0, testutil.ToFloat64(l.metrics.PostingReplays))

	in.Amount = dec("26")
	_, err = l.postings.PostTransaction(ctx, in)
	assert.ErrorIs(t, err, domain.ErrDuplicateReference)
	assert.True(t, l.balances(t, a.ID).Current.Equal(dec("75")))
}

func TestPostingUseCase_StoreFailureLeavesNoTrace(t *testing.T) {
	points := []string{
		memory.FailJournalCreate,
		memory.FailAccountUpdate,
		memory.FailHistoryAppend,
		memory.FailOutboxCreate,
		memory.FailCommit,
	}

	for _, point := range points {
		t.Run(point, func(t *testing.T) {
			l := newLedger(t)
			ctx := context.Background()
			a := l.open(t, "alice", domain.AccountTypeLiability, "USD")
			b := l.open(t, "bob", domain.AccountTypeLiability, "USD")
			l.fund(t, a, "100")

			beforeA, beforeB := l.balances(t, a.ID), l.balances(t, b.ID)
			trail, err := l.reports.GetAuditTrail(ctx, domain.AuditTrailFilter{})
			require.NoError(t, err)

			l.store.FailNext(point, errors.New("injected failure"))
			_, err = l.postings.PostTransaction(ctx, usecase.PostTransactionInput{
				Reference:       "tx-fault",
				DebitAccountID:  a.ID,
				CreditAccountID: b.ID,
				Amount:          dec("40"),
				Currency:        "USD",
				Actor:           "tester",
			})
			require.Error(t, err)
			assert.Equal(t, domain.KindInternal, domain.ErrorKind(err))

			assert.Equal(t, beforeA, l.balances(t, a.ID))
			assert.Equal(t, beforeB, l.balances(t, b.ID))
			after, err := l.reports.GetAuditTrail(ctx, domain.AuditTrailFilter{})
			require.NoError(t, err)
			assert.Len(t, after, len(trail))
			_, err = l.postings.GetJournalEntry(ctx, "tx-fault")
			assert.ErrorIs(t, err, domain.ErrJournalEntryNotFound)
		})
	}
}

func TestPostingUseCase_ReverseJournalEntry(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()

	a := l.open(t, "alice", domain.AccountTypeLiability, "USD")
	b := l.open(t, "bob", domain.AccountTypeLiability, "USD")
	l.fund(t, a, "100")

	_, err := l.postings.PostTransaction(ctx, usecase.PostTransactionInput{
		Reference:       "tx-orig",
		DebitAccountID:  a.ID,
		CreditAccountID: b.ID,
		Amount:          dec("30"),
		Currency:        "USD",
		Actor:           "tester",
	})
	require.NoError(t, err)

	reverse := usecase.ReverseJournalEntryInput{
		OriginalReference: "tx-orig",
		Reference:         "tx-orig-rev",
		Reason:            "customer dispute",
		Actor:             "compliance",
	}
	result, err := l.postings.ReverseJournalEntry(ctx, reverse)
	require.NoError(t, err)
	assert.Equal(t, domain.EntryKindReversal, result.Entry.Kind)
	assert.True(t, l.balances(t, a.ID).Current.Equal(dec("100")))
	assert.True(t, l.balances(t, b.ID).Current.IsZero())

	original, err := l.postings.GetJournalEntry(ctx, "tx-orig")
	require.NoError(t, err)
	require.NotNil(t, original.ReversedBy)
	assert.Equal(t, result.Entry.ID, *original.ReversedBy)

	replayed, err := l.postings.ReverseJournalEntry(ctx, reverse)
	require.NoError(t, err)
	assert.True(t, replayed.Replayed)

	reverse.Reference = "tx-orig-rev-2"
	_, err = l.postings.ReverseJournalEntry(ctx, reverse)
	assert.ErrorIs(t, err, domain.ErrAlreadyReversed)

	_, err = l.postings.ReverseJournalEntry(ctx, usecase.ReverseJournalEntryInput{
		OriginalReference: "tx-orig-rev",
		Reference:         "tx-orig-rev-rev",
		Actor:             "compliance",
	})
	assert.ErrorIs(t, err, domain.ErrReversalNotApplicable)
}

func TestPostingUseCase_CancelledBeforeBegin(t *testing.T) {
	l := newLedger(t)
	a := l.open(t, "alice", domain.AccountTypeLiability, "USD")
	b := l.open(t, "bob", domain.AccountTypeLiability, "USD")
	l.fund(t, a, "100")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := l.postings.PostTransaction(ctx, usecase.PostTransactionInput{
		Reference:       "tx-cancel",
		DebitAccountID:  a.ID,
		CreditAccountID: b.ID,
		Amount:          dec("10"),
		Currency:        "USD",
		Actor:           "tester",
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, l.balances(t, a.ID).Current.Equal(dec("100")))
}

func TestPostingUseCase_PostingTimeout(t *testing.T) {
	l := newLedgerWith(t, func(d *usecase.Dependencies) { d.PostingTimeout = 20 * time.Millisecond })
	ctx := context.Background()
	a := l.open(t, "alice", domain.AccountTypeLiability, "USD")
	b := l.open(t, "bob", domain.AccountTypeLiability, "USD")
	l.fund(t, a, "100")

	// Hold the row lock on a so the posting cannot finish in time.
	stores := l.store.Stores()
	blocker, err := stores.TxManager.Begin(ctx)
	require.NoError(t, err)
	_, err = stores.Accounts.GetByIDsForUpdate(ctx, blocker, []string{a.ID})
	require.NoError(t, err)

	_, err = l.postings.PostTransaction(ctx, usecase.PostTransactionInput{
		Reference:       "tx-slow",
		DebitAccountID:  a.ID,
		CreditAccountID: b.ID,
		Amount:          dec("10"),
		Currency:        "USD",
		Actor:           "tester",
	})
	assert.ErrorIs(t, err, domain.ErrPostingTimeout)
	require.NoError(t, blocker.Rollback(ctx))

	assert.True(t, l.balances(t, a.ID).Current.Equal(dec("100")))
}

func TestPostingUseCase_HistoryStampedAfterLockWait(t *testing.T) {
	var armed atomic.Bool
	reads := make(chan struct{}, 16)
	l := newLedgerWith(t, func(d *usecase.Dependencies) {
		base := d.Clock
		d.Clock = func() time.Time {
			if armed.Load() {
				select {
				case reads <- struct{}{}:
				default:
				}
			}
			return base()
		}
	})
	ctx := context.Background()
	start := l.clock.Now()

	treasury := l.open(t, "treasury", domain.AccountTypeAsset, "USD")
	alice := l.open(t, "alice", domain.AccountTypeLiability, "USD")
	l.fund(t, alice, "100")

	stores := l.store.Stores()
	blocker, err := stores.TxManager.Begin(ctx)
	require.NoError(t, err)
	_, err = stores.Accounts.GetByIDsForUpdate(ctx, blocker, []string{alice.ID})
	require.NoError(t, err)

	armed.Store(true)
	done := make(chan error, 1)
	go func() {
		_, err := l.postings.PostTransaction(ctx, usecase.PostTransactionInput{
			Reference:       "tx-waits",
			DebitAccountID:  treasury.ID,
			CreditAccountID: alice.ID,
			Amount:          dec("10"),
			Currency:        "USD",
			Actor:           "tester",
		})
		done <- err
	}()

	// Both validation reads happen before the posting reaches the row lock.
	<-reads
	<-reads
	l.clock.Advance(5 * time.Second)
	require.NoError(t, blocker.Rollback(ctx))
	require.NoError(t, <-done)

	trail, err := l.reports.GetAuditTrail(ctx, domain.AuditTrailFilter{AccountID: alice.ID, Bucket: domain.BucketCurrent, Limit: 10})
	require.NoError(t, err)
	require.NotEmpty(t, trail)
	assert.Equal(t, "tx-waits", trail[0].Reference)
	assert.True(t, trail[0].Timestamp.Equal(start.Add(5*time.Second)), trail[0].Timestamp.String())

	tb, err := l.reports.GetTrialBalance(ctx, domain.TrialBalanceFilter{AsOf: start.Add(2 * time.Second), Currency: "USD"})
	require.NoError(t, err)
	for _, line := range tb.Lines {
		if line.Type == domain.AccountTypeLiability {
			assert.True(t, line.Current.Equal(dec("100")), line.Current.String())
		}
	}
}

func TestPostingUseCase_OutboxEvents(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()
	a := l.open(t, "alice", domain.AccountTypeLiability, "USD")
	b := l.open(t, "bob", domain.AccountTypeLiability, "USD")
	l.fund(t, a, "100")

	outbox := l.store.Stores().Outbox
	before, err := outbox.GetUnpublished(ctx, 0)
	require.NoError(t, err)

	_, err = l.postings.PostTransaction(ctx, usecase.PostTransactionInput{
		Reference:       "tx-events",
		DebitAccountID:  a.ID,
		CreditAccountID: b.ID,
		Amount:          dec("10"),
		Currency:        "USD",
		Actor:           "tester",
	})
	require.NoError(t, err)

	events, err := outbox.GetUnpublished(ctx, 0)
	require.NoError(t, err)
	events = events[len(before):]
	require.Len(t, events, 3)

	types := map[string]int{}
	for _, e := range events {
		types[e.EventType]++
	}
	assert.Equal(t, 2, types[domain.EventTypeBalanceUpdated])
	assert.Equal(t, 1, types[domain.EventTypeJournalPosted])
}

func TestPostingUseCase_ReferenceCache(t *testing.T) {
	t.Run("cached fingerprint mismatch short-circuits", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		cache := mocks.NewMockCache(ctrl)
		txManager := mocks.NewMockTransactionManager(ctrl)

		l := newLedgerWith(t, func(d *usecase.Dependencies) {
			d.Cache = cache
			d.TxManager = txManager
		})
		cache.EXPECT().
			Get(gomock.Any(), usecase.ReferenceCachePrefix+"journal:tx-cached").
			Return([]byte("another-payload"), nil)
		txManager.EXPECT().Begin(gomock.Any()).Times(0)

		_, err := l.postings.PostTransaction(context.Background(), usecase.PostTransactionInput{
			Reference:       "tx-cached",
			DebitAccountID:  "acc-a",
			CreditAccountID: "acc-b",
			Amount:          dec("10"),
			Currency:        "USD",
			Actor:           "tester",
		})
		assert.ErrorIs(t, err, domain.ErrDuplicateReference)
	})

	t.Run("committed posting is remembered", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		cache := mocks.NewMockCache(ctrl)
		l := newLedgerWith(t, func(d *usecase.Dependencies) { d.Cache = cache })

		cache.EXPECT().Get(gomock.Any(), gomock.Any()).Return(nil, nil).AnyTimes()
		cache.EXPECT().Set(gomock.Any(), gomock.Any(), gomock.Any(), usecase.IdempotencyKeyTTL).Return(nil).AnyTimes()

		a := l.open(t, "alice", domain.AccountTypeLiability, "USD")
		b := l.open(t, "bob", domain.AccountTypeLiability, "USD")
		l.fund(t, a, "100")

		result, err := l.postings.PostTransaction(context.Background(), usecase.PostTransactionInput{
			Reference:       "tx-remember",
			DebitAccountID:  a.ID,
			CreditAccountID: b.ID,
			Amount:          dec("10"),
			Currency:        "USD",
			Actor:           "tester",
		})
		require.NoError(t, err)
		assert.NotEmpty(t, result.Entry.PayloadHash)
	})
}

func TestPostingUseCase_ActorFromContext(t *testing.T) {
	l := newLedger(t)
	a := l.open(t, "alice", domain.AccountTypeLiability, "USD")
	b := l.open(t, "bob", domain.AccountTypeLiability, "USD")
	l.fund(t, a, "100")

	ctx := domain.ContextWithActor(context.Background(), &domain.Actor{ID: "svc-crypto", Role: domain.RoleService})
	result, err := l.postings.PostTransaction(ctx, usecase.PostTransactionInput{
		Reference:       "tx-actor",
		DebitAccountID:  a.ID,
		CreditAccountID: b.ID,
		Amount:          dec("10"),
		Currency:        "USD",
		Actor:           "spoofed",
	})
	require.NoError(t, err)
	assert.Equal(t, "svc-crypto", result.Entry.Actor)
}
