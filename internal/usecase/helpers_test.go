package usecase_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/osparrot/swiftpayme-platform-sub005/internal/adapter/repository/memory"
	"github.com/osparrot/swiftpayme-platform-sub005/internal/domain"
	"github.com/osparrot/swiftpayme-platform-sub005/internal/infrastructure/metrics"
	"github.com/osparrot/swiftpayme-platform-sub005/internal/usecase"
)

type seqIDGen struct{ n atomic.Int64 }

func (g *seqIDGen) Generate() string {
	return fmt.Sprintf("id-%06d", g.n.Add(1))
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type ledger struct {
	store    *memory.Store
	deps     usecase.Dependencies
	clock    *fakeClock
	metrics  *metrics.Metrics
	accounts *usecase.AccountUseCase
	postings *usecase.PostingUseCase
	buckets  *usecase.BucketUseCase
	reports  *usecase.ReportUseCase
	recon    *usecase.ReconciliationUseCase
}

func newLedger(t *testing.T) *ledger {
	t.Helper()
	return newLedgerWith(t, func(*usecase.Dependencies) {})
}

func newLedgerWith(t *testing.T, customize func(*usecase.Dependencies)) *ledger {
	t.Helper()

	store := memory.NewStore()
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	m := metrics.New(prometheus.NewRegistry())
	deps := usecase.Dependencies{
		Stores:  store.Stores(),
		IDGen:   &seqIDGen{},
		Metrics: m,
		Logger:  zerolog.Nop(),
		Clock:   clock.Now,
	}
	customize(&deps)

	return &ledger{
		store:    store,
		deps:     deps,
		clock:    clock,
		metrics:  m,
		accounts: usecase.NewAccountUseCase(deps),
		postings: usecase.NewPostingUseCase(deps),
		buckets:  usecase.NewBucketUseCase(deps),
		reports:  usecase.NewReportUseCase(deps),
		recon:    usecase.NewReconciliationUseCase(deps),
	}
}

func (l *ledger) open(t *testing.T, name string, accountType domain.AccountType, currency string) *domain.Account {
	t.Helper()
	acc, err := l.accounts.CreateAccount(context.Background(), usecase.CreateAccountInput{
		Reference: "open-" + name,
		Name:      name,
		Type:      accountType,
		Currency:  currency,
		Actor:     "tester",
	})
	require.NoError(t, err)
	return acc
}

// fund moves amount from a fresh asset account into acc's current and available buckets.
func (l *ledger) fund(t *testing.T, acc *domain.Account, amount string) {
	t.Helper()
	source := l.open(t, "source-"+acc.Name, domain.AccountTypeAsset, acc.Currency)
	_, err := l.postings.PostTransaction(context.Background(), usecase.PostTransactionInput{
		Reference:       "fund-" + acc.ID,
		DebitAccountID:  source.ID,
		CreditAccountID: acc.ID,
		Amount:          dec(amount),
		Currency:        acc.Currency,
		MirrorAvailable: true,
		Actor:           "tester",
	})
	require.NoError(t, err)
}

func (l *ledger) balances(t *testing.T, id string) domain.Balances {
	t.Helper()
	b, err := l.accounts.GetBalances(context.Background(), id)
	require.NoError(t, err)
	return b
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}
