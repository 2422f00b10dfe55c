package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/osparrot/swiftpayme-platform-sub005/internal/domain"
)

// reconcileBatchSize is the page size used to walk every account.
const reconcileBatchSize = 1000

// ReconciliationUseCase handles balance reconciliation operations
type ReconciliationUseCase struct {
	deps Dependencies
}

// NewReconciliationUseCase creates a new reconciliation use case
func NewReconciliationUseCase(deps Dependencies) *ReconciliationUseCase {
	return &ReconciliationUseCase{deps: deps.withDefaults()}
}

// BucketDiscrepancy is a stored bucket that disagrees with its last history record.
type BucketDiscrepancy struct {
	AccountID   string
	Bucket      domain.Bucket
	Recorded    decimal.Decimal
	FromHistory decimal.Decimal
	Difference  decimal.Decimal
}

// BucketDrift reports available − (current − reserved − frozen) for one account.
// Drift is informational and never blocks writes.
type BucketDrift struct {
	AccountID string
	Drift     decimal.Decimal
}

// ReconciliationReport represents a full reconciliation report
type ReconciliationReport struct {
	TotalAccounts      int
	ReconciledAccounts int
	Discrepancies      []BucketDiscrepancy
	Drift              []BucketDrift
	Totals             []domain.CurrencyTotals
	LedgerConsistent   bool
	CheckedAt          time.Time
}

// Reconcile compares every account's buckets with its balance history and
// verifies that each currency nets to zero.
func (uc *ReconciliationUseCase) Reconcile(ctx context.Context) (*ReconciliationReport, error) {
	d := uc.deps

	accounts, err := uc.allAccounts(ctx)
	if err != nil {
		return nil, err
	}
	latest, err := d.History.LatestValues(ctx)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	report := &ReconciliationReport{
		TotalAccounts: len(accounts),
		CheckedAt:     d.Clock(),
	}
	snapshots := make([]domain.AccountSnapshot, 0, len(accounts))
	for _, acc := range accounts {
		found := reconcileAccount(acc, latest[acc.ID])
		if len(found) == 0 {
			report.ReconciledAccounts++
		}
		report.Discrepancies = append(report.Discrepancies, found...)

		if drift := acc.Balances.BucketDrift(); !drift.IsZero() {
			report.Drift = append(report.Drift, BucketDrift{AccountID: acc.ID, Drift: drift})
		}
		snapshots = append(snapshots, domain.AccountSnapshot{
			AccountID: acc.ID,
			Type:      acc.Type,
			Currency:  acc.Currency,
			Current:   acc.Balances.Current,
		})
	}

	tb := domain.BuildTrialBalance(report.CheckedAt, snapshots)
	report.Totals = tb.Totals
	report.LedgerConsistent = tb.Balanced && len(report.Discrepancies) == 0

	outcome := "consistent"
	if !report.LedgerConsistent {
		outcome = "inconsistent"
		d.Logger.Error().
			Int("discrepancies", len(report.Discrepancies)).
			Bool("balanced", tb.Balanced).
			Msg("ledger reconciliation found inconsistencies")
	} else {
		d.Logger.Info().
			Int("accounts", report.TotalAccounts).
			Int("drifting", len(report.Drift)).
			Msg("ledger reconciled")
	}
	if d.Metrics != nil {
		d.Metrics.ReconcileRun.WithLabelValues(outcome).Inc()
	}
	return report, nil
}

// ReconcileAccount checks a single account against its history.
func (uc *ReconciliationUseCase) ReconcileAccount(ctx context.Context, accountID string) ([]BucketDiscrepancy, error) {
	acc, err := uc.deps.Accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	latest, err := uc.deps.History.LatestValues(ctx)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	return reconcileAccount(acc, latest[acc.ID]), nil
}

// CheckLedgerConsistency returns ErrInconsistentLedger when reconciliation fails.
func (uc *ReconciliationUseCase) CheckLedgerConsistency(ctx context.Context) error {
	report, err := uc.Reconcile(ctx)
	if err != nil {
		return err
	}
	if report.LedgerConsistent {
		return nil
	}
	for _, tot := range report.Totals {
		if !tot.Balanced {
			return fmt.Errorf("%w: %s nets to %s", domain.ErrInconsistentLedger, tot.Currency, tot.Net.String())
		}
	}
	first := report.Discrepancies[0]
	return fmt.Errorf("%w: account %s %s is %s, history says %s", domain.ErrInconsistentLedger,
		first.AccountID, first.Bucket, first.Recorded.String(), first.FromHistory.String())
}

func (uc *ReconciliationUseCase) allAccounts(ctx context.Context) ([]*domain.Account, error) {
	var all []*domain.Account
	for offset := 0; ; offset += reconcileBatchSize {
		page, err := uc.deps.Accounts.List(ctx, domain.AccountFilter{Limit: reconcileBatchSize, Offset: offset})
		if err != nil {
			return nil, fmt.Errorf("list accounts: %w", err)
		}
		all = append(all, page...)
		if len(page) < reconcileBatchSize {
			return all, nil
		}
	}
}

func reconcileAccount(acc *domain.Account, latest map[domain.Bucket]domain.BalanceHistoryEntry) []BucketDiscrepancy {
	var out []BucketDiscrepancy
	for _, b := range domain.Buckets {
		recorded := acc.Balances.Get(b)
		expected := decimal.Zero
		if entry, ok := latest[b]; ok {
			expected = entry.NewValue
		}
		if !recorded.Equal(expected) {
			out = append(out, BucketDiscrepancy{
				AccountID:   acc.ID,
				Bucket:      b,
				Recorded:    recorded,
				FromHistory: expected,
				Difference:  recorded.Sub(expected),
			})
		}
	}
	return out
}
