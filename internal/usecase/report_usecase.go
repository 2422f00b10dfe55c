package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/osparrot/swiftpayme-platform-sub005/internal/domain"
)

// ReportUseCase serves read-only ledger reports.
type ReportUseCase struct {
	deps Dependencies
}

// NewReportUseCase creates a new ReportUseCase.
func NewReportUseCase(deps Dependencies) *ReportUseCase {
	return &ReportUseCase{deps: deps.withDefaults()}
}

// GetTrialBalance aggregates the current bucket per account type and currency.
// Reports for a past AsOf are immutable and cached.
func (uc *ReportUseCase) GetTrialBalance(ctx context.Context, filter domain.TrialBalanceFilter) (*domain.TrialBalance, error) {
	d := uc.deps
	now := d.Clock()

	filter.Currency = strings.ToUpper(filter.Currency)
	for _, t := range filter.Types {
		if !t.Valid() {
			return nil, fmt.Errorf("%w: %q", domain.ErrInvalidAccountType, t)
		}
	}
	if filter.AsOf.After(now) {
		return nil, fmt.Errorf("%w: as-of date", domain.ErrFutureTimestamp)
	}

	var asOf *time.Time
	historic := !filter.AsOf.IsZero()
	if historic {
		t := filter.AsOf.UTC()
		asOf = &t
		filter.AsOf = t
		if cached := uc.cachedTrialBalance(ctx, filter); cached != nil {
			return cached, nil
		}
	}

	snapshots, err := d.Ledger.Snapshots(ctx, asOf, filter)
	if err != nil {
		return nil, fmt.Errorf("load snapshots: %w", err)
	}
	selected := snapshots[:0]
	for _, s := range snapshots {
		if filter.Currency != "" && s.Currency != filter.Currency {
			continue
		}
		if !filter.Includes(s.Type) {
			continue
		}
		selected = append(selected, s)
	}

	reportAt := now
	if historic {
		reportAt = filter.AsOf
	}
	tb := domain.BuildTrialBalance(reportAt, selected)

	if historic {
		uc.cacheTrialBalance(ctx, filter, tb)
	}
	return tb, nil
}

// GetAuditTrail lists balance history records, newest first.
func (uc *ReportUseCase) GetAuditTrail(ctx context.Context, filter domain.AuditTrailFilter) ([]*domain.BalanceHistoryEntry, error) {
	if err := filter.Normalize(); err != nil {
		return nil, err
	}
	return uc.deps.History.List(ctx, filter)
}

// GetAuditLogs lists administrative audit logs.
func (uc *ReportUseCase) GetAuditLogs(ctx context.Context, filter domain.AuditFilter) ([]*domain.AuditLog, error) {
	if uc.deps.Audit == nil {
		return nil, nil
	}
	if filter.StartDate != nil && filter.EndDate != nil && filter.StartDate.After(*filter.EndDate) {
		return nil, domain.ErrInvalidTimeRange
	}
	filter.Limit, filter.Offset = domain.ValidatePagination(filter.Limit, filter.Offset)
	return uc.deps.Audit.List(ctx, filter)
}

func trialBalanceKey(filter domain.TrialBalanceFilter) string {
	types := make([]string, 0, len(filter.Types))
	for _, t := range filter.Types {
		types = append(types, string(t))
	}
	sort.Strings(types)
	return fmt.Sprintf("%s%s:%s:%s", TrialBalanceCachePrefix,
		filter.AsOf.Format(time.RFC3339Nano), filter.Currency, strings.Join(types, ","))
}

func (uc *ReportUseCase) cachedTrialBalance(ctx context.Context, filter domain.TrialBalanceFilter) *domain.TrialBalance {
	d := uc.deps
	if d.Cache == nil {
		return nil
	}
	data, err := d.Cache.Get(ctx, trialBalanceKey(filter))
	if err != nil {
		d.Logger.Warn().Err(err).Msg("trial balance cache lookup failed")
		return nil
	}
	if data == nil {
		uc.countCache("miss")
		return nil
	}
	var tb domain.TrialBalance
	if err := json.Unmarshal(data, &tb); err != nil {
		d.Logger.Warn().Err(err).Msg("discarding unreadable cached trial balance")
		return nil
	}
	uc.countCache("hit")
	return &tb
}

func (uc *ReportUseCase) cacheTrialBalance(ctx context.Context, filter domain.TrialBalanceFilter, tb *domain.TrialBalance) {
	d := uc.deps
	if d.Cache == nil {
		return
	}
	data, err := json.Marshal(tb)
	if err != nil {
		return
	}
	if err := d.Cache.Set(ctx, trialBalanceKey(filter), data, d.ReportCacheTTL); err != nil {
		d.Logger.Warn().Err(err).Msg("trial balance cache write failed")
	}
}

func (uc *ReportUseCase) countCache(result string) {
	if uc.deps.Metrics != nil {
		uc.deps.Metrics.ReportCache.WithLabelValues(result).Inc()
	}
}
