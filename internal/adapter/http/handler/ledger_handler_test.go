package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osparrot/swiftpayme-platform-sub005/internal/adapter/http/dto"
	"github.com/osparrot/swiftpayme-platform-sub005/internal/domain"
	"github.com/osparrot/swiftpayme-platform-sub005/internal/usecase"
)

type reportServiceStub struct {
	trialFn func(filter domain.TrialBalanceFilter) (*domain.TrialBalance, error)
	trailFn func(filter domain.AuditTrailFilter) ([]*domain.BalanceHistoryEntry, error)
	logsFn  func(filter domain.AuditFilter) ([]*domain.AuditLog, error)
}

func (s *reportServiceStub) GetTrialBalance(_ context.Context, filter domain.TrialBalanceFilter) (*domain.TrialBalance, error) {
	return s.trialFn(filter)
}

func (s *reportServiceStub) GetAuditTrail(_ context.Context, filter domain.AuditTrailFilter) ([]*domain.BalanceHistoryEntry, error) {
	return s.trailFn(filter)
}

func (s *reportServiceStub) GetAuditLogs(_ context.Context, filter domain.AuditFilter) ([]*domain.AuditLog, error) {
	return s.logsFn(filter)
}

type reconcilerStub struct {
	reportFn  func() (*usecase.ReconciliationReport, error)
	accountFn func(accountID string) ([]usecase.BucketDiscrepancy, error)
}

func (s reconcilerStub) Reconcile(context.Context) (*usecase.ReconciliationReport, error) {
	return s.reportFn()
}

func (s reconcilerStub) ReconcileAccount(_ context.Context, accountID string) ([]usecase.BucketDiscrepancy, error) {
	return s.accountFn(accountID)
}

func TestLedgerHandler_TrialBalance(t *testing.T) {
	var got domain.TrialBalanceFilter
	h := NewLedgerHandler(&reportServiceStub{
		trialFn: func(filter domain.TrialBalanceFilter) (*domain.TrialBalance, error) {
			got = filter
			return &domain.TrialBalance{
				AsOf: filter.AsOf,
				Totals: []domain.CurrencyTotals{{
					Currency:     "USD",
					DebitNormal:  decimal.NewFromInt(10),
					CreditNormal: decimal.NewFromInt(10),
					Balanced:     true,
				}},
				Balanced: true,
			}, nil
		},
	}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/ledger/trial-balance?asOf=2026-03-01T00:00:00Z&currency=USD&types=asset,liability", nil)
	rec := httptest.NewRecorder()
	h.TrialBalance(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), got.AsOf)
	assert.Equal(t, "USD", got.Currency)
	assert.Equal(t, []domain.AccountType{domain.AccountTypeAsset, domain.AccountTypeLiability}, got.Types)

	var resp dto.TrialBalanceResponse
	decodeEnvelope(t, rec, &resp)
	assert.True(t, resp.Balanced)
	require.Len(t, resp.Totals, 1)
	assert.Equal(t, "10", resp.Totals[0].DebitNormal)
}

func TestLedgerHandler_TrialBalance_BadAsOf(t *testing.T) {
	h := NewLedgerHandler(&reportServiceStub{
		trialFn: func(domain.TrialBalanceFilter) (*domain.TrialBalance, error) {
			t.Fatal("GetTrialBalance should not be called")
			return nil, nil
		},
	}, nil)

	rec := httptest.NewRecorder()
	h.TrialBalance(rec, httptest.NewRequest(http.MethodGet, "/?asOf=yesterday", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	env := decodeEnvelope(t, rec, nil)
	assert.Contains(t, env.Error.Details, "asOf")
}

func TestLedgerHandler_AuditTrail(t *testing.T) {
	var got domain.AuditTrailFilter
	h := NewLedgerHandler(&reportServiceStub{
		trailFn: func(filter domain.AuditTrailFilter) ([]*domain.BalanceHistoryEntry, error) {
			got = filter
			return []*domain.BalanceHistoryEntry{{
				ID:        "h-1",
				Sequence:  7,
				AccountID: "acc-1",
				Bucket:    domain.BucketReserved,
				NewValue:  decimal.NewFromInt(40),
				Delta:     decimal.NewFromInt(40),
				Operation: domain.OperationAdd,
			}}, nil
		},
	}, nil)

	req := httptest.NewRequest(http.MethodGet, "/?accountId=acc-1&bucket=reserved&from=2026-01-01T00:00:00Z&limit=5", nil)
	rec := httptest.NewRecorder()
	h.AuditTrail(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "acc-1", got.AccountID)
	assert.Equal(t, domain.BucketReserved, got.Bucket)
	require.NotNil(t, got.From)
	assert.Nil(t, got.To)
	assert.Equal(t, 5, got.Limit)

	var records []dto.HistoryResponse
	decodeEnvelope(t, rec, &records)
	require.Len(t, records, 1)
	assert.Equal(t, "40", records[0].Delta)
	assert.Equal(t, int64(7), records[0].Sequence)
}

func TestLedgerHandler_AuditLogs(t *testing.T) {
	var got domain.AuditFilter
	h := NewLedgerHandler(&reportServiceStub{
		logsFn: func(filter domain.AuditFilter) ([]*domain.AuditLog, error) {
			got = filter
			return []*domain.AuditLog{{ID: "log-1", Actor: "admin", Action: domain.AuditActionAccountClose}}, nil
		},
	}, nil)

	rec := httptest.NewRecorder()
	h.AuditLogs(rec, httptest.NewRequest(http.MethodGet, "/?actor=admin&resourceId=acc-1", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "admin", got.Actor)
	assert.Equal(t, "acc-1", got.ResourceID)
	var logs []dto.AuditLogResponse
	decodeEnvelope(t, rec, &logs)
	require.Len(t, logs, 1)
	assert.Equal(t, string(domain.AuditActionAccountClose), logs[0].Action)
}

func TestLedgerHandler_Reconcile(t *testing.T) {
	t.Run("report", func(t *testing.T) {
		h := NewLedgerHandler(nil, reconcilerStub{reportFn: func() (*usecase.ReconciliationReport, error) {
			return &usecase.ReconciliationReport{TotalAccounts: 2, ReconciledAccounts: 2, LedgerConsistent: true}, nil
		}})

		rec := httptest.NewRecorder()
		h.Reconcile(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		var resp dto.ReconciliationResponse
		decodeEnvelope(t, rec, &resp)
		assert.True(t, resp.LedgerConsistent)
		assert.Equal(t, 2, resp.ReconciledAccounts)
	})

	t.Run("store failure is not echoed", func(t *testing.T) {
		h := NewLedgerHandler(nil, reconcilerStub{reportFn: func() (*usecase.ReconciliationReport, error) {
			return nil, errors.New("dial tcp 10.1.2.3:5432: connection refused")
		}})

		rec := httptest.NewRecorder()
		h.Reconcile(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.NotContains(t, rec.Body.String(), "10.1.2.3")
	})
}

func TestLedgerHandler_ReconcileAccount(t *testing.T) {
	h := NewLedgerHandler(nil, reconcilerStub{accountFn: func(accountID string) ([]usecase.BucketDiscrepancy, error) {
		switch accountID {
		case "acc-1":
			return []usecase.BucketDiscrepancy{{
				AccountID:   "acc-1",
				Bucket:      domain.BucketCurrent,
				Recorded:    decimal.RequireFromString("10"),
				FromHistory: decimal.RequireFromString("9"),
				Difference:  decimal.RequireFromString("1"),
			}}, nil
		case "acc-2":
			return nil, nil
		default:
			return nil, domain.ErrAccountNotFound
		}
	}})

	rec := httptest.NewRecorder()
	h.ReconcileAccount(rec, withURLParams(httptest.NewRequest(http.MethodGet, "/", nil), map[string]string{"id": "acc-1"}))
	require.Equal(t, http.StatusOK, rec.Code)
	var resp dto.AccountReconciliationResponse
	decodeEnvelope(t, rec, &resp)
	assert.False(t, resp.Consistent)
	require.Len(t, resp.Discrepancies, 1)
	assert.Equal(t, "1", resp.Discrepancies[0].Difference)

	rec = httptest.NewRecorder()
	h.ReconcileAccount(rec, withURLParams(httptest.NewRequest(http.MethodGet, "/", nil), map[string]string{"id": "acc-2"}))
	decodeEnvelope(t, rec, &resp)
	assert.True(t, resp.Consistent)
	assert.Empty(t, resp.Discrepancies)

	rec = httptest.NewRecorder()
	h.ReconcileAccount(rec, withURLParams(httptest.NewRequest(http.MethodGet, "/", nil), map[string]string{"id": "nope"}))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
