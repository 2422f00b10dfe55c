package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/osparrot/swiftpayme-platform-sub005/internal/adapter/http/dto"
	"github.com/osparrot/swiftpayme-platform-sub005/internal/domain"
	"github.com/osparrot/swiftpayme-platform-sub005/internal/usecase"
)

// ReportService defines the reporting behavior needed by LedgerHandler.
type ReportService interface {
	GetTrialBalance(ctx context.Context, filter domain.TrialBalanceFilter) (*domain.TrialBalance, error)
	GetAuditTrail(ctx context.Context, filter domain.AuditTrailFilter) ([]*domain.BalanceHistoryEntry, error)
	GetAuditLogs(ctx context.Context, filter domain.AuditFilter) ([]*domain.AuditLog, error)
}

// Reconciler recomputes buckets from balance history.
type Reconciler interface {
	Reconcile(ctx context.Context) (*usecase.ReconciliationReport, error)
	ReconcileAccount(ctx context.Context, accountID string) ([]usecase.BucketDiscrepancy, error)
}

// LedgerHandler handles ledger-wide reports.
type LedgerHandler struct {
	reportUC ReportService
	reconUC  Reconciler
}

// NewLedgerHandler creates a new LedgerHandler.
func NewLedgerHandler(reportUC ReportService, reconUC Reconciler) *LedgerHandler {
	return &LedgerHandler{reportUC: reportUC, reconUC: reconUC}
}

// TrialBalance returns the trial balance, optionally as of a past instant.
func (h *LedgerHandler) TrialBalance(w http.ResponseWriter, r *http.Request) {
	asOf, err := parseTimeQuery(r, "asOf")
	if err != nil {
		writeError(w, r, err)
		return
	}

	filter := domain.TrialBalanceFilter{Currency: r.URL.Query().Get("currency")}
	if asOf != nil {
		filter.AsOf = *asOf
	}
	for _, t := range splitList(r, "types") {
		filter.Types = append(filter.Types, domain.AccountType(t))
	}

	tb, err := h.reportUC.GetTrialBalance(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.TrialBalanceFromDomain(tb))
}

// AuditTrail lists balance history records.
func (h *LedgerHandler) AuditTrail(w http.ResponseWriter, r *http.Request) {
	from, err := parseTimeQuery(r, "from")
	if err != nil {
		writeError(w, r, err)
		return
	}
	to, err := parseTimeQuery(r, "to")
	if err != nil {
		writeError(w, r, err)
		return
	}
	limit, offset := page(r)
	q := r.URL.Query()

	records, err := h.reportUC.GetAuditTrail(r.Context(), domain.AuditTrailFilter{
		AccountID:      q.Get("accountId"),
		JournalEntryID: q.Get("journalEntryId"),
		TransactionID:  q.Get("transactionId"),
		Reference:      q.Get("reference"),
		Actor:          q.Get("actor"),
		Bucket:         domain.Bucket(q.Get("bucket")),
		From:           from,
		To:             to,
		Limit:          limit,
		Offset:         offset,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.HistoryFromDomain(records))
}

// AuditLogs lists administrative audit logs.
func (h *LedgerHandler) AuditLogs(w http.ResponseWriter, r *http.Request) {
	from, err := parseTimeQuery(r, "from")
	if err != nil {
		writeError(w, r, err)
		return
	}
	to, err := parseTimeQuery(r, "to")
	if err != nil {
		writeError(w, r, err)
		return
	}
	limit, offset := page(r)
	q := r.URL.Query()

	logs, err := h.reportUC.GetAuditLogs(r.Context(), domain.AuditFilter{
		Actor:        q.Get("actor"),
		Action:       domain.AuditAction(q.Get("action")),
		ResourceType: q.Get("resourceType"),
		ResourceID:   q.Get("resourceId"),
		StartDate:    from,
		EndDate:      to,
		Limit:        limit,
		Offset:       offset,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.AuditLogsFromDomain(logs))
}

// Reconcile recomputes every bucket from history and reports discrepancies.
func (h *LedgerHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	report, err := h.reconUC.Reconcile(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ReconciliationFromReport(report))
}

// ReconcileAccount checks a single account's buckets against its history.
func (h *LedgerHandler) ReconcileAccount(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "id")
	discrepancies, err := h.reconUC.ReconcileAccount(r.Context(), accountID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.AccountReconciliationFromDomain(accountID, discrepancies))
}
