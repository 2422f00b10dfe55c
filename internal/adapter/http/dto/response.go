package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/osparrot/swiftpayme-platform-sub005/internal/domain"
	"github.com/osparrot/swiftpayme-platform-sub005/internal/usecase"
)

// Envelope wraps every API response.
type Envelope struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorBody `json:"error,omitempty"`
}

// ErrorBody describes a failed request. Code is the error kind.
type ErrorBody struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

// BalancesResponse holds the six buckets of one account.
type BalancesResponse struct {
	Current   string `json:"current"`
	Available string `json:"available"`
	Pending   string `json:"pending"`
	Reserved  string `json:"reserved"`
	Frozen    string `json:"frozen"`
	Escrow    string `json:"escrow"`
}

// BalancesFromDomain converts domain balances to response.
func BalancesFromDomain(b domain.Balances) BalancesResponse {
	return BalancesResponse{
		Current:   b.Current.String(),
		Available: b.Available.String(),
		Pending:   b.Pending.String(),
		Reserved:  b.Reserved.String(),
		Frozen:    b.Frozen.String(),
		Escrow:    b.Escrow.String(),
	}
}

// AccountResponse represents an account in API responses.
type AccountResponse struct {
	ID                   string                 `json:"id"`
	AccountNumber        string                 `json:"accountNumber"`
	Reference            string                 `json:"reference"`
	Name                 string                 `json:"name"`
	UserID               string                 `json:"userId,omitempty"`
	Type                 string                 `json:"type"`
	Category             string                 `json:"category,omitempty"`
	Currency             string                 `json:"currency"`
	CurrencyKind         string                 `json:"currencyKind"`
	ParentID             *string                `json:"parentId,omitempty"`
	Balances             BalancesResponse       `json:"balances"`
	AllowNegativeBalance bool                   `json:"allowNegativeBalance"`
	CreditLimit          *string                `json:"creditLimit,omitempty"`
	MinBalance           *string                `json:"minBalance,omitempty"`
	MaxBalance           *string                `json:"maxBalance,omitempty"`
	Status               string                 `json:"status"`
	ClosedAt             *time.Time             `json:"closedAt,omitempty"`
	Refs                 domain.IntegrationRefs `json:"refs"`
	Metadata             map[string]any         `json:"metadata,omitempty"`
	Version              int64                  `json:"version"`
	CreatedAt            time.Time              `json:"createdAt"`
	UpdatedAt            time.Time              `json:"updatedAt"`
}

// AccountFromDomain converts domain account to response.
func AccountFromDomain(a *domain.Account) *AccountResponse {
	return &AccountResponse{
		ID:                   a.ID,
		AccountNumber:        a.AccountNumber,
		Reference:            a.Reference,
		Name:                 a.Name,
		UserID:               a.UserID,
		Type:                 string(a.Type),
		Category:             a.Category,
		Currency:             a.Currency,
		CurrencyKind:         string(a.CurrencyKind),
		ParentID:             a.ParentID,
		Balances:             BalancesFromDomain(a.Balances),
		AllowNegativeBalance: a.AllowNegativeBalance,
		CreditLimit:          decimalString(a.CreditLimit),
		MinBalance:           decimalString(a.MinBalance),
		MaxBalance:           decimalString(a.MaxBalance),
		Status:               string(a.Status),
		ClosedAt:             a.ClosedAt,
		Refs:                 a.Refs,
		Metadata:             a.Metadata,
		Version:              a.Version,
		CreatedAt:            a.CreatedAt,
		UpdatedAt:            a.UpdatedAt,
	}
}

// AccountsFromDomain converts domain accounts to responses.
func AccountsFromDomain(accounts []*domain.Account) []*AccountResponse {
	result := make([]*AccountResponse, len(accounts))
	for i, a := range accounts {
		result[i] = AccountFromDomain(a)
	}
	return result
}

// ListAccountsResponse is a page of accounts.
type ListAccountsResponse struct {
	Accounts []*AccountResponse `json:"accounts"`
	Limit    int                `json:"limit"`
	Offset   int                `json:"offset"`
}

// JournalLegResponse is one leg of a journal entry.
type JournalLegResponse struct {
	AccountID   string `json:"accountId"`
	Debit       string `json:"debit"`
	Credit      string `json:"credit"`
	Bucket      string `json:"bucket"`
	Description string `json:"description,omitempty"`
}

// JournalEntryResponse represents a journal entry in API responses.
type JournalEntryResponse struct {
	ID                string               `json:"id"`
	Reference         string               `json:"reference"`
	ExternalReference string               `json:"externalReference,omitempty"`
	Kind              string               `json:"kind"`
	Currency          string               `json:"currency"`
	Legs              []JournalLegResponse `json:"legs"`
	Description       string               `json:"description,omitempty"`
	Tags              []string             `json:"tags,omitempty"`
	Metadata          map[string]any       `json:"metadata,omitempty"`
	MirrorAvailable   bool                 `json:"mirrorAvailable"`
	Actor             string               `json:"actor"`
	Timestamp         time.Time            `json:"timestamp"`
	ReversalOf        *string              `json:"reversalOf,omitempty"`
	ReversedBy        *string              `json:"reversedBy,omitempty"`
	CreatedAt         time.Time            `json:"createdAt"`
}

// JournalEntryFromDomain converts a domain journal entry to response.
func JournalEntryFromDomain(e *domain.JournalEntry) *JournalEntryResponse {
	legs := make([]JournalLegResponse, len(e.Legs))
	for i, l := range e.Legs {
		bucket := l.Bucket
		if bucket == "" {
			bucket = domain.BucketCurrent
		}
		legs[i] = JournalLegResponse{
			AccountID:   l.AccountID,
			Debit:       l.Debit.String(),
			Credit:      l.Credit.String(),
			Bucket:      string(bucket),
			Description: l.Description,
		}
	}
	return &JournalEntryResponse{
		ID:                e.ID,
		Reference:         e.Reference,
		ExternalReference: e.ExternalReference,
		Kind:              string(e.Kind),
		Currency:          e.Currency,
		Legs:              legs,
		Description:       e.Description,
		Tags:              e.Tags,
		Metadata:          e.Metadata,
		MirrorAvailable:   e.MirrorAvailable,
		Actor:             e.Actor,
		Timestamp:         e.Timestamp,
		ReversalOf:        e.ReversalOf,
		ReversedBy:        e.ReversedBy,
		CreatedAt:         e.CreatedAt,
	}
}

// JournalEntriesFromDomain converts domain journal entries to responses.
func JournalEntriesFromDomain(entries []*domain.JournalEntry) []*JournalEntryResponse {
	result := make([]*JournalEntryResponse, len(entries))
	for i, e := range entries {
		result[i] = JournalEntryFromDomain(e)
	}
	return result
}

// PostingResponse is the committed entry and the balances it produced.
type PostingResponse struct {
	Entry    *JournalEntryResponse       `json:"entry"`
	Balances map[string]BalancesResponse `json:"balances"`
	Replayed bool                        `json:"replayed"`
}

// PostingFromResult converts a posting result to response.
func PostingFromResult(r *usecase.PostingResult) *PostingResponse {
	balances := make(map[string]BalancesResponse, len(r.Balances))
	for id, b := range r.Balances {
		balances[id] = BalancesFromDomain(b)
	}
	return &PostingResponse{
		Entry:    JournalEntryFromDomain(r.Entry),
		Balances: balances,
		Replayed: r.Replayed,
	}
}

// BucketMoveResponse is a committed bucket operation.
type BucketMoveResponse struct {
	ID        string           `json:"id"`
	Reference string           `json:"reference"`
	AccountID string           `json:"accountId"`
	Kind      string           `json:"kind"`
	Amount    string           `json:"amount"`
	Reason    string           `json:"reason,omitempty"`
	Actor     string           `json:"actor"`
	CreatedAt time.Time        `json:"createdAt"`
	Balances  BalancesResponse `json:"balances"`
	Replayed  bool             `json:"replayed"`
}

// BucketMoveFromResult converts a bucket move result to response.
func BucketMoveFromResult(r *usecase.BucketMoveResult) *BucketMoveResponse {
	op := r.Operation
	return &BucketMoveResponse{
		ID:        op.ID,
		Reference: op.Reference,
		AccountID: op.AccountID,
		Kind:      string(op.Kind),
		Amount:    op.Amount.String(),
		Reason:    op.Reason,
		Actor:     op.Actor,
		CreatedAt: op.CreatedAt,
		Balances:  BalancesFromDomain(r.Balances),
		Replayed:  r.Replayed,
	}
}

// SufficiencyResponse answers a balance sufficiency check.
type SufficiencyResponse struct {
	AccountID  string `json:"accountId"`
	Bucket     string `json:"bucket"`
	Amount     string `json:"amount"`
	Sufficient bool   `json:"sufficient"`
}

// TrialBalanceLineResponse is one (type, currency) group.
type TrialBalanceLineResponse struct {
	Type         string `json:"type"`
	Currency     string `json:"currency"`
	Side         string `json:"side"`
	AccountCount int    `json:"accountCount"`
	Balance      string `json:"balance"`
}

// CurrencyTotalsResponse holds per-currency totals.
type CurrencyTotalsResponse struct {
	Currency     string `json:"currency"`
	DebitNormal  string `json:"debitNormal"`
	CreditNormal string `json:"creditNormal"`
	Net          string `json:"net"`
	Balanced     bool   `json:"balanced"`
}

// TrialBalanceResponse represents the trial balance report.
type TrialBalanceResponse struct {
	AsOf     time.Time                  `json:"asOf"`
	Lines    []TrialBalanceLineResponse `json:"lines"`
	Totals   []CurrencyTotalsResponse   `json:"totals"`
	Balanced bool                       `json:"balanced"`
}

// TrialBalanceFromDomain converts a trial balance to response.
func TrialBalanceFromDomain(tb *domain.TrialBalance) *TrialBalanceResponse {
	resp := &TrialBalanceResponse{
		AsOf:     tb.AsOf,
		Lines:    make([]TrialBalanceLineResponse, len(tb.Lines)),
		Totals:   totalsFromDomain(tb.Totals),
		Balanced: tb.Balanced,
	}
	for i, l := range tb.Lines {
		resp.Lines[i] = TrialBalanceLineResponse{
			Type:         string(l.Type),
			Currency:     l.Currency,
			Side:         string(l.Side),
			AccountCount: l.AccountCount,
			Balance:      l.Balance.String(),
		}
	}
	return resp
}

func totalsFromDomain(totals []domain.CurrencyTotals) []CurrencyTotalsResponse {
	out := make([]CurrencyTotalsResponse, len(totals))
	for i, t := range totals {
		out[i] = CurrencyTotalsResponse{
			Currency:     t.Currency,
			DebitNormal:  t.DebitNormal.String(),
			CreditNormal: t.CreditNormal.String(),
			Net:          t.Net.String(),
			Balanced:     t.Balanced,
		}
	}
	return out
}

// HistoryResponse is one balance history record.
type HistoryResponse struct {
	ID             string    `json:"id"`
	Sequence       int64     `json:"sequence"`
	AccountID      string    `json:"accountId"`
	Bucket         string    `json:"bucket"`
	PreviousValue  string    `json:"previousValue"`
	NewValue       string    `json:"newValue"`
	Delta          string    `json:"delta"`
	Operation      string    `json:"operation"`
	TransactionID  string    `json:"transactionId,omitempty"`
	JournalEntryID string    `json:"journalEntryId,omitempty"`
	Reference      string    `json:"reference"`
	Reason         string    `json:"reason,omitempty"`
	PerformedBy    string    `json:"performedBy"`
	Timestamp      time.Time `json:"timestamp"`
}

// HistoryFromDomain converts history records to responses.
func HistoryFromDomain(records []*domain.BalanceHistoryEntry) []*HistoryResponse {
	result := make([]*HistoryResponse, len(records))
	for i, r := range records {
		result[i] = &HistoryResponse{
			ID:             r.ID,
			Sequence:       r.Sequence,
			AccountID:      r.AccountID,
			Bucket:         string(r.Bucket),
			PreviousValue:  r.PreviousValue.String(),
			NewValue:       r.NewValue.String(),
			Delta:          r.Delta.String(),
			Operation:      string(r.Operation),
			TransactionID:  r.TransactionID,
			JournalEntryID: r.JournalEntryID,
			Reference:      r.Reference,
			Reason:         r.Reason,
			PerformedBy:    r.PerformedBy,
			Timestamp:      r.Timestamp,
		}
	}
	return result
}

// AuditLogResponse is one administrative audit log.
type AuditLogResponse struct {
	ID           string         `json:"id"`
	Actor        string         `json:"actor"`
	Action       string         `json:"action"`
	ResourceType string         `json:"resourceType"`
	ResourceID   string         `json:"resourceId"`
	Reference    string         `json:"reference,omitempty"`
	Reason       string         `json:"reason,omitempty"`
	RequestID    string         `json:"requestId,omitempty"`
	BeforeState  map[string]any `json:"beforeState,omitempty"`
	AfterState   map[string]any `json:"afterState,omitempty"`
	Status       string         `json:"status"`
	ErrorMessage string         `json:"errorMessage,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
}

// AuditLogsFromDomain converts audit logs to responses.
func AuditLogsFromDomain(logs []*domain.AuditLog) []*AuditLogResponse {
	result := make([]*AuditLogResponse, len(logs))
	for i, l := range logs {
		result[i] = &AuditLogResponse{
			ID:           l.ID,
			Actor:        l.Actor,
			Action:       string(l.Action),
			ResourceType: l.ResourceType,
			ResourceID:   l.ResourceID,
			Reference:    l.Reference,
			Reason:       l.Reason,
			RequestID:    l.RequestID,
			BeforeState:  l.BeforeState,
			AfterState:   l.AfterState,
			Status:       string(l.Status),
			ErrorMessage: l.ErrorMessage,
			CreatedAt:    l.CreatedAt,
		}
	}
	return result
}

// DiscrepancyResponse is a bucket that disagrees with its history.
type DiscrepancyResponse struct {
	AccountID   string `json:"accountId"`
	Bucket      string `json:"bucket"`
	Recorded    string `json:"recorded"`
	FromHistory string `json:"fromHistory"`
	Difference  string `json:"difference"`
}

// DriftResponse is an informational available-bucket drift.
type DriftResponse struct {
	AccountID string `json:"accountId"`
	Drift     string `json:"drift"`
}

// ReconciliationResponse represents a reconciliation run.
type ReconciliationResponse struct {
	TotalAccounts      int                      `json:"totalAccounts"`
	ReconciledAccounts int                      `json:"reconciledAccounts"`
	Discrepancies      []DiscrepancyResponse    `json:"discrepancies"`
	Drift              []DriftResponse          `json:"drift"`
	Totals             []CurrencyTotalsResponse `json:"totals"`
	LedgerConsistent   bool                     `json:"ledgerConsistent"`
	CheckedAt          time.Time                `json:"checkedAt"`
}

// ReconciliationFromReport converts a reconciliation report to response.
func ReconciliationFromReport(r *usecase.ReconciliationReport) *ReconciliationResponse {
	resp := &ReconciliationResponse{
		TotalAccounts:      r.TotalAccounts,
		ReconciledAccounts: r.ReconciledAccounts,
		Discrepancies:      discrepanciesFromDomain(r.Discrepancies),
		Drift:              make([]DriftResponse, len(r.Drift)),
		Totals:             totalsFromDomain(r.Totals),
		LedgerConsistent:   r.LedgerConsistent,
		CheckedAt:          r.CheckedAt,
	}
	for i, d := range r.Drift {
		resp.Drift[i] = DriftResponse{AccountID: d.AccountID, Drift: d.Drift.String()}
	}
	return resp
}

func decimalString(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}

// AccountReconciliationResponse is the result of reconciling one account.
type AccountReconciliationResponse struct {
	AccountID     string                `json:"accountId"`
	Consistent    bool                  `json:"consistent"`
	Discrepancies []DiscrepancyResponse `json:"discrepancies"`
}

// AccountReconciliationFromDomain converts one account's discrepancies to response.
func AccountReconciliationFromDomain(accountID string, ds []usecase.BucketDiscrepancy) *AccountReconciliationResponse {
	return &AccountReconciliationResponse{
		AccountID:     accountID,
		Consistent:    len(ds) == 0,
		Discrepancies: discrepanciesFromDomain(ds),
	}
}

func discrepanciesFromDomain(ds []usecase.BucketDiscrepancy) []DiscrepancyResponse {
	out := make([]DiscrepancyResponse, len(ds))
	for i, d := range ds {
		out[i] = DiscrepancyResponse{
			AccountID:   d.AccountID,
			Bucket:      string(d.Bucket),
			Recorded:    d.Recorded.String(),
			FromHistory: d.FromHistory.String(),
			Difference:  d.Difference.String(),
		}
	}
	return out
}
