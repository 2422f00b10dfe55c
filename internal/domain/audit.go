package domain

import (
	"encoding/json"
	"time"
)

// AuditLog records an administrative action on the ledger.
// Balance movements are audited by the balance history instead.
type AuditLog struct {
	ID           string
	Actor        string // Who performed the action
	Action       AuditAction
	ResourceType string
	ResourceID   string
	Reference    string
	Reason       string
	RequestID    string
	BeforeState  JSON
	AfterState   JSON
	Status       AuditStatus
	ErrorMessage string
	CreatedAt    time.Time
}

// JSON is a type alias for JSON data
type JSON map[string]any

// AuditAction represents different types of auditable actions
type AuditAction string

const (
	AuditActionAccountCreate     AuditAction = "account.create"
	AuditActionAccountClose      AuditAction = "account.close"
	AuditActionAccountActivate   AuditAction = "account.activate"
	AuditActionAccountDeactivate AuditAction = "account.deactivate"
	AuditActionAccountSetParent  AuditAction = "account.set_parent"

	AuditActionBalanceFreeze   AuditAction = "balance.freeze"
	AuditActionBalanceUnfreeze AuditAction = "balance.unfreeze"
	AuditActionBalanceReserve  AuditAction = "balance.reserve"
	AuditActionBalanceRelease  AuditAction = "balance.release"
	AuditActionEscrowPlace     AuditAction = "escrow.place"
	AuditActionEscrowRelease   AuditAction = "escrow.release"

	AuditActionJournalReverse AuditAction = "journal.reverse"
)

// AuditStatus represents the status of an audited action
type AuditStatus string

const (
	AuditStatusSuccess AuditStatus = "success"
	AuditStatusFailure AuditStatus = "failure"
)

// MarshalState converts a domain object to JSON for audit logging
func MarshalState(v any) JSON {
	if v == nil {
		return nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return JSON{"error": "failed to marshal state"}
	}

	var result JSON
	if err := json.Unmarshal(data, &result); err != nil {
		return JSON{"error": "failed to unmarshal state"}
	}

	return result
}

// AccountState is the audited view of an account.
func AccountState(a *Account) JSON {
	if a == nil {
		return nil
	}
	state := JSON{
		"status":   string(a.Status),
		"balances": BalancesPayload(a.Balances),
		"version":  a.Version,
	}
	if a.ParentID != nil {
		state["parent_id"] = *a.ParentID
	}
	return state
}

// AuditFilter defines filters for querying audit logs
type AuditFilter struct {
	Actor        string
	Action       AuditAction
	ResourceType string
	ResourceID   string
	StartDate    *time.Time
	EndDate      *time.Time
	Limit        int
	Offset       int
}
