package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// BucketOperationKind names a paired bucket move.
type BucketOperationKind string

const (
	BucketOpFreeze        BucketOperationKind = "freeze"
	BucketOpUnfreeze      BucketOperationKind = "unfreeze"
	BucketOpReserve       BucketOperationKind = "reserve"
	BucketOpRelease       BucketOperationKind = "release"
	BucketOpEscrow        BucketOperationKind = "escrow"
	BucketOpEscrowRelease BucketOperationKind = "escrow_release"
)

var bucketOpAudit = map[BucketOperationKind]AuditAction{
	BucketOpFreeze:        AuditActionBalanceFreeze,
	BucketOpUnfreeze:      AuditActionBalanceUnfreeze,
	BucketOpReserve:       AuditActionBalanceReserve,
	BucketOpRelease:       AuditActionBalanceRelease,
	BucketOpEscrow:        AuditActionEscrowPlace,
	BucketOpEscrowRelease: AuditActionEscrowRelease,
}

// Valid reports whether k is a known operation.
func (k BucketOperationKind) Valid() bool {
	_, ok := bucketOpAudit[k]
	return ok
}

// AuditAction returns the audit action recorded for k.
func (k BucketOperationKind) AuditAction() AuditAction {
	return bucketOpAudit[k]
}

// BucketOperation is the durable record of a committed bucket move.
// Its reference makes the move idempotent.
type BucketOperation struct {
	ID          string
	Reference   string
	AccountID   string
	Kind        BucketOperationKind
	Amount      decimal.Decimal
	Reason      string
	Actor       string
	PayloadHash string
	CreatedAt   time.Time
}

// Apply performs the move on acc.
func (k BucketOperationKind) Apply(acc *Account, m BucketMove) ([]*BalanceHistoryEntry, error) {
	switch k {
	case BucketOpFreeze:
		return acc.Freeze(m)
	case BucketOpUnfreeze:
		return acc.Unfreeze(m)
	case BucketOpReserve:
		return acc.Reserve(m)
	case BucketOpRelease:
		return acc.ReleaseReserve(m)
	case BucketOpEscrow:
		return acc.PlaceInEscrow(m)
	case BucketOpEscrowRelease:
		return acc.ReleaseEscrow(m)
	}
	return nil, fmt.Errorf("%w: %q", ErrInvalidOperation, k)
}

// BucketMovePayloadHash fingerprints a bucket move request for idempotency.
func BucketMovePayloadHash(kind BucketOperationKind, accountID string, amount *decimal.Decimal, reason string) string {
	a := "all"
	if amount != nil {
		a = amount.String()
	}
	sum := sha256.Sum256([]byte(strings.Join([]string{string(kind), accountID, a, reason}, "\x1f")))
	return hex.EncodeToString(sum[:])
}
