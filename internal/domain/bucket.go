package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Bucket is one of the six balance slots an account carries.
type Bucket string

const (
	BucketCurrent   Bucket = "current"
	BucketAvailable Bucket = "available"
	BucketPending   Bucket = "pending"
	BucketReserved  Bucket = "reserved"
	BucketFrozen    Bucket = "frozen"
	BucketEscrow    Bucket = "escrow"
)

// Buckets lists every bucket in presentation order.
var Buckets = []Bucket{BucketCurrent, BucketAvailable, BucketPending, BucketReserved, BucketFrozen, BucketEscrow}

// Valid reports whether b names a known bucket.
func (b Bucket) Valid() bool {
	switch b {
	case BucketCurrent, BucketAvailable, BucketPending, BucketReserved, BucketFrozen, BucketEscrow:
		return true
	}
	return false
}

// IsHolding reports whether the bucket tracks value set aside from spending.
// Holding buckets can never go negative.
func (b Bucket) IsHolding() bool {
	switch b {
	case BucketPending, BucketReserved, BucketFrozen, BucketEscrow:
		return true
	}
	return false
}

// ParseBucket parses a bucket name. An empty string selects def.
func ParseBucket(s string, def Bucket) (Bucket, error) {
	if s == "" {
		return def, nil
	}
	b := Bucket(s)
	if !b.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidBucket, s)
	}
	return b, nil
}

// BalanceOperation is the direction of a bucket mutation.
type BalanceOperation string

const (
	OperationAdd      BalanceOperation = "add"
	OperationSubtract BalanceOperation = "subtract"
)

// BalanceChange describes one bucket mutation request.
type BalanceChange struct {
	Amount         decimal.Decimal
	Bucket         Bucket
	Operation      BalanceOperation
	TransactionID  string
	JournalEntryID string
	Reference      string
	Reason         string
	Actor          string
	At             time.Time
}

// BalanceHistoryEntry is the append-only record of one bucket mutation.
// Records are never updated or deleted once committed.
type BalanceHistoryEntry struct {
	ID             string
	AccountID      string
	Sequence       int64
	Bucket         Bucket
	PreviousValue  decimal.Decimal
	NewValue       decimal.Decimal
	Delta          decimal.Decimal
	Operation      BalanceOperation
	TransactionID  string
	JournalEntryID string
	Reference      string
	Reason         string
	PerformedBy    string
	Timestamp      time.Time
}

// Balances is a point-in-time copy of all six buckets.
type Balances struct {
	Current   decimal.Decimal
	Available decimal.Decimal
	Pending   decimal.Decimal
	Reserved  decimal.Decimal
	Frozen    decimal.Decimal
	Escrow    decimal.Decimal
}

// Get returns the value of bucket b.
func (b Balances) Get(bucket Bucket) decimal.Decimal {
	switch bucket {
	case BucketCurrent:
		return b.Current
	case BucketAvailable:
		return b.Available
	case BucketPending:
		return b.Pending
	case BucketReserved:
		return b.Reserved
	case BucketFrozen:
		return b.Frozen
	case BucketEscrow:
		return b.Escrow
	}
	return decimal.Zero
}

func (b *Balances) ptr(bucket Bucket) *decimal.Decimal {
	switch bucket {
	case BucketCurrent:
		return &b.Current
	case BucketAvailable:
		return &b.Available
	case BucketPending:
		return &b.Pending
	case BucketReserved:
		return &b.Reserved
	case BucketFrozen:
		return &b.Frozen
	case BucketEscrow:
		return &b.Escrow
	}
	return nil
}

// BucketDrift returns available - (current - reserved - frozen).
// Zero means the buckets agree with the expected relationship.
func (b Balances) BucketDrift() decimal.Decimal {
	return b.Available.Sub(b.Current.Sub(b.Reserved).Sub(b.Frozen))
}
