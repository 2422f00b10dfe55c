package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// Decimal errors
	ErrInvalidDecimal = errors.New("invalid decimal value")
	ErrPrecisionLoss  = errors.New("value exceeds supported precision")
	ErrDivisionByZero = errors.New("division by zero")

	// Validation errors
	ErrInvalidAmount         = errors.New("amount must be positive")
	ErrMissingReference      = errors.New("reference is required")
	ErrMissingActor          = errors.New("actor is required")
	ErrInvalidBucket         = errors.New("invalid balance bucket")
	ErrInvalidOperation      = errors.New("invalid balance operation")
	ErrInvalidAccountType    = errors.New("invalid account type")
	ErrInvalidCurrencyKind   = errors.New("invalid currency kind")
	ErrInvalidBalanceLimits  = errors.New("invalid balance limits")
	ErrSameAccount           = errors.New("debit and credit account must differ")
	ErrCurrencyMismatch      = errors.New("account currency does not match posting currency")
	ErrTooFewLegs            = errors.New("journal entry needs at least two legs")
	ErrInvalidLeg            = errors.New("journal leg must carry exactly one positive side")
	ErrUnbalancedEntry       = errors.New("journal entry debits and credits differ")
	ErrFutureTimestamp       = errors.New("timestamp is in the future")
	ErrHierarchyCycle        = errors.New("account hierarchy would contain a cycle")
	ErrParentCurrency        = errors.New("parent account has a different currency")
	ErrHierarchyTooDeep      = errors.New("account hierarchy exceeds maximum depth")
	ErrMissingFeeAccount     = errors.New("fee account is required when a fee is charged")
	ErrInvalidTimeRange      = errors.New("from must not be after to")
	ErrReversalNotApplicable = errors.New("only posted journal entries can be reversed")

	// Balance errors
	ErrInsufficientBalance          = errors.New("insufficient balance")
	ErrInsufficientAvailableBalance = errors.New("insufficient available balance")
	ErrInsufficientFrozenBalance    = errors.New("insufficient frozen balance")
	ErrInsufficientReservedBalance  = errors.New("insufficient reserved balance")
	ErrInsufficientEscrowBalance    = errors.New("insufficient escrow balance")
	ErrInsufficientPendingBalance   = errors.New("insufficient pending balance")
	ErrCreditLimitExceeded          = errors.New("credit limit exceeded")
	ErrBalanceOutOfBounds           = errors.New("balance outside configured bounds")

	// Reference errors
	ErrAccountNotFound      = errors.New("account not found")
	ErrAccountClosed        = errors.New("account is closed")
	ErrAccountInactive      = errors.New("account is inactive")
	ErrAccountHasBalance    = errors.New("account still holds a balance")
	ErrJournalEntryNotFound = errors.New("journal entry not found")
	ErrBucketOpNotFound     = errors.New("bucket operation not found")
	ErrAlreadyReversed      = errors.New("journal entry already reversed")

	// Idempotency and concurrency errors
	ErrDuplicateReference  = errors.New("reference already used with a different payload")
	ErrConcurrencyConflict = errors.New("concurrent modification, retry with the same reference")
	ErrPostingTimeout      = errors.New("posting timed out, outcome must be checked before retrying")
	ErrInconsistentLedger  = errors.New("ledger is inconsistent")
)

var bucketShortfall = map[Bucket]error{
	BucketAvailable: ErrInsufficientAvailableBalance,
	BucketFrozen:    ErrInsufficientFrozenBalance,
	BucketReserved:  ErrInsufficientReservedBalance,
	BucketEscrow:    ErrInsufficientEscrowBalance,
	BucketPending:   ErrInsufficientPendingBalance,
}

// InsufficientBalanceError names the bucket that could not cover a subtraction.
// It matches ErrInsufficientBalance and the bucket specific sentinel.
type InsufficientBalanceError struct {
	AccountID string
	Bucket    Bucket
	Requested decimal.Decimal
	Balance   decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient %s balance on account %s: requested %s, available %s",
		e.Bucket, e.AccountID, e.Requested.String(), e.Balance.String())
}

func (e *InsufficientBalanceError) Is(target error) bool {
	if target == ErrInsufficientBalance {
		return true
	}
	sentinel, ok := bucketShortfall[e.Bucket]
	return ok && target == sentinel
}

// UnbalancedEntryError reports the totals of a journal entry that does not balance.
type UnbalancedEntryError struct {
	Debits  decimal.Decimal
	Credits decimal.Decimal
}

func (e *UnbalancedEntryError) Error() string {
	return fmt.Sprintf("%s: debits %s, credits %s", ErrUnbalancedEntry, e.Debits.String(), e.Credits.String())
}

func (e *UnbalancedEntryError) Unwrap() error { return ErrUnbalancedEntry }

// Kind classifies errors for transport mapping and metrics.
type Kind string

const (
	KindValidation          Kind = "validation"
	KindInsufficientBalance Kind = "insufficient_balance"
	KindNotFound            Kind = "not_found"
	KindAccountState        Kind = "account_state"
	KindDuplicateReference  Kind = "duplicate_reference"
	KindConcurrencyConflict Kind = "concurrency_conflict"
	KindPostingTimeout      Kind = "posting_timeout"
	KindInternal            Kind = "internal"
)

var kindTable = []struct {
	kind Kind
	errs []error
}{
	{KindInsufficientBalance, []error{ErrInsufficientBalance, ErrCreditLimitExceeded, ErrBalanceOutOfBounds}},
	{KindNotFound, []error{ErrAccountNotFound, ErrJournalEntryNotFound, ErrBucketOpNotFound}},
	{KindAccountState, []error{ErrAccountClosed, ErrAccountInactive, ErrAccountHasBalance, ErrAlreadyReversed}},
	{KindDuplicateReference, []error{ErrDuplicateReference}},
	{KindConcurrencyConflict, []error{ErrConcurrencyConflict}},
	{KindPostingTimeout, []error{ErrPostingTimeout}},
	{KindValidation, []error{
		ErrInvalidDecimal, ErrPrecisionLoss, ErrDivisionByZero, ErrInvalidAmount, ErrMissingReference,
		ErrMissingActor, ErrInvalidBucket, ErrInvalidOperation, ErrInvalidAccountType, ErrInvalidCurrencyKind,
		ErrInvalidBalanceLimits, ErrSameAccount, ErrCurrencyMismatch, ErrTooFewLegs, ErrInvalidLeg,
		ErrUnbalancedEntry, ErrFutureTimestamp, ErrHierarchyCycle, ErrParentCurrency, ErrHierarchyTooDeep,
		ErrMissingFeeAccount, ErrInvalidTimeRange, ErrReversalNotApplicable, ErrInvalidAccountName,
		ErrInvalidCurrency, ErrMetadataTooLarge, ErrAmountTooLarge, ErrInvalidIDFormat,
	}},
}

// ErrorKind maps err onto the ledger error taxonomy. Unknown errors are internal.
func ErrorKind(err error) Kind {
	if err == nil {
		return ""
	}
	for _, row := range kindTable {
		for _, target := range row.errs {
			if errors.Is(err, target) {
				return row.kind
			}
		}
	}
	return KindInternal
}
