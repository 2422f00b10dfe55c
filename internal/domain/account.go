package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// AccountType is the accounting classification of an account.
type AccountType string

const (
	AccountTypeAsset     AccountType = "asset"
	AccountTypeLiability AccountType = "liability"
	AccountTypeEquity    AccountType = "equity"
	AccountTypeRevenue   AccountType = "revenue"
	AccountTypeExpense   AccountType = "expense"
)

// AccountTypes lists every type in trial balance order.
var AccountTypes = []AccountType{
	AccountTypeAsset, AccountTypeLiability, AccountTypeEquity, AccountTypeRevenue, AccountTypeExpense,
}

var accountTypeCodes = map[AccountType]string{
	AccountTypeAsset:     "AST",
	AccountTypeLiability: "LIA",
	AccountTypeEquity:    "EQT",
	AccountTypeRevenue:   "REV",
	AccountTypeExpense:   "EXP",
}

// Valid reports whether t is a known account type.
func (t AccountType) Valid() bool {
	_, ok := accountTypeCodes[t]
	return ok
}

// DebitNormal reports whether the type's natural balance sits on the debit side.
func (t AccountType) DebitNormal() bool {
	return t == AccountTypeAsset || t == AccountTypeExpense
}

// CurrencyKind separates fiat money from crypto assets and commodity tokens.
type CurrencyKind string

const (
	CurrencyKindFiat   CurrencyKind = "fiat"
	CurrencyKindCrypto CurrencyKind = "crypto"
	CurrencyKindToken  CurrencyKind = "token"
)

// Valid reports whether k is a known currency kind.
func (k CurrencyKind) Valid() bool {
	return k == CurrencyKindFiat || k == CurrencyKindCrypto || k == CurrencyKindToken
}

// AccountStatus is the lifecycle state of an account.
type AccountStatus string

const (
	AccountStatusActive   AccountStatus = "active"
	AccountStatusInactive AccountStatus = "inactive"
	AccountStatusClosed   AccountStatus = "closed"
)

// IntegrationRefs are opaque identifiers owned by other services.
// The ledger stores and returns them without interpreting them.
type IntegrationRefs struct {
	AssetDepositIDs []string `json:"assetDepositIds,omitempty"`
	TokenIDs        []string `json:"tokenIds,omitempty"`
	WalletAddresses []string `json:"walletAddresses,omitempty"`
	WorkflowIDs     []string `json:"workflowIds,omitempty"`
}

// Account represents a ledger account with six balance buckets.
type Account struct {
	ID                   string
	AccountNumber        string
	Reference            string // creation reference, unique
	Name                 string
	UserID               string
	Type                 AccountType
	Category             string
	Currency             string
	CurrencyKind         CurrencyKind
	ParentID             *string
	Balances             Balances
	AllowNegativeBalance bool
	CreditLimit          *decimal.Decimal
	MinBalance           *decimal.Decimal
	MaxBalance           *decimal.Decimal
	Status               AccountStatus
	ClosedAt             *time.Time
	Refs                 IntegrationRefs
	Metadata             map[string]any
	Version              int64
	CreatedAt            time.Time
	UpdatedAt            time.Time
	// PayloadHash fingerprints the creation request; see CreationPayloadHash.
	PayloadHash string

	// history holds records appended since the account was loaded.
	history []*BalanceHistoryEntry
}

// IsActive is the mutation gate: only active accounts accept balance changes.
func (a *Account) IsActive() bool {
	return a.Status == AccountStatusActive
}

// CreationPayloadHash fingerprints the attributes an account is opened with.
// A repeated reference replays the account only when the fingerprints match.
func (a *Account) CreationPayloadHash() string {
	p := struct {
		Name                 string          `json:"name"`
		UserID               string          `json:"userId"`
		Type                 AccountType     `json:"type"`
		Category             string          `json:"category"`
		Currency             string          `json:"currency"`
		CurrencyKind         CurrencyKind    `json:"currencyKind"`
		ParentID             string          `json:"parentId"`
		AllowNegativeBalance bool            `json:"allowNegative"`
		CreditLimit          string          `json:"creditLimit"`
		MinBalance           string          `json:"minBalance"`
		MaxBalance           string          `json:"maxBalance"`
		Refs                 IntegrationRefs `json:"refs"`
		Metadata             map[string]any  `json:"metadata"`
	}{
		Name:                 a.Name,
		UserID:               a.UserID,
		Type:                 a.Type,
		Category:             a.Category,
		Currency:             a.Currency,
		CurrencyKind:         a.CurrencyKind,
		AllowNegativeBalance: a.AllowNegativeBalance,
		CreditLimit:          optionalDecimal(a.CreditLimit),
		MinBalance:           optionalDecimal(a.MinBalance),
		MaxBalance:           optionalDecimal(a.MaxBalance),
		Refs:                 a.Refs,
		Metadata:             a.Metadata,
	}
	if a.ParentID != nil {
		p.ParentID = *a.ParentID
	}

	data, _ := json.Marshal(p)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func optionalDecimal(d *decimal.Decimal) string {
	if d == nil {
		return ""
	}
	return d.String()
}

// FormatAccountNumber renders the human readable account number, e.g. LIA-USD-0000000042.
func FormatAccountNumber(t AccountType, currency string, seq int64) string {
	return fmt.Sprintf("%s-%s-%010d", accountTypeCodes[t], currency, seq)
}

// Validate checks the static configuration of an account.
func (a *Account) Validate() error {
	if err := ValidateAccountName(a.Name); err != nil {
		return err
	}
	if !a.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidAccountType, a.Type)
	}
	if err := ValidateCurrency(a.Currency); err != nil {
		return err
	}
	if !a.CurrencyKind.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidCurrencyKind, a.CurrencyKind)
	}
	if a.CreditLimit != nil && a.CreditLimit.IsNegative() {
		return fmt.Errorf("%w: credit limit must not be negative", ErrInvalidBalanceLimits)
	}
	if a.MinBalance != nil && a.MaxBalance != nil && a.MinBalance.GreaterThan(*a.MaxBalance) {
		return fmt.Errorf("%w: min balance exceeds max balance", ErrInvalidBalanceLimits)
	}
	return ValidateMetadata(a.Metadata)
}

// Balance returns the value of one bucket.
func (a *Account) Balance(bucket Bucket) (decimal.Decimal, error) {
	if !bucket.Valid() {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidBucket, bucket)
	}
	return a.Balances.Get(bucket), nil
}

// History returns the balance history appended since the account was loaded.
func (a *Account) History() []*BalanceHistoryEntry {
	return a.history
}

// DrainHistory hands the pending history to the caller and clears it.
func (a *Account) DrainHistory() []*BalanceHistoryEntry {
	h := a.history
	a.history = nil
	return h
}

// CheckMutable fails unless the account accepts balance changes.
func (a *Account) CheckMutable() error {
	switch a.Status {
	case AccountStatusActive:
		return nil
	case AccountStatusClosed:
		return fmt.Errorf("%w: %s", ErrAccountClosed, a.ID)
	default:
		return fmt.Errorf("%w: %s", ErrAccountInactive, a.ID)
	}
}

// UpdateBalance applies one bucket mutation and appends exactly one history record.
// On error the account is left untouched.
func (a *Account) UpdateBalance(ch BalanceChange) (*BalanceHistoryEntry, error) {
	if err := a.CheckMutable(); err != nil {
		return nil, err
	}
	if !ch.Bucket.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBucket, ch.Bucket)
	}
	if !ch.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if err := CheckPrecision(ch.Amount); err != nil {
		return nil, err
	}

	slot := a.Balances.ptr(ch.Bucket)
	previous := *slot

	var next decimal.Decimal
	switch ch.Operation {
	case OperationAdd:
		next = previous.Add(ch.Amount)
	case OperationSubtract:
		next = previous.Sub(ch.Amount)
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidOperation, ch.Operation)
	}

	if err := a.checkResult(ch, previous, next); err != nil {
		return nil, err
	}

	*slot = next
	entry := &BalanceHistoryEntry{
		AccountID:      a.ID,
		Bucket:         ch.Bucket,
		PreviousValue:  previous,
		NewValue:       next,
		Delta:          next.Sub(previous),
		Operation:      ch.Operation,
		TransactionID:  ch.TransactionID,
		JournalEntryID: ch.JournalEntryID,
		Reference:      ch.Reference,
		Reason:         ch.Reason,
		PerformedBy:    ch.Actor,
		Timestamp:      ch.At,
	}
	a.history = append(a.history, entry)
	return entry, nil
}

func (a *Account) checkResult(ch BalanceChange, previous, next decimal.Decimal) error {
	if next.IsNegative() && ch.Operation == OperationSubtract {
		if ch.Bucket.IsHolding() || !a.AllowNegativeBalance {
			return &InsufficientBalanceError{AccountID: a.ID, Bucket: ch.Bucket, Requested: ch.Amount, Balance: previous}
		}
		if a.CreditLimit != nil && next.LessThan(a.CreditLimit.Neg()) {
			return fmt.Errorf("%w: account %s limit %s", ErrCreditLimitExceeded, a.ID, a.CreditLimit.String())
		}
	}

	if ch.Bucket != BucketCurrent {
		return nil
	}
	if a.MinBalance != nil && ch.Operation == OperationSubtract && next.LessThan(*a.MinBalance) {
		return fmt.Errorf("%w: account %s below minimum %s", ErrBalanceOutOfBounds, a.ID, a.MinBalance.String())
	}
	if a.MaxBalance != nil && ch.Operation == OperationAdd && next.GreaterThan(*a.MaxBalance) {
		return fmt.Errorf("%w: account %s above maximum %s", ErrBalanceOutOfBounds, a.ID, a.MaxBalance.String())
	}
	return nil
}

// undo reverts entry, which must be the latest record appended to a.
func (a *Account) undo(entry *BalanceHistoryEntry) {
	n := len(a.history)
	if n == 0 || a.history[n-1] != entry {
		panic("domain: undo of a balance change that is not the latest")
	}
	*a.Balances.ptr(entry.Bucket) = entry.PreviousValue
	a.history[n-1] = nil
	a.history = a.history[:n-1]
	if len(a.history) == 0 {
		a.history = nil
	}
}

// BucketMove requests a paired move between two buckets of one account.
// A nil Amount means the whole source bucket where the operation allows it.
type BucketMove struct {
	Amount    *decimal.Decimal
	Reference string
	Reason    string
	Actor     string
	At        time.Time
}

// MoveBalance subtracts amount from one bucket and adds it to another.
// Either both history records are appended or neither is.
func (a *Account) MoveBalance(from, to Bucket, amount decimal.Decimal, m BucketMove) ([]*BalanceHistoryEntry, error) {
	if err := a.CheckMutable(); err != nil {
		return nil, err
	}
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if source := a.Balances.Get(from); source.LessThan(amount) {
		return nil, &InsufficientBalanceError{AccountID: a.ID, Bucket: from, Requested: amount, Balance: source}
	}

	ch := BalanceChange{
		Amount:    amount,
		Reference: m.Reference,
		Reason:    m.Reason,
		Actor:     m.Actor,
		At:        m.At,
	}

	out := ch
	out.Bucket, out.Operation = from, OperationSubtract
	first, err := a.UpdateBalance(out)
	if err != nil {
		return nil, err
	}

	in := ch
	in.Bucket, in.Operation = to, OperationAdd
	second, err := a.UpdateBalance(in)
	if err != nil {
		a.undo(first)
		return nil, err
	}

	return []*BalanceHistoryEntry{first, second}, nil
}

func (a *Account) moveAmount(m BucketMove, from Bucket) (decimal.Decimal, error) {
	if m.Amount != nil {
		return *m.Amount, nil
	}
	whole := a.Balances.Get(from)
	if !whole.IsPositive() {
		return decimal.Zero, &InsufficientBalanceError{AccountID: a.ID, Bucket: from, Requested: whole, Balance: whole}
	}
	return whole, nil
}

// Freeze moves value from available to frozen, all of available by default.
func (a *Account) Freeze(m BucketMove) ([]*BalanceHistoryEntry, error) {
	amount, err := a.moveAmount(m, BucketAvailable)
	if err != nil {
		return nil, err
	}
	return a.MoveBalance(BucketAvailable, BucketFrozen, amount, m)
}

// Unfreeze moves value from frozen back to available, all of frozen by default.
func (a *Account) Unfreeze(m BucketMove) ([]*BalanceHistoryEntry, error) {
	amount, err := a.moveAmount(m, BucketFrozen)
	if err != nil {
		return nil, err
	}
	return a.MoveBalance(BucketFrozen, BucketAvailable, amount, m)
}

// Reserve earmarks available value for a pending operation.
func (a *Account) Reserve(m BucketMove) ([]*BalanceHistoryEntry, error) {
	if m.Amount == nil {
		return nil, ErrInvalidAmount
	}
	return a.MoveBalance(BucketAvailable, BucketReserved, *m.Amount, m)
}

// ReleaseReserve returns reserved value to available.
func (a *Account) ReleaseReserve(m BucketMove) ([]*BalanceHistoryEntry, error) {
	if m.Amount == nil {
		return nil, ErrInvalidAmount
	}
	return a.MoveBalance(BucketReserved, BucketAvailable, *m.Amount, m)
}

// PlaceInEscrow holds available value for a pending trade.
func (a *Account) PlaceInEscrow(m BucketMove) ([]*BalanceHistoryEntry, error) {
	if m.Amount == nil {
		return nil, ErrInvalidAmount
	}
	return a.MoveBalance(BucketAvailable, BucketEscrow, *m.Amount, m)
}

// ReleaseEscrow returns escrowed value to available.
func (a *Account) ReleaseEscrow(m BucketMove) ([]*BalanceHistoryEntry, error) {
	if m.Amount == nil {
		return nil, ErrInvalidAmount
	}
	return a.MoveBalance(BucketEscrow, BucketAvailable, *m.Amount, m)
}

// IsBalanceSufficient reports whether bucket covers amount. An empty bucket means available.
func (a *Account) IsBalanceSufficient(amount decimal.Decimal, bucket Bucket) (bool, error) {
	if bucket == "" {
		bucket = BucketAvailable
	}
	value, err := a.Balance(bucket)
	if err != nil {
		return false, err
	}
	return value.GreaterThanOrEqual(amount), nil
}

// Close soft-deletes the account. Closed accounts reject every mutation.
func (a *Account) Close(at time.Time) error {
	if a.Status == AccountStatusClosed {
		return fmt.Errorf("%w: %s", ErrAccountClosed, a.ID)
	}
	if !a.Balances.Current.IsZero() {
		return fmt.Errorf("%w: current %s", ErrAccountHasBalance, a.Balances.Current.String())
	}
	a.Status = AccountStatusClosed
	a.ClosedAt = &at
	a.UpdatedAt = at
	return nil
}

// SetStatus switches between active and inactive.
func (a *Account) SetStatus(status AccountStatus, at time.Time) error {
	if a.Status == AccountStatusClosed {
		return fmt.Errorf("%w: %s", ErrAccountClosed, a.ID)
	}
	if status != AccountStatusActive && status != AccountStatusInactive {
		return fmt.Errorf("%w: cannot set status %q", ErrInvalidOperation, status)
	}
	a.Status = status
	a.UpdatedAt = at
	return nil
}

// Clone returns a deep copy, pending history included.
func (a *Account) Clone() *Account {
	c := *a
	if a.ParentID != nil {
		p := *a.ParentID
		c.ParentID = &p
	}
	c.CreditLimit = cloneDecimal(a.CreditLimit)
	c.MinBalance = cloneDecimal(a.MinBalance)
	c.MaxBalance = cloneDecimal(a.MaxBalance)
	if a.ClosedAt != nil {
		t := *a.ClosedAt
		c.ClosedAt = &t
	}
	c.Refs = IntegrationRefs{
		AssetDepositIDs: append([]string(nil), a.Refs.AssetDepositIDs...),
		TokenIDs:        append([]string(nil), a.Refs.TokenIDs...),
		WalletAddresses: append([]string(nil), a.Refs.WalletAddresses...),
		WorkflowIDs:     append([]string(nil), a.Refs.WorkflowIDs...),
	}
	if a.Metadata != nil {
		c.Metadata = make(map[string]any, len(a.Metadata))
		for k, v := range a.Metadata {
			c.Metadata[k] = v
		}
	}
	c.history = nil
	for _, h := range a.history {
		entry := *h
		c.history = append(c.history, &entry)
	}
	return &c
}

func cloneDecimal(d *decimal.Decimal) *decimal.Decimal {
	if d == nil {
		return nil
	}
	v := *d
	return &v
}

// MaxHierarchyDepth bounds the parent chain walk.
const MaxHierarchyDepth = 32

// CheckParent validates that parent can adopt child without breaking the tree.
// lookup resolves ancestors of parent.
func CheckParent(child, parent *Account, lookup func(id string) (*Account, error)) error {
	if parent.ID == child.ID {
		return fmt.Errorf("%w: account cannot be its own parent", ErrHierarchyCycle)
	}
	if parent.Status == AccountStatusClosed {
		return fmt.Errorf("%w: parent %s", ErrAccountClosed, parent.ID)
	}
	if !strings.EqualFold(parent.Currency, child.Currency) {
		return fmt.Errorf("%w: parent %s is %s", ErrParentCurrency, parent.ID, parent.Currency)
	}

	current := parent
	for depth := 0; current.ParentID != nil; depth++ {
		if depth >= MaxHierarchyDepth {
			return ErrHierarchyTooDeep
		}
		if *current.ParentID == child.ID {
			return fmt.Errorf("%w: %s is an ancestor of %s", ErrHierarchyCycle, child.ID, parent.ID)
		}
		next, err := lookup(*current.ParentID)
		if err != nil {
			return err
		}
		current = next
	}
	return nil
}
