package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// EntryKind records how a journal entry was requested.
type EntryKind string

const (
	EntryKindJournal     EntryKind = "journal"
	EntryKindTransaction EntryKind = "transaction"
	EntryKindReversal    EntryKind = "reversal"
)

// JournalLeg is one side of a posting. Exactly one of Debit and Credit is positive.
type JournalLeg struct {
	AccountID   string
	Debit       decimal.Decimal
	Credit      decimal.Decimal
	Bucket      Bucket
	Description string
}

// IsDebit reports whether the leg takes value out of its account.
func (l JournalLeg) IsDebit() bool {
	return l.Debit.IsPositive()
}

// Amount returns the positive side of the leg.
func (l JournalLeg) Amount() decimal.Decimal {
	if l.IsDebit() {
		return l.Debit
	}
	return l.Credit
}

func (l JournalLeg) bucket() Bucket {
	if l.Bucket == "" {
		return BucketCurrent
	}
	return l.Bucket
}

// JournalEntry is a balanced N-leg posting. Entries are immutable once committed;
// corrections are new reversing entries.
type JournalEntry struct {
	ID                string
	Reference         string
	ExternalReference string
	Kind              EntryKind
	Currency          string
	Legs              []JournalLeg
	Description       string
	Tags              []string
	Metadata          map[string]any
	// MirrorAvailable also applies legs on current to available.
	MirrorAvailable bool
	Actor           string
	Timestamp       time.Time
	PayloadHash     string
	ReversalOf      *string
	ReversedBy      *string
	CreatedAt       time.Time
}

// Validate checks the double-entry invariant and request fields.
func (e *JournalEntry) Validate(now time.Time) error {
	if err := ValidateReference(e.Reference); err != nil {
		return err
	}
	if err := ValidateActor(e.Actor); err != nil {
		return err
	}
	if err := ValidateCurrency(e.Currency); err != nil {
		return err
	}
	if len(e.Legs) < 2 {
		return ErrTooFewLegs
	}
	if len(e.Tags) > MaxTags {
		return fmt.Errorf("%w: at most %d tags", ErrMetadataTooLarge, MaxTags)
	}
	if err := ValidateMetadata(e.Metadata); err != nil {
		return err
	}
	if !e.Timestamp.IsZero() && e.Timestamp.After(now) {
		return fmt.Errorf("%w: %s", ErrFutureTimestamp, e.Timestamp.Format(time.RFC3339))
	}

	accounts := make(map[string]struct{}, len(e.Legs))
	for i, leg := range e.Legs {
		if err := validateLeg(leg); err != nil {
			return fmt.Errorf("leg %d: %w", i, err)
		}
		accounts[leg.AccountID] = struct{}{}
	}
	if len(accounts) < 2 {
		return ErrSameAccount
	}

	debits, credits := e.TotalDebits(), e.TotalCredits()
	if !debits.Equal(credits) {
		return &UnbalancedEntryError{Debits: debits, Credits: credits}
	}
	return nil
}

func validateLeg(leg JournalLeg) error {
	if leg.AccountID == "" {
		return fmt.Errorf("%w: account is required", ErrInvalidLeg)
	}
	if leg.Debit.IsNegative() || leg.Credit.IsNegative() {
		return fmt.Errorf("%w: negative amount", ErrInvalidLeg)
	}
	if leg.Debit.IsZero() && leg.Credit.IsZero() {
		return fmt.Errorf("%w: zero amount leg", ErrInvalidAmount)
	}
	if leg.Debit.IsPositive() && leg.Credit.IsPositive() {
		return ErrInvalidLeg
	}
	if err := ValidateAmount(leg.Amount()); err != nil {
		return err
	}
	if !leg.bucket().Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidBucket, leg.Bucket)
	}
	return nil
}

// TotalDebits sums the debit side.
func (e *JournalEntry) TotalDebits() decimal.Decimal {
	total := decimal.Zero
	for _, leg := range e.Legs {
		total = total.Add(leg.Debit)
	}
	return total
}

// TotalCredits sums the credit side.
func (e *JournalEntry) TotalCredits() decimal.Decimal {
	total := decimal.Zero
	for _, leg := range e.Legs {
		total = total.Add(leg.Credit)
	}
	return total
}

// AccountIDs returns the distinct accounts touched, sorted ascending.
// This is the lock acquisition order.
func (e *JournalEntry) AccountIDs() []string {
	seen := make(map[string]struct{}, len(e.Legs))
	ids := make([]string, 0, len(e.Legs))
	for _, leg := range e.Legs {
		if _, ok := seen[leg.AccountID]; ok {
			continue
		}
		seen[leg.AccountID] = struct{}{}
		ids = append(ids, leg.AccountID)
	}
	sort.Strings(ids)
	return ids
}

type hashLeg struct {
	AccountID   string `json:"a"`
	Debit       string `json:"d"`
	Credit      string `json:"c"`
	Bucket      Bucket `json:"b"`
	Description string `json:"n,omitempty"`
}

type hashPayload struct {
	Kind              EntryKind      `json:"k"`
	Currency          string         `json:"cur"`
	Legs              []hashLeg      `json:"legs"`
	Description       string         `json:"desc,omitempty"`
	ExternalReference string         `json:"ext,omitempty"`
	Tags              []string       `json:"tags,omitempty"`
	Metadata          map[string]any `json:"meta,omitempty"`
	MirrorAvailable   bool           `json:"mirror,omitempty"`
	ReversalOf        string         `json:"rev,omitempty"`
	Timestamp         string         `json:"ts,omitempty"`
}

// ComputePayloadHash fingerprints the semantic content of the request.
// Two requests with one reference are the same posting only if their hashes match.
func (e *JournalEntry) ComputePayloadHash() string {
	p := hashPayload{
		Kind:              e.Kind,
		Currency:          e.Currency,
		Description:       e.Description,
		ExternalReference: e.ExternalReference,
		Tags:              e.Tags,
		Metadata:          e.Metadata,
		MirrorAvailable:   e.MirrorAvailable,
	}
	if e.ReversalOf != nil {
		p.ReversalOf = *e.ReversalOf
	}
	if !e.Timestamp.IsZero() {
		p.Timestamp = e.Timestamp.UTC().Format(time.RFC3339Nano)
	}
	for _, leg := range e.Legs {
		p.Legs = append(p.Legs, hashLeg{
			AccountID:   leg.AccountID,
			Debit:       leg.Debit.String(),
			Credit:      leg.Credit.String(),
			Bucket:      leg.bucket(),
			Description: leg.Description,
		})
	}

	data, _ := json.Marshal(p)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Reverse builds the entry that undoes e with debit and credit swapped.
func (e *JournalEntry) Reverse(reference, actor, reason string) *JournalEntry {
	legs := make([]JournalLeg, len(e.Legs))
	for i, leg := range e.Legs {
		legs[i] = JournalLeg{
			AccountID:   leg.AccountID,
			Debit:       leg.Credit,
			Credit:      leg.Debit,
			Bucket:      leg.Bucket,
			Description: leg.Description,
		}
	}

	original := e.ID
	description := fmt.Sprintf("reversal of %s", e.Reference)
	if reason != "" {
		description += ": " + reason
	}

	return &JournalEntry{
		Reference:         reference,
		ExternalReference: e.ExternalReference,
		Kind:              EntryKindReversal,
		Currency:          e.Currency,
		Legs:              legs,
		Description:       description,
		Tags:              append([]string(nil), e.Tags...),
		MirrorAvailable:   e.MirrorAvailable,
		Actor:             actor,
		ReversalOf:        &original,
	}
}
