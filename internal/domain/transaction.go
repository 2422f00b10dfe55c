package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction moves value from one debit account to one credit account.
// It posts as a two-leg journal entry, three legs when a fee is charged.
type Transaction struct {
	Reference         string
	ExternalReference string
	DebitAccountID    string
	CreditAccountID   string
	Amount            decimal.Decimal
	Currency          string
	Bucket            Bucket
	Fee               decimal.Decimal
	FeeAccountID      string
	Description       string
	Tags              []string
	Metadata          map[string]any
	MirrorAvailable   bool
	Actor             string
	Timestamp         time.Time
}

// Validate validates the transaction request.
func (t *Transaction) Validate(now time.Time) error {
	if t.DebitAccountID == t.CreditAccountID {
		return ErrSameAccount
	}
	if err := ValidateAmount(t.Amount); err != nil {
		return err
	}
	if t.Fee.IsNegative() {
		return ErrInvalidAmount
	}
	if t.Fee.IsPositive() && t.FeeAccountID == "" {
		return ErrMissingFeeAccount
	}
	return t.ToJournalEntry().Validate(now)
}

// ToJournalEntry expands the transaction into its balanced legs.
func (t *Transaction) ToJournalEntry() *JournalEntry {
	debit := t.Amount
	legs := []JournalLeg{
		{AccountID: t.CreditAccountID, Credit: t.Amount, Bucket: t.Bucket, Description: t.Description},
	}
	if t.Fee.IsPositive() {
		debit = debit.Add(t.Fee)
		legs = append(legs, JournalLeg{AccountID: t.FeeAccountID, Credit: t.Fee, Bucket: t.Bucket, Description: "fee"})
	}
	legs = append([]JournalLeg{{AccountID: t.DebitAccountID, Debit: debit, Bucket: t.Bucket, Description: t.Description}}, legs...)

	return &JournalEntry{
		Reference:         t.Reference,
		ExternalReference: t.ExternalReference,
		Kind:              EntryKindTransaction,
		Currency:          t.Currency,
		Legs:              legs,
		Description:       t.Description,
		Tags:              t.Tags,
		Metadata:          t.Metadata,
		MirrorAvailable:   t.MirrorAvailable,
		Actor:             t.Actor,
		Timestamp:         t.Timestamp,
	}
}
