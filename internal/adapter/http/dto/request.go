package dto

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/osparrot/swiftpayme-platform-sub005/internal/domain"
	"github.com/osparrot/swiftpayme-platform-sub005/internal/usecase"
)

// CreateAccountRequest represents a request to create an account.
type CreateAccountRequest struct {
	Reference            string                 `json:"reference"            validate:"required,max=255"`
	Name                 string                 `json:"name"                 validate:"required,max=255"`
	UserID               string                 `json:"userId"               validate:"omitempty,max=255"`
	Type                 string                 `json:"type"                 validate:"required,oneof=asset liability equity revenue expense"`
	Category             string                 `json:"category"             validate:"omitempty,max=100"`
	Currency             string                 `json:"currency"             validate:"required,min=3,max=10"`
	CurrencyKind         string                 `json:"currencyKind"         validate:"omitempty,oneof=fiat crypto token"`
	ParentID             *string                `json:"parentId,omitempty"`
	AllowNegativeBalance *bool                  `json:"allowNegativeBalance,omitempty"`
	CreditLimit          *string                `json:"creditLimit,omitempty"`
	MinBalance           *string                `json:"minBalance,omitempty"`
	MaxBalance           *string                `json:"maxBalance,omitempty"`
	Refs                 domain.IntegrationRefs `json:"refs"`
	Metadata             map[string]any         `json:"metadata,omitempty"`
	Actor                string                 `json:"actor"                validate:"omitempty,max=255"`
}

// ToUseCaseInput converts to use case input.
func (r *CreateAccountRequest) ToUseCaseInput() (usecase.CreateAccountInput, error) {
	var p amountParser
	in := usecase.CreateAccountInput{
		Reference:            r.Reference,
		Name:                 r.Name,
		UserID:               r.UserID,
		Type:                 domain.AccountType(r.Type),
		Category:             r.Category,
		Currency:             r.Currency,
		CurrencyKind:         domain.CurrencyKind(r.CurrencyKind),
		ParentID:             r.ParentID,
		AllowNegativeBalance: r.AllowNegativeBalance,
		CreditLimit:          p.optional("creditLimit", r.CreditLimit, domain.ParseAmount),
		MinBalance:           p.optional("minBalance", r.MinBalance, domain.ParseAmount),
		MaxBalance:           p.optional("maxBalance", r.MaxBalance, domain.ParseAmount),
		Refs:                 r.Refs,
		Metadata:             r.Metadata,
		Actor:                r.Actor,
	}
	return in, p.err()
}

// SetParentRequest moves an account under a parent. Omit parentId to detach.
type SetParentRequest struct {
	ParentID *string `json:"parentId"`
	Reason   string  `json:"reason" validate:"max=500"`
	Actor    string  `json:"actor"  validate:"omitempty,max=255"`
}

// AccountActionRequest carries the audit context of a lifecycle change.
type AccountActionRequest struct {
	Reason string `json:"reason" validate:"max=500"`
	Actor  string `json:"actor"  validate:"omitempty,max=255"`
}

// ToUseCaseInput converts to use case input.
func (r *AccountActionRequest) ToUseCaseInput(accountID string) usecase.AccountActionInput {
	return usecase.AccountActionInput{AccountID: accountID, Reason: r.Reason, Actor: r.Actor}
}

// PostTransactionRequest represents a two-party transaction.
type PostTransactionRequest struct {
	Reference         string           `json:"reference"         validate:"required,max=255"`
	ExternalReference string           `json:"externalReference" validate:"max=255"`
	DebitAccountID    string           `json:"debitAccountId"    validate:"required"`
	CreditAccountID   string           `json:"creditAccountId"   validate:"required,nefield=DebitAccountID"`
	Amount            string         `json:"amount"            validate:"required"`
	Currency          string         `json:"currency"          validate:"required,min=3,max=10"`
	Bucket            string         `json:"bucket"            validate:"omitempty,oneof=current available pending reserved frozen escrow"`
	Fee               *string        `json:"fee,omitempty"`
	FeeRateBps        int64          `json:"feeRateBps"        validate:"gte=0,lte=10000"`
	FeeAccountID      string         `json:"feeAccountId"`
	Description       string         `json:"description"       validate:"max=1000"`
	Tags              []string       `json:"tags"              validate:"max=20,dive,max=64"`
	Metadata          map[string]any `json:"metadata,omitempty"`
	MirrorAvailable   bool           `json:"mirrorAvailable"`
	Actor             string         `json:"actor"             validate:"omitempty,max=255"`
	Timestamp         *time.Time     `json:"timestamp,omitempty"`
}

// ToUseCaseInput converts to use case input.
func (r *PostTransactionRequest) ToUseCaseInput() (usecase.PostTransactionInput, error) {
	var p amountParser
	in := usecase.PostTransactionInput{
		Reference:         r.Reference,
		ExternalReference: r.ExternalReference,
		DebitAccountID:    r.DebitAccountID,
		CreditAccountID:   r.CreditAccountID,
		Amount:            p.parse("amount", r.Amount, domain.ParsePositiveAmount),
		Currency:          r.Currency,
		Bucket:            domain.Bucket(r.Bucket),
		FeeRateBps:        r.FeeRateBps,
		FeeAccountID:      r.FeeAccountID,
		Description:       r.Description,
		Tags:              r.Tags,
		Metadata:          r.Metadata,
		MirrorAvailable:   r.MirrorAvailable,
		Actor:             r.Actor,
	}
	if r.Fee != nil {
		in.Fee = p.parse("fee", *r.Fee, domain.ParseAmount)
	}
	if r.Timestamp != nil {
		in.Timestamp = *r.Timestamp
	}
	return in, p.err()
}

// JournalLegRequest is one side of a journal entry.
type JournalLegRequest struct {
	AccountID   string  `json:"accountId"   validate:"required"`
	Debit       *string `json:"debit,omitempty"`
	Credit      *string `json:"credit,omitempty"`
	Bucket      string  `json:"bucket"      validate:"omitempty,oneof=current available pending reserved frozen escrow"`
	Description string  `json:"description" validate:"max=500"`
}

// PostJournalEntryRequest represents an N-leg journal entry.
type PostJournalEntryRequest struct {
	Reference         string              `json:"reference"         validate:"required,max=255"`
	ExternalReference string              `json:"externalReference" validate:"max=255"`
	Currency          string              `json:"currency"          validate:"required,min=3,max=10"`
	Legs              []JournalLegRequest `json:"legs"              validate:"required,min=2,max=100,dive"`
	Description       string              `json:"description"       validate:"max=1000"`
	Tags              []string            `json:"tags"              validate:"max=20,dive,max=64"`
	Metadata          map[string]any      `json:"metadata,omitempty"`
	MirrorAvailable   bool                `json:"mirrorAvailable"`
	Actor             string              `json:"actor"             validate:"omitempty,max=255"`
	Timestamp         *time.Time          `json:"timestamp,omitempty"`
}

// ToUseCaseInput converts to use case input.
func (r *PostJournalEntryRequest) ToUseCaseInput() (usecase.PostJournalEntryInput, error) {
	var p amountParser
	legs := make([]domain.JournalLeg, len(r.Legs))
	for i, l := range r.Legs {
		legs[i] = domain.JournalLeg{
			AccountID:   l.AccountID,
			Bucket:      domain.Bucket(l.Bucket),
			Description: l.Description,
		}
		if l.Debit != nil {
			legs[i].Debit = p.parse(fmt.Sprintf("legs[%d].debit", i), *l.Debit, domain.ParseAmount)
		}
		if l.Credit != nil {
			legs[i].Credit = p.parse(fmt.Sprintf("legs[%d].credit", i), *l.Credit, domain.ParseAmount)
		}
	}

	in := usecase.PostJournalEntryInput{
		Reference:         r.Reference,
		ExternalReference: r.ExternalReference,
		Currency:          r.Currency,
		Legs:              legs,
		Description:       r.Description,
		Tags:              r.Tags,
		Metadata:          r.Metadata,
		MirrorAvailable:   r.MirrorAvailable,
		Actor:             r.Actor,
	}
	if r.Timestamp != nil {
		in.Timestamp = *r.Timestamp
	}
	return in, p.err()
}

// ReverseJournalEntryRequest asks for a correcting entry.
type ReverseJournalEntryRequest struct {
	Reference string `json:"reference" validate:"required,max=255"`
	Reason    string `json:"reason"    validate:"required,max=500"`
	Actor     string `json:"actor"     validate:"omitempty,max=255"`
}

// ToUseCaseInput converts to use case input.
func (r *ReverseJournalEntryRequest) ToUseCaseInput(original string) usecase.ReverseJournalEntryInput {
	return usecase.ReverseJournalEntryInput{
		OriginalReference: original,
		Reference:         r.Reference,
		Reason:            r.Reason,
		Actor:             r.Actor,
	}
}

// BucketMoveRequest moves value between available and a holding bucket.
// Amount may be omitted for freeze and unfreeze to move the whole bucket.
type BucketMoveRequest struct {
	Reference string  `json:"reference"        validate:"required,max=255"`
	Amount    *string `json:"amount,omitempty"`
	Reason    string  `json:"reason"           validate:"max=500"`
	Actor     string  `json:"actor"            validate:"omitempty,max=255"`
}

// ToUseCaseInput converts to use case input.
func (r *BucketMoveRequest) ToUseCaseInput(accountID string) (usecase.BucketMoveInput, error) {
	var p amountParser
	in := usecase.BucketMoveInput{
		Reference: r.Reference,
		AccountID: accountID,
		Amount:    p.optional("amount", r.Amount, domain.ParsePositiveAmount),
		Reason:    r.Reason,
		Actor:     r.Actor,
	}
	return in, p.err()
}

// amountParser collects per-field failures while converting decimal strings.
// JSON numbers never reach it: amount fields are strings on the wire.
type amountParser struct {
	details map[string]string
}

func (p *amountParser) parse(field, value string, parse func(string) (decimal.Decimal, error)) decimal.Decimal {
	d, err := parse(value)
	if err != nil {
		if p.details == nil {
			p.details = make(map[string]string)
		}
		p.details[field] = err.Error()
	}
	return d
}

func (p *amountParser) optional(field string, value *string, parse func(string) (decimal.Decimal, error)) *decimal.Decimal {
	if value == nil {
		return nil
	}
	d := p.parse(field, *value, parse)
	return &d
}

func (p *amountParser) err() error {
	if len(p.details) == 0 {
		return nil
	}
	return &ValidationError{Details: p.details}
}
