package domain

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// NormalSide is the side on which an account type's balance naturally sits.
type NormalSide string

const (
	NormalSideDebit  NormalSide = "debit"
	NormalSideCredit NormalSide = "credit"
)

// AccountSnapshot is the current bucket of one account at a point in time.
type AccountSnapshot struct {
	AccountID string
	Type      AccountType
	Currency  string
	Current   decimal.Decimal
}

// TrialBalanceLine aggregates one (type, currency) group.
// Current is the raw signed sum, Balance is the same value on the type's normal side.
type TrialBalanceLine struct {
	Type         AccountType
	Currency     string
	Side         NormalSide
	AccountCount int
	Current      decimal.Decimal
	Balance      decimal.Decimal
}

// CurrencyTotals holds the debit-normal and credit-normal totals for one currency.
type CurrencyTotals struct {
	Currency     string
	DebitNormal  decimal.Decimal
	CreditNormal decimal.Decimal
	Net          decimal.Decimal
	Balanced     bool
}

// TrialBalance is the aggregate report proving the ledger nets to zero.
type TrialBalance struct {
	AsOf     time.Time
	Lines    []TrialBalanceLine
	Totals   []CurrencyTotals
	Balanced bool
}

// TrialBalanceFilter narrows the trial balance.
type TrialBalanceFilter struct {
	AsOf     time.Time
	Currency string
	Types    []AccountType
}

// Includes reports whether t passes the type filter.
func (f TrialBalanceFilter) Includes(t AccountType) bool {
	if len(f.Types) == 0 {
		return true
	}
	for _, want := range f.Types {
		if want == t {
			return true
		}
	}
	return false
}

// BuildTrialBalance groups snapshots by type and currency.
//
// Credits add to current and debits subtract, so a debit-normal account
// (asset, expense) carries its natural balance as -current.
// Net = debit-normal total - credit-normal total, which is zero for a balanced ledger.
func BuildTrialBalance(asOf time.Time, snapshots []AccountSnapshot) *TrialBalance {
	type key struct {
		t        AccountType
		currency string
	}
	lines := map[key]*TrialBalanceLine{}
	totals := map[string]*CurrencyTotals{}

	for _, s := range snapshots {
		k := key{s.Type, s.Currency}
		line, ok := lines[k]
		if !ok {
			side := NormalSideCredit
			if s.Type.DebitNormal() {
				side = NormalSideDebit
			}
			line = &TrialBalanceLine{Type: s.Type, Currency: s.Currency, Side: side}
			lines[k] = line
		}
		line.AccountCount++
		line.Current = line.Current.Add(s.Current)

		tot, ok := totals[s.Currency]
		if !ok {
			tot = &CurrencyTotals{Currency: s.Currency}
			totals[s.Currency] = tot
		}
		if s.Type.DebitNormal() {
			tot.DebitNormal = tot.DebitNormal.Sub(s.Current)
		} else {
			tot.CreditNormal = tot.CreditNormal.Add(s.Current)
		}
	}

	tb := &TrialBalance{AsOf: asOf, Balanced: true}
	for _, line := range lines {
		line.Balance = line.Current
		if line.Side == NormalSideDebit {
			line.Balance = line.Current.Neg()
		}
		tb.Lines = append(tb.Lines, *line)
	}
	sort.Slice(tb.Lines, func(i, j int) bool {
		if tb.Lines[i].Currency != tb.Lines[j].Currency {
			return tb.Lines[i].Currency < tb.Lines[j].Currency
		}
		return typeRank(tb.Lines[i].Type) < typeRank(tb.Lines[j].Type)
	})

	for _, tot := range totals {
		tot.Net = tot.DebitNormal.Sub(tot.CreditNormal)
		tot.Balanced = tot.Net.IsZero()
		if !tot.Balanced {
			tb.Balanced = false
		}
		tb.Totals = append(tb.Totals, *tot)
	}
	sort.Slice(tb.Totals, func(i, j int) bool { return tb.Totals[i].Currency < tb.Totals[j].Currency })

	return tb
}

func typeRank(t AccountType) int {
	for i, candidate := range AccountTypes {
		if candidate == t {
			return i
		}
	}
	return len(AccountTypes)
}

// AuditTrailFilter selects balance history records.
type AuditTrailFilter struct {
	AccountID      string
	JournalEntryID string
	TransactionID  string
	Reference      string
	Actor          string
	Bucket         Bucket
	From           *time.Time
	To             *time.Time
	Limit          int
	Offset         int
}

// Normalize validates the filter and applies pagination defaults.
func (f *AuditTrailFilter) Normalize() error {
	if f.Bucket != "" && !f.Bucket.Valid() {
		return ErrInvalidBucket
	}
	if f.From != nil && f.To != nil && f.From.After(*f.To) {
		return ErrInvalidTimeRange
	}
	f.Limit, f.Offset = ValidatePagination(f.Limit, f.Offset)
	return nil
}

// AccountFilter selects accounts for listing.
type AccountFilter struct {
	UserID   string
	Currency string
	Type     AccountType
	Status   AccountStatus
	ParentID string
	Limit    int
	Offset   int
}
