package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// Validation errors
var (
	ErrInvalidAccountName = errors.New("invalid account name")
	ErrInvalidCurrency    = errors.New("invalid currency code")
	ErrAmountTooLarge     = errors.New("amount exceeds maximum allowed")
	ErrMetadataTooLarge   = errors.New("metadata size exceeds limit")
	ErrInvalidIDFormat    = errors.New("invalid ID format")
)

// Validation constants
const (
	MaxAccountNameLength = 255
	MinAccountNameLength = 1
	MaxReferenceLength   = 128
	MaxMetadataSize      = 10240 // 10KB
	MaxPostingAmount     = "1000000000000000"
	MaxTags              = 32
)

var (
	currencyPattern = regexp.MustCompile(`^[A-Z0-9]{3,10}$`)
	idPattern       = regexp.MustCompile(`^[A-Za-z0-9_\-:.]{1,128}$`)

	maxPostingAmount = decimal.RequireFromString(MaxPostingAmount)
)

// knownCurrencies seeds the currency kind when callers do not state it.
var knownCurrencies = map[string]CurrencyKind{
	"USD": CurrencyKindFiat, "EUR": CurrencyKindFiat, "GBP": CurrencyKindFiat, "JPY": CurrencyKindFiat,
	"CHF": CurrencyKindFiat, "CAD": CurrencyKindFiat, "AUD": CurrencyKindFiat, "NGN": CurrencyKindFiat,
	"ZAR": CurrencyKindFiat, "KES": CurrencyKindFiat, "GHS": CurrencyKindFiat, "AED": CurrencyKindFiat,
	"BTC": CurrencyKindCrypto, "ETH": CurrencyKindCrypto, "USDT": CurrencyKindCrypto,
	"USDC": CurrencyKindCrypto, "SOL": CurrencyKindCrypto, "LTC": CurrencyKindCrypto,
	"GOLD": CurrencyKindToken, "SILVER": CurrencyKindToken, "DIAMOND": CurrencyKindToken,
	"XAU": CurrencyKindToken, "XAG": CurrencyKindToken, "XPT": CurrencyKindToken,
}

// ValidateAccountName validates account name
func ValidateAccountName(name string) error {
	name = strings.TrimSpace(name)

	if len(name) < MinAccountNameLength {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidAccountName)
	}

	if len(name) > MaxAccountNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidAccountName, MaxAccountNameLength)
	}

	for _, r := range name {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: contains control characters", ErrInvalidAccountName)
		}
	}

	return nil
}

// ValidateCurrency accepts 3 to 10 uppercase letters or digits.
// Fiat ISO codes, crypto tickers and commodity token symbols all fit.
func ValidateCurrency(currency string) error {
	if !currencyPattern.MatchString(currency) {
		return fmt.Errorf("%w: %q must be 3-10 uppercase alphanumerics", ErrInvalidCurrency, currency)
	}
	return nil
}

// InferCurrencyKind returns the kind of a well known currency.
func InferCurrencyKind(currency string) (CurrencyKind, bool) {
	kind, ok := knownCurrencies[currency]
	return kind, ok
}

// ValidateAmount validates a posting or bucket move amount
func ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}

	if err := CheckPrecision(amount); err != nil {
		return err
	}

	if amount.GreaterThan(maxPostingAmount) {
		return fmt.Errorf("%w: maximum amount is %s", ErrAmountTooLarge, MaxPostingAmount)
	}

	return nil
}

// ValidateReference checks a caller supplied idempotency reference.
func ValidateReference(ref string) error {
	if strings.TrimSpace(ref) == "" {
		return ErrMissingReference
	}
	if len(ref) > MaxReferenceLength {
		return fmt.Errorf("%w: reference exceeds %d characters", ErrMissingReference, MaxReferenceLength)
	}
	return nil
}

// ValidateActor checks that a write carries the identity performing it.
func ValidateActor(actor string) error {
	if strings.TrimSpace(actor) == "" {
		return ErrMissingActor
	}
	return nil
}

// ValidateID checks the shape of an identifier supplied by a caller.
func ValidateID(id string) error {
	if !idPattern.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrInvalidIDFormat, id)
	}
	return nil
}

// ValidateMetadata validates metadata size
func ValidateMetadata(metadata map[string]any) error {
	if metadata == nil {
		return nil
	}

	data, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("%w: metadata is not serialisable", ErrMetadataTooLarge)
	}

	if len(data) > MaxMetadataSize {
		return fmt.Errorf("%w: metadata size %d bytes exceeds limit of %d bytes", ErrMetadataTooLarge, len(data), MaxMetadataSize)
	}

	return nil
}

// ValidatePagination validates and limits pagination parameters
func ValidatePagination(limit, offset int) (int, int) {
	const MaxPageSize = 1000
	const DefaultPageSize = 50

	if limit <= 0 {
		limit = DefaultPageSize
	}

	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	if offset < 0 {
		offset = 0
	}

	return limit, offset
}
