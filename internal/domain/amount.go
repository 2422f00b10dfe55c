package domain

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// MaxFractionDigits is the precision every balance and amount is held to.
const MaxFractionDigits = 8

var amountPattern = regexp.MustCompile(`^[+-]?[0-9]+(\.[0-9]+)?$`)

var basisPoint = decimal.New(1, -4)

// ParseAmount parses a decimal string such as "100.25".
// Exponent notation, empty strings and values finer than MaxFractionDigits are rejected.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("%w: empty value", ErrInvalidDecimal)
	}
	if !amountPattern.MatchString(s) {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidDecimal, s)
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidDecimal, s)
	}
	if err := CheckPrecision(d); err != nil {
		return decimal.Zero, err
	}
	return d, nil
}

// ParsePositiveAmount is ParseAmount restricted to values greater than zero.
func ParsePositiveAmount(s string) (decimal.Decimal, error) {
	d, err := ParseAmount(s)
	if err != nil {
		return decimal.Zero, err
	}
	if !d.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// CheckPrecision fails when d cannot be represented with MaxFractionDigits.
func CheckPrecision(d decimal.Decimal) error {
	if !d.Equal(d.Truncate(MaxFractionDigits)) {
		return fmt.Errorf("%w: %s", ErrPrecisionLoss, d.String())
	}
	return nil
}

// MulScalar multiplies d by factor and fails instead of rounding.
func MulScalar(d, factor decimal.Decimal) (decimal.Decimal, error) {
	r := d.Mul(factor)
	if err := CheckPrecision(r); err != nil {
		return decimal.Zero, err
	}
	return r, nil
}

// DivScalar divides d by divisor and fails instead of rounding.
func DivScalar(d, divisor decimal.Decimal) (decimal.Decimal, error) {
	if divisor.IsZero() {
		return decimal.Zero, ErrDivisionByZero
	}

	q := d.DivRound(divisor, MaxFractionDigits)
	if !q.Mul(divisor).Equal(d) {
		return decimal.Zero, fmt.Errorf("%w: %s / %s", ErrPrecisionLoss, d.String(), divisor.String())
	}
	return q, nil
}

// FeeFor returns amount * bps / 10000. A fee that cannot be held with
// MaxFractionDigits fails with ErrPrecisionLoss; callers pass an explicit fee instead.
func FeeFor(amount decimal.Decimal, bps int64) (decimal.Decimal, error) {
	if bps < 0 {
		return decimal.Zero, fmt.Errorf("%w: negative fee rate", ErrInvalidAmount)
	}
	fee, err := MulScalar(amount, basisPoint.Mul(decimal.NewFromInt(bps)))
	if err != nil {
		return decimal.Zero, fmt.Errorf("fee at %d bps: %w", bps, err)
	}
	return fee, nil
}

// FormatAmount renders d with exactly MaxFractionDigits, the wire format for balances.
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(MaxFractionDigits)
}
