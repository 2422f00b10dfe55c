package domain

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr error
	}{
		{name: "integer", input: "100", want: "100"},
		{name: "eight fraction digits", input: "0.00000001", want: "0.00000001"},
		{name: "trailing zeros beyond eight digits are exact", input: "1.0000000000", want: "1"},
		{name: "negative", input: "-12.5", want: "-12.5"},
		{name: "surrounding whitespace", input: "  7.25 ", want: "7.25"},
		{name: "nine fraction digits", input: "0.000000001", wantErr: ErrPrecisionLoss},
		{name: "empty", input: "", wantErr: ErrInvalidDecimal},
		{name: "letters", input: "12abc", wantErr: ErrInvalidDecimal},
		{name: "exponent notation", input: "1e5", wantErr: ErrInvalidDecimal},
		{name: "float artefacts", input: "NaN", wantErr: ErrInvalidDecimal},
		{name: "double dot", input: "1.2.3", wantErr: ErrInvalidDecimal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAmount(tt.input)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.Equal(decimal.RequireFromString(tt.want)) {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestParsePositiveAmount(t *testing.T) {
	if _, err := ParsePositiveAmount("0"); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("expected ErrInvalidAmount for zero, got %v", err)
	}
	if _, err := ParsePositiveAmount("-1"); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("expected ErrInvalidAmount for negative, got %v", err)
	}
	if _, err := ParsePositiveAmount("0.5"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestMulScalar(t *testing.T) {
	got, err := MulScalar(decimal.RequireFromString("0.1"), decimal.RequireFromString("0.2"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Equal(decimal.RequireFromString("0.02")) {
		t.Errorf("expected 0.02, got %s", got)
	}

	_, err = MulScalar(decimal.RequireFromString("0.00000001"), decimal.RequireFromString("0.5"))
	if !errors.Is(err, ErrPrecisionLoss) {
		t.Errorf("expected ErrPrecisionLoss, got %v", err)
	}
}

func TestDivScalar(t *testing.T) {
	got, err := DivScalar(decimal.NewFromInt(10), decimal.NewFromInt(4))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Equal(decimal.RequireFromString("2.5")) {
		t.Errorf("expected 2.5, got %s", got)
	}

	if _, err := DivScalar(decimal.NewFromInt(10), decimal.NewFromInt(3)); !errors.Is(err, ErrPrecisionLoss) {
		t.Errorf("expected ErrPrecisionLoss, got %v", err)
	}
	if _, err := DivScalar(decimal.NewFromInt(10), decimal.Zero); !errors.Is(err, ErrDivisionByZero) {
		t.Errorf("expected ErrDivisionByZero, got %v", err)
	}
}

func TestFeeFor(t *testing.T) {
	tests := []struct {
		amount  string
		bps     int64
		want    string
		wantErr error
	}{
		{amount: "100", bps: 25, want: "0.25"},
		{amount: "0.00000004", bps: 5000, want: "0.00000002"},
		{amount: "250", bps: 0, want: "0"},
		{amount: "0.00000003", bps: 5000, wantErr: ErrPrecisionLoss},
		{amount: "0.00000001", bps: 1, wantErr: ErrPrecisionLoss},
		{amount: "1", bps: -1, wantErr: ErrInvalidAmount},
	}

	for _, tt := range tests {
		got, err := FeeFor(decimal.RequireFromString(tt.amount), tt.bps)
		if tt.wantErr != nil {
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("FeeFor(%s, %d): expected %v, got %v (fee %s)", tt.amount, tt.bps, tt.wantErr, err, got)
			}
			continue
		}
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !got.Equal(decimal.RequireFromString(tt.want)) {
			t.Errorf("FeeFor(%s, %d) = %s, want %s", tt.amount, tt.bps, got, tt.want)
		}
	}
}

func TestFormatAmount(t *testing.T) {
	if got := FormatAmount(decimal.RequireFromString("60")); got != "60.00000000" {
		t.Errorf("expected 60.00000000, got %s", got)
	}
}
