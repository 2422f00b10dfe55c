package dto

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osparrot/swiftpayme-platform-sub005/internal/domain"
	"github.com/osparrot/swiftpayme-platform-sub005/internal/usecase"
)

func strPtr(s string) *string {
	return &s
}

func TestCreateAccountRequest_ToUseCaseInput(t *testing.T) {
	allow := true
	req := &CreateAccountRequest{
		Reference:            "open-1",
		Name:                 "alice",
		Type:                 "liability",
		Currency:             "USD",
		CurrencyKind:         "fiat",
		AllowNegativeBalance: &allow,
		CreditLimit:          strPtr("100"),
		MinBalance:           strPtr("-50.5"),
		Refs:                 domain.IntegrationRefs{WalletAddresses: []string{"0xabc"}},
		Actor:                "onboarding",
	}

	got, err := req.ToUseCaseInput()
	require.NoError(t, err)
	assert.Equal(t, "open-1", got.Reference)
	assert.Equal(t, domain.AccountTypeLiability, got.Type)
	assert.Equal(t, domain.CurrencyKindFiat, got.CurrencyKind)
	require.NotNil(t, got.AllowNegativeBalance)
	assert.True(t, *got.AllowNegativeBalance)
	assert.True(t, got.CreditLimit.Equal(decimal.NewFromInt(100)))
	assert.True(t, got.MinBalance.Equal(decimal.RequireFromString("-50.5")))
	assert.Nil(t, got.MaxBalance)
	assert.Equal(t, []string{"0xabc"}, got.Refs.WalletAddresses)
}

func TestPostTransactionRequest_ToUseCaseInput(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	tests := []struct {
		name    string
		request PostTransactionRequest
		check   func(t *testing.T, in usecase.PostTransactionInput)
	}{
		{
			name: "fee and timestamp are copied",
			request: PostTransactionRequest{
				Reference:       "tx-1",
				DebitAccountID:  "a",
				CreditAccountID: "b",
				Amount:          "12.34",
				Currency:        "USD",
				Bucket:          "pending",
				Fee:             strPtr("0.5"),
				FeeAccountID:    "fees",
				Timestamp:       &ts,
			},
			check: func(t *testing.T, in usecase.PostTransactionInput) {
				assert.Equal(t, domain.BucketPending, in.Bucket)
				assert.True(t, in.Fee.Equal(decimal.RequireFromString("0.5")))
				assert.Equal(t, ts, in.Timestamp)
			},
		},
		{
			name: "absent fee and timestamp stay zero",
			request: PostTransactionRequest{
				Reference:       "tx-2",
				DebitAccountID:  "a",
				CreditAccountID: "b",
				Amount:          "1",
				Currency:        "USD",
			},
			check: func(t *testing.T, in usecase.PostTransactionInput) {
				assert.True(t, in.Fee.IsZero())
				assert.True(t, in.Timestamp.IsZero())
				assert.Equal(t, domain.Bucket(""), in.Bucket)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, err := tt.request.ToUseCaseInput()
			require.NoError(t, err)
			tt.check(t, in)
		})
	}
}

func TestPostJournalEntryRequest_ToUseCaseInput(t *testing.T) {
	req := &PostJournalEntryRequest{
		Reference: "je-1",
		Currency:  "USD",
		Legs: []JournalLegRequest{
			{AccountID: "a", Debit: strPtr("10")},
			{AccountID: "b", Credit: strPtr("10"), Bucket: "escrow"},
		},
	}

	got, err := req.ToUseCaseInput()
	require.NoError(t, err)
	require.Len(t, got.Legs, 2)
	assert.True(t, got.Legs[0].Debit.Equal(decimal.NewFromInt(10)))
	assert.True(t, got.Legs[0].Credit.IsZero())
	assert.True(t, got.Legs[1].Credit.Equal(decimal.NewFromInt(10)))
	assert.Equal(t, domain.BucketEscrow, got.Legs[1].Bucket)
}

func TestReverseAndBucketRequests_ToUseCaseInput(t *testing.T) {
	rev := (&ReverseJournalEntryRequest{Reference: "rev-1", Reason: "typo", Actor: "ops"}).ToUseCaseInput("je-1")
	assert.Equal(t, usecase.ReverseJournalEntryInput{
		OriginalReference: "je-1",
		Reference:         "rev-1",
		Reason:            "typo",
		Actor:             "ops",
	}, rev)

	move, err := (&BucketMoveRequest{Reference: "f-1", Reason: "aml"}).ToUseCaseInput("acc-1")
	require.NoError(t, err)
	assert.Equal(t, "acc-1", move.AccountID)
	assert.Nil(t, move.Amount)

	move, err = (&BucketMoveRequest{Reference: "f-2", Amount: strPtr("25.5")}).ToUseCaseInput("acc-1")
	require.NoError(t, err)
	require.NotNil(t, move.Amount)
	assert.True(t, move.Amount.Equal(decimal.RequireFromString("25.5")))

	action := (&AccountActionRequest{Reason: "kyc", Actor: "admin"}).ToUseCaseInput("acc-2")
	assert.Equal(t, usecase.AccountActionInput{AccountID: "acc-2", Reason: "kyc", Actor: "admin"}, action)
}

func TestAmountsAreDecimalStrings(t *testing.T) {
	t.Run("json numbers do not decode", func(t *testing.T) {
		var tx PostTransactionRequest
		assert.Error(t, json.Unmarshal([]byte(`{"amount": 100.5}`), &tx))

		var move BucketMoveRequest
		assert.Error(t, json.Unmarshal([]byte(`{"reference":"f-1","amount": 10}`), &move))

		var je PostJournalEntryRequest
		assert.Error(t, json.Unmarshal([]byte(`{"legs":[{"accountId":"a","debit":1}]}`), &je))
	})

	tests := []struct {
		name      string
		convert   func() error
		wantField string
		wantErr   error
	}{
		{
			name: "exponent notation",
			convert: func() error {
				_, err := (&PostTransactionRequest{Amount: "1e2"}).ToUseCaseInput()
				return err
			},
			wantField: "amount",
			wantErr:   domain.ErrInvalidDecimal,
		},
		{
			name: "zero transaction amount",
			convert: func() error {
				_, err := (&PostTransactionRequest{Amount: "0"}).ToUseCaseInput()
				return err
			},
			wantField: "amount",
			wantErr:   domain.ErrInvalidAmount,
		},
		{
			name: "fee finer than eight digits",
			convert: func() error {
				_, err := (&PostTransactionRequest{Amount: "1", Fee: strPtr("0.000000001")}).ToUseCaseInput()
				return err
			},
			wantField: "fee",
			wantErr:   domain.ErrPrecisionLoss,
		},
		{
			name: "leg amount",
			convert: func() error {
				_, err := (&PostJournalEntryRequest{Legs: []JournalLegRequest{
					{AccountID: "a", Debit: strPtr("10")},
					{AccountID: "b", Credit: strPtr("ten")},
				}}).ToUseCaseInput()
				return err
			},
			wantField: "legs[1].credit",
			wantErr:   domain.ErrInvalidDecimal,
		},
		{
			name: "bucket move amount",
			convert: func() error {
				_, err := (&BucketMoveRequest{Reference: "f-1", Amount: strPtr("-5")}).ToUseCaseInput("acc-1")
				return err
			},
			wantField: "amount",
			wantErr:   domain.ErrInvalidAmount,
		},
		{
			name: "credit limit",
			convert: func() error {
				_, err := (&CreateAccountRequest{CreditLimit: strPtr("1e3")}).ToUseCaseInput()
				return err
			},
			wantField: "creditLimit",
			wantErr:   domain.ErrInvalidDecimal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.convert()
			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "expected ValidationError, got %v", err)
			require.Contains(t, verr.Details, tt.wantField)
			assert.Contains(t, verr.Details[tt.wantField], tt.wantErr.Error())
		})
	}
}

func TestValidator_Struct(t *testing.T) {
	v := NewValidator()

	tests := []struct {
		name       string
		request    any
		wantFields []string
	}{
		{
			name: "valid transaction",
			request: &PostTransactionRequest{
				Reference:       "tx-1",
				DebitAccountID:  "a",
				CreditAccountID: "b",
				Amount:          "1",
				Currency:        "USD",
			},
		},
		{
			name: "same account on both sides",
			request: &PostTransactionRequest{
				Reference:       "tx-1",
				DebitAccountID:  "a",
				CreditAccountID: "a",
				Amount:          "1",
				Currency:        "USD",
			},
			wantFields: []string{"creditAccountId"},
		},
		{
			name: "unknown bucket and fee rate",
			request: &PostTransactionRequest{
				Reference:       "tx-1",
				DebitAccountID:  "a",
				CreditAccountID: "b",
				Amount:          "1",
				Currency:        "USD",
				Bucket:          "savings",
				FeeRateBps:      20000,
			},
			wantFields: []string{"bucket", "feeRateBps"},
		},
		{
			name: "missing amount",
			request: &PostTransactionRequest{
				Reference:       "tx-1",
				DebitAccountID:  "a",
				CreditAccountID: "b",
				Currency:        "USD",
			},
			wantFields: []string{"amount"},
		},
		{
			name:       "account type outside the chart",
			request:    &CreateAccountRequest{Reference: "r", Name: "n", Type: "suspense", Currency: "USD"},
			wantFields: []string{"type"},
		},
		{
			name: "journal leg without account",
			request: &PostJournalEntryRequest{
				Reference: "je-1",
				Currency:  "USD",
				Legs:      []JournalLegRequest{{AccountID: "a"}, {}},
			},
			wantFields: []string{"legs[1].accountId"},
		},
		{
			name:       "reversal needs a reason",
			request:    &ReverseJournalEntryRequest{Reference: "rev-1"},
			wantFields: []string{"reason"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Struct(tt.request)
			if len(tt.wantFields) == 0 {
				require.NoError(t, err)
				return
			}

			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "expected ValidationError, got %v", err)
			for _, f := range tt.wantFields {
				assert.Contains(t, verr.Details, f)
			}
			assert.Len(t, verr.Details, len(tt.wantFields))
		})
	}
}
