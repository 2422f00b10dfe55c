package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osparrot/swiftpayme-platform-sub005/internal/domain"
)

var entryColumnNames = []string{
	"id", "reference", "external_reference", "kind", "currency", "description", "tags", "metadata",
	"mirror_available", "actor", "payload_hash", "reversal_of", "reversed_by", "occurred_at", "created_at",
}

var legColumnNames = []string{"entry_id", "account_id", "debit", "credit", "bucket", "description"}

func TestJournalRepository_CreateWritesLegs(t *testing.T) {
	pool := newMockPool(t)
	repo := NewJournalRepository(pool)
	tx := begin(t, pool)

	pool.ExpectExec(`INSERT INTO journal_entries`).
		WithArgs(anyArgs(15)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	pool.ExpectExec(`INSERT INTO journal_legs`).
		WithArgs("j1", 0, "a", pgxmock.AnyArg(), pgxmock.AnyArg(), "current", "").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	pool.ExpectExec(`INSERT INTO journal_legs`).
		WithArgs("j1", 1, "b", pgxmock.AnyArg(), pgxmock.AnyArg(), "available", "mirror").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := repo.Create(context.Background(), tx, &domain.JournalEntry{
		ID:        "j1",
		Reference: "ref-1",
		Kind:      domain.EntryKindJournal,
		Currency:  "USD",
		Legs: []domain.JournalLeg{
			{AccountID: "a", Debit: decimal.NewFromInt(10)},
			{AccountID: "b", Credit: decimal.NewFromInt(10), Bucket: domain.BucketAvailable, Description: "mirror"},
		},
	})
	require.NoError(t, err)
	assertExpectations(t, pool)
}

func TestJournalRepository_GetByReferenceLoadsLegs(t *testing.T) {
	pool := newMockPool(t)
	repo := NewJournalRepository(pool)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	pool.ExpectQuery(`FROM journal_entries WHERE reference = \$1`).
		WithArgs("ref-1").
		WillReturnRows(pgxmock.NewRows(entryColumnNames).AddRow(
			"j1", "ref-1", "", "transaction", "USD", "", []string{"payout"}, nil,
			true, "tester", "hash", nil, nil, at, at,
		))
	pool.ExpectQuery(`FROM journal_legs WHERE entry_id = ANY\(\$1\)`).
		WithArgs([]string{"j1"}).
		WillReturnRows(pgxmock.NewRows(legColumnNames).
			AddRow("j1", "a", "10.5", "0", "current", "").
			AddRow("j1", "b", "0", "10.5", "current", ""))

	entry, err := repo.GetByReference(context.Background(), "ref-1")
	require.NoError(t, err)
	assert.Equal(t, domain.EntryKindTransaction, entry.Kind)
	assert.True(t, entry.MirrorAvailable)
	assert.Equal(t, []string{"payout"}, entry.Tags)
	require.Len(t, entry.Legs, 2)
	assert.True(t, entry.Legs[0].IsDebit())
	assert.True(t, entry.Legs[1].Credit.Equal(decimal.RequireFromString("10.5")))
	assert.True(t, entry.TotalDebits().Equal(entry.TotalCredits()))
	assertExpectations(t, pool)
}

func TestJournalRepository_NotFound(t *testing.T) {
	pool := newMockPool(t)
	repo := NewJournalRepository(pool)

	pool.ExpectQuery(`FROM journal_entries WHERE id = \$1`).WithArgs("nope").WillReturnError(pgx.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrJournalEntryNotFound)
	assertExpectations(t, pool)
}

func TestJournalRepository_MarkReversedOnce(t *testing.T) {
	pool := newMockPool(t)
	repo := NewJournalRepository(pool)
	tx := begin(t, pool)

	pool.ExpectExec(`UPDATE journal_entries SET reversed_by = \$2 WHERE id = \$1 AND reversed_by IS NULL`).
		WithArgs("j1", "j2").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	pool.ExpectExec(`UPDATE journal_entries SET reversed_by`).
		WithArgs("j1", "j3").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	require.NoError(t, repo.MarkReversed(context.Background(), tx, "j1", "j2"))
	err := repo.MarkReversed(context.Background(), tx, "j1", "j3")
	assert.ErrorIs(t, err, domain.ErrAlreadyReversed)
	assertExpectations(t, pool)
}

func TestBucketOperationRepository(t *testing.T) {
	pool := newMockPool(t)
	repo := NewBucketOperationRepository(pool)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	pool.ExpectQuery(`FROM bucket_operations WHERE reference = \$1`).
		WithArgs("freeze-1").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "reference", "account_id", "kind", "amount", "reason", "actor", "payload_hash", "created_at",
		}).AddRow("op-1", "freeze-1", "a", "freeze", "25", "aml", "compliance", "hash", at))
	pool.ExpectQuery(`FROM bucket_operations`).WithArgs("missing").WillReturnError(pgx.ErrNoRows)

	op, err := repo.GetByReference(context.Background(), "freeze-1")
	require.NoError(t, err)
	assert.Equal(t, domain.BucketOpFreeze, op.Kind)
	assert.True(t, op.Amount.Equal(decimal.NewFromInt(25)))

	_, err = repo.GetByReference(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrBucketOpNotFound)
	assertExpectations(t, pool)
}
