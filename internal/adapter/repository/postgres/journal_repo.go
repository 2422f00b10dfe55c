package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/osparrot/swiftpayme-platform-sub005/internal/domain"
	"github.com/osparrot/swiftpayme-platform-sub005/internal/usecase"
)

const entryColumns = `id, reference, external_reference, kind, currency, description, tags, metadata,
	mirror_available, actor, payload_hash, reversal_of, reversed_by, occurred_at, created_at`

// JournalRepository implements usecase.JournalRepository.
type JournalRepository struct {
	db DBTX
}

// NewJournalRepository creates a new JournalRepository.
func NewJournalRepository(db DBTX) *JournalRepository {
	return &JournalRepository{db: db}
}

// Create inserts the entry and its legs inside tx.
func (r *JournalRepository) Create(ctx context.Context, t usecase.Transaction, entry *domain.JournalEntry) error {
	tx, err := txFrom(t)
	if err != nil {
		return err
	}

	metadata, err := marshalMetadata(entry.Metadata)
	if err != nil {
		return err
	}
	tags := entry.Tags
	if tags == nil {
		tags = []string{}
	}

	_, err = tx.Exec(ctx, `INSERT INTO journal_entries (`+entryColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		entry.ID,
		entry.Reference,
		entry.ExternalReference,
		string(entry.Kind),
		entry.Currency,
		entry.Description,
		tags,
		metadata,
		entry.MirrorAvailable,
		entry.Actor,
		entry.PayloadHash,
		entry.ReversalOf,
		entry.ReversedBy,
		entry.Timestamp,
		entry.CreatedAt,
	)
	if err != nil {
		return translate(err, nil)
	}

	for i, leg := range entry.Legs {
		_, err := tx.Exec(ctx, `INSERT INTO journal_legs
			(entry_id, leg_index, account_id, debit, credit, bucket, description)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			entry.ID,
			i,
			leg.AccountID,
			decimalToNumeric(leg.Debit),
			decimalToNumeric(leg.Credit),
			string(legBucket(leg)),
			leg.Description,
		)
		if err != nil {
			return fmt.Errorf("insert leg %d: %w", i, err)
		}
	}

	return nil
}

// GetByID retrieves an entry with its legs.
func (r *JournalRepository) GetByID(ctx context.Context, id string) (*domain.JournalEntry, error) {
	return r.getOne(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE id = $1`, id)
}

// GetByReference retrieves the entry posted under reference.
func (r *JournalRepository) GetByReference(ctx context.Context, reference string) (*domain.JournalEntry, error) {
	return r.getOne(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE reference = $1`, reference)
}

func (r *JournalRepository) getOne(ctx context.Context, query, key string) (*domain.JournalEntry, error) {
	entry, err := scanEntry(r.db.QueryRow(ctx, query, key))
	if err != nil {
		return nil, translate(err, fmt.Errorf("%w: %s", domain.ErrJournalEntryNotFound, key))
	}
	if err := r.loadLegs(ctx, []*domain.JournalEntry{entry}); err != nil {
		return nil, err
	}
	return entry, nil
}

// MarkReversed links an entry to its reversal. An entry is reversed at most once.
func (r *JournalRepository) MarkReversed(ctx context.Context, t usecase.Transaction, id, reversedBy string) error {
	tx, err := txFrom(t)
	if err != nil {
		return err
	}

	tag, err := tx.Exec(ctx,
		`UPDATE journal_entries SET reversed_by = $2 WHERE id = $1 AND reversed_by IS NULL`, id, reversedBy)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", domain.ErrAlreadyReversed, id)
	}
	return nil
}

// ListByAccount lists entries with a leg on accountID, newest first.
func (r *JournalRepository) ListByAccount(ctx context.Context, accountID string, limit, offset int) ([]*domain.JournalEntry, error) {
	rows, err := r.db.Query(ctx, `SELECT `+entryColumns+` FROM journal_entries
		WHERE id IN (SELECT entry_id FROM journal_legs WHERE account_id = $1)
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`, accountID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]*domain.JournalEntry, 0)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := r.loadLegs(ctx, entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *JournalRepository) loadLegs(ctx context.Context, entries []*domain.JournalEntry) error {
	if len(entries) == 0 {
		return nil
	}
	byID := make(map[string]*domain.JournalEntry, len(entries))
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		byID[e.ID] = e
		ids = append(ids, e.ID)
	}

	rows, err := r.db.Query(ctx, `SELECT entry_id, account_id, debit, credit, bucket, description
		FROM journal_legs WHERE entry_id = ANY($1) ORDER BY entry_id, leg_index`, ids)
	if err != nil {
		return fmt.Errorf("load legs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			entryID, bucket string
			debit, credit   pgtype.Numeric
			leg             domain.JournalLeg
		)
		if err := rows.Scan(&entryID, &leg.AccountID, &debit, &credit, &bucket, &leg.Description); err != nil {
			return err
		}
		leg.Debit = numericToDecimal(debit)
		leg.Credit = numericToDecimal(credit)
		leg.Bucket = domain.Bucket(bucket)
		if e, ok := byID[entryID]; ok {
			e.Legs = append(e.Legs, leg)
		}
	}
	return rows.Err()
}

func scanEntry(row pgx.Row) (*domain.JournalEntry, error) {
	var (
		e        domain.JournalEntry
		kind     string
		metadata []byte
	)
	err := row.Scan(
		&e.ID,
		&e.Reference,
		&e.ExternalReference,
		&kind,
		&e.Currency,
		&e.Description,
		&e.Tags,
		&metadata,
		&e.MirrorAvailable,
		&e.Actor,
		&e.PayloadHash,
		&e.ReversalOf,
		&e.ReversedBy,
		&e.Timestamp,
		&e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	e.Kind = domain.EntryKind(kind)
	e.Timestamp = e.Timestamp.UTC()
	e.CreatedAt = e.CreatedAt.UTC()
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &e.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata of %s: %w", e.ID, err)
		}
	}
	return &e, nil
}

func legBucket(leg domain.JournalLeg) domain.Bucket {
	if leg.Bucket == "" {
		return domain.BucketCurrent
	}
	return leg.Bucket
}

// BucketOperationRepository implements usecase.BucketOperationRepository.
type BucketOperationRepository struct {
	db DBTX
}

// NewBucketOperationRepository creates a new BucketOperationRepository.
func NewBucketOperationRepository(db DBTX) *BucketOperationRepository {
	return &BucketOperationRepository{db: db}
}

// Create records a committed bucket move inside tx.
func (r *BucketOperationRepository) Create(ctx context.Context, t usecase.Transaction, op *domain.BucketOperation) error {
	tx, err := txFrom(t)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `INSERT INTO bucket_operations
		(id, reference, account_id, kind, amount, reason, actor, payload_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		op.ID,
		op.Reference,
		op.AccountID,
		string(op.Kind),
		decimalToNumeric(op.Amount),
		op.Reason,
		op.Actor,
		op.PayloadHash,
		op.CreatedAt,
	)
	return translate(err, nil)
}

// GetByReference retrieves the bucket move recorded under reference.
func (r *BucketOperationRepository) GetByReference(ctx context.Context, reference string) (*domain.BucketOperation, error) {
	var (
		op     domain.BucketOperation
		kind   string
		amount pgtype.Numeric
	)
	err := r.db.QueryRow(ctx, `SELECT id, reference, account_id, kind, amount, reason, actor, payload_hash, created_at
		FROM bucket_operations WHERE reference = $1`, reference).Scan(
		&op.ID,
		&op.Reference,
		&op.AccountID,
		&kind,
		&amount,
		&op.Reason,
		&op.Actor,
		&op.PayloadHash,
		&op.CreatedAt,
	)
	if err != nil {
		return nil, translate(err, fmt.Errorf("%w: %s", domain.ErrBucketOpNotFound, reference))
	}

	op.Kind = domain.BucketOperationKind(kind)
	op.Amount = numericToDecimal(amount)
	op.CreatedAt = op.CreatedAt.UTC()
	return &op, nil
}
