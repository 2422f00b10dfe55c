package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/osparrot/swiftpayme-platform-sub005/internal/domain"
)

// PostingUseCase posts transactions and journal entries.
type PostingUseCase struct {
	deps Dependencies
}

// NewPostingUseCase creates a new PostingUseCase.
func NewPostingUseCase(deps Dependencies) *PostingUseCase {
	return &PostingUseCase{deps: deps.withDefaults()}
}

// PostTransactionInput represents a two-party value movement.
type PostTransactionInput struct {
	Reference         string
	ExternalReference string
	DebitAccountID    string
	CreditAccountID   string
	Amount            decimal.Decimal
	Currency          string
	Bucket            domain.Bucket
	Fee               decimal.Decimal
	FeeRateBps        int64
	FeeAccountID      string
	Description       string
	Tags              []string
	Metadata          map[string]any
	MirrorAvailable   bool
	Actor             string
	Timestamp         time.Time
}

// PostJournalEntryInput represents an N-leg posting.
type PostJournalEntryInput struct {
	Reference         string
	ExternalReference string
	Currency          string
	Legs              []domain.JournalLeg
	Description       string
	Tags              []string
	Metadata          map[string]any
	MirrorAvailable   bool
	Actor             string
	Timestamp         time.Time
}

// ReverseJournalEntryInput requests a correcting entry for a committed one.
type ReverseJournalEntryInput struct {
	OriginalReference string
	Reference         string
	Reason            string
	Actor             string
}

// PostingResult is the committed entry and the post-condition balances of every touched account.
type PostingResult struct {
	Entry    *domain.JournalEntry
	Balances map[string]domain.Balances
	Replayed bool
}

// PostTransaction posts a transaction as a journal entry.
func (uc *PostingUseCase) PostTransaction(ctx context.Context, input PostTransactionInput) (*PostingResult, error) {
	fee := input.Fee
	if fee.IsZero() && input.FeeRateBps > 0 {
		var err error
		if fee, err = domain.FeeFor(input.Amount, input.FeeRateBps); err != nil {
			return nil, err
		}
	}

	tx := &domain.Transaction{
		Reference:         input.Reference,
		ExternalReference: input.ExternalReference,
		DebitAccountID:    input.DebitAccountID,
		CreditAccountID:   input.CreditAccountID,
		Amount:            input.Amount,
		Currency:          input.Currency,
		Bucket:            input.Bucket,
		Fee:               fee,
		FeeAccountID:      input.FeeAccountID,
		Description:       input.Description,
		Tags:              input.Tags,
		Metadata:          input.Metadata,
		MirrorAvailable:   input.MirrorAvailable,
		Actor:             resolveActor(ctx, input.Actor),
		Timestamp:         input.Timestamp,
	}
	if err := tx.Validate(uc.deps.Clock()); err != nil {
		uc.observe(tx.ToJournalEntry(), time.Now(), nil, err)
		return nil, err
	}

	return uc.post(ctx, tx.ToJournalEntry())
}

// PostJournalEntry posts a balanced N-leg journal entry.
func (uc *PostingUseCase) PostJournalEntry(ctx context.Context, input PostJournalEntryInput) (*PostingResult, error) {
	entry := &domain.JournalEntry{
		Reference:         input.Reference,
		ExternalReference: input.ExternalReference,
		Kind:              domain.EntryKindJournal,
		Currency:          input.Currency,
		Legs:              append([]domain.JournalLeg(nil), input.Legs...),
		Description:       input.Description,
		Tags:              input.Tags,
		Metadata:          input.Metadata,
		MirrorAvailable:   input.MirrorAvailable,
		Actor:             resolveActor(ctx, input.Actor),
		Timestamp:         input.Timestamp,
	}
	return uc.post(ctx, entry)
}

// ReverseJournalEntry posts the mirror image of a committed entry. Each entry can be reversed once.
func (uc *PostingUseCase) ReverseJournalEntry(ctx context.Context, input ReverseJournalEntryInput) (*PostingResult, error) {
	actor := resolveActor(ctx, input.Actor)
	if err := domain.ValidateReference(input.Reference); err != nil {
		return nil, err
	}
	if err := domain.ValidateActor(actor); err != nil {
		return nil, err
	}

	original, err := uc.GetJournalEntry(ctx, input.OriginalReference)
	if err != nil {
		return nil, err
	}
	if original.Kind == domain.EntryKindReversal {
		return nil, fmt.Errorf("%w: %s is itself a reversal", domain.ErrReversalNotApplicable, original.Reference)
	}
	if original.ReversedBy != nil {
		// Only a retry of the reversal that already committed may pass.
		existing, err := uc.deps.Journals.GetByReference(ctx, input.Reference)
		if err != nil || existing.ID != *original.ReversedBy {
			return nil, fmt.Errorf("%w: %s", domain.ErrAlreadyReversed, original.Reference)
		}
	}

	return uc.post(ctx, original.Reverse(input.Reference, actor, input.Reason))
}

// GetJournalEntry looks an entry up by ID, then by reference.
func (uc *PostingUseCase) GetJournalEntry(ctx context.Context, idOrReference string) (*domain.JournalEntry, error) {
	entry, err := uc.deps.Journals.GetByID(ctx, idOrReference)
	if errors.Is(err, domain.ErrJournalEntryNotFound) {
		return uc.deps.Journals.GetByReference(ctx, idOrReference)
	}
	return entry, err
}

// ListJournalEntriesByAccount lists entries touching an account, newest first.
func (uc *PostingUseCase) ListJournalEntriesByAccount(ctx context.Context, accountID string, limit, offset int) ([]*domain.JournalEntry, error) {
	limit, offset = domain.ValidatePagination(limit, offset)
	return uc.deps.Journals.ListByAccount(ctx, accountID, limit, offset)
}

func (uc *PostingUseCase) post(ctx context.Context, entry *domain.JournalEntry) (result *PostingResult, err error) {
	d := uc.deps
	ctx, span := d.Tracer.Start(ctx, "ledger.post",
		trace.WithAttributes(
			attribute.String("ledger.reference", entry.Reference),
			attribute.String("ledger.kind", string(entry.Kind)),
			attribute.Int("ledger.legs", len(entry.Legs)),
		))
	start := time.Now()
	defer func() {
		uc.observe(entry, start, result, err)
		endSpan(span, err)
	}()

	if err = entry.Validate(d.Clock()); err != nil {
		return nil, err
	}
	entry.PayloadHash = entry.ComputePayloadHash()

	if result, err = uc.replay(ctx, entry); result != nil || err != nil {
		return result, err
	}

	var touched []*domain.Account
	err = d.runUnitOfWork(ctx, func(ctx context.Context, tx Transaction) error {
		var applyErr error
		touched, applyErr = uc.apply(ctx, tx, entry)
		return applyErr
	})
	if errors.Is(err, domain.ErrDuplicateReference) {
		// A concurrent request committed the same reference first.
		replayed, replayErr := uc.replay(context.WithoutCancel(ctx), entry)
		if replayErr != nil {
			return nil, replayErr
		}
		if replayed != nil {
			return replayed, nil
		}
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	rememberReference(ctx, d, "journal:"+entry.Reference, entry.PayloadHash)

	balances := make(map[string]domain.Balances, len(touched))
	for _, acc := range touched {
		balances[acc.ID] = acc.Balances
	}
	return &PostingResult{Entry: entry, Balances: balances}, nil
}

func (uc *PostingUseCase) apply(ctx context.Context, tx Transaction, entry *domain.JournalEntry) ([]*domain.Account, error) {
	d := uc.deps

	ids := entry.AccountIDs()
	locked, err := d.Accounts.GetByIDsForUpdate(ctx, tx, ids)
	if err != nil {
		return nil, err
	}
	byID, err := lockedByID(locked, ids)
	if err != nil {
		return nil, err
	}

	// Read the clock under the row locks so history timestamps follow commit order.
	now := d.Clock()
	entry.ID = d.IDGen.Generate()
	entry.CreatedAt = now
	if entry.Timestamp.IsZero() {
		entry.Timestamp = now
	}

	if _, err := domain.ApplyJournalEntry(entry, byID, now); err != nil {
		return nil, err
	}

	if err := d.Journals.Create(ctx, tx, entry); err != nil {
		return nil, err
	}
	if entry.ReversalOf != nil {
		if err := d.Journals.MarkReversed(ctx, tx, *entry.ReversalOf, entry.ID); err != nil {
			return nil, err
		}
		err := d.audit(ctx, tx, &domain.AuditLog{
			Actor:        entry.Actor,
			Action:       domain.AuditActionJournalReverse,
			ResourceType: domain.AggregateTypeJournalEntry,
			ResourceID:   *entry.ReversalOf,
			Reference:    entry.Reference,
			Reason:       entry.Description,
			AfterState:   domain.MarshalState(map[string]any{"reversed_by": entry.ID}),
			CreatedAt:    now,
		})
		if err != nil {
			return nil, err
		}
	}

	if err := d.persistAccounts(ctx, tx, locked, now); err != nil {
		return nil, err
	}
	if err := d.emitBalanceEvents(ctx, tx, locked, entry.Reference, now); err != nil {
		return nil, err
	}
	if d.Outbox != nil {
		if err := d.Outbox.Create(ctx, tx, domain.NewJournalPostedEvent(d.IDGen.Generate(), entry)); err != nil {
			return nil, fmt.Errorf("queue journal event: %w", err)
		}
	}
	return locked, nil
}

// replay answers a request whose reference is already committed.
// It returns (nil, nil) when the reference is unused.
func (uc *PostingUseCase) replay(ctx context.Context, entry *domain.JournalEntry) (*PostingResult, error) {
	d := uc.deps

	if cached, ok := cachedReference(ctx, d, "journal:"+entry.Reference); ok && cached != entry.PayloadHash {
		return nil, fmt.Errorf("%w: %s", domain.ErrDuplicateReference, entry.Reference)
	}

	existing, err := d.Journals.GetByReference(ctx, entry.Reference)
	if errors.Is(err, domain.ErrJournalEntryNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if existing.PayloadHash != entry.PayloadHash {
		return nil, fmt.Errorf("%w: %s", domain.ErrDuplicateReference, entry.Reference)
	}

	balances := make(map[string]domain.Balances)
	for _, id := range existing.AccountIDs() {
		acc, err := d.Accounts.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		balances[id] = acc.Balances
	}
	return &PostingResult{Entry: existing, Balances: balances, Replayed: true}, nil
}

func (uc *PostingUseCase) observe(entry *domain.JournalEntry, start time.Time, result *PostingResult, err error) {
	d := uc.deps
	kind := string(entry.Kind)

	switch {
	case err != nil:
		errKind := domain.ErrorKind(err)
		ev := d.Logger.Warn()
		if errKind == domain.KindInternal || errKind == domain.KindPostingTimeout {
			ev = d.Logger.Error()
		}
		ev.Err(err).
			Str("reference", entry.Reference).
			Str("kind", kind).
			Str("error_kind", string(errKind)).
			Msg("posting rejected")
		if d.Metrics != nil {
			d.Metrics.Postings.WithLabelValues(kind, "rejected").Inc()
			d.Metrics.PostingErrors.WithLabelValues(string(errKind)).Inc()
		}
	case result.Replayed:
		d.Logger.Info().
			Str("reference", entry.Reference).
			Str("journal_entry_id", result.Entry.ID).
			Msg("posting replayed")
		if d.Metrics != nil {
			d.Metrics.Postings.WithLabelValues(kind, "replayed").Inc()
			d.Metrics.PostingReplays.Inc()
		}
	default:
		d.Logger.Info().
			Str("reference", entry.Reference).
			Str("journal_entry_id", entry.ID).
			Str("kind", kind).
			Str("currency", entry.Currency).
			Str("amount", entry.TotalDebits().String()).
			Int("legs", len(entry.Legs)).
			Str("actor", entry.Actor).
			Msg("posting committed")
		if d.Metrics != nil {
			d.Metrics.Postings.WithLabelValues(kind, "committed").Inc()
			d.Metrics.PostingDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
			d.Metrics.PostingAmount.WithLabelValues(entry.Currency).Observe(entry.TotalDebits().InexactFloat64())
			d.Metrics.PostingLegs.Observe(float64(len(entry.Legs)))
		}
	}
}

func cachedReference(ctx context.Context, d Dependencies, key string) (string, bool) {
	if d.Cache == nil {
		return "", false
	}
	data, err := d.Cache.Get(ctx, ReferenceCachePrefix+key)
	if err != nil {
		d.Logger.Warn().Err(err).Str("key", key).Msg("reference cache lookup failed")
		return "", false
	}
	if data == nil {
		return "", false
	}
	return string(data), true
}

func rememberReference(ctx context.Context, d Dependencies, key, hash string) {
	if d.Cache == nil {
		return
	}
	if err := d.Cache.Set(context.WithoutCancel(ctx), ReferenceCachePrefix+key, []byte(hash), d.IdempotencyTTL); err != nil {
		d.Logger.Warn().Err(err).Str("key", key).Msg("reference cache write failed")
	}
}
