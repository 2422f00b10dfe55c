package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/osparrot/swiftpayme-platform-sub005/internal/domain"
	"github.com/osparrot/swiftpayme-platform-sub005/internal/infrastructure/metrics"
)

// Stores groups the repositories backing the ledger.
type Stores struct {
	TxManager TransactionManager
	Accounts  AccountRepository
	Journals  JournalRepository
	BucketOps BucketOperationRepository
	History   HistoryRepository
	Ledger    LedgerRepository
	Outbox    OutboxRepository
	Audit     AuditRepository
}

// Dependencies wires a use case. Optional fields fall back to no-op behaviour.
type Dependencies struct {
	Stores

	IDGen   IDGenerator
	Retrier Retrier
	Cache   Cache
	Metrics *metrics.Metrics
	Logger  zerolog.Logger
	Tracer  trace.Tracer
	Clock   func() time.Time

	PostingTimeout time.Duration
	IdempotencyTTL time.Duration
	ReportCacheTTL time.Duration
}

func (d Dependencies) withDefaults() Dependencies {
	if d.Retrier == nil {
		d.Retrier = onceRetrier{}
	}
	if d.Tracer == nil {
		d.Tracer = otel.Tracer("swiftpayme/ledger")
	}
	if d.Clock == nil {
		d.Clock = func() time.Time { return time.Now().UTC() }
	}
	if d.PostingTimeout <= 0 {
		d.PostingTimeout = DefaultPostingTimeout
	}
	if d.IdempotencyTTL <= 0 {
		d.IdempotencyTTL = IdempotencyKeyTTL
	}
	if d.ReportCacheTTL <= 0 {
		d.ReportCacheTTL = DefaultReportCacheTTL
	}
	return d
}

type onceRetrier struct{}

func (onceRetrier) Retry(_ context.Context, operation func() error) error { return operation() }

// runUnitOfWork opens one store transaction and runs fn inside it.
//
// The caller's context is honoured only until the transaction opens. From then on
// the work runs detached from caller cancellation, bounded by PostingTimeout, so a
// multi-leg write always ends in commit or rollback.
func (d Dependencies) runUnitOfWork(ctx context.Context, fn func(ctx context.Context, tx Transaction) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	uowCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.PostingTimeout)
	defer cancel()

	err := d.Retrier.Retry(uowCtx, func() error {
		tx, err := d.TxManager.Begin(uowCtx)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback(uowCtx) }()

		if err := fn(uowCtx, tx); err != nil {
			return err
		}
		return tx.Commit(uowCtx)
	})
	if err == nil {
		return nil
	}

	if domain.ErrorKind(err) != domain.KindInternal {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(uowCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", domain.ErrPostingTimeout, err)
	}
	return err
}

// persistAccounts writes every account that gained history in this unit of work,
// then appends that history. Accounts must be in lock order.
func (d Dependencies) persistAccounts(ctx context.Context, tx Transaction, accounts []*domain.Account, now time.Time) error {
	for _, acc := range accounts {
		records := acc.DrainHistory()
		if len(records) == 0 {
			continue
		}
		for _, r := range records {
			r.ID = d.IDGen.Generate()
		}

		acc.UpdatedAt = now
		if err := d.Accounts.Update(ctx, tx, acc); err != nil {
			return fmt.Errorf("update account %s: %w", acc.ID, err)
		}
		if err := d.History.Append(ctx, tx, records); err != nil {
			return fmt.Errorf("append history for %s: %w", acc.ID, err)
		}
	}
	return nil
}

// emitBalanceEvents queues one balance.updated event per account.
func (d Dependencies) emitBalanceEvents(ctx context.Context, tx Transaction, accounts []*domain.Account, reference string, now time.Time) error {
	if d.Outbox == nil {
		return nil
	}
	for _, acc := range accounts {
		event := domain.NewBalanceUpdatedEvent(d.IDGen.Generate(), acc, reference, now)
		if err := d.Outbox.Create(ctx, tx, event); err != nil {
			return fmt.Errorf("queue balance event: %w", err)
		}
	}
	return nil
}

func (d Dependencies) audit(ctx context.Context, tx Transaction, log *domain.AuditLog) error {
	if d.Audit == nil {
		return nil
	}
	log.ID = d.IDGen.Generate()
	if log.Status == "" {
		log.Status = domain.AuditStatusSuccess
	}
	if err := d.Audit.CreateTx(ctx, tx, log); err != nil {
		return fmt.Errorf("write audit log: %w", err)
	}
	if d.Metrics != nil {
		d.Metrics.AuditLogsCreated.WithLabelValues(string(log.Action), string(log.Status)).Inc()
	}
	return nil
}

func lockedByID(accounts []*domain.Account, ids []string) (map[string]*domain.Account, error) {
	byID := make(map[string]*domain.Account, len(accounts))
	for _, acc := range accounts {
		byID[acc.ID] = acc
	}
	for _, id := range ids {
		if _, ok := byID[id]; !ok {
			return nil, fmt.Errorf("%w: %s", domain.ErrAccountNotFound, id)
		}
	}
	return byID, nil
}

// endSpan records err on span and closes it.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(domain.ErrorKind(err)))
	}
	span.End()
}

// resolveActor prefers the authenticated identity over the one in the payload.
func resolveActor(ctx context.Context, declared string) string {
	if actor, ok := domain.ActorFromContext(ctx); ok && actor.ID != "" {
		return actor.ID
	}
	return declared
}
