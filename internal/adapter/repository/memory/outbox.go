package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/osparrot/swiftpayme-platform-sub005/internal/domain"
	"github.com/osparrot/swiftpayme-platform-sub005/internal/usecase"
)

// OutboxRepository implements usecase.OutboxRepository.
type OutboxRepository struct{ s *Store }

// Create stages an event.
func (r OutboxRepository) Create(_ context.Context, t usecase.Transaction, event *domain.OutboxEvent) error {
	mt, err := asTx(t)
	if err != nil {
		return err
	}
	if err := r.s.fault(FailOutboxCreate); err != nil {
		return err
	}
	c := *event
	mt.outbox = append(mt.outbox, &c)
	return nil
}

// GetUnpublished returns up to limit unpublished events, oldest first.
func (r OutboxRepository) GetUnpublished(_ context.Context, limit int) ([]*domain.OutboxEvent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []*domain.OutboxEvent
	for _, e := range r.s.outbox {
		if e.Published {
			continue
		}
		c := *e
		out = append(out, &c)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// MarkPublished marks an event as delivered.
func (r OutboxRepository) MarkPublished(_ context.Context, id string, publishedAt time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, e := range r.s.outbox {
		if e.ID == id {
			at := publishedAt
			e.Published = true
			e.PublishedAt = &at
			return nil
		}
	}
	return fmt.Errorf("memory: outbox event %s not found", id)
}

// MarkFailed counts a failed delivery attempt.
func (r OutboxRepository) MarkFailed(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, e := range r.s.outbox {
		if e.ID == id {
			e.Attempts++
			return nil
		}
	}
	return fmt.Errorf("memory: outbox event %s not found", id)
}

// DeletePublished drops events published before the cutoff.
func (r OutboxRepository) DeletePublished(_ context.Context, before time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	kept := r.s.outbox[:0]
	for _, e := range r.s.outbox {
		if e.Published && e.PublishedAt != nil && e.PublishedAt.Before(before) {
			continue
		}
		kept = append(kept, e)
	}
	r.s.outbox = kept
	return nil
}

// AuditRepository implements usecase.AuditRepository.
type AuditRepository struct{ s *Store }

// CreateTx stages an audit log.
func (r AuditRepository) CreateTx(_ context.Context, t usecase.Transaction, log *domain.AuditLog) error {
	mt, err := asTx(t)
	if err != nil {
		return err
	}
	if err := r.s.fault(FailAuditCreate); err != nil {
		return err
	}
	c := *log
	mt.audit = append(mt.audit, &c)
	return nil
}

// List returns matching audit logs, newest first.
func (r AuditRepository) List(_ context.Context, filter domain.AuditFilter) ([]*domain.AuditLog, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []*domain.AuditLog
	for i := len(r.s.audit) - 1; i >= 0; i-- {
		l := r.s.audit[i]
		if filter.Actor != "" && l.Actor != filter.Actor {
			continue
		}
		if filter.Action != "" && l.Action != filter.Action {
			continue
		}
		if filter.ResourceType != "" && l.ResourceType != filter.ResourceType {
			continue
		}
		if filter.ResourceID != "" && l.ResourceID != filter.ResourceID {
			continue
		}
		if !inRange(l.CreatedAt, filter.StartDate, filter.EndDate) {
			continue
		}
		c := *l
		out = append(out, &c)
	}
	return paginate(out, filter.Limit, filter.Offset), nil
}
