package postgres

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/osparrot/swiftpayme-platform-sub005/internal/domain"
	"github.com/osparrot/swiftpayme-platform-sub005/internal/usecase"
)

// AuditRepository implements audit log persistence
type AuditRepository struct {
	db DBTX
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db DBTX) *AuditRepository {
	return &AuditRepository{db: db}
}

// CreateTx inserts a new audit log entry inside tx
func (r *AuditRepository) CreateTx(ctx context.Context, t usecase.Transaction, log *domain.AuditLog) error {
	tx, err := txFrom(t)
	if err != nil {
		return err
	}

	if log.ID == "" {
		log.ID = uuid.New().String()
	}

	var beforeStateJSON, afterStateJSON []byte

	if log.BeforeState != nil {
		beforeStateJSON, err = json.Marshal(log.BeforeState)
		if err != nil {
			return err
		}
	}

	if log.AfterState != nil {
		afterStateJSON, err = json.Marshal(log.AfterState)
		if err != nil {
			return err
		}
	}

	query := `
		INSERT INTO audit_logs (
			id, actor, action, resource_type, resource_id, reference, reason, request_id,
			before_state, after_state, status, error_message, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err = tx.Exec(ctx, query,
		log.ID,
		log.Actor,
		string(log.Action),
		log.ResourceType,
		log.ResourceID,
		log.Reference,
		log.Reason,
		log.RequestID,
		beforeStateJSON,
		afterStateJSON,
		string(log.Status),
		log.ErrorMessage,
		log.CreatedAt,
	)

	return err
}

// List retrieves audit logs with filtering, newest first
func (r *AuditRepository) List(ctx context.Context, f domain.AuditFilter) ([]*domain.AuditLog, error) {
	var q filter
	if f.Actor != "" {
		q.add("actor = ?", f.Actor)
	}
	if f.Action != "" {
		q.add("action = ?", string(f.Action))
	}
	if f.ResourceType != "" {
		q.add("resource_type = ?", f.ResourceType)
	}
	if f.ResourceID != "" {
		q.add("resource_id = ?", f.ResourceID)
	}
	if f.StartDate != nil {
		q.add("created_at >= ?", *f.StartDate)
	}
	if f.EndDate != nil {
		q.add("created_at <= ?", *f.EndDate)
	}

	query := `
		SELECT id, actor, action, resource_type, resource_id, reference, reason, request_id,
		       before_state, after_state, status, error_message, created_at
		FROM audit_logs` + q.where() + `
		ORDER BY created_at DESC, id DESC`
	query += q.page(f.Limit, f.Offset)

	rows, err := r.db.Query(ctx, query, q.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]*domain.AuditLog, 0)
	for rows.Next() {
		var (
			log                             domain.AuditLog
			action, status                  string
			beforeStateJSON, afterStateJSON []byte
		)

		err := rows.Scan(
			&log.ID,
			&log.Actor,
			&action,
			&log.ResourceType,
			&log.ResourceID,
			&log.Reference,
			&log.Reason,
			&log.RequestID,
			&beforeStateJSON,
			&afterStateJSON,
			&status,
			&log.ErrorMessage,
			&log.CreatedAt,
		)
		if err != nil {
			return nil, err
		}

		log.Action = domain.AuditAction(action)
		log.Status = domain.AuditStatus(status)
		if beforeStateJSON != nil {
			_ = json.Unmarshal(beforeStateJSON, &log.BeforeState)
		}

		if afterStateJSON != nil {
			_ = json.Unmarshal(afterStateJSON, &log.AfterState)
		}

		logs = append(logs, &log)
	}

	return logs, rows.Err()
}
