// Package repository implements webhook audit log persistence for PostgreSQL
// and MySQL with transaction support via database.GetTx().
package repository

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/allisson/ledgerhook/internal/database"
	apperrors "github.com/allisson/ledgerhook/internal/errors"
	webhookDomain "github.com/allisson/ledgerhook/internal/webhook/domain"
)

// PostgreSQLAuditLogRepository implements webhook AuditLog persistence for PostgreSQL.
type PostgreSQLAuditLogRepository struct {
	db *sql.DB
}

// NewPostgreSQLAuditLogRepository creates a new PostgreSQL webhook AuditLog repository.
func NewPostgreSQLAuditLogRepository(db *sql.DB) *PostgreSQLAuditLogRepository {
	return &PostgreSQLAuditLogRepository{db: db}
}

// Create inserts a new audit log entry. Handles nil payload as database NULL.
func (p *PostgreSQLAuditLogRepository) Create(
	ctx context.Context,
	auditLog *webhookDomain.AuditLog,
) error {
	querier := database.GetTx(ctx, p.db)

	var payloadJSON []byte
	var err error
	if auditLog.Payload != nil {
		payloadJSON, err = json.Marshal(auditLog.Payload)
		if err != nil {
			return apperrors.Wrap(err, "failed to marshal webhook audit payload")
		}
	}

	query := `INSERT INTO webhook_events (id, event_type, tx_signature, payload, processed, error, created_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err = querier.ExecContext(
		ctx,
		query,
		auditLog.ID,
		auditLog.EventType,
		auditLog.TxSignature,
		payloadJSON,
		auditLog.Processed,
		auditLog.Error,
		auditLog.CreatedAt,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to create webhook audit log")
	}
	return nil
}

// List retrieves audit log entries ordered by creation time descending
// (newest first) with pagination.
func (p *PostgreSQLAuditLogRepository) List(
	ctx context.Context,
	offset, limit int,
) ([]*webhookDomain.AuditLog, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT id, event_type, tx_signature, payload, processed, error, created_at
			  FROM webhook_events
			  ORDER BY created_at DESC
			  LIMIT $1 OFFSET $2`

	rows, err := querier.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list webhook audit logs")
	}
	defer rows.Close() //nolint:errcheck

	auditLogs := make([]*webhookDomain.AuditLog, 0)
	for rows.Next() {
		var auditLog webhookDomain.AuditLog
		var payloadJSON []byte

		err := rows.Scan(
			&auditLog.ID,
			&auditLog.EventType,
			&auditLog.TxSignature,
			&payloadJSON,
			&auditLog.Processed,
			&auditLog.Error,
			&auditLog.CreatedAt,
		)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to scan webhook audit log")
		}

		if payloadJSON != nil {
			if err := json.Unmarshal(payloadJSON, &auditLog.Payload); err != nil {
				return nil, apperrors.Wrap(err, "failed to unmarshal webhook audit payload")
			}
		}

		auditLogs = append(auditLogs, &auditLog)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate webhook audit logs")
	}

	return auditLogs, nil
}
