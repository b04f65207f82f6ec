package repository

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/allisson/ledgerhook/internal/database"
	apperrors "github.com/allisson/ledgerhook/internal/errors"
	webhookDomain "github.com/allisson/ledgerhook/internal/webhook/domain"
)

// MySQLAuditLogRepository implements webhook AuditLog persistence for MySQL.
// Uses BINARY(16) for UUID storage.
type MySQLAuditLogRepository struct {
	db *sql.DB
}

// NewMySQLAuditLogRepository creates a new MySQL webhook AuditLog repository.
func NewMySQLAuditLogRepository(db *sql.DB) *MySQLAuditLogRepository {
	return &MySQLAuditLogRepository{db: db}
}

// Create inserts a new audit log entry. Handles nil payload as database NULL.
func (m *MySQLAuditLogRepository) Create(
	ctx context.Context,
	auditLog *webhookDomain.AuditLog,
) error {
	querier := database.GetTx(ctx, m.db)

	var payloadJSON []byte
	var err error
	if auditLog.Payload != nil {
		payloadJSON, err = json.Marshal(auditLog.Payload)
		if err != nil {
			return apperrors.Wrap(err, "failed to marshal webhook audit payload")
		}
	}

	id, err := auditLog.ID.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal webhook audit log id")
	}

	query := `INSERT INTO webhook_events (id, event_type, tx_signature, payload, processed, error, created_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?)`

	_, err = querier.ExecContext(
		ctx,
		query,
		id,
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
func (m *MySQLAuditLogRepository) List(
	ctx context.Context,
	offset, limit int,
) ([]*webhookDomain.AuditLog, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT id, event_type, tx_signature, payload, processed, error, created_at
			  FROM webhook_events
			  ORDER BY created_at DESC
			  LIMIT ? OFFSET ?`

	rows, err := querier.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list webhook audit logs")
	}
	defer rows.Close() //nolint:errcheck

	auditLogs := make([]*webhookDomain.AuditLog, 0)
	for rows.Next() {
		var auditLog webhookDomain.AuditLog
		var id []byte
		var payloadJSON []byte

		err := rows.Scan(
			&id,
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

		auditLog.ID, err = uuid.FromBytes(id)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to parse webhook audit log id")
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
