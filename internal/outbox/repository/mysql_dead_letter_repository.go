package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/ledgerhook/internal/database"
	apperrors "github.com/allisson/ledgerhook/internal/errors"
	outboxDomain "github.com/allisson/ledgerhook/internal/outbox/domain"
)

// MySQLDeadLetterRepository implements DeadLetterEntry persistence for MySQL.
// Uses BINARY(16) for UUID storage.
type MySQLDeadLetterRepository struct {
	db *sql.DB
}

// NewMySQLDeadLetterRepository creates a new MySQL DeadLetterEntry repository.
func NewMySQLDeadLetterRepository(db *sql.DB) *MySQLDeadLetterRepository {
	return &MySQLDeadLetterRepository{db: db}
}

// Create inserts a new dead-letter entry.
func (m *MySQLDeadLetterRepository) Create(
	ctx context.Context,
	entry *outboxDomain.DeadLetterEntry,
) error {
	querier := database.GetTx(ctx, m.db)

	var eventData []byte
	var err error
	if entry.EventData != nil {
		eventData, err = json.Marshal(entry.EventData)
		if err != nil {
			return apperrors.Wrap(err, "failed to marshal dead letter event data")
		}
	}

	id, err := entry.ID.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal dead letter id")
	}

	outboxID, err := entry.OutboxID.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal dead letter outbox_id")
	}

	query := `INSERT INTO transactional_dead_letter
			  (id, outbox_id, event_type, event_data, failure_reason, error_details, retry_count, tenant_id, failed_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = querier.ExecContext(
		ctx,
		query,
		id,
		outboxID,
		string(entry.EventType),
		eventData,
		entry.FailureReason,
		entry.ErrorDetails,
		entry.RetryCount,
		entry.TenantID,
		entry.FailedAt,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to create dead letter entry")
	}
	return nil
}

// List retrieves dead-letter entries ordered by failure time descending
// (newest first) with pagination.
func (m *MySQLDeadLetterRepository) List(
	ctx context.Context,
	offset, limit int,
) ([]*outboxDomain.DeadLetterEntry, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT id, outbox_id, event_type, event_data, failure_reason, error_details, retry_count, tenant_id, failed_at
			  FROM transactional_dead_letter
			  ORDER BY failed_at DESC
			  LIMIT ? OFFSET ?`

	rows, err := querier.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list dead letter entries")
	}
	defer rows.Close() //nolint:errcheck

	entries := make([]*outboxDomain.DeadLetterEntry, 0)
	for rows.Next() {
		var entry outboxDomain.DeadLetterEntry
		var id, outboxID []byte
		var eventType string
		var eventData []byte

		err := rows.Scan(
			&id,
			&outboxID,
			&eventType,
			&eventData,
			&entry.FailureReason,
			&entry.ErrorDetails,
			&entry.RetryCount,
			&entry.TenantID,
			&entry.FailedAt,
		)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to scan dead letter entry")
		}

		entry.ID, err = uuid.FromBytes(id)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to parse dead letter id")
		}
		entry.OutboxID, err = uuid.FromBytes(outboxID)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to parse dead letter outbox_id")
		}

		entry.EventType = outboxDomain.EventType(eventType)
		if eventData != nil {
			decoded, err := decodeEventData(eventData)
			if err != nil {
				return nil, apperrors.Wrap(err, "failed to unmarshal dead letter event data")
			}
			entry.EventData = decoded
		}

		entries = append(entries, &entry)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate dead letter entries")
	}

	return entries, nil
}

// DeleteBefore removes dead-letter entries that failed before the cutoff.
// Returns the number of rows removed.
func (m *MySQLDeadLetterRepository) DeleteBefore(
	ctx context.Context,
	cutoff time.Time,
) (int64, error) {
	querier := database.GetTx(ctx, m.db)

	result, err := querier.ExecContext(
		ctx,
		`DELETE FROM transactional_dead_letter WHERE failed_at < ?`,
		cutoff,
	)
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to delete dead letter entries")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to delete dead letter entries")
	}
	return affected, nil
}
