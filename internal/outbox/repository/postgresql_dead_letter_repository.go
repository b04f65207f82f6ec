package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/allisson/ledgerhook/internal/database"
	apperrors "github.com/allisson/ledgerhook/internal/errors"
	outboxDomain "github.com/allisson/ledgerhook/internal/outbox/domain"
)

// PostgreSQLDeadLetterRepository implements DeadLetterEntry persistence for PostgreSQL.
type PostgreSQLDeadLetterRepository struct {
	db *sql.DB
}

// NewPostgreSQLDeadLetterRepository creates a new PostgreSQL DeadLetterEntry repository.
func NewPostgreSQLDeadLetterRepository(db *sql.DB) *PostgreSQLDeadLetterRepository {
	return &PostgreSQLDeadLetterRepository{db: db}
}

// Create inserts a new dead-letter entry.
func (p *PostgreSQLDeadLetterRepository) Create(
	ctx context.Context,
	entry *outboxDomain.DeadLetterEntry,
) error {
	querier := database.GetTx(ctx, p.db)

	var eventData []byte
	var err error
	if entry.EventData != nil {
		eventData, err = json.Marshal(entry.EventData)
		if err != nil {
			return apperrors.Wrap(err, "failed to marshal dead letter event data")
		}
	}

	query := `INSERT INTO transactional_dead_letter
			  (id, outbox_id, event_type, event_data, failure_reason, error_details, retry_count, tenant_id, failed_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err = querier.ExecContext(
		ctx,
		query,
		entry.ID,
		entry.OutboxID,
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
func (p *PostgreSQLDeadLetterRepository) List(
	ctx context.Context,
	offset, limit int,
) ([]*outboxDomain.DeadLetterEntry, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT id, outbox_id, event_type, event_data, failure_reason, error_details, retry_count, tenant_id, failed_at
			  FROM transactional_dead_letter
			  ORDER BY failed_at DESC
			  LIMIT $1 OFFSET $2`

	rows, err := querier.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list dead letter entries")
	}
	defer rows.Close() //nolint:errcheck

	entries := make([]*outboxDomain.DeadLetterEntry, 0)
	for rows.Next() {
		var entry outboxDomain.DeadLetterEntry
		var eventType string
		var eventData []byte

		err := rows.Scan(
			&entry.ID,
			&entry.OutboxID,
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
func (p *PostgreSQLDeadLetterRepository) DeleteBefore(
	ctx context.Context,
	cutoff time.Time,
) (int64, error) {
	querier := database.GetTx(ctx, p.db)

	result, err := querier.ExecContext(
		ctx,
		`DELETE FROM transactional_dead_letter WHERE failed_at < $1`,
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
