package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/ledgerhook/internal/database"
	apperrors "github.com/allisson/ledgerhook/internal/errors"
	outboxDomain "github.com/allisson/ledgerhook/internal/outbox/domain"
)

// MySQLMetricsRepository aggregates processing counters per event type, tenant,
// and day in the outbox_processing_metrics table.
type MySQLMetricsRepository struct {
	db *sql.DB
}

// NewMySQLMetricsRepository creates a new MySQL metrics repository.
func NewMySQLMetricsRepository(db *sql.DB) *MySQLMetricsRepository {
	return &MySQLMetricsRepository{db: db}
}

// IncrementCounters upserts one row per (event_type, tenant_id, metric_date),
// adding the pass's counters to any existing row. Called once per processing
// pass, not per event.
func (m *MySQLMetricsRepository) IncrementCounters(
	ctx context.Context,
	counters []outboxDomain.MetricsCounters,
	metricDate time.Time,
) error {
	querier := database.GetTx(ctx, m.db)

	query := `INSERT INTO outbox_processing_metrics
			  (id, event_type, tenant_id, metric_date, processed_count, failed_count, dead_lettered_count)
			  VALUES (?, ?, ?, ?, ?, ?, ?)
			  ON DUPLICATE KEY UPDATE
			    processed_count = processed_count + VALUES(processed_count),
			    failed_count = failed_count + VALUES(failed_count),
			    dead_lettered_count = dead_lettered_count + VALUES(dead_lettered_count)`

	for _, counter := range counters {
		id, err := uuid.Must(uuid.NewV7()).MarshalBinary()
		if err != nil {
			return apperrors.Wrap(err, "failed to marshal metrics id")
		}

		_, err = querier.ExecContext(
			ctx,
			query,
			id,
			string(counter.EventType),
			counter.TenantID,
			metricDate,
			counter.Processed,
			counter.Failed,
			counter.DeadLettered,
		)
		if err != nil {
			return apperrors.Wrap(err, "failed to increment outbox processing metrics")
		}
	}

	return nil
}
