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

// PostgreSQLMetricsRepository aggregates processing counters per event type,
// tenant, and day in the outbox_processing_metrics table.
type PostgreSQLMetricsRepository struct {
	db *sql.DB
}

// NewPostgreSQLMetricsRepository creates a new PostgreSQL metrics repository.
func NewPostgreSQLMetricsRepository(db *sql.DB) *PostgreSQLMetricsRepository {
	return &PostgreSQLMetricsRepository{db: db}
}

// IncrementCounters upserts one row per (event_type, tenant_id, metric_date),
// adding the pass's counters to any existing row. Called once per processing
// pass, not per event.
func (p *PostgreSQLMetricsRepository) IncrementCounters(
	ctx context.Context,
	counters []outboxDomain.MetricsCounters,
	metricDate time.Time,
) error {
	querier := database.GetTx(ctx, p.db)

	query := `INSERT INTO outbox_processing_metrics
			  (id, event_type, tenant_id, metric_date, processed_count, failed_count, dead_lettered_count)
			  VALUES ($1, $2, $3, $4, $5, $6, $7)
			  ON CONFLICT (event_type, tenant_id, metric_date) DO UPDATE SET
			    processed_count = outbox_processing_metrics.processed_count + EXCLUDED.processed_count,
			    failed_count = outbox_processing_metrics.failed_count + EXCLUDED.failed_count,
			    dead_lettered_count = outbox_processing_metrics.dead_lettered_count + EXCLUDED.dead_lettered_count`

	for _, counter := range counters {
		_, err := querier.ExecContext(
			ctx,
			query,
			uuid.Must(uuid.NewV7()),
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
