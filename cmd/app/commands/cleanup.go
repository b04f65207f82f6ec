package commands

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/allisson/ledgerhook/internal/app"
	"github.com/allisson/ledgerhook/internal/config"
)

// RunCleanup deletes completed outbox events and resolved dead letters older
// than the retention window. A zero retentionDays falls back to the configured
// OUTBOX_CLEANUP_RETENTION_DAYS value.
//
// Requirements: Database must be migrated and accessible.
func RunCleanup(ctx context.Context, retentionDays int) error {
	if retentionDays < 0 {
		return fmt.Errorf("retention-days must be a positive number, got: %d", retentionDays)
	}

	cfg := config.Load()

	retention := cfg.OutboxCleanupRetention
	if retentionDays > 0 {
		retention = time.Duration(retentionDays) * 24 * time.Hour
	}

	container := app.NewContainer(cfg)

	logger := container.Logger()
	logger.Info("cleaning outbox history",
		slog.Duration("retention", retention),
	)

	defer closeContainer(container, logger)

	cleanup, err := container.Cleanup()
	if err != nil {
		return fmt.Errorf("failed to initialize cleanup: %w", err)
	}

	count, err := cleanup.Run(ctx, retention)
	if err != nil {
		return fmt.Errorf("failed to clean outbox history: %w", err)
	}

	fmt.Printf("Successfully deleted %d outbox record(s) older than %s\n", count, retention)

	logger.Info("cleanup completed",
		slog.Int64("count", count),
		slog.Duration("retention", retention),
	)

	return nil
}
