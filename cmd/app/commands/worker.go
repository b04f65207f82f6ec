package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/allisson/ledgerhook/internal/app"
	"github.com/allisson/ledgerhook/internal/config"
)

// RunWorker starts the configured number of outbox polling workers plus the
// metrics server when metrics are enabled. Each worker claims due events with
// row locks, so concurrent loops never process the same event twice. Blocks
// until receiving SIGINT/SIGTERM, then drains in-flight batches.
func RunWorker(ctx context.Context, version string) error {
	cfg := config.Load()

	container := app.NewContainer(cfg)

	logger := container.Logger()
	logger.Info("starting outbox workers",
		slog.String("version", version),
		slog.Int("workers", cfg.OutboxWorkers),
	)

	defer closeContainer(container, logger)

	processor, err := container.Processor()
	if err != nil {
		return fmt.Errorf("failed to initialize outbox processor: %w", err)
	}

	metricsServer, err := container.MetricsServer()
	if err != nil {
		return fmt.Errorf("failed to initialize metrics server: %w", err)
	}

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	group, groupCtx := errgroup.WithContext(ctx)

	workers := cfg.OutboxWorkers
	if workers < 1 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		worker := i
		group.Go(func() error {
			logger.Info("outbox worker started", slog.Int("worker", worker))
			if err := processor.Start(groupCtx); err != nil {
				return fmt.Errorf("outbox worker %d: %w", worker, err)
			}
			return nil
		})
	}

	if metricsServer != nil {
		group.Go(func() error {
			if err := metricsServer.Start(groupCtx); err != nil {
				return fmt.Errorf("metrics server error: %w", err)
			}
			return nil
		})
		group.Go(func() error {
			<-groupCtx.Done()
			shutdownCtx, shutdownCancel := context.WithTimeout(
				context.Background(),
				cfg.DBConnMaxLifetime,
			)
			defer shutdownCancel()
			return metricsServer.Shutdown(shutdownCtx)
		})
	}

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	logger.Info("outbox workers stopped")
	return nil
}
