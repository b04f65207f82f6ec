// Package app provides the dependency injection container for assembling
// application components.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/allisson/ledgerhook/internal/config"
	"github.com/allisson/ledgerhook/internal/database"
	httpServer "github.com/allisson/ledgerhook/internal/http"
	ledgerService "github.com/allisson/ledgerhook/internal/ledger/service"
	"github.com/allisson/ledgerhook/internal/metrics"
	notificationService "github.com/allisson/ledgerhook/internal/notification/service"
	notificationUseCase "github.com/allisson/ledgerhook/internal/notification/usecase"
	outboxUseCase "github.com/allisson/ledgerhook/internal/outbox/usecase"
	paymentUseCase "github.com/allisson/ledgerhook/internal/payment/usecase"
	webhookHTTP "github.com/allisson/ledgerhook/internal/webhook/http"
	webhookUseCase "github.com/allisson/ledgerhook/internal/webhook/usecase"
)

// Container holds all application dependencies and provides methods to access
// them. Components are created lazily on first access.
type Container struct {
	config *config.Config

	// Infrastructure
	logger          *slog.Logger
	db              *sql.DB
	txManager       database.TxManager
	metricsProvider *metrics.Provider
	outboxMetrics   metrics.OutboxMetrics
	ledgerMetrics   metrics.LedgerMetrics

	// Ledger
	rpcClient      *ledgerService.JSONRPCClient
	ledgerVerifier *ledgerService.TransactionVerifier

	// Webhook ingress
	auditLogRepo   webhookUseCase.AuditLogRepository
	webhookUC      webhookUseCase.WebhookUseCase
	webhookHandler *webhookHTTP.WebhookHandler

	// Outbox
	outboxRepo     outboxUseCase.OutboxEventRepository
	deadLetterRepo outboxUseCase.DeadLetterRepository
	metricsRepo    outboxUseCase.MetricsRepository
	publisher      outboxUseCase.Publisher
	registry       *outboxUseCase.HandlerRegistry
	processor      outboxUseCase.ProcessorUseCase
	cleanup        outboxUseCase.CleanupUseCase

	// Payment
	paymentRepo    paymentUseCase.PaymentRepository
	statusNotifier paymentUseCase.StatusNotifier
	paymentUC      paymentUseCase.PaymentUseCase

	// Notification
	channelSink    *notificationService.PubSubChannelSink
	notificationUC notificationUseCase.NotificationUseCase

	// Servers
	httpServer    *httpServer.Server
	metricsServer *httpServer.MetricsServer

	loggerInit          sync.Once
	dbInit              sync.Once
	txManagerInit       sync.Once
	metricsProviderInit sync.Once
	outboxMetricsInit   sync.Once
	ledgerMetricsInit   sync.Once
	rpcClientInit       sync.Once
	ledgerVerifierInit  sync.Once
	auditLogRepoInit    sync.Once
	webhookUCInit       sync.Once
	webhookHandlerInit  sync.Once
	outboxRepoInit      sync.Once
	deadLetterRepoInit  sync.Once
	metricsRepoInit     sync.Once
	publisherInit       sync.Once
	registryInit        sync.Once
	processorInit       sync.Once
	cleanupInit         sync.Once
	paymentRepoInit     sync.Once
	statusNotifierInit  sync.Once
	paymentUCInit       sync.Once
	channelSinkInit     sync.Once
	notificationUCInit  sync.Once
	httpServerInit      sync.Once
	metricsServerInit   sync.Once

	mu         sync.Mutex
	initErrors map[string]error
}

// NewContainer creates a new dependency injection container with the provided
// configuration.
func NewContainer(cfg *config.Config) *Container {
	return &Container{
		config:     cfg,
		initErrors: make(map[string]error),
	}
}

// Config returns the application configuration.
func (c *Container) Config() *config.Config {
	return c.config
}

// Logger returns the configured logger instance.
func (c *Container) Logger() *slog.Logger {
	c.loggerInit.Do(func() {
		c.logger = c.initLogger()
	})
	return c.logger
}

// DB returns the database connection.
func (c *Container) DB() (*sql.DB, error) {
	c.dbInit.Do(func() {
		db, err := database.Connect(database.Config{
			Driver:             c.config.DBDriver,
			ConnectionString:   c.config.DBConnectionString,
			MaxOpenConnections: c.config.DBMaxOpenConnections,
			MaxIdleConnections: c.config.DBMaxIdleConnections,
			ConnMaxLifetime:    c.config.DBConnMaxLifetime,
		})
		if err != nil {
			c.storeError("db", err)
			return
		}
		c.db = db
	})
	if err := c.loadError("db"); err != nil {
		return nil, err
	}
	return c.db, nil
}

// TxManager returns the transaction manager.
func (c *Container) TxManager() (database.TxManager, error) {
	c.txManagerInit.Do(func() {
		db, err := c.DB()
		if err != nil {
			c.storeError("txManager", err)
			return
		}
		c.txManager = database.NewTxManager(db)
	})
	if err := c.loadError("txManager"); err != nil {
		return nil, err
	}
	return c.txManager, nil
}

// MetricsProvider returns the OTel/Prometheus metrics provider, or nil when
// metrics are disabled.
func (c *Container) MetricsProvider() (*metrics.Provider, error) {
	c.metricsProviderInit.Do(func() {
		if !c.config.MetricsEnabled {
			return
		}
		provider, err := metrics.NewProvider(c.config.MetricsNamespace)
		if err != nil {
			c.storeError("metricsProvider", err)
			return
		}
		c.metricsProvider = provider
	})
	if err := c.loadError("metricsProvider"); err != nil {
		return nil, err
	}
	return c.metricsProvider, nil
}

// OutboxMetrics returns the outbox instrumentation, a no-op when metrics are
// disabled.
func (c *Container) OutboxMetrics() (metrics.OutboxMetrics, error) {
	c.outboxMetricsInit.Do(func() {
		provider, err := c.MetricsProvider()
		if err != nil {
			c.storeError("outboxMetrics", err)
			return
		}
		if provider == nil {
			c.outboxMetrics = metrics.NewNoOpOutboxMetrics()
			return
		}
		c.outboxMetrics, err = metrics.NewOutboxMetrics(provider.MeterProvider(), c.config.MetricsNamespace)
		if err != nil {
			c.storeError("outboxMetrics", err)
		}
	})
	if err := c.loadError("outboxMetrics"); err != nil {
		return nil, err
	}
	return c.outboxMetrics, nil
}

// LedgerMetrics returns the ledger RPC instrumentation, a no-op when metrics
// are disabled.
func (c *Container) LedgerMetrics() (metrics.LedgerMetrics, error) {
	c.ledgerMetricsInit.Do(func() {
		provider, err := c.MetricsProvider()
		if err != nil {
			c.storeError("ledgerMetrics", err)
			return
		}
		if provider == nil {
			c.ledgerMetrics = metrics.NewNoOpLedgerMetrics()
			return
		}
		c.ledgerMetrics, err = metrics.NewLedgerMetrics(provider.MeterProvider(), c.config.MetricsNamespace)
		if err != nil {
			c.storeError("ledgerMetrics", err)
		}
	})
	if err := c.loadError("ledgerMetrics"); err != nil {
		return nil, err
	}
	return c.ledgerMetrics, nil
}

// HTTPServer returns the API server with all routes wired.
func (c *Container) HTTPServer() (*httpServer.Server, error) {
	c.httpServerInit.Do(func() {
		db, err := c.DB()
		if err != nil {
			c.storeError("httpServer", err)
			return
		}
		handler, err := c.WebhookHandler()
		if err != nil {
			c.storeError("httpServer", err)
			return
		}
		verifier, err := c.LedgerVerifier()
		if err != nil {
			c.storeError("httpServer", err)
			return
		}

		c.httpServer = httpServer.NewServer(
			httpServer.Config{
				Host:                    c.config.ServerHost,
				Port:                    c.config.ServerPort,
				RateLimitEnabled:        c.config.RateLimitEnabled,
				RateLimitRequestsPerSec: c.config.RateLimitRequestsPerSec,
				RateLimitBurst:          c.config.RateLimitBurst,
				CORSEnabled:             c.config.CORSEnabled,
				CORSAllowOrigins:        c.config.CORSAllowOrigins,
			},
			db,
			handler,
			verifier,
			c.Logger(),
		)
	})
	if err := c.loadError("httpServer"); err != nil {
		return nil, err
	}
	return c.httpServer, nil
}

// MetricsServer returns the Prometheus scrape server, or nil when metrics are
// disabled.
func (c *Container) MetricsServer() (*httpServer.MetricsServer, error) {
	c.metricsServerInit.Do(func() {
		provider, err := c.MetricsProvider()
		if err != nil {
			c.storeError("metricsServer", err)
			return
		}
		if provider == nil {
			return
		}
		c.metricsServer = httpServer.NewMetricsServer(
			c.config.ServerHost,
			c.config.MetricsPort,
			c.Logger(),
			provider,
		)
	})
	if err := c.loadError("metricsServer"); err != nil {
		return nil, err
	}
	return c.metricsServer, nil
}

// Shutdown releases held resources: database connection, pubsub topics, and
// the metrics provider.
func (c *Container) Shutdown(ctx context.Context) error {
	var errs []error

	if c.channelSink != nil {
		if err := c.channelSink.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("channel sink shutdown: %w", err))
		}
	}

	if c.metricsProvider != nil {
		if err := c.metricsProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("metrics provider shutdown: %w", err))
		}
	}

	if c.db != nil {
		if err := c.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("database close: %w", err))
		}
	}

	return errors.Join(errs...)
}

func (c *Container) initLogger() *slog.Logger {
	var level slog.Level
	switch c.config.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}

func (c *Container) storeError(key string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.initErrors[key] = err
}

func (c *Container) loadError(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.initErrors[key]
}

// unsupportedDriverError builds the error for a DBDriver outside the
// postgres/mysql pair every repository ships in.
func unsupportedDriverError(driver string) error {
	return fmt.Errorf("unsupported database driver %q (supported: postgres, mysql)", driver)
}
