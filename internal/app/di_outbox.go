package app

import (
	"github.com/allisson/ledgerhook/internal/database"
	outboxDomain "github.com/allisson/ledgerhook/internal/outbox/domain"
	outboxRepository "github.com/allisson/ledgerhook/internal/outbox/repository"
	outboxUseCase "github.com/allisson/ledgerhook/internal/outbox/usecase"
)

// OutboxEventRepository returns the outbox event repository for the configured driver.
func (c *Container) OutboxEventRepository() (outboxUseCase.OutboxEventRepository, error) {
	c.outboxRepoInit.Do(func() {
		db, err := c.DB()
		if err != nil {
			c.storeError("outboxRepo", err)
			return
		}
		switch c.config.DBDriver {
		case database.DriverPostgres:
			c.outboxRepo = outboxRepository.NewPostgreSQLOutboxEventRepository(db)
		case database.DriverMySQL:
			c.outboxRepo = outboxRepository.NewMySQLOutboxEventRepository(db)
		default:
			c.storeError("outboxRepo", unsupportedDriverError(c.config.DBDriver))
		}
	})
	if err := c.loadError("outboxRepo"); err != nil {
		return nil, err
	}
	return c.outboxRepo, nil
}

// DeadLetterRepository returns the dead letter repository for the configured driver.
func (c *Container) DeadLetterRepository() (outboxUseCase.DeadLetterRepository, error) {
	c.deadLetterRepoInit.Do(func() {
		db, err := c.DB()
		if err != nil {
			c.storeError("deadLetterRepo", err)
			return
		}
		switch c.config.DBDriver {
		case database.DriverPostgres:
			c.deadLetterRepo = outboxRepository.NewPostgreSQLDeadLetterRepository(db)
		case database.DriverMySQL:
			c.deadLetterRepo = outboxRepository.NewMySQLDeadLetterRepository(db)
		default:
			c.storeError("deadLetterRepo", unsupportedDriverError(c.config.DBDriver))
		}
	})
	if err := c.loadError("deadLetterRepo"); err != nil {
		return nil, err
	}
	return c.deadLetterRepo, nil
}

// MetricsRepository returns the processing metrics repository for the configured driver.
func (c *Container) MetricsRepository() (outboxUseCase.MetricsRepository, error) {
	c.metricsRepoInit.Do(func() {
		db, err := c.DB()
		if err != nil {
			c.storeError("metricsRepo", err)
			return
		}
		switch c.config.DBDriver {
		case database.DriverPostgres:
			c.metricsRepo = outboxRepository.NewPostgreSQLMetricsRepository(db)
		case database.DriverMySQL:
			c.metricsRepo = outboxRepository.NewMySQLMetricsRepository(db)
		default:
			c.storeError("metricsRepo", unsupportedDriverError(c.config.DBDriver))
		}
	})
	if err := c.loadError("metricsRepo"); err != nil {
		return nil, err
	}
	return c.metricsRepo, nil
}

// Publisher returns the transactional outbox event publisher.
func (c *Container) Publisher() (outboxUseCase.Publisher, error) {
	c.publisherInit.Do(func() {
		txManager, err := c.TxManager()
		if err != nil {
			c.storeError("publisher", err)
			return
		}
		eventRepo, err := c.OutboxEventRepository()
		if err != nil {
			c.storeError("publisher", err)
			return
		}
		c.publisher = outboxUseCase.NewEventPublisher(
			outboxUseCase.PublisherConfig{
				MaxRetries:    c.config.OutboxMaxRetries,
				SourceService: c.config.SourceService,
				TenantID:      c.config.TenantID,
			},
			txManager,
			eventRepo,
			c.Logger(),
		)
	})
	if err := c.loadError("publisher"); err != nil {
		return nil, err
	}
	return c.publisher, nil
}

// HandlerRegistry returns the registry binding every event type to its handler.
func (c *Container) HandlerRegistry() (*outboxUseCase.HandlerRegistry, error) {
	c.registryInit.Do(func() {
		paymentUC, err := c.PaymentUseCase()
		if err != nil {
			c.storeError("registry", err)
			return
		}
		notificationUC, err := c.NotificationUseCase()
		if err != nil {
			c.storeError("registry", err)
			return
		}

		registry := outboxUseCase.NewHandlerRegistry()
		registrations := []struct {
			eventType outboxDomain.EventType
			handler   outboxUseCase.Handler
		}{
			{outboxDomain.EventTypePaymentVerified, paymentUC.HandlePaymentVerified},
			{outboxDomain.EventTypePaymentFailed, paymentUC.HandlePaymentFailed},
			{outboxDomain.EventTypeWebhookReceived, notificationUC.HandleWebhookReceived},
			{outboxDomain.EventTypeTransactionProcessed, notificationUC.HandleTransactionProcessed},
		}
		for _, r := range registrations {
			if err := registry.Register(r.eventType, r.handler); err != nil {
				c.storeError("registry", err)
				return
			}
		}
		c.registry = registry
	})
	if err := c.loadError("registry"); err != nil {
		return nil, err
	}
	return c.registry, nil
}

// Processor returns the outbox polling processor.
func (c *Container) Processor() (outboxUseCase.ProcessorUseCase, error) {
	c.processorInit.Do(func() {
		txManager, err := c.TxManager()
		if err != nil {
			c.storeError("processor", err)
			return
		}
		eventRepo, err := c.OutboxEventRepository()
		if err != nil {
			c.storeError("processor", err)
			return
		}
		deadLetterRepo, err := c.DeadLetterRepository()
		if err != nil {
			c.storeError("processor", err)
			return
		}
		metricsRepo, err := c.MetricsRepository()
		if err != nil {
			c.storeError("processor", err)
			return
		}
		registry, err := c.HandlerRegistry()
		if err != nil {
			c.storeError("processor", err)
			return
		}
		outboxMetrics, err := c.OutboxMetrics()
		if err != nil {
			c.storeError("processor", err)
			return
		}

		c.processor = outboxUseCase.NewProcessor(
			outboxUseCase.ProcessorConfig{
				PollInterval:      c.config.OutboxPollInterval,
				BatchSize:         c.config.OutboxBatchSize,
				VisibilityTimeout: c.config.OutboxVisibilityTimeout,
			},
			txManager,
			eventRepo,
			deadLetterRepo,
			metricsRepo,
			registry,
			outboxMetrics,
			c.Logger(),
		)
	})
	if err := c.loadError("processor"); err != nil {
		return nil, err
	}
	return c.processor, nil
}

// Cleanup returns the outbox retention sweeper.
func (c *Container) Cleanup() (outboxUseCase.CleanupUseCase, error) {
	c.cleanupInit.Do(func() {
		eventRepo, err := c.OutboxEventRepository()
		if err != nil {
			c.storeError("cleanup", err)
			return
		}
		deadLetterRepo, err := c.DeadLetterRepository()
		if err != nil {
			c.storeError("cleanup", err)
			return
		}
		c.cleanup = outboxUseCase.NewCleanup(eventRepo, deadLetterRepo, c.Logger())
	})
	if err := c.loadError("cleanup"); err != nil {
		return nil, err
	}
	return c.cleanup, nil
}
