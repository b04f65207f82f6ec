package app

import (
	"github.com/allisson/ledgerhook/internal/database"
	webhookHTTP "github.com/allisson/ledgerhook/internal/webhook/http"
	webhookRepository "github.com/allisson/ledgerhook/internal/webhook/repository"
	webhookService "github.com/allisson/ledgerhook/internal/webhook/service"
	webhookUseCase "github.com/allisson/ledgerhook/internal/webhook/usecase"
)

// AuditLogRepository returns the audit log repository for the configured driver.
func (c *Container) AuditLogRepository() (webhookUseCase.AuditLogRepository, error) {
	c.auditLogRepoInit.Do(func() {
		db, err := c.DB()
		if err != nil {
			c.storeError("auditLogRepo", err)
			return
		}
		switch c.config.DBDriver {
		case database.DriverPostgres:
			c.auditLogRepo = webhookRepository.NewPostgreSQLAuditLogRepository(db)
		case database.DriverMySQL:
			c.auditLogRepo = webhookRepository.NewMySQLAuditLogRepository(db)
		default:
			c.storeError("auditLogRepo", unsupportedDriverError(c.config.DBDriver))
		}
	})
	if err := c.loadError("auditLogRepo"); err != nil {
		return nil, err
	}
	return c.auditLogRepo, nil
}

// WebhookUseCase returns the webhook ingress use case.
func (c *Container) WebhookUseCase() (webhookUseCase.WebhookUseCase, error) {
	c.webhookUCInit.Do(func() {
		txManager, err := c.TxManager()
		if err != nil {
			c.storeError("webhookUseCase", err)
			return
		}
		auditRepo, err := c.AuditLogRepository()
		if err != nil {
			c.storeError("webhookUseCase", err)
			return
		}
		verifier, err := c.LedgerVerifier()
		if err != nil {
			c.storeError("webhookUseCase", err)
			return
		}
		publisher, err := c.Publisher()
		if err != nil {
			c.storeError("webhookUseCase", err)
			return
		}

		c.webhookUC = webhookUseCase.NewWebhookUseCase(
			txManager,
			auditRepo,
			webhookService.NewHMACVerifier(c.config.WebhookSecret),
			webhookService.NewTransferExtractor(c.Logger()),
			verifier,
			publisher,
			c.Logger(),
		)
	})
	if err := c.loadError("webhookUseCase"); err != nil {
		return nil, err
	}
	return c.webhookUC, nil
}

// WebhookHandler returns the webhook ingress HTTP handler.
func (c *Container) WebhookHandler() (*webhookHTTP.WebhookHandler, error) {
	c.webhookHandlerInit.Do(func() {
		useCase, err := c.WebhookUseCase()
		if err != nil {
			c.storeError("webhookHandler", err)
			return
		}
		c.webhookHandler = webhookHTTP.NewWebhookHandler(
			useCase,
			c.config.WebhookSignatureHeader,
			c.config.WebhookMaxBodyBytes,
			c.Logger(),
		)
	})
	if err := c.loadError("webhookHandler"); err != nil {
		return nil, err
	}
	return c.webhookHandler, nil
}
