package app

import (
	"time"

	"github.com/allisson/ledgerhook/internal/database"
	notificationService "github.com/allisson/ledgerhook/internal/notification/service"
	paymentRepository "github.com/allisson/ledgerhook/internal/payment/repository"
	paymentUseCase "github.com/allisson/ledgerhook/internal/payment/usecase"
)

const statusStreamTimeout = 10 * time.Second

// PaymentRepository returns the payment repository for the configured driver.
func (c *Container) PaymentRepository() (paymentUseCase.PaymentRepository, error) {
	c.paymentRepoInit.Do(func() {
		db, err := c.DB()
		if err != nil {
			c.storeError("paymentRepo", err)
			return
		}
		switch c.config.DBDriver {
		case database.DriverPostgres:
			c.paymentRepo = paymentRepository.NewPostgreSQLPaymentRepository(db)
		case database.DriverMySQL:
			c.paymentRepo = paymentRepository.NewMySQLPaymentRepository(db)
		default:
			c.storeError("paymentRepo", unsupportedDriverError(c.config.DBDriver))
		}
	})
	if err := c.loadError("paymentRepo"); err != nil {
		return nil, err
	}
	return c.paymentRepo, nil
}

// StatusNotifier returns the status-stream callback client, a no-op when no
// endpoint is configured.
func (c *Container) StatusNotifier() paymentUseCase.StatusNotifier {
	c.statusNotifierInit.Do(func() {
		if c.config.StatusStreamURL == "" {
			c.statusNotifier = notificationService.NewNoOpStatusStream()
			return
		}
		c.statusNotifier = notificationService.NewHTTPStatusStream(
			c.config.StatusStreamURL,
			statusStreamTimeout,
		)
	})
	return c.statusNotifier
}

// PaymentUseCase returns the payment settlement use case.
func (c *Container) PaymentUseCase() (paymentUseCase.PaymentUseCase, error) {
	c.paymentUCInit.Do(func() {
		txManager, err := c.TxManager()
		if err != nil {
			c.storeError("paymentUseCase", err)
			return
		}
		paymentRepo, err := c.PaymentRepository()
		if err != nil {
			c.storeError("paymentUseCase", err)
			return
		}
		c.paymentUC = paymentUseCase.NewPaymentUseCase(
			txManager,
			paymentRepo,
			c.StatusNotifier(),
			c.Logger(),
		)
	})
	if err := c.loadError("paymentUseCase"); err != nil {
		return nil, err
	}
	return c.paymentUC, nil
}
