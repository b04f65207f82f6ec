// Package http provides the API server: webhook ingress routes, the audit
// trail, and the operational health surface.
package http

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	ledgerDomain "github.com/allisson/ledgerhook/internal/ledger/domain"
	webhookHTTP "github.com/allisson/ledgerhook/internal/webhook/http"
)

// LedgerHealthChecker reports ledger node connectivity for the health endpoint.
type LedgerHealthChecker interface {
	Health(ctx context.Context) *ledgerDomain.HealthStatus
}

// Config carries the server's listen address and middleware toggles.
type Config struct {
	Host                    string
	Port                    int
	RateLimitEnabled        bool
	RateLimitRequestsPerSec float64
	RateLimitBurst          int
	CORSEnabled             bool
	CORSAllowOrigins        string
}

// Server represents the API HTTP server.
type Server struct {
	server         *http.Server
	config         Config
	db             *sql.DB
	webhookHandler *webhookHTTP.WebhookHandler
	ledgerHealth   LedgerHealthChecker
	logger         *slog.Logger
}

// NewServer creates a new API server.
func NewServer(
	config Config,
	db *sql.DB,
	webhookHandler *webhookHTTP.WebhookHandler,
	ledgerHealth LedgerHealthChecker,
	logger *slog.Logger,
) *Server {
	s := &Server{
		config:         config,
		db:             db,
		webhookHandler: webhookHandler,
		ledgerHealth:   ledgerHealth,
		logger:         logger,
	}

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:      s.setupRouter(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

func (s *Server) setupRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestid.New(requestid.WithGenerator(func() string {
		return uuid.Must(uuid.NewV7()).String()
	})))
	router.Use(CustomLoggerMiddleware(s.logger))

	if corsMiddleware := createCORSMiddleware(
		s.config.CORSEnabled,
		s.config.CORSAllowOrigins,
		s.logger,
	); corsMiddleware != nil {
		router.Use(corsMiddleware)
	}

	router.GET("/health", s.healthHandler)
	router.GET("/ready", s.readinessHandler)

	if s.webhookHandler != nil {
		webhooks := router.Group("/v1/webhooks")
		if s.config.RateLimitEnabled {
			webhooks.Use(WebhookRateLimitMiddleware(
				s.config.RateLimitRequestsPerSec,
				s.config.RateLimitBurst,
				s.logger,
			))
		}
		webhooks.POST("/payments", s.webhookHandler.IngressHandler)
		webhooks.GET("/audit-logs", s.webhookHandler.ListAuditLogsHandler)
	}

	return router
}

// healthHandler reports process health plus ledger node connectivity and the
// observed average RPC response time.
func (s *Server) healthHandler(c *gin.Context) {
	response := gin.H{"status": "healthy"}
	statusCode := http.StatusOK

	if s.ledgerHealth != nil {
		health := s.ledgerHealth.Health(c.Request.Context())
		response["ledger"] = gin.H{
			"healthy":              health.Healthy,
			"avg_response_time_ms": health.AvgResponseTime.Milliseconds(),
		}
		if !health.Healthy {
			response["status"] = "degraded"
			statusCode = http.StatusServiceUnavailable
		}
	}

	c.JSON(statusCode, response)
}

// readinessHandler reports whether the server can take traffic: the database
// must answer a ping.
func (s *Server) readinessHandler(c *gin.Context) {
	components := gin.H{}
	ready := true

	if s.db == nil {
		components["database"] = "error"
		ready = false
	} else {
		pingCtx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := s.db.PingContext(pingCtx); err != nil {
			components["database"] = "error"
			ready = false
		} else {
			components["database"] = "ok"
		}
	}

	if !ready {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "components": components})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ready", "components": components})
}

// GetHandler returns the http.Handler for testing purposes.
func (s *Server) GetHandler() http.Handler {
	return s.server.Handler
}

// Start starts the HTTP server.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("starting http server", slog.String("addr", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.server.Shutdown(ctx)
}
