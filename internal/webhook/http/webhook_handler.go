// Package http provides HTTP handlers for webhook ingress and audit inspection.
package http

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"

	"github.com/allisson/ledgerhook/internal/httputil"
	"github.com/allisson/ledgerhook/internal/webhook/http/dto"
	webhookUseCase "github.com/allisson/ledgerhook/internal/webhook/usecase"
)

// WebhookHandler handles HTTP requests for webhook ingress.
// The raw request body must reach the use case untouched: the HMAC signature
// covers the exact bytes the provider sent, so no middleware may rewrite them.
type WebhookHandler struct {
	webhookUseCase  webhookUseCase.WebhookUseCase
	signatureHeader string
	maxBodyBytes    int64
	logger          *slog.Logger
}

// NewWebhookHandler creates a new webhook handler with required dependencies.
func NewWebhookHandler(
	useCase webhookUseCase.WebhookUseCase,
	signatureHeader string,
	maxBodyBytes int64,
	logger *slog.Logger,
) *WebhookHandler {
	return &WebhookHandler{
		webhookUseCase:  useCase,
		signatureHeader: signatureHeader,
		maxBodyBytes:    maxBodyBytes,
		logger:          logger,
	}
}

// IngressHandler accepts one webhook delivery.
// POST /v1/webhooks/payments
// Returns 200 OK with an acknowledgment body, 401 on signature mismatch.
func (h *WebhookHandler) IngressHandler(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBodyBytes))
	if err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}

	signature := c.GetHeader(h.signatureHeader)

	result, err := h.webhookUseCase.ProcessWebhook(
		c.Request.Context(),
		body,
		signature,
		requestid.Get(c),
	)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapIngressResult(result))
}

// ListAuditLogsHandler pages through the webhook audit trail.
// GET /v1/webhooks/audit-logs?offset=0&limit=50
func (h *WebhookHandler) ListAuditLogsHandler(c *gin.Context) {
	offset, limit, err := httputil.ParsePagination(c)
	if err != nil {
		httputil.HandleValidationErrorGin(c, err, h.logger)
		return
	}

	auditLogs, err := h.webhookUseCase.ListAuditLogs(c.Request.Context(), offset, limit)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapAuditLogsToListResponse(auditLogs))
}
