package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "github.com/allisson/ledgerhook/internal/errors"
	webhookDomain "github.com/allisson/ledgerhook/internal/webhook/domain"
	"github.com/allisson/ledgerhook/internal/webhook/http/dto"
)

// MockWebhookUseCase is a mock implementation of usecase.WebhookUseCase
type MockWebhookUseCase struct {
	mock.Mock
}

func (m *MockWebhookUseCase) ProcessWebhook(
	ctx context.Context,
	rawBody []byte,
	signature string,
	correlationID string,
) (*webhookDomain.IngressResult, error) {
	args := m.Called(ctx, rawBody, signature, correlationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*webhookDomain.IngressResult), args.Error(1)
}

func (m *MockWebhookUseCase) ListAuditLogs(
	ctx context.Context,
	offset, limit int,
) ([]*webhookDomain.AuditLog, error) {
	args := m.Called(ctx, offset, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*webhookDomain.AuditLog), args.Error(1)
}

const testSignatureHeader = "X-Signature"

func setupTestHandler(t *testing.T) (*WebhookHandler, *MockWebhookUseCase) {
	t.Helper()

	gin.SetMode(gin.TestMode)

	mockUseCase := &MockWebhookUseCase{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := NewWebhookHandler(mockUseCase, testSignatureHeader, 1<<20, logger)

	return handler, mockUseCase
}

func createTestContext(method, url string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	c.Request = httptest.NewRequest(method, url, reader)
	return c, w
}

func TestWebhookHandler_IngressHandler(t *testing.T) {
	t.Run("Success_ProcessedWebhook", func(t *testing.T) {
		handler, mockUseCase := setupTestHandler(t)

		body := []byte(`{"type":"TRANSFER","signature":"sigA"}`)

		mockUseCase.On("ProcessWebhook", mock.Anything, body, "valid-signature", mock.Anything).
			Return(&webhookDomain.IngressResult{Success: true, Processed: true}, nil).
			Once()

		c, w := createTestContext(http.MethodPost, "/v1/webhooks/payments", body)
		c.Request.Header.Set(testSignatureHeader, "valid-signature")

		handler.IngressHandler(c)

		assert.Equal(t, http.StatusOK, w.Code)

		var response dto.IngressResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.True(t, response.Success)
		assert.True(t, response.Processed)
		mockUseCase.AssertExpectations(t)
	})

	t.Run("Success_AcknowledgedButNotProcessed", func(t *testing.T) {
		handler, mockUseCase := setupTestHandler(t)

		body := []byte(`{"type":"NFT_SALE"}`)

		mockUseCase.On("ProcessWebhook", mock.Anything, body, "valid-signature", mock.Anything).
			Return(&webhookDomain.IngressResult{Success: true, Processed: false}, nil).
			Once()

		c, w := createTestContext(http.MethodPost, "/v1/webhooks/payments", body)
		c.Request.Header.Set(testSignatureHeader, "valid-signature")

		handler.IngressHandler(c)

		assert.Equal(t, http.StatusOK, w.Code)

		var response dto.IngressResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.True(t, response.Success)
		assert.False(t, response.Processed)
	})

	t.Run("Error_InvalidSignature", func(t *testing.T) {
		handler, mockUseCase := setupTestHandler(t)

		body := []byte(`{"type":"TRANSFER"}`)

		mockUseCase.On("ProcessWebhook", mock.Anything, body, "forged", mock.Anything).
			Return(nil, apperrors.Wrap(apperrors.ErrUnauthorized, "webhook signature mismatch")).
			Once()

		c, w := createTestContext(http.MethodPost, "/v1/webhooks/payments", body)
		c.Request.Header.Set(testSignatureHeader, "forged")

		handler.IngressHandler(c)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("Error_MissingSignatureHeader", func(t *testing.T) {
		handler, mockUseCase := setupTestHandler(t)

		body := []byte(`{"type":"TRANSFER"}`)

		mockUseCase.On("ProcessWebhook", mock.Anything, body, "", mock.Anything).
			Return(nil, apperrors.Wrap(apperrors.ErrUnauthorized, "webhook signature mismatch")).
			Once()

		c, w := createTestContext(http.MethodPost, "/v1/webhooks/payments", body)

		handler.IngressHandler(c)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("Error_BodyTooLarge", func(t *testing.T) {
		gin.SetMode(gin.TestMode)
		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		mockUseCase := &MockWebhookUseCase{}
		handler := NewWebhookHandler(mockUseCase, testSignatureHeader, 16, logger)

		body := bytes.Repeat([]byte("a"), 64)
		c, w := createTestContext(http.MethodPost, "/v1/webhooks/payments", body)

		handler.IngressHandler(c)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		mockUseCase.AssertNotCalled(t, "ProcessWebhook", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Error_InternalError", func(t *testing.T) {
		handler, mockUseCase := setupTestHandler(t)

		body := []byte(`{"type":"TRANSFER"}`)

		mockUseCase.On("ProcessWebhook", mock.Anything, body, "valid-signature", mock.Anything).
			Return(nil, assert.AnError).
			Once()

		c, w := createTestContext(http.MethodPost, "/v1/webhooks/payments", body)
		c.Request.Header.Set(testSignatureHeader, "valid-signature")

		handler.IngressHandler(c)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}

func TestWebhookHandler_ListAuditLogsHandler(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		handler, mockUseCase := setupTestHandler(t)

		auditLogs := []*webhookDomain.AuditLog{
			{
				ID:          uuid.Must(uuid.NewV7()),
				EventType:   "TRANSFER",
				TxSignature: "sigA",
				Processed:   true,
				CreatedAt:   time.Now().UTC(),
			},
			{
				ID:          uuid.Must(uuid.NewV7()),
				EventType:   "NFT_SALE",
				TxSignature: "sigB",
				Processed:   false,
				Error:       "no processable transfer",
				CreatedAt:   time.Now().UTC(),
			},
		}

		mockUseCase.On("ListAuditLogs", mock.Anything, 0, 50).
			Return(auditLogs, nil).
			Once()

		c, w := createTestContext(http.MethodGet, "/v1/webhooks/audit-logs", nil)

		handler.ListAuditLogsHandler(c)

		assert.Equal(t, http.StatusOK, w.Code)

		var response dto.ListAuditLogsResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Equal(t, 2, response.Count)
		assert.Equal(t, "sigA", response.AuditLogs[0].TxSignature)
		assert.Equal(t, "no processable transfer", response.AuditLogs[1].Error)
	})

	t.Run("Error_InvalidPagination", func(t *testing.T) {
		handler, mockUseCase := setupTestHandler(t)

		c, w := createTestContext(http.MethodGet, "/v1/webhooks/audit-logs?limit=9999", nil)

		handler.ListAuditLogsHandler(c)

		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		mockUseCase.AssertNotCalled(t, "ListAuditLogs", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Error_RepositoryFailure", func(t *testing.T) {
		handler, mockUseCase := setupTestHandler(t)

		mockUseCase.On("ListAuditLogs", mock.Anything, 0, 50).
			Return(nil, assert.AnError).
			Once()

		c, w := createTestContext(http.MethodGet, "/v1/webhooks/audit-logs", nil)

		handler.ListAuditLogsHandler(c)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}
