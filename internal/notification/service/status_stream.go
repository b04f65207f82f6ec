// Package service provides the outbound notification collaborators: the
// status-stream HTTP callback and the pubsub channel sinks.
package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	apperrors "github.com/allisson/ledgerhook/internal/errors"
	paymentDomain "github.com/allisson/ledgerhook/internal/payment/domain"
)

// HTTPStatusStream delivers payment status changes to an external callback
// endpoint with a JSON POST. The caller treats delivery as best-effort:
// failures are returned for logging but must not affect outbox completion.
type HTTPStatusStream struct {
	url    string
	client *http.Client
}

// NewHTTPStatusStream creates a status stream client for the given endpoint.
func NewHTTPStatusStream(url string, timeout time.Duration) *HTTPStatusStream {
	return &HTTPStatusStream{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

type statusStreamPayload struct {
	Reference string            `json:"reference"`
	Status    string            `json:"status"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// NotifyStatus posts one status change to the callback endpoint.
func (s *HTTPStatusStream) NotifyStatus(
	ctx context.Context,
	reference string,
	status paymentDomain.PaymentStatus,
	metadata map[string]string,
) error {
	body, err := json.Marshal(statusStreamPayload{
		Reference: reference,
		Status:    string(status),
		Metadata:  metadata,
	})
	if err != nil {
		return apperrors.Wrap(err, "failed to encode status stream payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return apperrors.Wrap(err, "failed to build status stream request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return apperrors.Wrap(err, "status stream request failed")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apperrors.Wrap(
			fmt.Errorf("status stream returned %d", resp.StatusCode),
			"status stream request rejected",
		)
	}

	return nil
}

// NoOpStatusStream discards status changes. Used when no callback endpoint is
// configured.
type NoOpStatusStream struct{}

// NewNoOpStatusStream creates a status stream that does nothing.
func NewNoOpStatusStream() *NoOpStatusStream {
	return &NoOpStatusStream{}
}

// NotifyStatus discards the notification.
func (s *NoOpStatusStream) NotifyStatus(
	ctx context.Context,
	reference string,
	status paymentDomain.PaymentStatus,
	metadata map[string]string,
) error {
	return nil
}
