package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	paymentDomain "github.com/allisson/ledgerhook/internal/payment/domain"
)

func TestHTTPStatusStream_NotifyStatus(t *testing.T) {
	var received statusStreamPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	stream := NewHTTPStatusStream(server.URL, time.Second)

	err := stream.NotifyStatus(
		context.Background(),
		"pay_42",
		paymentDomain.PaymentStatusVerified,
		map[string]string{"tx_signature": "sigA"},
	)

	require.NoError(t, err)
	assert.Equal(t, "pay_42", received.Reference)
	assert.Equal(t, "verified", received.Status)
	assert.Equal(t, "sigA", received.Metadata["tx_signature"])
}

func TestHTTPStatusStream_ServerRejects(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	stream := NewHTTPStatusStream(server.URL, time.Second)

	err := stream.NotifyStatus(context.Background(), "pay_42", paymentDomain.PaymentStatusFailed, nil)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestHTTPStatusStream_ServerUnavailable(t *testing.T) {
	stream := NewHTTPStatusStream("http://127.0.0.1:1", time.Second)

	err := stream.NotifyStatus(context.Background(), "pay_42", paymentDomain.PaymentStatusVerified, nil)

	assert.Error(t, err)
}

func TestNoOpStatusStream(t *testing.T) {
	stream := NewNoOpStatusStream()

	err := stream.NotifyStatus(context.Background(), "pay_42", paymentDomain.PaymentStatusVerified, nil)

	assert.NoError(t, err)
}
