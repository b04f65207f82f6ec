package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// assertMetricLine checks that the Prometheus output contains a metric matching
// the given name, partial label pattern, and value. Uses regex to handle extra
// OTel scope labels injected by the Prometheus exporter.
func assertMetricLine(t *testing.T, output, name, labels, value string) {
	t.Helper()
	pattern := name + `\{[^}]*` + labels + `[^}]*\} ` + value
	assert.Regexp(t, pattern, output)
}

func scrapeMetrics(t *testing.T, provider *Provider) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	provider.Handler().ServeHTTP(w, req)
	body, err := io.ReadAll(w.Result().Body)
	require.NoError(t, err)
	return string(body)
}

func TestNewOutboxMetrics(t *testing.T) {
	provider, err := NewProvider("test_app")
	require.NoError(t, err)

	outboxMetrics, err := NewOutboxMetrics(provider.MeterProvider(), "test_app")

	require.NoError(t, err)
	assert.NotNil(t, outboxMetrics)
}

func TestOutboxMetrics_Counters(t *testing.T) {
	provider, err := NewProvider("test_app")
	require.NoError(t, err)

	om, err := NewOutboxMetrics(provider.MeterProvider(), "test_app")
	require.NoError(t, err)

	ctx := context.Background()
	om.RecordProcessed(ctx, "payment_verified", "default", 3)
	om.RecordFailed(ctx, "payment_verified", "default", 1)
	om.RecordDeadLettered(ctx, "payment_failed", "default", 1)
	om.RecordPassDuration(ctx, 120*time.Millisecond)

	output := scrapeMetrics(t, provider)
	assertMetricLine(t, output,
		"test_app_outbox_events_processed_total",
		`event_type="payment_verified"`, "3")
	assertMetricLine(t, output,
		"test_app_outbox_events_failed_total",
		`event_type="payment_verified"`, "1")
	assertMetricLine(t, output,
		"test_app_outbox_events_dead_lettered_total",
		`event_type="payment_failed"`, "1")
}

func TestLedgerMetrics_RecordRPC(t *testing.T) {
	provider, err := NewProvider("test_app")
	require.NoError(t, err)

	lm, err := NewLedgerMetrics(provider.MeterProvider(), "test_app")
	require.NoError(t, err)

	// Should not panic and should surface in the scrape
	lm.RecordRPC(context.Background(), "getTransaction", 80*time.Millisecond, "ok")
	lm.RecordRPC(context.Background(), "getHealth", 5*time.Millisecond, "error")

	output := scrapeMetrics(t, provider)
	assert.Contains(t, output, "test_app_ledger_rpc_duration_seconds")
}

func TestNoOpMetrics(t *testing.T) {
	ctx := context.Background()

	om := NewNoOpOutboxMetrics()
	om.RecordProcessed(ctx, "payment_verified", "default", 1)
	om.RecordFailed(ctx, "payment_verified", "default", 1)
	om.RecordDeadLettered(ctx, "payment_verified", "default", 1)
	om.RecordPassDuration(ctx, time.Second)

	lm := NewNoOpLedgerMetrics()
	lm.RecordRPC(ctx, "getHealth", time.Millisecond, "ok")
}
