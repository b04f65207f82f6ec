// Package service provides the ledger RPC client and transaction verifier.
package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/allisson/ledgerhook/internal/ledger/domain"
	"github.com/allisson/ledgerhook/internal/metrics"
)

// JSONRPCClient talks JSON-RPC 2.0 to a ledger node. Every call carries the
// client's bounded timeout; a timeout surfaces as an ordinary error and feeds
// the same failure path as any other verification failure.
type JSONRPCClient struct {
	url     string
	client  *http.Client
	metrics metrics.LedgerMetrics
	logger  *slog.Logger

	requestCount  atomic.Int64
	totalDuration atomic.Int64 // nanoseconds
}

// NewJSONRPCClient creates a ledger RPC client with a bounded per-request timeout.
func NewJSONRPCClient(
	url string,
	timeout time.Duration,
	ledgerMetrics metrics.LedgerMetrics,
	logger *slog.Logger,
) *JSONRPCClient {
	return &JSONRPCClient{
		url:     url,
		client:  &http.Client{Timeout: timeout},
		metrics: ledgerMetrics,
		logger:  logger,
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

// call performs one JSON-RPC request and unmarshals the result into out.
// A nil JSON result leaves out untouched and returns errNullResult.
var errNullResult = fmt.Errorf("null result")

func (c *JSONRPCClient) call(ctx context.Context, method string, params []any, out any) error {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal rpc request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create rpc request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.client.Do(req)
	duration := time.Since(start)
	c.recordCall(ctx, method, duration, err == nil)

	if err != nil {
		return fmt.Errorf("ledger rpc %s failed: %w", method, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ledger rpc %s returned status %d", method, resp.StatusCode)
	}

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return fmt.Errorf("failed to decode rpc response: %w", err)
	}
	if rpcResp.Error != nil {
		return fmt.Errorf("ledger rpc %s: %w", method, rpcResp.Error)
	}
	if len(rpcResp.Result) == 0 || string(rpcResp.Result) == "null" {
		return errNullResult
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(rpcResp.Result, out); err != nil {
		return fmt.Errorf("failed to unmarshal rpc result: %w", err)
	}
	return nil
}

func (c *JSONRPCClient) recordCall(ctx context.Context, method string, duration time.Duration, ok bool) {
	c.requestCount.Add(1)
	c.totalDuration.Add(int64(duration))

	status := "ok"
	if !ok {
		status = "error"
	}
	if c.metrics != nil {
		c.metrics.RecordRPC(ctx, method, duration, status)
	}
}

// getTransactionResult mirrors the subset of the getTransaction response consumed here.
type getTransactionResult struct {
	Slot      uint64 `json:"slot"`
	BlockTime *int64 `json:"blockTime"`
	Meta      struct {
		Err          json.RawMessage `json:"err"`
		Fee          uint64          `json:"fee"`
		PreBalances  []uint64        `json:"preBalances"`
		PostBalances []uint64        `json:"postBalances"`
	} `json:"meta"`
	Transaction struct {
		Message struct {
			AccountKeys []string `json:"accountKeys"`
		} `json:"message"`
	} `json:"transaction"`
}

// GetTransaction queries the ledger for a transaction at finalized commitment.
// Returns (nil, nil) when the transaction is not finalized or does not exist:
// the caller cannot distinguish the two, which is the intended conservative policy.
func (c *JSONRPCClient) GetTransaction(
	ctx context.Context,
	signature string,
) (*domain.TransactionDetail, error) {
	params := []any{
		signature,
		map[string]any{
			"commitment":                     domain.CommitmentFinalized,
			"encoding":                       "json",
			"maxSupportedTransactionVersion": 0,
		},
	}

	var result getTransactionResult
	err := c.call(ctx, "getTransaction", params, &result)
	if err == errNullResult {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	detail := &domain.TransactionDetail{
		Signature:    signature,
		Slot:         result.Slot,
		Fee:          result.Meta.Fee,
		AccountKeys:  result.Transaction.Message.AccountKeys,
		PreBalances:  result.Meta.PreBalances,
		PostBalances: result.Meta.PostBalances,
	}

	if result.BlockTime != nil {
		blockTime := time.Unix(*result.BlockTime, 0).UTC()
		detail.BlockTime = &blockTime
	}

	if len(result.Meta.Err) > 0 && string(result.Meta.Err) != "null" {
		onChainErr := string(result.Meta.Err)
		detail.Err = &onChainErr
	}

	return detail, nil
}

// GetHealth pings the ledger node. A nil error means the node reports healthy.
func (c *JSONRPCClient) GetHealth(ctx context.Context) error {
	var status string
	err := c.call(ctx, "getHealth", nil, &status)
	if err == errNullResult {
		return fmt.Errorf("ledger health returned empty result")
	}
	if err != nil {
		return err
	}
	if status != "ok" {
		return fmt.Errorf("ledger health status: %s", status)
	}
	return nil
}

// AverageResponseTime reports the mean duration of all RPC calls made so far.
func (c *JSONRPCClient) AverageResponseTime() time.Duration {
	count := c.requestCount.Load()
	if count == 0 {
		return 0
	}
	return time.Duration(c.totalDuration.Load() / count)
}
