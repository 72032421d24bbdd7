// Package ethrpc is a typed, metrics-instrumented wrapper over the
// Ethereum JSON-RPC 2.0 endpoint (C3): eth_blockNumber (via
// eth_getBlockByNumber("latest")), eth_getBlockByNumber, and
// debug_executionWitness.
package ethrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/ratelimit"
)

// RequestTimeout is the fixed per-request deadline (spec.md §4.3/§5).
const RequestTimeout = 30 * time.Second

// Metrics records the outcome and duration of a single RPC operation.
type Metrics interface {
	Observe(operation string, err error, started time.Time)
}

// HealthSink receives terminal-outcome feedback so RpcHealthTracker can
// edge-trigger down/recovered notifications.
type HealthSink interface {
	RecordSuccess(url string)
	RecordFailure(url, reason string)
}

type noopMetrics struct{}

func (noopMetrics) Observe(string, error, time.Time) {}

type noopHealth struct{}

func (noopHealth) RecordSuccess(string)         {}
func (noopHealth) RecordFailure(string, string) {}

// Client is a typed Ethereum JSON-RPC client.
type Client struct {
	url        string
	httpClient *http.Client
	metrics    Metrics
	health     HealthSink
	rl         ratelimit.Limiter
}

// Option configures a Client.
type Option func(*Client)

// WithMetrics overrides the metrics sink (default: no-op).
func WithMetrics(m Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithHealthSink overrides the health sink (default: no-op).
func WithHealthSink(h HealthSink) Option {
	return func(c *Client) { c.health = h }
}

// WithRateLimit self-throttles outbound calls to at most rps per second.
// Grounded on the teacher's pkg/batcher use of go.uber.org/ratelimit;
// rewired here directly onto the RPC client (see DESIGN.md).
func WithRateLimit(rps int) Option {
	return func(c *Client) {
		if rps > 0 {
			c.rl = ratelimit.New(rps)
		}
	}
}

// New constructs a Client against the given JSON-RPC endpoint URL.
func New(url string, opts ...Option) *Client {
	c := &Client{
		url:        url,
		httpClient: &http.Client{Timeout: RequestTimeout},
		metrics:    noopMetrics{},
		health:     noopHealth{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  json.RawMessage `json:"error"`
}

// NormalizeBlockParam converts an integer height, or the well-known tag
// strings, into the wire representation eth_getBlockByNumber expects.
// Other strings gain a "0x" prefix if missing.
func NormalizeBlockParam(v any) (string, error) {
	switch value := v.(type) {
	case string:
		switch value {
		case "latest", "pending", "earliest", "safe", "finalized":
			return value, nil
		default:
			if strings.HasPrefix(value, "0x") {
				return value, nil
			}
			return "0x" + value, nil
		}
	case int:
		return hexutil.EncodeUint64(uint64(value)), nil
	case int64:
		if value < 0 {
			return "", fmt.Errorf("negative block number %d", value)
		}
		return hexutil.EncodeUint64(uint64(value)), nil
	case uint64:
		return hexutil.EncodeUint64(value), nil
	default:
		return "", fmt.Errorf("unsupported block parameter type %T", v)
	}
}

func (c *Client) call(ctx context.Context, op, method string, params []any) (json.RawMessage, error) {
	if c.rl != nil {
		c.rl.Take()
	}

	started := time.Now()
	var err error
	defer func() {
		c.metrics.Observe(op, err, started)
	}()

	ctx, cancel := context.WithTimeout(ctx, RequestTimeout)
	defer cancel()

	reqBody := rpcRequest{
		JSONRPC: "2.0",
		ID:      rand.Intn(9_999_999) + 1,
		Method:  method,
		Params:  params,
	}
	payload, marshalErr := json.Marshal(reqBody)
	if marshalErr != nil {
		err = &TransportError{Op: op, Reason: marshalErr.Error()}
		return nil, err
	}

	httpReq, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if reqErr != nil {
		err = &TransportError{Op: op, Reason: reqErr.Error()}
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, doErr := c.httpClient.Do(httpReq)
	if doErr != nil {
		if ctx.Err() != nil {
			err = &TimeoutError{Op: op}
		} else {
			err = &TransportError{Op: op, Reason: doErr.Error()}
		}
		c.health.RecordFailure(c.url, err.Error())
		return nil, err
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		err = &TransportError{Op: op, Reason: readErr.Error()}
		c.health.RecordFailure(c.url, err.Error())
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		err = &TransportError{Op: op, Reason: fmt.Sprintf("status %d: %s", resp.StatusCode, string(body))}
		c.health.RecordFailure(c.url, err.Error())
		return nil, err
	}

	var rpcResp rpcResponse
	if unmarshalErr := json.Unmarshal(body, &rpcResp); unmarshalErr != nil {
		err = &BadResponseError{Op: op, Reason: unmarshalErr.Error()}
		c.health.RecordFailure(c.url, err.Error())
		return nil, err
	}

	// The server responded: even an application-level error means the
	// upstream is alive (spec.md §4.3, §7).
	c.health.RecordSuccess(c.url)

	if len(rpcResp.Error) > 0 && string(rpcResp.Error) != "null" {
		err = &JSONRPCError{Op: op, Payload: string(rpcResp.Error)}
		return nil, err
	}

	return rpcResp.Result, nil
}

// LatestBlockInfo returns the latest block's height and its unix-seconds
// timestamp.
func (c *Client) LatestBlockInfo(ctx context.Context) (uint64, int64, error) {
	result, err := c.call(ctx, "eth_getBlockByNumber", "eth_getBlockByNumber", []any{"latest", false})
	if err != nil {
		return 0, 0, err
	}

	var block struct {
		Number    string `json:"number"`
		Timestamp string `json:"timestamp"`
	}
	if err := json.Unmarshal(result, &block); err != nil {
		return 0, 0, &BadResponseError{Op: "eth_getBlockByNumber", Reason: err.Error()}
	}

	number, err := hexutil.DecodeUint64(block.Number)
	if err != nil {
		return 0, 0, &BadResponseError{Op: "eth_getBlockByNumber", Reason: "parse number: " + err.Error()}
	}
	ts, err := hexutil.DecodeUint64(block.Timestamp)
	if err != nil {
		return 0, 0, &BadResponseError{Op: "eth_getBlockByNumber", Reason: "parse timestamp: " + err.Error()}
	}

	return number, int64(ts), nil
}

// BlockJSON fetches the full block (with transactions) and returns the
// raw "result" JSON bytes, as the input-builder expects.
func (c *Client) BlockJSON(ctx context.Context, block any) ([]byte, error) {
	param, err := NormalizeBlockParam(block)
	if err != nil {
		return nil, &TransportError{Op: "eth_getBlockByNumber", Reason: err.Error()}
	}

	result, err := c.call(ctx, "eth_getBlockByNumber", "eth_getBlockByNumber", []any{param, true})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ExecutionWitness fetches debug_executionWitness for block and returns
// the raw "result" JSON bytes.
func (c *Client) ExecutionWitness(ctx context.Context, block any) ([]byte, error) {
	param, err := NormalizeBlockParam(block)
	if err != nil {
		return nil, &TransportError{Op: "debug_executionWitness", Reason: err.Error()}
	}

	result, err := c.call(ctx, "debug_executionWitness", "debug_executionWitness", []any{param})
	if err != nil {
		return nil, err
	}
	return result, nil
}
