// Package ethproofsapi reports the proof lifecycle (queued, proving,
// proved) to the external EthProofs submission API (C4). Wire shapes are
// grounded on the original Rust client's request/response types; this
// client trims that surface to the three lifecycle calls the pipeline
// supervisor needs.
package ethproofsapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ethproofs/ethproofs-prover/internal/ethproofs"
)

// RequestTimeout is the fixed per-call deadline (spec.md §4.4).
const RequestTimeout = 30 * time.Second

// Metrics records the outcome and duration of a single API call.
type Metrics interface {
	Observe(operation string, err error, started time.Time)
}

type noopMetrics struct{}

func (noopMetrics) Observe(string, error, time.Time) {}

// Persister durably saves the exact encoded "proved" request body before
// it is sent, for auditability (spec.md §4.4, output/<block>/<block>.json).
type Persister interface {
	SaveProvedRequest(block ethproofs.BlockID, body []byte) error
}

type noopPersister struct{}

func (noopPersister) SaveProvedRequest(ethproofs.BlockID, []byte) error { return nil }

// Client reports block lifecycle transitions to the EthProofs API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	clusterID  int64
	dev        bool
	metrics    Metrics
	persister  Persister
}

// Option configures a Client.
type Option func(*Client)

// WithMetrics overrides the metrics sink (default: no-op).
func WithMetrics(m Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithPersister overrides the proved-request persister (default: no-op).
func WithPersister(p Persister) Option {
	return func(c *Client) { c.persister = p }
}

// New constructs a Client. When dev is true, every call short-circuits
// and returns nil without making a network request (spec.md §6: only
// eth_rpc_url and elf_path are required in dev mode).
func New(baseURL, apiKey string, clusterID int64, dev bool, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: RequestTimeout},
		baseURL:    baseURL,
		apiKey:     apiKey,
		clusterID:  clusterID,
		dev:        dev,
		metrics:    noopMetrics{},
		persister:  noopPersister{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type queuedBody struct {
	BlockNumber uint64 `json:"block_number"`
	ClusterID   int64  `json:"cluster_id"`
}

type provedBody struct {
	BlockNumber   uint64  `json:"block_number"`
	ClusterID     int64   `json:"cluster_id"`
	ProvingTime   uint64  `json:"proving_time"`
	ProvingCycles *uint64 `json:"proving_cycles,omitempty"`
	Proof         string  `json:"proof"`
	VerifierID    *string `json:"verifier_id,omitempty"`
}

type apiResponse struct {
	ProofID uint64 `json:"proof_id"`
	Error   string `json:"error"`
}

// Queued reports that block has been accepted for proving but proving
// has not started yet.
func (c *Client) Queued(ctx context.Context, block ethproofs.BlockID) error {
	return c.post(ctx, "queued", "/proofs/queued", queuedBody{
		BlockNumber: uint64(block),
		ClusterID:   c.clusterID,
	}, nil)
}

// Proving reports that proving has started for block.
func (c *Client) Proving(ctx context.Context, block ethproofs.BlockID) error {
	return c.post(ctx, "proving", "/proofs/proving", queuedBody{
		BlockNumber: uint64(block),
		ClusterID:   c.clusterID,
	}, nil)
}

// Proved reports a completed proof. The exact encoded request body is
// persisted via the configured Persister before the call is attempted.
func (c *Client) Proved(ctx context.Context, block ethproofs.BlockID, provingTimeMS uint64, cycles *uint64, proofB64 string, verifierID *string) error {
	body := provedBody{
		BlockNumber:   uint64(block),
		ClusterID:     c.clusterID,
		ProvingTime:   provingTimeMS,
		ProvingCycles: cycles,
		Proof:         proofB64,
		VerifierID:    verifierID,
	}

	encoded, err := json.Marshal(body)
	if err != nil {
		return &Error{Op: "proved", Message: err.Error()}
	}
	if err := c.persister.SaveProvedRequest(block, encoded); err != nil {
		// Persistence failure does not block submission; it's an
		// auditability nicety, not a correctness requirement.
		_ = err
	}

	return c.post(ctx, "proved", "/proofs/proved", body, nil)
}

func (c *Client) post(ctx context.Context, op, path string, body any, out *apiResponse) error {
	if c.dev {
		return nil
	}

	started := time.Now()
	var err error
	defer func() {
		c.metrics.Observe(op, err, started)
	}()

	ctx, cancel := context.WithTimeout(ctx, RequestTimeout)
	defer cancel()

	payload, marshalErr := json.Marshal(body)
	if marshalErr != nil {
		err = &Error{Op: op, Message: marshalErr.Error()}
		return err
	}

	url := c.baseURL + path
	httpReq, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if reqErr != nil {
		err = &Error{Op: op, Message: reqErr.Error()}
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, doErr := c.httpClient.Do(httpReq)
	if doErr != nil {
		err = &Error{Op: op, Message: doErr.Error()}
		return err
	}
	defer resp.Body.Close()

	respBody, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		err = &Error{Op: op, Message: readErr.Error()}
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err = &Error{Op: op, Status: resp.StatusCode, Message: string(respBody)}
		return err
	}

	var parsed apiResponse
	if unmarshalErr := json.Unmarshal(respBody, &parsed); unmarshalErr != nil {
		err = &Error{Op: op, Message: fmt.Sprintf("decode response: %s", unmarshalErr)}
		return err
	}
	if parsed.Error != "" {
		err = &Error{Op: op, Message: parsed.Error}
		return err
	}

	if out != nil {
		*out = parsed
	}
	return nil
}
