package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// webhookTimeout bounds a single delivery attempt; delivery is
// best-effort and is never retried on failure (spec.md §4.11).
const webhookTimeout = 10 * time.Second

type webhookPayload struct {
	Headline  string            `json:"headline"`
	Kind      Kind              `json:"kind"`
	Fields    map[string]string `json:"fields"`
	Timestamp time.Time         `json:"timestamp"`
}

func payloadFor(e Event, blockMeta string) webhookPayload {
	fields := map[string]string{}
	if e.Block != 0 {
		fields["block"] = fmt.Sprintf("%d", e.Block)
	}
	if e.Reason != "" {
		fields["reason"] = e.Reason
	}
	if e.URL != "" {
		fields["url"] = e.URL
	}
	if blockMeta != "" {
		fields["block_metadata"] = blockMeta
	}
	if !e.Since.IsZero() {
		fields["since"] = e.Since.UTC().Format(time.RFC3339)
	}
	if e.Summary != "" {
		fields["summary"] = e.Summary
	}

	return webhookPayload{
		Headline:  headlineFor(e),
		Kind:      e.Kind,
		Fields:    fields,
		Timestamp: e.Timestamp,
	}
}

func headlineFor(e Event) string {
	switch e.Kind {
	case KindInputGenerationFailed:
		return fmt.Sprintf("input generation failed for block %d", e.Block)
	case KindProofGenerationFailed:
		return fmt.Sprintf("proof generation failed for block %d", e.Block)
	case KindProofDataFailed:
		return fmt.Sprintf("proof artifacts unreadable for block %d", e.Block)
	case KindEthProofsRequestFailed:
		return "ethproofs api request failed"
	case KindProofSubmitted:
		return fmt.Sprintf("proof submitted for block %d", e.Block)
	case KindRpcDown:
		return fmt.Sprintf("rpc endpoint down: %s", e.URL)
	case KindRpcRecovered:
		return fmt.Sprintf("rpc endpoint recovered: %s", e.URL)
	case KindProvedBlocksUpdated:
		return "proved blocks ledger updated"
	case KindMissedBlocksUpdated:
		return "missed blocks ledger updated"
	case KindProverStatus:
		return fmt.Sprintf("prover status: %s", e.Summary)
	default:
		return string(e.Kind)
	}
}

// webhookSender posts a rendered payload to a configured URL. Delivery
// failure is returned to the caller to log; the caller never retries.
type webhookSender struct {
	url        string
	httpClient *http.Client
}

func newWebhookSender(url string) webhookSender {
	return webhookSender{url: url, httpClient: &http.Client{Timeout: webhookTimeout}}
}

func (s webhookSender) deliver(ctx context.Context, payload webhookPayload) error {
	if s.url == "" {
		return nil
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode webhook payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, webhookTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("deliver webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
