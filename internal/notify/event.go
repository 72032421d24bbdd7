// Package notify implements the NotificationSink (C11): a fire-and-forget
// async fan-out that renders structured pipeline events to webhook
// payloads and posts them to an external URL, never blocking the
// pipeline and never retrying a failed delivery.
package notify

import "time"

// Kind names one of the structured event types spec.md §4.11 lists.
type Kind string

const (
	KindInputGenerationFailed  Kind = "InputGenerationFailed"
	KindProofGenerationFailed  Kind = "ProofGenerationFailed"
	KindProofDataFailed        Kind = "ProofDataFailed"
	KindEthProofsRequestFailed Kind = "EthProofsRequestFailed"
	KindProofSubmitted         Kind = "ProofSubmitted"
	KindRpcDown                Kind = "RpcDown"
	KindRpcRecovered           Kind = "RpcRecovered"

	// Topic broadcasts (spec.md §4.11): unlike the per-block events above,
	// these carry a pre-rendered summary rather than a single block.
	KindProvedBlocksUpdated Kind = "proved_blocks_updated"
	KindMissedBlocksUpdated Kind = "missed_blocks_updated"
	KindProverStatus        Kind = "prover_status"
)

// Event is a single structured notification, rendered to a webhook
// payload by payloadFor.
type Event struct {
	Kind      Kind
	Block     uint64
	Reason    string
	URL       string
	Since     time.Time
	Timestamp time.Time
	// Summary carries the pre-rendered body for topic broadcasts, which
	// have no single block/reason/url shape.
	Summary string
}
