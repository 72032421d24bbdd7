// Package ledger implements the durable, capped, most-recent-first
// ProvedLedger and MissedLedger actors (C5/C6). Each wraps a ClickHouse-
// backed table through a narrow repository interface and keeps an
// in-memory window of the most recent Cap records for fast reads.
package ledger

import (
	"context"
	"time"

	"github.com/ethproofs/ethproofs-prover/internal/ethproofs"
)

//go:generate mockgen -source=$GOFILE -destination=mocks_test.go -package=$GOPACKAGE

// Cap is the size of the in-memory most-recent-first window (spec.md §4.5/§4.6).
const Cap = 100

// AddResult reports the outcome of an Add call.
type AddResult int

const (
	// Ok means the record was durably inserted and is now in the ledger.
	Ok AddResult = iota
	// Duplicate means block already has a record; nothing changed.
	Duplicate
	// Failed means the durable insert itself errored.
	Failed
)

func (r AddResult) String() string {
	switch r {
	case Ok:
		return "Ok"
	case Duplicate:
		return "Duplicate"
	case Failed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// ProvedRepository is the durable backing store for ProvedLedger.
type ProvedRepository interface {
	InsertProvedBlock(ctx context.Context, b ProvedRow) error
	ListProvedBlocks(ctx context.Context, limit uint64) ([]ProvedRow, error)
	CountProvedBlocks(ctx context.Context) (uint64, error)
}

// MissedRepository is the durable backing store for MissedLedger.
type MissedRepository interface {
	InsertMissedBlock(ctx context.Context, b MissedRow) error
	ListMissedBlocks(ctx context.Context, limit uint64) ([]MissedRow, error)
	CountMissedBlocks(ctx context.Context) (uint64, error)
}

// ProvedRow and MissedRow mirror internal/repository/clickhouse's row
// shapes so the ProvedRepository/MissedRepository interfaces stay
// mockable independent of the concrete ClickHouse types.
type ProvedRow struct {
	BlockNumber                    uint64
	ProvedAt                       time.Time
	ProvingDurationSeconds         *uint32
	InputGenerationDurationSeconds *uint32
}

type MissedRow struct {
	BlockNumber uint64
	FailedAt    time.Time
	Stage       string
	Reason      string
}

// Broadcaster publishes ledger-updated topic events to the
// NotificationSink's realtime fan-out (§4.11). Broadcast failures are
// swallowed by the implementation; ledgers never treat them as errors.
type Broadcaster interface {
	ProvedBlocksUpdated(records []ethproofs.ProvedRecord)
	MissedBlocksUpdated(records []ethproofs.MissedRecord)
}

type noopBroadcaster struct{}

func (noopBroadcaster) ProvedBlocksUpdated([]ethproofs.ProvedRecord) {}
func (noopBroadcaster) MissedBlocksUpdated([]ethproofs.MissedRecord) {}
