package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethproofs/ethproofs-prover/internal/ethproofs"
	"github.com/ethproofs/ethproofs-prover/internal/repository/clickhouse"
)

// ProvedLedger is the durable, capped, most-recent-first store of
// successfully proved blocks (C5).
type ProvedLedger struct {
	mu          sync.RWMutex
	repo        ProvedRepository
	broadcaster Broadcaster
	records     []ethproofs.ProvedRecord
	count       uint64
}

// NewProvedLedger loads the full count and the most recent Cap records
// from repo, so restarts resume the same windowed view (spec.md §9).
func NewProvedLedger(ctx context.Context, repo ProvedRepository, broadcaster Broadcaster) (*ProvedLedger, error) {
	if broadcaster == nil {
		broadcaster = noopBroadcaster{}
	}

	count, err := repo.CountProvedBlocks(ctx)
	if err != nil {
		return nil, fmt.Errorf("count proved blocks: %w", err)
	}

	rows, err := repo.ListProvedBlocks(ctx, Cap)
	if err != nil {
		return nil, fmt.Errorf("list proved blocks: %w", err)
	}

	records := make([]ethproofs.ProvedRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, ethproofs.ProvedRecord{
			Block:           ethproofs.BlockID(row.BlockNumber),
			ProvedAt:        row.ProvedAt,
			ProvingSeconds:  row.ProvingDurationSeconds,
			InputGenSeconds: row.InputGenerationDurationSeconds,
		})
	}

	return &ProvedLedger{
		repo:        repo,
		broadcaster: broadcaster,
		records:     records,
		count:       count,
	}, nil
}

// Add durably inserts record and, on success, prepends it to the
// in-memory window (trimmed to Cap) and broadcasts the update.
func (l *ProvedLedger) Add(ctx context.Context, record ethproofs.ProvedRecord) (AddResult, error) {
	err := l.repo.InsertProvedBlock(ctx, ProvedRow{
		BlockNumber:                    uint64(record.Block),
		ProvedAt:                       record.ProvedAt,
		ProvingDurationSeconds:         record.ProvingSeconds,
		InputGenerationDurationSeconds: record.InputGenSeconds,
	})
	if err != nil {
		if err == clickhouse.ErrDuplicate {
			return Duplicate, nil
		}
		return Failed, err
	}

	l.mu.Lock()
	l.records = append([]ethproofs.ProvedRecord{record}, l.records...)
	if len(l.records) > Cap {
		l.records = l.records[:Cap]
	}
	l.count++
	snapshot := append([]ethproofs.ProvedRecord(nil), l.records...)
	l.mu.Unlock()

	l.broadcaster.ProvedBlocksUpdated(snapshot)
	return Ok, nil
}

// List returns the in-memory most-recent-first window (at most Cap entries).
func (l *ProvedLedger) List() []ethproofs.ProvedRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]ethproofs.ProvedRecord(nil), l.records...)
}

// Count returns the total number of proved blocks ever recorded, not
// just the in-memory window.
func (l *ProvedLedger) Count() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.count
}

// Contains reports whether block is within the in-memory window. A
// block that aged out of the Cap window returns false even though it
// remains durably recorded (spec.md §8 scenario 6).
func (l *ProvedLedger) Contains(block ethproofs.BlockID) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, r := range l.records {
		if r.Block == block {
			return true
		}
	}
	return false
}
