package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethproofs/ethproofs-prover/internal/ethproofs"
	"github.com/ethproofs/ethproofs-prover/internal/repository/clickhouse"
)

// MissedLedger is the durable, capped, most-recent-first store of
// failed blocks (C6). Identical contract to ProvedLedger.
type MissedLedger struct {
	mu          sync.RWMutex
	repo        MissedRepository
	broadcaster Broadcaster
	records     []ethproofs.MissedRecord
	count       uint64
}

// NewMissedLedger loads the full count and the most recent Cap records
// from repo.
func NewMissedLedger(ctx context.Context, repo MissedRepository, broadcaster Broadcaster) (*MissedLedger, error) {
	if broadcaster == nil {
		broadcaster = noopBroadcaster{}
	}

	count, err := repo.CountMissedBlocks(ctx)
	if err != nil {
		return nil, fmt.Errorf("count missed blocks: %w", err)
	}

	rows, err := repo.ListMissedBlocks(ctx, Cap)
	if err != nil {
		return nil, fmt.Errorf("list missed blocks: %w", err)
	}

	records := make([]ethproofs.MissedRecord, 0, len(rows))
	for _, row := range rows {
		stage := ethproofs.Stage(row.Stage)
		if stage == "" {
			stage = ethproofs.StageUnknown
		}
		records = append(records, ethproofs.MissedRecord{
			Block:    ethproofs.BlockID(row.BlockNumber),
			FailedAt: row.FailedAt,
			Stage:    stage,
			Reason:   row.Reason,
		})
	}

	return &MissedLedger{
		repo:        repo,
		broadcaster: broadcaster,
		records:     records,
		count:       count,
	}, nil
}

// Add durably inserts record, defaulting sparse metadata per spec.md §4.6:
// stage defaults to Unknown, reason to DefaultMissedReason, failed_at to now.
func (l *MissedLedger) Add(ctx context.Context, record ethproofs.MissedRecord) (AddResult, error) {
	if record.Stage == "" {
		record.Stage = ethproofs.StageUnknown
	}
	if record.Reason == "" {
		record.Reason = ethproofs.DefaultMissedReason
	}
	if record.FailedAt.IsZero() {
		record.FailedAt = time.Now()
	}

	err := l.repo.InsertMissedBlock(ctx, MissedRow{
		BlockNumber: uint64(record.Block),
		FailedAt:    record.FailedAt,
		Stage:       string(record.Stage),
		Reason:      record.Reason,
	})
	if err != nil {
		if err == clickhouse.ErrDuplicate {
			return Duplicate, nil
		}
		return Failed, err
	}

	l.mu.Lock()
	l.records = append([]ethproofs.MissedRecord{record}, l.records...)
	if len(l.records) > Cap {
		l.records = l.records[:Cap]
	}
	l.count++
	snapshot := append([]ethproofs.MissedRecord(nil), l.records...)
	l.mu.Unlock()

	l.broadcaster.MissedBlocksUpdated(snapshot)
	return Ok, nil
}

// List returns the in-memory most-recent-first window (at most Cap entries).
func (l *MissedLedger) List() []ethproofs.MissedRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]ethproofs.MissedRecord(nil), l.records...)
}

// Count returns the total number of missed blocks ever recorded.
func (l *MissedLedger) Count() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.count
}

// Contains reports whether block is within the in-memory window.
func (l *MissedLedger) Contains(block ethproofs.BlockID) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, r := range l.records {
		if r.Block == block {
			return true
		}
	}
	return false
}
