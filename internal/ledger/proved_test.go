package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethproofs/ethproofs-prover/internal/ethproofs"
	"github.com/ethproofs/ethproofs-prover/internal/repository/clickhouse"
)

type fakeProvedRepo struct {
	rows  []ProvedRow
	seen  map[uint64]bool
	count uint64
}

func newFakeProvedRepo(rows []ProvedRow) *fakeProvedRepo {
	seen := make(map[uint64]bool, len(rows))
	for _, r := range rows {
		seen[r.BlockNumber] = true
	}
	return &fakeProvedRepo{rows: rows, seen: seen, count: uint64(len(rows))}
}

func (f *fakeProvedRepo) InsertProvedBlock(_ context.Context, b ProvedRow) error {
	if f.seen[b.BlockNumber] {
		return clickhouse.ErrDuplicate
	}
	f.seen[b.BlockNumber] = true
	f.count++
	f.rows = append([]ProvedRow{b}, f.rows...)
	return nil
}

func (f *fakeProvedRepo) ListProvedBlocks(_ context.Context, limit uint64) ([]ProvedRow, error) {
	if uint64(len(f.rows)) < limit {
		return f.rows, nil
	}
	return f.rows[:limit], nil
}

func (f *fakeProvedRepo) CountProvedBlocks(context.Context) (uint64, error) {
	return f.count, nil
}

type fakeBroadcaster struct {
	provedCalls [][]ethproofs.ProvedRecord
	missedCalls [][]ethproofs.MissedRecord
}

func (f *fakeBroadcaster) ProvedBlocksUpdated(records []ethproofs.ProvedRecord) {
	f.provedCalls = append(f.provedCalls, records)
}

func (f *fakeBroadcaster) MissedBlocksUpdated(records []ethproofs.MissedRecord) {
	f.missedCalls = append(f.missedCalls, records)
}

func TestProvedLedger_AddListCount(t *testing.T) {
	repo := newFakeProvedRepo(nil)
	broadcaster := &fakeBroadcaster{}
	l, err := NewProvedLedger(context.Background(), repo, broadcaster)
	require.NoError(t, err)

	result, err := l.Add(context.Background(), ethproofs.ProvedRecord{
		Block:    ethproofs.BlockID(21500100),
		ProvedAt: time.Now(),
	})
	require.NoError(t, err)
	assert.Equal(t, Ok, result)
	assert.Equal(t, uint64(1), l.Count())
	assert.True(t, l.Contains(ethproofs.BlockID(21500100)))
	require.Len(t, broadcaster.provedCalls, 1)
}

func TestProvedLedger_DuplicateAddDoesNotIncreaseCount(t *testing.T) {
	repo := newFakeProvedRepo(nil)
	l, err := NewProvedLedger(context.Background(), repo, nil)
	require.NoError(t, err)

	record := ethproofs.ProvedRecord{Block: ethproofs.BlockID(100), ProvedAt: time.Now()}
	result, err := l.Add(context.Background(), record)
	require.NoError(t, err)
	assert.Equal(t, Ok, result)

	result, err = l.Add(context.Background(), record)
	require.NoError(t, err)
	assert.Equal(t, Duplicate, result)
	assert.Equal(t, uint64(1), l.Count())
}

func TestProvedLedger_CapAndAging(t *testing.T) {
	rows := make([]ProvedRow, 0, 105)
	base := time.Now()
	for i := uint64(105); i >= 1; i-- {
		rows = append(rows, ProvedRow{BlockNumber: i, ProvedAt: base.Add(time.Duration(i) * time.Second)})
	}
	repo := newFakeProvedRepo(rows)
	l, err := NewProvedLedger(context.Background(), repo, nil)
	require.NoError(t, err)

	assert.Equal(t, uint64(105), l.Count())
	assert.Len(t, l.List(), 100)
	assert.False(t, l.Contains(ethproofs.BlockID(5)))
	assert.True(t, l.Contains(ethproofs.BlockID(105)))
}

func TestProvedLedger_RepoErrorPropagates(t *testing.T) {
	repo := &erroringProvedRepo{err: errors.New("connection refused")}
	l, err := NewProvedLedger(context.Background(), repo, nil)
	require.NoError(t, err)

	result, err := l.Add(context.Background(), ethproofs.ProvedRecord{Block: 1})
	assert.Equal(t, Failed, result)
	assert.ErrorIs(t, err, repo.err)
}

type erroringProvedRepo struct{ err error }

func (e *erroringProvedRepo) InsertProvedBlock(context.Context, ProvedRow) error { return e.err }
func (e *erroringProvedRepo) ListProvedBlocks(context.Context, uint64) ([]ProvedRow, error) {
	return nil, nil
}
func (e *erroringProvedRepo) CountProvedBlocks(context.Context) (uint64, error) { return 0, nil }
