package clickhouse

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrDuplicate is returned when a block_number already has a row in the
// target table (spec.md I4/I5: a block reaches at most one terminal
// ledger, and re-adding the same block is rejected, not overwritten).
var ErrDuplicate = errors.New("duplicate block")

// ProvedBlock is one row of the proved_blocks table.
type ProvedBlock struct {
	BlockNumber                    uint64
	ProvedAt                       time.Time
	ProvingDurationSeconds         *uint32
	InputGenerationDurationSeconds *uint32
}

// InsertProvedBlock inserts a proved_blocks row. Returns ErrDuplicate if
// block_number already has a row.
func (r *Repository) InsertProvedBlock(ctx context.Context, b ProvedBlock) error {
	start := time.Now()
	var err error
	defer func() {
		r.metrics.Observe("insert_proved_block", err, start)
	}()

	exists, err := r.blockExists(ctx, "proved_blocks", b.BlockNumber)
	if err != nil {
		return fmt.Errorf("check existing proved block: %w", err)
	}
	if exists {
		err = ErrDuplicate
		return err
	}

	const query = `
INSERT INTO proved_blocks (
	block_number,
	proved_at,
	proving_duration_seconds,
	input_generation_duration_seconds,
	created_at,
	updated_at
) VALUES`

	batch, err := r.conn.PrepareBatch(ctx, query)
	if err != nil {
		return fmt.Errorf("prepare proved block batch: %w", err)
	}

	now := time.Now()
	if err = batch.Append(
		b.BlockNumber,
		b.ProvedAt,
		derefUint32(b.ProvingDurationSeconds),
		derefUint32(b.InputGenerationDurationSeconds),
		now,
		now,
	); err != nil {
		return fmt.Errorf("append proved block: %w", err)
	}

	if err = batch.Send(); err != nil {
		return fmt.Errorf("insert proved block: %w", err)
	}
	return nil
}

// ListProvedBlocks returns up to limit rows ordered most-recent-first by
// proved_at.
func (r *Repository) ListProvedBlocks(ctx context.Context, limit uint64) ([]ProvedBlock, error) {
	start := time.Now()
	var err error
	defer func() {
		r.metrics.Observe("list_proved_blocks", err, start)
	}()

	const query = `
SELECT block_number, proved_at, proving_duration_seconds, input_generation_duration_seconds
FROM proved_blocks
ORDER BY proved_at DESC
LIMIT ?`

	rows, err := r.conn.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query proved blocks: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close rows: %w", closeErr)
		}
	}()

	var out []ProvedBlock
	for rows.Next() {
		var (
			b               ProvedBlock
			provingSeconds  uint32
			inputGenSeconds uint32
		)
		if err = rows.Scan(&b.BlockNumber, &b.ProvedAt, &provingSeconds, &inputGenSeconds); err != nil {
			return nil, fmt.Errorf("scan proved block: %w", err)
		}
		if provingSeconds != 0 {
			b.ProvingDurationSeconds = &provingSeconds
		}
		if inputGenSeconds != 0 {
			b.InputGenerationDurationSeconds = &inputGenSeconds
		}
		out = append(out, b)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate proved blocks: %w", err)
	}

	return out, nil
}

// CountProvedBlocks returns the total number of proved_blocks rows.
func (r *Repository) CountProvedBlocks(ctx context.Context) (uint64, error) {
	start := time.Now()
	var err error
	defer func() {
		r.metrics.Observe("count_proved_blocks", err, start)
	}()

	return r.countRows(ctx, "proved_blocks")
}

func (r *Repository) blockExists(ctx context.Context, table string, blockNumber uint64) (bool, error) {
	query := fmt.Sprintf(`SELECT count() FROM %s WHERE block_number = ?`, table)
	rows, err := r.conn.Query(ctx, query, blockNumber)
	if err != nil {
		return false, fmt.Errorf("query block existence: %w", err)
	}
	defer rows.Close()

	var count uint64
	if !rows.Next() {
		return false, fmt.Errorf("block existence not found")
	}
	if err := rows.Scan(&count); err != nil {
		return false, fmt.Errorf("scan block existence: %w", err)
	}
	return count > 0, nil
}

func (r *Repository) countRows(ctx context.Context, table string) (uint64, error) {
	query := fmt.Sprintf(`SELECT count() FROM %s`, table)
	rows, err := r.conn.Query(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("query count: %w", err)
	}
	defer rows.Close()

	var count uint64
	if !rows.Next() {
		return 0, fmt.Errorf("count not found")
	}
	if err := rows.Scan(&count); err != nil {
		return 0, fmt.Errorf("scan count: %w", err)
	}
	return count, nil
}

func derefUint32(v *uint32) uint32 {
	if v == nil {
		return 0
	}
	return *v
}
