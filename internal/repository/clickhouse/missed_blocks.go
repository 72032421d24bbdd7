package clickhouse

import (
	"context"
	"fmt"
	"time"
)

// MissedBlock is one row of the missed_blocks table.
type MissedBlock struct {
	BlockNumber uint64
	FailedAt    time.Time
	Stage       string
	Reason      string
}

// InsertMissedBlock inserts a missed_blocks row. Returns ErrDuplicate if
// block_number already has a row.
func (r *Repository) InsertMissedBlock(ctx context.Context, b MissedBlock) error {
	start := time.Now()
	var err error
	defer func() {
		r.metrics.Observe("insert_missed_block", err, start)
	}()

	exists, err := r.blockExists(ctx, "missed_blocks", b.BlockNumber)
	if err != nil {
		return fmt.Errorf("check existing missed block: %w", err)
	}
	if exists {
		err = ErrDuplicate
		return err
	}

	const query = `
INSERT INTO missed_blocks (
	block_number,
	failed_at,
	stage,
	reason,
	created_at,
	updated_at
) VALUES`

	batch, err := r.conn.PrepareBatch(ctx, query)
	if err != nil {
		return fmt.Errorf("prepare missed block batch: %w", err)
	}

	now := time.Now()
	if err = batch.Append(b.BlockNumber, b.FailedAt, b.Stage, b.Reason, now, now); err != nil {
		return fmt.Errorf("append missed block: %w", err)
	}

	if err = batch.Send(); err != nil {
		return fmt.Errorf("insert missed block: %w", err)
	}
	return nil
}

// ListMissedBlocks returns up to limit rows ordered most-recent-first by
// failed_at.
func (r *Repository) ListMissedBlocks(ctx context.Context, limit uint64) ([]MissedBlock, error) {
	start := time.Now()
	var err error
	defer func() {
		r.metrics.Observe("list_missed_blocks", err, start)
	}()

	const query = `
SELECT block_number, failed_at, stage, reason
FROM missed_blocks
ORDER BY failed_at DESC
LIMIT ?`

	rows, err := r.conn.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query missed blocks: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close rows: %w", closeErr)
		}
	}()

	var out []MissedBlock
	for rows.Next() {
		var b MissedBlock
		if err = rows.Scan(&b.BlockNumber, &b.FailedAt, &b.Stage, &b.Reason); err != nil {
			return nil, fmt.Errorf("scan missed block: %w", err)
		}
		out = append(out, b)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate missed blocks: %w", err)
	}

	return out, nil
}

// CountMissedBlocks returns the total number of missed_blocks rows.
func (r *Repository) CountMissedBlocks(ctx context.Context) (uint64, error) {
	start := time.Now()
	var err error
	defer func() {
		r.metrics.Observe("count_missed_blocks", err, start)
	}()

	return r.countRows(ctx, "missed_blocks")
}
