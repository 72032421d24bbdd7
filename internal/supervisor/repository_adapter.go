package supervisor

import (
	"context"

	"github.com/ethproofs/ethproofs-prover/internal/ledger"
	"github.com/ethproofs/ethproofs-prover/internal/repository/clickhouse"
)

// repositoryAdapter implements ledger.ProvedRepository and
// ledger.MissedRepository over *clickhouse.Repository, translating
// between the ledger package's row types and the repository's own
// (field-identical but distinct) row types.
type repositoryAdapter struct {
	repo *clickhouse.Repository
}

func (a repositoryAdapter) InsertProvedBlock(ctx context.Context, b ledger.ProvedRow) error {
	return a.repo.InsertProvedBlock(ctx, clickhouse.ProvedBlock{
		BlockNumber:                    b.BlockNumber,
		ProvedAt:                       b.ProvedAt,
		ProvingDurationSeconds:         b.ProvingDurationSeconds,
		InputGenerationDurationSeconds: b.InputGenerationDurationSeconds,
	})
}

func (a repositoryAdapter) ListProvedBlocks(ctx context.Context, limit uint64) ([]ledger.ProvedRow, error) {
	rows, err := a.repo.ListProvedBlocks(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]ledger.ProvedRow, 0, len(rows))
	for _, r := range rows {
		out = append(out, ledger.ProvedRow{
			BlockNumber:                    r.BlockNumber,
			ProvedAt:                       r.ProvedAt,
			ProvingDurationSeconds:         r.ProvingDurationSeconds,
			InputGenerationDurationSeconds: r.InputGenerationDurationSeconds,
		})
	}
	return out, nil
}

func (a repositoryAdapter) CountProvedBlocks(ctx context.Context) (uint64, error) {
	return a.repo.CountProvedBlocks(ctx)
}

func (a repositoryAdapter) InsertMissedBlock(ctx context.Context, b ledger.MissedRow) error {
	return a.repo.InsertMissedBlock(ctx, clickhouse.MissedBlock{
		BlockNumber: b.BlockNumber,
		FailedAt:    b.FailedAt,
		Stage:       b.Stage,
		Reason:      b.Reason,
	})
}

func (a repositoryAdapter) ListMissedBlocks(ctx context.Context, limit uint64) ([]ledger.MissedRow, error) {
	rows, err := a.repo.ListMissedBlocks(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]ledger.MissedRow, 0, len(rows))
	for _, r := range rows {
		out = append(out, ledger.MissedRow{
			BlockNumber: r.BlockNumber,
			FailedAt:    r.FailedAt,
			Stage:       r.Stage,
			Reason:      r.Reason,
		})
	}
	return out, nil
}

func (a repositoryAdapter) CountMissedBlocks(ctx context.Context) (uint64, error) {
	return a.repo.CountMissedBlocks(ctx)
}
