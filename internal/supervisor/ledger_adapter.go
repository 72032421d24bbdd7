package supervisor

import (
	"context"

	"github.com/ethproofs/ethproofs-prover/internal/ethproofs"
	"github.com/ethproofs/ethproofs-prover/internal/ledger"
)

// provedLedgerAdapter narrows *ledger.ProvedLedger's Add(ctx, record)
// (ledger.AddResult, error) down to the plain Add(ctx, record) error the
// Prover's ProvedLedger interface wants.
type provedLedgerAdapter struct {
	ledger *ledger.ProvedLedger
}

func (a provedLedgerAdapter) Add(ctx context.Context, record ethproofs.ProvedRecord) error {
	_, err := a.ledger.Add(ctx, record)
	return err
}

// missedLedgerAdapter is the same narrowing for *ledger.MissedLedger.
type missedLedgerAdapter struct {
	ledger *ledger.MissedLedger
}

func (a missedLedgerAdapter) Add(ctx context.Context, record ethproofs.MissedRecord) error {
	_, err := a.ledger.Add(ctx, record)
	return err
}
