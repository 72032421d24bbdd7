// Package prover implements the Prover stage (C8): a single-flight actor
// that serially drives the cargo-zisk prove subprocess, one block at a
// time, and reads back its output artifacts.
package prover

import (
	"context"
	"time"

	"github.com/ethproofs/ethproofs-prover/internal/ethproofs"
)

//go:generate mockgen -source=$GOFILE -destination=mocks_test.go -package=$GOPACKAGE

// EthProofsApi is the subset of internal/ethproofsapi.Client this stage
// calls. Every call here is non-fatal on failure (spec.md §4.8).
type EthProofsApi interface {
	Queued(ctx context.Context, block ethproofs.BlockID) error
	Proving(ctx context.Context, block ethproofs.BlockID) error
	Proved(ctx context.Context, block ethproofs.BlockID, provingTimeMS uint64, cycles *uint64, proofB64 string, verifierID *string) error
}

// ProvedLedger is the subset of internal/ledger.ProvedLedger this stage
// writes to on success. internal/supervisor wires the real
// *ledger.ProvedLedger through a thin adapter that drops the AddResult
// this stage has no use for.
type ProvedLedger interface {
	Add(ctx context.Context, record ethproofs.ProvedRecord) error
}

// MissedLedger is the subset of internal/ledger.MissedLedger this stage
// writes to on failure, wired the same way as ProvedLedger above.
type MissedLedger interface {
	Add(ctx context.Context, record ethproofs.MissedRecord) error
}

// Notifier receives proof lifecycle failure/success events for the
// webhook fan-out.
type Notifier interface {
	ProofGenerationFailed(block ethproofs.BlockID, reason string)
	ProofDataFailed(block ethproofs.BlockID, reason string)
	ProofSubmitted(block ethproofs.BlockID)
}

// StatusPublisher receives prover_status topic broadcasts for the
// realtime dashboard (spec.md §4.8 step 6).
type StatusPublisher interface {
	ProverStatusUpdated(status Status)
}

// Status is a point-in-time snapshot of the Prover's state, published on
// every state transition.
type Status struct {
	State ProverState
	Block ethproofs.BlockID
}

// ProverState names the Prover's coarse state for StatusSurface/dashboard
// consumers.
type ProverState string

const (
	StateIdle    ProverState = "idle"
	StateProving ProverState = "proving"
)

// Runner launches the proving subprocess for a block. Production wiring
// uses the real os/exec-backed implementation in subprocess.go; tests
// substitute a fake.
type Runner interface {
	// Run starts the subprocess and blocks until it exits normally or is
	// observed to terminate abnormally. onOutput is called for each line
	// of stdout/stderr as it arrives, for debug logging.
	Run(block ethproofs.BlockID, input ethproofs.InputArtifact, onOutput func(line string)) RunResult
}

// Metrics is the subset of internal/metrics.Prover this stage reports
// to. Outcome is one of "success", "failed", "crashed".
type Metrics interface {
	ObserveRun(outcome string, started time.Time, crashed bool)
	SetQueueDepth(n int)
}

// RunResult is the outcome of a single subprocess run.
type RunResult struct {
	// Crashed is true when the subprocess terminated abnormally (killed
	// by a signal, failed to launch, etc.) without a clean exit status.
	Crashed bool
	// ExitStatus is the process's exit code when Crashed is false.
	ExitStatus int
	// OutputDir is "output/<block>" once created, regardless of outcome.
	OutputDir string
	// Err carries the cause of a crash: a launch-time failure (e.g.
	// cargo-zisk not found) or the Wait error of an abnormal exit.
	// CargoZiskRunner sets Crashed whenever it sets Err; the Prover reads
	// Err only when Crashed is true.
	Err error
}
