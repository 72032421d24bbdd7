package prover

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/ethproofs/ethproofs-prover/internal/ethproofs"
)

// queueItem is a pending prove request awaiting promotion.
type queueItem struct {
	block           ethproofs.BlockID
	input           ethproofs.InputArtifact
	inputGenSeconds *uint32
}

type command interface{ isCommand() }

type proveCmd struct {
	item queueItem
}

func (proveCmd) isCommand() {}

type runResultCmd struct {
	gen     uint64
	block   ethproofs.BlockID
	started time.Time
	result  RunResult
}

func (runResultCmd) isCommand() {}

// Prover is the single-flight Prover actor (C8).
type Prover struct {
	api      EthProofsApi
	proved   ProvedLedger
	missed   MissedLedger
	notifier Notifier
	status   StatusPublisher
	runner   Runner
	metrics  Metrics
	log      *zap.Logger
	now      func() time.Time

	cmds chan command
	wg   sync.WaitGroup

	running atomic.Bool

	// snapshotMu guards the fields read by ProverSnapshot (internal/status's
	// probe), kept separate from the actor's own command-loop-only state so
	// an HTTP health request never contends with the command channel.
	snapshotMu sync.RWMutex
	snapshot   snapshotState

	// actor-owned state, mutated only inside the command loop goroutine.
	idle       bool
	current    queueItem
	currentGen uint64
	queue      []queueItem
	queuedSet  map[ethproofs.BlockID]bool
}

type snapshotState struct {
	proving      bool
	block        ethproofs.BlockID
	provingSince time.Time
}

// Option configures a Prover.
type Option func(*Prover)

// WithClock overrides the time source, for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(p *Prover) { p.now = now }
}

// WithMetrics overrides the metrics sink (default: no-op).
func WithMetrics(m Metrics) Option {
	return func(p *Prover) { p.metrics = m }
}

type noopMetrics struct{}

func (noopMetrics) ObserveRun(string, time.Time, bool) {}
func (noopMetrics) SetQueueDepth(int)                  {}

// New constructs a Prover. The actor is idle until Run is called.
func New(api EthProofsApi, proved ProvedLedger, missed MissedLedger, notifier Notifier, status StatusPublisher, runner Runner, log *zap.Logger, opts ...Option) *Prover {
	p := &Prover{
		api:       api,
		proved:    proved,
		missed:    missed,
		notifier:  notifier,
		status:    status,
		runner:    runner,
		metrics:   noopMetrics{},
		log:       log.Named("prover"),
		now:       time.Now,
		cmds:      make(chan command, 256),
		idle:      true,
		queuedSet: make(map[ethproofs.BlockID]bool),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run starts the command loop. It returns once ctx is canceled and all
// in-flight work has reported back.
func (p *Prover) Run(ctx context.Context) {
	p.running.Store(true)
	defer p.running.Store(false)

	p.wg.Add(1)
	go p.commandLoop(ctx)
	p.wg.Wait()
}

// ProverSnapshot implements internal/status's ProverProbe. It tolerates
// being called before Run or after the actor has stopped, reporting down.
func (p *Prover) ProverSnapshot() (up bool, proving bool, provingDurationSeconds float64) {
	if !p.running.Load() {
		return false, false, 0
	}

	p.snapshotMu.RLock()
	defer p.snapshotMu.RUnlock()
	if !p.snapshot.proving {
		return true, false, 0
	}
	return true, true, p.now().Sub(p.snapshot.provingSince).Seconds()
}

// Prove requests proving of block (spec.md §4.8's enqueue operation).
// Implements the generator.Prover interface.
func (p *Prover) Prove(block ethproofs.BlockID, input ethproofs.InputArtifact, inputGenSeconds *uint32) {
	select {
	case p.cmds <- proveCmd{item: queueItem{block: block, input: input, inputGenSeconds: inputGenSeconds}}:
	default:
		p.log.Warn("command queue full, dropping prove request", zap.Uint64("block", uint64(block)))
	}
}

func (p *Prover) commandLoop(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-p.cmds:
			p.handle(ctx, cmd)
		}
	}
}

func (p *Prover) handle(ctx context.Context, cmd command) {
	switch c := cmd.(type) {
	case proveCmd:
		p.handleProve(ctx, c.item)
	case runResultCmd:
		p.handleRunResult(ctx, c)
	}
}

func (p *Prover) handleProve(ctx context.Context, item queueItem) {
	if p.queuedSet[item.block] {
		p.log.Debug("block already queued, skipping", zap.Uint64("block", uint64(item.block)))
		return
	}
	if !p.idle && p.current.block == item.block {
		p.log.Debug("block already proving, skipping", zap.Uint64("block", uint64(item.block)))
		return
	}

	if err := p.api.Queued(ctx, item.block); err != nil {
		p.log.Warn("ethproofs queued notification failed", zap.Uint64("block", uint64(item.block)), zap.Error(err))
	}

	p.queue = append(p.queue, item)
	p.queuedSet[item.block] = true
	p.metrics.SetQueueDepth(len(p.queue))
	if p.idle {
		p.promote(ctx)
	}
}

func (p *Prover) promote(ctx context.Context) {
	if len(p.queue) == 0 {
		p.idle = true
		p.publishStatus(StateIdle, 0)
		return
	}

	item := p.queue[0]
	p.queue = p.queue[1:]
	delete(p.queuedSet, item.block)
	p.metrics.SetQueueDepth(len(p.queue))

	p.idle = false
	p.current = item
	p.currentGen++
	gen := p.currentGen

	if err := p.api.Proving(ctx, item.block); err != nil {
		p.log.Warn("ethproofs proving notification failed", zap.Uint64("block", uint64(item.block)), zap.Error(err))
	}
	p.publishStatus(StateProving, item.block)

	p.wg.Add(1)
	go p.runSubprocess(ctx, gen, item)
}

func (p *Prover) publishStatus(state ProverState, block ethproofs.BlockID) {
	p.snapshotMu.Lock()
	if state == StateProving {
		p.snapshot = snapshotState{proving: true, block: block, provingSince: p.now()}
	} else {
		p.snapshot = snapshotState{}
	}
	p.snapshotMu.Unlock()

	if p.status == nil {
		return
	}
	p.status.ProverStatusUpdated(Status{State: state, Block: block})
}

func (p *Prover) runSubprocess(ctx context.Context, gen uint64, item queueItem) {
	defer p.wg.Done()

	started := p.now()
	result := p.runner.Run(item.block, item.input, func(line string) {
		p.log.Debug("cargo-zisk output", zap.Uint64("block", uint64(item.block)), zap.String("line", line))
	})

	select {
	case p.cmds <- runResultCmd{gen: gen, block: item.block, started: started, result: result}:
	case <-ctx.Done():
	}
}

func (p *Prover) handleRunResult(ctx context.Context, c runResultCmd) {
	if c.gen != p.currentGen {
		p.log.Debug("stray subprocess result ignored", zap.Uint64("block", uint64(c.block)))
		return
	}

	item := p.current

	switch {
	case c.result.Crashed:
		reason := fmt.Sprintf("Prover crashed: %v", c.result.Err)
		if err := p.missed.Add(ctx, ethproofs.MissedRecord{
			Block:    item.block,
			FailedAt: p.now(),
			Stage:    ethproofs.StageProving,
			Reason:   reason,
		}); err != nil {
			p.log.Error("failed to record missed block", zap.Uint64("block", uint64(item.block)), zap.Error(err))
		}
		p.notifier.ProofGenerationFailed(item.block, reason)
		p.metrics.ObserveRun("crashed", c.started, true)

	default:
		p.finishNormalExit(ctx, item, c.result, c.started)
	}

	p.idle = true
	p.promote(ctx)
}

func (p *Prover) finishNormalExit(ctx context.Context, item queueItem, result RunResult, started time.Time) {
	parsed, err := readArtifacts(result.OutputDir)
	if err != nil {
		reason := fmt.Sprintf("Proving failed (exit_status:%d): %v", result.ExitStatus, err)
		if missedErr := p.missed.Add(ctx, ethproofs.MissedRecord{
			Block:    item.block,
			FailedAt: p.now(),
			Stage:    ethproofs.StageProving,
			Reason:   reason,
		}); missedErr != nil {
			p.log.Error("failed to record missed block", zap.Uint64("block", uint64(item.block)), zap.Error(missedErr))
		}
		p.notifier.ProofDataFailed(item.block, reason)
		p.metrics.ObserveRun("failed", started, false)
		return
	}

	verifierID := parsed.VerifierID
	if err := p.api.Proved(ctx, item.block, parsed.TimeMS, &parsed.Cycles, parsed.ProofB64, &verifierID); err != nil {
		p.log.Warn("ethproofs proved notification failed", zap.Uint64("block", uint64(item.block)), zap.Error(err))
	}

	provingSeconds := uint32(parsed.TimeMS / 1000)
	if err := p.proved.Add(ctx, ethproofs.ProvedRecord{
		Block:           item.block,
		ProvedAt:        p.now(),
		ProvingSeconds:  &provingSeconds,
		InputGenSeconds: item.inputGenSeconds,
	}); err != nil {
		p.log.Error("failed to record proved block", zap.Uint64("block", uint64(item.block)), zap.Error(err))
	}

	p.notifier.ProofSubmitted(item.block)
	p.metrics.ObserveRun("success", started, false)
}
