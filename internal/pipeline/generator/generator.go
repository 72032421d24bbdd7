package generator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/ethproofs/ethproofs-prover/internal/blockcache"
	"github.com/ethproofs/ethproofs-prover/internal/clock"
	"github.com/ethproofs/ethproofs-prover/internal/ethproofs"
)

// PollInterval is the fixed chain-head poll period (spec.md §4.7).
const PollInterval = 2000 * time.Millisecond

// secondsPerBlock is the rough mainnet block time used for the
// estimated-wait log on a non-target poll (spec.md §8 scenario 2).
const secondsPerBlock = 12

// generationError tags a failure by the pipeline step it occurred in, so
// the rendered reason string matches spec.md §4.7's `{step, reason}` shape.
type generationError struct {
	step   string
	reason string
}

func (e *generationError) Error() string { return fmt.Sprintf("%s: %s", e.step, e.reason) }

type command interface{ isCommand() }

type generateCmd struct{ block ethproofs.BlockID }

func (generateCmd) isCommand() {}

type pollCmd struct {
	block ethproofs.BlockID
	ts    int64
}

func (pollCmd) isCommand() {}

type workerResultCmd struct {
	gen     uint64
	block   ethproofs.BlockID
	started time.Time
	err     error
	crashed bool
}

func (workerResultCmd) isCommand() {}

// Generator is the InputGenerator actor (C7).
type Generator struct {
	rpc          EthRpc
	cache        BlockCache
	builder      InputBuilder
	prover       Prover
	missed       MissedLedger
	notifier     Notifier
	marker       Marker
	metrics      Metrics
	log          *zap.Logger
	now          func() time.Time
	pollInterval time.Duration

	cmds    chan command
	wg      sync.WaitGroup
	running atomic.Bool

	// actor-owned state, mutated only inside the command loop goroutine.
	idle         bool
	currentBlock ethproofs.BlockID
	currentGen   uint64
	queue        []ethproofs.BlockID
	queued       map[ethproofs.BlockID]bool
	processed    map[ethproofs.BlockID]bool
}

// Option configures a Generator.
type Option func(*Generator)

// WithClock overrides the time source, for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

// WithPollInterval overrides the poll period, for faster tests.
func WithPollInterval(d time.Duration) Option {
	return func(g *Generator) { g.pollInterval = d }
}

// WithMetrics overrides the metrics sink (default: no-op).
func WithMetrics(m Metrics) Option {
	return func(g *Generator) { g.metrics = m }
}

type noopMetrics struct{}

func (noopMetrics) ObserveRun(string, time.Time, bool) {}
func (noopMetrics) SetQueueDepth(int)                  {}

// New constructs a Generator. The actor is idle until Run is called.
func New(rpc EthRpc, cache BlockCache, builder InputBuilder, prover Prover, missed MissedLedger, notifier Notifier, marker Marker, log *zap.Logger, opts ...Option) *Generator {
	g := &Generator{
		rpc:          rpc,
		cache:        cache,
		builder:      builder,
		prover:       prover,
		missed:       missed,
		notifier:     notifier,
		marker:       marker,
		metrics:      noopMetrics{},
		log:          log.Named("generator"),
		now:          time.Now,
		pollInterval: PollInterval,
		cmds:         make(chan command, 256),
		idle:         true,
		queued:       make(map[ethproofs.BlockID]bool),
		processed:    make(map[ethproofs.BlockID]bool),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Run starts the command loop and the poll ticker. It returns once both
// goroutines have exited (on ctx cancellation).
func (g *Generator) Run(ctx context.Context) {
	g.running.Store(true)
	defer g.running.Store(false)

	g.wg.Add(2)
	go g.commandLoop(ctx)
	go g.pollLoop(ctx)
	g.wg.Wait()
}

// InputGeneratorUp implements internal/status's InputGeneratorProbe.
func (g *Generator) InputGeneratorUp() bool {
	return g.running.Load()
}

// TaskHostUp implements internal/status's TaskHostProbe. This actor's
// worker substrate is the per-promotion goroutine plus its recover()
// wrapper, not a separate subsystem, so its liveness is the actor's own.
func (g *Generator) TaskHostUp() bool {
	return g.running.Load()
}

// Generate requests generation of block directly, applying the same
// dedupe rules as the poller's acceptance path (spec.md §4.7: "client
// code may call generate(block) directly").
func (g *Generator) Generate(block ethproofs.BlockID) {
	select {
	case g.cmds <- generateCmd{block: block}:
	default:
		g.log.Warn("command queue full, dropping generate request", zap.Uint64("block", uint64(block)))
	}
}

func (g *Generator) pollLoop(ctx context.Context) {
	defer g.wg.Done()
	for {
		if ctx.Err() != nil {
			return
		}

		n, ts, err := g.rpc.LatestBlockInfo(ctx)
		if err != nil {
			g.log.Debug("latest block info failed", zap.Error(err))
		} else {
			select {
			case g.cmds <- pollCmd{block: ethproofs.BlockID(n), ts: ts}:
			case <-ctx.Done():
				return
			}
		}

		if err := clock.SleepWithContext(ctx, g.pollInterval); err != nil {
			return
		}
	}
}

func (g *Generator) commandLoop(ctx context.Context) {
	defer g.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-g.cmds:
			g.handle(ctx, cmd)
		}
	}
}

func (g *Generator) handle(ctx context.Context, cmd command) {
	switch c := cmd.(type) {
	case generateCmd:
		g.handleGenerate(ctx, c.block)
	case pollCmd:
		g.handlePoll(ctx, c.block, c.ts)
	case workerResultCmd:
		g.handleWorkerResult(ctx, c)
	}
}

func (g *Generator) handlePoll(ctx context.Context, block ethproofs.BlockID, ts int64) {
	if !block.IsTarget() {
		remainder := uint64(block) % 100
		wait := int64(100-remainder)*secondsPerBlock - (g.now().Unix() - ts)
		if wait < 0 {
			wait = 0
		}
		g.log.Debug("latest block is not a target", zap.Uint64("block", uint64(block)), zap.Int64("estimated_wait_seconds", wait))
		return
	}
	g.handleGenerate(ctx, block)
}

func (g *Generator) handleGenerate(ctx context.Context, block ethproofs.BlockID) {
	if g.processed[block] {
		g.log.Debug("block already processed, skipping", zap.Uint64("block", uint64(block)))
		return
	}
	if g.queued[block] {
		g.log.Debug("block already queued, skipping", zap.Uint64("block", uint64(block)))
		return
	}
	if !g.idle && g.currentBlock == block {
		g.log.Debug("block already generating, skipping", zap.Uint64("block", uint64(block)))
		return
	}
	if g.marker != nil && g.marker.Exists(block) {
		g.log.Debug("marker file exists, skipping", zap.Uint64("block", uint64(block)))
		return
	}

	g.queue = append(g.queue, block)
	g.queued[block] = true
	g.metrics.SetQueueDepth(len(g.queue))
	if g.idle {
		g.promote(ctx)
	}
}

func (g *Generator) promote(ctx context.Context) {
	if len(g.queue) == 0 {
		g.idle = true
		return
	}

	block := g.queue[0]
	g.queue = g.queue[1:]
	delete(g.queued, block)
	g.metrics.SetQueueDepth(len(g.queue))

	g.idle = false
	g.currentBlock = block
	g.currentGen++
	gen := g.currentGen

	g.wg.Add(1)
	go g.runWorker(ctx, gen, block)
}

func (g *Generator) handleWorkerResult(ctx context.Context, c workerResultCmd) {
	if c.gen != g.currentGen {
		g.log.Debug("stray worker result ignored", zap.Uint64("block", uint64(c.block)))
		return
	}

	switch {
	case c.crashed:
		g.log.Error("input generation worker crashed", zap.Uint64("block", uint64(c.block)))
		g.metrics.ObserveRun("crashed", c.started, true)
		// do NOT mark processed: allows a later re-request to retry (spec.md §4.7, P9).
	case c.err != nil:
		reason := c.err.Error()
		g.notifier.InputGenerationFailed(c.block, reason)
		if err := g.recordMissed(ctx, c.block, reason); err != nil {
			g.log.Error("failed to record missed block", zap.Uint64("block", uint64(c.block)), zap.Error(err))
		}
		g.processed[c.block] = true
		g.metrics.ObserveRun("failed", c.started, false)
	default:
		g.processed[c.block] = true
		g.metrics.ObserveRun("success", c.started, false)
	}

	g.idle = true
	g.promote(ctx)
}

func (g *Generator) recordMissed(ctx context.Context, block ethproofs.BlockID, reason string) error {
	return g.missed.Add(ctx, ethproofs.MissedRecord{
		Block:    block,
		FailedAt: g.now(),
		Stage:    ethproofs.StageInputGen,
		Reason:   reason,
	})
}

func (g *Generator) runWorker(ctx context.Context, gen uint64, block ethproofs.BlockID) {
	defer g.wg.Done()
	inputGenStarted := g.now()
	defer func() {
		if r := recover(); r != nil {
			g.log.Error("input generation worker panicked", zap.Uint64("block", uint64(block)), zap.Any("panic", r))
			select {
			case g.cmds <- workerResultCmd{gen: gen, block: block, started: inputGenStarted, crashed: true}:
			case <-ctx.Done():
			}
		}
	}()

	input, err := g.generate(ctx, block)

	var seconds *uint32
	if err == nil {
		elapsed := uint32(g.now().Sub(inputGenStarted).Seconds())
		seconds = &elapsed
		g.prover.Prove(block, input, seconds)
	}

	select {
	case g.cmds <- workerResultCmd{gen: gen, block: block, started: inputGenStarted, err: err}:
	case <-ctx.Done():
	}
}

func (g *Generator) generate(ctx context.Context, block ethproofs.BlockID) (ethproofs.InputArtifact, error) {
	blockJSON, err := g.rpc.BlockJSON(ctx, uint64(block))
	if err != nil {
		return "", &generationError{step: "rpc_get_block_by_number", reason: err.Error()}
	}

	meta, err := blockcache.ParseBlockJSON(blockJSON)
	if err != nil {
		return "", &generationError{step: "block_metadata", reason: err.Error()}
	}
	g.cache.Put(block, meta)

	witness, err := g.rpc.ExecutionWitness(ctx, uint64(block))
	if err != nil {
		return "", &generationError{step: "rpc_debug_execution_witness", reason: err.Error()}
	}

	input, err := g.builder.Build(blockJSON, witness)
	if err != nil {
		return "", &generationError{step: "input_generation", reason: err.Error()}
	}

	return input, nil
}
