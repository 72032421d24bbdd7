// Package supervisor wires C1-C11 together and owns their lifecycle
// (C9): ordered startup, and a rest-for-one restart policy over the
// Prover/InputGenerator/StatusSurface trio (spec.md §4.9/§9).
package supervisor

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ethproofs/ethproofs-prover/internal/blockcache"
	"github.com/ethproofs/ethproofs-prover/internal/config"
	"github.com/ethproofs/ethproofs-prover/internal/ethproofsapi"
	"github.com/ethproofs/ethproofs-prover/internal/ethrpc"
	"github.com/ethproofs/ethproofs-prover/internal/health"
	"github.com/ethproofs/ethproofs-prover/internal/inputbuilder"
	"github.com/ethproofs/ethproofs-prover/internal/ledger"
	"github.com/ethproofs/ethproofs-prover/internal/metrics"
	"github.com/ethproofs/ethproofs-prover/internal/notify"
	"github.com/ethproofs/ethproofs-prover/internal/pipeline/generator"
	"github.com/ethproofs/ethproofs-prover/internal/pipeline/prover"
	"github.com/ethproofs/ethproofs-prover/internal/repository/clickhouse"
	"github.com/ethproofs/ethproofs-prover/internal/status"
)

// restartBackoff bounds how quickly the Prover/InputGenerator/
// StatusSurface trio is rebuilt after an abnormal termination, so a
// persistently broken dependency doesn't spin the process.
const restartBackoff = 2 * time.Second

// outputDir is the root the prover subprocess and the proved-request
// audit persister both write under (spec.md §4.8/§6).
const outputDir = "output"

// Supervisor owns every component's lifecycle for the process's duration.
type Supervisor struct {
	cfg        config.Config
	buildInput inputbuilder.Func
	log        *zap.Logger

	repo   *clickhouse.Repository
	sink   *notify.Sink
	cache  *blockcache.Cache
	proved *ledger.ProvedLedger
	missed *ledger.MissedLedger
}

// New constructs every durable, non-restarted component (C1 cache, C11
// sink, C5/C6 ledgers) and validates cfg; C2-C4 are built per pipeline
// generation alongside the Prover and InputGenerator. buildInput is the injected native input-builder
// boundary (spec.md §1/§6's "external collaborator"); main.go resolves
// it to a shell-out against a configured helper binary.
func New(ctx context.Context, cfg config.Config, buildInput inputbuilder.Func, log *zap.Logger) (*Supervisor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cache := blockcache.New()
	sink := notify.New(cfg.SlackWebhook, cache, log, notify.WithMetrics(metrics.NewNotify()))

	repo, err := clickhouse.NewRepository(cfg.ClickhouseDSN, metrics.NewRepository())
	if err != nil {
		return nil, fmt.Errorf("open clickhouse repository: %w", err)
	}
	repoAdapter := repositoryAdapter{repo: repo}

	proved, err := ledger.NewProvedLedger(ctx, repoAdapter, sink)
	if err != nil {
		return nil, fmt.Errorf("load proved ledger: %w", err)
	}
	missed, err := ledger.NewMissedLedger(ctx, repoAdapter, sink)
	if err != nil {
		return nil, fmt.Errorf("load missed ledger: %w", err)
	}

	return &Supervisor{
		cfg:        cfg,
		buildInput: buildInput,
		log:        log.Named("supervisor"),
		repo:       repo,
		sink:       sink,
		cache:      cache,
		proved:     proved,
		missed:     missed,
	}, nil
}

// Close releases resources New opened that Run does not own (the
// ClickHouse connection underlying the ledgers, which survive restarts).
func (s *Supervisor) Close() error {
	return s.repo.Close()
}

// Run starts the NotificationSink fan-out and the restartable
// Prover/InputGenerator/StatusSurface trio, and blocks until ctx is
// canceled. It returns once every component has shut down.
func (s *Supervisor) Run(ctx context.Context) error {
	sinkDone := make(chan struct{})
	go func() {
		defer close(sinkDone)
		s.sink.Run(ctx)
	}()

	s.runPipelineWithRestart(ctx)

	<-sinkDone
	return nil
}

// runPipelineWithRestart implements the rest-for-one restart policy:
// Prover, InputGenerator, and StatusSurface are built and started
// together; if their shared run exits abnormally (any of the three
// panics or returns before ctx is canceled), all three are torn down
// and rebuilt. Ledgers, BlockMetadataCache, and NotificationSink are
// never touched by a restart.
func (s *Supervisor) runPipelineWithRestart(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		abnormal := s.runPipelineOnce(ctx)
		if !abnormal {
			return
		}

		s.log.Error("pipeline trio terminated abnormally, restarting", zap.Duration("backoff", restartBackoff))
		select {
		case <-time.After(restartBackoff):
		case <-ctx.Done():
			return
		}
	}
}

// runPipelineOnce builds and runs one generation of the
// Prover/InputGenerator/StatusSurface trio. It returns true if the trio
// terminated before ctx was canceled (an abnormal exit warranting a
// restart), false if ctx cancellation is what stopped it.
func (s *Supervisor) runPipelineOnce(ctx context.Context) (abnormal bool) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	prv := s.newProver()
	gen := s.newGenerator(prv)
	surface := status.New(
		fmt.Sprintf(":%d", s.cfg.HealthPort),
		prv, gen, gen,
		s.log,
		status.WithStuckThreshold(time.Duration(s.cfg.ProverStuckThresholdSeconds)*time.Second),
	)

	done := make(chan struct{}, 3)
	runGuarded := func(name string, fn func()) {
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("component panicked", zap.String("component", name), zap.Any("panic", r))
			}
			done <- struct{}{}
		}()
		fn()
	}

	go runGuarded("prover", func() { prv.Run(runCtx) })
	go runGuarded("input_generator", func() { gen.Run(runCtx) })
	go runGuarded("status_surface", func() {
		if err := surface.Run(runCtx); err != nil {
			s.log.Error("status surface exited", zap.Error(err))
		}
	})

	<-done
	exitedBeforeCancel := runCtx.Err() == nil
	cancel()
	<-done
	<-done

	return exitedBeforeCancel
}

func (s *Supervisor) newProver() *prover.Prover {
	api := ethproofsapi.New(
		s.cfg.EthProofsRpcURL, s.cfg.EthProofsApiKey, s.cfg.EthProofsClusterID, s.cfg.Dev,
		ethproofsapi.WithMetrics(metrics.NewEthProofsApi()),
		ethproofsapi.WithPersister(ethproofsapi.NewFilePersister(outputDir)),
	)
	runner := &prover.CargoZiskRunner{ElfPath: s.cfg.ElfPath, OutputDir: outputDir}

	return prover.New(
		api,
		provedLedgerAdapter{ledger: s.proved},
		missedLedgerAdapter{ledger: s.missed},
		s.sink,
		s.sink,
		runner,
		s.log,
		prover.WithMetrics(metrics.NewProver()),
	)
}

func (s *Supervisor) newGenerator(prv *prover.Prover) *generator.Generator {
	tracker := health.New(s.sink).WithMetrics(metrics.NewHealth())
	rpc := ethrpc.New(
		s.cfg.EthRpcURL,
		ethrpc.WithMetrics(metrics.NewEthRpc()),
		ethrpc.WithHealthSink(tracker),
		ethrpc.WithRateLimit(10),
	)
	builder := inputbuilder.New(s.buildInput)
	// <block>.bin lives at the process root, a sibling of outputDir, per
	// the filesystem layout spec.md documents.
	marker := generator.FileMarker{Dir: ""}

	return generator.New(
		rpc,
		s.cache,
		builder,
		prv,
		missedLedgerAdapter{ledger: s.missed},
		s.sink,
		marker,
		s.log,
		generator.WithMetrics(metrics.NewGenerator()),
	)
}
