package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ethproofs/ethproofs-prover/internal/blockcache"
	"github.com/ethproofs/ethproofs-prover/internal/ethproofs"
	"github.com/ethproofs/ethproofs-prover/internal/pipeline/prover"
	"github.com/ethproofs/ethproofs-prover/pkg/workerpool"
)

// deliveryConcurrency bounds how many webhook deliveries run at once per
// drained batch, mirroring pkg/workerpool's bounded-pool shape.
const deliveryConcurrency = 4

// BlockMetadataCache is the subset of internal/blockcache.Cache this sink
// reads from to enrich a notification's fields (spec.md §4.11).
type BlockMetadataCache interface {
	Get(block ethproofs.BlockID) blockcache.Meta
}

// Metrics is the subset of internal/metrics.Notify this sink reports to.
type Metrics interface {
	ObserveDelivery(kind string, err error)
}

type noopMetrics struct{}

func (noopMetrics) ObserveDelivery(string, error) {}

// Sink is the NotificationSink actor (C11). It owns an event queue
// buffered at 4096 entries, drained by a single dispatcher goroutine,
// which delivers each drained batch concurrently via
// pkg/workerpool.Process. When the queue is full a new event is logged
// and dropped. A delivery failure is logged and never retried, and never
// blocks the caller or the pipeline (spec.md §4.11).
type Sink struct {
	sender  webhookSender
	cache   BlockMetadataCache
	metrics Metrics
	log     *zap.Logger
	now     func() time.Time

	events chan Event
	wg     sync.WaitGroup
}

// New constructs a Sink. An empty webhookURL disables delivery entirely
// (payloads are rendered and dropped, matching the "if configured"
// clause of spec.md §4.11).
func New(webhookURL string, cache BlockMetadataCache, log *zap.Logger, opts ...Option) *Sink {
	s := &Sink{
		sender:  newWebhookSender(webhookURL),
		cache:   cache,
		metrics: noopMetrics{},
		log:     log.Named("notify"),
		now:     time.Now,
		events:  make(chan Event, 4096),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Option configures a Sink.
type Option func(*Sink)

// WithMetrics overrides the metrics sink (default: no-op).
func WithMetrics(m Metrics) Option {
	return func(s *Sink) { s.metrics = m }
}

// Run starts the dispatcher loop. It returns once ctx is canceled and
// any in-flight batch has finished delivering.
func (s *Sink) Run(ctx context.Context) {
	s.wg.Add(1)
	go s.dispatchLoop(ctx)
	s.wg.Wait()
}

func (s *Sink) dispatchLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case first := <-s.events:
			batch := s.drain(first)
			s.deliverBatch(ctx, batch)
		}
	}
}

// drain collects first plus every event already queued without blocking,
// so a burst of events is delivered as one concurrent batch.
func (s *Sink) drain(first Event) []Event {
	batch := []Event{first}
	for {
		select {
		case e := <-s.events:
			batch = append(batch, e)
		default:
			return batch
		}
	}
}

func (s *Sink) deliverBatch(ctx context.Context, batch []Event) {
	_ = workerpool.Process(ctx, deliveryConcurrency, batch, func(ctx context.Context, e Event) error {
		meta := ""
		if s.cache != nil && e.Block != 0 {
			meta = s.cache.Get(ethproofs.BlockID(e.Block)).String()
		}
		payload := payloadFor(e, meta)
		err := s.sender.deliver(ctx, payload)
		s.metrics.ObserveDelivery(string(e.Kind), err)
		if err != nil {
			s.log.Warn("webhook delivery failed", zap.String("kind", string(e.Kind)), zap.Error(err))
		}
		// always return nil: a delivery failure must never cancel
		// sibling deliveries in the same batch or propagate upstream.
		return nil
	}, nil)
}

func (s *Sink) publish(kind Kind, block ethproofs.BlockID, reason, url string, since time.Time) {
	e := Event{
		Kind:      kind,
		Block:     uint64(block),
		Reason:    reason,
		URL:       url,
		Since:     since,
		Timestamp: s.now(),
	}
	select {
	case s.events <- e:
	default:
		s.log.Warn("notification queue full, dropping event", zap.String("kind", string(kind)))
	}
}

// InputGenerationFailed implements generator.Notifier.
func (s *Sink) InputGenerationFailed(block ethproofs.BlockID, reason string) {
	s.publish(KindInputGenerationFailed, block, reason, "", time.Time{})
}

// ProofGenerationFailed implements prover.Notifier.
func (s *Sink) ProofGenerationFailed(block ethproofs.BlockID, reason string) {
	s.publish(KindProofGenerationFailed, block, reason, "", time.Time{})
}

// ProofDataFailed implements prover.Notifier.
func (s *Sink) ProofDataFailed(block ethproofs.BlockID, reason string) {
	s.publish(KindProofDataFailed, block, reason, "", time.Time{})
}

// ProofSubmitted implements prover.Notifier.
func (s *Sink) ProofSubmitted(block ethproofs.BlockID) {
	s.publish(KindProofSubmitted, block, "", "", time.Time{})
}

// EthProofsRequestFailed reports an EthProofs API call failure outside
// the per-block lifecycle calls (e.g. a standalone health check).
func (s *Sink) EthProofsRequestFailed(reason string) {
	s.publish(KindEthProofsRequestFailed, 0, reason, "", time.Time{})
}

// RPCDown implements health.Sink.
func (s *Sink) RPCDown(url string, downSince time.Time, lastError string) {
	s.publish(KindRpcDown, 0, lastError, url, downSince)
}

// RPCRecovered implements health.Sink.
func (s *Sink) RPCRecovered(url string, downSince, recoveredAt time.Time) {
	s.publish(KindRpcRecovered, 0, "", url, downSince)
}

// ProvedBlocksUpdated implements ledger.Broadcaster.
func (s *Sink) ProvedBlocksUpdated(records []ethproofs.ProvedRecord) {
	s.publishSummary(KindProvedBlocksUpdated, fmt.Sprintf("%d records in window", len(records)))
}

// MissedBlocksUpdated implements ledger.Broadcaster.
func (s *Sink) MissedBlocksUpdated(records []ethproofs.MissedRecord) {
	s.publishSummary(KindMissedBlocksUpdated, fmt.Sprintf("%d records in window", len(records)))
}

// ProverStatusUpdated implements prover.StatusPublisher.
func (s *Sink) ProverStatusUpdated(status prover.Status) {
	summary := string(status.State)
	if status.State == prover.StateProving {
		summary = fmt.Sprintf("%s block=%d", summary, uint64(status.Block))
	}
	s.publishSummary(KindProverStatus, summary)
}

func (s *Sink) publishSummary(kind Kind, summary string) {
	e := Event{Kind: kind, Summary: summary, Timestamp: s.now()}
	select {
	case s.events <- e:
	default:
		s.log.Warn("notification queue full, dropping event", zap.String("kind", string(kind)))
	}
}
