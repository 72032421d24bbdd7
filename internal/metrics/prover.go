package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	proverRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ethproofs",
		Subsystem: "prover",
		Name:      "runs_total",
		Help:      "Count of cargo-zisk subprocess runs by outcome.",
	}, []string{"outcome"})
	proverRunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "ethproofs",
		Subsystem: "prover",
		Name:      "run_duration_seconds",
		Help:      "Duration of cargo-zisk subprocess runs that exited cleanly.",
		Buckets:   []float64{30, 60, 120, 300, 600, 1200, 1800, 3600, 7200},
	})
	proverQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "ethproofs",
		Subsystem: "prover",
		Name:      "queue_depth",
		Help:      "Number of blocks currently queued for proving.",
	})
)

// Prover implements internal/pipeline/prover.Metrics.
type Prover struct{}

// NewProver constructs a metrics collector for the Prover stage.
func NewProver() Prover { return Prover{} }

// ObserveRun records a single subprocess run's outcome and, for clean
// exits, the time it took.
func (Prover) ObserveRun(outcome string, started time.Time, crashed bool) {
	proverRunsTotal.WithLabelValues(outcome).Inc()
	if !crashed {
		proverRunDuration.Observe(time.Since(started).Seconds())
	}
}

// SetQueueDepth reports the current pending-queue length.
func (Prover) SetQueueDepth(n int) {
	proverQueueDepth.Set(float64(n))
}
