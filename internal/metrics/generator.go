package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	generatorRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ethproofs",
		Subsystem: "generator",
		Name:      "runs_total",
		Help:      "Count of InputGenerator worker runs by outcome.",
	}, []string{"outcome"})
	generatorRunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "ethproofs",
		Subsystem: "generator",
		Name:      "run_duration_seconds",
		Help:      "Duration of InputGenerator worker runs that reached a terminal outcome.",
		Buckets:   prometheus.DefBuckets,
	})
	generatorQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "ethproofs",
		Subsystem: "generator",
		Name:      "queue_depth",
		Help:      "Number of blocks currently queued for input generation.",
	})
)

// Generator implements internal/pipeline/generator.Metrics.
type Generator struct{}

// NewGenerator constructs a metrics collector for the InputGenerator stage.
func NewGenerator() Generator { return Generator{} }

// ObserveRun records a single worker run's outcome and, for non-crash
// outcomes, the time it took to reach it.
func (Generator) ObserveRun(outcome string, started time.Time, crashed bool) {
	generatorRunsTotal.WithLabelValues(outcome).Inc()
	if !crashed {
		generatorRunDuration.Observe(time.Since(started).Seconds())
	}
}

// SetQueueDepth reports the current pending-queue length.
func (Generator) SetQueueDepth(n int) {
	generatorQueueDepth.Set(float64(n))
}
