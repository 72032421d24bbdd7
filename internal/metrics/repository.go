package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	repositoryOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ethproofs",
		Subsystem: "repository",
		Name:      "operations_total",
		Help:      "Count of ClickHouse ledger repository operations.",
	}, []string{"operation", "status"})
	repositoryOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "ethproofs",
		Subsystem: "repository",
		Name:      "operation_duration_seconds",
		Help:      "Duration of ClickHouse ledger repository operations.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation", "status"})
)

// Repository implements internal/repository/clickhouse.Metrics.
type Repository struct{}

// NewRepository constructs a metrics collector for the ClickHouse repository.
func NewRepository() Repository { return Repository{} }

// Observe records a single repository call outcome and duration.
func (Repository) Observe(operation string, err error, started time.Time) {
	status := "success"
	if err != nil {
		status = "error"
	}
	repositoryOperationsTotal.WithLabelValues(operation, status).Inc()
	repositoryOperationDuration.WithLabelValues(operation, status).Observe(time.Since(started).Seconds())
}
