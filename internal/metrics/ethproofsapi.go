package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ethProofsAPIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ethproofs",
		Subsystem: "ethproofs_api",
		Name:      "operations_total",
		Help:      "Count of EthProofs API lifecycle calls.",
	}, []string{"operation", "status"})
	ethProofsAPIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "ethproofs",
		Subsystem: "ethproofs_api",
		Name:      "operation_duration_seconds",
		Help:      "Duration of EthProofs API lifecycle calls.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation", "status"})
)

// EthProofsApi implements internal/ethproofsapi.Metrics.
type EthProofsApi struct{}

// NewEthProofsApi constructs a metrics collector for internal/ethproofsapi.Client.
func NewEthProofsApi() EthProofsApi { return EthProofsApi{} }

// Observe records a single EthProofs API call outcome and duration.
func (EthProofsApi) Observe(operation string, err error, started time.Time) {
	status := "success"
	if err != nil {
		status = "error"
	}
	ethProofsAPIRequestsTotal.WithLabelValues(operation, status).Inc()
	ethProofsAPIRequestDuration.WithLabelValues(operation, status).Observe(time.Since(started).Seconds())
}
