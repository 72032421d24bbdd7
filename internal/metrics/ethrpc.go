package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ethRPCRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ethproofs",
		Subsystem: "eth_rpc",
		Name:      "operations_total",
		Help:      "Count of Ethereum JSON-RPC operations.",
	}, []string{"operation", "status"})
	ethRPCRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "ethproofs",
		Subsystem: "eth_rpc",
		Name:      "operation_duration_seconds",
		Help:      "Duration of Ethereum JSON-RPC operations.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation", "status"})
)

// EthRpc implements internal/ethrpc.Metrics.
type EthRpc struct{}

// NewEthRpc constructs a metrics collector for internal/ethrpc.Client.
func NewEthRpc() EthRpc { return EthRpc{} }

// Observe records a single JSON-RPC call outcome and duration.
func (EthRpc) Observe(operation string, err error, started time.Time) {
	status := "success"
	if err != nil {
		status = "error"
	}
	ethRPCRequestsTotal.WithLabelValues(operation, status).Inc()
	ethRPCRequestDuration.WithLabelValues(operation, status).Observe(time.Since(started).Seconds())
}
