package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var rpcOutagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "ethproofs",
	Subsystem: "rpc_health",
	Name:      "outages_total",
	Help:      "Count of RPC endpoint down edges by URL.",
}, []string{"url"})

// Health implements a metrics sink for internal/health.Tracker.
type Health struct{}

// NewHealth constructs a metrics collector for the RPC health tracker.
func NewHealth() Health { return Health{} }

// ObserveDown records a down edge for url.
func (Health) ObserveDown(url string) {
	rpcOutagesTotal.WithLabelValues(url).Inc()
}
