package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var notifyDeliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "ethproofs",
	Subsystem: "notify",
	Name:      "webhook_deliveries_total",
	Help:      "Count of webhook delivery attempts by event kind and outcome.",
}, []string{"kind", "status"})

// Notify implements a metrics sink for internal/notify.Sink.
type Notify struct{}

// NewNotify constructs a metrics collector for the NotificationSink.
func NewNotify() Notify { return Notify{} }

// ObserveDelivery records a single webhook delivery attempt's outcome.
func (Notify) ObserveDelivery(kind string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	notifyDeliveriesTotal.WithLabelValues(kind, status).Inc()
}
