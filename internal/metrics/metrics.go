package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// PaymentsInitiated counts attempts created, before any provider response.
	PaymentsInitiated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payments_initiated_total",
		Help: "Payment attempts created, by provider and direction.",
	}, []string{"provider", "direction"})

	// CallbacksReceived counts inbound provider notifications, including
	// duplicates and unknown-transaction payloads.
	CallbacksReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_callbacks_received_total",
		Help: "Provider callbacks received, by provider and kind.",
	}, []string{"provider", "kind"})

	// Transitions counts ledger state transitions that were applied.
	Transitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_transitions_total",
		Help: "Ledger status transitions applied, by resulting status.",
	}, []string{"to"})

	// ProviderRequestDuration observes outbound provider call latency.
	ProviderRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "payment_provider_request_seconds",
		Help:    "Outbound provider HTTP request duration.",
		Buckets: prometheus.DefBuckets,
	}, []string{"provider", "operation"})
)

// Handler returns the HTTP handler serving the Prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
