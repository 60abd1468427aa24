package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var HistogramBuckets = []float64{
	25, 50, 75, 100, 150, 200, 300, 400, 500,
	750, 1000, 1500, 2000,
	3000, 5000, 10000, 15000,
	30000, 60000, 120000,
}

// Domain collectors. Registered once by NewPrometheus; the webhook pipeline
// and the dispatch shell increment them directly.
var (
	WebhookOutcome = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Subsystem: "billing",
			Name:      "webhook_outcome_total",
			Help:      "Webhook notifications partitioned by pipeline outcome.",
		},
		[]string{"outcome"},
	)

	DispatchAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Subsystem: "billing",
			Name:      "dispatch_attempts_total",
			Help:      "Background job attempts partitioned by kind and result.",
		},
		[]string{"kind", "result"},
	)

	DispatchExhausted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Subsystem: "billing",
			Name:      "dispatch_exhausted_total",
			Help:      "Jobs that burned their full retry budget, by kind.",
		},
		[]string{"kind"},
	)
)

func registerDomainCollectors(logger Logger) {
	for _, c := range []prometheus.Collector{WebhookOutcome, DispatchAttempts, DispatchExhausted} {
		if err := prometheus.Register(c); err != nil {
			logger.Errorf("collector could not be registered in Prometheus, err=%v", err)
		}
	}
}
