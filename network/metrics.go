package network

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type relayMetrics struct {
	sent       prometheus.Counter
	batches    prometheus.Counter
	duplicates prometheus.Counter
	failed     prometheus.Counter
}

var (
	relayMetricsOnce sync.Once
	relayRegistry    *relayMetrics
)

func defaultRelayMetrics() *relayMetrics {
	relayMetricsOnce.Do(func() {
		relayRegistry = &relayMetrics{
			sent: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "ledger",
				Subsystem: "relay",
				Name:      "ids_sent_total",
				Help:      "Total transaction ids handed to peers.",
			}),
			batches: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "ledger",
				Subsystem: "relay",
				Name:      "batches_total",
				Help:      "Total broadcast batches sent.",
			}),
			duplicates: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "ledger",
				Subsystem: "relay",
				Name:      "duplicates_total",
				Help:      "Transaction ids suppressed because they were relayed recently.",
			}),
			failed: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "ledger",
				Subsystem: "relay",
				Name:      "failures_total",
				Help:      "Broadcast batches the sender rejected.",
			}),
		}
		prometheus.MustRegister(
			relayRegistry.sent,
			relayRegistry.batches,
			relayRegistry.duplicates,
			relayRegistry.failed,
		)
	})
	return relayRegistry
}
