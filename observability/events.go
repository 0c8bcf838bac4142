package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type chainMetrics struct {
	blocks       *prometheus.CounterVec
	transactions *prometheus.CounterVec
	height       prometheus.Gauge
}

var (
	chainMetricsOnce sync.Once
	chainRegistry    *chainMetrics
)

// Chain returns the metrics registry tracking block processing.
func Chain() *chainMetrics {
	chainMetricsOnce.Do(func() {
		chainRegistry = &chainMetrics{
			blocks: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "ledger",
				Subsystem: "chain",
				Name:      "blocks_total",
				Help:      "Blocks applied and undone segmented by outcome.",
			}, []string{"direction", "outcome"}),
			transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "ledger",
				Subsystem: "chain",
				Name:      "transactions_total",
				Help:      "Confirmed transactions segmented by type.",
			}, []string{"type"}),
			height: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "ledger",
				Subsystem: "chain",
				Name:      "height",
				Help:      "Current chain height.",
			}),
		}
		prometheus.MustRegister(chainRegistry.blocks, chainRegistry.transactions, chainRegistry.height)
	})
	return chainRegistry
}

// Block records a block apply or undo.
func (m *chainMetrics) Block(direction string, height uint64, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	} else {
		m.height.Set(float64(height))
	}
	m.blocks.WithLabelValues(direction, outcome).Inc()
}

// Transaction counts a confirmed transaction.
func (m *chainMetrics) Transaction(txType string) {
	if m == nil {
		return
	}
	m.transactions.WithLabelValues(txType).Inc()
}
