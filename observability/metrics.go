package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type poolMetrics struct {
	depth    *prometheus.GaugeVec
	admitted *prometheus.CounterVec
	rejected *prometheus.CounterVec
	evicted  *prometheus.CounterVec
	expired  *prometheus.CounterVec
	applied  *prometheus.CounterVec
	batch    *prometheus.HistogramVec
}

type roundMetrics struct {
	settlements *prometheus.CounterVec
	distributed *prometheus.CounterVec
	current     prometheus.Gauge
	duration    *prometheus.HistogramVec
}

var (
	poolMetricsOnce sync.Once
	poolRegistry    *poolMetrics

	roundMetricsOnce sync.Once
	roundRegistry    *roundMetrics
)

// Pool returns the lazily registered transaction pool metrics.
func Pool() *poolMetrics {
	poolMetricsOnce.Do(func() {
		poolRegistry = &poolMetrics{
			depth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "ledger",
				Subsystem: "pool",
				Name:      "queue_depth",
				Help:      "Number of transactions held per pool queue.",
			}, []string{"queue"}),
			admitted: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "ledger",
				Subsystem: "pool",
				Name:      "admitted_total",
				Help:      "Transactions admitted to the pool segmented by type.",
			}, []string{"type"}),
			rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "ledger",
				Subsystem: "pool",
				Name:      "rejected_total",
				Help:      "Transactions refused by the pool segmented by stage.",
			}, []string{"stage"}),
			evicted: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "ledger",
				Subsystem: "pool",
				Name:      "evicted_total",
				Help:      "Transactions evicted to honour queue ceilings.",
			}, []string{"queue"}),
			expired: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "ledger",
				Subsystem: "pool",
				Name:      "expired_total",
				Help:      "Transactions dropped after their pool timeout.",
			}, []string{"queue"}),
			applied: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "ledger",
				Subsystem: "pool",
				Name:      "unconfirmed_total",
				Help:      "Unconfirmed apply and undo outcomes.",
			}, []string{"op", "outcome"}),
			batch: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "ledger",
				Subsystem: "pool",
				Name:      "batch_size",
				Help:      "Size of unconfirmed apply and undo batches.",
				Buckets:   []float64{0, 1, 5, 10, 25, 50, 100, 250, 1000},
			}, []string{"op"}),
		}
		prometheus.MustRegister(
			poolRegistry.depth,
			poolRegistry.admitted,
			poolRegistry.rejected,
			poolRegistry.evicted,
			poolRegistry.expired,
			poolRegistry.applied,
			poolRegistry.batch,
		)
	})
	return poolRegistry
}

// SetDepth records the size of a queue.
func (m *poolMetrics) SetDepth(queue string, n int) {
	if m == nil {
		return
	}
	m.depth.WithLabelValues(queue).Set(float64(n))
}

// Admitted counts a transaction entering the pool.
func (m *poolMetrics) Admitted(txType string) {
	if m == nil {
		return
	}
	m.admitted.WithLabelValues(txType).Inc()
}

// Rejected counts a refusal at the given stage.
func (m *poolMetrics) Rejected(stage string) {
	if m == nil {
		return
	}
	m.rejected.WithLabelValues(stage).Inc()
}

// Evicted counts an eviction from a queue.
func (m *poolMetrics) Evicted(queue string) {
	if m == nil {
		return
	}
	m.evicted.WithLabelValues(queue).Inc()
}

// Expired counts an expiry from a queue.
func (m *poolMetrics) Expired(queue string) {
	if m == nil {
		return
	}
	m.expired.WithLabelValues(queue).Inc()
}

// Unconfirmed records the outcome of an unconfirmed apply or undo.
func (m *poolMetrics) Unconfirmed(op string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.applied.WithLabelValues(op, outcome).Inc()
}

// Batch records the size of an apply or undo batch.
func (m *poolMetrics) Batch(op string, n int) {
	if m == nil {
		return
	}
	m.batch.WithLabelValues(op).Observe(float64(n))
}

// Rounds returns the lazily registered round settlement metrics.
func Rounds() *roundMetrics {
	roundMetricsOnce.Do(func() {
		roundRegistry = &roundMetrics{
			settlements: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "ledger",
				Subsystem: "round",
				Name:      "settlements_total",
				Help:      "Round settlements segmented by direction and path.",
			}, []string{"direction", "path"}),
			distributed: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "ledger",
				Subsystem: "round",
				Name:      "distributed_beddows_total",
				Help:      "Fees and rewards credited to delegates on forward settlement.",
			}, []string{"kind"}),
			current: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "ledger",
				Subsystem: "round",
				Name:      "current",
				Help:      "Last settled round number.",
			}),
			duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "ledger",
				Subsystem: "round",
				Name:      "settlement_duration_seconds",
				Help:      "Latency of round settlement.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"direction"}),
		}
		prometheus.MustRegister(
			roundRegistry.settlements,
			roundRegistry.distributed,
			roundRegistry.current,
			roundRegistry.duration,
		)
	})
	return roundRegistry
}

// Settled records a completed settlement.
func (m *roundMetrics) Settled(direction, path string, round uint64, seconds float64) {
	if m == nil {
		return
	}
	m.settlements.WithLabelValues(direction, path).Inc()
	m.duration.WithLabelValues(direction).Observe(seconds)
	m.current.Set(float64(round))
}

// Distributed adds credited fees and rewards.
func (m *roundMetrics) Distributed(fees, rewards int64) {
	if m == nil {
		return
	}
	if fees > 0 {
		m.distributed.WithLabelValues("fees").Add(float64(fees))
	}
	if rewards > 0 {
		m.distributed.WithLabelValues("rewards").Add(float64(rewards))
	}
}
