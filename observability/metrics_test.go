package observability

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	return m.GetCounter().GetValue()
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	if err := g.Write(&m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	return m.GetGauge().GetValue()
}

func TestPoolMetricsCount(t *testing.T) {
	m := Pool()
	if Pool() != m {
		t.Fatalf("expected a single registry")
	}

	before := counterValue(t, m.applied.WithLabelValues("apply", "error"))
	m.Unconfirmed("apply", errors.New("boom"))
	if got := counterValue(t, m.applied.WithLabelValues("apply", "error")); got != before+1 {
		t.Fatalf("error outcome: got %v want %v", got, before+1)
	}

	m.SetDepth("queued", 7)
	if got := gaugeValue(t, m.depth.WithLabelValues("queued")); got != 7 {
		t.Fatalf("depth: got %v", got)
	}

	var nilMetrics *poolMetrics
	nilMetrics.Admitted("transfer")
}

func TestRoundMetricsSkipZeroDistribution(t *testing.T) {
	m := Rounds()
	fees := counterValue(t, m.distributed.WithLabelValues("fees"))
	rewards := counterValue(t, m.distributed.WithLabelValues("rewards"))

	m.Distributed(0, 500)
	if got := counterValue(t, m.distributed.WithLabelValues("fees")); got != fees {
		t.Fatalf("fees moved on zero: %v", got)
	}
	if got := counterValue(t, m.distributed.WithLabelValues("rewards")); got != rewards+500 {
		t.Fatalf("rewards: got %v want %v", got, rewards+500)
	}

	m.Settled("forward", "replay", 3, 0.01)
	if got := gaugeValue(t, m.current); got != 3 {
		t.Fatalf("current round: got %v", got)
	}
}
