package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPipelineMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPipelineMetrics(reg)

	m.RunStarted()
	m.ObserveStage("Document upload and validation", 0.8)
	m.ObserveRisk("high")
	m.RunFinished("completed", 5.6)
	m.RunRejected("invalid_claim")

	if got := testutil.ToFloat64(m.runsTotal.WithLabelValues("completed")); got != 1 {
		t.Errorf("expected 1 completed run, got %v", got)
	}
	if got := testutil.ToFloat64(m.runsTotal.WithLabelValues("invalid_claim")); got != 1 {
		t.Errorf("expected 1 rejected run, got %v", got)
	}
	if got := testutil.ToFloat64(m.inFlight); got != 0 {
		t.Errorf("expected 0 in-flight runs, got %v", got)
	}
	if got := testutil.ToFloat64(m.riskTotal.WithLabelValues("high")); got != 1 {
		t.Errorf("expected 1 high-risk result, got %v", got)
	}
}

func TestPipelineMetricsNilSafe(t *testing.T) {
	var m *PipelineMetrics
	m.RunStarted()
	m.RunFinished("completed", 1)
	m.RunRejected("invalid_claim")
	m.ObserveStage("stage", 0.1)
	m.ObserveRisk("low")
}
