package metrics

import "github.com/prometheus/client_golang/prometheus"

// PipelineMetrics exposes counters/histograms for analysis runs.
// A nil *PipelineMetrics is valid and records nothing.
type PipelineMetrics struct {
	runsTotal     *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec
	stageDuration *prometheus.HistogramVec
	riskTotal     *prometheus.CounterVec
	inFlight      prometheus.Gauge
}

func NewPipelineMetrics(reg prometheus.Registerer) *PipelineMetrics {
	m := &PipelineMetrics{
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mediclaim",
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Analysis runs by terminal outcome",
		}, []string{"outcome"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "mediclaim",
			Subsystem: "pipeline",
			Name:      "run_duration_seconds",
			Help:      "Wall time of analysis runs",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "mediclaim",
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Wall time of individual stages",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stage"}),
		riskTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mediclaim",
			Subsystem: "pipeline",
			Name:      "risk_level_total",
			Help:      "Completed analyses by risk level",
		}, []string{"risk_level"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "mediclaim",
			Subsystem: "pipeline",
			Name:      "runs_in_flight",
			Help:      "Analysis runs currently executing",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.runsTotal, m.runDuration, m.stageDuration, m.riskTotal, m.inFlight)
	return m
}

func (m *PipelineMetrics) RunStarted() {
	if m == nil {
		return
	}
	m.inFlight.Inc()
}

// RunFinished records the terminal outcome ("completed", "cancelled", "invalid_claim", ...)
func (m *PipelineMetrics) RunFinished(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.inFlight.Dec()
	m.runsTotal.WithLabelValues(outcome).Inc()
	m.runDuration.WithLabelValues(outcome).Observe(seconds)
}

// RunRejected records a claim rejected before the run started
func (m *PipelineMetrics) RunRejected(outcome string) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues(outcome).Inc()
}

func (m *PipelineMetrics) ObserveStage(stage string, seconds float64) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(seconds)
}

func (m *PipelineMetrics) ObserveRisk(level string) {
	if m == nil {
		return
	}
	m.riskTotal.WithLabelValues(level).Inc()
}
