package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// AnalysisMetrics contains all Prometheus metrics related to scan analysis.
type AnalysisMetrics struct {
	ScansTotal         *prometheus.CounterVec
	ScanDuration       *prometheus.HistogramVec
	VerdictsTotal      *prometheus.CounterVec
	HeuristicFallbacks prometheus.Counter
	ConfidenceHist     prometheus.Histogram
	registry           *prometheus.Registry
}

// NewAnalysisMetrics creates a new instance of AnalysisMetrics and registers
// it with the provided registry.
func NewAnalysisMetrics(registry *prometheus.Registry) (*AnalysisMetrics, error) {
	m := &AnalysisMetrics{registry: registry}
	if err := m.initMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize analysis metrics: %w", err)
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register analysis metrics: %w", err)
	}
	return m, nil
}

func (m *AnalysisMetrics) initMetrics() error {
	m.ScansTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "analysis_scans_total",
		Help: "Total number of scan analyses.",
	}, []string{"analysis_type", "status"})

	m.ScanDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "analysis_scan_duration_seconds",
		Help:    "End-to-end duration of scan analyses.",
		Buckets: prometheus.ExponentialBuckets(BucketStart100ms, BucketFactor2, BucketCount10),
	}, []string{"analysis_type"})

	m.VerdictsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "analysis_verdicts_total",
		Help: "Scan verdicts by outcome.",
	}, []string{"analysis_type", "verdict"})

	m.HeuristicFallbacks = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "analysis_heuristic_fallbacks_total",
		Help: "Number of scans where the model response required the heuristic parser.",
	})

	m.ConfidenceHist = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "analysis_verdict_confidence",
		Help:    "Distribution of verdict confidence values.",
		Buckets: prometheus.LinearBuckets(0, 0.1, 11),
	})

	return nil
}

// RecordScan records a completed analysis with its outcome and duration.
func (m *AnalysisMetrics) RecordScan(analysisType, status string, durationSeconds float64) {
	m.ScansTotal.WithLabelValues(analysisType, status).Inc()
	m.ScanDuration.WithLabelValues(analysisType).Observe(durationSeconds)
}

// RecordVerdict records the verdict of a successful scan.
func (m *AnalysisMetrics) RecordVerdict(analysisType string, diseaseDetected, heuristic bool, confidence float64) {
	verdict := VerdictHealthy
	if diseaseDetected {
		verdict = VerdictDiseased
	}
	m.VerdictsTotal.WithLabelValues(analysisType, verdict).Inc()
	if heuristic {
		m.HeuristicFallbacks.Inc()
	}
	m.ConfidenceHist.Observe(confidence)
}

// Collect implements the prometheus.Collector interface.
func (m *AnalysisMetrics) Collect(ch chan<- prometheus.Metric) {
	m.ScansTotal.Collect(ch)
	m.ScanDuration.Collect(ch)
	m.VerdictsTotal.Collect(ch)
	ch <- m.HeuristicFallbacks
	ch <- m.ConfidenceHist
}

// Describe implements the prometheus.Collector interface.
func (m *AnalysisMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.ScansTotal.Describe(ch)
	m.ScanDuration.Describe(ch)
	m.VerdictsTotal.Describe(ch)
	ch <- m.HeuristicFallbacks.Desc()
	ch <- m.ConfidenceHist.Desc()
}
