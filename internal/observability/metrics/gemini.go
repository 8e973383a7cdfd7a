package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// GeminiMetrics contains all Prometheus metrics related to the Gemini API client.
type GeminiMetrics struct {
	APICallsTotal   *prometheus.CounterVec
	APICallDuration prometheus.Histogram
	CacheHits       prometheus.Counter
	CacheMisses     prometheus.Counter
	BlockedPrompts  prometheus.Counter
	TokensTotal     *prometheus.CounterVec
	registry        *prometheus.Registry
}

// NewGeminiMetrics creates a new instance of GeminiMetrics and registers it
// with the provided registry.
func NewGeminiMetrics(registry *prometheus.Registry) (*GeminiMetrics, error) {
	m := &GeminiMetrics{registry: registry}
	if err := m.initMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize Gemini metrics: %w", err)
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register Gemini metrics: %w", err)
	}
	return m, nil
}

func (m *GeminiMetrics) initMetrics() error {
	m.APICallsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gemini_api_calls_total",
		Help: "Total number of Gemini API calls.",
	}, []string{"status"})

	m.APICallDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "gemini_api_call_duration_seconds",
		Help:    "Duration of Gemini API calls.",
		Buckets: prometheus.ExponentialBuckets(BucketStart100ms, BucketFactor2, BucketCount10),
	})

	m.CacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gemini_cache_hits_total",
		Help: "Total number of response cache hits.",
	})

	m.CacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gemini_cache_misses_total",
		Help: "Total number of response cache misses.",
	})

	m.BlockedPrompts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gemini_blocked_prompts_total",
		Help: "Total number of prompts rejected by the safety filter.",
	})

	m.TokensTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gemini_tokens_total",
		Help: "Total tokens reported by the API.",
	}, []string{"kind"}) // kind: prompt, candidates

	return nil
}

// RecordAPICall records one API call with its outcome and duration.
func (m *GeminiMetrics) RecordAPICall(status string, durationSeconds float64) {
	m.APICallsTotal.WithLabelValues(status).Inc()
	m.APICallDuration.Observe(durationSeconds)
}

// RecordAPIError counts a failed API call without a meaningful duration.
func (m *GeminiMetrics) RecordAPIError() {
	m.APICallsTotal.WithLabelValues(StatusError).Inc()
}

// RecordCacheHit increases the cache hit counter by one.
func (m *GeminiMetrics) RecordCacheHit() {
	m.CacheHits.Inc()
}

// RecordCacheMiss increases the cache miss counter by one.
func (m *GeminiMetrics) RecordCacheMiss() {
	m.CacheMisses.Inc()
}

// RecordBlockedPrompt increases the blocked prompt counter by one.
func (m *GeminiMetrics) RecordBlockedPrompt() {
	m.BlockedPrompts.Inc()
}

// RecordTokens records the token usage reported for a request.
func (m *GeminiMetrics) RecordTokens(promptTokens, candidateTokens int) {
	m.TokensTotal.WithLabelValues("prompt").Add(float64(promptTokens))
	m.TokensTotal.WithLabelValues("candidates").Add(float64(candidateTokens))
}

// Collect implements the prometheus.Collector interface.
func (m *GeminiMetrics) Collect(ch chan<- prometheus.Metric) {
	m.APICallsTotal.Collect(ch)
	ch <- m.APICallDuration
	ch <- m.CacheHits
	ch <- m.CacheMisses
	ch <- m.BlockedPrompts
	m.TokensTotal.Collect(ch)
}

// Describe implements the prometheus.Collector interface.
func (m *GeminiMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.APICallsTotal.Describe(ch)
	ch <- m.APICallDuration.Desc()
	ch <- m.CacheHits.Desc()
	ch <- m.CacheMisses.Desc()
	ch <- m.BlockedPrompts.Desc()
	m.TokensTotal.Describe(ch)
}
