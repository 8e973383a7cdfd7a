package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lansoscan/lansoscan-go/internal/observability/metrics"
)

func TestNewMetrics_InitializesAllCollectors(t *testing.T) {
	m, err := NewMetrics()
	require.NoError(t, err)

	assert.NotNil(t, m.Analysis)
	assert.NotNil(t, m.Gemini)
	assert.NotNil(t, m.Datastore)
	assert.NotNil(t, m.ImageStore)
	assert.NotNil(t, m.HTTP)
}

func TestMetrics_RecordAndGather(t *testing.T) {
	m, err := NewMetrics()
	require.NoError(t, err)

	m.Analysis.RecordScan("fruit", metrics.StatusSuccess, 1.2)
	m.Analysis.RecordVerdict("fruit", true, false, 0.9)
	m.Gemini.RecordAPICall(metrics.StatusSuccess, 0.8)
	m.Gemini.RecordCacheHit()
	m.Datastore.RecordOperation("save", metrics.StatusSuccess, 0.002)
	m.ImageStore.RecordSave(0.01)
	m.HTTP.RecordRequest(http.MethodPost, "/api/v1/analyze", http.StatusOK, 1.3, 512)

	families, err := m.Registry().Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, mf := range families {
		names[mf.GetName()] = true
	}

	for _, want := range []string{
		"analysis_scans_total",
		"analysis_verdicts_total",
		"gemini_api_calls_total",
		"gemini_cache_hits_total",
		"datastore_operations_total",
		"imagestore_saves_total",
		"http_requests_total",
	} {
		assert.True(t, names[want], "expected metric family %s", want)
	}
}

func TestMetrics_Handler(t *testing.T) {
	m, err := NewMetrics()
	require.NoError(t, err)

	m.Analysis.RecordScan("leaf", metrics.StatusSuccess, 0.5)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody)
	m.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "analysis_scans_total")
}

func TestMetrics_ConcurrentRecording(t *testing.T) {
	m, err := NewMetrics()
	require.NoError(t, err)

	done := make(chan struct{})
	for range 8 {
		go func() {
			defer func() { done <- struct{}{} }()
			for range 100 {
				m.Analysis.RecordScan("fruit", metrics.StatusSuccess, 0.1)
				m.Gemini.RecordCacheMiss()
				m.Datastore.RecordOperation("get", metrics.StatusSuccess, 0.001)
			}
		}()
	}
	for range 8 {
		<-done
	}

	_, err = m.Registry().Gather()
	require.NoError(t, err)
}
