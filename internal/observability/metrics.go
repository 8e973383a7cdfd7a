// Package observability provides Prometheus metrics for the LansoScan services.
package observability

import (
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lansoscan/lansoscan-go/internal/observability/metrics"
)

// Metrics holds all the metric collectors for the application.
type Metrics struct {
	registry   *prometheus.Registry
	Analysis   *metrics.AnalysisMetrics
	Gemini     *metrics.GeminiMetrics
	Datastore  *metrics.DatastoreMetrics
	ImageStore *metrics.ImageStoreMetrics
	HTTP       *metrics.HTTPMetrics
}

// NewMetrics creates a new instance of Metrics, initializing all metric
// collectors. It returns an error if any collector fails to initialize.
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()

	analysisMetrics, err := metrics.NewAnalysisMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create analysis metrics: %w", err)
	}

	geminiMetrics, err := metrics.NewGeminiMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini metrics: %w", err)
	}

	datastoreMetrics, err := metrics.NewDatastoreMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create datastore metrics: %w", err)
	}

	imageStoreMetrics, err := metrics.NewImageStoreMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create image store metrics: %w", err)
	}

	httpMetrics, err := metrics.NewHTTPMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP metrics: %w", err)
	}

	return &Metrics{
		registry:   registry,
		Analysis:   analysisMetrics,
		Gemini:     geminiMetrics,
		Datastore:  datastoreMetrics,
		ImageStore: imageStoreMetrics,
		HTTP:       httpMetrics,
	}, nil
}

// Handler returns the HTTP handler serving the registry in the Prometheus
// text format. It is mounted on the API server's /metrics route.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorLog:      log.New(os.Stderr, "metrics handler: ", log.LstdFlags),
		ErrorHandling: promhttp.HTTPErrorOnError,
	})
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
