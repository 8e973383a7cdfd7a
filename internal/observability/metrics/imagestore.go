package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// ImageStoreMetrics contains all Prometheus metrics related to scan image files.
type ImageStoreMetrics struct {
	SavesTotal     prometheus.Counter
	SaveErrors     prometheus.Counter
	DeletesTotal   prometheus.Counter
	SaveDuration   prometheus.Histogram
	OrphansDeleted prometheus.Counter
	BytesReclaimed prometheus.Counter
	DiskUsage      prometheus.Gauge
	registry       *prometheus.Registry
}

// NewImageStoreMetrics creates a new instance of ImageStoreMetrics and
// registers it with the provided registry.
func NewImageStoreMetrics(registry *prometheus.Registry) (*ImageStoreMetrics, error) {
	m := &ImageStoreMetrics{registry: registry}
	if err := m.initMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize image store metrics: %w", err)
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register image store metrics: %w", err)
	}
	return m, nil
}

func (m *ImageStoreMetrics) initMetrics() error {
	m.SavesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "imagestore_saves_total",
		Help: "Total number of scan images written.",
	})

	m.SaveErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "imagestore_save_errors_total",
		Help: "Total number of failed image writes.",
	})

	m.DeletesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "imagestore_deletes_total",
		Help: "Total number of scan image deletions.",
	})

	m.SaveDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "imagestore_save_duration_seconds",
		Help:    "Duration of image encode and write operations.",
		Buckets: prometheus.ExponentialBuckets(BucketStart1ms, BucketFactor2, BucketCount12),
	})

	m.OrphansDeleted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "imagestore_orphans_deleted_total",
		Help: "Total number of orphaned files removed by cleanup.",
	})

	m.BytesReclaimed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "imagestore_bytes_reclaimed_total",
		Help: "Total bytes reclaimed by orphan cleanup.",
	})

	m.DiskUsage = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "imagestore_disk_usage_bytes",
		Help: "Current disk usage of the managed image directories.",
	})

	return nil
}

// RecordSave records one image write with its duration.
func (m *ImageStoreMetrics) RecordSave(durationSeconds float64) {
	m.SavesTotal.Inc()
	m.SaveDuration.Observe(durationSeconds)
}

// RecordSaveError increases the failed write counter by one.
func (m *ImageStoreMetrics) RecordSaveError() {
	m.SaveErrors.Inc()
}

// RecordDelete increases the deletion counter by one.
func (m *ImageStoreMetrics) RecordDelete() {
	m.DeletesTotal.Inc()
}

// RecordCleanup records the result of an orphan cleanup pass.
func (m *ImageStoreMetrics) RecordCleanup(filesDeleted int, bytesReclaimed int64) {
	m.OrphansDeleted.Add(float64(filesDeleted))
	m.BytesReclaimed.Add(float64(bytesReclaimed))
}

// SetDiskUsage updates the disk usage gauge.
func (m *ImageStoreMetrics) SetDiskUsage(bytes float64) {
	m.DiskUsage.Set(bytes)
}

// Collect implements the prometheus.Collector interface.
func (m *ImageStoreMetrics) Collect(ch chan<- prometheus.Metric) {
	ch <- m.SavesTotal
	ch <- m.SaveErrors
	ch <- m.DeletesTotal
	ch <- m.SaveDuration
	ch <- m.OrphansDeleted
	ch <- m.BytesReclaimed
	ch <- m.DiskUsage
}

// Describe implements the prometheus.Collector interface.
func (m *ImageStoreMetrics) Describe(ch chan<- *prometheus.Desc) {
	ch <- m.SavesTotal.Desc()
	ch <- m.SaveErrors.Desc()
	ch <- m.DeletesTotal.Desc()
	ch <- m.SaveDuration.Desc()
	ch <- m.OrphansDeleted.Desc()
	ch <- m.BytesReclaimed.Desc()
	ch <- m.DiskUsage.Desc()
}
