// Package metrics provides per-run deduplication metrics
package metrics

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/afero"
)

// DedupMetrics contains Prometheus metrics for one deduplication run
type DedupMetrics struct {
	registry *prometheus.Registry

	imagesTotal        *prometheus.CounterVec
	errorsTotal        *prometheus.CounterVec
	bytesTotal         prometheus.Counter
	hammingDistance    prometheus.Histogram
	classifyDuration   prometheus.Histogram
	representatives    prometheus.Gauge
	runDurationSeconds prometheus.Gauge
}

// NewDedupMetrics creates and registers new deduplication metrics
func NewDedupMetrics(registry *prometheus.Registry) (*DedupMetrics, error) {
	m := &DedupMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *DedupMetrics) initMetrics() {
	m.imagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imagededup_images_total",
			Help: "Total number of images by classification",
		},
		[]string{"classification"}, // unique, exact_duplicate, similar_duplicate, error
	)

	m.errorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imagededup_errors_total",
			Help: "Total number of recoverable errors by kind",
		},
		[]string{"kind"},
	)

	m.bytesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "imagededup_input_bytes_total",
		Help: "Total number of image bytes read from the inputs",
	})

	m.hammingDistance = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "imagededup_hamming_distance",
		Help:    "Hamming distance of duplicate links",
		Buckets: prometheus.LinearBuckets(0, 2, 17), // 0 to 32
	})

	m.classifyDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "imagededup_classify_duration_seconds",
		Help:    "Time taken to classify one image",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14), // 100µs to ~1.6s
	})

	m.representatives = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "imagededup_representatives",
		Help: "Number of registered representatives",
	})

	m.runDurationSeconds = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "imagededup_run_duration_seconds",
		Help: "Wall time of the run",
	})
}

// Describe implements the Collector interface
func (m *DedupMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.imagesTotal.Describe(ch)
	m.errorsTotal.Describe(ch)
	m.bytesTotal.Describe(ch)
	m.hammingDistance.Describe(ch)
	m.classifyDuration.Describe(ch)
	m.representatives.Describe(ch)
	m.runDurationSeconds.Describe(ch)
}

// Collect implements the Collector interface
func (m *DedupMetrics) Collect(ch chan<- prometheus.Metric) {
	m.imagesTotal.Collect(ch)
	m.errorsTotal.Collect(ch)
	m.bytesTotal.Collect(ch)
	m.hammingDistance.Collect(ch)
	m.classifyDuration.Collect(ch)
	m.representatives.Collect(ch)
	m.runDurationSeconds.Collect(ch)
}

// RecordImage counts one classified image
func (m *DedupMetrics) RecordImage(classification string, size int64, d time.Duration) {
	m.imagesTotal.WithLabelValues(classification).Inc()
	if size > 0 {
		m.bytesTotal.Add(float64(size))
	}
	m.classifyDuration.Observe(d.Seconds())
}

// RecordLink observes the distance of a duplicate link
func (m *DedupMetrics) RecordLink(distance int) {
	m.hammingDistance.Observe(float64(distance))
}

// RecordError counts one recoverable error
func (m *DedupMetrics) RecordError(kind string) {
	m.errorsTotal.WithLabelValues(kind).Inc()
}

// SetRepresentatives updates the representative gauge
func (m *DedupMetrics) SetRepresentatives(n int) {
	m.representatives.Set(float64(n))
}

// SetRunDuration records the wall time of the run
func (m *DedupMetrics) SetRunDuration(d time.Duration) {
	m.runDurationSeconds.Set(d.Seconds())
}

// WriteTextfile dumps the registry in the text exposition format to path on fs
func (m *DedupMetrics) WriteTextfile(fs afero.Fs, path string) error {
	families, err := m.registry.Gather()
	if err != nil {
		return fmt.Errorf("cannot gather metrics: %w", err)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("cannot create metrics directory %s: %w", dir, err)
		}
	}
	f, err := fs.Create(path)
	if err != nil {
		return fmt.Errorf("cannot write metrics to %s: %w", path, err)
	}
	defer f.Close()

	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(f, mf); err != nil {
			return fmt.Errorf("cannot write metrics to %s: %w", path, err)
		}
	}
	return f.Close()
}
