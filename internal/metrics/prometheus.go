// Package metrics provides Prometheus metrics for the transcript ingestion
// pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pipeline stages reported in error metrics.
const (
	StageFetch     = "fetch"
	StageNormalize = "normalize"
	StageExtract   = "extract"
	StageStore     = "store"
	StageValidate  = "validate"
)

// Manager owns the pipeline metrics and the registry they live in. A nil
// Manager records nothing.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         *prometheus.Registry

	documentsProcessed *prometheus.CounterVec
	ocrCalls           *prometheus.CounterVec
	ocrDuration        prometheus.Histogram
	gradesExtracted    *prometheus.CounterVec
	recordsUpserted    *prometheus.CounterVec
	pipelineErrors     *prometheus.CounterVec
	taskDuration       prometheus.Histogram
	workersActive      prometheus.Gauge
}

// Option applies a configuration option to the Manager.
type Option func(*Manager)

// WithNamespace sets the namespace for all metrics.
func WithNamespace(namespace string) Option {
	return func(m *Manager) {
		if namespace != "" {
			m.namespace = namespace
		}
	}
}

// WithHistogramBuckets sets the buckets of the duration histograms.
func WithHistogramBuckets(buckets []float64) Option {
	return func(m *Manager) {
		if len(buckets) > 0 {
			m.histogramBuckets = buckets
		}
	}
}

// WithRegistry registers the metrics on registry instead of a fresh one.
func WithRegistry(registry *prometheus.Registry) Option {
	return func(m *Manager) {
		if registry != nil {
			m.registry = registry
		}
	}
}

// NewManager creates a Manager with its own registry unless WithRegistry is given.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "transcripts",
		subsystem:        "ingest",
		histogramBuckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		registry:         prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.documentsProcessed = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "documents_processed_total",
		Help:      "Documents run through the pipeline by detected format and outcome",
	}, []string{"format", "outcome"})

	m.ocrCalls = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "ocr_calls_total",
		Help:      "OCR calls by result",
	}, []string{"result"})

	m.ocrDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "ocr_duration_seconds",
		Help:      "Duration of OCR calls",
		Buckets:   m.histogramBuckets,
	})

	m.gradesExtracted = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "grades_extracted_total",
		Help:      "Grade extractions by matching rule, none when no marker was found",
	}, []string{"rule"})

	m.recordsUpserted = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "records_upserted_total",
		Help:      "Performance records written by status",
	}, []string{"status"})

	m.pipelineErrors = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "errors_total",
		Help:      "Pipeline stage failures, fatal or degraded, by stage",
	}, []string{"stage"})

	m.taskDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "task_duration_seconds",
		Help:      "End to end duration of one ingestion task",
		Buckets:   m.histogramBuckets,
	})

	m.workersActive = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "workers_active",
		Help:      "Batch workers currently processing a task",
	})
}

// RecordDocument counts a normalized document.
func (m *Manager) RecordDocument(format, outcome string) {
	if m == nil {
		return
	}
	m.documentsProcessed.WithLabelValues(format, outcome).Inc()
}

// RecordOCR counts an OCR call and observes its duration.
func (m *Manager) RecordOCR(err error, d time.Duration) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	m.ocrCalls.WithLabelValues(result).Inc()
	m.ocrDuration.Observe(d.Seconds())
}

// RecordExtraction counts a grade extraction by the rule that matched.
func (m *Manager) RecordExtraction(rule string) {
	if m == nil {
		return
	}
	if rule == "" {
		rule = "none"
	}
	m.gradesExtracted.WithLabelValues(rule).Inc()
}

// RecordUpsert counts a stored record.
func (m *Manager) RecordUpsert(status string) {
	if m == nil {
		return
	}
	m.recordsUpserted.WithLabelValues(status).Inc()
}

// RecordError counts a failure at stage. Normalize and extract failures
// degrade the task to pending instead of failing it.
func (m *Manager) RecordError(stage string) {
	if m == nil {
		return
	}
	m.pipelineErrors.WithLabelValues(stage).Inc()
}

// RecordTask observes the duration of a finished task.
func (m *Manager) RecordTask(d time.Duration) {
	if m == nil {
		return
	}
	m.taskDuration.Observe(d.Seconds())
}

// WorkerStarted marks a batch worker busy.
func (m *Manager) WorkerStarted() {
	if m == nil {
		return
	}
	m.workersActive.Inc()
}

// WorkerDone marks a batch worker idle again.
func (m *Manager) WorkerDone() {
	if m == nil {
		return
	}
	m.workersActive.Dec()
}

// Registry returns the registry the metrics are registered on.
func (m *Manager) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Manager) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
