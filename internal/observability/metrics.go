// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the monitor.
type Metrics struct {
	// Ingestion metrics
	LinesRead    prometheus.Counter
	EventsParsed prometheus.Counter
	ParseDrops   prometheus.Counter

	// Detection metrics
	AnomaliesDetected *prometheus.CounterVec
	RecordsPersisted  prometheus.Counter
	WindowSize        prometheus.Gauge

	// Model lifecycle metrics
	ModelTrainings   *prometheus.CounterVec
	TrainingErrors   prometheus.Counter
	AnomalyThreshold prometheus.Gauge
	TrainingBuffer   prometheus.Gauge
	ScoreLatency     prometheus.Histogram
	TrainLatency     prometheus.Histogram

	// Side-effect failure metrics
	SinkErrors  prometheus.Counter
	AlertErrors prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "txn_sentinel"
	}

	return &Metrics{
		LinesRead: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "lines_read_total",
			Help:      "Total number of raw log lines received",
		}),
		EventsParsed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "events_parsed_total",
			Help:      "Total number of lines parsed into transaction events",
		}),
		ParseDrops: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "parse_drops_total",
			Help:      "Total number of lines dropped as malformed or partial",
		}),

		AnomaliesDetected: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "detect",
			Name:      "anomalies_total",
			Help:      "Total number of anomaly labels emitted, by type",
		}, []string{"type"}),
		RecordsPersisted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "detect",
			Name:      "records_persisted_total",
			Help:      "Total number of anomaly records written to the sink",
		}),
		WindowSize: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "detect",
			Name:      "global_window_size",
			Help:      "Current number of entries in the global sliding window",
		}),

		ModelTrainings: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "model",
			Name:      "trainings_total",
			Help:      "Total number of model trainings, by kind (initial, retrain)",
		}, []string{"kind"}),
		TrainingErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "model",
			Name:      "training_errors_total",
			Help:      "Total number of failed training cycles",
		}),
		AnomalyThreshold: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "model",
			Name:      "anomaly_threshold",
			Help:      "Current reconstruction-error anomaly threshold",
		}),
		TrainingBuffer: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "model",
			Name:      "training_buffer_lines",
			Help:      "Current number of raw lines in the rolling training buffer",
		}),
		ScoreLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "model",
			Name:      "score_duration_seconds",
			Help:      "Latency of scoring one batch",
			Buckets:   prometheus.DefBuckets,
		}),
		TrainLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "model",
			Name:      "train_duration_seconds",
			Help:      "Latency of one training cycle",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}),

		SinkErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sink",
			Name:      "errors_total",
			Help:      "Total number of failed anomaly record writes",
		}),
		AlertErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alert",
			Name:      "errors_total",
			Help:      "Total number of failed alert deliveries",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordLines counts received raw lines.
func RecordLines(n int) {
	DefaultMetrics.LinesRead.Add(float64(n))
}

// RecordParsed counts parsed events and dropped lines for one batch.
func RecordParsed(events, lines int) {
	DefaultMetrics.EventsParsed.Add(float64(events))
	DefaultMetrics.ParseDrops.Add(float64(lines - events))
}

// RecordAnomaly counts one emitted anomaly record and its labels.
func RecordAnomaly(types []string) {
	DefaultMetrics.RecordsPersisted.Inc()
	for _, t := range types {
		DefaultMetrics.AnomaliesDetected.WithLabelValues(t).Inc()
	}
}

// RecordTraining records a completed training cycle.
func RecordTraining(kind string, threshold float64, seconds float64) {
	DefaultMetrics.ModelTrainings.WithLabelValues(kind).Inc()
	DefaultMetrics.AnomalyThreshold.Set(threshold)
	DefaultMetrics.TrainLatency.Observe(seconds)
}

// RecordTrainingError counts a failed training cycle.
func RecordTrainingError() {
	DefaultMetrics.TrainingErrors.Inc()
}

// RecordScoreLatency records scoring latency for one batch.
func RecordScoreLatency(seconds float64) {
	DefaultMetrics.ScoreLatency.Observe(seconds)
}

// UpdateDetectionState updates the buffer and window gauges.
func UpdateDetectionState(bufferLines, windowSize int) {
	DefaultMetrics.TrainingBuffer.Set(float64(bufferLines))
	DefaultMetrics.WindowSize.Set(float64(windowSize))
}

// RecordSinkError counts a failed record write.
func RecordSinkError() {
	DefaultMetrics.SinkErrors.Inc()
}

// RecordAlertError counts a failed alert delivery.
func RecordAlertError() {
	DefaultMetrics.AlertErrors.Inc()
}
