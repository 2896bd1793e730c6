package metrics

import "github.com/prometheus/client_golang/prometheus"

// Classification and extraction Prometheus metrics.
var (
	ClassificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "malscan",
			Name:      "classifications_total",
			Help:      "Total number of classification requests",
		},
		[]string{"format", "label", "status"},
	)

	ClassificationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "malscan",
			Name:      "classification_duration_seconds",
			Help:      "Classifier inference duration in seconds",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		},
		[]string{"format"},
	)

	ExtractionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "malscan",
			Name:      "extractions_total",
			Help:      "Total number of artifact extractions",
		},
		[]string{"kind", "result"}, // "ok" / "empty"
	)

	ExtractionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "malscan",
			Name:      "extraction_duration_seconds",
			Help:      "Feature extraction duration in seconds",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"kind"},
	)

	ArtifactBytes = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "malscan",
			Name:      "artifact_size_bytes",
			Help:      "Size of analyzed artifacts",
			Buckets:   prometheus.ExponentialBuckets(1024, 4, 10),
		},
	)

	VerdictCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "malscan",
			Name:      "verdict_cache_total",
			Help:      "Verdict cache hits and misses",
		},
		[]string{"result"}, // "hit" / "miss"
	)

	ModelLoaded = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "malscan",
			Name:      "model_loaded",
			Help:      "1 when a classifier is loaded, 0 when serving degraded",
		},
		[]string{"format"},
	)
)

var classificationMetricsRegistered bool

// RegisterClassificationMetrics registers classification and extraction metrics.
// Must be called once from main.
func RegisterClassificationMetrics() {
	if classificationMetricsRegistered {
		return
	}
	prometheus.MustRegister(ClassificationsTotal)
	prometheus.MustRegister(ClassificationDuration)
	prometheus.MustRegister(ExtractionsTotal)
	prometheus.MustRegister(ExtractionDuration)
	prometheus.MustRegister(ArtifactBytes)
	prometheus.MustRegister(VerdictCacheTotal)
	prometheus.MustRegister(ModelLoaded)
	classificationMetricsRegistered = true
}
