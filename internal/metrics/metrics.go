package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace = "imagevariants"

	OutcomeGenerated = "generated"
	OutcomeReused    = "reused"
	OutcomeSkipped   = "skipped"
	OutcomeFailed    = "failed"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"method", "route"},
	)

	VariantsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "derivation",
			Name:      "variants_total",
			Help:      "Variant derivation attempts by type and outcome",
		},
		[]string{"type", "outcome"},
	)

	DerivationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "derivation",
			Name:      "duration_seconds",
			Help:      "Time spent deriving one variant",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"type"},
	)

	StorageOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "operations_total",
			Help:      "Object storage operations",
		},
		[]string{"operation", "status"},
	)

	FamilyResolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "family",
			Name:      "resolutions_total",
			Help:      "Original lookups by resolution status",
		},
		[]string{"status"},
	)

	ImagesDeletedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "deletion",
			Name:      "images_total",
			Help:      "Images removed, by operation",
		},
		[]string{"operation"},
	)

	DeletionRollbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "deletion",
			Name:      "rollbacks_total",
			Help:      "Deletion transactions rolled back, by operation",
		},
		[]string{"operation"},
	)

	OrphanVariants = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "family",
			Name:      "orphan_variants",
			Help:      "Variants whose original no longer exists, as of the last sweep",
		},
	)
)

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

func RecordRequest(method, route, status string, durationSec float64) {
	RequestsTotal.WithLabelValues(method, route, status).Inc()
	RequestDuration.WithLabelValues(method, route).Observe(durationSec)
}

func RecordVariant(variantType, outcome string, durationSec float64) {
	VariantsTotal.WithLabelValues(variantType, outcome).Inc()
	if outcome == OutcomeGenerated {
		DerivationDuration.WithLabelValues(variantType).Observe(durationSec)
	}
}

func RecordStorage(operation string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	StorageOperationsTotal.WithLabelValues(operation, status).Inc()
}

func RecordResolution(status string) {
	FamilyResolutionsTotal.WithLabelValues(status).Inc()
}

func RecordDeleted(operation string, count int) {
	ImagesDeletedTotal.WithLabelValues(operation).Add(float64(count))
}

func RecordRollback(operation string) {
	DeletionRollbacksTotal.WithLabelValues(operation).Inc()
}
