package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus metrics registry and standard meters.
type Metrics struct {
	Registry          *prometheus.Registry
	OperationDuration *prometheus.HistogramVec
	OperationTotal    *prometheus.CounterVec
	AuthFailures      *prometheus.CounterVec
	Carvings          *prometheus.GaugeVec
	GallerySize       prometheus.Gauge
	Officiants        prometheus.Gauge
}

// NewMetrics creates a custom Prometheus registry with the standard meters.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	opDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tree_operation_duration_seconds",
		Help:    "Duration of store operations in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "status"})

	opTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tree_operation_total",
		Help: "Total number of store operations.",
	}, []string{"operation", "status"})

	authFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tree_auth_failures_total",
		Help: "Total number of rejected authorizations.",
	}, []string{"operation", "reason"})

	carvings := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tree_carvings",
		Help: "Number of carvings by status.",
	}, []string{"status"})

	gallerySize := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tree_gallery_size",
		Help: "Number of carvings currently in the gallery.",
	})

	officiants := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tree_officiants",
		Help: "Number of appointed officiants.",
	})

	reg.MustRegister(opDuration, opTotal, authFailures, carvings, gallerySize, officiants)

	return &Metrics{
		Registry:          reg,
		OperationDuration: opDuration,
		OperationTotal:    opTotal,
		AuthFailures:      authFailures,
		Carvings:          carvings,
		GallerySize:       gallerySize,
		Officiants:        officiants,
	}
}
