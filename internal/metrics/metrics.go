package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics aggregates the application's prometheus collectors.
type Metrics struct {
	OwnershipWrites  *prometheus.CounterVec
	Validations      *prometheus.CounterVec
	SnapshotsCreated prometheus.Counter
	PruneDeleted     *prometheus.CounterVec
	HTTPDuration     *prometheus.HistogramVec

	registry *prometheus.Registry
}

func New() *Metrics {
	m := &Metrics{
		OwnershipWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "travelmate_ownership_writes_total",
			Help: "Field writes resolved against the ownership ledger, by source and outcome.",
		}, []string{"source", "status"}),
		Validations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "travelmate_trip_validations_total",
			Help: "Trip validation runs, by readiness outcome.",
		}, []string{"ready"}),
		SnapshotsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "travelmate_export_snapshots_created_total",
			Help: "Export snapshots materialized.",
		}),
		PruneDeleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "travelmate_retention_pruned_total",
			Help: "Artifacts removed by the retention worker, by artifact class.",
		}, []string{"class"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "travelmate_http_request_duration_seconds",
			Help:    "HTTP request latency by route, method and status.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method", "status"}),
		registry: prometheus.NewRegistry(),
	}

	m.registry.MustRegister(
		m.OwnershipWrites,
		m.Validations,
		m.SnapshotsCreated,
		m.PruneDeleted,
		m.HTTPDuration,
	)
	return m
}

// Registry exposes the registry for the promhttp handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// GinMiddleware records request latency per route.
func GinMiddleware(m *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.HTTPDuration.WithLabelValues(
			route,
			c.Request.Method,
			strconv.Itoa(c.Writer.Status()),
		).Observe(time.Since(start).Seconds())
	}
}
