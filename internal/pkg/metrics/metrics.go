package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pourzone",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total HTTP requests processed",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "pourzone",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"method", "path"})

	httpResponseSize = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "pourzone",
		Subsystem: "http",
		Name:      "response_size_bytes",
		Help:      "HTTP response size in bytes",
		Buckets:   prometheus.ExponentialBuckets(100, 10, 6),
	}, []string{"method", "path"})

	// Throttler metrics
	ThrottlerQueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "pourzone",
		Subsystem: "throttler",
		Name:      "queue_depth",
		Help:      "Requests waiting for a dispatch slot",
	}, []string{"throttler"})

	ThrottlerDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pourzone",
		Subsystem: "throttler",
		Name:      "dispatched_total",
		Help:      "Total requests dispatched",
	}, []string{"throttler"})

	ThrottlerWaitSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "pourzone",
		Subsystem: "throttler",
		Name:      "queue_wait_seconds",
		Help:      "Time between submission and dispatch",
		Buckets:   []float64{0.01, 0.1, 0.5, 1, 2, 4, 8, 16, 32},
	}, []string{"throttler"})

	// Resolution metrics
	ZoneResolutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pourzone",
		Subsystem: "zones",
		Name:      "resolutions_total",
		Help:      "Zone resolutions by verdict source and outcome",
	}, []string{"source", "outcome"})

	ZoneCatalogueSize = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "pourzone",
		Subsystem: "zones",
		Name:      "catalogue_size",
		Help:      "Zones in the currently loaded catalogue",
	})

	StoreResolutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pourzone",
		Subsystem: "stores",
		Name:      "resolutions_total",
		Help:      "Store resolutions by lookup path and outcome",
	}, []string{"path", "outcome"})

	StoreResolutionsCoalesced = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pourzone",
		Subsystem: "stores",
		Name:      "coalesced_total",
		Help:      "Store resolutions answered by an identical in-flight lookup",
	})

	GeocodeRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pourzone",
		Subsystem: "geocode",
		Name:      "requests_total",
		Help:      "Geocoding requests by provider, operation and outcome",
	}, []string{"provider", "operation", "outcome"})

	// Outbound backend metrics
	BackendRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pourzone",
		Subsystem: "backend",
		Name:      "requests_total",
		Help:      "Storefront backend requests by endpoint and status class",
	}, []string{"endpoint", "status"})

	BackendRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "pourzone",
		Subsystem: "backend",
		Name:      "request_duration_seconds",
		Help:      "Storefront backend request latency, retries included",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"endpoint"})

	// Session metrics
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "pourzone",
		Subsystem: "sessions",
		Name:      "active",
		Help:      "Location sessions held in memory",
	})

	SessionTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pourzone",
		Subsystem: "sessions",
		Name:      "transitions_total",
		Help:      "Location state transitions by target phase",
	}, []string{"phase"})

	ActiveWebSockets = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "pourzone",
		Subsystem: "ws",
		Name:      "active_connections",
		Help:      "Current number of active WebSocket connections",
	})

	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pourzone",
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Total cache hits",
	}, []string{"operation"})

	CacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pourzone",
		Subsystem: "cache",
		Name:      "misses_total",
		Help:      "Total cache misses",
	}, []string{"operation"})

	// Database pool metrics
	DBPoolConnsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "pourzone",
		Subsystem: "db",
		Name:      "pool_conns_open",
		Help:      "Total connections open in the database pool",
	})

	DBPoolConnsAcquired = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "pourzone",
		Subsystem: "db",
		Name:      "pool_conns_acquired",
		Help:      "Connections currently acquired from the database pool",
	})

	DBPoolConnsIdle = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "pourzone",
		Subsystem: "db",
		Name:      "pool_conns_idle",
		Help:      "Idle connections in the database pool",
	})
)

// Outcome labels shared by the resolution counters.
const (
	OutcomeOK         = "ok"
	OutcomeEmpty      = "empty"
	OutcomeError      = "error"
	OutcomeFallback   = "fallback"
	OutcomeNoCoverage = "no_coverage"
)

// Middleware records request metrics.
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Response().StatusCode())
		// fiber resolves the route pattern, which keeps :id out of the label set
		path := c.Route().Path
		if path == "" {
			path = c.Path()
		}
		method := c.Method()

		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpRequestDuration.WithLabelValues(method, path).Observe(duration)
		httpResponseSize.WithLabelValues(method, path).Observe(float64(len(c.Response().Body())))

		return err
	}
}

// Handler returns a Fiber handler serving Prometheus /metrics endpoint.
func Handler() fiber.Handler {
	handler := fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())
	return func(c *fiber.Ctx) error {
		handler(c.Context())
		return nil
	}
}

// PoolStat is the subset of pgxpool.Stat the pool gauges read.
type PoolStat interface {
	AcquiredConns() int32
	IdleConns() int32
	TotalConns() int32
}

// UpdateDBPoolMetrics copies pool stats into the pool gauges.
func UpdateDBPoolMetrics(s PoolStat) {
	if s == nil {
		return
	}
	DBPoolConnsAcquired.Set(float64(s.AcquiredConns()))
	DBPoolConnsIdle.Set(float64(s.IdleConns()))
	DBPoolConnsOpen.Set(float64(s.TotalConns()))
}
