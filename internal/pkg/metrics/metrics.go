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
		Namespace: "proxima",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total HTTP requests processed",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "proxima",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"method", "path"})

	httpResponseSize = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "proxima",
		Subsystem: "http",
		Name:      "response_size_bytes",
		Help:      "HTTP response size in bytes",
		Buckets:   prometheus.ExponentialBuckets(100, 10, 6),
	}, []string{"method", "path"})

	// Geolocation acquisition
	AcquisitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "proxima",
		Subsystem: "geolocation",
		Name:      "acquisitions_total",
		Help:      "Location acquisitions by profile and outcome (acquired, cached, denied, timeout, unsupported, unavailable)",
	}, []string{"profile", "outcome"})

	AcquisitionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "proxima",
		Subsystem: "geolocation",
		Name:      "sensor_duration_seconds",
		Help:      "Duration of sensor location requests",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 15},
	}, []string{"profile"})

	// Resolution and ranking
	EntitiesResolved = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "proxima",
		Subsystem: "catalog",
		Name:      "entities_resolved",
		Help:      "Catalog entities by resolved location precision",
	}, []string{"precision"})

	CatalogLoadErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "proxima",
		Subsystem: "catalog",
		Name:      "load_errors_total",
		Help:      "Total catalog load failures",
	})

	RankingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "proxima",
		Subsystem: "ranking",
		Name:      "duration_seconds",
		Help:      "Time spent ranking the catalog",
		Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
	})

	// Viewport
	ViewportApplies = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "proxima",
		Subsystem: "viewport",
		Name:      "applies_total",
		Help:      "Programmatic viewport updates by outcome (applied, suppressed, stale, abandoned, ignored)",
	}, []string{"outcome"})

	ViewportRendererRetries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "proxima",
		Subsystem: "viewport",
		Name:      "renderer_retries_total",
		Help:      "Apply attempts retried because the renderer was not ready",
	})

	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "proxima",
		Subsystem: "ws",
		Name:      "active_sessions",
		Help:      "Current number of live map sessions",
	})

	PresenceChanges = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "proxima",
		Subsystem: "presence",
		Name:      "changes_total",
		Help:      "Provider online flags changed by heartbeats or timeouts",
	})

	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "proxima",
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Total cache hits",
	}, []string{"operation"})

	CacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "proxima",
		Subsystem: "cache",
		Name:      "misses_total",
		Help:      "Total cache misses",
	}, []string{"operation"})

	// Database pool metrics
	DBPoolConnsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "proxima",
		Subsystem: "db",
		Name:      "pool_conns_open",
		Help:      "Total connections open in the database pool",
	})

	DBPoolConnsAcquired = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "proxima",
		Subsystem: "db",
		Name:      "pool_conns_acquired",
		Help:      "Connections currently acquired from the database pool",
	})

	DBPoolConnsIdle = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "proxima",
		Subsystem: "db",
		Name:      "pool_conns_idle",
		Help:      "Idle connections in the database pool",
	})
)

// Middleware records request metrics.
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Response().StatusCode())
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
	handler := promhttp.Handler()
	return func(c *fiber.Ctx) error {
		fasthttpadaptor.NewFastHTTPHandler(handler)(c.Context())
		return nil
	}
}

// UpdateDBPoolMetrics copies pool statistics into the db gauges. stat is
// anything exposing the pgxpool.Stat counters, which keeps pgx out of this package.
func UpdateDBPoolMetrics(stat interface{}) {
	type poolStat interface {
		AcquiredConns() int32
		IdleConns() int32
		TotalConns() int32
	}

	if s, ok := stat.(poolStat); ok {
		DBPoolConnsAcquired.Set(float64(s.AcquiredConns()))
		DBPoolConnsIdle.Set(float64(s.IdleConns()))
		DBPoolConnsOpen.Set(float64(s.TotalConns()))
	}
}
