package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
)

var HistogramBuckets = []float64{
	// --- Fast responses (0 - 500ms) ---
	25, 50, 75, 100, 150, 200, 300, 400, 500,

	// --- Medium responses (500ms - 2s) ---
	750, 1000, 1250, 1500, 1750, 2000,

	// --- Slow responses (2s - 15s) ---
	2500, 3000, 4000, 5000, 7500, 10000, 15000,

	// --- External-call range (15s+) ---
	20000, 30000, 45000, 60000,
}

// Metrics owns the service registry and all collectors. HTTP collectors are
// driven by the gin middleware; domain collectors are bumped by the services.
type Metrics struct {
	registry *prometheus.Registry

	ReqTotal    *prometheus.CounterVec
	ReqDuration *prometheus.HistogramVec

	PurchasesCreated     prometheus.Counter
	Reconciliations      *prometheus.CounterVec
	ProvisionFailures    prometheus.Counter
	NotificationsPushed  prometheus.Counter
	NotificationsDropped prometheus.Counter
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		ReqTotal: f.NewCounterVec(prometheus.CounterOpts{
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests by status, method and path.",
		}, []string{"status", "method", "path"}),
		ReqDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Subsystem: "http",
			Name:      "request_duration_ms",
			Help:      "HTTP request latency in milliseconds.",
			Buckets:   HistogramBuckets,
		}, []string{"method", "path"}),
		PurchasesCreated: f.NewCounter(prometheus.CounterOpts{
			Subsystem: "portal",
			Name:      "purchases_created_total",
			Help:      "Purchase records created in PENDING.",
		}),
		Reconciliations: f.NewCounterVec(prometheus.CounterOpts{
			Subsystem: "portal",
			Name:      "reconciliations_total",
			Help:      "Reconciliation outcomes by terminal status.",
		}, []string{"outcome"}),
		ProvisionFailures: f.NewCounter(prometheus.CounterOpts{
			Subsystem: "portal",
			Name:      "provision_failures_total",
			Help:      "Failed access-controller provisioning calls.",
		}),
		NotificationsPushed: f.NewCounter(prometheus.CounterOpts{
			Subsystem: "portal",
			Name:      "notifications_pushed_total",
			Help:      "Outcome messages delivered over a live channel.",
		}),
		NotificationsDropped: f.NewCounter(prometheus.CounterOpts{
			Subsystem: "portal",
			Name:      "notifications_dropped_total",
			Help:      "Outcome messages with no live channel to deliver to.",
		}),
	}
}

// Handler exposes the registry for the standalone metrics listener.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// GinMiddleware records request count and latency. pathFn maps a request to
// its route template so path cardinality stays bounded.
func (m *Metrics) GinMiddleware(pathFn func(c *gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := pathFn(c)
		m.ReqTotal.WithLabelValues(strconv.Itoa(c.Writer.Status()), c.Request.Method, path).Inc()
		m.ReqDuration.WithLabelValues(c.Request.Method, path).Observe(float64(time.Since(start).Milliseconds()))
	}
}

var Module = fx.Options(
	fx.Provide(New),
)
