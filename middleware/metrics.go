package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"go-slim.dev/relay"
)

// Metrics records request counts and durations per route. Samples are
// taken in Terminate, after the response has been written, so requests
// short-circuited by earlier middleware are counted as well.
type Metrics struct {
	registry *prometheus.Registry
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics registers the collectors on registry, a fresh one when nil.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	m := &Metrics{
		registry: registry,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_requests_total",
			Help: "Number of requests handled, by route, method and status.",
		}, []string{"route", "method", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "relay_request_duration_seconds",
			Help:    "Time spent handling requests, by route and method.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}
	registry.MustRegister(m.requests, m.duration)
	return m
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Requests returns the request counter.
func (m *Metrics) Requests() *prometheus.CounterVec { return m.requests }

// Factory returns the middleware factory to register on a router; each
// request gets its own instance.
func (m *Metrics) Factory() relay.MiddlewareFactory {
	return func() relay.Middleware {
		return &metricsRecorder{metrics: m}
	}
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// MetricsHandler returns a route action serving m.
func MetricsHandler(m *Metrics) relay.HandlerFunc {
	return relay.WrapHandler(m.Handler())
}

type metricsRecorder struct {
	metrics *Metrics
	start   time.Time
}

func (r *metricsRecorder) Handle(c relay.Context, next relay.HandlerFunc, _ ...string) error {
	r.start = time.Now()
	return next(c)
}

func (r *metricsRecorder) Terminate(c relay.Context) error {
	route := "unmatched"
	if rt := c.Route(); rt != nil {
		route = rt.RouteName()
		if route == "" {
			route = rt.URI()
		}
	}
	method := c.Request().Method
	status := c.Response().Status()
	if status == 0 {
		status = http.StatusOK
	}
	r.metrics.requests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	if !r.start.IsZero() {
		r.metrics.duration.WithLabelValues(route, method).Observe(time.Since(r.start).Seconds())
	}
	return nil
}
