package middleware

import (
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-slim.dev/relay"
)

func counterValue(t *testing.T, m *Metrics, route, method, status string) float64 {
	t.Helper()
	return testutil.ToFloat64(m.Requests().WithLabelValues(route, method, status))
}

func TestMetrics_CountsByRouteAndStatus(t *testing.T) {
	metrics := NewMetrics(nil)
	app := relay.New()
	RegisterDefaults(app.Router(), DefaultsConfig{Metrics: metrics})
	app.Router().MiddlewarePriority(NameMetrics, NameThrottle)
	app.Group(relay.Attributes{Prefix: "api", Middleware: []string{"metrics", "throttle:1,1"}}, func(g *relay.Group) {
		g.GET("/demo/ping", ok).Name("ping")
		g.GET("/anon", ok)
	})

	serve(app, http.MethodGet, "/api/demo/ping")
	serve(app, http.MethodGet, "/api/demo/ping")
	serve(app, http.MethodHead, "/api/anon", func(r *http.Request) { r.RemoteAddr = "203.0.113.9:1" })

	assert.Equal(t, 1.0, counterValue(t, metrics, "ping", http.MethodGet, "200"))
	// short-circuited by the throttle, still counted
	assert.Equal(t, 1.0, counterValue(t, metrics, "ping", http.MethodGet, "429"))
	assert.Equal(t, 1.0, counterValue(t, metrics, "/api/anon", http.MethodHead, "200"))
	assert.Equal(t, 3, testutil.CollectAndCount(metrics.Requests()))
	assert.Equal(t, 2, testutil.CollectAndCount(metrics.duration))
}

func TestMetrics_Handler(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	assert.Same(t, reg, metrics.Registry())

	app := relay.New()
	app.Router().Register(NameMetrics, metrics.Factory())
	app.GET("/x", ok).Name("x").Middleware(NameMetrics)
	app.GET("/metrics", MetricsHandler(metrics))

	serve(app, http.MethodGet, "/x")
	rec := serve(app, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), `relay_requests_total{method="GET",route="x",status="200"} 1`)
	assert.Contains(t, string(body), "relay_request_duration_seconds_bucket")

	expected := `
# HELP relay_requests_total Number of requests handled, by route, method and status.
# TYPE relay_requests_total counter
relay_requests_total{method="GET",route="x",status="200"} 1
`
	assert.NoError(t, testutil.CollectAndCompare(metrics.Requests(), strings.NewReader(expected)))
}

func TestMetrics_FreshRecorderPerRequest(t *testing.T) {
	metrics := NewMetrics(nil)
	factory := metrics.Factory()
	assert.NotSame(t, factory(), factory())
}
