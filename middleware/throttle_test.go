package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"go-slim.dev/relay"
)

func serve(app http.Handler, method, target string, opts ...func(*http.Request)) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for _, opt := range opts {
		opt(req)
	}
	rec := httptest.NewRecorder()
	app.ServeHTTP(rec, req)
	return rec
}

func ok(c relay.Context) error { return c.String(http.StatusOK, "ok") }

func TestRateLimiterMemoryStore_AllowAndCleanup(t *testing.T) {
	store := NewRateLimiterMemoryStoreWithConfig(RateLimiterMemoryStoreConfig{
		Rate:      1, // 1 rps
		Burst:     1,
		ExpiresIn: 10 * time.Millisecond,
	})
	now := time.Now()
	store.timeNow = func() time.Time { return now }

	allowed, err := store.Allow("a")
	require.NoError(t, err)
	assert.True(t, allowed, "first allow should pass")
	allowed, _ = store.Allow("a")
	assert.False(t, allowed, "second immediate allow should be denied")

	now = now.Add(20 * time.Millisecond)
	store.mutex.Lock()
	store.cleanupStaleVisitors()
	store.mutex.Unlock()
	assert.Equal(t, 0, store.Len())
}

func TestRateLimiterMemoryStore_DefaultBurst(t *testing.T) {
	store := NewRateLimiterMemoryStore(rate.Limit(3.7))
	assert.Equal(t, 3, store.burst)
	assert.Equal(t, DefaultRateLimiterMemoryStoreConfig.ExpiresIn, store.expiresIn)

	store = NewRateLimiterMemoryStore(rate.Limit(0.5))
	assert.Equal(t, 1, store.burst)
}

func TestRateLimiterMemoryStore_Take(t *testing.T) {
	store := NewRateLimiterMemoryStore(1)
	now := time.Now()
	store.timeNow = func() time.Time { return now }
	limit := rate.Limit(2.0 / 60) // two per minute

	d := store.Take("k", limit, 2)
	assert.Equal(t, Decision{Allowed: true, Limit: 2, Remaining: 1}, d)
	d = store.Take("k", limit, 2)
	assert.True(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)

	d = store.Take("k", limit, 2)
	assert.False(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)
	assert.Equal(t, 30*time.Second, d.RetryAfter)

	// a denied take consumes nothing
	now = now.Add(31 * time.Second)
	d = store.Take("k", limit, 2)
	assert.True(t, d.Allowed)

	// buckets are independent
	assert.True(t, store.Take("other", limit, 2).Allowed)
	assert.Equal(t, 2, store.Len())
}

func TestRateLimiter_DeniesOnSecondRequest(t *testing.T) {
	app := relay.New()
	store := NewRateLimiterMemoryStoreWithConfig(RateLimiterMemoryStoreConfig{Rate: 1, Burst: 1})
	app.Use(RateLimiter(store))
	app.GET("/", ok)

	assert.Equal(t, http.StatusOK, serve(app, http.MethodGet, "/").Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(app, http.MethodGet, "/").Code)
}

type failingStore struct{}

func (failingStore) Allow(string) (bool, error) { return false, errors.New("store down") }

func TestRateLimiter_ExtractorAndStoreErrors(t *testing.T) {
	app := relay.New()
	app.Use(RateLimiterWithConfig(RateLimiterConfig{
		Store: failingStore{},
		Skipper: func(c relay.Context) bool {
			return c.Request().URL.Path == "/skip"
		},
	}))
	app.GET("/", ok)
	app.GET("/skip", ok)
	assert.Equal(t, http.StatusTooManyRequests, serve(app, http.MethodGet, "/").Code)
	assert.Equal(t, http.StatusOK, serve(app, http.MethodGet, "/skip").Code)

	app = relay.New()
	app.Use(RateLimiterWithConfig(RateLimiterConfig{
		Store:               NewRateLimiterMemoryStore(10),
		IdentifierExtractor: func(relay.Context) (string, error) { return "", errors.New("no id") },
	}))
	app.GET("/", ok)
	assert.Equal(t, http.StatusForbidden, serve(app, http.MethodGet, "/").Code)

	assert.Panics(t, func() { RateLimiter(nil) })
}

func newThrottleApp(config ThrottleConfig) *relay.Relay {
	app := relay.New()
	RegisterDefaults(app.Router(), DefaultsConfig{Throttle: &config})
	app.Router().MiddlewareGroup("api", "throttle:2,1")
	app.Group(relay.Attributes{Prefix: "api", Middleware: []string{"api"}}, func(g *relay.Group) {
		g.GET("/demo/ping", ok).Name("ping")
		g.GET("/demo/pong", ok).Name("pong")
	})
	return app
}

func TestThrottle_EndToEnd(t *testing.T) {
	app := newThrottleApp(ThrottleConfig{})

	rec := serve(app, http.MethodGet, "/api/demo/ping")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2", rec.Header().Get(relay.HeaderXRateLimitLimit))
	assert.Equal(t, "1", rec.Header().Get(relay.HeaderXRateLimitRemaining))

	rec = serve(app, http.MethodGet, "/api/demo/ping")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "0", rec.Header().Get(relay.HeaderXRateLimitRemaining))

	rec = serve(app, http.MethodGet, "/api/demo/ping")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "Too Many Attempts.", rec.Body.String())
	assert.Equal(t, "30", rec.Header().Get(relay.HeaderRetryAfter))
	assert.Equal(t, "0", rec.Header().Get(relay.HeaderXRateLimitRemaining))

	// the bucket is shared across routes unless PerRoute is set
	assert.Equal(t, http.StatusTooManyRequests, serve(app, http.MethodGet, "/api/demo/pong").Code)

	// another client has its own bucket
	rec = serve(app, http.MethodGet, "/api/demo/ping", func(r *http.Request) { r.RemoteAddr = "198.51.100.7:4000" })
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestThrottle_PerRoute(t *testing.T) {
	app := newThrottleApp(ThrottleConfig{PerRoute: true})
	for i := 0; i < 2; i++ {
		require.Equal(t, http.StatusOK, serve(app, http.MethodGet, "/api/demo/ping").Code)
	}
	assert.Equal(t, http.StatusTooManyRequests, serve(app, http.MethodGet, "/api/demo/ping").Code)
	assert.Equal(t, http.StatusOK, serve(app, http.MethodGet, "/api/demo/pong").Code)
}

func TestThrottle_DefaultsAndBadArguments(t *testing.T) {
	th := NewThrottle(ThrottleConfig{MaxAttempts: 1, DecayMinutes: 0.5})
	maxAttempts, decay, err := th.limits(nil)
	require.NoError(t, err)
	assert.Equal(t, 1, maxAttempts)
	assert.Equal(t, 0.5, decay)

	maxAttempts, decay, err = th.limits([]string{"10"})
	require.NoError(t, err)
	assert.Equal(t, 10, maxAttempts)
	assert.Equal(t, 0.5, decay)

	for _, args := range [][]string{{"x"}, {"0"}, {"5", "never"}, {"5", "-1"}} {
		_, _, err = th.limits(args)
		assert.ErrorIs(t, err, relay.ErrConfiguration, args)
	}

	app := relay.New()
	app.Router().Register("throttle", relay.Singleton(th))
	app.GET("/", ok).Middleware("throttle:lots")
	assert.Equal(t, http.StatusInternalServerError, serve(app, http.MethodGet, "/").Code)
}
