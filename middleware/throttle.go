package middleware

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"go-slim.dev/relay"
)

// RateLimiterStore is the interface to be implemented by custom stores.
type RateLimiterStore interface {
	// Allow reports whether the request identified by identifier may pass.
	Allow(identifier string) (bool, error)
}

// RateLimiterMemoryStoreConfig represents configuration for RateLimiterMemoryStore
type RateLimiterMemoryStoreConfig struct {
	Rate      rate.Limit    // Rate of requests allowed to pass as req/s. For more info check out Limiter docs - https://pkg.go.dev/golang.org/x/time/rate#Limit.
	Burst     int           // Burst is maximum number of requests to pass at the same moment. It additionally allows a number of requests to pass when rate limit is reached.
	ExpiresIn time.Duration // ExpiresIn is the duration after that a rate limiter is cleaned up
}

// DefaultRateLimiterMemoryStoreConfig provides default configuration values for RateLimiterMemoryStore
var DefaultRateLimiterMemoryStoreConfig = RateLimiterMemoryStoreConfig{
	ExpiresIn: 3 * time.Minute,
}

// Visitor signifies a unique user's limiter details
type Visitor struct {
	*rate.Limiter
	lastSeen time.Time
}

// RateLimiterMemoryStore keeps one token bucket per identifier in memory.
// Buckets not seen for ExpiresIn are dropped.
type RateLimiterMemoryStore struct {
	visitors map[string]*Visitor
	mutex    sync.Mutex
	rate     rate.Limit
	burst    int

	expiresIn   time.Duration
	lastCleanup time.Time

	timeNow func() time.Time
}

// NewRateLimiterMemoryStore returns a store allowing rate requests per
// second per identifier, with a burst of the same size rounded down.
func NewRateLimiterMemoryStore(r rate.Limit) *RateLimiterMemoryStore {
	return NewRateLimiterMemoryStoreWithConfig(RateLimiterMemoryStoreConfig{Rate: r})
}

// NewRateLimiterMemoryStoreWithConfig returns a store with config.
func NewRateLimiterMemoryStoreWithConfig(config RateLimiterMemoryStoreConfig) *RateLimiterMemoryStore {
	store := &RateLimiterMemoryStore{
		visitors:  make(map[string]*Visitor),
		rate:      config.Rate,
		burst:     config.Burst,
		expiresIn: config.ExpiresIn,
		timeNow:   time.Now,
	}
	if store.expiresIn == 0 {
		store.expiresIn = DefaultRateLimiterMemoryStoreConfig.ExpiresIn
	}
	if store.burst == 0 {
		store.burst = int(math.Max(1, float64(config.Rate)))
	}
	store.lastCleanup = store.timeNow()
	return store
}

// Decision is the outcome of Take.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Allow implements RateLimiterStore with the store's own rate and burst.
func (store *RateLimiterMemoryStore) Allow(identifier string) (bool, error) {
	return store.Take(identifier, store.rate, store.burst).Allowed, nil
}

// Take consumes one token from the bucket of identifier, creating it with
// limit and burst on first use. A denied take consumes nothing.
func (store *RateLimiterMemoryStore) Take(identifier string, limit rate.Limit, burst int) Decision {
	store.mutex.Lock()
	visitor, exists := store.visitors[identifier]
	if !exists {
		visitor = &Visitor{Limiter: rate.NewLimiter(limit, burst)}
		store.visitors[identifier] = visitor
	}
	now := store.timeNow()
	visitor.lastSeen = now
	if now.Sub(store.lastCleanup) > store.expiresIn {
		store.cleanupStaleVisitors()
	}
	store.mutex.Unlock()

	d := Decision{Limit: burst}
	r := visitor.ReserveN(now, 1)
	if !r.OK() {
		d.RetryAfter = time.Duration(float64(time.Second) / math.Max(float64(limit), 1e-9))
		return d
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		d.RetryAfter = delay
	} else {
		d.Allowed = true
	}
	d.Remaining = max(0, int(visitor.TokensAt(now)))
	return d
}

// cleanupStaleVisitors helps manage the size of the visitors map by
// removing stale records of users who haven't visited again after the
// configured expiry time has elapsed. Callers hold the mutex.
func (store *RateLimiterMemoryStore) cleanupStaleVisitors() {
	for id, visitor := range store.visitors {
		if store.timeNow().Sub(visitor.lastSeen) > store.expiresIn {
			delete(store.visitors, id)
		}
	}
	store.lastCleanup = store.timeNow()
}

// Len returns the number of live buckets.
func (store *RateLimiterMemoryStore) Len() int {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	return len(store.visitors)
}

// Extractor is used to extract data from relay.Context
type Extractor func(c relay.Context) (string, error)

// DefaultIdentifierExtractor identifies requests by client IP.
func DefaultIdentifierExtractor(c relay.Context) (string, error) {
	return c.RealIP(), nil
}

// RateLimiterConfig defines the configuration for the app-level rate limiter
type RateLimiterConfig struct {
	Skipper Skipper
	// IdentifierExtractor uses relay.Context to extract the identifier for a visitor
	IdentifierExtractor Extractor
	// Store defines a store for the rate limiter
	Store RateLimiterStore
}

// RateLimiter returns an app-level rate limiting middleware backed by
// store. A rejected request returns relay.ErrTooManyRequests.
func RateLimiter(store RateLimiterStore) relay.MiddlewareFunc {
	return RateLimiterWithConfig(RateLimiterConfig{Store: store})
}

// RateLimiterWithConfig returns a rate limiting middleware with config.
func RateLimiterWithConfig(config RateLimiterConfig) relay.MiddlewareFunc {
	if config.Store == nil {
		panic("relay: rate limiter store is required")
	}
	if config.IdentifierExtractor == nil {
		config.IdentifierExtractor = DefaultIdentifierExtractor
	}
	return func(c relay.Context, next relay.HandlerFunc) error {
		if config.Skipper != nil && config.Skipper(c) {
			return next(c)
		}
		id, err := config.IdentifierExtractor(c)
		if err != nil {
			return relay.ErrForbidden.WithInternal(err)
		}
		allowed, err := config.Store.Allow(id)
		if err != nil {
			return relay.ErrTooManyRequests.WithInternal(err)
		}
		if !allowed {
			return relay.ErrTooManyRequests
		}
		return next(c)
	}
}

// ThrottleConfig configures the throttle middleware.
type ThrottleConfig struct {
	// Store holds the buckets, a fresh memory store by default.
	Store *RateLimiterMemoryStore
	// IdentifierExtractor identifies the client, RealIP by default.
	IdentifierExtractor Extractor
	// PerRoute keys buckets by route as well as client.
	PerRoute bool
	// MaxAttempts and DecayMinutes apply when the reference has no args.
	MaxAttempts  int     `yaml:"max_attempts" toml:"max_attempts"`
	DecayMinutes float64 `yaml:"decay_minutes" toml:"decay_minutes"`
}

// DefaultThrottleConfig allows 60 requests per minute.
var DefaultThrottleConfig = ThrottleConfig{
	MaxAttempts:  60,
	DecayMinutes: 1,
}

// Throttle limits a client to max requests per decay minutes, taken from
// the reference arguments: "throttle:60,1". The response carries
// X-RateLimit-Limit and X-RateLimit-Remaining; a rejected request is
// answered with 429 and Retry-After without reaching the action.
type Throttle struct {
	config ThrottleConfig
}

// NewThrottle creates the concrete throttle middleware.
func NewThrottle(config ThrottleConfig) *Throttle {
	if config.Store == nil {
		config.Store = NewRateLimiterMemoryStoreWithConfig(DefaultRateLimiterMemoryStoreConfig)
	}
	if config.IdentifierExtractor == nil {
		config.IdentifierExtractor = DefaultIdentifierExtractor
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = DefaultThrottleConfig.MaxAttempts
	}
	if config.DecayMinutes <= 0 {
		config.DecayMinutes = DefaultThrottleConfig.DecayMinutes
	}
	return &Throttle{config: config}
}

// Store returns the bucket store.
func (t *Throttle) Store() *RateLimiterMemoryStore { return t.config.Store }

func (t *Throttle) limits(args []string) (maxAttempts int, decay float64, err error) {
	maxAttempts, decay = t.config.MaxAttempts, t.config.DecayMinutes
	if len(args) > 0 && args[0] != "" {
		if maxAttempts, err = strconv.Atoi(args[0]); err != nil || maxAttempts <= 0 {
			return 0, 0, fmt.Errorf("%w: throttle max attempts %q", relay.ErrConfiguration, args[0])
		}
	}
	if len(args) > 1 && args[1] != "" {
		if decay, err = strconv.ParseFloat(args[1], 64); err != nil || decay <= 0 {
			return 0, 0, fmt.Errorf("%w: throttle decay minutes %q", relay.ErrConfiguration, args[1])
		}
	}
	return maxAttempts, decay, nil
}

// Handle implements relay.Middleware.
func (t *Throttle) Handle(c relay.Context, next relay.HandlerFunc, args ...string) error {
	maxAttempts, decay, err := t.limits(args)
	if err != nil {
		return err
	}
	id, err := t.config.IdentifierExtractor(c)
	if err != nil {
		return relay.ErrForbidden.WithInternal(err)
	}
	key := fmt.Sprintf("%s|%d,%g", id, maxAttempts, decay)
	if t.config.PerRoute {
		if route := c.Route(); route != nil {
			key = route.String() + "|" + key
		}
	}

	per := time.Duration(decay * float64(time.Minute))
	limit := rate.Limit(float64(maxAttempts) / per.Seconds())
	d := t.config.Store.Take(key, limit, maxAttempts)

	c.SetHeader(relay.HeaderXRateLimitLimit, strconv.Itoa(maxAttempts))
	c.SetHeader(relay.HeaderXRateLimitRemaining, strconv.Itoa(d.Remaining))
	if !d.Allowed {
		c.SetHeader(relay.HeaderRetryAfter, strconv.Itoa(int(math.Ceil(d.RetryAfter.Seconds()))))
		return c.String(http.StatusTooManyRequests, "Too Many Attempts.")
	}
	return next(c)
}
