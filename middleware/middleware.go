// Package middleware 提供可按名称注册到 relay.Router 的内置中间件，
// 以及在路由之前执行的应用级中间件（日志、恢复、请求 ID）。
package middleware

import (
	"context"

	"go-slim.dev/relay"
)

// Registered names of the built-in concrete middleware.
const (
	NameThrottle  = "relay.throttle"
	NameCORS      = "relay.cors"
	NameMetrics   = "relay.metrics"
	NameBasicAuth = "relay.basic_auth"
)

// DefaultsConfig configures the middleware installed by RegisterDefaults.
// Nil fields get their defaults; BasicAuth without accounts is not registered.
type DefaultsConfig struct {
	Throttle  *ThrottleConfig
	CORS      *CORSConfig
	Metrics   *Metrics
	BasicAuth *BasicAuthConfig
}

// RegisterDefaults registers the built-in concrete middleware on r and the
// short aliases "throttle", "cors", "metrics" and "auth.basic".
func RegisterDefaults(r *relay.Router, config DefaultsConfig) {
	throttle := DefaultThrottleConfig
	if config.Throttle != nil {
		throttle = *config.Throttle
	}
	r.Register(NameThrottle, relay.Singleton(NewThrottle(throttle)))
	r.MiddlewareAlias("throttle", NameThrottle)

	cors := CORSConfig{}
	if config.CORS != nil {
		cors = *config.CORS
	}
	r.Register(NameCORS, relay.Singleton(NewCORS(cors)))
	r.MiddlewareAlias("cors", NameCORS)

	metrics := config.Metrics
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	r.Register(NameMetrics, metrics.Factory())
	r.MiddlewareAlias("metrics", NameMetrics)

	if config.BasicAuth != nil && len(config.BasicAuth.Accounts) > 0 {
		r.Register(NameBasicAuth, relay.Singleton(NewBasicAuth(*config.BasicAuth)))
		r.MiddlewareAlias("auth.basic", NameBasicAuth)
	}
}

// DefaultsFromConfig builds the RegisterDefaults configuration from the
// throttle defaults of cfg.
func DefaultsFromConfig(cfg *relay.Config) DefaultsConfig {
	throttle := DefaultThrottleConfig
	if cfg.Throttle.MaxAttempts > 0 {
		throttle.MaxAttempts = cfg.Throttle.MaxAttempts
	}
	if cfg.Throttle.DecayMinutes > 0 {
		throttle.DecayMinutes = cfg.Throttle.DecayMinutes
	}
	return DefaultsConfig{Throttle: &throttle}
}

// Skipper returns true when the middleware should be skipped for c.
type Skipper func(c relay.Context) bool

// contextKey is a value for use with context.WithValue. It's used as
// a pointer so it fits in an interface{} without allocation.
type contextKey struct {
	name string
}

func (k *contextKey) String() string {
	return "relay/middleware context value " + k.name
}

func valueIntoContext(c relay.Context, ctxKey, value any) {
	ctx := c.Request().Context()
	ctx = context.WithValue(ctx, ctxKey, value)
	c.SetRequest(c.Request().WithContext(ctx))
}
