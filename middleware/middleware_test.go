package middleware

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"go-slim.dev/relay"
)

func TestRegisterDefaults(t *testing.T) {
	r := relay.NewRouter(relay.RouterConfig{})
	RegisterDefaults(r, DefaultsConfig{})
	aliases := r.Resolver().Aliases()
	assert.Equal(t, NameThrottle, aliases["throttle"])
	assert.Equal(t, NameCORS, aliases["cors"])
	assert.Equal(t, NameMetrics, aliases["metrics"])
	_, hasBasic := aliases["auth.basic"]
	assert.False(t, hasBasic, "basic auth needs accounts")

	route := r.GET("/", ok).Middleware("cors", "throttle", "metrics")
	refs, err := r.EffectiveMiddleware(route)
	assert.NoError(t, err)
	assert.Len(t, refs, 3)
}

func TestDefaultsFromConfig(t *testing.T) {
	cfg, err := relay.ParseConfig([]byte("throttle:\n  max_attempts: 5\n"), "yaml")
	assert.NoError(t, err)
	d := DefaultsFromConfig(cfg)
	assert.Equal(t, 5, d.Throttle.MaxAttempts)
	assert.Equal(t, DefaultThrottleConfig.DecayMinutes, d.Throttle.DecayMinutes)
	assert.Nil(t, d.CORS)
}
