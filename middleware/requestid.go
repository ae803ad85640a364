package middleware

import (
	"github.com/google/uuid"

	"go-slim.dev/relay"
)

// RequestIDConfig defines the config for RequestID middleware.
type RequestIDConfig struct {
	Skipper Skipper
	// Generator defines a function to generate an ID.
	// Optional. Default value is a random UUID v4.
	Generator func() string
	// TargetHeader defines what header to look for to populate the id
	// Optional. Default value relay.HeaderXRequestID.
	TargetHeader string
	// RequestIDHandler is called with the id once it is known.
	RequestIDHandler func(c relay.Context, id string)
}

// RequestID returns an app-level middleware that reuses the incoming
// X-Request-Id or generates one, and echoes it on the response.
func RequestID() relay.MiddlewareFunc {
	return RequestIDWithConfig(RequestIDConfig{})
}

// RequestIDWithConfig returns a RequestID middleware with config.
func RequestIDWithConfig(config RequestIDConfig) relay.MiddlewareFunc {
	if config.Generator == nil {
		config.Generator = func() string { return uuid.NewString() }
	}
	if config.TargetHeader == "" {
		config.TargetHeader = relay.HeaderXRequestID
	}
	return func(c relay.Context, next relay.HandlerFunc) error {
		if config.Skipper != nil && config.Skipper(c) {
			return next(c)
		}
		rid := c.Header(config.TargetHeader)
		if rid == "" {
			rid = config.Generator()
		}
		c.SetHeader(config.TargetHeader, rid)
		c.SetLogger(c.Logger().With("request_id", rid))
		if config.RequestIDHandler != nil {
			config.RequestIDHandler(c, rid)
		}
		return next(c)
	}
}
