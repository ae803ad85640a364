package middleware

import (
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"go-slim.dev/relay"
)

// CORSConfig defines the config for CORS middleware.
type CORSConfig struct {
	// Skipper defines a function to skip middleware.
	Skipper Skipper

	// AllowOrigin defines a list of origins that may access the resource.
	// Optional. Default value []string{"*"}.
	AllowOrigins []string `yaml:"allow_origins" toml:"allow_origins"`

	// AllowOriginFunc is a custom function to validate the origin. It takes the
	// origin as an argument and returns true if allowed or false otherwise. If
	// an error is returned, it is returned by the handler. If this option is
	// set, AllowOrigins is ignored.
	// Optional.
	AllowOriginFunc func(origin string) (bool, error)

	// AllowMethods defines a list methods allowed when accessing the resource.
	// This is used in response to a preflight request.
	// Optional. Default value DefaultCORSConfig.AllowMethods.
	AllowMethods []string `yaml:"allow_methods" toml:"allow_methods"`

	// AllowHeaders defines a list of request headers that can be used when
	// making the actual request. This is in response to a preflight request.
	// Optional. Default value []string{}.
	AllowHeaders []string `yaml:"allow_headers" toml:"allow_headers"`

	// AllowCredentials indicates whether or not the response to the request
	// can be exposed when the credential flag is true.
	// Optional. Default value is false.
	AllowCredentials bool `yaml:"allow_credentials" toml:"allow_credentials"`

	// ExposeHeaders defines the whitelist headers that clients are allowed to
	// access.
	// Optional. Default value []string{}.
	ExposeHeaders []string `yaml:"expose_headers" toml:"expose_headers"`

	// MaxAge indicates how long (in seconds) the results of a preflight request
	// can be cached.
	// Optional. Default value 0.
	MaxAge int `yaml:"max_age" toml:"max_age"`
}

// CORS returns an app-level CORS middleware allowing every origin.
func CORS() relay.MiddlewareFunc {
	return CORSWithConfig(CORSConfig{})
}

// CORSWithConfig returns an app-level CORS middleware with config.
func CORSWithConfig(config CORSConfig) relay.MiddlewareFunc {
	h := NewCORS(config)
	return func(c relay.Context, next relay.HandlerFunc) error {
		return h.Handle(c, next)
	}
}

// CORSHandler is the concrete CORS middleware. Reference arguments replace
// the configured origins, e.g. "cors:https://a.example,https://b.example".
// A preflight request is answered with 204 and never reaches the action.
type CORSHandler struct {
	config   CORSConfig
	patterns []*regexp.Regexp

	mu      sync.RWMutex
	derived map[string]*CORSHandler
}

// NewCORS creates the concrete CORS middleware.
func NewCORS(config CORSConfig) *CORSHandler {
	if len(config.AllowOrigins) == 0 {
		config.AllowOrigins = []string{"*"}
	}
	if len(config.AllowMethods) == 0 {
		config.AllowMethods = []string{
			http.MethodGet,
			http.MethodHead,
			http.MethodPut,
			http.MethodPatch,
			http.MethodPost,
			http.MethodDelete,
		}
	}
	h := &CORSHandler{config: config}
	for _, origin := range config.AllowOrigins {
		pattern := regexp.QuoteMeta(origin)
		pattern = strings.ReplaceAll(pattern, "\\*", ".*")
		pattern = strings.ReplaceAll(pattern, "\\?", ".")
		h.patterns = append(h.patterns, regexp.MustCompile("^"+pattern+"$"))
	}
	return h
}

func (h *CORSHandler) withOrigins(origins []string) *CORSHandler {
	key := strings.Join(origins, ",")
	h.mu.RLock()
	d, ok := h.derived[key]
	h.mu.RUnlock()
	if ok {
		return d
	}
	config := h.config
	config.AllowOrigins = origins
	config.AllowOriginFunc = nil
	d = NewCORS(config)
	h.mu.Lock()
	if h.derived == nil {
		h.derived = make(map[string]*CORSHandler)
	}
	h.derived[key] = d
	h.mu.Unlock()
	return d
}

func (h *CORSHandler) allowOrigin(origin string) (string, error) {
	config := h.config
	if config.AllowOriginFunc != nil {
		allowed, err := config.AllowOriginFunc(origin)
		if err != nil || !allowed {
			return "", err
		}
		return origin, nil
	}
	for _, o := range config.AllowOrigins {
		if o == "*" && config.AllowCredentials {
			return origin, nil
		}
		if o == "*" || o == origin {
			return o, nil
		}
		if matchSubdomain(origin, o) {
			return origin, nil
		}
	}
	didx := strings.Index(origin, "://")
	// to avoid regex cost by invalid long domain
	if didx == -1 || len(origin[didx+3:]) > 253 {
		return "", nil
	}
	for _, re := range h.patterns {
		if re.MatchString(origin) {
			return origin, nil
		}
	}
	return "", nil
}

// Handle implements relay.Middleware.
func (h *CORSHandler) Handle(c relay.Context, next relay.HandlerFunc, args ...string) error {
	if len(args) > 0 {
		return h.withOrigins(args).Handle(c, next)
	}
	config := h.config
	if config.Skipper != nil && config.Skipper(c) {
		return next(c)
	}

	req := c.Request()
	res := c.Response()
	origin := req.Header.Get(relay.HeaderOrigin)
	preflight := req.Method == http.MethodOptions
	res.Header().Add(relay.HeaderVary, relay.HeaderOrigin)

	// No Origin provided
	if origin == "" {
		if !preflight {
			return next(c)
		}
		return c.NoContent(http.StatusNoContent)
	}

	allowOrigin, err := h.allowOrigin(origin)
	if err != nil {
		return err
	}

	// Origin isn't allowed
	if allowOrigin == "" {
		if !preflight {
			return next(c)
		}
		return c.NoContent(http.StatusNoContent)
	}

	// Simple request
	if !preflight {
		res.Header().Set(relay.HeaderAccessControlAllowOrigin, allowOrigin)
		if config.AllowCredentials {
			res.Header().Set(relay.HeaderAccessControlAllowCredentials, "true")
		}
		if len(config.ExposeHeaders) > 0 {
			res.Header().Set(relay.HeaderAccessControlExposeHeaders, strings.Join(config.ExposeHeaders, ","))
		}
		return next(c)
	}

	// Preflight request
	res.Header().Add(relay.HeaderVary, relay.HeaderAccessControlRequestMethod)
	res.Header().Add(relay.HeaderVary, relay.HeaderAccessControlRequestHeaders)
	res.Header().Set(relay.HeaderAccessControlAllowOrigin, allowOrigin)
	res.Header().Set(relay.HeaderAccessControlAllowMethods, strings.Join(config.AllowMethods, ","))
	if config.AllowCredentials {
		res.Header().Set(relay.HeaderAccessControlAllowCredentials, "true")
	}
	if len(config.AllowHeaders) > 0 {
		res.Header().Set(relay.HeaderAccessControlAllowHeaders, strings.Join(config.AllowHeaders, ","))
	} else if requested := req.Header.Get(relay.HeaderAccessControlRequestHeaders); requested != "" {
		res.Header().Set(relay.HeaderAccessControlAllowHeaders, requested)
	}
	if config.MaxAge > 0 {
		res.Header().Set(relay.HeaderAccessControlMaxAge, strconv.Itoa(config.MaxAge))
	}
	return c.NoContent(http.StatusNoContent)
}
