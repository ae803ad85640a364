package relay

import (
	"bytes"
	"fmt"
	"net/http"
	"os"
	"slices"
	"time"

	"go-slim.dev/relay/serde"
)

// Config is the file form of the middleware configuration and server
// settings. It can be written in YAML or TOML:
//
//	global: [cors]
//	groups:
//	  api: ["throttle:60,1", metrics]
//	aliases:
//	  cors: relay.cors
//	priority: [relay.cors, relay.throttle]
type Config struct {
	Debug    bool                `yaml:"debug" toml:"debug"`
	LogLevel string              `yaml:"log_level" toml:"log_level"`
	Global   []string            `yaml:"global" toml:"global"`
	Groups   map[string][]string `yaml:"groups" toml:"groups"`
	Aliases  map[string]string   `yaml:"aliases" toml:"aliases"`
	Priority []string            `yaml:"priority" toml:"priority"`
	Throttle ThrottleDefaults    `yaml:"throttle" toml:"throttle"`
	Server   ServerConfig        `yaml:"server" toml:"server"`
}

// ThrottleDefaults apply to throttle references without arguments.
type ThrottleDefaults struct {
	MaxAttempts  int     `yaml:"max_attempts" toml:"max_attempts"`
	DecayMinutes float64 `yaml:"decay_minutes" toml:"decay_minutes"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Addr            string        `yaml:"addr" toml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout" toml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" toml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" toml:"shutdown_timeout"`
}

// LoadConfig reads a YAML (.yaml, .yml) or TOML (.toml) file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseConfig(data, path)
}

// ParseConfig decodes data in format, which is "yaml", "toml" or a file
// name carrying one of their extensions.
func ParseConfig(data []byte, format string) (*Config, error) {
	s, err := serde.For(format)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	cfg := &Config{}
	if err = s.Deserialize(bytes.NewReader(data), cfg); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrConfiguration, format, err)
	}
	return cfg, nil
}

// Apply installs the global middleware, groups, aliases and priority on
// r. Every group is resolved once so that cycles are reported here rather
// than on the first request.
func (c *Config) Apply(r *Router) error {
	r.GlobalMiddleware(c.Global...)
	for alias, concrete := range c.Aliases {
		r.MiddlewareAlias(alias, concrete)
	}
	names := make([]string, 0, len(c.Groups))
	for name, refs := range c.Groups {
		r.MiddlewareGroup(name, refs...)
		names = append(names, name)
	}
	if len(c.Priority) > 0 {
		r.MiddlewarePriority(c.Priority...)
	}
	slices.Sort(names)
	for _, name := range names {
		if _, err := r.Resolver().Resolve([]Ref{{Name: name}}); err != nil {
			return err
		}
	}
	return nil
}

// Configure applies c to the application: debug mode, log level, server
// shutdown timeout and the router middleware configuration.
func (c *Config) Configure(app *Relay) error {
	app.Debug = c.Debug
	if c.LogLevel != "" && app.Logger != nil {
		app.Logger.SetLevel(ParseLevel(c.LogLevel))
	}
	if c.Server.ShutdownTimeout > 0 {
		app.ShutdownTimeout = c.Server.ShutdownTimeout
	}
	return c.Apply(app.Router())
}

// NewServer returns an http.Server for handler built from the server
// settings, listening on :8080 when no address is set.
func (c *ServerConfig) NewServer(handler http.Handler) *http.Server {
	addr := c.Addr
	if addr == "" {
		addr = ":8080"
	}
	return &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  c.ReadTimeout,
		WriteTimeout: c.WriteTimeout,
	}
}
