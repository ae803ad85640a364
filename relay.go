package relay

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"golang.org/x/sync/errgroup"

	"go-slim.dev/relay/serde"
)

// ErrorHandlerFunc defines a function to centralize errors.
type ErrorHandlerFunc func(c Context, err error)

// IPExtractor is a function to extract IP addr from http.Request.
// Set appropriate one to Relay.IPExtractor.
type IPExtractor func(*http.Request) string

// Map defines a generic map of type `map[string]any`.
type Map map[string]any

// Relay is the application: it owns a Router, the app-level middleware run
// before routing, and the response tooling handlers use through Context.
type Relay struct {
	router      *Router
	contextPool sync.Pool
	// middleware 中间件列表，在路由匹配之前执行
	middleware []MiddlewareFunc

	ErrorHandler   ErrorHandlerFunc
	Renderer       Renderer // 自定义模板渲染器
	JSONSerializer serde.Serializer
	XMLSerializer  serde.Serializer
	Logger         *Logger
	Debug          bool   // 是否开启调试模式
	PrettyIndent   string // json/xml 格式化缩进
	IPExtractor    IPExtractor
	// DisableH2C turns off HTTP/2 cleartext support in Start.
	DisableH2C bool
	// ShutdownTimeout bounds the graceful shutdown, 10 seconds by default.
	ShutdownTimeout time.Duration
}

// New creates an application with an empty router.
func New() *Relay {
	s := &Relay{
		ErrorHandler:    DefaultErrorHandler,
		JSONSerializer:  serde.JSONSerializer{},
		XMLSerializer:   serde.XMLSerializer{},
		Logger:          NewLogger(nil),
		PrettyIndent:    "  ",
		ShutdownTimeout: 10 * time.Second,
	}
	s.router = NewRouter(RouterConfig{Logger: s.Logger})
	s.contextPool.New = func() any {
		return newContext(s, s.router, nil, nil)
	}
	return s
}

// NewContext returns a context bound to the application, useful in tests.
func (s *Relay) NewContext(w http.ResponseWriter, r *http.Request) Context {
	return newContext(s, s.router, w, r)
}

// Router 返回路由器
func (s *Relay) Router() *Router {
	return s.router
}

// SetLogger replaces the application and router logger.
func (s *Relay) SetLogger(l *Logger) {
	s.Logger = l
	s.router.SetLogger(l)
}

// Use adds middleware to the chain which is run before router.
func (s *Relay) Use(middleware ...MiddlewareFunc) {
	s.middleware = append(s.middleware, middleware...)
}

// Group 实现路由分组注册
func (s *Relay) Group(attrs Attributes, fn func(g *Group)) {
	s.router.Group(attrs, fn)
}

// Prefix 以指定前缀实现路由分组注册
func (s *Relay) Prefix(prefix string, fn func(g *Group)) {
	s.router.Prefix(prefix, fn)
}

// Match registers a new route for multiple HTTP methods. Panics on error.
func (s *Relay) Match(methods []string, uri string, action any) *Route {
	return s.router.Match(methods, uri, action)
}

// Any registers a new route for all HTTP methods. Panics on error.
func (s *Relay) Any(uri string, action any) *Route {
	return s.router.Any(uri, action)
}

// GET registers a new GET route for a path with matching handler in the router.
func (s *Relay) GET(uri string, action any) *Route {
	return s.router.GET(uri, action)
}

// POST registers a new POST route for a path with matching handler in the router.
func (s *Relay) POST(uri string, action any) *Route {
	return s.router.POST(uri, action)
}

// PUT registers a new PUT route for a path with matching handler in the router.
func (s *Relay) PUT(uri string, action any) *Route {
	return s.router.PUT(uri, action)
}

// PATCH registers a new PATCH route for a path with matching handler in the router.
func (s *Relay) PATCH(uri string, action any) *Route {
	return s.router.PATCH(uri, action)
}

// DELETE registers a new DELETE route for a path with matching handler in the router.
func (s *Relay) DELETE(uri string, action any) *Route {
	return s.router.DELETE(uri, action)
}

// OPTIONS registers a new OPTIONS route for a path with matching handler in the router.
func (s *Relay) OPTIONS(uri string, action any) *Route {
	return s.router.OPTIONS(uri, action)
}

// Fallback registers the handler used when no route matches.
func (s *Relay) Fallback(action any) *Route {
	return s.router.Fallback(action)
}

// URL generates a URL from route name and provided parameters.
func (s *Relay) URL(name string, params map[string]any) (string, error) {
	return s.router.URL(name, params)
}

// Routes returns the registered routes.
func (s *Relay) Routes() []*Route {
	return s.router.Routes()
}

// AcquireContext returns an empty `Context` instance from the pool.
// You must return the context by calling `ReleaseContext()`.
func (s *Relay) AcquireContext() Context {
	return s.contextPool.Get().(Context)
}

// ReleaseContext returns the `Context` instance back to the pool.
// You must call it after `AcquireContext()`.
func (s *Relay) ReleaseContext(c Context) {
	s.contextPool.Put(c)
}

// ServeHTTP implements `http.Handler` interface, which serves HTTP requests.
func (s *Relay) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c := s.AcquireContext().(EditableContext)
	c.Reset(w, r)

	mw := Compose(s.middleware...)
	var err error
	if mw == nil {
		err = s.router.Dispatch(c)
	} else {
		err = mw(c, s.router.Dispatch)
	}

	if err != nil {
		s.handleError(c, err)
	}

	if err := s.router.Terminate(c); err != nil {
		s.logger().Warn("terminate failed", "route", c.RouteName(), "error", err)
	}

	s.ReleaseContext(c)
}

func (s *Relay) handleError(c Context, err error) {
	if s.ErrorHandler != nil {
		s.ErrorHandler(c, err)
		return
	}
	DefaultErrorHandler(c, err)
}

func (s *Relay) logger() *Logger {
	if s.Logger == nil {
		return DiscardLogger()
	}
	return s.Logger
}

// Start listens on addr and serves until SIGINT or SIGTERM, then shuts
// down gracefully.
func (s *Relay) Start(addr string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return s.StartServer(ctx, &http.Server{Addr: addr})
}

// StartServer serves srv until ctx is cancelled. The server handler
// defaults to the application, wrapped for HTTP/2 cleartext unless
// DisableH2C is set or srv carries a TLS config.
func (s *Relay) StartServer(ctx context.Context, srv *http.Server) error {
	return s.serve(ctx, srv, nil)
}

// StartListener is StartServer on an existing listener.
func (s *Relay) StartListener(ctx context.Context, srv *http.Server, ln net.Listener) error {
	return s.serve(ctx, srv, ln)
}

func (s *Relay) serve(ctx context.Context, srv *http.Server, ln net.Listener) error {
	if srv.Handler == nil {
		srv.Handler = s
	}
	if !s.DisableH2C && srv.TLSConfig == nil {
		srv.Handler = h2c.NewHandler(srv.Handler, &http2.Server{})
	}
	timeout := s.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if ln != nil {
			s.logger().Info("http server started", "addr", ln.Addr().String())
			err = srv.Serve(ln)
		} else {
			s.logger().Info("http server started", "addr", srv.Addr)
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		s.logger().Info("http server shutting down")
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}

// DefaultErrorHandler 默认错误处理函数
//
// HTTPError values are answered with their code and message. Configuration
// errors are logged at error level and answered with 500.
func DefaultErrorHandler(c Context, err error) {
	if c.Written() {
		c.Logger().Debug("error after response written", "error", err)
		return
	}

	code := http.StatusInternalServerError
	var message any = http.StatusText(code)
	var he *HTTPError
	switch {
	case errors.As(err, &he):
		code = he.Code
		message = he.Message
	case errors.Is(err, ErrConfiguration):
		c.Logger().Error("routing configuration error", "error", err, "path", c.Request().URL.Path)
	default:
		c.Logger().Error("request failed", "error", err, "path", c.Request().URL.Path)
	}
	if app := c.Relay(); app != nil && app.Debug && code >= http.StatusInternalServerError {
		message = err.Error()
	}

	if code == http.StatusMethodNotAllowed {
		if route := c.Route(); route != nil {
			c.SetHeader(HeaderAllow, route.Methods()...)
		}
	}

	var werr error
	switch {
	case c.Request().Method == http.MethodHead:
		werr = c.NoContent(code)
	case strings.Contains(c.Header(HeaderAccept), MIMEApplicationJSON):
		werr = c.JSON(code, Map{"message": message})
	default:
		if s, ok := message.(string); ok {
			werr = c.String(code, s)
		} else {
			werr = c.JSON(code, Map{"message": message})
		}
	}
	if werr != nil {
		c.Logger().Warn("write error response", "error", werr)
	}
}

// NotFoundHandler always answers 404, usable as a fallback action.
func NotFoundHandler(_ Context) error {
	return ErrNotFound
}
