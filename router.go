package relay

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"sort"
	"strings"
	"sync"
)

// RouterConfig 路由器配置
type RouterConfig struct {
	// UseEscapedPath routes on the escaped path (URL.RawPath) so that an
	// encoded slash stays inside one segment. Captured values are unescaped.
	UseEscapedPath bool
	// Logger receives registration and dispatch diagnostics.
	Logger *Logger
}

// Router owns the route table, the named route index and the middleware
// configuration. Routes are matched in registration order and the first
// match wins; the router never reorders by specificity.
//
// Per-request state (current route, resolved middleware instances) lives
// on the Context, so one Router can serve concurrent requests.
type Router struct {
	mu          sync.RWMutex
	root        *Group
	routes      []*Route
	names       map[string]*Route
	fallback    *Route
	global      []Ref
	resolver    *Resolver
	factories   map[string]MiddlewareFactory
	controllers map[string]ControllerFactory
	logger      *Logger

	useEscapedPath bool
}

// NewRouter creates an empty router.
func NewRouter(config RouterConfig) *Router {
	r := &Router{
		names:          make(map[string]*Route),
		resolver:       NewResolver(),
		factories:      make(map[string]MiddlewareFactory),
		controllers:    make(map[string]ControllerFactory),
		logger:         config.Logger,
		useEscapedPath: config.UseEscapedPath,
	}
	if r.logger == nil {
		r.logger = DiscardLogger()
	}
	r.root = newGroup(r, nil, Attributes{})
	return r
}

// SetLogger replaces the router logger.
func (r *Router) SetLogger(l *Logger) {
	if l != nil {
		r.logger = l
	}
}

func (r *Router) add(route *Route) {
	r.mu.Lock()
	r.routes = append(r.routes, route)
	r.mu.Unlock()
	r.logger.Debug("route registered", "methods", route.methods, "uri", route.URI(), "action", route.action.String())
}

func (r *Router) setName(route *Route, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.names[name]; ok && prev != route {
		prev.name = ""
	}
	if route.name != "" && route.name != name {
		delete(r.names, route.name)
	}
	route.name = name
	r.names[name] = route
}

// Group registers the routes added by fn with the given attributes.
func (r *Router) Group(attrs Attributes, fn func(g *Group)) {
	r.root.Group(attrs, fn)
}

// Prefix 以指定前缀实现路由分组注册
func (r *Router) Prefix(prefix string, fn func(g *Group)) {
	r.root.WithPrefix(prefix, fn)
}

// Match registers a route for several methods.
func (r *Router) Match(methods []string, uri string, action any) *Route {
	return r.root.Match(methods, uri, action)
}

// Any registers a route for every method.
func (r *Router) Any(uri string, action any) *Route { return r.root.Any(uri, action) }

// GET registers a GET (and HEAD) route.
func (r *Router) GET(uri string, action any) *Route { return r.root.GET(uri, action) }

// POST registers a POST route.
func (r *Router) POST(uri string, action any) *Route { return r.root.POST(uri, action) }

// PUT registers a PUT route.
func (r *Router) PUT(uri string, action any) *Route { return r.root.PUT(uri, action) }

// PATCH registers a PATCH route.
func (r *Router) PATCH(uri string, action any) *Route { return r.root.PATCH(uri, action) }

// DELETE registers a DELETE route.
func (r *Router) DELETE(uri string, action any) *Route { return r.root.DELETE(uri, action) }

// OPTIONS registers an OPTIONS route.
func (r *Router) OPTIONS(uri string, action any) *Route { return r.root.OPTIONS(uri, action) }

// Redirect registers a redirect route, 302 unless status is given.
func (r *Router) Redirect(uri, destination string, status ...int) *Route {
	return r.root.Redirect(uri, destination, status...)
}

// PermanentRedirect registers a 301 redirect route.
func (r *Router) PermanentRedirect(uri, destination string) *Route {
	return r.root.PermanentRedirect(uri, destination)
}

// View registers a route rendering a view.
func (r *Router) View(uri, view string, data any) *Route {
	return r.root.View(uri, view, data)
}

// Resource registers the conventional CRUD routes for controller.
func (r *Router) Resource(name, controller string) []*Route {
	return r.root.Resource(name, controller)
}

// APIResource registers the CRUD routes without the create and edit forms.
func (r *Router) APIResource(name, controller string) []*Route {
	return r.root.APIResource(name, controller)
}

// Fallback registers the route used when nothing else matches. A second
// call replaces the previous fallback.
func (r *Router) Fallback(action any) *Route {
	route := newRoute(r, nil, []string{"*"}, "/", toAction(action))
	r.mu.Lock()
	r.fallback = route
	r.mu.Unlock()
	return route
}

// GlobalMiddleware appends references run for every dispatched route,
// before group and route middleware.
func (r *Router) GlobalMiddleware(refs ...string) {
	r.mu.Lock()
	r.global = append(r.global, ParseRefs(refs...)...)
	r.mu.Unlock()
}

// MiddlewareGroup registers a named bundle of references.
func (r *Router) MiddlewareGroup(name string, refs ...string) {
	r.mu.Lock()
	r.resolver.Group(name, ParseRefs(refs...)...)
	r.mu.Unlock()
}

// MiddlewareAlias maps alias to a concrete middleware name.
func (r *Router) MiddlewareAlias(alias, concrete string) {
	r.mu.Lock()
	r.resolver.Alias(alias, concrete)
	r.mu.Unlock()
}

// MiddlewarePriority sets the runs-first order of concrete middleware.
func (r *Router) MiddlewarePriority(names ...string) {
	r.mu.Lock()
	r.resolver.Priority(names...)
	r.mu.Unlock()
}

// Register makes a concrete middleware available under name.
func (r *Router) Register(name string, factory MiddlewareFactory) {
	if factory == nil {
		panic("relay: nil middleware factory for " + name)
	}
	r.mu.Lock()
	r.factories[name] = factory
	r.mu.Unlock()
}

// RegisterFunc registers a plain middleware function under name.
func (r *Router) RegisterFunc(name string, m MiddlewareFunc) {
	r.Register(name, Singleton(m))
}

// RegisterController makes a controller available to "Name@method" actions.
func (r *Router) RegisterController(name string, factory ControllerFactory) {
	if factory == nil {
		panic("relay: nil controller factory for " + name)
	}
	r.mu.Lock()
	r.controllers[name] = factory
	r.mu.Unlock()
}

// Resolver returns the middleware resolver. It must not be modified
// while requests are served.
func (r *Router) Resolver() *Resolver { return r.resolver }

func (r *Router) controllerAction(name, method string) (HandlerFunc, error) {
	r.mu.RLock()
	factory, ok := r.controllers[name]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrUnknownController.With(name)
	}
	ctrl := factory()
	if ctrl == nil {
		return nil, ErrUnknownController.With(name)
	}
	h, ok := ctrl.Actions()[method]
	if !ok || h == nil {
		return nil, ErrUnknownAction.With(name + "@" + method)
	}
	return h, nil
}

// Routes returns the registered routes in match order.
func (r *Router) Routes() []*Route {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.routes)
}

// FallbackRoute returns the fallback route, nil when none is registered.
func (r *Router) FallbackRoute() *Route {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.fallback
}

// Has reports whether a route is registered under name.
func (r *Router) Has(name string) bool {
	_, ok := r.Lookup(name)
	return ok
}

// Lookup returns the route registered under name.
func (r *Router) Lookup(name string) (*Route, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	route, ok := r.names[name]
	return route, ok
}

// Clear removes every route, name and the fallback. Middleware and
// controller configuration is kept.
func (r *Router) Clear() {
	r.mu.Lock()
	r.routes = nil
	clear(r.names)
	r.fallback = nil
	r.mu.Unlock()
}

// Find returns the route handling method and path: the first registered
// match, then the fallback. The second result is nil when nothing matches.
func (r *Router) Find(method, path string) (*Route, Params) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, route := range r.routes {
		if params, ok := route.Matches(method, path); ok {
			return route, params
		}
	}
	if r.fallback != nil {
		return r.fallback, Params{}
	}
	return nil, nil
}

// EffectiveMiddleware returns the resolved middleware list for route:
// global, then groups from the outside in, then the route's own.
func (r *Router) EffectiveMiddleware(route *Route) ([]Ref, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.effective(route)
}

func (r *Router) effective(route *Route) ([]Ref, error) {
	refs := slices.Clone(r.global)
	refs = append(refs, route.gatherRefs()...)
	return r.resolver.Resolve(refs)
}

func (r *Router) instantiate(refs []Ref) ([]Middleware, error) {
	instances := make([]Middleware, 0, len(refs))
	for _, ref := range refs {
		factory, ok := r.factories[ref.Name]
		if !ok {
			return nil, ErrUnknownMiddleware.With(ref.Name)
		}
		m := factory()
		if m == nil {
			return nil, ErrUnknownMiddleware.With(ref.Name)
		}
		instances = append(instances, m)
	}
	return instances, nil
}

// Dispatch routes the request held by c and runs the middleware pipeline
// and the route action. It returns ErrNotFound when no route matches and
// no fallback is registered.
func (r *Router) Dispatch(c Context) error {
	req := c.Request()
	path := req.URL.Path
	if r.useEscapedPath {
		path = req.URL.EscapedPath()
	}

	route, params := r.Find(req.Method, path)
	if route == nil {
		r.logger.Debug("route not found", "method", req.Method, "path", path)
		return ErrNotFound
	}
	if r.useEscapedPath {
		for k, v := range params {
			if u, err := url.PathUnescape(v); err == nil {
				params[k] = u
			}
		}
	}

	ec, _ := c.(EditableContext)
	if ec != nil {
		ec.SetRoute(route)
	}
	c.SetPathParams(params)

	r.mu.RLock()
	refs, err := r.effective(route)
	var instances []Middleware
	if err == nil {
		instances, err = r.instantiate(refs)
	}
	r.mu.RUnlock()
	if err != nil {
		r.logger.Error("middleware resolution failed", "route", route.String(), "error", err)
		return err
	}
	if ec != nil {
		ec.SetResolved(instances)
	}

	return runPipeline(c, instances, refs, route.Run)
}

// Terminate calls every middleware instance resolved for c that
// implements Terminator, in resolution order. Every terminator runs even
// when an earlier one fails; the failures are joined.
func (r *Router) Terminate(c Context) error {
	ec, ok := c.(EditableContext)
	if !ok {
		return nil
	}
	var errs []error
	for _, m := range ec.Resolved() {
		t, ok := m.(Terminator)
		if !ok {
			continue
		}
		if err := terminate(t, c); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func terminate(t Terminator, c Context) (err error) {
	defer func() {
		if rvr := recover(); rvr != nil {
			err = fmt.Errorf("relay: terminate panic: %v", rvr)
		}
	}()
	return t.Terminate(c)
}

// URL generates the path of the named route. Parameter values are
// percent-encoded; parameters the template does not use are appended as
// a query string sorted by key.
func (r *Router) URL(name string, params map[string]any) (string, error) {
	route, ok := r.Lookup(name)
	if !ok {
		return "", ErrUnknownRouteName.With(name)
	}
	return route.URL(params)
}

// MustURL is like URL but panics on error.
func (r *Router) MustURL(name string, params map[string]any) string {
	u, err := r.URL(name, params)
	if err != nil {
		panic(err)
	}
	return u
}

// URL substitutes params into the route template.
func (r *Route) URL(params map[string]any) (string, error) {
	template := r.pattern.Template()
	used := make(map[string]bool, len(r.pattern.params))
	var b strings.Builder
	for i := 0; i < len(template); {
		if template[i] != '{' {
			j := strings.IndexByte(template[i:], '{')
			if j < 0 {
				j = len(template) - i
			}
			b.WriteString(template[i : i+j])
			i += j
			continue
		}
		end := strings.IndexByte(template[i:], '}')
		name := strings.TrimSuffix(template[i+1:i+end], "?")
		i += end + 1
		used[name] = true
		v, ok := params[name]
		if ok && v != nil {
			if s := fmt.Sprint(v); s != "" {
				b.WriteString(url.PathEscape(s))
				continue
			}
		}
		if !r.pattern.Optional(name) {
			return "", ErrMissingParameter.With(name)
		}
		s := strings.TrimSuffix(b.String(), "/")
		b.Reset()
		b.WriteString(s)
	}

	u := b.String()
	if u == "" {
		u = "/"
	}
	var extra []string
	for k := range params {
		if !used[k] {
			extra = append(extra, k)
		}
	}
	if len(extra) > 0 {
		sort.Strings(extra)
		q := url.Values{}
		for _, k := range extra {
			q.Set(k, fmt.Sprint(params[k]))
		}
		u += "?" + q.Encode()
	}
	return u, nil
}

// ServeHTTP lets a bare router act as an http.Handler. Prefer Relay, which
// adds pooled contexts, app middleware and error handling.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	c := newContext(nil, r, w, req)
	err := r.Dispatch(c)
	if err != nil {
		DefaultErrorHandler(c, err)
	}
	if err := r.Terminate(c); err != nil {
		r.logger.Warn("terminate failed", "error", err)
	}
}
