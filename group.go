package relay

import (
	"net/http"
	"slices"
)

// Attributes are shared by every route registered inside a group.
type Attributes struct {
	// Prefix is prepended to the URI of each route.
	Prefix string `yaml:"prefix" toml:"prefix"`
	// Middleware is applied after the enclosing groups' middleware and
	// before the route's own.
	Middleware []string `yaml:"middleware" toml:"middleware"`
	// As is prepended to route names, e.g. "admin.".
	As string `yaml:"as" toml:"as"`
}

// Group 路由分组，方便我们把前缀和一个或多个中间件作用在同组路由上。
// 分组只在注册回调执行期间有效，回调返回后即从注册上下文中弹出。
type Group struct {
	router     *Router
	parent     *Group
	prefix     string
	as         string
	middleware []Ref
}

func newGroup(router *Router, parent *Group, attrs Attributes) *Group {
	return &Group{
		router:     router,
		parent:     parent,
		prefix:     attrs.Prefix,
		as:         attrs.As,
		middleware: ParseRefs(attrs.Middleware...),
	}
}

// Parent returns the enclosing group, nil for the router's root group.
func (g *Group) Parent() *Group { return g.parent }

// Router returns the owning router.
func (g *Group) Router() *Router { return g.router }

// Refs returns the group's own middleware references.
func (g *Group) Refs() []Ref { return slices.Clone(g.middleware) }

// Prefix returns the full URI prefix including the enclosing groups.
func (g *Group) Prefix() string {
	prefix := ""
	for x := g; x != nil; x = x.parent {
		prefix = joinPath(x.prefix, prefix)
	}
	return prefix
}

func (g *Group) namePrefix() string {
	name := ""
	for x := g; x != nil; x = x.parent {
		name = x.as + name
	}
	return name
}

// Group registers routes inside fn with the given attributes stacked on
// top of g's.
func (g *Group) Group(attrs Attributes, fn func(sub *Group)) {
	if fn != nil {
		fn(newGroup(g.router, g, attrs))
	}
}

// WithPrefix 以指定前缀实现路由分组注册
func (g *Group) WithPrefix(prefix string, fn func(sub *Group)) {
	g.Group(Attributes{Prefix: prefix}, fn)
}

// Middleware appends references applied to every route of the group,
// including routes registered before the call.
func (g *Group) Middleware(refs ...string) *Group {
	g.router.mu.Lock()
	g.middleware = append(g.middleware, ParseRefs(refs...)...)
	g.router.mu.Unlock()
	return g
}

// Match registers a route answering the given methods.
func (g *Group) Match(methods []string, uri string, action any) *Route {
	owner := g
	if g == g.router.root {
		owner = nil
	}
	route := newRoute(g.router, owner, methods, joinPath(g.Prefix(), uri), toAction(action))
	g.router.add(route)
	return route
}

// Any registers a route answering every method.
func (g *Group) Any(uri string, action any) *Route {
	return g.Match([]string{"*"}, uri, action)
}

// GET registers a GET (and HEAD) route.
func (g *Group) GET(uri string, action any) *Route {
	return g.Match([]string{http.MethodGet}, uri, action)
}

// POST registers a POST route.
func (g *Group) POST(uri string, action any) *Route {
	return g.Match([]string{http.MethodPost}, uri, action)
}

// PUT registers a PUT route.
func (g *Group) PUT(uri string, action any) *Route {
	return g.Match([]string{http.MethodPut}, uri, action)
}

// PATCH registers a PATCH route.
func (g *Group) PATCH(uri string, action any) *Route {
	return g.Match([]string{http.MethodPatch}, uri, action)
}

// DELETE registers a DELETE route.
func (g *Group) DELETE(uri string, action any) *Route {
	return g.Match([]string{http.MethodDelete}, uri, action)
}

// OPTIONS registers an OPTIONS route.
func (g *Group) OPTIONS(uri string, action any) *Route {
	return g.Match([]string{http.MethodOptions}, uri, action)
}

// Redirect registers a route answering every method with a redirect to
// destination. The status defaults to 302 Found.
func (g *Group) Redirect(uri, destination string, status ...int) *Route {
	code := http.StatusFound
	if len(status) > 0 {
		code = status[0]
	}
	if code < 300 || code > 308 {
		panic(ErrInvalidRedirectCode)
	}
	return g.Any(uri, func(c Context) error {
		return c.Redirect(code, destination)
	})
}

// PermanentRedirect is Redirect with 301 Moved Permanently.
func (g *Group) PermanentRedirect(uri, destination string) *Route {
	return g.Redirect(uri, destination, http.StatusMovedPermanently)
}

// View registers a GET route rendering the named view with data through
// the application's Renderer.
func (g *Group) View(uri, view string, data any) *Route {
	return g.GET(uri, func(c Context) error {
		return c.Render(http.StatusOK, view, data)
	})
}
