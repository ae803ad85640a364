package relay

import (
	"fmt"
	"net/http"
	"slices"
	"strings"
)

// Route is one registered endpoint: a method set and a compiled template
// bound to an action.
type Route struct {
	methods    []string
	pattern    *Pattern
	action     Action
	middleware []Ref
	name       string
	group      *Group
	router     *Router
}

func newRoute(router *Router, group *Group, methods []string, uri string, action Action) *Route {
	if len(methods) == 0 {
		panic("relay: route requires at least one method")
	}
	pattern, err := CompilePattern(uri)
	if err != nil {
		panic(err)
	}
	ms := make([]string, 0, len(methods)+1)
	for _, m := range methods {
		m = strings.ToUpper(m)
		if !slices.Contains(ms, m) {
			ms = append(ms, m)
		}
	}
	if slices.Contains(ms, http.MethodGet) && !slices.Contains(ms, http.MethodHead) {
		ms = append(ms, http.MethodHead)
	}
	return &Route{
		methods: ms,
		pattern: pattern,
		action:  action,
		group:   group,
		router:  router,
	}
}

// Matches reports whether the route accepts method and path, returning the
// captured parameters on success.
func (r *Route) Matches(method, path string) (Params, bool) {
	if !slices.Contains(r.methods, "*") && !slices.Contains(r.methods, strings.ToUpper(method)) {
		return nil, false
	}
	return r.pattern.Match(path)
}

// Run invokes the action. Controller actions are looked up in the router's
// controller registry on every call.
func (r *Route) Run(c Context) error {
	switch r.action.kind {
	case actionHandler:
		return r.action.handler(c)
	case actionController:
		h, err := r.router.controllerAction(r.action.controller, r.action.method)
		if err != nil {
			return err
		}
		return h(c)
	default:
		return ErrUnknownAction.With(r.String())
	}
}

// Middleware appends references to the route's own middleware list.
func (r *Route) Middleware(refs ...string) *Route {
	return r.Use(ParseRefs(refs...)...)
}

// Use appends already structured references.
func (r *Route) Use(refs ...Ref) *Route {
	r.router.mu.Lock()
	r.middleware = append(r.middleware, refs...)
	r.router.mu.Unlock()
	return r
}

// Name registers the route under name, prefixed by the enclosing groups'
// name prefixes. The last route registered under a name wins.
func (r *Route) Name(name string) *Route {
	if r.group != nil {
		name = r.group.namePrefix() + name
	}
	r.router.setName(r, name)
	return r
}

// RouteName returns the registered name, empty when unnamed.
func (r *Route) RouteName() string { return r.name }

// Methods 返回支持的 HTTP 请求方法
func (r *Route) Methods() []string { return slices.Clone(r.methods) }

// URI returns the normalised template.
func (r *Route) URI() string { return r.pattern.Template() }

// Pattern returns the compiled template.
func (r *Route) Pattern() *Pattern { return r.pattern }

// Action returns the bound action.
func (r *Route) Action() Action { return r.action }

// Refs returns the route's own middleware references, without group or
// global middleware.
func (r *Route) Refs() []Ref { return slices.Clone(r.middleware) }

// Group returns the group the route was registered in, nil at top level.
func (r *Route) Group() *Group { return r.group }

// gatherRefs returns group middleware from the outermost group inwards
// followed by the route's own middleware.
func (r *Route) gatherRefs() []Ref {
	var chain [][]Ref
	for g := r.group; g != nil; g = g.parent {
		chain = append(chain, g.middleware)
	}
	slices.Reverse(chain)
	var refs []Ref
	for _, item := range chain {
		refs = append(refs, item...)
	}
	return append(refs, r.middleware...)
}

func (r *Route) String() string {
	s := fmt.Sprintf("%s %s", strings.Join(r.methods, "|"), r.pattern.Template())
	if r.name != "" {
		s += " (" + r.name + ")"
	}
	return s
}
