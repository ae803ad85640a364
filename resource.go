package relay

import (
	"net/http"
	"strings"
)

// resourceAction describes one conventional controller route.
type resourceAction struct {
	method  string
	methods []string
	suffix  string
	api     bool
}

// create is registered before the {id} routes so that "/photos/create"
// is not captured as an id.
var resourceActions = []resourceAction{
	{method: "index", methods: []string{http.MethodGet}, suffix: "", api: true},
	{method: "create", methods: []string{http.MethodGet}, suffix: "/create"},
	{method: "store", methods: []string{http.MethodPost}, suffix: "", api: true},
	{method: "show", methods: []string{http.MethodGet}, suffix: "/{id}", api: true},
	{method: "edit", methods: []string{http.MethodGet}, suffix: "/{id}/edit"},
	{method: "update", methods: []string{http.MethodPut, http.MethodPatch}, suffix: "/{id}", api: true},
	{method: "destroy", methods: []string{http.MethodDelete}, suffix: "/{id}", api: true},
}

// Resource registers index, create, store, show, edit, update and destroy
// routes bound to controller methods of the same name. The routes are
// named "name.index", "name.create" and so on, and the member routes
// capture {id}. A dotted name such as "admin.photos" maps to the URI
// "admin/photos".
func (g *Group) Resource(name, controller string) []*Route {
	return g.resource(name, controller, false)
}

// APIResource is Resource without the create and edit form routes.
func (g *Group) APIResource(name, controller string) []*Route {
	return g.resource(name, controller, true)
}

func (g *Group) resource(name, controller string, api bool) []*Route {
	name = strings.Trim(name, "./")
	if name == "" || controller == "" {
		panic("relay: resource requires a name and a controller")
	}
	base := "/" + strings.ReplaceAll(name, ".", "/")
	routes := make([]*Route, 0, len(resourceActions))
	for _, a := range resourceActions {
		if api && !a.api {
			continue
		}
		route := g.Match(a.methods, base+a.suffix, ControllerAction(controller, a.method))
		route.Name(name + "." + a.method)
		routes = append(routes, route)
	}
	return routes
}
