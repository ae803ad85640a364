package relay

import (
	"fmt"
	"net/http"
	"strings"
)

// ClosureAction is reported by Context.RouteAction for inline handlers.
const ClosureAction = "Closure"

type actionKind uint8

const (
	actionHandler actionKind = iota + 1
	actionController
)

// Action is what a route runs once its middleware let the request through:
// either a handler function or a controller method resolved by name at
// dispatch time.
type Action struct {
	kind       actionKind
	handler    HandlerFunc
	controller string
	method     string
}

// HandlerAction wraps a handler function.
func HandlerAction(h HandlerFunc) Action {
	return Action{kind: actionHandler, handler: h}
}

// ControllerAction refers to method of the controller registered under name.
func ControllerAction(name, method string) Action {
	return Action{kind: actionController, controller: name, method: method}
}

// IsController reports whether the action refers to a controller method.
func (a Action) IsController() bool { return a.kind == actionController }

// Controller returns the controller name and method, empty for handlers.
func (a Action) Controller() (name, method string) { return a.controller, a.method }

// String returns "Name@method" for controller actions and ClosureAction otherwise.
func (a Action) String() string {
	if a.kind == actionController {
		return a.controller + "@" + a.method
	}
	return ClosureAction
}

// Controller 控制器接口，通过名称暴露可被路由调用的动作
type Controller interface {
	Actions() map[string]HandlerFunc
}

// ControllerFactory creates a controller for one request.
type ControllerFactory func() Controller

// ControllerFunc adapts a plain map of actions to the Controller interface.
type ControllerFunc map[string]HandlerFunc

func (m ControllerFunc) Actions() map[string]HandlerFunc { return m }

// toAction normalizes the handler shapes accepted by the registrars.
// It panics on anything else: registering an invalid action is a
// programming error.
func toAction(v any) Action {
	switch x := v.(type) {
	case Action:
		if x.kind == 0 {
			panic("relay: empty action")
		}
		return x
	case HandlerFunc:
		if x == nil {
			panic("relay: nil handler")
		}
		return HandlerAction(x)
	case func(c Context) error:
		if x == nil {
			panic("relay: nil handler")
		}
		return HandlerAction(x)
	case http.HandlerFunc:
		return HandlerAction(WrapHandlerFunc(x))
	case http.Handler:
		return HandlerAction(WrapHandler(x))
	case string:
		name, method, ok := strings.Cut(x, "@")
		if !ok || name == "" || method == "" {
			panic(fmt.Errorf("relay: invalid controller action %q, want \"Name@method\"", x))
		}
		return ControllerAction(name, method)
	default:
		panic(fmt.Errorf("relay: unsupported action type %T", v))
	}
}

// WrapHandler wraps `http.Handler` into `relay.HandlerFunc`.
func WrapHandler(h http.Handler) HandlerFunc {
	return func(c Context) error {
		h.ServeHTTP(c.Response(), c.Request())
		return nil
	}
}

// WrapHandlerFunc wraps `http.HandlerFunc` into `relay.HandlerFunc`.
func WrapHandlerFunc(h http.HandlerFunc) HandlerFunc {
	return func(c Context) error {
		h(c.Response(), c.Request())
		return nil
	}
}
