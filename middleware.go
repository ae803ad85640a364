package relay

import (
	"strings"
)

// HandlerFunc defines a function to serve HTTP requests.
type HandlerFunc func(c Context) error

// MiddlewareFunc defines a function to process middleware.
type MiddlewareFunc func(c Context, next HandlerFunc) error

// Handle 实现 Middleware 接口，参数 args 会被忽略
func (m MiddlewareFunc) Handle(c Context, next HandlerFunc, _ ...string) error {
	return m(c, next)
}

// Middleware is a concrete, registered request interceptor. The args are the
// positional parameters carried by the reference, e.g. "10" and "1" for
// "throttle:10,1".
type Middleware interface {
	Handle(c Context, next HandlerFunc, args ...string) error
}

// Terminator is implemented by middleware that want to run after the
// response has been written.
type Terminator interface {
	Terminate(c Context) error
}

// MiddlewareFactory creates a fresh middleware instance for one request.
type MiddlewareFactory func() Middleware

// Singleton returns a factory handing out the same instance every time.
func Singleton(m Middleware) MiddlewareFactory {
	return func() Middleware { return m }
}

// Ref references a middleware by name together with its arguments.
// The name may be a concrete registered middleware, an alias or a group.
type Ref struct {
	Name string
	Args []string
}

// NewRef builds a reference without any parsing, so args may contain
// colons or commas.
func NewRef(name string, args ...string) Ref {
	return Ref{Name: name, Args: args}
}

// ParseRef parses the "name:arg1,arg2" notation. Only the first colon
// separates the name from its arguments.
func ParseRef(s string) Ref {
	s = strings.TrimSpace(s)
	name, raw, found := strings.Cut(s, ":")
	ref := Ref{Name: strings.TrimSpace(name)}
	if found && raw != "" {
		for _, arg := range strings.Split(raw, ",") {
			ref.Args = append(ref.Args, strings.TrimSpace(arg))
		}
	}
	return ref
}

// ParseRefs parses every item with ParseRef, skipping blanks.
func ParseRefs(items ...string) []Ref {
	refs := make([]Ref, 0, len(items))
	for _, item := range items {
		if strings.TrimSpace(item) == "" {
			continue
		}
		refs = append(refs, ParseRef(item))
	}
	return refs
}

// Key returns the canonical form used to deduplicate references.
func (r Ref) Key() string {
	if len(r.Args) == 0 {
		return r.Name
	}
	return r.Name + ":" + strings.Join(r.Args, ",")
}

func (r Ref) String() string {
	return r.Key()
}

// withName returns a copy of r renamed to name, keeping the arguments.
func (r Ref) withName(name string) Ref {
	if len(r.Args) == 0 {
		return Ref{Name: name}
	}
	args := make([]string, len(r.Args))
	copy(args, r.Args)
	return Ref{Name: name, Args: args}
}
