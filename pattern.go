package relay

import (
	"fmt"
	"regexp"
	"strings"
)

// Params 路由参数，参数值总是字符串，类型转换由处理器负责。
type Params map[string]string

// Get returns the value of name, or the first default when absent.
func (p Params) Get(name string, defaultValue ...string) string {
	if v, ok := p[name]; ok {
		return v
	}
	if len(defaultValue) > 0 {
		return defaultValue[0]
	}
	return ""
}

// Lookup 检查并返回参数值，第二个返回值表示参数是否存在。
func (p Params) Lookup(name string) (string, bool) {
	v, ok := p[name]
	return v, ok
}

// Pattern is a compiled route template such as "/users/{id}/posts/{slug?}".
type Pattern struct {
	template string
	regexp   *regexp.Regexp
	params   []string
	optional map[string]bool
}

var paramNameRegexp = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// CompilePattern compiles a template into an anchored regular expression.
//
// "{name}" matches one or more non-slash characters. "{name?}" makes the
// segment together with its leading slash optional, so "/posts/{id?}"
// matches "/posts" as well as "/posts/5".
func CompilePattern(template string) (*Pattern, error) {
	template = normalizePath(template)
	p := &Pattern{
		template: template,
		optional: make(map[string]bool),
	}

	var expr strings.Builder
	expr.WriteByte('^')
	for i := 0; i < len(template); {
		c := template[i]
		switch c {
		case '{':
			end := strings.IndexByte(template[i:], '}')
			if end < 0 {
				return nil, fmt.Errorf("relay: unclosed parameter in %q", template)
			}
			name := template[i+1 : i+end]
			optional := strings.HasSuffix(name, "?")
			name = strings.TrimSuffix(name, "?")
			if !paramNameRegexp.MatchString(name) {
				return nil, fmt.Errorf("relay: invalid parameter name %q in %q", name, template)
			}
			if _, dup := p.optional[name]; dup {
				return nil, fmt.Errorf("relay: duplicate parameter %q in %q", name, template)
			}
			p.params = append(p.params, name)
			p.optional[name] = optional
			if optional {
				// the slash written for this segment becomes part of the optional group
				s := expr.String()
				if strings.HasSuffix(s, "/") {
					expr.Reset()
					expr.WriteString(s[:len(s)-1])
					fmt.Fprintf(&expr, "(?:/(?P<%s>[^/]*))?", name)
				} else {
					fmt.Fprintf(&expr, "(?P<%s>[^/]*)", name)
				}
			} else {
				fmt.Fprintf(&expr, "(?P<%s>[^/]+)", name)
			}
			i += end + 1
		case '}':
			return nil, fmt.Errorf("relay: unexpected '}' in %q", template)
		default:
			j := i
			for j < len(template) && template[j] != '{' && template[j] != '}' {
				j++
			}
			expr.WriteString(regexp.QuoteMeta(template[i:j]))
			i = j
		}
	}
	expr.WriteByte('$')

	re, err := regexp.Compile(expr.String())
	if err != nil {
		return nil, fmt.Errorf("relay: compile %q: %w", template, err)
	}
	p.regexp = re
	return p, nil
}

// MustCompilePattern is like CompilePattern but panics on error.
func MustCompilePattern(template string) *Pattern {
	p, err := CompilePattern(template)
	if err != nil {
		panic(err)
	}
	return p
}

// Match reports whether path matches the whole template and returns the
// captured parameters. Absent optional parameters are left out.
func (p *Pattern) Match(path string) (Params, bool) {
	m := p.regexp.FindStringSubmatch(normalizePath(path))
	if m == nil {
		return nil, false
	}
	params := make(Params, len(p.params))
	for i, name := range p.regexp.SubexpNames() {
		if i == 0 || name == "" {
			continue
		}
		if m[i] == "" && p.optional[name] {
			continue
		}
		params[name] = m[i]
	}
	return params, true
}

// Template returns the normalised template.
func (p *Pattern) Template() string { return p.template }

// Params returns the parameter names in template order.
func (p *Pattern) Params() []string { return append([]string(nil), p.params...) }

// Optional reports whether the named parameter is optional.
func (p *Pattern) Optional(name string) bool { return p.optional[name] }

// String returns the compiled expression.
func (p *Pattern) String() string { return p.regexp.String() }

// normalizePath makes sure s starts with a slash and drops a trailing
// slash, except for the root path.
func normalizePath(s string) string {
	if s == "" || s[0] != '/' {
		s = "/" + s
	}
	if len(s) > 1 && s[len(s)-1] == '/' {
		s = strings.TrimRight(s, "/")
		if s == "" {
			s = "/"
		}
	}
	return s
}

// joinPath concatenates a group prefix with a route template.
func joinPath(prefix, uri string) string {
	prefix = strings.Trim(prefix, "/")
	uri = strings.Trim(uri, "/")
	switch {
	case prefix == "":
		return "/" + uri
	case uri == "":
		return "/" + prefix
	default:
		return "/" + prefix + "/" + uri
	}
}
