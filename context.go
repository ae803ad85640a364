package relay

import (
	"bytes"
	"context"
	"encoding/xml"
	"io"
	"net"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"go-slim.dev/relay/serde"
)

// Context 网络请求上下文，包含了请求数据（路径、路径参数、载荷）、
// 响应对象以及当前匹配的路由等。
type Context interface {
	// Context 实现 context.Context 接口
	context.Context
	// Request 返回当前请求的 `*http.Request` 结构体实例
	Request() *http.Request
	// SetRequest 为上下文设置新的 `*http.Request` 结构体实例。
	SetRequest(r *http.Request)
	// Response 返回当前请求的 `http.ResponseWriter` 接口实现
	Response() ResponseWriter
	// SetResponse 为上下文设置新的 `http.ResponseWriter` 实现
	SetResponse(r ResponseWriter)
	// Logger returns the request logger.
	Logger() *Logger
	// SetLogger replaces the logger for this request.
	SetLogger(l *Logger)
	// IsTLS 判断 HTTP 连接是否采用了 TLS 协议
	IsTLS() bool
	// Scheme 获取 HTTP 请求的协议方案，返回值为 `http` 或者 `https`
	Scheme() string
	// RealIP returns the client's network address based on `X-Forwarded-For`
	// or `X-Real-IP` request header.
	RealIP() string
	RequestURI() string
	// Route returns the route handling the request, nil before dispatch or
	// when nothing matched.
	Route() *Route
	// RouteName returns the name of the current route, empty when unnamed.
	RouteName() string
	// RouteAction returns "Name@method" or ClosureAction.
	RouteAction() string
	// RouteIs reports whether the current route name matches one of the
	// patterns, where "*" matches any run of characters.
	RouteIs(patterns ...string) bool
	// PathParam returns path parameter by name.
	PathParam(name string) string
	// PathParams returns path parameter values.
	PathParams() Params
	// SetPathParams set path parameter for during current request lifecycle.
	SetPathParams(params Params)
	// QueryParam returns the query param for the provided name.
	QueryParam(name string) string
	// QueryParams returns the query parameters as `url.Values`.
	QueryParams() url.Values
	// FormValue returns the form field value for the provided name.
	FormValue(name string) string
	Header(key string) string
	SetHeader(key string, values ...string)
	// Cookie returns the named cookie provided in the request.
	Cookie(name string) (*http.Cookie, error)
	// SetCookie adds a `Set-Cookie` header in HTTP response.
	SetCookie(cookie *http.Cookie)
	// Get retrieves data from the context.
	Get(key string) any
	// Set saves data in the context.
	Set(key string, val any)
	// Bind decodes the request body into i according to Content-Type.
	Bind(i any) error
	// Written returns whether the context response has been written to
	Written() bool
	// Render renders a template with data and sends a text/html response with status
	// code. Renderer must be registered on the Relay.
	Render(code int, name string, data any) error
	// HTML sends an HTTP response with status code.
	HTML(code int, html string) error
	// HTMLBlob sends an HTTP blob response with status code.
	HTMLBlob(code int, b []byte) error
	// String sends a string response with status code.
	String(code int, s string) error
	// JSON sends a JSON response with status code.
	JSON(code int, i any) error
	// JSONPretty sends a pretty-print JSON with status code.
	JSONPretty(code int, i any, indent string) error
	// JSONBlob sends a JSON blob response with status code.
	JSONBlob(code int, b []byte) error
	// XML sends an XML response with status code.
	XML(code int, i any) error
	// XMLBlob sends an XML blob response with status code.
	XMLBlob(code int, b []byte) error
	// Blob sends a blob response with a status code and content type.
	Blob(code int, contentType string, b []byte) error
	// Stream sends a streaming response with status code and content type.
	Stream(code int, contentType string, r io.Reader) error
	// NoContent sends a response with nobody and a status code.
	NoContent(code ...int) error
	// Redirect redirects the request to a provided URL with status code.
	Redirect(code int, url string) error
	// Error invokes the registered HTTP error handler.
	// NB: Avoid using this method. It is better to return errors, so middlewares up in a chain could act on returned error.
	Error(err error)
	// Relay 返回 Relay 实例，直接使用 Router 服务时返回 nil
	Relay() *Relay
	// Router returns the router dispatching the request.
	Router() *Router
}

// EditableContext is the view of a Context the router writes to while
// dispatching.
type EditableContext interface {
	Context
	// SetRoute records the matched route.
	SetRoute(route *Route)
	// Resolved returns the middleware instances created for this request.
	Resolved() []Middleware
	// SetResolved records the middleware instances created for this request.
	SetResolved(instances []Middleware)
	// Reset resets the context after request completes.
	Reset(w http.ResponseWriter, r *http.Request)
}

var _ EditableContext = &contextImpl{}

// contextKey is a value for use with context.WithValue. It's used as
// a pointer so it fits in an interface{} without allocation.
type contextKey struct {
	name string
}

func (k *contextKey) String() string {
	return "relay context value " + k.name
}

var (
	RelayContextKey = &contextKey{"relay"}
	ContextKey      = &contextKey{"context"}
)

// FromContext returns the relay Context stored in ctx by the dispatcher.
func FromContext(ctx context.Context) (Context, bool) {
	c, ok := ctx.Value(ContextKey).(Context)
	return c, ok
}

type contextImpl struct {
	request  *http.Request
	response ResponseWriter
	route    *Route
	params   Params
	resolved []Middleware
	logger   *Logger
	query    url.Values
	store    map[string]any
	relay    *Relay
	router   *Router
	mu       sync.RWMutex
}

func newContext(app *Relay, router *Router, w http.ResponseWriter, r *http.Request) *contextImpl {
	c := &contextImpl{relay: app, router: router}
	if w != nil && r != nil {
		c.Reset(w, r)
	}
	return c
}

func (x *contextImpl) Deadline() (deadline time.Time, ok bool) {
	return x.request.Context().Deadline()
}

func (x *contextImpl) Done() <-chan struct{} {
	return x.request.Context().Done()
}

func (x *contextImpl) Err() error {
	return x.request.Context().Err()
}

func (x *contextImpl) Value(key any) any {
	if k, ok := key.(*contextKey); ok {
		switch k {
		case RelayContextKey:
			return x.relay
		case ContextKey:
			return x
		}
	}
	if ks, ok := key.(string); ok {
		x.mu.RLock()
		value, has := x.store[ks]
		x.mu.RUnlock()
		if has {
			return value
		}
	}
	return x.request.Context().Value(key)
}

// Reset resets the context after request completes.
func (x *contextImpl) Reset(w http.ResponseWriter, r *http.Request) {
	x.request = x.wrap(r)
	x.response = NewResponseWriter(r.Method, w)
	x.route = nil
	x.params = nil
	x.resolved = nil
	x.logger = nil
	x.query = nil
	x.store = nil
}

func (x *contextImpl) Request() *http.Request {
	return x.request
}

func (x *contextImpl) SetRequest(r *http.Request) {
	x.request = x.wrap(r)
}

func (x *contextImpl) wrap(r *http.Request) *http.Request {
	ctx := r.Context()
	if ctx.Value(ContextKey) == x {
		return r
	}
	ctx = context.WithValue(ctx, ContextKey, x)
	return r.WithContext(ctx)
}

func (x *contextImpl) Response() ResponseWriter {
	return x.response
}

func (x *contextImpl) SetResponse(w ResponseWriter) {
	x.response = w
}

func (x *contextImpl) Logger() *Logger {
	if x.logger != nil {
		return x.logger
	}
	if x.relay != nil && x.relay.Logger != nil {
		return x.relay.Logger
	}
	if x.router != nil {
		return x.router.logger
	}
	return DiscardLogger()
}

func (x *contextImpl) SetLogger(l *Logger) {
	x.logger = l
}

func (x *contextImpl) IsTLS() bool {
	return x.request.TLS != nil
}

// schemeHeaders are consulted in order when the connection itself is not TLS.
var schemeHeaders = []string{HeaderXForwardedProto, HeaderXForwardedProtocol, HeaderXForwardedSsl, HeaderXUrlScheme}

// Scheme 依次检查 TLS 连接和代理头，request.URL.Scheme 在服务端总是为空
func (x *contextImpl) Scheme() string {
	if x.IsTLS() {
		return "https"
	}
	for _, key := range schemeHeaders {
		v := x.request.Header.Get(key)
		switch {
		case v == "":
			continue
		case key == HeaderXForwardedSsl:
			if v == "on" {
				return "https"
			}
		default:
			return v
		}
	}
	return "http"
}

func (x *contextImpl) RealIP() string {
	if x.relay != nil && x.relay.IPExtractor != nil {
		return x.relay.IPExtractor(x.request)
	}
	// 取 X-Forwarded-For 中离客户端最近的一跳
	if xff := x.request.Header.Get(HeaderXForwardedFor); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return unbracket(strings.TrimSpace(first))
	}
	if ip := x.request.Header.Get(HeaderXRealIP); ip != "" {
		return unbracket(ip)
	}
	if host, _, err := net.SplitHostPort(x.request.RemoteAddr); err == nil {
		return host
	}
	return x.request.RemoteAddr
}

func unbracket(ip string) string {
	if len(ip) > 1 && ip[0] == '[' && ip[len(ip)-1] == ']' {
		return ip[1 : len(ip)-1]
	}
	return ip
}

func (x *contextImpl) RequestURI() string {
	return x.request.RequestURI
}

func (x *contextImpl) Route() *Route {
	return x.route
}

func (x *contextImpl) SetRoute(route *Route) {
	x.route = route
}

func (x *contextImpl) RouteName() string {
	if x.route == nil {
		return ""
	}
	return x.route.RouteName()
}

func (x *contextImpl) RouteAction() string {
	if x.route == nil {
		return ""
	}
	return x.route.Action().String()
}

func (x *contextImpl) RouteIs(patterns ...string) bool {
	name := x.RouteName()
	if name == "" {
		return false
	}
	for _, pattern := range patterns {
		if pattern == name {
			return true
		}
		if ok, _ := path.Match(pattern, name); ok {
			return true
		}
	}
	return false
}

func (x *contextImpl) Resolved() []Middleware {
	return x.resolved
}

func (x *contextImpl) SetResolved(instances []Middleware) {
	x.resolved = instances
}

// PathParam returns the corresponding path parameter value from the request
// routing context.
func (x *contextImpl) PathParam(name string) string {
	return x.params.Get(name)
}

func (x *contextImpl) PathParams() Params {
	return x.params
}

func (x *contextImpl) SetPathParams(params Params) {
	x.params = params
}

func (x *contextImpl) QueryParam(name string) string {
	return x.QueryParams().Get(name)
}

func (x *contextImpl) QueryParams() url.Values {
	if x.query == nil {
		x.query = x.request.URL.Query()
	}
	return x.query
}

func (x *contextImpl) FormValue(name string) string {
	return x.request.FormValue(name)
}

func (x *contextImpl) Header(key string) string {
	return x.request.Header.Get(key)
}

func (x *contextImpl) SetHeader(key string, values ...string) {
	header := x.response.Header()
	for i, value := range values {
		if i == 0 {
			header.Set(key, value)
		} else {
			header.Add(key, value)
		}
	}
}

func (x *contextImpl) Cookie(name string) (*http.Cookie, error) {
	return x.request.Cookie(name)
}

func (x *contextImpl) SetCookie(cookie *http.Cookie) {
	http.SetCookie(x.response, cookie)
}

func (x *contextImpl) Get(key string) any {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.store[key]
}

func (x *contextImpl) Set(key string, val any) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.store == nil {
		x.store = make(map[string]any)
	}
	x.store[key] = val
}

func (x *contextImpl) Bind(i any) error {
	if x.request.Body == nil || x.request.ContentLength == 0 {
		return nil
	}
	ctype := x.request.Header.Get(HeaderContentType)
	var s serde.Serializer
	switch {
	case strings.HasPrefix(ctype, MIMEApplicationJSON):
		s = x.jsonSerializer()
	case strings.HasPrefix(ctype, MIMEApplicationXML):
		s = x.xmlSerializer()
	default:
		return ErrUnsupportedMediaType
	}
	if err := s.Deserialize(x.request.Body, i); err != nil {
		return NewHTTPErrorWithInternal(http.StatusBadRequest, err)
	}
	return nil
}

func (x *contextImpl) Written() bool {
	return x.response.Written()
}

func (x *contextImpl) jsonSerializer() serde.Serializer {
	if x.relay != nil && x.relay.JSONSerializer != nil {
		return x.relay.JSONSerializer
	}
	return serde.JSONSerializer{}
}

func (x *contextImpl) xmlSerializer() serde.Serializer {
	if x.relay != nil && x.relay.XMLSerializer != nil {
		return x.relay.XMLSerializer
	}
	return serde.XMLSerializer{}
}

// send sets the content type unless a handler already did, writes the
// status and hands the body to write.
func (x *contextImpl) send(code int, contentType string, write func(w io.Writer) error) error {
	if header := x.response.Header(); contentType != "" && header.Get(HeaderContentType) == "" {
		header.Set(HeaderContentType, contentType)
	}
	x.response.WriteHeader(code)
	if write == nil {
		return nil
	}
	return write(x.response)
}

func bytesBody(b []byte) func(io.Writer) error {
	return func(w io.Writer) error {
		_, err := w.Write(b)
		return err
	}
}

// prettyIndent 在调试模式或请求带 ?pretty 时返回缩进
func (x *contextImpl) prettyIndent() string {
	_, pretty := x.QueryParams()["pretty"]
	switch {
	case x.relay != nil && (x.relay.Debug || pretty):
		return x.relay.PrettyIndent
	case pretty:
		return "  "
	default:
		return ""
	}
}

func (x *contextImpl) Render(code int, name string, data any) error {
	if x.relay == nil || x.relay.Renderer == nil {
		return ErrRendererNotRegistered
	}
	var buf bytes.Buffer
	if err := x.relay.Renderer.Render(x, &buf, name, data); err != nil {
		return err
	}
	return x.HTMLBlob(code, buf.Bytes())
}

func (x *contextImpl) HTML(code int, html string) error {
	return x.HTMLBlob(code, []byte(html))
}

func (x *contextImpl) HTMLBlob(code int, b []byte) error {
	return x.send(code, MIMETextHTMLCharsetUTF8, bytesBody(b))
}

func (x *contextImpl) String(code int, s string) error {
	return x.send(code, MIMETextPlainCharsetUTF8, bytesBody([]byte(s)))
}

func (x *contextImpl) JSON(code int, i any) error {
	return x.JSONPretty(code, i, x.prettyIndent())
}

func (x *contextImpl) JSONPretty(code int, i any, indent string) error {
	return x.send(code, MIMEApplicationJSONCharsetUTF8, func(w io.Writer) error {
		return x.jsonSerializer().Serialize(w, i, indent)
	})
}

func (x *contextImpl) JSONBlob(code int, b []byte) error {
	return x.send(code, MIMEApplicationJSONCharsetUTF8, bytesBody(b))
}

// XML 与 XMLBlob 总是在文档前写入 xml.Header
func (x *contextImpl) XML(code int, i any) error {
	indent := x.prettyIndent()
	return x.send(code, MIMEApplicationXMLCharsetUTF8, func(w io.Writer) error {
		if _, err := io.WriteString(w, xml.Header); err != nil {
			return err
		}
		return x.xmlSerializer().Serialize(w, i, indent)
	})
}

func (x *contextImpl) XMLBlob(code int, b []byte) error {
	return x.send(code, MIMEApplicationXMLCharsetUTF8, bytesBody(append([]byte(xml.Header), b...)))
}

func (x *contextImpl) Blob(code int, contentType string, b []byte) error {
	return x.send(code, contentType, bytesBody(b))
}

func (x *contextImpl) Stream(code int, contentType string, r io.Reader) error {
	return x.send(code, contentType, func(w io.Writer) error {
		_, err := io.Copy(w, r)
		return err
	})
}

// NoContent writes only the status, 204 when none is given.
func (x *contextImpl) NoContent(code ...int) error {
	status := http.StatusNoContent
	if len(code) > 0 {
		status = code[0]
	}
	return x.send(status, "", nil)
}

func (x *contextImpl) Redirect(code int, location string) error {
	if code < 300 || code > 308 {
		return ErrInvalidRedirectCode
	}
	http.Redirect(x.response, x.request, location, code)
	return nil
}

func (x *contextImpl) Error(err error) {
	if x.relay != nil && x.relay.ErrorHandler != nil {
		x.relay.ErrorHandler(x, err)
		return
	}
	DefaultErrorHandler(x, err)
}

func (x *contextImpl) Relay() *Relay {
	return x.relay
}

func (x *contextImpl) Router() *Router {
	return x.router
}
