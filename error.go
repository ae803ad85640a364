package relay

import (
	"errors"
	"fmt"
	"net/http"
)

// Errors
var (
	ErrNotFound                    = NewHTTPError(http.StatusNotFound)
	ErrUnauthorized                = NewHTTPError(http.StatusUnauthorized)
	ErrForbidden                   = NewHTTPError(http.StatusForbidden)
	ErrMethodNotAllowed            = NewHTTPError(http.StatusMethodNotAllowed)
	ErrStatusRequestEntityTooLarge = NewHTTPError(http.StatusRequestEntityTooLarge)
	ErrTooManyRequests             = NewHTTPError(http.StatusTooManyRequests)
	ErrBadRequest                  = NewHTTPError(http.StatusBadRequest)
	ErrUnsupportedMediaType        = NewHTTPError(http.StatusUnsupportedMediaType)
	ErrInternalServerError         = NewHTTPError(http.StatusInternalServerError)
	ErrServiceUnavailable          = NewHTTPError(http.StatusServiceUnavailable)
	ErrRendererNotRegistered       = errors.New("relay: renderer not registered")
	ErrInvalidRedirectCode         = errors.New("relay: invalid redirect status code")
)

// ErrConfiguration 是所有配置错误的根错误，表示程序或部署存在问题，
// 这类错误不会被重试，应当立即暴露出来。
var ErrConfiguration = errors.New("relay: configuration error")

// Configuration errors, all of them match ErrConfiguration with errors.Is.
var (
	ErrUnknownRouteName  = &ConfigError{msg: "unknown route name"}
	ErrUnknownMiddleware = &ConfigError{msg: "unknown middleware"}
	ErrUnknownController = &ConfigError{msg: "unknown controller"}
	ErrUnknownAction     = &ConfigError{msg: "unknown controller action"}
	ErrMiddlewareCycle   = &ConfigError{msg: "middleware group cycle"}
	ErrMissingParameter  = &ConfigError{msg: "missing route parameter"}
)

// ConfigError describes a routing configuration failure.
type ConfigError struct {
	msg    string
	subj   string
	parent *ConfigError
}

func (e *ConfigError) Error() string {
	if e.subj == "" {
		return "relay: " + e.msg
	}
	return fmt.Sprintf("relay: %s %q", e.msg, e.subj)
}

// Is reports whether target is ErrConfiguration or the sentinel e was derived from.
func (e *ConfigError) Is(target error) bool {
	if target == ErrConfiguration {
		return true
	}
	return e.parent != nil && e.parent == target
}

// With returns a copy of the sentinel naming the offending subject.
func (e *ConfigError) With(subject string) *ConfigError {
	parent := e
	if e.parent != nil {
		parent = e.parent
	}
	return &ConfigError{msg: e.msg, subj: subject, parent: parent}
}

// HTTPError represents an error that occurred while handling a request.
type HTTPError struct {
	Code     int   `json:"-"`
	Message  any   `json:"message"`
	Internal error `json:"-"` // Stores the error returned by an external dependency
}

// NewHTTPError creates a new HTTPError instance.
func NewHTTPError(code int, message ...any) *HTTPError {
	he := &HTTPError{code, http.StatusText(code), nil}
	if len(message) > 0 {
		he.Message = message[0]
	}
	return he
}

// NewHTTPErrorWithInternal creates a new HTTPError instance with an internal error set.
func NewHTTPErrorWithInternal(code int, internalError error, message ...any) *HTTPError {
	he := NewHTTPError(code, message...)
	he.Internal = internalError
	return he
}

// Error makes it compatible with `error` interface.
func (he *HTTPError) Error() string {
	if he.Internal == nil {
		return fmt.Sprintf("code=%d, message=%v", he.Code, he.Message)
	}
	return fmt.Sprintf("code=%d, message=%v, internal=%v", he.Code, he.Message, he.Internal)
}

// Is matches any HTTPError carrying the same status code, so a 404 derived
// with WithInternal still satisfies errors.Is(err, ErrNotFound).
func (he *HTTPError) Is(target error) bool {
	t, ok := target.(*HTTPError)
	return ok && t.Code == he.Code
}

// WithInternal returns clone of HTTPError with err set to HTTPError.Internal field
func (he *HTTPError) WithInternal(err error) *HTTPError {
	return &HTTPError{
		Code:     he.Code,
		Message:  he.Message,
		Internal: err,
	}
}

// Unwrap satisfies the Go 1.13 error wrapper interface.
func (he *HTTPError) Unwrap() error {
	return he.Internal
}
