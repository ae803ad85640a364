package relay

import (
	"bufio"
	"errors"
	"net"
	"net/http"
)

// ResponseWriter 包装 http.ResponseWriter，记录响应状态码与写入的字节数
type ResponseWriter interface {
	http.ResponseWriter
	http.Flusher
	http.Hijacker
	http.Pusher
	// Status returns the status code of the response or 0 if the response has
	// not been written
	Status() int
	// Size returns the number of bytes already written into the response http body.
	Size() int
	// Written returns whether the ResponseWriter has been written.
	Written() bool
	// Unwrap returns the wrapped writer.
	Unwrap() http.ResponseWriter
}

// NewResponseWriter wraps w. Body bytes of HEAD responses are not counted.
func NewResponseWriter(method string, w http.ResponseWriter) ResponseWriter {
	if rw, ok := w.(*responseWriter); ok && rw.method == method {
		return rw
	}
	return &responseWriter{method: method, ResponseWriter: w}
}

type responseWriter struct {
	http.ResponseWriter
	method string
	status int
	size   int
}

func (w *responseWriter) WriteHeader(code int) {
	if w.Written() {
		return
	}
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *responseWriter) Write(b []byte) (int, error) {
	if !w.Written() {
		w.WriteHeader(http.StatusOK)
	}
	if w.method == http.MethodHead {
		return len(b), nil
	}
	n, err := w.ResponseWriter.Write(b)
	w.size += n
	return n, err
}

func (w *responseWriter) Status() int   { return w.status }
func (w *responseWriter) Size() int     { return w.size }
func (w *responseWriter) Written() bool { return w.status != 0 }

func (w *responseWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

func (w *responseWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		if !w.Written() {
			w.WriteHeader(http.StatusOK)
		}
		f.Flush()
	}
}

func (w *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("relay: the ResponseWriter doesn't support the Hijacker interface")
	}
	return h.Hijack()
}

func (w *responseWriter) Push(target string, opts *http.PushOptions) error {
	p, ok := w.ResponseWriter.(http.Pusher)
	if !ok {
		return http.ErrNotSupported
	}
	return p.Push(target, opts)
}
