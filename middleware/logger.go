package middleware

import (
	"cmp"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"go-slim.dev/relay"
)

// accessRecordKey is the context.Context key of the request's *AccessRecord.
var accessRecordKey = &contextKey{"AccessRecord"}

// LoggerConfig defines the config for Logger middleware.
type LoggerConfig struct {
	Skipper Skipper
	// TimeLayout formats the start time, omitted when empty.
	TimeLayout string
	// Output receives the lines, the request logger's output by default.
	Output io.Writer
	// NoColor disables escape codes even on a terminal.
	NoColor bool
	// ShowPipeline appends the resolved middleware of the matched route.
	ShowPipeline bool
	// Printer replaces the line printer.
	Printer func(c relay.Context, rec *AccessRecord)
}

// DefaultLoggerConfig is the default Logger middleware config.
var DefaultLoggerConfig = LoggerConfig{
	TimeLayout: "2006/01/02 15:04:05.000",
}

// AccessRecord is what Logger knows about one request. Handlers and other
// middleware reach it through AddLogField while the request runs.
type AccessRecord struct {
	Start      time.Time
	Method     string
	URI        string
	Proto      string
	RemoteAddr string
	RequestID  string
	Route      string
	Pipeline   []string
	Status     int
	Bytes      int
	Latency    time.Duration
	Err        error
	Panic      any
	Fields     map[string]any
}

// Logger is an app-level middleware that logs one line per request: the
// method, URI, matched route, status, bytes written and latency. It prints
// in color when the output is a terminal and includes the request ID when
// one is set.
//
// Errors returned further down the chain are handed to the error handler
// before the line is written, so the logged status is the one the client
// sees. Logger should go before Recovery:
//
//	app := relay.New()
//	app.Use(middleware.Logger())
//	app.Use(middleware.Recovery())
func Logger() relay.MiddlewareFunc {
	return LoggerWithConfig(DefaultLoggerConfig)
}

// LoggerWithConfig returns a Logger middleware with config.
// See: `Logger()`.
func LoggerWithConfig(config LoggerConfig) relay.MiddlewareFunc {
	if config.Printer == nil {
		config.Printer = linePrinter(config)
	}
	return func(c relay.Context, next relay.HandlerFunc) error {
		if config.Skipper != nil && config.Skipper(c) {
			return next(c)
		}
		req := c.Request()
		rec := &AccessRecord{
			Start:      time.Now(),
			Method:     req.Method,
			URI:        fmt.Sprintf("%s://%s%s", c.Scheme(), req.Host, req.URL.Path),
			Proto:      req.Proto,
			RemoteAddr: c.RealIP(),
		}
		valueIntoContext(c, accessRecordKey, rec)

		err := next(c)
		if err != nil {
			c.Error(err)
		}
		rec.finish(c, err, config.ShowPipeline)
		config.Printer(c, rec)
		return nil
	}
}

// AddLogField attaches key and value to the request's access line. It is
// a no-op when Logger is not installed.
func AddLogField(c relay.Context, key string, value any) {
	rec := accessRecordFrom(c)
	if rec == nil {
		return
	}
	if rec.Fields == nil {
		rec.Fields = make(map[string]any)
	}
	rec.Fields[key] = value
}

func accessRecordFrom(c relay.Context) *AccessRecord {
	rec, _ := c.Value(accessRecordKey).(*AccessRecord)
	return rec
}

func (rec *AccessRecord) finish(c relay.Context, err error, pipeline bool) {
	res := c.Response()
	rec.Err = err
	rec.Status = res.Status()
	rec.Bytes = res.Size()
	rec.Latency = time.Since(rec.Start)
	rec.RequestID = cmp.Or(res.Header().Get(relay.HeaderXRequestID), c.Header(relay.HeaderXRequestID))

	route := c.Route()
	if route == nil {
		return
	}
	rec.Route = cmp.Or(route.RouteName(), route.URI())
	if r := c.Router(); pipeline && r != nil {
		refs, rerr := r.EffectiveMiddleware(route)
		if rerr != nil {
			return
		}
		rec.Pipeline = make([]string, len(refs))
		for i, ref := range refs {
			rec.Pipeline[i] = ref.String()
		}
	}
}

func linePrinter(config LoggerConfig) func(relay.Context, *AccessRecord) {
	return func(c relay.Context, rec *AccessRecord) {
		w := config.Output
		if w == nil {
			w = c.Logger().Output()
		}
		buf := getBuffer()
		defer freeBuffer(buf)
		appendLine(buf, rec, config.TimeLayout, !config.NoColor && colorEnabled(w))
		_, _ = w.Write(*buf)
	}
}

func appendLine(buf *[]byte, rec *AccessRecord, layout string, useColor bool) {
	if layout != "" {
		cP(buf, useColor, nCyan, "%s ", rec.Start.Format(layout))
	}
	if rec.RequestID != "" {
		cP(buf, useColor, nYellow, "[%s] ", rec.RequestID)
	}
	cP(buf, useColor, bMagenta, "%s ", rec.Method)
	cP(buf, useColor, nCyan, "%s %s", rec.URI, rec.Proto)
	*buf = append(*buf, " from "...)
	*buf = append(*buf, rec.RemoteAddr...)
	if rec.Route != "" {
		*buf = append(*buf, " via "...)
		cP(buf, useColor, bWhite, "%s", rec.Route)
	}
	if len(rec.Pipeline) > 0 {
		cP(buf, useColor, dim, " [%s]", strings.Join(rec.Pipeline, " "))
	}
	*buf = append(*buf, " - "...)
	cP(buf, useColor, statusColor(rec.Status), "%03d", rec.Status)
	cP(buf, useColor, bBlue, " %dB", rec.Bytes)
	*buf = append(*buf, " in "...)
	cP(buf, useColor, latencyColor(rec.Latency), "%s", rec.Latency)

	if rec.Err != nil {
		appendDetail(buf, useColor, "error", fmt.Sprintf("%+v", rec.Err))
	}
	if rec.Panic != nil {
		appendDetail(buf, useColor, "panic", fmt.Sprint(rec.Panic))
	}
	if len(rec.Fields) > 0 {
		appendDetail(buf, useColor, "fields", formatFields(rec.Fields))
	}
	*buf = append(*buf, '\n')
}

// appendDetail writes title and every line of text indented under the
// access line.
func appendDetail(buf *[]byte, useColor bool, title, text string) {
	indent := strings.Repeat(" ", len(title)+2)
	for i, line := range strings.Split(text, "\n") {
		*buf = append(*buf, "\n  "...)
		if i == 0 {
			cP(buf, useColor, dim, "%s: ", title)
		} else {
			*buf = append(*buf, indent...)
		}
		cP(buf, useColor, nBlue, "%s", line)
	}
}

func formatFields(fields map[string]any) string {
	b, err := json.Marshal(fields)
	if err != nil {
		return fmt.Sprintf("%v", fields)
	}
	return string(b)
}

func statusColor(status int) colorAttr {
	switch {
	case status < 200:
		return bBlue
	case status < 300:
		return bGreen
	case status < 400:
		return bCyan
	case status < 500:
		return bYellow
	default:
		return bRed
	}
}

func latencyColor(elapsed time.Duration) colorAttr {
	switch {
	case elapsed < 500*time.Millisecond:
		return nGreen
	case elapsed < 5*time.Second:
		return nYellow
	default:
		return nRed
	}
}
