package relay

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Logger 是对 `*slog.Logger` 的包装，支持在运行期间替换输出目标以及调整日志级别。
// 通过 With、WithGroup 派生的日志对象共享输出目标和级别。
type Logger struct {
	*slog.Logger
	sink  *sink
	level *slog.LevelVar
}

type LoggerOptions struct {
	// Output defaults to os.Stderr.
	Output io.Writer
	// JSON selects slog's JSON handler instead of the text handler.
	JSON bool
	// AddSource adds the file and line of the log call.
	AddSource bool
	// Level is the minimum level, LevelError when nil.
	Level slog.Leveler
	// ReplaceAttr is called to rewrite each non-group attribute before it is logged.
	ReplaceAttr func(groups []string, a slog.Attr) slog.Attr
	// NewHandler builds the slog handler and takes precedence over JSON.
	NewHandler func(w io.Writer, opts *slog.HandlerOptions) slog.Handler
}

// sink is the swappable writer behind every handler of a logger family.
type sink struct {
	mu sync.RWMutex
	w  io.Writer
}

func (s *sink) Write(p []byte) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.w.Write(p)
}

func (s *sink) get() io.Writer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.w
}

func (s *sink) set(w io.Writer) {
	s.mu.Lock()
	s.w = w
	s.mu.Unlock()
}

func NewLogger(opts *LoggerOptions) *Logger {
	var o LoggerOptions
	if opts != nil {
		o = *opts
	}
	if o.Output == nil {
		o.Output = os.Stderr
	}
	if o.Level == nil {
		o.Level = slog.LevelError
	}
	newHandler := o.NewHandler
	if newHandler == nil {
		newHandler = func(w io.Writer, ho *slog.HandlerOptions) slog.Handler {
			if o.JSON {
				return slog.NewJSONHandler(w, ho)
			}
			return slog.NewTextHandler(w, ho)
		}
	}

	l := &Logger{sink: &sink{w: o.Output}, level: &slog.LevelVar{}}
	l.level.Set(o.Level.Level())
	l.Logger = slog.New(newHandler(l.sink, &slog.HandlerOptions{
		AddSource:   o.AddSource,
		Level:       l.level,
		ReplaceAttr: o.ReplaceAttr,
	}))
	return l
}

// DiscardLogger returns a logger that drops every record.
func DiscardLogger() *Logger {
	return NewLogger(&LoggerOptions{Output: io.Discard})
}

// Output returns the writer records are currently written to.
func (l *Logger) Output() io.Writer { return l.sink.get() }

// SetOutput swaps the destination for this logger and every logger derived from it.
func (l *Logger) SetOutput(w io.Writer) { l.sink.set(w) }

// SetLevel 设置最低日志级别并返回之前的级别
func (l *Logger) SetLevel(level slog.Level) slog.Level {
	old := l.level.Level()
	l.level.Set(level)
	return old
}

func (l *Logger) Level() slog.Leveler { return l.level }

func (l *Logger) With(args ...any) *Logger {
	return l.derive(l.Logger.With(args...))
}

func (l *Logger) WithGroup(name string) *Logger {
	return l.derive(l.Logger.WithGroup(name))
}

func (l *Logger) derive(sl *slog.Logger) *Logger {
	return &Logger{Logger: sl, sink: l.sink, level: l.level}
}

// ParseLevel converts names such as "debug" or "WARN" to a slog level.
// Unknown names yield LevelError.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}
