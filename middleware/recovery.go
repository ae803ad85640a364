package middleware

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"os"
	"runtime"
	"strings"

	"go-slim.dev/relay"
)

// RecoveryConfig defines the config for Recovery middleware.
type RecoveryConfig struct {
	// Size of the stack to be printed.
	// Optional. Default value 4KB.
	StackSize int
	// DisableStackAll disables formatting stack traces of all other goroutines
	// into buffer after the trace for the current goroutine.
	// Optional. Default value is false.
	DisableStackAll bool
	// DisablePrintStack disables printing stack trace.
	// Optional. Default value as false.
	DisablePrintStack bool
}

// DefaultRecoveryConfig is the default Recovery middleware config.
var DefaultRecoveryConfig = RecoveryConfig{
	StackSize: 4 << 10, // 4 KB
}

// Recovery returns an app-level middleware which recovers from panics
// anywhere in the chain, prints the stack and answers 500 when nothing has
// been written yet. Middleware resolved for the request still terminate.
func Recovery() relay.MiddlewareFunc {
	return RecoveryWithConfig(DefaultRecoveryConfig)
}

// RecoveryWithConfig returns Recovery middleware with config.
func RecoveryWithConfig(config RecoveryConfig) relay.MiddlewareFunc {
	if config.StackSize == 0 {
		config.StackSize = DefaultRecoveryConfig.StackSize
	}
	return func(c relay.Context, next relay.HandlerFunc) (err error) {
		defer func() {
			rvr := recover()
			if rvr == nil {
				return
			}
			if rvr == http.ErrAbortHandler {
				// the client connection is gone, let net/http drop it silently
				panic(rvr)
			}

			if !config.DisablePrintStack {
				stack := make([]byte, config.StackSize)
				for {
					n := runtime.Stack(stack, !config.DisableStackAll)
					if n < len(stack) {
						stack = stack[:n]
						break
					}
					stack = make([]byte, 2*len(stack))
				}
				PrintPrettyStack(rvr, stack)
			}
			if rec := accessRecordFrom(c); rec != nil {
				rec.Panic = rvr
			}

			c.Logger().Error("panic recovered", "panic", fmt.Sprint(rvr), "route", c.RouteName())
			if c.Header("Connection") != "Upgrade" && !c.Response().Written() {
				c.Response().WriteHeader(http.StatusInternalServerError)
			}
			err = nil
		}()
		return next(c)
	}
}

// for ability to test the PrintPrettyStack function
var recovererErrorWriter io.Writer = os.Stderr

// PrintPrettyStack prints the panic value and the goroutine stack with the
// frames after the panic call highlighted.
func PrintPrettyStack(rvr any, stack []byte) {
	_, _ = recovererErrorWriter.Write(prettyStack(rvr, stack, colorEnabled(recovererErrorWriter)))
}

func prettyStack(rvr any, stack []byte, useColor bool) []byte {
	buf := &bytes.Buffer{}
	buf.WriteByte('\n')
	cW(buf, useColor, bCyan, " panic: ")
	cW(buf, useColor, bBlue, "%v", rvr)
	buf.WriteString("\n \n")

	lines := strings.Split(strings.TrimSpace(string(stack)), "\n")
	// drop frames up to and including the runtime panic call
	for i := len(lines) - 1; i > 0; i-- {
		if strings.HasPrefix(lines[i], "panic(") && i+2 <= len(lines) {
			lines = lines[i+2:]
			break
		}
	}

	frame := 0
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if idx := strings.LastIndex(line, ".go:"); idx >= 0 {
			loc := line[:idx+3]
			lineno := line[idx+3:]
			if sp := strings.IndexByte(lineno, ' '); sp > 0 {
				lineno = lineno[:sp]
			}
			arrow, fileColor := "      ", bCyan
			if frame == 1 {
				arrow, fileColor = " ->   ", bRed
			}
			cW(buf, useColor, bRed, "%s", arrow)
			cW(buf, useColor, fileColor, "%s", loc)
			cW(buf, useColor, bGreen, "%s\n", lineno)
			continue
		}
		frame++
		fnColor := nYellow
		if frame == 1 {
			cW(buf, useColor, bRed, " -> ")
			fnColor = bMagenta
		} else {
			buf.WriteString("    ")
		}
		cW(buf, useColor, fnColor, "%s\n", line)
	}
	return buf.Bytes()
}
