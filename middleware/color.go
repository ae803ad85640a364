package middleware

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fatih/color"
)

// colorAttr is one of the palette entries below.
type colorAttr = *color.Color

var (
	nRed     = forced(color.FgRed)
	nGreen   = forced(color.FgGreen)
	nYellow  = forced(color.FgYellow)
	nBlue    = forced(color.FgBlue)
	nCyan    = forced(color.FgCyan)
	bRed     = forced(color.FgRed, color.Bold)
	bGreen   = forced(color.FgGreen, color.Bold)
	bYellow  = forced(color.FgYellow, color.Bold)
	bBlue    = forced(color.FgBlue, color.Bold)
	bMagenta = forced(color.FgMagenta, color.Bold)
	bCyan    = forced(color.FgCyan, color.Bold)
	bWhite   = forced(color.FgWhite, color.Bold)
	dim      = forced(color.Faint)
)

// forced 创建忽略 color.NoColor 的颜色，是否着色由调用方的 useColor 决定
func forced(attrs ...color.Attribute) *color.Color {
	c := color.New(attrs...)
	c.EnableColor()
	return c
}

// colorEnabled reports whether w is a terminal that accepts escape codes.
func colorEnabled(w io.Writer) bool {
	if c, ok := w.(interface{ Colorable() bool }); ok {
		return c.Colorable()
	}
	return !color.NoColor && (w == os.Stdout || w == os.Stderr)
}

// cW writes a colored string to w.
func cW(w io.Writer, useColor bool, c *color.Color, s string, args ...any) {
	if useColor {
		_, _ = c.Fprintf(w, s, args...)
		return
	}
	_, _ = fmt.Fprintf(w, s, args...)
}

// cP appends a colored string to buf.
func cP(buf *[]byte, useColor bool, c *color.Color, s string, args ...any) {
	if useColor {
		*buf = append(*buf, c.Sprintf(s, args...)...)
		return
	}
	*buf = fmt.Appendf(*buf, s, args...)
}

var bufPool = sync.Pool{
	New: func() any {
		b := make([]byte, 0, 256)
		return &b
	},
}

func getBuffer() *[]byte {
	return bufPool.Get().(*[]byte)
}

func freeBuffer(b *[]byte) {
	if cap(*b) > 64<<10 {
		return
	}
	*b = (*b)[:0]
	bufPool.Put(b)
}
