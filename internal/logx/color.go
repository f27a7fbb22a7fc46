package logx

import (
	"io"
	"os"
	"strconv"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

var (
	status2xx = color.New(color.FgGreen)
	status3xx = color.New(color.FgCyan)
	status4xx = color.New(color.FgYellow)
	status5xx = color.New(color.FgRed, color.Bold)
	methodCol = color.New(color.FgBlue)
)

// The callers decide on colour from the real destination writer, so the
// palette ignores fatih/color's stdout detection.
func init() {
	for _, c := range []*color.Color{status2xx, status3xx, status4xx, status5xx, methodCol} {
		c.EnableColor()
	}
}

// ShouldColor reports whether w is an interactive terminal. NO_COLOR always
// disables colour.
func ShouldColor(w io.Writer) bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func ColorizeStatusWith(status int, enabled bool) string {
	s := strconv.Itoa(status)
	if !enabled {
		return s
	}
	var c *color.Color
	switch {
	case status >= 500:
		c = status5xx
	case status >= 400:
		c = status4xx
	case status >= 300:
		c = status3xx
	default:
		c = status2xx
	}
	return c.Sprint(s)
}

func ColorizeMethodWith(method string, enabled bool) string {
	if !enabled || method == "" {
		return method
	}
	return methodCol.Sprint(method)
}
