// Package monitoring owns the process-wide diagnostic logger.
//
// Components accept an injected *slog.Logger in their configuration and fall
// back to Logger() when none is supplied.
package monitoring

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

var current atomic.Pointer[slog.Logger]

func init() {
	current.Store(NewLogger(os.Stderr, slog.LevelInfo))
}

// Logger returns the package-level logger.
func Logger() *slog.Logger {
	return current.Load()
}

// SetLogger replaces the package logger. Passing nil installs a logger that
// discards everything.
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	current.Store(l)
}

// Logf is a printf-style shim over the package logger at info level. It is
// handed to libraries that expect a func(format, args...) hook.
func Logf(format string, v ...interface{}) {
	Logger().Info(fmt.Sprintf(format, v...))
}

// NewLogger builds a text logger writing to w at the given level.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// ParseLevel maps a configuration string onto a slog level. The empty string
// means info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q: expected debug, info, warn or error", s)
	}
}

// Or returns l when non-nil and the package logger otherwise.
func Or(l *slog.Logger) *slog.Logger {
	if l != nil {
		return l
	}
	return Logger()
}
