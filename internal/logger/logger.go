// Package logger provides structured logging setup for govcore.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/ascension-labs/govcore/internal/config"
)

// New creates a *slog.Logger from the given Logging config.
// Output is JSON to stdout with a "service" attribute on every record and
// request, cluster and proposal ids lifted from the context.
// The returned Closer flushes the async handler, if any.
func New(cfg config.Logging) (*slog.Logger, Closer) {
	return newWithWriter(cfg, os.Stdout)
}

func newWithWriter(cfg config.Logging, w io.Writer) (*slog.Logger, Closer) {
	var handler slog.Handler = slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: parseLevel(cfg.Level),
	})

	var closer Closer = nopCloser{}
	if cfg.Async {
		buf := cfg.AsyncBuffer
		if buf <= 0 {
			buf = 4096
		}
		workers := cfg.AsyncWorkers
		if workers <= 0 {
			workers = 1
		}
		ah := NewAsyncHandler(handler, buf, workers)
		handler = ah
		closer = ah
	}

	return slog.New(&ContextHandler{inner: handler}).With("service", cfg.Service), closer
}

// parseLevel converts a string log level to slog.Level.
func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
