// Package logger provides structured logging setup for routegrid.
package logger

import (
	"io"
	"log/slog"
	"os"

	"github.com/routegrid/routegrid/internal/config"
)

// New creates the process logger from the Logging config: JSON to stdout,
// a "service" attribute on every record, and request ids injected from the
// context. Unknown level strings fall back to info.
func New(cfg config.Logging) *slog.Logger {
	return newWithWriter(cfg, os.Stdout)
}

func newWithWriter(cfg config.Logging, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}

	h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(requestIDHandler{Handler: h}).With("service", cfg.Service)
}
