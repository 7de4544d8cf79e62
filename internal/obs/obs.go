// Package obs centralizes zerolog construction so every subsystem logs with
// the same structured fields instead of ad-hoc fmt.Printf calls.
package obs

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// New builds a logger writing to dataRoot/logs/recall.log, falling back to
// stdout if the log directory can't be created or opened.
func New(dataRoot, level string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	var w io.Writer = os.Stdout
	if dataRoot != "" {
		dir := filepath.Join(dataRoot, "logs")
		if err := os.MkdirAll(dir, 0o755); err == nil {
			if f, err := os.OpenFile(filepath.Join(dir, "recall.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
				w = f
			}
		}
	}

	logger := zerolog.New(w).With().Timestamp().Logger()

	lvl := zerolog.InfoLevel
	if l, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level))); err == nil {
		lvl = l
	}
	return logger.Level(lvl)
}

// Discard returns a logger that drops everything; useful for unit tests.
func Discard() zerolog.Logger {
	return zerolog.New(io.Discard)
}
