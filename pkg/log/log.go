// Package log configures the process-wide slog logger shared by toolflow components.
package log

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

const serviceName = "toolflow"

// ParseLevel maps debug, info, warn or error to a slog level. Anything else selects info.
func ParseLevel(name string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(name))); err != nil {
		return slog.LevelInfo
	}

	return level
}

// New creates a text logger writing to w and tagged with the service name.
func New(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})).With("service", serviceName)
}

func Setup(logLevel string) {
	slog.SetDefault(New(os.Stderr, ParseLevel(logLevel)))
}

func WithModule(module string) *slog.Logger {
	return slog.With("module", module)
}
