// Package logging builds the zerolog logger shared by the binaries.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// New returns a console logger for app at the given level. Unknown or empty
// levels fall back to info. A nil w writes to stderr.
func New(app, level string, w io.Writer) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	output := zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: time.RFC3339,
	}
	return zerolog.New(output).
		Level(ParseLevel(level)).
		With().Timestamp().Str("app", app).
		Logger()
}

// Init builds the logger with New and installs it as the global log.Logger.
func Init(app, level string) zerolog.Logger {
	logger := New(app, level, os.Stderr)
	log.Logger = logger
	return logger
}

// ParseLevel maps a level name to a zerolog level, defaulting to info.
func ParseLevel(s string) zerolog.Level {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "warning" {
		s = "warn"
	}
	lvl, err := zerolog.ParseLevel(s)
	if err != nil || s == "" {
		return zerolog.InfoLevel
	}
	return lvl
}
