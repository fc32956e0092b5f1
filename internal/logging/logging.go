// Package logging builds the process logger.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

const consoleTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// New returns a root logger writing to w (stderr when nil). format is
// "console" or "json".
func New(w io.Writer, level, format string) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	zerolog.ErrorFieldName = "err"
	if strings.EqualFold(strings.TrimSpace(format), "console") || format == "" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: consoleTimeFormat}
	}
	SetLevel(level)
	return zerolog.New(w).With().Timestamp().Logger()
}

// SetLevel changes the process-wide level; unknown names fall back to info.
func SetLevel(level string) zerolog.Level {
	lvl := ParseLevel(level, zerolog.InfoLevel)
	zerolog.SetGlobalLevel(lvl)
	return lvl
}

// ParseLevel accepts zerolog's level names plus "warning" and "off".
// Empty or unknown names yield def.
func ParseLevel(s string, def zerolog.Level) zerolog.Level {
	name := strings.ToLower(strings.TrimSpace(s))
	switch name {
	case "":
		return def
	case "warning":
		return zerolog.WarnLevel
	case "off":
		return zerolog.Disabled
	}
	lvl, err := zerolog.ParseLevel(name)
	if err != nil {
		return def
	}
	return lvl
}

// Component derives a child logger tagged with the component name.
func Component(root zerolog.Logger, name string) zerolog.Logger {
	return root.With().Str("component", name).Logger()
}
