package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// level maps LOG_LEVEL to a zerolog level. Production only shows errors.
func level() zerolog.Level {
	if l, ok := os.LookupEnv("LOG_LEVEL"); ok {
		switch l {
		case "dev", "development", "debug":
			return zerolog.DebugLevel
		case "info":
			return zerolog.InfoLevel
		case "warn", "warning":
			return zerolog.WarnLevel
		case "error", "production", "prod":
			return zerolog.ErrorLevel
		}
	}
	return zerolog.ErrorLevel
}

// NewConsole returns the interactive CLI logger: human-readable, stderr, so
// log lines never interleave with rendered UI on stdout.
func NewConsole() zerolog.Logger {
	w := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	return zerolog.New(w).Level(level()).With().Timestamp().Logger()
}

// NewServer returns the structured JSON logger used by telecall serve.
func NewServer(out io.Writer) zerolog.Logger {
	lvl := level()
	if lvl == zerolog.ErrorLevel {
		// servers default to info, errors-only hides the request log
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(out).Level(lvl).With().Timestamp().Logger()
}
