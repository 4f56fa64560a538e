package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Global logger instance
var GlobalLogger = zerolog.New(os.Stdout).With().Timestamp().Logger()

// Setup configures the global logger. Unknown levels fall back to info.
func Setup(level string, console bool) {
	var out io.Writer = os.Stdout
	if console {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}

	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	GlobalLogger = zerolog.New(out).Level(lvl).With().Timestamp().Logger()
}

// Module returns a child logger tagged with the component name.
func Module(name string) zerolog.Logger {
	return GlobalLogger.With().Str("module", name).Logger()
}

// Convenience functions
func Info(format string, v ...interface{}) {
	GlobalLogger.Info().Msgf(format, v...)
}

func Warn(format string, v ...interface{}) {
	GlobalLogger.Warn().Msgf(format, v...)
}

func Error(format string, v ...interface{}) {
	GlobalLogger.Error().Msgf(format, v...)
}

func Debug(format string, v ...interface{}) {
	GlobalLogger.Debug().Msgf(format, v...)
}

func Fatal(format string, v ...interface{}) {
	GlobalLogger.Error().Msgf(format, v...)
	os.Exit(1)
}
