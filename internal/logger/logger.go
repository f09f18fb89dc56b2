package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

var (
	// Logger is the global logger instance. It discards everything until Init is called.
	Logger = zerolog.Nop()
)

// Init initializes the global logger.
// format is "json" (default) or "console".
func Init(level, format string) {
	logLevel, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		logLevel = zerolog.InfoLevel
	}

	zerolog.SetGlobalLevel(logLevel)
	zerolog.TimeFieldFormat = time.RFC3339Nano

	Logger = New(os.Stdout, format).
		With().
		Timestamp().
		Caller().
		Logger()

	Logger.Debug().
		Str("level", logLevel.String()).
		Str("format", format).
		Msg("logger initialized")
}

// New builds an unconfigured logger writing to w.
func New(w io.Writer, format string) zerolog.Logger {
	// Pretty console logging for local runs
	if format == "console" || os.Getenv("ENV") == "development" {
		w = zerolog.ConsoleWriter{
			Out:        w,
			TimeFormat: time.RFC3339,
		}
	}
	return zerolog.New(w)
}

// WithComponent returns a logger with a component field
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// WithRequestID returns a logger with a request ID field
func WithRequestID(requestID string) zerolog.Logger {
	return Logger.With().Str("request_id", requestID).Logger()
}

// WithError returns a logger with an error field
func WithError(err error) zerolog.Logger {
	return Logger.With().Err(err).Logger()
}
