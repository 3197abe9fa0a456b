package logger

import (
	"io"
	"os"
	"time"

	"github.com/riskianand4/internet-stock-tracker-84/internal/model"
	"github.com/rs/zerolog"
)

// Logger wraps zerolog.Logger with application-specific methods
type Logger struct {
	zerolog.Logger
}

// New creates a new Logger instance
func New(level string, format string) *Logger {
	// Set global log level
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	var logger zerolog.Logger

	if format == "text" || format == "console" {
		// Human-readable output for development
		output := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
		logger = zerolog.New(output).With().Timestamp().Caller().Logger()
	} else {
		// JSON output for production
		logger = zerolog.New(os.Stdout).With().Timestamp().Caller().Logger()
	}

	return &Logger{Logger: logger}
}

// NewWithWriter creates a JSON logger writing to w
func NewWithWriter(w io.Writer) *Logger {
	return &Logger{Logger: zerolog.New(w).With().Timestamp().Logger()}
}

// Nop returns a logger that discards everything
func Nop() *Logger {
	return &Logger{Logger: zerolog.Nop()}
}

// WithRequestID returns a new logger with the request ID attached
func (l *Logger) WithRequestID(requestID string) *Logger {
	return &Logger{
		Logger: l.With().Str("request_id", requestID).Logger(),
	}
}

// WithComponent returns a new logger with the component name attached
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		Logger: l.With().Str("component", component).Logger(),
	}
}

// HTTPRequest logs an HTTP request
func (l *Logger) HTTPRequest(method, path string, statusCode int, duration time.Duration, clientIP string) {
	l.Info().
		Str("method", method).
		Str("path", path).
		Int("status", statusCode).
		Dur("duration", duration).
		Str("client_ip", clientIP).
		Msg("HTTP request")
}

// SecurityEvent logs a raised security event at a level matching its severity
func (l *Logger) SecurityEvent(ev *model.SecurityEvent) {
	var event *zerolog.Event
	switch ev.Severity {
	case model.SeverityCritical:
		event = l.Error()
	case model.SeverityHigh, model.SeverityMedium:
		event = l.Warn()
	default:
		event = l.Info()
	}

	event.
		Str("event_id", ev.ID).
		Str("type", string(ev.Type)).
		Str("severity", string(ev.Severity)).
		Str("ip_address", ev.IPAddress)

	if ev.Endpoint != nil {
		event.Str("endpoint", *ev.Endpoint)
	}
	if ev.Metadata != nil {
		event.Interface("metadata", ev.Metadata)
	}

	event.Msg(ev.Description)
}
