// Package logger configures the process-wide structured logger. Output is
// JSON on stderr so generated SQL and build reports on stdout stay clean.
package logger

import (
	"context"
	"log/slog"
	"os"
	"strings"

	"go.opentelemetry.io/otel/trace"
)

// Init installs the default logger. The level comes from SPECQL_LOG_LEVEL
// (debug, info, warn, error); unset or unrecognized values mean info.
func Init(version string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: levelFromEnv(),
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, opts)).With(
		slog.String("compiler_version", version),
	)
	slog.SetDefault(logger)
	return logger
}

func levelFromEnv() slog.Level {
	switch strings.ToLower(os.Getenv("SPECQL_LOG_LEVEL")) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// From returns the default logger enriched with trace and span IDs when the
// context carries a recording span.
func From(ctx context.Context) *slog.Logger {
	logger := slog.Default()

	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		logger = logger.With(
			slog.String("trace_id", span.SpanContext().TraceID().String()),
			slog.String("span_id", span.SpanContext().SpanID().String()),
		)
	}

	return logger
}
