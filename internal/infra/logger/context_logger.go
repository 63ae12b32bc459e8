package logger

import (
	"context"
	"log/slog"
)

type ContextKey string

const (
	DocumentIDKey      ContextKey = "writing.document.id"
	JobIDKey           ContextKey = "writing.job.id"
	PipelineStageKey   ContextKey = "writing.pipeline.stage"
	RequestCorrelation ContextKey = "writing.request.id"
)

var contextKeys = []ContextKey{DocumentIDKey, JobIDKey, PipelineStageKey, RequestCorrelation}

// ContextLogger decorates a base logger with the business context carried by ctx.
type ContextLogger struct {
	logger      *slog.Logger
	serviceName string
}

// NewContextLogger wraps base. A nil base uses slog.Default().
func NewContextLogger(base *slog.Logger, serviceName string) *ContextLogger {
	if base == nil {
		base = slog.Default()
	}
	return &ContextLogger{logger: base, serviceName: serviceName}
}

// WithContext returns a logger with context values extracted and added as fields
func (cl *ContextLogger) WithContext(ctx context.Context) *slog.Logger {
	logger := cl.logger.With("service", cl.serviceName)

	var fields []any
	for _, key := range contextKeys {
		if v := ctx.Value(key); v != nil {
			fields = append(fields, string(key), v)
		}
	}
	if len(fields) > 0 {
		logger = logger.With(fields...)
	}
	return logger
}

func WithDocumentID(ctx context.Context, documentID int64) context.Context {
	return context.WithValue(ctx, DocumentIDKey, documentID)
}

func WithJobID(ctx context.Context, jobID string) context.Context {
	return context.WithValue(ctx, JobIDKey, jobID)
}

func WithPipelineStage(ctx context.Context, stage string) context.Context {
	return context.WithValue(ctx, PipelineStageKey, stage)
}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RequestCorrelation, id)
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug", "DEBUG":
		return slog.LevelDebug
	case "warn", "WARN", "warning", "WARNING":
		return slog.LevelWarn
	case "error", "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
