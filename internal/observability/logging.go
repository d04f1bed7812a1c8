// Package observability provides logging, metrics, and tracing.
package observability

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"kinship/internal/models"
)

// GlobalLogger is the fallback logger for components constructed without one.
var GlobalLogger *slog.Logger

func init() {
	GlobalLogger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// LoggingConfig defines which types of automated logging are enabled.
type LoggingConfig struct {
	EnableOpLogging bool
}

// Config holds the current logging configuration.
var Config = LoggingConfig{
	EnableOpLogging: true,
}

// OpLogger provides structured logging for store and engine operations.
// Reads log at debug, writes at info, faults at error.
type OpLogger struct {
	component string
	logger    *slog.Logger
}

// NewOpLogger creates an OpLogger for the given component. A nil logger falls
// back to GlobalLogger.
func NewOpLogger(component string, logger *slog.Logger) *OpLogger {
	if logger == nil {
		logger = GlobalLogger
	}
	return &OpLogger{component: component, logger: logger}
}

func (l *OpLogger) attrs(op string, fields map[string]any) []any {
	attrs := []any{
		slog.String("component", l.component),
		slog.String("operation", op),
	}
	for k, v := range fields {
		attrs = append(attrs, slog.Any(k, v))
	}
	return attrs
}

// LogRead logs a read operation.
func (l *OpLogger) LogRead(ctx context.Context, op string, fields map[string]any) {
	if !Config.EnableOpLogging {
		return
	}
	l.logger.DebugContext(ctx, l.component+" read", l.attrs(op, fields)...)
}

// LogWrite logs a mutating operation.
func (l *OpLogger) LogWrite(ctx context.Context, op string, fields map[string]any) {
	if !Config.EnableOpLogging {
		return
	}
	l.logger.InfoContext(ctx, l.component+" write", l.attrs(op, fields)...)
}

// LogError logs a failed operation. Caller errors (not found, conflict and
// friends) log at warn; index inconsistencies and unknown errors at error.
func (l *OpLogger) LogError(ctx context.Context, op string, err error) {
	if !Config.EnableOpLogging || err == nil {
		return
	}
	attrs := append(l.attrs(op, nil), slog.String("error", err.Error()))

	var appErr *models.AppError
	switch {
	case errors.Is(err, models.ErrInconsistent):
		IndexInconsistencies.WithLabelValues(l.component).Inc()
		l.logger.ErrorContext(ctx, l.component+" index inconsistency", attrs...)
	case errors.As(err, &appErr) && appErr.Code != models.CodeInternal:
		l.logger.WarnContext(ctx, l.component+" rejected", attrs...)
	default:
		l.logger.ErrorContext(ctx, l.component+" error", attrs...)
	}
}
