// Package observability holds the portal's logging, tracing and request
// middleware built on zap and OpenTelemetry.
package observability

import (
	"context"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/bobbygour30/admitcard/internal/platform/requestctx"
)

const defaultLogLevel = "info"

// EventLogger is the structured logging hook the services accept.
type EventLogger func(ctx context.Context, event string, fields map[string]any)

// NewLogger builds the JSON logger in the shape Cloud Logging expects. The
// level comes from PORTAL_LOG_LEVEL, then LOG_LEVEL, then info.
func NewLogger() (*zap.Logger, error) {
	level := zap.NewAtomicLevel()
	name := strings.TrimSpace(os.Getenv("PORTAL_LOG_LEVEL"))
	if name == "" {
		name = strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	}
	if err := level.UnmarshalText([]byte(strings.ToLower(name))); err != nil || name == "" {
		_ = level.UnmarshalText([]byte(defaultLogLevel))
	}

	cfg := zap.Config{
		Level:    level,
		Encoding: "json",
		EncoderConfig: zapcore.EncoderConfig{
			MessageKey:    "message",
			TimeKey:       "timestamp",
			LevelKey:      "severity",
			CallerKey:     "caller",
			StacktraceKey: "stacktrace",
			EncodeTime:    zapcore.RFC3339NanoTimeEncoder,
			EncodeLevel:   zapcore.CapitalLevelEncoder,
			EncodeCaller:  zapcore.ShortCallerEncoder,
		},
		OutputPaths:       []string{"stdout"},
		ErrorOutputPaths:  []string{"stderr"},
		DisableStacktrace: true,
	}
	return cfg.Build()
}

// WithLogger injects the logger into ctx.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return requestctx.WithLogger(ctx, logger)
}

// FromContext returns the request logger, defaulting to a no-op logger.
func FromContext(ctx context.Context) *zap.Logger {
	return requestctx.Logger(ctx)
}

// NewEventLogger adapts zap to EventLogger. Events are written through the
// request logger when ctx carries one, so request ids and trace fields follow.
func NewEventLogger(fallback *zap.Logger) EventLogger {
	if fallback == nil {
		fallback = zap.NewNop()
	}
	return func(ctx context.Context, event string, fields map[string]any) {
		logger := fallback
		if requestctx.HasLogger(ctx) {
			logger = requestctx.Logger(ctx).Named(fallback.Name())
		}
		zFields := make([]zap.Field, 0, len(fields)+1)
		zFields = append(zFields, zap.String("event", event))
		for k, v := range fields {
			if err, ok := v.(error); ok {
				zFields = append(zFields, zap.NamedError(k, err))
				continue
			}
			zFields = append(zFields, zap.Any(k, v))
		}
		switch {
		case strings.HasSuffix(event, ".failed"), strings.HasSuffix(event, ".error"):
			logger.Warn(event, zFields...)
		default:
			logger.Info(event, zFields...)
		}
	}
}

// PrintfAdapter adapts zap to Printf-style logger interfaces.
type PrintfAdapter struct {
	logger *zap.SugaredLogger
}

// NewPrintfAdapter wraps logger.
func NewPrintfAdapter(logger *zap.Logger) PrintfAdapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return PrintfAdapter{logger: logger.Sugar()}
}

// Printf logs at info level.
func (a PrintfAdapter) Printf(format string, args ...any) {
	a.logger.Infof(format, args...)
}
