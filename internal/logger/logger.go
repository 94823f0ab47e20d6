package logger

import (
	"context"

	"github.com/vibefunder/billing/internal/config"
	"github.com/vibefunder/billing/internal/types"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps zap.SugaredLogger to provide logging functionality
type Logger struct {
	*zap.SugaredLogger
}

// NewLogger builds the production JSON logger at the configured level.
func NewLogger(cfg *config.Configuration) (*Logger, error) {
	zapCfg := zap.NewProductionConfig()
	zapCfg.EncoderConfig.TimeKey = "timestamp"
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	if cfg != nil && cfg.Logging.Level != "" {
		level, err := zapcore.ParseLevel(string(cfg.Logging.Level))
		if err != nil {
			return nil, err
		}
		zapCfg.Level = zap.NewAtomicLevelAt(level)
	}

	zapLogger, err := zapCfg.Build()
	if err != nil {
		return nil, err
	}

	return &Logger{
		SugaredLogger: zapLogger.Sugar(),
	}, nil
}

// NewNopLogger discards everything. Used by tests.
func NewNopLogger() *Logger {
	return &Logger{SugaredLogger: zap.NewNop().Sugar()}
}

// WithContext returns a child logger carrying the request id, if any.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	if requestID := types.GetRequestID(ctx); requestID != "" {
		return &Logger{SugaredLogger: l.SugaredLogger.With("request_id", requestID)}
	}
	return l
}

// With returns a child logger with the given key value pairs attached.
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{SugaredLogger: l.SugaredLogger.With(keysAndValues...)}
}
