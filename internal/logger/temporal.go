package logger

import "go.temporal.io/sdk/log"

var _ log.WithLogger = (*temporalLogger)(nil)

// temporalLogger routes SDK logs through zap so workflow and activity logs
// share the service's encoder and level.
type temporalLogger struct {
	logger *Logger
}

func (l *Logger) GetTemporalLogger() log.Logger {
	return &temporalLogger{logger: l.With("component", "temporal")}
}

func (t *temporalLogger) Debug(msg string, keyvals ...interface{}) {
	t.logger.Debugw(msg, keyvals...)
}

func (t *temporalLogger) Info(msg string, keyvals ...interface{}) {
	t.logger.Infow(msg, keyvals...)
}

func (t *temporalLogger) Warn(msg string, keyvals ...interface{}) {
	t.logger.Warnw(msg, keyvals...)
}

func (t *temporalLogger) Error(msg string, keyvals ...interface{}) {
	t.logger.Errorw(msg, keyvals...)
}

// With lets the SDK attach workflow and activity identifiers to every line.
func (t *temporalLogger) With(keyvals ...interface{}) log.Logger {
	return &temporalLogger{logger: t.logger.With(keyvals...)}
}
