// Package logging provides the structured logger used throughout the
// motor controller core: a thin interface over zap's SugaredLogger,
// trimmed from the teacher's go.viam.com/rdk/logging surface down to
// what a standalone controller needs — construction, leveled
// key/value logging, and a "With" for per-component child loggers.
// The teacher's remote log-appender and per-subsystem level registry
// serve a multi-robot fleet and have no component in this spec to
// attach to, so they are not reproduced here.
package logging

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

// Logger is the logging surface every package in this module depends on.
type Logger interface {
	Debugw(msg string, keysAndValues ...interface{})
	Infow(msg string, keysAndValues ...interface{})
	Warnw(msg string, keysAndValues ...interface{})
	Errorw(msg string, keysAndValues ...interface{})
	With(keysAndValues ...interface{}) Logger
	Sync() error
}

type zapLogger struct {
	*zap.SugaredLogger
}

func (z *zapLogger) With(keysAndValues ...interface{}) Logger {
	return &zapLogger{z.SugaredLogger.With(keysAndValues...)}
}

// NewLogger builds a production JSON logger at the given minimum level.
func NewLogger(name string, level Level) (Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level.zapLevel())
	base, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &zapLogger{base.Sugar().Named(name)}, nil
}

// NewTestLogger builds a logger that writes to the test's own output,
// grounded on the teacher's logging.NewTestLogger(t) idiom used pervasively
// across the copied _test.go files in this workspace.
func NewTestLogger(t *testing.T) Logger {
	t.Helper()
	return &zapLogger{zaptest.NewLogger(t).Sugar()}
}

// NewNopLogger discards all output; useful where a Logger is required but
// the caller (e.g. a benchmark or a fuzz-style loop) does not want output.
func NewNopLogger() Logger {
	return &zapLogger{zap.NewNop().Sugar()}
}
