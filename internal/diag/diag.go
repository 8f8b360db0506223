// Package diag provides the verbose diagnostic channel used by
// txnfs. It is a thin wrapper over zap's SugaredLogger: when the
// caller's verbose flag is off, every call is a no-op.
package diag

import "go.uber.org/zap"

// Logger is the verbose diagnostic channel. A nil *Logger is not
// valid; use New to construct one.
type Logger struct {
	sugar *zap.SugaredLogger
}

// New builds a Logger. When verbose is false, diagnostics are
// discarded entirely rather than filtered at the call site, so the
// hot path never pays for formatting pending-write traces.
func New(verbose bool) *Logger {
	if !verbose {
		return &Logger{sugar: zap.NewNop().Sugar()}
	}
	logger, err := zap.NewDevelopment()
	if err != nil {
		// zap.NewDevelopment only fails on malformed config, which is
		// impossible for zap's own built-in development config; fall back to Nop
		// rather than let a diagnostic channel crash the library.
		return &Logger{sugar: zap.NewNop().Sugar()}
	}
	return &Logger{sugar: logger.Sugar()}
}

// Debugf logs a low-level trace: lock acquisition, frame replay, etc.
func (l *Logger) Debugf(template string, args ...interface{}) {
	l.sugar.Debugf(template, args...)
}

// Infof logs a lifecycle event: open, close, cleanup.
func (l *Logger) Infof(template string, args ...interface{}) {
	l.sugar.Infof(template, args...)
}

// Sync flushes any buffered log entries.
func (l *Logger) Sync() {
	_ = l.sugar.Sync()
}
