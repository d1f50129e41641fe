package nativebridge

import (
	"sync/atomic"

	"go.uber.org/zap"
)

var logger atomic.Pointer[zap.Logger]

// Logger returns the package logger. It is a no-op logger unless SetLogger
// has been called.
func Logger() *zap.Logger {
	if l := logger.Load(); l != nil {
		return l
	}
	return zap.NewNop()
}

// SetLogger replaces the package logger used by sessions that were not
// given one with WithLogger. Passing nil restores the no-op logger.
//
// Call it before opening sessions: a session captures the logger when it
// is created.
func SetLogger(l *zap.Logger) {
	logger.Store(l)
}
