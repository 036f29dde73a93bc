// Package log provides centralized logging for ximed using the zap logger.
//
// Until Init is called every call is routed to a no-op logger, so library
// packages can log unconditionally without forcing callers (or tests) to
// configure anything.
package log

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

var (
	mu         sync.RWMutex
	baseLogger = zap.NewNop()
	log        = baseLogger.Sugar()
)

// Init initializes the package-level logger. In debug mode the development
// encoder is used and debug-level entries are emitted.
func Init(debug bool) error {
	var zapLogger *zap.Logger
	var err error

	if debug {
		zapLogger, err = zap.NewDevelopment(zap.AddCallerSkip(1))
	} else {
		zapLogger, err = zap.NewProduction(zap.AddCallerSkip(1))
	}
	if err != nil {
		return fmt.Errorf("can't initialize zap logger: %v", err)
	}

	mu.Lock()
	baseLogger = zapLogger
	log = zapLogger.Sugar()
	mu.Unlock()
	return nil
}

// SetLogger replaces the package logger, mainly so tests can observe output.
func SetLogger(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	baseLogger = l.WithOptions(zap.AddCallerSkip(1))
	log = baseLogger.Sugar()
}

// GetZapLogger returns the base zap logger
func GetZapLogger() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return baseLogger
}

func sugar() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return log
}

// Sync flushes any buffered log entries
func Sync() {
	_ = sugar().Sync()
}

func Debugf(template string, args ...interface{}) {
	sugar().Debugf(template, args...)
}

func Debugw(msg string, keysAndValues ...interface{}) {
	sugar().Debugw(msg, keysAndValues...)
}

func Infof(template string, args ...interface{}) {
	sugar().Infof(template, args...)
}

func Infow(msg string, keysAndValues ...interface{}) {
	sugar().Infow(msg, keysAndValues...)
}

func Warnf(template string, args ...interface{}) {
	sugar().Warnf(template, args...)
}

func Warnw(msg string, keysAndValues ...interface{}) {
	sugar().Warnw(msg, keysAndValues...)
}

func Errorw(msg string, keysAndValues ...interface{}) {
	sugar().Errorw(msg, keysAndValues...)
}
