// Package definition provides the concrete, ready-to-use default of the
// types.Logger interface used when a caller does not supply their own.
package definition

import (
	"os"

	"github.com/sirupsen/logrus"
)

// NewDefaultLogger returns the logger every engine falls back to when its
// configuration leaves Logger nil. Output is text-formatted to stderr at
// info level; ToggleDebug flips it to debug level for troubleshooting.
func NewDefaultLogger() *DefaultLogger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return &DefaultLogger{Logger: l}
}

// DefaultLogger adapts a *logrus.Logger to the types.Logger interface.
// logrus is already part of this module's dependency graph through
// prometheus/common (which itself wraps logrus for its own deprecated
// logging helper); this type promotes it to a direct, exercised
// dependency instead of reaching for the standard library's log package.
type DefaultLogger struct {
	*logrus.Logger
}

func (l *DefaultLogger) Info(v ...interface{})                  { l.Logger.Info(v...) }
func (l *DefaultLogger) Infof(format string, v ...interface{})  { l.Logger.Infof(format, v...) }
func (l *DefaultLogger) Warn(v ...interface{})                  { l.Logger.Warn(v...) }
func (l *DefaultLogger) Warnf(format string, v ...interface{})  { l.Logger.Warnf(format, v...) }
func (l *DefaultLogger) Error(v ...interface{})                 { l.Logger.Error(v...) }
func (l *DefaultLogger) Errorf(format string, v ...interface{}) { l.Logger.Errorf(format, v...) }
func (l *DefaultLogger) Debug(v ...interface{})                 { l.Logger.Debug(v...) }
func (l *DefaultLogger) Debugf(format string, v ...interface{}) { l.Logger.Debugf(format, v...) }
func (l *DefaultLogger) Fatal(v ...interface{})                 { l.Logger.Fatal(v...) }
func (l *DefaultLogger) Fatalf(format string, v ...interface{}) { l.Logger.Fatalf(format, v...) }
func (l *DefaultLogger) Panic(v ...interface{})                 { l.Logger.Panic(v...) }
func (l *DefaultLogger) Panicf(format string, v ...interface{}) { l.Logger.Panicf(format, v...) }

// ToggleDebug flips the logger between info and debug level, returning the
// new debug state.
func (l *DefaultLogger) ToggleDebug(enabled bool) bool {
	if enabled {
		l.Logger.SetLevel(logrus.DebugLevel)
	} else {
		l.Logger.SetLevel(logrus.InfoLevel)
	}
	return enabled
}
