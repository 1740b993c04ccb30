/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package log

import "fmt"

// PrefixedLogger prepends a fixed text to every message, e.g. "[cleanup] " for a background unit.
type PrefixedLogger struct {
	delegate FieldLogger
	prefix   string
}

// NewPrefixedLogger wraps the logger so that every message starts with the prefix.
func NewPrefixedLogger(delegate FieldLogger, prefix string) FieldLogger {
	return &PrefixedLogger{delegate: delegate, prefix: prefix}
}

func (l *PrefixedLogger) With(fs ...Field) FieldLogger {
	return &PrefixedLogger{l.delegate.With(fs...), l.prefix}
}

func (l *PrefixedLogger) WithLevel(level Level) FieldLogger {
	return &PrefixedLogger{l.delegate.WithLevel(level), l.prefix}
}

func (l *PrefixedLogger) Debug(text string, fs ...Field) { l.delegate.Debug(l.prefix+text, fs...) }
func (l *PrefixedLogger) Info(text string, fs ...Field)  { l.delegate.Info(l.prefix+text, fs...) }
func (l *PrefixedLogger) Warn(text string, fs ...Field)  { l.delegate.Warn(l.prefix+text, fs...) }
func (l *PrefixedLogger) Error(text string, fs ...Field) { l.delegate.Error(l.prefix+text, fs...) }

func (l *PrefixedLogger) Debugf(format string, args ...interface{}) { l.printf(LevelDebug, format, args) }
func (l *PrefixedLogger) Infof(format string, args ...interface{})  { l.printf(LevelInfo, format, args) }
func (l *PrefixedLogger) Warnf(format string, args ...interface{})  { l.printf(LevelWarn, format, args) }
func (l *PrefixedLogger) Errorf(format string, args ...interface{}) { l.printf(LevelError, format, args) }

func (l *PrefixedLogger) printf(level Level, format string, args []interface{}) {
	l.AtLevel(level, func(write LogFunc) { write(fmt.Sprintf(format, args...)) })
}

// AtLevel calls fn with a LogFunc that prefixes messages if the level is enabled.
func (l *PrefixedLogger) AtLevel(level Level, fn func(logFunc LogFunc)) {
	l.delegate.AtLevel(level, func(write LogFunc) {
		fn(func(msg string, fs ...Field) { write(l.prefix+msg, fs...) })
	})
}
