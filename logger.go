package cometd

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// Logger defines the logging interface cometd leverages. Loggers are always
// injected through options; there is no package level logger.
type Logger interface {
	// Debug takes a message and any number of key/value pairs and logs them
	// at the debug level
	Debug(msg string, args ...any)

	// Info takes a message and any number of key/value pairs and logs them
	// at the info level
	Info(msg string, args ...any)

	// Warn takes a message and any number of key/value pairs and logs them
	// at the warn level
	Warn(msg string, args ...any)

	// Error takes a message and any number of key/value pairs and logs them
	// at the error level
	Error(msg string, args ...any)

	// WithError returns a new Logger that adds the given error to any log
	// messages emitted
	WithError(error) Logger

	// WithField returns a new Logger that adds the given key/value to any
	// log messages emitted
	WithField(key string, value any) Logger
}

type nullLogger struct{}

func (*nullLogger) Debug(msg string, args ...any) {}

func (*nullLogger) Info(msg string, args ...any) {}

func (*nullLogger) Warn(msg string, args ...any) {}

func (*nullLogger) Error(msg string, args ...any) {}

func (l *nullLogger) WithError(err error) Logger {
	return l
}

func (l *nullLogger) WithField(key string, value any) Logger {
	return l
}

// NewNullLogger returns a Logger that discards everything
func NewNullLogger() Logger {
	return &nullLogger{}
}

type wrappedFieldLogger struct {
	logrus.FieldLogger
}

// NewLogrusLogger adapts a logrus.FieldLogger (a *logrus.Logger or
// *logrus.Entry) to Logger
func NewLogrusLogger(logger logrus.FieldLogger) Logger {
	return &wrappedFieldLogger{logger}
}

func (w *wrappedFieldLogger) entry(args []any) logrus.FieldLogger {
	if len(args) == 0 {
		return w.FieldLogger
	}
	fields := make(logrus.Fields, len(args)/2+1)
	for i := 0; i < len(args); i += 2 {
		key := fmt.Sprint(args[i])
		if i+1 == len(args) {
			fields["!BADKEY"] = args[i]
			break
		}
		fields[key] = args[i+1]
	}
	return w.FieldLogger.WithFields(fields)
}

func (w *wrappedFieldLogger) Debug(msg string, args ...any) {
	w.entry(args).Debug(msg)
}

func (w *wrappedFieldLogger) Info(msg string, args ...any) {
	w.entry(args).Info(msg)
}

func (w *wrappedFieldLogger) Warn(msg string, args ...any) {
	w.entry(args).Warn(msg)
}

func (w *wrappedFieldLogger) Error(msg string, args ...any) {
	w.entry(args).Error(msg)
}

func (w *wrappedFieldLogger) WithError(err error) Logger {
	return &wrappedFieldLogger{w.FieldLogger.WithError(err)}
}

func (w *wrappedFieldLogger) WithField(key string, value any) Logger {
	return &wrappedFieldLogger{w.FieldLogger.WithField(key, value)}
}
