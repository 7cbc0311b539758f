// Package log provides a structured logging wrapper around logrus.
package log

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/ibs-source/stream-consumer/internal/message"
)

// Logger wraps logrus.Logger for dependency injection
type Logger struct {
	log *logrus.Logger
}

// New creates a logger configured from LOG_LEVEL and LOG_FORMAT
func New() *Logger {
	return NewWithOutput(os.Stdout)
}

// NewWithOutput creates a logger writing to w
func NewWithOutput(w io.Writer) *Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetFormatter(formatterFor(os.Getenv("LOG_FORMAT")))
	l.SetLevel(parseLevel(os.Getenv("LOG_LEVEL")))
	return &Logger{log: l}
}

func formatterFor(format string) logrus.Formatter {
	if strings.EqualFold(format, "json") {
		return &logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"}
	}
	return &logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	}
}

// parseLevel falls back to info for empty or unknown levels
func parseLevel(level string) logrus.Level {
	if level == "" {
		return logrus.InfoLevel
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}

// Debug logs debug messages
func (l *Logger) Debug(format string, v ...interface{}) {
	l.log.Debugf(format, v...)
}

// Info logs informational messages
func (l *Logger) Info(format string, v ...interface{}) {
	l.log.Infof(format, v...)
}

// Warn logs warning messages
func (l *Logger) Warn(format string, v ...interface{}) {
	l.log.Warnf(format, v...)
}

// Error logs error messages
func (l *Logger) Error(format string, v ...interface{}) {
	l.log.Errorf(format, v...)
}

// WithField creates an entry with one structured field
func (l *Logger) WithField(key string, value interface{}) *logrus.Entry {
	return l.log.WithField(key, value)
}

// WithFields creates an entry with structured fields
func (l *Logger) WithFields(fields logrus.Fields) *logrus.Entry {
	return l.log.WithFields(fields)
}

// ForStream creates an entry tagged with a stream name
func (l *Logger) ForStream(stream string) *logrus.Entry {
	return l.WithField("stream", stream)
}

// ForMessage creates an entry tagged with the message coordinates
func (l *Logger) ForMessage(mc *message.Context) *logrus.Entry {
	if mc == nil {
		return logrus.NewEntry(l.log)
	}
	return l.log.WithFields(logrus.Fields{
		"stream":   mc.Stream,
		"id":       mc.ID,
		"group":    mc.Group,
		"consumer": mc.Consumer,
	})
}
