package log

import (
	"bytes"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/ibs-source/stream-consumer/internal/message"
)

func newBufferedLogger(t *testing.T, level logrus.Level) (*Logger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	logger := NewWithOutput(&buf)
	logger.log.SetLevel(level)
	logger.log.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	return logger, &buf
}

func TestNew(t *testing.T) {
	logger := New()
	if logger == nil {
		t.Fatal("New() returned nil")
	}
	if logger.log == nil {
		t.Fatal("logger.log is nil")
	}
}

func TestNew_DefaultLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	logger := New()
	if logger.log.GetLevel() != logrus.InfoLevel {
		t.Errorf("expected default level Info, got %v", logger.log.GetLevel())
	}
}

func TestNew_CustomLevels(t *testing.T) {
	tests := []struct {
		envValue string
		expected logrus.Level
	}{
		{"trace", logrus.TraceLevel},
		{"debug", logrus.DebugLevel},
		{"info", logrus.InfoLevel},
		{"warn", logrus.WarnLevel},
		{"warning", logrus.WarnLevel},
		{"error", logrus.ErrorLevel},
		{"invalid", logrus.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.envValue, func(t *testing.T) {
			t.Setenv("LOG_LEVEL", tt.envValue)

			logger := New()
			if logger.log.GetLevel() != tt.expected {
				t.Errorf("for LOG_LEVEL=%s, expected level %v, got %v", tt.envValue, tt.expected, logger.log.GetLevel())
			}
		})
	}
}

func TestNew_JSONFormat(t *testing.T) {
	t.Setenv("LOG_FORMAT", "json")
	var buf bytes.Buffer
	logger := NewWithOutput(&buf)

	logger.Info("hello %s", "json")

	output := buf.String()
	if !strings.HasPrefix(output, "{") || !strings.Contains(output, `"msg":"hello json"`) {
		t.Errorf("expected JSON log line, got: %s", output)
	}
}

func TestLevels(t *testing.T) {
	logger, buf := newBufferedLogger(t, logrus.DebugLevel)

	logger.Debug("debug %d", 1)
	logger.Info("info %d", 2)
	logger.Warn("warn %d", 3)
	logger.Error("error %d", 4)

	output := buf.String()
	for _, want := range []string{"debug 1", "info 2", "warn 3", "error 4"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output, got: %s", want, output)
		}
	}
}

func TestDebugSuppressedAtInfo(t *testing.T) {
	logger, buf := newBufferedLogger(t, logrus.InfoLevel)

	logger.Debug("hidden")

	if buf.Len() != 0 {
		t.Errorf("expected no output, got: %s", buf.String())
	}
}

func TestWithFields(t *testing.T) {
	logger, buf := newBufferedLogger(t, logrus.InfoLevel)

	logger.WithFields(logrus.Fields{"user": "john", "action": "login"}).Info("test message")
	logger.WithField("status", "ok").Info("second")

	output := buf.String()
	for _, want := range []string{"user=john", "action=login", "status=ok"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output, got: %s", want, output)
		}
	}
}

func TestForMessage(t *testing.T) {
	logger, buf := newBufferedLogger(t, logrus.InfoLevel)

	mc := &message.Context{Stream: "orders", ID: "1-0", Group: "g1", Consumer: "c1"}
	logger.ForMessage(mc).Info("handled")
	logger.ForMessage(nil).Info("no context")
	logger.ForStream("invoices").Info("stream only")

	output := buf.String()
	for _, want := range []string{"stream=orders", "id=1-0", "group=g1", "consumer=c1", "no context", "stream=invoices"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output, got: %s", want, output)
		}
	}
}
