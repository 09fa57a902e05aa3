package monitoring

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestSetLogger(t *testing.T) {
	original := Logger()
	defer SetLogger(original)

	var buf bytes.Buffer
	SetLogger(NewLogger(&buf, slog.LevelDebug))
	Logger().Debug("custom logger", "key", "value")

	if !strings.Contains(buf.String(), "custom logger") {
		t.Errorf("Custom logger was not used, got %q", buf.String())
	}
	if !strings.Contains(buf.String(), "key=value") {
		t.Errorf("Structured attribute missing, got %q", buf.String())
	}

	// nil installs a discarding logger
	SetLogger(nil)
	if Logger() == nil {
		t.Fatal("Logger should never be nil")
	}
	buf.Reset()
	Logger().Error("should be dropped")
	if buf.Len() != 0 {
		t.Errorf("No-op logger should not have written to the old buffer")
	}
}

func TestLogf_Default(t *testing.T) {
	original := Logger()
	defer SetLogger(original)

	var buf bytes.Buffer
	SetLogger(NewLogger(&buf, slog.LevelInfo))
	Logf("test message: %s", "value")

	if !strings.Contains(buf.String(), "test message: value") {
		t.Errorf("Logf output = %q", buf.String())
	}
}

func TestNewLogger_Level(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf, slog.LevelWarn)
	l.Info("hidden")
	l.Warn("shown")

	if strings.Contains(buf.String(), "hidden") {
		t.Error("info line should be filtered at warn level")
	}
	if !strings.Contains(buf.String(), "shown") {
		t.Error("warn line should be written")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"info", slog.LevelInfo, false},
		{"DEBUG", slog.LevelDebug, false},
		{" warn ", slog.LevelWarn, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"verbose", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestOr(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf, slog.LevelInfo)
	if Or(l) != l {
		t.Error("Or should return the supplied logger")
	}
	if Or(nil) != Logger() {
		t.Error("Or(nil) should return the package logger")
	}
}
