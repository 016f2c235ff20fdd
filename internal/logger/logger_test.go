package logger

import (
	"bytes"
	"strings"
	"testing"
)

func TestLoggerFiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(WARN, &buf, false)

	l.Info("Stream", "dropped %d", 1)
	l.Warn("Stream", "reconnecting in %s", "250ms")

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Fatalf("info line should be filtered, got %q", out)
	}
	if !strings.Contains(out, "[WARN] [Stream] reconnecting in 250ms") {
		t.Fatalf("missing warn line, got %q", out)
	}
}

func TestModuleLoggerTagsModule(t *testing.T) {
	var buf bytes.Buffer
	l := New(DEBUG, &buf, false)
	m := l.Module("Render")

	m.Debug("frame %dx%d", 640, 480)

	if !strings.Contains(buf.String(), "[DEBUG] [Render] frame 640x480") {
		t.Fatalf("unexpected output %q", buf.String())
	}
}

func TestModuleLoggerWithoutGlobalIsSilent(t *testing.T) {
	var m *ModuleLogger
	m.Info("no panic on nil receiver")
	For("Unbound").Error("no panic before Init")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want LogLevel
		err  bool
	}{
		{"debug", DEBUG, false},
		{"WARNING", WARN, false},
		{"none", SILENT, false},
		{"loud", INFO, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.err {
			t.Fatalf("ParseLevel(%q) err = %v", tt.in, err)
		}
		if got != tt.want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
