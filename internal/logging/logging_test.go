package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestLevelString(t *testing.T) {
	tests := []struct {
		level    Level
		expected string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{Level(99), "UNKNOWN"},
	}
	for _, tt := range tests {
		if got := tt.level.String(); got != tt.expected {
			t.Errorf("Level(%d).String() = %q, want %q", tt.level, got, tt.expected)
		}
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
	}{
		{"debug", LevelDebug},
		{"INFO", LevelInfo},
		{"warning", LevelWarn},
		{"Error", LevelError},
		{"bogus", LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.input); got != tt.expected {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.expected)
		}
	}
}

func TestLoggerFiltersAndFormats(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: LevelWarn, Output: &buf, Prefix: "test"})
	l.Info("hidden")
	l.WithComponent("buffer").WithField("id", 7).Warn("edit %d rejected", 3)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info message should be filtered at warn level")
	}
	for _, want := range []string{"[WARN]", "test: edit 3 rejected", "{component=buffer, id=7}"} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q missing %q", out, want)
		}
	}
}

func TestDerivedLoggersShareLevel(t *testing.T) {
	var buf bytes.Buffer
	parent := New(Config{Level: LevelError, Output: &buf})
	child := parent.WithComponent("syntax")
	parent.SetLevel(LevelDebug)
	child.Debug("visible")
	if !strings.Contains(buf.String(), "visible") {
		t.Error("child should follow parent's level")
	}
}

func TestNull(t *testing.T) {
	if Null.Enabled(LevelError) {
		t.Error("Null should be disabled")
	}
	Null.WithField("k", "v").Error("dropped")
	if OrNull(nil) != Null {
		t.Error("OrNull(nil) should return Null")
	}
}

func TestComponentLevel(t *testing.T) {
	var buf bytes.Buffer
	root := New(Config{Level: LevelWarn, Output: &buf})
	root.SetComponentLevel("collab", LevelDebug)
	root.SetComponentLevel("diff", LevelError)

	root.WithComponent("collab").Debug("collab debug")
	root.WithComponent("diff").Warn("diff warn")
	root.WithComponent("syntax").Info("syntax info")
	root.Warn("root warn")

	out := buf.String()
	if !strings.Contains(out, "collab debug") || !strings.Contains(out, "root warn") {
		t.Errorf("missing lines in %q", out)
	}
	if strings.Contains(out, "diff warn") || strings.Contains(out, "syntax info") {
		t.Errorf("filtered lines written: %q", out)
	}
	if !root.WithComponent("collab").Enabled(LevelDebug) {
		t.Error("Enabled ignores the component level")
	}
}
