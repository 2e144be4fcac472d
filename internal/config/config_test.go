package config

import (
	"bytes"
	"errors"
	"io/fs"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/dshills/strand/internal/logging"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
}

func TestLoadLayers(t *testing.T) {
	fsys := fstest.MapFS{
		"strand.toml": {Data: []byte(`
[buffer]
undo_limit = 50

[syntax]
debounce = "5ms"
languages = { ".tmpl" = "go" }

[diff]
max_lines = 10
inline = false

[log]
level = "warn"
components = { collab = "debug" }
`)},
	}
	cfg, err := Load(WithFS(fsys), WithFile("strand.toml"), WithEnv([]string{
		"STRAND_DIFF_MAX_LINES=20",
		"STRAND_COLLAB_TRANSPORT=redis",
		"HOME=/root",
		"STRAND_TEST_REDIS=1",
	}))
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"file over default", cfg.Buffer.UndoLimit, 50},
		{"default kept", cfg.Buffer.GroupInterval, Duration(500 * time.Millisecond)},
		{"duration string", cfg.Syntax.Debounce, Duration(5 * time.Millisecond)},
		{"map", cfg.Syntax.Languages[".tmpl"], "go"},
		{"env over file", cfg.Diff.MaxLines, 20},
		{"file bool", cfg.Diff.Inline, false},
		{"env over default", cfg.Collab.Transport, TransportRedis},
		{"component level", cfg.Log.Components["collab"], "debug"},
		{"source", cfg.Source, "strand.toml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
}

func TestLoadYAML(t *testing.T) {
	fsys := fstest.MapFS{
		"strand.yml": {Data: []byte(`
diff:
  ignore_whitespace: true
  watch_disk: true
  watch_delay: 1s
collab:
  url: ws://example.com/ws
`)},
	}
	cfg, err := Load(WithFS(fsys), WithFile("strand.yml"), WithEnv(nil))
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Diff.IgnoreWhitespace || !cfg.Diff.WatchDisk || cfg.Diff.WatchDelay != Duration(time.Second) {
		t.Errorf("diff = %+v", cfg.Diff)
	}
	if cfg.Collab.URL != "ws://example.com/ws" || cfg.Collab.QueueSize != 256 {
		t.Errorf("collab = %+v", cfg.Collab)
	}
}

func TestLoadFileFromEnv(t *testing.T) {
	fsys := fstest.MapFS{"conf/s.toml": {Data: []byte("[log]\nlevel = \"error\"\n")}}
	cfg, err := Load(WithFS(fsys), WithEnv([]string{"STRAND_CONFIG=conf/s.toml"}))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Log.Level != "error" || cfg.Source != "conf/s.toml" {
		t.Errorf("log = %+v, source %q", cfg.Log, cfg.Source)
	}

	cfg, err = Load(WithFS(fsys), WithEnv(nil))
	if err != nil || cfg.Source != "" {
		t.Errorf("Load() without a file = %+v, %v", cfg, err)
	}
}

func TestLoadErrors(t *testing.T) {
	fsys := fstest.MapFS{
		"bad.toml":     {Data: []byte("[buffer]\nundo_limit = \n")},
		"unknown.toml": {Data: []byte("[buffer]\nundo_limit = 3\ncolour = \"red\"\n")},
		"bad.yaml":     {Data: []byte("buffer:\n  undo_limit: [\n")},
		"dur.toml":     {Data: []byte("[syntax]\ndebounce = \"soon\"\n")},
		"x.json":       {Data: []byte("{}")},
	}
	tests := []struct {
		name string
		path string
		env  []string
		want func(error) bool
	}{
		{"toml syntax", "bad.toml", nil, isParseError(0)},
		{"unknown key", "unknown.toml", nil, func(err error) bool {
			return isParseError(0)(err) && strings.Contains(err.Error(), "colour")
		}},
		{"yaml syntax", "bad.yaml", nil, isParseError(0)},
		{"bad duration", "dur.toml", nil, isParseError(0)},
		{"format", "x.json", nil, func(err error) bool { return err != nil }},
		{"missing file", "nope.toml", nil, func(err error) bool { return errors.Is(err, fs.ErrNotExist) }},
		{"unknown env key", "", []string{"STRAND_BUFFER_COLOUR=red"}, func(err error) bool { return errors.Is(err, ErrUnknownSetting) }},
		{"bad env value", "", []string{"STRAND_DIFF_INLINE=maybe"}, func(err error) bool {
			return err != nil && strings.Contains(err.Error(), "STRAND_DIFF_INLINE")
		}},
		{"invalid value", "", []string{"STRAND_BUFFER_UNDO_LIMIT=-1"}, func(err error) bool { return errors.Is(err, ErrValidationFailed) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := []LoadOption{WithFS(fsys), WithEnv(tt.env)}
			if tt.path != "" {
				opts = append(opts, WithFile(tt.path))
			}
			_, err := Load(opts...)
			if !tt.want(err) {
				t.Errorf("Load() error = %v", err)
			}
		})
	}
}

// isParseError matches a *ParseError, at line when line is not zero.
func isParseError(line int) func(error) bool {
	return func(err error) bool {
		var pe *ParseError
		if !errors.As(err, &pe) {
			return false
		}
		return line == 0 || pe.Line == line
	}
}

func TestValidateReportsEverything(t *testing.T) {
	cfg := Default()
	cfg.Buffer.LineEnding = "crlf"
	cfg.Syntax.Languages = map[string]string{"go": "go"}
	cfg.Collab.Transport = "carrier-pigeon"
	cfg.Collab.RetryMax = 0
	cfg.Log.Components = map[string]string{"diff": "loud"}

	err := cfg.Validate()
	if !errors.Is(err, ErrValidationFailed) {
		t.Fatalf("Validate() = %v", err)
	}
	for _, path := range []string{"buffer.line_ending", "syntax.languages", "collab.transport", "collab.retry_max", "log.components.diff"} {
		if !strings.Contains(err.Error(), path) {
			t.Errorf("%s not reported in %v", path, err)
		}
	}
}

func TestLogConfig(t *testing.T) {
	var buf bytes.Buffer
	c := LogConfig{Level: "warn", Components: map[string]string{"collab": "debug"}}
	l := c.NewLogger(logging.Config{Output: &buf})
	l.Info("dropped")
	l.WithComponent("collab").Debug("kept")
	if out := buf.String(); strings.Contains(out, "dropped") || !strings.Contains(out, "kept") {
		t.Errorf("output = %q", out)
	}
}

func TestComponentOptions(t *testing.T) {
	cfg := Default()
	if n := len(cfg.Diff.Options()); n != 4 {
		t.Errorf("%d diff options with background recompute", n)
	}
	cfg.Diff.Debounce = 0
	if n := len(cfg.Diff.Options()); n != 3 {
		t.Errorf("%d diff options without background recompute", n)
	}
	b := cfg.Collab.BackOff()
	if d := b.NextBackOff(); d <= 0 || d > time.Duration(cfg.Collab.RetryMax) {
		t.Errorf("first backoff = %v", d)
	}
	base := len(cfg.SessionOptions(nil))
	cfg.Diff.WatchDisk = true
	cfg.Syntax.Languages = map[string]string{".x": "go"}
	if n := len(cfg.SessionOptions(nil)); n != base+2 {
		t.Errorf("SessionOptions() = %d options, want %d", n, base+2)
	}
}
