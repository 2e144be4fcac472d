package config

import (
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/dshills/strand/internal/config/loader"
	"github.com/dshills/strand/internal/logging"
)

// EnvPrefix starts every environment variable the loader reads.
const EnvPrefix = "STRAND_"

// Config holds every setting.
type Config struct {
	Buffer BufferConfig `toml:"buffer" yaml:"buffer"`
	Syntax SyntaxConfig `toml:"syntax" yaml:"syntax"`
	Diff   DiffConfig   `toml:"diff" yaml:"diff"`
	Collab CollabConfig `toml:"collab" yaml:"collab"`
	Log    LogConfig    `toml:"log" yaml:"log"`

	// Source is the file the config was read from, if any.
	Source string `toml:"-" yaml:"-"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Buffer: BufferConfig{
			UndoLimit:     1000,
			GroupInterval: Duration(500 * time.Millisecond),
			LineEnding:    "keep",
		},
		Syntax: SyntaxConfig{
			Debounce: Duration(20 * time.Millisecond),
			MaxBytes: 8 << 20,
		},
		Diff: DiffConfig{
			MaxLines:   50000,
			Inline:     true,
			Debounce:   Duration(100 * time.Millisecond),
			WatchDelay: Duration(100 * time.Millisecond),
		},
		Collab: CollabConfig{
			Transport:     TransportWebSocket,
			Addr:          ":8090",
			URL:           "ws://localhost:8090/ws",
			RedisAddr:     "localhost:6379",
			ChannelPrefix: "strand:doc:",
			QueueSize:     256,
			RetryInitial:  Duration(100 * time.Millisecond),
			RetryMax:      Duration(10 * time.Second),
		},
		Log: LogConfig{Level: "info"},
	}
}

type loadSettings struct {
	fs   loader.FileSystem
	path string
	env  *loader.EnvLoader
}

// LoadOption configures Load.
type LoadOption func(*loadSettings)

// WithFS reads files from fsys instead of the OS.
func WithFS(fsys loader.FileSystem) LoadOption {
	return func(s *loadSettings) { s.fs = fsys }
}

// WithFile reads path. It must exist. Without it Load reads the file
// named by STRAND_CONFIG, if set.
func WithFile(path string) LoadOption {
	return func(s *loadSettings) { s.path = path }
}

// WithEnv reads "KEY=value" pairs from env instead of the process
// environment.
func WithEnv(env []string) LoadOption {
	return func(s *loadSettings) { s.env = loader.NewEnvLoaderFrom(EnvPrefix, env) }
}

// Load layers the defaults, the config file and the environment, then
// validates the result.
func Load(opts ...LoadOption) (*Config, error) {
	s := loadSettings{fs: loader.DefaultFS(), env: loader.NewEnvLoader(EnvPrefix)}
	for _, opt := range opts {
		opt(&s)
	}
	cfg := Default()

	path := s.path
	if path == "" {
		path, _ = s.env.Lookup(EnvPrefix + "CONFIG")
	}
	if path != "" {
		found, err := loader.DecodeFile(s.fs, path, cfg)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, fmt.Errorf("config file %s: %w", path, fs.ErrNotExist)
		}
		cfg.Source = path
	}

	if err := cfg.applyEnv(s.env.Load()); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

type setter func(c *Config, raw string) error

func intSetting(field func(*Config) *int) setter {
	return func(c *Config, raw string) error {
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return fmt.Errorf("invalid integer %q", raw)
		}
		*field(c) = n
		return nil
	}
}

func boolSetting(field func(*Config) *bool) setter {
	return func(c *Config, raw string) error {
		v, ok := loader.ParseBool(raw)
		if !ok {
			return fmt.Errorf("invalid boolean %q", raw)
		}
		*field(c) = v
		return nil
	}
}

func durationSetting(field func(*Config) *Duration) setter {
	return func(c *Config, raw string) error {
		return field(c).UnmarshalText([]byte(strings.TrimSpace(raw)))
	}
}

func stringSetting(field func(*Config) *string) setter {
	return func(c *Config, raw string) error {
		*field(c) = raw
		return nil
	}
}

var envSettings = map[string]setter{
	"buffer.undo_limit":      intSetting(func(c *Config) *int { return &c.Buffer.UndoLimit }),
	"buffer.group_interval":  durationSetting(func(c *Config) *Duration { return &c.Buffer.GroupInterval }),
	"buffer.line_ending":     stringSetting(func(c *Config) *string { return &c.Buffer.LineEnding }),
	"syntax.debounce":        durationSetting(func(c *Config) *Duration { return &c.Syntax.Debounce }),
	"syntax.max_bytes":       intSetting(func(c *Config) *int { return &c.Syntax.MaxBytes }),
	"diff.max_lines":         intSetting(func(c *Config) *int { return &c.Diff.MaxLines }),
	"diff.ignore_whitespace": boolSetting(func(c *Config) *bool { return &c.Diff.IgnoreWhitespace }),
	"diff.inline":            boolSetting(func(c *Config) *bool { return &c.Diff.Inline }),
	"diff.debounce":          durationSetting(func(c *Config) *Duration { return &c.Diff.Debounce }),
	"diff.watch_disk":        boolSetting(func(c *Config) *bool { return &c.Diff.WatchDisk }),
	"diff.watch_delay":       durationSetting(func(c *Config) *Duration { return &c.Diff.WatchDelay }),
	"collab.transport":       stringSetting(func(c *Config) *string { return &c.Collab.Transport }),
	"collab.addr":            stringSetting(func(c *Config) *string { return &c.Collab.Addr }),
	"collab.url":             stringSetting(func(c *Config) *string { return &c.Collab.URL }),
	"collab.redis_addr":      stringSetting(func(c *Config) *string { return &c.Collab.RedisAddr }),
	"collab.channel_prefix":  stringSetting(func(c *Config) *string { return &c.Collab.ChannelPrefix }),
	"collab.queue_size":      intSetting(func(c *Config) *int { return &c.Collab.QueueSize }),
	"collab.retry_initial":   durationSetting(func(c *Config) *Duration { return &c.Collab.RetryInitial }),
	"collab.retry_max":       durationSetting(func(c *Config) *Duration { return &c.Collab.RetryMax }),
	"log.level":              stringSetting(func(c *Config) *string { return &c.Log.Level }),
}

var sections = map[string]bool{"buffer": true, "syntax": true, "diff": true, "collab": true, "log": true}

// applyEnv sets the values of vars. Variables outside the known sections
// belong to someone else and are skipped.
func (c *Config) applyEnv(vars map[string]string) error {
	var errs []error
	for _, path := range sortedKeys(vars) {
		section, _, _ := strings.Cut(path, ".")
		if !sections[section] {
			continue
		}
		set, ok := envSettings[path]
		if !ok {
			errs = append(errs, fmt.Errorf("%w: %s%s", ErrUnknownSetting, EnvPrefix, envName(path)))
			continue
		}
		if err := set(c, vars[path]); err != nil {
			errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, envName(path), err))
		}
	}
	return errors.Join(errs...)
}

func envName(path string) string {
	return strings.ToUpper(strings.ReplaceAll(path, ".", "_"))
}

func sortedKeys(m map[string]string) []string {
	return slices.Sorted(maps.Keys(m))
}

// Validate checks every setting and reports all problems at once.
func (c *Config) Validate() error {
	var errs []error
	bad := func(path, msg string, v any) {
		errs = append(errs, &ValidationError{Path: path, Message: msg, Value: v})
	}
	nonNegative := func(path string, n int) {
		if n < 0 {
			bad(path, "must not be negative", n)
		}
	}
	nonNegativeDur := func(path string, d Duration) {
		if d < 0 {
			bad(path, "must not be negative", d)
		}
	}

	nonNegative("buffer.undo_limit", c.Buffer.UndoLimit)
	nonNegativeDur("buffer.group_interval", c.Buffer.GroupInterval)
	switch strings.ToLower(c.Buffer.LineEnding) {
	case "", "keep", "lf":
	default:
		bad("buffer.line_ending", `must be "keep" or "lf"`, c.Buffer.LineEnding)
	}

	nonNegativeDur("syntax.debounce", c.Syntax.Debounce)
	nonNegative("syntax.max_bytes", c.Syntax.MaxBytes)
	for _, ext := range sortedKeys(c.Syntax.Languages) {
		if !strings.HasPrefix(ext, ".") {
			bad("syntax.languages", "extensions must start with a dot", ext)
		}
	}

	nonNegative("diff.max_lines", c.Diff.MaxLines)
	nonNegativeDur("diff.debounce", c.Diff.Debounce)
	nonNegativeDur("diff.watch_delay", c.Diff.WatchDelay)

	switch c.Collab.Transport {
	case TransportWebSocket:
		if c.Collab.URL == "" {
			bad("collab.url", "required for the websocket transport", c.Collab.URL)
		}
	case TransportRedis:
		if c.Collab.RedisAddr == "" {
			bad("collab.redis_addr", "required for the redis transport", c.Collab.RedisAddr)
		}
		if c.Collab.ChannelPrefix == "" {
			bad("collab.channel_prefix", "required for the redis transport", c.Collab.ChannelPrefix)
		}
	default:
		bad("collab.transport", `must be "websocket" or "redis"`, c.Collab.Transport)
	}
	if c.Collab.QueueSize <= 0 {
		bad("collab.queue_size", "must be positive", c.Collab.QueueSize)
	}
	if c.Collab.RetryInitial <= 0 {
		bad("collab.retry_initial", "must be positive", c.Collab.RetryInitial)
	}
	if c.Collab.RetryMax < c.Collab.RetryInitial {
		bad("collab.retry_max", "must not be below retry_initial", c.Collab.RetryMax)
	}

	if !validLevel(c.Log.Level) {
		bad("log.level", "unknown level", c.Log.Level)
	}
	for _, comp := range sortedKeys(c.Log.Components) {
		if lvl := c.Log.Components[comp]; !validLevel(lvl) {
			bad("log.components."+comp, "unknown level", lvl)
		}
	}
	return errors.Join(errs...)
}

func validLevel(s string) bool {
	switch strings.ToLower(s) {
	case "debug", "info", "warn", "warning", "error":
		return true
	}
	return false
}

// NewLogger creates the logger the settings describe.
func (c LogConfig) NewLogger(cfg logging.Config) *logging.Logger {
	cfg.Level = logging.ParseLevel(c.Level)
	l := logging.New(cfg)
	c.Apply(l)
	return l
}

// Apply sets the level and component levels of l.
func (c LogConfig) Apply(l *logging.Logger) {
	l.SetLevel(logging.ParseLevel(c.Level))
	for comp, lvl := range c.Components {
		l.SetComponentLevel(comp, logging.ParseLevel(lvl))
	}
}
