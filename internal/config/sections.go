package config

import (
	"fmt"
	"time"
)

// Duration is a time.Duration written as a Go duration string ("250ms")
// in files and environment variables.
type Duration time.Duration

func (d Duration) String() string {
	return time.Duration(d).String()
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q", text)
	}
	*d = Duration(v)
	return nil
}

// BufferConfig configures every buffer.
type BufferConfig struct {
	// UndoLimit bounds local undo transactions. Zero keeps them all.
	UndoLimit int `toml:"undo_limit" yaml:"undo_limit"`
	// GroupInterval merges local edits typed within it into one undo step.
	GroupInterval Duration `toml:"group_interval" yaml:"group_interval"`
	// LineEnding is "lf" to normalize inserted line breaks or "keep".
	LineEnding string `toml:"line_ending" yaml:"line_ending"`
}

// SyntaxConfig configures syntax layers.
type SyntaxConfig struct {
	Debounce Duration `toml:"debounce" yaml:"debounce"`
	// MaxBytes disables parsing of larger documents. Zero means no limit.
	MaxBytes int `toml:"max_bytes" yaml:"max_bytes"`
	// Languages maps file extensions to language names.
	Languages map[string]string `toml:"languages" yaml:"languages"`
}

// DiffConfig configures diff overlays.
type DiffConfig struct {
	MaxLines         int  `toml:"max_lines" yaml:"max_lines"`
	IgnoreWhitespace bool `toml:"ignore_whitespace" yaml:"ignore_whitespace"`
	Inline           bool `toml:"inline" yaml:"inline"`
	// Debounce enables background recomputation after edits.
	Debounce Duration `toml:"debounce" yaml:"debounce"`
	// WatchDisk reloads the reference when an open file changes on disk.
	WatchDisk  bool     `toml:"watch_disk" yaml:"watch_disk"`
	WatchDelay Duration `toml:"watch_delay" yaml:"watch_delay"`
}

// Transports a peer can use.
const (
	TransportWebSocket = "websocket"
	TransportRedis     = "redis"
)

// CollabConfig configures collaboration.
type CollabConfig struct {
	// Transport is "websocket" or "redis".
	Transport string `toml:"transport" yaml:"transport"`
	// Addr is the listen address of strand serve.
	Addr string `toml:"addr" yaml:"addr"`
	// URL is the hub base URL peers dial, e.g. ws://host:8090/ws.
	URL           string   `toml:"url" yaml:"url"`
	RedisAddr     string   `toml:"redis_addr" yaml:"redis_addr"`
	ChannelPrefix string   `toml:"channel_prefix" yaml:"channel_prefix"`
	QueueSize     int      `toml:"queue_size" yaml:"queue_size"`
	RetryInitial  Duration `toml:"retry_initial" yaml:"retry_initial"`
	RetryMax      Duration `toml:"retry_max" yaml:"retry_max"`
}

// LogConfig configures the logger.
type LogConfig struct {
	Level string `toml:"level" yaml:"level"`
	// Components overrides the level per component ("collab" = "debug").
	Components map[string]string `toml:"components" yaml:"components"`
}
