package loader

import (
	"os"
	"strings"
)

// EnvLoader collects prefixed environment variables as dotted setting
// paths: STRAND_SYNTAX_MAX_BYTES becomes "syntax.max_bytes".
type EnvLoader struct {
	prefix  string
	environ func() []string
}

// NewEnvLoader creates a loader reading the process environment. The
// prefix includes the trailing underscore ("STRAND_").
func NewEnvLoader(prefix string) *EnvLoader {
	return &EnvLoader{prefix: prefix, environ: os.Environ}
}

// NewEnvLoaderFrom reads "KEY=value" pairs from env instead.
func NewEnvLoaderFrom(prefix string, env []string) *EnvLoader {
	return &EnvLoader{prefix: prefix, environ: func() []string { return env }}
}

// Load returns the raw values by path. Empty values count as set.
func (l *EnvLoader) Load() map[string]string {
	out := make(map[string]string)
	for _, kv := range l.environ() {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, l.prefix) {
			continue
		}
		if path := l.envToPath(name); path != "" {
			out[path] = value
		}
	}
	return out
}

// envToPath converts STRAND_BUFFER_UNDO_LIMIT to buffer.undo_limit. The
// first word is the section; the rest is the key in snake case.
func (l *EnvLoader) envToPath(env string) string {
	name := strings.ToLower(strings.TrimPrefix(env, l.prefix))
	section, key, ok := strings.Cut(name, "_")
	if !ok || section == "" || key == "" {
		return ""
	}
	return section + "." + key
}

// ParseBool accepts the spellings environment variables use for flags.
func ParseBool(s string) (value, ok bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true, true
	case "0", "false", "no", "off", "":
		return false, true
	}
	return false, false
}

// Lookup returns one variable by its full name.
func (l *EnvLoader) Lookup(name string) (string, bool) {
	for _, kv := range l.environ() {
		if k, v, ok := strings.Cut(kv, "="); ok && k == name {
			return v, true
		}
	}
	return "", false
}
