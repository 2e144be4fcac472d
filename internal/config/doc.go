// Package config loads strand's settings.
//
// Settings come in layers, later layers overriding earlier ones:
//
//	1. built-in defaults (Default)
//	2. a TOML or YAML file (-config, or STRAND_CONFIG)
//	3. STRAND_* environment variables
//
// A file only needs the keys it changes:
//
//	[syntax]
//	debounce = "50ms"
//	languages = { ".tmpl" = "go" }
//
//	[log]
//	level = "debug"
//	components = { collab = "warn" }
//
// Environment variables name a section and a key: STRAND_DIFF_MAX_LINES=5000
// sets diff.max_lines. Map-valued keys are not settable from the
// environment.
//
// Sections convert to the options of the packages they configure, so a
// loaded Config is applied with, for example, cfg.SessionOptions(log).
package config
