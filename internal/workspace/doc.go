// Package workspace is the registry of open documents in an editing
// session.
//
// A Session creates each buffer together with its syntax layer, diff
// overlay and, when a language server connector is configured, its LSP
// store, and bridges buffer changes onto the session's event bus. With
// disk watching enabled, files changed on disk become the new diff
// reference of their documents; buffer contents are never replaced.
package workspace
