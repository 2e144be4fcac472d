// Package topic names events and matches subscription patterns.
//
// Topics are dot-separated:
//
//	buffer.<id>.changed
//	syntax.<id>.parsed
//	workspace.file.changed
//
// Patterns may use "*" for exactly one segment and "**" for any number of
// segments, so "buffer.*.changed" follows every buffer and "**" matches
// everything.
package topic
