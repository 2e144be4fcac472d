package lsp

import "errors"

var (
	// ErrStale indicates a result was computed for a snapshot that is no
	// longer current. It is discarded.
	ErrStale = errors.New("result is for an outdated snapshot")

	// ErrNotSupported indicates the server lacks the requested feature.
	ErrNotSupported = errors.New("feature not supported by server")

	// ErrShutdown indicates the server connection has been shut down.
	ErrShutdown = errors.New("lsp server shut down")
)
