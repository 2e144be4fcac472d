package workspace

import "errors"

// Common errors.
var (
	ErrSessionClosed  = errors.New("workspace: session is closed")
	ErrBufferNotFound = errors.New("workspace: buffer not found")
	ErrAlreadyOpen    = errors.New("workspace: file is already open")
	ErrNotFile        = errors.New("workspace: buffer has no file")
	ErrWatcherClosed  = errors.New("workspace: watcher is closed")
	ErrNoConnector    = errors.New("workspace: no language server connector")
)
