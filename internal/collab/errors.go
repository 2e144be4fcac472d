package collab

import "errors"

var (
	// ErrDecode indicates a message that is not a valid envelope.
	ErrDecode = errors.New("collab: malformed envelope")

	// ErrTransportClosed is returned by Send after Close.
	ErrTransportClosed = errors.New("collab: transport closed")

	// ErrWrongDocument indicates an envelope sent on another document's
	// transport.
	ErrWrongDocument = errors.New("collab: envelope for another document")

	// ErrNotConnected is returned by Send while a transport redials.
	ErrNotConnected = errors.New("collab: not connected")

	// ErrPeerRunning is returned by Peer.Run when the peer already runs.
	ErrPeerRunning = errors.New("collab: peer already running")
)
