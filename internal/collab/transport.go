package collab

import "context"

// Transport moves envelopes between the replicas of one document. Every
// envelope sent reaches every other participant at least once, in any
// order; delivery back to the sender is allowed. Receive is closed when the
// transport closes.
type Transport interface {
	Send(ctx context.Context, e Envelope) error
	Receive() <-chan Envelope
	Close() error
}

// Reconnector is implemented by transports that can lose and regain their
// connection. A value is sent on Reconnected after every redial; envelopes
// sent in between may have been lost.
type Reconnector interface {
	Reconnected() <-chan struct{}
}
