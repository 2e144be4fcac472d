package collab

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/dshills/strand/internal/buffer"
	"github.com/dshills/strand/internal/clock"
)

// Kind tells the receiver what an envelope asks for.
type Kind string

const (
	// KindOp carries operations a replica just made.
	KindOp Kind = "op"
	// KindHello announces a replica and its version.
	KindHello Kind = "hello"
	// KindSyncRequest asks for everything the sender's version lacks.
	KindSyncRequest Kind = "sync-request"
	// KindSyncResponse answers a hello or sync request with operations,
	// or with a full state when the history was collected.
	KindSyncResponse Kind = "sync-response"
)

func (k Kind) valid() bool {
	switch k {
	case KindOp, KindHello, KindSyncRequest, KindSyncResponse:
		return true
	}
	return false
}

// Envelope is one message between replicas of a document.
type Envelope struct {
	Buffer  buffer.ID       `json:"buffer"`
	Replica clock.ReplicaID `json:"replica"`
	// To addresses one replica. The nil id means everyone.
	To      clock.ReplicaID    `json:"to"`
	Kind    Kind               `json:"kind"`
	Version clock.Version      `json:"version"`
	Ops     []buffer.Operation `json:"ops,omitempty"`
	State   *buffer.State      `json:"state,omitempty"`
}

// For reports whether e is meant for replica r.
func (e Envelope) For(r clock.ReplicaID) bool {
	return e.Replica != r && (e.To == uuid.Nil || e.To == r)
}

func (e Envelope) String() string {
	return fmt.Sprintf("%s from %.8s (%d ops)", e.Kind, e.Replica.String(), len(e.Ops))
}

// Encode serializes e.
func Encode(e Envelope) ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("collab: encode %s: %w", e.Kind, err)
	}
	return data, nil
}

// Decode parses and validates an envelope.
func Decode(data []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return Envelope{}, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	switch {
	case !e.Kind.valid():
		return Envelope{}, fmt.Errorf("%w: unknown kind %q", ErrDecode, e.Kind)
	case e.Buffer == uuid.Nil:
		return Envelope{}, fmt.Errorf("%w: missing buffer id", ErrDecode)
	case e.Replica == uuid.Nil:
		return Envelope{}, fmt.Errorf("%w: missing replica id", ErrDecode)
	case e.State != nil && e.State.ID != e.Buffer:
		return Envelope{}, fmt.Errorf("%w: state of buffer %v in envelope for %v", ErrDecode, e.State.ID, e.Buffer)
	}
	for _, op := range e.Ops {
		if (op.Edit == nil) == (op.Undo == nil) || op.ID.IsZero() {
			return Envelope{}, fmt.Errorf("%w: invalid operation %v", ErrDecode, op.ID)
		}
	}
	return e, nil
}
