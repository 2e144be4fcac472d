// Package clock provides replica identities and the logical clocks used to
// order and track edits across replicas.
package clock

import (
	"bytes"
	"fmt"

	"github.com/google/uuid"
)

// ReplicaID identifies one editing participant.
type ReplicaID = uuid.UUID

// Base is the replica that owns the initial text every replica of a
// document starts from.
var Base ReplicaID = uuid.Nil

// NewReplicaID returns a fresh random replica id.
func NewReplicaID() ReplicaID {
	return uuid.New()
}

// CompareReplicas orders replica ids by their bytes.
func CompareReplicas(a, b ReplicaID) int {
	return bytes.Compare(a[:], b[:])
}

// Clock is a (replica, sequence) pair. Sequence numbers are strictly
// increasing per replica and start at 1.
type Clock struct {
	Replica ReplicaID `json:"replica"`
	Seq     uint64    `json:"seq"`
}

// IsZero reports whether c was never assigned.
func (c Clock) IsZero() bool {
	return c.Seq == 0
}

func (c Clock) String() string {
	return fmt.Sprintf("%s:%d", short(c.Replica), c.Seq)
}

// Local hands out sequence numbers for one replica.
type Local struct {
	Replica ReplicaID
	Seq     uint64
}

// Tick returns the next clock.
func (l *Local) Tick() Clock {
	l.Seq++
	return Clock{Replica: l.Replica, Seq: l.Seq}
}

// Lamport is a causal timestamp. Lamport values totally order operations:
// by Value, then by replica id.
type Lamport struct {
	Replica ReplicaID `json:"replica"`
	Value   uint64    `json:"value"`
}

// Compare orders two timestamps.
func (l Lamport) Compare(o Lamport) int {
	switch {
	case l.Value < o.Value:
		return -1
	case l.Value > o.Value:
		return 1
	}
	return CompareReplicas(l.Replica, o.Replica)
}

func (l Lamport) String() string {
	return fmt.Sprintf("%s@%d", short(l.Replica), l.Value)
}

// LamportClock tracks the highest Lamport value seen by a replica.
type LamportClock struct {
	Replica ReplicaID
	Value   uint64
}

// Tick returns a timestamp greater than every one observed so far.
func (c *LamportClock) Tick() Lamport {
	c.Value++
	return Lamport{Replica: c.Replica, Value: c.Value}
}

// Observe advances the clock past a remote timestamp.
func (c *LamportClock) Observe(l Lamport) {
	if l.Value > c.Value {
		c.Value = l.Value
	}
}

func short(id ReplicaID) string {
	if id == Base {
		return "base"
	}
	return id.String()[:8]
}
