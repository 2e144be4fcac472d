package clock

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"
)

// Version maps each replica to the highest sequence number observed from it.
// Sequence numbers are applied in order per replica, so observing seq n
// implies observing every earlier one. The zero value is an empty version.
type Version struct {
	seqs map[ReplicaID]uint64
}

// NewVersion returns a version observing the given clocks.
func NewVersion(clocks ...Clock) Version {
	var v Version
	for _, c := range clocks {
		v.Observe(c)
	}
	return v
}

// Observe records c as seen.
func (v *Version) Observe(c Clock) {
	if c.IsZero() {
		return
	}
	if v.seqs == nil {
		v.seqs = make(map[ReplicaID]uint64)
	}
	if c.Seq > v.seqs[c.Replica] {
		v.seqs[c.Replica] = c.Seq
	}
}

// Observed reports whether c has been seen.
func (v Version) Observed(c Clock) bool {
	return c.IsZero() || v.seqs[c.Replica] >= c.Seq
}

// Get returns the highest sequence number seen from replica.
func (v Version) Get(replica ReplicaID) uint64 {
	return v.seqs[replica]
}

// ObservedAll reports whether v has seen everything o has.
func (v Version) ObservedAll(o Version) bool {
	for r, seq := range o.seqs {
		if v.seqs[r] < seq {
			return false
		}
	}
	return true
}

// Join returns the pointwise maximum of v and o.
func (v Version) Join(o Version) Version {
	out := v.Clone()
	for r, seq := range o.seqs {
		out.Observe(Clock{Replica: r, Seq: seq})
	}
	return out
}

// Meet returns the pointwise minimum of v and o.
func (v Version) Meet(o Version) Version {
	var out Version
	for r, seq := range v.seqs {
		if m := min(seq, o.seqs[r]); m > 0 {
			out.Observe(Clock{Replica: r, Seq: m})
		}
	}
	return out
}

// Clone returns an independent copy.
func (v Version) Clone() Version {
	return Version{seqs: maps.Clone(v.seqs)}
}

// Equal reports whether both versions observed exactly the same clocks.
func (v Version) Equal(o Version) bool {
	return v.ObservedAll(o) && o.ObservedAll(v)
}

// Changed reports whether v observed anything o has not.
func (v Version) Changed(since Version) bool {
	return !since.ObservedAll(v)
}

// Clocks returns the latest clock per replica, ordered by replica id.
func (v Version) Clocks() []Clock {
	out := make([]Clock, 0, len(v.seqs))
	for r, seq := range v.seqs {
		out = append(out, Clock{Replica: r, Seq: seq})
	}
	slices.SortFunc(out, func(a, b Clock) int { return CompareReplicas(a.Replica, b.Replica) })
	return out
}

func (v Version) String() string {
	parts := make([]string, 0, len(v.seqs))
	for _, c := range v.Clocks() {
		parts = append(parts, c.String())
	}
	return "{" + strings.Join(parts, " ") + "}"
}

// MarshalJSON encodes the version as a list of clocks.
func (v Version) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Clocks())
}

// UnmarshalJSON decodes a list of clocks.
func (v *Version) UnmarshalJSON(data []byte) error {
	var clocks []Clock
	if err := json.Unmarshal(data, &clocks); err != nil {
		return fmt.Errorf("decode version: %w", err)
	}
	*v = NewVersion(clocks...)
	return nil
}
