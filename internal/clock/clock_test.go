package clock

import (
	"encoding/json"
	"testing"
)

func TestVersionObserve(t *testing.T) {
	a, b := NewReplicaID(), NewReplicaID()
	var v Version
	v.Observe(Clock{Replica: a, Seq: 3})
	v.Observe(Clock{Replica: a, Seq: 2})

	tests := []struct {
		name string
		c    Clock
		want bool
	}{
		{"zero clock", Clock{}, true},
		{"older", Clock{Replica: a, Seq: 1}, true},
		{"latest", Clock{Replica: a, Seq: 3}, true},
		{"newer", Clock{Replica: a, Seq: 4}, false},
		{"unknown replica", Clock{Replica: b, Seq: 1}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := v.Observed(tt.c); got != tt.want {
				t.Errorf("Observed(%v) = %v, want %v", tt.c, got, tt.want)
			}
		})
	}
}

func TestVersionLattice(t *testing.T) {
	a, b := NewReplicaID(), NewReplicaID()
	v1 := NewVersion(Clock{a, 5}, Clock{b, 1})
	v2 := NewVersion(Clock{a, 2}, Clock{b, 4})

	join := v1.Join(v2)
	if join.Get(a) != 5 || join.Get(b) != 4 {
		t.Errorf("Join = %v", join)
	}
	meet := v1.Meet(v2)
	if meet.Get(a) != 2 || meet.Get(b) != 1 {
		t.Errorf("Meet = %v", meet)
	}
	if !join.ObservedAll(v1) || !join.ObservedAll(v2) {
		t.Error("join should observe both inputs")
	}
	if v1.ObservedAll(v2) {
		t.Error("v1 should not observe v2")
	}
	if !v1.Changed(meet) || meet.Changed(v1) {
		t.Error("Changed mismatch")
	}

	c := v1.Clone()
	c.Observe(Clock{a, 9})
	if v1.Get(a) != 5 {
		t.Error("Clone shares state with original")
	}
}

func TestVersionJSON(t *testing.T) {
	a, b := NewReplicaID(), NewReplicaID()
	v := NewVersion(Clock{a, 7}, Clock{b, 2})
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	var got Version
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if !got.Equal(v) {
		t.Errorf("round trip = %v, want %v", got, v)
	}
}

func TestLamportOrder(t *testing.T) {
	a, b := NewReplicaID(), NewReplicaID()
	if CompareReplicas(a, b) > 0 {
		a, b = b, a
	}
	tests := []struct {
		x, y Lamport
		want int
	}{
		{Lamport{a, 1}, Lamport{b, 2}, -1},
		{Lamport{b, 3}, Lamport{a, 2}, 1},
		{Lamport{a, 4}, Lamport{b, 4}, -1},
		{Lamport{b, 4}, Lamport{b, 4}, 0},
	}
	for _, tt := range tests {
		if got := tt.x.Compare(tt.y); got != tt.want {
			t.Errorf("%v.Compare(%v) = %d, want %d", tt.x, tt.y, got, tt.want)
		}
	}

	lc := LamportClock{Replica: a}
	lc.Observe(Lamport{b, 10})
	if next := lc.Tick(); next.Value != 11 {
		t.Errorf("Tick after Observe = %d, want 11", next.Value)
	}
}
