package buffer

import (
	"github.com/dshills/strand/internal/clock"
)

// Origin tells observers where a change came from.
type Origin uint8

const (
	OriginLocal Origin = iota
	OriginRemote
	OriginUndo
	// OriginResync marks the whole-text replacement done by Reset. Its
	// event carries no operation.
	OriginResync
)

func (o Origin) String() string {
	switch o {
	case OriginLocal:
		return "local"
	case OriginRemote:
		return "remote"
	case OriginResync:
		return "resync"
	default:
		return "undo"
	}
}

// ChangeEvent describes one applied operation.
type ChangeEvent struct {
	Buffer     ID
	Op         Operation
	Origin     Origin
	Edits      []TextEdit
	OldVersion clock.Version
	NewVersion clock.Version
	Snapshot   *Snapshot
}

// Observer receives change events in application order.
type Observer func(ChangeEvent)

type subscription struct {
	id int
	fn Observer
}

// Subscribe registers fn for change events and returns a function that
// removes it. Events are delivered outside the buffer's lock, in the order
// operations were applied; fn may call back into the buffer.
func (b *Buffer) Subscribe(fn Observer) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextSub++
	id := b.nextSub
	b.subs = append(b.subs, subscription{id: id, fn: fn})
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range b.subs {
			if s.id == id {
				b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
				return
			}
		}
	}
}

// flush delivers pending events. Only one goroutine delivers at a time;
// others leave their events for it.
func (b *Buffer) flush() {
	b.mu.Lock()
	if b.delivering {
		b.mu.Unlock()
		return
	}
	b.delivering = true
	for len(b.pending) > 0 {
		events := b.pending
		b.pending = nil
		subs := b.subs
		b.mu.Unlock()
		for _, ev := range events {
			for _, s := range subs {
				s.fn(ev)
			}
		}
		b.mu.Lock()
	}
	b.delivering = false
	b.mu.Unlock()
}
