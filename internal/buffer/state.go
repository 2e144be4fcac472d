package buffer

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/dshills/strand/internal/clock"
	"github.com/dshills/strand/internal/history"
	"github.com/dshills/strand/internal/logging"
	"github.com/dshills/strand/internal/rope"
)

// FragmentState is one fragment of an exported buffer.
type FragmentState struct {
	Insertion clock.Lamport   `json:"insertion"`
	Offset    int             `json:"offset"`
	Text      string          `json:"text"`
	Deletions []clock.Lamport `json:"deletions,omitempty"`
}

// EditState is an edit that can still be undone.
type EditState struct {
	ID        clock.Clock   `json:"id"`
	Timestamp clock.Lamport `json:"timestamp"`
	Op        *EditOp       `json:"op"`
	UndoneBy  clock.Version `json:"undone_by"`
}

// State is a full copy of a replica, used to bring a peer up to date when
// the history it needs was collected.
type State struct {
	ID        ID              `json:"id"`
	Version   clock.Version   `json:"version"`
	GCFloor   clock.Version   `json:"gc_floor"`
	Lamport   uint64          `json:"lamport"`
	Fragments []FragmentState `json:"fragments"`
	Undo      []UndoCount     `json:"undo,omitempty"`
	Edits     []EditState     `json:"edits,omitempty"`
	Ops       []Operation     `json:"ops,omitempty"`
}

// Export captures the current state.
func (b *Buffer) Export() State {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := b.snap.Load()
	st := State{
		ID:      b.id,
		Version: s.Version(),
		GCFloor: b.gcFloor.Clone(),
		Lamport: b.lamport.Value,
		Ops:     slices.Clone(b.ops),
	}
	var vis, del int
	for _, f := range s.fragments.All() {
		var text string
		if f.visible {
			text = s.visible.Slice(vis, vis+f.length)
			vis += f.length
		} else {
			text = s.deleted.Slice(del, del+f.length)
			del += f.length
		}
		st.Fragments = append(st.Fragments, FragmentState{
			Insertion: f.insertion,
			Offset:    f.offset,
			Text:      text,
			Deletions: slices.Clone(f.deletions),
		})
	}
	for ts, n := range s.undo {
		st.Undo = append(st.Undo, UndoCount{Edit: ts, Count: n})
	}
	slices.SortFunc(st.Undo, func(a, b UndoCount) int { return a.Edit.Compare(b.Edit) })
	for ts, r := range b.edits {
		st.Edits = append(st.Edits, EditState{ID: r.id, Timestamp: ts, Op: r.op, UndoneBy: b.undoneBy[ts].Clone()})
	}
	slices.SortFunc(st.Edits, func(a, b EditState) int { return a.Timestamp.Compare(b.Timestamp) })
	return st
}

// Restore builds a new replica from an exported state. The replica gets
// its own replica id unless one is given with WithReplica.
func Restore(st State, opts ...Option) (*Buffer, error) {
	replica := clock.NewReplicaID()
	b := &Buffer{
		id:       st.ID,
		local:    clock.Local{Replica: replica},
		lamport:  clock.LamportClock{Replica: replica},
		ops:      slices.Clone(st.Ops),
		edits:    make(map[clock.Lamport]editRecord, len(st.Edits)),
		stamps:   make(map[clock.Clock]clock.Lamport, len(st.Edits)),
		undoneBy: make(map[clock.Lamport]clock.Version),
		gcFloor:  st.GCFloor.Clone(),
		log:      logging.Null,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.id = st.ID
	b.lamport.Value = max(b.lamport.Value, st.Lamport)
	b.local.Seq = max(b.local.Seq, st.Version.Get(b.local.Replica))
	b.history = history.New(b.historyOpts...)
	b.log = b.log.WithComponent("buffer").WithField("replica", b.local.Replica.String()[:8])

	for _, e := range st.Edits {
		b.edits[e.Timestamp] = editRecord{id: e.ID, op: e.Op}
		b.stamps[e.ID] = e.Timestamp
		if len(e.UndoneBy.Clocks()) > 0 {
			b.undoneBy[e.Timestamp] = e.UndoneBy.Clone()
		}
	}

	s := &Snapshot{
		id:        st.ID,
		index:     newInsertionIndex(),
		version:   st.Version.Clone(),
		undo:      make(map[clock.Lamport]uint32, len(st.Undo)),
		undoOwned: true,
	}
	for _, uc := range st.Undo {
		s.undo[uc.Edit] = uc.Count
	}

	var (
		frags    = make([]fragment, 0, len(st.Fragments))
		vis, del strings.Builder
		prev     = minLocator
	)
	for i, fs := range st.Fragments {
		if fs.Text == "" {
			return nil, fmt.Errorf("restore: fragment %d is empty", i)
		}
		f := fragment{
			locator:   between(prev, maxLocator),
			insertion: fs.Insertion,
			offset:    fs.Offset,
			length:    len(fs.Text),
			deletions: slices.Clone(fs.Deletions),
		}
		prev = f.locator
		f.visible = s.isVisible(f)
		if f.visible {
			vis.WriteString(fs.Text)
		} else {
			del.WriteString(fs.Text)
		}
		frags = append(frags, f)
		s.index = s.index.Insert(indexKey{insertion: f.insertion, offset: f.offset}, f.locator)
	}
	s.fragments = fragmentTree{}.Push(frags...)
	s.visible = rope.FromString(vis.String())
	s.deleted = rope.FromString(del.String())

	if err := s.check(); err != nil {
		return nil, fmt.Errorf("restore: %w", err)
	}
	b.snap.Store(s)
	return b, nil
}

// Reset replaces the replica's content with st, keeping the replica id and
// the subscribers. Local operations st has not observed are applied again
// on top of it. Observers see one OriginResync event replacing the whole
// text. The local undo history is cleared.
func (b *Buffer) Reset(st State) error {
	b.mu.Lock()
	err := b.resetLocked(st)
	b.mu.Unlock()
	b.flush()
	return err
}

func (b *Buffer) resetLocked(st State) error {
	if b.poisoned != nil {
		return b.poisoned
	}
	if st.ID != b.id {
		return fmt.Errorf("%w: state of document %v", ErrInvalidOperation, st.ID)
	}
	var mine []Operation
	for _, op := range b.ops {
		if op.ID.Replica == b.local.Replica && !st.Version.Observed(op.ID) {
			mine = append(mine, op)
		}
	}
	r, err := Restore(st, WithReplica(b.local.Replica))
	if err != nil {
		return err
	}

	old := b.snap.Load()
	next := r.snap.Load()
	b.lamport.Value = max(b.lamport.Value, r.lamport.Value)
	b.ops = r.ops
	b.edits = r.edits
	b.stamps = r.stamps
	b.undoneBy = r.undoneBy
	b.gcFloor = r.gcFloor
	b.deferred = slices.DeleteFunc(b.deferred, func(op Operation) bool { return st.Version.Observed(op.ID) })
	b.history = history.New(b.historyOpts...)
	b.snap.Store(next)
	b.pending = append(b.pending, ChangeEvent{
		Buffer:     b.id,
		Origin:     OriginResync,
		Edits:      []TextEdit{{Old: Range{End: old.Len()}, NewLen: next.Len()}},
		OldVersion: old.Version(),
		NewVersion: next.Version(),
		Snapshot:   next,
	})
	b.log.Info("reset to %v, replaying %d local operations", st.Version, len(mine))

	var errs []error
	for _, op := range mine {
		if _, err := b.integrateRemote(op); err != nil {
			errs = append(errs, err)
		}
	}
	errs = append(errs, b.drainDeferred()...)
	return errors.Join(errs...)
}
