package buffer

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dshills/strand/internal/clock"
	"github.com/dshills/strand/internal/history"
	"github.com/dshills/strand/internal/logging"
	"github.com/dshills/strand/internal/rope"
)

// ErrInvalidOperation indicates a remote operation that is neither an edit
// nor an undo.
var ErrInvalidOperation = errors.New("invalid operation")

// editRecord remembers an applied edit so it can be undone later.
type editRecord struct {
	id clock.Clock
	op *EditOp
}

// Buffer is one replica of a document. Mutations are serialized by an
// internal lock; readers work on snapshots and never wait for writers.
type Buffer struct {
	mu   sync.Mutex
	snap atomic.Pointer[Snapshot]

	id      ID
	local   clock.Local
	lamport clock.LamportClock

	history     *history.History
	historyOpts []history.Option

	// ops is the operation log in application order.
	ops      []Operation
	edits    map[clock.Lamport]editRecord
	stamps   map[clock.Clock]clock.Lamport
	// undoneBy joins the undo operations that touched each edit.
	undoneBy map[clock.Lamport]clock.Version
	deferred []Operation
	gcFloor  clock.Version
	poisoned error

	subs       []subscription
	nextSub    int
	pending    []ChangeEvent
	delivering bool

	lineEnding      LineEnding
	checkInvariants bool
	log             *logging.Logger
	now             func() time.Time
}

// New creates a buffer holding text. Replicas of one document must be
// created from the same text and document id, or derived with Replicate.
func New(text string, opts ...Option) *Buffer {
	replica := clock.NewReplicaID()
	b := &Buffer{
		id:       uuid.New(),
		local:    clock.Local{Replica: replica},
		lamport:  clock.LamportClock{Replica: replica},
		edits:    make(map[clock.Lamport]editRecord),
		stamps:   make(map[clock.Clock]clock.Lamport),
		undoneBy: make(map[clock.Lamport]clock.Version),
		log:      logging.Null,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.history = history.New(b.historyOpts...)
	b.log = b.log.WithComponent("buffer").WithField("replica", b.local.Replica.String()[:8])

	text = b.lineEnding.normalize(text)
	s := &Snapshot{
		id:        b.id,
		fragments: fragmentTree{},
		index:     newInsertionIndex(),
		visible:   rope.FromString(text),
	}
	if text != "" {
		f := fragment{
			locator: between(minLocator, maxLocator),
			length:  len(text),
			visible: true,
		}
		s.fragments = s.fragments.Push(f)
		s.index = s.index.Insert(indexKey{}, f.locator)
	}
	b.snap.Store(s)
	return b
}

// ID returns the document id.
func (b *Buffer) ID() ID {
	return b.id
}

// Replica returns the local replica id.
func (b *Buffer) Replica() clock.ReplicaID {
	return b.local.Replica
}

// Snapshot returns the current immutable state.
func (b *Buffer) Snapshot() *Snapshot {
	return b.snap.Load()
}

// Version returns the operations applied so far.
func (b *Buffer) Version() clock.Version {
	return b.snap.Load().Version()
}

// Text returns the visible text.
func (b *Buffer) Text() string {
	return b.snap.Load().Text()
}

// Len returns the visible text length in bytes.
func (b *Buffer) Len() int {
	return b.snap.Load().Len()
}

// TextForRange returns the visible text in r.
func (b *Buffer) TextForRange(r Range) (string, error) {
	return b.snap.Load().TextForRange(r)
}

// Err returns the invariant failure that disabled the buffer, if any.
func (b *Buffer) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.poisoned
}

// Edit applies edits expressed in current visible coordinates as one
// operation and returns its clock. Edits may be given in any order but
// must not overlap. No-op edits produce no operation and a zero clock.
func (b *Buffer) Edit(edits ...Edit) (clock.Clock, error) {
	b.mu.Lock()
	id, err := b.editLocked(edits)
	b.mu.Unlock()
	b.flush()
	return id, err
}

func (b *Buffer) editLocked(edits []Edit) (clock.Clock, error) {
	if b.poisoned != nil {
		return clock.Clock{}, b.poisoned
	}
	snap := b.snap.Load()
	sorted, err := prepareEdits(snap, edits)
	if err != nil || len(sorted) == 0 {
		return clock.Clock{}, err
	}

	eop := &EditOp{}
	offset := 0
	for _, e := range sorted {
		if !e.Range.IsEmpty() {
			eop.Deletes = append(eop.Deletes, snap.spansFor(e.Range)...)
		}
		if e.Text == "" {
			continue
		}
		text := b.lineEnding.normalize(e.Text)
		eop.Inserts = append(eop.Inserts, InsertText{After: snap.origin(e.Range.Start), Offset: offset, Text: text})
		offset += len(text)
	}

	op := Operation{
		ID:        b.local.Tick(),
		Timestamp: b.lamport.Tick(),
		Deps:      snap.Version(),
		Edit:      eop,
	}
	if err := b.applyLocked(op, OriginLocal); err != nil {
		// A local operation built from the current snapshot cannot be stale.
		b.poison(err)
		return clock.Clock{}, b.poisoned
	}
	b.history.Push(op.Timestamp, b.now())
	return op.ID, nil
}

// prepareEdits validates edits against snap, drops no-ops and sorts them.
func prepareEdits(snap *Snapshot, edits []Edit) ([]Edit, error) {
	out := make([]Edit, 0, len(edits))
	for _, e := range edits {
		if err := snap.checkRange(e.Range); err != nil {
			return nil, err
		}
		if e.Range.IsEmpty() && e.Text == "" {
			continue
		}
		out = append(out, e)
	}
	slices.SortStableFunc(out, func(a, b Edit) int {
		if a.Range.Start != b.Range.Start {
			return a.Range.Start - b.Range.Start
		}
		return a.Range.End - b.Range.End
	})
	for i := 1; i < len(out); i++ {
		prev, cur := out[i-1].Range, out[i].Range
		if prev.End > cur.Start || (prev.IsEmpty() && cur.IsEmpty() && prev.Start == cur.Start) {
			return nil, fmt.Errorf("%w: %v and %v", ErrEditsOverlap, prev, cur)
		}
	}
	return out, nil
}

// CheckEdits reports the error Edit would return for edits against s.
func (s *Snapshot) CheckEdits(edits ...Edit) error {
	_, err := prepareEdits(s, edits)
	return err
}

// origin returns the position right after the visible character before
// offset.
func (s *Snapshot) origin(offset int) Position {
	if offset == 0 {
		return Position{}
	}
	_, f, off := s.visibleCharAt(offset - 1)
	return Position{Insertion: f.insertion, Offset: off + 1}
}

// spansFor converts a visible range to the insertion spans it covers.
func (s *Snapshot) spansFor(r Range) []Span {
	var spans []Span
	c := s.fragments.CursorWhere(func(sum fragmentSummary) bool { return sum.visible > r.Start })
	for ; c.Valid(); c.Next() {
		f := c.Item()
		if !f.visible {
			continue
		}
		start := c.Start().visible
		if start >= r.End {
			break
		}
		from := max(r.Start, start) - start
		to := min(r.End, start+f.length) - start
		spans = append(spans, Span{Insertion: f.insertion, Start: f.offset + from, End: f.offset + to})
	}
	return spans
}

// applyLocked applies op to a clone of the current snapshot and publishes
// the clone. Nothing changes when it fails.
func (b *Buffer) applyLocked(op Operation, origin Origin) error {
	old := b.snap.Load()
	next := old.clone()
	var rec recorder

	ok := true
	switch {
	case op.Edit != nil:
		ok = next.applyEdit(op.Edit, op.Timestamp, &rec)
	case op.Undo != nil:
		ok = next.applyUndo(op.Undo, b.lookupEdit, &rec)
	}
	if !ok {
		return &StaleError{Op: op.ID, Reason: "references collected text"}
	}
	next.version.Observe(op.ID)

	if b.checkInvariants {
		if err := next.check(); err != nil {
			b.poison(err)
			return b.poisoned
		}
	}

	b.snap.Store(next)
	b.lamport.Observe(op.Timestamp)
	if op.Edit != nil {
		b.edits[op.Timestamp] = editRecord{id: op.ID, op: op.Edit}
		b.stamps[op.ID] = op.Timestamp
	}
	if op.Undo != nil {
		for _, uc := range op.Undo.Counts {
			v := b.undoneBy[uc.Edit]
			v.Observe(op.ID)
			b.undoneBy[uc.Edit] = v
		}
	}
	b.ops = append(b.ops, op)
	b.pending = append(b.pending, ChangeEvent{
		Buffer:     b.id,
		Op:         op,
		Origin:     origin,
		Edits:      rec.edits,
		OldVersion: old.Version(),
		NewVersion: next.Version(),
		Snapshot:   next,
	})
	return nil
}

func (b *Buffer) lookupEdit(ts clock.Lamport) (*EditOp, bool) {
	r, ok := b.edits[ts]
	return r.op, ok
}

func (b *Buffer) poison(err error) {
	if b.poisoned == nil {
		b.poisoned = fmt.Errorf("%w: %w", ErrPoisoned, err)
		b.log.Error("buffer disabled: %v", err)
	}
}

// Apply merges operations from other replicas. Operations already applied
// are ignored. Operations whose dependencies have not arrived yet are held
// back and applied once they can be. The returned error joins the failures
// of individual operations; the others are still applied.
func (b *Buffer) Apply(ops ...Operation) error {
	b.mu.Lock()
	err := b.applyRemoteLocked(ops)
	b.mu.Unlock()
	b.flush()
	return err
}

func (b *Buffer) applyRemoteLocked(ops []Operation) error {
	if b.poisoned != nil {
		return b.poisoned
	}
	var errs []error
	applied := false
	for _, op := range ops {
		ok, err := b.integrateRemote(op)
		if err != nil {
			errs = append(errs, err)
		}
		applied = applied || ok
	}
	if applied {
		errs = append(errs, b.drainDeferred()...)
	}
	return errors.Join(errs...)
}

// integrateRemote applies op or defers it. It reports whether op was
// applied.
func (b *Buffer) integrateRemote(op Operation) (bool, error) {
	if (op.Edit == nil) == (op.Undo == nil) || op.ID.IsZero() {
		return false, fmt.Errorf("%w: %v", ErrInvalidOperation, op.ID)
	}
	snap := b.snap.Load()
	if snap.version.Observed(op.ID) {
		return false, nil
	}
	if !snap.version.ObservedAll(op.Deps) {
		if !slices.ContainsFunc(b.deferred, func(d Operation) bool { return d.ID == op.ID }) {
			b.deferred = append(b.deferred, op)
			b.log.Debug("deferred %v until %v", op.ID, op.Deps)
		}
		return false, nil
	}
	if err := b.applyLocked(op, OriginRemote); err != nil {
		return false, err
	}
	return true, nil
}

// drainDeferred applies held-back operations until none is ready.
func (b *Buffer) drainDeferred() []error {
	var errs []error
	for progress := true; progress; {
		progress = false
		rest := b.deferred[:0]
		for _, op := range b.deferred {
			snap := b.snap.Load()
			switch {
			case snap.version.Observed(op.ID):
			case snap.version.ObservedAll(op.Deps):
				if err := b.applyLocked(op, OriginRemote); err != nil {
					errs = append(errs, err)
				} else {
					progress = true
				}
			default:
				rest = append(rest, op)
			}
		}
		clear(b.deferred[len(rest):])
		b.deferred = rest
	}
	return errs
}

// Deferred returns the number of operations waiting for dependencies.
func (b *Buffer) Deferred() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.deferred)
}

// Undo reverts the most recent local transaction.
func (b *Buffer) Undo() (clock.Clock, error) {
	return b.undoRedo(true)
}

// Redo reapplies the most recently undone transaction.
func (b *Buffer) Redo() (clock.Clock, error) {
	return b.undoRedo(false)
}

func (b *Buffer) undoRedo(undo bool) (clock.Clock, error) {
	b.mu.Lock()
	id, err := b.undoRedoLocked(undo)
	b.mu.Unlock()
	b.flush()
	return id, err
}

func (b *Buffer) undoRedoLocked(undo bool) (clock.Clock, error) {
	if b.poisoned != nil {
		return clock.Clock{}, b.poisoned
	}
	pop := b.history.PopRedo
	if undo {
		pop = b.history.PopUndo
	}
	tx, err := pop()
	if err != nil {
		return clock.Clock{}, err
	}
	id, err := b.setUndone(tx.Edits, undo)
	if err != nil {
		b.history.Restore(undo)
	}
	return id, err
}

// UndoEdit reverts one edit by its clock, whichever replica made it.
// Undoing an edit that is already undone does nothing.
func (b *Buffer) UndoEdit(id clock.Clock) (clock.Clock, error) {
	return b.toggleEdit(id, true)
}

// RedoEdit reapplies an edit reverted with UndoEdit.
func (b *Buffer) RedoEdit(id clock.Clock) (clock.Clock, error) {
	return b.toggleEdit(id, false)
}

func (b *Buffer) toggleEdit(id clock.Clock, undo bool) (clock.Clock, error) {
	b.mu.Lock()
	out, err := func() (clock.Clock, error) {
		if b.poisoned != nil {
			return clock.Clock{}, b.poisoned
		}
		ts, ok := b.stamps[id]
		if !ok {
			if b.snap.Load().version.Observed(id) {
				return clock.Clock{}, &StaleError{Op: id, Reason: "edit was collected"}
			}
			return clock.Clock{}, fmt.Errorf("%w: unknown edit %v", ErrInvalidOperation, id)
		}
		return b.setUndone([]clock.Lamport{ts}, undo)
	}()
	b.mu.Unlock()
	b.flush()
	return out, err
}

// setUndone issues an undo operation that makes every edit in edits undone
// (odd count) or redone (even count).
func (b *Buffer) setUndone(edits []clock.Lamport, undo bool) (clock.Clock, error) {
	snap := b.snap.Load()
	var counts []UndoCount
	for _, ts := range edits {
		if _, ok := b.edits[ts]; !ok {
			return clock.Clock{}, &StaleError{Reason: fmt.Sprintf("edit %v was collected", ts)}
		}
		c := snap.undo[ts]
		if (c%2 == 1) != undo {
			counts = append(counts, UndoCount{Edit: ts, Count: c + 1})
		}
	}
	if len(counts) == 0 {
		return clock.Clock{}, nil
	}
	op := Operation{
		ID:        b.local.Tick(),
		Timestamp: b.lamport.Tick(),
		Deps:      snap.Version(),
		Undo:      &UndoOp{Counts: counts},
	}
	if err := b.applyLocked(op, OriginUndo); err != nil {
		return clock.Clock{}, err
	}
	return op.ID, nil
}

// CanUndo reports whether a local transaction can be undone.
func (b *Buffer) CanUndo() bool {
	return b.history.CanUndo()
}

// CanRedo reports whether an undone transaction can be redone.
func (b *Buffer) CanRedo() bool {
	return b.history.CanRedo()
}

// Transact runs fn and records every local edit it makes as one undo
// transaction.
func (b *Buffer) Transact(name string, fn func() error) error {
	return b.history.Transaction(name, fn)
}

// SealUndo stops the latest transaction from absorbing further edits.
func (b *Buffer) SealUndo() {
	b.history.Seal()
}

// HistorySince returns every applied operation that v has not observed, in
// an order that respects dependencies. It fails with ErrResyncRequired when
// some of those operations were already collected.
func (b *Buffer) HistorySince(v clock.Version) ([]Operation, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !v.ObservedAll(b.gcFloor) {
		return nil, fmt.Errorf("%w: %v predates collected history %v", ErrResyncRequired, v, b.gcFloor)
	}
	var out []Operation
	for _, op := range b.ops {
		if !v.Observed(op.ID) {
			out = append(out, op)
		}
	}
	return out, nil
}

// GCFloor returns the version below which history was collected.
func (b *Buffer) GCFloor() clock.Version {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.gcFloor.Clone()
}

// CollectGarbage drops tombstones whose insertion and deletions are all
// observed by floor, which the caller guarantees every replica has seen.
// Edits touching dropped text can no longer be undone, and remote
// operations that still refer to it fail with a StaleError. It returns
// the number of fragments removed.
func (b *Buffer) CollectGarbage(floor clock.Version) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.poisoned != nil {
		return 0
	}

	old := b.snap.Load()
	floor = floor.Meet(old.version)
	settled := func(ts clock.Lamport) bool {
		if ts == (clock.Lamport{}) {
			return true
		}
		r, ok := b.edits[ts]
		return !ok || (floor.Observed(r.id) && floor.ObservedAll(b.undoneBy[ts]))
	}

	var (
		kept    []fragment
		deleted []byte
		frozen  = make(map[clock.Lamport]bool)
		index   = old.index
		off     int
	)
	for _, f := range old.fragments.All() {
		if f.visible {
			kept = append(kept, f)
			continue
		}
		collect := settled(f.insertion) && !slices.ContainsFunc(f.deletions, func(d clock.Lamport) bool { return !settled(d) })
		if collect {
			index = index.Remove(indexKey{insertion: f.insertion, offset: f.offset})
			frozen[f.insertion] = true
			for _, d := range f.deletions {
				frozen[d] = true
			}
		} else {
			kept = append(kept, f)
			deleted = append(deleted, old.deleted.Slice(off, off+f.length)...)
		}
		off += f.length
	}
	removed := old.fragments.Len() - len(kept)

	b.ops = slices.DeleteFunc(b.ops, func(op Operation) bool { return floor.Observed(op.ID) })
	b.gcFloor = b.gcFloor.Join(floor)
	if removed == 0 {
		return 0
	}

	next := old.clone()
	next.fragments = fragmentTree{}.Push(kept...)
	next.index = index
	next.deleted = rope.FromString(string(deleted))
	b.snap.Store(next)

	for ts := range frozen {
		if r, ok := b.edits[ts]; ok {
			delete(b.stamps, r.id)
			delete(b.edits, ts)
		}
		delete(b.undoneBy, ts)
	}
	forgotten := b.history.Forget(func(ts clock.Lamport) bool { return frozen[ts] })
	b.log.Debug("collected %d fragments below %v, %d undo entries dropped", removed, floor, forgotten)
	return removed
}

// Replicate creates another replica of this document with its own replica
// id, starting from the current state. The new replica has no undo history.
func (b *Buffer) Replicate(opts ...Option) *Buffer {
	b.mu.Lock()
	defer b.mu.Unlock()

	replica := clock.NewReplicaID()
	r := &Buffer{
		id:              b.id,
		local:           clock.Local{Replica: replica},
		lamport:         clock.LamportClock{Replica: replica, Value: b.lamport.Value},
		ops:             slices.Clone(b.ops),
		edits:           make(map[clock.Lamport]editRecord, len(b.edits)),
		stamps:          make(map[clock.Clock]clock.Lamport, len(b.stamps)),
		undoneBy:        make(map[clock.Lamport]clock.Version, len(b.undoneBy)),
		gcFloor:         b.gcFloor.Clone(),
		lineEnding:      b.lineEnding,
		checkInvariants: b.checkInvariants,
		log:             logging.Null,
		now:             time.Now,
	}
	for k, v := range b.edits {
		r.edits[k] = v
	}
	for k, v := range b.stamps {
		r.stamps[k] = v
	}
	for k, v := range b.undoneBy {
		r.undoneBy[k] = v.Clone()
	}
	for _, opt := range opts {
		opt(r)
	}
	r.id = b.id
	r.history = history.New(r.historyOpts...)
	r.log = r.log.WithComponent("buffer").WithField("replica", r.local.Replica.String()[:8])
	r.snap.Store(b.snap.Load().clone())
	return r
}
