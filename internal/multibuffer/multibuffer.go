package multibuffer

import (
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/dshills/strand/internal/buffer"
	"github.com/dshills/strand/internal/logging"
	"github.com/dshills/strand/internal/sumtree"
)

// ChangeEvent describes a change to the multi-buffer text. Edits are
// sequential, in multi-buffer offsets.
type ChangeEvent struct {
	Edits    []buffer.TextEdit
	Snapshot *Snapshot
}

// Option configures a MultiBuffer.
type Option func(*MultiBuffer)

func WithLogger(log *logging.Logger) Option {
	return func(mb *MultiBuffer) { mb.log = logging.OrNull(log) }
}

// MultiBuffer shows ranges of several buffers as one text. Each excerpt
// is held by anchors, so it follows its text through edits in the source.
// Source changes are noted as they arrive and offsets are worked out again
// from the anchors the next time a snapshot is taken; when someone is
// subscribed, that happens right away so the change can be reported.
type MultiBuffer struct {
	log *logging.Logger

	mu      sync.Mutex
	tree    excerptTree
	ids     sumtree.TreeMap[ExcerptID, sumtree.Locator]
	sources map[buffer.ID]*source
	dirty   bool
	version uint64
	snap    *Snapshot

	subs       []subscription
	nextSub    int
	pending    []ChangeEvent
	delivering bool
}

// source tracks one buffer shown by at least one excerpt.
type source struct {
	buf *buffer.Buffer
	// snap is the snapshot the excerpts were last resolved in; latest is
	// the newest seen, and edits lead from snap to latest.
	snap     *buffer.Snapshot
	latest   *buffer.Snapshot
	edits    []buffer.TextEdit
	resync   bool
	excerpts map[ExcerptID]struct{}
	unsub    func()
}

type subscription struct {
	id int
	fn func(ChangeEvent)
}

// New creates an empty multi-buffer.
func New(opts ...Option) *MultiBuffer {
	mb := &MultiBuffer{
		log:     logging.Null,
		ids:     sumtree.NewTreeMap[ExcerptID, sumtree.Locator](compareIDs),
		sources: make(map[buffer.ID]*source),
	}
	for _, opt := range opts {
		opt(mb)
	}
	mb.log = mb.log.WithComponent("multibuffer")
	return mb
}

// Subscribe registers fn for change events and returns a function that
// removes it. Events are delivered in order, outside the multi-buffer's
// lock.
func (mb *MultiBuffer) Subscribe(fn func(ChangeEvent)) (unsubscribe func()) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	mb.nextSub++
	id := mb.nextSub
	mb.subs = append(mb.subs, subscription{id: id, fn: fn})
	return func() {
		mb.mu.Lock()
		defer mb.mu.Unlock()
		for i, s := range mb.subs {
			if s.id == id {
				mb.subs = append(mb.subs[:i:i], mb.subs[i+1:]...)
				return
			}
		}
	}
}

// Snapshot returns the current view, re-resolving excerpts whose source
// changed since the last one.
func (mb *MultiBuffer) Snapshot() *Snapshot {
	mb.mu.Lock()
	s := mb.snapshotLocked()
	mb.mu.Unlock()
	mb.flush()
	return s
}

func (mb *MultiBuffer) snapshotLocked() *Snapshot {
	if mb.dirty {
		mb.refreshLocked()
	}
	if mb.snap == nil {
		sources := make(map[buffer.ID]*buffer.Snapshot, len(mb.sources))
		owners := make(map[buffer.ID][]sumtree.Locator, len(mb.sources))
		for id, src := range mb.sources {
			sources[id] = src.snap
			keys := make([]sumtree.Locator, 0, len(src.excerpts))
			for eid := range src.excerpts {
				key, _ := mb.ids.Get(eid)
				keys = append(keys, key)
			}
			slices.SortFunc(keys, sumtree.Locator.Compare)
			owners[id] = keys
		}
		mb.snap = &Snapshot{tree: mb.tree, ids: mb.ids, sources: sources, owners: owners, version: mb.version}
	}
	return mb.snap
}

// AddExcerpt appends an excerpt showing r of b. r is in the coordinates
// of the newest change of b the multi-buffer has seen.
func (mb *MultiBuffer) AddExcerpt(b *buffer.Buffer, r buffer.Range, opts ...ExcerptOption) (ExcerptID, error) {
	mb.mu.Lock()
	id, err := mb.insertLocked(mb.tree.Len(), b, r, opts)
	mb.mu.Unlock()
	mb.flush()
	return id, err
}

// InsertExcerptAfter inserts an excerpt right after another one. The
// zero id inserts at the front.
func (mb *MultiBuffer) InsertExcerptAfter(after ExcerptID, b *buffer.Buffer, r buffer.Range, opts ...ExcerptOption) (ExcerptID, error) {
	mb.mu.Lock()
	var (
		id  ExcerptID
		err error
	)
	if i, ok := mb.indexLocked(after); ok {
		id, err = mb.insertLocked(i+1, b, r, opts)
	} else if after == uuid.Nil {
		id, err = mb.insertLocked(0, b, r, opts)
	} else {
		err = fmt.Errorf("%w: %s", ErrExcerptNotFound, after)
	}
	mb.mu.Unlock()
	mb.flush()
	return id, err
}

// RemoveExcerpt removes an excerpt.
func (mb *MultiBuffer) RemoveExcerpt(id ExcerptID) error {
	mb.mu.Lock()
	err := mb.removeLocked(id)
	mb.mu.Unlock()
	mb.flush()
	return err
}

// MoveExcerpt moves an excerpt right after another one. The zero id moves
// it to the front.
func (mb *MultiBuffer) MoveExcerpt(id, after ExcerptID) error {
	mb.mu.Lock()
	defer func() {
		mb.mu.Unlock()
		mb.flush()
	}()
	if id == after {
		return nil
	}
	mb.refreshLocked()
	i, ok := mb.indexLocked(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrExcerptNotFound, id)
	}
	to := 0
	if after != uuid.Nil {
		j, ok := mb.indexLocked(after)
		if !ok {
			return fmt.Errorf("%w: %s", ErrExcerptNotFound, after)
		}
		to = j + 1
	}
	if to == i || to == i+1 {
		return nil
	}
	e, _ := mb.tree.Get(i)
	edits := []buffer.TextEdit{mb.removalEdit(i, e)}
	mb.tree = mb.tree.RemoveRange(i, i+1)
	if to > i {
		to--
	}
	e.key = mb.keyAt(to)
	mb.ids = mb.ids.Insert(e.id, e.key)
	mb.tree = mb.tree.InsertAt(to, e)
	edits = append(edits, mb.insertionEdit(to, e))
	mb.changedLocked(edits)
	return nil
}

func (mb *MultiBuffer) insertLocked(at int, b *buffer.Buffer, r buffer.Range, opts []ExcerptOption) (ExcerptID, error) {
	mb.refreshLocked()
	src := mb.sourceLocked(b)
	if _, err := src.snap.TextForRange(r); err != nil {
		mb.dropSourceIfUnused(src)
		return uuid.Nil, err
	}
	e := excerpt{
		id:  uuid.New(),
		key: mb.keyAt(at),
		buf: b,
		anchors: buffer.AnchorRange{
			Start: src.snap.AnchorAt(r.Start, buffer.BiasLeft),
			End:   src.snap.AnchorAt(r.End, buffer.BiasRight),
		},
	}
	for _, opt := range opts {
		opt(&e)
	}
	e = e.resolve(src.snap)
	src.excerpts[e.id] = struct{}{}
	mb.ids = mb.ids.Insert(e.id, e.key)
	mb.tree = mb.tree.InsertAt(at, e)
	mb.changedLocked([]buffer.TextEdit{mb.insertionEdit(at, e)})
	return e.id, nil
}

func (mb *MultiBuffer) removeLocked(id ExcerptID) error {
	mb.refreshLocked()
	i, ok := mb.indexLocked(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrExcerptNotFound, id)
	}
	e, _ := mb.tree.Get(i)
	edit := mb.removalEdit(i, e)
	mb.tree = mb.tree.RemoveRange(i, i+1)
	mb.ids = mb.ids.Remove(id)
	src := mb.sources[e.buf.ID()]
	delete(src.excerpts, id)
	mb.dropSourceIfUnused(src)
	mb.changedLocked([]buffer.TextEdit{edit})
	return nil
}

// insertionEdit is the text edit that adding e at index i (already in the
// tree) amounts to.
func (mb *MultiBuffer) insertionEdit(i int, e excerpt) buffer.TextEdit {
	n := e.rng.Len()
	if mb.tree.Len() == 1 {
		return buffer.TextEdit{NewLen: n}
	}
	if i == mb.tree.Len()-1 {
		// The separator goes before the last excerpt.
		at := mb.tree.PrefixSummary(i).bytes - 1
		return buffer.TextEdit{Old: buffer.Range{Start: at, End: at}, NewLen: n + 1}
	}
	at := mb.tree.PrefixSummary(i).bytes
	return buffer.TextEdit{Old: buffer.Range{Start: at, End: at}, NewLen: n + 1}
}

// removalEdit is the text edit that removing e at index i (still in the
// tree) amounts to.
func (mb *MultiBuffer) removalEdit(i int, e excerpt) buffer.TextEdit {
	at := mb.tree.PrefixSummary(i).bytes
	n := e.rng.Len()
	switch {
	case mb.tree.Len() == 1:
		return buffer.TextEdit{Old: buffer.Range{End: n}}
	case i == mb.tree.Len()-1:
		return buffer.TextEdit{Old: buffer.Range{Start: at - 1, End: at + n}}
	default:
		return buffer.TextEdit{Old: buffer.Range{Start: at, End: at + n + 1}}
	}
}

// keyAt returns an order key for an excerpt inserted at index i.
func (mb *MultiBuffer) keyAt(i int) sumtree.Locator {
	lo, hi := sumtree.MinLocator, sumtree.MaxLocator
	if prev, ok := mb.tree.Get(i - 1); ok {
		lo = prev.key
	}
	if next, ok := mb.tree.Get(i); ok {
		hi = next.key
	}
	return sumtree.Between(lo, hi)
}

func (mb *MultiBuffer) indexLocked(id ExcerptID) (int, bool) {
	key, ok := mb.ids.Get(id)
	if !ok {
		return 0, false
	}
	i, e, ok := locate(mb.tree, key)
	return i, ok && e.id == id
}

// locate finds the excerpt with order key key.
func locate(tree excerptTree, key sumtree.Locator) (int, excerpt, bool) {
	i, _ := tree.Find(func(s excerptSummary) bool {
		return s.maxKey != nil && s.maxKey.Compare(key) >= 0
	})
	e, ok := tree.Get(i)
	return i, e, ok && e.key.Compare(key) == 0
}

func (mb *MultiBuffer) sourceLocked(b *buffer.Buffer) *source {
	if src, ok := mb.sources[b.ID()]; ok {
		return src
	}
	src := &source{buf: b, excerpts: make(map[ExcerptID]struct{})}
	mb.sources[b.ID()] = src
	// Subscribing first means no change falls between the snapshot and
	// the subscription; changes the snapshot already has are skipped.
	src.unsub = b.Subscribe(func(ev buffer.ChangeEvent) { mb.onSourceChange(src, ev) })
	src.snap = b.Snapshot()
	src.latest = src.snap
	return src
}

func (mb *MultiBuffer) dropSourceIfUnused(src *source) {
	if len(src.excerpts) > 0 {
		return
	}
	delete(mb.sources, src.buf.ID())
	// The buffer calls observers without its lock held, so this cannot
	// deadlock against onSourceChange.
	src.unsub()
}

func (mb *MultiBuffer) onSourceChange(src *source, ev buffer.ChangeEvent) {
	mb.mu.Lock()
	if mb.sources[src.buf.ID()] != src || src.latest.Version().ObservedAll(ev.NewVersion) {
		mb.mu.Unlock()
		return
	}
	if !ev.OldVersion.Equal(src.latest.Version()) {
		mb.log.Debug("missed changes in %s, re-resolving its excerpts", src.buf.ID())
		src.resync = true
	}
	src.latest = ev.Snapshot
	src.edits = append(src.edits, ev.Edits...)
	mb.dirty = true
	mb.snap = nil
	if len(mb.subs) > 0 {
		mb.refreshLocked()
	}
	mb.mu.Unlock()
	mb.flush()
}

// refreshLocked re-resolves the excerpts of every source that changed and
// queues the resulting change event.
func (mb *MultiBuffer) refreshLocked() {
	if !mb.dirty {
		return
	}
	mb.dirty = false
	type pos struct {
		key sumtree.Locator
		src *source
	}
	var todo []pos
	for _, src := range mb.sources {
		if src.latest == src.snap {
			continue
		}
		for id := range src.excerpts {
			key, _ := mb.ids.Get(id)
			todo = append(todo, pos{key: key, src: src})
		}
	}
	slices.SortFunc(todo, func(a, b pos) int { return a.key.Compare(b.key) })

	var edits []buffer.TextEdit
	for _, p := range todo {
		i, old, _ := locate(mb.tree, p.key)
		e := old.resolve(p.src.latest)
		mb.tree = mb.tree.Replace(i, e)
		at := mb.tree.PrefixSummary(i).bytes
		if edit, ok := project(p.src, old.rng, e.rng, at); ok {
			edits = append(edits, edit)
		}
	}
	for _, src := range mb.sources {
		src.snap = src.latest
		src.edits = nil
		src.resync = false
	}
	mb.changedLocked(edits)
}

// project turns the source edits seen since an excerpt was last resolved
// into one edit of the excerpt's text, placed at offset at.
func project(src *source, oldR, newR buffer.Range, at int) (buffer.TextEdit, bool) {
	pre, suf := 0, 0
	if !src.resync {
		start, oldEnd, ok := envelope(src.edits)
		if !ok {
			return buffer.TextEdit{}, false
		}
		pre = min(max(start-oldR.Start, 0), oldR.Len())
		suf = min(max(oldR.End-oldEnd, 0), oldR.Len()-pre)
	}
	edit := buffer.TextEdit{
		Old:    buffer.Range{Start: at + pre, End: at + oldR.Len() - suf},
		NewLen: newR.Len() - pre - suf,
	}
	if edit.NewLen < 0 {
		edit = buffer.TextEdit{Old: buffer.Range{Start: at, End: at + oldR.Len()}, NewLen: newR.Len()}
	}
	if edit.Old.IsEmpty() && edit.NewLen == 0 {
		return buffer.TextEdit{}, false
	}
	return edit, true
}

// envelope returns the span of old text that a list of sequential edits
// touched: bytes before start and from oldEnd on are unchanged.
func envelope(edits []buffer.TextEdit) (start, oldEnd int, ok bool) {
	if len(edits) == 0 {
		return 0, 0, false
	}
	var end, delta int
	for i, e := range edits {
		if i == 0 {
			start, end = e.Old.Start, e.Old.End
		} else {
			start = min(start, e.Old.Start)
			end = max(end, e.Old.End)
		}
		end += e.Delta()
		delta += e.Delta()
	}
	return start, end - delta, true
}

// changedLocked records a change and queues its event.
func (mb *MultiBuffer) changedLocked(edits []buffer.TextEdit) {
	if len(edits) == 0 {
		mb.snap = nil
		return
	}
	mb.version++
	mb.snap = nil
	if len(mb.subs) == 0 {
		return
	}
	mb.pending = append(mb.pending, ChangeEvent{Edits: edits, Snapshot: mb.snapshotLocked()})
}

// flush delivers queued events. Only one goroutine delivers at a time.
func (mb *MultiBuffer) flush() {
	mb.mu.Lock()
	if mb.delivering {
		mb.mu.Unlock()
		return
	}
	mb.delivering = true
	for len(mb.pending) > 0 {
		events := mb.pending
		mb.pending = nil
		subs := slices.Clone(mb.subs)
		mb.mu.Unlock()
		for _, ev := range events {
			for _, s := range subs {
				s.fn(ev)
			}
		}
		mb.mu.Lock()
	}
	mb.delivering = false
	mb.mu.Unlock()
}

// Close detaches from every source buffer.
func (mb *MultiBuffer) Close() {
	mb.mu.Lock()
	sources := slices.Collect(maps.Values(mb.sources))
	mb.sources = make(map[buffer.ID]*source)
	mb.tree = excerptTree{}
	mb.ids = sumtree.NewTreeMap[ExcerptID, sumtree.Locator](compareIDs)
	mb.snap = nil
	mb.mu.Unlock()
	for _, src := range sources {
		src.unsub()
	}
}
