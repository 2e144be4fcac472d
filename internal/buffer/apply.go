package buffer

import (
	"maps"
	"slices"

	"github.com/dshills/strand/internal/clock"
)

// The methods in this file mutate a Snapshot in place. They are only ever
// called on a private clone that has not been published yet, so a failed
// operation is dropped by discarding the clone.

// splitFragment splits fragment i at insertion offset at, which must lie
// strictly inside it, and returns the index of the right half. The right
// half keeps the original locator so existing index entries stay valid.
func (s *Snapshot) splitFragment(i, at int) int {
	f := s.fragment(i)
	prev := minLocator
	if i > 0 {
		prev = s.fragment(i - 1).locator
	}

	left := f
	left.length = at - f.offset
	left.locator = between(prev, f.locator)

	right := f
	right.offset = at
	right.length = f.end() - at

	s.fragments = s.fragments.ReplaceRange(i, i+1, left, right)
	s.index = s.index.
		Insert(indexKey{insertion: f.insertion, offset: f.offset}, left.locator).
		Insert(indexKey{insertion: f.insertion, offset: at}, f.locator)
	return i + 1
}

// refresh recomputes the visibility of fragment i, moving its text between
// the visible and deleted ropes when it flips.
func (s *Snapshot) refresh(i int, f fragment, rec *recorder) {
	visible := s.isVisible(f)
	if visible != f.visible {
		before := s.fragments.PrefixSummary(i)
		if f.visible {
			text := s.visible.Slice(before.visible, before.visible+f.length)
			s.visible = s.visible.Delete(before.visible, before.visible+f.length)
			s.deleted = s.deleted.Insert(before.deleted, text)
			rec.add(TextEdit{Old: Range{Start: before.visible, End: before.visible + f.length}})
		} else {
			text := s.deleted.Slice(before.deleted, before.deleted+f.length)
			s.deleted = s.deleted.Delete(before.deleted, before.deleted+f.length)
			s.visible = s.visible.Insert(before.visible, text)
			rec.add(TextEdit{Old: Range{Start: before.visible, End: before.visible}, NewLen: f.length})
		}
		f.visible = visible
	}
	s.fragments = s.fragments.Replace(i, f)
}

// deleteSpan tombstones the characters of span on behalf of edit.
func (s *Snapshot) deleteSpan(span Span, edit clock.Lamport, rec *recorder) bool {
	for pos := span.Start; pos < span.End; {
		i, f, ok := s.fragmentAt(span.Insertion, pos)
		if !ok {
			return false
		}
		if f.offset < pos {
			i = s.splitFragment(i, pos)
			f = s.fragment(i)
		}
		if span.End < f.end() {
			s.splitFragment(i, span.End)
			f = s.fragment(i)
		}
		f.deletions = append(slices.Clip(f.deletions), edit)
		s.refresh(i, f, rec)
		pos = f.end()
	}
	return true
}

// integrate places an insertion. The text goes right after its origin,
// past any fragments with a greater timestamp: those were inserted
// concurrently at the same place, or after them.
func (s *Snapshot) integrate(ins InsertText, ts clock.Lamport, rec *recorder) bool {
	if ins.Text == "" {
		return true
	}
	i := 0
	if !ins.After.IsDocumentStart() {
		j, f, ok := s.fragmentAt(ins.After.Insertion, ins.After.Offset-1)
		if !ok {
			return false
		}
		if ins.After.Offset < f.end() {
			s.splitFragment(j, ins.After.Offset)
		}
		i = j + 1
	}

	// Newer insertions at the same origin come first. Earlier inserts of
	// the same operation stay ahead of this one.
	c := s.fragments.Cursor(i)
	for c.Valid() {
		it := c.Item()
		cmp := it.insertion.Compare(ts)
		if cmp < 0 || cmp == 0 && it.offset >= ins.Offset {
			break
		}
		c.Next()
	}
	i = c.Index()

	prev, next := minLocator, maxLocator
	if i > 0 {
		prev = s.fragment(i - 1).locator
	}
	if i < s.fragments.Len() {
		next = s.fragment(i).locator
	}
	f := fragment{
		locator:   between(prev, next),
		insertion: ts,
		offset:    ins.Offset,
		length:    len(ins.Text),
	}
	f.visible = s.isVisible(f)

	before := s.fragments.PrefixSummary(i)
	s.fragments = s.fragments.InsertAt(i, f)
	s.index = s.index.Insert(indexKey{insertion: ts, offset: ins.Offset}, f.locator)
	if f.visible {
		s.visible = s.visible.Insert(before.visible, ins.Text)
		rec.add(TextEdit{Old: Range{Start: before.visible, End: before.visible}, NewLen: f.length})
	} else {
		s.deleted = s.deleted.Insert(before.deleted, ins.Text)
	}
	return true
}

// applyEdit applies an edit operation. It reports false when the operation
// refers to text that is no longer present.
func (s *Snapshot) applyEdit(op *EditOp, ts clock.Lamport, rec *recorder) bool {
	for _, span := range op.Deletes {
		if !s.deleteSpan(span, ts, rec) {
			return false
		}
	}
	for _, ins := range op.Inserts {
		if !s.integrate(ins, ts, rec) {
			return false
		}
	}
	return true
}

// applyUndo raises undo counts and refreshes every fragment the affected
// edits inserted or deleted. edits resolves an edit id to its operation.
func (s *Snapshot) applyUndo(op *UndoOp, edits func(clock.Lamport) (*EditOp, bool), rec *recorder) bool {
	var changed []clock.Lamport
	for _, uc := range op.Counts {
		if uc.Count <= s.undo[uc.Edit] {
			continue
		}
		if _, ok := edits(uc.Edit); !ok {
			return false
		}
		if !s.undoOwned {
			s.undo = maps.Clone(s.undo)
			if s.undo == nil {
				s.undo = make(map[clock.Lamport]uint32)
			}
			s.undoOwned = true
		}
		s.undo[uc.Edit] = uc.Count
		changed = append(changed, uc.Edit)
	}

	for _, id := range changed {
		edit, _ := edits(id)
		for _, ins := range edit.Inserts {
			s.refreshSpan(Span{Insertion: id, Start: ins.Offset, End: ins.Offset + len(ins.Text)}, rec)
		}
		for _, span := range edit.Deletes {
			s.refreshSpan(span, rec)
		}
	}
	return true
}

// refreshSpan recomputes visibility for every surviving fragment of span.
func (s *Snapshot) refreshSpan(span Span, rec *recorder) {
	for pos := span.Start; pos < span.End; {
		i, f, ok := s.fragmentAt(span.Insertion, pos)
		if !ok {
			e, found := s.index.Ceil(indexKey{insertion: span.Insertion, offset: pos + 1})
			if !found || e.Key.insertion != span.Insertion {
				return
			}
			pos = e.Key.offset
			continue
		}
		s.refresh(i, f, rec)
		pos = f.end()
	}
}
