package buffer

import (
	"iter"
	"maps"

	"github.com/google/uuid"
	"github.com/rivo/uniseg"

	"github.com/dshills/strand/internal/clock"
	"github.com/dshills/strand/internal/rope"
)

// ID identifies a document. Every replica of a document shares it.
type ID = uuid.UUID

// Point is a zero-based line/column position.
type Point = rope.Point

// Snapshot is an immutable view of a buffer at one version. Snapshots are
// cheap to take and safe to share between goroutines.
type Snapshot struct {
	id        ID
	fragments fragmentTree
	index     insertionIndex
	visible   rope.Rope
	deleted   rope.Rope
	version   clock.Version
	undo      map[clock.Lamport]uint32
	undoOwned bool
}

// clone returns a private copy for mutation. Trees and ropes are persistent
// so only the version needs copying; the undo map is copied on first write.
func (s *Snapshot) clone() *Snapshot {
	c := *s
	c.version = s.version.Clone()
	c.undoOwned = false
	return &c
}

// ID returns the document id.
func (s *Snapshot) ID() ID {
	return s.id
}

// Version returns the operations reflected in this snapshot.
func (s *Snapshot) Version() clock.Version {
	return s.version.Clone()
}

// Len returns the visible text length in bytes.
func (s *Snapshot) Len() int {
	return s.visible.Len()
}

// Text returns the full visible text.
func (s *Snapshot) Text() string {
	return s.visible.String()
}

// TextForRange returns the visible text in r.
func (s *Snapshot) TextForRange(r Range) (string, error) {
	if err := s.checkRange(r); err != nil {
		return "", err
	}
	return s.visible.Slice(r.Start, r.End), nil
}

// Rope returns the visible text as a rope.
func (s *Snapshot) Rope() rope.Rope {
	return s.visible
}

func (s *Snapshot) checkRange(r Range) error {
	if r.Start > r.End {
		return ErrRangeInvalid
	}
	if r.Start < 0 || r.End > s.Len() {
		return outOfRange(r, s.Len())
	}
	return nil
}

// LineCount returns the number of lines.
func (s *Snapshot) LineCount() int {
	return s.visible.LineCount()
}

// LineText returns a line without its newline.
func (s *Snapshot) LineText(line int) string {
	return s.visible.LineText(line)
}

// LineStartOffset returns the offset of the first byte of line.
func (s *Snapshot) LineStartOffset(line int) int {
	return s.visible.LineStartOffset(line)
}

// LineEndOffset returns the offset of the newline ending line.
func (s *Snapshot) LineEndOffset(line int) int {
	return s.visible.LineEndOffset(line)
}

// OffsetToPoint converts an offset to a line/column position.
func (s *Snapshot) OffsetToPoint(offset int) (Point, error) {
	if offset < 0 || offset > s.Len() {
		return Point{}, outOfRange(Range{offset, offset}, s.Len())
	}
	return s.visible.OffsetToPoint(offset), nil
}

// PointToOffset converts a line/column position to an offset.
func (s *Snapshot) PointToOffset(p Point) (int, error) {
	if p.Line < 0 || p.Line >= s.LineCount() {
		return 0, ErrOffsetOutOfRange
	}
	return s.visible.PointToOffset(p), nil
}

// OffsetToUTF16 returns the UTF-16 code units before offset.
func (s *Snapshot) OffsetToUTF16(offset int) int {
	return s.visible.OffsetToUTF16(offset)
}

// Lines iterates over line numbers and text.
func (s *Snapshot) Lines() iter.Seq2[int, string] {
	return s.visible.Lines()
}

// ClipOffset clamps offset into the text and moves it to a grapheme
// cluster boundary, toward the start for BiasLeft and the end otherwise.
func (s *Snapshot) ClipOffset(offset int, bias Bias) int {
	offset = max(0, min(offset, s.Len()))
	p := s.visible.OffsetToPoint(offset)
	start := offset - p.Column
	line := s.visible.LineText(p.Line)
	g := uniseg.NewGraphemes(line)
	for g.Next() {
		from, to := g.Positions()
		if p.Column <= from {
			break
		}
		if p.Column < to {
			if bias == BiasLeft {
				return start + from
			}
			return start + to
		}
	}
	return offset
}

// Stats describes fragment storage.
type Stats struct {
	Fragments    int
	Tombstones   int
	DeletedBytes int
}

// Stats returns fragment storage counters.
func (s *Snapshot) Stats() Stats {
	st := Stats{Fragments: s.fragments.Len(), DeletedBytes: s.deleted.Len()}
	for _, f := range s.fragments.All() {
		if !f.visible {
			st.Tombstones++
		}
	}
	return st
}

// UndoCounts returns a copy of the undo counts.
func (s *Snapshot) UndoCounts() map[clock.Lamport]uint32 {
	return maps.Clone(s.undo)
}

func (s *Snapshot) undone(edit clock.Lamport) bool {
	return s.undo[edit]%2 == 1
}

func (s *Snapshot) isVisible(f fragment) bool {
	if s.undone(f.insertion) {
		return false
	}
	for _, d := range f.deletions {
		if !s.undone(d) {
			return false
		}
	}
	return true
}

// fragment returns the fragment at index i.
func (s *Snapshot) fragment(i int) fragment {
	f, _ := s.fragments.Get(i)
	return f
}

// locate returns the index of the fragment with locator loc, or the index
// of the next fragment and false when loc was collected.
func (s *Snapshot) locate(loc Locator) (int, bool) {
	i, _ := s.fragments.Find(func(sum fragmentSummary) bool {
		return sum.maxLocator != nil && sum.maxLocator.Compare(loc) >= 0
	})
	if i >= s.fragments.Len() {
		return i, false
	}
	return i, s.fragment(i).locator.Compare(loc) == 0
}

// fragmentAt finds the fragment holding character offset of insertion.
func (s *Snapshot) fragmentAt(insertion clock.Lamport, offset int) (int, fragment, bool) {
	e, ok := s.index.Floor(indexKey{insertion: insertion, offset: offset})
	if !ok || e.Key.insertion != insertion {
		return 0, fragment{}, false
	}
	i, found := s.locate(e.Value)
	if !found {
		return i, fragment{}, false
	}
	f := s.fragment(i)
	if !f.contains(insertion, offset) {
		return i, fragment{}, false
	}
	return i, f, true
}

// visibleCharAt finds the visible fragment holding visible byte offset.
func (s *Snapshot) visibleCharAt(offset int) (int, fragment, int) {
	i, before := s.fragments.Find(func(sum fragmentSummary) bool {
		return sum.visible > offset
	})
	f := s.fragment(i)
	return i, f, f.offset + offset - before.visible
}
