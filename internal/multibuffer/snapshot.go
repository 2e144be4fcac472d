package multibuffer

import (
	"fmt"
	"strings"

	"github.com/dshills/strand/internal/buffer"
	"github.com/dshills/strand/internal/sumtree"
)

// Snapshot is an immutable view of a multi-buffer. Offsets are bytes in
// the text formed by joining the excerpts with newlines.
type Snapshot struct {
	tree    excerptTree
	ids     sumtree.TreeMap[ExcerptID, sumtree.Locator]
	sources map[buffer.ID]*buffer.Snapshot
	// owners holds the keys of each buffer's excerpts in document order.
	owners  map[buffer.ID][]sumtree.Locator
	version uint64
}

// Version increases every time the multi-buffer text changes.
func (s *Snapshot) Version() uint64 {
	return s.version
}

// Len returns the length of the text in bytes.
func (s *Snapshot) Len() int {
	if s.tree.IsEmpty() {
		return 0
	}
	return s.tree.Summary().bytes - 1
}

// LineCount returns the number of lines. An empty multi-buffer has one.
func (s *Snapshot) LineCount() int {
	if s.tree.IsEmpty() {
		return 1
	}
	return s.tree.Summary().lines
}

// ExcerptCount returns the number of excerpts.
func (s *Snapshot) ExcerptCount() int {
	return s.tree.Len()
}

// Source returns the buffer snapshot the excerpts of id were resolved in.
func (s *Snapshot) Source(id buffer.ID) (*buffer.Snapshot, bool) {
	snap, ok := s.sources[id]
	return snap, ok
}

// Text returns the whole text.
func (s *Snapshot) Text() string {
	var sb strings.Builder
	sb.Grow(s.Len())
	for i, e := range s.tree.All() {
		if i > 0 {
			sb.WriteByte('\n')
		}
		s.writeExcerpt(&sb, e, 0, e.rng.Len())
	}
	return sb.String()
}

func (s *Snapshot) writeExcerpt(sb *strings.Builder, e excerpt, from, to int) {
	text, _ := s.sources[e.buf.ID()].TextForRange(buffer.Range{Start: e.rng.Start + from, End: e.rng.Start + to})
	sb.WriteString(text)
}

// TextForRange returns the text in r.
func (s *Snapshot) TextForRange(r buffer.Range) (string, error) {
	if err := s.check(r); err != nil {
		return "", err
	}
	var sb strings.Builder
	i, before := s.tree.Find(func(sum excerptSummary) bool { return sum.bytes > r.Start })
	pos := before.bytes
	for c := s.tree.Cursor(i); c.Valid() && pos < r.End; c.Next() {
		e := c.Item()
		from, to := max(r.Start-pos, 0), min(r.End-pos, e.rng.Len())
		if from < to {
			s.writeExcerpt(&sb, e, from, to)
		}
		pos += e.rng.Len()
		if pos >= r.Start && pos < r.End {
			sb.WriteByte('\n')
		}
		pos++
	}
	return sb.String(), nil
}

func (s *Snapshot) check(r buffer.Range) error {
	if r.Start < 0 || r.End > s.Len() || r.Start > r.End {
		return fmt.Errorf("%w: %v outside [0:%d)", buffer.ErrOffsetOutOfRange, r, s.Len())
	}
	return nil
}

// Excerpts describes every excerpt in order.
func (s *Snapshot) Excerpts() []ExcerptInfo {
	out := make([]ExcerptInfo, 0, s.tree.Len())
	var pos, line int
	for _, e := range s.tree.All() {
		out = append(out, s.info(e, pos, line))
		sum := e.Summary()
		pos += sum.bytes
		line += sum.lines
	}
	return out
}

func (s *Snapshot) info(e excerpt, pos, line int) ExcerptInfo {
	return ExcerptInfo{
		ID:        e.id,
		Buffer:    e.buf.ID(),
		Header:    e.header,
		ReadOnly:  e.readOnly,
		Source:    e.rng,
		Range:     buffer.Range{Start: pos, End: pos + e.rng.Len()},
		StartLine: line,
	}
}

// Excerpt describes the excerpt with the given id.
func (s *Snapshot) Excerpt(id ExcerptID) (ExcerptInfo, bool) {
	key, ok := s.ids.Get(id)
	if !ok {
		return ExcerptInfo{}, false
	}
	i, e, ok := locate(s.tree, key)
	if !ok || e.id != id {
		return ExcerptInfo{}, false
	}
	before := s.tree.PrefixSummary(i)
	return s.info(e, before.bytes, before.lines), true
}

// excerptAt returns the index of the excerpt containing offset, with the
// summary of the excerpts before it. An offset at the end of an excerpt's
// text belongs to that excerpt.
func (s *Snapshot) excerptAt(offset int) (int, excerpt, excerptSummary, error) {
	if offset < 0 || offset > s.Len() || s.tree.IsEmpty() {
		return 0, excerpt{}, excerptSummary{}, fmt.Errorf("%w: offset %d outside [0:%d]", buffer.ErrOffsetOutOfRange, offset, s.Len())
	}
	i, before := s.tree.Find(func(sum excerptSummary) bool { return sum.bytes > offset })
	e, _ := s.tree.Get(i)
	return i, e, before, nil
}

// Location is a position in a source buffer.
type Location struct {
	Excerpt ExcerptID
	Buffer  buffer.ID
	Offset  int
}

// ToBuffer maps a multi-buffer offset to its source buffer.
func (s *Snapshot) ToBuffer(offset int) (Location, error) {
	_, e, before, err := s.excerptAt(offset)
	if err != nil {
		return Location{}, err
	}
	return Location{Excerpt: e.id, Buffer: e.buf.ID(), Offset: e.rng.Start + offset - before.bytes}, nil
}

// FromBuffer maps a source offset to the multi-buffer offset in the first
// excerpt showing it.
func (s *Snapshot) FromBuffer(id buffer.ID, offset int) (int, bool) {
	for _, key := range s.owners[id] {
		i, e, ok := locate(s.tree, key)
		if ok && e.rng.Start <= offset && offset <= e.rng.End {
			return s.tree.PrefixSummary(i).bytes + offset - e.rng.Start, true
		}
	}
	return 0, false
}

// OffsetToPoint converts an offset to a line and column.
func (s *Snapshot) OffsetToPoint(offset int) (buffer.Point, error) {
	_, e, before, err := s.excerptAt(offset)
	if err != nil {
		if s.tree.IsEmpty() && offset == 0 {
			return buffer.Point{}, nil
		}
		return buffer.Point{}, err
	}
	src := s.sources[e.buf.ID()]
	local := offset - before.bytes
	start, _ := src.OffsetToPoint(e.rng.Start)
	at, _ := src.OffsetToPoint(e.rng.Start + local)
	p := buffer.Point{Line: before.lines + at.Line - start.Line, Column: at.Column}
	if at.Line == start.Line {
		p.Column -= start.Column
	}
	return p, nil
}
