package buffer

import (
	"cmp"

	"github.com/dshills/strand/internal/clock"
)

// Bias selects which neighbor an anchor sticks to when text is inserted
// exactly at its position.
type Bias uint8

const (
	// BiasLeft anchors to the character before the position; text inserted
	// at the position ends up after the anchor.
	BiasLeft Bias = iota
	// BiasRight anchors to the character after the position; text
	// inserted at the position ends up before the anchor.
	BiasRight
)

func (b Bias) String() string {
	if b == BiasLeft {
		return "left"
	}
	return "right"
}

// AnchorKind distinguishes text anchors from the start and end sentinels.
type AnchorKind uint8

const (
	AnchorText AnchorKind = iota
	AnchorStart
	AnchorEnd
)

// Anchor is a position that moves with the text around it. It names a
// character boundary by insertion and offset, so it stays valid across
// edits and replicas and never holds a reference into the buffer.
type Anchor struct {
	Insertion clock.Lamport `json:"insertion"`
	Offset    int           `json:"offset"`
	Bias      Bias          `json:"bias"`
	Kind      AnchorKind    `json:"kind,omitempty"`
}

var (
	// AnchorMin always resolves to the start of the text.
	AnchorMin = Anchor{Bias: BiasLeft, Kind: AnchorStart}
	// AnchorMax always resolves to the end of the text.
	AnchorMax = Anchor{Bias: BiasRight, Kind: AnchorEnd}
)

// IsMin reports whether a is the start sentinel.
func (a Anchor) IsMin() bool { return a.Kind == AnchorStart }

// IsMax reports whether a is the end sentinel.
func (a Anchor) IsMax() bool { return a.Kind == AnchorEnd }

// AnchorAt creates an anchor at offset. Offsets outside the text are
// clamped.
func (s *Snapshot) AnchorAt(offset int, bias Bias) Anchor {
	offset = max(0, min(offset, s.Len()))
	if bias == BiasLeft {
		if offset == 0 {
			return AnchorMin
		}
		_, f, off := s.visibleCharAt(offset - 1)
		return Anchor{Insertion: f.insertion, Offset: off + 1, Bias: BiasLeft}
	}
	if offset == s.Len() {
		return AnchorMax
	}
	_, f, off := s.visibleCharAt(offset)
	return Anchor{Insertion: f.insertion, Offset: off, Bias: BiasRight}
}

// Resolve returns the current offset of a. An anchor whose text was
// deleted resolves to the place the text used to be; an anchor into
// collected text resolves to the boundary where it was collected.
func (s *Snapshot) Resolve(a Anchor) int {
	switch a.Kind {
	case AnchorStart:
		return 0
	case AnchorEnd:
		return s.Len()
	}

	char := a.Offset
	if a.Bias == BiasLeft {
		char = a.Offset - 1
	}
	e, ok := s.index.Floor(indexKey{insertion: a.Insertion, offset: char})
	if !ok || e.Key.insertion != a.Insertion {
		// Never seen by this replica.
		if a.Bias == BiasLeft {
			return 0
		}
		return s.Len()
	}
	i, found := s.locate(e.Value)
	before := s.fragments.PrefixSummary(i)
	if !found {
		return before.visible
	}
	f := s.fragment(i)
	if !f.visible || !f.contains(a.Insertion, char) {
		return before.visible
	}
	return before.visible + a.Offset - f.offset
}

// ResolveRange resolves both ends of r.
func (s *Snapshot) ResolveRange(r AnchorRange) Range {
	start, end := s.Resolve(r.Start), s.Resolve(r.End)
	if end < start {
		end = start
	}
	return Range{Start: start, End: end}
}

// CompareAnchors orders two anchors by their resolved offsets, breaking
// ties by bias so left-biased anchors sort first.
func (s *Snapshot) CompareAnchors(a, b Anchor) int {
	if c := cmp.Compare(s.Resolve(a), s.Resolve(b)); c != 0 {
		return c
	}
	return cmp.Compare(a.Bias, b.Bias)
}

// AnchorRange is a pair of anchors.
type AnchorRange struct {
	Start Anchor `json:"start"`
	End   Anchor `json:"end"`
}

// AnchorRangeFor anchors r so that text inserted exactly at either
// boundary stays outside the range.
func (s *Snapshot) AnchorRangeFor(r Range) AnchorRange {
	return AnchorRange{
		Start: s.AnchorAt(r.Start, BiasRight),
		End:   s.AnchorAt(r.End, BiasLeft),
	}
}
