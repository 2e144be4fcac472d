package buffer

import "fmt"

// Range is a byte range [Start, End) in visible text.
type Range struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// NewRange creates a Range.
func NewRange(start, end int) Range {
	return Range{Start: start, End: end}
}

func (r Range) String() string {
	return fmt.Sprintf("[%d:%d)", r.Start, r.End)
}

// Len returns the length of the range in bytes.
func (r Range) Len() int {
	return r.End - r.Start
}

// IsEmpty returns true if the range has zero length.
func (r Range) IsEmpty() bool {
	return r.Start == r.End
}

// Contains returns true if offset is within the range.
func (r Range) Contains(offset int) bool {
	return offset >= r.Start && offset < r.End
}

// Overlaps returns true if the ranges share at least one byte, or if an
// empty range sits inside or on the boundary of the other.
func (r Range) Overlaps(other Range) bool {
	if r.IsEmpty() || other.IsEmpty() {
		return r.Start <= other.End && other.Start <= r.End
	}
	return r.Start < other.End && other.Start < r.End
}

// Edit replaces the text in Range with Text.
type Edit struct {
	Range Range
	Text  string
}

// Insert is a convenience constructor for a pure insertion.
func Insert(offset int, text string) Edit {
	return Edit{Range: Range{Start: offset, End: offset}, Text: text}
}

// Delete is a convenience constructor for a pure deletion.
func Delete(start, end int) Edit {
	return Edit{Range: Range{Start: start, End: end}}
}

// TextEdit describes one change to visible text: the bytes in Old were
// replaced by NewLen bytes. Lists of TextEdits are sequential: each edit is
// expressed in the coordinates produced by the edits before it.
type TextEdit struct {
	Old    Range `json:"old"`
	NewLen int   `json:"new_len"`
}

// New returns the range the replacement occupies after the edit.
func (e TextEdit) New() Range {
	return Range{Start: e.Old.Start, End: e.Old.Start + e.NewLen}
}

// Delta returns the change in text length.
func (e TextEdit) Delta() int {
	return e.NewLen - e.Old.Len()
}

// MapOffset moves an offset across a list of sequential edits. Offsets
// inside a replaced range move to its start, or to its end when
// stickRight is set.
func MapOffset(edits []TextEdit, offset int, stickRight bool) int {
	for _, e := range edits {
		switch {
		case offset < e.Old.Start:
		case offset > e.Old.End || (offset == e.Old.End && !e.Old.IsEmpty()):
			offset += e.Delta()
		case stickRight:
			offset = e.Old.Start + e.NewLen
		default:
			offset = e.Old.Start
		}
	}
	return offset
}

// recorder collects sequential edits, merging touching ones.
type recorder struct {
	edits []TextEdit
}

func (r *recorder) add(e TextEdit) {
	if e.Old.IsEmpty() && e.NewLen == 0 {
		return
	}
	if n := len(r.edits); n > 0 {
		last := &r.edits[n-1]
		if e.Old.Start == last.Old.Start+last.NewLen {
			last.Old.End += e.Old.Len()
			last.NewLen += e.NewLen
			return
		}
	}
	r.edits = append(r.edits, e)
}
