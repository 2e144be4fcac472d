package diff

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/dshills/strand/internal/buffer"
)

// Status is the change status of a line relative to the reference.
type Status uint8

const (
	Unchanged Status = iota
	Added
	Removed
	Modified
)

func (s Status) String() string {
	switch s {
	case Unchanged:
		return "unchanged"
	case Added:
		return "added"
	case Removed:
		return "removed"
	case Modified:
		return "modified"
	default:
		return fmt.Sprintf("Status(%d)", uint8(s))
	}
}

// Sign returns the gutter marker for s.
func (s Status) Sign() byte {
	switch s {
	case Added:
		return '+'
	case Removed:
		return '-'
	case Modified:
		return '~'
	default:
		return ' '
	}
}

// LineRange is a half-open range of line numbers.
type LineRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

func (r LineRange) Len() int { return r.End - r.Start }

func (r LineRange) String() string {
	return fmt.Sprintf("[%d:%d)", r.Start, r.End)
}

// InlineKind tells which side of a modified hunk an inline span is on.
type InlineKind uint8

const (
	// InlineInserted spans are offsets into the current hunk text.
	InlineInserted InlineKind = iota
	// InlineDeleted spans are offsets into the reference hunk text.
	InlineDeleted
)

// InlineSpan is a changed run of bytes inside a modified hunk, relative to
// the start of the hunk on its side.
type InlineSpan struct {
	Kind  InlineKind   `json:"kind"`
	Range buffer.Range `json:"range"`
}

// Hunk is a run of changed lines. Lines are in the current text; RefLines
// in the reference. Removed hunks have an empty Lines range placed where
// the reference lines used to be.
type Hunk struct {
	Status   Status             `json:"status"`
	Lines    LineRange          `json:"lines"`
	RefLines LineRange          `json:"ref_lines"`
	Range    buffer.Range       `json:"range"`
	Anchors  buffer.AnchorRange `json:"anchors"`
	Inline   []InlineSpan       `json:"inline,omitempty"`
}

func (h Hunk) String() string {
	return fmt.Sprintf("%s %s<-%s", h.Status, h.Lines, h.RefLines)
}

// splitLines splits s into lines that keep their newline. A trailing
// newline does not start another line.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.SplitAfter(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// compareKey is the string lines are matched on.
func compareKey(line string, ignoreSpace bool) string {
	if !ignoreSpace {
		return line
	}
	return strings.Join(strings.Fields(line), " ")
}

// inlineSpans finds the changed runs between the reference and current
// text of a modified hunk.
func inlineSpans(ref, cur string) []InlineSpan {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffCleanupSemantic(dmp.DiffMain(ref, cur, false))
	var (
		spans      []InlineSpan
		rpos, cpos int
	)
	for _, d := range diffs {
		n := len(d.Text)
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			rpos += n
			cpos += n
		case diffmatchpatch.DiffInsert:
			spans = append(spans, InlineSpan{Kind: InlineInserted, Range: buffer.Range{Start: cpos, End: cpos + n}})
			cpos += n
		case diffmatchpatch.DiffDelete:
			spans = append(spans, InlineSpan{Kind: InlineDeleted, Range: buffer.Range{Start: rpos, End: rpos + n}})
			rpos += n
		}
	}
	return spans
}
