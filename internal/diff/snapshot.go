package diff

import (
	"slices"
	"sort"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/dshills/strand/internal/buffer"
	"github.com/dshills/strand/internal/clock"
)

// Stats describes how a snapshot was computed.
type Stats struct {
	// Full is set when every line was diffed.
	Full bool
	// Windows is the number of line windows diffed.
	Windows int
	// Lines is the number of current lines diffed.
	Lines int
	// Reused is the number of hunks carried over from the previous
	// snapshot.
	Reused int
}

// Snapshot is the line status of one buffer snapshot against a reference.
// It is immutable.
type Snapshot struct {
	text  *buffer.Snapshot
	ref   *reference
	lines textLines
	hunks []Hunk
	stats Stats
}

// Text returns the buffer snapshot the statuses describe.
func (s *Snapshot) Text() *buffer.Snapshot {
	return s.text
}

func (s *Snapshot) Version() clock.Version {
	return s.text.Version()
}

// Reference returns the reference text.
func (s *Snapshot) Reference() string {
	return s.ref.text
}

func (s *Snapshot) Stats() Stats {
	return s.stats
}

// Hunks returns the changed runs in line order.
func (s *Snapshot) Hunks() []Hunk {
	return slices.Clone(s.hunks)
}

// LineCount returns the number of lines the statuses cover.
func (s *Snapshot) LineCount() int {
	return s.lines.n
}

// find returns the index of the hunk covering line, or of the removed hunk
// just before it.
func (s *Snapshot) find(line int) (int, bool) {
	i := sort.Search(len(s.hunks), func(i int) bool {
		h := s.hunks[i].Lines
		return h.End > line || (h.Len() == 0 && h.Start >= line)
	})
	if i == len(s.hunks) {
		return i, false
	}
	h := s.hunks[i].Lines
	return i, h.Start <= line && (line < h.End || h.Len() == 0 && h.Start == line)
}

// LineStatus returns the status of a current line. A line directly after
// removed reference lines reports Removed; removals at the end of the text
// are reported on the last line.
func (s *Snapshot) LineStatus(line int) Status {
	if line < 0 || line >= s.lines.n && !(line == 0 && s.lines.n == 0) {
		return Unchanged
	}
	if i, ok := s.find(line); ok {
		return s.hunks[i].Status
	}
	if line == s.lines.n-1 && len(s.hunks) > 0 {
		if last := s.hunks[len(s.hunks)-1]; last.Status == Removed && last.Lines.Start == s.lines.n {
			return Removed
		}
	}
	return Unchanged
}

// HunkAt returns the hunk covering line.
func (s *Snapshot) HunkAt(line int) (Hunk, bool) {
	if i, ok := s.find(line); ok {
		return s.hunks[i], true
	}
	return Hunk{}, false
}

// ChangedLines returns every line whose status is not Unchanged, sorted.
func (s *Snapshot) ChangedLines() []int {
	var out []int
	for _, h := range s.hunks {
		if h.Status == Removed {
			line := min(h.Lines.Start, s.lines.n-1)
			if line >= 0 && (len(out) == 0 || out[len(out)-1] < line) {
				out = append(out, line)
			}
			continue
		}
		for l := h.Lines.Start; l < h.Lines.End; l++ {
			if len(out) == 0 || out[len(out)-1] < l {
				out = append(out, l)
			}
		}
	}
	return out
}

// Unified renders the snapshot as a unified diff with three lines of
// context. It returns "" when nothing changed.
func (s *Snapshot) Unified(name string) (string, error) {
	if len(s.hunks) == 0 {
		return "", nil
	}
	ud := difflib.UnifiedDiff{
		A:        s.ref.lines,
		B:        splitLines(s.text.Text()),
		FromFile: "a/" + name,
		ToFile:   "b/" + name,
		Context:  3,
	}
	return difflib.GetUnifiedDiffString(ud)
}

// Equal reports whether two snapshots have the same hunks.
func (s *Snapshot) Equal(o *Snapshot) bool {
	return slices.EqualFunc(s.hunks, o.hunks, func(a, b Hunk) bool {
		return a.Status == b.Status && a.Lines == b.Lines && a.RefLines == b.RefLines &&
			a.Range == b.Range && slices.Equal(a.Inline, b.Inline)
	})
}

// refLineAt maps a line of s to the reference line aligned with it. Lines
// inside a hunk map into the hunk's reference lines.
func (s *Snapshot) refLineAt(line int) int {
	i := sort.Search(len(s.hunks), func(i int) bool { return s.hunks[i].Lines.Start > line })
	if i == 0 {
		return line
	}
	h := s.hunks[i-1]
	if h.Lines.End <= line {
		return line + h.RefLines.End - h.Lines.End
	}
	return h.RefLines.Start + min(line-h.Lines.Start, h.RefLines.Len())
}
