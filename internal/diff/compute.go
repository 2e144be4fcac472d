package diff

import (
	"context"
	"sort"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/dshills/strand/internal/buffer"
)

// maxTrackedEdits bounds the edit list an incremental update walks; past
// it the whole text is diffed again.
const maxTrackedEdits = 512

type reference struct {
	text  string
	lines []string
	keys  []string
}

func newReference(text string, ignoreSpace bool) *reference {
	r := &reference{text: text, lines: splitLines(text)}
	r.keys = keys(r.lines, ignoreSpace)
	return r
}

func keys(lines []string, ignoreSpace bool) []string {
	if !ignoreSpace {
		return lines
	}
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = compareKey(l, true)
	}
	return out
}

// textLines indexes the lines of a buffer snapshot the way splitLines
// does: n lines, the last one possibly without a newline.
type textLines struct {
	snap *buffer.Snapshot
	n    int
}

func newTextLines(s *buffer.Snapshot) textLines {
	n := s.LineCount()
	if n > 0 && s.LineStartOffset(n-1) == s.Len() {
		n--
	}
	return textLines{snap: s, n: n}
}

func (t textLines) start(line int) int {
	if line >= t.n {
		return t.snap.Len()
	}
	return t.snap.LineStartOffset(line)
}

func (t textLines) lineOf(offset int) int {
	if offset >= t.snap.Len() {
		return t.n
	}
	p, err := t.snap.OffsetToPoint(offset)
	if err != nil {
		return t.n
	}
	return p.Line
}

func (t textLines) slice(r LineRange) []string {
	text, err := t.snap.TextForRange(buffer.Range{Start: t.start(r.Start), End: t.start(r.End)})
	if err != nil {
		return nil
	}
	return splitLines(text)
}

type settings struct {
	ignoreSpace bool
	inline      bool
	maxLines    int
}

// job is one recomputation: bring base up to target using the edits
// between them. A nil base means diff everything.
type job struct {
	base   *Snapshot
	edits  []buffer.TextEdit
	target *buffer.Snapshot
	ref    *reference
	opts   settings
}

func compute(ctx context.Context, j job) (*Snapshot, error) {
	cur := newTextLines(j.target)
	if j.opts.maxLines > 0 && (cur.n > j.opts.maxLines || len(j.ref.lines) > j.opts.maxLines) {
		return nil, ErrTooLarge
	}
	snap := &Snapshot{text: j.target, ref: j.ref, lines: cur}

	if j.base != nil && j.base.ref == j.ref && len(j.edits) <= maxTrackedEdits {
		ok, err := j.update(ctx, cur, snap)
		if err != nil {
			return nil, err
		}
		if ok {
			return snap, nil
		}
		snap.hunks, snap.stats = nil, Stats{}
	}
	whole := LineRange{End: cur.n}
	hunks, err := diffWindow(ctx, j, cur, whole, LineRange{End: len(j.ref.lines)})
	if err != nil {
		return nil, err
	}
	snap.hunks = hunks
	snap.stats = Stats{Full: true, Windows: 1, Lines: cur.n}
	return snap, nil
}

// group is a run of overlapping kept hunks and dirty windows.
type group struct {
	lines LineRange
	dirty bool
	hunks []Hunk
}

// update fills snap from the base snapshot, diffing only the windows the
// edits touched. Lines between groups are equal in both texts, so each
// dirty window lines up with the reference by counting from its
// neighbours. It reports false when the result cannot be lined up, and
// the caller diffs everything instead.
func (j job) update(ctx context.Context, cur textLines, snap *Snapshot) (bool, error) {
	groups := j.groups(cur)
	nref := len(j.ref.lines)
	var prevCur, prevRef int
	for i, g := range groups {
		if !g.dirty {
			for _, h := range g.hunks {
				if h.Lines.Start-prevCur != h.RefLines.Start-prevRef || h.Lines.Start < prevCur {
					return false, nil
				}
				snap.hunks = append(snap.hunks, h)
				snap.stats.Reused++
				prevCur, prevRef = h.Lines.End, h.RefLines.End
			}
			continue
		}
		if err := ctx.Err(); err != nil {
			return false, err
		}
		ref := LineRange{Start: prevRef + g.lines.Start - prevCur}
		switch {
		case i+1 == len(groups):
			ref.End = nref - (cur.n - g.lines.End)
		case !groups[i+1].dirty:
			h := groups[i+1].hunks[0]
			ref.End = h.RefLines.Start - (h.Lines.Start - g.lines.End)
		default:
			ref.End = j.refLine(cur, g.lines.End)
		}
		if ref.Start < 0 || ref.End < ref.Start || ref.End > nref || !j.aligned(cur, g.lines, ref) {
			return false, nil
		}
		hunks, err := diffWindow(ctx, j, cur, g.lines, ref)
		if err != nil {
			return false, err
		}
		snap.hunks = append(snap.hunks, hunks...)
		snap.stats.Windows++
		snap.stats.Lines += g.lines.Len()
		prevCur, prevRef = g.lines.End, ref.End
	}
	return cur.n-prevCur == nref-prevRef, nil
}

// groups merges the kept hunks and the dirty windows of the edits into
// ordered, disjoint groups.
func (j job) groups(cur textLines) []group {
	type item struct {
		lines LineRange
		hunk  int // index into kept, -1 for a dirty window
	}
	kept := resolveHunks(j.base.hunks, j.target, cur)
	var items []item
	for i, h := range kept {
		items = append(items, item{lines: h.Lines, hunk: i})
	}
	for _, w := range dirtyWindows(j.edits, cur) {
		items = append(items, item{lines: w, hunk: -1})
	}
	sort.SliceStable(items, func(a, b int) bool {
		if items[a].lines.Start != items[b].lines.Start {
			return items[a].lines.Start < items[b].lines.Start
		}
		return items[a].hunk < items[b].hunk
	})

	var out []group
	for i := 0; i < len(items); {
		g := group{lines: items[i].lines}
		k := i
		for ; k < len(items) && (k == i || items[k].lines.Start <= g.lines.End); k++ {
			g.lines.End = max(g.lines.End, items[k].lines.End)
			if items[k].hunk < 0 {
				g.dirty = true
			} else {
				g.hunks = append(g.hunks, kept[items[k].hunk])
			}
		}
		if g.dirty {
			g.hunks = nil
		}
		out = append(out, g)
		i = k
	}
	return out
}

// aligned reports whether the lines bordering window w match the
// reference lines bordering ref.
func (j job) aligned(cur textLines, w, ref LineRange) bool {
	border := func(line, refLine int) bool {
		inCur, inRef := line >= 0 && line < cur.n, refLine >= 0 && refLine < len(j.ref.lines)
		if !inCur || !inRef {
			return inCur == inRef
		}
		got := keys(cur.slice(LineRange{Start: line, End: line + 1}), j.opts.ignoreSpace)
		return len(got) == 1 && got[0] == j.ref.keys[refLine]
	}
	return border(w.Start-1, ref.Start-1) && border(w.End, ref.End)
}

// refLine maps a line of the target that lies outside every edit to the
// reference line it lines up with, going through the base snapshot.
func (j job) refLine(cur textLines, line int) int {
	if line <= 0 {
		return 0
	}
	if line >= cur.n {
		return len(j.ref.lines)
	}
	off := cur.start(line)
	for i := len(j.edits) - 1; i >= 0; i-- {
		e := j.edits[i]
		switch end := e.Old.Start + e.NewLen; {
		case off >= end:
			off -= e.Delta()
		case off > e.Old.Start:
			off = e.Old.Start
		}
	}
	return j.base.refLineAt(j.base.lines.lineOf(off))
}

// resolveHunks moves hunks to their positions in target.
func resolveHunks(hunks []Hunk, target *buffer.Snapshot, cur textLines) []Hunk {
	out := make([]Hunk, len(hunks))
	for i, h := range hunks {
		r := target.ResolveRange(h.Anchors)
		start := cur.lineOf(r.Start)
		end := start
		if h.Status != Removed {
			end = max(start, cur.lineOf(r.End))
		}
		h.Lines = LineRange{Start: start, End: end}
		h.Range = buffer.Range{Start: cur.start(start), End: cur.start(end)}
		out[i] = h
	}
	return out
}

// dirtyWindows returns the line windows of target touched by edits, each
// widened by a line on both sides.
func dirtyWindows(edits []buffer.TextEdit, cur textLines) []LineRange {
	windows := make([]LineRange, 0, len(edits))
	for i, e := range edits {
		r := e.New()
		later := edits[i+1:]
		s := buffer.MapOffset(later, r.Start, false)
		t := max(s, buffer.MapOffset(later, r.End, true))
		windows = append(windows, LineRange{
			Start: max(0, cur.lineOf(s)-1),
			End:   min(cur.n, cur.lineOf(t)+2),
		})
	}
	return windows
}

// diffWindow diffs current lines w against reference lines ref.
func diffWindow(ctx context.Context, j job, cur textLines, w, ref LineRange) ([]Hunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	a := j.ref.keys[ref.Start:ref.End]
	b := keys(cur.slice(w), j.opts.ignoreSpace)
	m := difflib.NewMatcherWithJunk(a, b, false, nil)

	var hunks []Hunk
	for _, op := range m.GetOpCodes() {
		h := Hunk{
			Lines:    LineRange{Start: w.Start + op.J1, End: w.Start + op.J2},
			RefLines: LineRange{Start: ref.Start + op.I1, End: ref.Start + op.I2},
		}
		switch op.Tag {
		case 'e':
			continue
		case 'i':
			h.Status = Added
		case 'd':
			h.Status = Removed
		case 'r':
			h.Status = Modified
		}
		h.Range = buffer.Range{Start: cur.start(h.Lines.Start), End: cur.start(h.Lines.End)}
		h.Anchors = j.target.AnchorRangeFor(h.Range)
		if h.Status == Modified && j.opts.inline {
			was := strings.Join(j.ref.lines[h.RefLines.Start:h.RefLines.End], "")
			now, _ := j.target.TextForRange(h.Range)
			h.Inline = inlineSpans(was, now)
		}
		hunks = append(hunks, h)
	}
	return hunks, nil
}
