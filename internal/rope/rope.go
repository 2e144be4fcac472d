package rope

import (
	"iter"
	"strings"

	"github.com/dshills/strand/internal/sumtree"
)

type chunkTree = sumtree.Tree[Chunk, TextSummary]

// Rope is an immutable sequence of text chunks. Operations return new ropes
// that share structure with the original.
type Rope struct {
	tree chunkTree
}

// New returns an empty rope.
func New() Rope {
	return Rope{}
}

// FromString builds a rope holding s.
func FromString(s string) Rope {
	return Rope{tree: sumtree.FromItems[Chunk, TextSummary](splitIntoChunks(s))}
}

// Len returns the byte length of the text.
func (r Rope) Len() int {
	return r.tree.Summary().Bytes
}

// IsEmpty reports whether the rope holds no text.
func (r Rope) IsEmpty() bool {
	return r.Len() == 0
}

// LineCount returns the number of lines; empty text has one line.
func (r Rope) LineCount() int {
	return r.tree.Summary().Lines + 1
}

// Summary returns metrics for the whole text.
func (r Rope) Summary() TextSummary {
	return r.tree.Summary()
}

// String returns the full text.
func (r Rope) String() string {
	var sb strings.Builder
	sb.Grow(r.Len())
	for c := range r.Chunks() {
		sb.WriteString(c)
	}
	return sb.String()
}

// clamp bounds an offset to [0, Len()].
func (r Rope) clamp(offset int) int {
	return max(0, min(offset, r.Len()))
}

// seek finds the chunk containing offset and the offset within it.
// The end of the text maps to one past the last chunk.
func (r Rope) seek(offset int) (int, int, TextSummary) {
	i, before := r.tree.Find(func(s TextSummary) bool { return s.Bytes > offset })
	return i, offset - before.Bytes, before
}

// Slice returns the text in [start, end).
func (r Rope) Slice(start, end int) string {
	start, end = r.clamp(start), r.clamp(end)
	if start >= end {
		return ""
	}
	var sb strings.Builder
	sb.Grow(end - start)
	i, rel, _ := r.seek(start)
	c := r.tree.Cursor(i)
	remaining := end - start
	for c.Valid() && remaining > 0 {
		text := c.Item().String()[rel:]
		if len(text) > remaining {
			text = text[:remaining]
		}
		sb.WriteString(text)
		remaining -= len(text)
		rel = 0
		c.Next()
	}
	return sb.String()
}

// Split divides the rope at byte offset.
func (r Rope) Split(offset int) (Rope, Rope) {
	offset = r.clamp(offset)
	i, rel, _ := r.seek(offset)
	if rel == 0 {
		left, right := r.tree.SplitAt(i)
		return Rope{tree: left}, Rope{tree: right}
	}
	chunk, _ := r.tree.Get(i)
	a, b := chunk.Split(rel)
	left, rest := r.tree.SplitAt(i)
	_, rest = rest.SplitAt(1)
	return Rope{tree: left.Push(a)}, Rope{tree: rest.InsertAt(0, b)}
}

// Concat returns r followed by other. Small chunks meeting at the seam
// are merged.
func (r Rope) Concat(other Rope) Rope {
	if r.IsEmpty() {
		return other
	}
	if other.IsEmpty() {
		return r
	}
	last, _ := r.tree.Last()
	first, _ := other.tree.First()
	if last.Len() < MinChunkSize || first.Len() < MinChunkSize {
		if last.Len()+first.Len() <= MaxChunkSize {
			left := r.tree.RemoveRange(r.tree.Len()-1, r.tree.Len())
			right := other.tree.RemoveRange(0, 1)
			merged := NewChunk(last.text + first.text)
			return Rope{tree: left.Push(merged).Concat(right)}
		}
	}
	return Rope{tree: r.tree.Concat(other.tree)}
}

// Insert returns a rope with text inserted at offset.
func (r Rope) Insert(offset int, text string) Rope {
	if text == "" {
		return r
	}
	left, right := r.Split(offset)
	return left.Concat(FromString(text)).Concat(right)
}

// Delete returns a rope without the text in [start, end).
func (r Rope) Delete(start, end int) Rope {
	if start >= end {
		return r
	}
	left, rest := r.Split(start)
	_, right := rest.Split(end - r.clamp(start))
	return left.Concat(right)
}

// Replace swaps the text in [start, end) for text.
func (r Rope) Replace(start, end int, text string) Rope {
	left, rest := r.Split(start)
	_, right := rest.Split(max(0, end-r.clamp(start)))
	return left.Concat(FromString(text)).Concat(right)
}

// SummaryTo returns metrics for the text in [0, offset).
func (r Rope) SummaryTo(offset int) TextSummary {
	offset = r.clamp(offset)
	i, rel, before := r.seek(offset)
	if rel == 0 {
		return before
	}
	chunk, _ := r.tree.Get(i)
	return before.Add(Summarize(chunk.text[:rel]))
}

// OffsetToPoint converts a byte offset to a line/column position.
func (r Rope) OffsetToPoint(offset int) Point {
	offset = r.clamp(offset)
	i, rel, before := r.seek(offset)
	p := before.End()
	if rel == 0 {
		return p
	}
	chunk, _ := r.tree.Get(i)
	return advance(p, chunk.text[:rel])
}

// OffsetToUTF16 returns the number of UTF-16 code units before offset.
func (r Rope) OffsetToUTF16(offset int) int {
	return r.SummaryTo(offset).UTF16Units
}

// LineStartOffset returns the byte offset at which line begins.
// Lines past the end map to Len().
func (r Rope) LineStartOffset(line int) int {
	if line <= 0 {
		return 0
	}
	sum := r.tree.Summary()
	if line > sum.Lines {
		return sum.Bytes
	}
	i, before := r.tree.Find(func(s TextSummary) bool { return s.Lines >= line })
	chunk, _ := r.tree.Get(i)
	return before.Bytes + nthNewline(chunk.text, line-before.Lines) + 1
}

// LineEndOffset returns the offset of the newline ending line, or Len()
// for the last line.
func (r Rope) LineEndOffset(line int) int {
	if line+1 >= r.LineCount() {
		return r.Len()
	}
	return r.LineStartOffset(line+1) - 1
}

// LineText returns the text of line without its newline.
func (r Rope) LineText(line int) string {
	return r.Slice(r.LineStartOffset(line), r.LineEndOffset(line))
}

// PointToOffset converts a position to a byte offset, clamping the column
// to the line's length.
func (r Rope) PointToOffset(p Point) int {
	if p.Line < 0 {
		return 0
	}
	if p.Line >= r.LineCount() {
		return r.Len()
	}
	start := r.LineStartOffset(p.Line)
	end := r.LineEndOffset(p.Line)
	return start + max(0, min(p.Column, end-start))
}

// Chunks iterates over the text chunks in order.
func (r Rope) Chunks() iter.Seq[string] {
	return func(yield func(string) bool) {
		for _, c := range r.tree.All() {
			if !yield(c.text) {
				return
			}
		}
	}
}

// Lines iterates over line numbers and line text without newlines.
func (r Rope) Lines() iter.Seq2[int, string] {
	return func(yield func(int, string) bool) {
		var sb strings.Builder
		line := 0
		for chunk := range r.Chunks() {
			for {
				i := strings.IndexByte(chunk, '\n')
				if i < 0 {
					sb.WriteString(chunk)
					break
				}
				sb.WriteString(chunk[:i])
				if !yield(line, sb.String()) {
					return
				}
				sb.Reset()
				line++
				chunk = chunk[i+1:]
			}
		}
		yield(line, sb.String())
	}
}

// Equals reports whether two ropes hold the same text.
func (r Rope) Equals(other Rope) bool {
	if r.Len() != other.Len() {
		return false
	}
	return r.String() == other.String()
}

// ChunkCount returns the number of stored chunks.
func (r Rope) ChunkCount() int {
	return r.tree.Len()
}

// Validate checks the structure and cached summaries of the rope.
func (r Rope) Validate() error {
	return r.tree.Validate(func(a, b TextSummary) bool { return a == b })
}
