package multibuffer

import (
	"bytes"

	"github.com/google/uuid"

	"github.com/dshills/strand/internal/buffer"
	"github.com/dshills/strand/internal/sumtree"
)

// ExcerptID identifies an excerpt for its whole life, across moves.
type ExcerptID = uuid.UUID

// ExcerptOption configures a new excerpt.
type ExcerptOption func(*excerpt)

// ReadOnly rejects edits inside the excerpt.
func ReadOnly() ExcerptOption {
	return func(e *excerpt) { e.readOnly = true }
}

// WithHeader attaches a label, such as a file name, shown above the
// excerpt. Headers are not part of the text.
func WithHeader(h string) ExcerptOption {
	return func(e *excerpt) { e.header = h }
}

// excerpt is one item of the excerpt tree. rng and lines describe the
// anchored range as resolved in the source snapshot the tree was last
// refreshed with.
type excerpt struct {
	id       ExcerptID
	key      sumtree.Locator
	buf      *buffer.Buffer
	anchors  buffer.AnchorRange
	readOnly bool
	header   string
	rng      buffer.Range
	lines    int
}

// Summary counts the excerpt's text plus the newline that separates it
// from the next excerpt.
func (e excerpt) Summary() excerptSummary {
	return excerptSummary{
		bytes:  e.rng.Len() + 1,
		lines:  e.lines + 1,
		count:  1,
		maxKey: e.key,
	}
}

type excerptSummary struct {
	bytes  int
	lines  int
	count  int
	maxKey sumtree.Locator
}

func (s excerptSummary) Add(o excerptSummary) excerptSummary {
	out := excerptSummary{
		bytes:  s.bytes + o.bytes,
		lines:  s.lines + o.lines,
		count:  s.count + o.count,
		maxKey: s.maxKey,
	}
	if o.maxKey != nil {
		out.maxKey = o.maxKey
	}
	return out
}

type excerptTree = sumtree.Tree[excerpt, excerptSummary]

func compareIDs(a, b ExcerptID) int {
	return bytes.Compare(a[:], b[:])
}

// resolve re-reads the excerpt's range from snap.
func (e excerpt) resolve(snap *buffer.Snapshot) excerpt {
	e.rng = snap.ResolveRange(e.anchors)
	e.lines = lineSpan(snap, e.rng)
	return e
}

func lineSpan(snap *buffer.Snapshot, r buffer.Range) int {
	start, err1 := snap.OffsetToPoint(r.Start)
	end, err2 := snap.OffsetToPoint(r.End)
	if err1 != nil || err2 != nil {
		return 0
	}
	return end.Line - start.Line
}

// ExcerptInfo describes an excerpt in a snapshot.
type ExcerptInfo struct {
	ID       ExcerptID
	Buffer   buffer.ID
	Header   string
	ReadOnly bool
	// Source is the range in the source buffer.
	Source buffer.Range
	// Range is the range in the multi-buffer text, without the separator.
	Range buffer.Range
	// StartLine is the first multi-buffer line of the excerpt.
	StartLine int
}
