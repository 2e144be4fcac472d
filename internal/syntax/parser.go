package syntax

import (
	"context"
	"slices"

	"github.com/dshills/strand/internal/buffer"
)

// Parser produces syntax trees. Given the previous tree and the edits that
// turned its text into text, it may reuse unchanged subtrees. Malformed
// input never fails: it yields a best-effort tree. The only error is
// ErrCancelled.
type Parser interface {
	Parse(ctx context.Context, text string, old *Tree, edits []buffer.TextEdit) (*Tree, ParseStats, error)
}

// ParseStats describes the work done by one parse.
type ParseStats struct {
	// Full is set when the whole document was tokenized.
	Full bool
	// Region is the reparsed range in the new text.
	Region buffer.Range
	// ReparsedBytes counts tokenized bytes, lookahead included.
	ReparsedBytes int
	// Escalations counts how often the region grew to an enclosing block.
	Escalations int
}

// BlockParser builds a tree of bracketed blocks over the tokens of a
// Tokenizer. A reparse starts at the smallest block whose contents
// enclose every edit and rebuilds only the children of that block around
// the edits; everything else is reused. Rule tokenizers rescan just those
// children. Chroma lexers are stateful, so their text is lexed in full and
// the rebuilt region also covers every token that changed.
type BlockParser struct {
	tok Tokenizer
}

// NewBlockParser creates a parser using tok.
func NewBlockParser(tok Tokenizer) *BlockParser {
	return &BlockParser{tok: tok}
}

// Tokenizer returns the parser's tokenizer.
func (p *BlockParser) Tokenizer() Tokenizer {
	return p.tok
}

// Parse implements Parser.
func (p *BlockParser) Parse(ctx context.Context, text string, old *Tree, edits []buffer.TextEdit) (*Tree, ParseStats, error) {
	if err := ctx.Err(); err != nil {
		return nil, ParseStats{}, cancelled(err)
	}
	if old == nil || old.language != p.tok.Language() {
		return p.full(ctx, text)
	}
	env, ok := envelope(old.Len(), len(text), edits)
	if !ok {
		return p.full(ctx, text)
	}
	if env.unchanged() {
		return old, ParseStats{}, nil
	}
	if _, ok := p.tok.(windowed); ok {
		return p.reparse(ctx, text, old, env, windowSource{p.tok})
	}

	// Tokens of a stateful lexer depend on text far from the edit in both
	// directions, so the whole text is lexed again. The tree is still only
	// rebuilt where the tokens changed.
	toks := p.tok.Tokenize(text)
	env = env.union(changedTokens(old.root, toks, old.Len()))
	t, stats, err := p.reparse(ctx, text, old, env, newStreamSource(toks))
	if err == nil && !stats.Full {
		stats.ReparsedBytes += len(text)
	}
	return t, stats, err
}

func (p *BlockParser) full(ctx context.Context, text string) (*Tree, ParseStats, error) {
	return p.fullTokens(ctx, text, p.tok.Tokenize(text))
}

func (p *BlockParser) fullTokens(ctx context.Context, text string, toks []Token) (*Tree, ParseStats, error) {
	children, _, err := build(ctx, text, toks, false)
	if err != nil {
		return nil, ParseStats{}, err
	}
	t := &Tree{root: newBlock(KindRoot, children, false), language: p.tok.Language()}
	return t, ParseStats{Full: true, Region: buffer.Range{End: len(text)}, ReparsedBytes: len(text)}, nil
}

// dirty is the union of a list of sequential edits: old text outside
// [oldStart, oldEnd) is unchanged and shifted by delta.
type dirty struct {
	oldStart, oldEnd int
	delta            int
}

func (d dirty) unchanged() bool {
	return d.oldStart == d.oldEnd && d.delta == 0
}

// union widens d to cover the old range r.
func (d dirty) union(r buffer.Range) dirty {
	if r.IsEmpty() {
		return d
	}
	d.oldStart = min(d.oldStart, r.Start)
	d.oldEnd = max(d.oldEnd, r.End)
	return d
}

func envelope(oldLen, newLen int, edits []buffer.TextEdit) (dirty, bool) {
	if len(edits) == 0 {
		return dirty{oldStart: oldLen, oldEnd: oldLen}, oldLen == newLen
	}
	prefix, suffix, cur := oldLen, oldLen, oldLen
	for _, e := range edits {
		if e.Old.Start < 0 || e.Old.Start > e.Old.End || e.Old.End > cur || e.NewLen < 0 {
			return dirty{}, false
		}
		prefix = min(prefix, e.Old.Start)
		suffix = min(suffix, cur-e.Old.End)
		cur += e.Delta()
	}
	if cur != newLen {
		return dirty{}, false
	}
	return dirty{oldStart: prefix, oldEnd: oldLen - suffix, delta: newLen - oldLen}, true
}

// step is one node on the path from the root to the reparse block.
type step struct {
	node  *Node
	start int
	// index of node in the previous step's children.
	index int
}

func (p *BlockParser) reparse(ctx context.Context, text string, old *Tree, env dirty, src source) (*Tree, ParseStats, error) {
	path := descend(old.root, env)
	var stats ParseStats

	for {
		if err := ctx.Err(); err != nil {
			return nil, stats, cancelled(err)
		}
		b := path[len(path)-1]
		root, region, n, ok, err := reparseIn(ctx, text, path, env, src)
		stats.ReparsedBytes += n
		if err != nil {
			return nil, stats, err
		}
		if ok {
			stats.Region = region
			return &Tree{root: root, language: old.language}, stats, nil
		}
		if len(path) == 1 {
			t, full, err := src.full(ctx, p, text)
			full.ReparsedBytes += stats.ReparsedBytes
			full.Escalations = stats.Escalations
			return t, full, err
		}
		stats.Escalations++
		env.oldStart = min(env.oldStart, b.start)
		env.oldEnd = max(env.oldEnd, b.start+b.node.length)
		path = path[:len(path)-1]
	}
}

// descend returns the path to the deepest block whose contents enclose
// the dirty range.
func descend(root *Node, env dirty) []step {
	path := []step{{node: root}}
	for {
		cur := path[len(path)-1]
		lo, hi := cur.node.content()
		start := cur.start
		for i := 0; i < lo; i++ {
			start += cur.node.children[i].length
		}
		next := -1
		for i := lo; i < hi && start <= env.oldStart; i++ {
			c := cur.node.children[i]
			if c.kind == KindBlock && encloses(c, start, env) {
				next = i
				break
			}
			start += c.length
		}
		if next < 0 {
			return path
		}
		path = append(path, step{node: cur.node.children[next], start: start, index: next})
	}
}

func encloses(b *Node, start int, env dirty) bool {
	inner := start + b.children[0].length
	end := start + b.length
	if !b.unterminated {
		end -= b.children[len(b.children)-1].length
	}
	return env.oldStart >= inner && env.oldEnd <= end
}

// reparseIn retokenizes the children of the last path block around env.
// It reports ok=false when the new text does not form a balanced sequence
// of children there, and the caller must widen the region.
func reparseIn(ctx context.Context, text string, path []step, env dirty, src source) (*Node, buffer.Range, int, bool, error) {
	b := path[len(path)-1]
	lo, hi := b.node.content()
	offs := make([]int, len(b.node.children)+1)
	offs[0] = b.start
	for i, c := range b.node.children {
		offs[i+1] = offs[i] + c.length
	}

	// Children [i0, i1) are replaced. One untouched neighbour is included
	// on each side so tokens that merge across the edit are rebuilt.
	i0, i1 := lo, lo
	for i0 < hi && offs[i0+1] < env.oldStart {
		i0++
	}
	i1 = i0
	for i1 < hi && offs[i1] <= env.oldEnd {
		i1++
	}
	i0 = max(lo, i0-1)
	i1 = min(hi, i1+1)

	tokenized := 0
	for {
		oldStart, oldEnd := offs[i0], offs[i1]
		newStart, newEnd := oldStart, oldEnd+env.delta
		lookEnd := newEnd
		if i1 < len(b.node.children) {
			lookEnd += b.node.children[i1].length
		}
		toks, n, ok := src.window(text, newStart, newEnd, lookEnd)
		tokenized += n
		if !ok {
			if i1 < hi {
				i1++
				continue
			}
			return nil, buffer.Range{}, tokenized, false, nil
		}
		nodes, balanced, err := build(ctx, text[newStart:newEnd], toks, true)
		if err != nil || !balanced {
			return nil, buffer.Range{}, tokenized, false, err
		}
		return splice(path, i0, i1, nodes, env.delta), buffer.Range{Start: newStart, End: newEnd}, tokenized, true, nil
	}
}

// windowed is implemented by tokenizers whose tokens depend only on the
// text from their start through the byte that ends them, and that run an
// unterminated token to the end of the text. Such a tokenizer can rescan
// a window of the text in isolation.
type windowed interface {
	windowed()
}

// source supplies the tokens of a reparse window [start, end).
type source interface {
	// window returns the tokens covering text[start:end] and the number of
	// bytes it had to scan. ok is false when no token boundary falls at end.
	window(text string, start, end, lookEnd int) (toks []Token, scanned int, ok bool)
	full(ctx context.Context, p *BlockParser, text string) (*Tree, ParseStats, error)
}

// windowSource rescans windows with a windowed tokenizer. The scan runs
// into the following child so a token that the edit extended across the
// window end is noticed.
type windowSource struct {
	tok Tokenizer
}

func (s windowSource) window(text string, start, end, lookEnd int) ([]Token, int, bool) {
	toks, ok := cut(s.tok.Tokenize(text[start:lookEnd]), end-start)
	return toks, lookEnd - start, ok
}

func (s windowSource) full(ctx context.Context, p *BlockParser, text string) (*Tree, ParseStats, error) {
	return p.full(ctx, text)
}

// streamSource cuts windows out of the tokens of the whole text.
type streamSource struct {
	toks   []Token
	starts []int
}

func newStreamSource(toks []Token) streamSource {
	starts := make([]int, len(toks)+1)
	for i, t := range toks {
		starts[i+1] = starts[i] + t.Len
	}
	return streamSource{toks: toks, starts: starts}
}

func (s streamSource) window(_ string, start, end, _ int) ([]Token, int, bool) {
	i, ok := slices.BinarySearch(s.starts, start)
	if !ok {
		return nil, 0, false
	}
	j, ok := slices.BinarySearch(s.starts, end)
	if !ok {
		return nil, 0, false
	}
	return s.toks[i:j], 0, true
}

func (s streamSource) full(ctx context.Context, p *BlockParser, text string) (*Tree, ParseStats, error) {
	return p.fullTokens(ctx, text, s.toks)
}

// changedTokens compares the leaves of an old tree with the tokens of the
// new text and returns the old byte range outside of which both agree.
// Stray closers were punctuation tokens before build marked them invalid.
func changedTokens(root *Node, toks []Token, oldLen int) buffer.Range {
	var leaves []Token
	var walk func(n *Node)
	walk = func(n *Node) {
		if n.kind.IsLeaf() {
			k := n.kind
			if k == KindInvalid {
				k = KindPunctuation
			}
			leaves = append(leaves, Token{Kind: k, Len: n.length})
			return
		}
		for _, c := range n.children {
			walk(c)
		}
	}
	walk(root)

	k, prefix := 0, 0
	for k < len(leaves) && k < len(toks) && leaves[k] == toks[k] {
		prefix += leaves[k].Len
		k++
	}
	m, suffix := 0, 0
	for m < min(len(leaves), len(toks))-k && leaves[len(leaves)-1-m] == toks[len(toks)-1-m] {
		suffix += leaves[len(leaves)-1-m].Len
		m++
	}
	return buffer.Range{Start: prefix, End: oldLen - suffix}
}

// cut returns the tokens covering the first n bytes, or false when no
// token boundary falls at n.
func cut(toks []Token, n int) ([]Token, bool) {
	pos := 0
	for i, t := range toks {
		if pos == n {
			return toks[:i], true
		}
		pos += t.Len
		if pos > n {
			return nil, false
		}
	}
	return toks, pos == n
}

// splice replaces children [i0, i1) of the last path block and copies the
// path back up to the root.
func splice(path []step, i0, i1 int, nodes []*Node, delta int) *Node {
	b := path[len(path)-1].node
	children := make([]*Node, 0, len(b.children)-(i1-i0)+len(nodes))
	children = append(children, b.children[:i0]...)
	children = append(children, nodes...)
	children = append(children, b.children[i1:]...)
	n := &Node{kind: b.kind, length: b.length + delta, children: children, unterminated: b.unterminated}

	for k := len(path) - 1; k > 0; k-- {
		parent := path[k-1].node
		cs := make([]*Node, len(parent.children))
		copy(cs, parent.children)
		cs[path[k].index] = n
		n = &Node{kind: parent.kind, length: parent.length + delta, children: cs, unterminated: parent.unterminated}
	}
	return n
}

type frame struct {
	open     byte
	children []*Node
}

// build assembles tokens into nodes. In strict mode an unmatched bracket
// makes it report balanced=false; otherwise stray closers become
// KindInvalid leaves and unclosed blocks are marked unterminated.
func build(ctx context.Context, text string, toks []Token, strict bool) ([]*Node, bool, error) {
	stack := []frame{{}}
	pos := 0
	for i, t := range toks {
		if i&4095 == 4095 {
			if err := ctx.Err(); err != nil {
				return nil, false, cancelled(err)
			}
		}
		top := &stack[len(stack)-1]
		leaf := &Node{kind: t.Kind, length: t.Len}
		if t.Kind == KindPunctuation && t.Len == 1 {
			switch c := text[pos]; {
			case isOpenBracket(c):
				stack = append(stack, frame{open: c, children: []*Node{leaf}})
				pos += t.Len
				continue
			case isCloseBracket(c):
				if len(stack) > 1 && bracketPair(top.open) == c {
					blk := newBlock(KindBlock, append(top.children, leaf), false)
					stack = stack[:len(stack)-1]
					parent := &stack[len(stack)-1]
					parent.children = append(parent.children, blk)
					pos += t.Len
					continue
				}
				if strict {
					return nil, false, nil
				}
				leaf.kind = KindInvalid
			}
		}
		top.children = append(top.children, leaf)
		pos += t.Len
	}
	if len(stack) > 1 && strict {
		return nil, false, nil
	}
	for len(stack) > 1 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		parent := &stack[len(stack)-1]
		parent.children = append(parent.children, newBlock(KindBlock, top.children, true))
	}
	return stack[0].children, true, nil
}
