package syntax

import (
	"github.com/dshills/strand/internal/buffer"
)

// Node is an immutable syntax node. Children tile their parent exactly, so
// a node knows only its length; absolute offsets come from the walk that
// reached it. Unchanged subtrees are shared between successive trees.
type Node struct {
	kind     Kind
	length   int
	children []*Node
	// unterminated marks a block whose closing bracket is missing.
	unterminated bool
}

func (n *Node) Kind() Kind {
	return n.kind
}

func (n *Node) Len() int {
	return n.length
}

func (n *Node) ChildCount() int {
	return len(n.children)
}

func (n *Node) Child(i int) *Node {
	return n.children[i]
}

// Unterminated reports whether a block is missing its closing bracket.
func (n *Node) Unterminated() bool {
	return n.unterminated
}

// content returns the index range of a block's children between its
// brackets.
func (n *Node) content() (lo, hi int) {
	switch n.kind {
	case KindRoot, KindGroup:
		return 0, len(n.children)
	case KindBlock:
		hi = len(n.children)
		if !n.unterminated {
			hi--
		}
		return 1, hi
	}
	return 0, 0
}

func newBlock(kind Kind, children []*Node, unterminated bool) *Node {
	n := &Node{kind: kind, children: children, unterminated: unterminated}
	for _, c := range children {
		n.length += c.length
	}
	return n
}

// Tree is the result of a parse.
type Tree struct {
	root     *Node
	language string
	// ext carries parser-specific state between incremental parses.
	ext any
}

func (t *Tree) Root() *Node {
	return t.root
}

func (t *Tree) Len() int {
	return t.root.length
}

// Language names the tokenizer that produced the tree.
func (t *Tree) Language() string {
	return t.language
}

// NodeRef is a node with its absolute position.
type NodeRef struct {
	Node  *Node
	Range buffer.Range
	Depth int
}

// Span is a highlighted region.
type Span struct {
	Range buffer.Range
	Kind  Kind
}

// NodeAt returns the deepest node containing offset. An offset at the
// boundary of two nodes belongs to the right one; the end of the document
// belongs to the root.
func (t *Tree) NodeAt(offset int) NodeRef {
	ref := NodeRef{Node: t.root, Range: buffer.Range{End: t.root.length}}
	if offset < 0 || offset >= t.root.length {
		return ref
	}
	n, start := t.root, 0
	for len(n.children) > 0 {
		for _, c := range n.children {
			if offset < start+c.length {
				n = c
				break
			}
			start += c.length
		}
		ref = NodeRef{Node: n, Range: buffer.Range{Start: start, End: start + n.length}, Depth: ref.Depth + 1}
	}
	return ref
}

// Walk visits, in document order, every node that overlaps r. Returning
// false from fn skips the node's children.
func (t *Tree) Walk(r buffer.Range, fn func(NodeRef) bool) {
	walk(t.root, 0, 0, r, fn)
}

func walk(n *Node, start, depth int, r buffer.Range, fn func(NodeRef) bool) {
	nr := buffer.Range{Start: start, End: start + n.length}
	if !nr.Overlaps(r) {
		return
	}
	if !fn(NodeRef{Node: n, Range: nr, Depth: depth}) {
		return
	}
	for _, c := range n.children {
		if start >= r.End && !r.IsEmpty() {
			return
		}
		walk(c, start, depth+1, r, fn)
		start += c.length
	}
}

// Highlights returns highlighted leaves overlapping r in document order.
func (t *Tree) Highlights(r buffer.Range) []Span {
	var spans []Span
	t.Walk(r, func(ref NodeRef) bool {
		if ref.Node.kind.Highlighted() {
			spans = append(spans, Span{Range: ref.Range, Kind: ref.Node.kind})
		}
		return true
	})
	return spans
}

// Blocks returns the range of every block, outermost first.
func (t *Tree) Blocks() []NodeRef {
	var out []NodeRef
	t.Walk(buffer.Range{End: t.root.length}, func(ref NodeRef) bool {
		if ref.Node.kind == KindBlock {
			out = append(out, ref)
		}
		return !ref.Node.kind.IsLeaf()
	})
	return out
}

// Equal reports whether two trees have the same shape and kinds.
func (t *Tree) Equal(o *Tree) bool {
	return nodesEqual(t.root, o.root)
}

func nodesEqual(a, b *Node) bool {
	if a == b {
		return true
	}
	if a.kind != b.kind || a.length != b.length || a.unterminated != b.unterminated || len(a.children) != len(b.children) {
		return false
	}
	for i := range a.children {
		if !nodesEqual(a.children[i], b.children[i]) {
			return false
		}
	}
	return true
}

// shared counts nodes of t that are pointer-identical to nodes of old.
func (t *Tree) shared(old *Tree) int {
	seen := make(map[*Node]bool)
	var mark func(*Node)
	mark = func(n *Node) {
		seen[n] = true
		for _, c := range n.children {
			mark(c)
		}
	}
	mark(old.root)
	var count func(*Node) int
	count = func(n *Node) int {
		if seen[n] {
			return 1
		}
		total := 0
		for _, c := range n.children {
			total += count(c)
		}
		return total
	}
	return count(t.root)
}
