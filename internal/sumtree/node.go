package sumtree

// Tree shape constants.
const (
	// MinChildren is the minimum fan-out of a non-root node.
	MinChildren = 4

	// MaxChildren is the maximum fan-out of any node before it splits.
	MaxChildren = 8
)

// Summary is a monoid over subtree contents. The zero value of the
// implementing type must be the identity of Add.
type Summary[S any] interface {
	Add(other S) S
}

// Item is an element stored in a Tree.
type Item[S any] interface {
	Summary() S
}

// node is a tree node. Leaves (height 0) hold items, internal nodes hold
// children of height-1. Nodes are never mutated once published.
type node[T Item[S], S Summary[S]] struct {
	height   uint8
	summary  S
	count    int
	children []*node[T, S]
	items    []T
}

func (n *node[T, S]) isLeaf() bool {
	return n.height == 0
}

// width is the number of direct entries: items for a leaf, children otherwise.
func (n *node[T, S]) width() int {
	if n.isLeaf() {
		return len(n.items)
	}
	return len(n.children)
}

func newLeaf[T Item[S], S Summary[S]](items []T) *node[T, S] {
	n := &node[T, S]{items: items, count: len(items)}
	var sum S
	for _, it := range items {
		sum = sum.Add(it.Summary())
	}
	n.summary = sum
	return n
}

func newInternal[T Item[S], S Summary[S]](children []*node[T, S]) *node[T, S] {
	n := &node[T, S]{height: children[0].height + 1, children: children}
	var sum S
	for _, c := range children {
		sum = sum.Add(c.summary)
		n.count += c.count
	}
	n.summary = sum
	return n
}

// normalize collapses single-child internal roots and empty internal nodes.
func normalize[T Item[S], S Summary[S]](n *node[T, S]) *node[T, S] {
	for n != nil && !n.isLeaf() && len(n.children) == 1 {
		n = n.children[0]
	}
	if n == nil || (!n.isLeaf() && len(n.children) == 0) {
		return newLeaf[T, S](nil)
	}
	return n
}

// distribute splits n entries into the fewest groups of at most MaxChildren,
// keeping group sizes within one of each other.
func distribute(n int) []int {
	if n <= MaxChildren {
		return []int{n}
	}
	groups := (n + MaxChildren - 1) / MaxChildren
	sizes := make([]int, groups)
	base, extra := n/groups, n%groups
	for i := range sizes {
		sizes[i] = base
		if i < extra {
			sizes[i]++
		}
	}
	return sizes
}

// buildLevel groups leaves of items or nodes into nodes of the next level.
func buildLeaves[T Item[S], S Summary[S]](items []T) []*node[T, S] {
	var out []*node[T, S]
	pos := 0
	for _, size := range distribute(len(items)) {
		chunk := make([]T, size)
		copy(chunk, items[pos:pos+size])
		out = append(out, newLeaf[T, S](chunk))
		pos += size
	}
	return out
}

func buildLevel[T Item[S], S Summary[S]](nodes []*node[T, S]) []*node[T, S] {
	var out []*node[T, S]
	pos := 0
	for _, size := range distribute(len(nodes)) {
		chunk := make([]*node[T, S], size)
		copy(chunk, nodes[pos:pos+size])
		out = append(out, newInternal(chunk))
		pos += size
	}
	return out
}

// fromEntries builds a node of the same height as its inputs from a run of
// items or children, splitting in two when the run overflows. The second
// return is nil when one node suffices.
func leafPair[T Item[S], S Summary[S]](items []T) (*node[T, S], *node[T, S]) {
	if len(items) <= MaxChildren {
		return newLeaf[T, S](items), nil
	}
	mid := len(items) / 2
	left := make([]T, mid)
	copy(left, items[:mid])
	right := make([]T, len(items)-mid)
	copy(right, items[mid:])
	return newLeaf[T, S](left), newLeaf[T, S](right)
}

func internalPair[T Item[S], S Summary[S]](children []*node[T, S]) (*node[T, S], *node[T, S]) {
	if len(children) <= MaxChildren {
		return newInternal(children), nil
	}
	mid := len(children) / 2
	left := make([]*node[T, S], mid)
	copy(left, children[:mid])
	right := make([]*node[T, S], len(children)-mid)
	copy(right, children[mid:])
	return newInternal(left), newInternal(right)
}

// join concatenates two non-empty nodes. The result is one node, or two
// sibling nodes of the taller input's height when the join overflowed.
func join[T Item[S], S Summary[S]](left, right *node[T, S]) (*node[T, S], *node[T, S]) {
	switch {
	case left.height == right.height:
		if left.isLeaf() {
			items := make([]T, 0, len(left.items)+len(right.items))
			items = append(items, left.items...)
			items = append(items, right.items...)
			return leafPair[T, S](items)
		}
		if len(left.children) >= MinChildren && len(right.children) >= MinChildren {
			return left, right
		}
		children := make([]*node[T, S], 0, len(left.children)+len(right.children))
		children = append(children, left.children...)
		children = append(children, right.children...)
		return internalPair(children)

	case left.height > right.height:
		last := len(left.children) - 1
		a, b := join(left.children[last], right)
		children := make([]*node[T, S], 0, len(left.children)+1)
		children = append(children, left.children[:last]...)
		children = append(children, a)
		if b != nil {
			children = append(children, b)
		}
		return internalPair(children)

	default:
		a, b := join(left, right.children[0])
		children := make([]*node[T, S], 0, len(right.children)+1)
		children = append(children, a)
		if b != nil {
			children = append(children, b)
		}
		children = append(children, right.children[1:]...)
		return internalPair(children)
	}
}

// concat joins two trees of any shape.
func concat[T Item[S], S Summary[S]](left, right *node[T, S]) *node[T, S] {
	if left.count == 0 {
		return right
	}
	if right.count == 0 {
		return left
	}
	a, b := join(left, right)
	if b == nil {
		return a
	}
	return newInternal([]*node[T, S]{a, b})
}

// fromChildren builds a possibly underfull root out of a run of siblings.
func fromChildren[T Item[S], S Summary[S]](children []*node[T, S]) *node[T, S] {
	switch len(children) {
	case 0:
		return newLeaf[T, S](nil)
	case 1:
		return children[0]
	}
	cp := make([]*node[T, S], len(children))
	copy(cp, children)
	return newInternal(cp)
}

// split divides n at item index i into [0, i) and [i, count).
func split[T Item[S], S Summary[S]](n *node[T, S], i int) (*node[T, S], *node[T, S]) {
	if i <= 0 {
		return newLeaf[T, S](nil), n
	}
	if i >= n.count {
		return n, newLeaf[T, S](nil)
	}
	if n.isLeaf() {
		left := make([]T, i)
		copy(left, n.items[:i])
		right := make([]T, len(n.items)-i)
		copy(right, n.items[i:])
		return newLeaf[T, S](left), newLeaf[T, S](right)
	}

	k, rel := childAt(n, i)
	childLeft, childRight := split(n.children[k], rel)
	left := concat(fromChildren(n.children[:k]), childLeft)
	right := concat(childRight, fromChildren(n.children[k+1:]))
	return normalize(left), normalize(right)
}

// childAt finds the child containing item index i and the index within it.
func childAt[T Item[S], S Summary[S]](n *node[T, S], i int) (int, int) {
	for k, c := range n.children {
		if i < c.count {
			return k, i
		}
		i -= c.count
	}
	last := len(n.children) - 1
	return last, n.children[last].count
}

// replace returns a copy of n with item i swapped for it.
func replace[T Item[S], S Summary[S]](n *node[T, S], i int, it T) *node[T, S] {
	if n.isLeaf() {
		items := make([]T, len(n.items))
		copy(items, n.items)
		items[i] = it
		return newLeaf[T, S](items)
	}
	k, rel := childAt(n, i)
	children := make([]*node[T, S], len(n.children))
	copy(children, n.children)
	children[k] = replace(n.children[k], rel, it)
	return newInternal(children)
}
