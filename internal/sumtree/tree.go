package sumtree

import (
	"errors"
	"fmt"
	"iter"
)

// ErrInvalidTree is returned by Validate when a structural invariant is broken.
var ErrInvalidTree = errors.New("sumtree: invalid tree")

// Tree is a persistent sequence of items with cached summaries.
// The zero value is an empty tree ready to use.
type Tree[T Item[S], S Summary[S]] struct {
	root *node[T, S]
}

// New returns an empty tree.
func New[T Item[S], S Summary[S]]() Tree[T, S] {
	return Tree[T, S]{}
}

// FromItems builds a balanced tree holding items in order.
func FromItems[T Item[S], S Summary[S]](items []T) Tree[T, S] {
	if len(items) == 0 {
		return Tree[T, S]{}
	}
	nodes := buildLeaves[T, S](items)
	for len(nodes) > 1 {
		nodes = buildLevel(nodes)
	}
	return Tree[T, S]{root: nodes[0]}
}

func (t Tree[T, S]) rootNode() *node[T, S] {
	if t.root == nil {
		return newLeaf[T, S](nil)
	}
	return t.root
}

func wrap[T Item[S], S Summary[S]](n *node[T, S]) Tree[T, S] {
	if n == nil || n.count == 0 {
		return Tree[T, S]{}
	}
	return Tree[T, S]{root: n}
}

// Len returns the number of items.
func (t Tree[T, S]) Len() int {
	if t.root == nil {
		return 0
	}
	return t.root.count
}

// IsEmpty reports whether the tree holds no items.
func (t Tree[T, S]) IsEmpty() bool {
	return t.Len() == 0
}

// Summary returns the summary of all items.
func (t Tree[T, S]) Summary() S {
	if t.root == nil {
		var zero S
		return zero
	}
	return t.root.summary
}

// Height returns the number of levels above the leaves.
func (t Tree[T, S]) Height() int {
	if t.root == nil {
		return 0
	}
	return int(t.root.height)
}

// Get returns the item at index i.
func (t Tree[T, S]) Get(i int) (T, bool) {
	var zero T
	if i < 0 || i >= t.Len() {
		return zero, false
	}
	n := t.root
	for !n.isLeaf() {
		var k int
		k, i = childAt(n, i)
		n = n.children[k]
	}
	return n.items[i], true
}

// First returns the first item.
func (t Tree[T, S]) First() (T, bool) {
	return t.Get(0)
}

// Last returns the last item.
func (t Tree[T, S]) Last() (T, bool) {
	return t.Get(t.Len() - 1)
}

// PrefixSummary returns the combined summary of items [0, i).
func (t Tree[T, S]) PrefixSummary(i int) S {
	var acc S
	if t.root == nil || i <= 0 {
		return acc
	}
	if i >= t.root.count {
		return t.root.summary
	}
	n := t.root
	for !n.isLeaf() {
		for _, c := range n.children {
			if i < c.count {
				n = c
				break
			}
			acc = acc.Add(c.summary)
			i -= c.count
		}
	}
	for _, it := range n.items[:i] {
		acc = acc.Add(it.Summary())
	}
	return acc
}

// Find returns the index of the first item whose inclusive running summary
// satisfies pred, together with the summary of the items before it.
// pred must be monotone: once true for a prefix, true for every longer one.
// When no item satisfies pred, Find returns Len() and the total summary.
func (t Tree[T, S]) Find(pred func(S) bool) (int, S) {
	var acc S
	if t.root == nil {
		return 0, acc
	}
	n := t.root
	index := 0
descend:
	for !n.isLeaf() {
		for _, c := range n.children {
			next := acc.Add(c.summary)
			if pred(next) {
				n = c
				continue descend
			}
			acc = next
			index += c.count
		}
		return index, acc
	}
	for _, it := range n.items {
		next := acc.Add(it.Summary())
		if pred(next) {
			return index, acc
		}
		acc = next
		index++
	}
	return index, acc
}

// Concat returns the items of t followed by the items of other.
func (t Tree[T, S]) Concat(other Tree[T, S]) Tree[T, S] {
	return wrap(concat(t.rootNode(), other.rootNode()))
}

// Push appends items to the end of the tree.
func (t Tree[T, S]) Push(items ...T) Tree[T, S] {
	if len(items) == 0 {
		return t
	}
	return t.Concat(FromItems[T, S](items))
}

// SplitAt divides the tree into items [0, i) and [i, Len()).
func (t Tree[T, S]) SplitAt(i int) (Tree[T, S], Tree[T, S]) {
	if t.root == nil {
		return t, t
	}
	left, right := split(t.root, i)
	return wrap(left), wrap(right)
}

// Slice returns the items in [i, j).
func (t Tree[T, S]) Slice(i, j int) Tree[T, S] {
	if i >= j {
		return Tree[T, S]{}
	}
	left, _ := t.SplitAt(j)
	_, mid := left.SplitAt(i)
	return mid
}

// InsertAt inserts items before index i.
func (t Tree[T, S]) InsertAt(i int, items ...T) Tree[T, S] {
	if len(items) == 0 {
		return t
	}
	left, right := t.SplitAt(i)
	return left.Push(items...).Concat(right)
}

// RemoveRange removes the items in [i, j).
func (t Tree[T, S]) RemoveRange(i, j int) Tree[T, S] {
	if i >= j {
		return t
	}
	left, rest := t.SplitAt(i)
	_, right := rest.SplitAt(j - i)
	return left.Concat(right)
}

// ReplaceRange swaps the items in [i, j) for items.
func (t Tree[T, S]) ReplaceRange(i, j int, items ...T) Tree[T, S] {
	left, rest := t.SplitAt(i)
	_, right := rest.SplitAt(j - i)
	return left.Push(items...).Concat(right)
}

// Replace returns a tree with item i swapped for it.
func (t Tree[T, S]) Replace(i int, it T) Tree[T, S] {
	if i < 0 || i >= t.Len() {
		return t
	}
	return Tree[T, S]{root: replace(t.root, i, it)}
}

// Items returns all items in order.
func (t Tree[T, S]) Items() []T {
	out := make([]T, 0, t.Len())
	for _, it := range t.All() {
		out = append(out, it)
	}
	return out
}

// All iterates over every item with its index.
func (t Tree[T, S]) All() iter.Seq2[int, T] {
	return func(yield func(int, T) bool) {
		c := t.Cursor(0)
		for c.Valid() {
			if !yield(c.Index(), c.Item()) {
				return
			}
			c.Next()
		}
	}
}

// Validate checks node counts, uniform leaf depth and fan-out bounds.
// eq, when non-nil, is used to check cached summaries against recomputed ones.
func (t Tree[T, S]) Validate(eq func(a, b S) bool) error {
	if t.root == nil {
		return nil
	}
	return validate(t.root, true, eq)
}

func validate[T Item[S], S Summary[S]](n *node[T, S], root bool, eq func(a, b S) bool) error {
	w := n.width()
	if w > MaxChildren {
		return fmt.Errorf("%w: node at height %d has %d entries", ErrInvalidTree, n.height, w)
	}
	if !root && w < MinChildren {
		return fmt.Errorf("%w: non-root node at height %d has %d entries", ErrInvalidTree, n.height, w)
	}
	if n.isLeaf() {
		if n.count != len(n.items) {
			return fmt.Errorf("%w: leaf count %d != %d", ErrInvalidTree, n.count, len(n.items))
		}
		if eq != nil {
			var sum S
			for _, it := range n.items {
				sum = sum.Add(it.Summary())
			}
			if !eq(sum, n.summary) {
				return fmt.Errorf("%w: stale leaf summary", ErrInvalidTree)
			}
		}
		return nil
	}
	if root && w < 2 {
		return fmt.Errorf("%w: internal root has %d children", ErrInvalidTree, w)
	}
	count := 0
	var sum S
	for _, c := range n.children {
		if c.height+1 != n.height {
			return fmt.Errorf("%w: child height %d under height %d", ErrInvalidTree, c.height, n.height)
		}
		if err := validate(c, false, eq); err != nil {
			return err
		}
		count += c.count
		sum = sum.Add(c.summary)
	}
	if count != n.count {
		return fmt.Errorf("%w: count %d != %d", ErrInvalidTree, n.count, count)
	}
	if eq != nil && !eq(sum, n.summary) {
		return fmt.Errorf("%w: stale summary at height %d", ErrInvalidTree, n.height)
	}
	return nil
}
