package sumtree

// Cursor walks a tree forward from a position, tracking the summary of
// every item before the current one. Advancing is amortized O(1).
type Cursor[T Item[S], S Summary[S]] struct {
	path  []cursorFrame[T, S]
	leaf  *node[T, S]
	pos   int // index of the current item within leaf
	index int
	start S
}

type cursorFrame[T Item[S], S Summary[S]] struct {
	node  *node[T, S]
	child int
}

// Cursor returns a cursor positioned at item index i.
func (t Tree[T, S]) Cursor(i int) *Cursor[T, S] {
	c := &Cursor[T, S]{}
	if t.root == nil || i >= t.root.count {
		c.index = t.Len()
		c.start = t.Summary()
		return c
	}
	if i < 0 {
		i = 0
	}
	c.index = i
	n := t.root
	for !n.isLeaf() {
		k, rel := childAt(n, i)
		for _, prev := range n.children[:k] {
			c.start = c.start.Add(prev.summary)
		}
		c.path = append(c.path, cursorFrame[T, S]{node: n, child: k})
		n = n.children[k]
		i = rel
	}
	for _, it := range n.items[:i] {
		c.start = c.start.Add(it.Summary())
	}
	c.leaf = n
	c.pos = i
	return c
}

// CursorWhere returns a cursor at the first item satisfying Find(pred).
func (t Tree[T, S]) CursorWhere(pred func(S) bool) *Cursor[T, S] {
	i, _ := t.Find(pred)
	return t.Cursor(i)
}

// Valid reports whether the cursor points at an item.
func (c *Cursor[T, S]) Valid() bool {
	return c.leaf != nil
}

// Item returns the current item. It panics when the cursor is exhausted.
func (c *Cursor[T, S]) Item() T {
	return c.leaf.items[c.pos]
}

// Index returns the index of the current item.
func (c *Cursor[T, S]) Index() int {
	return c.index
}

// Start returns the summary of all items before the current one.
func (c *Cursor[T, S]) Start() S {
	return c.start
}

// End returns the summary of all items up to and including the current one.
func (c *Cursor[T, S]) End() S {
	if !c.Valid() {
		return c.start
	}
	return c.start.Add(c.Item().Summary())
}

// Next advances to the following item.
func (c *Cursor[T, S]) Next() {
	if c.leaf == nil {
		return
	}
	c.start = c.start.Add(c.leaf.items[c.pos].Summary())
	c.index++
	c.pos++
	if c.pos < len(c.leaf.items) {
		return
	}
	for len(c.path) > 0 {
		top := &c.path[len(c.path)-1]
		if top.child+1 < len(top.node.children) {
			top.child++
			n := top.node.children[top.child]
			for !n.isLeaf() {
				c.path = append(c.path, cursorFrame[T, S]{node: n, child: 0})
				n = n.children[0]
			}
			c.leaf = n
			c.pos = 0
			return
		}
		c.path = c.path[:len(c.path)-1]
	}
	c.leaf = nil
}
