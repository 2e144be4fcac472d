package buffer

import (
	"github.com/dshills/strand/internal/clock"
	"github.com/dshills/strand/internal/sumtree"
)

// Locator orders fragments; see sumtree.Locator.
type Locator = sumtree.Locator

var (
	minLocator = sumtree.MinLocator
	maxLocator = sumtree.MaxLocator
)

func between(lhs, rhs Locator) Locator {
	return sumtree.Between(lhs, rhs)
}

// fragment is a run of characters from one insertion.
type fragment struct {
	locator   Locator
	insertion clock.Lamport
	offset    int
	length    int
	deletions []clock.Lamport
	visible   bool
}

func (f fragment) end() int {
	return f.offset + f.length
}

func (f fragment) contains(insertion clock.Lamport, offset int) bool {
	return f.insertion == insertion && offset >= f.offset && offset < f.end()
}

// Summary implements sumtree.Item.
func (f fragment) Summary() fragmentSummary {
	s := fragmentSummary{maxLocator: f.locator}
	if f.visible {
		s.visible = f.length
	} else {
		s.deleted = f.length
	}
	return s
}

// fragmentSummary aggregates visible and tombstoned byte counts. The
// locator of the rightmost fragment is the subtree maximum.
type fragmentSummary struct {
	visible    int
	deleted    int
	maxLocator Locator
}

func (s fragmentSummary) Add(o fragmentSummary) fragmentSummary {
	out := fragmentSummary{
		visible:    s.visible + o.visible,
		deleted:    s.deleted + o.deleted,
		maxLocator: s.maxLocator,
	}
	if o.maxLocator != nil {
		out.maxLocator = o.maxLocator
	}
	return out
}

func (s fragmentSummary) equal(o fragmentSummary) bool {
	return s.visible == o.visible && s.deleted == o.deleted && s.maxLocator.Compare(o.maxLocator) == 0
}

type fragmentTree = sumtree.Tree[fragment, fragmentSummary]

// indexKey addresses the fragment of an insertion starting at Offset.
type indexKey struct {
	insertion clock.Lamport
	offset    int
}

func compareIndexKeys(a, b indexKey) int {
	if c := a.insertion.Compare(b.insertion); c != 0 {
		return c
	}
	return a.offset - b.offset
}

type insertionIndex = sumtree.TreeMap[indexKey, Locator]

func newInsertionIndex() insertionIndex {
	return sumtree.NewTreeMap[indexKey, Locator](compareIndexKeys)
}
