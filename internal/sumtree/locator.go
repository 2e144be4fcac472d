package sumtree

import (
	"math"
	"slices"
)

// Locator is a dense ordering key. Items kept sorted by locator can always
// get a new key between two neighbors without renumbering. Locators are
// local to a process and never sent over the wire.
type Locator []uint64

var (
	MinLocator = Locator{0}
	MaxLocator = Locator{math.MaxUint64}
)

// Compare orders locators lexicographically.
func (l Locator) Compare(o Locator) int {
	return slices.Compare(l, o)
}

// Between returns a locator strictly between lhs and rhs. lhs must sort
// before rhs. Missing digits read as 0 on the left and MaxUint64 on the
// right. Each digit moves a small step away from the neighbor that is
// still bounded, so repeated insertion after one key or before one key
// grows keys slowly. Narrow gaps are halved before a digit is added.
func Between(lhs, rhs Locator) Locator {
	out := make(Locator, 0, max(len(lhs), len(rhs))+1)
	for i := 0; ; i++ {
		var l uint64
		if i < len(lhs) {
			l = lhs[i]
		}
		r := uint64(math.MaxUint64)
		if i < len(rhs) {
			r = rhs[i]
		}
		var gap uint64
		if r > l {
			gap = r - l
		}
		step := gap >> 48
		if step == 0 {
			step = gap / 2
		}
		mid := l
		switch lo, hi := open(lhs[min(i, len(lhs)):], 0), open(rhs[min(i, len(rhs)):], math.MaxUint64); {
		case step == 0:
		case lo && hi:
			mid = l + gap/2
		case lo:
			mid = r - step
		default:
			mid = l + step
		}
		out = append(out, mid)
		if mid > l {
			return out
		}
	}
}

// open reports whether every digit of rest is the implicit value v, so
// the side places no bound past this point.
func open(rest Locator, v uint64) bool {
	for _, d := range rest {
		if d != v {
			return false
		}
	}
	return true
}
