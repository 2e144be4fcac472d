package sumtree

import (
	"math/rand/v2"
	"slices"
	"testing"
	"testing/quick"
)

// num is a test item summarized by count and total.
type num int

type stats struct {
	Count int
	Total int
}

func (s stats) Add(o stats) stats {
	return stats{Count: s.Count + o.Count, Total: s.Total + o.Total}
}

func (n num) Summary() stats {
	return stats{Count: 1, Total: int(n)}
}

func eqStats(a, b stats) bool { return a == b }

func seq(n int) []num {
	out := make([]num, n)
	for i := range out {
		out[i] = num(i)
	}
	return out
}

func mustValid(t *testing.T, tr Tree[num, stats]) {
	t.Helper()
	if err := tr.Validate(eqStats); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestEmpty(t *testing.T) {
	var tr Tree[num, stats]
	if tr.Len() != 0 || !tr.IsEmpty() {
		t.Fatalf("zero tree should be empty, Len=%d", tr.Len())
	}
	if tr.Summary() != (stats{}) {
		t.Errorf("Summary() = %+v, want zero", tr.Summary())
	}
	if _, ok := tr.Get(0); ok {
		t.Error("Get(0) on empty tree should fail")
	}
	if i, _ := tr.Find(func(s stats) bool { return true }); i != 0 {
		t.Errorf("Find on empty = %d, want 0", i)
	}
	if tr.Cursor(0).Valid() {
		t.Error("cursor on empty tree should be exhausted")
	}
	mustValid(t, tr)
}

func TestFromItems(t *testing.T) {
	for _, n := range []int{1, 3, 8, 9, 17, 64, 65, 513, 5000} {
		tr := FromItems[num, stats](seq(n))
		mustValid(t, tr)
		if tr.Len() != n {
			t.Errorf("n=%d: Len() = %d", n, tr.Len())
		}
		if got := tr.Summary().Total; got != n*(n-1)/2 {
			t.Errorf("n=%d: Total = %d", n, got)
		}
		if !slices.Equal(tr.Items(), seq(n)) {
			t.Errorf("n=%d: items out of order", n)
		}
	}
}

func TestGetAndPrefix(t *testing.T) {
	tr := FromItems[num, stats](seq(300))
	for _, i := range []int{0, 1, 7, 8, 150, 299} {
		it, ok := tr.Get(i)
		if !ok || int(it) != i {
			t.Errorf("Get(%d) = %d, %v", i, it, ok)
		}
		if got := tr.PrefixSummary(i); got.Count != i || got.Total != i*(i-1)/2 {
			t.Errorf("PrefixSummary(%d) = %+v", i, got)
		}
	}
}

func TestFind(t *testing.T) {
	tr := FromItems[num, stats](seq(1000))
	tests := []struct {
		name      string
		total     int
		wantIndex int
	}{
		{"first", 0, 1},
		{"exact", 10, 5},
		{"middle", 124750, 500},
		{"beyond", 1 << 30, 1000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			i, before := tr.Find(func(s stats) bool { return s.Total > tt.total })
			if i != tt.wantIndex {
				t.Fatalf("index = %d, want %d", i, tt.wantIndex)
			}
			if before != tr.PrefixSummary(i) {
				t.Errorf("prefix = %+v, want %+v", before, tr.PrefixSummary(i))
			}
		})
	}
}

func TestSplitConcat(t *testing.T) {
	items := seq(777)
	tr := FromItems[num, stats](items)
	for _, at := range []int{0, 1, 4, 8, 9, 100, 388, 776, 777} {
		left, right := tr.SplitAt(at)
		mustValid(t, left)
		mustValid(t, right)
		if left.Len() != at || right.Len() != len(items)-at {
			t.Fatalf("split %d: lens %d/%d", at, left.Len(), right.Len())
		}
		joined := left.Concat(right)
		mustValid(t, joined)
		if !slices.Equal(joined.Items(), items) {
			t.Fatalf("split %d: concat lost order", at)
		}
	}
}

func TestConcatMismatchedHeights(t *testing.T) {
	big := FromItems[num, stats](seq(4000))
	for _, n := range []int{1, 2, 5, 9, 70} {
		small := FromItems[num, stats](seq(n))
		mustValid(t, big.Concat(small))
		mustValid(t, small.Concat(big))
		if got := small.Concat(big).Len(); got != 4000+n {
			t.Errorf("Len = %d", got)
		}
	}
}

func TestPersistence(t *testing.T) {
	orig := FromItems[num, stats](seq(100))
	before := orig.Items()
	_ = orig.InsertAt(50, 1000, 1001)
	_ = orig.RemoveRange(10, 90)
	_ = orig.Replace(3, 42)
	if !slices.Equal(orig.Items(), before) {
		t.Fatal("mutations leaked into the original tree")
	}
}

func TestReplace(t *testing.T) {
	tr := FromItems[num, stats](seq(50)).Replace(20, 1000)
	mustValid(t, tr)
	if it, _ := tr.Get(20); it != 1000 {
		t.Errorf("Get(20) = %d", it)
	}
	if tr.Summary().Total != 49*50/2-20+1000 {
		t.Errorf("Total = %d", tr.Summary().Total)
	}
}

func TestCursor(t *testing.T) {
	tr := FromItems[num, stats](seq(200))
	c := tr.Cursor(37)
	want := 37
	for c.Valid() {
		if int(c.Item()) != want || c.Index() != want {
			t.Fatalf("cursor at %d/%d, want %d", c.Item(), c.Index(), want)
		}
		if c.Start() != tr.PrefixSummary(want) {
			t.Fatalf("Start() at %d = %+v", want, c.Start())
		}
		c.Next()
		want++
	}
	if want != 200 {
		t.Errorf("cursor stopped at %d", want)
	}
	if c.Start().Count != 200 {
		t.Errorf("exhausted Start().Count = %d", c.Start().Count)
	}
}

func TestCursorWhere(t *testing.T) {
	tr := FromItems[num, stats](seq(64))
	c := tr.CursorWhere(func(s stats) bool { return s.Count > 10 })
	if !c.Valid() || c.Index() != 10 {
		t.Fatalf("CursorWhere index = %d", c.Index())
	}
}

// TestRandomEdits mirrors random edits against a slice model.
func TestRandomEdits(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	var model []num
	var tr Tree[num, stats]
	next := num(0)
	for step := 0; step < 2000; step++ {
		switch op := rng.IntN(4); {
		case op < 2 || len(model) == 0:
			at := rng.IntN(len(model) + 1)
			n := 1 + rng.IntN(20)
			ins := make([]num, n)
			for i := range ins {
				ins[i] = next
				next++
			}
			tr = tr.InsertAt(at, ins...)
			model = slices.Insert(model, at, ins...)
		case op == 2:
			i := rng.IntN(len(model))
			j := i + rng.IntN(len(model)-i+1)
			tr = tr.RemoveRange(i, j)
			model = slices.Delete(model, i, j)
		default:
			i := rng.IntN(len(model))
			j := i + rng.IntN(len(model)-i+1)
			tr = tr.Slice(i, j)
			model = slices.Clone(model[i:j])
		}
		if err := tr.Validate(eqStats); err != nil {
			t.Fatalf("step %d: %v", step, err)
		}
		if tr.Len() != len(model) {
			t.Fatalf("step %d: Len %d, want %d", step, tr.Len(), len(model))
		}
	}
	if !slices.Equal(tr.Items(), model) {
		t.Fatal("tree diverged from model")
	}
}

// TestQuickSummaryMatchesFold checks that Summary equals a left fold of items.
func TestQuickSummaryMatchesFold(t *testing.T) {
	f := func(xs []int16, at uint8) bool {
		items := make([]num, len(xs))
		var want stats
		for i, x := range xs {
			items[i] = num(x)
			want = want.Add(items[i].Summary())
		}
		tr := FromItems[num, stats](items)
		left, right := tr.SplitAt(int(at))
		return tr.Summary() == want && left.Summary().Add(right.Summary()) == want
	}
	if err := quick.Check(f, nil); err != nil {
		t.Error(err)
	}
}

func BenchmarkInsertMiddle(b *testing.B) {
	tr := FromItems[num, stats](seq(100000))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = tr.InsertAt(50000, num(i))
	}
}

func BenchmarkFind(b *testing.B) {
	tr := FromItems[num, stats](seq(100000))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		tr.Find(func(s stats) bool { return s.Count > 77777 })
	}
}

func TestLocatorBetween(t *testing.T) {
	lo, hi := MinLocator, MaxLocator
	// Repeated insertion at the same spot must keep producing keys.
	for i := range 1000 {
		mid := Between(lo, hi)
		if lo.Compare(mid) >= 0 || mid.Compare(hi) >= 0 {
			t.Fatalf("step %d: %v not between %v and %v", i, mid, lo, hi)
		}
		if i%2 == 0 {
			hi = mid
		} else {
			lo = mid
		}
	}
}

func TestLocatorGrowth(t *testing.T) {
	tests := []struct {
		name string
		next func(lo, hi, mid Locator) (Locator, Locator)
	}{
		{"prepend", func(lo, _, mid Locator) (Locator, Locator) { return lo, mid }},
		{"append", func(_, hi, mid Locator) (Locator, Locator) { return mid, hi }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lo, hi := MinLocator, MaxLocator
			for i := range 10000 {
				mid := Between(lo, hi)
				if lo.Compare(mid) >= 0 || mid.Compare(hi) >= 0 {
					t.Fatalf("step %d: %v not between %v and %v", i, mid, lo, hi)
				}
				if len(mid) > 2 {
					t.Fatalf("step %d: locator grew to %d digits", i, len(mid))
				}
				lo, hi = tt.next(lo, hi, mid)
			}
		})
	}
}

func TestLocatorBetweenRandom(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 9))
	keys := []Locator{MinLocator, MaxLocator}
	for range 5000 {
		i := rng.IntN(len(keys) - 1)
		mid := Between(keys[i], keys[i+1])
		if keys[i].Compare(mid) >= 0 || mid.Compare(keys[i+1]) >= 0 {
			t.Fatalf("%v not between %v and %v", mid, keys[i], keys[i+1])
		}
		keys = slices.Insert(keys, i+1, mid)
	}
}
