package sumtree

import "iter"

// Entry is a key/value pair stored in a TreeMap.
type Entry[K, V any] struct {
	Key   K
	Value V
}

// Summary reports the entry's key as the running maximum.
func (e Entry[K, V]) Summary() MaxKey[K] {
	return MaxKey[K]{Key: e.Key, Set: true}
}

// MaxKey summarizes a sorted run by its last key.
type MaxKey[K any] struct {
	Key K
	Set bool
}

// Add keeps the right-hand key, which is the larger one in a sorted run.
func (m MaxKey[K]) Add(other MaxKey[K]) MaxKey[K] {
	if other.Set {
		return other
	}
	return m
}

// TreeMap is a persistent ordered map. Keys are ordered by the comparison
// function supplied to NewTreeMap, which returns a negative number, zero or a
// positive number like cmp.Compare.
type TreeMap[K, V any] struct {
	tree Tree[Entry[K, V], MaxKey[K]]
	cmp  func(a, b K) int
}

// NewTreeMap returns an empty map ordered by cmp.
func NewTreeMap[K, V any](cmp func(a, b K) int) TreeMap[K, V] {
	return TreeMap[K, V]{cmp: cmp}
}

// Len returns the number of entries.
func (m TreeMap[K, V]) Len() int {
	return m.tree.Len()
}

// lowerBound returns the index of the first entry with key >= k.
func (m TreeMap[K, V]) lowerBound(k K) int {
	i, _ := m.tree.Find(func(s MaxKey[K]) bool {
		return s.Set && m.cmp(s.Key, k) >= 0
	})
	return i
}

// upperBound returns the index of the first entry with key > k.
func (m TreeMap[K, V]) upperBound(k K) int {
	i, _ := m.tree.Find(func(s MaxKey[K]) bool {
		return s.Set && m.cmp(s.Key, k) > 0
	})
	return i
}

// Get returns the value stored under k.
func (m TreeMap[K, V]) Get(k K) (V, bool) {
	i := m.lowerBound(k)
	if e, ok := m.tree.Get(i); ok && m.cmp(e.Key, k) == 0 {
		return e.Value, true
	}
	var zero V
	return zero, false
}

// Insert returns a map with k set to v, replacing any existing value.
func (m TreeMap[K, V]) Insert(k K, v V) TreeMap[K, V] {
	i := m.lowerBound(k)
	e := Entry[K, V]{Key: k, Value: v}
	if cur, ok := m.tree.Get(i); ok && m.cmp(cur.Key, k) == 0 {
		m.tree = m.tree.Replace(i, e)
		return m
	}
	m.tree = m.tree.InsertAt(i, e)
	return m
}

// Remove returns a map without k.
func (m TreeMap[K, V]) Remove(k K) TreeMap[K, V] {
	i := m.lowerBound(k)
	if cur, ok := m.tree.Get(i); ok && m.cmp(cur.Key, k) == 0 {
		m.tree = m.tree.RemoveRange(i, i+1)
	}
	return m
}

// Floor returns the entry with the greatest key <= k.
func (m TreeMap[K, V]) Floor(k K) (Entry[K, V], bool) {
	return m.tree.Get(m.upperBound(k) - 1)
}

// Ceil returns the entry with the smallest key >= k.
func (m TreeMap[K, V]) Ceil(k K) (Entry[K, V], bool) {
	return m.tree.Get(m.lowerBound(k))
}

// All iterates over entries in key order.
func (m TreeMap[K, V]) All() iter.Seq2[K, V] {
	return m.From(nil)
}

// From iterates over entries with key >= *k, or over every entry when k is nil.
func (m TreeMap[K, V]) From(k *K) iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		start := 0
		if k != nil {
			start = m.lowerBound(*k)
		}
		c := m.tree.Cursor(start)
		for c.Valid() {
			e := c.Item()
			if !yield(e.Key, e.Value) {
				return
			}
			c.Next()
		}
	}
}
