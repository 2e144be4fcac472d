// Package sumtree provides a persistent, balanced sequence tree whose nodes
// cache a monoidal summary of their subtree.
//
// A Tree stores items in order. Every item reports a Summary, and summaries
// combine with an associative Add whose identity is the summary type's zero
// value. Interior nodes cache the combined summary and item count of their
// subtree, which makes positional access, splitting, concatenation and
// "seek to the first item whose running summary satisfies a predicate"
// logarithmic.
//
// Trees are immutable. Every mutating method returns a new Tree that shares
// unchanged subtrees with the receiver, so holding on to an old Tree is a
// free snapshot and concurrent readers never need locks.
//
// Basic usage:
//
//	t := sumtree.FromItems([]Run{{n: 3}, {n: 4}})
//	t = t.InsertAt(1, Run{n: 2})
//	i, before := t.Find(func(s Count) bool { return s.N > 4 })
//
// TreeMap builds an ordered map on top of Tree for sorted keys.
package sumtree
