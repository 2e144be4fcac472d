// Package rope stores text as an immutable sequence of chunks held in a
// sumtree.Tree, summarized by byte, line and UTF-16 metrics.
//
// Basic usage:
//
//	r := rope.FromString("hello world")
//	r = r.Insert(5, ",")      // "hello, world"
//	r = r.Delete(0, 7)        // "world"
//	p := r.OffsetToPoint(3)   // {Line: 0, Column: 3}
//
// Ropes are values; every edit returns a new Rope and leaves the original
// untouched, so snapshots are free and safe to read concurrently.
package rope
