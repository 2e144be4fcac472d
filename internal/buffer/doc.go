// Package buffer implements a replicated text buffer.
//
// Text is stored as an ordered sequence of fragments held in a sumtree.Tree.
// Every fragment is a run of characters from one insertion, identified by
// the Lamport timestamp of the operation that inserted it. Deleting text
// never removes fragments; it records the deleting operation on the
// fragment, which then becomes a tombstone. Visible and tombstoned text
// live in two ropes so reads never walk tombstones.
//
// Edits are operations. Local edits are translated from visible offsets to
// logical positions (the character an insertion follows, the spans a
// deletion covers) and then applied by the same code that merges remote
// operations. Concurrent insertions after the same character are ordered by
// descending Lamport timestamp, so replicas that applied the same set of
// operations hold identical text regardless of delivery order.
//
// Undo is an operation too: it raises per-edit undo counts, and a fragment
// is visible when its insertion is not undone and none of its deletions are
// in effect. Undo therefore composes with interleaved remote edits.
//
// Readers take a Snapshot, an immutable view that shares structure with
// the live buffer and never blocks writers:
//
//	buf := buffer.New("hello world")
//	if _, err := buf.Edit(buffer.Edit{Range: buffer.Range{Start: 5, End: 5}, Text: ","}); err != nil {
//		return err
//	}
//	snap := buf.Snapshot()
//	a := snap.AnchorAt(7, buffer.BiasRight)
//	...
//	offset := buf.Snapshot().Resolve(a)
package buffer
