// Package history tracks the local undo/redo stacks of a buffer.
//
// Entries are transactions: ordered lists of edit ids produced by one
// replica. The stack never holds text. Undoing a transaction is done by the
// buffer, which turns the ids into a compensating undo operation, so undo
// keeps working when remote edits were interleaved with local ones.
//
// # Grouping
//
// Edits pushed while a group is open, or within the group interval of the
// previous edit, join the same transaction:
//
//	h := history.New(history.WithGroupInterval(300 * time.Millisecond))
//	h.BeginGroup("rename")
//	h.Push(id1, now)
//	h.Push(id2, now)
//	h.EndGroup()
//
// Now both edits undo together.
package history
