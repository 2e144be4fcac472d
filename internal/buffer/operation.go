package buffer

import (
	"github.com/dshills/strand/internal/clock"
)

// Operation is one replicated change. Exactly one of Edit and Undo is set.
type Operation struct {
	// ID is the author's per-replica sequence number.
	ID clock.Clock `json:"id"`
	// Timestamp orders the operation against concurrent ones and names the
	// text it inserts.
	Timestamp clock.Lamport `json:"timestamp"`
	// Deps is the version the author had observed before this operation.
	Deps clock.Version `json:"deps"`

	Edit *EditOp `json:"edit,omitempty"`
	Undo *UndoOp `json:"undo,omitempty"`
}

// IsUndo reports whether the operation changes undo counts.
func (op Operation) IsUndo() bool {
	return op.Undo != nil
}

// Position is the boundary right after character Offset-1 of an insertion.
// The zero Position is the start of the document.
type Position struct {
	Insertion clock.Lamport `json:"insertion"`
	Offset    int           `json:"offset"`
}

// IsDocumentStart reports whether p is the start of the document.
func (p Position) IsDocumentStart() bool {
	return p == Position{}
}

// Span is the character range [Start, End) of an insertion.
type Span struct {
	Insertion clock.Lamport `json:"insertion"`
	Start     int           `json:"start"`
	End       int           `json:"end"`
}

// InsertText places Text right after After. Offset is where Text starts
// within the operation's insertion; all insertions of one operation share
// the operation timestamp and occupy consecutive offsets.
type InsertText struct {
	After  Position `json:"after"`
	Offset int      `json:"offset"`
	Text   string   `json:"text"`
}

// EditOp deletes spans and inserts text.
type EditOp struct {
	Deletes []Span       `json:"deletes,omitempty"`
	Inserts []InsertText `json:"inserts,omitempty"`
}

func (e *EditOp) empty() bool {
	return len(e.Deletes) == 0 && len(e.Inserts) == 0
}

// UndoCount sets the undo count of an edit. Odd counts mean undone.
// Counts only grow, so undo operations commute.
type UndoCount struct {
	Edit  clock.Lamport `json:"edit"`
	Count uint32        `json:"count"`
}

// UndoOp raises undo counts.
type UndoOp struct {
	Counts []UndoCount `json:"counts"`
}
