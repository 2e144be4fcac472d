package history

import (
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/dshills/strand/internal/clock"
)

// Common errors for history operations.
var (
	ErrNothingToUndo = errors.New("nothing to undo")
	ErrNothingToRedo = errors.New("nothing to redo")
)

// DefaultMaxEntries bounds the undo stack when no limit is configured.
const DefaultMaxEntries = 1000

// Transaction is one undo unit.
type Transaction struct {
	Name  string
	Edits []clock.Lamport
	First time.Time
	Last  time.Time
}

// Option configures a History.
type Option func(*History)

// WithMaxEntries limits the number of undo transactions kept.
func WithMaxEntries(n int) Option {
	return func(h *History) {
		if n > 0 {
			h.maxEntries = n
		}
	}
}

// WithGroupInterval merges edits pushed within d of the previous one into
// the same transaction. Zero disables time-based grouping.
func WithGroupInterval(d time.Duration) Option {
	return func(h *History) {
		h.groupInterval = d
	}
}

// History manages undo/redo stacks for one replica.
type History struct {
	mu sync.Mutex

	undoStack []*Transaction
	redoStack []*Transaction

	// Grouping state
	grouping bool
	group    *Transaction
	sealed   bool

	maxEntries    int
	groupInterval time.Duration
}

// New creates a history.
func New(opts ...Option) *History {
	h := &History{maxEntries: DefaultMaxEntries}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Push records a local edit. The redo stack is cleared.
func (h *History) Push(edit clock.Lamport, now time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.redoStack = nil

	if h.grouping {
		if h.group.First.IsZero() {
			h.group.First = now
		}
		h.group.Edits = append(h.group.Edits, edit)
		h.group.Last = now
		return
	}

	if n := len(h.undoStack); n > 0 && !h.sealed && h.groupInterval > 0 {
		top := h.undoStack[n-1]
		if now.Sub(top.Last) < h.groupInterval {
			top.Edits = append(top.Edits, edit)
			top.Last = now
			return
		}
	}

	h.pushLocked(&Transaction{Edits: []clock.Lamport{edit}, First: now, Last: now})
}

func (h *History) pushLocked(tx *Transaction) {
	h.undoStack = append(h.undoStack, tx)
	h.sealed = false
	if excess := len(h.undoStack) - h.maxEntries; excess > 0 {
		h.undoStack = slices.Delete(h.undoStack, 0, excess)
	}
}

// Seal stops the top transaction from absorbing later edits.
func (h *History) Seal() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sealed = true
}

// PopUndo removes the most recent transaction and moves it to the redo stack.
func (h *History) PopUndo() (Transaction, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.undoStack) == 0 {
		return Transaction{}, ErrNothingToUndo
	}
	tx := h.undoStack[len(h.undoStack)-1]
	h.undoStack = h.undoStack[:len(h.undoStack)-1]
	h.redoStack = append(h.redoStack, tx)
	h.sealed = true
	return cloneTx(tx), nil
}

// PopRedo removes the most recently undone transaction and moves it back to
// the undo stack.
func (h *History) PopRedo() (Transaction, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.redoStack) == 0 {
		return Transaction{}, ErrNothingToRedo
	}
	tx := h.redoStack[len(h.redoStack)-1]
	h.redoStack = h.redoStack[:len(h.redoStack)-1]
	h.undoStack = append(h.undoStack, tx)
	h.sealed = true
	return cloneTx(tx), nil
}

// Restore reverses a PopUndo or PopRedo whose application failed.
func (h *History) Restore(undo bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if undo && len(h.redoStack) > 0 {
		tx := h.redoStack[len(h.redoStack)-1]
		h.redoStack = h.redoStack[:len(h.redoStack)-1]
		h.undoStack = append(h.undoStack, tx)
	} else if !undo && len(h.undoStack) > 0 {
		tx := h.undoStack[len(h.undoStack)-1]
		h.undoStack = h.undoStack[:len(h.undoStack)-1]
		h.redoStack = append(h.redoStack, tx)
	}
}

func cloneTx(tx *Transaction) Transaction {
	out := *tx
	out.Edits = slices.Clone(tx.Edits)
	return out
}

// CanUndo returns true if undo is available.
func (h *History) CanUndo() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.undoStack) > 0
}

// CanRedo returns true if redo is available.
func (h *History) CanRedo() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.redoStack) > 0
}

// UndoCount returns the number of undo transactions available.
func (h *History) UndoCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.undoStack)
}

// RedoCount returns the number of redo transactions available.
func (h *History) RedoCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.redoStack)
}

// BeginGroup starts a transaction that collects every edit until EndGroup.
// Nested calls are ignored.
func (h *History) BeginGroup(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.grouping {
		return
	}
	h.grouping = true
	h.group = &Transaction{Name: name}
}

// EndGroup closes the open group and pushes it as one transaction.
func (h *History) EndGroup() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.grouping {
		return
	}
	h.grouping = false
	if len(h.group.Edits) > 0 {
		h.pushLocked(h.group)
		h.sealed = true
	}
	h.group = nil
}

// CancelGroup drops the open group without recording it.
// Edits already applied still affect the buffer.
func (h *History) CancelGroup() []clock.Lamport {
	h.mu.Lock()
	defer h.mu.Unlock()

	var edits []clock.Lamport
	if h.group != nil {
		edits = h.group.Edits
	}
	h.grouping = false
	h.group = nil
	return edits
}

// IsGrouping returns true if a group is open.
func (h *History) IsGrouping() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.grouping
}

// Forget drops every transaction containing an edit for which drop returns
// true. It is used when the edits can no longer be undone.
func (h *History) Forget(drop func(clock.Lamport) bool) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	keep := func(stack []*Transaction) ([]*Transaction, int) {
		n := 0
		out := stack[:0]
		for _, tx := range stack {
			if slices.ContainsFunc(tx.Edits, drop) {
				n++
				continue
			}
			out = append(out, tx)
		}
		return out, n
	}
	var a, b int
	h.undoStack, a = keep(h.undoStack)
	h.redoStack, b = keep(h.redoStack)
	return a + b
}

// Clear removes all undo/redo history.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.undoStack = nil
	h.redoStack = nil
	h.grouping = false
	h.group = nil
}

// PeekUndo returns the next transaction to undo without removing it.
func (h *History) PeekUndo() (Transaction, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.undoStack) == 0 {
		return Transaction{}, false
	}
	return cloneTx(h.undoStack[len(h.undoStack)-1]), true
}

// MaxEntries returns the maximum number of undo transactions.
func (h *History) MaxEntries() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.maxEntries
}
