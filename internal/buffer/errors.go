package buffer

import (
	"errors"
	"fmt"

	"github.com/dshills/strand/internal/clock"
	"github.com/dshills/strand/internal/history"
)

// Errors returned by buffer operations.
var (
	// ErrOffsetOutOfRange indicates an offset outside the current text.
	ErrOffsetOutOfRange = errors.New("offset out of range")

	// ErrRangeInvalid indicates a range whose end precedes its start.
	ErrRangeInvalid = errors.New("invalid range")

	// ErrEditsOverlap indicates two edits of one call touch the same text.
	ErrEditsOverlap = errors.New("edits overlap")

	// ErrStaleReference indicates an operation refers to collected content.
	ErrStaleReference = errors.New("stale reference")

	// ErrResyncRequired indicates the requested history was collected.
	ErrResyncRequired = errors.New("resync required")

	// ErrInvariant indicates internal state failed a consistency check.
	ErrInvariant = errors.New("buffer invariant violated")

	// ErrPoisoned is returned by every mutation after an invariant failure.
	ErrPoisoned = errors.New("buffer disabled after invariant failure")

	// ErrNothingToUndo indicates the undo stack is empty.
	ErrNothingToUndo = history.ErrNothingToUndo

	// ErrNothingToRedo indicates the redo stack is empty.
	ErrNothingToRedo = history.ErrNothingToRedo
)

// StaleError reports an operation that cannot be applied because the state
// it depends on was garbage-collected. The peer must resynchronize.
type StaleError struct {
	Op     clock.Clock
	Reason string
}

func (e *StaleError) Error() string {
	return fmt.Sprintf("operation %v: %s: resync required", e.Op, e.Reason)
}

// Is matches both ErrStaleReference and ErrResyncRequired.
func (e *StaleError) Is(target error) bool {
	return target == ErrStaleReference || target == ErrResyncRequired
}

func outOfRange(r Range, length int) error {
	return fmt.Errorf("%w: %v exceeds length %d", ErrOffsetOutOfRange, r, length)
}
