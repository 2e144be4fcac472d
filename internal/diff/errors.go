package diff

import "errors"

var (
	// ErrNoReference is returned when no reference text was set.
	ErrNoReference = errors.New("diff: no reference text")
	// ErrTooLarge is returned when either side has more lines than the
	// configured limit.
	ErrTooLarge = errors.New("diff: text exceeds line limit")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("diff: overlay closed")
)
