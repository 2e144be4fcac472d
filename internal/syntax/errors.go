package syntax

import (
	"errors"
	"fmt"
)

// ErrCancelled is returned by a parse whose context was cancelled, which
// happens when a newer buffer version supersedes it.
var ErrCancelled = errors.New("syntax: parse cancelled")

func cancelled(cause error) error {
	return fmt.Errorf("%w: %w", ErrCancelled, cause)
}
