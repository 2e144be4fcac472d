package buffer

import (
	"fmt"
)

// CheckInvariants verifies the internal consistency of the current state.
// A failure disables the buffer: every later mutation returns ErrPoisoned.
// Other buffers are unaffected.
func (b *Buffer) CheckInvariants() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.poisoned != nil {
		return b.poisoned
	}
	if err := b.snap.Load().check(); err != nil {
		b.poison(err)
		return b.poisoned
	}
	return nil
}

// check verifies the fragment tree against the ropes and the index.
func (s *Snapshot) check() error {
	if err := s.fragments.Validate(fragmentSummary.equal); err != nil {
		return fmt.Errorf("%w: fragments: %w", ErrInvariant, err)
	}
	if err := s.visible.Validate(); err != nil {
		return fmt.Errorf("%w: visible text: %w", ErrInvariant, err)
	}
	if err := s.deleted.Validate(); err != nil {
		return fmt.Errorf("%w: deleted text: %w", ErrInvariant, err)
	}

	sum := s.fragments.Summary()
	if sum.visible != s.visible.Len() {
		return fmt.Errorf("%w: fragments hold %d visible bytes, text has %d", ErrInvariant, sum.visible, s.visible.Len())
	}
	if sum.deleted != s.deleted.Len() {
		return fmt.Errorf("%w: fragments hold %d deleted bytes, tombstones have %d", ErrInvariant, sum.deleted, s.deleted.Len())
	}

	var prev Locator
	for i, f := range s.fragments.All() {
		if f.length <= 0 {
			return fmt.Errorf("%w: fragment %d is empty", ErrInvariant, i)
		}
		if prev != nil && prev.Compare(f.locator) >= 0 {
			return fmt.Errorf("%w: fragment %d out of order", ErrInvariant, i)
		}
		prev = f.locator
		if f.visible != s.isVisible(f) {
			return fmt.Errorf("%w: fragment %d has stale visibility", ErrInvariant, i)
		}
		loc, ok := s.index.Get(indexKey{insertion: f.insertion, offset: f.offset})
		if !ok || loc.Compare(f.locator) != 0 {
			return fmt.Errorf("%w: fragment %d (%v+%d) missing from index", ErrInvariant, i, f.insertion, f.offset)
		}
	}
	if n := s.index.Len(); n != s.fragments.Len() {
		return fmt.Errorf("%w: index holds %d entries for %d fragments", ErrInvariant, n, s.fragments.Len())
	}
	return nil
}
