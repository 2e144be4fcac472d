package multibuffer

import "errors"

var (
	// ErrExcerptNotFound is returned for an unknown excerpt id.
	ErrExcerptNotFound = errors.New("multibuffer: excerpt not found")
	// ErrReadOnlyExcerpt is returned for an edit inside a read-only excerpt.
	ErrReadOnlyExcerpt = errors.New("multibuffer: excerpt is read-only")
	// ErrCrossExcerptEdit is returned for an edit that spans the boundary
	// between two excerpts.
	ErrCrossExcerptEdit = errors.New("multibuffer: edit crosses excerpt boundary")
	// ErrSourceChanged is returned when a source buffer changed between
	// taking the snapshot an edit was translated with and applying it.
	ErrSourceChanged = errors.New("multibuffer: source buffer changed")
)
