package lsp

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/dshills/strand/internal/buffer"
	"github.com/dshills/strand/internal/event"
	"github.com/dshills/strand/internal/logging"
)

// StoreOption configures a Store.
type StoreOption func(*Store)

func WithLogger(log *logging.Logger) StoreOption {
	return func(s *Store) { s.log = logging.OrNull(log) }
}

// WithBus publishes an Update under event.LSPTopic(id, event.ActionUpdated)
// whenever the store changes.
func WithBus(bus *event.Bus) StoreOption {
	return func(s *Store) { s.bus = bus }
}

// Update is published after a store accepts new results.
type Update struct {
	Buffer      buffer.ID
	Highlights  int
	Diagnostics int
}

type anchored[T any] struct {
	anchors buffer.AnchorRange
	value   T
}

// Store keeps a buffer's highlights and diagnostics anchored in its text,
// so they follow edits until fresh results replace them. Results are only
// accepted for the buffer's current version.
type Store struct {
	buf *buffer.Buffer
	log *logging.Logger
	bus *event.Bus

	mu          sync.Mutex
	highlights  []anchored[Span]
	diagnostics []anchored[Diagnostic]
}

// NewStore creates an empty store for b.
func NewStore(b *buffer.Buffer, opts ...StoreOption) *Store {
	s := &Store{buf: b, log: logging.Null}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.WithComponent("lsp").WithField("buffer", b.ID().String())
	return s
}

func (s *Store) current(snap *buffer.Snapshot) error {
	if snap.ID() != s.buf.ID() {
		return fmt.Errorf("snapshot of %s given to store of %s", snap.ID(), s.buf.ID())
	}
	if !snap.Version().Equal(s.buf.Version()) {
		return fmt.Errorf("%w: %v", ErrStale, snap.Version())
	}
	return nil
}

// ApplyHighlights replaces the highlights within r with spans, all in the
// coordinates of snap.
func (s *Store) ApplyHighlights(snap *buffer.Snapshot, r buffer.Range, spans []Span) error {
	return s.apply(snap, r, spans, nil)
}

// ApplyDiagnostics replaces the diagnostics within r with diags, all in the
// coordinates of snap.
func (s *Store) ApplyDiagnostics(snap *buffer.Snapshot, r buffer.Range, diags []Diagnostic) error {
	return s.apply(snap, r, nil, diags)
}

func (s *Store) apply(snap *buffer.Snapshot, r buffer.Range, spans []Span, diags []Diagnostic) error {
	if err := s.current(snap); err != nil {
		s.log.Debug("discarding results: %v", err)
		return err
	}
	s.mu.Lock()
	if spans != nil {
		s.highlights = replaceIn(s.highlights, snap, r, anchorAll(snap, spans, func(sp Span) buffer.Range { return sp.Range }))
	}
	if diags != nil {
		s.diagnostics = replaceIn(s.diagnostics, snap, r, anchorAll(snap, diags, func(d Diagnostic) buffer.Range { return d.Range }))
	}
	update := Update{Buffer: s.buf.ID(), Highlights: len(s.highlights), Diagnostics: len(s.diagnostics)}
	s.mu.Unlock()
	s.publish(update)
	return nil
}

func anchorAll[T any](snap *buffer.Snapshot, items []T, rangeOf func(T) buffer.Range) []anchored[T] {
	out := make([]anchored[T], 0, len(items))
	for _, it := range items {
		rng := rangeOf(it)
		// Ranges from a server may split a grapheme cluster; widen them to
		// whole clusters.
		rng.Start = snap.ClipOffset(rng.Start, buffer.BiasLeft)
		rng.End = max(rng.Start, snap.ClipOffset(rng.End, buffer.BiasRight))
		out = append(out, anchored[T]{anchors: snap.AnchorRangeFor(rng), value: it})
	}
	return out
}

// replaceIn drops the items overlapping or inside r and appends fresh.
func replaceIn[T any](items []anchored[T], snap *buffer.Snapshot, r buffer.Range, fresh []anchored[T]) []anchored[T] {
	kept := items[:0:0]
	for _, it := range items {
		x := snap.ResolveRange(it.anchors)
		inside := x.Start >= r.Start && x.End <= r.End
		if inside || (x.Start < r.End && r.Start < x.End) {
			continue
		}
		kept = append(kept, it)
	}
	return append(kept, fresh...)
}

func (s *Store) publish(u Update) {
	if s.bus == nil {
		return
	}
	t := event.LSPTopic(u.Buffer, event.ActionUpdated)
	if err := s.bus.Publish(context.Background(), event.NewEvent(t, u, "lsp")); err != nil && !errors.Is(err, event.ErrBusNotRunning) {
		s.log.Warn("publish %s: %v", t, err)
	}
}

// Highlights returns the highlights resolved in the buffer's current text,
// ordered by position. Spans whose text was deleted are left out.
func (s *Store) Highlights() []Span {
	snap := s.buf.Snapshot()
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Span, 0, len(s.highlights))
	for _, h := range s.highlights {
		sp := h.value
		sp.Range = snap.ResolveRange(h.anchors)
		if !sp.Range.IsEmpty() {
			out = append(out, sp)
		}
	}
	slices.SortStableFunc(out, func(a, b Span) int { return compareRanges(a.Range, b.Range) })
	return out
}

// Diagnostics returns the diagnostics resolved in the buffer's current
// text, ordered by position.
func (s *Store) Diagnostics() []Diagnostic {
	snap := s.buf.Snapshot()
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Diagnostic, 0, len(s.diagnostics))
	for _, d := range s.diagnostics {
		v := d.value
		v.Range = snap.ResolveRange(d.anchors)
		out = append(out, v)
	}
	slices.SortStableFunc(out, func(a, b Diagnostic) int {
		return cmp.Or(compareRanges(a.Range, b.Range), cmp.Compare(a.Severity, b.Severity))
	})
	return out
}

// DiagnosticsAt returns the diagnostics whose range contains offset or
// ends at it.
func (s *Store) DiagnosticsAt(offset int) []Diagnostic {
	var out []Diagnostic
	for _, d := range s.Diagnostics() {
		if d.Range.Start <= offset && offset <= d.Range.End {
			out = append(out, d)
		}
	}
	return out
}

func compareRanges(a, b buffer.Range) int {
	return cmp.Or(cmp.Compare(a.Start, b.Start), cmp.Compare(a.End, b.End))
}

// Refresh asks conn for the highlights and diagnostics of the whole
// current text and stores them. Features the connector does not support
// are skipped. If the buffer changes meanwhile the results are discarded
// and ErrStale is returned.
func (s *Store) Refresh(ctx context.Context, conn Connector) error {
	snap := s.buf.Snapshot()
	all := buffer.Range{End: snap.Len()}

	spans, err := conn.Highlights(ctx, snap, all)
	if err != nil && !errors.Is(err, ErrNotSupported) {
		return fmt.Errorf("highlights: %w", err)
	}
	diags, err := conn.Diagnostics(ctx, snap, all)
	if err != nil && !errors.Is(err, ErrNotSupported) {
		return fmt.Errorf("diagnostics: %w", err)
	}
	if spans == nil {
		spans = []Span{}
	}
	if diags == nil {
		diags = []Diagnostic{}
	}
	return s.apply(snap, all, spans, diags)
}

// RequestCompletions asks conn for completions at offset in b's current
// text. The request is cancelled as soon as b changes, in which case
// ErrStale is returned; returned completions apply to b as it is now.
func RequestCompletions(ctx context.Context, conn Connector, b *buffer.Buffer, offset int) ([]Completion, error) {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	// Subscribing before taking the snapshot leaves no gap for a change
	// to slip through unnoticed.
	unsubscribe := b.Subscribe(func(buffer.ChangeEvent) { cancel(ErrStale) })
	defer unsubscribe()
	snap := b.Snapshot()

	items, err := conn.Completions(ctx, snap, offset)
	if cause := context.Cause(ctx); errors.Is(cause, ErrStale) || !snap.Version().Equal(b.Version()) {
		return nil, fmt.Errorf("completions at %d: %w", offset, ErrStale)
	}
	if err != nil {
		return nil, fmt.Errorf("completions at %d: %w", offset, err)
	}
	return items, nil
}
