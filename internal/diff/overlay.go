package diff

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dshills/strand/internal/buffer"
	"github.com/dshills/strand/internal/clock"
	"github.com/dshills/strand/internal/event"
	"github.com/dshills/strand/internal/logging"
)

// Option configures an Overlay.
type Option func(*Overlay)

// WithIgnoreWhitespace matches lines that differ only in whitespace.
func WithIgnoreWhitespace(on bool) Option {
	return func(o *Overlay) { o.opts.ignoreSpace = on }
}

// WithInline controls whether modified hunks carry inline spans.
func WithInline(on bool) Option {
	return func(o *Overlay) { o.opts.inline = on }
}

// WithMaxLines makes Snapshot fail with ErrTooLarge when either side has
// more than n lines. Zero means no limit.
func WithMaxLines(n int) Option {
	return func(o *Overlay) { o.opts.maxLines = n }
}

func WithLogger(log *logging.Logger) Option {
	return func(o *Overlay) { o.log = logging.OrNull(log) }
}

// WithBus publishes every background result as an Event[*Snapshot] under
// the buffer's diff topic.
func WithBus(bus *event.Bus) Option {
	return func(o *Overlay) { o.bus = bus }
}

// WithAutoRecompute recomputes in the background after edits, waiting d
// for more edits to arrive first.
func WithAutoRecompute(d time.Duration) Option {
	return func(o *Overlay) {
		o.auto = true
		o.debounce = d
	}
}

// Overlay tracks the line status of a buffer against a reference text.
// Snapshot computes lazily and caches the result; after edits only the
// lines around them are diffed again. With WithAutoRecompute the overlay
// also recomputes in the background, discarding results the buffer has
// moved past.
type Overlay struct {
	buf      *buffer.Buffer
	opts     settings
	auto     bool
	debounce time.Duration
	bus      *event.Bus
	log      *logging.Logger

	mu      sync.Mutex
	ref     *reference
	current *Snapshot
	// latest is the newest buffer snapshot seen; pending are the edits
	// from current's text to latest.
	latest    *buffer.Snapshot
	pending   []buffer.TextEdit
	resync    bool
	gaps      int
	started   bool
	closed    bool
	task      *task
	timer     *time.Timer
	unsub     func()
	tasks     sync.WaitGroup
	changed   chan struct{}
	discarded int
}

type task struct {
	cancel  context.CancelFunc
	version clock.Version
}

// New creates an overlay for b. It tracks edits once started.
func New(b *buffer.Buffer, opts ...Option) *Overlay {
	o := &Overlay{
		buf:     b,
		opts:    settings{inline: true},
		log:     logging.Null,
		changed: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.log = o.log.WithComponent("diff").WithField("buffer", b.ID().String()[:8])
	return o
}

// Start subscribes to the buffer.
func (o *Overlay) Start() {
	unsub := o.buf.Subscribe(o.onChange)
	o.mu.Lock()
	defer o.mu.Unlock()
	o.unsub = unsub
	o.started = true
	o.latest = o.buf.Snapshot()
	// Edits before Start were not tracked.
	o.current = nil
	o.schedule()
}

// Close stops tracking and waits for a background computation to return.
func (o *Overlay) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	if o.timer != nil {
		o.timer.Stop()
	}
	if o.task != nil {
		o.task.cancel()
		o.task = nil
	}
	unsub := o.unsub
	close(o.changed)
	o.mu.Unlock()
	if unsub != nil {
		unsub()
	}
	o.tasks.Wait()
}

// SetReference replaces the reference text. The next snapshot diffs the
// whole buffer.
func (o *Overlay) SetReference(text string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ref = newReference(text, o.opts.ignoreSpace)
	o.schedule()
}

// DiffAgainst sets the reference and returns the resulting snapshot.
func (o *Overlay) DiffAgainst(text string) (*Snapshot, error) {
	o.SetReference(text)
	return o.Snapshot()
}

// Discarded reports how many background results were cancelled or
// dropped as stale.
func (o *Overlay) Discarded() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.discarded
}

// Snapshot returns the statuses for the newest buffer state the overlay
// has seen, computing them if the cached snapshot is out of date.
func (o *Overlay) Snapshot() (*Snapshot, error) {
	return o.SnapshotContext(context.Background())
}

// SnapshotContext is Snapshot with cancellation.
func (o *Overlay) SnapshotContext(ctx context.Context) (*Snapshot, error) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil, ErrClosed
	}
	if o.ref == nil {
		o.mu.Unlock()
		return nil, ErrNoReference
	}
	if s := o.freshLocked(); s != nil {
		o.mu.Unlock()
		return s, nil
	}
	j, mark := o.prepareLocked()
	o.mu.Unlock()

	s, err := compute(ctx, j)
	if err != nil {
		return nil, err
	}
	o.mu.Lock()
	o.acceptLocked(mark, s)
	o.mu.Unlock()
	return s, nil
}

// WaitFresh waits for a background computation to catch up with the
// newest buffer state the overlay has seen.
func (o *Overlay) WaitFresh(ctx context.Context) (*Snapshot, error) {
	for {
		o.mu.Lock()
		if o.closed {
			o.mu.Unlock()
			return nil, ErrClosed
		}
		if s := o.freshLocked(); s != nil {
			o.mu.Unlock()
			return s, nil
		}
		ch := o.changed
		o.mu.Unlock()
		select {
		case <-ch:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (o *Overlay) target() *buffer.Snapshot {
	if o.started {
		return o.latest
	}
	return o.buf.Snapshot()
}

func (o *Overlay) freshLocked() *Snapshot {
	if c := o.current; c != nil && c.ref == o.ref && c.Version().Equal(o.target().Version()) {
		return c
	}
	return nil
}

// mark records what a job was prepared from, so its result can be
// checked against the overlay state when it completes.
type mark struct {
	prev     *Snapshot
	ref      *reference
	consumed int
	gaps     int
}

func (o *Overlay) prepareLocked() (job, mark) {
	j := job{target: o.target(), ref: o.ref, opts: o.opts}
	m := mark{prev: o.current, ref: o.ref, consumed: len(o.pending), gaps: o.gaps}
	if o.started && !o.resync && o.current != nil {
		j.base = o.current
		j.edits = append([]buffer.TextEdit(nil), o.pending...)
	}
	return j, m
}

// acceptLocked caches s if nothing was cached since its job was
// prepared.
func (o *Overlay) acceptLocked(m mark, s *Snapshot) bool {
	if o.closed || o.current != m.prev || o.ref != m.ref {
		return false
	}
	o.current = s
	if o.started {
		// A gap since m was taken reset pending; resync stays set.
		if o.gaps == m.gaps {
			o.pending = append([]buffer.TextEdit(nil), o.pending[m.consumed:]...)
			o.resync = false
		}
	}
	close(o.changed)
	o.changed = make(chan struct{})
	return true
}

func (o *Overlay) onChange(ev buffer.ChangeEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	if o.latest != nil {
		if o.latest.Version().ObservedAll(ev.NewVersion) {
			return
		}
		if !ev.OldVersion.Equal(o.latest.Version()) {
			o.log.Debug("version gap before %s, diffing everything", ev.NewVersion)
			o.dropPending()
		}
	}
	o.latest = ev.Snapshot
	o.pending = append(o.pending, ev.Edits...)
	if len(o.pending) > maxTrackedEdits {
		o.dropPending()
	}
	if o.task != nil {
		o.task.cancel()
		o.task = nil
		o.discarded++
	}
	o.schedule()
}

func (o *Overlay) dropPending() {
	o.pending = nil
	o.resync = true
	o.gaps++
}

// schedule starts or debounces a background computation. Called with
// o.mu held.
func (o *Overlay) schedule() {
	if !o.auto || !o.started || o.closed || o.ref == nil {
		return
	}
	if o.debounce <= 0 {
		o.launch()
		return
	}
	if o.timer != nil {
		o.timer.Stop()
	}
	o.timer = time.AfterFunc(o.debounce, func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		if !o.closed && o.task == nil && o.freshLocked() == nil {
			o.launch()
		}
	})
}

func (o *Overlay) launch() {
	if o.task != nil {
		o.task.cancel()
		o.discarded++
	}
	j, m := o.prepareLocked()
	ctx, cancel := context.WithCancel(context.Background())
	t := &task{cancel: cancel, version: j.target.Version()}
	o.task = t
	o.tasks.Add(1)
	go func() {
		defer o.tasks.Done()
		defer cancel()
		o.run(ctx, t, j, m)
	}()
}

func (o *Overlay) run(ctx context.Context, t *task, j job, m mark) {
	s, err := compute(ctx, j)

	o.mu.Lock()
	if o.task != t {
		// Superseded; counted when it was cancelled.
		o.mu.Unlock()
		return
	}
	o.task = nil
	if err != nil || !t.version.Equal(o.latest.Version()) || !o.acceptLocked(m, s) {
		o.discarded++
		o.mu.Unlock()
		o.log.Debug("discarded diff of %s: %v", t.version, err)
		return
	}
	o.mu.Unlock()

	o.log.Debug("diffed %s: %d hunks, %d lines in %d windows", t.version, len(s.hunks), s.stats.Lines, s.stats.Windows)
	if o.bus != nil {
		ev := event.NewEvent(event.DiffTopic(j.target.ID(), event.ActionUpdated), s, "diff")
		if err := o.bus.Publish(context.Background(), ev); err != nil && !errors.Is(err, event.ErrBusNotRunning) {
			o.log.Warn("publish diff result: %v", err)
		}
	}
}
