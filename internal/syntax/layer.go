package syntax

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

// State is the parse state of a Layer.
type State int

const (
	StateUnparsed State = iota
	StateParsing
	StateParsed
	StateReparsing
)

func (s State) String() string {
	switch s {
	case StateUnparsed:
		return "unparsed"
	case StateParsing:
		return "parsing"
	case StateParsed:
		return "parsed"
	case StateReparsing:
		return "reparsing"
	default:
		return "unknown"
	}
}

// Snapshot is a parse result paired with the buffer snapshot it describes.
type Snapshot struct {
	tree  *Tree
	text  *buffer.Snapshot
	stats ParseStats
}

func (s *Snapshot) Tree() *Tree {
	return s.tree
}

// Text returns the buffer snapshot the tree was parsed from.
func (s *Snapshot) Text() *buffer.Snapshot {
	return s.text
}

func (s *Snapshot) Version() clock.Version {
	return s.text.Version()
}

// Stats describes the parse that produced the snapshot.
func (s *Snapshot) Stats() ParseStats {
	return s.stats
}

func (s *Snapshot) Highlights(r buffer.Range) []Span {
	return s.tree.Highlights(r)
}

func (s *Snapshot) NodeAt(offset int) NodeRef {
	return s.tree.NodeAt(offset)
}

// Fold is a block spanning more than one line.
type Fold struct {
	Range     buffer.Range
	StartLine int
	EndLine   int
}

// Folds returns the multi-line blocks, outermost first.
func (s *Snapshot) Folds() []Fold {
	var folds []Fold
	for _, b := range s.tree.Blocks() {
		start, err1 := s.text.OffsetToPoint(b.Range.Start)
		end, err2 := s.text.OffsetToPoint(b.Range.End)
		if err1 != nil || err2 != nil || end.Line == start.Line {
			continue
		}
		folds = append(folds, Fold{Range: b.Range, StartLine: start.Line, EndLine: end.Line})
	}
	return folds
}

// LayerOption configures a Layer.
type LayerOption func(*Layer)

// WithDebounce delays reparses so edits arriving within d coalesce.
func WithDebounce(d time.Duration) LayerOption {
	return func(l *Layer) { l.debounce = d }
}

// WithLayerLogger sets the logger.
func WithLayerLogger(log *logging.Logger) LayerOption {
	return func(l *Layer) { l.log = logging.OrNull(log) }
}

// WithBus publishes every accepted snapshot as an Event[*Snapshot] under
// the buffer's syntax topic.
func WithBus(bus *event.Bus) LayerOption {
	return func(l *Layer) { l.bus = bus }
}

// WithSizeLimit skips parsing for documents larger than n bytes; such
// documents get a tree with a single text node.
func WithSizeLimit(n int) LayerOption {
	return func(l *Layer) { l.sizeLimit = n }
}

// Layer keeps a syntax tree in step with a buffer. Edits move it to
// Reparsing and schedule a background parse keyed by the buffer version.
// Edits that arrive before the parse finishes cancel it and are folded
// into the next one. A result is only accepted if the buffer has not
// moved on; otherwise it is discarded. Readers always see the last
// accepted snapshot, which may be older than the buffer.
type Layer struct {
	buf       *buffer.Buffer
	parser    Parser
	debounce  time.Duration
	sizeLimit int
	bus       *event.Bus
	log       *logging.Logger

	mu      sync.Mutex
	state   State
	current *Snapshot
	// latest is the newest buffer snapshot seen; pending are the edits
	// from current's text to latest.
	latest    *buffer.Snapshot
	pending   []buffer.TextEdit
	resync    bool
	task      *task
	timer     *time.Timer
	changed   chan struct{}
	closed    bool
	unsub     func()
	tasks     sync.WaitGroup
	cancelled int
}

type task struct {
	cancel  context.CancelFunc
	version clock.Version
}

// NewLayer creates a layer for b. Call Start to begin parsing.
func NewLayer(b *buffer.Buffer, p Parser, opts ...LayerOption) *Layer {
	l := &Layer{
		buf:     b,
		parser:  p,
		log:     logging.Null,
		changed: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.log = l.log.WithComponent("syntax").WithField("buffer", b.ID().String()[:8])
	return l
}

// Start subscribes to the buffer and launches the initial parse.
func (l *Layer) Start() {
	unsub := l.buf.Subscribe(l.onChange)
	l.mu.Lock()
	defer l.mu.Unlock()
	l.unsub = unsub
	if l.latest == nil {
		l.latest = l.buf.Snapshot()
	}
	l.setState(StateParsing)
	l.launch()
}

// Close stops the layer and waits for a running parse to return.
func (l *Layer) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	if l.timer != nil {
		l.timer.Stop()
	}
	if l.task != nil {
		l.task.cancel()
		l.task = nil
	}
	unsub := l.unsub
	l.mu.Unlock()
	if unsub != nil {
		unsub()
	}
	l.tasks.Wait()
}

func (l *Layer) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Snapshot returns the last accepted parse, or nil before the first one.
func (l *Layer) Snapshot() *Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current
}

// Cancelled reports how many parses were cancelled or discarded.
func (l *Layer) Cancelled() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cancelled
}

// WaitIdle blocks until the layer has parsed the newest buffer version it
// has seen.
func (l *Layer) WaitIdle(ctx context.Context) (*Snapshot, error) {
	for {
		l.mu.Lock()
		if l.closed {
			l.mu.Unlock()
			return nil, errors.New("syntax: layer closed")
		}
		if l.state == StateParsed {
			s := l.current
			l.mu.Unlock()
			return s, nil
		}
		ch := l.changed
		l.mu.Unlock()
		select {
		case <-ch:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (l *Layer) onChange(ev buffer.ChangeEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	if l.latest != nil {
		if l.latest.Version().ObservedAll(ev.NewVersion) {
			return
		}
		if !ev.OldVersion.Equal(l.latest.Version()) {
			l.resync = true
		}
	}
	l.latest = ev.Snapshot
	l.pending = append(l.pending, ev.Edits...)
	if l.task != nil {
		l.task.cancel()
		l.task = nil
		l.cancelled++
		l.log.Debug("parse superseded by %s", ev.NewVersion)
	}
	if l.state == StateParsed {
		l.setState(StateReparsing)
	}
	if l.debounce > 0 {
		if l.timer != nil {
			l.timer.Stop()
		}
		l.timer = time.AfterFunc(l.debounce, func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			if !l.closed && l.task == nil && l.state != StateParsed {
				l.launch()
			}
		})
		return
	}
	l.launch()
}

// launch starts a parse of latest. Called with l.mu held.
func (l *Layer) launch() {
	target := l.latest
	var (
		old   *Tree
		edits []buffer.TextEdit
	)
	if l.current != nil && !l.resync {
		old = l.current.tree
		edits = append([]buffer.TextEdit(nil), l.pending...)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t := &task{cancel: cancel, version: target.Version()}
	l.task = t
	l.tasks.Add(1)
	go func() {
		defer l.tasks.Done()
		defer cancel()
		l.run(ctx, t, target, old, edits)
	}()
}

func (l *Layer) run(ctx context.Context, t *task, target *buffer.Snapshot, old *Tree, edits []buffer.TextEdit) {
	var (
		tree  *Tree
		stats ParseStats
		err   error
	)
	if l.sizeLimit > 0 && target.Len() > l.sizeLimit {
		tree, stats = oversize(target.Len()), ParseStats{Full: true, Region: buffer.Range{End: target.Len()}}
	} else {
		tree, stats, err = l.parser.Parse(ctx, target.Text(), old, edits)
	}

	l.mu.Lock()
	if err != nil || l.task != t || !t.version.Equal(l.latest.Version()) {
		if l.task == t {
			l.task = nil
		}
		l.mu.Unlock()
		l.log.Debug("discarded parse of %s: %v", t.version, err)
		return
	}
	l.task = nil
	l.current = &Snapshot{tree: tree, text: target, stats: stats}
	l.pending = nil
	l.resync = false
	l.setState(StateParsed)
	snap := l.current
	l.mu.Unlock()

	l.log.Debug("parsed %s: %d bytes, full=%v", t.version, stats.ReparsedBytes, stats.Full)
	if l.bus != nil {
		ev := event.NewEvent(event.SyntaxTopic(target.ID(), event.ActionParsed), snap, "syntax")
		if err := l.bus.Publish(context.Background(), ev); err != nil && !errors.Is(err, event.ErrBusNotRunning) {
			l.log.Warn("publish parse result: %v", err)
		}
	}
}

func oversize(n int) *Tree {
	root := &Node{kind: KindRoot, length: n}
	if n > 0 {
		root.children = []*Node{{kind: KindText, length: n}}
	}
	return &Tree{root: root, language: "oversize"}
}

// setState must be called with l.mu held.
func (l *Layer) setState(s State) {
	if l.state == s {
		return
	}
	l.state = s
	close(l.changed)
	l.changed = make(chan struct{})
}
