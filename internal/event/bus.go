package event

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/dshills/strand/internal/event/topic"
	"github.com/dshills/strand/internal/logging"
)

// Bus routes published events to subscriptions whose pattern matches the
// event topic. Handlers for one event run in priority order; ties keep
// subscription order.
type Bus struct {
	cfg busConfig
	log *logging.Logger

	mu      sync.RWMutex
	subs    []*Subscription
	seq     uint64
	done    chan struct{}
	workers sync.WaitGroup

	running atomic.Bool
	paused  atomic.Bool

	published     atomic.Uint64
	delivered     atomic.Uint64
	dropped       atomic.Uint64
	handlerErrors atomic.Uint64
	handlerPanics atomic.Uint64
}

// NewBus creates a stopped bus.
func NewBus(opts ...BusOption) *Bus {
	cfg := defaultBusConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Bus{cfg: cfg, log: cfg.logger.WithComponent("event")}
}

// Start begins delivery. Async subscriptions get their workers here.
func (b *Bus) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running.Load() {
		return ErrBusAlreadyRunning
	}
	b.done = make(chan struct{})
	b.running.Store(true)
	for _, s := range b.subs {
		if s.mailbox != nil {
			b.startWorker(s)
		}
	}
	b.log.Debug("started with %d subscriptions", len(b.subs))
	return nil
}

// Stop rejects new publishes and waits for async mailboxes to drain.
func (b *Bus) Stop(ctx context.Context) error {
	b.mu.Lock()
	if !b.running.Load() {
		b.mu.Unlock()
		return ErrBusNotRunning
	}
	b.running.Store(false)
	close(b.done)
	b.mu.Unlock()

	finished := make(chan struct{})
	go func() {
		b.workers.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrShutdownTimeout, ctx.Err())
	}
}

// Pause drops published events until Resume.
func (b *Bus) Pause() {
	b.paused.Store(true)
}

func (b *Bus) Resume() {
	b.paused.Store(false)
}

func (b *Bus) IsRunning() bool {
	return b.running.Load()
}

func (b *Bus) IsPaused() bool {
	return b.paused.Load()
}

// Subscribe registers h for topics matching pattern.
func (b *Bus) Subscribe(pattern topic.Topic, h Handler, opts ...SubscriptionOption) (*Subscription, error) {
	if !pattern.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTopic, pattern)
	}
	if h == nil {
		return nil, ErrNilHandler
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	s := newSubscription(b, pattern, h, b.seq, opts)
	i, _ := slices.BinarySearchFunc(b.subs, s, func(a, t *Subscription) int {
		if a.cfg.priority != t.cfg.priority {
			return int(a.cfg.priority - t.cfg.priority)
		}
		return int(a.seq) - int(t.seq)
	})
	b.subs = slices.Insert(b.subs, i, s)
	if s.mailbox != nil && b.running.Load() {
		b.startWorker(s)
	}
	return s, nil
}

// SubscribeFunc is Subscribe for a plain function.
func (b *Bus) SubscribeFunc(pattern topic.Topic, fn HandlerFunc, opts ...SubscriptionOption) (*Subscription, error) {
	if fn == nil {
		return nil, ErrNilHandler
	}
	return b.Subscribe(pattern, fn, opts...)
}

// Unsubscribe cancels s.
func (b *Bus) Unsubscribe(s *Subscription) error {
	if s == nil || !b.unregister(s) {
		return ErrSubscriptionNotFound
	}
	s.cancel()
	return nil
}

func (b *Bus) remove(s *Subscription) {
	b.unregister(s)
	s.cancel()
}

func (b *Bus) unregister(s *Subscription) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	i := slices.Index(b.subs, s)
	if i < 0 {
		return false
	}
	b.subs = slices.Delete(b.subs, i, i+1)
	return true
}

// Publish delivers event to sync subscriptions before returning and queues
// it for async ones. The returned error joins handler errors, recovered
// panics and full mailboxes.
func (b *Bus) Publish(ctx context.Context, event any) error {
	return b.publish(ctx, event, false)
}

// PublishSync delivers event to every matching subscription in the
// caller's goroutine, async ones included.
func (b *Bus) PublishSync(ctx context.Context, event any) error {
	return b.publish(ctx, event, true)
}

func (b *Bus) publish(ctx context.Context, event any, forceSync bool) error {
	tp, ok := event.(TopicProvider)
	if !ok {
		return fmt.Errorf("%w: %T does not name a topic", ErrInvalidEvent, event)
	}
	t := tp.EventTopic()
	if !t.IsValid() || t.IsWildcard() {
		return fmt.Errorf("%w: %q", ErrInvalidTopic, t)
	}
	if !b.running.Load() {
		return ErrBusNotRunning
	}
	b.published.Add(1)
	if b.paused.Load() {
		b.dropped.Add(1)
		return nil
	}

	b.mu.RLock()
	var matched []*Subscription
	for _, s := range b.subs {
		if t.Matches(s.pattern) {
			matched = append(matched, s)
		}
	}
	b.mu.RUnlock()

	var errs []error
	for _, s := range matched {
		if s.cfg.filter != nil && !s.cfg.filter(event) {
			continue
		}
		if !s.claim() {
			continue
		}
		if s.cfg.once {
			b.unregister(s)
		}
		if forceSync || s.mailbox == nil {
			if err := b.invoke(ctx, s, t, event); err != nil {
				errs = append(errs, err)
			}
			continue
		}
		select {
		case s.mailbox <- envelope{topic: t, event: event}:
		default:
			b.dropped.Add(1)
			b.log.Warn("mailbox full, dropped %s for %s", t, s.id)
			errs = append(errs, fmt.Errorf("%w: subscription %s", ErrQueueFull, s.id))
		}
	}
	return errors.Join(errs...)
}

func (b *Bus) invoke(ctx context.Context, s *Subscription, t topic.Topic, event any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			b.handlerPanics.Add(1)
			b.log.Error("handler %s on %s panicked: %v", s.id, t, r)
			if b.cfg.panicHandler != nil {
				b.cfg.panicHandler(event, s, r)
			}
			err = &PanicError{SubscriptionID: s.id, Value: r, Stack: debug.Stack()}
		}
		if s.cfg.once {
			s.cancel()
		}
	}()

	b.delivered.Add(1)
	if herr := s.handler.Handle(ctx, event); herr != nil {
		b.handlerErrors.Add(1)
		return &HandlerError{SubscriptionID: s.id, Topic: t.String(), Err: herr}
	}
	return nil
}

// startWorker must be called with b.mu held.
func (b *Bus) startWorker(s *Subscription) {
	done := b.done
	b.workers.Add(1)
	go func() {
		defer b.workers.Done()
		for {
			select {
			case env := <-s.mailbox:
				b.deliverAsync(s, env)
			case <-s.quit:
				return
			case <-done:
				for {
					select {
					case env := <-s.mailbox:
						b.deliverAsync(s, env)
					default:
						return
					}
				}
			}
		}
	}()
}

func (b *Bus) deliverAsync(s *Subscription, env envelope) {
	ctx := context.Background()
	if b.cfg.handlerTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.cfg.handlerTimeout)
		defer cancel()
	}
	if err := b.invoke(ctx, s, env.topic, env.event); err != nil {
		b.log.Warn("async delivery: %v", err)
	}
}

// Stats returns current counters.
func (b *Bus) Stats() Stats {
	st := Stats{
		EventsPublished: b.published.Load(),
		EventsDelivered: b.delivered.Load(),
		EventsDropped:   b.dropped.Load(),
		HandlerErrors:   b.handlerErrors.Load(),
		HandlerPanics:   b.handlerPanics.Load(),
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.subs {
		if s.IsActive() {
			st.ActiveSubscribers++
		}
		if s.mailbox != nil {
			st.QueueDepth += len(s.mailbox)
		}
	}
	return st
}
