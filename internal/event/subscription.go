package event

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/dshills/strand/internal/event/topic"
)

// SubscriptionState is the lifecycle state of a subscription.
type SubscriptionState int32

const (
	SubscriptionActive SubscriptionState = iota
	SubscriptionPaused
	SubscriptionCancelled
)

func (s SubscriptionState) String() string {
	switch s {
	case SubscriptionActive:
		return "active"
	case SubscriptionPaused:
		return "paused"
	case SubscriptionCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

type subscriptionConfig struct {
	priority Priority
	mode     DeliveryMode
	filter   FilterFunc
	once     bool
}

// SubscriptionOption configures a subscription.
type SubscriptionOption func(*subscriptionConfig)

func WithPriority(p Priority) SubscriptionOption {
	return func(c *subscriptionConfig) { c.priority = p }
}

func WithDeliveryMode(m DeliveryMode) SubscriptionOption {
	return func(c *subscriptionConfig) { c.mode = m }
}

// WithFilter skips events for which f returns false.
func WithFilter(f FilterFunc) SubscriptionOption {
	return func(c *subscriptionConfig) { c.filter = f }
}

// WithOnce cancels the subscription after its first delivered event.
func WithOnce() SubscriptionOption {
	return func(c *subscriptionConfig) { c.once = true }
}

// Subscription is a handler registered for a topic pattern.
type Subscription struct {
	id      string
	pattern topic.Topic
	handler Handler
	cfg     subscriptionConfig
	seq     uint64
	bus     *Bus

	state   atomic.Int32
	mailbox chan envelope
	quit    chan struct{}
	stop    sync.Once
}

type envelope struct {
	topic topic.Topic
	event any
}

func newSubscription(b *Bus, pattern topic.Topic, h Handler, seq uint64, opts []SubscriptionOption) *Subscription {
	cfg := subscriptionConfig{priority: PriorityNormal}
	for _, opt := range opts {
		opt(&cfg)
	}
	s := &Subscription{
		id:      uuid.NewString(),
		pattern: pattern,
		handler: h,
		cfg:     cfg,
		seq:     seq,
		bus:     b,
		quit:    make(chan struct{}),
	}
	if cfg.mode == DeliveryAsync {
		s.mailbox = make(chan envelope, b.cfg.queueSize)
	}
	return s
}

func (s *Subscription) ID() string {
	return s.id
}

// Topic returns the subscribed pattern.
func (s *Subscription) Topic() topic.Topic {
	return s.pattern
}

func (s *Subscription) State() SubscriptionState {
	return SubscriptionState(s.state.Load())
}

func (s *Subscription) IsActive() bool {
	return s.State() == SubscriptionActive
}

// Pause stops delivery until Resume. Events published meanwhile are not
// delivered to this subscription.
func (s *Subscription) Pause() {
	s.state.CompareAndSwap(int32(SubscriptionActive), int32(SubscriptionPaused))
}

func (s *Subscription) Resume() {
	s.state.CompareAndSwap(int32(SubscriptionPaused), int32(SubscriptionActive))
}

// Cancel removes the subscription from its bus. It is idempotent.
func (s *Subscription) Cancel() {
	s.bus.remove(s)
}

// claim moves an active subscription forward for one delivery. A once
// subscription is cancelled by the first claim so no second event gets
// through, even under concurrent publishes.
func (s *Subscription) claim() bool {
	if !s.cfg.once {
		return s.IsActive()
	}
	return s.state.CompareAndSwap(int32(SubscriptionActive), int32(SubscriptionCancelled))
}

func (s *Subscription) cancel() {
	s.state.Store(int32(SubscriptionCancelled))
	s.stop.Do(func() { close(s.quit) })
}
