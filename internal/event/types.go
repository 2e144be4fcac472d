package event

import "context"

// Priority orders handlers for the same event. Lower runs first.
type Priority int

const (
	// PriorityCritical is for consumers that keep derived state in step
	// with a buffer, such as the syntax layer and diff overlay.
	PriorityCritical Priority = 0
	PriorityHigh     Priority = 100
	PriorityNormal   Priority = 200
	// PriorityLow is for logging and collaboration fan-out.
	PriorityLow Priority = 300
)

func (p Priority) String() string {
	switch {
	case p <= PriorityCritical:
		return "critical"
	case p <= PriorityHigh:
		return "high"
	case p <= PriorityNormal:
		return "normal"
	default:
		return "low"
	}
}

// DeliveryMode selects how a subscription receives events.
type DeliveryMode int

const (
	// DeliverySync runs the handler in the publisher's goroutine.
	DeliverySync DeliveryMode = iota
	// DeliveryAsync queues the event on the subscription's mailbox. Each
	// mailbox is drained by one goroutine, so a subscription sees events
	// in publish order.
	DeliveryAsync
)

func (m DeliveryMode) String() string {
	switch m {
	case DeliverySync:
		return "sync"
	case DeliveryAsync:
		return "async"
	default:
		return "unknown"
	}
}

// Handler processes events. The event is type-erased; handlers assert.
type Handler interface {
	Handle(ctx context.Context, event any) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, event any) error

func (f HandlerFunc) Handle(ctx context.Context, event any) error {
	return f(ctx, event)
}

// TypedHandlerFunc handles events with a known payload type.
type TypedHandlerFunc[T any] func(ctx context.Context, event Event[T]) error

// Typed converts fn to a Handler that ignores events of other payload types.
func Typed[T any](fn TypedHandlerFunc[T]) Handler {
	return HandlerFunc(func(ctx context.Context, event any) error {
		if e, ok := event.(Event[T]); ok {
			return fn(ctx, e)
		}
		return nil
	})
}

// FilterFunc returns false for events a subscription should skip.
type FilterFunc func(event any) bool

// PanicHandler is told about recovered handler panics.
type PanicHandler func(event any, sub *Subscription, recovered any)

// Stats is a point-in-time view of bus counters.
type Stats struct {
	EventsPublished   uint64
	EventsDelivered   uint64
	EventsDropped     uint64
	HandlerErrors     uint64
	HandlerPanics     uint64
	ActiveSubscribers int
	QueueDepth        int
}
