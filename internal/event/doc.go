// Package event is the in-process event bus that connects buffers to the
// components that follow them.
//
// Events are published under dot-separated topics (see package topic) and
// delivered to subscriptions whose pattern matches:
//
//	bus := event.NewBus()
//	_ = bus.Start()
//	sub, _ := bus.Subscribe("buffer.*.changed", event.Typed(func(ctx context.Context, e event.Event[buffer.ChangeEvent]) error {
//		return nil
//	}))
//	defer sub.Cancel()
//
// Sync subscriptions run in the publisher's goroutine in priority order.
// Async subscriptions each own a mailbox drained by a single goroutine, so
// every subscription observes events in the order they were published. A
// full mailbox drops the event for that subscription and the drop is
// counted in Stats.
//
// Handler panics are recovered and reported as *PanicError.
package event
