package event

import (
	"errors"
	"fmt"
)

var (
	ErrBusNotRunning     = errors.New("event bus is not running")
	ErrBusAlreadyRunning = errors.New("event bus is already running")
	// ErrQueueFull is reported when an async mailbox is full and the event
	// was dropped for that subscription.
	ErrQueueFull            = errors.New("event queue is full")
	ErrInvalidEvent         = errors.New("invalid event")
	ErrInvalidTopic         = errors.New("invalid topic")
	ErrNilHandler           = errors.New("handler cannot be nil")
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrShutdownTimeout      = errors.New("shutdown timeout exceeded")
)

// HandlerError wraps an error returned by a handler.
type HandlerError struct {
	SubscriptionID string
	Topic          string
	Err            error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("handler %s on %s: %v", e.SubscriptionID, e.Topic, e.Err)
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}

// PanicError records a recovered handler panic.
type PanicError struct {
	SubscriptionID string
	Value          any
	Stack          []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("handler %s panicked: %v", e.SubscriptionID, e.Value)
}
