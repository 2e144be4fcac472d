package event

import (
	"time"

	"github.com/google/uuid"

	"github.com/dshills/strand/internal/event/topic"
)

// Event is a typed payload published under a topic.
type Event[T any] struct {
	Type     topic.Topic
	Payload  T
	Metadata Metadata
}

// Metadata is attached to every event.
type Metadata struct {
	ID        string
	Timestamp time.Time
	// Source names the component that published the event.
	Source string
	// CausationID links to the event that caused this one.
	CausationID string
}

// NewEvent creates an event with a fresh id.
func NewEvent[T any](t topic.Topic, payload T, source string) Event[T] {
	return Event[T]{
		Type:    t,
		Payload: payload,
		Metadata: Metadata{
			ID:        uuid.NewString(),
			Timestamp: time.Now(),
			Source:    source,
		},
	}
}

// EventTopic returns the event's topic.
func (e Event[T]) EventTopic() topic.Topic {
	return e.Type
}

// EventMetadata returns the event's metadata.
func (e Event[T]) EventMetadata() Metadata {
	return e.Metadata
}

// WithCausation returns a copy of e caused by the event with the given id.
func (e Event[T]) WithCausation(id string) Event[T] {
	e.Metadata.CausationID = id
	return e
}

// TopicProvider is implemented by anything the bus can publish.
type TopicProvider interface {
	EventTopic() topic.Topic
}
