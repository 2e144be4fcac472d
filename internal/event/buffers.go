package event

import (
	"context"
	"errors"

	"github.com/dshills/strand/internal/buffer"
	"github.com/dshills/strand/internal/event/topic"
)

// Topic names published by strand components.
const (
	ActionChanged = "changed"
	ActionParsed  = "parsed"
	ActionUpdated = "updated"
)

// BufferTopic returns "buffer.<id>.<action>".
func BufferTopic(id buffer.ID, action string) topic.Topic {
	return topic.Join("buffer", id.String(), action)
}

// SyntaxTopic returns "syntax.<id>.<action>".
func SyntaxTopic(id buffer.ID, action string) topic.Topic {
	return topic.Join("syntax", id.String(), action)
}

// DiffTopic returns "diff.<id>.<action>".
func DiffTopic(id buffer.ID, action string) topic.Topic {
	return topic.Join("diff", id.String(), action)
}

// LSPTopic returns "lsp.<id>.<action>".
func LSPTopic(id buffer.ID, action string) topic.Topic {
	return topic.Join("lsp", id.String(), action)
}

// WorkspaceFileChanged is published when a watched file changes on disk.
const WorkspaceFileChanged topic.Topic = "workspace.file.changed"

// BridgeBuffer republishes every change of b on the bus as an
// Event[buffer.ChangeEvent] under BufferTopic(b.ID(), ActionChanged).
// Changes are published from the buffer's observer, so subscribers see
// them in the order the buffer applied them. The returned function
// detaches the bridge.
func BridgeBuffer(bus *Bus, b *buffer.Buffer) (detach func()) {
	t := BufferTopic(b.ID(), ActionChanged)
	return b.Subscribe(func(ev buffer.ChangeEvent) {
		err := bus.Publish(context.Background(), NewEvent(t, ev, "buffer"))
		if err != nil && !errors.Is(err, ErrBusNotRunning) {
			bus.log.Warn("publish %s: %v", t, err)
		}
	})
}
