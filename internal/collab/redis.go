package collab

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/dshills/strand/internal/buffer"
	"github.com/dshills/strand/internal/logging"
)

// DefaultChannelPrefix prefixes the pub/sub channel of every document.
const DefaultChannelPrefix = "strand:doc:"

// Channel returns the pub/sub channel of doc.
func Channel(prefix string, doc buffer.ID) string {
	return prefix + doc.String()
}

// RedisTransport relays envelopes through one Redis pub/sub channel per
// document. Redis echoes the sender's own messages back; peers ignore
// them. Messages published while a subscriber is away are lost, so peers
// catch up with hello and sync requests.
type RedisTransport struct {
	client  redis.UniversalClient
	pubsub  *redis.PubSub
	channel string
	doc     buffer.ID
	log     *logging.Logger

	out  chan Envelope
	done chan struct{}
	once sync.Once
}

// NewRedisTransport subscribes to the channel of doc. The client stays
// owned by the caller.
func NewRedisTransport(ctx context.Context, client redis.UniversalClient, prefix string, doc buffer.ID, opts ...Option) (*RedisTransport, error) {
	s := newSettings(opts)
	if prefix == "" {
		prefix = DefaultChannelPrefix
	}
	channel := Channel(prefix, doc)
	pubsub := client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("collab: subscribe %s: %w", channel, err)
	}
	t := &RedisTransport{
		client:  client,
		pubsub:  pubsub,
		channel: channel,
		doc:     doc,
		log:     s.log.WithComponent("collab.redis").WithField("channel", channel),
		out:     make(chan Envelope, s.queue),
		done:    make(chan struct{}),
	}
	go t.pump(pubsub.Channel(redis.WithChannelSize(s.queue)))
	return t, nil
}

func (t *RedisTransport) pump(in <-chan *redis.Message) {
	defer close(t.out)
	for {
		select {
		case msg, ok := <-in:
			if !ok {
				return
			}
			e, err := Decode([]byte(msg.Payload))
			if err != nil {
				t.log.Warn("discarding message: %v", err)
				continue
			}
			select {
			case t.out <- e:
			case <-t.done:
				return
			}
		case <-t.done:
			return
		}
	}
}

// Send publishes e on the document channel.
func (t *RedisTransport) Send(ctx context.Context, e Envelope) error {
	select {
	case <-t.done:
		return ErrTransportClosed
	default:
	}
	if e.Buffer != t.doc {
		return ErrWrongDocument
	}
	data, err := Encode(e)
	if err != nil {
		return err
	}
	if err := t.client.Publish(ctx, t.channel, data).Err(); err != nil {
		return fmt.Errorf("collab: publish %s: %w", e.Kind, err)
	}
	return nil
}

// Receive returns the delivery channel.
func (t *RedisTransport) Receive() <-chan Envelope {
	return t.out
}

// Close unsubscribes.
func (t *RedisTransport) Close() error {
	var err error
	t.once.Do(func() {
		close(t.done)
		err = t.pubsub.Close()
	})
	return err
}
