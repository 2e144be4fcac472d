package collab

import (
	"context"
	"math/rand/v2"
	"sync"
)

// MemoryNetwork connects in-process transports. It can reorder and
// duplicate envelopes to exercise at-least-once, out-of-order delivery.
type MemoryNetwork struct {
	mu        sync.Mutex
	endpoints []*MemoryTransport

	rngMu     sync.Mutex
	rng       *rand.Rand
	reorder   bool
	duplicate float64
}

// MemoryOption configures a MemoryNetwork.
type MemoryOption func(*MemoryNetwork)

// WithReordering delivers queued envelopes in random order, drawn from a
// generator seeded with seed.
func WithReordering(seed uint64) MemoryOption {
	return func(n *MemoryNetwork) {
		n.reorder = true
		n.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}
}

// WithDuplication delivers each envelope twice with probability p.
func WithDuplication(p float64) MemoryOption {
	return func(n *MemoryNetwork) {
		n.duplicate = p
	}
}

// NewMemoryNetwork creates an empty network.
func NewMemoryNetwork(opts ...MemoryOption) *MemoryNetwork {
	n := &MemoryNetwork{rng: rand.New(rand.NewPCG(1, 2))}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Join adds a participant.
func (n *MemoryNetwork) Join() *MemoryTransport {
	t := &MemoryTransport{
		net:  n,
		out:  make(chan Envelope),
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	n.mu.Lock()
	n.endpoints = append(n.endpoints, t)
	n.mu.Unlock()
	go t.deliver()
	return t
}

func (n *MemoryNetwork) broadcast(from *MemoryTransport, e Envelope) {
	n.mu.Lock()
	endpoints := n.endpoints
	n.mu.Unlock()
	for _, t := range endpoints {
		if t == from {
			continue
		}
		t.enqueue(e)
		if n.duplicate > 0 && n.float() < n.duplicate {
			t.enqueue(e)
		}
	}
}

func (n *MemoryNetwork) float() float64 {
	n.rngMu.Lock()
	defer n.rngMu.Unlock()
	return n.rng.Float64()
}

func (n *MemoryNetwork) leave(t *MemoryTransport) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i, e := range n.endpoints {
		if e == t {
			n.endpoints = append(n.endpoints[:i:i], n.endpoints[i+1:]...)
			return
		}
	}
}

// pick removes the next envelope to deliver from queue.
func (n *MemoryNetwork) pick(queue []Envelope) (Envelope, []Envelope) {
	i := 0
	if n.reorder {
		n.rngMu.Lock()
		i = n.rng.IntN(len(queue))
		n.rngMu.Unlock()
	}
	e := queue[i]
	return e, append(queue[:i], queue[i+1:]...)
}

// MemoryTransport is one participant of a MemoryNetwork.
type MemoryTransport struct {
	net *MemoryNetwork

	mu     sync.Mutex
	queue  []Envelope
	closed bool

	out  chan Envelope
	wake chan struct{}
	done chan struct{}
	once sync.Once
}

func (t *MemoryTransport) enqueue(e Envelope) {
	t.mu.Lock()
	if !t.closed {
		t.queue = append(t.queue, e)
	}
	t.mu.Unlock()
	select {
	case t.wake <- struct{}{}:
	default:
	}
}

func (t *MemoryTransport) deliver() {
	defer close(t.out)
	for {
		t.mu.Lock()
		if len(t.queue) == 0 {
			t.mu.Unlock()
			select {
			case <-t.wake:
				continue
			case <-t.done:
				return
			}
		}
		var e Envelope
		e, t.queue = t.net.pick(t.queue)
		t.mu.Unlock()
		select {
		case t.out <- e:
		case <-t.done:
			return
		}
	}
}

// Send queues e for every other participant.
func (t *MemoryTransport) Send(ctx context.Context, e Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-t.done:
		return ErrTransportClosed
	default:
	}
	t.net.broadcast(t, e)
	return nil
}

// Receive returns the delivery channel.
func (t *MemoryTransport) Receive() <-chan Envelope {
	return t.out
}

// Close leaves the network. Queued envelopes are dropped.
func (t *MemoryTransport) Close() error {
	t.once.Do(func() {
		t.net.leave(t)
		t.mu.Lock()
		t.closed = true
		t.queue = nil
		t.mu.Unlock()
		close(t.done)
	})
	return nil
}
