package collab

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/dshills/strand/internal/buffer"
	"github.com/dshills/strand/internal/clock"
	"github.com/dshills/strand/internal/logging"
)

// Peer keeps one buffer replica in sync over a transport. It broadcasts
// local operations, applies remote ones and answers catch-up requests.
type Peer struct {
	buf *buffer.Buffer
	tr  Transport
	log *logging.Logger

	mu     sync.Mutex
	outbox []Envelope
	wake   chan struct{}

	running atomic.Bool
	stats   struct {
		sent, received, resyncs atomic.Int64
	}
}

// PeerStats counts a peer's traffic.
type PeerStats struct {
	Sent     int64 `json:"sent"`
	Received int64 `json:"received"`
	Resyncs  int64 `json:"resyncs"`
}

// NewPeer binds b to tr. Nothing happens until Run.
func NewPeer(b *buffer.Buffer, tr Transport, opts ...Option) *Peer {
	s := newSettings(opts)
	return &Peer{
		buf:  b,
		tr:   tr,
		log:  s.log.WithComponent("collab.peer").WithField("replica", b.Replica().String()[:8]),
		wake: make(chan struct{}, 1),
	}
}

// Buffer returns the replica the peer maintains.
func (p *Peer) Buffer() *buffer.Buffer {
	return p.buf
}

// Stats returns traffic counters.
func (p *Peer) Stats() PeerStats {
	return PeerStats{
		Sent:     p.stats.sent.Load(),
		Received: p.stats.received.Load(),
		Resyncs:  p.stats.resyncs.Load(),
	}
}

// Run announces the replica and processes traffic until ctx is done or
// the transport closes. It returns ctx.Err() or ErrTransportClosed.
func (p *Peer) Run(ctx context.Context) error {
	if !p.running.CompareAndSwap(false, true) {
		return ErrPeerRunning
	}
	defer p.running.Store(false)

	unsubscribe := p.buf.Subscribe(p.onChange)
	defer unsubscribe()

	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		p.sendLoop(ctx)
	}()
	defer func() {
		cancel()
		wg.Wait()
	}()

	var reconnected <-chan struct{}
	if r, ok := p.tr.(Reconnector); ok {
		reconnected = r.Reconnected()
	}
	p.hello()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-reconnected:
			p.hello()
		case e, ok := <-p.tr.Receive():
			if !ok {
				return ErrTransportClosed
			}
			p.handle(e)
		}
	}
}

func (p *Peer) onChange(ev buffer.ChangeEvent) {
	if ev.Origin != buffer.OriginLocal && ev.Origin != buffer.OriginUndo {
		return
	}
	p.queue(Envelope{Kind: KindOp, Version: ev.NewVersion, Ops: []buffer.Operation{ev.Op}})
}

func (p *Peer) hello() {
	p.queue(Envelope{Kind: KindHello, Version: p.buf.Version()})
}

func (p *Peer) queue(e Envelope) {
	e.Buffer = p.buf.ID()
	e.Replica = p.buf.Replica()
	p.mu.Lock()
	p.outbox = append(p.outbox, e)
	p.mu.Unlock()
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *Peer) sendLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.wake:
		}
		p.mu.Lock()
		batch := p.outbox
		p.outbox = nil
		p.mu.Unlock()
		for _, e := range batch {
			if err := p.tr.Send(ctx, e); err != nil {
				if ctx.Err() != nil {
					return
				}
				p.log.Debug("send %v: %v", e, err)
				continue
			}
			p.stats.sent.Add(1)
		}
	}
}

func (p *Peer) handle(e Envelope) {
	if e.Buffer != p.buf.ID() || !e.For(p.buf.Replica()) {
		return
	}
	p.stats.received.Add(1)
	switch e.Kind {
	case KindHello:
		p.answer(e.Replica, e.Version)
		if !p.buf.Version().ObservedAll(e.Version) {
			p.queue(Envelope{Kind: KindSyncRequest, To: e.Replica, Version: p.buf.Version()})
		}
	case KindSyncRequest:
		p.answer(e.Replica, e.Version)
	case KindOp, KindSyncResponse:
		if e.State != nil {
			p.resync(*e.State)
		}
		if len(e.Ops) > 0 {
			p.apply(e)
		}
	}
}

// answer sends "to" the operations v lacks, or the whole state when that
// history was collected.
func (p *Peer) answer(to clock.ReplicaID, v clock.Version) {
	ops, err := p.buf.HistorySince(v)
	switch {
	case errors.Is(err, buffer.ErrResyncRequired):
		p.log.Info("%.8s needs a full resync: %v", to.String(), err)
		p.sendState(to)
	case err != nil:
		p.log.Warn("history for %.8s: %v", to.String(), err)
	case len(ops) > 0:
		p.queue(Envelope{Kind: KindSyncResponse, To: to, Version: p.buf.Version(), Ops: ops})
	}
}

func (p *Peer) sendState(to clock.ReplicaID) {
	st := p.buf.Export()
	p.queue(Envelope{Kind: KindSyncResponse, To: to, Version: st.Version, State: &st})
}

func (p *Peer) resync(st buffer.State) {
	if p.buf.Version().ObservedAll(st.Version) {
		return
	}
	p.stats.resyncs.Add(1)
	if err := p.buf.Reset(st); err != nil {
		p.log.Warn("resync: %v", err)
		return
	}
	p.log.Info("resynced to %v", st.Version)
}

func (p *Peer) apply(e Envelope) {
	err := p.buf.Apply(e.Ops...)
	if err == nil {
		return
	}
	// The sender refers to text this replica already collected; it is
	// the one that has to catch up.
	if errors.Is(err, buffer.ErrResyncRequired) {
		p.log.Info("%.8s is behind collected history: %v", e.Replica.String(), err)
		p.sendState(e.Replica)
		return
	}
	p.log.Warn("apply %v: %v", e, err)
}
