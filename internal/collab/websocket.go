package collab

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/gorilla/websocket"

	"github.com/dshills/strand/internal/logging"
)

// WebSocketTransport talks to a Hub over websocket. When the connection
// drops it redials with backoff until closed.
type WebSocketTransport struct {
	url        string
	dialer     *websocket.Dialer
	header     http.Header
	newBackOff func() backoff.BackOff
	log        *logging.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.Mutex // serializes writes and guards conn
	conn *websocket.Conn

	out         chan Envelope
	reconnected chan struct{}
	done        chan struct{}
	once        sync.Once
}

// DialWebSocket connects to url, retrying with the backoff policy until
// ctx is done.
func DialWebSocket(ctx context.Context, url string, opts ...Option) (*WebSocketTransport, error) {
	s := newSettings(opts)
	t := &WebSocketTransport{
		url:         url,
		dialer:      &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		header:      s.header,
		newBackOff:  s.newBackOff,
		log:         s.log.WithComponent("collab.ws").WithField("url", url),
		out:         make(chan Envelope, s.queue),
		reconnected: make(chan struct{}, 1),
		done:        make(chan struct{}),
	}
	t.ctx, t.cancel = context.WithCancel(context.Background())

	conn, err := t.dial(ctx)
	if err != nil {
		t.cancel()
		return nil, err
	}
	t.conn = conn
	go t.readLoop(conn)
	return t, nil
}

func (t *WebSocketTransport) dial(ctx context.Context) (*websocket.Conn, error) {
	var conn *websocket.Conn
	attempt := func() error {
		c, resp, err := t.dialer.DialContext(ctx, t.url, t.header)
		if err != nil {
			if resp != nil && resp.StatusCode >= 400 && resp.StatusCode < 500 {
				return backoff.Permanent(fmt.Errorf("dial %s: %s", t.url, resp.Status))
			}
			return fmt.Errorf("dial %s: %w", t.url, err)
		}
		conn = c
		return nil
	}
	notify := func(err error, wait time.Duration) {
		t.log.Warn("%v, retrying in %v", err, wait.Round(time.Millisecond))
	}
	if err := backoff.RetryNotify(attempt, backoff.WithContext(t.newBackOff(), ctx), notify); err != nil {
		return nil, err
	}
	conn.SetReadLimit(maxMessageSize)
	return conn, nil
}

func (t *WebSocketTransport) readLoop(conn *websocket.Conn) {
	defer close(t.out)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if t.ctx.Err() != nil {
				return
			}
			t.log.Info("connection lost: %v", err)
			if conn, err = t.redial(conn); err != nil {
				t.log.Debug("giving up: %v", err)
				t.Close()
				return
			}
			continue
		}
		e, err := Decode(data)
		if err != nil {
			t.log.Warn("discarding message: %v", err)
			continue
		}
		select {
		case t.out <- e:
		case <-t.done:
			return
		}
	}
}

func (t *WebSocketTransport) redial(old *websocket.Conn) (*websocket.Conn, error) {
	t.mu.Lock()
	t.conn = nil
	t.mu.Unlock()
	old.Close()

	conn, err := t.dial(t.ctx)
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	select {
	case <-t.done:
		t.mu.Unlock()
		conn.Close()
		return nil, ErrTransportClosed
	default:
	}
	t.conn = conn
	t.mu.Unlock()
	t.log.Info("reconnected")
	select {
	case t.reconnected <- struct{}{}:
	default:
	}
	return conn, nil
}

// Send writes e to the hub. It fails with ErrNotConnected while redialing.
func (t *WebSocketTransport) Send(ctx context.Context, e Envelope) error {
	data, err := Encode(e)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	select {
	case <-t.done:
		return ErrTransportClosed
	default:
	}
	if t.conn == nil {
		return ErrNotConnected
	}
	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	t.conn.SetWriteDeadline(deadline)
	if err := t.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("collab: send %s: %w", e.Kind, err)
	}
	return nil
}

// Receive returns the delivery channel.
func (t *WebSocketTransport) Receive() <-chan Envelope {
	return t.out
}

// Reconnected signals completed redials.
func (t *WebSocketTransport) Reconnected() <-chan struct{} {
	return t.reconnected
}

// Close ends the connection and stops redialing.
func (t *WebSocketTransport) Close() error {
	t.once.Do(func() {
		t.cancel()
		t.mu.Lock()
		close(t.done)
		if t.conn != nil {
			t.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			t.conn.Close()
		}
		t.mu.Unlock()
	})
	return nil
}
