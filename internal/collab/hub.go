package collab

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dshills/strand/internal/buffer"
	"github.com/dshills/strand/internal/logging"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 32 << 20
)

// member is one participant of a room. Encoded envelopes for it go to send.
type member struct {
	send chan []byte
	done chan struct{}
	once sync.Once
}

func newMember(queue int) *member {
	return &member{send: make(chan []byte, queue), done: make(chan struct{})}
}

func (m *member) close() {
	m.once.Do(func() { close(m.done) })
}

// Hub relays envelopes between the participants of each document. Remote
// participants connect over websocket; in-process replicas join with Join.
// The hub does not interpret envelopes beyond checking them.
type Hub struct {
	upgrader websocket.Upgrader
	log      *logging.Logger
	queue    int

	mu     sync.Mutex
	rooms  map[buffer.ID]map[*member]struct{}
	closed bool
}

// NewHub creates a hub with no rooms.
func NewHub(opts ...Option) *Hub {
	s := newSettings(opts)
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     s.checkOrigin,
		},
		log:   s.log.WithComponent("collab.hub"),
		queue: s.queue,
		rooms: make(map[buffer.ID]map[*member]struct{}),
	}
}

func (h *Hub) join(doc buffer.ID) (*member, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, false
	}
	m := newMember(h.queue)
	room := h.rooms[doc]
	if room == nil {
		room = make(map[*member]struct{})
		h.rooms[doc] = room
	}
	room[m] = struct{}{}
	return m, true
}

func (h *Hub) leave(doc buffer.ID, m *member) {
	h.mu.Lock()
	if room := h.rooms[doc]; room != nil {
		delete(room, m)
		if len(room) == 0 {
			delete(h.rooms, doc)
		}
	}
	h.mu.Unlock()
	m.close()
}

// relay hands data to every member of doc except from. Members whose
// queue is full are dropped; they catch up with a hello after redialing.
func (h *Hub) relay(doc buffer.ID, from *member, data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for m := range h.rooms[doc] {
		if m == from {
			continue
		}
		select {
		case m.send <- data:
		default:
			h.log.Warn("dropping slow member of %v", doc)
			delete(h.rooms[doc], m)
			m.close()
		}
	}
}

// Members returns the number of participants of doc.
func (h *Hub) Members(doc buffer.ID) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms[doc])
}

// Disconnect drops every participant of doc.
func (h *Hub) Disconnect(doc buffer.ID) {
	h.mu.Lock()
	room := h.rooms[doc]
	delete(h.rooms, doc)
	h.mu.Unlock()
	for m := range room {
		m.close()
	}
}

// Close drops every participant and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	rooms := h.rooms
	h.rooms = make(map[buffer.ID]map[*member]struct{})
	h.mu.Unlock()
	for _, room := range rooms {
		for m := range room {
			m.close()
		}
	}
}

// ServeWS upgrades the request and relays the connection's envelopes for
// doc until either side closes.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, doc buffer.ID) {
	m, ok := h.join(doc)
	if !ok {
		http.Error(w, "hub closed", http.StatusServiceUnavailable)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.leave(doc, m)
		h.log.Warn("upgrade failed: %v", err)
		return
	}
	h.log.Info("member joined %v from %s", doc, r.RemoteAddr)
	go h.writePump(conn, m)
	h.readPump(conn, doc, m)
}

func (h *Hub) readPump(conn *websocket.Conn, doc buffer.ID, m *member) {
	defer func() {
		h.leave(doc, m)
		conn.Close()
		h.log.Info("member left %v", doc)
	}()
	conn.SetReadLimit(maxMessageSize)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.log.Debug("read: %v", err)
			}
			return
		}
		e, err := Decode(data)
		if err != nil {
			h.log.Warn("discarding message: %v", err)
			continue
		}
		if e.Buffer != doc {
			h.log.Warn("discarding %v for document %v on %v", e, e.Buffer, doc)
			continue
		}
		h.relay(doc, m, data)
	}
}

func (h *Hub) writePump(conn *websocket.Conn, m *member) {
	defer conn.Close()
	for {
		select {
		case data := <-m.send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				m.close()
				return
			}
		case <-m.done:
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}

// Join adds an in-process participant to doc's room.
func (h *Hub) Join(doc buffer.ID) (Transport, error) {
	m, ok := h.join(doc)
	if !ok {
		return nil, ErrTransportClosed
	}
	t := &hubTransport{hub: h, doc: doc, m: m, out: make(chan Envelope)}
	go t.pump()
	return t, nil
}

type hubTransport struct {
	hub *Hub
	doc buffer.ID
	m   *member
	out chan Envelope
}

func (t *hubTransport) pump() {
	defer close(t.out)
	for {
		select {
		case data := <-t.m.send:
			e, err := Decode(data)
			if err != nil {
				continue
			}
			select {
			case t.out <- e:
			case <-t.m.done:
				return
			}
		case <-t.m.done:
			return
		}
	}
}

func (t *hubTransport) Send(ctx context.Context, e Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-t.m.done:
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
	t.hub.relay(t.doc, t.m, data)
	return nil
}

func (t *hubTransport) Receive() <-chan Envelope {
	return t.out
}

func (t *hubTransport) Close() error {
	t.hub.leave(t.doc, t.m)
	return nil
}
