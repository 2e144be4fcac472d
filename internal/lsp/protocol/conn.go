package protocol

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/dshills/strand/internal/logging"
)

// NotificationHandler handles an incoming notification.
type NotificationHandler func(method string, params json.RawMessage)

// RequestHandler answers an incoming request. A returned *RPCError is sent
// as is; other errors become internal errors.
type RequestHandler func(ctx context.Context, params json.RawMessage) (any, error)

type request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id,omitempty"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result"`
}

type errorResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Error   *RPCError       `json:"error"`
}

// message is any incoming JSON-RPC message.
type message struct {
	ID     json.RawMessage `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *RPCError       `json:"error,omitempty"`
}

type reply struct {
	result json.RawMessage
	err    *RPCError
}

// Conn is a JSON-RPC 2.0 connection framed with Content-Length headers,
// as LSP uses over stdio. Either end may call, notify and answer.
type Conn struct {
	reader *bufio.Reader
	writer io.Writer
	closer io.Closer
	log    *logging.Logger

	writeMu sync.Mutex

	mu            sync.Mutex
	pending       map[int64]chan reply
	notifications map[string]NotificationHandler
	requests      map[string]RequestHandler

	nextID atomic.Int64
	closed atomic.Bool
	done   chan struct{}
}

// NewConn creates a connection reading from r and writing to w. c, if not
// nil, is closed with the connection.
func NewConn(r io.Reader, w io.Writer, c io.Closer, log *logging.Logger) *Conn {
	return &Conn{
		reader:        bufio.NewReaderSize(r, 64*1024),
		writer:        w,
		closer:        c,
		log:           logging.OrNull(log).WithComponent("lsp.conn"),
		pending:       make(map[int64]chan reply),
		notifications: make(map[string]NotificationHandler),
		requests:      make(map[string]RequestHandler),
		done:          make(chan struct{}),
	}
}

// Start begins reading messages in a new goroutine.
func (c *Conn) Start(ctx context.Context) {
	go c.readLoop(ctx)
}

// Done is closed when the connection closes.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Close closes the connection. Waiting calls return ErrClosed.
func (c *Conn) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	close(c.done)
	c.mu.Lock()
	c.pending = make(map[int64]chan reply)
	c.mu.Unlock()
	if c.closer != nil {
		return c.closer.Close()
	}
	return nil
}

// Call sends a request and decodes the result into result, which may be
// nil or a *json.RawMessage.
func (c *Conn) Call(ctx context.Context, method string, params, result any) error {
	if c.closed.Load() {
		return ErrClosed
	}
	id := c.nextID.Add(1)
	ch := make(chan reply, 1)
	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := c.send(request{JSONRPC: "2.0", ID: id, Method: method, Params: params}); err != nil {
		return fmt.Errorf("send %s: %w", method, err)
	}
	select {
	case <-ctx.Done():
		// Tell the peer; it may still answer, and the answer is dropped.
		_ = c.Notify(context.Background(), "$/cancelRequest", map[string]int64{"id": id})
		return ctx.Err()
	case <-c.done:
		return ErrClosed
	case r := <-ch:
		if r.err != nil {
			return r.err
		}
		if result != nil && len(r.result) > 0 {
			if err := json.Unmarshal(r.result, result); err != nil {
				return fmt.Errorf("decode %s result: %w", method, err)
			}
		}
		return nil
	}
}

// Notify sends a notification.
func (c *Conn) Notify(_ context.Context, method string, params any) error {
	if c.closed.Load() {
		return ErrClosed
	}
	return c.send(request{JSONRPC: "2.0", Method: method, Params: params})
}

// OnNotification registers a handler for a notification method. The
// method "*" catches notifications without their own handler.
func (c *Conn) OnNotification(method string, h NotificationHandler) {
	c.mu.Lock()
	c.notifications[method] = h
	c.mu.Unlock()
}

// OnRequest registers a handler for requests sent by the peer. Requests
// without a handler are answered with a method-not-found error.
func (c *Conn) OnRequest(method string, h RequestHandler) {
	c.mu.Lock()
	c.requests[method] = h
	c.mu.Unlock()
}

func (c *Conn) send(msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := fmt.Fprintf(c.writer, "Content-Length: %d\r\n\r\n", len(data)); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if _, err := c.writer.Write(data); err != nil {
		return fmt.Errorf("write body: %w", err)
	}
	return nil
}

func (c *Conn) readLoop(ctx context.Context) {
	defer c.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		default:
		}
		data, err := c.readMessage()
		if err != nil {
			if c.closed.Load() || errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
				return
			}
			c.log.Warn("read message: %v", err)
			continue
		}
		c.dispatch(ctx, data)
	}
}

func (c *Conn) readMessage() ([]byte, error) {
	length := -1
	for {
		line, err := c.reader.ReadString('\n')
		if err != nil {
			return nil, err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			break
		}
		name, value, ok := strings.Cut(line, ":")
		if ok && strings.EqualFold(strings.TrimSpace(name), "Content-Length") {
			if n, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
				length = n
			}
		}
	}
	if length < 0 {
		return nil, errors.New("missing Content-Length header")
	}
	body := make([]byte, length)
	if _, err := io.ReadFull(c.reader, body); err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

func (c *Conn) dispatch(ctx context.Context, data []byte) {
	var msg message
	if err := json.Unmarshal(data, &msg); err != nil {
		c.log.Warn("decode message: %v", err)
		return
	}
	switch {
	case msg.Method == "" && len(msg.ID) > 0:
		c.handleResponse(msg)
	case len(msg.ID) > 0:
		go c.handleRequest(ctx, msg)
	case msg.Method != "":
		c.handleNotification(msg)
	}
}

func (c *Conn) handleResponse(msg message) {
	id, err := strconv.ParseInt(string(msg.ID), 10, 64)
	if err != nil {
		return
	}
	c.mu.Lock()
	ch, ok := c.pending[id]
	delete(c.pending, id)
	c.mu.Unlock()
	if ok {
		ch <- reply{result: msg.Result, err: msg.Error}
	}
}

func (c *Conn) handleRequest(ctx context.Context, msg message) {
	c.mu.Lock()
	h, ok := c.requests[msg.Method]
	c.mu.Unlock()
	var out any
	if !ok {
		out = errorResponse{JSONRPC: "2.0", ID: msg.ID, Error: &RPCError{Code: CodeMethodNotFound, Message: "method not found: " + msg.Method}}
	} else {
		result, err := h(ctx, msg.Params)
		var rpcErr *RPCError
		switch {
		case errors.As(err, &rpcErr):
			out = errorResponse{JSONRPC: "2.0", ID: msg.ID, Error: rpcErr}
		case err != nil:
			out = errorResponse{JSONRPC: "2.0", ID: msg.ID, Error: &RPCError{Code: CodeInternalError, Message: err.Error()}}
		default:
			out = response{JSONRPC: "2.0", ID: msg.ID, Result: result}
		}
	}
	if err := c.send(out); err != nil && !c.closed.Load() {
		c.log.Warn("answer %s: %v", msg.Method, err)
	}
}

func (c *Conn) handleNotification(msg message) {
	c.mu.Lock()
	h, ok := c.notifications[msg.Method]
	if !ok {
		h, ok = c.notifications["*"]
	}
	c.mu.Unlock()
	if ok && h != nil {
		// In order, on the read goroutine: diagnostics must not overtake
		// each other.
		h(msg.Method, msg.Params)
	}
}

// IsClosed reports whether the connection has been closed.
func (c *Conn) IsClosed() bool {
	return c.closed.Load()
}
