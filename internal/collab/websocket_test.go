package collab

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cenkalti/backoff"

	"github.com/dshills/strand/internal/buffer"
)

func fastRetry() backoff.BackOff {
	return backoff.NewConstantBackOff(10 * time.Millisecond)
}

func startHub(t *testing.T, doc buffer.ID) (*Hub, string) {
	t.Helper()
	hub := NewHub(WithCheckOrigin(func(*http.Request) bool { return true }))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.ServeWS(w, r, doc)
	}))
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *WebSocketTransport {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	tr, err := DialWebSocket(ctx, url, WithBackOff(fastRetry))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { tr.Close() })
	return tr
}

func waitMembers(t *testing.T, hub *Hub, doc buffer.ID, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.Members(doc) != n {
		if time.Now().After(deadline) {
			t.Fatalf("hub has %d members, want %d", hub.Members(doc), n)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestWebSocketPeers(t *testing.T) {
	a := buffer.New("func main() {}\n")
	b := a.Replicate()
	server := a.Replicate()
	hub, url := startHub(t, a.ID())

	local, err := hub.Join(a.ID())
	if err != nil {
		t.Fatal(err)
	}
	ta, tb := dial(t, url), dial(t, url)
	waitMembers(t, hub, a.ID(), 3)
	runPeers(t, NewPeer(a, ta), NewPeer(b, tb), NewPeer(server, local))

	if _, err := a.Edit(buffer.Insert(13, "\n\tprintln()\n")); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Edit(buffer.Insert(0, "package main\n\n")); err != nil {
		t.Fatal(err)
	}
	converged(t, a, b, server)
	if !strings.HasPrefix(server.Text(), "package main\n\nfunc main() {") {
		t.Errorf("Text() = %q", server.Text())
	}
}

func TestWebSocketReconnect(t *testing.T) {
	a := buffer.New("x")
	b := a.Replicate()
	hub, url := startHub(t, a.ID())
	ta, tb := dial(t, url), dial(t, url)
	waitMembers(t, hub, a.ID(), 2)
	runPeers(t, NewPeer(a, ta), NewPeer(b, tb))

	hub.Disconnect(a.ID())
	// Made while the connections are down; delivered after the redial.
	if _, err := a.Edit(buffer.Insert(1, "y")); err != nil {
		t.Fatal(err)
	}
	converged(t, a, b)
	if b.Text() != "xy" {
		t.Errorf("Text() = %q", b.Text())
	}
}

func TestWebSocketClose(t *testing.T) {
	doc := buffer.New("").ID()
	_, url := startHub(t, doc)
	tr := dial(t, url)
	if err := tr.Close(); err != nil {
		t.Fatal(err)
	}
	if err := tr.Send(context.Background(), Envelope{Buffer: doc}); !errors.Is(err, ErrTransportClosed) {
		t.Errorf("Send() after Close = %v", err)
	}
	select {
	case _, ok := <-tr.Receive():
		if ok {
			t.Error("received after Close")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Receive channel not closed")
	}
}

func TestDialRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	defer srv.Close()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	// A 404 is permanent and ends the retries at once.
	start := time.Now()
	if _, err := DialWebSocket(ctx, url, WithBackOff(fastRetry)); err == nil {
		t.Fatal("DialWebSocket() succeeded")
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Errorf("retried a permanent failure for %v", time.Since(start))
	}
}
