package collab

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/dshills/strand/internal/buffer"
)

// runPeers starts a peer per buffer and stops them when the test ends.
func runPeers(t *testing.T, peers ...*Peer) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	for _, p := range peers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Run(ctx)
		}()
	}
	t.Cleanup(func() {
		cancel()
		wg.Wait()
	})
}

// converged waits until all buffers hold the same text and version.
func converged(t *testing.T, bufs ...*buffer.Buffer) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		same := true
		for _, b := range bufs[1:] {
			if b.Text() != bufs[0].Text() || !b.Version().Equal(bufs[0].Version()) {
				same = false
				break
			}
		}
		if same {
			return
		}
		if time.Now().After(deadline) {
			for i, b := range bufs {
				t.Logf("replica %d: %q %v (%d deferred)", i, b.Text(), b.Version(), b.Deferred())
			}
			t.Fatal("replicas did not converge")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestPeersConverge(t *testing.T) {
	for seed := uint64(1); seed <= 5; seed++ {
		net := NewMemoryNetwork(WithReordering(seed), WithDuplication(0.3))
		base := buffer.New("one\ntwo\nthree\n", buffer.WithInvariantChecks(true))
		bufs := []*buffer.Buffer{base, base.Replicate(), base.Replicate()}
		var peers []*Peer
		for _, b := range bufs {
			tr := net.Join()
			t.Cleanup(func() { tr.Close() })
			peers = append(peers, NewPeer(b, tr))
		}
		runPeers(t, peers...)

		rng := rand.New(rand.NewPCG(seed, 99))
		for step := 0; step < 80; step++ {
			b := bufs[rng.IntN(len(bufs))]
			snap := b.Snapshot()
			n := snap.Len()
			var err error
			switch k := rng.IntN(6); {
			case k < 3:
				_, err = b.Edit(buffer.Insert(rng.IntN(n+1), string(rune('a'+rng.IntN(26)))))
			case k < 5 && n > 0:
				start := rng.IntN(n)
				_, err = b.Edit(buffer.Delete(start, start+rng.IntN(min(3, n-start)+1)))
			case b.CanUndo():
				_, err = b.Undo()
			}
			// Remote operations may land between reading the length and
			// editing.
			if err != nil && !errors.Is(err, buffer.ErrOffsetOutOfRange) {
				t.Fatalf("seed %d step %d: %v", seed, step, err)
			}
		}
		converged(t, bufs...)
		for _, b := range bufs {
			if err := b.Err(); err != nil {
				t.Fatalf("seed %d: %v", seed, err)
			}
		}
	}
}

func TestPeerCatchesUpOnJoin(t *testing.T) {
	net := NewMemoryNetwork()
	a := buffer.New("draft")
	b := a.Replicate()
	// Both replicas edit before they are connected.
	if _, err := a.Edit(buffer.Insert(5, " one")); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Edit(buffer.Insert(0, "# ")); err != nil {
		t.Fatal(err)
	}
	ta, tb := net.Join(), net.Join()
	defer ta.Close()
	defer tb.Close()
	runPeers(t, NewPeer(a, ta), NewPeer(b, tb))
	converged(t, a, b)
	if a.Text() != "# draft one" {
		t.Errorf("Text() = %q", a.Text())
	}
}

func TestPeerResyncAfterCollection(t *testing.T) {
	net := NewMemoryNetwork()
	a := buffer.New("hello world")
	b := a.Replicate()
	if _, err := a.Edit(buffer.Delete(0, 6)); err != nil {
		t.Fatal(err)
	}
	if _, err := a.Edit(buffer.Insert(5, "!")); err != nil {
		t.Fatal(err)
	}
	// a forgets the history b would need.
	if n := a.CollectGarbage(a.Version()); n == 0 {
		t.Fatal("nothing collected")
	}
	if _, err := b.Edit(buffer.Insert(11, "?")); err != nil {
		t.Fatal(err)
	}

	ta, tb := net.Join(), net.Join()
	defer ta.Close()
	defer tb.Close()
	pa, pb := NewPeer(a, ta), NewPeer(b, tb)
	runPeers(t, pa, pb)
	converged(t, a, b)
	if a.Text() != "world!?" {
		t.Errorf("Text() = %q", a.Text())
	}
	if pb.Stats().Resyncs != 1 {
		t.Errorf("stats = %+v", pb.Stats())
	}
}

func TestPeerIgnoresOtherDocuments(t *testing.T) {
	net := NewMemoryNetwork()
	a, other := buffer.New("a"), buffer.New("a")
	ta, to := net.Join(), net.Join()
	defer ta.Close()
	defer to.Close()
	runPeers(t, NewPeer(a, ta), NewPeer(other, to))
	if _, err := other.Edit(buffer.Insert(1, "b")); err != nil {
		t.Fatal(err)
	}
	time.Sleep(50 * time.Millisecond)
	if a.Text() != "a" {
		t.Errorf("edit of another document applied: %q", a.Text())
	}
}

func TestPeerRunTwice(t *testing.T) {
	net := NewMemoryNetwork()
	tr := net.Join()
	defer tr.Close()
	p := NewPeer(buffer.New(""), tr)
	runPeers(t, p)
	deadline := time.Now().Add(time.Second)
	for !p.running.Load() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if err := p.Run(context.Background()); !errors.Is(err, ErrPeerRunning) {
		t.Errorf("second Run() = %v", err)
	}
}

func TestPeerStopsWhenTransportCloses(t *testing.T) {
	net := NewMemoryNetwork()
	tr := net.Join()
	p := NewPeer(buffer.New(""), tr)
	done := make(chan error, 1)
	go func() { done <- p.Run(context.Background()) }()
	tr.Close()
	select {
	case err := <-done:
		if !errors.Is(err, ErrTransportClosed) {
			t.Errorf("Run() = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
}

func TestHubJoin(t *testing.T) {
	hub := NewHub()
	defer hub.Close()
	a := buffer.New("shared")
	b := a.Replicate()
	ta, err := hub.Join(a.ID())
	if err != nil {
		t.Fatal(err)
	}
	tb, err := hub.Join(a.ID())
	if err != nil {
		t.Fatal(err)
	}
	if hub.Members(a.ID()) != 2 {
		t.Errorf("Members() = %d", hub.Members(a.ID()))
	}
	runPeers(t, NewPeer(a, ta), NewPeer(b, tb))
	if _, err := a.Edit(buffer.Insert(6, " text")); err != nil {
		t.Fatal(err)
	}
	converged(t, a, b)

	if err := ta.Send(context.Background(), Envelope{Buffer: buffer.New("").ID()}); !errors.Is(err, ErrWrongDocument) {
		t.Errorf("Send(other document) = %v", err)
	}
	hub.Close()
	if _, err := hub.Join(a.ID()); !errors.Is(err, ErrTransportClosed) {
		t.Errorf("Join() after Close = %v", err)
	}
}
