package collab

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dshills/strand/internal/buffer"
)

func TestChannel(t *testing.T) {
	doc := buffer.New("").ID()
	if got := Channel(DefaultChannelPrefix, doc); got != "strand:doc:"+doc.String() {
		t.Errorf("Channel() = %q", got)
	}
}

// TestRedisPeers needs a server; set STRAND_TEST_REDIS to its address.
func TestRedisPeers(t *testing.T) {
	addr := os.Getenv("STRAND_TEST_REDIS")
	if addr == "" {
		t.Skip("STRAND_TEST_REDIS not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis unavailable: %v", err)
	}

	a := buffer.New("one")
	b := a.Replicate()
	ta, err := NewRedisTransport(ctx, client, "strand:test:", a.ID())
	if err != nil {
		t.Fatal(err)
	}
	defer ta.Close()
	tb, err := NewRedisTransport(ctx, client, "strand:test:", a.ID())
	if err != nil {
		t.Fatal(err)
	}
	defer tb.Close()

	runPeers(t, NewPeer(a, ta), NewPeer(b, tb))
	if _, err := a.Edit(buffer.Insert(3, " two")); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Edit(buffer.Insert(0, "zero ")); err != nil {
		t.Fatal(err)
	}
	converged(t, a, b)
	if a.Text() != "zero one two" {
		t.Errorf("Text() = %q", a.Text())
	}
}
