package presence

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
)

// setupTestStore creates a Store connected to a test Redis instance.
// Requires Redis running on localhost:6379. Tests are skipped if unavailable.
func setupTestStore(t *testing.T, server string) (*Store, context.Context) {
	t.Helper()

	rdb := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15,
	})

	ctx := context.Background()
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Skipf("skipping: Redis not available: %v", err)
	}
	rdb.Del(ctx, PresencePrefix+"alice", PresencePrefix+"bob")

	t.Cleanup(func() {
		rdb.Del(ctx, PresencePrefix+"alice", PresencePrefix+"bob")
		rdb.Close()
	})

	return NewStore(rdb, server), ctx
}

func TestOnline_TracksConnectionsAcrossNodes(t *testing.T) {
	a, ctx := setupTestStore(t, "node-a")
	b := NewStore(a.client, "node-b")

	if online, _ := a.Online(ctx, "alice"); online {
		t.Fatal("alice should start offline")
	}

	// Same connection id on two nodes counts twice.
	_ = a.Connect(ctx, "alice", "c1")
	_ = b.Connect(ctx, "alice", "c1")
	if n, _ := a.Connections(ctx, "alice"); n != 2 {
		t.Errorf("expected 2 connections, got %d", n)
	}

	_ = a.Disconnect(ctx, "alice", "c1")
	if online, _ := a.Online(ctx, "alice"); !online {
		t.Error("alice still has a connection on node-b")
	}

	_ = b.Disconnect(ctx, "alice", "c1")
	if online, _ := a.Online(ctx, "alice"); online {
		t.Error("alice should be offline after last disconnect")
	}

	if online, _ := a.Online(ctx, "bob"); online {
		t.Error("bob never connected")
	}
}

func TestConnect_SetsTTL(t *testing.T) {
	s, ctx := setupTestStore(t, "node-a")

	_ = s.Connect(ctx, "bob", "c1")
	ttl, err := s.client.TTL(ctx, PresencePrefix+"bob").Result()
	if err != nil {
		t.Fatalf("TTL() error: %v", err)
	}
	if ttl <= 0 || ttl > PresenceTTL {
		t.Errorf("unexpected TTL %v", ttl)
	}
}
