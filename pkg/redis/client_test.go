package redis_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/watchpoints/points-engine/pkg/redis"
	"github.com/watchpoints/points-engine/pkg/redis/redistest"
)

func TestKeyBuilders(t *testing.T) {
	client := redis.NewFromCmdable(nil, "")
	if got := client.IdempotencyKey("redemptions", "abc"); got != "pts:idempotency:redemptions:abc" {
		t.Fatalf("unexpected idempotency key %s", got)
	}
	if got := client.WalletKey("u1"); got != "pts:wallet:u1" {
		t.Fatalf("unexpected wallet key %s", got)
	}
	if got := client.DedupeKey("watch", "u1", ""); got != "pts:dedupe:watch:u1" {
		t.Fatalf("empty parts should be skipped, got %s", got)
	}

	custom := redis.NewFromCmdable(nil, " ledger ")
	if got := custom.LockKey("sweeper"); got != "ledger:lock:sweeper" {
		t.Fatalf("unexpected lock key %s", got)
	}
}

func TestSetGetDel(t *testing.T) {
	ctx := context.Background()
	client, mem := redistest.NewClient()

	if err := client.Set(ctx, "k", "v", time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	if mem.TTL("k") != time.Minute {
		t.Fatalf("expected ttl to be recorded")
	}
	got, err := client.Get(ctx, "k")
	if err != nil || got != "v" {
		t.Fatalf("get: %q %v", got, err)
	}
	if err := client.Del(ctx, "k"); err != nil {
		t.Fatalf("del: %v", err)
	}
	if _, err := client.Get(ctx, "k"); !errors.Is(err, redis.Nil) {
		t.Fatalf("expected redis.Nil after delete, got %v", err)
	}
}

func TestSetNXOnlyOnce(t *testing.T) {
	ctx := context.Background()
	client, _ := redistest.NewClient()

	ok, err := client.SetNX(ctx, "once", "a", time.Second)
	if err != nil || !ok {
		t.Fatalf("first setnx should win: %v %v", ok, err)
	}
	ok, err = client.SetNX(ctx, "once", "b", time.Second)
	if err != nil || ok {
		t.Fatalf("second setnx should lose: %v %v", ok, err)
	}
}

func TestQueueRoundTrip(t *testing.T) {
	ctx := context.Background()
	client, mem := redistest.NewClient()

	if err := client.Enqueue(ctx, "reconcile", "u2", "u1", "u2"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if got := mem.Members(client.QueueKey("reconcile")); len(got) != 2 {
		t.Fatalf("expected deduplicated members, got %v", got)
	}
	members, err := client.Dequeue(ctx, "reconcile", 10)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if len(members) != 2 || members[0] != "u1" || members[1] != "u2" {
		t.Fatalf("unexpected members %v", members)
	}
	members, err = client.Dequeue(ctx, "reconcile", 10)
	if err != nil || len(members) != 0 {
		t.Fatalf("expected empty queue, got %v %v", members, err)
	}
}

func TestIncrWithTTLSetsExpiryOnFirstHit(t *testing.T) {
	ctx := context.Background()
	client, mem := redistest.NewClient()
	key := client.RateLimitKey("watch:u1")
	if key != "test:rl:watch:u1" {
		t.Fatalf("unexpected rate limit key %s", key)
	}

	for want := int64(1); want <= 3; want++ {
		got, err := client.IncrWithTTL(ctx, key, time.Minute)
		if err != nil {
			t.Fatalf("incr: %v", err)
		}
		if got != want {
			t.Fatalf("expected count %d, got %d", want, got)
		}
	}
	if mem.TTL(key) != time.Minute {
		t.Fatalf("expected window ttl, got %s", mem.TTL(key))
	}
}

func TestNilClientReportsNotInitialized(t *testing.T) {
	var client *redis.Client
	if err := client.Ping(context.Background()); err == nil {
		t.Fatal("expected error from nil client")
	}
}
