package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
)

// Integration test: needs a reachable Redis in REDIS_ADDRESS.
func TestImageCache_RoundTrip(t *testing.T) {
	addr := os.Getenv("REDIS_ADDRESS")
	if addr == "" {
		t.Skip("REDIS_ADDRESS not set, skipping redis integration test")
	}

	ctx := context.Background()
	client, err := Connect(ctx, addr, os.Getenv("REDIS_PASSWORD"))
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Close()

	c := NewImageCache(client, "test-"+uuid.NewString())
	key := "issue:1:image:before"

	if _, ok, err := c.Get(ctx, key); err != nil || ok {
		t.Fatalf("expected miss, got ok=%t err=%v", ok, err)
	}

	want := []byte{0x89, 'P', 'N', 'G'}
	if err := c.Set(ctx, key, want, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, ok, err := c.Get(ctx, key)
	if err != nil || !ok || string(got) != string(want) {
		t.Fatalf("get = %v, %t, %v", got, ok, err)
	}

	if err := c.Delete(ctx, key); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := c.Get(ctx, key); ok {
		t.Errorf("expected miss after delete")
	}
}

func TestImageCache_KeyPrefix(t *testing.T) {
	if got := NewImageCache(nil, "meresahar").key("a"); got != "meresahar:a" {
		t.Errorf("key = %q", got)
	}
	if got := NewImageCache(nil, "").key("a"); got != "a" {
		t.Errorf("key without prefix = %q", got)
	}
}
