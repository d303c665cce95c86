package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redisv9 "github.com/redis/go-redis/v9"

	"gopherchat/internal/model"
)

func newTestCache(t *testing.T) (*HistoryCache, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redisv9.NewClient(&redisv9.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewHistoryCache(client, 60*time.Second, 5*time.Second), mr
}

func TestHistoryRoundTrip(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	messages := []model.Message{
		{ID: 1, ConversationID: 9, UserID: 2, Role: "user", Content: "hi"},
		{ID: 2, ConversationID: 9, UserID: 2, Role: "assistant", Content: "hello"},
	}
	if err := cache.SetHistory(ctx, 9, messages); err != nil {
		t.Fatalf("SetHistory: %v", err)
	}

	got, hit, err := cache.GetHistory(ctx, 9)
	if err != nil {
		t.Fatalf("GetHistory: %v", err)
	}
	if !hit {
		t.Fatal("expected cache hit")
	}
	if len(got) != 2 || got[1].Content != "hello" {
		t.Fatalf("cached messages = %+v", got)
	}
}

func TestHistoryMiss(t *testing.T) {
	cache, _ := newTestCache(t)

	_, hit, err := cache.GetHistory(context.Background(), 404)
	if err != nil {
		t.Fatalf("GetHistory: %v", err)
	}
	if hit {
		t.Fatal("expected miss for unknown conversation")
	}
}

func TestDeleteHistory(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	if err := cache.SetHistory(ctx, 3, []model.Message{{ID: 1, Content: "x"}}); err != nil {
		t.Fatalf("SetHistory: %v", err)
	}
	if err := cache.DeleteHistory(ctx, 3); err != nil {
		t.Fatalf("DeleteHistory: %v", err)
	}

	_, hit, err := cache.GetHistory(ctx, 3)
	if err != nil {
		t.Fatalf("GetHistory: %v", err)
	}
	if hit {
		t.Fatal("history should be gone after delete")
	}
}

func TestDirtyMarkerExpires(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	if err := cache.MarkDirty(ctx, 5); err != nil {
		t.Fatalf("MarkDirty: %v", err)
	}
	dirty, err := cache.IsDirty(ctx, 5)
	if err != nil {
		t.Fatalf("IsDirty: %v", err)
	}
	if !dirty {
		t.Fatal("expected dirty marker to be set")
	}

	mr.FastForward(6 * time.Second)

	dirty, err = cache.IsDirty(ctx, 5)
	if err != nil {
		t.Fatalf("IsDirty after expiry: %v", err)
	}
	if dirty {
		t.Fatal("dirty marker should expire")
	}
}

func TestHistoryTTL(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	if err := cache.SetHistory(ctx, 7, []model.Message{{ID: 1, Content: "x"}}); err != nil {
		t.Fatalf("SetHistory: %v", err)
	}

	mr.FastForward(61 * time.Second)

	_, hit, err := cache.GetHistory(ctx, 7)
	if err != nil {
		t.Fatalf("GetHistory: %v", err)
	}
	if hit {
		t.Fatal("history should expire after its TTL")
	}
}
