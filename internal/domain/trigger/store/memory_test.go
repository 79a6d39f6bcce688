package store

import (
	"context"
	"testing"
	"time"

	"voicerelay-server-go/internal/domain/trigger/model"
)

func TestMemoryStoreBasicLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewMemory(Config{
		Memory: &MemoryConfig{GCInterval: 10 * time.Millisecond},
	})
	t.Cleanup(func() {
		_ = store.Close(ctx)
	})

	trig := model.Trigger{
		ID:     "trig-basic",
		Phrase: "클로드",
		Owner:  "assistant",
	}

	if err := store.Put(ctx, trig); err != nil {
		t.Fatalf("Put returned error: %v", err)
	}

	stored, err := store.Get(ctx, trig.ID)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if stored.Phrase != trig.Phrase || stored.Owner != trig.Owner {
		t.Fatalf("unexpected trigger: %+v", stored)
	}
	if stored.CreatedAt.IsZero() {
		t.Fatalf("Put should stamp CreatedAt")
	}

	list, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(list) != 1 || list[0].ID != trig.ID {
		t.Fatalf("expected list to include trigger: %v", list)
	}

	if err := store.Remove(ctx, trig.ID); err != nil {
		t.Fatalf("Remove returned error: %v", err)
	}
	if _, err := store.Get(ctx, trig.ID); err == nil {
		t.Fatalf("expected get error after removal")
	}
}

func TestMemoryStoreExpiration(t *testing.T) {
	ctx := context.Background()
	store := NewMemory(Config{
		Memory: &MemoryConfig{GCInterval: 5 * time.Millisecond},
	})
	t.Cleanup(func() {
		_ = store.Close(ctx)
	})

	expires := time.Now().Add(50 * time.Millisecond)
	trig := model.Trigger{
		ID:        "trig-expire",
		Phrase:    "잠깐만",
		Owner:     "assistant",
		ExpiresAt: &expires,
	}
	if err := store.Put(ctx, trig); err != nil {
		t.Fatalf("Put returned error: %v", err)
	}

	time.Sleep(80 * time.Millisecond)

	if err := store.CleanupExpired(ctx); err != nil {
		t.Fatalf("CleanupExpired returned error: %v", err)
	}

	if _, err := store.Get(ctx, trig.ID); err == nil {
		t.Fatalf("expected get to fail after expiration")
	}

	list, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expired trigger should not be listed: %v", list)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats returned error: %v", err)
	}
	if stats["active"].(int) != 0 {
		t.Fatalf("expected active count to be zero, got %v", stats["active"])
	}
}

func TestMemoryStorePermanentTriggerNeverExpires(t *testing.T) {
	ctx := context.Background()
	store := NewMemory(Config{
		Memory: &MemoryConfig{GCInterval: 5 * time.Millisecond},
	})
	t.Cleanup(func() {
		_ = store.Close(ctx)
	})

	if err := store.Put(ctx, model.Trigger{ID: "trig-perm", Phrase: "Claude", Owner: "assistant"}); err != nil {
		t.Fatalf("Put returned error: %v", err)
	}

	time.Sleep(30 * time.Millisecond)
	if err := store.CleanupExpired(ctx); err != nil {
		t.Fatalf("CleanupExpired returned error: %v", err)
	}

	if _, err := store.Get(ctx, "trig-perm"); err != nil {
		t.Fatalf("permanent trigger should survive cleanup: %v", err)
	}
}
