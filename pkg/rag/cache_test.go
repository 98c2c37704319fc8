package rag

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestCacheReusesFreshEntry(t *testing.T) {
	store := newFakeStore()
	store.add("t1", ChunkMetadata{ID: "c1", DocumentID: "d1", ChunkIndex: 0}, "text")
	cache := NewMetadataCache(store, time.Hour)

	first, err := cache.Get(context.Background(), "t1")
	if err != nil {
		t.Fatal(err)
	}
	second, err := cache.Get(context.Background(), "t1")
	if err != nil {
		t.Fatal(err)
	}
	if !first.LastUpdated.Equal(second.LastUpdated) {
		t.Fatalf("entry rebuilt while still fresh")
	}
	if store.listCalls != 1 {
		t.Fatalf("expected 1 store fetch, got %d", store.listCalls)
	}

	stats := cache.Stats()
	if stats.Hits != 1 || stats.Misses != 1 || stats.Entries != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestCacheConcurrentMissesCollapse(t *testing.T) {
	store := newFakeStore()
	store.add("t1", ChunkMetadata{ID: "c1", DocumentID: "d1", ChunkIndex: 0}, "text")
	store.listDelay = 50 * time.Millisecond
	cache := NewMetadataCache(store, time.Hour)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := cache.Get(context.Background(), "t1"); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	if store.listCalls != 1 {
		t.Fatalf("concurrent misses must collapse into 1 fetch, got %d", store.listCalls)
	}
}

func TestCacheInvalidateForcesRebuild(t *testing.T) {
	store := newFakeStore()
	store.add("t1", ChunkMetadata{ID: "c1", DocumentID: "d1", ChunkIndex: 0}, "text")
	cache := NewMetadataCache(store, time.Hour)

	entry, err := cache.Get(context.Background(), "t1")
	if err != nil {
		t.Fatal(err)
	}
	if entry.TotalChunks != 1 {
		t.Fatalf("expected 1 chunk, got %d", entry.TotalChunks)
	}

	store.add("t1", ChunkMetadata{ID: "c2", DocumentID: "d1", ChunkIndex: 1}, "more")
	cache.Invalidate("t1")

	entry, err = cache.Get(context.Background(), "t1")
	if err != nil {
		t.Fatal(err)
	}
	if entry.TotalChunks != 2 {
		t.Fatalf("stale entry survived invalidation: %d chunks", entry.TotalChunks)
	}
	if store.listCalls != 2 {
		t.Fatalf("expected 2 store fetches, got %d", store.listCalls)
	}
}

func TestCacheRefreshIgnoresTTL(t *testing.T) {
	store := newFakeStore()
	store.add("t1", ChunkMetadata{ID: "c1", DocumentID: "d1", ChunkIndex: 0}, "text")
	cache := NewMetadataCache(store, time.Hour)

	if _, err := cache.Get(context.Background(), "t1"); err != nil {
		t.Fatal(err)
	}
	store.add("t1", ChunkMetadata{ID: "c2", DocumentID: "d1", ChunkIndex: 1}, "more")

	entry, err := cache.Refresh(context.Background(), "t1")
	if err != nil {
		t.Fatal(err)
	}
	if entry.TotalChunks != 2 {
		t.Fatalf("refresh did not rebuild: %d chunks", entry.TotalChunks)
	}
}

func TestCacheExpiryReflectsShrunkStore(t *testing.T) {
	store := newFakeStore()
	store.add("t1", ChunkMetadata{ID: "c1", DocumentID: "d1", ChunkIndex: 0}, "text")
	store.add("t1", ChunkMetadata{ID: "c2", DocumentID: "d1", ChunkIndex: 1}, "more")
	cache := NewMetadataCache(store, time.Hour)

	clock := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return clock }

	entry, err := cache.Get(context.Background(), "t1")
	if err != nil {
		t.Fatal(err)
	}
	if entry.TotalChunks != 2 {
		t.Fatalf("expected 2 chunks, got %d", entry.TotalChunks)
	}

	// A document is removed without an invalidation signal.
	store.mu.Lock()
	store.meta["t1"] = store.meta["t1"][:1]
	store.content["t1"] = store.content["t1"][:1]
	store.mu.Unlock()

	// Within the TTL the stale snapshot is still served.
	clock = clock.Add(30 * time.Minute)
	entry, err = cache.Get(context.Background(), "t1")
	if err != nil {
		t.Fatal(err)
	}
	if entry.TotalChunks != 2 {
		t.Fatalf("entry rebuilt before expiry")
	}

	clock = clock.Add(31 * time.Minute)
	entry, err = cache.Get(context.Background(), "t1")
	if err != nil {
		t.Fatal(err)
	}
	if entry.TotalChunks != 1 {
		t.Fatalf("expired entry not rebuilt against shrunk store: %d chunks", entry.TotalChunks)
	}
}

func TestCacheStoreFailureIsTyped(t *testing.T) {
	store := newFakeStore()
	store.failList = true
	cache := NewMetadataCache(store, time.Hour)

	_, err := cache.Get(context.Background(), "t1")
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsStoreUnavailable(err) {
		t.Fatalf("expected store-unavailable error, got %v", err)
	}
}

func TestCacheEmptyTenantIsCached(t *testing.T) {
	store := newFakeStore()
	cache := NewMetadataCache(store, time.Hour)

	entry, err := cache.Get(context.Background(), "empty")
	if err != nil {
		t.Fatal(err)
	}
	if entry.TotalChunks != 0 {
		t.Fatalf("expected empty snapshot, got %d chunks", entry.TotalChunks)
	}
	if _, err := cache.Get(context.Background(), "empty"); err != nil {
		t.Fatal(err)
	}
	// An empty tenant is a valid cached state, not a perpetual miss.
	if store.listCalls != 1 {
		t.Fatalf("empty snapshot refetched: %d calls", store.listCalls)
	}
}

func TestSweepExpiredRemovesOnlyExpired(t *testing.T) {
	store := newFakeStore()
	store.add("t1", ChunkMetadata{ID: "c1", DocumentID: "d1", ChunkIndex: 0}, "text")
	store.add("t2", ChunkMetadata{ID: "c2", DocumentID: "d2", ChunkIndex: 0}, "text")
	cache := NewMetadataCache(store, time.Hour)

	clock := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return clock }

	if _, err := cache.Get(context.Background(), "t1"); err != nil {
		t.Fatal(err)
	}
	clock = clock.Add(45 * time.Minute)
	if _, err := cache.Get(context.Background(), "t2"); err != nil {
		t.Fatal(err)
	}

	clock = clock.Add(30 * time.Minute)
	if n := cache.sweepExpired(); n != 1 {
		t.Fatalf("expected 1 entry swept, got %d", n)
	}
	if stats := cache.Stats(); stats.Entries != 1 {
		t.Fatalf("expected 1 entry left, got %d", stats.Entries)
	}
}

func TestStartSweeperRejectsBadSchedule(t *testing.T) {
	cache := NewMetadataCache(newFakeStore(), time.Hour)
	if err := cache.StartSweeper("not a schedule"); err == nil {
		t.Fatal("expected schedule validation error")
	}
	if err := cache.StartSweeper("*/10 * * * *"); err != nil {
		t.Fatalf("valid schedule rejected: %v", err)
	}
	cache.StopSweeper()
}
