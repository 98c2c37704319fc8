package rag

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/adhocore/gronx"
	"golang.org/x/sync/singleflight"

	"github.com/Vikiflow-Dev-Design/chat-app-sub001/pkg/logger"
)

// MetadataCache holds one metadata snapshot per tenant, rebuilt from the
// store on miss or expiry. Tenants are fully independent; the only shared
// state is the entry map. Concurrent misses for the same tenant collapse into
// a single in-flight store fetch.
type MetadataCache struct {
	store ChunkStore
	ttl   time.Duration
	now   func() time.Time

	group singleflight.Group

	mu      sync.RWMutex
	entries map[string]*CacheEntry
	hits    uint64
	misses  uint64

	sweepStop chan struct{}
	sweepWG   sync.WaitGroup
}

// CacheStats exposes counters for observability.
type CacheStats struct {
	Entries int    `json:"entries"`
	Hits    uint64 `json:"hits"`
	Misses  uint64 `json:"misses"`
}

func NewMetadataCache(store ChunkStore, ttl time.Duration) *MetadataCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &MetadataCache{
		store:   store,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]*CacheEntry),
	}
}

// Get returns the live entry when unexpired, otherwise rebuilds it
// synchronously. A TTL expiry racing a concurrent rebuild can hand one
// request a snapshot that is about to be replaced; that only reduces recall
// for that request and never fabricates content, so it is accepted.
func (c *MetadataCache) Get(ctx context.Context, tenantID string) (*CacheEntry, error) {
	c.mu.RLock()
	entry, ok := c.entries[tenantID]
	c.mu.RUnlock()
	if ok && !entry.expired(c.now()) {
		c.mu.Lock()
		c.hits++
		c.mu.Unlock()
		return entry, nil
	}

	c.mu.Lock()
	c.misses++
	c.mu.Unlock()

	// singleflight keyed by tenant: N concurrent misses become one store
	// fetch. The winning call's ctx drives the fetch; a cancellation there
	// surfaces to all joiners as the same store failure path.
	v, err, _ := c.group.Do(tenantID, func() (any, error) {
		// A joiner may arrive after the flight already stored a fresh
		// entry; re-check before fetching again.
		c.mu.RLock()
		cur, ok := c.entries[tenantID]
		c.mu.RUnlock()
		if ok && !cur.expired(c.now()) {
			return cur, nil
		}
		return c.rebuild(ctx, tenantID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*CacheEntry), nil
}

// Refresh forces a rebuild regardless of TTL. Joins any in-flight rebuild for
// the tenant, which already yields a brand-new snapshot.
func (c *MetadataCache) Refresh(ctx context.Context, tenantID string) (*CacheEntry, error) {
	v, err, _ := c.group.Do(tenantID, func() (any, error) {
		return c.rebuild(ctx, tenantID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*CacheEntry), nil
}

// Warm builds the tenant's entry ahead of the first query.
func (c *MetadataCache) Warm(ctx context.Context, tenantID string) error {
	_, err := c.Get(ctx, tenantID)
	return err
}

// Invalidate discards the tenant's entry immediately; the next Get rebuilds.
// Content-mutation pathways must call this after a successful mutation.
func (c *MetadataCache) Invalidate(tenantID string) {
	c.mu.Lock()
	delete(c.entries, tenantID)
	c.mu.Unlock()
}

func (c *MetadataCache) Stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return CacheStats{Entries: len(c.entries), Hits: c.hits, Misses: c.misses}
}

// rebuild fetches the full snapshot and replaces the entry wholesale.
func (c *MetadataCache) rebuild(ctx context.Context, tenantID string) (*CacheEntry, error) {
	chunks, err := c.store.ListChunkMetadata(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("%w: list metadata for tenant %s: %v", ErrStoreUnavailable, tenantID, err)
	}
	now := c.now()
	entry := &CacheEntry{
		TenantID:    tenantID,
		Chunks:      chunks,
		TotalChunks: len(chunks),
		LastUpdated: now,
		ExpiresAt:   now.Add(c.ttl),
	}
	c.mu.Lock()
	c.entries[tenantID] = entry
	c.mu.Unlock()
	logger.Debug(fmt.Sprintf("metadata cache rebuilt: tenant=%s chunks=%d", tenantID, len(chunks)))
	return entry, nil
}

// StartSweeper runs a background sweep of expired entries on the given cron
// schedule. The sweep only frees memory; expiry is enforced on every Get, so
// correctness never depends on it running.
func (c *MetadataCache) StartSweeper(schedule string) error {
	g := gronx.New()
	if !g.IsValid(schedule) {
		return fmt.Errorf("invalid sweep schedule: %q", schedule)
	}
	c.sweepStop = make(chan struct{})
	c.sweepWG.Add(1)
	go func() {
		defer c.sweepWG.Done()
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-c.sweepStop:
				return
			case <-ticker.C:
				if due, err := g.IsDue(schedule, c.now()); err == nil && due {
					if n := c.sweepExpired(); n > 0 {
						logger.Debug(fmt.Sprintf("metadata cache swept %d expired entries", n))
					}
				}
			}
		}
	}()
	return nil
}

// StopSweeper stops the background sweep and waits for it to finish.
func (c *MetadataCache) StopSweeper() {
	if c.sweepStop == nil {
		return
	}
	close(c.sweepStop)
	c.sweepWG.Wait()
	c.sweepStop = nil
}

func (c *MetadataCache) sweepExpired() int {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for tenant, entry := range c.entries {
		if entry.expired(now) {
			delete(c.entries, tenant)
			removed++
		}
	}
	return removed
}
