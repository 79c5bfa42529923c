package history

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nixlim/vf-top/internal/clock"
	"github.com/nixlim/vf-top/internal/codec"
	"github.com/nixlim/vf-top/internal/storage"
)

const (
	// CacheStorageKey is the persisted location of every VIN's history.
	CacheStorageKey = "vf_charging_sessions_cache_v1"

	DefaultCacheTTL = 24 * time.Hour
	DefaultMaxVINs  = 6
)

// Entry is one VIN's cached history.
type Entry struct {
	Sessions     []Session `cbor:"sessions"`
	TotalRecords int       `cbor:"totalRecords"`
	// FetchedAt is epoch-ms.
	FetchedAt int64 `cbor:"fetchedAt"`
}

type persistedCache struct {
	Items map[string]Entry `cbor:"items"`
}

// Cache holds the session history of the most recently fetched VINs.
// Entries past the TTL are dropped on every read and write, and only the
// MaxVINs most recently fetched are kept.
type Cache struct {
	mu       sync.Mutex
	entries  map[string]Entry
	hydrated bool

	store   storage.Store
	ttl     time.Duration
	maxVINs int
	clock   clock.Clock
	logger  *zap.Logger
}

func NewCache(store storage.Store, ttl time.Duration, maxVINs int, c clock.Clock, logger *zap.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if maxVINs <= 0 {
		maxVINs = DefaultMaxVINs
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		entries: make(map[string]Entry),
		store:   store,
		ttl:     ttl,
		maxVINs: maxVINs,
		clock:   clock.OrReal(c),
		logger:  logger,
	}
}

func (c *Cache) expiredLocked(e Entry, now int64) bool {
	return now-e.FetchedAt > c.ttl.Milliseconds()
}

// hydrateLocked loads the persisted cache once, dropping malformed and
// expired entries, and writes the compacted result back.
// Caller must hold c.mu.
func (c *Cache) hydrateLocked(ctx context.Context) {
	if c.hydrated {
		return
	}
	c.hydrated = true
	if c.store == nil {
		return
	}
	data, ok, err := c.store.Get(ctx, CacheStorageKey)
	if err != nil {
		c.logger.Warn("reading session cache", zap.Error(err))
		return
	}
	if !ok {
		return
	}
	var persisted persistedCache
	if err := codec.Unmarshal(data, &persisted); err != nil {
		c.logger.Warn("discarding corrupt session cache", zap.Error(err))
		c.persistLocked(ctx)
		return
	}
	now := c.clock.Now().UnixMilli()
	for vin, e := range persisted.Items {
		if vin == "" || e.FetchedAt <= 0 || e.TotalRecords < 0 || c.expiredLocked(e, now) {
			continue
		}
		c.entries[vin] = e
	}
	c.cleanupLocked()
	c.persistLocked(ctx)
}

// cleanupLocked drops expired entries and evicts the least recently
// fetched beyond maxVINs. It reports whether anything was removed.
func (c *Cache) cleanupLocked() bool {
	now := c.clock.Now().UnixMilli()
	removed := false
	type aged struct {
		vin string
		at  int64
	}
	kept := make([]aged, 0, len(c.entries))
	for vin, e := range c.entries {
		if c.expiredLocked(e, now) {
			delete(c.entries, vin)
			removed = true
			continue
		}
		kept = append(kept, aged{vin, e.FetchedAt})
	}
	if len(kept) <= c.maxVINs {
		return removed
	}
	sort.Slice(kept, func(i, j int) bool {
		if kept[i].at != kept[j].at {
			return kept[i].at > kept[j].at
		}
		return kept[i].vin < kept[j].vin
	})
	for _, k := range kept[c.maxVINs:] {
		delete(c.entries, k.vin)
	}
	return true
}

// persistLocked writes the cache back. Caller must hold c.mu.
func (c *Cache) persistLocked(ctx context.Context) {
	if c.store == nil {
		return
	}
	var err error
	if len(c.entries) == 0 {
		err = c.store.Delete(ctx, CacheStorageKey)
	} else {
		var data []byte
		data, err = codec.Marshal(persistedCache{Items: c.entries})
		if err == nil {
			err = c.store.Set(ctx, CacheStorageKey, data)
		}
	}
	if err != nil {
		c.logger.Warn("persisting session cache", zap.Error(err))
	}
}

// Get returns vin's entry if it is within the TTL.
func (c *Cache) Get(ctx context.Context, vin string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hydrateLocked(ctx)
	if c.cleanupLocked() {
		c.persistLocked(ctx)
	}
	e, ok := c.entries[vin]
	if !ok {
		return Entry{}, false
	}
	e.Sessions = append([]Session(nil), e.Sessions...)
	return e, true
}

// Put stores sessions for vin stamped with the current time.
func (c *Cache) Put(ctx context.Context, vin string, sessions []Session, total int) Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hydrateLocked(ctx)

	e := Entry{
		Sessions:     append([]Session(nil), sessions...),
		TotalRecords: total,
		FetchedAt:    c.clock.Now().UnixMilli(),
	}
	c.entries[vin] = e
	c.cleanupLocked()
	c.persistLocked(ctx)
	return e
}

// VINs lists cached VINs, most recently fetched first.
func (c *Cache) VINs(ctx context.Context) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hydrateLocked(ctx)
	c.cleanupLocked()

	vins := make([]string, 0, len(c.entries))
	for vin := range c.entries {
		vins = append(vins, vin)
	}
	sort.Slice(vins, func(i, j int) bool {
		a, b := c.entries[vins[i]].FetchedAt, c.entries[vins[j]].FetchedAt
		if a != b {
			return a > b
		}
		return vins[i] < vins[j]
	})
	return vins
}

// Clear drops vin's entry, or every entry when vin is empty.
func (c *Cache) Clear(ctx context.Context, vin string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hydrateLocked(ctx)
	if vin == "" {
		c.entries = make(map[string]Entry)
	} else {
		delete(c.entries, vin)
	}
	c.persistLocked(ctx)
}
