package telemetry

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

// CatalogStorageKey is the persisted location of the whole catalog.
const CatalogStorageKey = "vf-telemetry-catalog:v1"

// DefaultCatalogTTL bounds how long a VIN's key set is served after its
// last update.
const DefaultCatalogTTL = 14 * 24 * time.Hour

type catalogEntry struct {
	Keys        []string `cbor:"keys"`
	LastUpdated int64    `cbor:"lastUpdated"`
}

// CatalogEntry is one VIN's fresh key set as reported by Catalog.All.
type CatalogEntry struct {
	VIN         string
	Keys        []string
	LastUpdated time.Time
}

// Catalog remembers which canonical keys each vehicle has reported. Key
// sets only grow while fresh; a stale set is replaced by the next write.
// Unreadable persisted data is treated as an empty catalog.
type Catalog struct {
	mu      sync.Mutex
	entries map[string]catalogEntry
	loaded  bool

	store  storage.Store
	ttl    time.Duration
	clock  clock.Clock
	logger *zap.Logger
}

func NewCatalog(store storage.Store, ttl time.Duration, c clock.Clock, logger *zap.Logger) *Catalog {
	if ttl <= 0 {
		ttl = DefaultCatalogTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Catalog{
		entries: make(map[string]catalogEntry),
		store:   store,
		ttl:     ttl,
		clock:   clock.OrReal(c),
		logger:  logger,
	}
}

// loadLocked hydrates the catalog from storage on first use.
// Caller must hold c.mu.
func (c *Catalog) loadLocked(ctx context.Context) {
	if c.loaded {
		return
	}
	c.loaded = true
	if c.store == nil {
		return
	}
	data, ok, err := c.store.Get(ctx, CatalogStorageKey)
	if err != nil {
		c.logger.Warn("reading telemetry catalog", zap.Error(err))
		return
	}
	if !ok {
		return
	}
	var persisted map[string]catalogEntry
	if err := codec.Unmarshal(data, &persisted); err != nil {
		c.logger.Warn("discarding corrupt telemetry catalog", zap.Error(err))
		return
	}
	for vin, e := range persisted {
		if vin == "" || e.LastUpdated <= 0 {
			continue
		}
		c.entries[vin] = e
	}
}

// persistLocked writes the catalog back. Caller must hold c.mu.
func (c *Catalog) persistLocked(ctx context.Context) {
	if c.store == nil {
		return
	}
	var err error
	if len(c.entries) == 0 {
		err = c.store.Delete(ctx, CatalogStorageKey)
	} else {
		var data []byte
		data, err = codec.Marshal(c.entries)
		if err == nil {
			err = c.store.Set(ctx, CatalogStorageKey, data)
		}
	}
	if err != nil {
		c.logger.Warn("persisting telemetry catalog", zap.Error(err))
	}
}

func (c *Catalog) freshLocked(e catalogEntry) bool {
	return c.clock.Now().UnixMilli()-e.LastUpdated <= c.ttl.Milliseconds()
}

// RecordKeys merges keys into vin's set and persists the result with a
// refreshed timestamp.
func (c *Catalog) RecordKeys(ctx context.Context, vin string, keys []string) {
	if vin == "" || len(keys) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loadLocked(ctx)

	set := make(map[string]struct{}, len(keys))
	if prev, ok := c.entries[vin]; ok && c.freshLocked(prev) {
		for _, k := range prev.Keys {
			set[k] = struct{}{}
		}
	}
	for _, k := range keys {
		if k != "" {
			set[k] = struct{}{}
		}
	}
	merged := make([]string, 0, len(set))
	for k := range set {
		merged = append(merged, k)
	}
	sort.Strings(merged)

	c.entries[vin] = catalogEntry{Keys: merged, LastUpdated: c.clock.Now().UnixMilli()}
	c.persistLocked(ctx)
}

// GetKeys returns vin's key set, or nil if it is absent or past the TTL.
func (c *Catalog) GetKeys(ctx context.Context, vin string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loadLocked(ctx)

	e, ok := c.entries[vin]
	if !ok || !c.freshLocked(e) {
		return nil
	}
	return append([]string(nil), e.Keys...)
}

// All returns every fresh entry ordered by VIN.
func (c *Catalog) All(ctx context.Context) []CatalogEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loadLocked(ctx)

	out := make([]CatalogEntry, 0, len(c.entries))
	for vin, e := range c.entries {
		if !c.freshLocked(e) {
			continue
		}
		out = append(out, CatalogEntry{
			VIN:         vin,
			Keys:        append([]string(nil), e.Keys...),
			LastUpdated: time.UnixMilli(e.LastUpdated),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VIN < out[j].VIN })
	return out
}

// Clear removes vin's entry, or the whole catalog when vin is empty.
func (c *Catalog) Clear(ctx context.Context, vin string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loadLocked(ctx)

	if vin == "" {
		c.entries = make(map[string]catalogEntry)
	} else {
		delete(c.entries, vin)
	}
	c.persistLocked(ctx)
}
