package vehicle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nixlim/vf-top/internal/clock"
	"github.com/nixlim/vf-top/internal/telemetry"
)

// ErrNotFound is returned when a VIN is not in the loaded vehicle list.
var ErrNotFound = errors.New("vehicle not found")

// Subscriber moves the live signal subscription to a vehicle.
type Subscriber interface {
	Resubscribe(ctx context.Context, vin string) error
}

// TelemetryReader exposes the live records held for a vehicle.
type TelemetryReader interface {
	ReadAll(vin string) []telemetry.Record
}

// Listener is called after the active snapshot or a cache entry changes.
// Listeners run outside the store lock.
type Listener func(vin string)

// Snapshot is a copy of the active vehicle's state.
type Snapshot struct {
	VIN          string
	Fields       Partial
	IsRefreshing bool
	IsScanning   bool
	IsEnriching  bool
}

// LastUpdated returns the snapshot's last update time, or the zero time.
func (s Snapshot) LastUpdated() time.Time {
	ms, ok := s.Fields.LastUpdated()
	if !ok {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// UpdateOptions controls how nulls in an update are treated.
type UpdateOptions struct {
	// SkipNullValues drops explicit nulls so a partial refresh cannot
	// overwrite last known good values.
	SkipNullValues bool
}

// Options configures a Store. Zero durations take the defaults.
type Options struct {
	Clock      clock.Clock
	Logger     *zap.Logger
	Subscriber Subscriber
	Telemetry  TelemetryReader

	Freshness  time.Duration
	FutureSkew time.Duration
	DeepScan   DeepScanOptions
}

// Store owns the vehicle list, the per-VIN partial cache and the active
// snapshot. All methods are safe for concurrent use.
type Store struct {
	mu        sync.RWMutex
	vehicles  []Identity
	byVIN     map[string]Identity
	cache     map[string]Partial
	active    Snapshot
	listeners []Listener

	scans   map[string]ScanResult
	retries map[string]scanRetry

	clock      clock.Clock
	logger     *zap.Logger
	subscriber Subscriber
	reader     TelemetryReader
	fresh      freshness
	deepScan   DeepScanOptions

	wg sync.WaitGroup
}

func NewStore(opts Options) *Store {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Freshness <= 0 {
		opts.Freshness = 5 * time.Minute
	}
	if opts.FutureSkew <= 0 {
		opts.FutureSkew = 5 * time.Minute
	}
	return &Store{
		byVIN:      make(map[string]Identity),
		cache:      make(map[string]Partial),
		active:     Snapshot{Fields: resetDefaults.Clone()},
		scans:      make(map[string]ScanResult),
		retries:    make(map[string]scanRetry),
		clock:      clock.OrReal(opts.Clock),
		logger:     opts.Logger,
		subscriber: opts.Subscriber,
		reader:     opts.Telemetry,
		fresh:      freshness{window: opts.Freshness, futureSkew: opts.FutureSkew},
		deepScan:   opts.DeepScan.withDefaults(),
	}
}

// OnChange registers a listener invoked after every state change.
func (s *Store) OnChange(fn Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *Store) notify(vin string) {
	s.mu.RLock()
	listeners := make([]Listener, len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.RUnlock()

	for _, fn := range listeners {
		fn(vin)
	}
}

// SetVehicles replaces the vehicle list. Duplicate VINs keep the last
// entry. Every vehicle's cache entry is seeded with its identity fields,
// keeping any telemetry already cached for it.
func (s *Store) SetVehicles(list []Identity) {
	seen := make(map[string]int, len(list))
	var unique []Identity
	for _, id := range list {
		if id.VIN == "" {
			continue
		}
		if i, dup := seen[id.VIN]; dup {
			unique[i] = id
			continue
		}
		seen[id.VIN] = len(unique)
		unique = append(unique, id)
	}

	s.mu.Lock()
	s.vehicles = unique
	s.byVIN = make(map[string]Identity, len(unique))
	for _, id := range unique {
		s.byVIN[id.VIN] = id
		entry := s.cache[id.VIN]
		if entry == nil {
			entry = Partial{}
		}
		for k, v := range seedPartial(id) {
			entry[k] = v
		}
		s.cache[id.VIN] = entry
	}
	s.mu.Unlock()

	s.notify("")
}

// Vehicles returns the loaded vehicle list in load order.
func (s *Store) Vehicles() []Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Identity, len(s.vehicles))
	copy(out, s.vehicles)
	return out
}

// Identity returns the list entry for vin.
func (s *Store) Identity(vin string) (Identity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byVIN[vin]
	return id, ok
}

// SwitchActive makes vin the active vehicle. The new snapshot is the reset
// defaults overlaid with the vehicle's identity and then its cached
// partial. The live subscription is moved in the background; its failure
// is logged and does not undo the switch.
func (s *Store) SwitchActive(ctx context.Context, vin string) error {
	s.mu.Lock()
	id, ok := s.byVIN[vin]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("switch to %q: %w", vin, ErrNotFound)
	}

	cached := s.cache[vin]
	hasFresh := s.fresh.has(cached, s.clock.Now())

	// The user's avatar is account-level; nothing else survives a switch.
	fields := resetDefaults.Clone()
	for k, v := range basePartial(id, s.active.Fields["user_avatar"]) {
		fields[k] = v
	}
	for k, v := range cached {
		fields[k] = v
	}
	fields[FieldVIN] = vin

	s.active = Snapshot{
		VIN:          vin,
		Fields:       fields,
		IsRefreshing: !hasFresh,
	}
	s.mu.Unlock()

	s.notify(vin)
	s.resubscribe(ctx, vin)
	return nil
}

func (s *Store) resubscribe(ctx context.Context, vin string) {
	if s.subscriber == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.subscriber.Resubscribe(ctx, vin); err != nil {
			s.logger.Warn("moving live subscription", zap.String("vin", vin), zap.Error(err))
		}
	}()
}

// Refresh marks vin as refreshing, waits for the live subscription to be
// re-established and clears the flag whatever the outcome.
func (s *Store) Refresh(ctx context.Context, vin string) error {
	if vin == "" {
		return nil
	}
	s.setRefreshing(vin, true)
	defer s.setRefreshing(vin, false)

	if s.subscriber == nil {
		return nil
	}
	if err := s.subscriber.Resubscribe(ctx, vin); err != nil {
		s.logger.Warn("refreshing live subscription", zap.String("vin", vin), zap.Error(err))
		return err
	}
	return nil
}

// Update merges p into the cache entry of its VIN (p["vin"], or the active
// VIN when absent) and into the active snapshot when that VIN is active.
// It returns false when there is no target VIN.
func (s *Store) Update(p Partial, opts UpdateOptions) bool {
	s.mu.Lock()
	target, _ := p[FieldVIN].(string)
	if target == "" {
		target = s.active.VIN
	}
	if target == "" {
		s.mu.Unlock()
		return false
	}

	incoming := make(Partial, len(p)+1)
	for k, v := range p {
		if opts.SkipNullValues && v == nil {
			continue
		}
		incoming[k] = v
	}
	if _, ok := incoming.LastUpdated(); !ok {
		incoming[FieldLastUpdated] = s.clock.Now().UnixMilli()
	}

	entry := s.cache[target]
	if entry == nil {
		entry = Partial{}
		s.cache[target] = entry
	}
	for k, v := range incoming {
		entry[k] = v
	}
	if target == s.active.VIN {
		for k, v := range incoming {
			s.active.Fields[k] = v
		}
	}
	s.mu.Unlock()

	s.notify(target)
	return true
}

// ClearRefreshing drops the refreshing flag once live data arrives for the
// active vehicle.
func (s *Store) ClearRefreshing(vin string) {
	s.mu.Lock()
	changed := s.active.VIN == vin && s.active.IsRefreshing
	if changed {
		s.active.IsRefreshing = false
	}
	s.mu.Unlock()
	if changed {
		s.notify(vin)
	}
}

func (s *Store) setRefreshing(vin string, v bool) {
	s.mu.Lock()
	changed := s.active.VIN == vin && s.active.IsRefreshing != v
	if changed {
		s.active.IsRefreshing = v
	}
	s.mu.Unlock()
	if changed {
		s.notify(vin)
	}
}

// SetEnriching sets the enrichment indicator when vin is active.
func (s *Store) SetEnriching(vin string, v bool) {
	s.mu.Lock()
	changed := s.active.VIN == vin && s.active.IsEnriching != v
	if changed {
		s.active.IsEnriching = v
	}
	s.mu.Unlock()
	if changed {
		s.notify(vin)
	}
}

func (s *Store) setScanning(vin string, v bool) {
	s.mu.Lock()
	changed := s.active.VIN == vin && s.active.IsScanning != v
	if changed {
		s.active.IsScanning = v
	}
	s.mu.Unlock()
	if changed {
		s.notify(vin)
	}
}

// Active returns a copy of the active snapshot.
func (s *Store) Active() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := s.active
	snap.Fields = s.active.Fields.Clone()
	return snap
}

// ActiveVIN returns the active VIN, or "" before the first switch.
func (s *Store) ActiveVIN() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active.VIN
}

// Cached returns a copy of vin's cache entry.
func (s *Store) Cached(vin string) (Partial, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.cache[vin]
	if !ok {
		return nil, false
	}
	return p.Clone(), true
}

// HasFreshTelemetry reports whether vin's cached partial holds recent,
// valid telemetry.
func (s *Store) HasFreshTelemetry(vin string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fresh.has(s.cache[vin], s.clock.Now())
}

// Wait blocks until background resubscriptions have finished.
func (s *Store) Wait() {
	s.wg.Wait()
}
