// Package engine composes the telemetry, vehicle, enrichment and history
// components behind one service object and runs the live ingest pipeline.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nixlim/vf-top/internal/clock"
	"github.com/nixlim/vf-top/internal/config"
	"github.com/nixlim/vf-top/internal/enrich"
	"github.com/nixlim/vf-top/internal/events"
	"github.com/nixlim/vf-top/internal/history"
	"github.com/nixlim/vf-top/internal/source"
	"github.com/nixlim/vf-top/internal/storage"
	"github.com/nixlim/vf-top/internal/telemetry"
	"github.com/nixlim/vf-top/internal/vehicle"
)

// ErrNoSource is returned by operations whose upstream is not configured.
var ErrNoSource = errors.New("engine: source not configured")

// SignalSource is the live telemetry feed.
type SignalSource interface {
	Run(ctx context.Context) error
	Batches() <-chan source.Batch
	Resubscribe(ctx context.Context, vin string) error
}

// VehicleLister returns the account's vehicles.
type VehicleLister interface {
	ListVehicles(ctx context.Context) ([]vehicle.Identity, error)
}

// Deps are the engine's collaborators. Nil sources disable the features
// that need them.
type Deps struct {
	Config   config.Config
	Store    storage.Store
	Signals  SignalSource
	History  history.Source
	Vehicles VehicleLister
	Places   enrich.PlaceLookup
	Weather  enrich.WeatherLookup
	Recorder source.Recorder
	Clock    clock.Clock
	Logger   *zap.Logger
}

// Engine is safe for concurrent use.
type Engine struct {
	cfg    config.Config
	clock  clock.Clock
	logger *zap.Logger

	bucket   *telemetry.Bucket
	catalog  *telemetry.Catalog
	fields   telemetry.FieldMap
	aliases  telemetry.Aliases
	vehicles *vehicle.Store
	throttle *enrich.Throttle
	cache    *history.Cache
	history  *history.Reconciler
	bus      *events.Bus

	signals  SignalSource
	lister   VehicleLister
	recorder source.Recorder
	hasHist  bool

	wg        sync.WaitGroup
	closeOnce sync.Once
}

func New(d Deps) *Engine {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clk := clock.OrReal(d.Clock)
	cfg := d.Config
	aliases := telemetry.NewAliases(cfg.Telemetry.Aliases)

	e := &Engine{
		cfg:     cfg,
		clock:   clk,
		logger:  logger,
		bucket:  telemetry.NewBucket(clk, telemetry.ParseOrdering(cfg.Telemetry.Ordering)),
		catalog: telemetry.NewCatalog(d.Store, time.Duration(cfg.Telemetry.CatalogTTLDays)*24*time.Hour, clk, logger.Named("catalog")),
		fields:  telemetry.NewFieldMap(cfg.Telemetry.Fields).Merge(aliases.Fields(cfg.Telemetry.AliasFields)),
		aliases: aliases,
		bus:     events.NewBus(cfg.Display.NoticeBufferSize),
		signals: d.Signals,
		lister:  d.Vehicles,
		hasHist: d.History != nil,
	}
	e.recorder = d.Recorder
	if e.recorder == nil {
		e.recorder = source.NopRecorder{}
	}

	vopts := vehicleOptions(cfg.Vehicle)
	vopts.Clock = clk
	vopts.Logger = logger.Named("vehicle")
	vopts.Telemetry = e.bucket
	if d.Signals != nil {
		vopts.Subscriber = d.Signals
	}
	e.vehicles = vehicle.NewStore(vopts)

	topts := throttleOptions(cfg.Enrichment)
	topts.Clock = clk
	topts.Logger = logger.Named("enrich")
	e.throttle = enrich.NewThrottle(d.Places, d.Weather, e.vehicles, topts)

	e.cache = history.NewCache(d.Store,
		time.Duration(cfg.History.TTLHours)*time.Hour, cfg.History.MaxCachedVINs, clk, logger.Named("history"))
	hopts := historyOptions(cfg.History)
	hopts.Clock = clk
	hopts.Logger = logger.Named("history")
	src := d.History
	if src == nil {
		src = noHistory{}
	}
	e.history = history.NewReconciler(src, e.cache, hopts)

	e.vehicles.OnChange(func(vin string) {
		e.publish(events.Notice{Kind: events.KindSnapshot, VIN: vin})
	})
	e.history.OnChange(func(vin string) {
		st := e.history.State()
		n := events.Notice{Kind: events.KindHistory, VIN: vin, Detail: fmt.Sprintf("%d sessions", st.TotalLoaded)}
		if st.IsLoading {
			n.Detail = "loading"
		}
		e.publish(n)
	})
	return e
}

type noHistory struct{}

func (noHistory) FetchPage(context.Context, string, int, int) (history.Page, error) {
	return history.Page{}, ErrNoSource
}

func (e *Engine) publish(n events.Notice) {
	if n.At.IsZero() {
		n.At = e.clock.Now()
	}
	if n.Version == 0 {
		n.Version = e.bucket.Version()
	}
	e.bus.Publish(n)
}

func (e *Engine) publishErr(vin string, err error) {
	e.publish(events.Notice{Kind: events.KindError, VIN: vin, Detail: err.Error()})
}

// Start runs the signal feed and the ingest loop in the background until
// ctx is done. It is a no-op without a signal source.
func (e *Engine) Start(ctx context.Context) {
	if e.signals == nil {
		return
	}
	e.wg.Add(2)
	go func() {
		defer e.wg.Done()
		if err := e.signals.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			e.logger.Warn("signal feed stopped", zap.Error(err))
		}
	}()
	go func() {
		defer e.wg.Done()
		for b := range e.signals.Batches() {
			e.recorder.RecordBatch(b)
			e.Ingest(ctx, b.VIN, b.Records)
		}
	}()
}

// Ingest runs one batch through the pipeline: bucket, key catalog, field
// mapping into the vehicle cache, then enrichment for the active vehicle.
func (e *Engine) Ingest(ctx context.Context, vin string, records []any) telemetry.IngestResult {
	res := e.bucket.Ingest(vin, records)
	if res.Accepted == 0 {
		if res.Skipped > 0 {
			e.logger.Debug("telemetry batch skipped", zap.String("vin", vin), zap.Int("skipped", res.Skipped))
		}
		return res
	}

	e.catalog.RecordKeys(ctx, vin, res.Keys)

	derived := e.fields.Derive(res.Records)
	if len(derived) > 0 {
		p := vehicle.Partial{vehicle.FieldVIN: vin}
		for k, v := range derived {
			p[k] = v
		}
		e.vehicles.Update(p, vehicle.UpdateOptions{})
	}
	e.vehicles.ClearRefreshing(vin)

	e.publish(events.Notice{
		Kind:    events.KindTelemetry,
		VIN:     vin,
		Version: res.Version,
		Detail:  fmt.Sprintf("%d keys", len(res.Keys)),
	})

	_, hasLat := derived[vehicle.FieldLatitude]
	_, hasLon := derived[vehicle.FieldLongitude]
	if (hasLat || hasLon) && vin == e.vehicles.ActiveVIN() {
		e.enrichActive(ctx, false)
	}
	return res
}

// enrichActive starts an enrichment for the active vehicle's position in
// the background.
func (e *Engine) enrichActive(ctx context.Context, force bool) {
	snap := e.vehicles.Active()
	lat, lon, ok := snap.Fields.Coordinates()
	if snap.VIN == "" || !ok {
		return
	}
	ctx = context.WithoutCancel(ctx)
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		out := e.throttle.MaybeEnrich(ctx, snap.VIN, lat, lon, force)
		if out.Skipped != enrich.NotSkipped || out.Shared {
			return
		}
		ok := out.Applied
		n := events.Notice{Kind: events.KindEnrichment, VIN: snap.VIN, Success: &ok}
		if out.Place != nil {
			n.Detail = out.Place.LocationAddress
		} else if out.PlaceErr != nil {
			n.Detail = out.PlaceErr.Error()
		}
		e.publish(n)
	}()
}

// LoadVehicles fetches the vehicle list and, when nothing is active yet,
// switches to the first vehicle.
func (e *Engine) LoadVehicles(ctx context.Context) ([]vehicle.Identity, error) {
	if e.lister == nil {
		return nil, ErrNoSource
	}
	list, err := e.lister.ListVehicles(ctx)
	if err != nil {
		e.publishErr("", err)
		return nil, fmt.Errorf("listing vehicles: %w", err)
	}
	e.vehicles.SetVehicles(list)
	e.publish(events.Notice{Kind: events.KindVehicles, Detail: fmt.Sprintf("%d vehicles", len(list))})

	if e.vehicles.ActiveVIN() == "" && len(list) > 0 {
		if err := e.SwitchActive(ctx, list[0].VIN); err != nil {
			return list, err
		}
	}
	return e.vehicles.Vehicles(), nil
}

// SetVehicles installs a vehicle list without a lister.
func (e *Engine) SetVehicles(list []vehicle.Identity) {
	e.vehicles.SetVehicles(list)
	e.publish(events.Notice{Kind: events.KindVehicles, Detail: fmt.Sprintf("%d vehicles", len(list))})
}

// SwitchActive makes vin the active vehicle.
func (e *Engine) SwitchActive(ctx context.Context, vin string) error {
	if err := e.vehicles.SwitchActive(ctx, vin); err != nil {
		return err
	}
	e.enrichActive(ctx, false)
	return nil
}

// Refresh re-establishes the live subscription for the active vehicle and
// forces a fresh enrichment.
func (e *Engine) Refresh(ctx context.Context) error {
	vin := e.vehicles.ActiveVIN()
	if vin == "" {
		return vehicle.ErrNotFound
	}
	err := e.vehicles.Refresh(ctx, vin)
	if err != nil {
		e.publishErr(vin, err)
	}
	e.enrichActive(ctx, true)
	return err
}

// LoadHistory loads vin's charging history, or the active vehicle's when
// vin is empty.
func (e *Engine) LoadHistory(ctx context.Context, vin string, force bool) error {
	if !e.hasHist {
		return ErrNoSource
	}
	if vin == "" {
		vin = e.vehicles.ActiveVIN()
	}
	err := e.history.Load(ctx, vin, force)
	if err != nil {
		e.publishErr(vin, err)
	}
	return err
}

// SetHistoryFilter changes the history filter.
func (e *Engine) SetHistoryFilter(sel history.Selection) error {
	return e.history.SetFilter(sel)
}

// DeepScan waits for live data for the active vehicle.
func (e *Engine) DeepScan(ctx context.Context, force bool) (vehicle.ScanResult, error) {
	vin := e.vehicles.ActiveVIN()
	if vin == "" {
		return vehicle.ScanResult{}, vehicle.ErrNotFound
	}
	res, err := e.vehicles.DeepScan(ctx, vin, force)
	ok := err == nil
	e.publish(events.Notice{
		Kind:    events.KindScan,
		VIN:     vin,
		Success: &ok,
		Detail:  fmt.Sprintf("%d records", len(res.Records)),
	})
	return res, err
}

// Inspection compares the keys a vehicle has reported before with what
// the live bucket holds now.
type Inspection struct {
	VIN           string
	CatalogKeys   []string
	SnapshotKeys  []string
	SnapshotCount int
	// Missing are catalogued keys absent from the live bucket.
	Missing []string
}

// Inspect reports on vin, or on every known VIN when vin is empty.
func (e *Engine) Inspect(ctx context.Context, vin string) []Inspection {
	var vins []string
	if vin != "" {
		vins = []string{vin}
	} else {
		seen := make(map[string]struct{})
		for _, c := range e.catalog.All(ctx) {
			seen[c.VIN] = struct{}{}
		}
		for _, v := range e.bucket.VINs() {
			seen[v] = struct{}{}
		}
		for v := range seen {
			vins = append(vins, v)
		}
		sort.Strings(vins)
	}

	out := make([]Inspection, 0, len(vins))
	for _, v := range vins {
		catalog := e.catalog.GetKeys(ctx, v)
		live := e.bucket.Keys(v)
		have := make(map[string]struct{}, len(live))
		for _, k := range live {
			have[k] = struct{}{}
		}
		var missing []string
		for _, k := range catalog {
			if _, ok := have[k]; !ok {
				missing = append(missing, k)
			}
		}
		out = append(out, Inspection{
			VIN:           v,
			CatalogKeys:   catalog,
			SnapshotKeys:  live,
			SnapshotCount: len(live),
			Missing:       missing,
		})
	}
	return out
}

// ClearTelemetry forgets vin's catalogued keys and live records, or every
// vehicle's when vin is empty.
func (e *Engine) ClearTelemetry(ctx context.Context, vin string) {
	e.catalog.Clear(ctx, vin)
	e.bucket.Clear(vin)
	e.publish(events.Notice{Kind: events.KindTelemetry, VIN: vin, Detail: "cleared"})
}

// Subscribe returns a notice subscription. Sends never block the engine;
// a full subscriber misses notices and should re-read state on the next.
func (e *Engine) Subscribe(buffer int) *events.Subscription {
	return e.bus.Subscribe(buffer)
}

func (e *Engine) Active() vehicle.Snapshot { return e.vehicles.Active() }
func (e *Engine) Vehicles() []vehicle.Identity { return e.vehicles.Vehicles() }
func (e *Engine) History() history.State { return e.history.State() }
func (e *Engine) Version() uint64 { return e.bucket.Version() }
func (e *Engine) Recent(n int) []events.Notice { return e.bus.Recent().Latest(n) }
func (e *Engine) Dropped() uint64 { return e.bus.Dropped() }
func (e *Engine) LastScan(vin string) (vehicle.ScanResult, bool) { return e.vehicles.LastScan(vin) }

// Snapshot lists vin's live records for display.
func (e *Engine) Snapshot(vin string) []telemetry.SnapshotEntry {
	return e.bucket.Snapshot(vin)
}

// Label returns the readable name configured for a signal key, or "".
func (e *Engine) Label(key string) string { return e.aliases.Label(key) }

// Close waits for background work started by the engine and its
// components, then closes every subscription. The caller cancels the
// context passed to Start first.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		e.wg.Wait()
		e.vehicles.Wait()
		e.history.Wait()
		e.bus.Close()
	})
}
