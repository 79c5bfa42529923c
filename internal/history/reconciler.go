package history

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/nixlim/vf-top/internal/clock"
)

// Source fetches one page of a VIN's charging history.
type Source interface {
	FetchPage(ctx context.Context, vin string, page, size int) (Page, error)
}

// FilterState is the active selection plus what can be selected.
type FilterState struct {
	Selection
	AvailableYears  []int
	AvailableMonths []MonthOption
}

// State is what the reconciler publishes for the loaded VIN.
type State struct {
	VIN string
	// Sessions are the loaded sessions that pass the filter, newest first.
	Sessions      []Session
	TotalLoaded   int
	TotalRecords  int
	IsLoading     bool
	IsLoadingMore bool
	Error         string
	Warning       string
	Filter        FilterState
}

// Listener is called after the published state changes, outside the lock.
type Listener func(vin string)

// Options configures a Reconciler. Zero values take the defaults.
type Options struct {
	PageSize       int
	RevalidateSize int
	Concurrency    int
	Clock          clock.Clock
	Logger         *zap.Logger
}

const (
	DefaultPageSize       = 500
	DefaultRevalidateSize = 50
	DefaultConcurrency    = 5
)

// Reconciler serves a VIN's history from the cache when fresh and
// revalidates it in the background, or fetches every page when the cache
// cannot serve. At most one full fetch runs per VIN; later callers join it.
type Reconciler struct {
	source Source
	cache  *Cache

	pageSize       int
	revalidateSize int
	concurrency    int
	clock          clock.Clock
	logger         *zap.Logger

	mu        sync.RWMutex
	state     State
	all       []Session
	listeners []Listener

	group singleflight.Group
	wg    sync.WaitGroup
}

func NewReconciler(source Source, cache *Cache, opts Options) *Reconciler {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.RevalidateSize <= 0 {
		opts.RevalidateSize = DefaultRevalidateSize
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Reconciler{
		source:         source,
		cache:          cache,
		pageSize:       opts.PageSize,
		revalidateSize: opts.RevalidateSize,
		concurrency:    opts.Concurrency,
		clock:          clock.OrReal(opts.Clock),
		logger:         opts.Logger,
		state:          State{Filter: FilterState{Selection: Selection{Mode: ModeAll}}},
	}
}

func (r *Reconciler) OnChange(fn Listener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, fn)
}

func (r *Reconciler) notify(vin string) {
	r.mu.RLock()
	listeners := make([]Listener, len(r.listeners))
	copy(listeners, r.listeners)
	r.mu.RUnlock()

	for _, fn := range listeners {
		fn(vin)
	}
}

// State returns a copy of the published state.
func (r *Reconciler) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st := r.state
	st.Sessions = append([]Session(nil), r.state.Sessions...)
	st.Filter.AvailableYears = append([]int(nil), r.state.Filter.AvailableYears...)
	st.Filter.AvailableMonths = append([]MonthOption(nil), r.state.Filter.AvailableMonths...)
	return st
}

// Wait blocks until background revalidations have finished.
func (r *Reconciler) Wait() {
	r.wg.Wait()
}

// applyLocked publishes all through sel. Caller must hold r.mu.
func (r *Reconciler) applyLocked(all []Session, sel Selection) {
	loc := r.clock.Now().Location()
	r.all = all
	r.state.Sessions = Apply(all, sel, loc)
	r.state.TotalLoaded = len(all)
	r.state.Filter.Selection = sel
	r.state.Filter.AvailableYears = ExtractYears(all, loc)
	if sel.Year > 0 {
		r.state.Filter.AvailableMonths = ExtractMonths(all, sel.Year, loc)
	} else {
		r.state.Filter.AvailableMonths = nil
	}
}

// Load publishes vin's history. A fresh cache entry is served at once and
// revalidated in the background; otherwise, or when force is set, every
// page is fetched. The returned error is the total-failure error, which is
// also published in State.Error.
func (r *Reconciler) Load(ctx context.Context, vin string, force bool) error {
	vin = strings.TrimSpace(vin)
	if vin == "" {
		return ErrEmptyVIN
	}

	if !force {
		if e, ok := r.cache.Get(ctx, vin); ok {
			r.serveCached(vin, e)
			r.wg.Add(1)
			go func() {
				defer r.wg.Done()
				r.revalidate(context.WithoutCancel(ctx), vin, e)
			}()
			return nil
		}
	}

	_, err, shared := r.group.Do(vin, func() (any, error) {
		return nil, r.fetchAll(ctx, vin, force)
	})
	if shared {
		r.logger.Debug("joined in-flight history fetch", zap.String("vin", vin))
	}
	return err
}

func (r *Reconciler) serveCached(vin string, e Entry) {
	r.mu.Lock()
	changed := r.state.VIN != vin
	sel := r.state.Filter.Selection
	if changed {
		sel = SelectDefault(e.Sessions, r.pageSize, r.clock.Now())
	}
	r.state.VIN = vin
	r.state.TotalRecords = e.TotalRecords
	r.state.Error = ""
	r.state.Warning = ""
	r.state.IsLoading = false
	r.state.IsLoadingMore = false
	r.applyLocked(e.Sessions, sel)
	r.mu.Unlock()
	r.notify(vin)
}

// revalidate checks the newest page for sessions the cache lacks.
// Failures leave the cache as it is.
func (r *Reconciler) revalidate(ctx context.Context, vin string, cached Entry) {
	page, err := r.source.FetchPage(ctx, vin, 0, r.revalidateSize)
	if err != nil {
		r.logger.Debug("history revalidation failed", zap.String("vin", vin), zap.Error(err))
		return
	}

	known := make(map[string]struct{}, len(cached.Sessions))
	for _, s := range cached.Sessions {
		known[s.RevalidateKey()] = struct{}{}
	}
	var fresh []Session
	for _, s := range page.Sessions {
		if _, ok := known[s.RevalidateKey()]; !ok {
			fresh = append(fresh, s)
		}
	}
	if len(fresh) == 0 {
		r.cache.Put(ctx, vin, cached.Sessions, cached.TotalRecords)
		return
	}

	merged := Merge(fresh, cached.Sessions)
	r.cache.Put(ctx, vin, merged, page.Total)
	r.logger.Debug("history revalidated",
		zap.String("vin", vin), zap.Int("new", len(fresh)), zap.Int("total", len(merged)))

	r.mu.Lock()
	if r.state.VIN != vin {
		r.mu.Unlock()
		return
	}
	r.state.TotalRecords = page.Total
	r.applyLocked(merged, r.state.Filter.Selection)
	r.mu.Unlock()
	r.notify(vin)
}

func (r *Reconciler) fetchAll(ctx context.Context, vin string, force bool) error {
	r.mu.Lock()
	changed := r.state.VIN != vin
	if changed {
		r.all = nil
		r.state = State{VIN: vin, Filter: FilterState{Selection: Selection{Mode: ModeAll}}}
	}
	r.state.IsLoading = true
	r.state.IsLoadingMore = false
	r.state.Error = ""
	r.state.Warning = ""
	r.mu.Unlock()
	r.notify(vin)

	defer func() {
		r.mu.Lock()
		if r.state.VIN == vin {
			r.state.IsLoading = false
			r.state.IsLoadingMore = false
		}
		r.mu.Unlock()
		r.notify(vin)
	}()

	first, err := r.source.FetchPage(ctx, vin, 0, r.pageSize)
	if err != nil {
		err = &PageError{Page: 0, Err: err}
		r.logger.Warn("history fetch failed", zap.String("vin", vin), zap.Error(err))
		r.mu.Lock()
		if r.state.VIN == vin {
			r.state.Error = err.Error()
		}
		r.mu.Unlock()
		return err
	}

	total := first.Total
	pages := (total + r.pageSize - 1) / r.pageSize
	if pages < 1 {
		pages = 1
	}

	r.mu.Lock()
	if r.state.VIN == vin {
		r.state.TotalRecords = total
		r.state.IsLoadingMore = pages > 1
	}
	r.mu.Unlock()
	if pages > 1 {
		r.notify(vin)
	}

	collected := [][]Session{first.Sessions}
	failed := 0
	for start := 1; start < pages; start += r.concurrency {
		end := min(start+r.concurrency, pages)
		results := make([]Page, end-start)
		errs := make([]error, end-start)

		var g errgroup.Group
		for i := range results {
			page := start + i
			g.Go(func() error {
				p, err := r.source.FetchPage(ctx, vin, page, r.pageSize)
				if err != nil {
					errs[i] = &PageError{Page: page, Err: err}
					return nil
				}
				results[i] = p
				return nil
			})
		}
		_ = g.Wait()

		for i := range results {
			if errs[i] != nil {
				failed++
				r.logger.Warn("history page failed", zap.String("vin", vin), zap.Error(errs[i]))
				continue
			}
			collected = append(collected, results[i].Sessions)
		}
	}

	merged := Merge(collected...)
	r.cache.Put(ctx, vin, merged, total)

	var warning string
	if failed > 0 {
		warning = fmt.Sprintf("%d pages failed to load. Results may be incomplete.", failed)
	}

	r.mu.Lock()
	if r.state.VIN != vin {
		r.mu.Unlock()
		return nil
	}
	sel := r.state.Filter.Selection
	switch {
	case changed:
		sel = SelectDefault(merged, r.pageSize, r.clock.Now())
	case force:
		sel = Selection{Mode: ModeAll}
	}
	r.state.TotalRecords = total
	r.state.Warning = warning
	r.applyLocked(merged, sel)
	r.mu.Unlock()

	r.logger.Debug("history loaded",
		zap.String("vin", vin), zap.Int("sessions", len(merged)),
		zap.Int("pages", pages), zap.Int("failed_pages", failed))
	return nil
}

// SetFilter re-filters the loaded sessions. It is a no-op before anything
// has been loaded.
func (r *Reconciler) SetFilter(sel Selection) error {
	switch sel.Mode {
	case ModeAll:
		sel.Year, sel.Month = 0, 0
	case ModeYear:
		if sel.Year <= 0 {
			return errors.New("history: year filter needs a year")
		}
		sel.Month = 0
	case ModeMonth:
		if sel.Year <= 0 || sel.Month < 1 || sel.Month > 12 {
			return fmt.Errorf("history: invalid month filter %d/%d", sel.Month, sel.Year)
		}
	default:
		return fmt.Errorf("history: unknown filter mode %q", sel.Mode)
	}

	r.mu.Lock()
	vin := r.state.VIN
	if vin == "" {
		r.mu.Unlock()
		return nil
	}
	r.applyLocked(r.all, sel)
	r.mu.Unlock()
	r.notify(vin)
	return nil
}

func (r *Reconciler) SetFilterAll() error {
	return r.SetFilter(Selection{Mode: ModeAll})
}

func (r *Reconciler) SetFilterYear(year int) error {
	return r.SetFilter(Selection{Mode: ModeYear, Year: year})
}

func (r *Reconciler) SetFilterMonth(year, month int) error {
	return r.SetFilter(Selection{Mode: ModeMonth, Year: year, Month: month})
}
