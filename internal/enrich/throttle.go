package enrich

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/nixlim/vf-top/internal/clock"
	"github.com/nixlim/vf-top/internal/vehicle"
)

// Sink receives enrichment results.
type Sink interface {
	Update(p vehicle.Partial, opts vehicle.UpdateOptions) bool
	SetEnriching(vin string, v bool)
}

// SkipReason says why MaybeEnrich did not run a lookup.
type SkipReason int

const (
	NotSkipped SkipReason = iota
	SkipInvalidCoordinates
	SkipThrottled
	SkipDisabled
)

func (r SkipReason) String() string {
	switch r {
	case SkipInvalidCoordinates:
		return "invalid coordinates"
	case SkipThrottled:
		return "throttled"
	case SkipDisabled:
		return "disabled"
	}
	return "none"
}

// Outcome describes one enrichment attempt.
type Outcome struct {
	VIN     string
	Skipped SkipReason
	// Shared is true when the call joined an attempt already in flight.
	Shared     bool
	Place      *Place
	Weather    *Weather
	PlaceErr   error
	WeatherErr error
	Applied    bool
}

type attempt struct {
	lat, lon float64
	at       time.Time
}

// Options configures a Throttle. Zero values take the defaults.
type Options struct {
	Window   time.Duration
	Distance float64
	Timeout  time.Duration
	Disabled bool
	Clock    clock.Clock
	Logger   *zap.Logger
}

// Throttle runs place and weather lookups for a VIN at most once per
// window unless the vehicle has moved at least Distance meters. Concurrent
// calls for the same VIN share one lookup.
type Throttle struct {
	places  PlaceLookup
	weather WeatherLookup
	sink    Sink

	window   time.Duration
	distance float64
	timeout  time.Duration
	disabled bool
	clock    clock.Clock
	logger   *zap.Logger

	mu       sync.Mutex
	attempts map[string]attempt
	group    singleflight.Group
}

func NewThrottle(places PlaceLookup, weather WeatherLookup, sink Sink, opts Options) *Throttle {
	if opts.Window <= 0 {
		opts.Window = 3 * time.Minute
	}
	if opts.Distance <= 0 {
		opts.Distance = 500
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Throttle{
		places:   places,
		weather:  weather,
		sink:     sink,
		window:   opts.Window,
		distance: opts.Distance,
		timeout:  opts.Timeout,
		disabled: opts.Disabled,
		clock:    clock.OrReal(opts.Clock),
		logger:   opts.Logger,
		attempts: make(map[string]attempt),
	}
}

func (t *Throttle) shouldRun(vin string, lat, lon float64) bool {
	t.mu.Lock()
	last, ok := t.attempts[vin]
	t.mu.Unlock()
	if !ok {
		return true
	}
	if t.clock.Now().Sub(last.at) > t.window {
		return true
	}
	return Distance(last.lat, last.lon, lat, lon) >= t.distance
}

// MaybeEnrich looks up place and weather for the position unless it is
// invalid or throttled. force bypasses the throttle but not the in-flight
// join.
func (t *Throttle) MaybeEnrich(ctx context.Context, vin string, lat, lon float64, force bool) Outcome {
	if t.disabled {
		return Outcome{VIN: vin, Skipped: SkipDisabled}
	}
	if vin == "" || !ValidCoordinates(lat, lon) {
		return Outcome{VIN: vin, Skipped: SkipInvalidCoordinates}
	}
	if !force && !t.shouldRun(vin, lat, lon) {
		return Outcome{VIN: vin, Skipped: SkipThrottled}
	}

	v, _, shared := t.group.Do(vin, func() (any, error) {
		return t.run(ctx, vin, lat, lon), nil
	})
	out := v.(Outcome)
	out.Shared = shared
	return out
}

func (t *Throttle) run(ctx context.Context, vin string, lat, lon float64) Outcome {
	started := t.clock.Now()
	out := Outcome{VIN: vin}

	if t.sink != nil {
		t.sink.SetEnriching(vin, true)
		defer t.sink.SetEnriching(vin, false)
	}
	defer func() {
		t.mu.Lock()
		t.attempts[vin] = attempt{lat: lat, lon: lon, at: started}
		t.mu.Unlock()
	}()

	var g errgroup.Group
	if t.places != nil {
		g.Go(func() error {
			lctx, cancel := context.WithTimeout(ctx, t.timeout)
			defer cancel()
			p, err := t.places.LookupPlace(lctx, lat, lon)
			if err != nil {
				out.PlaceErr = err
				return nil
			}
			out.Place = &p
			return nil
		})
	}
	if t.weather != nil {
		g.Go(func() error {
			lctx, cancel := context.WithTimeout(ctx, t.timeout)
			defer cancel()
			w, err := t.weather.LookupWeather(lctx, lat, lon)
			if err != nil {
				out.WeatherErr = err
				return nil
			}
			out.Weather = &w
			return nil
		})
	}
	_ = g.Wait()

	if out.PlaceErr != nil {
		t.logger.Debug("place lookup failed", zap.String("vin", vin), zap.Error(out.PlaceErr))
	}
	if out.WeatherErr != nil {
		t.logger.Debug("weather lookup failed", zap.String("vin", vin), zap.Error(out.WeatherErr))
	}

	partial := vehicle.Partial{vehicle.FieldVIN: vin}
	if out.Place != nil {
		if out.Place.LocationAddress != "" {
			partial["location_address"] = out.Place.LocationAddress
		}
		if out.Place.WeatherAddress != "" {
			partial["weather_address"] = out.Place.WeatherAddress
		}
	}
	if out.Weather != nil {
		if out.Weather.Temperature != nil {
			partial["weather_outside_temp"] = *out.Weather.Temperature
		}
		if out.Weather.Code != nil {
			partial["weather_code"] = *out.Weather.Code
		}
	}
	if len(partial) > 1 && t.sink != nil {
		out.Applied = t.sink.Update(partial, vehicle.UpdateOptions{SkipNullValues: true})
	}
	return out
}
