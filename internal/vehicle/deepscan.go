package vehicle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/nixlim/vf-top/internal/telemetry"
)

// ErrTelemetryTimeout is returned by DeepScan when no live data arrived
// within the wait budget.
var ErrTelemetryTimeout = errors.New("timed out waiting for live telemetry")

// DeepScanOptions bounds the wait for live data.
type DeepScanOptions struct {
	// CacheFor is how long a non-empty scan is reused.
	CacheFor time.Duration
	// Wait is the budget of the first attempt. Each consecutive timeout
	// inside RetryWindow halves it, down to MinWait.
	Wait        time.Duration
	MinWait     time.Duration
	Poll        time.Duration
	RetryWindow time.Duration
}

func (o DeepScanOptions) withDefaults() DeepScanOptions {
	if o.CacheFor <= 0 {
		o.CacheFor = 5 * time.Minute
	}
	if o.Wait <= 0 {
		o.Wait = 5 * time.Second
	}
	if o.MinWait <= 0 {
		o.MinWait = time.Second
	}
	if o.MinWait > o.Wait {
		o.MinWait = o.Wait
	}
	if o.Poll <= 0 {
		o.Poll = 500 * time.Millisecond
	}
	if o.RetryWindow <= 0 {
		o.RetryWindow = 30 * time.Second
	}
	return o
}

// maxBackoffShift caps the halving so the shift stays meaningful.
const maxBackoffShift = 16

// budget returns the wait for the given number of consecutive timeouts.
func (o DeepScanOptions) budget(retries int) time.Duration {
	if retries > maxBackoffShift {
		retries = maxBackoffShift
	}
	return max(o.MinWait, o.Wait>>retries)
}

// ScanResult is the full live record set captured for a vehicle.
type ScanResult struct {
	VIN     string
	Records []telemetry.Record
	At      time.Time
	// Cached is true when the result was served from a previous scan.
	Cached   bool
	TimedOut bool
	Retry    int
	Waited   time.Duration
}

type scanRetry struct {
	count int
	last  time.Time
}

// DeepScan captures every live record for vin. A non-empty scan younger
// than CacheFor is reused unless force is set. When nothing has arrived
// yet it polls until data shows up or the wait budget is spent, returning
// ErrTelemetryTimeout in the latter case.
func (s *Store) DeepScan(ctx context.Context, vin string, force bool) (ScanResult, error) {
	if vin == "" {
		return ScanResult{}, fmt.Errorf("deep scan: %w", ErrNotFound)
	}
	if s.reader == nil {
		return ScanResult{}, errors.New("deep scan: no telemetry reader configured")
	}
	now := s.clock.Now()
	opts := s.deepScan

	s.mu.RLock()
	prev, hasPrev := s.scans[vin]
	retry := s.retries[vin]
	s.mu.RUnlock()

	if !force && hasPrev && len(prev.Records) > 0 && now.Sub(prev.At) < opts.CacheFor {
		prev.Cached = true
		return prev, nil
	}

	s.setScanning(vin, true)
	defer s.setScanning(vin, false)

	if records := s.reader.ReadAll(vin); len(records) > 0 {
		return s.storeScan(vin, records, now, 0, 0), nil
	}

	n := 0
	if retry.count > 0 && now.Sub(retry.last) < opts.RetryWindow {
		n = retry.count
	}
	wait := opts.budget(n)
	polls := int((wait + opts.Poll - 1) / opts.Poll)

	var records []telemetry.Record
	for i := 0; i < polls; i++ {
		select {
		case <-ctx.Done():
			return ScanResult{}, ctx.Err()
		case <-s.clock.After(opts.Poll):
		}
		if records = s.reader.ReadAll(vin); len(records) > 0 {
			break
		}
	}

	if len(records) > 0 {
		return s.storeScan(vin, records, now, n, wait), nil
	}

	s.logger.Warn("no live telemetry after wait",
		zap.String("vin", vin),
		zap.Duration("waited", wait),
		zap.Int("retry", n),
	)
	res := ScanResult{VIN: vin, At: now, TimedOut: true, Retry: n, Waited: wait}
	s.mu.Lock()
	s.retries[vin] = scanRetry{count: n + 1, last: now}
	if !hasPrev || len(prev.Records) == 0 {
		s.scans[vin] = res
	}
	s.mu.Unlock()
	return res, ErrTelemetryTimeout
}

func (s *Store) storeScan(vin string, records []telemetry.Record, at time.Time, retry int, waited time.Duration) ScanResult {
	res := ScanResult{VIN: vin, Records: records, At: at, Retry: retry, Waited: waited}
	s.mu.Lock()
	s.scans[vin] = res
	delete(s.retries, vin)
	s.mu.Unlock()
	return res
}

// LastScan returns the most recent scan stored for vin.
func (s *Store) LastScan(vin string) (ScanResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.scans[vin]
	return r, ok
}
