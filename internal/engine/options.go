package engine

import (
	"time"

	"github.com/nixlim/vf-top/internal/config"
	"github.com/nixlim/vf-top/internal/enrich"
	"github.com/nixlim/vf-top/internal/history"
	"github.com/nixlim/vf-top/internal/vehicle"
)

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

func millis(n int) time.Duration { return time.Duration(n) * time.Millisecond }

func vehicleOptions(cfg config.VehicleConfig) vehicle.Options {
	return vehicle.Options{
		Freshness:  seconds(cfg.FreshnessSeconds),
		FutureSkew: seconds(cfg.FutureSkewSeconds),
		DeepScan: vehicle.DeepScanOptions{
			CacheFor:    seconds(cfg.DeepScanCacheSeconds),
			Wait:        millis(cfg.DeepScanWaitMS),
			MinWait:     millis(cfg.DeepScanMinWaitMS),
			Poll:        millis(cfg.DeepScanPollMS),
			RetryWindow: seconds(cfg.DeepScanRetryWindowSeconds),
		},
	}
}

func throttleOptions(cfg config.EnrichmentConfig) enrich.Options {
	return enrich.Options{
		Window:   seconds(cfg.WindowSeconds),
		Distance: cfg.DistanceMeters,
		Timeout:  millis(cfg.TimeoutMS),
		Disabled: !cfg.Enabled,
	}
}

func historyOptions(cfg config.HistoryConfig) history.Options {
	return history.Options{
		PageSize:       cfg.PageSize,
		RevalidateSize: cfg.RevalidateSize,
		Concurrency:    cfg.Concurrency,
	}
}
