package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Source     SourceConfig
	Telemetry  TelemetryConfig
	Vehicle    VehicleConfig
	Enrichment EnrichmentConfig
	History    HistoryConfig
	Storage    StorageConfig
	Display    DisplayConfig
	Log        LogConfig
}

type SourceConfig struct {
	APIBase          string `toml:"api_base" yaml:"api_base"`
	SignalURL        string `toml:"signal_url" yaml:"signal_url"`
	Region           string `toml:"region" yaml:"region"`
	RequestTimeoutMS int    `toml:"request_timeout_ms" yaml:"request_timeout_ms"`

	// Token is never read from the config file; see ApplyEnv.
	Token string `toml:"-" yaml:"-"`
}

type TelemetryConfig struct {
	CatalogTTLDays int               `toml:"catalog_ttl_days" yaml:"catalog_ttl_days"`
	Ordering       string            `toml:"ordering" yaml:"ordering"`
	Fields         map[string]string `toml:"fields" yaml:"fields"`
	Aliases        map[string]string `toml:"aliases" yaml:"aliases"`
	AliasFields    map[string]string `toml:"alias_fields" yaml:"alias_fields"`
}

type VehicleConfig struct {
	FreshnessSeconds           int `toml:"freshness_seconds" yaml:"freshness_seconds"`
	FutureSkewSeconds          int `toml:"future_skew_seconds" yaml:"future_skew_seconds"`
	DeepScanCacheSeconds       int `toml:"deep_scan_cache_seconds" yaml:"deep_scan_cache_seconds"`
	DeepScanWaitMS             int `toml:"deep_scan_wait_ms" yaml:"deep_scan_wait_ms"`
	DeepScanPollMS             int `toml:"deep_scan_poll_ms" yaml:"deep_scan_poll_ms"`
	DeepScanMinWaitMS          int `toml:"deep_scan_min_wait_ms" yaml:"deep_scan_min_wait_ms"`
	DeepScanRetryWindowSeconds int `toml:"deep_scan_retry_window_seconds" yaml:"deep_scan_retry_window_seconds"`
}

type EnrichmentConfig struct {
	Enabled        bool    `toml:"enabled" yaml:"enabled"`
	WindowSeconds  int     `toml:"window_seconds" yaml:"window_seconds"`
	DistanceMeters float64 `toml:"distance_meters" yaml:"distance_meters"`
	TimeoutMS      int     `toml:"timeout_ms" yaml:"timeout_ms"`
	NominatimURL   string  `toml:"nominatim_url" yaml:"nominatim_url"`
	OpenMeteoURL   string  `toml:"open_meteo_url" yaml:"open_meteo_url"`
}

type HistoryConfig struct {
	PageSize       int `toml:"page_size" yaml:"page_size"`
	RevalidateSize int `toml:"revalidate_size" yaml:"revalidate_size"`
	Concurrency    int `toml:"concurrency" yaml:"concurrency"`
	TTLHours       int `toml:"ttl_hours" yaml:"ttl_hours"`
	MaxCachedVINs  int `toml:"max_cached_vins" yaml:"max_cached_vins"`
}

type StorageConfig struct {
	Backend       string `toml:"backend" yaml:"backend"`
	DBPath        string `toml:"db_path" yaml:"db_path"`
	RedisAddr     string `toml:"redis_addr" yaml:"redis_addr"`
	RedisDB       int    `toml:"redis_db" yaml:"redis_db"`
	PostgresDSN   string `toml:"postgres_dsn" yaml:"postgres_dsn"`
	RetentionDays int    `toml:"retention_days" yaml:"retention_days"`
}

type DisplayConfig struct {
	RefreshRateMS    int `toml:"refresh_rate_ms" yaml:"refresh_rate_ms"`
	NoticeBufferSize int `toml:"notice_buffer_size" yaml:"notice_buffer_size"`
}

type LogConfig struct {
	Level string `toml:"level" yaml:"level"`
	File  string `toml:"file" yaml:"file"`
}

type LoadResult struct {
	Config   Config
	Warnings []string
}

type format int

const (
	formatTOML format = iota
	formatYAML
)

func formatFor(path string) format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return formatYAML
	default:
		return formatTOML
	}
}

var knownTopLevel = map[string]bool{
	"source":     true,
	"telemetry":  true,
	"vehicle":    true,
	"enrichment": true,
	"history":    true,
	"storage":    true,
	"display":    true,
	"log":        true,
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "vf-top", "config.toml")
}

func Load() (*LoadResult, error) {
	return LoadFrom(defaultConfigPath())
}

// LoadFrom reads the file at path. A missing file yields the defaults.
// Files ending in .yaml or .yml are decoded as YAML, everything else as TOML.
func LoadFrom(path string) (*LoadResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &LoadResult{Config: DefaultConfig()}, nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	result, err := load(string(data), formatFor(path))
	if err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return result, nil
}

func LoadFromString(data string) (*LoadResult, error) {
	return load(data, formatTOML)
}

func LoadFromYAMLString(data string) (*LoadResult, error) {
	return load(data, formatYAML)
}

func load(data string, f format) (*LoadResult, error) {
	result := &LoadResult{Config: DefaultConfig()}
	if strings.TrimSpace(data) == "" {
		return result, nil
	}

	raw, err := decodeRaw(data, f)
	if err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	for key := range raw {
		if !knownTopLevel[key] {
			result.Warnings = append(result.Warnings, fmt.Sprintf("unknown config key: %q", key))
		}
	}

	var cf configFile
	if err := decodeInto(data, f, &cf); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	mergeFromRaw(&result.Config, &cf, raw)

	if err := validate(&result.Config); err != nil {
		return nil, err
	}
	return result, nil
}

func decodeRaw(data string, f format) (map[string]any, error) {
	var raw map[string]any
	if f == formatYAML {
		if err := yaml.Unmarshal([]byte(data), &raw); err != nil {
			return nil, err
		}
		return raw, nil
	}
	if _, err := toml.Decode(data, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func decodeInto(data string, f format, cf *configFile) error {
	if f == formatYAML {
		return yaml.Unmarshal([]byte(data), cf)
	}
	_, err := toml.Decode(data, cf)
	return err
}

type configFile struct {
	Source     *SourceConfig     `toml:"source" yaml:"source"`
	Telemetry  *TelemetryConfig  `toml:"telemetry" yaml:"telemetry"`
	Vehicle    *VehicleConfig    `toml:"vehicle" yaml:"vehicle"`
	Enrichment *EnrichmentConfig `toml:"enrichment" yaml:"enrichment"`
	History    *HistoryConfig    `toml:"history" yaml:"history"`
	Storage    *StorageConfig    `toml:"storage" yaml:"storage"`
	Display    *DisplayConfig    `toml:"display" yaml:"display"`
	Log        *LogConfig        `toml:"log" yaml:"log"`
}

// present reports whether key was set in the given raw section. Only keys
// actually written in the file override defaults.
func present(raw map[string]any, section, key string) bool {
	v, ok := raw[section]
	if !ok {
		return false
	}
	m, ok := v.(map[string]any)
	if !ok {
		return false
	}
	_, exists := m[key]
	return exists
}

func mergeFromRaw(cfg *Config, cf *configFile, raw map[string]any) {
	if s := cf.Source; s != nil {
		if present(raw, "source", "api_base") {
			cfg.Source.APIBase = s.APIBase
		}
		if present(raw, "source", "signal_url") {
			cfg.Source.SignalURL = s.SignalURL
		}
		if present(raw, "source", "region") {
			cfg.Source.Region = s.Region
		}
		if present(raw, "source", "request_timeout_ms") {
			cfg.Source.RequestTimeoutMS = s.RequestTimeoutMS
		}
	}
	if t := cf.Telemetry; t != nil {
		if present(raw, "telemetry", "catalog_ttl_days") {
			cfg.Telemetry.CatalogTTLDays = t.CatalogTTLDays
		}
		if present(raw, "telemetry", "ordering") {
			cfg.Telemetry.Ordering = t.Ordering
		}
		if present(raw, "telemetry", "fields") {
			for k, v := range t.Fields {
				cfg.Telemetry.Fields[k] = v
			}
		}
		if present(raw, "telemetry", "aliases") {
			for k, v := range t.Aliases {
				cfg.Telemetry.Aliases[k] = v
			}
		}
		if present(raw, "telemetry", "alias_fields") {
			for k, v := range t.AliasFields {
				cfg.Telemetry.AliasFields[k] = v
			}
		}
	}
	if v := cf.Vehicle; v != nil {
		if present(raw, "vehicle", "freshness_seconds") {
			cfg.Vehicle.FreshnessSeconds = v.FreshnessSeconds
		}
		if present(raw, "vehicle", "future_skew_seconds") {
			cfg.Vehicle.FutureSkewSeconds = v.FutureSkewSeconds
		}
		if present(raw, "vehicle", "deep_scan_cache_seconds") {
			cfg.Vehicle.DeepScanCacheSeconds = v.DeepScanCacheSeconds
		}
		if present(raw, "vehicle", "deep_scan_wait_ms") {
			cfg.Vehicle.DeepScanWaitMS = v.DeepScanWaitMS
		}
		if present(raw, "vehicle", "deep_scan_poll_ms") {
			cfg.Vehicle.DeepScanPollMS = v.DeepScanPollMS
		}
		if present(raw, "vehicle", "deep_scan_min_wait_ms") {
			cfg.Vehicle.DeepScanMinWaitMS = v.DeepScanMinWaitMS
		}
		if present(raw, "vehicle", "deep_scan_retry_window_seconds") {
			cfg.Vehicle.DeepScanRetryWindowSeconds = v.DeepScanRetryWindowSeconds
		}
	}
	if e := cf.Enrichment; e != nil {
		if present(raw, "enrichment", "enabled") {
			cfg.Enrichment.Enabled = e.Enabled
		}
		if present(raw, "enrichment", "window_seconds") {
			cfg.Enrichment.WindowSeconds = e.WindowSeconds
		}
		if present(raw, "enrichment", "distance_meters") {
			cfg.Enrichment.DistanceMeters = e.DistanceMeters
		}
		if present(raw, "enrichment", "timeout_ms") {
			cfg.Enrichment.TimeoutMS = e.TimeoutMS
		}
		if present(raw, "enrichment", "nominatim_url") {
			cfg.Enrichment.NominatimURL = e.NominatimURL
		}
		if present(raw, "enrichment", "open_meteo_url") {
			cfg.Enrichment.OpenMeteoURL = e.OpenMeteoURL
		}
	}
	if h := cf.History; h != nil {
		if present(raw, "history", "page_size") {
			cfg.History.PageSize = h.PageSize
		}
		if present(raw, "history", "revalidate_size") {
			cfg.History.RevalidateSize = h.RevalidateSize
		}
		if present(raw, "history", "concurrency") {
			cfg.History.Concurrency = h.Concurrency
		}
		if present(raw, "history", "ttl_hours") {
			cfg.History.TTLHours = h.TTLHours
		}
		if present(raw, "history", "max_cached_vins") {
			cfg.History.MaxCachedVINs = h.MaxCachedVINs
		}
	}
	if s := cf.Storage; s != nil {
		if present(raw, "storage", "backend") {
			cfg.Storage.Backend = s.Backend
		}
		if present(raw, "storage", "db_path") {
			cfg.Storage.DBPath = s.DBPath
		}
		if present(raw, "storage", "redis_addr") {
			cfg.Storage.RedisAddr = s.RedisAddr
		}
		if present(raw, "storage", "redis_db") {
			cfg.Storage.RedisDB = s.RedisDB
		}
		if present(raw, "storage", "postgres_dsn") {
			cfg.Storage.PostgresDSN = s.PostgresDSN
		}
		if present(raw, "storage", "retention_days") {
			cfg.Storage.RetentionDays = s.RetentionDays
		}
	}
	if d := cf.Display; d != nil {
		if present(raw, "display", "refresh_rate_ms") {
			cfg.Display.RefreshRateMS = d.RefreshRateMS
		}
		if present(raw, "display", "notice_buffer_size") {
			cfg.Display.NoticeBufferSize = d.NoticeBufferSize
		}
	}
	if l := cf.Log; l != nil {
		if present(raw, "log", "level") {
			cfg.Log.Level = l.Level
		}
		if present(raw, "log", "file") {
			cfg.Log.File = l.File
		}
	}
}

var (
	validOrderings = map[string]bool{"arrival": true, "timestamp": true}
	validBackends  = map[string]bool{"sqlite": true, "redis": true, "postgres": true, "memory": true}
	validLevels    = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
)

func validate(cfg *Config) error {
	var errs []string

	if cfg.Source.RequestTimeoutMS < 1 {
		errs = append(errs, fmt.Sprintf("source request_timeout_ms must be positive, got %d", cfg.Source.RequestTimeoutMS))
	}

	if cfg.Telemetry.CatalogTTLDays < 1 {
		errs = append(errs, fmt.Sprintf("telemetry catalog_ttl_days must be positive, got %d", cfg.Telemetry.CatalogTTLDays))
	}
	if !validOrderings[cfg.Telemetry.Ordering] {
		errs = append(errs, fmt.Sprintf("telemetry ordering must be \"arrival\" or \"timestamp\", got %q", cfg.Telemetry.Ordering))
	}
	for key, field := range cfg.Telemetry.Fields {
		if strings.Count(key, "|") != 2 {
			errs = append(errs, fmt.Sprintf("telemetry field key %q must have the form object|instance|resource", key))
		}
		if field == "" {
			errs = append(errs, fmt.Sprintf("telemetry field key %q maps to an empty name", key))
		}
	}
	for key := range cfg.Telemetry.Aliases {
		if strings.Count(key, "|") != 2 {
			errs = append(errs, fmt.Sprintf("telemetry alias key %q must have the form object|instance|resource", key))
		}
	}
	for alias, field := range cfg.Telemetry.AliasFields {
		if field == "" {
			errs = append(errs, fmt.Sprintf("telemetry alias %q maps to an empty field name", alias))
		}
	}

	if cfg.Vehicle.FreshnessSeconds < 1 {
		errs = append(errs, fmt.Sprintf("vehicle freshness_seconds must be positive, got %d", cfg.Vehicle.FreshnessSeconds))
	}
	if cfg.Vehicle.FutureSkewSeconds < 0 {
		errs = append(errs, fmt.Sprintf("vehicle future_skew_seconds must not be negative, got %d", cfg.Vehicle.FutureSkewSeconds))
	}
	if cfg.Vehicle.DeepScanCacheSeconds < 0 {
		errs = append(errs, fmt.Sprintf("vehicle deep_scan_cache_seconds must not be negative, got %d", cfg.Vehicle.DeepScanCacheSeconds))
	}
	if cfg.Vehicle.DeepScanPollMS < 1 {
		errs = append(errs, fmt.Sprintf("vehicle deep_scan_poll_ms must be positive, got %d", cfg.Vehicle.DeepScanPollMS))
	}
	if cfg.Vehicle.DeepScanMinWaitMS < 1 || cfg.Vehicle.DeepScanMinWaitMS > cfg.Vehicle.DeepScanWaitMS {
		errs = append(errs, fmt.Sprintf("vehicle deep_scan_min_wait_ms must be 1-%d, got %d", cfg.Vehicle.DeepScanWaitMS, cfg.Vehicle.DeepScanMinWaitMS))
	}

	if cfg.Enrichment.WindowSeconds < 0 {
		errs = append(errs, fmt.Sprintf("enrichment window_seconds must not be negative, got %d", cfg.Enrichment.WindowSeconds))
	}
	if cfg.Enrichment.DistanceMeters < 0 {
		errs = append(errs, fmt.Sprintf("enrichment distance_meters must not be negative, got %f", cfg.Enrichment.DistanceMeters))
	}
	if cfg.Enrichment.TimeoutMS < 1 {
		errs = append(errs, fmt.Sprintf("enrichment timeout_ms must be positive, got %d", cfg.Enrichment.TimeoutMS))
	}

	if cfg.History.PageSize < 1 {
		errs = append(errs, fmt.Sprintf("history page_size must be positive, got %d", cfg.History.PageSize))
	}
	if cfg.History.RevalidateSize < 1 {
		errs = append(errs, fmt.Sprintf("history revalidate_size must be positive, got %d", cfg.History.RevalidateSize))
	}
	if cfg.History.Concurrency < 1 {
		errs = append(errs, fmt.Sprintf("history concurrency must be positive, got %d", cfg.History.Concurrency))
	}
	if cfg.History.TTLHours < 1 {
		errs = append(errs, fmt.Sprintf("history ttl_hours must be positive, got %d", cfg.History.TTLHours))
	}
	if cfg.History.MaxCachedVINs < 1 {
		errs = append(errs, fmt.Sprintf("history max_cached_vins must be positive, got %d", cfg.History.MaxCachedVINs))
	}

	if !validBackends[cfg.Storage.Backend] {
		errs = append(errs, fmt.Sprintf("storage backend must be one of sqlite, redis, postgres, memory; got %q", cfg.Storage.Backend))
	}
	if cfg.Storage.Backend == "redis" && cfg.Storage.RedisAddr == "" {
		errs = append(errs, "storage redis_addr is required for the redis backend")
	}
	if cfg.Storage.Backend == "postgres" && cfg.Storage.PostgresDSN == "" {
		errs = append(errs, "storage postgres_dsn is required for the postgres backend")
	}
	if cfg.Storage.RetentionDays <= 0 {
		errs = append(errs, fmt.Sprintf("storage retention_days must be positive, got %d", cfg.Storage.RetentionDays))
	}

	if cfg.Display.RefreshRateMS < 1 {
		errs = append(errs, fmt.Sprintf("refresh_rate_ms must be positive, got %d", cfg.Display.RefreshRateMS))
	}
	if cfg.Display.NoticeBufferSize < 1 {
		errs = append(errs, fmt.Sprintf("notice_buffer_size must be positive, got %d", cfg.Display.NoticeBufferSize))
	}

	if !validLevels[strings.ToLower(cfg.Log.Level)] {
		errs = append(errs, fmt.Sprintf("log level must be one of debug, info, warn, error; got %q", cfg.Log.Level))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation error: %s", strings.Join(errs, "; "))
	}
	return nil
}
