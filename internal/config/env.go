package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
)

const (
	EnvToken     = "VFTOP_TOKEN"
	EnvAPIBase   = "VFTOP_API_BASE"
	EnvSignalURL = "VFTOP_SIGNAL_URL"
)

// LoadDotEnv loads variables from a .env file into the process environment
// without overriding variables that are already set. A missing file is not
// an error.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overlays secrets and endpoints from the environment. The token
// only ever comes from here.
func ApplyEnv(cfg *Config) {
	if v := os.Getenv(EnvToken); v != "" {
		cfg.Source.Token = v
	}
	if v := os.Getenv(EnvAPIBase); v != "" {
		cfg.Source.APIBase = v
	}
	if v := os.Getenv(EnvSignalURL); v != "" {
		cfg.Source.SignalURL = v
	}
}
