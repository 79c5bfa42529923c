package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// InitResult describes what Init did to the config file.
type InitResult int

const (
	InitCreated InitResult = iota
	InitUpdated
	InitUnchanged
)

// InitOutput reports the outcome of Init. Added lists the "section.key"
// entries written into an existing file.
type InitOutput struct {
	Result InitResult
	Path   string
	Added  []string
}

// Init writes a config file holding the defaults, or completes an existing
// one with any default keys it lacks. Keys already present are never
// changed. The file is replaced atomically (temp file + rename).
//
// A file that does not parse is copied to path+".bak" and left alone.
func Init(path string) (InitOutput, error) {
	if path == "" {
		path = defaultConfigPath()
	}
	out := InitOutput{Path: path}
	f := formatFor(path)

	defaults, err := defaultsRaw()
	if err != nil {
		return out, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			if errors.Is(err, fs.ErrPermission) {
				return out, fmt.Errorf("permission denied reading %s", path)
			}
			return out, fmt.Errorf("reading config file: %w", err)
		}
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return out, fmt.Errorf("creating directory %s: %w", filepath.Dir(path), err)
		}
		if err := writeConfigAtomic(path, defaults, f); err != nil {
			return out, err
		}
		out.Result = InitCreated
		return out, nil
	}

	raw, err := decodeRaw(string(data), f)
	if err != nil {
		bak := path + ".bak"
		if bakErr := os.WriteFile(bak, data, 0644); bakErr != nil {
			return out, fmt.Errorf("config file does not parse and backup failed: %w", bakErr)
		}
		return out, fmt.Errorf("config file does not parse (backup saved to %s): %w", bak, err)
	}
	if raw == nil {
		raw = make(map[string]any)
	}

	out.Added = mergeMissing(raw, defaults)
	if len(out.Added) == 0 {
		out.Result = InitUnchanged
		return out, nil
	}
	if err := writeConfigAtomic(path, raw, f); err != nil {
		return out, err
	}
	out.Result = InitUpdated
	return out, nil
}

// defaultsRaw renders DefaultConfig as the generic map a decoded file
// produces.
func defaultsRaw() (map[string]any, error) {
	cfg := DefaultConfig()
	cf := configFile{
		Source:     &cfg.Source,
		Telemetry:  &cfg.Telemetry,
		Vehicle:    &cfg.Vehicle,
		Enrichment: &cfg.Enrichment,
		History:    &cfg.History,
		Storage:    &cfg.Storage,
		Display:    &cfg.Display,
		Log:        &cfg.Log,
	}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cf); err != nil {
		return nil, fmt.Errorf("encoding defaults: %w", err)
	}
	return decodeRaw(buf.String(), formatTOML)
}

// mergeMissing adds every section and key of defaults that raw lacks and
// returns the added "section.key" names in sorted order. Sections in raw
// that are not tables are left alone.
func mergeMissing(raw, defaults map[string]any) []string {
	var added []string
	for section, dv := range defaults {
		dm, ok := dv.(map[string]any)
		if !ok {
			continue
		}
		existing, ok := raw[section]
		if !ok {
			cp := make(map[string]any, len(dm))
			for k, v := range dm {
				cp[k] = v
				added = append(added, section+"."+k)
			}
			raw[section] = cp
			continue
		}
		em, ok := existing.(map[string]any)
		if !ok {
			continue
		}
		for k, v := range dm {
			if _, ok := em[k]; !ok {
				em[k] = v
				added = append(added, section+"."+k)
			}
		}
	}
	sort.Strings(added)
	return added
}

func writeConfigAtomic(path string, raw map[string]any, f format) error {
	var buf bytes.Buffer
	if f == formatYAML {
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(raw); err != nil {
			return fmt.Errorf("encoding config: %w", err)
		}
		if err := enc.Close(); err != nil {
			return fmt.Errorf("encoding config: %w", err)
		}
	} else if err := toml.NewEncoder(&buf).Encode(raw); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".config-*.tmp")
	if err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return fmt.Errorf("permission denied writing to %s", dir)
		}
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if tmpPath != "" {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}

	mode := fs.FileMode(0644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode()
	}
	_ = os.Chmod(tmpPath, mode)

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming temp file to %s: %w", path, err)
	}
	tmpPath = ""
	return nil
}
