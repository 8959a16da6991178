// Copyright 2025 Ian Lewis
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads the yomidict command configuration from a YAML file
// with YOMIDICT_* environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalid indicates a configuration value is out of range.
var ErrInvalid = errors.New("invalid configuration")

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "YOMIDICT_"

// DatabaseName is the file name of the store under the data directory.
const DatabaseName = "yomidict.db"

// Config is the command configuration.
type Config struct {
	// Database is the path of the dictionary store.
	Database string `yaml:"database"`

	Import  ImportConfig  `yaml:"import"`
	Lookup  LookupConfig  `yaml:"lookup"`
	Watch   WatchConfig   `yaml:"watch"`
	Logging LoggingConfig `yaml:"logging"`
}

// ImportConfig controls how archives are imported.
type ImportConfig struct {
	// Codec is the blob compression codec, "zstd" or "lz4".
	Codec         string        `yaml:"codec"`
	Workers       int           `yaml:"workers"`
	MaxConcurrent int           `yaml:"maxConcurrent"`
	BusyTimeout   time.Duration `yaml:"busyTimeout"`
}

// LookupConfig holds the lookup defaults.
type LookupConfig struct {
	CacheSize     int           `yaml:"cacheSize"`
	MatchReadings bool          `yaml:"matchReadings"`
	MaxResults    int           `yaml:"maxResults"`
	Timeout       time.Duration `yaml:"timeout"`
}

// WatchConfig controls the directory watcher.
type WatchConfig struct {
	Dir string `yaml:"dir"`

	// Debounce is how long a file must be unchanged before it is imported.
	Debounce time.Duration `yaml:"debounce"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a YAML config file, if path is not empty, over the defaults
// and then applies environment variable overrides.
func Load(path string) (*Config, error) {
	return load(path, os.LookupEnv)
}

func load(path string, lookupEnv func(string) (string, bool)) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	if err := applyEnvOverrides(cfg, lookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Database: filepath.Join(DataDir(), DatabaseName),
		Import: ImportConfig{
			Codec:         "zstd",
			MaxConcurrent: 2,
			BusyTimeout:   5 * time.Second,
		},
		Lookup: LookupConfig{
			CacheSize: 4096,
			Timeout:   2 * time.Second,
		},
		Watch: WatchConfig{
			Debounce: time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate checks that every value is usable.
func (c *Config) Validate() error {
	switch {
	case c.Database == "":
		return fmt.Errorf("%w: database path is empty", ErrInvalid)
	case c.Import.Codec != "zstd" && c.Import.Codec != "lz4":
		return fmt.Errorf("%w: unknown codec %q", ErrInvalid, c.Import.Codec)
	case c.Import.Workers < 0, c.Import.MaxConcurrent < 0, c.Lookup.CacheSize < 0, c.Lookup.MaxResults < 0:
		return fmt.Errorf("%w: negative count", ErrInvalid)
	case c.Lookup.Timeout < 0, c.Import.BusyTimeout < 0, c.Watch.Debounce < 0:
		return fmt.Errorf("%w: negative duration", ErrInvalid)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("%w: unknown log format %q", ErrInvalid, c.Logging.Format)
	}
	return nil
}

func applyEnvOverrides(cfg *Config, lookupEnv func(string) (string, bool)) error {
	strs := []struct {
		name string
		dst  *string
	}{
		{"DATABASE", &cfg.Database},
		{"IMPORT_CODEC", &cfg.Import.Codec},
		{"WATCH_DIR", &cfg.Watch.Dir},
		{"LOGGING_LEVEL", &cfg.Logging.Level},
		{"LOGGING_FORMAT", &cfg.Logging.Format},
	}
	for _, s := range strs {
		if v, ok := lookupEnv(EnvPrefix + s.name); ok && v != "" {
			*s.dst = v
		}
	}

	ints := []struct {
		name string
		dst  *int
	}{
		{"IMPORT_WORKERS", &cfg.Import.Workers},
		{"IMPORT_MAX_CONCURRENT", &cfg.Import.MaxConcurrent},
		{"LOOKUP_CACHE_SIZE", &cfg.Lookup.CacheSize},
		{"LOOKUP_MAX_RESULTS", &cfg.Lookup.MaxResults},
	}
	for _, i := range ints {
		v, ok := lookupEnv(EnvPrefix + i.name)
		if !ok || v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s%s: %v", ErrInvalid, EnvPrefix, i.name, err)
		}
		*i.dst = n
	}

	durations := []struct {
		name string
		dst  *time.Duration
	}{
		{"IMPORT_BUSY_TIMEOUT", &cfg.Import.BusyTimeout},
		{"LOOKUP_TIMEOUT", &cfg.Lookup.Timeout},
		{"WATCH_DEBOUNCE", &cfg.Watch.Debounce},
	}
	for _, d := range durations {
		v, ok := lookupEnv(EnvPrefix + d.name)
		if !ok || v == "" {
			continue
		}
		dur, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: %s%s: %v", ErrInvalid, EnvPrefix, d.name, err)
		}
		*d.dst = dur
	}

	if v, ok := lookupEnv(EnvPrefix + "LOOKUP_MATCH_READINGS"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: %sLOOKUP_MATCH_READINGS: %v", ErrInvalid, EnvPrefix, err)
		}
		cfg.Lookup.MatchReadings = b
	}
	return nil
}
