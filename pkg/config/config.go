// Package config loads and validates the immutable run configuration for the
// classifier. Configuration is read once at startup from an optional YAML
// file, with environment variables overriding individual values. Components
// receive the resulting struct by reference; nothing reads ambient state
// after startup.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v2"
)

// Config holds every tunable consumed by the classification pipeline.
type Config struct {
	// DatabaseDSN is the Postgres connection string for the metadata and
	// telemetry store. Required.
	DatabaseDSN string `yaml:"database_dsn"`

	// TileDir is the directory holding SRTM .hgt elevation tiles. Required.
	TileDir string `yaml:"tile_dir"`

	// OutputDir receives shard partial artifacts and the merged CSV.
	OutputDir string `yaml:"output_dir"`

	// ReportDir receives per-hotspot worst-pair report records.
	ReportDir string `yaml:"report_dir"`

	// ResultsDB, when set, is the path of a SQLite database that also
	// receives flagged results and run metadata.
	ResultsDB string `yaml:"results_db"`

	// WindowHours bounds how far back witness receipts are fetched.
	WindowHours int `yaml:"window_hours"`

	// BatchSize is the number of witness hotspots per shard.
	BatchSize int `yaml:"batch_size"`

	// Workers is the number of concurrent shard workers.
	Workers int `yaml:"workers"`

	// MaxBeaconers caps how many beaconer counterparts are evaluated per
	// witness, bounding worst-case work for high-fan-in hotspots.
	MaxBeaconers int `yaml:"max_beaconers"`

	// MinSamples is the minimum receipt count for a pair to be evaluable.
	MinSamples int `yaml:"min_samples"`

	// MinDistanceKM is the minimum asserted distance for a pair to be
	// evaluable.
	MinDistanceKM float64 `yaml:"min_distance_km"`

	// ThresholdDB is the flag threshold: a pair is flagged when its mean
	// measured RSSI exceeds the predicted received power by at least this
	// margin. Deliberately a large negative number so that only links far
	// outperforming the physical model are flagged.
	ThresholdDB float64 `yaml:"threshold_db"`

	// SearchRadius is the H3 grid-disk radius (in res-8 cells) searched
	// around an asserted position for the privacy-offset elevation
	// correction.
	SearchRadius int `yaml:"search_radius"`

	// RetryAttempts bounds retries of transient store failures.
	RetryAttempts int `yaml:"retry_attempts"`
}

// Default returns a Config populated with the standard tunables.
func Default() Config {
	return Config{
		OutputDir:     "output",
		ReportDir:     "report_cards",
		WindowHours:   168,
		BatchSize:     1000,
		Workers:       4,
		MaxBeaconers:  250,
		MinSamples:    10,
		MinDistanceKM: 1.0,
		ThresholdDB:   -50.0,
		SearchRadius:  1,
		RetryAttempts: 3,
	}
}

// Load builds a Config from defaults, an optional YAML file, and environment
// overrides, in that order of precedence (environment wins).
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyEnv() error {
	setString := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	var envErr error
	setInt := func(key string, dst *int) {
		if v, ok := os.LookupEnv(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				envErr = fmt.Errorf("%s: %w", key, err)
				return
			}
			*dst = n
		}
	}
	setFloat := func(key string, dst *float64) {
		if v, ok := os.LookupEnv(key); ok {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				envErr = fmt.Errorf("%s: %w", key, err)
				return
			}
			*dst = f
		}
	}

	setString("DATABASE_DSN", &c.DatabaseDSN)
	setString("SRTM_TILE_DIR", &c.TileDir)
	setString("OUTPUT_DIR", &c.OutputDir)
	setString("REPORT_DIR", &c.ReportDir)
	setString("RESULTS_DB", &c.ResultsDB)
	setInt("WINDOW_HOURS", &c.WindowHours)
	setInt("BATCH_SIZE", &c.BatchSize)
	setInt("N_WORKERS", &c.Workers)
	setInt("MAX_BEACONERS", &c.MaxBeaconers)
	setInt("MIN_SAMPLES", &c.MinSamples)
	setFloat("MIN_DISTANCE_KM", &c.MinDistanceKM)
	setFloat("THRESHOLD_DB", &c.ThresholdDB)
	setInt("SEARCH_RADIUS", &c.SearchRadius)
	setInt("RETRY_ATTEMPTS", &c.RetryAttempts)

	return envErr
}

// Validate checks that required values are present and tunables are sane.
// A validation failure is the only error that aborts a run before any shard
// work begins.
func (c *Config) Validate() error {
	var errs []error

	if c.DatabaseDSN == "" {
		errs = append(errs, errors.New("database_dsn is required (or set DATABASE_DSN)"))
	}
	if c.TileDir == "" {
		errs = append(errs, errors.New("tile_dir is required (or set SRTM_TILE_DIR)"))
	}
	if c.BatchSize < 1 {
		errs = append(errs, fmt.Errorf("batch_size must be positive, got %d", c.BatchSize))
	}
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be positive, got %d", c.Workers))
	}
	if c.MaxBeaconers < 1 {
		errs = append(errs, fmt.Errorf("max_beaconers must be positive, got %d", c.MaxBeaconers))
	}
	if c.MinSamples < 1 {
		errs = append(errs, fmt.Errorf("min_samples must be positive, got %d", c.MinSamples))
	}
	if c.MinDistanceKM < 0 {
		errs = append(errs, fmt.Errorf("min_distance_km must be non-negative, got %v", c.MinDistanceKM))
	}
	if c.SearchRadius < 0 {
		errs = append(errs, fmt.Errorf("search_radius must be non-negative, got %d", c.SearchRadius))
	}

	return errors.Join(errs...)
}
