// Package config defines process configuration and its loading layers.
//
// Conventions:
// - Provide New(ctx) to build a Config with defaults.
// - Functions accept context.Context as the first parameter.
// - External errors are wrapped with this package's sentinels.
package config

import (
	"context"
	"fmt"
	"maps"
	"runtime"
	"slices"
	"strings"

	"github.com/okian/rankd/internal/domain/rating"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log encoding: text or json.
	LogFormat string `koanf:"log_format"`

	// Algorithm names the rating algorithm in the registry.
	Algorithm string `koanf:"algorithm"`

	// Params holds construction parameters keyed by algorithm name.
	Params map[string]map[string]any `koanf:"params"`

	// QueueSize bounds the in-memory match queue.
	QueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of match workers.
	WorkerCount int `koanf:"worker_count"`

	// DedupeSize sets the size of the match id cache. Zero keeps every id.
	DedupeSize int `koanf:"dedupe_size"`

	// LockStripes sets the number of per-participant lock stripes.
	LockStripes int `koanf:"lock_stripes"`

	// MetricsAddr is the listen address of /metrics; empty disables it.
	MetricsAddr string `koanf:"metrics_addr"`

	// MatchesFile is a YAML file of matches to replay on startup.
	MatchesFile string `koanf:"matches_file"`

	// EndPeriod closes a rating period after the replay.
	EndPeriod bool `koanf:"end_period"`

	// TopN is the number of standings logged after the replay.
	TopN int `koanf:"top_n"`
}

// New creates a Config holding the defaults.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:    "info",
		LogFormat:   "text",
		Algorithm:   "elo",
		Params:      map[string]map[string]any{},
		QueueSize:   100_000,
		WorkerCount: runtime.NumCPU() * 2,
		DedupeSize:  500_000,
		LockStripes: 256,
		TopN:        10,
	}
}

// AlgorithmParams returns the parameters configured for the selected algorithm.
func (c *Config) AlgorithmParams() rating.Params {
	name := strings.ToLower(strings.TrimSpace(c.Algorithm))
	for k, v := range c.Params {
		if strings.ToLower(k) == name {
			return rating.Params(maps.Clone(v))
		}
	}
	return nil
}

var (
	logLevels  = []string{"debug", "info", "warn", "error"}
	logFormats = []string{"text", "json"}
)

// Validate checks field ranges. Algorithm names and params are checked when
// the algorithm is resolved.
func (c *Config) Validate() error {
	switch {
	case !slices.Contains(logLevels, strings.ToLower(c.LogLevel)):
		return fmt.Errorf("%w: log_level %q", ErrInvalidConfig, c.LogLevel)
	case !slices.Contains(logFormats, strings.ToLower(c.LogFormat)):
		return fmt.Errorf("%w: log_format %q", ErrInvalidConfig, c.LogFormat)
	case strings.TrimSpace(c.Algorithm) == "":
		return fmt.Errorf("%w: algorithm must not be empty", ErrInvalidConfig)
	case c.QueueSize < 1:
		return fmt.Errorf("%w: queue_size must be positive, got %d", ErrInvalidConfig, c.QueueSize)
	case c.WorkerCount < 0:
		return fmt.Errorf("%w: worker_count must not be negative, got %d", ErrInvalidConfig, c.WorkerCount)
	case c.DedupeSize < 0:
		return fmt.Errorf("%w: dedupe_size must not be negative, got %d", ErrInvalidConfig, c.DedupeSize)
	case c.LockStripes < 1:
		return fmt.Errorf("%w: lock_stripes must be positive, got %d", ErrInvalidConfig, c.LockStripes)
	case c.TopN < 0:
		return fmt.Errorf("%w: top_n must not be negative, got %d", ErrInvalidConfig, c.TopN)
	}
	return nil
}
