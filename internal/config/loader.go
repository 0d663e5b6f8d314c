package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix   = "RANKD_"
	envConfig   = envPrefix + "CONFIG"
	envDotFile  = envPrefix + "ENV_FILE"
	defaultDotE = ".env"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New(ctx))
//  2. file (YAML) if RANKD_CONFIG is set
//  3. a .env file (RANKD_ENV_FILE, default ./.env); it never overrides
//     variables already set in the environment
//  4. env (prefix RANKD_, "__" separates nesting levels)
func Load(ctx context.Context) (*Config, error) {
	base := New(ctx)

	k := koanf.New(".")

	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	if path := os.Getenv(envConfig); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
		}
	}

	// RANKD_QUEUE_SIZE -> queue_size, RANKD_PARAMS__ELO__K_FACTOR -> params.elo.k_factor
	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
		return strings.ReplaceAll(s, "__", ".")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// loadDotEnv copies a .env file into the process environment. A missing
// default file is not an error; a missing file named explicitly is.
func loadDotEnv() error {
	path, explicit := os.LookupEnv(envDotFile)
	if !explicit || path == "" {
		path = defaultDotE
	}
	err := godotenv.Load(path)
	if err == nil {
		return nil
	}
	if errors.Is(err, fs.ErrNotExist) && !explicit {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
}
