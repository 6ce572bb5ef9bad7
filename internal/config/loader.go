package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if TIERGATE_CONFIG is set
//  3. env (prefix TIERGATE_)
func Load(ctx context.Context) (*Config, error) {
	base := New()

	k := koanf.New(".")

	if path := os.Getenv("TIERGATE_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
		}
	}

	// Environment variables: TIERGATE_ADDR, TIERGATE_QUEUE_SIZE, ...
	// Keys map to the flat koanf tags on the struct; underscores are
	// preserved.
	envProvider := env.Provider("TIERGATE_", ".", func(s string) string {
		s = strings.ToLower(s)
		return strings.TrimPrefix(s, "tiergate_")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func validate(cfg *Config) error {
	if cfg.Addr == "" {
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	}
	if len(cfg.Tiers) == 0 {
		return fmt.Errorf("%w: tiers must not be empty", ErrInvalidConfig)
	}
	seen := make(map[string]struct{}, len(cfg.Tiers))
	for _, t := range cfg.Tiers {
		if t == "" {
			return fmt.Errorf("%w: tier names must not be empty", ErrInvalidConfig)
		}
		if _, dup := seen[t]; dup {
			return fmt.Errorf("%w: duplicate tier %q", ErrInvalidConfig, t)
		}
		seen[t] = struct{}{}
	}
	if cfg.BaseScore < 0 || cfg.BaseScore > 100 {
		return fmt.Errorf("%w: base_score must be within [0,100]", ErrInvalidConfig)
	}
	return nil
}
