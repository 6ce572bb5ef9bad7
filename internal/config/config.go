// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults; Load layers file and env.
// - External errors must be wrapped via this package's error helpers.
package config

import "runtime"

// Config contains process configuration. Extend as needed.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// Tiers is the ascending subscription tier order. Upgrade adjacency
	// depends on this ordering, so it should only ever be extended, not
	// reshuffled.
	Tiers []string `koanf:"tiers"`

	// CacheTTLSeconds bounds how long a cached access decision stays
	// fresh.
	CacheTTLSeconds int `koanf:"cache_ttl_seconds"`

	// CacheMaxEntries bounds the decision cache size.
	CacheMaxEntries int `koanf:"cache_max_entries"`

	// QueueSize bounds the in-memory invalidation event queue.
	QueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of invalidation workers.
	WorkerCount int `koanf:"worker_count"`

	// DedupeSize bounds the invalidation-event idempotency cache.
	DedupeSize int `koanf:"dedupe_size"`

	// ShardCount configures lock striping in the project registry.
	ShardCount int `koanf:"shard_count"`

	// BaseScore is the neutral starting score for the weighted and
	// probability strategies.
	BaseScore float64 `koanf:"base_score"`

	// MaxAssessFields caps the number of fields accepted inline on an
	// assess request.
	MaxAssessFields int `koanf:"max_assess_fields"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:        "info",
		Addr:            ":9080",
		Tiers:           []string{"free", "registered", "basic", "premium", "enterprise"},
		CacheTTLSeconds: 300,
		CacheMaxEntries: 1000,
		QueueSize:       10_000,
		WorkerCount:     runtime.NumCPU() * 2,
		DedupeSize:      50_000,
		ShardCount:      8,
		BaseScore:       50,
		MaxAssessFields: 200,
	}
}
