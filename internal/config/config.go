// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New(ctx) to build a Config with defaults.
// - Load layers a YAML file and GROWTH_* environment variables on top.
// - Validation failures wrap ErrInvalidConfig.
package config

import (
	"context"
	"fmt"
	"runtime"
)

// Ledger drivers.
const (
	LedgerMemory   = "memory"
	LedgerSQLite   = "sqlite"
	LedgerPostgres = "postgres"
)

// Asset registry drivers.
const (
	AssetsMemory = "memory"
	AssetsS3     = "s3"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// QueueSize bounds the in-memory review queue.
	QueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of review workers.
	WorkerCount int `koanf:"worker_count"`

	// DedupeSize sets how many review ids are remembered.
	DedupeSize int `koanf:"dedupe_size"`

	// LedgerDriver selects the record store: memory, sqlite or postgres.
	LedgerDriver string `koanf:"ledger_driver"`
	SQLitePath   string `koanf:"sqlite_path"`
	PostgresDSN  string `koanf:"postgres_dsn"`

	// AssetsDriver selects where badge metadata lives: memory or s3.
	AssetsDriver string `koanf:"assets_driver"`
	S3Bucket     string `koanf:"s3_bucket"`
	S3Region     string `koanf:"s3_region"`
	S3Endpoint   string `koanf:"s3_endpoint"`
	S3PathStyle  bool   `koanf:"s3_path_style"`
	S3Prefix     string `koanf:"s3_prefix"`

	// RedisAddr enables level change notifications when set.
	RedisAddr     string `koanf:"redis_addr"`
	RedisPassword string `koanf:"redis_password"`
	RedisDB       int    `koanf:"redis_db"`

	// ReconcileSchedule is a cron expression with seconds; empty disables the sweep.
	ReconcileSchedule string `koanf:"reconcile_schedule"`

	// Rent schedule and growth limits.
	RentLamportsPerByteYear uint64 `koanf:"rent_lamports_per_byte_year"`
	RentExemptionYears      uint64 `koanf:"rent_exemption_years"`
	MaxGrowPerCall          int    `koanf:"max_grow_per_call"`
}

// New creates a Config populated with defaults.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:                "info",
		Addr:                    ":9080",
		QueueSize:               10_000,
		WorkerCount:             runtime.NumCPU() * 2,
		DedupeSize:              50_000,
		LedgerDriver:            LedgerMemory,
		SQLitePath:              "data/growth.db",
		AssetsDriver:            AssetsMemory,
		S3Region:                "us-east-1",
		S3Prefix:                "metadata/",
		ReconcileSchedule:       "@every 1m",
		RentLamportsPerByteYear: 3480,
		RentExemptionYears:      2,
		MaxGrowPerCall:          10240,
	}
}

// Validate checks the combination of settings.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.QueueSize <= 0:
		return fmt.Errorf("%w: queue_size must be positive", ErrInvalidConfig)
	case c.WorkerCount <= 0:
		return fmt.Errorf("%w: worker_count must be positive", ErrInvalidConfig)
	case c.DedupeSize < 0:
		return fmt.Errorf("%w: dedupe_size must not be negative", ErrInvalidConfig)
	case c.MaxGrowPerCall <= 0:
		return fmt.Errorf("%w: max_grow_per_call must be positive", ErrInvalidConfig)
	}

	switch c.LedgerDriver {
	case LedgerMemory:
	case LedgerSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("%w: sqlite_path is required for the sqlite ledger", ErrInvalidConfig)
		}
	case LedgerPostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("%w: postgres_dsn is required for the postgres ledger", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown ledger_driver %q", ErrInvalidConfig, c.LedgerDriver)
	}

	switch c.AssetsDriver {
	case AssetsMemory:
	case AssetsS3:
		if c.S3Bucket == "" {
			return fmt.Errorf("%w: s3_bucket is required for the s3 asset registry", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown assets_driver %q", ErrInvalidConfig, c.AssetsDriver)
	}
	return nil
}
