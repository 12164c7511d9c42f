package main

import (
	"context"
	"fmt"

	"github.com/okian/growth/internal/adapters/assets"
	assetss3 "github.com/okian/growth/internal/adapters/assets/s3"
	"github.com/okian/growth/internal/adapters/ledger"
	"github.com/okian/growth/internal/adapters/ledger/postgres"
	"github.com/okian/growth/internal/adapters/ledger/sqlite"
	"github.com/okian/growth/internal/adapters/notify"
	app "github.com/okian/growth/internal/app"
	"github.com/okian/growth/internal/config"
	"github.com/okian/growth/internal/domain/growth"
	"github.com/okian/growth/pkg/logger"
)

// openLedger opens the record store selected by cfg.
func openLedger(ctx context.Context, cfg *config.Config) (app.Ledger, error) {
	opts := []ledger.Option{ledger.WithMaxGrowPerCall(cfg.MaxGrowPerCall)}
	switch cfg.LedgerDriver {
	case config.LedgerSQLite:
		return sqlite.NewStore(ctx, cfg.SQLitePath, opts...)
	case config.LedgerPostgres:
		return postgres.NewStore(ctx, cfg.PostgresDSN, opts...)
	case config.LedgerMemory:
		return ledger.NewStore(opts...), nil
	default:
		return nil, fmt.Errorf("%w: ledger driver %q", config.ErrInvalidConfig, cfg.LedgerDriver)
	}
}

// openAssets opens the badge metadata registry selected by cfg.
func openAssets(ctx context.Context, cfg *config.Config) (assets.Registry, error) {
	switch cfg.AssetsDriver {
	case config.AssetsS3:
		backend, err := assetss3.New(ctx, assetss3.Config{
			Region:    cfg.S3Region,
			Bucket:    cfg.S3Bucket,
			Endpoint:  cfg.S3Endpoint,
			PathStyle: cfg.S3PathStyle,
			Prefix:    cfg.S3Prefix,
		})
		if err != nil {
			return nil, err
		}
		return assets.NewCatalog(backend), nil
	case config.AssetsMemory:
		return assets.NewMemory(), nil
	default:
		return nil, fmt.Errorf("%w: assets driver %q", config.ErrInvalidConfig, cfg.AssetsDriver)
	}
}

// openNotifier connects to Redis when configured.
func openNotifier(ctx context.Context, cfg *config.Config) (notify.Notifier, error) {
	if cfg.RedisAddr == "" {
		return notify.Nop{}, nil
	}
	return notify.Dial(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
}

// build assembles the service and its adapters from cfg.
func build(ctx context.Context, cfg *config.Config, log logger.Logger) (*app.Service, error) {
	l, err := openLedger(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	reg, err := openAssets(ctx, cfg)
	if err != nil {
		_ = l.Close()
		return nil, fmt.Errorf("open asset registry: %w", err)
	}
	n, err := openNotifier(ctx, cfg)
	if err != nil {
		_ = l.Close()
		return nil, fmt.Errorf("open notifier: %w", err)
	}

	rent := growth.DefaultRent()
	rent.LamportsPerByteYear = cfg.RentLamportsPerByteYear
	rent.ExemptionYears = cfg.RentExemptionYears

	return app.New(l, reg,
		app.WithLogger(log),
		app.WithWorkerCount(cfg.WorkerCount),
		app.WithQueueSize(cfg.QueueSize),
		app.WithDedupeSize(cfg.DedupeSize),
		app.WithNotifier(n),
		app.WithReconcileSchedule(cfg.ReconcileSchedule),
		app.WithGrowth(growth.New(
			growth.WithRent(rent),
			growth.WithMaxStep(cfg.MaxGrowPerCall),
		)),
	), nil
}
