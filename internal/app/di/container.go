package di

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	baradapters "stock_history/internal/feature/bars/adapters"
	barusecase "stock_history/internal/feature/bars/usecase"
	govusecase "stock_history/internal/feature/governor/usecase"
	symadapters "stock_history/internal/feature/symbollist/adapters"
	symusecase "stock_history/internal/feature/symbollist/usecase"
	"stock_history/internal/platform/cache"
	"stock_history/internal/platform/calendar"
	"stock_history/internal/platform/config"
	infradb "stock_history/internal/platform/db"
	infraredis "stock_history/internal/platform/redis"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Container holds the wired application components shared by the server and barctl.
type Container struct {
	DB     *gorm.DB
	Redis  *redis.Client // nil when Redis is disabled or unreachable
	Logger *slog.Logger

	Bars        cache.BarStore
	Governor    *govusecase.Governor
	Reconcile   *barusecase.ReconcileUsecase
	Ingest      *barusecase.IngestUsecase
	Maintenance *barusecase.MaintenanceUsecase
	Symbols     *symusecase.SymbolUsecase
}

// Build opens the store, connects optional Redis, and wires every usecase.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Container, error) {
	if logger == nil {
		logger = slog.Default()
	}

	mode, err := calendar.ParseMode(cfg.Calendar)
	if err != nil {
		return nil, err
	}
	market, err := NewMarket(cfg)
	if err != nil {
		return nil, err
	}
	db, err := infradb.Open(infradb.Config{
		Driver:        cfg.DB.Driver,
		Path:          cfg.DB.Path,
		DSN:           cfg.DB.DSN,
		Host:          cfg.DB.Host,
		Port:          cfg.DB.Port,
		User:          cfg.DB.User,
		Password:      cfg.DB.Password,
		Name:          cfg.DB.Name,
		SSLMode:       cfg.DB.SSLMode,
		RunMigrations: cfg.DB.RunMigrations,
	})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	var rdb *redis.Client
	if cfg.Redis.Enabled {
		rdb, err = infraredis.NewRedisClient(ctx, infraredis.Options{Addr: cfg.Redis.Addr(), Password: cfg.Redis.Password})
		if err != nil {
			logger.Warn("Redis unavailable. Running without cache and with database governance state.", "error", err)
			rdb = nil
		}
	}

	cal := calendar.New(mode, logger)

	var bars cache.BarStore = baradapters.NewBarRepository(db)
	if cfg.Cache.Enabled && rdb != nil {
		bars = cache.NewCachingBarRepository(rdb, cfg.Cache.TTL, bars, cfg.Cache.Namespace)
	}

	stateRepo := NewStateRepository(cfg.StateStore, rdb, cfg.Redis.StateKey, db)
	gov := govusecase.NewGovernor(ctx, stateRepo, govusecase.Limits{
		DailyLimit:         cfg.Governor.DailyLimit,
		PerKeyLimit:        cfg.Governor.PerKeyLimit,
		Burst:              cfg.Governor.Burst,
		RatePerMinute:      cfg.Governor.RatePerMinute,
		PowerSaveThreshold: cfg.Governor.PowerSaveThreshold,
	}, logger)

	if !market.HasCredential() {
		logger.Warn("provider API key is not set. Serving stored data only.", "provider", market.Name())
	}

	rec := barusecase.NewReconcileUsecase(bars, market, gov, cal, barusecase.WithLogger(logger))
	symbols := symusecase.NewSymbolUsecase(symadapters.NewSymbolRepository(db))
	if len(cfg.Watchlist) > 0 {
		n, err := symbols.SeedWatchlist(ctx, cfg.Watchlist)
		if err != nil {
			c := &Container{DB: db, Redis: rdb}
			_ = c.Close()
			return nil, fmt.Errorf("seed watch list: %w", err)
		}
		if n > 0 {
			logger.Info("watch list seeded", "added", n)
		}
	}

	return &Container{
		DB:          db,
		Redis:       rdb,
		Logger:      logger,
		Bars:        bars,
		Governor:    gov,
		Reconcile:   rec,
		Ingest:      barusecase.NewIngestUsecase(rec, gov, bars, logger),
		Maintenance: barusecase.NewMaintenanceUsecase(bars),
		Symbols:     symbols,
	}, nil
}

// Ping checks the durable store.
func (c *Container) Ping(ctx context.Context) error {
	return infradb.Ping(ctx, c.DB)
}

// Close releases Redis and database connections.
func (c *Container) Close() error {
	var errs []error
	if c.Redis != nil {
		errs = append(errs, c.Redis.Close())
	}
	if sqlDB, err := c.DB.DB(); err == nil {
		errs = append(errs, sqlDB.Close())
	}
	return errors.Join(errs...)
}
