package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/rl1809/record-store/internal/adapter/storage"
	"github.com/rl1809/record-store/internal/config"
	"github.com/rl1809/record-store/internal/port"
)

// stores bundles the repositories of whichever database backend is configured.
type stores struct {
	tx      port.Transactor
	catalog port.CatalogRepository
	orders  port.OrderRepository
	sql     *storage.SQLStore
}

func (s *stores) Close() error {
	if s.sql != nil {
		return s.sql.Close()
	}
	return nil
}

func newLogger(level string) (*zap.Logger, error) {
	if strings.EqualFold(level, "debug") {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func openStores(ctx context.Context, cfg config.Database, logger *zap.Logger) (*stores, error) {
	if cfg.Driver == config.DriverMemory {
		mem := storage.NewMemoryStore()
		logger.Warn("using in-memory store; data is lost on restart")
		return &stores{
			tx:      mem,
			catalog: storage.NewMemoryCatalogRepository(mem),
			orders:  storage.NewMemoryOrderRepository(mem),
		}, nil
	}

	sqlStore, err := storage.OpenSQLStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	logger.Info("connected to database", zap.String("driver", cfg.Driver))

	return &stores{
		tx:      sqlStore,
		catalog: storage.NewSQLCatalogRepository(sqlStore),
		orders:  storage.NewSQLOrderRepository(sqlStore),
		sql:     sqlStore,
	}, nil
}

// openCache returns the configured cache backend and a function releasing it.
func openCache(ctx context.Context, cfg config.Config, logger *zap.Logger) (port.CacheRepository, func() error, error) {
	if cfg.Cache.Backend == config.CacheMemory {
		lru, err := storage.NewLRUAdapter(cfg.Cache.Capacity)
		if err != nil {
			return nil, nil, fmt.Errorf("create lru cache: %w", err)
		}
		logger.Info("using in-process cache", zap.Int("capacity", cfg.Cache.Capacity))
		return lru, func() error { return nil }, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("connect redis: %w", err)
	}
	logger.Info("connected to redis", zap.String("addr", cfg.Redis.Addr))

	return storage.NewRedisAdapter(rdb, cfg.Redis.KeyPrefix), rdb.Close, nil
}
