package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/rl1809/lesson-booking/internal/config"
	"github.com/rl1809/lesson-booking/internal/core/domain"
	"github.com/rl1809/lesson-booking/internal/port"
)

// Open constructs the store handle for the configured backend and verifies it is reachable.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (port.Store, error) {
	switch cfg.StoreBackend {
	case config.BackendMemory:
		return NewMemoryAdapter(), nil

	case config.BackendMySQL:
		db, err := sql.Open("mysql", cfg.MySQLDSN)
		if err != nil {
			return nil, fmt.Errorf("open mysql: %w", err)
		}
		db.SetMaxOpenConns(50)
		db.SetMaxIdleConns(25)
		db.SetConnMaxLifetime(5 * time.Minute)

		adapter := NewMySQLAdapter(db)
		if err := adapter.Ping(ctx); err != nil {
			db.Close()
			return nil, err
		}
		if err := adapter.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, err
		}
		logger.Info("connected to mysql")
		return adapter, nil

	case config.BackendPostgres:
		pool, err := NewPostgresPool(ctx, cfg.PostgresDSN, logger)
		if err != nil {
			return nil, err
		}
		adapter := NewPostgresAdapter(pool)
		if err := adapter.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		logger.Info("connected to postgres")
		return adapter, nil

	case config.BackendRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			PoolSize: 100,
		})
		adapter := NewRedisAdapter(rdb)
		if err := adapter.Ping(ctx); err != nil {
			rdb.Close()
			return nil, err
		}
		logger.Info("connected to redis")
		return adapter, nil
	}

	return nil, fmt.Errorf("unknown store backend %q: %w", cfg.StoreBackend, domain.ErrStoreUnavailable)
}
