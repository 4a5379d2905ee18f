package database

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"rightblock/internal/config"
	"rightblock/internal/store"
)

// ErrEphemeralStore is returned when a command needs a store other processes
// can see but the configured driver keeps everything in this process
var ErrEphemeralStore = errors.New("store driver keeps data in memory only")

// RequireShared fails for drivers whose data dies with the process
func RequireShared(cfg config.StoreConfig) error {
	switch cfg.Driver {
	case "", "memory":
		return fmt.Errorf("%w: set store.driver (or RB_STORE_DRIVER) to redis, mysql or postgres", ErrEphemeralStore)
	}
	return nil
}

// Open returns the durable backend selected by cfg.Driver
func Open(ctx context.Context, cfg config.StoreConfig, log *zap.Logger) (store.Backend, error) {
	if log == nil {
		log = zap.NewNop()
	}
	switch cfg.Driver {
	case "", "memory":
		log.Warn("using the in-memory store, nothing survives a restart")
		return store.NewMemory(), nil
	case "redis":
		return NewRedisStore(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.KeyPrefix)
	case "mysql":
		return NewGormStore(cfg.MySQL.DSN())
	case "postgres":
		return NewPostgresStore(cfg.Postgres.ConnString(), cfg.KeyPrefix, log)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
