package database

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rightblock/internal/config"
	"rightblock/internal/store"
)

func TestRequireShared(t *testing.T) {
	for _, driver := range []string{"", "memory"} {
		err := RequireShared(config.StoreConfig{Driver: driver})
		assert.ErrorIs(t, err, ErrEphemeralStore, "driver %q", driver)
	}
	for _, driver := range []string{"redis", "mysql", "postgres"} {
		assert.NoError(t, RequireShared(config.StoreConfig{Driver: driver}), "driver %q", driver)
	}
}

func TestOpen_DefaultsToRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := config.DefaultConfig().Store
	require.Equal(t, "redis", cfg.Driver)
	cfg.Redis.Addr = mr.Addr()

	b, err := Open(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer b.Close()
	_, ok := b.(*RedisStore)
	assert.True(t, ok)
}

func TestOpen_Memory(t *testing.T) {
	b, err := Open(context.Background(), config.StoreConfig{Driver: "memory"}, nil)
	require.NoError(t, err)
	assert.IsType(t, store.NewMemory(), b)
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), config.StoreConfig{Driver: "sqlite"}, nil)
	assert.Error(t, err)
}
