package database

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rightblock/internal/store"
)

func newTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewRedisStoreFromClient(client, "rb"), mr
}

func TestRedisStore_GetSetDelete(t *testing.T) {
	ctx := context.Background()
	rs, mr := newTestRedis(t)
	defer rs.Close()

	_, err := rs.Get(ctx, "rb_active_queue")
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, rs.Set(ctx, "rb_active_queue", `["alice"]`))
	v, err := rs.Get(ctx, "rb_active_queue")
	require.NoError(t, err)
	assert.Equal(t, `["alice"]`, v)

	raw, err := mr.Get("rb:rb_active_queue")
	require.NoError(t, err)
	assert.Equal(t, `["alice"]`, raw)

	require.NoError(t, rs.Delete(ctx, "rb_active_queue"))
	_, err = rs.Get(ctx, "rb_active_queue")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRedisStore_WatchDeliversChangedKeys(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rs, _ := newTestRedis(t)
	defer rs.Close()

	ch, err := rs.Watch(ctx)
	require.NoError(t, err)

	require.NoError(t, rs.Set(ctx, "rb_bg_status", "{}"))
	select {
	case key := <-ch:
		assert.Equal(t, "rb_bg_status", key)
	case <-time.After(2 * time.Second):
		t.Fatal("no change notification")
	}
}

func TestRedisStore_DebugChannel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rs, _ := newTestRedis(t)
	defer rs.Close()

	ch, err := rs.Subscribe(ctx)
	require.NoError(t, err)

	require.NoError(t, rs.Publish(ctx, "[worker] idle"))
	select {
	case msg := <-ch:
		assert.Equal(t, "[worker] idle", msg)
	case <-time.After(2 * time.Second):
		t.Fatal("no debug message")
	}
}

func TestRedisStore_BehindStore(t *testing.T) {
	ctx := context.Background()
	rs, _ := newTestRedis(t)

	s := store.New(rs, nil, nil)
	defer s.Close()

	require.NoError(t, store.SetJSON(ctx, s, "rb_block_db_v1", []string{"alice"}))
	s.Invalidate("rb_block_db_v1")
	assert.Equal(t, []string{"alice"}, store.GetJSON(ctx, s, "rb_block_db_v1", []string{}))
}
