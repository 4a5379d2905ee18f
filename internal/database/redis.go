package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"rightblock/internal/store"
)

// RedisStore is a store.Backend on plain Redis keys. Writes publish the key
// name on "<prefix>:changes" so other contexts can drop their cached copy.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore connects to Redis and verifies the connection
func NewRedisStore(ctx context.Context, addr, password string, db int, prefix string) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return NewRedisStoreFromClient(client, prefix), nil
}

// NewRedisStoreFromClient wraps an existing client
func NewRedisStoreFromClient(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (r *RedisStore) key(k string) string {
	return r.prefix + ":" + k
}

func (r *RedisStore) changesChannel() string {
	return r.prefix + ":changes"
}

func (r *RedisStore) debugChannel() string {
	return r.prefix + ":debug"
}

func (r *RedisStore) Get(ctx context.Context, key string) (string, error) {
	v, err := r.client.Get(ctx, r.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", store.ErrNotFound
	}
	return v, err
}

func (r *RedisStore) Set(ctx context.Context, key, value string) error {
	if err := r.client.Set(ctx, r.key(key), value, 0).Err(); err != nil {
		return err
	}
	return r.client.Publish(ctx, r.changesChannel(), key).Err()
}

func (r *RedisStore) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		return err
	}
	return r.client.Publish(ctx, r.changesChannel(), key).Err()
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

// Watch streams changed key names until ctx is done
func (r *RedisStore) Watch(ctx context.Context) (<-chan string, error) {
	return r.subscribe(ctx, r.changesChannel())
}

func (r *RedisStore) Publish(ctx context.Context, msg string) error {
	return r.client.Publish(ctx, r.debugChannel(), msg).Err()
}

func (r *RedisStore) Subscribe(ctx context.Context) (<-chan string, error) {
	return r.subscribe(ctx, r.debugChannel())
}

func (r *RedisStore) subscribe(ctx context.Context, channel string) (<-chan string, error) {
	pubsub := r.client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	out := make(chan string, 64)
	msgs := pubsub.Channel()
	go func() {
		defer close(out)
		defer pubsub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case out <- msg.Payload:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
