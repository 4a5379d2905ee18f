package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned by a Backend when a key has no value
var ErrNotFound = errors.New("store: key not found")

// Backend is the raw string key-value storage behind a Store
type Backend interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Watcher is implemented by backends that can push change notifications.
// The channel carries the keys written by any client, including this one.
type Watcher interface {
	Watch(ctx context.Context) (<-chan string, error)
}

// Broadcaster is implemented by backends that carry the debug log channel.
// Messages on it have no control meaning.
type Broadcaster interface {
	Publish(ctx context.Context, msg string) error
	Subscribe(ctx context.Context) (<-chan string, error)
}
