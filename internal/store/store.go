// Package store is the cache-fronted key-value store every context coordinates through.
//
// The durable space survives restarts and is shared with other contexts. The
// session space lives only as long as the owning controller. Values in both
// spaces are strings; JSON helpers encode on write and decode a fresh value on
// every read, so a caller can never mutate cached state by accident.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

type cached struct {
	value   string
	present bool
}

type space struct {
	backend Backend
	mu      sync.RWMutex
	cache   map[string]cached
}

func newSpace(b Backend) *space {
	return &space{backend: b, cache: make(map[string]cached)}
}

// raw returns the cached or fetched value. Backend read errors count as absent.
func (sp *space) raw(ctx context.Context, key string, log *zap.Logger) (string, bool) {
	sp.mu.RLock()
	c, ok := sp.cache[key]
	sp.mu.RUnlock()
	if ok {
		return c.value, c.present
	}

	v, err := sp.backend.Get(ctx, key)
	switch {
	case err == nil:
		c = cached{value: v, present: true}
	case errors.Is(err, ErrNotFound):
		c = cached{}
	default:
		log.Debug("store read failed, using default", zap.String("key", key), zap.Error(err))
		return "", false
	}

	sp.mu.Lock()
	sp.cache[key] = c
	sp.mu.Unlock()
	return c.value, c.present
}

// set and remove touch the cache only after the backend accepted the write
func (sp *space) set(ctx context.Context, key, value string) error {
	if err := sp.backend.Set(ctx, key, value); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	sp.mu.Lock()
	sp.cache[key] = cached{value: value, present: true}
	sp.mu.Unlock()
	return nil
}

func (sp *space) remove(ctx context.Context, key string) error {
	if err := sp.backend.Delete(ctx, key); err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	sp.mu.Lock()
	sp.cache[key] = cached{}
	sp.mu.Unlock()
	return nil
}

func (sp *space) invalidate(key string) {
	sp.mu.Lock()
	delete(sp.cache, key)
	sp.mu.Unlock()
}

// Store fronts a durable and a session backend with per-context read caches
type Store struct {
	durable *space
	session *space
	log     *zap.Logger
}

// New creates a store. A nil session backend gets a private in-memory one.
func New(durable, session Backend, log *zap.Logger) *Store {
	if session == nil {
		session = NewMemory()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		durable: newSpace(durable),
		session: newSpace(session),
		log:     log,
	}
}

// Get returns the durable value of key, or def when it is absent
func (s *Store) Get(ctx context.Context, key, def string) string {
	v, ok := s.durable.raw(ctx, key, s.log)
	if !ok {
		return def
	}
	return v
}

// Set writes key through the cache to the durable backend
func (s *Store) Set(ctx context.Context, key, value string) error {
	return s.durable.set(ctx, key, value)
}

// Remove deletes key from the cache and the durable backend
func (s *Store) Remove(ctx context.Context, key string) error {
	return s.durable.remove(ctx, key)
}

// Invalidate drops the cached durable value so the next read re-fetches it
func (s *Store) Invalidate(key string) {
	s.durable.invalidate(key)
}

// Close closes both backends
func (s *Store) Close() error {
	return errors.Join(s.durable.backend.Close(), s.session.backend.Close())
}

// GetJSON decodes the durable value of key into a new T, or returns def
func GetJSON[T any](ctx context.Context, s *Store, key string, def T) T {
	return decode(ctx, s, s.durable, key, def)
}

// SetJSON encodes v and writes it to the durable space
func SetJSON[T any](ctx context.Context, s *Store, key string, v T) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	return s.durable.set(ctx, key, string(data))
}

// GetSessionJSON is GetJSON against the session space
func GetSessionJSON[T any](ctx context.Context, s *Store, key string, def T) T {
	return decode(ctx, s, s.session, key, def)
}

// SetSessionJSON is SetJSON against the session space
func SetSessionJSON[T any](ctx context.Context, s *Store, key string, v T) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	return s.session.set(ctx, key, string(data))
}

func decode[T any](ctx context.Context, s *Store, sp *space, key string, def T) T {
	raw, ok := sp.raw(ctx, key, s.log)
	if !ok || raw == "" {
		return def
	}
	var v T
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		s.log.Debug("malformed stored json, using default", zap.String("key", key), zap.Error(err))
		return def
	}
	return v
}
