package store

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Follow invalidates cached keys as other contexts write them and calls
// onChange for every key in keys. It returns once the subscription is set up;
// delivery stops when ctx is done. Backends without change notifications
// return an error and callers fall back to periodic invalidation.
func (s *Store) Follow(ctx context.Context, keys []string, onChange func(key string)) error {
	w, ok := s.durable.backend.(Watcher)
	if !ok {
		return fmt.Errorf("backend %T cannot push change notifications", s.durable.backend)
	}
	ch, err := w.Watch(ctx)
	if err != nil {
		return fmt.Errorf("failed to watch store: %w", err)
	}

	wanted := make(map[string]bool, len(keys))
	for _, k := range keys {
		wanted[k] = true
	}

	go func() {
		for key := range ch {
			if !wanted[key] {
				continue
			}
			s.Invalidate(key)
			if onChange != nil {
				onChange(key)
			}
		}
	}()
	return nil
}

// InvalidateAll drops the cached values of keys
func (s *Store) InvalidateAll(keys []string) {
	for _, k := range keys {
		s.Invalidate(k)
	}
}

// Broadcast publishes a debug line when the backend supports it
func (s *Store) Broadcast(ctx context.Context, msg string) {
	b, ok := s.durable.backend.(Broadcaster)
	if !ok {
		return
	}
	if err := b.Publish(ctx, msg); err != nil {
		s.log.Debug("debug broadcast failed", zap.Error(err))
	}
}

// Listen subscribes to the debug broadcast channel
func (s *Store) Listen(ctx context.Context) (<-chan string, error) {
	b, ok := s.durable.backend.(Broadcaster)
	if !ok {
		return nil, fmt.Errorf("backend %T has no broadcast channel", s.durable.backend)
	}
	return b.Subscribe(ctx)
}
