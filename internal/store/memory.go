package store

import (
	"context"
	"sync"
)

// Memory is an in-process Backend. Several Stores sharing one Memory behave
// like browsing contexts sharing one origin's storage.
type Memory struct {
	mu       sync.RWMutex
	data     map[string]string
	watchers map[chan string]struct{}
	debug    map[chan string]struct{}
}

// NewMemory creates an empty in-process backend
func NewMemory() *Memory {
	return &Memory{
		data:     make(map[string]string),
		watchers: make(map[chan string]struct{}),
		debug:    make(map[chan string]struct{}),
	}
}

func (m *Memory) Get(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (m *Memory) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	m.data[key] = value
	m.mu.Unlock()
	m.fanOut(m.watchers, key)
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.data, key)
	m.mu.Unlock()
	m.fanOut(m.watchers, key)
	return nil
}

func (m *Memory) Close() error {
	return nil
}

// Watch delivers written keys until ctx is done
func (m *Memory) Watch(ctx context.Context) (<-chan string, error) {
	return m.subscribe(ctx, m.watchers), nil
}

func (m *Memory) Publish(_ context.Context, msg string) error {
	m.fanOut(m.debug, msg)
	return nil
}

func (m *Memory) Subscribe(ctx context.Context) (<-chan string, error) {
	return m.subscribe(ctx, m.debug), nil
}

func (m *Memory) subscribe(ctx context.Context, set map[chan string]struct{}) <-chan string {
	ch := make(chan string, 64)
	m.mu.Lock()
	set[ch] = struct{}{}
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		delete(set, ch)
		close(ch)
		m.mu.Unlock()
	}()
	return ch
}

// fanOut never blocks a writer; slow subscribers drop messages
func (m *Memory) fanOut(set map[chan string]struct{}, msg string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for ch := range set {
		select {
		case ch <- msg:
		default:
		}
	}
}
