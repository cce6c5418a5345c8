// Package store persists the two small pieces of local state the assistant
// keeps between runs: the favorited diet recommendations and the running
// water-intake total.
package store

import (
	"context"
	"fmt"
	"sync"

	"HealthAssist/internal/config"
)

// Store is a string-keyed byte-value store
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Close() error
}

// Open returns the backend selected by cfg
func Open(cfg config.StoreConfig) (Store, error) {
	switch cfg.Backend {
	case config.StoreSQLite:
		return OpenSQLite(cfg.Path)
	case config.StoreBolt:
		return OpenBolt(cfg.Path)
	case config.StoreMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown store backend: %s", cfg.Backend)
	}
}

// Memory is an in-process Store
type Memory struct {
	mu     sync.RWMutex
	values map[string][]byte
}

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{values: make(map[string][]byte)}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = append([]byte(nil), value...)
	return nil
}

func (m *Memory) Close() error {
	return nil
}
