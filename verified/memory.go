package verified

import (
	"context"
	"sync"
)

// Memory is an in-process Backend.
type Memory struct {
	mu      sync.Mutex
	entries map[string]string
	// Fail, when set, is returned by Set.
	Fail error
}

// NewMemory returns an empty Memory backend.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]string)}
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.entries[key]
	return v, ok, nil
}

func (m *Memory) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return m.Fail
	}
	m.entries[key] = value
	return nil
}
