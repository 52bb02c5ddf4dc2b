// Package secret resolves the token signing secret from an external
// parameter store and manages its rotation.
package secret

import (
	"context"
	"sync"

	"gate-system/internal/status"
)

// ParameterStore is the external secret store. GetParameter returns
// status.ErrParameterNotFound for a missing name.
type ParameterStore interface {
	GetParameter(ctx context.Context, name string) (string, error)
	PutParameter(ctx context.Context, name, value string) error
	DeleteParameter(ctx context.Context, name string) error
}

// MemoryParameterStore keeps parameters in process. Used in tests and in
// development mode without Redis.
type MemoryParameterStore struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewMemoryParameterStore() *MemoryParameterStore {
	return &MemoryParameterStore{values: make(map[string]string)}
}

func (m *MemoryParameterStore) GetParameter(ctx context.Context, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	value, ok := m.values[name]
	if !ok {
		return "", status.ErrParameterNotFound
	}
	return value, nil
}

func (m *MemoryParameterStore) PutParameter(ctx context.Context, name, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[name] = value
	return nil
}

func (m *MemoryParameterStore) DeleteParameter(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.values[name]; !ok {
		return status.ErrParameterNotFound
	}
	delete(m.values, name)
	return nil
}
