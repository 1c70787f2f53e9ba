// Package store provides an in-process ReadingStore for local runs and
// tests where no Firebase database is available.
package store

import (
	"context"
	"sync"

	"gaswatch/internal/types"
)

var _ types.ReadingStore = (*Memory)(nil)

// Memory is a mutex-guarded map of readings. Readings are copied on the
// way in and out so callers cannot alias stored data.
type Memory struct {
	mu       sync.RWMutex
	readings map[string]types.Reading
	// Err, when set, is returned by every call. Used to simulate outages.
	Err error
}

// NewMemory creates a store seeded with initial (which may be nil).
func NewMemory(initial map[string]types.Reading) *Memory {
	m := &Memory{readings: make(map[string]types.Reading, len(initial))}
	for k, r := range initial {
		m.readings[k] = r.Clone()
	}
	return m
}

// GetAll returns a snapshot of every reading.
func (m *Memory) GetAll(_ context.Context) (map[string]types.Reading, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.Err != nil {
		return nil, m.Err
	}
	out := make(map[string]types.Reading, len(m.readings))
	for k, r := range m.readings {
		out[k] = r.Clone()
	}
	return out, nil
}

// Put stores r under key, replacing any previous reading.
func (m *Memory) Put(_ context.Context, key string, r types.Reading) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.readings[key] = r.Clone()
	return nil
}

// Ping reports the simulated outage, if any.
func (m *Memory) Ping(_ context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.Err
}

// SetErr sets or clears the simulated outage.
func (m *Memory) SetErr(err error) {
	m.mu.Lock()
	m.Err = err
	m.mu.Unlock()
}
