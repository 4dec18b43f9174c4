package store

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/floorscore/floorscore/pkg/types"
)

// Memory is a thread-safe in-memory Store keyed by record ID.
type Memory struct {
	mu   sync.RWMutex
	data map[string]*types.ShiftRecord
	now  func() time.Time // injectable for deterministic tests
}

// NewMemory creates an empty Memory store.
func NewMemory() *Memory {
	return &Memory{
		data: make(map[string]*types.ShiftRecord),
		now:  time.Now,
	}
}

func (m *Memory) Create(_ context.Context, rec *types.ShiftRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[rec.ID]; ok {
		return ErrExists
	}
	now := m.now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.UpdatedAt = now
	m.data[rec.ID] = rec.Clone()
	return nil
}

func (m *Memory) Get(_ context.Context, id string) (*types.ShiftRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.data[id]
	if !ok {
		return nil, ErrNotFound
	}
	return r.Clone(), nil
}

func (m *Memory) List(_ context.Context) ([]*types.ShiftRecord, error) {
	m.mu.RLock()
	out := make([]*types.ShiftRecord, 0, len(m.data))
	for _, r := range m.data {
		out = append(out, r.Clone())
	}
	m.mu.RUnlock()

	slices.SortFunc(out, func(a, b *types.ShiftRecord) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (m *Memory) Update(_ context.Context, rec *types.ShiftRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	old, ok := m.data[rec.ID]
	if !ok {
		return ErrNotFound
	}
	rec.CreatedAt = old.CreatedAt
	rec.UpdatedAt = m.now().UTC()
	m.data[rec.ID] = rec.Clone()
	return nil
}

func (m *Memory) Mutate(_ context.Context, id string, fn func(*types.ShiftRecord) error) (*types.ShiftRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	old, ok := m.data[id]
	if !ok {
		return nil, ErrNotFound
	}
	r := old.Clone()
	if err := fn(r); err != nil {
		return nil, err
	}
	r.ID, r.CreatedAt = old.ID, old.CreatedAt
	r.UpdatedAt = m.now().UTC()
	m.data[id] = r
	return r.Clone(), nil
}

func (m *Memory) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[id]; !ok {
		return ErrNotFound
	}
	delete(m.data, id)
	return nil
}

// Count returns the number of records held.
func (m *Memory) Count(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data), nil
}

func (m *Memory) Close() error { return nil }
