package bookmark

import (
	"context"
	"sync"

	"github.com/Sumatoshi-tech/gitgraft/pkg/changeset"
)

// Memory is an in-memory bookmark service.
type Memory struct {
	mu        sync.Mutex
	bookmarks map[string]changeset.ID
	history   map[string][]changeset.ID
}

// NewMemory creates an empty in-memory bookmark service.
func NewMemory() *Memory {
	return &Memory{
		bookmarks: make(map[string]changeset.ID),
		history:   make(map[string][]changeset.ID),
	}
}

// Get implements Service.
func (m *Memory) Get(_ context.Context, name string) (changeset.ID, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.bookmarks[name]

	return id, ok, nil
}

// CompareAndSet implements Service.
func (m *Memory) CompareAndSet(_ context.Context, name string, expected *changeset.ID, target changeset.ID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	live, exists := m.bookmarks[name]

	switch {
	case expected == nil && exists:
		return false, nil
	case expected != nil && (!exists || live != *expected):
		return false, nil
	}

	m.bookmarks[name] = target
	m.history[name] = append(m.history[name], target)

	return true, nil
}

// Delete implements Service.
func (m *Memory) Delete(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.bookmarks, name)

	return nil
}

// Set forces a bookmark value, bypassing compare-and-set. Used to seed destinations.
func (m *Memory) Set(name string, target changeset.ID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.bookmarks[name] = target
}

// History returns every value a bookmark was moved to through CompareAndSet, in order.
func (m *Memory) History(name string) []changeset.ID {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]changeset.ID, len(m.history[name]))
	copy(out, m.history[name])

	return out
}
