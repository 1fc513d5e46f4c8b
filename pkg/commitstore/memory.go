// Package commitstore provides content-addressed changeset stores: an in-memory
// store for tests and dry runs, and a persistent BadgerDB-backed store.
package commitstore

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/Sumatoshi-tech/gitgraft/pkg/changeset"
)

// Memory is an in-memory changeset store. It is safe for concurrent use.
type Memory struct {
	mu         sync.RWMutex
	changesets map[changeset.ID]*changeset.Changeset
	contents   map[changeset.ID][]byte
	mappings   map[string]changeset.ID
	derived    map[string][]byte
	writes     int
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		changesets: make(map[changeset.ID]*changeset.Changeset),
		contents:   make(map[changeset.ID][]byte),
		mappings:   make(map[string]changeset.ID),
		derived:    make(map[string][]byte),
	}
}

// Create implements changeset.Store.
func (m *Memory) Create(_ context.Context, cs *changeset.Changeset) (changeset.ID, error) {
	canonical := cs.Canonical()
	id := canonical.ID()

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.changesets[id]; !exists {
		m.changesets[id] = canonical
		m.writes++
	}

	return id, nil
}

// Read implements changeset.Store.
func (m *Memory) Read(_ context.Context, id changeset.ID) (*changeset.Changeset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cs, ok := m.changesets[id]
	if !ok {
		return nil, fmt.Errorf("changeset %s: %w", id, changeset.ErrNotFound)
	}

	clone := *cs
	clone.Parents = slices.Clone(cs.Parents)
	clone.Files = slices.Clone(cs.Files)

	return &clone, nil
}

// WriteContent implements changeset.Store.
func (m *Memory) WriteContent(_ context.Context, data []byte) (changeset.ID, error) {
	id := changeset.ContentID(data)

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.contents[id]; !exists {
		m.contents[id] = slices.Clone(data)
	}

	return id, nil
}

// ReadContent implements changeset.Store.
func (m *Memory) ReadContent(_ context.Context, id changeset.ID) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.contents[id]
	if !ok {
		return nil, fmt.Errorf("content %s: %w", id, changeset.ErrNotFound)
	}

	return slices.Clone(data), nil
}

// SetMapping implements changeset.Store.
func (m *Memory) SetMapping(_ context.Context, foreignID string, id changeset.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.mappings[foreignID] = id

	return nil
}

// Mapping implements changeset.Store.
func (m *Memory) Mapping(_ context.Context, foreignID string) (changeset.ID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.mappings[foreignID]
	if !ok {
		return changeset.ID{}, fmt.Errorf("mapping for %s: %w", foreignID, changeset.ErrNotFound)
	}

	return id, nil
}

// GetDerived returns a derived-data payload or changeset.ErrNotFound.
func (m *Memory) GetDerived(_ context.Context, kind string, id changeset.ID) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.derived[derivedKey(kind, id)]
	if !ok {
		return nil, fmt.Errorf("derived %s for %s: %w", kind, id, changeset.ErrNotFound)
	}

	return data, nil
}

// PutDerived stores a derived-data payload.
func (m *Memory) PutDerived(_ context.Context, kind string, id changeset.ID, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.derived[derivedKey(kind, id)] = slices.Clone(data)

	return nil
}

// Writes returns how many Create calls stored a changeset that was not already present.
func (m *Memory) Writes() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.writes
}

// Len returns the number of stored changesets.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.changesets)
}

// Key layout shared by all backends.
const (
	prefixChangeset = "cs/"
	prefixContent   = "blob/"
	prefixMapping   = "map/"
	prefixDerived   = "derived/"
)

func changesetKey(id changeset.ID) string { return prefixChangeset + id.String() }

func contentKey(id changeset.ID) string { return prefixContent + id.String() }

func mappingKey(foreignID string) string { return prefixMapping + foreignID }

func derivedKey(kind string, id changeset.ID) string {
	return prefixDerived + kind + "/" + id.String()
}
