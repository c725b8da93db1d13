// Package surface provides property-store implementations behind the
// batcher's opaque Surface interface: an in-memory store for tests and
// headless runs, an ANSI terminal preview, and an SDL window behind the sdl
// build tag.
package surface

import "sync"

// Memory is a plain in-memory property store.
type Memory struct {
	mu    sync.RWMutex
	name  string
	props map[string]string

	sets       uint64
	composites uint64
}

// NewMemory creates an empty store.
func NewMemory(name string) *Memory {
	return &Memory{
		name:  name,
		props: make(map[string]string),
	}
}

// Name identifies the surface.
func (m *Memory) Name() string { return m.name }

// SetProperty stores one property.
func (m *Memory) SetProperty(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.props[key] = value
	m.sets++
	return nil
}

// SetPropertyText stores all properties as one mutation.
func (m *Memory) SetPropertyText(props map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range props {
		m.props[k] = v
	}
	m.composites++
	return nil
}

// Get returns a property value.
func (m *Memory) Get(key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.props[key]
	return v, ok
}

// Len returns the number of stored properties.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.props)
}

// Snapshot copies the stored properties.
func (m *Memory) Snapshot() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]string, len(m.props))
	for k, v := range m.props {
		out[k] = v
	}
	return out
}

// Counts returns how many individual and composite mutations were applied.
func (m *Memory) Counts() (sets, composites uint64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sets, m.composites
}
