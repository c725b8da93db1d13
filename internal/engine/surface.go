package engine

import (
	"sync"
	"time"

	"github.com/mfiguera/themepulse/internal/surface"
)

// PlayerSurface is the engine's own theme surface: an in-memory property
// store plus a revision counter so readers (terminal preview, web status)
// can tell whether anything changed since they last looked.
type PlayerSurface struct {
	*surface.Memory

	mu       sync.Mutex
	revision uint64
	lastSet  time.Time
}

// NewPlayerSurface creates an empty player surface.
func NewPlayerSurface(name string) *PlayerSurface {
	return &PlayerSurface{Memory: surface.NewMemory(name)}
}

// SetProperty stores one property and bumps the revision.
func (p *PlayerSurface) SetProperty(key, value string) error {
	if err := p.Memory.SetProperty(key, value); err != nil {
		return err
	}
	p.touch()
	return nil
}

// SetPropertyText stores all properties as one mutation and bumps the
// revision once.
func (p *PlayerSurface) SetPropertyText(props map[string]string) error {
	if err := p.Memory.SetPropertyText(props); err != nil {
		return err
	}
	p.touch()
	return nil
}

func (p *PlayerSurface) touch() {
	p.mu.Lock()
	p.revision++
	p.lastSet = time.Now()
	p.mu.Unlock()
}

// Revision returns the mutation counter.
func (p *PlayerSurface) Revision() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.revision
}

// LastSet returns when the surface was last written to.
func (p *PlayerSurface) LastSet() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastSet
}
