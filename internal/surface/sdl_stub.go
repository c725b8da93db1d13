//go:build !sdl

package surface

import "errors"

// SDL is unavailable without the sdl build tag.
type SDL struct{}

// NewSDL fails on builds without the sdl tag.
func NewSDL(name string, width, height int) (*SDL, error) {
	return nil, errors.New("SDL surface not enabled; rebuild with -tags sdl")
}

// Name identifies the surface.
func (s *SDL) Name() string { return "sdl" }

// SetProperty is unavailable in stub builds.
func (s *SDL) SetProperty(key, value string) error { return errSDLUnavailable }

// SetPropertyText is unavailable in stub builds.
func (s *SDL) SetPropertyText(props map[string]string) error { return errSDLUnavailable }

// Present is unavailable in stub builds.
func (s *SDL) Present() error { return ErrWindowClosed }

// Close is a no-op in stub builds.
func (s *SDL) Close() error { return nil }

// SupportsSDL reports whether the binary was built with the sdl tag.
func SupportsSDL() bool { return false }

var errSDLUnavailable = errors.New("SDL surface unavailable")
