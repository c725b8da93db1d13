//go:build sdl

package surface

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/veandco/go-sdl2/sdl"
)

// SDL fills a window with the applied accent color, brightened by the pulse
// intensity. Demo surface for machines with a display.
type SDL struct {
	mu    sync.Mutex
	name  string
	props map[string]string

	window   *sdl.Window
	renderer *sdl.Renderer
}

// NewSDL opens a window-backed surface.
func NewSDL(name string, width, height int) (*SDL, error) {
	if err := sdl.InitSubSystem(sdl.INIT_VIDEO); err != nil {
		return nil, fmt.Errorf("sdl init: %w", err)
	}
	window, err := sdl.CreateWindow(
		"themepulse",
		sdl.WINDOWPOS_CENTERED, sdl.WINDOWPOS_CENTERED,
		int32(width), int32(height),
		sdl.WINDOW_SHOWN,
	)
	if err != nil {
		sdl.QuitSubSystem(sdl.INIT_VIDEO)
		return nil, fmt.Errorf("sdl window: %w", err)
	}
	renderer, err := sdl.CreateRenderer(window, -1, sdl.RENDERER_ACCELERATED|sdl.RENDERER_PRESENTVSYNC)
	if err != nil {
		window.Destroy()
		sdl.QuitSubSystem(sdl.INIT_VIDEO)
		return nil, fmt.Errorf("sdl renderer: %w", err)
	}
	return &SDL{
		name:     name,
		props:    make(map[string]string),
		window:   window,
		renderer: renderer,
	}, nil
}

// Name identifies the surface.
func (s *SDL) Name() string { return s.name }

// SetProperty applies one property.
func (s *SDL) SetProperty(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.props[key] = value
	return nil
}

// SetPropertyText applies a composite write.
func (s *SDL) SetPropertyText(props map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range props {
		s.props[k] = v
	}
	return nil
}

// Present pushes the current theme state to the window. Returns
// ErrWindowClosed after a quit event.
func (s *SDL) Present() error {
	s.mu.Lock()
	r, g, b := sdlHexColor(s.props["--accent-color"])
	pulse := sdlFloat(s.props["--pulse-intensity"], 0.3)
	s.mu.Unlock()

	boost := 1.0 + pulse*0.6
	if err := s.renderer.SetDrawColor(
		sdlByte(float64(r)*boost), sdlByte(float64(g)*boost), sdlByte(float64(b)*boost), 255,
	); err != nil {
		return err
	}
	if err := s.renderer.Clear(); err != nil {
		return err
	}
	s.renderer.Present()

	for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
		if _, ok := event.(*sdl.QuitEvent); ok {
			return ErrWindowClosed
		}
	}
	return nil
}

// Close releases the window and renderer.
func (s *SDL) Close() error {
	if s.renderer != nil {
		s.renderer.Destroy()
		s.renderer = nil
	}
	if s.window != nil {
		s.window.Destroy()
		s.window = nil
	}
	sdl.QuitSubSystem(sdl.INIT_VIDEO)
	return nil
}

// SupportsSDL reports whether the binary was built with the sdl tag.
func SupportsSDL() bool { return true }

func sdlHexColor(v string) (int, int, int) {
	v = strings.TrimPrefix(strings.TrimSpace(v), "#")
	if len(v) != 6 {
		return 90, 90, 160
	}
	n, err := strconv.ParseUint(v, 16, 32)
	if err != nil {
		return 90, 90, 160
	}
	return int(n >> 16 & 0xff), int(n >> 8 & 0xff), int(n & 0xff)
}

func sdlFloat(v string, def float64) float64 {
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return def
	}
	return f
}

func sdlByte(v float64) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
