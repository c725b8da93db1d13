package surface

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/term"
)

// Terminal previews the theme state as an ANSI bar on stdout: the accent
// color fills a pulse-scaled bar, glow layers render as dimmer trailing
// segments. It is a demo surface, not part of the core.
type Terminal struct {
	mu    sync.Mutex
	name  string
	props map[string]string
	width int
}

// NewTerminal creates a preview surface sized from the controlling terminal.
func NewTerminal(name string) *Terminal {
	width := 80
	if fd := int(os.Stdout.Fd()); fd >= 0 {
		if w, _, err := term.GetSize(fd); err == nil && w > 0 {
			width = w
		}
	}
	return &Terminal{
		name:  name,
		props: make(map[string]string),
		width: width,
	}
}

// Name identifies the surface.
func (t *Terminal) Name() string { return t.name }

// SetProperty applies one property.
func (t *Terminal) SetProperty(key, value string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.props[key] = value
	return nil
}

// SetPropertyText applies a composite write.
func (t *Terminal) SetPropertyText(props map[string]string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for k, v := range props {
		t.props[k] = v
	}
	return nil
}

// Render draws the current theme state as one ANSI line. The caller decides
// the cadence; the surface only reflects applied properties.
func (t *Terminal) Render() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	r, g, b := parseHexColor(t.props["--accent-color"])
	pulse := parseFloat(t.props["--pulse-intensity"], 0.3)
	glow := int(parseFloat(t.props["--glow-layers"], 0))

	barMax := t.width - 12
	if barMax < 8 {
		barMax = 8
	}
	barLen := int(math.Round(float64(barMax) * clamp01(0.2+pulse*0.8)))

	var sb strings.Builder
	sb.Grow(t.width * 4)
	sb.WriteString(fmt.Sprintf("\x1b[48;2;%d;%d;%dm%s\x1b[0m", r, g, b, strings.Repeat(" ", barLen)))
	for i := 0; i < glow && barLen+i*2 < barMax; i++ {
		dim := 1.0 / float64(i+2)
		sb.WriteString(fmt.Sprintf("\x1b[48;2;%d;%d;%dm  \x1b[0m",
			int(float64(r)*dim), int(float64(g)*dim), int(float64(b)*dim)))
	}
	return sb.String()
}

// Resize updates the preview width.
func (t *Terminal) Resize(width int) {
	if width <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.width = width
}

func parseHexColor(s string) (r, g, b int) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) != 6 {
		return 90, 90, 160
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 90, 90, 160
	}
	return int(v >> 16 & 0xff), int(v >> 8 & 0xff), int(v & 0xff)
}

func parseFloat(s string, def float64) float64 {
	if s == "" {
		return def
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return def
	}
	return v
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
