// Package effects holds the visual-effect producers: small, data-table
// driven units that translate music features into style-property writes.
// Each one registers with the scheduler and enqueues through the batcher;
// none of them touch a surface directly except via the fast path.
package effects

import (
	"fmt"
	"math"

	"github.com/mfiguera/themepulse/internal/analyzer"
)

// Source supplies the latest music features to a producer.
type Source func() analyzer.Features

func hexRGB(r, g, b float64) string {
	return fmt.Sprintf("#%02x%02x%02x",
		int(clamp(r, 0, 1)*255), int(clamp(g, 0, 1)*255), int(clamp(b, 0, 1)*255))
}

func hsvHex(h, s, v float64) string {
	r, g, b := hsvToRGB(h, s, v)
	return hexRGB(r, g, b)
}

func hsvToRGB(h, s, v float64) (float64, float64, float64) {
	h = math.Mod(h, 1.0)
	if h < 0 {
		h += 1.0
	}
	s = clamp(s, 0, 1)
	v = clamp(v, 0, 1)
	if s == 0 {
		return v, v, v
	}
	hv := h * 6.0
	i := math.Floor(hv)
	f := hv - i
	p := v * (1.0 - s)
	q := v * (1.0 - s*f)
	t := v * (1.0 - s*(1.0-f))
	switch int(i) % 6 {
	case 0:
		return v, t, p
	case 1:
		return q, v, p
	case 2:
		return p, v, t
	case 3:
		return p, q, v
	case 4:
		return t, p, v
	default:
		return v, p, q
	}
}

func lerp(a, b, t float64) float64 {
	return a*(1-t) + b*t
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func formatFloat(v float64) string {
	return fmt.Sprintf("%.3f", v)
}
