package effects

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/mfiguera/themepulse/internal/analyzer"
	"github.com/mfiguera/themepulse/internal/batch"
	"github.com/mfiguera/themepulse/internal/quality"
)

// genrePalette anchors a gradient in HSV; stops are interpolated between the
// anchors so the stop count can scale with quality.
type genrePalette struct {
	name    string
	anchors [][3]float64 // h, s, v
}

var genrePalettes = []genrePalette{
	{"electronic", [][3]float64{{0.78, 0.85, 0.9}, {0.55, 0.9, 0.8}, {0.92, 0.7, 0.95}}},
	{"rock", [][3]float64{{0.02, 0.85, 0.85}, {0.08, 0.9, 0.7}, {0.98, 0.6, 0.5}}},
	{"ambient", [][3]float64{{0.52, 0.4, 0.55}, {0.6, 0.5, 0.45}, {0.45, 0.3, 0.65}}},
	{"jazz", [][3]float64{{0.09, 0.6, 0.7}, {0.13, 0.7, 0.55}, {0.05, 0.5, 0.8}}},
	{"pop", [][3]float64{{0.88, 0.7, 0.95}, {0.14, 0.8, 0.9}, {0.62, 0.75, 0.85}}},
}

// GenreGradient classifies the playing music into a coarse genre and paints
// the matching gradient. Classification is a cheap band-ratio heuristic; the
// real similarity math lives upstream of this layer.
type GenreGradient struct {
	mu sync.Mutex

	batcher *batch.Batcher
	surface batch.Surface
	source  Source

	stops    int
	maxStops int

	current   int // index into genrePalettes
	candidate int
	streak    int
}

// NewGenreGradient creates the gradient producer.
func NewGenreGradient(b *batch.Batcher, s batch.Surface, src Source) *GenreGradient {
	return &GenreGradient{batcher: b, surface: s, source: src, stops: 5, maxStops: 5, current: 2}
}

// Update classifies and repaints the gradient.
func (e *GenreGradient) Update(elapsed time.Duration) error {
	f := e.source()

	e.mu.Lock()
	idx := classify(f)
	if idx == e.candidate {
		e.streak++
	} else {
		e.candidate = idx
		e.streak = 1
	}
	// Hold the current genre until the candidate persists; a gradient that
	// flips every frame reads as a bug, not a vibe.
	if e.streak >= 45 && e.candidate != e.current {
		e.current = e.candidate
		e.streak = 0
	}
	pal := genrePalettes[e.current]
	stops := e.stops
	e.mu.Unlock()

	if stops < 2 {
		stops = 2
	}

	vars := make(map[string]string, stops+2)
	vars["--gradient-genre"] = pal.name
	vars["--gradient-stops"] = fmt.Sprintf("%d", stops)
	for i := 0; i < stops; i++ {
		t := float64(i) / float64(stops-1)
		h, s, v := samplePalette(pal, t)
		vars[fmt.Sprintf("--gradient-stop-%d", i)] = hsvHex(h, s, v+f.Energy*0.1)
	}
	e.batcher.SubmitTransaction(e.surface, vars, batch.PriorityNormal, "gradient")

	// Accent color tracks the first anchor; fast-path key shared by many
	// downstream consumers.
	h, s, v := pal.anchors[0][0], pal.anchors[0][1], pal.anchors[0][2]
	e.batcher.Enqueue(e.surface, "--accent-color", hsvHex(h, s, v), batch.PriorityNormal, "gradient")
	return nil
}

func classify(f analyzer.Features) int {
	switch {
	case f.Bass > 0.5 && f.BeatStrength > 0.4 && f.Bass > f.Treble*1.5:
		return 0 // electronic
	case f.Mid > 0.4 && f.BeatStrength > 0.3 && f.Treble > 0.25:
		return 1 // rock
	case f.Energy < 0.25 && f.BeatStrength < 0.15:
		return 2 // ambient
	case f.Mid > f.Bass && f.Treble > 0.3 && f.BeatStrength < 0.35:
		return 3 // jazz
	default:
		return 4 // pop
	}
}

func samplePalette(p genrePalette, t float64) (float64, float64, float64) {
	n := len(p.anchors)
	if n == 1 {
		a := p.anchors[0]
		return a[0], a[1], a[2]
	}
	pos := t * float64(n-1)
	i := int(math.Floor(pos))
	if i >= n-1 {
		i = n - 2
	}
	frac := pos - float64(i)
	a, b := p.anchors[i], p.anchors[i+1]
	return lerp(a[0], b[0], frac), lerp(a[1], b[1], frac), lerp(a[2], b[2], frac)
}

// SetQualityLevel adopts the level's gradient stop budget.
func (e *GenreGradient) SetQualityLevel(l quality.Level) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.maxStops = l.GradientStops
	e.stops = l.GradientStops
}

// ReduceQuality sheds gradient stops proportionally, keeping at least two.
func (e *GenreGradient) ReduceQuality(amount float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	cut := int(math.Ceil(float64(e.maxStops) * clamp(amount, 0, 1)))
	e.stops -= cut
	if e.stops < 2 {
		e.stops = 2
	}
}

// IncreaseQuality restores stops up to the level budget.
func (e *GenreGradient) IncreaseQuality(amount float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	add := int(math.Ceil(float64(e.maxStops) * clamp(amount, 0, 1)))
	e.stops += add
	if e.stops > e.maxStops {
		e.stops = e.maxStops
	}
}

// QualityCapabilities lists the knobs the controller may grade.
func (e *GenreGradient) QualityCapabilities() []quality.CapabilityInfo {
	return []quality.CapabilityInfo{
		{Name: "gradient-stops", Impact: quality.ImpactMedium},
	}
}

// Stops returns the active stop count; diagnostics and tests.
func (e *GenreGradient) Stops() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stops
}

// Genre returns the active genre name.
func (e *GenreGradient) Genre() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return genrePalettes[e.current].name
}
