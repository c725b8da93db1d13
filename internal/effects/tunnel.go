package effects

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/mfiguera/themepulse/internal/batch"
	"github.com/mfiguera/themepulse/internal/quality"
)

// TunnelGlow paints the layered tunnel lighting: a hue-cycling glow whose
// layer count is the single most expensive knob in the theme, plus the
// beat-pulse intensity that goes out over the fast path.
type TunnelGlow struct {
	mu sync.Mutex

	batcher *batch.Batcher
	surface batch.Surface
	source  Source

	phase     float64
	layers    int
	maxLayers int
	flicker   bool
}

// NewTunnelGlow creates the tunnel lighting producer.
func NewTunnelGlow(b *batch.Batcher, s batch.Surface, src Source) *TunnelGlow {
	return &TunnelGlow{batcher: b, surface: s, source: src, layers: 2, maxLayers: 2}
}

// Update enqueues the pulse write and the per-layer glow colors.
func (e *TunnelGlow) Update(elapsed time.Duration) error {
	f := e.source()

	e.mu.Lock()
	e.phase += elapsed.Seconds() * (0.1 + f.Bass*0.4)
	phase := e.phase
	layers := e.layers
	flicker := e.flicker
	e.mu.Unlock()

	// Beat pulse is the latency-critical signal: fast-path key, applied
	// synchronously inside Enqueue.
	e.batcher.Enqueue(e.surface, "--pulse-intensity",
		formatFloat(clamp(f.BeatStrength, 0, 1)), batch.PriorityCritical, "tunnel")

	vars := map[string]string{
		"--glow-layers": fmt.Sprintf("%d", layers),
		"--glow-radius": formatFloat(4 + f.Bass*18),
	}
	for i := 0; i < layers; i++ {
		hue := phase + float64(i)*0.07
		sat := 0.55 + f.Energy*0.35
		val := 0.5 + f.Bass*0.4 - float64(i)*0.08
		if flicker {
			val += 0.05 * math.Sin(phase*17+float64(i))
		}
		vars[fmt.Sprintf("--tunnel-glow-%d", i)] = hsvHex(hue, sat, val)
	}

	prio := batch.PriorityNormal
	if f.IsDrop {
		// A drop repaints the whole tunnel now, not next frame.
		prio = batch.PriorityCritical
	}
	e.batcher.SubmitTransaction(e.surface, vars, prio, "tunnel")
	return nil
}

// SetQualityLevel adopts the level's glow budget.
func (e *TunnelGlow) SetQualityLevel(l quality.Level) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.maxLayers = l.GlowLayers
	e.layers = l.GlowLayers
	e.flicker = l.SecondaryLayer
}

// ReduceQuality sheds glow layers proportionally.
func (e *TunnelGlow) ReduceQuality(amount float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	cut := int(math.Ceil(float64(e.maxLayers) * clamp(amount, 0, 1)))
	e.layers -= cut
	if e.layers < 0 {
		e.layers = 0
	}
}

// IncreaseQuality restores glow layers up to the level budget.
func (e *TunnelGlow) IncreaseQuality(amount float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	add := int(math.Ceil(float64(e.maxLayers) * clamp(amount, 0, 1)))
	e.layers += add
	if e.layers > e.maxLayers {
		e.layers = e.maxLayers
	}
}

// QualityCapabilities lists the knobs the controller may grade.
func (e *TunnelGlow) QualityCapabilities() []quality.CapabilityInfo {
	return []quality.CapabilityInfo{
		{Name: "glow-layers", Impact: quality.ImpactHigh},
		{Name: "flicker", Impact: quality.ImpactLow},
	}
}

// Layers returns the active layer count; diagnostics and tests.
func (e *TunnelGlow) Layers() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.layers
}
