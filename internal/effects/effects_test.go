package effects

import (
	"io"
	"log"
	"math"
	"testing"
	"time"

	"github.com/mfiguera/themepulse/internal/analyzer"
	"github.com/mfiguera/themepulse/internal/batch"
	"github.com/mfiguera/themepulse/internal/quality"
	"github.com/mfiguera/themepulse/internal/sched"
	"github.com/mfiguera/themepulse/internal/surface"
)

func newEffectsBatcher(fastPath ...string) *batch.Batcher {
	return batch.New(batch.Config{
		FastPathKeys: fastPath,
		Log:          log.New(io.Discard, "", 0),
	})
}

func constSource(f analyzer.Features) Source {
	return func() analyzer.Features { return f }
}

func TestTunnelPulseGoesOutOverFastPath(t *testing.T) {
	b := newEffectsBatcher("--pulse-intensity")
	s := surface.NewMemory("player")
	e := NewTunnelGlow(b, s, constSource(analyzer.Features{BeatStrength: 0.7, Bass: 0.5}))

	if err := e.Update(16 * time.Millisecond); err != nil {
		t.Fatalf("update: %v", err)
	}

	// The pulse landed synchronously, before any flush.
	if got, ok := s.Get("--pulse-intensity"); !ok || got != "0.700" {
		t.Fatalf("pulse=%q ok=%v want 0.700 before flush", got, ok)
	}
	if _, ok := s.Get("--glow-radius"); ok {
		t.Fatalf("batched write applied without a flush")
	}

	b.ForceFlush()
	if _, ok := s.Get("--glow-radius"); !ok {
		t.Fatalf("glow radius missing after flush")
	}
	if _, ok := s.Get("--tunnel-glow-0"); !ok {
		t.Fatalf("glow layer colors missing after flush")
	}
}

func TestTunnelDropFlushesImmediately(t *testing.T) {
	b := newEffectsBatcher("--pulse-intensity")
	s := surface.NewMemory("player")
	e := NewTunnelGlow(b, s, constSource(analyzer.Features{Bass: 0.8, IsDrop: true}))

	if err := e.Update(16 * time.Millisecond); err != nil {
		t.Fatalf("update: %v", err)
	}

	// Drop frames repaint critically: no flush call needed.
	if _, ok := s.Get("--glow-radius"); !ok {
		t.Fatalf("drop transaction not applied immediately")
	}
}

func TestTunnelScalesLayersWithQuality(t *testing.T) {
	b := newEffectsBatcher()
	s := surface.NewMemory("player")
	e := NewTunnelGlow(b, s, constSource(analyzer.Features{}))

	levels := quality.DefaultLevels()
	e.SetQualityLevel(levels[4]) // ultra
	if e.Layers() != levels[4].GlowLayers {
		t.Fatalf("layers=%d want %d", e.Layers(), levels[4].GlowLayers)
	}

	e.ReduceQuality(0.25)
	if e.Layers() != levels[4].GlowLayers-1 {
		t.Fatalf("layers=%d after 25%% reduction", e.Layers())
	}
	e.ReduceQuality(1)
	if e.Layers() != 0 {
		t.Fatalf("layers=%d want 0 after full reduction", e.Layers())
	}

	e.IncreaseQuality(1)
	if e.Layers() != levels[4].GlowLayers {
		t.Fatalf("layers=%d not restored to the level budget", e.Layers())
	}

	caps := e.QualityCapabilities()
	if len(caps) != 2 || caps[0].Impact != quality.ImpactHigh {
		t.Fatalf("capabilities=%+v", caps)
	}
}

func TestGradientHoldsGenreUntilStreak(t *testing.T) {
	b := newEffectsBatcher()
	s := surface.NewMemory("player")

	electronic := analyzer.Features{Bass: 0.8, BeatStrength: 0.6, Treble: 0.1}
	e := NewGenreGradient(b, s, constSource(electronic))

	if e.Genre() != "ambient" {
		t.Fatalf("initial genre=%q want ambient", e.Genre())
	}

	for i := 0; i < 44; i++ {
		e.Update(16 * time.Millisecond)
	}
	if e.Genre() != "ambient" {
		t.Fatalf("genre flipped before the streak threshold")
	}

	e.Update(16 * time.Millisecond)
	if e.Genre() != "electronic" {
		t.Fatalf("genre=%q want electronic after sustained classification", e.Genre())
	}
}

func TestGradientWritesStopsAndAccent(t *testing.T) {
	b := newEffectsBatcher("--accent-color")
	s := surface.NewMemory("player")
	e := NewGenreGradient(b, s, constSource(analyzer.Features{}))

	e.SetQualityLevel(quality.Level{GradientStops: 3})
	e.Update(16 * time.Millisecond)

	// Accent is fast-path, gradient stops wait for the flush.
	if _, ok := s.Get("--accent-color"); !ok {
		t.Fatalf("accent color missing before flush")
	}
	b.ForceFlush()

	if got, _ := s.Get("--gradient-stops"); got != "3" {
		t.Fatalf("gradient-stops=%q want 3", got)
	}
	for i := 0; i < 3; i++ {
		key := "--gradient-stop-" + string(rune('0'+i))
		if _, ok := s.Get(key); !ok {
			t.Fatalf("%s missing", key)
		}
	}
}

func TestGradientKeepsTwoStopsMinimum(t *testing.T) {
	b := newEffectsBatcher()
	s := surface.NewMemory("player")
	e := NewGenreGradient(b, s, constSource(analyzer.Features{}))

	e.SetQualityLevel(quality.Level{GradientStops: 8})
	e.ReduceQuality(1)
	if e.Stops() != 2 {
		t.Fatalf("stops=%d want floor of 2", e.Stops())
	}
}

func TestBreathingSkipsOpacityInPerformanceMode(t *testing.T) {
	b := newEffectsBatcher()
	s := surface.NewMemory("player")
	e := NewBreathing(b, s, constSource(analyzer.Features{Energy: 0.5}))

	e.Update(16 * time.Millisecond)
	b.ForceFlush()
	if _, ok := s.Get("--breath-opacity"); !ok {
		t.Fatalf("opacity missing in quality mode")
	}

	s2 := surface.NewMemory("player2")
	e2 := NewBreathing(b, s2, constSource(analyzer.Features{Energy: 0.5}))
	e2.QualityModeChanged(sched.ModePerformance)
	e2.Update(16 * time.Millisecond)
	b.ForceFlush()
	if _, ok := s2.Get("--breath-opacity"); ok {
		t.Fatalf("opacity written in performance mode")
	}
	if _, ok := s2.Get("--breath-scale"); !ok {
		t.Fatalf("scale missing in performance mode")
	}
}

func TestHSVConversion(t *testing.T) {
	if got := hsvHex(0, 1, 1); got != "#ff0000" {
		t.Fatalf("red=%q", got)
	}
	if got := hsvHex(1.0/3.0, 1, 1); got != "#00ff00" {
		t.Fatalf("green=%q", got)
	}
	if got := hsvHex(2.0/3.0, 1, 1); got != "#0000ff" {
		t.Fatalf("blue=%q", got)
	}
	if got := hsvHex(0.5, 0, 0.5); got[1:3] != got[3:5] || got[3:5] != got[5:7] {
		t.Fatalf("desaturated color not gray: %q", got)
	}
}

func TestSamplePaletteEndpoints(t *testing.T) {
	pal := genrePalettes[0]
	h0, _, _ := samplePalette(pal, 0)
	if math.Abs(h0-pal.anchors[0][0]) > 1e-9 {
		t.Fatalf("t=0 hue=%f want first anchor", h0)
	}
	hn, _, _ := samplePalette(pal, 1)
	last := pal.anchors[len(pal.anchors)-1][0]
	if math.Abs(hn-last) > 1e-9 {
		t.Fatalf("t=1 hue=%f want last anchor", hn)
	}
}
