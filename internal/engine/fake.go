package engine

import (
	"math"
	"math/rand"
	"time"

	"github.com/mfiguera/themepulse/internal/analyzer"
)

// fakeFeatures synthesizes plausible music features for runs without audio.
type fakeFeatures struct {
	rng       *rand.Rand
	phaseBass float64
	phaseMid  float64
	phaseHigh float64
}

func newFakeFeatures() *fakeFeatures {
	return &fakeFeatures{
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (f *fakeFeatures) Next(delta float64) analyzer.Features {
	f.phaseBass += delta * 0.7
	f.phaseMid += delta * 1.2
	f.phaseHigh += delta * 2.1

	bass := clamp01(0.5 + 0.5*math.Sin(f.phaseBass) + f.rng.Float64()*0.1)
	mid := clamp01(0.4 + 0.4*math.Sin(f.phaseMid+0.5) + f.rng.Float64()*0.1)
	treble := clamp01(0.3 + 0.3*math.Sin(f.phaseHigh+1.0) + f.rng.Float64()*0.1)

	beat := math.Max(0, math.Sin(f.phaseBass*2.0))
	if f.rng.Float64() < 0.02 {
		beat = 1.0
	}

	return analyzer.Features{
		Bass:         bass,
		Mid:          mid,
		Treble:       treble,
		Energy:       (bass + mid + treble) / 3,
		BeatStrength: clamp01(beat + f.rng.Float64()*0.1),
		IsDrop:       f.rng.Float64() < 0.005,
	}
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
