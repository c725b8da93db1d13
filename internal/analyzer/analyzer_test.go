package analyzer

import (
	"math"
	"testing"
)

func TestFFTSizeBounds(t *testing.T) {
	cases := map[int]int{
		0:    256,
		1:    256,
		255:  256,
		256:  256,
		257:  512,
		1024: 1024,
		2047: 2048,
		5000: 2048,
	}
	for input, want := range cases {
		if got := fftSize(input); got != want {
			t.Fatalf("fftSize(%d)=%d want=%d", input, got, want)
		}
	}
}

func TestMean(t *testing.T) {
	vals := []float64{0.2, 0.4, 0.6, 0.8}
	if got := mean(vals); math.Abs(got-0.5) > 1e-9 {
		t.Fatalf("mean=%f want=0.5", got)
	}
	if got := mean(nil); got != 0 {
		t.Fatalf("mean(nil)=%f want=0", got)
	}
}

func TestExpandLowPeakPassthrough(t *testing.T) {
	if got := expand(0.5, 0.0); got != 0.5 {
		t.Fatalf("expand with zero peak: got=%f want=0.5", got)
	}
}

func TestAnalyzeSineProducesBass(t *testing.T) {
	a := New(Config{SampleRate: 44_100})
	samples := make([]float32, 2048)
	for i := range samples {
		// 80 Hz sits squarely in the bass band.
		samples[i] = float32(math.Sin(2 * math.Pi * 80 * float64(i) / 44_100))
	}
	feat := a.Analyze(samples, 1.0/60.0)
	if feat.Bass <= feat.Treble {
		t.Fatalf("expected bass-dominant features, got bass=%f treble=%f", feat.Bass, feat.Treble)
	}
}

func TestAnalyzeEmptyReturnsZero(t *testing.T) {
	a := New(Config{})
	if feat := a.Analyze(nil, 0.016); !feat.Silent() {
		t.Fatalf("expected silent features for empty input, got %+v", feat)
	}
}

func TestGateZeroesBelowFloor(t *testing.T) {
	f := Features{Bass: 0.1, Mid: 0.5, Treble: 0.05, Energy: 0.2, BeatStrength: 0.1, IsDrop: true}
	g := f.Gate(0.15)
	if g.Bass != 0 || g.Treble != 0 {
		t.Fatalf("expected weak bands gated, got %+v", g)
	}
	if g.Mid <= 0 {
		t.Fatalf("expected mid to survive the gate, got %f", g.Mid)
	}
}
