package quality

import (
	"math"
	"runtime"
	"time"
)

// Score is one per-resource capability estimate on a continuous 0..10 scale.
// Confidence distinguishes direct measurement from heuristic fallback so
// downstream logic can tell "measured" from "guessed".
type Score struct {
	Value      float64 // 0..10
	Confidence float64 // 0..1
}

// Capability is the one-shot device score computed at startup. Immutable for
// the session once estimated.
type Capability struct {
	Memory   Score
	Compute  Score
	Graphics Score

	Composite float64 // 0..100, weighted mem 0.3 / cpu 0.4 / gpu 0.3
	Tier      Tier

	Cores         int
	TotalMemoryMB float64
	EstimatedAt   time.Time
}

// EstimatorConfig tunes capability estimation.
type EstimatorConfig struct {
	// StressProbe enables a short arithmetic probe to refine the compute
	// score beyond the core-count heuristic.
	StressProbe bool

	// GraphicsHint is an externally supplied 0..10 graphics score (for
	// example from the SDL surface reporting an accelerated renderer).
	// Zero means no hint.
	GraphicsHint float64

	Now func() time.Time
}

// Estimate scores the device once. Falls back to conservative heuristics with
// lowered confidence wherever direct introspection is unavailable.
func Estimate(cfg EstimatorConfig) Capability {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	cores := runtime.NumCPU()
	memBytes, memMeasured := totalMemoryBytes()

	est := Capability{
		Cores:       cores,
		EstimatedAt: cfg.Now(),
	}

	est.Memory = scoreMemory(memBytes, memMeasured, cores)
	if memMeasured {
		est.TotalMemoryMB = float64(memBytes) / (1 << 20)
	}

	est.Compute = scoreCompute(cores)
	if cfg.StressProbe {
		est.Compute = refineCompute(est.Compute)
	}

	est.Graphics = scoreGraphics(cfg.GraphicsHint, est.Compute)

	est.Composite = clampFloat(
		(est.Memory.Value*0.3+est.Compute.Value*0.4+est.Graphics.Value*0.3)*10,
		0, 100)
	est.Tier = tierForComposite(est.Composite)
	return est
}

func scoreMemory(total uint64, measured bool, cores int) Score {
	if !measured {
		// No introspection: guess from core count, which loosely tracks
		// machine class, and say so via low confidence.
		guess := clampFloat(2.0+float64(cores)*0.5, 0, 10)
		return Score{Value: guess, Confidence: 0.3}
	}
	gb := float64(total) / (1 << 30)
	// 1 GB ≈ 2, 4 GB ≈ 5, 16 GB ≈ 8, 64 GB ≈ 10 on a log2 curve.
	value := clampFloat(2.0+math.Log2(math.Max(gb, 0.25))*1.5, 0, 10)
	return Score{Value: value, Confidence: 0.9}
}

func scoreCompute(cores int) Score {
	// Core count alone: 1 core ≈ 2, 4 ≈ 5.4, 8 ≈ 7, 32 ≈ 10.
	value := clampFloat(2.0+math.Log2(math.Max(float64(cores), 1))*1.7, 0, 10)
	return Score{Value: value, Confidence: 0.5}
}

// refineCompute times a fixed arithmetic loop and blends the result into the
// heuristic score. The probe is short (~a few ms) so startup stays cheap.
func refineCompute(base Score) Score {
	const iterations = 4_000_000
	start := time.Now()
	acc := 0.0
	for i := 0; i < iterations; i++ {
		acc += math.Sqrt(float64(i&1023) + 1)
	}
	elapsed := time.Since(start)
	_ = acc

	// ~4M sqrt+add: a modern core lands well under 20 ms, a constrained
	// one closer to 100 ms.
	ms := float64(elapsed.Milliseconds())
	if ms <= 0 {
		ms = 1
	}
	probe := clampFloat(11.0-math.Log2(ms)*1.3, 0, 10)
	return Score{
		Value:      base.Value*0.4 + probe*0.6,
		Confidence: clampFloat(base.Confidence+0.35, 0, 1),
	}
}

func scoreGraphics(hint float64, compute Score) Score {
	if hint > 0 {
		return Score{Value: clampFloat(hint, 0, 10), Confidence: 0.8}
	}
	// Headless fallback: assume graphics roughly follows compute class.
	return Score{Value: clampFloat(compute.Value*0.8, 0, 10), Confidence: 0.2}
}

func tierForComposite(composite float64) Tier {
	switch {
	case composite < 20:
		return TierMinimal
	case composite < 40:
		return TierLow
	case composite < 60:
		return TierMedium
	case composite < 80:
		return TierHigh
	default:
		return TierUltra
	}
}

func clampFloat(v, minVal, maxVal float64) float64 {
	if v < minVal {
		return minVal
	}
	if v > maxVal {
		return maxVal
	}
	return v
}
