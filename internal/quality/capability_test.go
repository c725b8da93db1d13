package quality

import (
	"math"
	"testing"
	"time"
)

func TestEstimateProducesBoundedScores(t *testing.T) {
	clock := newFakeClock()
	est := Estimate(EstimatorConfig{Now: clock.Now})

	for name, s := range map[string]Score{
		"memory":   est.Memory,
		"compute":  est.Compute,
		"graphics": est.Graphics,
	} {
		if s.Value < 0 || s.Value > 10 {
			t.Fatalf("%s value=%f out of range", name, s.Value)
		}
		if s.Confidence < 0 || s.Confidence > 1 {
			t.Fatalf("%s confidence=%f out of range", name, s.Confidence)
		}
	}
	if est.Composite < 0 || est.Composite > 100 {
		t.Fatalf("composite=%f out of range", est.Composite)
	}
	if est.Cores <= 0 {
		t.Fatalf("cores=%d", est.Cores)
	}
	if !est.EstimatedAt.Equal(clock.Now()) {
		t.Fatalf("estimatedAt not taken from the injected clock")
	}
}

func TestCompositeWeighting(t *testing.T) {
	est := Estimate(EstimatorConfig{})
	want := clampFloat(
		(est.Memory.Value*0.3+est.Compute.Value*0.4+est.Graphics.Value*0.3)*10, 0, 100)
	if math.Abs(est.Composite-want) > 1e-9 {
		t.Fatalf("composite=%f want=%f", est.Composite, want)
	}
}

func TestGraphicsHintRaisesConfidence(t *testing.T) {
	hinted := Estimate(EstimatorConfig{GraphicsHint: 7.5})
	if hinted.Graphics.Value != 7.5 {
		t.Fatalf("graphics value=%f want hint 7.5", hinted.Graphics.Value)
	}
	if hinted.Graphics.Confidence != 0.8 {
		t.Fatalf("hinted confidence=%f want 0.8", hinted.Graphics.Confidence)
	}

	headless := Estimate(EstimatorConfig{})
	if headless.Graphics.Confidence != 0.2 {
		t.Fatalf("headless confidence=%f want 0.2", headless.Graphics.Confidence)
	}
}

func TestStressProbeRaisesComputeConfidence(t *testing.T) {
	base := Estimate(EstimatorConfig{})
	probed := Estimate(EstimatorConfig{StressProbe: true})
	if probed.Compute.Confidence <= base.Compute.Confidence {
		t.Fatalf("probe confidence=%f not above heuristic %f",
			probed.Compute.Confidence, base.Compute.Confidence)
	}
}

func TestScoreMemoryCurve(t *testing.T) {
	low := scoreMemory(1<<30, true, 4)   // 1 GB
	high := scoreMemory(16<<30, true, 4) // 16 GB
	if low.Value >= high.Value {
		t.Fatalf("memory curve not monotonic: 1GB=%f 16GB=%f", low.Value, high.Value)
	}
	if low.Confidence != 0.9 {
		t.Fatalf("measured confidence=%f want 0.9", low.Confidence)
	}

	guessed := scoreMemory(0, false, 4)
	if guessed.Confidence != 0.3 {
		t.Fatalf("heuristic confidence=%f want 0.3", guessed.Confidence)
	}
}

func TestTierForComposite(t *testing.T) {
	cases := map[float64]Tier{
		0:  TierMinimal,
		19: TierMinimal,
		20: TierLow,
		39: TierLow,
		40: TierMedium,
		59: TierMedium,
		60: TierHigh,
		79: TierHigh,
		80: TierUltra,
		99: TierUltra,
	}
	for composite, want := range cases {
		if got := tierForComposite(composite); got != want {
			t.Fatalf("tierForComposite(%f)=%s want %s", composite, got, want)
		}
	}
}

func TestLevelFrameBudget(t *testing.T) {
	l := Level{TargetFPS: 60}
	if got := l.FrameBudget(); got != time.Second/60 {
		t.Fatalf("frameBudget=%v", got)
	}
	zero := Level{}
	if got := zero.FrameBudget(); got != 16*time.Millisecond {
		t.Fatalf("zero-fps frameBudget=%v want 16ms", got)
	}
}

func TestFlushIntervalFloor(t *testing.T) {
	fast := Level{TargetFPS: 480}
	if got := fast.FlushInterval(); got != 4*time.Millisecond {
		t.Fatalf("flushInterval=%v want 4ms floor", got)
	}
	normal := Level{TargetFPS: 30}
	if got := normal.FlushInterval(); got != normal.FrameBudget() {
		t.Fatalf("flushInterval=%v want frame budget", got)
	}
}

func TestDefaultLevelsLadder(t *testing.T) {
	levels := DefaultLevels()
	if len(levels) != 5 {
		t.Fatalf("ladder size=%d want 5", len(levels))
	}
	for i := 1; i < len(levels); i++ {
		if levels[i].Tier <= levels[i-1].Tier {
			t.Fatalf("ladder not ascending at %d", i)
		}
		if levels[i].MemoryBudgetMB < levels[i-1].MemoryBudgetMB {
			t.Fatalf("memory budget shrinks at tier %s", levels[i].Tier)
		}
	}
}

func TestParseTierRoundTrip(t *testing.T) {
	for t0 := TierMinimal; t0 <= TierUltra; t0++ {
		if got := ParseTier(t0.String()); got != t0 {
			t.Fatalf("ParseTier(%q)=%s", t0.String(), got)
		}
	}
	if got := ParseTier("nonsense"); got != TierMedium {
		t.Fatalf("unknown tier parsed to %s want medium default", got)
	}
}

func TestPowerModeCaps(t *testing.T) {
	if PowerBattery.Cap() != TierLow {
		t.Fatalf("battery cap=%s", PowerBattery.Cap())
	}
	if PowerBalanced.Cap() != TierHigh {
		t.Fatalf("balanced cap=%s", PowerBalanced.Cap())
	}
	if PowerPerformance.Cap() != TierUltra {
		t.Fatalf("performance cap=%s", PowerPerformance.Cap())
	}
}
