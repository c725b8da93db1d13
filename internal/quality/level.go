package quality

import (
	"strings"
	"time"
)

// Tier is a discrete quality step. Higher tiers spend more frame time and
// memory on visual richness.
type Tier int

const (
	TierMinimal Tier = iota
	TierLow
	TierMedium
	TierHigh
	TierUltra
)

var tierNames = map[Tier]string{
	TierMinimal: "minimal",
	TierLow:     "low",
	TierMedium:  "medium",
	TierHigh:    "high",
	TierUltra:   "ultra",
}

func (t Tier) String() string {
	if name, ok := tierNames[t]; ok {
		return name
	}
	return "unknown"
}

// ParseTier maps a user-facing name onto a tier, defaulting to medium.
func ParseTier(name string) Tier {
	switch strings.ToLower(name) {
	case "minimal", "min", "floor":
		return TierMinimal
	case "low", "eco", "pi":
		return TierLow
	case "medium", "balanced", "mid":
		return TierMedium
	case "high", "full":
		return TierHigh
	case "ultra", "max":
		return TierUltra
	default:
		return TierMedium
	}
}

// TierNames returns the supported tier names in ascending order.
func TierNames() []string {
	names := make([]string, 0, len(tierNames))
	for t := TierMinimal; t <= TierUltra; t++ {
		names = append(names, t.String())
	}
	return names
}

// ParsePowerMode maps a user-facing name onto a power mode, defaulting to
// balanced.
func ParsePowerMode(name string) PowerMode {
	switch strings.ToLower(name) {
	case "battery", "saver", "eco":
		return PowerBattery
	case "performance", "perf", "max":
		return PowerPerformance
	default:
		return PowerBalanced
	}
}

// PowerMode is the battery-driven envelope layered over the tier ladder.
// It caps how high the controller may climb, independent of telemetry.
type PowerMode int

const (
	PowerBalanced PowerMode = iota
	PowerBattery
	PowerPerformance
)

func (m PowerMode) String() string {
	switch m {
	case PowerBattery:
		return "battery"
	case PowerPerformance:
		return "performance"
	default:
		return "balanced"
	}
}

// Cap returns the highest tier allowed under this power mode.
func (m PowerMode) Cap() Tier {
	switch m {
	case PowerBattery:
		return TierLow
	case PowerPerformance:
		return TierUltra
	default:
		return TierHigh
	}
}

// Level bundles the target frame rate, resource budgets, and feature toggles
// for one tier. Producers and the batcher read the current Level as a
// snapshot; only the Controller writes it.
type Level struct {
	Tier           Tier
	TargetFPS      float64
	MemoryBudgetMB float64
	CPUBudget      float64 // fraction of one core, 0..1
	GPUBudget      float64 // fraction of nominal capacity, 0..1

	Blur           bool
	SecondaryLayer bool
	GlowLayers     int
	GradientStops  int
}

// FrameBudget is the per-frame wall-clock budget implied by the target rate.
func (l Level) FrameBudget() time.Duration {
	if l.TargetFPS <= 0 {
		return 16 * time.Millisecond
	}
	return time.Duration(float64(time.Second) / l.TargetFPS)
}

// FlushInterval derives the batcher cadence: one flush per frame, but never
// faster than 4 ms so a hot producer cannot turn flushing into busy work.
func (l Level) FlushInterval() time.Duration {
	d := l.FrameBudget()
	if d < 4*time.Millisecond {
		return 4 * time.Millisecond
	}
	return d
}

// DefaultLevels returns the built-in tier ladder, lowest first.
func DefaultLevels() []Level {
	return []Level{
		{Tier: TierMinimal, TargetFPS: 24, MemoryBudgetMB: 96, CPUBudget: 0.15, GPUBudget: 0.2, GlowLayers: 0, GradientStops: 2},
		{Tier: TierLow, TargetFPS: 30, MemoryBudgetMB: 128, CPUBudget: 0.25, GPUBudget: 0.35, GlowLayers: 1, GradientStops: 3},
		{Tier: TierMedium, TargetFPS: 45, MemoryBudgetMB: 192, CPUBudget: 0.4, GPUBudget: 0.55, SecondaryLayer: true, GlowLayers: 2, GradientStops: 5},
		{Tier: TierHigh, TargetFPS: 60, MemoryBudgetMB: 256, CPUBudget: 0.6, GPUBudget: 0.75, Blur: true, SecondaryLayer: true, GlowLayers: 3, GradientStops: 8},
		{Tier: TierUltra, TargetFPS: 60, MemoryBudgetMB: 384, CPUBudget: 0.85, GPUBudget: 1.0, Blur: true, SecondaryLayer: true, GlowLayers: 4, GradientStops: 12},
	}
}

// CapabilityInfo describes one quality knob a scalable consumer exposes to
// the controller, tagged with how expensive it is to keep enabled.
type CapabilityInfo struct {
	Name   string
	Impact Impact
}

// Impact ranks how much a capability costs when enabled.
type Impact int

const (
	ImpactLow Impact = iota
	ImpactMedium
	ImpactHigh
)

func (i Impact) String() string {
	switch i {
	case ImpactHigh:
		return "high"
	case ImpactMedium:
		return "medium"
	default:
		return "low"
	}
}

// Scalable is implemented by downstream visual systems that participate in
// graded adaptation. Producers that do not implement it are still scheduled,
// they just only see whole-level changes.
type Scalable interface {
	SetQualityLevel(Level)
	ReduceQuality(amount float64)
	IncreaseQuality(amount float64)
	QualityCapabilities() []CapabilityInfo
}
