package engine

import (
	"time"

	"github.com/mfiguera/themepulse/internal/batch"
	"github.com/mfiguera/themepulse/internal/quality"
	"github.com/mfiguera/themepulse/internal/sched"
)

// Snapshot is the engine's diagnostic state at one point in time, shaped for
// JSON so the web server can broadcast it as-is.
type Snapshot struct {
	Time time.Time `json:"time"`

	Tier      string  `json:"tier"`
	TargetFPS float64 `json:"targetFps"`
	Thermal   string  `json:"thermal"`
	PowerMode string  `json:"powerMode"`

	BreakerOpen     bool `json:"breakerOpen"`
	BreakerFailures int  `json:"breakerFailures"`

	CapabilityComposite float64 `json:"capabilityComposite"`
	CapabilityTier      string  `json:"capabilityTier"`

	DroppedTicks uint64                `json:"droppedTicks"`
	Producers    []sched.ProducerStats `json:"producers"`

	QueueDepth int         `json:"queueDepth"`
	Batcher    batch.Stats `json:"batcher"`

	SurfaceRevision uint64            `json:"surfaceRevision"`
	Properties      map[string]string `json:"properties"`

	Bass         float64 `json:"bass"`
	Mid          float64 `json:"mid"`
	Treble       float64 `json:"treble"`
	Energy       float64 `json:"energy"`
	BeatStrength float64 `json:"beatStrength"`
}

// Snapshot captures the current diagnostic state.
func (e *Engine) Snapshot() Snapshot {
	level := e.controller.Level()
	open, failures := e.controller.BreakerState()
	feats := e.Features()

	return Snapshot{
		Time:                time.Now(),
		Tier:                level.Tier.String(),
		TargetFPS:           level.TargetFPS,
		Thermal:             e.controller.Thermal().String(),
		PowerMode:           e.controller.PowerMode().String(),
		BreakerOpen:         open,
		BreakerFailures:     failures,
		CapabilityComposite: e.capability.Composite,
		CapabilityTier:      e.capability.Tier.String(),
		DroppedTicks:        e.scheduler.DroppedTicks(),
		Producers:           e.scheduler.Stats(),
		QueueDepth:          e.batcher.QueueDepth(),
		Batcher:             e.batcher.Stats(),
		SurfaceRevision:     e.surface.Revision(),
		Properties:          e.surface.Snapshot(),
		Bass:                feats.Bass,
		Mid:                 feats.Mid,
		Treble:              feats.Treble,
		Energy:              feats.Energy,
		BeatStrength:        feats.BeatStrength,
	}
}
