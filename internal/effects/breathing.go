package effects

import (
	"math"
	"sync"
	"time"

	"github.com/mfiguera/themepulse/internal/batch"
	"github.com/mfiguera/themepulse/internal/sched"
)

// Breathing drives the slow idle animation: a sinusoidal scale/opacity cycle
// whose depth and rate follow the overall energy. Background-tier work; the
// theme survives fine when it gets shed.
type Breathing struct {
	mu sync.Mutex

	batcher *batch.Batcher
	surface batch.Surface
	source  Source

	phase  float64
	sparse bool // performance mode: scale only, skip opacity
}

// NewBreathing creates the breathing producer.
func NewBreathing(b *batch.Batcher, s batch.Surface, src Source) *Breathing {
	return &Breathing{batcher: b, surface: s, source: src}
}

// Update advances the cycle and enqueues the resulting writes.
func (e *Breathing) Update(elapsed time.Duration) error {
	f := e.source()

	e.mu.Lock()
	rate := 0.25 + f.Energy*0.6
	e.phase += elapsed.Seconds() * rate * 2 * math.Pi
	phase := e.phase
	sparse := e.sparse
	e.mu.Unlock()

	depth := 0.02 + f.Energy*0.05
	scale := 1.0 + depth*math.Sin(phase)

	vars := map[string]string{
		"--breath-scale": formatFloat(scale),
	}
	if !sparse {
		vars["--breath-opacity"] = formatFloat(clamp(0.85+0.15*math.Sin(phase+1.2), 0, 1))
	}
	e.batcher.SubmitTransaction(e.surface, vars, batch.PriorityBackground, "breathing")
	return nil
}

// QualityModeChanged thins the write set in performance mode.
func (e *Breathing) QualityModeChanged(mode sched.Mode) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sparse = mode == sched.ModePerformance
}
