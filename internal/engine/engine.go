// Package engine composes the theming core: capability estimation, the
// adaptive quality controller, the frame-budgeted scheduler, the coalescing
// batcher, and the default effect producers.
package engine

import (
	"context"
	"errors"
	"log"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/mfiguera/themepulse/internal/analyzer"
	"github.com/mfiguera/themepulse/internal/audio"
	"github.com/mfiguera/themepulse/internal/batch"
	"github.com/mfiguera/themepulse/internal/config"
	"github.com/mfiguera/themepulse/internal/effects"
	"github.com/mfiguera/themepulse/internal/quality"
	"github.com/mfiguera/themepulse/internal/sched"
)

const hiddenInterval = 250 * time.Millisecond

// Config configures the engine.
type Config struct {
	Tuning config.Tuning

	// InitialTier overrides the capability-derived starting tier when
	// non-empty.
	InitialTier string

	// StressProbe runs the short compute probe during capability
	// estimation.
	StressProbe bool

	// Capture feeds live audio into the analyzer; nil runs the synthetic
	// generator instead.
	Capture    *audio.Capture
	NoiseFloor float64

	// Source overrides the tick source; nil builds a TickerSource from the
	// starting level's frame budget.
	Source sched.TickSource

	Log *log.Logger
}

var errNotRunning = errors.New("scheduler tick loop not running")

// Engine wires the core together and owns its lifecycle.
type Engine struct {
	log    *log.Logger
	tuning config.Tuning

	capability quality.Capability
	controller *quality.Controller
	scheduler  *sched.Scheduler
	batcher    *batch.Batcher
	ticker     *sched.TickerSource

	capture  *audio.Capture
	analyzer *analyzer.Analyzer
	fake     *fakeFeatures
	floor    float64

	tunnel   *effects.TunnelGlow
	gradient *effects.GenreGradient

	surface *PlayerSurface

	mu        sync.Mutex
	latest    analyzer.Features
	hidden    bool
	producers []string

	sampleStart time.Time
	frames      int
	costSum     time.Duration
}

// New builds an Engine. Call Start to register producers and begin ticking.
func New(cfg Config) *Engine {
	if cfg.Log == nil {
		cfg.Log = log.New(os.Stderr, "[themepulse] ", log.LstdFlags)
	}

	e := &Engine{
		log:     cfg.Log,
		tuning:  cfg.Tuning,
		capture: cfg.Capture,
		floor:   cfg.NoiseFloor,
		surface: NewPlayerSurface("player"),
	}

	e.capability = quality.Estimate(quality.EstimatorConfig{StressProbe: cfg.StressProbe})
	initial := e.capability.Tier
	if cfg.InitialTier != "" {
		initial = quality.ParseTier(cfg.InitialTier)
	}
	cfg.Log.Printf("capability: composite=%.0f (mem=%.1f cpu=%.1f gpu=%.1f) -> %s",
		e.capability.Composite, e.capability.Memory.Value, e.capability.Compute.Value,
		e.capability.Graphics.Value, initial)

	e.controller = quality.NewController(quality.ControllerConfig{
		Levels:                 cfg.Tuning.QualityLevels(),
		Initial:                initial,
		Window:                 cfg.Tuning.ControllerWindow(),
		Cooldown:               cfg.Tuning.ControllerCooldown(),
		StableSamples:          cfg.Tuning.Controller.StableSamples,
		MaxAdaptationsInWindow: cfg.Tuning.Controller.MaxAdaptations,
		DependencyCheck:        e.dependenciesReady,
		Breaker: quality.BreakerConfig{
			FailureLimit: cfg.Tuning.Controller.BreakerLimit,
			OpenFor:      cfg.Tuning.BreakerOpen(),
		},
		OnChange: e.onQualityChange,
		Log:      cfg.Log,
	})

	e.batcher = batch.New(batch.Config{
		FlushBudget:  cfg.Tuning.FlushBudget(),
		MaxQueue:     cfg.Tuning.Batcher.MaxQueue,
		FastPathKeys: cfg.Tuning.Batcher.FastPathKeys,
		Log:          cfg.Log,
	})

	source := cfg.Source
	if source == nil {
		e.ticker = sched.NewTickerSource(e.controller.Level().FrameBudget())
		source = e.ticker
	}

	e.scheduler = sched.New(sched.Config{
		Budget: cfg.Tuning.SchedulerBudget(),
		Source: source,
		Log:    cfg.Log,
		OnTick: e.onTick,
	})

	if e.capture != nil {
		e.analyzer = analyzer.New(analyzer.Config{SampleRate: e.capture.SampleRate()})
	} else {
		e.fake = newFakeFeatures()
	}

	level := e.controller.Level()
	e.batcher.SetFlushInterval(level.FlushInterval())
	return e
}

// Start registers the analysis producer and the default effects, which also
// starts the tick loop.
func (e *Engine) Start() error {
	feats := e.Features

	e.tunnel = effects.NewTunnelGlow(e.batcher, e.surface, feats)
	e.gradient = effects.NewGenreGradient(e.batcher, e.surface, feats)
	breathing := effects.NewBreathing(e.batcher, e.surface, feats)

	regs := []struct {
		name string
		p    sched.Producer
		prio sched.Priority
		hz   float64
	}{
		{"analysis", producerFunc(e.refreshFeatures), sched.PriorityCritical, 60},
		{"tunnel", e.tunnel, sched.PriorityCritical, 60},
		{"gradient", e.gradient, sched.PriorityNormal, 30},
		{"breathing", breathing, sched.PriorityBackground, 10},
	}
	for _, r := range regs {
		if err := e.scheduler.Register(r.name, r.p, r.prio, r.hz); err != nil {
			return err
		}
		e.producers = append(e.producers, r.name)
	}

	e.controller.Attach("tunnel", e.tunnel)
	e.controller.Attach("gradient", e.gradient)

	e.mu.Lock()
	e.sampleStart = time.Now()
	e.mu.Unlock()
	return nil
}

// Run blocks until the context ends, then shuts the engine down.
func (e *Engine) Run(ctx context.Context) error {
	<-ctx.Done()
	e.Close()
	return ctx.Err()
}

// Close flushes outstanding writes and stops the tick loop.
func (e *Engine) Close() {
	for _, name := range e.producers {
		e.scheduler.Unregister(name)
	}
	e.producers = nil
	e.batcher.ForceFlush()
}

// producerFunc adapts a method to the Producer interface.
type producerFunc func(elapsed time.Duration) error

func (f producerFunc) Update(elapsed time.Duration) error { return f(elapsed) }

// refreshFeatures is the analysis producer: it pulls one feature snapshot
// per frame so every effect sees the same cues within a tick.
func (e *Engine) refreshFeatures(elapsed time.Duration) error {
	var f analyzer.Features
	if e.capture != nil && e.analyzer != nil {
		f = e.analyzer.Analyze(e.capture.Samples(), elapsed.Seconds())
	} else if e.fake != nil {
		f = e.fake.Next(elapsed.Seconds())
	}
	f = f.Gate(e.floor)

	e.mu.Lock()
	e.latest = f
	e.mu.Unlock()
	return nil
}

// Features returns the feature snapshot taken at the top of the tick.
func (e *Engine) Features() analyzer.Features {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.latest
}

// onTick flushes the batcher and folds the tick cost into the 1 Hz
// telemetry sample for the controller.
func (e *Engine) onTick(cost time.Duration, now time.Time) {
	e.batcher.Flush()

	e.mu.Lock()
	if e.sampleStart.IsZero() {
		e.sampleStart = now
	}
	e.frames++
	e.costSum += cost
	elapsed := now.Sub(e.sampleStart)
	if elapsed < time.Second {
		e.mu.Unlock()
		return
	}
	frames := e.frames
	costSum := e.costSum
	e.frames = 0
	e.costSum = 0
	e.sampleStart = now
	e.mu.Unlock()

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	sample := quality.Sample{
		Timestamp:  now,
		FPS:        float64(frames) / elapsed.Seconds(),
		FrameTime:  costSum / time.Duration(frames),
		MemoryMB:   float64(mem.HeapAlloc) / (1 << 20),
		CPUPercent: clamp01(costSum.Seconds()/elapsed.Seconds()) * 100,
		GPUPercent: 0, // no GPU telemetry without a windowed surface
	}
	e.controller.Observe(sample)
}

// onQualityChange pushes a new level into the batcher cadence, the scheduler
// mode, and the background rate stretch.
func (e *Engine) onQualityChange(level quality.Level, reason string) {
	e.batcher.SetFlushInterval(level.FlushInterval())

	mode := sched.ModeQuality
	if level.Tier <= quality.TierLow {
		mode = sched.ModePerformance
	}
	e.scheduler.NotifyMode(mode)

	switch level.Tier {
	case quality.TierMinimal:
		e.scheduler.SetBackgroundStretch(4)
	case quality.TierLow:
		e.scheduler.SetBackgroundStretch(2)
	default:
		e.scheduler.SetBackgroundStretch(1)
	}

	e.mu.Lock()
	hidden := e.hidden
	e.mu.Unlock()
	if e.ticker != nil && !hidden {
		e.ticker.SetInterval(level.FrameBudget())
	}
}

// dependenciesReady gates quality upgrades on the collaborators actually
// being initialized, not merely present.
func (e *Engine) dependenciesReady() error {
	if !e.scheduler.Running() {
		return errNotRunning
	}
	return nil
}

// SetHidden switches the tick cadence between frame-driven and the coarse
// background interval, keeping batching alive while the host is hidden.
func (e *Engine) SetHidden(hidden bool) {
	e.mu.Lock()
	e.hidden = hidden
	e.mu.Unlock()
	if e.ticker == nil {
		return
	}
	if hidden {
		e.ticker.SetInterval(hiddenInterval)
	} else {
		e.ticker.SetInterval(e.controller.Level().FrameBudget())
	}
}

// SetBattery forwards the external battery signal to the controller.
func (e *Engine) SetBattery(level float64, charging bool) {
	e.controller.SetBattery(level, charging)
}

// SetTier forces a quality tier (operator control).
func (e *Engine) SetTier(t quality.Tier) {
	e.controller.SetTier(t)
}

// SetPowerMode forwards an explicit power-mode override to the controller.
func (e *Engine) SetPowerMode(m quality.PowerMode) {
	e.controller.SetPowerMode(m)
}

// ForceFlush synchronously drains the batcher.
func (e *Engine) ForceFlush() {
	e.batcher.ForceFlush()
}

// Surface exposes the player surface for preview rendering.
func (e *Engine) Surface() *PlayerSurface { return e.surface }

// Controller exposes the quality controller (tests and the web server).
func (e *Engine) Controller() *quality.Controller { return e.controller }
