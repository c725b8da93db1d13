// Package quality holds the adaptive quality controller and the one-shot
// device capability estimator. The controller is the single writer of the
// process-wide Quality Level; producers and the batcher read snapshots.
package quality

import (
	"log"
	"os"
	"sort"
	"sync"
	"time"
)

// ThermalState is inferred purely from frame-rate decline; there is no
// direct sensor, which is why it lives next to the confidence-carrying
// capability scores rather than pretending to be a measurement.
type ThermalState int

const (
	ThermalNominal ThermalState = iota
	ThermalWarm
	ThermalHot
	ThermalCritical
)

func (t ThermalState) String() string {
	switch t {
	case ThermalWarm:
		return "warm"
	case ThermalHot:
		return "hot"
	case ThermalCritical:
		return "critical"
	default:
		return "nominal"
	}
}

// Sample is one telemetry snapshot feeding the rolling window.
type Sample struct {
	Timestamp  time.Time
	FPS        float64
	FrameTime  time.Duration
	MemoryMB   float64
	CPUPercent float64
	GPUPercent float64
	Thermal    ThermalState
}

// ControllerConfig tunes adaptation. Zero values pick defaults.
type ControllerConfig struct {
	Levels                 []Level
	Initial                Tier
	Window                 time.Duration // rolling sample retention, default 30s
	Cooldown               time.Duration // min gap between adaptations, default 5s
	StableSamples          int           // consecutive good samples before upgrade, default 10
	MaxAdaptationsInWindow int           // degraded guard, default 6
	MinPlausibleFPS        float64       // below this the controller assumes a fault, default 2

	// DependencyCheck reports whether collaborator subsystems are
	// initialized. Nil means always ready.
	DependencyCheck func() error

	Breaker BreakerConfig

	// OnChange fires after every applied adaptation with the new level and
	// a short reason tag.
	OnChange func(Level, string)

	Log *log.Logger
	Now func() time.Time
}

// Controller adapts the current quality level from runtime telemetry.
type Controller struct {
	mu sync.RWMutex

	levels  map[Tier]Level
	floor   Tier
	ceiling Tier

	level       Level
	reduceSteps int // graded reductions applied within the current tier

	powerMode PowerMode

	window      []Sample
	windowSpan  time.Duration
	cooldown    time.Duration
	stableNeed  int
	stableCount int
	maxAdapts   int
	minFPS      float64
	lastAdapt   time.Time
	adaptTimes  []time.Time
	thermal     ThermalState

	depCheck func() error
	breaker  *Breaker

	scalables map[string]Scalable

	onChange func(Level, string)
	log      *log.Logger
	now      func() time.Time
}

// NewController builds a controller starting at cfg.Initial.
func NewController(cfg ControllerConfig) *Controller {
	if len(cfg.Levels) == 0 {
		cfg.Levels = DefaultLevels()
	}
	if cfg.Window <= 0 {
		cfg.Window = 30 * time.Second
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 5 * time.Second
	}
	if cfg.StableSamples <= 0 {
		cfg.StableSamples = 10
	}
	if cfg.MaxAdaptationsInWindow <= 0 {
		cfg.MaxAdaptationsInWindow = 6
	}
	if cfg.MinPlausibleFPS <= 0 {
		cfg.MinPlausibleFPS = 2
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Log == nil {
		cfg.Log = log.New(os.Stderr, "[quality] ", log.LstdFlags)
	}
	if cfg.Breaker.Now == nil {
		cfg.Breaker.Now = cfg.Now
	}

	sort.Slice(cfg.Levels, func(i, j int) bool { return cfg.Levels[i].Tier < cfg.Levels[j].Tier })
	levels := make(map[Tier]Level, len(cfg.Levels))
	for _, l := range cfg.Levels {
		levels[l.Tier] = l
	}

	c := &Controller{
		levels:     levels,
		floor:      cfg.Levels[0].Tier,
		ceiling:    cfg.Levels[len(cfg.Levels)-1].Tier,
		powerMode:  PowerBalanced,
		windowSpan: cfg.Window,
		cooldown:   cfg.Cooldown,
		stableNeed: cfg.StableSamples,
		maxAdapts:  cfg.MaxAdaptationsInWindow,
		minFPS:     cfg.MinPlausibleFPS,
		depCheck:   cfg.DependencyCheck,
		breaker:    NewBreaker(cfg.Breaker),
		scalables:  make(map[string]Scalable),
		onChange:   cfg.OnChange,
		log:        cfg.Log,
		now:        cfg.Now,
	}

	initial := cfg.Initial
	if _, ok := levels[initial]; !ok {
		initial = c.floor
	}
	c.level = levels[initial]
	return c
}

// Level returns the current quality level snapshot.
func (c *Controller) Level() Level {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.level
}

// Thermal returns the most recently inferred thermal state.
func (c *Controller) Thermal() ThermalState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.thermal
}

// PowerMode returns the active power envelope.
func (c *Controller) PowerMode() PowerMode {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.powerMode
}

// BreakerState exposes the dependency-validation breaker for diagnostics.
func (c *Controller) BreakerState() (open bool, failures int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.breaker.Open(), c.breaker.Failures()
}

// Attach registers a scalable consumer for graded adjustments.
func (c *Controller) Attach(name string, s Scalable) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scalables[name] = s
	s.SetQualityLevel(c.level)
}

// Detach removes a scalable consumer.
func (c *Controller) Detach(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.scalables, name)
}

// SetTier forces a tier directly, outside the adaptation paths. Used by the
// control surface and by startup capability mapping.
func (c *Controller) SetTier(t Tier) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t > c.powerMode.Cap() {
		t = c.powerMode.Cap()
	}
	if _, ok := c.levels[t]; !ok {
		return
	}
	// Re-applying the level the controller already holds would only re-log
	// and reset the graded-reduction state.
	if t == c.level.Tier && c.level == c.levels[t] && c.reduceSteps == 0 {
		return
	}
	c.applyTierLocked(t, "manual")
}

// SetBattery feeds the external battery signal. Below 20% while discharging
// the battery envelope is forced; charging releases back to balanced. Both
// act independently of the FPS-driven path.
func (c *Controller) SetBattery(level float64, charging bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case !charging && level < 0.2:
		if c.powerMode != PowerBattery {
			c.powerMode = PowerBattery
			c.log.Printf("battery %.0f%% discharging, forcing battery tier", level*100)
			if c.level.Tier > c.powerMode.Cap() {
				c.applyTierLocked(c.powerMode.Cap(), "battery")
			}
		}
	case charging:
		if c.powerMode == PowerBattery {
			c.powerMode = PowerBalanced
		}
	}
}

// SetPowerMode sets the envelope directly (operator control).
func (c *Controller) SetPowerMode(m PowerMode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.powerMode = m
	if c.level.Tier > m.Cap() {
		c.applyTierLocked(m.Cap(), "power mode")
	}
}

// Observe ingests one telemetry sample and runs an adaptation cycle. Called
// from the tick path at ~1 Hz; safe for concurrent readers of Level.
func (c *Controller) Observe(s Sample) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if s.Timestamp.IsZero() {
		s.Timestamp = c.now()
	}
	c.window = append(c.window, s)
	c.evictLocked(s.Timestamp)

	c.thermal = c.inferThermalLocked()

	if c.sampleHasHeadroomLocked(s) {
		c.stableCount++
	} else {
		c.stableCount = 0
	}

	c.evaluateLocked(s.Timestamp)
}

// Window returns a copy of the rolling sample window.
func (c *Controller) Window() []Sample {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Sample, len(c.window))
	copy(out, c.window)
	return out
}

func (c *Controller) evictLocked(now time.Time) {
	cutoff := now.Add(-c.windowSpan)
	i := 0
	for i < len(c.window) && c.window[i].Timestamp.Before(cutoff) {
		i++
	}
	if i > 0 {
		c.window = append(c.window[:0], c.window[i:]...)
	}
	j := 0
	for j < len(c.adaptTimes) && c.adaptTimes[j].Before(cutoff) {
		j++
	}
	if j > 0 {
		c.adaptTimes = append(c.adaptTimes[:0], c.adaptTimes[j:]...)
	}
}

func (c *Controller) evaluateLocked(now time.Time) {
	if c.degradedLocked() {
		return
	}

	// Thermal cuts run outside the normal trigger path, scaled by severity.
	if c.thermal != ThermalNominal {
		if now.Sub(c.lastAdapt) >= c.cooldown {
			c.applyThermalCutLocked(now)
		}
		return
	}

	if now.Sub(c.lastAdapt) < c.cooldown {
		return
	}

	avgFPS, avgFrame, avgMem, n := c.windowAveragesLocked()
	if n < 3 {
		return
	}

	target := c.level.TargetFPS
	budget := c.level.FrameBudget()

	downgrade := avgFPS < target*0.8 ||
		avgMem > c.level.MemoryBudgetMB ||
		avgFrame > time.Duration(float64(budget)*1.2)
	if downgrade {
		c.gradedDowngradeLocked(now, "telemetry")
		return
	}

	// Upgrade headroom is judged over the recent stable stretch, not the
	// whole window, so a downgrade's own bad samples cannot veto recovery.
	recentFPS, recentFrame, recentMem := c.recentAveragesLocked(c.stableNeed)
	upgrade := recentFPS >= target*0.95 &&
		recentMem < c.level.MemoryBudgetMB*0.8 &&
		recentFrame < budget &&
		c.stableCount >= c.stableNeed &&
		c.level.Tier < c.upgradeCapLocked()
	if !upgrade {
		return
	}

	if !c.validateDependenciesLocked() {
		return
	}

	c.applyTierLocked(c.level.Tier+1, "upgrade")
	c.recordAdaptLocked(now)
	c.stableCount = 0
}

// degradedLocked detects symptoms that adaptation itself may be the problem:
// quality already at the floor, implausibly low frame rate, or too many
// recent adaptations. The controller backs off instead of "fixing" harder.
func (c *Controller) degradedLocked() bool {
	if c.level.Tier == c.floor {
		return true
	}
	if len(c.window) > 0 {
		last := c.window[len(c.window)-1]
		if last.FPS > 0 && last.FPS < c.minFPS {
			return true
		}
	}
	return len(c.adaptTimes) >= c.maxAdapts
}

func (c *Controller) windowAveragesLocked() (fps float64, frame time.Duration, mem float64, n int) {
	if len(c.window) == 0 {
		return 0, 0, 0, 0
	}
	var frameSum time.Duration
	for _, s := range c.window {
		fps += s.FPS
		frameSum += s.FrameTime
		mem += s.MemoryMB
	}
	n = len(c.window)
	return fps / float64(n), frameSum / time.Duration(n), mem / float64(n), n
}

func (c *Controller) recentAveragesLocked(count int) (fps float64, frame time.Duration, mem float64) {
	if count <= 0 || len(c.window) == 0 {
		return 0, 0, 0
	}
	start := len(c.window) - count
	if start < 0 {
		start = 0
	}
	recent := c.window[start:]
	var frameSum time.Duration
	for _, s := range recent {
		fps += s.FPS
		frameSum += s.FrameTime
		mem += s.MemoryMB
	}
	n := float64(len(recent))
	return fps / n, frameSum / time.Duration(len(recent)), mem / n
}

func (c *Controller) sampleHasHeadroomLocked(s Sample) bool {
	target := c.level.TargetFPS
	return s.FPS >= target*0.95 &&
		s.MemoryMB < c.level.MemoryBudgetMB*0.8 &&
		s.FrameTime < c.level.FrameBudget() &&
		s.Thermal == ThermalNominal
}

// inferThermalLocked compares frame-rate medians of the older and newer
// halves of the window; escalating decline maps to warm/hot/critical.
// Medians, not means: one dropped sample must not read as sustained decline.
func (c *Controller) inferThermalLocked() ThermalState {
	if len(c.window) < 6 {
		return ThermalNominal
	}
	half := len(c.window) / 2

	median := func(ss []Sample) float64 {
		fps := make([]float64, len(ss))
		for i, s := range ss {
			fps[i] = s.FPS
		}
		sort.Float64s(fps)
		mid := len(fps) / 2
		if len(fps)%2 == 0 {
			return (fps[mid-1] + fps[mid]) / 2
		}
		return fps[mid]
	}

	oldFPS := median(c.window[:half])
	newFPS := median(c.window[half:])
	if oldFPS <= 0 {
		return ThermalNominal
	}
	decline := (oldFPS - newFPS) / oldFPS
	switch {
	case decline >= 0.25:
		return ThermalCritical
	case decline >= 0.12:
		return ThermalHot
	case decline >= 0.05:
		return ThermalWarm
	default:
		return ThermalNominal
	}
}

func (c *Controller) applyThermalCutLocked(now time.Time) {
	switch c.thermal {
	case ThermalWarm:
		c.gradedDowngradeLocked(now, "thermal warm")
	case ThermalHot:
		c.tierDownLocked(1, "thermal hot")
		c.recordAdaptLocked(now)
	case ThermalCritical:
		c.tierDownLocked(2, "thermal critical")
		c.recordAdaptLocked(now)
	}
}

// gradedDowngradeLocked sheds quality in steps: complexity on the scalable
// consumers first, then the most expensive optional feature, then the tier
// itself (which also lowers the target frame rate).
func (c *Controller) gradedDowngradeLocked(now time.Time, reason string) {
	switch {
	case len(c.scalables) > 0 && c.reduceSteps < 2:
		for _, s := range c.scalables {
			s.ReduceQuality(0.25)
		}
		c.reduceSteps++
		c.log.Printf("downgrade (%s): reduced effect complexity, step %d", reason, c.reduceSteps)
		c.notifyLocked(reason)
	case c.level.Blur:
		c.level.Blur = false
		c.log.Printf("downgrade (%s): blur disabled", reason)
		c.pushLevelLocked()
		c.notifyLocked(reason)
	case c.level.SecondaryLayer:
		c.level.SecondaryLayer = false
		c.log.Printf("downgrade (%s): secondary layer disabled", reason)
		c.pushLevelLocked()
		c.notifyLocked(reason)
	default:
		c.tierDownLocked(1, reason)
	}
	c.recordAdaptLocked(now)
	c.stableCount = 0
}

func (c *Controller) tierDownLocked(steps int, reason string) {
	t := c.level.Tier
	for i := 0; i < steps && t > c.floor; i++ {
		t--
	}
	if t == c.level.Tier {
		return
	}
	c.applyTierLocked(t, reason)
}

func (c *Controller) upgradeCapLocked() Tier {
	limit := c.powerMode.Cap()
	if limit > c.ceiling {
		limit = c.ceiling
	}
	return limit
}

func (c *Controller) validateDependenciesLocked() bool {
	if !c.breaker.Allow() {
		return false
	}
	if c.depCheck == nil {
		c.breaker.RecordSuccess()
		return true
	}
	if err := c.depCheck(); err != nil {
		c.breaker.RecordFailure()
		c.log.Printf("dependency validation failed: %v", err)
		return false
	}
	c.breaker.RecordSuccess()
	return true
}

func (c *Controller) applyTierLocked(t Tier, reason string) {
	level, ok := c.levels[t]
	if !ok {
		return
	}
	c.level = level
	c.reduceSteps = 0
	c.log.Printf("quality level -> %s (%s)", t, reason)
	c.pushLevelLocked()
	c.notifyLocked(reason)
}

func (c *Controller) pushLevelLocked() {
	for _, s := range c.scalables {
		s.SetQualityLevel(c.level)
	}
}

func (c *Controller) notifyLocked(reason string) {
	if c.onChange != nil {
		c.onChange(c.level, reason)
	}
}

func (c *Controller) recordAdaptLocked(now time.Time) {
	c.lastAdapt = now
	c.adaptTimes = append(c.adaptTimes, now)
}
