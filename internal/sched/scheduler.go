// Package sched runs registered visual-effect producers cooperatively inside
// a single per-frame time budget. One logical tick at a time; producers never
// run concurrently with each other.
package sched

import (
	"fmt"
	"log"
	"os"
	"sort"
	"sync"
	"time"
)

// Priority is a producer tier. Critical runs first and is never shed.
type Priority int

const (
	PriorityCritical Priority = iota
	PriorityNormal
	PriorityBackground
)

func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "critical"
	case PriorityBackground:
		return "background"
	default:
		return "normal"
	}
}

// Producer is a unit of per-frame work. Update receives the time elapsed
// since this producer's last invocation.
type Producer interface {
	Update(elapsed time.Duration) error
}

// Mode is the coarse quality notification producers may subscribe to.
type Mode string

const (
	ModePerformance Mode = "performance"
	ModeQuality     Mode = "quality"
)

// ModeListener is optionally implemented by producers that want quality-mode
// change notifications.
type ModeListener interface {
	QualityModeChanged(mode Mode)
}

// ProducerStats is the per-producer diagnostic snapshot.
type ProducerStats struct {
	Name      string
	Priority  Priority
	TargetHz  float64
	Calls     uint64
	Total     time.Duration
	Max       time.Duration
	Skips     uint64
	Errors    uint64
	Enabled   bool
	LastError string
}

type entry struct {
	name     string
	producer Producer
	priority Priority
	interval time.Duration // target invocation interval
	stretch  float64       // interval multiplier set by the controller
	last     time.Time

	calls   uint64
	total   time.Duration
	max     time.Duration
	skips   uint64
	errors  uint64
	lastErr string
	enabled bool
	seq     int
}

func (e *entry) effectiveInterval() time.Duration {
	if e.stretch <= 1 {
		return e.interval
	}
	return time.Duration(float64(e.interval) * e.stretch)
}

// Config tunes the scheduler. Zero values pick defaults.
type Config struct {
	Budget time.Duration // per-tick budget, default 16ms
	Source TickSource    // required
	Log    *log.Logger
	Now    func() time.Time

	// OnTick fires after every tick with the total producer cost. The
	// engine feeds this into the adaptive quality controller.
	OnTick func(cost time.Duration, now time.Time)
}

// Scheduler owns the producer registry. The tick loop starts when the first
// producer registers and stops when the last one leaves.
type Scheduler struct {
	mu sync.Mutex

	budget  time.Duration
	source  TickSource
	entries map[string]*entry
	running bool
	seq     int
	mode    Mode

	droppedTicks uint64

	onTick func(cost time.Duration, now time.Time)
	log    *log.Logger
	now    func() time.Time
}

// New creates a Scheduler driven by cfg.Source.
func New(cfg Config) *Scheduler {
	if cfg.Budget <= 0 {
		cfg.Budget = 16 * time.Millisecond
	}
	if cfg.Log == nil {
		cfg.Log = log.New(os.Stderr, "[sched] ", log.LstdFlags)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Scheduler{
		budget:  cfg.Budget,
		source:  cfg.Source,
		entries: make(map[string]*entry),
		mode:    ModeQuality,
		onTick:  cfg.OnTick,
		log:     cfg.Log,
		now:     cfg.Now,
	}
}

// Register adds a producer under a unique name. Registering the first
// producer starts the tick loop.
func (s *Scheduler) Register(name string, p Producer, prio Priority, targetHz float64) error {
	if name == "" {
		return fmt.Errorf("producer name must not be empty")
	}
	if p == nil {
		return fmt.Errorf("producer %q is nil", name)
	}
	if targetHz <= 0 {
		targetHz = 60
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[name]; ok {
		return fmt.Errorf("producer %q already registered", name)
	}
	s.seq++
	s.entries[name] = &entry{
		name:     name,
		producer: p,
		priority: prio,
		interval: time.Duration(float64(time.Second) / targetHz),
		stretch:  1,
		enabled:  true,
		seq:      s.seq,
	}
	if !s.running && s.source != nil {
		s.running = true
		s.source.Start(s.Tick)
	}
	return nil
}

// Unregister removes a producer. Removing the last one stops the tick loop.
// Unknown names are ignored.
func (s *Scheduler) Unregister(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, name)
	if len(s.entries) == 0 && s.running && s.source != nil {
		s.running = false
		s.source.Stop()
	}
}

// Enable re-enables a producer that was disabled after a failure.
func (s *Scheduler) Enable(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[name]; ok {
		e.enabled = true
		e.lastErr = ""
	}
}

// Tick runs one cooperative frame: producers in priority order, per-producer
// rate throttling, tier-asymmetric budget enforcement.
func (s *Scheduler) Tick(now time.Time) {
	defer func() {
		// Orchestration faults drop the frame; the loop restarts on the
		// next tick from the source.
		if r := recover(); r != nil {
			s.mu.Lock()
			s.droppedTicks++
			s.mu.Unlock()
			s.log.Printf("tick dropped: %v", r)
		}
	}()

	s.mu.Lock()
	order := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		order = append(order, e)
	}
	s.mu.Unlock()

	sort.Slice(order, func(i, j int) bool {
		if order[i].priority != order[j].priority {
			return order[i].priority < order[j].priority
		}
		return order[i].seq < order[j].seq
	})

	tickStart := s.now()
	remaining := s.budget

	for _, e := range order {
		s.mu.Lock()
		enabled := e.enabled
		last := e.last
		interval := e.effectiveInterval()
		s.mu.Unlock()
		if !enabled {
			continue
		}

		elapsed := interval
		if !last.IsZero() {
			elapsed = now.Sub(last)
			if elapsed < interval {
				// Not due yet; independent of the global budget.
				continue
			}
		}

		if remaining <= 0 && e.priority == PriorityBackground {
			// Budget exhausted: shed optional load first. Critical and
			// normal producers still run.
			s.mu.Lock()
			e.skips++
			s.mu.Unlock()
			continue
		}

		start := s.now()
		err := invoke(e.producer, elapsed)
		cost := s.now().Sub(start)
		remaining -= cost

		s.mu.Lock()
		e.last = now
		e.calls++
		e.total += cost
		if cost > e.max {
			e.max = cost
		}
		if err != nil {
			e.errors++
			e.lastErr = err.Error()
			e.enabled = false
			s.log.Printf("producer %q disabled after failure: %v", e.name, err)
		}
		s.mu.Unlock()
	}

	if s.onTick != nil {
		s.onTick(s.now().Sub(tickStart), now)
	}
}

// invoke contains producer faults: a panic becomes an error so one faulty
// producer never aborts the shared tick.
func invoke(p Producer, elapsed time.Duration) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("producer panic: %v", r)
		}
	}()
	return p.Update(elapsed)
}

// SetBackgroundStretch multiplies background producers' target intervals,
// lengthening them under load. Factor 1 restores nominal rates.
func (s *Scheduler) SetBackgroundStretch(factor float64) {
	if factor < 1 {
		factor = 1
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.priority == PriorityBackground {
			e.stretch = factor
		}
	}
}

// NotifyMode broadcasts a quality-mode change to producers that listen.
func (s *Scheduler) NotifyMode(mode Mode) {
	s.mu.Lock()
	if s.mode == mode {
		s.mu.Unlock()
		return
	}
	s.mode = mode
	listeners := make([]ModeListener, 0, len(s.entries))
	for _, e := range s.entries {
		if l, ok := e.producer.(ModeListener); ok {
			listeners = append(listeners, l)
		}
	}
	s.mu.Unlock()

	for _, l := range listeners {
		l.QualityModeChanged(mode)
	}
}

// Running reports whether the tick loop is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// DroppedTicks returns the count of orchestration-level dropped frames.
func (s *Scheduler) DroppedTicks() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.droppedTicks
}

// Stats returns per-producer statistics sorted by name. Disabled producers
// keep their statistics for diagnostics.
func (s *Scheduler) Stats() []ProducerStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ProducerStats, 0, len(s.entries))
	for _, e := range s.entries {
		hz := 0.0
		if e.interval > 0 {
			hz = float64(time.Second) / float64(e.interval)
		}
		out = append(out, ProducerStats{
			Name:      e.name,
			Priority:  e.priority,
			TargetHz:  hz,
			Calls:     e.calls,
			Total:     e.total,
			Max:       e.max,
			Skips:     e.skips,
			Errors:    e.errors,
			Enabled:   e.enabled,
			LastError: e.lastErr,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
