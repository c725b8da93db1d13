package sched

import (
	"errors"
	"io"
	"log"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type funcProducer struct {
	fn func(elapsed time.Duration) error
}

func (p *funcProducer) Update(elapsed time.Duration) error { return p.fn(elapsed) }

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func newTestScheduler(clock *fakeClock, budget time.Duration) (*Scheduler, *ManualSource) {
	src := &ManualSource{}
	s := New(Config{
		Budget: budget,
		Source: src,
		Log:    quietLogger(),
		Now:    clock.Now,
	})
	return s, src
}

func TestBudgetExhaustionShedsOnlyBackground(t *testing.T) {
	clock := newFakeClock()
	s, src := newTestScheduler(clock, 16*time.Millisecond)

	var ran []string
	record := func(name string, cost time.Duration) *funcProducer {
		return &funcProducer{fn: func(time.Duration) error {
			ran = append(ran, name)
			clock.Advance(cost)
			return nil
		}}
	}

	if err := s.Register("heavy", record("heavy", 20*time.Millisecond), PriorityCritical, 60); err != nil {
		t.Fatalf("register heavy: %v", err)
	}
	if err := s.Register("mid", record("mid", time.Millisecond), PriorityNormal, 60); err != nil {
		t.Fatalf("register mid: %v", err)
	}
	if err := s.Register("bg", record("bg", time.Millisecond), PriorityBackground, 60); err != nil {
		t.Fatalf("register bg: %v", err)
	}

	src.Advance(clock.Now())

	// The critical producer blows the whole budget. Normal still runs,
	// background is shed.
	if len(ran) != 2 || ran[0] != "heavy" || ran[1] != "mid" {
		t.Fatalf("ran=%v want [heavy mid]", ran)
	}
	for _, st := range s.Stats() {
		if st.Name == "bg" && st.Skips != 1 {
			t.Fatalf("bg skips=%d want 1", st.Skips)
		}
		if st.Name == "mid" && st.Calls != 1 {
			t.Fatalf("mid calls=%d want 1", st.Calls)
		}
	}
}

func TestProducersRunInPriorityOrder(t *testing.T) {
	clock := newFakeClock()
	s, src := newTestScheduler(clock, 16*time.Millisecond)

	var ran []string
	record := func(name string) *funcProducer {
		return &funcProducer{fn: func(time.Duration) error {
			ran = append(ran, name)
			return nil
		}}
	}

	// Registered out of order on purpose.
	s.Register("bg", record("bg"), PriorityBackground, 60)
	s.Register("crit", record("crit"), PriorityCritical, 60)
	s.Register("norm", record("norm"), PriorityNormal, 60)

	src.Advance(clock.Now())

	want := []string{"crit", "norm", "bg"}
	if len(ran) != len(want) {
		t.Fatalf("ran=%v want=%v", ran, want)
	}
	for i := range want {
		if ran[i] != want[i] {
			t.Fatalf("ran=%v want=%v", ran, want)
		}
	}
}

func TestPanicDisablesProducerWithoutUnregistering(t *testing.T) {
	clock := newFakeClock()
	s, src := newTestScheduler(clock, 16*time.Millisecond)

	calls := 0
	s.Register("faulty", &funcProducer{fn: func(time.Duration) error {
		panic("boom")
	}}, PriorityCritical, 60)
	s.Register("healthy", &funcProducer{fn: func(time.Duration) error {
		calls++
		return nil
	}}, PriorityNormal, 60)

	now := clock.Now()
	src.Advance(now)
	clock.Advance(50 * time.Millisecond)
	src.Advance(clock.Now())

	if calls != 2 {
		t.Fatalf("healthy producer calls=%d want 2", calls)
	}

	stats := s.Stats()
	var faulty *ProducerStats
	for i := range stats {
		if stats[i].Name == "faulty" {
			faulty = &stats[i]
		}
	}
	if faulty == nil {
		t.Fatalf("disabled producer missing from stats")
	}
	if faulty.Enabled {
		t.Fatalf("faulty producer still enabled")
	}
	if faulty.Calls != 1 || faulty.Errors != 1 {
		t.Fatalf("faulty calls=%d errors=%d want 1/1", faulty.Calls, faulty.Errors)
	}
	if faulty.LastError == "" {
		t.Fatalf("expected last error to be recorded")
	}

	// Re-enabling brings it back without re-registering.
	s.Enable("faulty")
	for _, st := range s.Stats() {
		if st.Name == "faulty" && !st.Enabled {
			t.Fatalf("faulty still disabled after Enable")
		}
	}
}

func TestErrorDisablesProducer(t *testing.T) {
	clock := newFakeClock()
	s, src := newTestScheduler(clock, 16*time.Millisecond)

	s.Register("err", &funcProducer{fn: func(time.Duration) error {
		return errors.New("device lost")
	}}, PriorityNormal, 60)

	src.Advance(clock.Now())

	for _, st := range s.Stats() {
		if st.Name == "err" {
			if st.Enabled {
				t.Fatalf("errored producer still enabled")
			}
			if st.LastError != "device lost" {
				t.Fatalf("lastError=%q", st.LastError)
			}
		}
	}
}

func TestRateThrottling(t *testing.T) {
	clock := newFakeClock()
	s, src := newTestScheduler(clock, 16*time.Millisecond)

	calls := 0
	s.Register("slow", &funcProducer{fn: func(time.Duration) error {
		calls++
		return nil
	}}, PriorityNormal, 30)

	// 60 Hz ticks against a 30 Hz producer: every other tick is skipped.
	start := clock.Now()
	for i := 0; i < 4; i++ {
		src.Advance(start.Add(time.Duration(i) * 16 * time.Millisecond))
	}

	if calls != 2 {
		t.Fatalf("calls=%d want 2", calls)
	}
}

func TestBackgroundStretchSlowsOptionalProducers(t *testing.T) {
	clock := newFakeClock()
	s, src := newTestScheduler(clock, 16*time.Millisecond)

	bgCalls := 0
	s.Register("bg", &funcProducer{fn: func(time.Duration) error {
		bgCalls++
		return nil
	}}, PriorityBackground, 60)

	s.SetBackgroundStretch(4)

	start := clock.Now()
	for i := 0; i < 4; i++ {
		src.Advance(start.Add(time.Duration(i) * 16 * time.Millisecond))
	}

	// First tick always runs; stretched interval (4x16ms) holds the rest.
	if bgCalls != 1 {
		t.Fatalf("bgCalls=%d want 1", bgCalls)
	}

	s.SetBackgroundStretch(1)
	src.Advance(start.Add(5 * 16 * time.Millisecond))
	if bgCalls != 2 {
		t.Fatalf("bgCalls=%d want 2 after stretch reset", bgCalls)
	}
}

func TestRegisterStartsAndUnregisterStopsSource(t *testing.T) {
	clock := newFakeClock()
	s, src := newTestScheduler(clock, 16*time.Millisecond)

	if src.Started() {
		t.Fatalf("source started before any producer")
	}

	p := &funcProducer{fn: func(time.Duration) error { return nil }}
	if err := s.Register("a", p, PriorityNormal, 60); err != nil {
		t.Fatalf("register: %v", err)
	}
	if !src.Started() || !s.Running() {
		t.Fatalf("source not started after first register")
	}

	if err := s.Register("a", p, PriorityNormal, 60); err == nil {
		t.Fatalf("duplicate register accepted")
	}

	s.Register("b", p, PriorityNormal, 60)
	s.Unregister("a")
	if !src.Started() {
		t.Fatalf("source stopped while producers remain")
	}
	s.Unregister("b")
	if src.Started() || s.Running() {
		t.Fatalf("source still running after last unregister")
	}

	// Unknown names are ignored.
	s.Unregister("ghost")
}

func TestNotifyModeBroadcastsOnlyOnChange(t *testing.T) {
	clock := newFakeClock()
	s, _ := newTestScheduler(clock, 16*time.Millisecond)

	notified := []Mode{}
	lp := &listenerProducer{onMode: func(m Mode) { notified = append(notified, m) }}
	s.Register("listener", lp, PriorityNormal, 60)

	s.NotifyMode(ModeQuality)     // already the default, no broadcast
	s.NotifyMode(ModePerformance) // change
	s.NotifyMode(ModePerformance) // repeat, no broadcast
	s.NotifyMode(ModeQuality)     // change back

	if len(notified) != 2 || notified[0] != ModePerformance || notified[1] != ModeQuality {
		t.Fatalf("notified=%v", notified)
	}
}

type listenerProducer struct {
	onMode func(Mode)
}

func (l *listenerProducer) Update(time.Duration) error { return nil }
func (l *listenerProducer) QualityModeChanged(m Mode)  { l.onMode(m) }

func TestOnTickReportsCost(t *testing.T) {
	clock := newFakeClock()
	src := &ManualSource{}
	var costs []time.Duration
	s := New(Config{
		Budget: 16 * time.Millisecond,
		Source: src,
		Log:    quietLogger(),
		Now:    clock.Now,
		OnTick: func(cost time.Duration, now time.Time) {
			costs = append(costs, cost)
		},
	})

	s.Register("p", &funcProducer{fn: func(time.Duration) error {
		clock.Advance(3 * time.Millisecond)
		return nil
	}}, PriorityCritical, 60)

	src.Advance(clock.Now())

	if len(costs) != 1 {
		t.Fatalf("onTick fired %d times", len(costs))
	}
	if costs[0] != 3*time.Millisecond {
		t.Fatalf("cost=%v want 3ms", costs[0])
	}
}

func TestDroppedTickOnOrchestrationPanic(t *testing.T) {
	clock := newFakeClock()
	s, _ := newTestScheduler(clock, 16*time.Millisecond)

	// OnTick panicking simulates an orchestration fault outside producer
	// containment.
	s.onTick = func(time.Duration, time.Time) { panic("orchestration") }
	s.Register("p", &funcProducer{fn: func(time.Duration) error { return nil }}, PriorityNormal, 60)

	s.Tick(clock.Now())
	if got := s.DroppedTicks(); got != 1 {
		t.Fatalf("droppedTicks=%d want 1", got)
	}
}
