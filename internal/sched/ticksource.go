package sched

import (
	"sync"
	"time"
)

// TickSource drives the scheduler's cooperative tick. Abstracting it keeps
// the scheduling model testable without a real rendering surface: production
// uses a frame-interval ticker, tests inject a manual source.
type TickSource interface {
	// Start begins delivering ticks to fn. Calling Start on a started
	// source is a no-op.
	Start(fn func(now time.Time))

	// Stop halts tick delivery. Idempotent.
	Stop()
}

// TickerSource delivers ticks from a wall-clock ticker. SetInterval switches
// cadence at runtime; the engine uses that to fall back to a coarse interval
// while the host is hidden, where frame callbacks would be throttled anyway.
type TickerSource struct {
	mu       sync.Mutex
	interval time.Duration
	ticker   *time.Ticker
	done     chan struct{}
	running  bool
}

// NewTickerSource creates a source firing every interval.
func NewTickerSource(interval time.Duration) *TickerSource {
	if interval <= 0 {
		interval = 16 * time.Millisecond
	}
	return &TickerSource{interval: interval}
}

// Start launches the tick loop.
func (t *TickerSource) Start(fn func(now time.Time)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return
	}
	t.running = true
	t.ticker = time.NewTicker(t.interval)
	t.done = make(chan struct{})

	ticker := t.ticker
	done := t.done
	go func() {
		for {
			select {
			case <-done:
				return
			case now := <-ticker.C:
				fn(now)
			}
		}
	}()
}

// Stop halts the loop.
func (t *TickerSource) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running {
		return
	}
	t.running = false
	t.ticker.Stop()
	close(t.done)
}

// SetInterval changes the tick cadence, taking effect immediately if the
// source is running.
func (t *TickerSource) SetInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.interval = d
	if t.running {
		t.ticker.Reset(d)
	}
}

// ManualSource delivers ticks only when Advance is called. Test double.
type ManualSource struct {
	mu      sync.Mutex
	fn      func(now time.Time)
	started bool
}

// Start records the tick handler.
func (m *ManualSource) Start(fn func(now time.Time)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fn = fn
	m.started = true
}

// Stop clears the handler.
func (m *ManualSource) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = false
}

// Advance fires one tick at the given instant.
func (m *ManualSource) Advance(now time.Time) {
	m.mu.Lock()
	fn := m.fn
	started := m.started
	m.mu.Unlock()
	if started && fn != nil {
		fn(now)
	}
}

// Started reports whether the source holds an active handler.
func (m *ManualSource) Started() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.started
}
