package quality

import (
	"testing"
	"time"
)

type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func TestBreakerOpensAtFailureLimit(t *testing.T) {
	clock := newFakeClock()
	b := NewBreaker(BreakerConfig{FailureLimit: 5, OpenFor: 30 * time.Second, Now: clock.Now})

	for i := 0; i < 4; i++ {
		if !b.Allow() {
			t.Fatalf("breaker open after %d failures", i)
		}
		b.RecordFailure()
	}
	if b.Open() {
		t.Fatalf("breaker open before reaching the limit")
	}

	b.RecordFailure()
	if !b.Open() {
		t.Fatalf("breaker closed after %d failures", b.Failures())
	}
	if b.Allow() {
		t.Fatalf("open breaker allowed an attempt")
	}
}

func TestBreakerHalfOpenRetryAfterCooldown(t *testing.T) {
	clock := newFakeClock()
	b := NewBreaker(BreakerConfig{FailureLimit: 2, OpenFor: 10 * time.Second, Now: clock.Now})

	b.RecordFailure()
	b.RecordFailure()
	if !b.Open() {
		t.Fatalf("breaker not open")
	}

	clock.Advance(9 * time.Second)
	if b.Allow() {
		t.Fatalf("attempt allowed before the open window elapsed")
	}

	clock.Advance(time.Second)
	if !b.Allow() {
		t.Fatalf("half-open retry not allowed after the open window")
	}

	// A failed retry restarts the open window.
	b.RecordFailure()
	if b.Allow() {
		t.Fatalf("attempt allowed right after a failed half-open retry")
	}
	clock.Advance(10 * time.Second)
	if !b.Allow() {
		t.Fatalf("retry not allowed after the restarted window")
	}
}

func TestBreakerSuccessResets(t *testing.T) {
	clock := newFakeClock()
	b := NewBreaker(BreakerConfig{FailureLimit: 2, OpenFor: 10 * time.Second, Now: clock.Now})

	b.RecordFailure()
	b.RecordFailure()
	clock.Advance(10 * time.Second)
	if !b.Allow() {
		t.Fatalf("half-open retry not allowed")
	}
	b.RecordSuccess()

	if b.Open() || b.Failures() != 0 {
		t.Fatalf("success did not reset the breaker: open=%v failures=%d", b.Open(), b.Failures())
	}
	if !b.Allow() {
		t.Fatalf("closed breaker blocked an attempt")
	}
}

func TestBreakerRecordsLastFailureTime(t *testing.T) {
	clock := newFakeClock()
	b := NewBreaker(BreakerConfig{Now: clock.Now})

	b.RecordFailure()
	first := b.LastFailure()
	clock.Advance(3 * time.Second)
	b.RecordFailure()

	if !b.LastFailure().After(first) {
		t.Fatalf("lastFailure not updated")
	}
}
