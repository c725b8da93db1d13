package quality

import "time"

// Breaker gates adaptation attempts that depend on collaborator subsystems
// being ready. Repeated validation failures open the gate; after the open
// duration one retry is allowed and a success resets the counter.
type Breaker struct {
	failureLimit int
	openFor      time.Duration
	now          func() time.Time

	failures    int
	open        bool
	lastFailure time.Time
	openedAt    time.Time
}

// BreakerConfig controls Breaker behavior. Zero values pick defaults.
type BreakerConfig struct {
	FailureLimit int
	OpenFor      time.Duration
	Now          func() time.Time
}

// NewBreaker creates a closed breaker.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.FailureLimit <= 0 {
		cfg.FailureLimit = 5
	}
	if cfg.OpenFor <= 0 {
		cfg.OpenFor = 30 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Breaker{
		failureLimit: cfg.FailureLimit,
		openFor:      cfg.OpenFor,
		now:          cfg.Now,
	}
}

// Allow reports whether an attempt may proceed. While open it returns false
// until the open duration elapses, then permits a single half-open retry.
func (b *Breaker) Allow() bool {
	if !b.open {
		return true
	}
	if b.now().Sub(b.openedAt) >= b.openFor {
		// Half-open: one attempt; the outcome decides what happens next.
		return true
	}
	return false
}

// RecordFailure notes a failed attempt and opens the breaker once the
// consecutive-failure limit is reached.
func (b *Breaker) RecordFailure() {
	b.failures++
	b.lastFailure = b.now()
	if b.open {
		// Failed the half-open retry; restart the open window.
		b.openedAt = b.now()
		return
	}
	if b.failures >= b.failureLimit {
		b.open = true
		b.openedAt = b.now()
	}
}

// RecordSuccess closes the breaker and clears the failure count.
func (b *Breaker) RecordSuccess() {
	b.failures = 0
	b.open = false
}

// Open reports whether the breaker is currently open.
func (b *Breaker) Open() bool { return b.open }

// Failures returns the consecutive failure count.
func (b *Breaker) Failures() int { return b.failures }

// LastFailure returns the time of the most recent recorded failure.
func (b *Breaker) LastFailure() time.Time { return b.lastFailure }
