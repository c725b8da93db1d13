// Package batch coalesces style-property writes from many producers and
// flushes them to their surfaces in time-boxed, surface-grouped batches.
package batch

import (
	"fmt"
	"log"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Priority orders conflicting writes for the same (surface, property) key.
type Priority int

const (
	PriorityBackground Priority = iota
	PriorityNormal
	PriorityCritical
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

// Write is one unapplied mutation of a (surface, property) pair.
type Write struct {
	Surface    Surface
	Property   string
	Value      string
	Priority   Priority
	Source     string
	TxID       string
	EnqueuedAt time.Time
}

// Stats counts batcher activity for the diagnostics snapshot.
type Stats struct {
	Enqueued       uint64
	Replaced       uint64
	Dropped        uint64
	FastPath       uint64
	Flushes        uint64
	Applied        uint64
	Composite      uint64
	Individual     uint64
	Requeued       uint64
	Fallbacks      uint64
	ApplyErrors    uint64
	FlushHistogram [6]uint64 // <1ms, <2, <4, <8, <16, >=16
}

// Config tunes the batcher. Zero values pick defaults.
type Config struct {
	FlushBudget        time.Duration // soft per-flush budget, default 8ms
	MaxQueue           int           // forced-flush threshold, default 256
	CompositeThreshold int           // min properties per surface for a composite write, default 3
	FastPathKeys       []string      // property keys applied synchronously
	Log                *log.Logger
	Now                func() time.Time
}

// Batcher owns the pending-write queue. Producers only enqueue; the queue is
// never read or mutated from outside.
type Batcher struct {
	mu sync.Mutex

	budget    time.Duration
	maxQueue  int
	composite int
	interval  time.Duration

	pending   map[string]*Write
	fastPath  map[string]bool
	lastFlush time.Time
	followUp  bool // a budget-exhausted flush left work behind

	stats Stats
	log   *log.Logger
	now   func() time.Time
}

// New creates a Batcher.
func New(cfg Config) *Batcher {
	if cfg.FlushBudget <= 0 {
		cfg.FlushBudget = 8 * time.Millisecond
	}
	if cfg.MaxQueue <= 0 {
		cfg.MaxQueue = 256
	}
	if cfg.CompositeThreshold <= 0 {
		cfg.CompositeThreshold = 3
	}
	if cfg.Log == nil {
		cfg.Log = log.New(os.Stderr, "[batch] ", log.LstdFlags)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	fast := make(map[string]bool, len(cfg.FastPathKeys))
	for _, k := range cfg.FastPathKeys {
		fast[k] = true
	}

	return &Batcher{
		budget:    cfg.FlushBudget,
		maxQueue:  cfg.MaxQueue,
		composite: cfg.CompositeThreshold,
		pending:   make(map[string]*Write),
		fastPath:  fast,
		log:       cfg.Log,
		now:       cfg.Now,
	}
}

// SetFlushInterval sets the minimum gap between scheduled flushes. The
// quality controller derives this from the current level's frame budget.
func (b *Batcher) SetFlushInterval(d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.interval = d
}

// AddFastPathKey marks a property key for synchronous application.
func (b *Batcher) AddFastPathKey(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fastPath[key] = true
}

// RemoveFastPathKey returns a property key to normal batching.
func (b *Batcher) RemoveFastPathKey(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.fastPath, key)
}

// Enqueue records one write. Fast-path keys hit the surface immediately;
// everything else coalesces under the conflict rule. A critical write or a
// full queue forces a flush before returning. Fire-and-forget: application
// is deferred, so no error is reported here.
func (b *Batcher) Enqueue(s Surface, property, value string, prio Priority, source string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.enqueueLocked(s, property, value, prio, source, "") {
		b.maybeForceLocked(prio)
	}
}

// SubmitTransaction enqueues a named group of writes sharing a transaction
// id. Best-effort co-scheduling only: members may still be individually
// superseded by higher-priority writes before flush.
func (b *Batcher) SubmitTransaction(s Surface, vars map[string]string, prio Priority, source string) string {
	txID := uuid.NewString()
	b.mu.Lock()
	defer b.mu.Unlock()
	queued := false
	for property, value := range vars {
		if b.enqueueLocked(s, property, value, prio, source, txID) {
			queued = true
		}
	}
	if queued {
		b.maybeForceLocked(prio)
	}
	return txID
}

// enqueueLocked reports whether the write landed in the queue (false for
// fast-path and conflict-discarded writes).
func (b *Batcher) enqueueLocked(s Surface, property, value string, prio Priority, source, txID string) bool {
	b.stats.Enqueued++

	if b.fastPath[property] {
		b.stats.FastPath++
		if err := s.SetProperty(property, value); err != nil {
			b.stats.ApplyErrors++
			b.log.Printf("fast-path write %s/%s from %s: %v", s.Name(), property, source, err)
		}
		return false
	}

	incoming := &Write{
		Surface:    s,
		Property:   property,
		Value:      value,
		Priority:   prio,
		Source:     source,
		TxID:       txID,
		EnqueuedAt: b.now(),
	}

	key := pendingKey(s.Name(), property)
	existing, ok := b.pending[key]
	if !ok {
		b.pending[key] = incoming
		return true
	}
	if !wins(incoming, existing) {
		b.stats.Dropped++
		return false
	}
	b.stats.Replaced++
	b.pending[key] = incoming
	return true
}

// wins implements the conflict rule: strictly higher priority replaces, equal
// priority replaces only when strictly newer. Everything else is discarded.
func wins(incoming, existing *Write) bool {
	if incoming.Priority != existing.Priority {
		return incoming.Priority > existing.Priority
	}
	return incoming.EnqueuedAt.After(existing.EnqueuedAt)
}

func (b *Batcher) maybeForceLocked(prio Priority) {
	if prio == PriorityCritical || len(b.pending) >= b.maxQueue {
		b.flushLocked()
	}
}

// Flush runs a scheduled flush. It is a no-op while the flush interval has
// not elapsed, unless a prior flush ran out of budget and left work behind.
func (b *Batcher) Flush() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.followUp && b.interval > 0 && b.now().Sub(b.lastFlush) < b.interval {
		return
	}
	b.flushLocked()
}

// ForceFlush synchronously drains the queue, for callers that need a
// guaranteed-applied state before proceeding.
func (b *Batcher) ForceFlush() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.flushLocked()
}

func (b *Batcher) flushLocked() {
	start := b.now()
	b.lastFlush = start
	b.followUp = false
	if len(b.pending) == 0 {
		return
	}
	b.stats.Flushes++

	queue := b.pending
	b.pending = make(map[string]*Write, len(queue))

	// Group by surface; deterministic order keeps behavior reproducible.
	groups := make(map[string][]*Write)
	surfaces := make([]string, 0, 4)
	for _, w := range queue {
		name := w.Surface.Name()
		if _, ok := groups[name]; !ok {
			surfaces = append(surfaces, name)
		}
		groups[name] = append(groups[name], w)
	}
	sort.Strings(surfaces)

	for i, name := range surfaces {
		if b.now().Sub(start) > b.budget {
			// Over budget: put the untouched groups back and pick them up
			// on a follow-up flush instead of blocking this frame further.
			for _, pending := range surfaces[i:] {
				for _, w := range groups[pending] {
					b.requeueLocked(w)
				}
			}
			b.followUp = true
			break
		}
		b.applyGroupLocked(groups[name])
	}

	b.recordFlushDuration(b.now().Sub(start))
}

func (b *Batcher) applyGroupLocked(writes []*Write) {
	if len(writes) >= b.composite {
		props := make(map[string]string, len(writes))
		for _, w := range writes {
			props[w.Property] = w.Value
		}
		err := applyComposite(writes[0].Surface, props)
		if err == nil {
			b.stats.Composite++
			b.stats.Applied += uint64(len(writes))
			return
		}
		b.stats.Fallbacks++
		b.log.Printf("composite write to %s failed, falling back per property: %v", writes[0].Surface.Name(), err)
	}
	// Small group, or composite failed: individual writes with per-property
	// containment so one bad property never discards the surface's batch.
	for _, w := range writes {
		if err := w.Surface.SetProperty(w.Property, w.Value); err != nil {
			b.stats.ApplyErrors++
			b.log.Printf("write %s/%s from %s: %v", w.Surface.Name(), w.Property, w.Source, err)
			continue
		}
		b.stats.Applied++
		b.stats.Individual++
	}
}

// applyComposite isolates a misbehaving surface implementation: a panic in
// SetPropertyText is reported as an error, not propagated into the tick.
func applyComposite(s Surface, props map[string]string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("composite apply panic: %v", r)
		}
	}()
	return s.SetPropertyText(props)
}

// requeueLocked restores a deferred write through the normal conflict rule,
// so anything enqueued meanwhile still wins on priority or recency.
func (b *Batcher) requeueLocked(w *Write) {
	key := pendingKey(w.Surface.Name(), w.Property)
	existing, ok := b.pending[key]
	if ok && !wins(w, existing) {
		b.stats.Dropped++
		return
	}
	b.pending[key] = w
	b.stats.Requeued++
}

func (b *Batcher) recordFlushDuration(d time.Duration) {
	ms := d.Milliseconds()
	switch {
	case ms < 1:
		b.stats.FlushHistogram[0]++
	case ms < 2:
		b.stats.FlushHistogram[1]++
	case ms < 4:
		b.stats.FlushHistogram[2]++
	case ms < 8:
		b.stats.FlushHistogram[3]++
	case ms < 16:
		b.stats.FlushHistogram[4]++
	default:
		b.stats.FlushHistogram[5]++
	}
}

// QueueDepth returns the number of pending writes.
func (b *Batcher) QueueDepth() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Pending reports whether a write is queued for the given key; diagnostics
// and tests only.
func (b *Batcher) Pending(surface, property string) (Write, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	w, ok := b.pending[pendingKey(surface, property)]
	if !ok {
		return Write{}, false
	}
	return *w, true
}

// Stats returns a copy of the counters.
func (b *Batcher) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats
}

func pendingKey(surface, property string) string {
	return surface + "\x00" + property
}
