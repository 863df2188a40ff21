// Package tracer implements a hierarchical span tracer: unlike a flat
// event stream, completed spans are linked into a parent/children tree so
// callers can walk a request's full execution shape after the fact.
package tracer

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

var globalSeq uint64

func nextSeq() uint64 {
	return atomic.AddUint64(&globalSeq, 1)
}

// Span is one node in the tree, active or completed.
type Span struct {
	ID         uint64
	ParentID   uint64
	Name       string
	Metadata   map[string]string
	StartedAt  time.Time
	EndedAt    time.Time
	DurationMS float64
	Children   []*Span

	seq uint64
}

// SlowObserver fires when a completed span's duration exceeds the
// configured threshold. Observer errors are swallowed.
type SlowObserver func(span *Span)

// Tracer holds active and completed spans plus a bounded root history.
type Tracer struct {
	mu sync.Mutex

	active    map[uint64]*Span
	completed map[uint64]*Span

	rootOrder    []uint64 // insertion order of root span ids, bounded by rootHistory
	rootHistory  int
	nextID       uint64
	slowThreshMS float64
	onSlow       SlowObserver

	heartbeat *heartbeatEmitter
}

// Option configures a new Tracer.
type Option func(*Tracer)

// WithRootHistory overrides the default 1000-root retention bound.
func WithRootHistory(n int) Option {
	return func(t *Tracer) {
		if n > 0 {
			t.rootHistory = n
		}
	}
}

// WithSlowThreshold sets the duration (ms) above which onSlow fires.
func WithSlowThreshold(ms float64, onSlow SlowObserver) Option {
	return func(t *Tracer) {
		t.slowThreshMS = ms
		t.onSlow = onSlow
	}
}

// New creates an empty tracer.
func New(opts ...Option) *Tracer {
	t := &Tracer{
		active:      make(map[uint64]*Span),
		completed:   make(map[uint64]*Span),
		rootHistory: 1000,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start creates and registers a new active span, returning its id.
func (t *Tracer) Start(name string, parentID uint64, metadata map[string]string) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.nextID++
	id := t.nextID

	span := &Span{
		ID:        id,
		ParentID:  parentID,
		Name:      name,
		Metadata:  metadata,
		StartedAt: time.Now(),
		seq:       nextSeq(),
	}
	t.active[id] = span

	if parentID == 0 {
		t.recordRootLocked(id)
	}
	return id
}

// Point records a zero-duration event as an immediate child of parentID,
// for occurrences that have no meaningful duration (a cache eviction, a
// truncated type expansion) but still belong in the span tree.
func (t *Tracer) Point(name string, parentID uint64, metadata map[string]string) {
	id := t.Start(name, parentID, metadata)
	t.End(id, nil)
}

// End closes an active span, computes its duration, and links it into its
// parent's children (active parent preferred, else completed parent). End
// on an unknown id is a no-op — callers must not crash on mismatched
// start/end pairs.
func (t *Tracer) End(id uint64, metadata map[string]string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	span, ok := t.active[id]
	if !ok {
		return
	}
	delete(t.active, id)

	span.EndedAt = time.Now()
	span.DurationMS = float64(span.EndedAt.Sub(span.StartedAt)) / float64(time.Millisecond)
	for k, v := range metadata {
		if span.Metadata == nil {
			span.Metadata = make(map[string]string)
		}
		span.Metadata[k] = v
	}

	if parent, ok := t.active[span.ParentID]; ok {
		parent.Children = append(parent.Children, span)
	} else if parent, ok := t.completed[span.ParentID]; ok {
		parent.Children = append(parent.Children, span)
	}

	t.completed[id] = span

	if span.DurationMS > t.slowThreshMS {
		t.fireSlow(span)
	}
}

func (t *Tracer) fireSlow(span *Span) {
	if t.onSlow == nil {
		return
	}
	defer func() { _ = recover() }()
	t.onSlow(span)
}

// recordRootLocked appends a root span id, purging the oldest root and its
// full subtree once rootHistory is exceeded. Caller must hold t.mu.
func (t *Tracer) recordRootLocked(id uint64) {
	t.rootOrder = append(t.rootOrder, id)
	if len(t.rootOrder) <= t.rootHistory {
		return
	}
	oldest := t.rootOrder[0]
	t.rootOrder = t.rootOrder[1:]
	t.purgeSubtreeLocked(oldest)
}

func (t *Tracer) purgeSubtreeLocked(id uint64) {
	span, ok := t.completed[id]
	if !ok {
		delete(t.active, id)
		return
	}
	delete(t.completed, id)
	for _, child := range span.Children {
		t.purgeSubtreeLocked(child.ID)
	}
}

// GetRecent returns up to limit most recently started root spans, most
// recent first, skipping roots that are still active or already purged.
func (t *Tracer) GetRecent(limit int) []*Span {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]*Span, 0, limit)
	for i := len(t.rootOrder) - 1; i >= 0 && len(out) < limit; i-- {
		id := t.rootOrder[i]
		if span, ok := t.completed[id]; ok {
			out = append(out, span)
		}
	}
	return out
}

// Snapshot returns the span for id from either map, or nil.
func (t *Tracer) Snapshot(id uint64) *Span {
	t.mu.Lock()
	defer t.mu.Unlock()
	if span, ok := t.completed[id]; ok {
		return span
	}
	return t.active[id]
}

// StartHeartbeat begins emitting a synthetic root span roughly every
// interval, so long quiet periods remain visible in GetRecent even absent
// real application spans. Returns a stop function.
func (t *Tracer) StartHeartbeat(interval time.Duration) func() {
	if interval <= 0 {
		return func() {}
	}
	hb := newHeartbeatEmitter(t, interval)
	t.heartbeat = hb
	hb.start()
	return hb.stop
}

// String renders a span subtree as indented text, for debugging/logging.
func (s *Span) String() string {
	var b strings.Builder
	s.writeIndented(&b, 0)
	return b.String()
}

func (s *Span) writeIndented(b *strings.Builder, depth int) {
	fmt.Fprintf(b, "%s%s (%.2fms)\n", strings.Repeat("  ", depth), s.Name, s.DurationMS)
	for _, c := range s.Children {
		c.writeIndented(b, depth+1)
	}
}
