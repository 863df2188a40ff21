package tracer

import (
	"testing"
	"time"
)

func TestStartEndComputesDuration(t *testing.T) {
	tr := New()
	id := tr.Start("root", 0, nil)
	time.Sleep(time.Millisecond)
	tr.End(id, nil)

	span := tr.Snapshot(id)
	if span == nil {
		t.Fatalf("expected span to be present after End")
	}
	if span.DurationMS <= 0 {
		t.Fatalf("expected positive duration, got %f", span.DurationMS)
	}
}

func TestEndLinksChildIntoActiveParent(t *testing.T) {
	tr := New()
	root := tr.Start("analyzeFile", 0, nil)
	child := tr.Start("checker.analyze", root, nil)
	tr.End(child, nil)
	tr.End(root, nil)

	span := tr.Snapshot(root)
	if len(span.Children) != 1 || span.Children[0].Name != "checker.analyze" {
		t.Fatalf("expected root to have one checker.analyze child, got %+v", span.Children)
	}
}

func TestEndOnUnknownIDIsNoOp(t *testing.T) {
	tr := New()
	tr.End(9999, nil) // must not panic
}

func TestEndIdempotent(t *testing.T) {
	tr := New()
	id := tr.Start("root", 0, nil)
	tr.End(id, nil)
	tr.End(id, nil) // second call is a no-op, not a crash
}

func TestRootHistoryPurgesOldestSubtree(t *testing.T) {
	tr := New(WithRootHistory(2))

	var last uint64
	for i := 0; i < 3; i++ {
		id := tr.Start("root", 0, nil)
		tr.End(id, nil)
		last = id
	}

	recent := tr.GetRecent(10)
	if len(recent) != 2 {
		t.Fatalf("expected root history bounded to 2, got %d", len(recent))
	}
	if recent[0].ID != last {
		t.Fatalf("expected most recent root first, got %d want %d", recent[0].ID, last)
	}
}

func TestSlowObserverFiresAboveThreshold(t *testing.T) {
	var got *Span
	tr := New(WithSlowThreshold(0, func(s *Span) { got = s }))

	id := tr.Start("slow", 0, nil)
	time.Sleep(time.Millisecond)
	tr.End(id, nil)

	if got == nil {
		t.Fatalf("expected slow observer to fire")
	}
}

func TestSlowObserverPanicIsolated(t *testing.T) {
	tr := New(WithSlowThreshold(0, func(*Span) { panic("boom") }))
	id := tr.Start("slow", 0, nil)
	tr.End(id, nil) // must not panic out of End
}

func TestHeartbeatAddsRootSpans(t *testing.T) {
	tr := New()
	stop := tr.StartHeartbeat(5 * time.Millisecond)
	time.Sleep(25 * time.Millisecond)
	stop()

	recent := tr.GetRecent(10)
	if len(recent) == 0 {
		t.Fatalf("expected heartbeat to record at least one root span")
	}
	for _, s := range recent {
		if s.Name != "heartbeat" {
			t.Fatalf("expected heartbeat spans only, got %q", s.Name)
		}
	}
}
