package bridge

import (
	"context"
	"strings"
	"testing"
	"time"

	"analysisbridge/internal/checkerpool"
	"analysisbridge/internal/linterpool"
	"analysisbridge/internal/queue"
)

func newTestBridge(t *testing.T, checkerBin, linterBin string) *Bridge {
	t.Helper()

	cp, err := checkerpool.Start(checkerpool.Config{
		BinaryPath:    checkerBin,
		PoolSize:      1,
		FileTimeout:   2 * time.Second,
		HealthEvery:   time.Hour,
		LivenessEvery: time.Hour,
	})
	if err != nil {
		t.Fatalf("checkerpool.Start: %v", err)
	}

	lp := linterpool.New(linterpool.Config{BinaryPath: linterBin, MaxConcurrency: 2})

	cfg := DefaultConfig()
	b := New(cfg, cp, lp, nil)
	b.Start()
	t.Cleanup(b.Shutdown)
	return b
}

func TestAnalyzeMergesCheckerAndLinterDiagnostics(t *testing.T) {
	b := newTestBridge(t, "../checkerpool/testdata/fake_checker.sh", "../linterpool/testdata/fake_linter_json.sh")

	res, err := b.Analyze(context.Background(), "a.sg", []byte("let x = 1;"), false, queue.PriorityOpen)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(res.Diagnostics) != 2 {
		t.Fatalf("expected 2 merged diagnostics, got %d: %+v", len(res.Diagnostics), res.Diagnostics)
	}
	if res.Diagnostics[0].Message != "unused variable" {
		t.Fatalf("expected checker diagnostic first (line 1), got %q", res.Diagnostics[0].Message)
	}
	if res.Diagnostics[1].Message != "missing semicolon" {
		t.Fatalf("expected linter diagnostic second (line 2), got %q", res.Diagnostics[1].Message)
	}
	if res.FromCache {
		t.Fatalf("first analysis should not be marked as from cache")
	}
}

func TestAnalyzeSecondCallHitsCache(t *testing.T) {
	b := newTestBridge(t, "../checkerpool/testdata/fake_checker.sh", "../linterpool/testdata/fake_linter_json.sh")

	content := []byte("let x = 1;")
	if _, err := b.Analyze(context.Background(), "a.sg", content, false, queue.PriorityOpen); err != nil {
		t.Fatalf("first Analyze: %v", err)
	}
	res, err := b.Analyze(context.Background(), "a.sg", content, false, queue.PriorityOpen)
	if err != nil {
		t.Fatalf("second Analyze: %v", err)
	}
	if !res.FromCache {
		t.Fatalf("expected second analysis with identical content to hit the cache")
	}
}

func TestAnalyzeForceBypassesCache(t *testing.T) {
	b := newTestBridge(t, "../checkerpool/testdata/fake_checker.sh", "../linterpool/testdata/fake_linter_json.sh")

	content := []byte("let x = 1;")
	if _, err := b.Analyze(context.Background(), "a.sg", content, false, queue.PriorityOpen); err != nil {
		t.Fatalf("first Analyze: %v", err)
	}
	res, err := b.Analyze(context.Background(), "a.sg", content, true, queue.PriorityOpen)
	if err != nil {
		t.Fatalf("forced Analyze: %v", err)
	}
	if res.FromCache {
		t.Fatalf("force=true must bypass the cache")
	}
}

func TestAnalyzeRecordsDependenciesForCascadeInvalidation(t *testing.T) {
	b := newTestBridge(t, "../checkerpool/testdata/fake_checker.sh", "../linterpool/testdata/fake_linter_json.sh")

	content := []byte("let x = 1;")
	if _, err := b.Analyze(context.Background(), "a.sg", content, false, queue.PriorityOpen); err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	// fake_checker.sh reports a.sg imports b.sg; invalidating b.sg must
	// cascade to a.sg's cached entry.
	closure := b.InvalidateCascade("b.sg")
	found := false
	for _, uri := range closure {
		if uri == "a.sg" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected InvalidateCascade(b.sg) to include a.sg, got %v", closure)
	}
}

func TestAnalyzeAfterShutdownReturnsErrShutdown(t *testing.T) {
	b := newTestBridge(t, "../checkerpool/testdata/fake_checker.sh", "../linterpool/testdata/fake_linter_json.sh")
	b.Shutdown()

	_, err := b.Analyze(context.Background(), "a.sg", []byte("x"), false, queue.PriorityOpen)
	if err != ErrShutdown {
		t.Fatalf("expected ErrShutdown after Shutdown, got %v", err)
	}
}

func TestShutdownWakesEveryDispatchWorker(t *testing.T) {
	// Regression test: Shutdown pushes one stop sentinel per dispatch
	// worker. If they all shared the same uri, Queue.Push's per-uri
	// supersede rule would collapse most of them before a worker ever
	// popped one, leaving the rest blocked in Pop forever.
	cp, err := checkerpool.Start(checkerpool.Config{BinaryPath: "../checkerpool/testdata/fake_checker.sh", PoolSize: 1, FileTimeout: 2 * time.Second, HealthEvery: time.Hour, LivenessEvery: time.Hour})
	if err != nil {
		t.Fatalf("checkerpool.Start: %v", err)
	}
	lp := linterpool.New(linterpool.Config{BinaryPath: "../linterpool/testdata/fake_linter_json.sh", MaxConcurrency: 2})

	b := New(DefaultConfig(), cp, lp, nil)
	b.maxConcurrent = 8 // set before Start so every worker it launches is counted
	b.Start()

	done := make(chan struct{})
	go func() {
		b.Shutdown()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("Shutdown did not return: at least one dispatch worker is still blocked in Pop")
	}
}

func TestTypeInfoGuardIsIsolatedPerCall(t *testing.T) {
	// Regression test: a prior implementation shared one expansion.Guard
	// across every TypeInfo call. Running two deep, unrelated walks
	// concurrently must not let one call's stack influence the other's
	// truncation depth.
	b := newTestBridge(t, "../checkerpool/testdata/fake_checker.sh", "../linterpool/testdata/fake_linter_json.sh")

	buildChain := func(name string, depth int) *checkerpool.TypeInfo {
		var root *checkerpool.TypeInfo
		cur := &root
		for i := 0; i < depth; i++ {
			node := &checkerpool.TypeInfo{TypeName: name}
			*cur = node
			node.Children = append(node.Children, nil)
			cur = &node.Children[0]
		}
		return root
	}

	shallow := buildChain("Shallow", 3)
	deep := buildChain("Deep", 60)

	var shallowRendered, deepRendered string
	done := make(chan struct{}, 2)
	go func() { shallowRendered = b.FormatTypeInfo(shallow); done <- struct{}{} }()
	go func() { deepRendered = b.FormatTypeInfo(deep); done <- struct{}{} }()
	<-done
	<-done

	if strings.Contains(shallowRendered, "truncated") {
		t.Fatalf("shallow chain must not be truncated by a concurrent deep call, got %q", shallowRendered)
	}
	if !strings.Contains(deepRendered, "truncated") {
		t.Fatalf("expected the deep chain to be truncated, got %q", deepRendered)
	}
}

func TestStatusReflectsLifecycle(t *testing.T) {
	b := newTestBridge(t, "../checkerpool/testdata/fake_checker.sh", "../linterpool/testdata/fake_linter_json.sh")
	if got := b.Status(); got != StatusReady {
		t.Fatalf("expected StatusReady once started and idle, got %q", got)
	}
}

func TestInspectComposesCacheAndPoolState(t *testing.T) {
	b := newTestBridge(t, "../checkerpool/testdata/fake_checker.sh", "../linterpool/testdata/fake_linter_json.sh")

	if _, err := b.Analyze(context.Background(), "a.sg", []byte("let x = 1;"), false, queue.PriorityOpen); err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	snap := b.Inspect()
	if snap.CacheStats.Entries != 1 {
		t.Fatalf("expected 1 cache entry, got %d", snap.CacheStats.Entries)
	}
	if len(snap.CheckerWorkers) != 1 {
		t.Fatalf("expected 1 checker worker in snapshot, got %d", len(snap.CheckerWorkers))
	}
	found := false
	for _, e := range snap.Dependencies {
		if e.From == "a.sg" && e.To == "b.sg" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a.sg->b.sg dependency edge in snapshot, got %+v", snap.Dependencies)
	}
	if len(snap.RecentDiagnostics) != 1 || snap.RecentDiagnostics[0].URI != "a.sg" {
		t.Fatalf("expected 1 recent diagnostics entry for a.sg, got %+v", snap.RecentDiagnostics)
	}
}

func TestFormatTypeInfoWalksChildren(t *testing.T) {
	b := newTestBridge(t, "../checkerpool/testdata/fake_checker.sh", "../linterpool/testdata/fake_linter_json.sh")

	info := &checkerpool.TypeInfo{
		TypeName: "QuerySet[User]",
		Children: []*checkerpool.TypeInfo{
			{TypeName: "User", Extra: map[string]string{"kind": "struct"}},
		},
	}
	rendered := b.FormatTypeInfo(info)
	if !strings.Contains(rendered, "QuerySet[User]") || !strings.Contains(rendered, "User") {
		t.Fatalf("expected rendered output to contain both type names, got %q", rendered)
	}
}

func TestFormatTypeInfoTruncatesRunawayRecursion(t *testing.T) {
	b := newTestBridge(t, "../checkerpool/testdata/fake_checker.sh", "../linterpool/testdata/fake_linter_json.sh")

	// Build a chain deeper than the default guard's configured max so the
	// walk truncates instead of recursing without bound.
	var root *checkerpool.TypeInfo
	cur := &root
	for i := 0; i < 60; i++ {
		node := &checkerpool.TypeInfo{TypeName: "Wrap"}
		*cur = node
		node.Children = append(node.Children, nil)
		cur = &node.Children[0]
	}
	rendered := b.FormatTypeInfo(root)
	if !strings.Contains(rendered, "truncated") {
		t.Fatalf("expected a deep chain to be truncated, got %q", rendered)
	}
}

func TestCancelByTypeFailsQueuedBackgroundWork(t *testing.T) {
	b := newTestBridge(t, "../checkerpool/testdata/fake_checker.sh", "../linterpool/testdata/fake_linter_json.sh")

	completion := queue.NewCompletion()
	b.q.Push(&queue.Item{URI: "never-dispatched.sg", Priority: queue.PriorityBackground, Completion: completion, EnqueuedAtMS: time.Now().UnixMilli()})

	cancelled := b.CancelByType(queue.PriorityBackground)
	if cancelled < 1 {
		t.Fatalf("expected at least one cancelled background item, got %d", cancelled)
	}
	if _, err := completion.Wait(); err != queue.ErrSuperseded {
		t.Fatalf("expected cancelled completion to fail with ErrSuperseded, got %v", err)
	}
}
