package checkerpool

import (
	"context"
	"testing"
	"time"
)

func TestAnalyzeRoundTrip(t *testing.T) {
	p, err := Start(Config{BinaryPath: "testdata/fake_checker.sh", PoolSize: 1, FileTimeout: 2 * time.Second, HealthEvery: time.Hour, LivenessEvery: time.Hour})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Shutdown()

	res, err := p.Analyze(context.Background(), "a.sg", "let x = 1;")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(res.Diagnostics) != 1 || res.Diagnostics[0].Message != "unused variable" {
		t.Fatalf("unexpected diagnostics: %+v", res.Diagnostics)
	}
	if len(res.Imports) != 1 || res.Imports[0] != "b.sg" {
		t.Fatalf("expected imports [b.sg], got %v", res.Imports)
	}
}

func TestTypeInfoQuery(t *testing.T) {
	p, err := Start(Config{BinaryPath: "testdata/fake_checker.sh", PoolSize: 1, FileTimeout: 2 * time.Second, HealthEvery: time.Hour, LivenessEvery: time.Hour})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Shutdown()

	info, err := p.TypeInfoQuery(context.Background(), "a.sg", "x", 1, 1)
	if err != nil {
		t.Fatalf("TypeInfoQuery: %v", err)
	}
	if info == nil || info.TypeName != "Int" {
		t.Fatalf("expected TypeName Int, got %+v", info)
	}
}

func TestCompletionsQuerySucceeds(t *testing.T) {
	p, err := Start(Config{BinaryPath: "testdata/fake_checker.sh", PoolSize: 1, FileTimeout: 2 * time.Second, HealthEvery: time.Hour, LivenessEvery: time.Hour})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Shutdown()

	_, err = p.CompletionsQuery(context.Background(), "a.sg", "x", 1, 1)
	if err != nil {
		t.Fatalf("expected completions to succeed, got %v", err)
	}
}

func TestDispatchTimesOutWithoutKillingWorker(t *testing.T) {
	p, err := Start(Config{BinaryPath: "testdata/fake_checker_hang.sh", PoolSize: 1, FileTimeout: 50 * time.Millisecond, HealthEvery: time.Hour, LivenessEvery: time.Hour})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Shutdown()

	_, err = p.Analyze(context.Background(), "a.sg", "x")
	if err != ErrTimeout {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}

	workers := p.Workers()
	if len(workers) != 1 {
		t.Fatalf("expected 1 worker, got %d", len(workers))
	}
	if workers[0].Busy {
		t.Fatalf("expected worker to be marked idle again after timeout")
	}
}

func TestLivenessRespawnsExitedWorker(t *testing.T) {
	p, err := Start(Config{BinaryPath: "testdata/fake_checker_crash.sh", PoolSize: 1, FileTimeout: time.Second, HealthEvery: time.Hour, LivenessEvery: 20 * time.Millisecond})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Shutdown()

	initialPID := p.Workers()[0].PID

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if got := p.Workers()[0].PID; got != initialPID && got != 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expected worker to be respawned with a new pid")
}

func TestShutdownIsIdempotent(t *testing.T) {
	p, err := Start(Config{BinaryPath: "testdata/fake_checker.sh", PoolSize: 1, FileTimeout: time.Second, HealthEvery: time.Hour, LivenessEvery: time.Hour})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	p.Shutdown()
	p.Shutdown() // must not panic or block
}
