package linterpool

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"analysisbridge/internal/diagnostic"
)

// ErrQueueTimeout is returned when a request waits longer than
// QueueTimeout for a free concurrency slot.
var ErrQueueTimeout = errors.New("linterpool: timed out waiting for a free slot")

// ErrShutdown is returned to any request still queued or running when
// Shutdown is called.
var ErrShutdown = errors.New("linterpool: pool shut down")

// Pool bounds concurrent ephemeral linter processes with a semaphore.
type Pool struct {
	cfg Config
	sem chan struct{}

	mu      sync.Mutex
	running map[*trackedCmd]struct{}
	closed  bool
	closeCh chan struct{}
}

type trackedCmd struct {
	kill func()
}

// New creates a pool ready to accept Lint calls.
func New(cfg Config) *Pool {
	cfg = cfg.withDefaults()
	return &Pool{
		cfg:     cfg,
		sem:     make(chan struct{}, cfg.MaxConcurrency),
		running: make(map[*trackedCmd]struct{}),
		closeCh: make(chan struct{}),
	}
}

// UpdateConfig swaps the config used by requests issued from this point
// on; in-flight requests already hold their own argv and are unaffected.
func (p *Pool) UpdateConfig(cfg Config) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cfg = cfg.withDefaults()
	cfg.MaxConcurrency = p.cfg.MaxConcurrency // semaphore capacity is fixed at construction
	p.cfg = cfg
}

// RunningCount returns the number of ephemeral linter processes currently
// in flight, for the inspector's composed query.
func (p *Pool) RunningCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.running)
}

// Lint spawns one linter process for content, waits for it to exit, and
// parses its diagnostics.
func (p *Pool) Lint(ctx context.Context, uri, content string) ([]diagnostic.Diagnostic, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrShutdown
	}
	cfg := p.cfg
	p.mu.Unlock()

	select {
	case p.sem <- struct{}{}:
	case <-time.After(cfg.QueueTimeout):
		return nil, ErrQueueTimeout
	case <-p.closeCh:
		return nil, ErrShutdown
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-p.sem }()

	return p.run(ctx, cfg, uri, content)
}

func (p *Pool) run(ctx context.Context, cfg Config, uri, content string) ([]diagnostic.Diagnostic, error) {
	runCtx, cancel := context.WithTimeout(ctx, cfg.ProcessTimeout)
	defer cancel()

	cmd := newCommand(runCtx, cfg.BinaryPath, cfg.args(uri))
	cmd.Stdin = strings.NewReader(content)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	tracked := &trackedCmd{kill: func() {
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
	}}
	p.trackStart(tracked)
	defer p.trackEnd(tracked)

	runErr := cmd.Run()
	exitCode := exitCodeOf(cmd, runErr)

	select {
	case <-p.closeCh:
		return nil, ErrShutdown
	default:
	}

	return p.interpret(exitCode, stdout.Bytes(), runErr, stderr.String())
}

// interpret applies the exit-code policy: 0 and 1 are success; higher
// codes with no stdout are failures; higher codes with stdout are
// tolerated and parsed anyway. A process that could not be started or was
// killed by a signal (exit code -1) is a failure.
func (p *Pool) interpret(exitCode int, stdout []byte, runErr error, stderr string) ([]diagnostic.Diagnostic, error) {
	if exitCode < 0 {
		return nil, fmt.Errorf("linterpool: run: %w", runErr)
	}
	if exitCode > 1 && len(bytes.TrimSpace(stdout)) == 0 {
		if stderr != "" {
			return nil, fmt.Errorf("linterpool: exit %d: %s", exitCode, strings.TrimSpace(stderr))
		}
		return nil, fmt.Errorf("linterpool: exit %d", exitCode)
	}

	trimmed := bytes.TrimSpace(stdout)
	if len(trimmed) == 0 {
		return nil, nil
	}

	if diags, err := parseJSON(trimmed); err == nil {
		return diags, nil
	}
	return parseLines(strings.Split(string(trimmed), "\n")), nil
}

func (p *Pool) trackStart(t *trackedCmd) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.running[t] = struct{}{}
}

func (p *Pool) trackEnd(t *trackedCmd) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.running, t)
}

// Shutdown kills every running process immediately and fails anything
// still queued for a slot.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	running := make([]*trackedCmd, 0, len(p.running))
	for t := range p.running {
		running = append(running, t)
	}
	p.mu.Unlock()

	close(p.closeCh)
	for _, t := range running {
		t.kill()
	}
}
