package checkerpool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
)

// ErrTimeout is returned when a request exceeds its FileTimeout budget,
// including time spent waiting for an idle worker.
var ErrTimeout = errors.New("checkerpool: request timed out")

// ErrWorkerExited is returned when the worker handling a request exits
// before replying.
var ErrWorkerExited = errors.New("checkerpool: worker process exited before replying")

const (
	shutdownGrace = time.Second
	shutdownForce = 5 * time.Second
)

// Pool manages a fixed-size set of persistent checker worker processes.
type Pool struct {
	mu  sync.Mutex
	cfg Config

	workers     []*worker
	idle        chan *worker
	respawning  map[int]bool
	closed      bool
	stopHealth  chan struct{}
	stopLivenes chan struct{}

	avgMu  sync.Mutex
	avgMs  float64
	haveMA bool
}

func newID() string {
	return uuid.NewString()
}

// Start spawns PoolSize workers and begins the health and liveness timers.
func Start(cfg Config) (*Pool, error) {
	cfg = cfg.withDefaults()

	p := &Pool{
		cfg:         cfg,
		workers:     make([]*worker, cfg.PoolSize),
		idle:        make(chan *worker, cfg.PoolSize),
		respawning:  make(map[int]bool),
		stopHealth:  make(chan struct{}),
		stopLivenes: make(chan struct{}),
	}

	for slot := 0; slot < cfg.PoolSize; slot++ {
		w, err := spawnWorker(cfg, slot)
		if err != nil {
			p.Shutdown()
			return nil, fmt.Errorf("checkerpool: start worker %d: %w", slot, err)
		}
		p.workers[slot] = w
		p.idle <- w
	}

	go p.healthLoop()
	go p.livenessLoop()

	return p, nil
}

// UpdateConfig adjusts timeouts and flags used for new requests; any
// request already dispatched keeps the deadline it started with.
func (p *Pool) UpdateConfig(cfg Config) {
	p.mu.Lock()
	defer p.mu.Unlock()
	spawnCfg := cfg.withDefaults()
	spawnCfg.PoolSize = p.cfg.PoolSize // pool size changes require a restart, not a hot config swap
	p.cfg = spawnCfg
}

func (p *Pool) configSnapshot() Config {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cfg
}

// Analyze dispatches an analyze request and translates the response into a
// Result, including the supplemental import list.
func (p *Pool) Analyze(ctx context.Context, uri, content string) (Result, error) {
	resp, err := p.dispatch(ctx, request{ID: newID(), Type: reqAnalyze, URI: uri, Content: content}, uri)
	if err != nil {
		return Result{}, err
	}
	if resp.Type == respError {
		return Result{}, fmt.Errorf("checkerpool: %s", resp.Error)
	}

	out := Result{Imports: resp.Imports}
	for _, d := range resp.Diagnostics {
		out.Diagnostics = append(out.Diagnostics, d.toDiagnostic())
	}
	return out, nil
}

// TypeInfoQuery issues a single-shot typeInfo request.
func (p *Pool) TypeInfoQuery(ctx context.Context, uri, content string, line, col int) (*TypeInfo, error) {
	resp, err := p.dispatch(ctx, request{ID: newID(), Type: reqTypeInfo, URI: uri, Content: content, Line: line, Column: col}, uri)
	if err != nil {
		return nil, err
	}
	if resp.Type == respError {
		return nil, fmt.Errorf("checkerpool: %s", resp.Error)
	}
	return resp.TypeInfo, nil
}

// CompletionsQuery issues a single-shot completions request.
func (p *Pool) CompletionsQuery(ctx context.Context, uri, content string, line, col int) ([]Completion, error) {
	resp, err := p.dispatch(ctx, request{ID: newID(), Type: reqCompletions, URI: uri, Content: content, Line: line, Column: col}, uri)
	if err != nil {
		return nil, err
	}
	if resp.Type == respError {
		return nil, fmt.Errorf("checkerpool: %s", resp.Error)
	}
	return resp.Completions, nil
}

// dispatch acquires an idle worker (queuing FIFO via the idle channel's
// wait order), writes req, and waits for the matching response — all
// within a single FileTimeout budget that covers both queueing and the
// in-flight wait.
func (p *Pool) dispatch(ctx context.Context, req request, uri string) (response, error) {
	cfg := p.configSnapshot()
	deadline := time.Now().Add(cfg.FileTimeout)

	var w *worker
	select {
	case w = <-p.idle:
	case <-time.After(time.Until(deadline)):
		return response{}, ErrTimeout
	case <-ctx.Done():
		return response{}, ctx.Err()
	}

	w.drainStale()
	w.markBusy(uri)

	if err := w.send(req); err != nil {
		w.markIdle()
		return response{}, fmt.Errorf("checkerpool: write request: %w", err)
	}

	start := time.Now()
	select {
	case resp := <-w.respCh:
		p.recordLatency(time.Since(start))
		w.markIdle()
		p.idle <- w
		return resp, nil
	case <-w.exited:
		w.markIdle()
		return response{}, ErrWorkerExited
	case <-time.After(time.Until(deadline)):
		// Per spec: timeout fails the completion and frees the worker, but
		// does not kill the process — it may simply be slow.
		w.markIdle()
		p.idle <- w
		return response{}, ErrTimeout
	case <-ctx.Done():
		w.markIdle()
		p.idle <- w
		return response{}, ctx.Err()
	}
}

func (p *Pool) recordLatency(d time.Duration) {
	ms := float64(d) / float64(time.Millisecond)
	p.avgMu.Lock()
	defer p.avgMu.Unlock()
	if !p.haveMA {
		p.avgMs = ms
		p.haveMA = true
		return
	}
	p.avgMs = p.avgMs*0.8 + ms*0.2
}

// AvgResponseMs returns the rolling average response time, a read-only
// signal surfaced to the inspector; the pool never acts on it itself.
func (p *Pool) AvgResponseMs() float64 {
	p.avgMu.Lock()
	defer p.avgMu.Unlock()
	return p.avgMs
}

// healthLoop pings whichever workers are currently idle and records the
// ping time in lastHealthMs; replies are ignored, and nothing acts on a
// missing reply (process exit is handled by livenessLoop).
func (p *Pool) healthLoop() {
	cfg := p.configSnapshot()
	ticker := time.NewTicker(cfg.HealthEvery)
	defer ticker.Stop()
	for {
		select {
		case <-p.stopHealth:
			return
		case <-ticker.C:
			p.pingIdleWorkers()
		}
	}
}

func (p *Pool) pingIdleWorkers() {
	n := len(p.idle)
	for i := 0; i < n; i++ {
		select {
		case w := <-p.idle:
			w.mu.Lock()
			w.lastHealthMs = time.Now().UnixMilli()
			w.mu.Unlock()
			_ = w.send(request{ID: newID(), Type: reqHealth})
			p.idle <- w
		default:
			return
		}
	}
}

// livenessLoop periodically checks each worker's process is still alive,
// respawning any that exited outside of shutdown.
func (p *Pool) livenessLoop() {
	cfg := p.configSnapshot()
	ticker := time.NewTicker(cfg.LivenessEvery)
	defer ticker.Stop()
	for {
		select {
		case <-p.stopLivenes:
			return
		case <-ticker.C:
			p.checkLiveness()
		}
	}
}

func (p *Pool) checkLiveness() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	workers := append([]*worker(nil), p.workers...)
	p.mu.Unlock()

	for _, w := range workers {
		if w != nil && w.hasExited() {
			p.respawnSlot(w.slot)
		}
	}
}

// respawnSlot replaces the worker at slot, guarded so concurrent exit
// detections yield at most one spawn per slot.
func (p *Pool) respawnSlot(slot int) {
	p.mu.Lock()
	if p.closed || p.respawning[slot] {
		p.mu.Unlock()
		return
	}
	p.respawning[slot] = true
	cfg := p.cfg
	p.mu.Unlock()

	go func() {
		defer func() {
			p.mu.Lock()
			delete(p.respawning, slot)
			p.mu.Unlock()
		}()

		nw, err := spawnWorker(cfg, slot)
		if err != nil {
			return // next liveness tick retries since the guard was cleared
		}

		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			nw.kill()
			return
		}
		p.workers[slot] = nw
		p.mu.Unlock()

		p.idle <- nw // wakes whichever queued dispatch has waited longest
	}()
}

// Workers returns a snapshot of every worker's observable state, for the
// inspector.
func (p *Pool) Workers() []State {
	p.mu.Lock()
	workers := append([]*worker(nil), p.workers...)
	p.mu.Unlock()

	out := make([]State, 0, len(workers))
	for _, w := range workers {
		if w != nil {
			out = append(out, w.state())
		}
	}
	return out
}

// Shutdown asks every worker to exit gracefully, sends SIGTERM to any that
// have not exited within the grace period, and kills any still running
// after the force timeout.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	workers := append([]*worker(nil), p.workers...)
	p.mu.Unlock()

	close(p.stopHealth)
	close(p.stopLivenes)

	var wg sync.WaitGroup
	for _, w := range workers {
		if w == nil {
			continue
		}
		wg.Add(1)
		go func(w *worker) {
			defer wg.Done()
			shutdownWorker(w)
		}(w)
	}
	wg.Wait()
}

func shutdownWorker(w *worker) {
	if w.hasExited() {
		return
	}
	_ = w.send(request{ID: newID(), Type: reqShutdown})

	select {
	case <-w.exited:
		return
	case <-time.After(shutdownGrace):
	}

	if w.cmd.Process != nil {
		_ = w.cmd.Process.Signal(syscall.SIGTERM)
	}

	select {
	case <-w.exited:
		return
	case <-time.After(shutdownForce):
	}

	w.kill()
}
