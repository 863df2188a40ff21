package bridge

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"fortio.org/safecast"
	"golang.org/x/sync/errgroup"

	"analysisbridge/internal/checkerpool"
	"analysisbridge/internal/contenthash"
	"analysisbridge/internal/diagnostic"
	"analysisbridge/internal/expansion"
	"analysisbridge/internal/linterpool"
	"analysisbridge/internal/queue"
	"analysisbridge/internal/structlog"
	"analysisbridge/internal/tracer"
	"analysisbridge/internal/typecache"
)

// ErrShutdown is returned by Analyze once shutdown has begun.
var ErrShutdown = errors.New("bridge: shut down")

const defaultMaxConcurrent = 4

// Bridge is the dispatcher: it owns the result cache, dependency graph,
// tracer, structured logger, and both analyzer pools, and exposes the
// caller-facing contract from spec.md §4.1.
type Bridge struct {
	mu  sync.RWMutex
	cfg Config

	checker *checkerpool.Pool
	linter  *linterpool.Pool

	cache  *typecache.Cache[AnalysisResult]
	tracer *tracer.Tracer
	logger *structlog.Logger

	q             *queue.Queue
	maxConcurrent int
	workersDone   sync.WaitGroup

	started atomic.Bool
	closed  atomic.Bool

	activeCount atomic.Int64
	degraded    atomic.Bool

	recentMu    sync.Mutex
	recentDiags []AnalysisResult
}

// maxRecentDiagnostics bounds the history Inspect() reports, mirroring the
// tracer's bounded root history and the logger's ring buffer rather than
// growing without limit.
const maxRecentDiagnostics = 50

// New builds a bridge from its pools and cross-cutting components; the
// caller retains ownership of wiring pools up from Config before this
// call (see cmd/analysisbridged's serve command).
func New(cfg Config, checker *checkerpool.Pool, linter *linterpool.Pool, logger *structlog.Logger) *Bridge {
	ttl := time.Duration(cfg.Cache.TTLSeconds) * time.Second
	maxBytes := megabytesToBytes(cfg.Cache.MaxSizeMb)

	b := &Bridge{
		cfg:           cfg,
		checker:       checker,
		linter:        linter,
		cache:         typecache.New[AnalysisResult](cfg.Cache.MaxEntries, maxBytes, ttl),
		tracer:        tracer.New(tracer.WithRootHistory(cfg.Inspector.MaxTraceHistory)),
		logger:        logger,
		q:             queue.New(),
		maxConcurrent: defaultMaxConcurrent,
	}
	return b
}

// Start launches the bridge's fixed-size dispatch worker pool.
func (b *Bridge) Start() {
	if !b.started.CompareAndSwap(false, true) {
		return
	}
	for i := 0; i < b.maxConcurrent; i++ {
		b.workersDone.Add(1)
		go b.dispatchLoop()
	}
}

func (b *Bridge) dispatchLoop() {
	defer b.workersDone.Done()
	for {
		item := b.q.Pop()
		if item == nil {
			return
		}
		if strings.HasPrefix(item.URI, sentinelStopPrefix) {
			item.Completion.Resolve(nil)
			return
		}
		b.activeCount.Add(1)
		result := b.runAnalysis(item.URI, item.Content)
		b.activeCount.Add(-1)
		item.Completion.Resolve(result)
	}
}

// sentinelStopPrefix marks the maxConcurrent stop items Shutdown pushes to
// wake every dispatch worker out of its blocking Pop. Each carries a
// distinct URI (the prefix plus its worker index) so Queue.Push's
// dedup-by-uri rule cannot supersede one sentinel with another before a
// worker gets a chance to pop it.
const sentinelStopPrefix = "\x00shutdown:"

// Analyze is the caller-facing contract: cache-first, then fan out to
// whichever analyzers are enabled, merge, cache, and return.
func (b *Bridge) Analyze(ctx context.Context, uri string, content []byte, force bool, priority queue.Priority) (AnalysisResult, error) {
	if b.closed.Load() {
		return AnalysisResult{}, ErrShutdown
	}

	cfg := b.configSnapshot()
	hash := contenthash.Of(content)

	if !force && cfg.Cache.Enabled {
		if cached, ok := b.cache.Get(uri, hash); ok {
			cached.FromCache = true
			return cached, nil
		}
	}

	completion := queue.NewCompletion()
	b.q.Push(&queue.Item{
		URI:          uri,
		Content:      content,
		Priority:     priority,
		Force:        force,
		Completion:   completion,
		EnqueuedAtMS: time.Now().UnixMilli(),
	})

	value, err := completion.Wait()
	if err != nil {
		return AnalysisResult{}, err
	}
	result := value.(AnalysisResult)

	if cfg.Cache.Enabled {
		b.cache.Set(uri, hash, result)
	}
	return result, nil
}

// runAnalysis performs the fan-out/merge described in spec.md §4.1,
// bracketed by tracer spans, and never fails the caller outright — a
// failed analyzer contributes an empty diagnostic list.
func (b *Bridge) runAnalysis(uri string, content []byte) AnalysisResult {
	start := time.Now()
	cfg := b.configSnapshot()

	rootID := b.tracer.Start("analyzeFile", 0, map[string]string{"uri": uri})
	defer b.tracer.End(rootID, nil)

	var checkerDiags, linterDiags []diagnostic.Diagnostic
	var imports []string

	g := &errgroup.Group{}

	if cfg.Checker.Enabled && b.checker != nil {
		g.Go(func() error {
			childID := b.tracer.Start("checker.analyze", rootID, nil)
			defer b.tracer.End(childID, nil)

			res, err := b.checker.Analyze(context.Background(), uri, string(content))
			if err != nil {
				b.logWarn("checker analyze failed", map[string]string{"uri": uri, "error": err.Error()})
				return err
			}
			checkerDiags = res.Diagnostics
			imports = res.Imports
			return nil
		})
	}

	if cfg.Linter.Enabled && b.linter != nil {
		g.Go(func() error {
			childID := b.tracer.Start("linter.lint", rootID, nil)
			defer b.tracer.End(childID, nil)

			diags, err := b.linter.Lint(context.Background(), uri, string(content))
			if err != nil {
				b.logWarn("linter lint failed", map[string]string{"uri": uri, "error": err.Error()})
				return err
			}
			linterDiags = diags
			return nil
		})
	}

	_ = g.Wait() // settle-all: both branches always run to completion regardless of error

	if len(imports) > 0 {
		b.cache.ClearDependencies(uri)
		for _, dep := range imports {
			b.cache.AddDependency(uri, dep)
		}
	}

	merged := diagnostic.Merge(checkerDiags, linterDiags)
	diagnostic.Sort(merged)

	result := AnalysisResult{
		URI:         uri,
		Diagnostics: merged,
		DurationMS:  float64(time.Since(start)) / float64(time.Millisecond),
	}
	b.recordRecentDiagnostics(result)
	return result
}

// recordRecentDiagnostics appends result to the bounded history Inspect()
// reports, evicting the oldest entry once full.
func (b *Bridge) recordRecentDiagnostics(result AnalysisResult) {
	b.recentMu.Lock()
	defer b.recentMu.Unlock()
	b.recentDiags = append(b.recentDiags, result)
	if over := len(b.recentDiags) - maxRecentDiagnostics; over > 0 {
		b.recentDiags = b.recentDiags[over:]
	}
}

// recentDiagnosticsSnapshot returns a copy of the bounded recent-analysis
// history for Inspect().
func (b *Bridge) recentDiagnosticsSnapshot() []AnalysisResult {
	b.recentMu.Lock()
	defer b.recentMu.Unlock()
	out := make([]AnalysisResult, len(b.recentDiags))
	copy(out, b.recentDiags)
	return out
}

// TypeInfo queries the checker for the type at (line, col) and renders it
// as an indented tree, guarding against runaway recursion with a fresh
// expansion guard for this call (see FormatTypeInfo).
func (b *Bridge) TypeInfo(ctx context.Context, uri, content string, line, col int) (string, error) {
	if b.checker == nil {
		return "", errors.New("bridge: checker pool not enabled")
	}
	info, err := b.checker.TypeInfoQuery(ctx, uri, content, line, col)
	if err != nil {
		return "", err
	}
	if info == nil {
		return "", nil
	}
	return b.FormatTypeInfo(info), nil
}

// newExpansionGuard builds a fresh expansion guard for a single TypeInfo
// call. The stack it tracks is logically per-analysis, not bridge-wide: two
// concurrent TypeInfo calls must never share (and corrupt) each other's
// expansion stack or truncation state.
func (b *Bridge) newExpansionGuard() *expansion.Guard {
	return expansion.New(b.configSnapshot().Checker.MaxTypeDepth, b.onExpansionTruncated)
}

// Invalidate removes the cached result for uri (no cascade — callers that
// want cascading invalidation go through the dependency graph directly via
// InvalidateCascade).
func (b *Bridge) Invalidate(uri string) {
	b.cache.Invalidate(uri)
}

// InvalidateCascade drops the cache entry for uri and every file that
// transitively depends on it.
func (b *Bridge) InvalidateCascade(uri string) []string {
	return b.cache.InvalidateCascade(uri)
}

// ClearCache wipes the result cache and its dependency graph.
func (b *Bridge) ClearCache() {
	b.cache.Clear()
}

// CancelByType fails and removes every currently-queued item at the given
// priority, a bulk generalization of the per-uri supersede rule — useful
// when the editor closes a project and wants to drop all Background work
// at once.
func (b *Bridge) CancelByType(priority queue.Priority) int {
	return b.q.CancelByPriority(priority)
}

// UpdateConfig hot-applies new settings to the bridge and both pools;
// requests already dispatched are unaffected.
func (b *Bridge) UpdateConfig(cfg Config) {
	b.mu.Lock()
	b.cfg = cfg
	b.mu.Unlock()

	if b.checker != nil {
		b.checker.UpdateConfig(checkerpool.Config{
			BinaryPath:   cfg.Checker.BinaryPath,
			Args:         cfg.Checker.Flags,
			FileTimeout:  time.Duration(cfg.Checker.FileTimeoutMs) * time.Millisecond,
			MaxTypeDepth: cfg.Checker.MaxTypeDepth,
			MaxMemoryMb:  cfg.Checker.MaxMemoryMb,
		})
	}
	if b.linter != nil {
		disabled, warn, deny := cfg.Linter.RuleSlices()
		b.linter.UpdateConfig(linterpool.Config{
			BinaryPath:     cfg.Linter.BinaryPath,
			ConfigPath:     cfg.Linter.ConfigPath,
			ProcessTimeout: time.Duration(cfg.Linter.FileTimeoutMs) * time.Millisecond,
			DisabledRules:  disabled,
			WarnRules:      warn,
			DenyRules:      deny,
		})
	}
}

func (b *Bridge) configSnapshot() Config {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.cfg
}

// Shutdown drains the queue with a shutdown error, stops both pools, and
// waits for dispatch workers to exit.
func (b *Bridge) Shutdown() {
	if !b.closed.CompareAndSwap(false, true) {
		return
	}
	b.q.DrainWithError(queue.ErrShutdown)

	for i := 0; i < b.maxConcurrent; i++ {
		b.q.Push(&queue.Item{URI: sentinelStopPrefix + strconv.Itoa(i), Completion: queue.NewCompletion()})
	}
	b.workersDone.Wait()

	if b.checker != nil {
		b.checker.Shutdown()
	}
	if b.linter != nil {
		b.linter.Shutdown()
	}
	if b.logger != nil {
		b.logger.Close()
	}
}

// Status derives the server-status notification value from pool health
// and the active dispatch count.
func (b *Bridge) Status() ServerStatus {
	if b.closed.Load() {
		return StatusError
	}
	if !b.started.Load() {
		return StatusStarting
	}
	if b.degraded.Load() {
		return StatusDegraded
	}
	if b.activeCount.Load() > 0 {
		return StatusBusy
	}
	return StatusReady
}

// MarkDegraded records that a pool failed to start while the core keeps
// running, per spec.md §7's "degraded" status.
func (b *Bridge) MarkDegraded() {
	b.degraded.Store(true)
}

func (b *Bridge) logWarn(message string, fields map[string]string) {
	if b.logger != nil {
		b.logger.Warn(message, fields)
	}
}

func (b *Bridge) onExpansionTruncated(info expansion.Info) {
	b.logWarn("type expansion truncated", map[string]string{
		"typeName": info.TypeName,
		"depth":    strconv.Itoa(info.Depth),
		"maxDepth": strconv.Itoa(info.MaxDepth),
	})
	b.tracer.Point("expansion.truncated", 0, map[string]string{
		"typeName": info.TypeName,
		"depth":    strconv.Itoa(info.Depth),
	})
}

// FormatTypeInfo renders a TypeInfo tree as indented "name: extra" lines,
// walking Children depth-first behind the expansion guard so a
// self-referential or deeply nested generic stops at the guard's
// effective max depth instead of recursing forever.
func (b *Bridge) FormatTypeInfo(info *checkerpool.TypeInfo) string {
	var buf strings.Builder
	b.writeTypeInfo(&buf, b.newExpansionGuard(), info, 0)
	return buf.String()
}

func (b *Bridge) writeTypeInfo(buf *strings.Builder, guard *expansion.Guard, info *checkerpool.TypeInfo, depth int) {
	if info == nil {
		return
	}

	guard.Push(info.TypeName)
	defer guard.Pop()

	check := guard.Check(info.TypeName, depth)
	buf.WriteString(strings.Repeat("  ", depth))
	buf.WriteString(info.TypeName)
	if len(info.Extra) > 0 {
		buf.WriteString(" (")
		first := true
		for k, v := range info.Extra {
			if !first {
				buf.WriteString(", ")
			}
			first = false
			buf.WriteString(k)
			buf.WriteString("=")
			buf.WriteString(v)
		}
		buf.WriteString(")")
	}
	buf.WriteString("\n")

	if check.Truncated {
		buf.WriteString(strings.Repeat("  ", depth+1))
		buf.WriteString("... truncated\n")
		return
	}

	for _, child := range info.Children {
		b.writeTypeInfo(buf, guard, child, depth+1)
	}
}

// megabytesToBytes converts a config-file megabyte bound to bytes, falling
// back to 0 (unbounded) on overflow or a negative value.
func megabytesToBytes(mb int) int64 {
	scaled, err := safecast.Conv[int64](mb)
	if err != nil || scaled < 0 {
		return 0
	}
	return scaled * 1024 * 1024
}

