package bridge

import (
	"analysisbridge/internal/checkerpool"
	"analysisbridge/internal/resultcache"
	"analysisbridge/internal/structlog"
	"analysisbridge/internal/tracer"
	"analysisbridge/internal/typecache"
)

// InspectorSnapshot is the aggregate returned by a single composed query:
// cache stats, the checker's worker list, the linter's running-process
// count, recent perf traces, recent log entries, and the active config.
// Never retained beyond the request that built it.
type InspectorSnapshot struct {
	CacheStats        resultcache.Stats
	Dependencies      []typecache.Edge
	CheckerWorkers    []checkerpool.State
	LinterRunning     int
	RecentTraces      []*tracer.Span
	RecentLogs        []structlog.Entry
	RecentDiagnostics []AnalysisResult
	Config            Config
	Status            ServerStatus
	AvgCheckerMs      float64
}

// Inspect composes a point-in-time snapshot of bridge state. It never
// blocks on analyzer I/O: everything it reads is already in memory.
func (b *Bridge) Inspect() InspectorSnapshot {
	snap := InspectorSnapshot{
		CacheStats:        b.cache.Stats(),
		Dependencies:      b.cache.DependencySnapshot(),
		Config:            b.configSnapshot(),
		Status:            b.Status(),
		RecentDiagnostics: b.recentDiagnosticsSnapshot(),
	}

	if b.checker != nil {
		snap.CheckerWorkers = b.checker.Workers()
		snap.AvgCheckerMs = b.checker.AvgResponseMs()
	}
	if b.linter != nil {
		snap.LinterRunning = b.linter.RunningCount()
	}
	if b.tracer != nil {
		snap.RecentTraces = b.tracer.GetRecent(b.configSnapshot().Inspector.MaxTraceHistory)
	}
	if b.logger != nil {
		snap.RecentLogs = b.logger.Recent(200)
	}
	return snap
}
