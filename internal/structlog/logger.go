// Package structlog implements the process-local structured logging core:
// a fixed-capacity ring buffer plus a batch flusher that hands entries to
// one or more sinks (editor delivery, file rotation) on a timer or on
// explicit Flush.
package structlog

import (
	"sync"
	"time"
)

// FlushFunc receives a batch of entries for delivery. Errors are logged by
// the caller's sink wrapper, never propagated back into the logger.
type FlushFunc func(batch []Entry)

// shared holds the state a Logger and all of its With()-derived children
// hold in common: the ring, the flush timer, and the batch itself.
type shared struct {
	ring      *ring
	mu        sync.Mutex
	batch     []Entry
	onFlush   FlushFunc
	flushEach time.Duration
	timer     *time.Timer
	stopCh    chan struct{}
	stopOnce  sync.Once
	now       func() time.Time
}

// Logger is a ring buffer and batch flusher pair. Child loggers created via
// With share both with their parent, adding only their own static context.
type Logger struct {
	s      *shared
	static map[string]string
}

// Option configures a new Logger.
type Option func(*shared)

// WithCapacity overrides the default 2000-entry ring size.
func WithCapacity(n int) Option {
	return func(s *shared) {
		if n > 0 {
			s.ring = newRing(n)
		}
	}
}

// WithFlushInterval overrides the default 100ms batch timer.
func WithFlushInterval(d time.Duration) Option {
	return func(s *shared) {
		if d > 0 {
			s.flushEach = d
		}
	}
}

// New creates a logger with onFlush as its delivery callback and starts its
// batch timer.
func New(onFlush FlushFunc, opts ...Option) *Logger {
	s := &shared{
		ring:      newRing(2000),
		onFlush:   onFlush,
		flushEach: 100 * time.Millisecond,
		stopCh:    make(chan struct{}),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.timer = time.AfterFunc(s.flushEach, s.tick)
	return &Logger{s: s}
}

func (s *shared) tick() {
	s.flush()
	select {
	case <-s.stopCh:
		return
	default:
		s.timer.Reset(s.flushEach)
	}
}

// log appends an entry to the batch and the ring.
func (l *Logger) log(level Level, message string, fields map[string]string) {
	ctx := mergeContext(l.static, fields)
	e := Entry{
		TimestampMS: l.s.now().UnixMilli(),
		Level:       level,
		Message:     message,
		Context:     ctx,
	}

	l.s.ring.append(e)

	l.s.mu.Lock()
	l.s.batch = append(l.s.batch, e)
	l.s.mu.Unlock()
}

func mergeContext(static, extra map[string]string) map[string]string {
	if len(static) == 0 && len(extra) == 0 {
		return nil
	}
	out := make(map[string]string, len(static)+len(extra))
	for k, v := range static {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

// Trace, Debug, Info, Warn, Error, Fatal append an entry at the given
// level. Fatal does not terminate the process itself — callers that need
// that own the exit, the logger only records the entry.
func (l *Logger) Trace(message string, fields map[string]string) { l.log(LevelTrace, message, fields) }
func (l *Logger) Debug(message string, fields map[string]string) { l.log(LevelDebug, message, fields) }
func (l *Logger) Info(message string, fields map[string]string)  { l.log(LevelInfo, message, fields) }
func (l *Logger) Warn(message string, fields map[string]string)  { l.log(LevelWarn, message, fields) }
func (l *Logger) Error(message string, fields map[string]string) { l.log(LevelError, message, fields) }
func (l *Logger) Fatal(message string, fields map[string]string) { l.log(LevelFatal, message, fields) }

func (s *shared) flush() {
	s.mu.Lock()
	if len(s.batch) == 0 {
		s.mu.Unlock()
		return
	}
	batch := s.batch
	s.batch = nil
	s.mu.Unlock()

	if s.onFlush != nil {
		s.onFlush(batch)
	}
}

// Flush forces immediate delivery of the current batch.
func (l *Logger) Flush() {
	l.s.flush()
}

// Recent returns up to limit of the most recently logged entries,
// regardless of whether they have been flushed.
func (l *Logger) Recent(limit int) []Entry {
	return l.s.ring.recent(limit)
}

// With returns a child logger sharing this logger's ring and flusher but
// carrying an additional static context merged into every entry it emits.
func (l *Logger) With(context map[string]string) *Logger {
	return &Logger{s: l.s, static: mergeContext(l.static, context)}
}

// Close stops the batch timer and flushes any remaining entries. Safe to
// call multiple times and safe to call from any child logger in the same
// family — the underlying timer and stop channel are stopped exactly once.
func (l *Logger) Close() {
	l.s.stopOnce.Do(func() {
		if l.s.timer != nil {
			l.s.timer.Stop()
		}
		close(l.s.stopCh)
	})
	l.Flush()
}
