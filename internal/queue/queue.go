// Package queue implements the bridge's bounded-concurrency priority
// queue: strict priority with FIFO-within-priority ordering, and a dedup
// rule that supersedes an undispatched request for the same uri rather
// than queuing both.
package queue

import (
	"container/heap"
	"errors"
	"sync"
)

// Priority mirrors spec's QueueItem.priority; lower values run first.
type Priority int

const (
	PriorityActive     Priority = 0
	PriorityOpen       Priority = 1
	PriorityBackground Priority = 2
)

// ErrSuperseded is the error a completion is failed with when a newer
// request for the same uri arrives before the old one is dispatched.
var ErrSuperseded = errors.New("queue: request superseded by a newer request for the same uri")

// ErrShutdown is the error every queued completion is failed with on
// shutdown.
var ErrShutdown = errors.New("queue: shutdown, request never dispatched")

// Completion is a one-shot promise resolved exactly once, by whichever of
// Resolve/Fail runs first.
type Completion struct {
	once sync.Once
	ch   chan outcome
}

type outcome struct {
	value interface{}
	err   error
}

// NewCompletion creates an unresolved completion handle.
func NewCompletion() *Completion {
	return &Completion{ch: make(chan outcome, 1)}
}

// Resolve delivers value to the waiter. A no-op if already resolved.
func (c *Completion) Resolve(value interface{}) {
	c.once.Do(func() { c.ch <- outcome{value: value} })
}

// Fail delivers err to the waiter. A no-op if already resolved.
func (c *Completion) Fail(err error) {
	c.once.Do(func() { c.ch <- outcome{err: err} })
}

// Wait blocks until the completion is resolved.
func (c *Completion) Wait() (interface{}, error) {
	o := <-c.ch
	return o.value, o.err
}

// Item is one queued analysis request.
type Item struct {
	URI          string
	Content      []byte
	Priority     Priority
	Force        bool
	Completion   *Completion
	EnqueuedAtMS int64

	index int // heap bookkeeping, maintained by container/heap callbacks
}

// Queue is a thread-safe priority queue with at-most-one-item-per-uri dedup.
type Queue struct {
	mu    sync.Mutex
	cond  *sync.Cond
	items itemHeap
	byURI map[string]*Item
}

// New creates an empty queue.
func New() *Queue {
	q := &Queue{byURI: make(map[string]*Item)}
	q.cond = sync.NewCond(&q.mu)
	heap.Init(&q.items)
	return q
}

// Push enqueues item, superseding any not-yet-dispatched item already
// queued for the same uri: the old item's completion is failed with
// ErrSuperseded and it is removed before the new item is pushed.
func (q *Queue) Push(item *Item) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if old, ok := q.byURI[item.URI]; ok {
		heap.Remove(&q.items, old.index)
		delete(q.byURI, item.URI)
		old.Completion.Fail(ErrSuperseded)
	}

	heap.Push(&q.items, item)
	q.byURI[item.URI] = item
	q.cond.Signal()
}

// Pop blocks until an item is available, then removes and returns the
// highest-priority, oldest-enqueued item.
func (q *Queue) Pop() *Item {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.items.Len() == 0 {
		q.cond.Wait()
	}
	item := heap.Pop(&q.items).(*Item)
	delete(q.byURI, item.URI)
	return item
}

// TryPop is like Pop but returns nil immediately if the queue is empty.
func (q *Queue) TryPop() *Item {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.items.Len() == 0 {
		return nil
	}
	item := heap.Pop(&q.items).(*Item)
	delete(q.byURI, item.URI)
	return item
}

// CancelByPriority fails and removes every currently-queued item at the
// given priority level, a bulk generalization of the per-uri supersede
// rule in Push. Returns the number of items cancelled.
func (q *Queue) CancelByPriority(priority Priority) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	var kept itemHeap
	cancelled := 0
	for _, item := range q.items {
		if item.Priority == priority {
			delete(q.byURI, item.URI)
			item.Completion.Fail(ErrSuperseded)
			cancelled++
			continue
		}
		item.index = len(kept)
		kept = append(kept, item)
	}
	q.items = kept
	heap.Init(&q.items)
	return cancelled
}

// Len returns the number of queued (not yet dispatched) items.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}

// DrainWithError fails every queued item's completion with err and empties
// the queue. Used by shutdown.
func (q *Queue) DrainWithError(err error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, item := range q.items {
		item.Completion.Fail(err)
	}
	q.items = nil
	q.byURI = make(map[string]*Item)
}

// itemHeap implements heap.Interface: lower Priority value first, then
// earlier EnqueuedAtMS (FIFO within a priority level).
type itemHeap []*Item

func (h itemHeap) Len() int { return len(h) }

func (h itemHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority < h[j].Priority
	}
	return h[i].EnqueuedAtMS < h[j].EnqueuedAtMS
}

func (h itemHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *itemHeap) Push(x interface{}) {
	item := x.(*Item)
	item.index = len(*h)
	*h = append(*h, item)
}

func (h *itemHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*h = old[:n-1]
	return item
}
