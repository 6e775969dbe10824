package agent

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/strandlabs/loom/internal/errdefs"
	"github.com/strandlabs/loom/pkg/models"
)

// QueueConfig configures the bounded tool dispatcher.
type QueueConfig struct {
	// MaxConcurrent limits the number of in-flight tool executions.
	// Default: 3
	MaxConcurrent int

	// DefaultTimeout bounds each call when the execution context carries
	// no timeout of its own.
	// Default: 30s
	DefaultTimeout time.Duration
}

// DefaultQueueConfig returns the default queue configuration.
func DefaultQueueConfig() *QueueConfig {
	return &QueueConfig{
		MaxConcurrent:  3,
		DefaultTimeout: 30 * time.Second,
	}
}

// Queue is a bounded-concurrency dispatcher for the tool calls issued
// inside a single turn. Calls dequeue highest priority first, FIFO
// within equal priority; at most MaxConcurrent run at any instant.
type Queue struct {
	registry *ToolRegistry
	config   *QueueConfig

	mu      sync.Mutex
	pending taskHeap
	running int
	seq     uint64
	aborted bool

	abortCh chan struct{}
	wg      sync.WaitGroup
}

// Handle is the future returned by Add. It completes when the call is
// done, timed out, or cancelled.
type Handle struct {
	ToolCallID string
	ToolName   string

	done   chan struct{}
	result *models.ExecutionResult
	err    error
}

// Wait blocks until the call completes or ctx is done.
func (h *Handle) Wait(ctx context.Context) (*models.ExecutionResult, error) {
	select {
	case <-h.done:
		return h.result, h.err
	case <-ctx.Done():
		return nil, errdefs.Wrap(errdefs.CodeToolCancelled, "wait cancelled", ctx.Err())
	}
}

// Done reports whether the call has completed.
func (h *Handle) Done() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

func (h *Handle) complete(result *models.ExecutionResult, err error) {
	h.result = result
	h.err = err
	close(h.done)
}

type task struct {
	name     string
	params   map[string]any
	ec       models.ExecutionContext
	priority int
	seq      uint64
	handle   *Handle
}

type taskHeap []*task

func (h taskHeap) Len() int { return len(h) }
func (h taskHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	return h[i].seq < h[j].seq
}
func (h taskHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *taskHeap) Push(x any)   { *h = append(*h, x.(*task)) }
func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return t
}

// NewQueue creates a queue over the given registry. A queue belongs to
// one turn; create a fresh one per turn.
func NewQueue(registry *ToolRegistry, config *QueueConfig) *Queue {
	if config == nil {
		config = DefaultQueueConfig()
	}
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 3
	}
	if config.DefaultTimeout <= 0 {
		config.DefaultTimeout = 30 * time.Second
	}
	return &Queue{
		registry: registry,
		config:   config,
		abortCh:  make(chan struct{}),
	}
}

// Add enqueues a call and returns a handle that completes when the call
// is done. toolCallID is the provider-chosen id carried through to the
// result pairing.
func (q *Queue) Add(toolCallID, name string, params map[string]any, ec models.ExecutionContext, priority int) *Handle {
	handle := &Handle{
		ToolCallID: toolCallID,
		ToolName:   name,
		done:       make(chan struct{}),
	}

	q.mu.Lock()
	if q.aborted {
		q.mu.Unlock()
		handle.complete(
			&models.ExecutionResult{Success: false, Error: "turn aborted", Timestamp: time.Now()},
			errdefs.New(errdefs.CodeToolCancelled, "turn aborted"))
		return handle
	}
	q.seq++
	heap.Push(&q.pending, &task{
		name:     name,
		params:   params,
		ec:       ec,
		priority: priority,
		seq:      q.seq,
		handle:   handle,
	})
	q.dispatchLocked()
	q.mu.Unlock()

	return handle
}

// dispatchLocked starts queued tasks while slots are free. Caller holds
// q.mu.
func (q *Queue) dispatchLocked() {
	for q.running < q.config.MaxConcurrent && q.pending.Len() > 0 {
		t := heap.Pop(&q.pending).(*task)
		q.running++
		q.wg.Add(1)
		go q.run(t)
	}
}

func (q *Queue) run(t *task) {
	defer func() {
		q.mu.Lock()
		q.running--
		q.dispatchLocked()
		q.mu.Unlock()
		q.wg.Done()
	}()

	timeout := t.ec.Timeout
	if timeout <= 0 {
		timeout = q.config.DefaultTimeout
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	type outcome struct {
		result *models.ExecutionResult
		err    error
	}
	resultCh := make(chan outcome, 1)
	go func() {
		result, err := q.registry.ExecuteTracked(ctx, t.name, t.params, t.ec)
		resultCh <- outcome{result, err}
	}()

	select {
	case out := <-resultCh:
		t.handle.complete(out.result, out.err)
	case <-ctx.Done():
		// The slot is released at expiry even if the body lingers.
		t.handle.complete(
			&models.ExecutionResult{Success: false, Output: "", Error: "execution timed out", Timestamp: time.Now()},
			errdefs.Newf(errdefs.CodeToolTimeout, "tool %s timed out after %s", t.name, timeout).
				WithContext("tool", t.name))
	case <-q.abortCh:
		cancel()
		t.handle.complete(
			&models.ExecutionResult{Success: false, Error: "turn aborted", Timestamp: time.Now()},
			errdefs.New(errdefs.CodeToolCancelled, "turn aborted"))
	}
}

// Abort cancels all not-yet-started calls, signals running ones, and
// returns once the queue has drained.
func (q *Queue) Abort() {
	q.mu.Lock()
	if q.aborted {
		q.mu.Unlock()
		q.wg.Wait()
		return
	}
	q.aborted = true
	cancelled := make([]*task, 0, q.pending.Len())
	for q.pending.Len() > 0 {
		cancelled = append(cancelled, heap.Pop(&q.pending).(*task))
	}
	close(q.abortCh)
	q.mu.Unlock()

	for _, t := range cancelled {
		t.handle.complete(
			&models.ExecutionResult{Success: false, Error: "turn aborted", Timestamp: time.Now()},
			errdefs.New(errdefs.CodeToolCancelled, "turn aborted"))
	}
	q.wg.Wait()
}

// InFlight returns the number of currently running calls.
func (q *Queue) InFlight() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.running
}
