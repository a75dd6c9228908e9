package taskq

import (
	"context"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Queue runs submitted tasks with bounded concurrency, lower priority
// values first. Each Submit returns a Future for that task's result.
//
// All methods are safe for concurrent use. Tasks may themselves submit
// more work; the only restriction is on extension hooks, which run on
// the dispatcher goroutine (see Extension).
type Queue[T any] struct {
	opts    Options
	limit   int
	logger  *zap.Logger
	metrics Metrics
	hooks   *hookRegistry[T]

	ops    chan op[T]
	closed chan struct{} // closed once Close or Shutdown is accepted
	done   chan struct{} // closed when the dispatcher exits

	// cold-path snapshots, written by the dispatcher
	waiting    atomic.Int64
	running    atomic.Int64
	submitted  atomic.Uint64
	completed  atomic.Uint64
	failed     atomic.Uint64
	timedOut   atomic.Uint64
	cleared    atomic.Uint64
	pausedFlag atomic.Bool
	closedFlag atomic.Bool
}

// New creates a queue and starts its dispatcher.
//
// Configuration is validated fail-fast: a negative Concurrency or
// Timeout is reported here rather than surfacing later as queue
// misbehavior.
func New[T any](opts Options) (*Queue[T], error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	opts.FillDefaults()

	q := &Queue[T]{
		opts:    opts,
		limit:   opts.Concurrency,
		logger:  opts.Logger,
		metrics: opts.Metrics,
		ops:     make(chan op[T]),
		closed:  make(chan struct{}),
		done:    make(chan struct{}),
	}
	q.hooks = newHookRegistry[T](q.logger)
	for _, e := range opts.Extensions {
		if e != nil {
			q.hooks.register(e)
		}
	}
	q.pausedFlag.Store(opts.StartPaused)

	go q.dispatcher()

	q.logger.Debug("queue started",
		zap.Int("concurrency", opts.Concurrency),
		zap.Duration("timeout", opts.Timeout),
		zap.Bool("start_paused", opts.StartPaused),
	)
	return q, nil
}

// Submit hands a task to the queue and returns its future. The task
// joins the waiting set ordered by priority (lower first, ties in
// submission order) and runs once a concurrency slot is free.
//
// Submit never blocks on queue capacity; the waiting set is unbounded.
// After Close or Shutdown it returns ErrQueueClosed. A Submit racing
// Close may instead return a future that rejects with ErrQueueClosed.
func (q *Queue[T]) Submit(task Task[T], opts ...SubmitOption) (*Future[T], error) {
	if task == nil {
		return nil, ErrNilTask
	}
	so := submitOptions{ctx: context.Background()}
	for _, o := range opts {
		o(&so)
	}
	if so.ctx == nil {
		so.ctx = context.Background()
	}

	id := uuid.New()
	e := &entry[T]{
		task: task,
		ctx:  so.ctx,
		fut:  newFuture[T](id),
		info: Info{ID: id, Priority: so.priority},
	}

	select {
	case <-q.closed:
		return nil, ErrQueueClosed
	default:
	}
	select {
	case q.ops <- op[T]{kind: opSubmit, e: e}:
		return e.fut, nil
	case <-q.closed:
		return nil, ErrQueueClosed
	}
}

// Pause suspends dispatch. Running tasks are unaffected; waiting tasks
// stay queued, in order, until Start. Pausing a paused queue is a
// no-op, as is pausing a closed one.
func (q *Queue[T]) Pause() {
	select {
	case <-q.closed:
		return
	default:
	}
	select {
	case q.ops <- op[T]{kind: opPause}:
	case <-q.closed:
	}
}

// Start resumes dispatch after Pause. Starting a queue that is not
// paused is a no-op.
func (q *Queue[T]) Start() {
	select {
	case <-q.closed:
		return
	default:
	}
	select {
	case q.ops <- op[T]{kind: opStart}:
	case <-q.closed:
	}
}

// Clear discards every waiting task and reports how many were dropped.
// Running tasks are unaffected.
//
// The futures of dropped tasks are never settled: a goroutine blocked
// in Result before Clear stays blocked forever. Callers that clear
// must therefore own every outstanding future, or use Future.Done /
// Future.Peek instead of blocking. Close rejects futures instead; use
// it when observers must unblock.
func (q *Queue[T]) Clear() int {
	reply := make(chan int, 1)
	select {
	case <-q.closed:
		return 0
	default:
	}
	select {
	case q.ops <- op[T]{kind: opClear, reply: reply}:
		return <-reply
	case <-q.closed:
		return 0
	}
}

// Empty returns a channel that is closed when the waiting set next
// becomes empty, immediately so when it already is. Each call gets its
// own channel; a channel closed once is never reused for later
// transitions.
func (q *Queue[T]) Empty() <-chan struct{} {
	ch := make(chan struct{})
	select {
	case q.ops <- op[T]{kind: opEmptyWait, waitc: ch}:
	case <-q.done:
		// dispatcher gone: the queue drained before it stopped
		close(ch)
	}
	return ch
}

// Idle returns a channel that is closed when the waiting set is empty
// and no task is running, immediately so when that already holds. Each
// call gets its own channel.
//
// Idle resolution is decided by the dispatcher between state
// transitions, so it cannot race a task that is about to start.
func (q *Queue[T]) Idle() <-chan struct{} {
	ch := make(chan struct{})
	select {
	case q.ops <- op[T]{kind: opIdleWait, waitc: ch}:
	case <-q.done:
		close(ch)
	}
	return ch
}

// Use registers an extension at runtime. Extensions registered through
// Options or Use observe events in registration order; events emitted
// before registration are not replayed.
func (q *Queue[T]) Use(e Extension) {
	if e == nil {
		return
	}
	select {
	case q.ops <- op[T]{kind: opUse, ext: e}:
	case <-q.done:
	}
}

// Close stops the queue: new submissions are rejected with
// ErrQueueClosed, every waiting task's future is rejected with
// ErrQueueClosed, and Close blocks until the completions of running
// tasks have been absorbed. Tasks whose Timeout already elapsed are not
// waited for. Close is idempotent, and calling it during a Shutdown
// drain rejects whatever backlog the drain has not reached yet.
//
// Close must not be called from inside a task function; the dispatcher
// would be waiting on that task's completion.
func (q *Queue[T]) Close() error {
	select {
	case q.ops <- op[T]{kind: opClose}:
	case <-q.done:
	}
	<-q.done
	return nil
}

// Shutdown drains the queue gracefully: new submissions are rejected,
// but waiting tasks keep dispatching until both the backlog and the
// running set are gone. A paused queue is resumed so the drain can
// make progress.
//
// When ctx expires first, Shutdown returns ctx.Err() while the drain
// continues in the background; Close can cut it short.
func (q *Queue[T]) Shutdown(ctx context.Context) error {
	select {
	case q.ops <- op[T]{kind: opDrain}:
	case <-q.closed:
	}
	select {
	case <-q.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns a point-in-time snapshot of queue state. Intended for
// cold-path observation.
func (q *Queue[T]) Stats() Stats {
	return Stats{
		Waiting:   int(q.waiting.Load()),
		Running:   int(q.running.Load()),
		Submitted: q.submitted.Load(),
		Completed: q.completed.Load(),
		Failed:    q.failed.Load(),
		TimedOut:  q.timedOut.Load(),
		Cleared:   q.cleared.Load(),
		Paused:    q.pausedFlag.Load(),
		Closed:    q.closedFlag.Load(),
	}
}

// Waiting returns the number of tasks not yet started.
func (q *Queue[T]) Waiting() int { return int(q.waiting.Load()) }

// Running returns the number of tasks currently executing.
func (q *Queue[T]) Running() int { return int(q.running.Load()) }
