package taskq

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

type opKind int

const (
	opSubmit opKind = iota
	opDone
	opPause
	opStart
	opClear
	opClose
	opDrain
	opEmptyWait
	opIdleWait
	opUse
)

// op is a single unit of dispatcher input. Submissions, completions,
// control calls and waiter registrations all travel through one
// unbuffered channel, so the dispatcher observes them in exactly the
// order callers issued them.
type op[T any] struct {
	kind  opKind
	e     *entry[T]     // opSubmit
	comp  completion[T] // opDone
	waitc chan struct{} // opEmptyWait, opIdleWait
	reply chan int      // opClear
	ext   Extension     // opUse
}

// completion carries a settled task back to the dispatcher so it can
// free the slot, update counters and fire hooks.
type completion[T any] struct {
	e        *entry[T]
	result   T
	err      error
	elapsed  time.Duration
	timedOut bool
}

// dispatcherState is everything the dispatcher goroutine owns. Nothing
// here is touched from outside that goroutine.
type dispatcherState[T any] struct {
	wq       *waitQueue[T]
	running  int
	paused   bool
	closing  bool
	draining bool

	emptyWaiters []chan struct{}
	idleWaiters  []chan struct{}
}

// dispatcher is the queue's single control goroutine. It owns the
// waiting heap, the running count, pause and close state, the hook
// registry and the waiter lists. Every external call becomes an op on
// q.ops, so state transitions happen in submission order and the queue
// state needs no locks.
//
// The goroutine exits only once the queue is closing and the last
// running task's completion has been absorbed.
func (q *Queue[T]) dispatcher() {
	defer close(q.done)

	st := &dispatcherState[T]{
		wq:     newWaitQueue[T](),
		paused: q.opts.StartPaused,
	}

	for {
		q.promote(st)
		if st.closing && st.running == 0 && st.wq.len() == 0 {
			q.logger.Debug("dispatcher stopped")
			return
		}

		o := <-q.ops
		switch o.kind {
		case opSubmit:
			q.handleSubmit(st, o.e)
		case opDone:
			q.handleDone(st, o.comp)
		case opPause:
			q.handlePause(st)
		case opStart:
			q.handleStart(st)
		case opClear:
			q.handleClear(st, o.reply)
		case opClose:
			q.handleClose(st)
		case opDrain:
			q.handleDrain(st)
		case opEmptyWait:
			if st.wq.len() == 0 {
				close(o.waitc)
			} else {
				st.emptyWaiters = append(st.emptyWaiters, o.waitc)
			}
		case opIdleWait:
			if st.wq.len() == 0 && st.running == 0 {
				close(o.waitc)
			} else {
				st.idleWaiters = append(st.idleWaiters, o.waitc)
			}
		case opUse:
			q.hooks.register(o.ext)
		}
	}
}

// promote starts waiting tasks while dispatch is enabled and a
// concurrency slot is free. Entries whose context was cancelled before
// they ever ran are settled here without consuming a slot.
func (q *Queue[T]) promote(st *dispatcherState[T]) {
	for !st.paused && st.wq.len() > 0 && (q.limit == 0 || st.running < q.limit) {
		e, ok := st.wq.pop()
		if !ok {
			break
		}
		q.waiting.Add(-1)

		if err := e.ctx.Err(); err != nil {
			var zero T
			e.fut.settle(zero, err)
			q.failed.Add(1)
			q.metrics.RecordFailure(0)
			q.metrics.SetDepth(st.wq.len(), st.running)
			q.logger.Debug("task skipped, context cancelled",
				zap.Stringer("task_id", e.info.ID),
				zap.Error(err),
			)
			q.hooks.emitFailed(e.info, err, 0)
			q.noteEmpty(st)
			q.noteIdle(st)
			continue
		}

		e.info.StartedAt = time.Now()
		st.running++
		q.running.Add(1)
		statPromoted(st.running)

		wait := e.info.StartedAt.Sub(e.info.EnqueuedAt)
		q.metrics.RecordStart(wait)
		q.metrics.SetDepth(st.wq.len(), st.running)
		q.logger.Debug("task started",
			zap.Stringer("task_id", e.info.ID),
			zap.Int("priority", e.info.Priority),
			zap.Duration("queue_wait", wait),
		)
		q.hooks.emitStarted(e.info)

		go q.runTask(e)

		q.noteEmpty(st)
	}
}

func (q *Queue[T]) handleSubmit(st *dispatcherState[T], e *entry[T]) {
	if st.closing {
		// lost the race against Close; reject through the future
		var zero T
		e.fut.settle(zero, ErrQueueClosed)
		return
	}
	e.info.EnqueuedAt = time.Now()
	st.wq.push(e)
	q.waiting.Add(1)
	q.submitted.Add(1)
	q.metrics.IncEnqueued()
	q.metrics.SetDepth(st.wq.len(), st.running)
	q.hooks.emitEnqueued(e.info)
}

func (q *Queue[T]) handleDone(st *dispatcherState[T], c completion[T]) {
	st.running--
	q.running.Add(-1)
	statAbsorbed()
	q.metrics.SetDepth(st.wq.len(), st.running)

	switch {
	case c.timedOut:
		q.timedOut.Add(1)
		q.metrics.RecordTimeout(c.elapsed)
		q.hooks.emitFailed(c.e.info, c.err, c.elapsed)
	case c.err != nil:
		q.failed.Add(1)
		q.metrics.RecordFailure(c.elapsed)
		q.logger.Debug("task failed",
			zap.Stringer("task_id", c.e.info.ID),
			zap.Duration("elapsed", c.elapsed),
			zap.Error(c.err),
		)
		q.hooks.emitFailed(c.e.info, c.err, c.elapsed)
	default:
		q.completed.Add(1)
		q.metrics.RecordSuccess(c.elapsed)
		q.logger.Debug("task completed",
			zap.Stringer("task_id", c.e.info.ID),
			zap.Duration("elapsed", c.elapsed),
		)
		q.hooks.emitCompleted(c.e.info, c.result, c.elapsed)
	}

	q.noteIdle(st)
}

func (q *Queue[T]) handlePause(st *dispatcherState[T]) {
	if st.closing || st.paused {
		return
	}
	st.paused = true
	q.pausedFlag.Store(true)
	q.logger.Info("queue paused", zap.Int("waiting", st.wq.len()), zap.Int("running", st.running))
}

func (q *Queue[T]) handleStart(st *dispatcherState[T]) {
	if st.closing || !st.paused {
		return
	}
	st.paused = false
	q.pausedFlag.Store(false)
	q.logger.Info("queue resumed", zap.Int("waiting", st.wq.len()))
}

func (q *Queue[T]) handleClear(st *dispatcherState[T], reply chan int) {
	// futures of dropped entries are deliberately left unsettled
	n := len(st.wq.drain())
	if n > 0 {
		q.waiting.Add(int64(-n))
		q.cleared.Add(uint64(n))
		q.metrics.AddCleared(int64(n))
		q.metrics.SetDepth(0, st.running)
		q.noteEmpty(st)
		q.noteIdle(st)
	}
	q.logger.Info("queue cleared", zap.Int("dropped", n))
	reply <- n
}

// handleClose rejects the backlog and begins teardown. Called for
// Close, and again when Close escalates an in-progress Shutdown drain.
func (q *Queue[T]) handleClose(st *dispatcherState[T]) {
	if st.closing && !st.draining {
		return
	}
	st.draining = false
	if !st.closing {
		st.closing = true
		q.closedFlag.Store(true)
		close(q.closed)
	}

	dropped := st.wq.drain()
	for _, e := range dropped {
		var zero T
		e.fut.settle(zero, ErrQueueClosed)
	}
	if n := len(dropped); n > 0 {
		q.waiting.Add(int64(-n))
		q.cleared.Add(uint64(n))
		q.metrics.AddCleared(int64(n))
		q.metrics.SetDepth(0, st.running)
		q.noteEmpty(st)
		q.noteIdle(st)
	}
	q.logger.Info("queue closing",
		zap.Int("rejected", len(dropped)),
		zap.Int("running", st.running),
	)
}

// handleDrain begins a graceful shutdown: no new submissions, but the
// backlog keeps dispatching until everything has run. A paused queue is
// resumed, otherwise the drain could never finish.
func (q *Queue[T]) handleDrain(st *dispatcherState[T]) {
	if st.closing {
		return
	}
	st.closing = true
	st.draining = true
	st.paused = false
	q.pausedFlag.Store(false)
	q.closedFlag.Store(true)
	close(q.closed)
	q.logger.Info("queue draining",
		zap.Int("waiting", st.wq.len()),
		zap.Int("running", st.running),
	)
}

// noteEmpty fires empty notifications if the waiting set has just
// drained. Call sites are the transitions that can empty it: a pop, a
// clear, a close. Hooks run before waiter channels close, so a caller
// woken by Empty observes a queue whose hooks have already seen the
// transition.
func (q *Queue[T]) noteEmpty(st *dispatcherState[T]) {
	if st.wq.len() != 0 {
		return
	}
	q.hooks.emitEmpty()
	for _, ch := range st.emptyWaiters {
		close(ch)
	}
	st.emptyWaiters = nil
}

// noteIdle fires idle notifications if nothing is waiting or running.
// Hook-before-waiter ordering as in noteEmpty.
func (q *Queue[T]) noteIdle(st *dispatcherState[T]) {
	if st.wq.len() != 0 || st.running != 0 {
		return
	}
	q.logger.Debug("queue idle")
	q.hooks.emitIdle()
	for _, ch := range st.idleWaiters {
		close(ch)
	}
	st.idleWaiters = nil
}

// runTask executes one task on its own goroutine and reports the
// completion back to the dispatcher.
//
// The task function runs on an inner goroutine so a deadline can
// abandon it: when Options.Timeout elapses first, the future is
// rejected with a TimeoutError and the slot freed, while the inner
// goroutine keeps running. Its eventual result lands in a buffered
// channel nobody reads and is collected with it.
func (q *Queue[T]) runTask(e *entry[T]) {
	resCh := make(chan taskOutcome[T], 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				var zero T
				resCh <- taskOutcome[T]{result: zero, err: fmt.Errorf("taskq: task panicked: %v", r)}
			}
		}()
		v, err := e.task(e.ctx)
		resCh <- taskOutcome[T]{result: v, err: err}
	}()

	var c completion[T]
	if q.opts.Timeout > 0 {
		timer := time.NewTimer(q.opts.Timeout)
		defer timer.Stop()
		select {
		case out := <-resCh:
			c = completion[T]{e: e, result: out.result, err: out.err, elapsed: time.Since(e.info.StartedAt)}
		case <-timer.C:
			var zero T
			c = completion[T]{
				e:        e,
				result:   zero,
				err:      &TimeoutError{TaskID: e.info.ID, Limit: q.opts.Timeout},
				elapsed:  time.Since(e.info.StartedAt),
				timedOut: true,
			}
			q.logger.Debug("task result abandoned",
				zap.Stringer("task_id", e.info.ID),
				zap.Duration("timeout", q.opts.Timeout),
			)
		}
	} else {
		out := <-resCh
		c = completion[T]{e: e, result: out.result, err: out.err, elapsed: time.Since(e.info.StartedAt)}
	}

	// settle before reporting so Result observers unblock immediately,
	// not after the dispatcher gets around to the completion
	e.fut.settle(c.result, c.err)
	q.ops <- op[T]{kind: opDone, comp: c}
}
