package taskq

import (
	"sync/atomic"
	"time"
)

// Metrics defines hooks used by the queue to report scheduling and
// execution activity.
//
// Implementations must be safe for concurrent use. All methods are
// expected to be lightweight and non-blocking.
type Metrics interface {

	// IncEnqueued increments the accepted tasks counter.
	IncEnqueued()

	// AddCleared adds n to the discarded tasks counter.
	//
	// Called by Clear, and by Close for waiting tasks that never ran.
	AddCleared(n int64)

	// RecordStart reports how long a task waited before dispatch.
	RecordStart(queueWait time.Duration)

	// RecordSuccess reports the runtime of a task that completed.
	RecordSuccess(d time.Duration)

	// RecordFailure reports the runtime of a task that returned an
	// error, panicked, or was skipped with a cancelled context.
	RecordFailure(d time.Duration)

	// RecordTimeout reports a task whose result was abandoned after d.
	RecordTimeout(d time.Duration)

	// SetDepth reports the current waiting and running counts.
	SetDepth(waiting, running int)
}

// AtomicMetrics is a lock-free Metrics implementation backed by atomics.
//
// Writes are optimized for the dispatch path.
// Reads are intended for cold-path observation.
type AtomicMetrics struct {
	// enqueued is the total number of tasks accepted.
	enqueued atomic.Uint64

	_ [56]byte // padding to avoid false sharing

	cleared   atomic.Uint64
	started   atomic.Uint64
	succeeded atomic.Uint64
	failed    atomic.Uint64
	timedOut  atomic.Uint64

	waitNanos atomic.Int64
	runNanos  atomic.Int64

	waiting atomic.Int64
	running atomic.Int64
}

// Enqueued returns the total number of accepted tasks.
// Intended for cold-path observation.
func (m *AtomicMetrics) Enqueued() uint64 { return m.enqueued.Load() }

// Cleared returns the total number of discarded tasks.
func (m *AtomicMetrics) Cleared() uint64 { return m.cleared.Load() }

// Started returns the total number of dispatched tasks.
func (m *AtomicMetrics) Started() uint64 { return m.started.Load() }

// Succeeded returns the total number of tasks that completed.
func (m *AtomicMetrics) Succeeded() uint64 { return m.succeeded.Load() }

// Failed returns the total number of tasks that failed.
func (m *AtomicMetrics) Failed() uint64 { return m.failed.Load() }

// TimedOut returns the total number of abandoned task results.
func (m *AtomicMetrics) TimedOut() uint64 { return m.timedOut.Load() }

// QueueWait returns the cumulative time tasks spent waiting.
func (m *AtomicMetrics) QueueWait() time.Duration {
	return time.Duration(m.waitNanos.Load())
}

// Runtime returns the cumulative time tasks spent executing.
func (m *AtomicMetrics) Runtime() time.Duration {
	return time.Duration(m.runNanos.Load())
}

// Waiting returns the last reported waiting count.
func (m *AtomicMetrics) Waiting() int { return int(m.waiting.Load()) }

// Running returns the last reported running count.
func (m *AtomicMetrics) Running() int { return int(m.running.Load()) }

// IncEnqueued increments the accepted tasks counter by one.
func (m *AtomicMetrics) IncEnqueued() { m.enqueued.Add(1) }

// AddCleared adds n to the discarded tasks counter.
func (m *AtomicMetrics) AddCleared(n int64) { m.cleared.Add(uint64(n)) }

// RecordStart counts a dispatch and accumulates queue wait.
func (m *AtomicMetrics) RecordStart(queueWait time.Duration) {
	m.started.Add(1)
	m.waitNanos.Add(int64(queueWait))
}

// RecordSuccess counts a completion and accumulates runtime.
func (m *AtomicMetrics) RecordSuccess(d time.Duration) {
	m.succeeded.Add(1)
	m.runNanos.Add(int64(d))
}

// RecordFailure counts a failure and accumulates runtime.
func (m *AtomicMetrics) RecordFailure(d time.Duration) {
	m.failed.Add(1)
	m.runNanos.Add(int64(d))
}

// RecordTimeout counts an abandoned result.
func (m *AtomicMetrics) RecordTimeout(d time.Duration) {
	m.timedOut.Add(1)
	m.runNanos.Add(int64(d))
}

// SetDepth stores the current waiting and running counts.
func (m *AtomicMetrics) SetDepth(waiting, running int) {
	m.waiting.Store(int64(waiting))
	m.running.Store(int64(running))
}

//------------- NoopMetrics ----------------------------------

// NoopMetrics is a Metrics implementation that discards all updates.
//
// It is the default when Options.Metrics is nil and costs nothing.
type NoopMetrics struct{}

func (m *NoopMetrics) IncEnqueued()                   {}
func (m *NoopMetrics) AddCleared(n int64)             {}
func (m *NoopMetrics) RecordStart(wait time.Duration) {}
func (m *NoopMetrics) RecordSuccess(d time.Duration)  {}
func (m *NoopMetrics) RecordFailure(d time.Duration)  {}
func (m *NoopMetrics) RecordTimeout(d time.Duration)  {}
func (m *NoopMetrics) SetDepth(waiting, running int)  {}

// Stats is a point-in-time snapshot of queue state. Counters are
// cumulative since New.
type Stats struct {
	Waiting   int
	Running   int
	Submitted uint64
	Completed uint64
	Failed    uint64
	TimedOut  uint64
	Cleared   uint64
	Paused    bool
	Closed    bool
}
