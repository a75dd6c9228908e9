// Package taskq provides a bounded priority task queue: an in-process
// scheduling primitive that runs submitted functions under a
// concurrency cap, lower priority values first, with a result future
// per task.
//
// Design goals
//
// The package is designed around the following principles:
//
//   - One logical control flow owns all queue state
//   - Strict priority order with stable FIFO ties
//   - Every submission is observable through its future
//   - Dispatch decisions never race task completions
//
// Rather than maximizing raw throughput, taskq optimizes for
// predictable ordering and observable lifecycle when handling work
// whose urgency varies.
//
// Architecture overview
//
// The queue is composed of three loosely coupled layers:
//
//   1. Dispatch (dispatcher goroutine)
//      A single goroutine owns the waiting heap, the running count,
//      pause and close state, waiter lists and the hook registry.
//      Submissions, completions and control calls all arrive as ops on
//      one unbuffered channel and are processed strictly in order, so
//      the queue needs no locks around its state.
//
//   2. Execution (task goroutines)
//      Each started task runs on its own goroutine. The dispatcher
//      starts tasks only while a concurrency slot is free; a
//      Concurrency of zero removes the cap entirely.
//
//   3. Task lifecycle
//      Tasks carry a context, a priority, timestamps and a Future that
//      settles exactly once with the task's result or error.
//
// Ordering model
//
// Waiting tasks live in a heap ordered by (priority, submission
// sequence). Lower priority values dispatch earlier; tasks submitted
// with equal priority dispatch in submission order. Because control
// calls share the ops channel with submissions, a Pause, Submit,
// Submit, Start sequence behaves exactly as written.
//
// Timeouts
//
// An optional per-queue Timeout bounds how long a task's result is
// waited for, not how long the task may run. When the deadline passes,
// the future is rejected with a TimeoutError and the slot is freed,
// but the task function is not interrupted: it keeps running to
// completion on its goroutine and its result is discarded. Callers
// that need true cancellation must run cancellable work and wire the
// task context through it.
//
// Error handling
//
// The queue distinguishes between two classes of errors:
//
//   - Task errors: returned by task functions or produced by panic
//     recovery. They settle the task's future and fire the failed
//     hook, and never affect sibling tasks or the queue itself.
//   - Configuration errors: rejected fail-fast by New.
//
// Notifications
//
// Lifecycle events (enqueued, started, completed, failed, empty, idle)
// are delivered to typed extension hooks registered at construction or
// with Use. Queue.Empty and Queue.Idle return one-shot channels for
// callers that want to await a state instead of observing every event.
//
// Observability
//
// Queue activity is reported through the Metrics interface.
// AtomicMetrics is a lock-free in-process implementation; the
// observability/prometheus subpackage adapts the same interface to
// Prometheus collectors and can poll Stats snapshots into gauges.
//
// Intended use cases
//
// taskq is well suited for:
//
//   - Rate-limiting access to a constrained resource
//   - Prioritizing interactive work over background work
//   - Fan-out with per-call results and bounded parallelism
//   - Draining backlogs in a controlled, observable way
//
// It is not a distributed scheduler: state lives in process memory,
// nothing is persisted, and separate queues in separate processes know
// nothing about each other. Retry policy is likewise out of scope; a
// failed future reports once and callers decide what to do next.
package taskq
