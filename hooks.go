package taskq

import (
	"time"

	"go.uber.org/zap"
)

// Extension is the base interface all queue extensions implement. An
// extension opts into lifecycle events by additionally implementing any
// of the hook interfaces below; events it does not implement cost it
// nothing.
//
// Hooks run on the dispatcher goroutine, serialized in registration
// order. A hook must not call a blocking queue method (Submit, Clear,
// Close, Shutdown, Empty, Idle) from that goroutine; spawn a goroutine
// for that instead.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// TaskEnqueued is called after a task is accepted into the waiting set.
type TaskEnqueued interface {
	OnTaskEnqueued(info Info) error
}

// TaskStarted is called when a task begins executing.
type TaskStarted interface {
	OnTaskStarted(info Info) error
}

// TaskCompleted is called after a task finishes successfully.
type TaskCompleted[T any] interface {
	OnTaskCompleted(info Info, result T, elapsed time.Duration) error
}

// TaskFailed is called when a task's future is rejected: the task
// returned an error, panicked, its context was cancelled before it ran,
// or its result deadline elapsed.
type TaskFailed interface {
	OnTaskFailed(info Info, err error, elapsed time.Duration) error
}

// QueueEmpty is called each time the waiting set drops to zero.
type QueueEmpty interface {
	OnQueueEmpty() error
}

// QueueIdle is called each time the waiting set is empty and the last
// running task has finished.
type QueueIdle interface {
	OnQueueIdle() error
}

// Named entry types pair a hook implementation with the extension name
// captured at registration time. This avoids type-asserting back to
// Extension inside the emit methods.
type taskEnqueuedEntry struct {
	name string
	hook TaskEnqueued
}

type taskStartedEntry struct {
	name string
	hook TaskStarted
}

type taskCompletedEntry[T any] struct {
	name string
	hook TaskCompleted[T]
}

type taskFailedEntry struct {
	name string
	hook TaskFailed
}

type queueEmptyEntry struct {
	name string
	hook QueueEmpty
}

type queueIdleEntry struct {
	name string
	hook QueueIdle
}

// hookRegistry holds registered extensions and dispatches lifecycle
// events to them. Extensions are type-cached at registration time so
// emitting iterates only over those that implement the relevant hook.
//
// The dispatcher goroutine owns the registry; register is reached only
// through New and the opUse control op.
type hookRegistry[T any] struct {
	logger *zap.Logger

	extensions []Extension

	enqueued  []taskEnqueuedEntry
	started   []taskStartedEntry
	completed []taskCompletedEntry[T]
	failed    []taskFailedEntry
	empty     []queueEmptyEntry
	idle      []queueIdleEntry
}

func newHookRegistry[T any](logger *zap.Logger) *hookRegistry[T] {
	return &hookRegistry[T]{logger: logger}
}

// register adds an extension and type-asserts it into all applicable
// hook caches. Extensions are notified in registration order.
func (r *hookRegistry[T]) register(e Extension) {
	r.extensions = append(r.extensions, e)
	name := e.Name()

	if h, ok := e.(TaskEnqueued); ok {
		r.enqueued = append(r.enqueued, taskEnqueuedEntry{name, h})
	}
	if h, ok := e.(TaskStarted); ok {
		r.started = append(r.started, taskStartedEntry{name, h})
	}
	if h, ok := e.(TaskCompleted[T]); ok {
		r.completed = append(r.completed, taskCompletedEntry[T]{name, h})
	}
	if h, ok := e.(TaskFailed); ok {
		r.failed = append(r.failed, taskFailedEntry{name, h})
	}
	if h, ok := e.(QueueEmpty); ok {
		r.empty = append(r.empty, queueEmptyEntry{name, h})
	}
	if h, ok := e.(QueueIdle); ok {
		r.idle = append(r.idle, queueIdleEntry{name, h})
	}
}

func (r *hookRegistry[T]) emitEnqueued(info Info) {
	for _, e := range r.enqueued {
		if err := e.hook.OnTaskEnqueued(info); err != nil {
			r.logHookError("OnTaskEnqueued", e.name, err)
		}
	}
}

func (r *hookRegistry[T]) emitStarted(info Info) {
	for _, e := range r.started {
		if err := e.hook.OnTaskStarted(info); err != nil {
			r.logHookError("OnTaskStarted", e.name, err)
		}
	}
}

func (r *hookRegistry[T]) emitCompleted(info Info, result T, elapsed time.Duration) {
	for _, e := range r.completed {
		if err := e.hook.OnTaskCompleted(info, result, elapsed); err != nil {
			r.logHookError("OnTaskCompleted", e.name, err)
		}
	}
}

func (r *hookRegistry[T]) emitFailed(info Info, taskErr error, elapsed time.Duration) {
	for _, e := range r.failed {
		if err := e.hook.OnTaskFailed(info, taskErr, elapsed); err != nil {
			r.logHookError("OnTaskFailed", e.name, err)
		}
	}
}

func (r *hookRegistry[T]) emitEmpty() {
	for _, e := range r.empty {
		if err := e.hook.OnQueueEmpty(); err != nil {
			r.logHookError("OnQueueEmpty", e.name, err)
		}
	}
}

func (r *hookRegistry[T]) emitIdle() {
	for _, e := range r.idle {
		if err := e.hook.OnQueueIdle(); err != nil {
			r.logHookError("OnQueueIdle", e.name, err)
		}
	}
}

// logHookError logs a warning when a lifecycle hook returns an error.
// Hook errors are never propagated; they must not disturb dispatch.
func (r *hookRegistry[T]) logHookError(hook, extName string, err error) {
	r.logger.Warn("extension hook error",
		zap.String("hook", hook),
		zap.String("extension", extName),
		zap.Error(err),
	)
}
