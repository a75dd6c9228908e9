package taskq

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Task is the unit of work executed by a Queue.
//
// The context is the one supplied at Submit time (context.Background
// when none was given). It is never cancelled by the queue, not even
// when Options.Timeout elapses; a task that should stop early has to
// watch the context it was built around.
type Task[T any] func(ctx context.Context) (T, error)

// Info describes a task as the queue sees it. Lifecycle hooks receive
// it by value.
type Info struct {
	// ID identifies the task across log lines, hooks and errors.
	ID uuid.UUID

	// Priority is the value given at Submit time. Lower values
	// dispatch earlier.
	Priority int

	// EnqueuedAt is when the dispatcher accepted the task.
	EnqueuedAt time.Time

	// StartedAt is when the task began executing. Zero while waiting.
	StartedAt time.Time
}

// entry is a submitted task while the queue tracks it. seq is the
// dispatcher-assigned submission order used to break priority ties;
// index is maintained by the waiting heap.
type entry[T any] struct {
	task  Task[T]
	ctx   context.Context
	fut   *Future[T]
	info  Info
	seq   uint64
	index int
}

// taskOutcome is what a task function produced, normal return or
// recovered panic.
type taskOutcome[T any] struct {
	result T
	err    error
}
