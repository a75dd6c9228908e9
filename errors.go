package taskq

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrQueueClosed is returned by Submit after Close or Shutdown has
	// been called. Futures of waiting tasks rejected by Close carry it
	// as well.
	ErrQueueClosed = errors.New("taskq: queue closed")

	// ErrNilTask is returned when Submit is called with a nil task.
	ErrNilTask = errors.New("taskq: task is nil")

	// ErrNegativeConcurrency is returned by New when Options.Concurrency
	// is negative. Zero means unlimited.
	ErrNegativeConcurrency = errors.New("taskq: concurrency must not be negative")

	// ErrNegativeTimeout is returned by New when Options.Timeout is
	// negative. Zero disables the deadline.
	ErrNegativeTimeout = errors.New("taskq: timeout must not be negative")

	// ErrTimeout matches any TimeoutError via errors.Is.
	ErrTimeout = errors.New("taskq: task timed out")
)

// TimeoutError rejects the future of a task whose result did not arrive
// within Options.Timeout. The task itself is not cancelled; it keeps
// running and its eventual result is discarded.
type TimeoutError struct {
	TaskID uuid.UUID
	Limit  time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("taskq: task %s timed out after %s", e.TaskID, e.Limit)
}

// Is reports true for ErrTimeout so callers can test with errors.Is
// without asserting the concrete type.
func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }
