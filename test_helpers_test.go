package taskq_test

import (
	"context"
	"crypto/sha256"
	"os"
	"runtime"
	"strconv"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	tq "github.com/azargarov/taskq"
)

type workload struct {
	name string
	fn   tq.Task[int]
}

var shaData = []byte("some deterministic payloadsome deterministic payloadsome deterministic payloadsome deterministic payload")

var (
	emptyWork = func(context.Context) (int, error) {
		return 0, nil
	}

	cpuWork = func(context.Context) (int, error) {
		x := 0
		for i := range 1000 {
			x += i * i
		}
		return x, nil
	}

	ioWork = func(context.Context) (int, error) {
		time.Sleep(5 * time.Microsecond)
		return 0, nil
	}

	shaWork = func(context.Context) (int, error) {
		_ = sha256.Sum256(shaData)
		return 0, nil
	}
)

var workloads = []workload{
	{"empty ", emptyWork},
	{"sha256", shaWork},
	{"cpu   ", cpuWork},
	{"io    ", ioWork},
}

// newTestQueue builds a queue wired to the test's logger and closes it
// when the test finishes.
func newTestQueue[T any](t *testing.T, opts tq.Options) *tq.Queue[T] {
	t.Helper()

	if opts.Logger == nil {
		opts.Logger = zaptest.NewLogger(t)
	}
	q, err := tq.New[T](opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = q.Close() })
	return q
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		runtime.Gosched()
	}
	t.Fatal("condition not satisfied before timeout")
}

func waitUntilB(b *testing.B, timeout time.Duration, cond func() bool) {
	b.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		runtime.Gosched()
	}
	b.Fatal("condition not satisfied before timeout")
}

func percentile(samples []int64, q float64) time.Duration {
	pos := int(float64(len(samples)-1) * q)
	return time.Duration(samples[pos])
}

func getenvInt(name string, def int) int {
	if v := os.Getenv(name); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}
