package taskq_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	tq "github.com/azargarov/taskq"
)

func recv(t *testing.T, ch <-chan string) string {
	t.Helper()
	select {
	case s := <-ch:
		return s
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for a task to start")
		return ""
	}
}

func TestPriorityOrdering(t *testing.T) {
	q := newTestQueue[string](t, tq.Options{Concurrency: 2, StartPaused: true})

	rec := make(chan string, 4)
	release := make(chan struct{})
	submit := func(name string, prio int) {
		_, err := q.Submit(func(ctx context.Context) (string, error) {
			rec <- name
			<-release
			return name, nil
		}, tq.WithPriority(prio))
		require.NoError(t, err)
	}

	submit("a", 2)
	submit("b", 1)
	submit("c", 2)
	submit("d", 1)

	q.Start()

	// both priority-1 tasks must occupy the two slots before either
	// priority-2 task is considered
	first := []string{recv(t, rec), recv(t, rec)}
	require.ElementsMatch(t, []string{"b", "d"}, first)
	require.Equal(t, 2, q.Waiting())

	close(release)
	rest := []string{recv(t, rec), recv(t, rec)}
	require.ElementsMatch(t, []string{"a", "c"}, rest)
}

func TestPriorityStableOrder(t *testing.T) {
	run := func(t *testing.T, tasks []struct {
		name string
		prio int
	}, want []string) {
		q := newTestQueue[string](t, tq.Options{Concurrency: 1, StartPaused: true})

		rec := make(chan string, len(tasks))
		for _, tc := range tasks {
			name := tc.name
			_, err := q.Submit(func(ctx context.Context) (string, error) {
				rec <- name
				return name, nil
			}, tq.WithPriority(tc.prio))
			require.NoError(t, err)
		}

		idle := q.Idle()
		q.Start()
		select {
		case <-idle:
		case <-time.After(time.Second):
			t.Fatal("queue did not drain")
		}

		got := make([]string, 0, len(tasks))
		for range tasks {
			got = append(got, recv(t, rec))
		}
		require.Equal(t, want, got)
	}

	t.Run("lower value first", func(t *testing.T) {
		run(t, []struct {
			name string
			prio int
		}{
			{"a", 2}, {"b", 1}, {"c", 2}, {"d", 1},
		}, []string{"b", "d", "a", "c"})
	})

	t.Run("ties keep submission order", func(t *testing.T) {
		run(t, []struct {
			name string
			prio int
		}{
			{"first", 5}, {"second", 5}, {"third", 5}, {"fourth", 5},
		}, []string{"first", "second", "third", "fourth"})
	})
}

func TestTimeoutRejectsFuture(t *testing.T) {
	q := newTestQueue[string](t, tq.Options{Concurrency: 1, Timeout: 50 * time.Millisecond})

	zombieDone := make(chan struct{})
	begin := time.Now()
	slow, err := q.Submit(func(ctx context.Context) (string, error) {
		time.Sleep(200 * time.Millisecond)
		close(zombieDone)
		return "late", nil
	})
	require.NoError(t, err)

	fast, err := q.Submit(func(ctx context.Context) (string, error) {
		return "quick", nil
	})
	require.NoError(t, err)

	// the future rejects at the deadline, long before the task returns
	_, err = slow.Result()
	elapsed := time.Since(begin)
	require.ErrorIs(t, err, tq.ErrTimeout)
	var te *tq.TimeoutError
	require.ErrorAs(t, err, &te)
	require.Equal(t, 50*time.Millisecond, te.Limit)
	require.GreaterOrEqual(t, elapsed, 50*time.Millisecond)
	require.Less(t, elapsed, 150*time.Millisecond)

	// the freed slot serves the next task while the first still runs
	v, err := fast.Result()
	require.NoError(t, err)
	require.Equal(t, "quick", v)
	require.Less(t, time.Since(begin), 150*time.Millisecond)

	select {
	case <-q.Idle():
	case <-time.After(time.Second):
		t.Fatal("queue did not become idle")
	}
	st := q.Stats()
	require.Equal(t, uint64(1), st.TimedOut)
	require.Equal(t, uint64(1), st.Completed)

	// the abandoned task runs to completion; its late result is discarded
	select {
	case <-zombieDone:
	case <-time.After(time.Second):
		t.Fatal("abandoned task never finished")
	}
	v, err, ok := slow.Peek()
	require.True(t, ok)
	require.ErrorIs(t, err, tq.ErrTimeout)
	require.Empty(t, v)
}

func TestClearDropsWaiting(t *testing.T) {
	q := newTestQueue[int](t, tq.Options{StartPaused: true})

	futs := make([]*tq.Future[int], 0, 3)
	for range 3 {
		f, err := q.Submit(emptyWork)
		require.NoError(t, err)
		futs = append(futs, f)
	}
	waitUntil(t, time.Second, func() bool { return q.Waiting() == 3 })

	emptied := q.Empty()
	require.Equal(t, 3, q.Clear())
	require.Equal(t, 0, q.Clear())

	select {
	case <-emptied:
	case <-time.After(time.Second):
		t.Fatal("empty notification did not fire after Clear")
	}

	st := q.Stats()
	require.Equal(t, uint64(3), st.Cleared)
	require.Equal(t, 0, st.Waiting)

	// dropped futures are orphaned: they never settle, not even on Close
	for _, f := range futs {
		_, _, ok := f.Peek()
		require.False(t, ok)
	}
	require.NoError(t, q.Close())
	for _, f := range futs {
		_, _, ok := f.Peek()
		require.False(t, ok)
	}
}

func TestCloseRejectsWaiting(t *testing.T) {
	q := newTestQueue[int](t, tq.Options{StartPaused: true})

	futs := make([]*tq.Future[int], 0, 3)
	for range 3 {
		f, err := q.Submit(emptyWork)
		require.NoError(t, err)
		futs = append(futs, f)
	}
	waitUntil(t, time.Second, func() bool { return q.Waiting() == 3 })

	require.NoError(t, q.Close())

	for _, f := range futs {
		v, err := f.Result()
		require.ErrorIs(t, err, tq.ErrQueueClosed)
		require.Zero(t, v)
	}
	st := q.Stats()
	require.True(t, st.Closed)
	require.Equal(t, uint64(3), st.Cleared)
}

func TestSubmitContext(t *testing.T) {
	t.Run("cancelled before start", func(t *testing.T) {
		q := newTestQueue[int](t, tq.Options{StartPaused: true})

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		var ran atomic.Bool
		fut, err := q.Submit(func(ctx context.Context) (int, error) {
			ran.Store(true)
			return 1, nil
		}, tq.WithContext(ctx))
		require.NoError(t, err)

		q.Start()
		_, err = fut.Result()
		require.ErrorIs(t, err, context.Canceled)
		require.False(t, ran.Load())

		select {
		case <-q.Idle():
		case <-time.After(time.Second):
			t.Fatal("queue did not become idle")
		}
		require.Equal(t, uint64(1), q.Stats().Failed)
	})

	t.Run("cancel does not interrupt a running task", func(t *testing.T) {
		q := newTestQueue[string](t, tq.Options{})

		ctx, cancel := context.WithCancel(context.Background())
		started := make(chan struct{})
		fut, err := q.Submit(func(ctx context.Context) (string, error) {
			close(started)
			time.Sleep(50 * time.Millisecond)
			return "finished", nil
		}, tq.WithContext(ctx))
		require.NoError(t, err)

		<-started
		cancel()

		v, err := fut.Result()
		require.NoError(t, err)
		require.Equal(t, "finished", v)
	})
}

func TestEmptyIdleNotifications(t *testing.T) {
	q := newTestQueue[int](t, tq.Options{Concurrency: 1})

	// a quiet queue resolves both immediately
	select {
	case <-q.Empty():
	case <-time.After(time.Second):
		t.Fatal("Empty did not resolve on a quiet queue")
	}
	select {
	case <-q.Idle():
	case <-time.After(time.Second):
		t.Fatal("Idle did not resolve on a quiet queue")
	}

	gate := make(chan struct{})
	held, err := q.Submit(func(ctx context.Context) (int, error) {
		<-gate
		return 1, nil
	})
	require.NoError(t, err)
	waitUntil(t, time.Second, func() bool { return q.Running() == 1 })

	queued, err := q.Submit(emptyWork)
	require.NoError(t, err)
	waitUntil(t, time.Second, func() bool { return q.Waiting() == 1 })

	emptied := q.Empty()
	idled := q.Idle()

	select {
	case <-emptied:
		t.Fatal("Empty fired with a task still waiting")
	case <-idled:
		t.Fatal("Idle fired with a task still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(gate)

	select {
	case <-emptied:
	case <-time.After(time.Second):
		t.Fatal("Empty did not fire once the backlog drained")
	}
	select {
	case <-idled:
	case <-time.After(time.Second):
		t.Fatal("Idle did not fire once the queue went quiet")
	}

	if _, err := held.Result(); err != nil {
		t.Fatalf("held task result err = %v", err)
	}
	if _, err := queued.Result(); err != nil {
		t.Fatalf("queued task result err = %v", err)
	}
}

func TestShutdownDrainsPausedBacklog(t *testing.T) {
	q := newTestQueue[int](t, tq.Options{Concurrency: 1, StartPaused: true})

	var ran atomic.Int32
	futs := make([]*tq.Future[int], 0, 3)
	for range 3 {
		f, err := q.Submit(func(ctx context.Context) (int, error) {
			ran.Add(1)
			return 0, nil
		})
		require.NoError(t, err)
		futs = append(futs, f)
	}
	waitUntil(t, time.Second, func() bool { return q.Waiting() == 3 })

	// Shutdown resumes a paused queue so the drain can finish
	require.NoError(t, q.Shutdown(context.Background()))
	require.Equal(t, int32(3), ran.Load())
	for _, f := range futs {
		_, err := f.Result()
		require.NoError(t, err)
	}
	require.True(t, q.Stats().Closed)

	_, err := q.Submit(emptyWork)
	require.ErrorIs(t, err, tq.ErrQueueClosed)
}

func TestCloseCutsShutdownShort(t *testing.T) {
	q := newTestQueue[string](t, tq.Options{Concurrency: 1})

	gate := make(chan struct{})
	held, err := q.Submit(func(ctx context.Context) (string, error) {
		<-gate
		return "held", nil
	})
	require.NoError(t, err)
	waitUntil(t, time.Second, func() bool { return q.Running() == 1 })

	w1, err := q.Submit(func(ctx context.Context) (string, error) { return "w1", nil })
	require.NoError(t, err)
	w2, err := q.Submit(func(ctx context.Context) (string, error) { return "w2", nil })
	require.NoError(t, err)
	waitUntil(t, time.Second, func() bool { return q.Waiting() == 2 })

	shutdownRet := make(chan error, 1)
	go func() { shutdownRet <- q.Shutdown(context.Background()) }()
	waitUntil(t, time.Second, func() bool { return q.Stats().Closed })

	closeRet := make(chan error, 1)
	go func() { closeRet <- q.Close() }()

	// Close rejects the backlog the drain had not reached yet
	for _, f := range []*tq.Future[string]{w1, w2} {
		select {
		case <-f.Done():
		case <-time.After(time.Second):
			t.Fatal("waiting future not settled by Close")
		}
		_, err := f.Result()
		require.ErrorIs(t, err, tq.ErrQueueClosed)
	}
	require.Equal(t, 1, q.Running())

	close(gate)
	require.NoError(t, <-closeRet)
	require.NoError(t, <-shutdownRet)

	v, err := held.Result()
	require.NoError(t, err)
	require.Equal(t, "held", v)
}
