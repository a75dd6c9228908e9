package taskq

import "container/heap"

const initialWaitCapacity = 64

// waitHeap orders entries by (priority, seq): lower priority values pop
// first, equal priorities pop in submission order. The seq tiebreak is
// what keeps the ordering stable; container/heap alone does not
// preserve insertion order.
type waitHeap[T any] []*entry[T]

func (h waitHeap[T]) Len() int { return len(h) }

func (h waitHeap[T]) Less(i, j int) bool {
	if h[i].info.Priority != h[j].info.Priority {
		return h[i].info.Priority < h[j].info.Priority
	}
	return h[i].seq < h[j].seq
}

func (h waitHeap[T]) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *waitHeap[T]) Push(x any) {
	e := x.(*entry[T])
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *waitHeap[T]) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// waitQueue is the dispatcher's waiting set. Only the dispatcher
// goroutine touches it, so it needs no locking.
type waitQueue[T any] struct {
	h   waitHeap[T]
	seq uint64
}

func newWaitQueue[T any]() *waitQueue[T] {
	q := &waitQueue[T]{h: make(waitHeap[T], 0, initialWaitCapacity)}
	heap.Init(&q.h)
	return q
}

// push inserts an entry and stamps its submission sequence.
func (q *waitQueue[T]) push(e *entry[T]) {
	e.seq = q.seq
	q.seq++
	heap.Push(&q.h, e)
}

// pop removes the entry that should run next. ok is false when the
// waiting set is empty.
func (q *waitQueue[T]) pop() (*entry[T], bool) {
	if q.h.Len() == 0 {
		return nil, false
	}
	return heap.Pop(&q.h).(*entry[T]), true
}

// drain empties the waiting set and returns the removed entries in
// dispatch order.
func (q *waitQueue[T]) drain() []*entry[T] {
	out := make([]*entry[T], 0, q.h.Len())
	for {
		e, ok := q.pop()
		if !ok {
			return out
		}
		out = append(out, e)
	}
}

func (q *waitQueue[T]) len() int { return q.h.Len() }
