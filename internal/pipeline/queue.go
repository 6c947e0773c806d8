package pipeline

import (
	"container/heap"
	"context"
	"sync"
)

// PriorityQueue is a blocking queue ordered by Task.Priority, FIFO among
// equal priorities.
type PriorityQueue struct {
	mu    sync.Mutex
	cond  *sync.Cond
	items taskHeap
	seq   uint64
}

func NewPriorityQueue() *PriorityQueue {
	q := &PriorityQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Put adds a task and wakes one waiting taker.
func (q *PriorityQueue) Put(t Task) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.seq++
	t.seq = q.seq
	heap.Push(&q.items, t)
	q.cond.Signal()
}

// Take removes the highest-priority task, blocking until one is available or
// ctx is done.
func (q *PriorityQueue) Take(ctx context.Context) (Task, error) {
	stop := context.AfterFunc(ctx, func() {
		q.mu.Lock()
		q.cond.Broadcast()
		q.mu.Unlock()
	})
	defer stop()

	q.mu.Lock()
	defer q.mu.Unlock()
	for {
		if err := ctx.Err(); err != nil {
			return Task{}, err
		}
		if len(q.items) > 0 {
			return heap.Pop(&q.items).(Task), nil
		}
		q.cond.Wait()
	}
}

// TryTake removes the highest-priority task without blocking.
func (q *PriorityQueue) TryTake() (Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return Task{}, false
	}
	return heap.Pop(&q.items).(Task), true
}

// Reprioritize recomputes the priority of every queued task except Shutdown
// sentinels.
func (q *PriorityQueue) Reprioritize(fn func(Task) int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := range q.items {
		if q.items[i].Kind != KindShutdown {
			q.items[i].Priority = fn(q.items[i])
		}
	}
	heap.Init(&q.items)
}

// Drain removes and returns every queued task in priority order.
func (q *PriorityQueue) Drain() []Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Task, 0, len(q.items))
	for len(q.items) > 0 {
		out = append(out, heap.Pop(&q.items).(Task))
	}
	return out
}

func (q *PriorityQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Counts returns the number of queued tasks per kind.
func (q *PriorityQueue) Counts() map[Kind]int {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make(map[Kind]int)
	for _, t := range q.items {
		out[t.Kind]++
	}
	return out
}

type taskHeap []Task

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority < h[j].Priority
	}
	return h[i].seq < h[j].seq
}

func (h taskHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *taskHeap) Push(x any) { *h = append(*h, x.(Task)) }

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	*h = old[:n-1]
	return t
}
