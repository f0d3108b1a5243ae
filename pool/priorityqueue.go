package pool

import "container/heap"

// priorityQueue is a binary min-heap over queuedTasks, ordered by
// Task.Priority (lower sorts first). It backs the pool's taskQueue
// when the pool is configured with UsePriorityTaskQueue. Ties among
// equal priorities are broken however the heap happens to leave them —
// callers must not depend on any particular tie order, per the pool's
// priority contract.
type priorityQueue struct {
	h *taskHeap
}

func newPriorityQueue() *priorityQueue {
	h := &taskHeap{}
	heap.Init(h)
	return &priorityQueue{h: h}
}

func (pq *priorityQueue) push(t *queuedTask) {
	heap.Push(pq.h, t)
}

func (pq *priorityQueue) pop() (*queuedTask, bool) {
	if pq.h.Len() == 0 {
		return nil, false
	}
	return heap.Pop(pq.h).(*queuedTask), true
}

func (pq *priorityQueue) peek() (*queuedTask, bool) {
	if pq.h.Len() == 0 {
		return nil, false
	}
	return (*pq.h)[0], true
}

func (pq *priorityQueue) len() int {
	return pq.h.Len()
}

func (pq *priorityQueue) clear() {
	*pq.h = (*pq.h)[:0]
}

// taskHeap implements container/heap.Interface over *queuedTask.
type taskHeap []*queuedTask

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	return h[i].task.Priority < h[j].task.Priority
}

func (h taskHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *taskHeap) Push(x any) {
	*h = append(*h, x.(*queuedTask))
}

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// taskWaitList is the common interface queue and priorityQueue satisfy,
// letting the pool core stay agnostic of which wait-list mode it runs.
type taskWaitList interface {
	push(*queuedTask)
	pop() (*queuedTask, bool)
	peek() (*queuedTask, bool)
	len() int
	clear()
}
