package halyard

import "sync"

// queue is an unbounded FIFO. Pushes never block; a consumer waits on
// Ready and then drains with PopAll. Once closed, pushes are refused.
type queue[T any] struct {
	mu     sync.Mutex
	items  []T
	ready  chan struct{}
	closed bool
}

func newQueue[T any]() *queue[T] {
	return &queue[T]{
		ready: make(chan struct{}, 1),
	}
}

// Push appends an item. It returns false if the queue has been closed.
func (q *queue[T]) Push(item T) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, item)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
	return true
}

// Ready is signalled after a push. A single signal may cover many items.
func (q *queue[T]) Ready() <-chan struct{} {
	return q.ready
}

// PopAll removes and returns every queued item in push order.
func (q *queue[T]) PopAll() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items
}

// Len returns the number of queued items.
func (q *queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close refuses further pushes. Items already queued stay poppable.
func (q *queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
}
