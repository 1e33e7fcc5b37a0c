package task

import (
	"sync"
	"time"

	gferrors "github.com/vnykmshr/fibercore/pkg/common/errors"
)

// Queue is an unbounded multi-producer/multi-consumer FIFO of tasks.
// Tasks are linked intrusively, so a task can be in at most one queue and
// is enqueued at most once over its lifetime.
type Queue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	head   *Task
	tail   *Task
	size   int
	wait   int
	closed bool
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	q := &Queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push appends t and wakes one blocked popper. It never blocks.
// It returns ErrClosed once the queue is closed and ErrInvalidCall when t was
// already enqueued somewhere.
func (q *Queue) Push(t *Task) error {
	if t == nil {
		return gferrors.ErrInvalidCall
	}
	if !t.enqueued.CompareAndSwap(false, true) {
		return gferrors.ErrInvalidCall
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		t.enqueued.Store(false)
		return gferrors.ErrClosed
	}
	if q.tail == nil {
		q.head = t
	} else {
		q.tail.next = t
	}
	q.tail = t
	q.size++
	waiting := q.wait > 0
	q.mu.Unlock()

	if waiting {
		q.cond.Signal()
	}
	return nil
}

// Pop removes and returns the head, blocking while the queue is empty.
// It returns (nil, false) only once the queue is closed and drained.
func (q *Queue) Pop() (*Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.head == nil {
		if q.closed {
			return nil, false
		}
		q.wait++
		q.cond.Wait()
		q.wait--
	}
	return q.unlinkLocked(), true
}

// TryPop removes and returns the head without blocking.
func (q *Queue) TryPop() (*Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.head == nil {
		return nil, false
	}
	return q.unlinkLocked(), true
}

// PopTimeout is Pop bounded by d. It returns (nil, false) when d elapses with
// the queue still empty, or when the queue is closed and drained. A
// non-positive d behaves like Pop.
func (q *Queue) PopTimeout(d time.Duration) (*Task, bool) {
	if d <= 0 {
		return q.Pop()
	}

	deadline := time.Now().Add(d)
	timer := time.AfterFunc(d, func() {
		// wake every waiter; each re-checks its own deadline
		q.mu.Lock()
		q.cond.Broadcast()
		q.mu.Unlock()
	})
	defer timer.Stop()

	q.mu.Lock()
	defer q.mu.Unlock()

	for q.head == nil {
		if q.closed || !time.Now().Before(deadline) {
			return nil, false
		}
		q.wait++
		q.cond.Wait()
		q.wait--
	}
	return q.unlinkLocked(), true
}

// Len returns the number of queued tasks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// Empty reports whether the queue has no tasks.
func (q *Queue) Empty() bool {
	return q.Len() == 0
}

// Waiting returns the number of poppers currently blocked.
func (q *Queue) Waiting() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.wait
}

// Close rejects further pushes and wakes all blocked poppers. Tasks already
// queued can still be popped.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cond.Broadcast()
}

// Closed reports whether Close has been called.
func (q *Queue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

func (q *Queue) unlinkLocked() *Task {
	t := q.head
	q.head = t.next
	if q.head == nil {
		q.tail = nil
	}
	t.next = nil
	q.size--
	return t
}
