package record

import "sync"

// taskQueue is the single ordered work queue owned by an Output. Every
// writer mutation runs on its one goroutine, so no two mutations race and
// tasks are applied in submission order. The queue is unbounded for control
// operations so a finish or cancel is never dropped; append tasks pass a
// limit and are dropped when the backlog exceeds it, which is the same
// last-one-wins policy applied to a not-ready writer track.
//
// Once closed (by a task calling close), every task pushed before the close
// still runs, and later pushes are rejected so the caller can handle the
// terminal state inline. The goroutine exits after the final sweep.
type taskQueue struct {
	mu     sync.Mutex
	tasks  []func()
	closed bool
	wake   chan struct{}
}

func newTaskQueue() *taskQueue {
	q := &taskQueue{wake: make(chan struct{}, 1)}
	go q.run()
	return q
}

// push appends a task. Returns false if the queue is closed.
func (q *taskQueue) push(f func()) bool {
	return q.pushLimited(f, 0)
}

// pushLimited appends a task unless the backlog already holds limit or more
// entries (limit 0 means unbounded). Returns false if dropped or closed.
func (q *taskQueue) pushLimited(f func(), limit int) bool {
	q.mu.Lock()
	if q.closed || (limit > 0 && len(q.tasks) >= limit) {
		q.mu.Unlock()
		return false
	}
	q.tasks = append(q.tasks, f)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return true
}

// close marks the queue closed. Must be called from a task running on the
// queue goroutine; tasks already pushed still run before the goroutine exits.
func (q *taskQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
}

func (q *taskQueue) run() {
	for {
		q.mu.Lock()
		batch := q.tasks
		q.tasks = nil
		closed := q.closed
		q.mu.Unlock()

		for _, f := range batch {
			f()
		}

		if closed {
			// Final sweep: anything pushed while the closing batch ran.
			q.mu.Lock()
			rest := q.tasks
			q.tasks = nil
			q.mu.Unlock()
			for _, f := range rest {
				f()
			}
			return
		}

		if len(batch) == 0 {
			<-q.wake
		}
	}
}
