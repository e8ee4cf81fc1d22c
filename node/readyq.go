package node

import "sync"

// ReadyQueue hands fds from the poller to the workers in FIFO order.
type ReadyQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	fds    []int
	head   int
	closed bool
}

func NewReadyQueue() *ReadyQueue {
	q := &ReadyQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push appends fd and wakes one waiting worker. It returns false once the queue is closed.
func (q *ReadyQueue) Push(fd int) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.fds = append(q.fds, fd)
	q.mu.Unlock()
	q.cond.Signal()
	return true
}

// Pop blocks until an fd is available. After Close it drains what is left and then returns false.
func (q *ReadyQueue) Pop() (int, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.head == len(q.fds) && !q.closed {
		q.cond.Wait()
	}
	if q.head == len(q.fds) {
		return 0, false
	}

	fd := q.fds[q.head]
	q.head++
	switch {
	case q.head == len(q.fds):
		q.fds, q.head = q.fds[:0], 0
	case q.head > 1024 && q.head*2 > len(q.fds):
		n := copy(q.fds, q.fds[q.head:])
		q.fds, q.head = q.fds[:n], 0
	}
	return fd, true
}

func (q *ReadyQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.fds) - q.head
}

// Close wakes every blocked worker.
func (q *ReadyQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cond.Broadcast()
}
