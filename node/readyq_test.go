package node

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadyQueueFIFO(t *testing.T) {
	q := NewReadyQueue()
	for fd := 0; fd < 3000; fd++ {
		require.True(t, q.Push(fd))
	}
	assert.Equal(t, 3000, q.Len())
	for want := 0; want < 3000; want++ {
		fd, ok := q.Pop()
		require.True(t, ok)
		require.Equal(t, want, fd)
	}
	assert.Zero(t, q.Len())
}

func TestReadyQueueConcurrentConsumers(t *testing.T) {
	const n = 10000
	q := NewReadyQueue()

	var (
		mu   sync.Mutex
		seen = make(map[int]int, n)
		wg   sync.WaitGroup
	)
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			last := -1
			for {
				fd, ok := q.Pop()
				if !ok {
					return
				}
				// one producer, so each consumer sees increasing fds
				assert.Greater(t, fd, last)
				last = fd
				mu.Lock()
				seen[fd]++
				mu.Unlock()
			}
		}()
	}

	for fd := 0; fd < n; fd++ {
		q.Push(fd)
	}
	q.Close()
	wg.Wait()

	require.Len(t, seen, n)
	for fd, count := range seen {
		assert.Equal(t, 1, count, "fd %d", fd)
	}
}

func TestReadyQueueCloseWakesConsumers(t *testing.T) {
	q := NewReadyQueue()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, ok := q.Pop()
		assert.False(t, ok)
	}()

	time.Sleep(10 * time.Millisecond)
	q.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Pop did not return after Close")
	}
	assert.False(t, q.Push(1))
}

func TestReadyQueueDrainsAfterClose(t *testing.T) {
	q := NewReadyQueue()
	q.Push(7)
	q.Close()

	fd, ok := q.Pop()
	assert.True(t, ok)
	assert.Equal(t, 7, fd)
	_, ok = q.Pop()
	assert.False(t, ok)
}
