package node

import "sync"

// Registry maps socket fds to their connections. The poller is the only writer; workers look up fds
// popped from the ready queue.
type Registry struct {
	mu    sync.RWMutex
	conns []*Conn
	count int
}

func NewRegistry(capacity int) *Registry {
	if capacity < 1 {
		capacity = 1
	}
	return &Registry{conns: make([]*Conn, capacity)}
}

// Put stores c under its fd, growing the table geometrically when the fd is past its end.
// It returns the connection previously stored there, if any.
func (r *Registry) Put(c *Conn) *Conn {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c.fd >= len(r.conns) {
		capacity := len(r.conns) * 2
		for capacity <= c.fd {
			capacity *= 2
		}
		conns := make([]*Conn, capacity)
		copy(conns, r.conns)
		r.conns = conns
	}
	old := r.conns[c.fd]
	r.conns[c.fd] = c
	if old == nil {
		r.count++
	}
	return old
}

func (r *Registry) Get(fd int) *Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if fd < 0 || fd >= len(r.conns) {
		return nil
	}
	return r.conns[fd]
}

// Remove deletes c if it is still the connection registered under its fd.
func (r *Registry) Remove(c *Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.fd >= len(r.conns) || r.conns[c.fd] != c {
		return false
	}
	r.conns[c.fd] = nil
	r.count--
	return true
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.count
}

func (r *Registry) Cap() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Snapshot returns the registered connections.
func (r *Registry) Snapshot() []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Conn, 0, r.count)
	for _, c := range r.conns {
		if c != nil {
			out = append(out, c)
		}
	}
	return out
}
