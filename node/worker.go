//go:build linux

package node

import (
	"context"
)

// RunWorker serves connections from the ready queue until the queue is closed or ctx is done.
func (s *Server) RunWorker(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	for {
		fd, ok := s.ready.Pop()
		if !ok {
			return nil
		}
		s.metrics.setReady(s.ready.Len())

		if err := s.admit.Acquire(ctx, 1); err != nil {
			s.poller.handBack(nil)
			return nil
		}
		s.serve(fd)
		s.admit.Release(1)
	}
}

// serve drives one connection. A connection already claimed by someone else is skipped.
func (s *Server) serve(fd int) {
	c := s.registry.Get(fd)
	if c == nil || !c.TryLock() {
		s.poller.handBack(nil)
		return
	}

	c.drive(s.dispatcher)
	if c.State() == StateEnd {
		c.setState(StateTerm)
	}
	c.Unlock()
	s.poller.handBack(c)
}
