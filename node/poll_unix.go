//go:build linux

package node

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/fzft/go-mock-kv/log"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

const (
	// epoll wait timeouts in milliseconds
	busyTimeout = 10
	idleTimeout = 1000

	maxEvents = 256
)

type pipeSignal uint64

const (
	signalWake pipeSignal = 1
	SignalStop pipeSignal = 1 << 32
)

var errHangup = errors.New("peer hung up")

// Poller owns the listening socket, the epoll instance and the registry. It is the only goroutine that
// accepts, arms or tears down connections; workers return connections to it through handBack.
type Poller struct {
	epoll    *epollSet
	listenFD int
	efd      int

	registry *Registry
	ready    *ReadyQueue
	limits   connLimits
	maxConns int
	metrics  *Metrics

	mu       sync.Mutex
	returned []*Conn
	spare    []*Conn

	// deferred holds connections whose sweep found the advisory lock taken.
	deferred map[*Conn]struct{}
	inflight atomic.Int64

	closeOnce sync.Once
	closed    atomic.Bool
}

func NewPoller(lnFd int, registry *Registry, ready *ReadyQueue, limits connLimits, maxConns int, metrics *Metrics) (*Poller, error) {
	ep, err := newEpollSet()
	if err != nil {
		log.Logger.Error("Failed to create epoll", zap.Error(err))
		return nil, err
	}

	efd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		ep.close()
		log.Logger.Error("Failed to create eventfd", zap.Error(err))
		return nil, os.NewSyscallError("eventfd", err)
	}

	if err := ep.add(efd, readEvents); err != nil {
		ep.close()
		CloseFd(efd)
		log.Logger.Error("Failed to add eventfd to epoll", zap.Error(err))
		return nil, err
	}

	if err := ep.add(lnFd, readEvents); err != nil {
		ep.close()
		CloseFd(efd)
		log.Logger.Error("Failed to add listener to epoll", zap.Error(err))
		return nil, err
	}

	return &Poller{
		epoll:    ep,
		listenFD: lnFd,
		efd:      efd,
		registry: registry,
		ready:    ready,
		limits:   limits,
		maxConns: maxConns,
		metrics:  metrics,
		deferred: make(map[*Conn]struct{}),
	}, nil
}

// Run polls until ctx is cancelled or polling fails.
func (p *Poller) Run(ctx context.Context) error {
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		select {
		case <-ctx.Done():
			p.Stop()
		case <-stop:
		}
	}()

	err := p.poll()
	close(stop)
	wg.Wait()
	if errors.Is(err, ErrSignalStopped) {
		return nil
	}
	return err
}

func (p *Poller) poll() error {
	events := make([]unix.EpollEvent, maxEvents)
	for {
		p.drainReturned()
		p.sweepDeferred()

		msec := idleTimeout
		if p.inflight.Load() > 0 {
			msec = busyTimeout
		}
		n, err := p.epoll.wait(events, msec)
		if err != nil {
			log.Logger.Error("epoll wait error", zap.Error(err))
			return err
		}

		for i := 0; i < n; i++ {
			ev := &events[i]
			switch fd := int(ev.Fd); fd {
			case p.efd:
				if err := p.handleSignal(); err != nil {
					return err
				}
			case p.listenFD:
				p.accept()
			default:
				p.fire(fd, ev.Events)
			}
		}
	}
}

// fire moves a connection whose readiness was reported into the ready queue.
func (p *Poller) fire(fd int, events uint32) {
	c := p.registry.Get(fd)
	if c == nil {
		return
	}
	if !c.TryLock() {
		// the worker holding it re-arms the connection on hand back
		return
	}

	if events&(unix.EPOLLIN|unix.EPOLLOUT) == 0 && events&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
		c.end(reasonIO, errHangup)
		c.Unlock()
		p.sweep(c)
		return
	}

	switch c.State() {
	case StateReqWaiting:
		c.setState(StateReq)
	case StateResWaiting:
		c.setState(StateRes)
	default:
		c.Unlock()
		return
	}
	c.Unlock()

	p.metrics.setInflight(p.inflight.Add(1))
	p.ready.Push(fd)
	p.metrics.setReady(p.ready.Len())
}

// handBack returns a connection from a worker. A nil c only settles the in-flight count.
func (p *Poller) handBack(c *Conn) {
	if c != nil {
		p.mu.Lock()
		p.returned = append(p.returned, c)
		p.mu.Unlock()
	}
	p.metrics.setInflight(p.inflight.Add(-1))
	if c != nil && !p.closed.Load() {
		p.sendSignal(signalWake)
	}
}

func (p *Poller) drainReturned() {
	p.mu.Lock()
	list := p.returned
	p.returned = p.spare[:0]
	p.mu.Unlock()

	for i, c := range list {
		list[i] = nil
		if p.registry.Get(c.fd) != c {
			continue
		}
		switch c.State() {
		case StateReqWaiting, StateResWaiting:
			p.arm(c)
		case StateEnd, StateTerm:
			p.sweep(c)
		}
	}
	p.spare = list[:0]
}

// arm re-registers interest matching the connection's waiting state.
func (p *Poller) arm(c *Conn) {
	var err error
	if c.State() == StateResWaiting {
		err = p.epoll.armWrite(c.fd)
	} else {
		err = p.epoll.armRead(c.fd)
	}
	if err != nil {
		log.Logger.Warn("failed to arm connection", zap.Int("fd", c.fd), zap.Error(err))
		if c.TryLock() {
			c.end(reasonIO, err)
			c.Unlock()
		}
		p.sweep(c)
	}
}

// sweep tears c down, or defers it while a worker still holds the advisory lock.
func (p *Poller) sweep(c *Conn) {
	if !c.TryLock() {
		p.deferred[c] = struct{}{}
		return
	}
	defer c.Unlock()
	delete(p.deferred, c)
	p.teardown(c)
}

func (p *Poller) sweepDeferred() {
	for c := range p.deferred {
		p.sweep(c)
	}
}

// teardown closes c. Callers hold its advisory lock.
func (p *Poller) teardown(c *Conn) {
	if !p.registry.Remove(c) {
		return
	}
	if err := p.epoll.del(c.fd); err != nil {
		log.Logger.Debug("Failed to delete connection from epoll", zap.Int("fd", c.fd), zap.Error(err))
	}
	if err := unix.Close(c.fd); err != nil {
		log.Logger.Debug("Failed to close connection", zap.Int("fd", c.fd), zap.Error(err))
	}
	c.setState(StateTerm)

	reason := c.reason
	if reason == "" {
		reason = reasonShutdown
	}
	p.metrics.close(reason)
	if c.err != nil && reason != reasonEOF {
		log.Logger.Info("connection closed", zap.Uint64("conn", c.id), zap.String("ip", c.ip),
			zap.String("reason", reason), zap.Error(c.err))
	} else {
		log.Logger.Debug("connection closed", zap.Uint64("conn", c.id), zap.String("ip", c.ip),
			zap.String("reason", reason))
	}
}

// accept takes every pending connection off the listener.
func (p *Poller) accept() {
	for {
		connFd, sa, err := unix.Accept4(p.listenFD, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err != nil {
			switch {
			case err == unix.EINTR, err == unix.ECONNABORTED:
				continue
			case IsTemporaryError(err):
			default:
				log.Logger.Error("accept error", zap.Error(err))
			}
			return
		}

		if p.maxConns > 0 && p.registry.Len() >= p.maxConns {
			p.metrics.reject()
			log.Logger.Warn("connection refused, max-conns reached", zap.Int("max_conns", p.maxConns))
			unix.Close(connFd)
			continue
		}

		if err := unix.SetsockoptInt(connFd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1); err != nil {
			log.Logger.Debug("set nodelay error", zap.Int("fd", connFd), zap.Error(err))
		}

		c := newConn(connFd, sockaddrIP(sa), p.limits, p.metrics)
		if old := p.registry.Put(c); old != nil {
			log.Logger.Warn("fd reused while still registered", zap.Int("fd", connFd), zap.Uint64("stale_conn", old.id))
		}
		if err := p.epoll.add(connFd, readEvents|oneShot); err != nil {
			log.Logger.Error("register read error", zap.Int("fd", connFd), zap.Error(err))
			p.registry.Remove(c)
			unix.Close(connFd)
			continue
		}
		p.metrics.accept()
		log.Logger.Debug("new connection", zap.Int("fd", connFd), zap.Uint64("conn", c.id), zap.String("ip", c.ip))
	}
}

// handleSignal drains the eventfd.
func (p *Poller) handleSignal() error {
	var buf uint64
	_, err := unix.Read(p.efd, (*(*[8]byte)(unsafe.Pointer(&buf)))[:])
	if err != nil {
		if !IsTemporaryError(err) {
			log.Logger.Error("Failed to read from event fd", zap.Error(err))
		}
		return nil
	}
	if pipeSignal(buf) >= SignalStop {
		return ErrSignalStopped
	}
	return nil
}

// sendSignal sends a signal to the event fd
func (p *Poller) sendSignal(sig pipeSignal) error {
	_, err := unix.Write(p.efd, (*(*[8]byte)(unsafe.Pointer(&sig)))[:])
	if err != nil {
		log.Logger.Error("Failed to write to event fd", zap.Error(err))
	}
	return err
}

// Stop asks a running poll loop to return.
func (p *Poller) Stop() error {
	if p.closed.Load() {
		return ErrServerClosed
	}
	return p.sendSignal(SignalStop)
}

// CloseGracefully order: eventfd, listener, connections, epoll
func (p *Poller) CloseGracefully() error {
	var err error
	p.closeOnce.Do(func() {
		p.closed.Store(true)

		if e := p.epoll.del(p.efd); e != nil {
			log.Logger.Debug("Failed to delete eventfd from epoll", zap.Error(e))
		}
		err = multierr.Append(err, CloseFd(p.efd))

		if e := p.epoll.del(p.listenFD); e != nil {
			log.Logger.Debug("Failed to delete listener from epoll", zap.Error(e))
		}
		err = multierr.Append(err, CloseFd(p.listenFD))

		for _, c := range p.registry.Snapshot() {
			if !c.TryLock() {
				err = multierr.Append(err, fmt.Errorf("connection %d still in use", c.id))
				continue
			}
			p.teardown(c)
			c.Unlock()
		}

		err = multierr.Append(err, p.epoll.close())
	})
	return err
}

// listen opens a nonblocking TCP listening socket.
func listen(host string, port int) (int, *net.TCPAddr, error) {
	addr, err := net.ResolveTCPAddr("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return -1, nil, fmt.Errorf("resolve %s: %w", host, err)
	}

	family := unix.AF_INET
	var sa unix.Sockaddr
	if ip4 := addr.IP.To4(); ip4 != nil || addr.IP == nil {
		sa4 := &unix.SockaddrInet4{Port: addr.Port}
		copy(sa4.Addr[:], ip4)
		sa = sa4
	} else {
		family = unix.AF_INET6
		sa6 := &unix.SockaddrInet6{Port: addr.Port}
		copy(sa6.Addr[:], addr.IP.To16())
		sa = sa6
	}

	fd, err := unix.Socket(family, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP)
	if err != nil {
		return -1, nil, os.NewSyscallError("socket", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return -1, nil, os.NewSyscallError("setsockopt", err)
	}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return -1, nil, os.NewSyscallError("bind", err)
	}
	if err := unix.Listen(fd, unix.SOMAXCONN); err != nil {
		unix.Close(fd)
		return -1, nil, os.NewSyscallError("listen", err)
	}

	bound, err := unix.Getsockname(fd)
	if err != nil {
		unix.Close(fd)
		return -1, nil, os.NewSyscallError("getsockname", err)
	}
	switch b := bound.(type) {
	case *unix.SockaddrInet4:
		addr = &net.TCPAddr{IP: net.IP(b.Addr[:]), Port: b.Port}
	case *unix.SockaddrInet6:
		addr = &net.TCPAddr{IP: net.IP(b.Addr[:]), Port: b.Port}
	}
	return fd, addr, nil
}
