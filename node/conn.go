package node

import (
	"sync"
	"sync/atomic"
)

// ConnState is the position of a connection in its request/response cycle.
type ConnState int32

const (
	StateReqWaiting ConnState = iota // idle, waiting for the socket to become readable
	StateReq                         // reading and parsing
	StateDispatch                    // one complete frame is buffered
	StateRes                         // writing the response
	StateResWaiting                  // write would block, waiting for the socket to become writable
	StateEnd                         // fatal; waiting to be swept
	StateTerm                        // handed to the poller for teardown
)

func (s ConnState) String() string {
	switch s {
	case StateReqWaiting:
		return "REQ_WAITING"
	case StateReq:
		return "REQ"
	case StateDispatch:
		return "DISPATCH"
	case StateRes:
		return "RES"
	case StateResWaiting:
		return "RES_WAITING"
	case StateEnd:
		return "END"
	case StateTerm:
		return "TERM"
	default:
		return "UNKNOWN"
	}
}

// Close reasons, used as the metrics label.
const (
	reasonEOF      = "eof"
	reasonIO       = "io"
	reasonProtocol = "protocol"
	reasonShutdown = "shutdown"
)

type connLimits struct {
	bufferSize     int
	maxMessageSize int
}

var connIDs atomic.Uint64

// Conn is one accepted socket. The state machine only runs while the advisory lock is held; the lock is
// only ever taken with TryLock.
type Conn struct {
	fd int
	id uint64
	ip string

	state atomic.Int32
	lock  sync.Mutex

	rbuf *Buffer
	wbuf *Buffer

	// blocked is set when the last read returned EAGAIN.
	blocked  bool
	frameLen int

	limits  connLimits
	metrics *Metrics

	reason string
	err    error
}

func newConn(fd int, ip string, limits connLimits, metrics *Metrics) *Conn {
	c := &Conn{
		fd:      fd,
		id:      connIDs.Add(1),
		ip:      ip,
		rbuf:    NewBuffer(limits.bufferSize),
		wbuf:    NewBuffer(limits.bufferSize),
		limits:  limits,
		metrics: metrics,
	}
	c.state.Store(int32(StateReqWaiting))
	return c
}

func (c *Conn) Fd() int    { return c.fd }
func (c *Conn) ID() uint64 { return c.id }
func (c *Conn) IP() string { return c.ip }

func (c *Conn) State() ConnState {
	return ConnState(c.state.Load())
}

func (c *Conn) setState(s ConnState) {
	c.state.Store(int32(s))
}

// TryLock claims the connection without blocking.
func (c *Conn) TryLock() bool {
	return c.lock.TryLock()
}

func (c *Conn) Unlock() {
	c.lock.Unlock()
}

// end records why the connection failed and moves it to END.
func (c *Conn) end(reason string, err error) {
	c.reason, c.err = reason, err
	c.setState(StateEnd)
}
