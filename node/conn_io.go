//go:build linux

package node

import (
	"errors"
	"fmt"
	"io"

	"github.com/fzft/go-mock-kv/log"
	"github.com/fzft/go-mock-kv/proto"
	"go.uber.org/zap"
)

// drive runs the state machine until the connection parks in REQ_WAITING, RES_WAITING or END.
// The caller holds the advisory lock.
func (c *Conn) drive(d Dispatcher) {
	for {
		switch c.State() {
		case StateReq:
			c.stateReq()
		case StateDispatch:
			c.stateDispatch(d)
		case StateRes:
			c.stateRes()
		default:
			return
		}
	}
}

func (c *Conn) stateReq() {
	for c.State() == StateReq {
		for {
			n, err := c.fillBuffer()
			if errors.Is(err, io.EOF) {
				c.end(reasonEOF, nil)
				return
			}
			if err != nil {
				c.end(reasonIO, err)
				return
			}
			if n == 0 {
				break
			}
		}
		if err := c.parseFrame(); err != nil {
			c.end(reasonProtocol, err)
			return
		}
	}
}

// fillBuffer reads into the free tail of the read buffer. It returns 0 with no error when the buffer
// is full or the socket has nothing to read.
func (c *Conn) fillBuffer() (int, error) {
	rb := c.rbuf
	if rb.Free() == 0 {
		return 0, nil
	}
	n, err := readFd(c.fd, rb.Tail())
	if err != nil {
		if IsTemporaryError(err) {
			c.blocked = true
			return 0, nil
		}
		return 0, fmt.Errorf("read fd %d: %w", c.fd, err)
	}
	if n == 0 {
		if rb.Len() > 0 {
			return 0, io.ErrUnexpectedEOF
		}
		return 0, io.EOF
	}
	c.blocked = false
	rb.Advance(n)
	return n, nil
}

// parseFrame moves to DISPATCH once a whole frame is buffered, making room in the read buffer as needed.
func (c *Conn) parseFrame() error {
	rb := c.rbuf
	if rb.Len() < proto.LenSize {
		if rb.Cap()-rb.offset < lowWaterMark {
			rb.Compact()
		}
		c.parkIfBlocked()
		return nil
	}

	total := proto.LenSize + proto.FrameLen(rb.Bytes())
	if total > c.limits.maxMessageSize {
		return fmt.Errorf("frame of %d bytes: %w", total, proto.ErrFrameTooLarge)
	}
	if total > rb.Cap()-rb.offset {
		if err := rb.Grow(total, c.limits.maxMessageSize); err != nil {
			return err
		}
	}
	if rb.Len() < total {
		c.parkIfBlocked()
		return nil
	}
	c.frameLen = total
	c.setState(StateDispatch)
	return nil
}

func (c *Conn) parkIfBlocked() {
	if c.blocked {
		c.setState(StateReqWaiting)
	}
}

func (c *Conn) stateDispatch(d Dispatcher) {
	frame := c.rbuf.Bytes()[:c.frameLen]
	res := safeDispatch(d, c.id, frame[proto.LenSize:])
	err := c.writeResponse(res)
	c.rbuf.Consume(c.frameLen)
	c.frameLen = 0
	if err != nil {
		c.end(reasonProtocol, err)
		return
	}
	c.metrics.frame(res.Status)
	c.setState(StateRes)
}

func (c *Conn) writeResponse(res Response) error {
	size := proto.ResponseSize(len(res.Payload))
	if size > c.limits.maxMessageSize {
		log.Logger.Warn("response exceeds max message size",
			zap.Uint64("conn", c.id),
			zap.Int("size", size),
			zap.Stringer("status", res.Status))
		res = Response{Status: proto.StatusErrServer}
		size = proto.ResponseHeaderSize
	}
	if size > c.wbuf.Free() {
		if err := c.wbuf.Grow(c.wbuf.Len()+size, c.limits.maxMessageSize); err != nil {
			return err
		}
	}
	out, err := proto.AppendResponse(c.wbuf.Tail()[:0], res.Status, res.Payload)
	if err != nil {
		return err
	}
	c.wbuf.Advance(len(out))
	return nil
}

// stateRes flushes the write buffer. A full flush goes straight back to REQ so pipelined frames are
// served without another trip through the poller.
func (c *Conn) stateRes() {
	for c.wbuf.Len() > 0 {
		n, err := writeFd(c.fd, c.wbuf.Bytes())
		if err != nil {
			if IsTemporaryError(err) {
				c.setState(StateResWaiting)
				return
			}
			c.end(reasonIO, fmt.Errorf("write fd %d: %w", c.fd, err))
			return
		}
		c.wbuf.Consume(n)
	}
	c.wbuf.Reset()
	c.setState(StateReq)
}
