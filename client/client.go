// Package client talks to a go-mock-kv server. Keys and values are Go values understood by the
// proto value codec: integers, floats, strings, byte slices, booleans and flat []any lists.
package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/fzft/go-mock-kv/proto"
)

const DefaultAddr = "127.0.0.1:8513"

// StatusError is returned for any response whose status is not OK.
type StatusError struct {
	Status proto.Status
	Cmd    string
}

func (e *StatusError) Error() string {
	if e.Cmd == "" {
		return fmt.Sprintf("mockkv: %s", e.Status)
	}
	return fmt.Sprintf("mockkv: %s: %s", e.Cmd, e.Status)
}

// Is matches any StatusError carrying the same status.
func (e *StatusError) Is(target error) bool {
	t, ok := target.(*StatusError)
	return ok && t.Status == e.Status
}

var (
	ErrNotFound    = &StatusError{Status: proto.StatusBadKey}
	ErrWrongType   = &StatusError{Status: proto.StatusBadOp}
	ErrEmpty       = &StatusError{Status: proto.StatusBadIx}
	ErrNotHashable = &StatusError{Status: proto.StatusBadHash}
)

var ErrClosed = errors.New("mockkv: client closed")

// Client runs one request at a time over a single connection. It is safe for concurrent use; calls
// are serialised.
type Client struct {
	mu     sync.Mutex
	conn   net.Conn
	r      reader
	obuf   []byte
	closed bool
}

func Dial(ctx context.Context, addr string) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return &Client{conn: conn}, nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}

// Do sends one raw request and returns its payload. args are sent as is; the first is the command
// name and the rest should be codec encoded.
func (c *Client) Do(ctx context.Context, args ...[]byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	obuf, err := proto.AppendRequest(c.obuf[:0], args...)
	if err != nil {
		return nil, err
	}
	c.obuf = obuf

	var (
		status  proto.Status
		payload []byte
	)
	err = c.roundTrip(ctx, 1, func(s proto.Status, p []byte) {
		status, payload = s, append([]byte(nil), p...)
	})
	if err != nil {
		return nil, err
	}
	if status != proto.StatusOK {
		return nil, &StatusError{Status: status, Cmd: commandName(args)}
	}
	return payload, nil
}

func commandName(args [][]byte) string {
	if len(args) == 0 {
		return ""
	}
	return string(args[0])
}

// roundTrip writes c.obuf and hands the next n responses to fn. Callers hold c.mu.
func (c *Client) roundTrip(ctx context.Context, n int, fn func(proto.Status, []byte)) error {
	if c.closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	deadline, _ := ctx.Deadline()
	if err := c.conn.SetDeadline(deadline); err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, func() {
		c.conn.SetDeadline(time.Unix(1, 0))
	})
	defer stop()

	if _, err := c.conn.Write(c.obuf); err != nil {
		return c.fail(ctx, err)
	}
	for i := 0; i < n; i++ {
		status, payload, err := c.r.next(c.conn)
		if err != nil {
			return c.fail(ctx, err)
		}
		fn(status, payload)
	}
	return nil
}

// fail closes the connection after an I/O error, since the stream position is unknown.
func (c *Client) fail(ctx context.Context, err error) error {
	c.closed = true
	c.conn.Close()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}

func encodeArgs(cmd string, vals ...any) ([][]byte, error) {
	args := make([][]byte, 0, len(vals)+1)
	args = append(args, []byte(cmd))
	for i, v := range vals {
		var (
			b   []byte
			err error
		)
		if i == 0 {
			var key proto.Key
			key, err = proto.KeyOf(v)
			b = []byte(key)
		} else {
			b, err = proto.Encode(v)
		}
		if err != nil {
			return nil, fmt.Errorf("%s argument %d: %w", cmd, i, err)
		}
		args = append(args, b)
	}
	return args, nil
}

func (c *Client) call(ctx context.Context, cmd string, vals ...any) ([]byte, error) {
	args, err := encodeArgs(cmd, vals...)
	if err != nil {
		return nil, err
	}
	return c.Do(ctx, args...)
}

func decodePayload(payload []byte, err error) (any, error) {
	if err != nil {
		return nil, err
	}
	return proto.Decode(payload)
}

// Get returns the value under key, or ErrNotFound.
func (c *Client) Get(ctx context.Context, key any) (any, error) {
	return decodePayload(c.call(ctx, "get", key))
}

func (c *Client) Put(ctx context.Context, key, value any) error {
	_, err := c.call(ctx, "put", key, value)
	return err
}

// PutTTL stores value with a deadline ttl from now.
func (c *Client) PutTTL(ctx context.Context, key, value any, ttl time.Duration) error {
	_, err := c.call(ctx, "put", key, value, ttl.Seconds())
	return err
}

func (c *Client) Del(ctx context.Context, key any) error {
	_, err := c.call(ctx, "del", key)
	return err
}

// TTL gives an existing key a new deadline. A non-positive ttl removes it.
func (c *Client) TTL(ctx context.Context, key any, ttl time.Duration) error {
	_, err := c.call(ctx, "ttl", key, ttl.Seconds())
	return err
}

// Queue creates an empty queue under key. capacity is a sizing hint.
func (c *Client) Queue(ctx context.Context, key any, capacity int) error {
	_, err := c.call(ctx, "queue", key, int64(capacity))
	return err
}

func (c *Client) Push(ctx context.Context, key, value any) error {
	_, err := c.call(ctx, "push", key, value)
	return err
}

// Pop removes the oldest item of the queue under key. An empty queue yields ErrEmpty.
func (c *Client) Pop(ctx context.Context, key any) (any, error) {
	return decodePayload(c.call(ctx, "pop", key))
}

// Info is a server statistics snapshot.
type Info struct {
	Keys       int64
	UsedMemory int64
	Expired    int64
}

func (c *Client) Info(ctx context.Context) (Info, error) {
	v, err := decodePayload(c.Do(ctx, []byte("info")))
	if err != nil {
		return Info{}, err
	}
	stats, ok := v.([]any)
	if !ok || len(stats) < 3 {
		return Info{}, fmt.Errorf("info reply %v: %w", v, proto.ErrBadType)
	}
	var info Info
	for i, dst := range []*int64{&info.Keys, &info.UsedMemory, &info.Expired} {
		n, ok := stats[i].(int64)
		if !ok {
			return Info{}, fmt.Errorf("info field %d: %w", i, proto.ErrBadType)
		}
		*dst = n
	}
	return info, nil
}
