package client

import (
	"context"
	"time"

	"github.com/fzft/go-mock-kv/proto"
)

// Result is the outcome of one pipelined request. Value is nil for commands without a reply value.
type Result struct {
	Value any
	Err   error
}

type pipelined struct {
	cmd    string
	decode bool
}

// Pipeline batches requests and sends them in one write. Responses come back in request order.
// A Pipeline is not safe for concurrent use.
type Pipeline struct {
	c    *Client
	obuf []byte
	cmds []pipelined
	err  error
}

func (c *Client) Pipeline() *Pipeline {
	return &Pipeline{c: c}
}

func (p *Pipeline) queue(decode bool, cmd string, vals ...any) {
	if p.err != nil {
		return
	}
	args, err := encodeArgs(cmd, vals...)
	if err == nil {
		p.obuf, err = proto.AppendRequest(p.obuf, args...)
	}
	if err != nil {
		p.err = err
		return
	}
	p.cmds = append(p.cmds, pipelined{cmd: cmd, decode: decode})
}

func (p *Pipeline) Get(key any) { p.queue(true, "get", key) }
func (p *Pipeline) Put(key, value any) { p.queue(false, "put", key, value) }
func (p *Pipeline) Del(key any) { p.queue(false, "del", key) }
func (p *Pipeline) Push(key, value any) { p.queue(false, "push", key, value) }
func (p *Pipeline) Pop(key any) { p.queue(true, "pop", key) }
func (p *Pipeline) TTL(key any, ttl time.Duration) { p.queue(false, "ttl", key, ttl.Seconds()) }
func (p *Pipeline) Queue(key any, capacity int) { p.queue(false, "queue", key, int64(capacity)) }
func (p *Pipeline) PutTTL(key, value any, ttl time.Duration) {
	p.queue(false, "put", key, value, ttl.Seconds())
}

// Len is the number of queued requests.
func (p *Pipeline) Len() int { return len(p.cmds) }

// Exec sends every queued request and collects the responses. The pipeline is empty afterwards.
// A returned error means the batch as a whole failed; per request failures are in the results.
func (p *Pipeline) Exec(ctx context.Context) ([]Result, error) {
	defer p.reset()
	if p.err != nil {
		return nil, p.err
	}
	if len(p.cmds) == 0 {
		return nil, nil
	}

	c := p.c
	c.mu.Lock()
	defer c.mu.Unlock()

	c.obuf = append(c.obuf[:0], p.obuf...)
	results := make([]Result, 0, len(p.cmds))
	err := c.roundTrip(ctx, len(p.cmds), func(status proto.Status, payload []byte) {
		cmd := p.cmds[len(results)]
		var res Result
		switch {
		case status != proto.StatusOK:
			res.Err = &StatusError{Status: status, Cmd: cmd.cmd}
		case cmd.decode:
			res.Value, res.Err = proto.Decode(payload)
		}
		results = append(results, res)
	})
	return results, err
}

func (p *Pipeline) reset() {
	p.obuf = p.obuf[:0]
	p.cmds = p.cmds[:0]
	p.err = nil
}
