package commands

import (
	"fmt"

	"github.com/fzft/go-mock-kv/node"
	"github.com/fzft/go-mock-kv/proto"
)

// queue key [capacity]
func queueCommand(d *Dispatcher, args [][]byte) node.Response {
	key, err := proto.ParseKey(args[0])
	if err != nil {
		return reply(statusOf(err))
	}
	if len(args) == 2 {
		if err := checkCapacity(args[1]); err != nil {
			return reply(statusOf(err))
		}
	}
	return reply(statusOf(d.store.Queue(key)))
}

// push key value
func pushCommand(d *Dispatcher, args [][]byte) node.Response {
	key, err := proto.ParseKey(args[0])
	if err != nil {
		return reply(statusOf(err))
	}
	if _, err := proto.Decode(args[1]); err != nil {
		return reply(statusOf(err))
	}
	return reply(statusOf(d.store.Push(key, args[1])))
}

// pop key
func popCommand(d *Dispatcher, args [][]byte) node.Response {
	key, err := proto.ParseKey(args[0])
	if err != nil {
		return reply(statusOf(err))
	}
	item, err := d.store.Pop(key)
	if err != nil {
		return reply(statusOf(err))
	}
	return replyValue(item)
}

// checkCapacity accepts a non-negative encoded int.
func checkCapacity(b []byte) error {
	v, err := proto.Decode(b)
	if err != nil {
		return err
	}
	n, ok := v.(int64)
	if !ok {
		return fmt.Errorf("capacity of type %T: %w", v, proto.ErrBadType)
	}
	if n < 0 {
		return errBadArgument
	}
	return nil
}
