package commands

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/fzft/go-mock-kv/node"
	"github.com/fzft/go-mock-kv/proto"
)

var errBadArgument = errors.New("argument out of range")

// get key
func getCommand(d *Dispatcher, args [][]byte) node.Response {
	key, err := proto.ParseKey(args[0])
	if err != nil {
		return reply(statusOf(err))
	}
	value, err := d.store.Get(key)
	if err != nil {
		return reply(statusOf(err))
	}
	return replyValue(value)
}

// put key value [ttl]
func putCommand(d *Dispatcher, args [][]byte) node.Response {
	key, err := proto.ParseKey(args[0])
	if err != nil {
		return reply(statusOf(err))
	}
	if _, err := proto.Decode(args[1]); err != nil {
		return reply(statusOf(err))
	}

	var ttl time.Duration
	if len(args) == 3 {
		if ttl, err = parseSeconds(args[2]); err != nil {
			return reply(statusOf(err))
		}
		if ttl <= 0 {
			return reply(proto.StatusBadArgs)
		}
	}
	return reply(statusOf(d.store.PutWithTTL(key, args[1], ttl)))
}

// del key
func delCommand(d *Dispatcher, args [][]byte) node.Response {
	key, err := proto.ParseKey(args[0])
	if err != nil {
		return reply(statusOf(err))
	}
	return reply(statusOf(d.store.Del(key)))
}

// ttl key seconds
func ttlCommand(d *Dispatcher, args [][]byte) node.Response {
	key, err := proto.ParseKey(args[0])
	if err != nil {
		return reply(statusOf(err))
	}
	ttl, err := parseSeconds(args[1])
	if err != nil {
		return reply(statusOf(err))
	}
	return reply(statusOf(d.store.SetTTL(key, ttl)))
}

// info returns [keys, used memory, expired keys].
func infoCommand(d *Dispatcher, _ [][]byte) node.Response {
	payload, err := proto.Encode([]any{int64(d.store.Len()), d.store.UsedMemory(), d.store.Expired()})
	if err != nil {
		return reply(proto.StatusErrServer)
	}
	return replyValue(payload)
}

// parseSeconds reads an encoded int or float number of seconds.
func parseSeconds(b []byte) (time.Duration, error) {
	v, err := proto.Decode(b)
	if err != nil {
		return 0, err
	}
	var secs float64
	switch n := v.(type) {
	case int64:
		secs = float64(n)
	case float64:
		secs = n
	default:
		return 0, fmt.Errorf("ttl of type %T: %w", v, proto.ErrBadType)
	}
	if math.IsNaN(secs) || math.IsInf(secs, 0) || math.Abs(secs) > math.MaxInt64/float64(time.Second) {
		return 0, errBadArgument
	}
	return time.Duration(secs * float64(time.Second)), nil
}
