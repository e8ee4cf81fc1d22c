package commands

import (
	"errors"
	"fmt"
	"time"

	"github.com/fzft/go-mock-kv/db"
	"github.com/fzft/go-mock-kv/log"
	"github.com/fzft/go-mock-kv/node"
	"github.com/fzft/go-mock-kv/proto"
	"go.uber.org/zap"
)

// Store is the keyspace the commands operate on.
type Store interface {
	Get(key proto.Key) ([]byte, error)
	PutWithTTL(key proto.Key, value []byte, ttl time.Duration) error
	Del(key proto.Key) error
	SetTTL(key proto.Key, ttl time.Duration) error
	Queue(key proto.Key) error
	Push(key proto.Key, item []byte) error
	Pop(key proto.Key) ([]byte, error)
	Len() int
	UsedMemory() int64
	Expired() int64
}

// Dispatcher decodes request frames and runs them against a Store.
type Dispatcher struct {
	store Store
}

var _ node.Dispatcher = (*Dispatcher)(nil)

func NewDispatcher(store Store) *Dispatcher {
	return &Dispatcher{store: store}
}

func (d *Dispatcher) Dispatch(connID uint64, body []byte) node.Response {
	args, err := proto.ParseRequest(body)
	if err != nil {
		log.Logger.Debug("malformed request", zap.Uint64("conn", connID), zap.Error(err))
		return reply(proto.StatusErrClient)
	}
	if len(args) == 0 {
		return reply(proto.StatusBadCmd)
	}

	cmd, ok := Lookup(string(args[0]))
	if !ok {
		log.Logger.Debug("unknown command", zap.Uint64("conn", connID), zap.String("cmd", printable(args[0])))
		return reply(proto.StatusBadCmd)
	}
	if !cmd.checkArity(len(args) - 1) {
		cmd.rejectedCalls.Add(1)
		log.Logger.Debug("wrong number of arguments",
			zap.Uint64("conn", connID), zap.String("cmd", cmd.Name), zap.Int("argc", len(args)-1))
		return reply(proto.StatusBadArgs)
	}

	cmd.calls.Add(1)
	res := cmd.Proc(d, args[1:])
	if res.Status != proto.StatusOK {
		cmd.failedCalls.Add(1)
	}
	return res
}

// statusOf maps store and codec errors to response statuses.
func statusOf(err error) proto.Status {
	switch {
	case err == nil:
		return proto.StatusOK
	case errors.Is(err, db.ErrNoKey):
		return proto.StatusBadKey
	case errors.Is(err, db.ErrWrongType):
		return proto.StatusBadOp
	case errors.Is(err, db.ErrEmpty):
		return proto.StatusBadIx
	case errors.Is(err, errBadArgument):
		return proto.StatusBadArgs
	}
	return proto.StatusOf(err)
}

// printable quotes at most 128 bytes of a client supplied name for logging.
func printable(b []byte) string {
	const limit = 128
	if len(b) > limit {
		b = b[:limit]
	}
	return fmt.Sprintf("%q", b)
}
