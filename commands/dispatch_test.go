package commands

import (
	"testing"
	"time"

	"github.com/fzft/go-mock-kv/db"
	"github.com/fzft/go-mock-kv/log"
	"github.com/fzft/go-mock-kv/node"
	"github.com/fzft/go-mock-kv/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

func useLogger(t *testing.T, l *zap.Logger) {
	prev := log.Logger
	log.Logger = l
	t.Cleanup(func() { log.Logger = prev })
}

func enc(t *testing.T, v any) []byte {
	t.Helper()
	b, err := proto.Encode(v)
	require.NoError(t, err)
	return b
}

func call(t *testing.T, d *Dispatcher, args ...[]byte) node.Response {
	t.Helper()
	frame, err := proto.AppendRequest(nil, args...)
	require.NoError(t, err)
	return d.Dispatch(1, frame[proto.LenSize:])
}

func TestPutGetDel(t *testing.T) {
	store := db.New()
	d := NewDispatcher(store)

	res := call(t, d, []byte("put"), enc(t, int64(1)), enc(t, "one"))
	assert.Equal(t, proto.StatusOK, res.Status)

	res = call(t, d, []byte("get"), enc(t, int64(1)))
	require.Equal(t, proto.StatusOK, res.Status)
	v, err := proto.Decode(res.Payload)
	require.NoError(t, err)
	assert.Equal(t, "one", v)

	// the float 1.0 is a different key from the int 1
	res = call(t, d, []byte("get"), enc(t, 1.0))
	assert.Equal(t, proto.StatusBadKey, res.Status)

	res = call(t, d, []byte("del"), enc(t, int64(1)))
	assert.Equal(t, proto.StatusOK, res.Status)
	res = call(t, d, []byte("del"), enc(t, int64(1)))
	assert.Equal(t, proto.StatusBadKey, res.Status)
	res = call(t, d, []byte("get"), enc(t, int64(1)))
	assert.Equal(t, proto.StatusBadKey, res.Status)
}

func TestCommandNamesIgnoreCase(t *testing.T) {
	d := NewDispatcher(db.New())
	res := call(t, d, []byte("PUT"), enc(t, "k"), enc(t, true))
	assert.Equal(t, proto.StatusOK, res.Status)
	res = call(t, d, []byte("Get"), enc(t, "k"))
	assert.Equal(t, proto.StatusOK, res.Status)
	assert.Equal(t, enc(t, true), res.Payload)
}

func TestDispatchErrors(t *testing.T) {
	useLogger(t, zaptest.NewLogger(t, zaptest.Level(zapcore.DebugLevel)))
	d := NewDispatcher(db.New())

	tests := []struct {
		name string
		args [][]byte
		want proto.Status
	}{
		{"unknown command", [][]byte{[]byte("incr"), enc(t, "k")}, proto.StatusBadCmd},
		{"get arity", [][]byte{[]byte("get")}, proto.StatusBadArgs},
		{"put arity", [][]byte{[]byte("put"), enc(t, "k")}, proto.StatusBadArgs},
		{"put too many", [][]byte{[]byte("put"), enc(t, "k"), enc(t, "v"), enc(t, int64(1)), enc(t, int64(2))}, proto.StatusBadArgs},
		{"list key", [][]byte{[]byte("get"), enc(t, []any{int64(1)})}, proto.StatusBadHash},
		{"bool key", [][]byte{[]byte("get"), enc(t, true)}, proto.StatusBadHash},
		{"bad tag", [][]byte{[]byte("get"), []byte("!x")}, proto.StatusBadType},
		{"bad value", [][]byte{[]byte("put"), enc(t, "k"), []byte("#one")}, proto.StatusBadType},
		{"ttl not a number", [][]byte{[]byte("put"), enc(t, "k"), enc(t, "v"), enc(t, "soon")}, proto.StatusBadType},
		{"ttl not positive", [][]byte{[]byte("put"), enc(t, "k"), enc(t, "v"), enc(t, int64(0))}, proto.StatusBadArgs},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, call(t, d, tt.args...).Status)
		})
	}
}

func TestUnknownCommandLogged(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	useLogger(t, zap.New(core))
	d := NewDispatcher(db.New())

	res := call(t, d, []byte("fl\x00sh"))
	assert.Equal(t, proto.StatusBadCmd, res.Status)

	entries := logs.FilterMessage("unknown command").All()
	require.Len(t, entries, 1)
	assert.Equal(t, `"fl\x00sh"`, entries[0].ContextMap()["cmd"])
	assert.Equal(t, uint64(1), entries[0].ContextMap()["conn"])
}

func TestMalformedRequest(t *testing.T) {
	d := NewDispatcher(db.New())

	frame, err := proto.AppendRequest(nil, []byte("get"), enc(t, "k"))
	require.NoError(t, err)
	body := frame[proto.LenSize:]
	assert.Equal(t, proto.StatusErrClient, d.Dispatch(1, body[:len(body)-1]).Status)

	empty, err := proto.AppendRequest(nil)
	require.NoError(t, err)
	assert.Equal(t, proto.StatusBadCmd, d.Dispatch(1, empty[proto.LenSize:]).Status)
}

func TestTTLCommand(t *testing.T) {
	store := db.New()
	d := NewDispatcher(store)

	assert.Equal(t, proto.StatusBadKey, call(t, d, []byte("ttl"), enc(t, "k"), enc(t, int64(5))).Status)

	require.Equal(t, proto.StatusOK, call(t, d, []byte("put"), enc(t, "k"), enc(t, "v"), enc(t, 2.5)).Status)
	left, ok := store.TTL(proto.Key(enc(t, "k")))
	require.True(t, ok)
	assert.InDelta(t, 2.5, left.Seconds(), 0.5)

	require.Equal(t, proto.StatusOK, call(t, d, []byte("ttl"), enc(t, "k"), enc(t, int64(60))).Status)
	left, ok = store.TTL(proto.Key(enc(t, "k")))
	require.True(t, ok)
	assert.Greater(t, left, 50*time.Second)

	// a fresh put drops the deadline
	require.Equal(t, proto.StatusOK, call(t, d, []byte("put"), enc(t, "k"), enc(t, "w")).Status)
	_, ok = store.TTL(proto.Key(enc(t, "k")))
	assert.False(t, ok)

	require.Equal(t, proto.StatusOK, call(t, d, []byte("ttl"), enc(t, "k"), enc(t, int64(-1))).Status)
	assert.Equal(t, proto.StatusBadKey, call(t, d, []byte("get"), enc(t, "k")).Status)
}

func TestQueueCommands(t *testing.T) {
	d := NewDispatcher(db.New())
	q := enc(t, "jobs")

	assert.Equal(t, proto.StatusBadKey, call(t, d, []byte("push"), q, enc(t, int64(1))).Status)
	require.Equal(t, proto.StatusOK, call(t, d, []byte("queue"), q, enc(t, int64(8))).Status)
	assert.Equal(t, proto.StatusBadArgs, call(t, d, []byte("queue"), q, enc(t, int64(-1))).Status)

	for _, v := range []any{int64(1), "two", []byte{3}} {
		require.Equal(t, proto.StatusOK, call(t, d, []byte("push"), q, enc(t, v)).Status)
	}
	assert.Equal(t, proto.StatusBadType, call(t, d, []byte("push"), q, enc(t, []any{int64(1)})).Status)
	assert.Equal(t, proto.StatusBadOp, call(t, d, []byte("get"), q).Status)

	for _, want := range []any{int64(1), "two", []byte{3}} {
		res := call(t, d, []byte("pop"), q)
		require.Equal(t, proto.StatusOK, res.Status)
		got, err := proto.Decode(res.Payload)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	assert.Equal(t, proto.StatusBadIx, call(t, d, []byte("pop"), q).Status)

	require.Equal(t, proto.StatusOK, call(t, d, []byte("put"), enc(t, "plain"), enc(t, "v")).Status)
	assert.Equal(t, proto.StatusBadOp, call(t, d, []byte("pop"), enc(t, "plain")).Status)
}

func TestInfoCommand(t *testing.T) {
	d := NewDispatcher(db.New())
	require.Equal(t, proto.StatusOK, call(t, d, []byte("put"), enc(t, "k"), enc(t, "v")).Status)

	res := call(t, d, []byte("info"))
	require.Equal(t, proto.StatusOK, res.Status)
	v, err := proto.Decode(res.Payload)
	require.NoError(t, err)
	stats, ok := v.([]any)
	require.True(t, ok)
	require.Len(t, stats, 3)
	assert.Equal(t, int64(1), stats[0])
	assert.Greater(t, stats[1].(int64), int64(0))
}

func TestCommandCounters(t *testing.T) {
	d := NewDispatcher(db.New())
	cmd, ok := Lookup("DEL")
	require.True(t, ok)
	calls, rejected, failed := cmd.Calls(), cmd.RejectedCalls(), cmd.FailedCalls()

	call(t, d, []byte("del"))
	call(t, d, []byte("del"), enc(t, "missing"))

	assert.Equal(t, calls+1, cmd.Calls())
	assert.Equal(t, rejected+1, cmd.RejectedCalls())
	assert.Equal(t, failed+1, cmd.FailedCalls())
	assert.ElementsMatch(t, []string{"get", "put", "del", "ttl", "queue", "push", "pop", "info"}, Names())
}
