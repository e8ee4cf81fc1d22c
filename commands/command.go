package commands

import (
	"strings"
	"sync/atomic"

	"github.com/fzft/go-mock-kv/db"
	"github.com/fzft/go-mock-kv/node"
	"github.com/fzft/go-mock-kv/proto"
)

type CommandFlags uint8

const (
	CmdWrite CommandFlags = 1 << iota
	CmdReadOnly
	CmdFast
)

// CommandProc runs a command. args excludes the command name.
type CommandProc func(d *Dispatcher, args [][]byte) node.Response

// Command is one entry of the command table.
type Command struct {
	Name string
	// Arity counts the arguments after the name. A negative arity means at least -Arity.
	Arity int
	// MaxArgs bounds commands with optional trailing arguments; zero means no bound.
	MaxArgs int
	Flags   CommandFlags
	Proc    CommandProc

	calls         atomic.Int64
	rejectedCalls atomic.Int64
	failedCalls   atomic.Int64
}

func (c *Command) checkArity(argc int) bool {
	if c.Arity >= 0 {
		return argc == c.Arity
	}
	if argc < -c.Arity {
		return false
	}
	return c.MaxArgs == 0 || argc <= c.MaxArgs
}

// Calls, RejectedCalls and FailedCalls count executed commands, commands refused before running and
// executed commands that answered with a non-OK status.
func (c *Command) Calls() int64         { return c.calls.Load() }
func (c *Command) RejectedCalls() int64 { return c.rejectedCalls.Load() }
func (c *Command) FailedCalls() int64   { return c.failedCalls.Load() }

// commandTable is built once and only read afterwards.
var commandTable = newCommandTable(
	&Command{Name: "get", Arity: 1, Flags: CmdReadOnly | CmdFast, Proc: getCommand},
	&Command{Name: "put", Arity: -2, MaxArgs: 3, Flags: CmdWrite, Proc: putCommand},
	&Command{Name: "del", Arity: 1, Flags: CmdWrite | CmdFast, Proc: delCommand},
	&Command{Name: "ttl", Arity: 2, Flags: CmdWrite | CmdFast, Proc: ttlCommand},
	&Command{Name: "queue", Arity: -1, MaxArgs: 2, Flags: CmdWrite, Proc: queueCommand},
	&Command{Name: "push", Arity: 2, Flags: CmdWrite | CmdFast, Proc: pushCommand},
	&Command{Name: "pop", Arity: 1, Flags: CmdWrite | CmdFast, Proc: popCommand},
	&Command{Name: "info", Arity: 0, Flags: CmdReadOnly, Proc: infoCommand},
)

func newCommandTable(cmds ...*Command) *db.HashTable[string, *Command] {
	t := db.NewHashTable[string, *Command](len(cmds)*2, db.StringHash[string])
	for _, c := range cmds {
		t.Set(c.Name, c)
	}
	return t
}

// Lookup finds a command by name, ignoring case.
func Lookup(name string) (*Command, bool) {
	return commandTable.Get(strings.ToLower(name))
}

// Names lists the command table.
func Names() []string {
	names := make([]string, 0, commandTable.Len())
	commandTable.Range(func(name string, _ *Command) bool {
		names = append(names, name)
		return true
	})
	return names
}

func reply(status proto.Status) node.Response {
	return node.Response{Status: status}
}

func replyValue(payload []byte) node.Response {
	return node.Response{Status: proto.StatusOK, Payload: payload}
}

var replyOK = node.Response{Status: proto.StatusOK}
