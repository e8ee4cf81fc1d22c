package cmd

import (
	"fmt"
	"io"
	"strings"
)

// commandDocs documentation info used for help command.
type commandDocs struct {
	name    string
	params  string
	summary string
	group   string
}

var commandHelp = []commandDocs{
	{name: "get", params: "key", summary: "Get the value of a key.", group: "generic"},
	{name: "put", params: "key value [ttl]", summary: "Set the value of a key, expiring it after ttl seconds when given.", group: "generic"},
	{name: "del", params: "key", summary: "Delete a key.", group: "generic"},
	{name: "ttl", params: "key seconds", summary: "Expire a key after the given seconds. Zero or less deletes it now.", group: "generic"},
	{name: "queue", params: "key [capacity]", summary: "Create an empty queue at key, replacing any value.", group: "queue"},
	{name: "push", params: "key value", summary: "Append a value to the queue at key.", group: "queue"},
	{name: "pop", params: "key", summary: "Remove and return the oldest value of the queue at key.", group: "queue"},
	{name: "info", summary: "Show the key count, memory use and expired keys.", group: "server"},
}

const helpIntro = `go-mock-kv cli %s
To get help about a command:
      "help <command>" for help on <command>
      "help @<group>" to list the commands of <group> (generic, queue, server)
      "quit" to exit

Arguments are literals: 42, 2.5, true, false, "text", 'text', b'bytes' and
one level lists like [1, "two", 3.0]. Anything else is sent as a string.
`

func printHelp(out io.Writer, topic []string) {
	if len(topic) == 0 {
		fmt.Fprintf(out, helpIntro, versionString(gitSHA1, gitDirty))
		return
	}

	name := strings.ToLower(topic[0])
	group, isGroup := strings.CutPrefix(name, "@")
	found := false
	for _, doc := range commandHelp {
		if (isGroup && doc.group == group) || (!isGroup && doc.name == name) {
			printCommandHelp(out, doc)
			found = true
		}
	}
	if !found {
		fmt.Fprintf(out, "No help for %q\n", topic[0])
	}
}

func printCommandHelp(out io.Writer, doc commandDocs) {
	fmt.Fprintf(out, "\n  %s %s\n  summary: %s\n  group: %s\n\n", strings.ToUpper(doc.name), doc.params, doc.summary, doc.group)
}

var replWords = []string{"help", "clear", "connect", "quit", "exit"}

// completeCommand offers command names while the first word of line is being typed.
func completeCommand(line string) []string {
	if strings.ContainsAny(line, " \t") {
		return nil
	}
	prefix := strings.ToLower(line)
	var out []string
	for _, doc := range commandHelp {
		if strings.HasPrefix(doc.name, prefix) {
			out = append(out, doc.name)
		}
	}
	for _, w := range replWords {
		if strings.HasPrefix(w, prefix) {
			out = append(out, w)
		}
	}
	return out
}
