package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fzft/go-mock-kv/client"
	"github.com/fzft/go-mock-kv/deps/linenoise"
	"github.com/fzft/go-mock-kv/node"
	"github.com/fzft/go-mock-kv/proto"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

const (
	cliHistFileEnv     = "MOCKKV_CLI_HISTFILE"
	cliHistFileDefault = ".mockkv_history"
)

type outputMode uint8

const (
	outputStandard outputMode = iota
	outputRaw
)

type cliConfig struct {
	host    string
	port    int
	timeout time.Duration
	raw     bool
	noRaw   bool
	output  outputMode
	prompt  string
}

type kvCli struct {
	config *cliConfig
	client *client.Client
	out    io.Writer
}

func newCliCommand() *cobra.Command {
	cfg := &cliConfig{}
	cmd := &cobra.Command{
		Use:   "cli [command [arg ...]]",
		Short: "Interactive client. Runs a single command and exits when one is given",
		RunE: func(cmd *cobra.Command, args []string) error {
			cli := &kvCli{config: cfg, out: cmd.OutOrStdout()}
			cli.config.output = cli.detectOutput()
			return cli.run(cmd.Context(), args)
		},
	}
	fs := cmd.Flags()
	// stop at the first positional so literals like -1 reach the server
	fs.SetInterspersed(false)
	fs.StringVar(&cfg.host, "host", "127.0.0.1", "server hostname")
	fs.IntVarP(&cfg.port, "port", "p", node.DefaultPort, "server port")
	fs.DurationVarP(&cfg.timeout, "timeout", "t", 5*time.Second, "per command timeout, 0 waits forever")
	fs.BoolVar(&cfg.raw, "raw", false, "use raw formatting for replies (default when stdout is not a tty)")
	fs.BoolVar(&cfg.noRaw, "no-raw", false, "force formatted output even when stdout is not a tty")
	return cmd
}

func (cli *kvCli) detectOutput() outputMode {
	switch {
	case cli.config.raw:
		return outputRaw
	case cli.config.noRaw:
		return outputStandard
	}
	if f, ok := cli.out.(*os.File); ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())) {
		return outputStandard
	}
	return outputRaw
}

func (cli *kvCli) addr() string {
	return net.JoinHostPort(cli.config.host, strconv.Itoa(cli.config.port))
}

func (cli *kvCli) run(ctx context.Context, args []string) error {
	cli.refreshPrompt()
	defer cli.disconnect()

	if len(args) > 0 {
		if err := cli.connect(ctx); err != nil {
			return fmt.Errorf("could not connect to %s: %w", cli.addr(), err)
		}
		return cli.issueCommand(ctx, args)
	}
	if err := cli.connect(ctx); err != nil {
		fmt.Fprintf(cli.out, "Could not connect to %s: %v\n", cli.addr(), err)
	}
	return cli.repl(ctx, linenoise.New())
}

func (cli *kvCli) connect(ctx context.Context) error {
	cli.disconnect()
	if cli.config.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cli.config.timeout)
		defer cancel()
	}
	c, err := client.Dial(ctx, cli.addr())
	if err != nil {
		return err
	}
	cli.client = c
	return nil
}

func (cli *kvCli) disconnect() {
	if cli.client != nil {
		cli.client.Close()
		cli.client = nil
	}
}

func (cli *kvCli) repl(ctx context.Context, line *linenoise.LineNoise) error {
	defer line.Close()
	line.SetCompleter(completeCommand)

	var historyFile string
	if isatty.IsTerminal(os.Stdin.Fd()) {
		historyFile = getDotfilePath(cliHistFileEnv, cliHistFileDefault)
		if historyFile != "" {
			if err := line.HistoryLoad(historyFile); err != nil {
				fmt.Fprintf(os.Stderr, "Could not load history from %s: %v\n", historyFile, err)
			}
		}
	}

	for {
		prompt := cli.config.prompt
		if cli.client == nil {
			prompt = "not connected> "
		}
		input, err := line.Prompt(prompt)
		if err != nil {
			if errors.Is(err, linenoise.ErrAborted) || errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		argv, err := splitArgs(input)
		if strings.TrimSpace(input) != "" {
			line.AppendHistory(input)
			if historyFile != "" {
				line.HistorySave(historyFile)
			}
		}
		if err != nil {
			fmt.Fprintln(cli.out, "Invalid argument(s)")
			continue
		}
		if len(argv) == 0 {
			continue
		}

		// "3 get k" runs the command three times
		repeat := 1
		if n, err := strconv.Atoi(argv[0]); err == nil && len(argv) > 1 {
			if n <= 0 {
				fmt.Fprintln(cli.out, "Invalid repeat command option value.")
				continue
			}
			repeat, argv = n, argv[1:]
		}

		switch {
		case strings.EqualFold(argv[0], "quit"), strings.EqualFold(argv[0], "exit"):
			return nil
		case len(argv) == 1 && strings.EqualFold(argv[0], "clear"):
			line.ClearScreen()
		case strings.EqualFold(argv[0], "help"), argv[0] == "?":
			printHelp(cli.out, argv[1:])
		case len(argv) == 3 && strings.EqualFold(argv[0], "connect"):
			port, err := strconv.Atoi(argv[2])
			if err != nil {
				fmt.Fprintln(cli.out, "Invalid port number")
				continue
			}
			cli.config.host, cli.config.port = argv[1], port
			cli.refreshPrompt()
			if err := cli.connect(ctx); err != nil {
				fmt.Fprintf(cli.out, "Could not connect to %s: %v\n", cli.addr(), err)
			}
		default:
			for i := 0; i < repeat; i++ {
				if err := cli.issueCommand(ctx, argv); err != nil {
					fmt.Fprintf(cli.out, "(error) %v\n", err)
					break
				}
			}
		}
	}
}

// issueCommand sends argv[0] as the command name and the rest as encoded literals. Error statuses are
// printed, not returned; the returned error means the command never got an answer.
func (cli *kvCli) issueCommand(ctx context.Context, argv []string) error {
	args := make([][]byte, len(argv))
	args[0] = []byte(argv[0])
	for i, tok := range argv[1:] {
		v, err := parseLiteral(tok)
		if err != nil {
			return fmt.Errorf("argument %d: %w", i+1, err)
		}
		if args[i+1], err = proto.Encode(v); err != nil {
			return fmt.Errorf("argument %d: %w", i+1, err)
		}
	}

	if cli.client == nil {
		if err := cli.connect(ctx); err != nil {
			return err
		}
	}
	if cli.config.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cli.config.timeout)
		defer cancel()
	}

	payload, err := cli.client.Do(ctx, args...)
	var se *client.StatusError
	if errors.As(err, &se) {
		fmt.Fprintf(cli.out, "(error) %s\n", se.Status)
		return nil
	}
	if err != nil {
		// the connection is unusable now; the next command dials again
		cli.disconnect()
		return err
	}
	return cli.printReply(argv[0], payload)
}

func (cli *kvCli) printReply(cmd string, payload []byte) error {
	if len(payload) == 0 {
		fmt.Fprintln(cli.out, "OK")
		return nil
	}
	v, err := proto.Decode(payload)
	if err != nil {
		return fmt.Errorf("decode reply: %w", err)
	}
	if strings.EqualFold(cmd, "info") {
		if s, ok := formatInfo(v); ok {
			fmt.Fprint(cli.out, s)
			return nil
		}
	}
	fmt.Fprintln(cli.out, formatValue(v, cli.config.output))
	return nil
}

func (cli *kvCli) refreshPrompt() {
	cli.config.prompt = cli.addr() + "> "
}

func formatValue(v any, mode outputMode) string {
	if mode == outputRaw {
		switch v := v.(type) {
		case string:
			return v
		case []byte:
			return string(v)
		case []any:
			items := make([]string, len(v))
			for i, item := range v {
				items[i] = formatValue(item, mode)
			}
			return strings.Join(items, "\n")
		}
		return formatScalar(v)
	}

	switch v := v.(type) {
	case int64:
		return "(integer) " + formatScalar(v)
	case float64:
		return "(float) " + formatScalar(v)
	case bool:
		return "(bool) " + formatScalar(v)
	case string:
		return strconv.Quote(v)
	case []byte:
		return "b" + strconv.Quote(string(v))
	case []any:
		if len(v) == 0 {
			return "(empty list)"
		}
		var b strings.Builder
		for i, item := range v {
			if i > 0 {
				b.WriteByte('\n')
			}
			fmt.Fprintf(&b, "%d) %s", i+1, formatValue(item, mode))
		}
		return b.String()
	}
	return fmt.Sprint(v)
}

func formatScalar(v any) string {
	switch v := v.(type) {
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	}
	return fmt.Sprint(v)
}

// formatInfo renders the [keys, used_memory, expired] reply of the info command.
func formatInfo(v any) (string, bool) {
	list, ok := v.([]any)
	if !ok || len(list) != 3 {
		return "", false
	}
	var n [3]int64
	for i, item := range list {
		if n[i], ok = item.(int64); !ok {
			return "", false
		}
	}
	return fmt.Sprintf("keys:%d\nused_memory:%d\nused_memory_human:%s\nexpired_keys:%d\n",
		n[0], n[1], humanize.IBytes(uint64(max(n[1], 0))), n[2]), true
}

func getDotfilePath(envOverride, dotFilename string) string {
	if path := os.Getenv(envOverride); path != "" {
		if path == "/dev/null" {
			return ""
		}
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ""
	}
	return filepath.Join(home, dotFilename)
}
