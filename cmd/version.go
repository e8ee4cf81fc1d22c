package cmd

import (
	"fmt"
	"runtime"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

const Version = "0.3.0"

// Set at link time with -ldflags "-X github.com/fzft/go-mock-kv/cmd.gitSHA1=...".
var (
	gitSHA1   = "unknown"
	gitDirty  = "0"
	buildID   = "unknown"
	buildDate = "unknown"
)

// versionString adds the git commit and working tree status when they are known.
func versionString(sha1, dirty string) string {
	version := Version
	if isHex(sha1) && strings.Trim(sha1, "0") != "" {
		version = fmt.Sprintf("%s (git:%s", version, sha1)
		if n, err := strconv.Atoi(dirty); err == nil && n != 0 {
			version += "-dirty"
		}
		version += ")"
	}
	return version
}

func isHex(s string) bool {
	return s != "" && strings.Trim(strings.ToLower(s), "0123456789abcdef") == ""
}

func newVersionCommand() *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the go-mock-kv version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			if _, err := fmt.Fprintf(out, "go-mock-kv %s\n", versionString(gitSHA1, gitDirty)); err != nil {
				return err
			}
			if !verbose {
				return nil
			}
			_, err := fmt.Fprintf(out, "build=%s date=%s %s %s/%s\n",
				buildID, buildDate, runtime.Version(), runtime.GOOS, runtime.GOARCH)
			return err
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "also print build details")
	return cmd
}
