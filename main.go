package main

import (
	"os"

	"github.com/fzft/go-mock-kv/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
