// Command cachesync serves an in-memory cache artifact and persists it to a
// SQLite snapshot log with debounced, serialized saves.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/cachesync/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
