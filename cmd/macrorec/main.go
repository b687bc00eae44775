// Command macrorec records and replays mouse and keyboard input.
package main

import (
	"fmt"
	"os"

	"macrorec/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "macrorec: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
