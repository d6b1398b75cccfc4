package main

import (
	"fmt"
	"os"

	"cascade.dev/cascade/internal/cli"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := cli.NewRootCmd(version, commit, date)

	// A bare invocation runs update, so CI jobs can call `cascade` with the
	// merge event in the environment.
	if len(os.Args) == 1 {
		rootCmd.SetArgs([]string{"update"})
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "cascade:", err)
		os.Exit(1)
	}
}
