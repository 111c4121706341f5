package main

import (
	"context"
	"fmt"
	"os"

	"github.com/inheritance10/sumbench/cmd/sumbench/cmds"
	"github.com/inheritance10/sumbench/pkg/logflags"
)

func main() {
	err := cmds.New().ExecuteContext(context.Background())
	// Cobra skips post-run hooks when a command fails.
	logflags.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
