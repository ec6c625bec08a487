package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/ankittk/missioncontrol/internal/cli"
)

// Run executes missionctl with args and returns the process exit code.
func Run(ctx context.Context, args []string) int {
	return run(ctx, args, os.Stdout, os.Stderr)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := cli.NewRootCmd(Version)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintln(stderr, err.Error())
		return 1
	}
	return 0
}
