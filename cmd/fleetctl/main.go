// fleetctl drives a robot fleet service from the command line and can serve
// a local control and stream API for a view layer.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"robotfleet/internal/apperrors"
	"syscall"
)

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

// run executes the command tree and maps the outcome to an exit status.
// SIGINT and SIGTERM cancel the command context.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintln(stderr, "Error:", err)
	}
	return apperrors.ExitCode(err)
}
