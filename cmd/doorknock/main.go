// Explicit build path for the doorknock binary, so
// `go install .../cmd/doorknock` names the executable correctly.
package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/xkilldash9x/doorknock-cli/cmd"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd.Execute(ctx)
}
