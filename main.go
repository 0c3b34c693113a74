package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/xkilldash9x/doorknock-cli/cmd"
)

// main hands every command a signal-aware context, so Ctrl-C cancels
// in-flight contact attempts instead of killing the process mid-claim.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd.Execute(ctx)
}
