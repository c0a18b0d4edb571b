// Command csvload scans directories of delimited files, infers their
// schema, creates matching tables and bulk-loads them.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"csvload/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := cli.Execute(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
