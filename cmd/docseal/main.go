// Command docseal computes and verifies document fingerprints.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := newRootCmd().ExecuteContext(ctx)
	if err == nil {
		return
	}
	if !errors.Is(err, errMismatch) {
		fmt.Fprintf(os.Stderr, "docseal: %v\n", err)
	}
	stop()
	os.Exit(1)
}
