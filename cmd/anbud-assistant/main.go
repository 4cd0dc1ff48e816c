// Command anbud-assistant is an interactive client for the OpenAI Assistants
// API aimed at writing tender documents.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	go func() {
		// A second interrupt during cleanup terminates the process.
		<-ctx.Done()
		stop()
	}()

	if err := newRootCmd(defaultRootOptions()).ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
