package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

// Exit codes for different failure modes.
const (
	ExitSuccess = 0 // every record processed
	ExitPartial = 1 // the batch ran but some records were skipped or failed
	ExitError   = 2 // configuration or runtime error
)

// PartialError reports a batch that completed with per-record failures.
type PartialError struct {
	Message string
}

func (e *PartialError) Error() string {
	return e.Message
}

func exitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var partial *PartialError
	if errors.As(err, &partial) {
		return ExitPartial
	}
	return ExitError
}

func main() {
	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCommand().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	os.Exit(exitCode(err))
}
