package executor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"syscall"
)

// SignalError is the cancellation cause recorded when box receives a
// termination signal.
type SignalError struct {
	Signal os.Signal
}

func (e *SignalError) Error() string {
	return fmt.Sprintf("received %s", e.Signal)
}

// ExitCode follows the shell convention of 128 plus the signal number.
func (e *SignalError) ExitCode() int {
	if s, ok := e.Signal.(syscall.Signal); ok {
		return 128 + int(s)
	}
	return ExitInterrupted
}

// interruptCode maps the reason ctx was cancelled to an exit code.
func interruptCode(ctx context.Context) int {
	var sigErr *SignalError
	if errors.As(context.Cause(ctx), &sigErr) {
		return sigErr.ExitCode()
	}
	return ExitInterrupted
}
