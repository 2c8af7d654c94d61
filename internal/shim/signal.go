package shim

import (
	"box/internal/executor"
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// NotifyContext returns a context that is cancelled on SIGINT or SIGTERM.
// The signal is recorded as an *executor.SignalError cause so the exit code
// can name it.
func NotifyContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(parent)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		select {
		case sig := <-sigCh:
			cancel(&executor.SignalError{Signal: sig})
		case <-done:
		}
	}()

	var once sync.Once
	return ctx, func() {
		once.Do(func() {
			signal.Stop(sigCh)
			close(done)
			cancel(context.Canceled)
		})
	}
}
