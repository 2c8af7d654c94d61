package jailhouse

import (
	"box/internal/identity"
	"box/internal/sandbox"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gofrs/flock"
)

// lockRetryDelay is how often a held lock is polled.
const lockRetryDelay = 100 * time.Millisecond

// DefaultLockDir returns $XDG_RUNTIME_DIR/box, or a per-user directory under
// the system temp dir when no runtime dir is set.
func DefaultLockDir() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "box")
	}
	return filepath.Join(os.TempDir(), "box-"+strconv.Itoa(os.Getuid()))
}

// lock takes an advisory lock scoped to one container name, so concurrent
// invocations for the same directory reconcile one at a time. It waits until
// the lock is free or ctx is done. The returned func releases the lock.
func (m *Manager) lock(ctx context.Context, name string) (func(), error) {
	if m.lockDir == "" {
		return func() {}, nil
	}
	if !identity.Valid(name) {
		return nil, fmt.Errorf("%w: %q is not a box container name", sandbox.ErrLockFailed, name)
	}

	if err := os.MkdirAll(m.lockDir, 0700); err != nil {
		return nil, fmt.Errorf("%w: create lock directory: %v", sandbox.ErrLockFailed, err)
	}

	fl := flock.New(filepath.Join(m.lockDir, name+".lock"))
	locked, err := fl.TryLock()
	if err == nil && !locked {
		m.logger.Info("waiting for another invocation", "container", name)
		locked, err = fl.TryLockContext(ctx, lockRetryDelay)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", sandbox.ErrLockFailed, name, err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", sandbox.ErrLockFailed, name)
	}

	return func() {
		if err := fl.Unlock(); err != nil {
			m.logger.Warn("could not release lock", "container", name, "err", err)
		}
	}, nil
}
