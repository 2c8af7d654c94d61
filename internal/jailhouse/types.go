// Package jailhouse keeps each configured directory's container in the
// state its configuration declares. It decides whether to create, start,
// recreate or reuse a container, applies that decision, and tears
// containers down on request.
package jailhouse

import (
	"box/internal/sandbox"
	"context"

	"github.com/charmbracelet/log"
)

// Runtime is the container runtime the manager drives.
type Runtime interface {
	// State reports the lifecycle phase of a container; absent is not an error.
	State(ctx context.Context, name string) (sandbox.Status, string, error)
	// Inspect returns the phase plus the mount and image configuration.
	Inspect(ctx context.Context, name string) (sandbox.ObservedState, error)
	// Create runs a new detached container for sb.
	Create(ctx context.Context, sb sandbox.Sandbox) error
	// Start starts a stopped container.
	Start(ctx context.Context, name string) error
	// Remove force-removes a container.
	Remove(ctx context.Context, name string) error
}

// Manager reconciles containers against their declared configuration.
type Manager struct {
	runtime Runtime
	lockDir string // empty disables locking
	logger  *log.Logger
}

// Config holds configuration for creating a new Manager.
type Config struct {
	Runtime Runtime
	LockDir string // directory for per-container lock files; empty disables locking
	Logger  *log.Logger
}
