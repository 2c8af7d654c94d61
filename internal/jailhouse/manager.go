package jailhouse

import (
	"box/internal/sandbox"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/log"
)

// NewManager creates a new jailhouse manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Runtime == nil {
		return nil, errors.New("jailhouse: runtime is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NewWithOptions(os.Stderr, log.Options{Prefix: "jailhouse"})
	}

	return &Manager{
		runtime: cfg.Runtime,
		lockDir: cfg.LockDir,
		logger:  cfg.Logger,
	}, nil
}

// Ensure brings the container described by sb to a running state that
// matches its configuration and returns the decision it applied.
// Nothing is retried; the first failing runtime call ends the operation.
func (m *Manager) Ensure(ctx context.Context, sb sandbox.Sandbox) (sandbox.Decision, error) {
	unlock, err := m.lock(ctx, sb.Name)
	if err != nil {
		return sandbox.Decision{}, err
	}
	defer unlock()

	observed, err := m.runtime.Inspect(ctx, sb.Name)
	if err != nil {
		return sandbox.Decision{}, err
	}

	decision := Decide(sb, observed)
	m.logger.Debug("reconciled", "container", sb.Name, "status", observed.Status, "config", observed.Config, "decision", decision)

	switch decision.Action {
	case sandbox.ActionCreate:
		err = m.create(ctx, sb)

	case sandbox.ActionStart:
		err = m.start(ctx, sb.Name)

	case sandbox.ActionReuse:
		m.logger.Info("using existing container", "container", sb.Name)

	case sandbox.ActionRecreate:
		m.logger.Info("container config doesn't match current config", "container", sb.Name, "drift", decision.Reason)
		m.logger.Info("expected", "mounts", strings.Join(sb.Mounts, ","), "image", sb.Image)
		m.logger.Info("current", "config", observed.Config)
		if err = m.remove(ctx, sb.Name); err == nil {
			err = m.create(ctx, sb)
		}

	default:
		err = fmt.Errorf("%w: %s", sandbox.ErrUnexpectedContainerState, decision.Reason)
	}

	return decision, err
}

// Kill force-removes the named container. It reports false without touching
// anything when the container does not exist.
func (m *Manager) Kill(ctx context.Context, name string) (bool, error) {
	unlock, err := m.lock(ctx, name)
	if err != nil {
		return false, err
	}
	defer unlock()

	status, _, err := m.runtime.State(ctx, name)
	if err != nil {
		return false, err
	}
	if status == sandbox.StatusAbsent {
		m.logger.Info("container does not exist", "container", name)
		return false, nil
	}

	if err := m.remove(ctx, name); err != nil {
		return false, err
	}
	return true, nil
}

func (m *Manager) create(ctx context.Context, sb sandbox.Sandbox) error {
	m.logger.Info("creating container", "container", sb.Name, "image", sb.Image, "profile", sb.Profile)
	if err := m.runtime.Create(ctx, sb); err != nil {
		return err
	}
	m.logger.Info("container created", "container", sb.Name)
	return nil
}

func (m *Manager) start(ctx context.Context, name string) error {
	m.logger.Info("starting container", "container", name)
	if err := m.runtime.Start(ctx, name); err != nil {
		return err
	}
	m.logger.Info("container started", "container", name)
	return nil
}

func (m *Manager) remove(ctx context.Context, name string) error {
	m.logger.Info("removing container", "container", name)
	if err := m.runtime.Remove(ctx, name); err != nil {
		return err
	}
	m.logger.Info("container removed", "container", name)
	return nil
}
