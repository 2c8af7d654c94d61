// Package executor runs a command inside a provisioned sandbox container,
// wiring the host terminal to the exec session.
package executor

import (
	"box/internal/docker"
	"box/internal/sandbox"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/log"
)

// Exit codes reported by box itself rather than by the proxied command.
const (
	ExitFailure     = 1
	ExitInterrupted = 130
)

// Runtime is the part of the container runtime the dispatcher needs.
type Runtime interface {
	Exec(ctx context.Context, name string, opts docker.ExecOptions) (int, error)
}

// Command builds the argv to execute for args under the given mode.
// Shell mode hands the space-joined arguments to shell -c, so pipes and
// redirections are interpreted inside the container.
func Command(mode sandbox.ExecMode, args []string, shell string) ([]string, error) {
	if len(args) == 0 {
		return nil, sandbox.ErrNoCommandSpecified
	}
	switch mode {
	case sandbox.ExecShell:
		if shell == "" {
			return nil, fmt.Errorf("%w: shell mode without a shell", sandbox.ErrConfigInvalid)
		}
		return []string{shell, "-c", strings.Join(args, " ")}, nil
	case sandbox.ExecArgv, "":
		return append([]string(nil), args...), nil
	default:
		return nil, fmt.Errorf("%w: unknown exec mode %q", sandbox.ErrConfigInvalid, mode)
	}
}

// Config holds dispatcher dependencies. Zero-valued streams default to the
// process's own.
type Config struct {
	Runtime Runtime
	Mode    sandbox.ExecMode
	Shell   string
	Stdin   io.Reader
	Stdout  io.Writer
	Stderr  io.Writer
	Environ func() []string
	Logger  *log.Logger
}

// Dispatcher runs commands in sandbox containers.
type Dispatcher struct {
	runtime Runtime
	mode    sandbox.ExecMode
	shell   string
	stdin   io.Reader
	stdout  io.Writer
	stderr  io.Writer
	environ func() []string
	logger  *log.Logger
}

// Request is one command to run.
type Request struct {
	Container string
	Workdir   string // empty when the caller is outside every mounted directory
	Args      []string
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(cfg Config) (*Dispatcher, error) {
	if cfg.Runtime == nil {
		return nil, errors.New("executor: runtime is required")
	}
	if cfg.Mode == "" {
		cfg.Mode = sandbox.ExecArgv
	}
	if cfg.Stdin == nil {
		cfg.Stdin = os.Stdin
	}
	if cfg.Stdout == nil {
		cfg.Stdout = os.Stdout
	}
	if cfg.Stderr == nil {
		cfg.Stderr = os.Stderr
	}
	if cfg.Environ == nil {
		cfg.Environ = os.Environ
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default().WithPrefix("executor")
	}
	return &Dispatcher{
		runtime: cfg.Runtime,
		mode:    cfg.Mode,
		shell:   cfg.Shell,
		stdin:   cfg.Stdin,
		stdout:  cfg.Stdout,
		stderr:  cfg.Stderr,
		environ: cfg.Environ,
		logger:  cfg.Logger,
	}, nil
}

// Run executes req and returns the exit code box should exit with.
// A non-nil error means the command could not be run at all.
func (d *Dispatcher) Run(ctx context.Context, req Request) (int, error) {
	cmd, err := Command(d.mode, req.Args, d.shell)
	if err != nil {
		return ExitFailure, err
	}

	opts := docker.ExecOptions{
		Cmd:        cmd,
		WorkingDir: req.Workdir,
		Env:        ForwardEnv(d.environ()),
		Stdin:      d.stdin,
		Stdout:     d.stdout,
		Stderr:     d.stderr,
	}

	tty := openTerminal(d.stdin, d.stdout)
	if tty != nil {
		opts.Tty = true
		opts.Size = tty.size()
		if err := tty.makeRaw(); err != nil {
			d.logger.Debug("could not put terminal in raw mode", "err", err)
		}
		defer tty.restore()

		resize, stop := tty.watchResize()
		defer stop()
		opts.Resize = resize
	}

	d.logger.Debug("executing", "container", req.Container, "workdir", req.Workdir, "cmd", cmd, "tty", opts.Tty)

	code, err := d.runtime.Exec(ctx, req.Container, opts)
	if err != nil {
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			if tty == nil {
				d.logger.Warn("interrupted; the command may keep running in the container until it is recreated or killed", "container", req.Container)
			}
			return interruptCode(ctx), nil
		}
		return ExitFailure, err
	}
	return code, nil
}
