// Package shim implements one box invocation end to end. It loads the
// configuration, works out which sandbox the working directory belongs to,
// brings that container into its declared state and runs the command in it.
package shim

import (
	"box/internal/config"
	"box/internal/docker"
	"box/internal/executor"
	"box/internal/identity"
	"box/internal/jailhouse"
	"box/internal/sandbox"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/log"
)

// Runtime is everything an invocation needs from the container runtime.
type Runtime interface {
	jailhouse.Runtime
	executor.Runtime
}

// Options describes one invocation.
type Options struct {
	ConfigPath string
	Args       []string
	Kill       bool             // remove the container instead of running a command
	ExecMode   sandbox.ExecMode // overrides the configured mode when set
	Cwd        string           // defaults to the process working directory

	// Runtime defaults to a Docker client built from the environment.
	Runtime Runtime
	// LockDir defaults to jailhouse.DefaultLockDir.
	LockDir string

	Stdin   io.Reader
	Stdout  io.Writer
	Stderr  io.Writer
	Environ func() []string
	Logger  *log.Logger
}

// Target is the container an invocation resolves to and where to run in it.
type Target struct {
	Sandbox sandbox.Sandbox
	Workdir string // empty keeps the image's working directory
}

// Run performs the invocation and returns the process exit code. Errors are
// reported once on stderr as "box: <message>" and map to exit code 1.
func Run(ctx context.Context, opts Options) int {
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}

	code, err := run(ctx, opts)
	if err != nil {
		fmt.Fprintf(opts.Stderr, "box: %v\n", err)
		return executor.ExitFailure
	}
	return code
}

func run(ctx context.Context, opts Options) (int, error) {
	if !opts.Kill && len(opts.Args) == 0 {
		return executor.ExitFailure, sandbox.ErrNoCommandSpecified
	}

	path := opts.ConfigPath
	if path == "" {
		p, err := config.DefaultPath()
		if err != nil {
			return executor.ExitFailure, err
		}
		path = p
	}
	cfg, err := config.Load(path, opts.Logger)
	if err != nil {
		return executor.ExitFailure, err
	}

	cwd := opts.Cwd
	if cwd == "" {
		if cwd, err = identity.Getwd(); err != nil {
			return executor.ExitFailure, err
		}
	} else if cwd, err = identity.Normalize(cwd); err != nil {
		return executor.ExitFailure, err
	}

	target, err := Resolve(cfg, cwd)
	if err != nil {
		return executor.ExitFailure, err
	}
	opts.Logger.Debug("resolved sandbox", "container", target.Sandbox.Name, "workdir", target.Workdir)

	rt := opts.Runtime
	if rt == nil {
		client, err := docker.New(opts.Logger)
		if err != nil {
			return executor.ExitFailure, err
		}
		defer client.Close()
		if err := client.Ping(ctx); err != nil {
			return executor.ExitFailure, err
		}
		rt = client
	}

	lockDir := ""
	if cfg.Lock {
		lockDir = opts.LockDir
		if lockDir == "" {
			lockDir = jailhouse.DefaultLockDir()
		}
	}
	mgr, err := jailhouse.NewManager(jailhouse.Config{
		Runtime: rt,
		LockDir: lockDir,
		Logger:  opts.Logger.WithPrefix("jailhouse"),
	})
	if err != nil {
		return executor.ExitFailure, err
	}

	if opts.Kill {
		opts.Logger.Info("killing container", "container", target.Sandbox.Name, "dirs", strings.Join(target.Sandbox.Mounts, ","))
		if _, err := mgr.Kill(ctx, target.Sandbox.Name); err != nil {
			return executor.ExitFailure, err
		}
		return 0, nil
	}

	opts.Logger.Info("using container", "container", target.Sandbox.Name, "dirs", strings.Join(target.Sandbox.Mounts, ","), "image", target.Sandbox.Image)
	if _, err := mgr.Ensure(ctx, target.Sandbox); err != nil {
		return executor.ExitFailure, err
	}

	mode := cfg.ExecMode
	if opts.ExecMode != "" {
		mode = opts.ExecMode
	}
	dispatcher, err := executor.NewDispatcher(executor.Config{
		Runtime: rt,
		Mode:    mode,
		Shell:   cfg.Shell,
		Stdin:   opts.Stdin,
		Stdout:  opts.Stdout,
		Stderr:  opts.Stderr,
		Environ: opts.Environ,
		Logger:  opts.Logger.WithPrefix("executor"),
	})
	if err != nil {
		return executor.ExitFailure, err
	}

	return dispatcher.Run(ctx, executor.Request{
		Container: target.Sandbox.Name,
		Workdir:   target.Workdir,
		Args:      opts.Args,
	})
}

// Resolve picks the container for a normalized working directory.
//
// In per-directory mode the first configured directory containing cwd wins
// and cwd outside all of them is an error. In shared mode every directory is
// mounted into one container; cwd outside all of them runs in the image's
// working directory.
func Resolve(cfg *config.Config, cwd string) (Target, error) {
	if cfg.Shared {
		paths := cfg.Paths()
		target := Target{Sandbox: sandbox.Sandbox{
			Name:    identity.ForPaths(paths...),
			Image:   cfg.Image,
			Profile: cfg.Profile,
			Mounts:  paths,
		}}
		if m, err := identity.Resolve(cfg.Directories, cwd); err == nil {
			target.Workdir = m.Workdir
		}
		return target, nil
	}

	m, err := identity.Resolve(cfg.Directories, cwd)
	if err != nil {
		return Target{}, err
	}
	return Target{
		Sandbox: sandbox.Sandbox{
			Name:    identity.ForPath(m.Spec.Path),
			Image:   m.Spec.Image,
			Profile: m.Spec.Profile,
			Mounts:  []string{m.Spec.Path},
		},
		Workdir: m.Workdir,
	}, nil
}
