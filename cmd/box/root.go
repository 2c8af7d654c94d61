package main

import (
	"box/internal/config"
	"box/internal/sandbox"
	"box/internal/shim"
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// envLogLevel sets the default log level.
const envLogLevel = "BOX_LOG_LEVEL"

type runner func(ctx context.Context, opts shim.Options) int

type rootOptions struct {
	configPath string
	shell      bool
	argv       bool
	logLevel   string
	quiet      bool
}

// execute runs the CLI with args and returns the process exit code.
func execute(ctx context.Context, args []string, run runner) int {
	code := 0
	cmd := newRootCmd(ctx, run, &code)
	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "box: %v\n", err)
		return 1
	}
	return code
}

func newRootCmd(ctx context.Context, run runner, code *int) *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "box [flags] <command> [args...]",
		Short: "Run a command in a per-directory Docker sandbox",
		Long: `box runs a command inside a long-lived Docker container bound to the
configured directory that contains the current working directory.

The directory is mounted at the same path inside the container and the
command runs there. The container is created on first use, started when
stopped, and recreated when its mounts or image no longer match the config.`,
		Version:       version,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			shimOpts, err := opts.shimOptions(cmd)
			if err != nil {
				return err
			}
			shimOpts.Args = args
			if opts.shell {
				shimOpts.ExecMode = sandbox.ExecShell
			} else if opts.argv {
				shimOpts.ExecMode = sandbox.ExecArgv
			}
			*code = run(ctx, shimOpts)
			return nil
		},
	}
	cmd.CompletionOptions.DisableDefaultCmd = true

	// Everything from the first positional argument on belongs to the command.
	cmd.Flags().SetInterspersed(false)

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", fmt.Sprintf("config file (default $%s or ~/.config/box/config.yaml)", config.EnvPath))
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", envOr(envLogLevel, "info"), "log level (debug, info, warn, error)")
	cmd.PersistentFlags().BoolVarP(&opts.quiet, "quiet", "q", false, "only log warnings and errors")
	cmd.Flags().BoolVar(&opts.shell, "shell", false, "run the command line through the configured shell")
	cmd.Flags().BoolVar(&opts.argv, "argv", false, "pass the arguments to the container verbatim")
	cmd.MarkFlagsMutuallyExclusive("shell", "argv")

	cmd.AddCommand(newKillCmd(ctx, opts, run, code))
	return cmd
}

func newKillCmd(ctx context.Context, opts *rootOptions, run runner, code *int) *cobra.Command {
	return &cobra.Command{
		Use:   "kill",
		Short: "Remove the container for the current directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			shimOpts, err := opts.shimOptions(cmd)
			if err != nil {
				return err
			}
			shimOpts.Kill = true
			*code = run(ctx, shimOpts)
			return nil
		},
	}
}

func (o *rootOptions) shimOptions(cmd *cobra.Command) (shim.Options, error) {
	logger, err := newLogger(o.logLevel, o.quiet, cmd)
	if err != nil {
		return shim.Options{}, err
	}
	return shim.Options{
		ConfigPath: o.configPath,
		Stdin:      cmd.InOrStdin(),
		Stdout:     cmd.OutOrStdout(),
		Stderr:     cmd.ErrOrStderr(),
		Logger:     logger,
	}, nil
}

// newLogger writes to stderr so the proxied command owns stdout.
func newLogger(level string, quiet bool, cmd *cobra.Command) (*log.Logger, error) {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid --log-level %q: %w", level, err)
	}
	if quiet && lvl < log.WarnLevel {
		lvl = log.WarnLevel
	}
	logger := log.NewWithOptions(cmd.ErrOrStderr(), log.Options{
		Prefix: "box",
		Level:  lvl,
	})
	return logger, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
