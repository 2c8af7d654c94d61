package docker

import (
	"box/internal/sandbox"
	"context"
	"fmt"
	"io"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/pkg/stdcopy"
)

// etx is what a terminal sends for Ctrl+C. Written to an exec's PTY, the
// line discipline inside the container turns it into SIGINT.
const etx = 0x03

// TerminalSize is a console size in character cells.
type TerminalSize struct {
	Height uint
	Width  uint
}

// ExecOptions configures a command run inside a container.
type ExecOptions struct {
	Cmd        []string
	WorkingDir string // empty keeps the image's working directory
	Env        []string
	Tty        bool // allocate a pseudo-terminal; output is not multiplexed
	Stdin      io.Reader
	Stdout     io.Writer
	Stderr     io.Writer // unused with Tty
	Size       *TerminalSize
	Resize     <-chan TerminalSize
}

// Exec runs opts.Cmd in the named container, streams its output and returns
// its exit code. If ctx is cancelled first the interrupt is forwarded through
// the PTY (when there is one) and ctx.Err() is returned.
func (c *Client) Exec(ctx context.Context, name string, opts ExecOptions) (int, error) {
	if len(opts.Cmd) == 0 {
		return -1, sandbox.ErrNoCommandSpecified
	}

	var consoleSize *[2]uint
	if opts.Tty && opts.Size != nil {
		consoleSize = &[2]uint{opts.Size.Height, opts.Size.Width}
	}

	created, err := c.api.ContainerExecCreate(ctx, name, container.ExecOptions{
		Cmd:          opts.Cmd,
		WorkingDir:   opts.WorkingDir,
		Env:          opts.Env,
		Tty:          opts.Tty,
		ConsoleSize:  consoleSize,
		AttachStdin:  opts.Stdin != nil,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return -1, fmt.Errorf("%w: create exec in %s: %v", sandbox.ErrExecFailed, name, err)
	}

	c.logger.Debug("exec created", "container", name, "exec", created.ID, "cmd", opts.Cmd, "tty", opts.Tty)

	resp, err := c.api.ContainerExecAttach(ctx, created.ID, container.ExecAttachOptions{
		Tty:         opts.Tty,
		ConsoleSize: consoleSize,
	})
	if err != nil {
		return -1, fmt.Errorf("%w: attach exec in %s: %v", sandbox.ErrExecFailed, name, err)
	}
	defer resp.Close()

	if opts.Stdin != nil {
		go func() {
			if _, err := io.Copy(resp.Conn, opts.Stdin); err != nil {
				c.logger.Debug("stdin copy ended", "err", err)
			}
			_ = resp.CloseWrite()
		}()
	}

	stdout, stderr := opts.Stdout, opts.Stderr
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}

	outputDone := make(chan error, 1)
	go func() {
		var err error
		if opts.Tty {
			_, err = io.Copy(stdout, resp.Reader)
		} else {
			_, err = stdcopy.StdCopy(stdout, stderr, resp.Reader)
		}
		outputDone <- err
	}()

	resize := opts.Resize
	for {
		select {
		case err := <-outputDone:
			if err != nil {
				c.logger.Debug("output stream ended with error", "err", err)
			}
			inspect, err := c.api.ContainerExecInspect(context.WithoutCancel(ctx), created.ID)
			if err != nil {
				return -1, fmt.Errorf("%w: inspect exec in %s: %v", sandbox.ErrExecFailed, name, err)
			}
			return inspect.ExitCode, nil

		case size, ok := <-resize:
			if !ok {
				resize = nil
				continue
			}
			if err := c.api.ContainerExecResize(ctx, created.ID, container.ResizeOptions{
				Height: size.Height,
				Width:  size.Width,
			}); err != nil {
				c.logger.Debug("exec resize failed", "err", err)
			}

		case <-ctx.Done():
			if opts.Tty {
				if _, err := resp.Conn.Write([]byte{etx}); err != nil {
					c.logger.Debug("could not forward interrupt", "err", err)
				}
			}
			return -1, ctx.Err()
		}
	}
}
