package executor

import (
	"box/internal/docker"
	"io"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/term"
)

// terminal is the host console when both ends of the session are attached
// to one.
type terminal struct {
	in    *os.File
	out   *os.File
	state *term.State
}

// openTerminal returns nil unless in and out are both terminals.
func openTerminal(in io.Reader, out io.Writer) *terminal {
	inFile, ok := in.(*os.File)
	if !ok || !term.IsTerminal(int(inFile.Fd())) {
		return nil
	}
	outFile, ok := out.(*os.File)
	if !ok || !term.IsTerminal(int(outFile.Fd())) {
		return nil
	}
	return &terminal{in: inFile, out: outFile}
}

func (t *terminal) makeRaw() error {
	state, err := term.MakeRaw(int(t.in.Fd()))
	if err != nil {
		return err
	}
	t.state = state
	return nil
}

func (t *terminal) restore() {
	if t.state != nil {
		_ = term.Restore(int(t.in.Fd()), t.state)
		t.state = nil
	}
}

func (t *terminal) size() *docker.TerminalSize {
	width, height, err := term.GetSize(int(t.out.Fd()))
	if err != nil || width <= 0 || height <= 0 {
		return nil
	}
	return &docker.TerminalSize{Height: uint(height), Width: uint(width)}
}

// watchResize reports the new console size after every SIGWINCH until stop
// is called.
func (t *terminal) watchResize() (<-chan docker.TerminalSize, func()) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGWINCH)

	sizes := make(chan docker.TerminalSize, 1)
	done := make(chan struct{})
	go func() {
		defer close(sizes)
		for {
			select {
			case <-sigCh:
				if size := t.size(); size != nil {
					// Keep only the latest size.
					select {
					case <-sizes:
					default:
					}
					sizes <- *size
				}
			case <-done:
				return
			}
		}
	}()

	return sizes, func() {
		signal.Stop(sigCh)
		close(done)
	}
}
