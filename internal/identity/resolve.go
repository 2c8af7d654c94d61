package identity

import (
	"box/internal/sandbox"
	"fmt"
	"strings"
)

// Match is the configured directory a working directory resolved to.
type Match struct {
	Spec    sandbox.DirectorySpec
	Workdir string // the working directory, inside Spec.Path
}

// NoMatchError reports a working directory outside every configured directory.
// It lists the configured directories so the user can see what was expected.
type NoMatchError struct {
	Cwd   string
	Specs []sandbox.DirectorySpec
}

func (e *NoMatchError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "current directory %s is not in any configured directory", e.Cwd)
	b.WriteString("\nconfigured directories:")
	for _, s := range e.Specs {
		fmt.Fprintf(&b, "\n  - %s (image: %s)", s.Path, s.Image)
	}
	return b.String()
}

// Unwrap lets errors.Is match sandbox.ErrNoMatchingDirectory.
func (e *NoMatchError) Unwrap() error {
	return sandbox.ErrNoMatchingDirectory
}

// Resolve returns the first spec, in configured order, whose path is cwd or
// an ancestor of it. cwd and every spec path must be normalized.
func Resolve(specs []sandbox.DirectorySpec, cwd string) (Match, error) {
	for _, s := range specs {
		if Contains(s.Path, cwd) {
			return Match{Spec: s, Workdir: cwd}, nil
		}
	}
	return Match{}, &NoMatchError{Cwd: cwd, Specs: specs}
}
