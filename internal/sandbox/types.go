// Package sandbox defines the types shared by the box components:
// the declared directory configuration, the observed container state,
// and the reconciliation decision computed from the two.
package sandbox

import (
	"fmt"
	"sort"
	"strings"
)

// DefaultImage is used for directories that do not declare an image.
const DefaultImage = "ubuntu:latest"

// Profile selects the isolation posture a container is created with.
type Profile string

const (
	ProfilePermissive Profile = "permissive"
	ProfileHardened   Profile = "hardened"
)

func (p Profile) String() string {
	return string(p)
}

// Hardened reports whether the profile asks for the restricted posture.
func (p Profile) Hardened() bool {
	return p == ProfileHardened
}

// DirectorySpec is one configured directory.
type DirectorySpec struct {
	Path    string  // absolute, cleaned, symlink-resolved
	Image   string  // image reference the container runs
	Profile Profile // permissive unless the entry asks for hardened
}

// Sandbox is the container a single invocation wants to exist.
type Sandbox struct {
	Name    string // container name derived from the mounted paths
	Image   string
	Profile Profile
	Mounts  []string // host paths, each bound at the identical path inside the container
}

// ExpectedMounts returns the source→destination map the container must carry.
func (s Sandbox) ExpectedMounts() map[string]string {
	m := make(map[string]string, len(s.Mounts))
	for _, p := range s.Mounts {
		m[p] = p
	}
	return m
}

// Status is the lifecycle phase of a container as reported by the runtime,
// collapsed to the phases the reconciler knows how to handle.
type Status int

const (
	StatusAbsent Status = iota
	StatusRunning
	StatusExited
	StatusOther
)

func (s Status) String() string {
	switch s {
	case StatusAbsent:
		return "absent"
	case StatusRunning:
		return "running"
	case StatusExited:
		return "exited"
	default:
		return "other"
	}
}

// ParseStatus maps a runtime lifecycle phase onto a Status.
func ParseStatus(raw string) Status {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "running":
		return StatusRunning
	case "exited":
		return StatusExited
	default:
		return StatusOther
	}
}

// ObservedConfig is the mount and image configuration read back from the runtime.
// A zero value is Unknown: the runtime could not tell us what the container
// carries, which is not the same as carrying nothing.
type ObservedConfig struct {
	Known  bool
	Mounts map[string]string // bind mounts only, source → destination
	Image  string
}

// KnownConfig builds an ObservedConfig that was successfully read.
func KnownConfig(mounts map[string]string, image string) ObservedConfig {
	if mounts == nil {
		mounts = map[string]string{}
	}
	return ObservedConfig{Known: true, Mounts: mounts, Image: image}
}

// UnknownConfig is returned when the configuration could not be read.
func UnknownConfig() ObservedConfig {
	return ObservedConfig{}
}

func (c ObservedConfig) String() string {
	if !c.Known {
		return "unknown"
	}
	return fmt.Sprintf("mounts=%s image=%q", formatMounts(c.Mounts), c.Image)
}

// ObservedState is a fresh reading of one container. It is never cached.
type ObservedState struct {
	Status    Status
	RawStatus string // the runtime's own word for the phase, kept for diagnostics
	Config    ObservedConfig
}

// Exists reports whether the runtime knows the container at all.
func (o ObservedState) Exists() bool {
	return o.Status != StatusAbsent
}

// Action is the corrective step chosen by the reconciler.
type Action int

const (
	ActionCreate Action = iota
	ActionStart
	ActionRecreate
	ActionReuse
	ActionFatal
)

func (a Action) String() string {
	switch a {
	case ActionCreate:
		return "create"
	case ActionStart:
		return "start"
	case ActionRecreate:
		return "recreate"
	case ActionReuse:
		return "reuse"
	default:
		return "fatal"
	}
}

// Decision is the result of comparing a Sandbox with an ObservedState.
type Decision struct {
	Action Action
	Reason string // set for ActionFatal and ActionRecreate
}

func (d Decision) String() string {
	if d.Reason == "" {
		return d.Action.String()
	}
	return fmt.Sprintf("%s (%s)", d.Action, d.Reason)
}

// ExecMode selects how the argument vector reaches the container.
type ExecMode string

const (
	// ExecArgv passes the arguments to the exec call verbatim. No shell
	// interpretation happens inside the container.
	ExecArgv ExecMode = "argv"
	// ExecShell joins the arguments with spaces and runs them through a shell,
	// so pipes, redirects and globs work. The joined string is interpreted
	// by the shell, so arguments are not quoted or escaped.
	ExecShell ExecMode = "shell"
)

// ParseExecMode validates a configured exec mode. Empty selects ExecArgv.
func ParseExecMode(s string) (ExecMode, error) {
	switch ExecMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ExecArgv:
		return ExecArgv, nil
	case ExecShell:
		return ExecShell, nil
	default:
		return "", fmt.Errorf("%w: unknown exec mode %q (want %q or %q)", ErrConfigInvalid, s, ExecArgv, ExecShell)
	}
}

func formatMounts(m map[string]string) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+":"+m[k])
	}
	return "[" + strings.Join(parts, " ") + "]"
}
