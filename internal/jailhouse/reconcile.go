package jailhouse

import (
	"box/internal/sandbox"
	"fmt"
	"sort"
	"strings"
)

// Decide compares the desired container with what the runtime reported and
// returns the corrective action. It performs no I/O.
//
// Only bind mounts and the image are compared. Security flags are applied
// at create time and never compared.
func Decide(desired sandbox.Sandbox, observed sandbox.ObservedState) sandbox.Decision {
	switch observed.Status {
	case sandbox.StatusAbsent:
		return sandbox.Decision{Action: sandbox.ActionCreate}

	case sandbox.StatusExited:
		if drift := Drift(desired, observed.Config); len(drift) > 0 {
			return sandbox.Decision{Action: sandbox.ActionRecreate, Reason: strings.Join(drift, "; ")}
		}
		return sandbox.Decision{Action: sandbox.ActionStart}

	case sandbox.StatusRunning:
		if drift := Drift(desired, observed.Config); len(drift) > 0 {
			return sandbox.Decision{Action: sandbox.ActionRecreate, Reason: strings.Join(drift, "; ")}
		}
		return sandbox.Decision{Action: sandbox.ActionReuse}

	default:
		raw := observed.RawStatus
		if raw == "" {
			raw = "unknown"
		}
		return sandbox.Decision{
			Action: sandbox.ActionFatal,
			Reason: fmt.Sprintf("container %s is in state %q", desired.Name, raw),
		}
	}
}

// Drift lists every difference between the desired container and the
// observed configuration. An empty result means the container matches.
// Unknown configuration always drifts.
func Drift(desired sandbox.Sandbox, observed sandbox.ObservedConfig) []string {
	if !observed.Known {
		return []string{"container configuration could not be read"}
	}

	var drift []string
	expected := desired.ExpectedMounts()

	for _, src := range sortedKeys(expected) {
		got, ok := observed.Mounts[src]
		switch {
		case !ok:
			drift = append(drift, fmt.Sprintf("missing mount %s", src))
		case got != expected[src]:
			drift = append(drift, fmt.Sprintf("mount %s targets %s, want %s", src, got, expected[src]))
		}
	}
	for _, src := range sortedKeys(observed.Mounts) {
		if _, ok := expected[src]; !ok {
			drift = append(drift, fmt.Sprintf("unexpected mount %s:%s", src, observed.Mounts[src]))
		}
	}

	if observed.Image != desired.Image {
		drift = append(drift, fmt.Sprintf("image is %q, want %q", observed.Image, desired.Image))
	}

	return drift
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
