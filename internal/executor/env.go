package executor

import (
	"strings"
)

// Only terminal and locale settings cross into the sandbox. Host
// credentials and paths are never forwarded.
var envAllowlist = map[string]bool{
	"TERM":      true,
	"COLORTERM": true,
	"LANG":      true,
	"LANGUAGE":  true,
}

// ForwardEnv filters host environment entries down to those that are
// passed to the exec session.
func ForwardEnv(env []string) []string {
	forwarded := make([]string, 0, len(env))
	for _, entry := range env {
		key := envKey(entry)
		if envAllowlist[key] || strings.HasPrefix(key, "LC_") {
			forwarded = append(forwarded, entry)
		}
	}
	return forwarded
}

// envKey extracts the key from a "KEY=VALUE" environment entry.
func envKey(entry string) string {
	if idx := strings.IndexByte(entry, '='); idx >= 0 {
		return entry[:idx]
	}
	return entry
}
