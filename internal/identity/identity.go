// Package identity derives deterministic container names from directory
// paths and resolves which configured directory a working directory falls in.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// Prefix namespaces every container this tool manages.
const Prefix = "box-"

// hashLen is the number of hex characters of the digest kept in a name.
const hashLen = 12

// namePattern matches a name produced by ForPaths.
var namePattern = regexp.MustCompile(`^box-[a-f0-9]{12}$`)

// ForPath returns the container name for a single normalized directory.
func ForPath(path string) string {
	return ForPaths(path)
}

// ForPaths returns the container name for a set of normalized directories.
// The order of paths does not matter. For a single path the result equals ForPath.
func ForPaths(paths ...string) string {
	sorted := append([]string(nil), paths...)
	sort.Strings(sorted)

	sum := sha256.Sum256([]byte(strings.Join(sorted, "\x00")))
	return Prefix + hex.EncodeToString(sum[:])[:hashLen]
}

// Valid reports whether name has the shape of a derived container name.
func Valid(name string) bool {
	return namePattern.MatchString(name)
}

// Normalize returns the absolute, cleaned, symlink-resolved form of path.
// A path that does not exist yet is returned absolute and cleaned, so that
// missing directories can still be configured.
func Normalize(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", path, err)
	}

	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return abs, nil
		}
		return "", fmt.Errorf("resolve symlinks in %s: %w", abs, err)
	}
	return resolved, nil
}

// Getwd returns the normalized current working directory.
func Getwd() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get working directory: %w", err)
	}
	return Normalize(cwd)
}

// Contains reports whether p is dir or lies beneath it.
// Both paths must already be normalized. Matching is per path segment, so
// /home/alice does not contain /home/alice2.
func Contains(dir, p string) bool {
	rel, err := filepath.Rel(dir, p)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}
