// Package config loads the list of sandboxed directories from YAML.
package config

import (
	"box/internal/identity"
	"box/internal/sandbox"
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"gopkg.in/yaml.v3"
)

// EnvPath overrides the default config location.
const EnvPath = "BOX_CONFIG"

// DefaultShell runs the joined command line in shell exec mode.
const DefaultShell = "bash"

// Entry is one configured directory as written in the file.
type Entry struct {
	Dir      string `yaml:"dir"`
	Image    string `yaml:"image,omitempty"`
	Hardened *bool  `yaml:"hardened,omitempty"`
}

// File is the mapping form of the config file. The list form is a bare
// Directories sequence with every other field left at its default.
type File struct {
	Image       string  `yaml:"image,omitempty"`     // default image for entries
	Hardened    bool    `yaml:"hardened,omitempty"`  // default profile for entries
	ExecMode    string  `yaml:"exec_mode,omitempty"` // argv | shell
	Shell       string  `yaml:"shell,omitempty"`
	Shared      bool    `yaml:"shared,omitempty"` // one container for every directory
	Lock        *bool   `yaml:"lock,omitempty"`
	Directories []Entry `yaml:"directories"`
}

// Config is the validated configuration for one invocation.
type Config struct {
	Path        string // file the config was read from
	Directories []sandbox.DirectorySpec
	Image       string
	Profile     sandbox.Profile
	ExecMode    sandbox.ExecMode
	Shell       string
	Shared      bool
	Lock        bool
}

// DefaultPath returns $BOX_CONFIG, or ~/.config/box/config.yaml.
func DefaultPath() (string, error) {
	if p := os.Getenv(EnvPath); p != "" {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".config", "box", "config.yaml"), nil
}

// Load reads and validates the config file at path. Directories that do not
// exist are reported through logger but are not an error.
func Load(path string, logger *log.Logger) (*Config, error) {
	if logger == nil {
		logger = log.Default()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &MissingError{Path: path}
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	file, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	cfg, err := file.resolve()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	cfg.Path = path

	for _, d := range cfg.Directories {
		if _, err := os.Stat(d.Path); err != nil {
			logger.Warn("directory does not exist", "dir", d.Path)
		}
	}

	return cfg, nil
}

// Parse decodes either the list form or the mapping form of the config file.
func Parse(data []byte) (*File, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", sandbox.ErrConfigInvalid, err)
	}
	if len(doc.Content) == 0 {
		return nil, fmt.Errorf("%w: config is empty", sandbox.ErrConfigInvalid)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var file File
	switch doc.Content[0].Kind {
	case yaml.SequenceNode:
		if err := dec.Decode(&file.Directories); err != nil {
			return nil, fmt.Errorf("%w: %v", sandbox.ErrConfigInvalid, err)
		}
	case yaml.MappingNode:
		if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: %v", sandbox.ErrConfigInvalid, err)
		}
	default:
		return nil, fmt.Errorf("%w: config must be a list of entries or a mapping with a directories list", sandbox.ErrConfigInvalid)
	}

	return &file, nil
}

// resolve fills defaults and validates the decoded file.
func (f *File) resolve() (*Config, error) {
	if len(f.Directories) == 0 {
		return nil, fmt.Errorf("%w: no directories configured", sandbox.ErrConfigInvalid)
	}

	mode, err := sandbox.ParseExecMode(f.ExecMode)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Image:    f.Image,
		Profile:  profile(f.Hardened),
		ExecMode: mode,
		Shell:    f.Shell,
		Shared:   f.Shared,
		Lock:     true,
	}
	if cfg.Image == "" {
		cfg.Image = sandbox.DefaultImage
	}
	if cfg.Shell == "" {
		cfg.Shell = DefaultShell
	}
	if f.Lock != nil {
		cfg.Lock = *f.Lock
	}

	seen := make(map[string]string, len(f.Directories))
	for i, e := range f.Directories {
		if strings.TrimSpace(e.Dir) == "" {
			return nil, fmt.Errorf("%w: entry %d has no dir field", sandbox.ErrConfigInvalid, i+1)
		}

		dir, err := expandPath(e.Dir)
		if err != nil {
			return nil, err
		}
		dir, err = identity.Normalize(dir)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", sandbox.ErrConfigInvalid, err)
		}

		name := identity.ForPath(dir)
		if prev, ok := seen[name]; ok {
			return nil, fmt.Errorf("%w: %s and %s resolve to the same directory", sandbox.ErrConfigInvalid, prev, e.Dir)
		}
		seen[name] = e.Dir

		spec := sandbox.DirectorySpec{Path: dir, Image: e.Image, Profile: cfg.Profile}
		if spec.Image == "" {
			spec.Image = cfg.Image
		}
		if e.Hardened != nil {
			spec.Profile = profile(*e.Hardened)
		}

		if cfg.Shared && (spec.Image != cfg.Image || spec.Profile != cfg.Profile) {
			return nil, fmt.Errorf("%w: %s: entries of a shared container cannot override image or hardened", sandbox.ErrConfigInvalid, e.Dir)
		}

		cfg.Directories = append(cfg.Directories, spec)
	}

	return cfg, nil
}

// Paths returns every configured directory, in configured order.
func (c *Config) Paths() []string {
	paths := make([]string, len(c.Directories))
	for i, d := range c.Directories {
		paths[i] = d.Path
	}
	return paths
}

func profile(hardened bool) sandbox.Profile {
	if hardened {
		return sandbox.ProfileHardened
	}
	return sandbox.ProfilePermissive
}

// expandPath expands environment variables and a leading ~ in a configured dir.
func expandPath(p string) (string, error) {
	p = os.ExpandEnv(p)
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	if p == "~" {
		return home, nil
	}
	return filepath.Join(home, p[2:]), nil
}

// MissingError reports an absent config file and shows how to write one.
type MissingError struct {
	Path string
}

func (e *MissingError) Error() string {
	return fmt.Sprintf("config file not found: %s\n"+
		"create a YAML file with format:\n"+
		"- dir: /path/to/dir\n"+
		"  image: %s", e.Path, sandbox.DefaultImage)
}

// Unwrap lets errors.Is match sandbox.ErrConfigMissing.
func (e *MissingError) Unwrap() error {
	return sandbox.ErrConfigMissing
}
