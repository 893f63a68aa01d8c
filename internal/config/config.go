// Package config loads leaf's persistent configuration from
// ~/.leaf/config.yaml.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"

	"github.com/benaskins/leaf/internal/hostinfo"
)

// Config holds persistent configuration. Paths may start with ~ and
// relative paths are resolved against the leaf home.
type Config struct {
	Registry    string `yaml:"registry"`
	EnvsRoot    string `yaml:"envs_root"`
	StateFile   string `yaml:"state_file"`
	HistoryFile string `yaml:"history_file"`

	// Interpreter runs guests that do not need isolation and builds
	// environments.
	Interpreter string `yaml:"interpreter"`
	// Host overrides the detected host identifier.
	Host string `yaml:"host"`
	// RuntimeVersion overrides probing "<interpreter> --version".
	RuntimeVersion string `yaml:"runtime_version"`

	// Default is the menu key preselected and booted when Timeout expires.
	Default string   `yaml:"default"`
	Timeout Duration `yaml:"timeout"`

	// StopGrace is how long a guest gets to exit after SIGTERM when leaf
	// stops it, before it is killed.
	StopGrace Duration `yaml:"stop_grace"`

	LogLevel string `yaml:"log_level"`
}

// Duration wraps time.Duration for YAML unmarshaling from strings like
// "10s" or a bare number of seconds.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	if secs, err := strconv.Atoi(s); err == nil {
		d.Duration = time.Duration(secs) * time.Second
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return d.Duration.String(), nil
}

// DefaultStopGrace is the stop_grace used when none is configured.
const DefaultStopGrace = 5 * time.Second

// DefaultHome returns ~/.leaf.
func DefaultHome() string {
	home, err := homedir.Dir()
	if err != nil {
		return ".leaf"
	}
	return filepath.Join(home, ".leaf")
}

// DefaultPath returns the config file path inside home.
func DefaultPath(home string) string {
	return filepath.Join(home, "config.yaml")
}

// Load reads a YAML config file from path and fills unset fields with
// defaults rooted at home. If the file does not exist, or is empty, the
// defaults are returned with no error.
func Load(path, home string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	if err := cfg.resolve(home); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) resolve(home string) error {
	defaults := []struct {
		field *string
		name  string
	}{
		{&c.Registry, "guests.yaml"},
		{&c.EnvsRoot, "envs"},
		{&c.StateFile, "state.json"},
		{&c.HistoryFile, "history.log"},
	}
	for _, d := range defaults {
		if *d.field == "" {
			*d.field = d.name
		}
		p, err := homedir.Expand(*d.field)
		if err != nil {
			return fmt.Errorf("expanding %s: %w", *d.field, err)
		}
		if !filepath.IsAbs(p) {
			p = filepath.Join(home, p)
		}
		*d.field = p
	}

	if c.Interpreter == "" {
		c.Interpreter = hostinfo.DefaultInterpreter()
	}
	if c.Host == "" {
		c.Host = hostinfo.Host()
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.StopGrace.Duration == 0 {
		c.StopGrace.Duration = DefaultStopGrace
	}
	return nil
}

// Validate checks field values that cannot be defaulted.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn or error, got %q", c.LogLevel)
	}
	if c.Timeout.Duration < 0 {
		return fmt.Errorf("timeout must not be negative, got %s", c.Timeout.Duration)
	}
	if c.StopGrace.Duration < 0 {
		return fmt.Errorf("stop_grace must not be negative, got %s", c.StopGrace.Duration)
	}
	return nil
}

const defaultFile = `# leaf configuration
#
# registry: guests.yaml
# envs_root: envs
# interpreter: python3
# host: Linux
# runtime_version: "3.12"
#
# Boot this menu key automatically after timeout (0 waits forever).
# default: "1"
# timeout: 10s
#
# How long a guest gets after SIGTERM when leaf stops it (terminal hangup).
# stop_grace: 5s
#
# log_level: info
`

// WriteDefault writes a commented template to path unless a file is
// already there. It reports whether a file was written.
func WriteDefault(path string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return false, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return false, fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(defaultFile), 0644); err != nil {
		return false, fmt.Errorf("writing config: %w", err)
	}
	return true, nil
}
