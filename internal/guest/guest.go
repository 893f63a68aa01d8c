package guest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"
)

var identifierRe = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,63}$`)

// ErrNotFound is returned when a selection key has no registry entry.
var ErrNotFound = errors.New("guest not found")

// ReservedKey is the menu selection that shuts leaf down; no guest may
// use it.
const ReservedKey = "0"

// DefaultEntryFile is run when a guest's path names a directory.
const DefaultEntryFile = "main.py"

// BootClass selects the boot flags passed to a guest.
type BootClass string

const (
	BootNormal   BootClass = "normal"
	BootRecovery BootClass = "recovery"
	BootNone     BootClass = "none"
)

// Descriptor is the registry entry for one guest.
type Descriptor struct {
	// Key is the selection key the descriptor was registered under.
	Key string `yaml:"-"`

	Name        string `yaml:"name"`
	Identifier  string `yaml:"identifier"`
	Version     string `yaml:"version,omitempty"`
	VersionCode string `yaml:"version_code,omitempty"`

	Path     string `yaml:"path,omitempty"`
	WorkDir  string `yaml:"work_dir,omitempty"`
	WorkFile string `yaml:"work_file,omitempty"`

	NeedsIsolatedEnv  *bool     `yaml:"needs_isolated_env,omitempty"`
	MinRuntimeVersion string    `yaml:"min_runtime_version,omitempty"`
	SupportedHosts    []string  `yaml:"supported_hosts,omitempty"`
	BootClass         BootClass `yaml:"boot_class,omitempty"`
}

// Entry is a resolved guest entry point.
type Entry struct {
	WorkDir string
	File    string
}

// Path returns the absolute path of the entry file.
func (e Entry) Path() string {
	if filepath.IsAbs(e.File) {
		return e.File
	}
	return filepath.Join(e.WorkDir, e.File)
}

// NeedsIsolation reports whether the guest runs in its own environment.
// Defaults to true when not explicitly set.
func (d *Descriptor) NeedsIsolation() bool {
	if d.NeedsIsolatedEnv == nil {
		return true
	}
	return *d.NeedsIsolatedEnv
}

// EffectiveBootClass returns the boot class, defaulting to none.
func (d *Descriptor) EffectiveBootClass() BootClass {
	if d.BootClass == "" {
		return BootNone
	}
	return d.BootClass
}

// SupportsHost reports whether host is listed verbatim in supported_hosts.
// An empty list supports nothing.
func (d *Descriptor) SupportsHost(host string) bool {
	for _, h := range d.SupportedHosts {
		if h == host {
			return true
		}
	}
	return false
}

// ResolveEntry picks the entry form. The work_dir/work_file pair wins over
// path. A path naming a directory runs DefaultEntryFile inside it.
func (d *Descriptor) ResolveEntry() (Entry, error) {
	if d.WorkDir != "" && d.WorkFile != "" {
		return Entry{WorkDir: d.WorkDir, File: d.WorkFile}, nil
	}
	if d.Path == "" {
		return Entry{}, fmt.Errorf("guest %q has no entry: set path or work_dir and work_file", d.Key)
	}
	if info, err := os.Stat(d.Path); err == nil && info.IsDir() {
		return Entry{WorkDir: d.Path, File: DefaultEntryFile}, nil
	}
	return Entry{WorkDir: filepath.Dir(d.Path), File: filepath.Base(d.Path)}, nil
}

// Validate checks that a descriptor is well-formed. It does not touch the
// filesystem; existence checks belong to preflight.
func (d *Descriptor) Validate() error {
	if d.Identifier == "" {
		return fmt.Errorf("identifier is required")
	}
	if !identifierRe.MatchString(d.Identifier) {
		return fmt.Errorf("identifier %q is invalid: must match ^[a-zA-Z0-9][a-zA-Z0-9._-]{0,63}$", d.Identifier)
	}
	switch d.BootClass {
	case "", BootNormal, BootRecovery, BootNone:
	default:
		return fmt.Errorf("boot_class must be \"normal\", \"recovery\", or \"none\", got %q", d.BootClass)
	}
	if (d.WorkDir == "") != (d.WorkFile == "") && d.Path == "" {
		return fmt.Errorf("work_dir and work_file must be set together")
	}
	return nil
}

// Registry holds the configured guests keyed by selection key.
type Registry struct {
	guests map[string]*Descriptor
}

// NewRegistry builds a registry from descriptors that already carry keys.
func NewRegistry(descriptors ...*Descriptor) *Registry {
	r := &Registry{guests: make(map[string]*Descriptor, len(descriptors))}
	for _, d := range descriptors {
		r.guests[d.Key] = d
	}
	return r
}

// Load reads a guest registry file. A missing file is an empty registry.
// JSON registries load too since the parser accepts flow-style YAML.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewRegistry(), nil
		}
		return nil, fmt.Errorf("reading registry %s: %w", path, err)
	}

	raw := map[string]*Descriptor{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing registry %s: %w", path, err)
	}

	r := &Registry{guests: make(map[string]*Descriptor, len(raw))}
	for key, d := range raw {
		if d == nil {
			return nil, fmt.Errorf("registry %s: guest %q is empty", path, key)
		}
		if key == ReservedKey {
			return nil, fmt.Errorf("registry %s: key %q is reserved for shutdown", path, key)
		}
		d.Key = key
		if d.Name == "" {
			d.Name = "Unknown"
		}
		if err := d.Validate(); err != nil {
			return nil, fmt.Errorf("registry %s: guest %q: %w", path, key, err)
		}
		d.Path = expand(d.Path)
		d.WorkDir = expand(d.WorkDir)
		r.guests[key] = d
	}
	return r, nil
}

// Bootstrap writes an empty registry at path if none exists.
func Bootstrap(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating registry dir: %w", err)
	}
	return os.WriteFile(path, []byte("# guests keyed by menu selection, e.g.\n# \"1\":\n#   name: Leaf OS\n#   identifier: leafos\n#   path: ~/guests/leafos\n#   supported_hosts: [Linux, Darwin]\n#   boot_class: normal\n{}\n"), 0644)
}

// Lookup returns the descriptor registered under key.
func (r *Registry) Lookup(key string) (*Descriptor, error) {
	d, ok := r.guests[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, key)
	}
	return d, nil
}

// Len returns the number of guests.
func (r *Registry) Len() int {
	return len(r.guests)
}

// Keys returns selection keys in menu order: numeric keys ascending, then
// the rest lexically.
func (r *Registry) Keys() []string {
	keys := make([]string, 0, len(r.guests))
	for k := range r.guests {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, aErr := strconv.Atoi(keys[i])
		b, bErr := strconv.Atoi(keys[j])
		switch {
		case aErr == nil && bErr == nil:
			return a < b
		case aErr == nil:
			return true
		case bErr == nil:
			return false
		}
		return keys[i] < keys[j]
	})
	return keys
}

// All returns the descriptors in menu order.
func (r *Registry) All() []*Descriptor {
	keys := r.Keys()
	out := make([]*Descriptor, 0, len(keys))
	for _, k := range keys {
		out = append(out, r.guests[k])
	}
	return out
}

func expand(path string) string {
	if path == "" {
		return path
	}
	expanded, err := homedir.Expand(path)
	if err != nil {
		return path
	}
	return expanded
}
