// Package preflight decides whether a guest can be launched on this host.
//
// Checks run in a fixed order and stop at the first failure: entry
// existence, host compatibility, then the minimum runtime version. Nothing
// here mutates the filesystem or spawns the guest.
package preflight

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/benaskins/leaf/internal/guest"
)

// Reason tags a validation failure.
type Reason string

const (
	EntryNotFound                Reason = "entry_not_found"
	UnsupportedHost              Reason = "unsupported_host"
	RuntimeTooOld                Reason = "runtime_too_old"
	UnsupportedRuntimeGeneration Reason = "unsupported_runtime_generation"
	MalformedVersion             Reason = "malformed_version"
)

// Failure is returned when a guest fails a preflight check.
type Failure struct {
	Reason  Reason
	Guest   string
	Message string
	Err     error
}

func (f *Failure) Error() string {
	return f.Message
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// RuntimeFunc reports the version string of the guest runtime.
type RuntimeFunc func(ctx context.Context) (string, error)

// Validator runs the preflight checks against one host.
type Validator struct {
	host    string
	runtime RuntimeFunc
	logger  *slog.Logger
}

// NewValidator creates a validator for host. The runtime func is called
// only for guests that declare a minimum runtime version.
func NewValidator(host string, runtime RuntimeFunc) *Validator {
	return &Validator{
		host:    host,
		runtime: runtime,
		logger:  slog.With("component", "preflight"),
	}
}

// Check validates d and returns nil or a *Failure.
func (v *Validator) Check(ctx context.Context, d *guest.Descriptor) error {
	if err := v.checkEntry(d); err != nil {
		return err
	}
	if err := v.checkHost(d); err != nil {
		return err
	}
	if err := v.checkRuntime(ctx, d); err != nil {
		return err
	}
	v.logger.Debug("preflight passed", "guest", d.Key, "identifier", d.Identifier)
	return nil
}

func (v *Validator) checkEntry(d *guest.Descriptor) error {
	entry, err := d.ResolveEntry()
	if err != nil {
		return &Failure{Reason: EntryNotFound, Guest: d.Key, Message: err.Error(), Err: err}
	}
	for _, p := range []string{entry.WorkDir, entry.Path()} {
		if _, err := os.Stat(p); err != nil {
			return &Failure{
				Reason:  EntryNotFound,
				Guest:   d.Key,
				Message: fmt.Sprintf("the path of %s does not exist: %s", d.Name, p),
				Err:     err,
			}
		}
	}
	return nil
}

func (v *Validator) checkHost(d *guest.Descriptor) error {
	if d.SupportsHost(v.host) {
		return nil
	}
	return &Failure{
		Reason:  UnsupportedHost,
		Guest:   d.Key,
		Message: fmt.Sprintf("%s does not support this host (%s); supported: %s", d.Name, v.host, hostList(d.SupportedHosts)),
	}
}

func (v *Validator) checkRuntime(ctx context.Context, d *guest.Descriptor) error {
	if d.MinRuntimeVersion == "" {
		return nil
	}

	required, err := ParseVersion(d.MinRuntimeVersion)
	if err != nil {
		return &Failure{
			Reason:  MalformedVersion,
			Guest:   d.Key,
			Message: fmt.Sprintf("%s declares an invalid min_runtime_version: %v", d.Name, err),
			Err:     err,
		}
	}
	if required.Major == 2 {
		return &Failure{
			Reason:  UnsupportedRuntimeGeneration,
			Guest:   d.Key,
			Message: fmt.Sprintf("%s requires runtime %s, but only runtime generation 3 and later is supported", d.Name, d.MinRuntimeVersion),
		}
	}

	if v.runtime == nil {
		err := errors.New("no runtime version source configured")
		return &Failure{Reason: MalformedVersion, Guest: d.Key, Message: err.Error(), Err: err}
	}
	raw, err := v.runtime(ctx)
	if err != nil {
		return &Failure{
			Reason:  MalformedVersion,
			Guest:   d.Key,
			Message: fmt.Sprintf("cannot determine the runtime version: %v", err),
			Err:     err,
		}
	}
	running, err := ParseVersion(raw)
	if err != nil {
		return &Failure{
			Reason:  MalformedVersion,
			Guest:   d.Key,
			Message: fmt.Sprintf("runtime reported an invalid version: %v", err),
			Err:     err,
		}
	}

	if running.Less(required) {
		return &Failure{
			Reason:  RuntimeTooOld,
			Guest:   d.Key,
			Message: fmt.Sprintf("%s needs runtime %s or higher, but this host has %s", d.Name, d.MinRuntimeVersion, raw),
		}
	}
	return nil
}

// Version is a (major, minor) runtime version.
type Version struct {
	Major int
	Minor int
}

// ParseVersion parses "major[.minor[.anything]]". Components past the
// minor are ignored; a missing minor is zero.
func ParseVersion(s string) (Version, error) {
	parts := strings.Split(strings.TrimSpace(s), ".")
	major, err := component(parts[0])
	if err != nil {
		return Version{}, fmt.Errorf("version %q: major %w", s, err)
	}
	v := Version{Major: major}
	if len(parts) > 1 {
		minor, err := component(parts[1])
		if err != nil {
			return Version{}, fmt.Errorf("version %q: minor %w", s, err)
		}
		v.Minor = minor
	}
	return v, nil
}

func component(s string) (int, error) {
	if s == "" {
		return 0, errors.New("is empty")
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("%q is not a number", s)
		}
	}
	return strconv.Atoi(s)
}

// Less reports whether v sorts before o on (major, minor).
func (v Version) Less(o Version) bool {
	if v.Major != o.Major {
		return v.Major < o.Major
	}
	return v.Minor < o.Minor
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

func hostList(hosts []string) string {
	if len(hosts) == 0 {
		return "none"
	}
	return strings.Join(hosts, ", ")
}
