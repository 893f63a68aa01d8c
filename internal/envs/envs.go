// Package envs provisions the per-guest isolated runtime environments that
// live under a shared environments root.
//
// An environment is valid exactly when its interpreter executable exists.
// A root directory without one is treated as a partial build and removed
// before rebuilding. One leaf process per root is assumed.
package envs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
)

// Reason tags a provisioning failure.
type Reason string

const (
	BuildFailed     Reason = "build_failed"
	FilesystemError Reason = "filesystem_error"
)

// Failure is returned when an environment cannot be provided.
type Failure struct {
	Reason     Reason
	Identifier string
	Message    string
	// Output holds the build tool's combined output, if any.
	Output string
	Err    error
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s: %v", f.Message, f.Err)
	}
	return f.Message
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// Builder creates a fresh environment named name inside dir.
type Builder interface {
	Build(ctx context.Context, dir, name string) ([]byte, error)
}

// VenvBuilder builds environments with "<interpreter> -m venv <name>".
type VenvBuilder struct {
	Interpreter string
}

func (b VenvBuilder) Build(ctx context.Context, dir, name string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, b.Interpreter, "-m", "venv", name)
	cmd.Dir = dir
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return out.Bytes(), err
}

// Environment describes one isolated environment on disk.
type Environment struct {
	Identifier string `json:"identifier"`
	Root       string `json:"root"`
	Executable string `json:"executable"`
	Valid      bool   `json:"valid"`
}

// Config holds provisioner settings.
type Config struct {
	// Root is the shared environments directory.
	Root string
	// Interpreter is the host interpreter, used for guests that do not
	// need isolation and by the default builder.
	Interpreter string
	// Builder overrides the venv builder.
	Builder Builder
	// GOOS overrides runtime.GOOS for executable layout.
	GOOS string
}

// Provisioner ensures isolated environments exist.
type Provisioner struct {
	root        string
	interpreter string
	builder     Builder
	goos        string
	logger      *slog.Logger
}

// NewProvisioner creates a provisioner rooted at cfg.Root.
func NewProvisioner(cfg Config) *Provisioner {
	p := &Provisioner{
		root:        cfg.Root,
		interpreter: cfg.Interpreter,
		builder:     cfg.Builder,
		goos:        cfg.GOOS,
		logger:      slog.With("component", "envs"),
	}
	if p.goos == "" {
		p.goos = runtime.GOOS
	}
	if p.builder == nil {
		p.builder = VenvBuilder{Interpreter: p.interpreter}
	}
	return p
}

// Root returns the environments root.
func (p *Provisioner) Root() string {
	return p.root
}

// Locate computes the environment paths for identifier without touching
// the filesystem.
func (p *Provisioner) Locate(identifier string) (Environment, error) {
	name, err := normalize(identifier)
	if err != nil {
		return Environment{}, err
	}
	root := filepath.Join(p.root, name)
	return Environment{
		Identifier: name,
		Root:       root,
		Executable: executablePath(p.goos, root),
	}, nil
}

// Ensure returns the executable to launch a guest with. Without isolation
// it is the host interpreter and the filesystem is not touched. Otherwise
// the guest's environment is reused if valid and rebuilt if not.
func (p *Provisioner) Ensure(ctx context.Context, identifier string, isolate bool) (string, error) {
	if !isolate {
		return p.interpreter, nil
	}

	env, err := p.Locate(identifier)
	if err != nil {
		return "", err
	}

	if exists(env.Executable) {
		p.logger.Debug("reusing environment", "identifier", env.Identifier, "executable", env.Executable)
		return env.Executable, nil
	}

	if err := p.discardPartial(env); err != nil {
		return "", err
	}

	if err := os.MkdirAll(p.root, 0755); err != nil {
		return "", &Failure{
			Reason:     FilesystemError,
			Identifier: env.Identifier,
			Message:    fmt.Sprintf("creating environments root %s", p.root),
			Err:        err,
		}
	}

	p.logger.Info("building environment", "identifier", env.Identifier, "root", env.Root)
	out, err := p.builder.Build(ctx, p.root, env.Identifier)
	if err != nil {
		return "", &Failure{
			Reason:     BuildFailed,
			Identifier: env.Identifier,
			Message:    fmt.Sprintf("failed to create environment %s", env.Identifier),
			Output:     strings.TrimSpace(string(out)),
			Err:        err,
		}
	}

	if !exists(env.Executable) {
		return "", &Failure{
			Reason:     BuildFailed,
			Identifier: env.Identifier,
			Message:    fmt.Sprintf("environment %s was built but %s is missing", env.Identifier, env.Executable),
			Output:     strings.TrimSpace(string(out)),
		}
	}

	p.logger.Info("environment ready", "identifier", env.Identifier, "executable", env.Executable)
	return env.Executable, nil
}

// discardPartial removes a root that exists without its executable.
func (p *Provisioner) discardPartial(env Environment) error {
	if _, err := os.Lstat(env.Root); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return &Failure{
			Reason:     FilesystemError,
			Identifier: env.Identifier,
			Message:    fmt.Sprintf("inspecting %s", env.Root),
			Err:        err,
		}
	}

	p.logger.Warn("discarding incomplete environment", "identifier", env.Identifier, "root", env.Root)
	if err := os.RemoveAll(env.Root); err != nil {
		return &Failure{
			Reason:     FilesystemError,
			Identifier: env.Identifier,
			Message:    fmt.Sprintf("removing incomplete environment %s", env.Root),
			Err:        err,
		}
	}
	return nil
}

// Invalidate destroys an environment so the next Ensure rebuilds it.
// Removing an environment that does not exist is not an error.
func (p *Provisioner) Invalidate(identifier string) error {
	env, err := p.Locate(identifier)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(env.Root); err != nil {
		return &Failure{
			Reason:     FilesystemError,
			Identifier: env.Identifier,
			Message:    fmt.Sprintf("removing environment %s", env.Root),
			Err:        err,
		}
	}
	p.logger.Info("environment invalidated", "identifier", env.Identifier)
	return nil
}

// List returns the environments present under the root, sorted by name.
func (p *Provisioner) List() ([]Environment, error) {
	entries, err := os.ReadDir(p.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading environments root: %w", err)
	}

	var out []Environment
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		env, err := p.Locate(e.Name())
		if err != nil {
			continue
		}
		env.Valid = exists(env.Executable)
		out = append(out, env)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identifier < out[j].Identifier })
	return out, nil
}

func normalize(identifier string) (string, error) {
	name := strings.ToLower(strings.TrimSpace(identifier))
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", &Failure{
			Reason:     FilesystemError,
			Identifier: identifier,
			Message:    fmt.Sprintf("invalid environment identifier %q", identifier),
		}
	}
	return name, nil
}

func executablePath(goos, root string) string {
	if goos == "windows" {
		return filepath.Join(root, "Scripts", "python.exe")
	}
	return filepath.Join(root, "bin", "python")
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
