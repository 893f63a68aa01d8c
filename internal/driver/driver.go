package driver

import (
	"context"
	"fmt"
	"time"

	"github.com/benaskins/leaf/internal/guest"
)

// State represents the lifecycle state of a guest process.
type State string

const (
	StateIdle     State = "idle"
	StateRunning  State = "running"
	StateStopping State = "stopping"
	StateExited   State = "exited"
	StateFailed   State = "failed"
)

// ProcessInfo holds runtime information about a guest process.
type ProcessInfo struct {
	PID       int
	State     State
	StartedAt time.Time
	ExitCode  int
	Error     string
}

// Invocation is everything needed to run one guest.
type Invocation struct {
	Executable string
	// Entry is the entry file, relative to WorkDir or absolute.
	Entry     string
	WorkDir   string
	BootClass guest.BootClass
	// Env is the child environment; nil inherits the parent's.
	Env []string
}

// BootFlags returns the arguments that announce a boot class to a guest.
func BootFlags(class guest.BootClass) []string {
	switch class {
	case guest.BootNormal:
		return []string{"--boot", "--regular"}
	case guest.BootRecovery:
		return []string{"--boot", "--recovery"}
	}
	return nil
}

// Args returns the guest arguments: the entry file followed by boot flags.
func (inv Invocation) Args() []string {
	return append([]string{inv.Entry}, BootFlags(inv.BootClass)...)
}

// Launcher runs a guest to completion and returns its raw exit status.
// It never interprets the status.
type Launcher interface {
	Launch(ctx context.Context, inv Invocation) (int, error)
}

// LaunchReason tags a launch failure.
type LaunchReason string

const SpawnFailed LaunchReason = "spawn_failed"

// LaunchError means the child never started; a child that ran and exited
// non-zero is not an error.
type LaunchError struct {
	Reason     LaunchReason
	Executable string
	Err        error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("starting %s: %v", e.Executable, e.Err)
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}
