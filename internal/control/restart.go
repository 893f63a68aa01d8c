package control

import (
	"fmt"
	"log/slog"
	"os"
)

// SelfExec restarts leaf by running its own executable again with the
// same arguments and environment. In-memory state does not survive.
type SelfExec struct {
	// Args is the full argv, Args[0] included; nil means os.Args.
	Args []string
	// Env is the environment; nil means os.Environ().
	Env []string
	// Before runs just before the process is replaced, to flush and close
	// files the new image will reopen.
	Before func()

	executable func() (string, error)
	execFunc   func(argv0 string, argv []string, envv []string) error
	logger     *slog.Logger
}

// NewSelfExec returns a restarter for the current process.
func NewSelfExec() *SelfExec {
	return &SelfExec{logger: slog.With("component", "restart")}
}

func (r *SelfExec) Restart() error {
	executable := r.executable
	if executable == nil {
		executable = os.Executable
	}
	path, err := executable()
	if err != nil {
		return fmt.Errorf("locating leaf executable: %w", err)
	}

	args := r.Args
	if args == nil {
		args = os.Args
	}
	env := r.Env
	if env == nil {
		env = os.Environ()
	}

	execFunction := r.execFunc
	if execFunction == nil {
		execFunction = replaceProcess
	}

	if r.logger != nil {
		r.logger.Info("restarting", "executable", path, "args", args[1:])
	}
	if r.Before != nil {
		r.Before()
	}
	// On success the process image is gone and this never returns
	if err := execFunction(path, args, env); err != nil {
		return fmt.Errorf("re-executing %s: %w", path, err)
	}
	return nil
}
