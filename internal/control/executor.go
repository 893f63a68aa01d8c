package control

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/benaskins/leaf/internal/guest"
	"github.com/benaskins/leaf/internal/state"
)

// Prompter shows a diagnostic and blocks until the operator acknowledges it.
type Prompter interface {
	Acknowledge(title, detail string) error
}

// Restarter replaces the running leaf with a fresh one. On success Restart
// does not return.
type Restarter interface {
	Restart() error
}

// Executor carries out control actions. It is the only place leaf
// terminates itself.
type Executor struct {
	Prompt  Prompter
	Restart Restarter
	// Exit terminates the process; nil means os.Exit.
	Exit func(code int)
	// State, if set, records what must survive a restart.
	State  *state.File
	Logger *slog.Logger
}

// Execute performs a. detail is extra diagnostic text, such as the
// guest's last stderr lines, shown with prompting actions. Execute
// returns only when Exit or Restart return, which they do in tests.
func (e *Executor) Execute(a Action, detail string) {
	logger := e.Logger
	if logger == nil {
		logger = slog.With("component", "control")
	}
	logger.Info("executing control action", "action", a.String(), "reason", a.Reason)

	switch a.Kind {
	case Shutdown:
		e.record(logger, resetBoots)
		e.exit(0)

	case Reboot:
		e.record(logger, func(s *state.State) { s.BootCount++ })
		e.restart(logger)

	case RebootWithPrompt:
		e.acknowledge(logger, "Rebooting: "+a.Reason, detail)
		e.record(logger, func(s *state.State) { s.BootCount++ })
		e.restart(logger)

	case RebootToRecovery:
		if e.State != nil {
			err := e.State.Update(func(s *state.State) {
				s.NextBootClass = guest.BootRecovery
				s.BootCount++
			})
			if err != nil {
				// Rebooting without the marker would boot normally again
				logger.Error("persisting recovery boot failed", "error", err)
				e.acknowledge(logger, "Halted: cannot schedule recovery boot", err.Error())
				e.exit(CodePrecheckFailed)
				return
			}
		}
		e.restart(logger)

	case HaltWithPrompt:
		e.acknowledge(logger, fmt.Sprintf("Halted (%d): %s", a.Code, a.Reason), detail)
		e.record(logger, resetBoots)
		e.exit(a.Code)

	default:
		logger.Error("unknown control action", "action", a.Kind)
		e.exit(CodePrecheckFailed)
	}
}

// resetBoots ends a run of reboots. A pending boot class override does not
// outlive a shutdown or halt.
func resetBoots(s *state.State) {
	s.BootCount = 0
	s.NextBootClass = ""
}

func (e *Executor) record(logger *slog.Logger, fn func(*state.State)) {
	if e.State == nil {
		return
	}
	if err := e.State.Update(fn); err != nil {
		logger.Warn("updating boot state failed", "error", err)
	}
}

func (e *Executor) acknowledge(logger *slog.Logger, title, detail string) {
	if e.Prompt == nil {
		return
	}
	if err := e.Prompt.Acknowledge(title, detail); err != nil {
		logger.Warn("acknowledgement prompt failed", "error", err)
	}
}

func (e *Executor) restart(logger *slog.Logger) {
	if e.Restart == nil {
		logger.Error("no restarter configured")
		e.exit(CodePrecheckFailed)
		return
	}
	err := e.Restart.Restart()
	if err == nil {
		return
	}
	logger.Error("restart failed", "error", err)
	e.acknowledge(logger, "Halted: restart failed", err.Error())
	e.exit(CodePrecheckFailed)
}

func (e *Executor) exit(code int) {
	if e.Exit != nil {
		e.Exit(code)
		return
	}
	os.Exit(code)
}
