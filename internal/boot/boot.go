// Package boot runs one launch attempt for a selected guest: preflight,
// environment provisioning and launch, in that order, ending in exactly
// one control action.
package boot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/benaskins/leaf/internal/audit"
	"github.com/benaskins/leaf/internal/control"
	"github.com/benaskins/leaf/internal/driver"
	"github.com/benaskins/leaf/internal/envs"
	"github.com/benaskins/leaf/internal/guest"
	"github.com/benaskins/leaf/internal/state"
)

// Checker validates that a guest can be launched on this host.
type Checker interface {
	Check(ctx context.Context, d *guest.Descriptor) error
}

// Provisioner yields the executable a guest runs with.
type Provisioner interface {
	Ensure(ctx context.Context, identifier string, isolate bool) (string, error)
}

// logTailer is implemented by launchers that keep the guest's last stderr
// lines.
type logTailer interface {
	LogTail(n int) string
}

// detailLines is how much guest stderr a prompt shows.
const detailLines = 10

// Config wires an Orchestrator. State and History are optional.
type Config struct {
	Registry  *guest.Registry
	Preflight Checker
	Envs      Provisioner
	Launcher  driver.Launcher
	State     *state.File
	History   *audit.Logger
	BootID    string
	// Env is the guest environment; nil inherits leaf's.
	Env []string
}

// Orchestrator sequences one launch attempt.
type Orchestrator struct {
	cfg    Config
	logger *slog.Logger
}

// New creates an orchestrator.
func New(cfg Config) *Orchestrator {
	return &Orchestrator{
		cfg:    cfg,
		logger: slog.With("component", "boot"),
	}
}

// Result is the end of a launch attempt.
type Result struct {
	Key     string
	Guest   *guest.Descriptor
	Outcome control.Outcome
	Action  control.Action
	// Detail is the diagnostic shown with prompting actions.
	Detail string
}

// bootPhase is a step of one launch attempt. There is no path back to an
// earlier phase.
type bootPhase int

const (
	phaseValidating   bootPhase = iota // Look up the guest and run preflight
	phaseProvisioning                  // Ensure the isolated environment
	phaseLaunching                     // Spawn the guest and wait for it
	phaseDispatching                   // Map the outcome to an action
	phaseDone
)

// attempt carries one launch attempt through its phases.
type attempt struct {
	key        string
	desc       *guest.Descriptor
	override   guest.BootClass
	executable string
	outcome    control.Outcome
	detail     string
	action     control.Action
}

// Boot runs the guest selected by key and returns the decided action. It
// does not execute the action.
func (o *Orchestrator) Boot(ctx context.Context, key string) Result {
	a := &attempt{key: key}
	phase := phaseValidating

	for phase != phaseDone {
		switch phase {
		case phaseValidating:
			phase = o.handleValidating(ctx, a)
		case phaseProvisioning:
			phase = o.handleProvisioning(ctx, a)
		case phaseLaunching:
			phase = o.handleLaunching(ctx, a)
		case phaseDispatching:
			phase = o.handleDispatching(a)
		}
	}

	return Result{Key: a.key, Guest: a.desc, Outcome: a.outcome, Action: a.action, Detail: a.detail}
}

// Interrupted ends a boot that was interrupted before any guest was
// chosen.
func (o *Orchestrator) Interrupted(sig os.Signal) Result {
	a := &attempt{outcome: control.Interrupted(sig)}
	o.handleDispatching(a)
	return Result{Outcome: a.outcome, Action: a.action}
}

func (o *Orchestrator) handleValidating(ctx context.Context, a *attempt) bootPhase {
	a.override = o.takeOverride(a.key)

	desc, err := o.cfg.Registry.Lookup(a.key)
	if err != nil {
		o.logger.Error("guest lookup failed", "guest", a.key, "error", err)
		a.fail(err)
		return phaseDispatching
	}
	a.desc = desc

	o.logger.Info("validating guest", "guest", a.key, "identifier", desc.Identifier)
	if err := o.cfg.Preflight.Check(ctx, desc); err != nil {
		o.logger.Error("preflight failed", "guest", a.key, "error", err)
		a.fail(err)
		return phaseDispatching
	}
	return phaseProvisioning
}

func (o *Orchestrator) handleProvisioning(ctx context.Context, a *attempt) bootPhase {
	exe, err := o.cfg.Envs.Ensure(ctx, a.desc.Identifier, a.desc.NeedsIsolation())
	if err != nil {
		o.logger.Error("provisioning failed", "guest", a.key, "error", err)
		a.fail(err)
		var f *envs.Failure
		if errors.As(err, &f) && f.Output != "" {
			a.detail = f.Output
		}
		return phaseDispatching
	}
	a.executable = exe
	return phaseLaunching
}

func (o *Orchestrator) handleLaunching(ctx context.Context, a *attempt) bootPhase {
	entry, err := a.desc.ResolveEntry()
	if err != nil {
		a.fail(err)
		return phaseDispatching
	}

	inv := driver.Invocation{
		Executable: a.executable,
		Entry:      entry.File,
		WorkDir:    entry.WorkDir,
		BootClass:  a.bootClass(),
		Env:        o.cfg.Env,
	}

	o.logger.Info("launching guest", "guest", a.key, "executable", inv.Executable, "boot_class", inv.BootClass)
	code, err := o.cfg.Launcher.Launch(ctx, inv)
	if err != nil {
		o.logger.Error("launch failed", "guest", a.key, "error", err)
		a.fail(err)
		return phaseDispatching
	}

	a.outcome = control.Exited(code)
	if lt, ok := o.cfg.Launcher.(logTailer); ok {
		a.detail = lt.LogTail(detailLines)
	}
	o.logger.Info("guest exited", "guest", a.key, "exit_code", code)
	return phaseDispatching
}

// takeOverride consumes a boot class override left by the previous boot.
// It is taken before anything can fail so that a guest which cannot boot
// does not keep the override, and the menu, pinned across restarts.
func (o *Orchestrator) takeOverride(key string) guest.BootClass {
	if o.cfg.State == nil {
		return ""
	}
	class, ok, err := o.cfg.State.ConsumeBootClass(key)
	if err != nil {
		o.logger.Warn("reading boot class override failed", "error", err)
		return ""
	}
	if !ok {
		return ""
	}
	o.logger.Info("boot class overridden by previous boot", "guest", key, "boot_class", class)
	return class
}

func (a *attempt) bootClass() guest.BootClass {
	if a.override != "" {
		return a.override
	}
	return a.desc.EffectiveBootClass()
}

func (o *Orchestrator) handleDispatching(a *attempt) bootPhase {
	a.action = control.Decide(a.outcome)
	o.logger.Info("control action decided", "guest", a.key, "outcome", a.outcome.String(), "action", a.action.String())
	o.record(a)
	return phaseDone
}

func (o *Orchestrator) record(a *attempt) {
	if o.cfg.State != nil && a.key != "" {
		err := o.cfg.State.Update(func(s *state.State) {
			s.LastGuest = a.key
			if a.outcome.PrecheckFailed {
				s.LastExitCode = nil
			} else {
				code := a.outcome.ExitCode
				s.LastExitCode = &code
			}
		})
		if err != nil {
			o.logger.Warn("recording boot state failed", "error", err)
		}
	}

	if o.cfg.History == nil {
		return
	}
	entry := audit.Entry{
		BootID: o.cfg.BootID,
		Guest:  a.key,
		Action: string(a.action.Kind),
	}
	switch {
	case a.outcome.PrecheckFailed:
		entry.Outcome = audit.OutcomePrecheckFailed
		if a.outcome.Err != nil {
			entry.Error = a.outcome.Err.Error()
		}
	case a.outcome.Signal != nil:
		entry.Outcome = audit.OutcomeInterrupted
		entry.Error = a.outcome.Signal.String()
	default:
		entry.Outcome = audit.OutcomeExited
		code := a.outcome.ExitCode
		entry.ExitCode = &code
	}
	if err := o.cfg.History.Log(entry); err != nil {
		o.logger.Warn("recording boot history failed", "error", err)
	}
}

func (a *attempt) fail(err error) {
	a.outcome = control.PrecheckFailedOutcome(err)
	a.detail = ""
}

// Describe renders a one-line summary of a result for the terminal.
func (r Result) Describe() string {
	name := r.Key
	if r.Guest != nil {
		name = fmt.Sprintf("%s (%s)", r.Guest.Name, r.Key)
	}
	if name == "" {
		name = "leaf"
	}
	return fmt.Sprintf("%s: %s -> %s", name, r.Outcome, r.Action)
}
