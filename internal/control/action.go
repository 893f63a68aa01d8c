// Package control maps how a guest ended to the action leaf takes next and
// carries that action out.
//
// The exit-code contract between leaf and its guests:
//
//	0   shutdown
//	11  reboot
//	12  reboot with prompt (unfinished feature)
//	13  reboot with prompt (boot failure)
//	14  reboot with prompt (guest crashed)
//	15  reboot to recovery
//	16  reboot with prompt (boot flags rejected)
//	17  halt with prompt, exiting with the interrupt's signal code
//	19  reboot with prompt (internal exception caught)
//
// Any other status halts with that status. A guest that never ran halts
// with 1.
package control

import (
	"fmt"
	"os"
	"syscall"
)

// Kind is one of the fixed control actions.
type Kind string

const (
	Shutdown         Kind = "shutdown"
	Reboot           Kind = "reboot"
	RebootWithPrompt Kind = "reboot_with_prompt"
	RebootToRecovery Kind = "reboot_to_recovery"
	HaltWithPrompt   Kind = "halt_with_prompt"
)

// Exit statuses with a meaning beyond halting.
const (
	CodeShutdown         = 0
	CodeReboot           = 11
	CodeUnfinished       = 12
	CodeBootFailure      = 13
	CodeCrashed          = 14
	CodeRecovery         = 15
	CodeBadFlags         = 16
	CodeInterrupted      = 17
	CodeInternalError    = 19
	CodePrecheckFailed   = 1
	CodeUnknownInterrupt = 130
)

var promptReasons = map[int]string{
	CodeUnfinished:    "the guest reached an unfinished feature",
	CodeBootFailure:   "the guest failed to boot",
	CodeCrashed:       "the guest crashed",
	CodeBadFlags:      "the guest rejected its boot flags",
	CodeInternalError: "the guest caught an internal exception",
}

// Action is a decided control action. Code is the process exit status for
// HaltWithPrompt; Reason is shown to the operator when the action prompts.
type Action struct {
	Kind   Kind
	Code   int
	Reason string
}

func (a Action) String() string {
	if a.Kind == HaltWithPrompt {
		return fmt.Sprintf("%s(%d)", a.Kind, a.Code)
	}
	return string(a.Kind)
}

// Prompts reports whether the operator must acknowledge the action.
func (a Action) Prompts() bool {
	return a.Kind == RebootWithPrompt || a.Kind == HaltWithPrompt
}

// Restarts reports whether the action restarts leaf.
func (a Action) Restarts() bool {
	return a.Kind == Reboot || a.Kind == RebootWithPrompt || a.Kind == RebootToRecovery
}

// Outcome is how one launch attempt ended.
type Outcome struct {
	// PrecheckFailed means the guest never ran: validation, provisioning
	// or spawning failed. Err says why.
	PrecheckFailed bool
	ExitCode       int
	// Signal is the operator interrupt behind an outcome of 17, if known.
	Signal os.Signal
	Err    error
}

// PrecheckFailedOutcome is the outcome of a guest that never ran.
func PrecheckFailedOutcome(err error) Outcome {
	return Outcome{PrecheckFailed: true, ExitCode: -1, Err: err}
}

// Exited is the outcome of a guest that ran and exited with code.
func Exited(code int) Outcome {
	return Outcome{ExitCode: code}
}

// Interrupted is the outcome of an operator interrupt outside the guest.
func Interrupted(sig os.Signal) Outcome {
	return Outcome{ExitCode: CodeInterrupted, Signal: sig}
}

func (o Outcome) String() string {
	if o.PrecheckFailed {
		return "precheck_failed"
	}
	return fmt.Sprintf("exit(%d)", o.ExitCode)
}

// Decide maps an outcome to exactly one action. Every outcome has one.
func Decide(o Outcome) Action {
	if o.PrecheckFailed {
		reason := "the guest could not be launched"
		if o.Err != nil {
			reason = o.Err.Error()
		}
		return Action{Kind: HaltWithPrompt, Code: CodePrecheckFailed, Reason: reason}
	}

	switch code := o.ExitCode; code {
	case CodeShutdown:
		return Action{Kind: Shutdown}
	case CodeReboot:
		return Action{Kind: Reboot}
	case CodeRecovery:
		return Action{Kind: RebootToRecovery, Reason: "the guest requested recovery mode"}
	case CodeInterrupted:
		return Action{Kind: HaltWithPrompt, Code: signalCode(o.Signal), Reason: "interrupted"}
	case CodeUnfinished, CodeBootFailure, CodeCrashed, CodeBadFlags, CodeInternalError:
		return Action{Kind: RebootWithPrompt, Reason: promptReasons[code]}
	default:
		return Action{Kind: HaltWithPrompt, Code: code, Reason: fmt.Sprintf("the guest exited with status %d", code)}
	}
}

// signalCode is the shell convention for death by signal: 128+signo.
func signalCode(sig os.Signal) int {
	if s, ok := sig.(syscall.Signal); ok && s > 0 {
		return 128 + int(s)
	}
	return CodeUnknownInterrupt
}
