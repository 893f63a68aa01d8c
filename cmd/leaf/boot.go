package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/benaskins/leaf/internal/control"
	"github.com/benaskins/leaf/internal/menu"
)

var (
	bootingStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	shutdownStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

func runBoot(cmd *cobra.Command, args []string) error {
	a, err := loadApp(true)
	if err != nil {
		return err
	}
	defer a.Close()

	restarter := control.NewSelfExec()
	restarter.Before = a.Close
	executor := &control.Executor{
		Prompt:  control.NewTermPrompter(),
		Restart: restarter,
		State:   a.state,
		Exit: func(code int) {
			a.Close()
			os.Exit(code)
		},
	}
	return a.boot(cmd.Context(), executor)
}

// boot selects a guest, runs it and carries out the resulting action.
func (a *app) boot(ctx context.Context, executor *control.Executor) error {
	if a.regErr != nil {
		slog.Error("guest registry invalid", "registry", a.cfg.Registry, "error", a.regErr)
		executor.Execute(control.Action{
			Kind:   control.HaltWithPrompt,
			Code:   control.CodePrecheckFailed,
			Reason: "invalid guest registry " + a.cfg.Registry,
		}, a.regErr.Error())
		return nil
	}

	orch, err := a.orchestrator()
	if err != nil {
		return err
	}

	key, err := a.selectGuest(ctx)
	switch {
	case errors.Is(err, menu.ErrInterrupted):
		slog.Info("selection interrupted")
		r := orch.Interrupted(os.Interrupt)
		executor.Execute(r.Action, "")
		return nil
	case err != nil:
		return err
	case key == menu.ShutdownKey:
		fmt.Fprintln(a.stdout, shutdownStyle.Render("Shutting down..."))
		executor.Execute(control.Action{Kind: control.Shutdown}, "")
		return nil
	}

	if d, err := a.registry.Lookup(key); err == nil {
		fmt.Fprintln(a.stdout, bootingStyle.Render(fmt.Sprintf("Starting %s...", d.Name)))
	}

	// A hangup stops the guest; the launcher gives it stop_grace to exit
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGHUP)
	defer stop()

	r := orch.Boot(ctx, key)
	slog.Info("boot finished", "result", r.Describe())
	executor.Execute(r.Action, r.Detail)
	return nil
}

// selectGuest picks the guest to boot: --guest, then the guest a recovery
// reboot was scheduled for, then the menu.
func (a *app) selectGuest(ctx context.Context) (string, error) {
	if flagGuest != "" {
		return flagGuest, nil
	}

	key, class, err := a.state.PendingBootClass()
	switch {
	case err != nil:
		slog.Warn("reading boot state failed", "error", err)
	case key == "":
	default:
		if _, err := a.registry.Lookup(key); err == nil {
			slog.Info("resuming guest for pending boot class", "guest", key, "boot_class", class)
			return key, nil
		}
		slog.Warn("pending boot class is for an unknown guest, discarding", "guest", key, "boot_class", class)
		if err := a.state.ClearBootClass(); err != nil {
			slog.Warn("clearing boot class failed", "error", err)
		}
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	items := menu.ItemsFrom(a.registry)
	opts := menu.Options{Default: a.cfg.Default, Timeout: a.cfg.Timeout.Duration}

	var selector menu.Selector
	if isTerminal(a.stdin) && isTerminal(a.stdout) {
		selector = &menu.TUI{Items: items, Options: opts, In: a.stdin, Out: a.stdout}
	} else {
		selector = &menu.Line{Items: items, Options: opts, In: a.stdin, Out: a.stdout}
	}
	return selector.Select(ctx)
}

func isTerminal(v any) bool {
	f, ok := v.(interface{ Fd() uintptr })
	return ok && term.IsTerminal(int(f.Fd()))
}
