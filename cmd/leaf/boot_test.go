package main

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/benaskins/leaf/internal/config"
	"github.com/benaskins/leaf/internal/control"
	"github.com/benaskins/leaf/internal/envs"
	"github.com/benaskins/leaf/internal/guest"
	"github.com/benaskins/leaf/internal/state"
)

type spyPrompter struct {
	titles []string
}

func (p *spyPrompter) Acknowledge(title, detail string) error {
	p.titles = append(p.titles, title)
	return nil
}

type bootHarness struct {
	app    *app
	prompt *spyPrompter
	exits  []int
	exec   *control.Executor
}

// newBootHarness builds an app around descs without touching the real
// home. Guests only pass preflight on the "Linux" host.
func newBootHarness(t *testing.T, descs ...*guest.Descriptor) *bootHarness {
	t.Helper()
	oldGuest := flagGuest
	flagGuest = ""
	t.Cleanup(func() { flagGuest = oldGuest })

	home := t.TempDir()
	cfg := &config.Config{
		Registry:       filepath.Join(home, "guests.yaml"),
		EnvsRoot:       filepath.Join(home, "envs"),
		StateFile:      filepath.Join(home, "state.json"),
		HistoryFile:    filepath.Join(home, "history.log"),
		Interpreter:    "python3",
		Host:           "Linux",
		RuntimeVersion: "3.11.4",
		StopGrace:      config.Duration{Duration: config.DefaultStopGrace},
	}
	a := &app{
		home:     home,
		cfg:      cfg,
		bootID:   "test-boot",
		registry: guest.NewRegistry(descs...),
		state:    state.NewFile(cfg.StateFile),
		envs:     envs.NewProvisioner(envs.Config{Root: cfg.EnvsRoot, Interpreter: cfg.Interpreter}),
		stdin:    strings.NewReader(""),
		stdout:   io.Discard,
	}
	t.Cleanup(a.Close)

	h := &bootHarness{app: a, prompt: &spyPrompter{}}
	h.exec = &control.Executor{
		Prompt: h.prompt,
		State:  a.state,
		Exit:   func(code int) { h.exits = append(h.exits, code) },
	}
	return h
}

func unbootableGuest(t *testing.T, key string) *guest.Descriptor {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "main.py"), nil, 0644); err != nil {
		t.Fatal(err)
	}
	noIsolation := false
	return &guest.Descriptor{
		Key:              key,
		Name:             "Leaf OS",
		Identifier:       "leafos",
		Path:             dir,
		SupportedHosts:   []string{"Windows"},
		NeedsIsolatedEnv: &noIsolation,
	}
}

func pendRecovery(t *testing.T, sf *state.File, key string) {
	t.Helper()
	if err := sf.Update(func(s *state.State) {
		s.NextBootClass = guest.BootRecovery
		s.LastGuest = key
	}); err != nil {
		t.Fatal(err)
	}
}

func TestSelectGuestResumesPendingRecovery(t *testing.T) {
	h := newBootHarness(t,
		&guest.Descriptor{Key: "1", Name: "Leaf OS"},
		&guest.Descriptor{Key: "2", Name: "Leaf Recovery"},
	)
	pendRecovery(t, h.app.state, "1")
	h.app.stdin = strings.NewReader("2\n")

	key, err := h.app.selectGuest(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if key != "1" {
		t.Errorf("selected %q, want the guest the recovery boot was scheduled for", key)
	}
}

func TestSelectGuestDiscardsRecoveryForUnknownGuest(t *testing.T) {
	h := newBootHarness(t, &guest.Descriptor{Key: "2", Name: "Leaf Recovery"})
	pendRecovery(t, h.app.state, "9")
	h.app.stdin = strings.NewReader("2\n")

	key, err := h.app.selectGuest(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if key != "2" {
		t.Errorf("selected %q, want the menu choice 2", key)
	}
	if pending, class, _ := h.app.state.PendingBootClass(); class != "" {
		t.Errorf("override for unknown guest %q was kept", pending)
	}
}

func TestSelectGuestFlagWins(t *testing.T) {
	h := newBootHarness(t, &guest.Descriptor{Key: "1"}, &guest.Descriptor{Key: "2"})
	pendRecovery(t, h.app.state, "1")
	flagGuest = "2"

	key, err := h.app.selectGuest(context.Background())
	if err != nil || key != "2" {
		t.Errorf("selectGuest() = %q, %v, want --guest 2", key, err)
	}
}

func TestFailedRecoveryBootReturnsToMenu(t *testing.T) {
	h := newBootHarness(t, unbootableGuest(t, "1"))
	pendRecovery(t, h.app.state, "1")

	// The resumed guest cannot boot on this host
	if err := h.app.boot(context.Background(), h.exec); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(h.exits, []int{1}) {
		t.Fatalf("exits = %v, want halt with 1", h.exits)
	}

	// The next run shows the menu, where the operator shuts down
	h.app.stdin = strings.NewReader("0\n")
	if err := h.app.boot(context.Background(), h.exec); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(h.exits, []int{1, 0}) {
		t.Errorf("exits = %v, want the menu to be reached and shutdown chosen", h.exits)
	}
}

func TestBootInvalidRegistryHaltsWithPrompt(t *testing.T) {
	h := newBootHarness(t)
	h.app.regErr = errors.New("guest 1: identifier is required")

	if err := h.app.boot(context.Background(), h.exec); err != nil {
		t.Fatalf("an invalid registry should halt, not return %v", err)
	}
	if len(h.prompt.titles) != 1 || !strings.Contains(h.prompt.titles[0], "invalid guest registry") {
		t.Errorf("expected an acknowledgement prompt, got %v", h.prompt.titles)
	}
	if !reflect.DeepEqual(h.exits, []int{1}) {
		t.Errorf("exits = %v, want [1]", h.exits)
	}
}
