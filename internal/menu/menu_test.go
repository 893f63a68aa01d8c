package menu

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"runtime"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/benaskins/leaf/internal/guest"
)

func testItems() []Item {
	return []Item{
		{Key: "0", Name: "Shutdown"},
		{Key: "1", Name: "Leaf OS", Version: "1.0"},
		{Key: "2", Name: "Leaf Recovery", Version: "0.3"},
		{Key: "12", Name: "Twig"},
	}
}

func TestItemsFrom(t *testing.T) {
	r := guest.NewRegistry(
		&guest.Descriptor{Key: "2", Name: "Beta", Version: "2.1"},
		&guest.Descriptor{Key: "1", Name: "Alpha", Version: "1.0"},
	)
	items := ItemsFrom(r)

	var labels []string
	for _, item := range items {
		labels = append(labels, item.Label())
	}
	want := "0. Shutdown|1. Alpha - 1.0|2. Beta - 2.1"
	if got := strings.Join(labels, "|"); got != want {
		t.Errorf("labels = %q, want %q", got, want)
	}
}

func TestLabelWithoutVersion(t *testing.T) {
	if got := (Item{Key: "3", Name: "Bare"}).Label(); got != "3. Bare - NaN" {
		t.Errorf("Label() = %q", got)
	}
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func update(t *testing.T, m model, msg tea.Msg) (model, tea.Cmd) {
	t.Helper()
	updated, cmd := m.Update(msg)
	return updated.(model), cmd
}

func TestModelNavigateAndSelect(t *testing.T) {
	m := newModel(testItems(), Options{})

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyDown})
	m, _ = update(t, m, runes("j"))
	if m.cursor != 2 {
		t.Fatalf("cursor = %d, want 2", m.cursor)
	}
	m, _ = update(t, m, runes("k"))

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if m.choice != "1" {
		t.Errorf("choice = %q, want 1", m.choice)
	}
	if cmd == nil {
		t.Error("selecting should quit the program")
	}
}

func TestModelTypedKeys(t *testing.T) {
	m := newModel(testItems(), Options{})

	m, _ = update(t, m, runes("1"))
	if m.items[m.cursor].Key != "1" {
		t.Fatalf("typing 1 should select key 1, got %q", m.items[m.cursor].Key)
	}
	m, _ = update(t, m, runes("2"))
	if m.items[m.cursor].Key != "12" {
		t.Fatalf("typing 12 should select key 12, got %q", m.items[m.cursor].Key)
	}

	m, _ = update(t, m, runes("9"))
	if m.warning == "" {
		t.Error("unknown key should warn")
	}
	if m.items[m.cursor].Key != "12" {
		t.Error("invalid key should not move the cursor")
	}
}

func TestModelInterruptAndShutdown(t *testing.T) {
	m := newModel(testItems(), Options{})
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyCtrlC})
	if !m.interrupted {
		t.Error("ctrl+c should interrupt")
	}

	m = newModel(testItems(), Options{})
	m, _ = update(t, m, runes("q"))
	if m.choice != ShutdownKey {
		t.Errorf("q should choose shutdown, got %q", m.choice)
	}
}

func TestModelCountdown(t *testing.T) {
	m := newModel(testItems(), Options{Default: "2", Timeout: 2 * time.Second})
	if !m.counting || m.items[m.cursor].Key != "2" {
		t.Fatalf("default should be preselected with a countdown, got %+v", m)
	}
	if m.Init() == nil {
		t.Fatal("countdown should schedule a tick")
	}
	if !strings.Contains(m.View(), "Booting Leaf Recovery in 2s") {
		t.Errorf("view should show the countdown:\n%s", m.View())
	}

	m, cmd := update(t, m, tickMsg{})
	if m.choice != "" || cmd == nil {
		t.Fatal("first tick should keep counting")
	}
	m, _ = update(t, m, tickMsg{})
	if m.choice != "2" {
		t.Errorf("expired countdown should boot the default, got %q", m.choice)
	}
}

func TestModelKeyStopsCountdown(t *testing.T) {
	m := newModel(testItems(), Options{Default: "1", Timeout: time.Second})

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyUp})
	m, _ = update(t, m, tickMsg{})
	if m.counting || m.choice != "" {
		t.Errorf("a key press should cancel auto-boot, got counting=%v choice=%q", m.counting, m.choice)
	}
}

func TestModelNoCountdownWithoutDefault(t *testing.T) {
	m := newModel(testItems(), Options{Default: "7", Timeout: time.Second})
	if m.counting || m.cursor != 0 {
		t.Errorf("unknown default should not count down, got %+v", m)
	}
}

func TestLineSelect(t *testing.T) {
	var out bytes.Buffer
	l := &Line{Items: testItems(), In: strings.NewReader("abc\n9\n 2 \n"), Out: &out}

	choice, err := l.Select(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if choice != "2" {
		t.Errorf("choice = %q, want 2", choice)
	}
	if n := strings.Count(out.String(), "Invalid choice."); n != 2 {
		t.Errorf("expected 2 rejections, got %d:\n%s", n, out.String())
	}
	for _, want := range []string{"0. Shutdown", "1. Leaf OS - 1.0", ">>> "} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q", want)
		}
	}
}

func TestLineEOFIsInterrupt(t *testing.T) {
	l := &Line{Items: testItems(), In: strings.NewReader("x\n"), Out: io.Discard}
	if _, err := l.Select(context.Background()); !errors.Is(err, ErrInterrupted) {
		t.Errorf("expected ErrInterrupted, got %v", err)
	}
}

func TestLineContextCancel(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	ctx, cancel := context.WithCancel(context.Background())
	l := &Line{Items: testItems(), In: pr, Out: io.Discard}

	done := make(chan error, 1)
	go func() {
		_, err := l.Select(ctx)
		done <- err
	}()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, ErrInterrupted) {
			t.Errorf("expected ErrInterrupted, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Select did not return after cancel")
	}
}

func TestLineTimeoutBootsDefault(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	l := &Line{
		Items:   testItems(),
		Options: Options{Default: "1", Timeout: 50 * time.Millisecond},
		In:      pr,
		Out:     io.Discard,
	}
	choice, err := l.Select(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if choice != "1" {
		t.Errorf("choice = %q, want default 1", choice)
	}
}

func TestLineLeavesRemainingInputForGuest(t *testing.T) {
	in := strings.NewReader("1\nguest-input\n")
	l := &Line{Items: testItems(), In: in, Out: io.Discard}

	choice, err := l.Select(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if choice != "1" {
		t.Fatalf("choice = %q, want 1", choice)
	}
	rest, _ := io.ReadAll(in)
	if string(rest) != "guest-input\n" {
		t.Errorf("input after the choice = %q, want it left for the guest", rest)
	}
}

func TestLinePipeKeepsGuestInput(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	if _, err := w.WriteString("2\nguest-input\n"); err != nil {
		t.Fatal(err)
	}
	w.Close()

	l := &Line{Items: testItems(), In: r, Out: io.Discard}
	choice, err := l.Select(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if choice != "2" {
		t.Fatalf("choice = %q, want 2", choice)
	}
	rest, _ := io.ReadAll(r)
	if string(rest) != "guest-input\n" {
		t.Errorf("input after the choice = %q, want it left for the guest", rest)
	}
}

func TestLineTimeoutReleasesInput(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("pipe reads cannot be cancelled on windows")
	}
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	l := &Line{
		Items:   testItems(),
		Options: Options{Default: "1", Timeout: 50 * time.Millisecond},
		In:      r,
		Out:     io.Discard,
	}
	choice, err := l.Select(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if choice != "1" {
		t.Fatalf("choice = %q, want default 1", choice)
	}

	// Input typed after auto-boot belongs to the guest
	if _, err := w.WriteString("guest-input\n"); err != nil {
		t.Fatal(err)
	}
	w.Close()
	rest, _ := io.ReadAll(r)
	if string(rest) != "guest-input\n" {
		t.Errorf("input after auto-boot = %q, want it left for the guest", rest)
	}
}

func TestReadLine(t *testing.T) {
	in := strings.NewReader("one\r\ntwo")
	if got, err := readLine(in); err != nil || got != "one" {
		t.Errorf("first line = %q, %v", got, err)
	}
	if got, err := readLine(in); err != nil || got != "two" {
		t.Errorf("unterminated last line = %q, %v", got, err)
	}
	if _, err := readLine(in); !errors.Is(err, io.EOF) {
		t.Errorf("expected io.EOF, got %v", err)
	}
}
