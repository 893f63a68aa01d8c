package menu

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
)

// TUI is the interactive boot menu.
type TUI struct {
	Items   []Item
	Options Options
	In      io.Reader
	Out     io.Writer
}

// Select runs the menu until a guest is chosen or the operator
// interrupts.
func (t *TUI) Select(ctx context.Context) (string, error) {
	opts := []tea.ProgramOption{tea.WithContext(ctx)}
	if t.In != nil {
		opts = append(opts, tea.WithInput(t.In))
	}
	if t.Out != nil {
		opts = append(opts, tea.WithOutput(t.Out))
	}

	final, err := tea.NewProgram(newModel(t.Items, t.Options), opts...).Run()
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, tea.ErrProgramKilled) {
			return "", ErrInterrupted
		}
		return "", fmt.Errorf("running boot menu: %w", err)
	}

	m := final.(model)
	if m.interrupted || m.choice == "" {
		return "", ErrInterrupted
	}
	return m.choice, nil
}

type tickMsg struct{}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(time.Time) tea.Msg { return tickMsg{} })
}

type model struct {
	items   []Item
	title   string
	keys    KeyMap
	cursor  int
	typed   string
	warning string

	// countdown is the time left before the preselected item boots.
	countdown time.Duration
	counting  bool

	choice      string
	interrupted bool
}

func newModel(items []Item, opts Options) model {
	m := model{items: items, title: opts.title(), keys: DefaultKeyMap}
	if i := indexOf(items, opts.Default); i >= 0 {
		m.cursor = i
		if opts.Timeout > 0 {
			m.countdown = opts.Timeout
			m.counting = true
		}
	}
	return m
}

func (m model) Init() tea.Cmd {
	if m.counting {
		return tick()
	}
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		if !m.counting {
			return m, nil
		}
		m.countdown -= time.Second
		if m.countdown <= 0 {
			m.choice = m.items[m.cursor].Key
			return m, tea.Quit
		}
		return m, tick()

	case tea.KeyMsg:
		// Any key hands control to the operator
		m.counting = false
		m.warning = ""

		switch {
		case key.Matches(msg, m.keys.Interrupt):
			m.interrupted = true
			return m, tea.Quit
		case key.Matches(msg, m.keys.Shutdown):
			m.choice = ShutdownKey
			return m, tea.Quit
		case key.Matches(msg, m.keys.Select):
			if len(m.items) > 0 {
				m.choice = m.items[m.cursor].Key
				return m, tea.Quit
			}
		case key.Matches(msg, m.keys.Up):
			if m.cursor > 0 {
				m.cursor--
			}
			m.typed = ""
		case key.Matches(msg, m.keys.Down):
			if m.cursor < len(m.items)-1 {
				m.cursor++
			}
			m.typed = ""
		case msg.Type == tea.KeyRunes:
			m.typeKey(string(msg.Runes))
		}
	}
	return m, nil
}

// typeKey moves the cursor to the item whose key was typed. Multi-digit
// keys are typed digit by digit.
func (m *model) typeKey(s string) {
	for _, candidate := range []string{m.typed + s, s} {
		if m.hasPrefix(candidate) {
			m.typed = candidate
			if i := indexOf(m.items, candidate); i >= 0 {
				m.cursor = i
			}
			return
		}
	}
	m.typed = ""
	m.warning = fmt.Sprintf("Invalid choice: %s", s)
}

func (m model) hasPrefix(s string) bool {
	for _, item := range m.items {
		if strings.HasPrefix(item.Key, s) {
			return true
		}
	}
	return false
}

func (m model) View() string {
	if m.choice != "" || m.interrupted {
		return ""
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(m.title))
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", 40))
	b.WriteString("\n")

	for i, item := range m.items {
		if i == m.cursor {
			b.WriteString(selectedStyle.Render("> " + item.Label()))
		} else {
			b.WriteString(itemStyle.Render("  " + item.Label()))
		}
		b.WriteString("\n")
	}

	b.WriteString(strings.Repeat("=", 40))
	b.WriteString("\n")
	if m.counting {
		secs := int((m.countdown + time.Second - 1) / time.Second)
		b.WriteString(promptStyle.Render(fmt.Sprintf("Booting %s in %ds, press any key to stop", m.items[m.cursor].Name, secs)))
		b.WriteString("\n")
	}
	if m.warning != "" {
		b.WriteString(errorStyle.Render(m.warning))
		b.WriteString("\n")
	}

	var help []string
	for _, binding := range m.keys.help() {
		h := binding.Help()
		help = append(help, h.Key+" "+h.Desc)
	}
	b.WriteString(hintStyle.Render(strings.Join(help, " · ")))
	b.WriteString("\n")
	return b.String()
}
