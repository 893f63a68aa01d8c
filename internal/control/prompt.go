package control

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	detailStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).PaddingLeft(2)
	hintStyle   = lipgloss.NewStyle().Faint(true)
)

// TermPrompter prints a diagnostic to Out and waits for a key press on In.
// On a terminal any key acknowledges; otherwise a line (or EOF) does.
type TermPrompter struct {
	In  io.Reader
	Out io.Writer
}

// NewTermPrompter prompts on the process's standard streams.
func NewTermPrompter() *TermPrompter {
	return &TermPrompter{In: os.Stdin, Out: os.Stdout}
}

func (p *TermPrompter) Acknowledge(title, detail string) error {
	fmt.Fprintln(p.Out)
	fmt.Fprintln(p.Out, titleStyle.Render(title))
	if detail = strings.TrimRight(detail, "\n"); detail != "" {
		fmt.Fprintln(p.Out, detailStyle.Render(detail))
	}

	if f, ok := p.In.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(p.Out, hintStyle.Render("Press any key to continue..."))
		defer fmt.Fprintln(p.Out)
		return waitKey(f)
	}

	fmt.Fprint(p.Out, hintStyle.Render("Press Enter to continue..."))
	defer fmt.Fprintln(p.Out)
	_, err := bufio.NewReader(p.In).ReadString('\n')
	if err == io.EOF {
		return nil
	}
	return err
}

func waitKey(f *os.File) error {
	fd := int(f.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return fmt.Errorf("set terminal raw mode: %w", err)
	}
	defer term.Restore(fd, oldState)

	var b [1]byte
	_, err = f.Read(b[:])
	if err == io.EOF {
		return nil
	}
	return err
}
