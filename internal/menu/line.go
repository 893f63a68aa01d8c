package menu

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/muesli/cancelreader"
)

// Line is the plain prompt used when stdin is not a terminal. It reads one
// choice per line and re-prompts on invalid input.
//
// In is shared with the guest that boots next, so Line never reads past
// the newline that ends the accepted choice.
type Line struct {
	Items   []Item
	Options Options
	In      io.Reader
	Out     io.Writer
}

type lineResult struct {
	text string
	err  error
}

func (l *Line) Select(ctx context.Context) (string, error) {
	fmt.Fprintln(l.Out, titleStyle.Render(l.Options.title()))
	fmt.Fprintln(l.Out, strings.Repeat("=", 40))
	for _, item := range l.Items {
		fmt.Fprintln(l.Out, itemStyle.Render(item.Label()))
	}
	fmt.Fprintln(l.Out, strings.Repeat("=", 40))

	reader := newLineReader(l.In)
	defer reader.stop()

	var timeout <-chan time.Time
	if i := indexOf(l.Items, l.Options.Default); i >= 0 && l.Options.Timeout > 0 {
		fmt.Fprintln(l.Out, hintStyle.Render(fmt.Sprintf("Booting %s in %s unless a choice is entered", l.Items[i].Name, l.Options.Timeout)))
		timer := time.NewTimer(l.Options.Timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	for {
		fmt.Fprint(l.Out, promptStyle.Render(">>> "))
		reader.request()

		select {
		case <-ctx.Done():
			fmt.Fprintln(l.Out)
			return "", ErrInterrupted
		case <-timeout:
			fmt.Fprintln(l.Out)
			return l.Options.Default, nil
		case r := <-reader.lines:
			reader.pending = false
			if r.err != nil {
				fmt.Fprintln(l.Out)
				if r.err == io.EOF {
					return "", ErrInterrupted
				}
				return "", fmt.Errorf("reading selection: %w", r.err)
			}
			// Typing stops the auto-boot countdown
			timeout = nil

			choice := strings.TrimSpace(r.text)
			if indexOf(l.Items, choice) >= 0 {
				return choice, nil
			}
			fmt.Fprintln(l.Out, errorStyle.Render("Invalid choice."))
		}
	}
}

// lineReader reads one line per request on its own goroutine so Select can
// wait on it alongside the countdown and ctx.
type lineReader struct {
	in      cancelreader.CancelReader
	want    chan struct{}
	lines   chan lineResult
	done    chan struct{}
	stopped chan struct{}
	pending bool
}

func newLineReader(r io.Reader) *lineReader {
	in, err := cancelreader.NewReader(r)
	if err != nil {
		// Regular files cannot be polled, and reads from them never block
		in = plainReader{r}
	}
	lr := &lineReader{
		in:      in,
		want:    make(chan struct{}),
		lines:   make(chan lineResult),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go lr.run()
	return lr
}

func (lr *lineReader) run() {
	defer close(lr.stopped)
	for {
		select {
		case <-lr.want:
		case <-lr.done:
			return
		}
		text, err := readLine(lr.in)
		select {
		case lr.lines <- lineResult{text: text, err: err}:
		case <-lr.done:
			return
		}
		if err != nil {
			return
		}
	}
}

// request asks for the next line unless a read is already in flight.
func (lr *lineReader) request() {
	if lr.pending {
		return
	}
	lr.want <- struct{}{}
	lr.pending = true
}

// stop abandons any read in flight. When the read can be cancelled, stop
// waits for the reader so nothing is consumed after Select returns.
func (lr *lineReader) stop() {
	close(lr.done)
	if lr.in.Cancel() {
		<-lr.stopped
		lr.in.Close()
	}
}

// readLine reads up to and including '\n' one byte at a time. A final line
// without a newline is returned before io.EOF.
func readLine(r io.Reader) (string, error) {
	var line []byte
	var b [1]byte
	for {
		n, err := r.Read(b[:])
		if n == 1 {
			if b[0] == '\n' {
				return strings.TrimRight(string(line), "\r"), nil
			}
			line = append(line, b[0])
			continue
		}
		if err != nil {
			if errors.Is(err, io.EOF) && len(line) > 0 {
				return string(line), nil
			}
			return "", err
		}
	}
}

// plainReader is a reader whose reads cannot be interrupted.
type plainReader struct {
	io.Reader
}

func (plainReader) Cancel() bool { return false }
func (plainReader) Close() error { return nil }
