// Package logbuf keeps the tail of a guest's diagnostic output so it can be
// shown next to reboot and halt prompts after the guest exits.
package logbuf

import (
	"bytes"
	"strings"
	"sync"
)

// Ring is a thread-safe ring buffer that stores the last N lines written to it.
// It implements io.Writer so it can sit behind a child's stderr.
type Ring struct {
	mu    sync.Mutex
	lines []string
	size  int
	pos   int
	full  bool
	// partial holds an incomplete line (no trailing newline yet)
	partial bytes.Buffer
}

// New creates a ring buffer that stores the last n lines.
func New(n int) *Ring {
	if n <= 0 {
		n = 1
	}
	return &Ring{
		lines: make([]string, n),
		size:  n,
	}
}

// Write implements io.Writer. Input is split on newlines; carriage returns
// are dropped so Windows-style output reads the same.
func (r *Ring) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.partial.Write(p)

	for {
		line, err := r.partial.ReadString('\n')
		if err != nil {
			// No more complete lines; put the partial back
			r.partial.Reset()
			r.partial.WriteString(line)
			break
		}
		r.addLine(strings.TrimRight(line, "\r\n"))
	}

	return len(p), nil
}

func (r *Ring) addLine(line string) {
	r.lines[r.pos] = line
	r.pos = (r.pos + 1) % r.size
	if r.pos == 0 {
		r.full = true
	}
}

// Lines returns the stored lines oldest first. A trailing line without a
// newline is included; a crashing guest rarely finishes its last line.
func (r *Ring) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []string
	if !r.full {
		result = make([]string, r.pos)
		copy(result, r.lines[:r.pos])
	} else {
		result = make([]string, r.size)
		copy(result, r.lines[r.pos:])
		copy(result[r.size-r.pos:], r.lines[:r.pos])
	}

	if tail := strings.TrimRight(r.partial.String(), "\r"); tail != "" {
		if len(result) == r.size {
			result = result[1:]
		}
		result = append(result, tail)
	}
	return result
}

// Last returns the last n lines. If fewer lines exist, returns all of them.
func (r *Ring) Last(n int) []string {
	all := r.Lines()
	if n >= len(all) {
		return all
	}
	return all[len(all)-n:]
}

// Tail joins the last n lines with newlines.
func (r *Ring) Tail(n int) string {
	return strings.Join(r.Last(n), "\n")
}
