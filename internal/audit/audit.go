// Package audit provides the append-only boot history.
//
// Every launch attempt (what was booted, how it ended and which control
// action followed) is recorded to ~/.leaf/history.log as newline-delimited
// JSON. Records survive reboots because each boot appends to the same file.
package audit

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Outcome describes how a launch attempt ended.
type Outcome string

const (
	OutcomeExited         Outcome = "exited"
	OutcomePrecheckFailed Outcome = "precheck_failed"
	OutcomeInterrupted    Outcome = "interrupted"
)

// Entry is a single history record.
type Entry struct {
	Timestamp time.Time `json:"ts"`
	BootID    string    `json:"boot_id,omitempty"`
	Guest     string    `json:"guest,omitempty"`
	Outcome   Outcome   `json:"outcome"`
	Action    string    `json:"action"`
	ExitCode  *int      `json:"exit_code,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// Logger writes history entries to an append-only file.
type Logger struct {
	mu   sync.Mutex
	file *os.File
	path string
}

// NewLogger creates or opens a history file for appending.
func NewLogger(path string) (*Logger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating history directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("opening history log: %w", err)
	}
	return &Logger{file: f, path: path}, nil
}

// Log writes a history entry.
func (l *Logger) Log(entry Entry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshaling history entry: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("writing history entry: %w", err)
	}
	return nil
}

// Close closes the history file.
func (l *Logger) Close() error {
	return l.file.Close()
}

// Tail returns the last n entries of the history at path, oldest first.
// Lines that do not parse are skipped. A missing file has no entries.
func Tail(path string, n int) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening history log: %w", err)
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			continue
		}
		entries = append(entries, e)
		if n > 0 && len(entries) > n {
			entries = entries[1:]
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading history log: %w", err)
	}
	return entries, nil
}
