// Package state persists what must survive a reboot: the process image is
// replaced on restart, so anything carried across boots lives in state.json.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/benaskins/leaf/internal/guest"
)

// State is the persisted record of the previous boot.
type State struct {
	// NextBootClass overrides LastGuest's boot class on its next launch.
	// It is consumed by the next boot attempt, whichever guest it selects.
	NextBootClass guest.BootClass `json:"next_boot_class,omitempty"`
	LastGuest     string          `json:"last_guest,omitempty"`
	LastExitCode  *int            `json:"last_exit_code,omitempty"`
	// BootCount counts consecutive reboots; shutdown and halt reset it.
	BootCount int       `json:"boot_count"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
}

// File is a state.json on disk.
type File struct {
	path string
	mu   sync.Mutex
}

// NewFile returns a state file at path. Nothing is read until Load.
func NewFile(path string) *File {
	return &File{path: path}
}

// Path returns the file location.
func (f *File) Path() string {
	return f.path
}

// Load reads the state. A missing file yields the zero State.
func (f *File) Load() (State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loadUnsafe()
}

// Save replaces the state atomically.
func (f *File) Save(s State) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.saveUnsafe(s)
}

// Update applies fn to the current state and saves the result.
func (f *File) Update(fn func(*State)) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	s, err := f.loadUnsafe()
	if err != nil {
		return err
	}
	fn(&s)
	return f.saveUnsafe(s)
}

// ConsumeBootClass clears any pending boot class override and returns it
// when it was scheduled for key, the guest that last ran. An override
// left for a different guest is discarded.
func (f *File) ConsumeBootClass(key string) (guest.BootClass, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	s, err := f.loadUnsafe()
	if err != nil {
		return "", false, err
	}
	if s.NextBootClass == "" {
		return "", false, nil
	}
	class := s.NextBootClass
	s.NextBootClass = ""
	if err := f.saveUnsafe(s); err != nil {
		return "", false, err
	}
	if s.LastGuest != key {
		return "", false, nil
	}
	return class, true, nil
}

// PendingBootClass reports the guest a boot class override is waiting
// for, without consuming it.
func (f *File) PendingBootClass() (key string, class guest.BootClass, err error) {
	s, err := f.Load()
	if err != nil || s.NextBootClass == "" || s.LastGuest == "" {
		return "", "", err
	}
	return s.LastGuest, s.NextBootClass, nil
}

// ClearBootClass drops any pending boot class override.
func (f *File) ClearBootClass() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	s, err := f.loadUnsafe()
	if err != nil {
		return err
	}
	if s.NextBootClass == "" {
		return nil
	}
	s.NextBootClass = ""
	return f.saveUnsafe(s)
}

// loadUnsafe reads without locking; caller must hold f.mu.
func (f *File) loadUnsafe() (State, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return State{}, nil
		}
		return State{}, fmt.Errorf("reading state file: %w", err)
	}

	var s State
	if len(data) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return State{}, fmt.Errorf("parsing state file: %w", err)
	}
	return s, nil
}

func (f *File) saveUnsafe(s State) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0700); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}

	s.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}

	tmpPath := f.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("writing state file: %w", err)
	}
	return os.Rename(tmpPath, f.path)
}
