// Package menu lets the operator choose which guest to boot.
package menu

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/benaskins/leaf/internal/guest"
)

// ErrInterrupted is returned when the operator interrupts the selection.
var ErrInterrupted = errors.New("selection interrupted")

// ShutdownKey is the reserved selection that shuts leaf down.
const ShutdownKey = guest.ReservedKey

// Item is one menu line.
type Item struct {
	Key     string
	Name    string
	Version string
}

// Label renders the item as "<key>. <name> - <version>".
func (i Item) Label() string {
	if i.Key == ShutdownKey {
		return ShutdownKey + ". " + i.Name
	}
	version := i.Version
	if version == "" {
		version = "NaN"
	}
	return fmt.Sprintf("%s. %s - %s", i.Key, i.Name, version)
}

// ItemsFrom lists Shutdown followed by every registered guest in key
// order.
func ItemsFrom(r *guest.Registry) []Item {
	items := []Item{{Key: ShutdownKey, Name: "Shutdown"}}
	for _, key := range r.Keys() {
		d, err := r.Lookup(key)
		if err != nil || key == ShutdownKey {
			continue
		}
		items = append(items, Item{Key: key, Name: d.Name, Version: d.Version})
	}
	return items
}

// Options tunes a menu.
type Options struct {
	Title string
	// Default is preselected and chosen when Timeout expires. Zero
	// Timeout waits for the operator.
	Default string
	Timeout time.Duration
}

func (o Options) title() string {
	if o.Title == "" {
		return "Leaf Boot Manager"
	}
	return o.Title
}

// Selector returns the chosen key: ShutdownKey or a guest key.
type Selector interface {
	Select(ctx context.Context) (string, error)
}

func indexOf(items []Item, key string) int {
	for i, item := range items {
		if item.Key == key {
			return i
		}
	}
	return -1
}

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	itemStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	selectedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("0")).Background(lipgloss.Color("10"))
	promptStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	hintStyle     = lipgloss.NewStyle().Faint(true)
)
