// Package part implements the registry of dockable panels contributed by
// plugins. Each part moves through a small lifecycle, and each dock stack
// holds at most one active part.
package part

import (
	"context"
	"fmt"
	"strings"

	"github.com/dshills/extkernel/internal/kernel/dom"
)

// Part is a contributed panel. Parts are identified by identity, so
// implementations should be pointer types.
type Part interface {
	Title() string
	TitleToolTip() string
	UnreadNotifications() int

	// Size is the preferred size in pixels along the stack's axis.
	Size() int

	// ImageID names an icon in the icon registry.
	ImageID() string

	// View renders the part's content.
	View(ctx context.Context) *dom.Element

	// OnOpen is called once, the first time the part is opened.
	OnOpen(ctx context.Context)
}

// Stack is a dock region a part may occupy.
type Stack int

// Dock stacks.
const (
	Navigation Stack = iota
	Information
	Editing
	Tooling
)

var stackNames = [...]string{
	Navigation:  "navigation",
	Information: "information",
	Editing:     "editing",
	Tooling:     "tooling",
}

// Stacks lists every valid stack.
func Stacks() []Stack {
	return []Stack{Navigation, Information, Editing, Tooling}
}

// Valid reports whether s is one of the fixed stacks.
func (s Stack) Valid() bool {
	return s >= Navigation && s <= Tooling
}

// String returns the stack's lowercase name.
func (s Stack) String() string {
	if !s.Valid() {
		return fmt.Sprintf("stack(%d)", int(s))
	}
	return stackNames[s]
}

// ParseStack parses a stack name case-insensitively.
func ParseStack(name string) (Stack, error) {
	for i, n := range stackNames {
		if strings.EqualFold(name, n) {
			return Stack(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidStack, name)
}

// State is a part's lifecycle state.
type State int

// Part lifecycle states.
const (
	Unopened State = iota
	Opened
	Active
	Hidden
	Removed
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case Unopened:
		return "unopened"
	case Opened:
		return "opened"
	case Active:
		return "active"
	case Hidden:
		return "hidden"
	case Removed:
		return "removed"
	default:
		return "unknown"
	}
}

// Panel is a Part built from plain values. Use it by pointer.
type Panel struct {
	Name    string
	ToolTip string
	Unread  int
	Width   int
	Image   string

	// Render builds the view. A nil Render yields an empty <div>.
	Render func() *dom.Element

	// Opened is called from OnOpen.
	Opened func()
}

// Title implements Part.
func (p *Panel) Title() string { return p.Name }

// TitleToolTip implements Part.
func (p *Panel) TitleToolTip() string { return p.ToolTip }

// UnreadNotifications implements Part.
func (p *Panel) UnreadNotifications() int { return p.Unread }

// Size implements Part.
func (p *Panel) Size() int { return p.Width }

// ImageID implements Part.
func (p *Panel) ImageID() string { return p.Image }

// View implements Part.
func (p *Panel) View(context.Context) *dom.Element {
	if p.Render == nil {
		return dom.NewElement("div")
	}
	return p.Render()
}

// OnOpen implements Part.
func (p *Panel) OnOpen(context.Context) {
	if p.Opened != nil {
		p.Opened()
	}
}
