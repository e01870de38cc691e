package action

import (
	"sync"

	"github.com/dshills/extkernel/internal/kernel/dom"
)

// State is the data an update or perform callback mutates. It is rebuilt
// from the last presentation before every call and never persisted.
type State struct {
	mu          sync.Mutex
	text        string
	description string
	icon        *dom.Element
	visible     bool
	enabled     bool
}

// Presentation is an immutable snapshot of a State.
type Presentation struct {
	Text        string
	Description string
	Icon        *dom.Element
	Visible     bool
	Enabled     bool
}

func (p Presentation) clone() Presentation {
	p.Icon = p.Icon.Clone()
	return p
}

// defaultPresentation is what an action shows before its first update.
func defaultPresentation(id string) Presentation {
	return Presentation{Text: id, Visible: true, Enabled: true}
}

// NewState creates a state seeded from p.
func NewState(p Presentation) *State {
	return &State{
		text:        p.Text,
		description: p.Description,
		icon:        p.Icon.Clone(),
		visible:     p.Visible,
		enabled:     p.Enabled,
	}
}

// Text returns the display text.
func (s *State) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.text
}

// SetText sets the display text.
func (s *State) SetText(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.text = text
}

// Description returns the description.
func (s *State) Description() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.description
}

// SetDescription sets the description.
func (s *State) SetDescription(description string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.description = description
}

// Icon returns the icon element.
func (s *State) Icon() *dom.Element {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.icon
}

// SetIcon sets the icon element.
func (s *State) SetIcon(icon *dom.Element) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.icon = icon
}

// Visible reports whether the action is shown.
func (s *State) Visible() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.visible
}

// SetVisible sets visibility.
func (s *State) SetVisible(visible bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.visible = visible
}

// Enabled reports whether the action can be performed.
func (s *State) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

// SetEnabled sets enablement.
func (s *State) SetEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = enabled
}

// SetEnabledAndVisible sets both flags to v in one step.
func (s *State) SetEnabledAndVisible(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = v
	s.visible = v
}

// Snapshot returns the current values as a Presentation.
func (s *State) Snapshot() Presentation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Presentation{
		Text:        s.text,
		Description: s.description,
		Icon:        s.icon.Clone(),
		Visible:     s.visible,
		Enabled:     s.enabled,
	}
}
