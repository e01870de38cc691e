package part

import "github.com/dshills/extkernel/internal/kernel/event"

// ActivePartChangedType fires whenever a stack's active part changes.
var ActivePartChangedType = event.Export(event.NewType[ActivePartChanged]("part.active.changed"))

// ActivePartChanged reports a new active part for a stack. Part is nil when
// the stack was left without an active part.
type ActivePartChanged struct {
	Stack    Stack
	Part     Part
	Previous Part
}

// Fields implements event.Fielder.
func (e ActivePartChanged) Fields() map[string]any {
	f := map[string]any{"stack": e.Stack.String()}
	if e.Part != nil {
		f["title"] = e.Part.Title()
	}
	if e.Previous != nil {
		f["previous"] = e.Previous.Title()
	}
	return f
}
