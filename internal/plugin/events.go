package plugin

import "github.com/dshills/extkernel/internal/kernel/event"

// ManagerEventsType carries manager lifecycle events on the kernel bus, so
// plugins can react to other plugins coming and going.
var ManagerEventsType = event.Export(event.NewType[ManagerEvent]("plugin.lifecycle"))

// ManagerEvent represents a plugin manager event.
type ManagerEvent struct {
	Type   ManagerEventType
	Plugin string
	Error  error
}

// Fields implements event.Fielder.
func (e ManagerEvent) Fields() map[string]any {
	f := map[string]any{"type": e.Type.String(), "plugin": e.Plugin}
	if e.Error != nil {
		f["error"] = e.Error.Error()
	}
	return f
}

// ManagerEventType is the type of manager event.
type ManagerEventType int

const (
	// EventPluginLoaded is emitted when a plugin is loaded.
	EventPluginLoaded ManagerEventType = iota
	// EventPluginUnloaded is emitted when a plugin is unloaded.
	EventPluginUnloaded
	// EventPluginActivated is emitted when a plugin is activated.
	EventPluginActivated
	// EventPluginDeactivated is emitted when a plugin is deactivated.
	EventPluginDeactivated
	// EventPluginReloaded is emitted when a plugin is reloaded.
	EventPluginReloaded
	// EventPluginError is emitted when a plugin encounters an error.
	EventPluginError
)

// String returns a string representation of the event type.
func (t ManagerEventType) String() string {
	switch t {
	case EventPluginLoaded:
		return "loaded"
	case EventPluginUnloaded:
		return "unloaded"
	case EventPluginActivated:
		return "activated"
	case EventPluginDeactivated:
		return "deactivated"
	case EventPluginReloaded:
		return "reloaded"
	case EventPluginError:
		return "error"
	default:
		return "unknown"
	}
}

// EventHandler handles plugin manager events. Handlers must not call back
// into the Manager. Panics in handlers are recovered.
type EventHandler func(event ManagerEvent)
