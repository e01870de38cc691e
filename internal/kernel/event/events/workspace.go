package events

import "github.com/dshills/extkernel/internal/kernel/event"

// Workspace event tokens.
var (
	// ServerRunningType fires when a workspace server comes up.
	ServerRunningType = event.Export(event.NewType[ServerRunning]("server.running"))

	// ServerStoppedType fires when a workspace server goes away.
	ServerStoppedType = event.Export(event.NewType[ServerStopped]("server.stopped"))
)

// ServerRunning is published when a server on a workspace machine starts.
type ServerRunning struct {
	// Machine is the machine the server runs on.
	Machine string

	// Server is the server name.
	Server string
}

// Fields implements event.Fielder.
func (e ServerRunning) Fields() map[string]any {
	return map[string]any{"machine": e.Machine, "server": e.Server}
}

// ServerStopped is published when a server on a workspace machine stops.
type ServerStopped struct {
	Machine string
	Server  string
}

// Fields implements event.Fielder.
func (e ServerStopped) Fields() map[string]any {
	return map[string]any{"machine": e.Machine, "server": e.Server}
}
