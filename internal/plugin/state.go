package plugin

// State is where a host is in its load/activate/unload cycle.
//
//	Unloaded -> Loaded -> Activating -> Active -> Deactivating -> Loaded
//	                          \-> Error (registrations kept until unload)
type State int

// Host states.
const (
	StateUnloaded State = iota
	StateLoaded
	StateActivating
	StateActive
	StateDeactivating
	StateError
)

var stateNames = [...]string{
	StateUnloaded:     "unloaded",
	StateLoaded:       "loaded",
	StateActivating:   "activating",
	StateActive:       "active",
	StateDeactivating: "deactivating",
	StateError:        "error",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// HasScope reports whether a host in this state may own live registrations.
// A failed activation keeps whatever it registered until the host unloads.
func (s State) HasScope() bool {
	switch s {
	case StateActivating, StateActive, StateError:
		return true
	}
	return false
}
