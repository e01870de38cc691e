package security

import (
	"sort"
	"sync"
)

// PermissionChecker holds the capabilities granted to one plugin.
type PermissionChecker struct {
	mu           sync.RWMutex
	pluginName   string
	capabilities map[Capability]bool
}

// NewPermissionChecker creates a checker with nothing granted.
func NewPermissionChecker(pluginName string) *PermissionChecker {
	return &PermissionChecker{
		pluginName:   pluginName,
		capabilities: make(map[Capability]bool),
	}
}

// PluginName returns the plugin the checker belongs to.
func (pc *PermissionChecker) PluginName() string {
	return pc.pluginName
}

// Grant grants a capability.
func (pc *PermissionChecker) Grant(c Capability) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.capabilities[c] = true
}

// GrantAll grants multiple capabilities.
func (pc *PermissionChecker) GrantAll(caps []Capability) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	for _, c := range caps {
		pc.capabilities[c] = true
	}
}

// Revoke revokes a capability.
func (pc *PermissionChecker) Revoke(c Capability) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	delete(pc.capabilities, c)
}

// HasCapability returns true if c or one of its parents is granted.
// A nil checker grants nothing.
func (pc *PermissionChecker) HasCapability(c Capability) bool {
	if pc == nil {
		return false
	}
	pc.mu.RLock()
	defer pc.mu.RUnlock()

	if pc.capabilities[c] {
		return true
	}
	for granted := range pc.capabilities {
		if ImpliesCapability(granted, c) {
			return true
		}
	}
	return false
}

// CheckCapability returns an error if the capability is not granted.
func (pc *PermissionChecker) CheckCapability(c Capability) error {
	if !pc.HasCapability(c) {
		return NewCapabilityError(c, "", "not granted")
	}
	return nil
}

// Capabilities returns the granted capabilities, sorted.
func (pc *PermissionChecker) Capabilities() []Capability {
	pc.mu.RLock()
	defer pc.mu.RUnlock()

	caps := make([]Capability, 0, len(pc.capabilities))
	for c := range pc.capabilities {
		caps = append(caps, c)
	}
	sort.Slice(caps, func(i, j int) bool { return caps[i] < caps[j] })
	return caps
}
