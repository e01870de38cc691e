package security

import (
	"fmt"
	"sort"
	"strings"
)

// Capability is a permission a plugin can request.
type Capability string

// Known capabilities.
const (
	// CapabilityKernel grants every kernel registry.
	CapabilityKernel Capability = "kernel"

	// CapabilityActions grants action registration.
	CapabilityActions Capability = "kernel.actions"

	// CapabilityEvents grants event subscription.
	CapabilityEvents Capability = "kernel.events"

	// CapabilityParts grants opening and controlling parts.
	CapabilityParts Capability = "kernel.parts"

	// CapabilityImages grants icon registration.
	CapabilityImages Capability = "kernel.images"

	// CapabilityApp grants read access to user, workspace and endpoints.
	CapabilityApp Capability = "app"
)

// RiskLevel indicates how sensitive a capability is.
type RiskLevel int

const (
	// RiskLow covers capabilities that only contribute UI.
	RiskLow RiskLevel = iota

	// RiskMedium covers capabilities that read host state.
	RiskMedium
)

// String returns a string representation of the risk level.
func (r RiskLevel) String() string {
	switch r {
	case RiskLow:
		return "low"
	case RiskMedium:
		return "medium"
	default:
		return "unknown"
	}
}

// CapabilityInfo describes a capability.
type CapabilityInfo struct {
	Name        Capability
	Description string
	Parent      Capability
	RiskLevel   RiskLevel
}

var capabilityRegistry = map[Capability]CapabilityInfo{
	CapabilityKernel: {
		Name:        CapabilityKernel,
		Description: "Use every kernel registry",
	},
	CapabilityActions: {
		Name:        CapabilityActions,
		Description: "Register actions",
		Parent:      CapabilityKernel,
	},
	CapabilityEvents: {
		Name:        CapabilityEvents,
		Description: "Subscribe to host events",
		Parent:      CapabilityKernel,
	},
	CapabilityParts: {
		Name:        CapabilityParts,
		Description: "Open and control parts",
		Parent:      CapabilityKernel,
	},
	CapabilityImages: {
		Name:        CapabilityImages,
		Description: "Register icons",
		Parent:      CapabilityKernel,
	},
	CapabilityApp: {
		Name:        CapabilityApp,
		Description: "Read the current user, workspace and endpoints",
		RiskLevel:   RiskMedium,
	},
}

// GetCapabilityInfo returns information about a capability.
func GetCapabilityInfo(c Capability) (CapabilityInfo, bool) {
	info, ok := capabilityRegistry[c]
	return info, ok
}

// IsValidCapability returns true if the capability is known.
func IsValidCapability(c Capability) bool {
	_, ok := capabilityRegistry[c]
	return ok
}

// AllCapabilities returns all known capabilities, sorted.
func AllCapabilities() []Capability {
	caps := make([]Capability, 0, len(capabilityRegistry))
	for c := range capabilityRegistry {
		caps = append(caps, c)
	}
	sort.Slice(caps, func(i, j int) bool { return caps[i] < caps[j] })
	return caps
}

// ParseCapabilities converts manifest strings into capabilities.
func ParseCapabilities(names []string) ([]Capability, error) {
	caps := make([]Capability, 0, len(names))
	for _, name := range names {
		c := Capability(strings.TrimSpace(name))
		if !IsValidCapability(c) {
			return nil, NewCapabilityError(c, "", "unknown capability")
		}
		caps = append(caps, c)
	}
	return caps, nil
}

// ImpliesCapability returns true if having granted implies having required.
func ImpliesCapability(granted, required Capability) bool {
	if granted == required {
		return true
	}
	return strings.HasPrefix(string(required), string(granted)+".")
}

// CapabilityError represents a capability-related error.
type CapabilityError struct {
	Capability Capability
	Operation  string
	Message    string
}

// Error implements the error interface.
func (e *CapabilityError) Error() string {
	if e.Operation != "" {
		return fmt.Sprintf("capability %q required for %s: %s", e.Capability, e.Operation, e.Message)
	}
	return fmt.Sprintf("capability %q: %s", e.Capability, e.Message)
}

// NewCapabilityError creates a new capability error.
func NewCapabilityError(c Capability, operation, message string) *CapabilityError {
	return &CapabilityError{
		Capability: c,
		Operation:  operation,
		Message:    message,
	}
}
