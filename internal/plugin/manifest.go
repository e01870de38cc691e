package plugin

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dshills/extkernel/internal/kernel/part"
	"github.com/dshills/extkernel/internal/plugin/security"
)

// Manifest file names, in lookup order.
var manifestFiles = []string{"plugin.json", "plugin.yaml", "plugin.yml"}

// Manifest describes a plugin's metadata and requirements.
type Manifest struct {
	// Identity
	Name        string `json:"name" yaml:"name"`               // Unique identifier (e.g., "git-status")
	Version     string `json:"version" yaml:"version"`         // Semver (e.g., "1.2.0")
	DisplayName string `json:"displayName" yaml:"displayName"` // Human-readable name
	Description string `json:"description" yaml:"description"` // Short description
	Author      string `json:"author" yaml:"author"`           // Author name or org
	License     string `json:"license" yaml:"license"`         // SPDX license identifier
	Homepage    string `json:"homepage" yaml:"homepage"`       // URL to plugin homepage

	// Entry point
	Main string `json:"main" yaml:"main"` // Relative path to main Lua file (default: "init.lua")

	// Capabilities requested. None means every kernel surface but not app.
	Capabilities []string `json:"capabilities" yaml:"capabilities"`

	// Contributions
	Actions []ActionContribution `json:"actions" yaml:"actions"`
	Parts   []PartContribution   `json:"parts" yaml:"parts"`

	// Configuration schema
	ConfigSchema map[string]ConfigProperty `json:"configSchema" yaml:"configSchema"`

	// Internal: path to the plugin directory
	path string
}

// ActionContribution declares an action the plugin registers on activation.
type ActionContribution struct {
	ID    string `json:"id" yaml:"id"`
	Title string `json:"title" yaml:"title"`
}

// PartContribution declares a part the plugin opens.
type PartContribution struct {
	Title string `json:"title" yaml:"title"`
	Stack string `json:"stack" yaml:"stack"`
}

// ConfigProperty describes a configuration option passed to setup.
type ConfigProperty struct {
	Type        string   `json:"type" yaml:"type"`               // string, number, boolean, array, object
	Default     any      `json:"default" yaml:"default"`         // Default value
	Description string   `json:"description" yaml:"description"` // Property description
	Enum        []string `json:"enum" yaml:"enum"`               // Allowed values for enum types
}

// Validation errors.
var (
	ErrMissingName       = errors.New("manifest: name is required")
	ErrInvalidName       = errors.New("manifest: name must be alphanumeric with hyphens")
	ErrMissingVersion    = errors.New("manifest: version is required")
	ErrInvalidVersion    = errors.New("manifest: version must be valid semver")
	ErrInvalidMain       = errors.New("manifest: main must be a .lua file")
	ErrInvalidCapability = errors.New("manifest: invalid capability")
	ErrInvalidConfigType = errors.New("manifest: invalid config property type")
	ErrMissingActionID   = errors.New("manifest: action id is required")
	ErrInvalidPartStack  = errors.New("manifest: invalid part stack")
)

// namePattern validates plugin names.
var namePattern = regexp.MustCompile(`^[a-z][a-z0-9-]*[a-z0-9]$|^[a-z]$`)

// semverPattern validates version strings (simplified semver).
var semverPattern = regexp.MustCompile(`^\d+\.\d+\.\d+(-[a-zA-Z0-9.-]+)?(\+[a-zA-Z0-9.-]+)?$`)

// validConfigTypes are the allowed configuration property types.
var validConfigTypes = map[string]bool{
	"string":  true,
	"number":  true,
	"boolean": true,
	"array":   true,
	"object":  true,
}

// LoadManifest loads and validates a plugin manifest. Files ending in .yaml
// or .yml are parsed as YAML, anything else as JSON.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var m Manifest
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &m)
	default:
		err = json.Unmarshal(data, &m)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}

	m.path = filepath.Dir(path)
	m.applyDefaults()

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// FindManifest returns the manifest file in dir, if any.
func FindManifest(dir string) (string, bool) {
	for _, name := range manifestFiles {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			return p, true
		}
	}
	return "", false
}

// LoadManifestFromDir loads the manifest from a plugin directory.
func LoadManifestFromDir(dir string) (*Manifest, error) {
	p, ok := FindManifest(dir)
	if !ok {
		return nil, fmt.Errorf("failed to read manifest: no %s in %s", strings.Join(manifestFiles, ", "), dir)
	}
	return LoadManifest(p)
}

// NewManifestMinimal creates a minimal manifest for plugins without one.
func NewManifestMinimal(name, path string) *Manifest {
	return &Manifest{
		Name:    name,
		Version: "0.0.0",
		Main:    "init.lua",
		path:    path,
	}
}

func (m *Manifest) applyDefaults() {
	if m.Main == "" {
		m.Main = "init.lua"
	}
	if m.Version == "" {
		m.Version = "0.0.0"
	}
}

// Validate checks that the manifest is valid.
func (m *Manifest) Validate() error {
	if m.Name == "" {
		return ErrMissingName
	}
	if !namePattern.MatchString(m.Name) {
		return fmt.Errorf("%w: %s", ErrInvalidName, m.Name)
	}

	if m.Version == "" {
		return ErrMissingVersion
	}
	if !semverPattern.MatchString(m.Version) {
		return fmt.Errorf("%w: %s", ErrInvalidVersion, m.Version)
	}

	if m.Main != "" && filepath.Ext(m.Main) != ".lua" {
		return fmt.Errorf("%w: %s", ErrInvalidMain, m.Main)
	}

	if _, err := security.ParseCapabilities(m.Capabilities); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCapability, err)
	}

	for i, a := range m.Actions {
		if a.ID == "" {
			return fmt.Errorf("%w at index %d", ErrMissingActionID, i)
		}
	}
	for _, p := range m.Parts {
		if _, err := part.ParseStack(p.Stack); err != nil {
			return fmt.Errorf("%w: %s (part %q)", ErrInvalidPartStack, p.Stack, p.Title)
		}
	}

	for name, prop := range m.ConfigSchema {
		if prop.Type != "" && !validConfigTypes[prop.Type] {
			return fmt.Errorf("%w: %s.%s has type %q", ErrInvalidConfigType, m.Name, name, prop.Type)
		}
	}
	return nil
}

// Permissions builds the checker for the requested capabilities.
func (m *Manifest) Permissions() *security.PermissionChecker {
	pc := security.NewPermissionChecker(m.Name)
	if len(m.Capabilities) == 0 {
		pc.Grant(security.CapabilityKernel)
		return pc
	}
	caps, err := security.ParseCapabilities(m.Capabilities)
	if err == nil {
		pc.GrantAll(caps)
	}
	return pc
}

// Path returns the path to the plugin directory.
func (m *Manifest) Path() string {
	return m.path
}

// MainPath returns the full path to the main Lua file.
func (m *Manifest) MainPath() string {
	return filepath.Join(m.path, m.Main)
}

// ActionIDs returns the ids of the declared actions.
func (m *Manifest) ActionIDs() []string {
	ids := make([]string, 0, len(m.Actions))
	for _, a := range m.Actions {
		ids = append(ids, a.ID)
	}
	return ids
}

// GetConfigDefault returns the default value for a config property.
func (m *Manifest) GetConfigDefault(key string) (any, bool) {
	if prop, ok := m.ConfigSchema[key]; ok && prop.Default != nil {
		return prop.Default, true
	}
	return nil, false
}

// GetAllConfigDefaults returns all default config values.
func (m *Manifest) GetAllConfigDefaults() map[string]any {
	defaults := make(map[string]any)
	for key, prop := range m.ConfigSchema {
		if prop.Default != nil {
			defaults[key] = prop.Default
		}
	}
	return defaults
}

// String returns a string representation of the manifest.
func (m *Manifest) String() string {
	display := m.DisplayName
	if display == "" {
		display = m.Name
	}
	return fmt.Sprintf("%s v%s", display, m.Version)
}

// Clone creates a deep copy of the manifest.
func (m *Manifest) Clone() *Manifest {
	clone := *m
	clone.Capabilities = slices.Clone(m.Capabilities)
	clone.Actions = slices.Clone(m.Actions)
	clone.Parts = slices.Clone(m.Parts)
	clone.ConfigSchema = maps.Clone(m.ConfigSchema)
	return &clone
}
