package plugin

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"
)

// Loader discovers Lua plugins on the filesystem.
type Loader struct {
	mu sync.RWMutex

	// Search paths for plugins (checked in order)
	paths []string

	// Discovered plugins cache
	discovered map[string]*PluginInfo
}

// PluginInfo contains discovery information about a plugin.
type PluginInfo struct {
	Name     string
	Path     string
	Manifest *Manifest
	Error    error
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithPaths sets the plugin search paths.
func WithPaths(paths ...string) LoaderOption {
	return func(l *Loader) {
		l.paths = paths
	}
}

// NewLoader creates a new plugin loader.
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{
		paths:      DefaultPluginPaths(),
		discovered: make(map[string]*PluginInfo),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// DefaultPluginPaths returns the default plugin search paths.
func DefaultPluginPaths() []string {
	paths := make([]string, 0, 2)

	// User plugins: ~/.config/extkernel/plugins/
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "extkernel", "plugins"))
	}

	// Project plugins: .extkernel/plugins/
	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(cwd, ".extkernel", "plugins"))
	}

	return paths
}

// Paths returns the configured search paths.
func (l *Loader) Paths() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Clone(l.paths)
}

// AddPath adds a search path.
func (l *Loader) AddPath(path string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.paths = append(l.paths, path)
}

// Discover finds all plugins in the search paths.
// Returns plugins sorted by name.
func (l *Loader) Discover() ([]*PluginInfo, error) {
	discovered := make(map[string]*PluginInfo)
	for _, basePath := range l.Paths() {
		// Unreadable paths are skipped; a missing path is not an error.
		_ = discoverInPath(basePath, discovered)
	}

	l.mu.Lock()
	l.discovered = discovered
	l.mu.Unlock()

	plugins := make([]*PluginInfo, 0, len(discovered))
	for _, info := range discovered {
		plugins = append(plugins, info)
	}
	sort.Slice(plugins, func(i, j int) bool {
		return plugins[i].Name < plugins[j].Name
	})
	return plugins, nil
}

// discoverInPath finds plugins in a single directory. Earlier paths win.
func discoverInPath(basePath string, discovered map[string]*PluginInfo) error {
	entries, err := os.ReadDir(basePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			if filepath.Ext(entry.Name()) == ".lua" {
				name := strings.TrimSuffix(entry.Name(), ".lua")
				if _, exists := discovered[name]; !exists {
					discovered[name] = singleFilePlugin(name, basePath)
				}
			}
			continue
		}

		info := inspectPlugin(entry.Name(), filepath.Join(basePath, entry.Name()))
		if _, exists := discovered[info.Name]; !exists {
			discovered[info.Name] = info
		}
	}
	return nil
}

func singleFilePlugin(name, dir string) *PluginInfo {
	manifest := NewManifestMinimal(name, dir)
	manifest.Main = name + ".lua"
	return &PluginInfo{
		Name:     name,
		Path:     filepath.Join(dir, manifest.Main),
		Manifest: manifest,
	}
}

// inspectPlugin examines a plugin directory and returns its info.
func inspectPlugin(name, path string) *PluginInfo {
	info := &PluginInfo{
		Name: name,
		Path: path,
	}

	if manifestPath, ok := FindManifest(path); ok {
		manifest, err := LoadManifest(manifestPath)
		if err != nil {
			info.Error = fmt.Errorf("invalid manifest: %w", err)
			return info
		}
		info.Manifest = manifest
		info.Name = manifest.Name
		return info
	}

	for _, main := range []string{"init.lua", "plugin.lua"} {
		if _, err := os.Stat(filepath.Join(path, main)); err == nil {
			manifest := NewManifestMinimal(name, path)
			manifest.Main = main
			info.Manifest = manifest
			return info
		}
	}

	info.Error = ErrNoEntryPoint
	return info
}

// Get returns info for a specific plugin by name.
func (l *Loader) Get(name string) (*PluginInfo, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	info, ok := l.discovered[name]
	return info, ok
}

// Refresh re-discovers plugins.
func (l *Loader) Refresh() ([]*PluginInfo, error) {
	return l.Discover()
}

// FindPlugin searches for a plugin by name across all paths.
func (l *Loader) FindPlugin(name string) (*PluginInfo, error) {
	if info, ok := l.Get(name); ok {
		if info.Error != nil {
			return nil, fmt.Errorf("plugin %q: %w", name, info.Error)
		}
		return info, nil
	}

	for _, basePath := range l.Paths() {
		pluginPath := filepath.Join(basePath, name)
		if stat, err := os.Stat(pluginPath); err == nil && stat.IsDir() {
			info := inspectPlugin(name, pluginPath)
			if info.Error == nil {
				l.remember(info)
				return info, nil
			}
		}

		if _, err := os.Stat(filepath.Join(basePath, name+".lua")); err == nil {
			info := singleFilePlugin(name, basePath)
			l.remember(info)
			return info, nil
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrPluginNotFound, name)
}

func (l *Loader) remember(info *PluginInfo) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.discovered[info.Name] = info
}

// Owner returns the discovered plugin whose files include path.
func (l *Loader) Owner(path string) (string, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	path = filepath.Clean(path)
	for name, info := range l.discovered {
		if info.Manifest != nil && filepath.Clean(info.Manifest.MainPath()) == path {
			return name, true
		}
		if isWithin(path, info.Path) {
			return name, true
		}
	}
	return "", false
}

func isWithin(target, dir string) bool {
	rel, err := filepath.Rel(dir, target)
	if err != nil {
		return false
	}
	return rel == "." || (!strings.HasPrefix(rel, "..") && !filepath.IsAbs(rel))
}

// ValidatePlugin checks if a plugin at the given path is valid.
func (l *Loader) ValidatePlugin(path string) error {
	info := inspectPlugin(filepath.Base(path), path)
	if info.Error != nil {
		return info.Error
	}
	return info.Manifest.Validate()
}

// ListNames returns the names of all discovered plugins.
func (l *Loader) ListNames() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	names := make([]string, 0, len(l.discovered))
	for name := range l.discovered {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of discovered plugins.
func (l *Loader) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.discovered)
}

// Errors returns all discovered plugins that have errors.
func (l *Loader) Errors() []*PluginInfo {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var errored []*PluginInfo
	for _, info := range l.discovered {
		if info.Error != nil {
			errored = append(errored, info)
		}
	}
	sort.Slice(errored, func(i, j int) bool { return errored[i].Name < errored[j].Name })
	return errored
}
