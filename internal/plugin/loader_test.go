package plugin

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestNewLoaderWithPaths(t *testing.T) {
	l := NewLoader(WithPaths("/a", "/b"))
	paths := l.Paths()
	if len(paths) != 2 || paths[0] != "/a" || paths[1] != "/b" {
		t.Errorf("Paths() = %v, want [/a /b]", paths)
	}

	l.AddPath("/c")
	if got := len(l.Paths()); got != 3 {
		t.Errorf("len(Paths()) after AddPath = %d, want 3", got)
	}
}

func TestLoaderDiscoverEmpty(t *testing.T) {
	l := NewLoader(WithPaths(t.TempDir(), filepath.Join(t.TempDir(), "missing")))

	plugins, err := l.Discover()
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if len(plugins) != 0 {
		t.Errorf("Discover() found %d plugins, want 0", len(plugins))
	}
}

func TestLoaderDiscoverKinds(t *testing.T) {
	dir := t.TempDir()

	// Directory plugin with a manifest whose name differs from the directory.
	writeFile(t, filepath.Join(dir, "with-manifest", "plugin.json"), `{"name": "named", "version": "1.0.0"}`)
	writeFile(t, filepath.Join(dir, "with-manifest", "init.lua"), `-- named`)

	// Directory plugin with only an entry point.
	writeFile(t, filepath.Join(dir, "bare", "plugin.lua"), `-- bare`)

	// Single-file plugin.
	writeFile(t, filepath.Join(dir, "single.lua"), `-- single`)

	// Directory without an entry point.
	writeFile(t, filepath.Join(dir, "empty", "README"), `nothing`)

	l := NewLoader(WithPaths(dir))
	plugins, err := l.Discover()
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}

	names := l.ListNames()
	want := []string{"bare", "empty", "named", "single"}
	if len(names) != len(want) {
		t.Fatalf("ListNames() = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] || plugins[i].Name != want[i] {
			t.Errorf("plugin %d = %q, want %q", i, names[i], want[i])
		}
	}

	bare, _ := l.Get("bare")
	if bare.Manifest == nil || bare.Manifest.Main != "plugin.lua" {
		t.Errorf("bare manifest = %+v, want main plugin.lua", bare.Manifest)
	}

	single, _ := l.Get("single")
	if single.Path != filepath.Join(dir, "single.lua") {
		t.Errorf("single Path = %q", single.Path)
	}
	if single.Manifest.MainPath() != filepath.Join(dir, "single.lua") {
		t.Errorf("single MainPath = %q", single.Manifest.MainPath())
	}

	empty, _ := l.Get("empty")
	if !errors.Is(empty.Error, ErrNoEntryPoint) {
		t.Errorf("empty Error = %v, want ErrNoEntryPoint", empty.Error)
	}

	errored := l.Errors()
	if len(errored) != 1 || errored[0].Name != "empty" {
		t.Errorf("Errors() = %v, want [empty]", errored)
	}
	if l.Count() != 4 {
		t.Errorf("Count() = %d, want 4", l.Count())
	}
}

func TestLoaderDiscoverInvalidManifest(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "broken", "plugin.json"), `{"name": "Broken!"}`)

	l := NewLoader(WithPaths(dir))
	if _, err := l.Discover(); err != nil {
		t.Fatalf("Discover() error = %v", err)
	}

	info, ok := l.Get("broken")
	if !ok {
		t.Fatal("Get(broken) not found")
	}
	if info.Error == nil {
		t.Error("expected manifest error")
	}
	if _, err := l.FindPlugin("broken"); err == nil {
		t.Error("FindPlugin() should report the cached error")
	}
}

func TestLoaderFirstPathWins(t *testing.T) {
	first, second := t.TempDir(), t.TempDir()
	writeFile(t, filepath.Join(first, "dup.lua"), `-- first`)
	writeFile(t, filepath.Join(second, "dup.lua"), `-- second`)

	l := NewLoader(WithPaths(first, second))
	if _, err := l.Discover(); err != nil {
		t.Fatal(err)
	}

	info, _ := l.Get("dup")
	if info.Path != filepath.Join(first, "dup.lua") {
		t.Errorf("Path = %q, want plugin from first path", info.Path)
	}
}

func TestLoaderFindPlugin(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "found", "init.lua"), `-- found`)
	writeFile(t, filepath.Join(dir, "solo.lua"), `-- solo`)

	// FindPlugin works without a prior Discover.
	l := NewLoader(WithPaths(dir))

	info, err := l.FindPlugin("found")
	if err != nil {
		t.Fatalf("FindPlugin(found) error = %v", err)
	}
	if info.Manifest.Main != "init.lua" {
		t.Errorf("Main = %q, want init.lua", info.Manifest.Main)
	}

	if _, err := l.FindPlugin("solo"); err != nil {
		t.Errorf("FindPlugin(solo) error = %v", err)
	}

	_, err = l.FindPlugin("nope")
	if !errors.Is(err, ErrPluginNotFound) {
		t.Errorf("FindPlugin(nope) error = %v, want ErrPluginNotFound", err)
	}
}

func TestLoaderRefresh(t *testing.T) {
	dir := t.TempDir()
	l := NewLoader(WithPaths(dir))
	if _, err := l.Discover(); err != nil {
		t.Fatal(err)
	}

	writeFile(t, filepath.Join(dir, "late.lua"), `-- late`)
	if _, ok := l.Get("late"); ok {
		t.Fatal("late plugin visible before refresh")
	}

	if _, err := l.Refresh(); err != nil {
		t.Fatal(err)
	}
	if _, ok := l.Get("late"); !ok {
		t.Error("late plugin not visible after refresh")
	}
}

func TestLoaderOwner(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "tree", "init.lua"), `-- tree`)
	writeFile(t, filepath.Join(dir, "tree", "lib", "util.lua"), `-- util`)
	writeFile(t, filepath.Join(dir, "leaf.lua"), `-- leaf`)

	l := NewLoader(WithPaths(dir))
	if _, err := l.Discover(); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		path string
		want string
		ok   bool
	}{
		{filepath.Join(dir, "tree", "init.lua"), "tree", true},
		{filepath.Join(dir, "tree", "lib", "util.lua"), "tree", true},
		{filepath.Join(dir, "leaf.lua"), "leaf", true},
		{filepath.Join(dir, "other.txt"), "", false},
	}
	for _, tt := range tests {
		got, ok := l.Owner(tt.path)
		if got != tt.want || ok != tt.ok {
			t.Errorf("Owner(%q) = %q, %v, want %q, %v", tt.path, got, ok, tt.want, tt.ok)
		}
	}
}

func TestLoaderValidatePlugin(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good")
	writeFile(t, filepath.Join(good, "init.lua"), `-- good`)

	l := NewLoader(WithPaths(dir))
	if err := l.ValidatePlugin(good); err != nil {
		t.Errorf("ValidatePlugin(good) error = %v", err)
	}
	if err := l.ValidatePlugin(filepath.Join(dir, "missing")); err == nil {
		t.Error("ValidatePlugin(missing) should fail")
	}
}

func TestDefaultPluginPaths(t *testing.T) {
	for _, p := range DefaultPluginPaths() {
		if !filepath.IsAbs(p) {
			t.Errorf("default path %q is not absolute", p)
		}
		if filepath.Base(p) != "plugins" {
			t.Errorf("default path %q does not end in plugins", p)
		}
	}
}
