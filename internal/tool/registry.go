package tool

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
)

// Tool names recognized by the registry.
const (
	Subfinder = "subfinder"
	HTTPX     = "httpx"
	Nuclei    = "nuclei"
	Notify    = "notify"
)

// Spec describes one external tool and how to drive it.
type Spec struct {
	// Name is the binary's base name.
	Name string

	// VersionArgs invoke the tool's version banner.
	VersionArgs []string

	// TolerateExitError marks tools whose non-zero exit does not mean
	// failure. nuclei exits non-zero in several benign situations
	// (template warnings, partial target errors) while still writing
	// valid findings, so its exit status is advisory only.
	TolerateExitError bool

	// Required marks tools the pipeline cannot run without. notify is
	// optional: scans proceed without notifications when it is absent.
	Required bool
}

// specs enumerates the ProjectDiscovery tool chain the pipeline drives.
var specs = map[string]Spec{
	Subfinder: {Name: Subfinder, VersionArgs: []string{"-version"}, Required: true},
	HTTPX:     {Name: HTTPX, VersionArgs: []string{"-version"}, Required: true},
	Nuclei:    {Name: Nuclei, VersionArgs: []string{"-version"}, TolerateExitError: true, Required: true},
	Notify:    {Name: Notify, VersionArgs: []string{"-version"}},
}

// Names returns all registered tool names in a stable order.
func Names() []string {
	names := make([]string, 0, len(specs))
	for name := range specs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RequiredNames returns the tools a scan cannot start without.
func RequiredNames() []string {
	var names []string
	for _, name := range Names() {
		if specs[name].Required {
			names = append(names, name)
		}
	}
	return names
}

// Lookup returns the spec for a registered tool name.
func Lookup(name string) (Spec, error) {
	spec, ok := specs[name]
	if !ok {
		return Spec{}, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	return spec, nil
}

// Registry resolves tool names to executable paths. A configured tools
// directory takes precedence over PATH, so a project-local toolchain
// shadows whatever the system carries.
type Registry struct {
	toolsDir string
}

// NewRegistry creates a Registry. toolsDir may be empty, in which case
// only PATH is searched.
func NewRegistry(toolsDir string) *Registry {
	return &Registry{toolsDir: toolsDir}
}

// Resolve returns the executable path for a registered tool, or
// ErrToolMissing when it cannot be found.
func (r *Registry) Resolve(name string) (string, error) {
	if _, err := Lookup(name); err != nil {
		return "", err
	}

	if r.toolsDir != "" {
		candidate := filepath.Join(r.toolsDir, name+executableSuffix())
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}

	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrToolMissing, name)
	}
	return path, nil
}

// ResolveRequired resolves every required tool, returning the first
// resolution failure.
func (r *Registry) ResolveRequired() (map[string]string, error) {
	paths := make(map[string]string, len(specs))
	for _, name := range RequiredNames() {
		path, err := r.Resolve(name)
		if err != nil {
			return nil, err
		}
		paths[name] = path
	}
	return paths, nil
}

func executableSuffix() string {
	if runtime.GOOS == "windows" {
		return ".exe"
	}
	return ""
}
