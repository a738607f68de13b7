// Package modules manages which host modules are enabled.
//
// The host owns its module list. This package only reaches it through the
// Registry capability passed in by the caller, and keeps its own record of
// the user's enable/disable choices in modules.yaml.
package modules

import (
	"sort"
	"sync"
)

// Module is what the host reports about one loaded module.
type Module struct {
	DisplayName string `yaml:"display_name"`
	ModuleName  string `yaml:"module_name"`
	ID          string `yaml:"id"`
	Version     string `yaml:"version"`

	// Feature ids the module registered while loading
	Sources  []string `yaml:"sources"`
	Outputs  []string `yaml:"outputs"`
	Encoders []string `yaml:"encoders"`
	Services []string `yaml:"services"`
}

// Registry is the host module registry. Implementations must be safe to call
// from the goroutine that owns the State.
type Registry interface {
	// Enumerate lists the modules the host loaded.
	Enumerate() []Module

	// AddDisabled tells the host not to load moduleName on next start.
	AddDisabled(moduleName string)

	// AllowedToDisable reports whether the user may disable moduleName.
	AllowedToDisable(moduleName string) bool
}

// MemoryRegistry is an in-process Registry, used by tests and by the CLI when
// no host is attached.
type MemoryRegistry struct {
	mu       sync.Mutex
	modules  []Module
	locked   map[string]bool
	disabled map[string]bool
}

// NewMemoryRegistry returns a registry reporting mods. Module names listed in
// locked may not be disabled.
func NewMemoryRegistry(mods []Module, locked ...string) *MemoryRegistry {
	r := &MemoryRegistry{
		modules:  append([]Module(nil), mods...),
		locked:   make(map[string]bool, len(locked)),
		disabled: make(map[string]bool),
	}
	for _, name := range locked {
		r.locked[name] = true
	}
	return r
}

func (r *MemoryRegistry) Enumerate() []Module {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Module(nil), r.modules...)
}

func (r *MemoryRegistry) AddDisabled(moduleName string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disabled[moduleName] = true
}

func (r *MemoryRegistry) AllowedToDisable(moduleName string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.locked[moduleName]
}

// Disabled returns the module names passed to AddDisabled, sorted.
func (r *MemoryRegistry) Disabled() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, 0, len(r.disabled))
	for name := range r.disabled {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
