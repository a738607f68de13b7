package modules

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/uniquestream/packagekit/pkg/logging"
	"github.com/uniquestream/packagekit/pkg/storage"
)

var (
	ErrModuleNotFound = errors.New("module not found")
	ErrNotDisableable = errors.New("module cannot be disabled")
)

// Entry is the persisted record for one module.
type Entry struct {
	DisplayName string   `yaml:"display_name"`
	ModuleName  string   `yaml:"module_name"`
	ID          string   `yaml:"id"`
	Version     string   `yaml:"version"`
	Enabled     bool     `yaml:"enabled"`
	Sources     []string `yaml:"sources"`
	Outputs     []string `yaml:"outputs"`
	Encoders    []string `yaml:"encoders"`
	Services    []string `yaml:"services"`

	// enabledAtLaunch is Enabled as it was when the state was loaded
	enabledAtLaunch bool
}

// Features groups feature ids by type.
type Features struct {
	Sources  []string
	Outputs  []string
	Encoders []string
	Services []string
}

// State is the user's module choices, persisted as YAML. It is safe for
// concurrent use.
type State struct {
	mu       sync.RWMutex
	filePath string
	entries  []Entry
	logger   *zap.Logger
}

// NewState loads modules.yaml from filePath. A missing file yields an empty
// state. A corrupt file is logged and replaced on the next save, so a bad
// edit never blocks the host from starting.
func NewState(filePath string, logger *zap.Logger) (*State, error) {
	logger = logging.OrNop(logger)
	s := &State{filePath: filePath, logger: logger}

	var entries []Entry
	err := storage.LoadYAMLFile(filePath, &entries)
	switch {
	case err == nil:
	case errors.Is(err, os.ErrNotExist):
		return s, nil
	case storage.FileExists(filePath):
		logger.Error("error loading modules state, generating a new one",
			zap.String("path", filePath), zap.Error(err))
		return s, nil
	default:
		return nil, fmt.Errorf("failed to load module state: %w", err)
	}

	for _, e := range entries {
		if e.ModuleName == "" {
			logger.Warn("skipping module entry without module_name", zap.String("id", e.ID))
			continue
		}
		e.enabledAtLaunch = e.Enabled
		s.entries = append(s.entries, e)
	}
	return s, nil
}

// ApplyDisabled passes every disabled module to the host. Call it before the
// host loads modules.
func (s *State) ApplyDisabled(reg Registry) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, e := range s.entries {
		if !e.Enabled {
			reg.AddDisabled(e.ModuleName)
			count++
		}
	}
	return count
}

// Sync merges the modules the host loaded into the state and saves it.
// Modules the host does not allow to be disabled are left out. New modules
// start enabled. Modules loaded at launch have their feature lists replaced
// with what they registered this time; disabled modules keep the features
// recorded when they last loaded.
func (s *State) Sync(reg Registry) error {
	loaded := reg.Enumerate()

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, mod := range loaded {
		if mod.ModuleName == "" || !reg.AllowedToDisable(mod.ModuleName) {
			continue
		}

		idx := s.indexLocked(mod.ModuleName)
		if idx < 0 {
			s.entries = append(s.entries, Entry{
				ModuleName:      mod.ModuleName,
				Enabled:         true,
				enabledAtLaunch: true,
			})
			idx = len(s.entries) - 1
		}

		e := &s.entries[idx]
		e.DisplayName = mod.DisplayName
		e.ID = mod.ID
		e.Version = mod.Version
		if e.enabledAtLaunch {
			e.Sources = copyStrings(mod.Sources)
			e.Outputs = copyStrings(mod.Outputs)
			e.Encoders = copyStrings(mod.Encoders)
			e.Services = copyStrings(mod.Services)
		}
	}

	return s.saveLocked()
}

// SetEnabled records the user's choice for a module and saves the state.
// The change takes effect on the next host start.
func (s *State) SetEnabled(moduleName string, enabled bool, reg Registry) error {
	if !enabled && reg != nil && !reg.AllowedToDisable(moduleName) {
		return fmt.Errorf("%w: %s", ErrNotDisableable, moduleName)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexLocked(moduleName)
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrModuleNotFound, moduleName)
	}

	previous := s.entries[idx].Enabled
	s.entries[idx].Enabled = enabled
	if err := s.saveLocked(); err != nil {
		s.entries[idx].Enabled = previous
		return err
	}
	return nil
}

// List returns a copy of all entries.
func (s *State) List() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// NeedsRestart reports whether any module's enabled flag changed since load.
func (s *State) NeedsRestart() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, e := range s.entries {
		if e.Enabled != e.enabledAtLaunch {
			return true
		}
	}
	return false
}

// DisabledFeatures collects the features provided by modules that were
// disabled at launch, so the host can tell users why a source is missing.
func (s *State) DisabledFeatures() Features {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var f Features
	for _, e := range s.entries {
		if e.enabledAtLaunch {
			continue
		}
		f.Sources = append(f.Sources, e.Sources...)
		f.Outputs = append(f.Outputs, e.Outputs...)
		f.Encoders = append(f.Encoders, e.Encoders...)
		f.Services = append(f.Services, e.Services...)
	}
	return f
}

// Save writes the state to disk.
func (s *State) Save() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saveLocked()
}

func (s *State) indexLocked(moduleName string) int {
	for i := range s.entries {
		if s.entries[i].ModuleName == moduleName {
			return i
		}
	}
	return -1
}

func (s *State) saveLocked() error {
	entries := s.entries
	if entries == nil {
		entries = []Entry{}
	}
	if err := storage.SaveYAMLFile(s.filePath, entries); err != nil {
		return fmt.Errorf("failed to save module state: %w", err)
	}
	return nil
}

func copyStrings(in []string) []string {
	if len(in) == 0 {
		return []string{}
	}
	return append([]string(nil), in...)
}
