// Package ledger records which packages are installed on this machine.
//
// The ledger is informational: installers write to it after a successful
// commit, and the on-disk layout stays the source of truth. A ledger write
// failure never undoes an installation.
package ledger

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/uniquestream/packagekit/pkg/storage"
)

// Kind distinguishes the two install flows.
type Kind string

const (
	KindPlugin Kind = "plugin"
	KindScene  Kind = "scene"
)

// ErrNotFound is returned when no entry exists for a kind and id.
var ErrNotFound = errors.New("ledger entry not found")

// Entry describes one installed package. It is stored in installed.yaml.
type Entry struct {
	Kind    Kind   `yaml:"kind"`
	ID      string `yaml:"id"`
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Path is the installed payload file (plugins) or package root (scenes)
	Path string `yaml:"path"`

	// SHA256 is the verified payload digest; empty for scenes
	SHA256 string `yaml:"sha256,omitempty"`

	// Size is the payload size in bytes, or the resource count for scenes
	Size int64 `yaml:"size"`

	InstalledAt time.Time `yaml:"installed_at"`

	// Transaction is the id of the install that produced this entry
	Transaction string `yaml:"transaction,omitempty"`
}

// Validate checks the fields needed to key and locate an entry.
func (e *Entry) Validate() error {
	if e == nil {
		return fmt.Errorf("entry is nil")
	}
	if e.Kind != KindPlugin && e.Kind != KindScene {
		return fmt.Errorf("kind must be %q or %q", KindPlugin, KindScene)
	}
	if e.ID == "" {
		return fmt.Errorf("id is required")
	}
	if e.Version == "" {
		return fmt.Errorf("version is required")
	}
	if e.Path == "" {
		return fmt.Errorf("path is required")
	}
	if !filepath.IsAbs(e.Path) {
		return fmt.Errorf("path must be absolute")
	}
	return nil
}

func key(kind Kind, id string) string {
	return string(kind) + ":" + id
}

// Ledger is a YAML-backed set of installed packages, safe for concurrent use.
type Ledger struct {
	entries  map[string]*Entry
	metaFile string
	mu       sync.RWMutex
}

// New creates a ledger persisted at metaFile. Call Load to read existing state.
func New(metaFile string) *Ledger {
	return &Ledger{
		entries:  make(map[string]*Entry),
		metaFile: metaFile,
	}
}

// Load reads the ledger file. A missing file yields an empty ledger.
func (l *Ledger) Load() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = make(map[string]*Entry)
	if !storage.FileExists(l.metaFile) {
		return nil
	}

	var list []*Entry
	if err := storage.LoadYAMLFile(l.metaFile, &list); err != nil {
		return fmt.Errorf("failed to load installed packages: %w", err)
	}
	for _, e := range list {
		if e == nil {
			continue
		}
		l.entries[key(e.Kind, e.ID)] = e
	}
	return nil
}

// Record inserts or replaces the entry for e.Kind and e.ID and persists the
// ledger. The in-memory state is reverted if the write fails.
func (l *Ledger) Record(e Entry) error {
	if err := e.Validate(); err != nil {
		return fmt.Errorf("invalid ledger entry: %w", err)
	}
	if e.InstalledAt.IsZero() {
		e.InstalledAt = time.Now().UTC()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	k := key(e.Kind, e.ID)
	previous, existed := l.entries[k]
	l.entries[k] = &e

	if err := l.saveLocked(); err != nil {
		if existed {
			l.entries[k] = previous
		} else {
			delete(l.entries, k)
		}
		return err
	}
	return nil
}

// Remove deletes an entry and persists the ledger. Installed files are not
// touched.
func (l *Ledger) Remove(kind Kind, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	k := key(kind, id)
	previous, exists := l.entries[k]
	if !exists {
		return fmt.Errorf("%w: %s %s", ErrNotFound, kind, id)
	}
	delete(l.entries, k)

	if err := l.saveLocked(); err != nil {
		l.entries[k] = previous
		return err
	}
	return nil
}

// Get returns a copy of the entry for kind and id.
func (l *Ledger) Get(kind Kind, id string) (Entry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	e, ok := l.entries[key(kind, id)]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// List returns copies of all entries sorted by kind then id.
func (l *Ledger) List() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.sortedLocked()
}

// Count returns the number of recorded packages.
func (l *Ledger) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// MetaFile returns the path of the ledger file.
func (l *Ledger) MetaFile() string {
	return l.metaFile
}

func (l *Ledger) sortedLocked() []Entry {
	out := make([]Entry, 0, len(l.entries))
	for _, e := range l.entries {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (l *Ledger) saveLocked() error {
	if err := storage.SaveYAMLFile(l.metaFile, l.sortedLocked()); err != nil {
		return fmt.Errorf("failed to write installed packages: %w", err)
	}
	return nil
}
