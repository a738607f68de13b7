package install

import (
	"sync"
	"time"
)

// Statistics counts install outcomes for the lifetime of a process.
type Statistics struct {
	mu sync.RWMutex

	// Attempted is the number of plugin transactions started
	Attempted int

	// Committed is the number of plugin transactions that succeeded
	Committed int

	// IntegrityFailures counts hash and signature rejections
	IntegrityFailures int

	RolledBack int
	Fatal      int

	// ScenesInstalled is the number of scene packages fully downloaded
	ScenesInstalled int

	// ResourcesDownloaded is the number of scene resources written
	ResourcesDownloaded int

	// BytesDownloaded covers packages, manifests and resources
	BytesDownloaded int64

	LastInstallTime time.Time
}

// NewStatistics creates zeroed statistics.
func NewStatistics() *Statistics {
	return &Statistics{}
}

func (s *Statistics) addAttempt() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Attempted++
}

func (s *Statistics) addBytes(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.BytesDownloaded += int64(n)
}

func (s *Statistics) addIntegrityFailure() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.IntegrityFailures++
}

func (s *Statistics) addOutcome(phase Phase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch phase {
	case PhaseCommitted:
		s.Committed++
		s.LastInstallTime = time.Now()
	case PhaseRolledBack:
		s.RolledBack++
	case PhaseFatal:
		s.Fatal++
	}
}

func (s *Statistics) addScene() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ScenesInstalled++
	s.LastInstallTime = time.Now()
}

func (s *Statistics) addResource() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ResourcesDownloaded++
}

// Snapshot returns a copy of the current counters.
func (s *Statistics) Snapshot() StatisticsSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return StatisticsSnapshot{
		Attempted:           s.Attempted,
		Committed:           s.Committed,
		IntegrityFailures:   s.IntegrityFailures,
		RolledBack:          s.RolledBack,
		Fatal:               s.Fatal,
		ScenesInstalled:     s.ScenesInstalled,
		ResourcesDownloaded: s.ResourcesDownloaded,
		BytesDownloaded:     s.BytesDownloaded,
		LastInstallTime:     s.LastInstallTime,
	}
}

// StatisticsSnapshot is an immutable copy of Statistics.
type StatisticsSnapshot struct {
	Attempted           int
	Committed           int
	IntegrityFailures   int
	RolledBack          int
	Fatal               int
	ScenesInstalled     int
	ResourcesDownloaded int
	BytesDownloaded     int64
	LastInstallTime     time.Time
}
