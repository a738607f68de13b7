package install

// Phase is the step an install transaction has reached.
type Phase string

const (
	// PhaseIdle is the state before anything has been downloaded
	PhaseIdle Phase = "idle"

	// PhaseDownloaded means the payload sits in the temp directory
	PhaseDownloaded Phase = "downloaded"

	// PhaseVerified means hash and signature matched
	PhaseVerified Phase = "verified"

	// PhaseStaged means the previous installation was moved aside and the
	// payload is being copied into place
	PhaseStaged Phase = "staged"

	// PhaseCommitted is the successful terminal state
	PhaseCommitted Phase = "committed"

	// PhaseRolledBack means staging failed and the previous installation
	// was restored
	PhaseRolledBack Phase = "rolled_back"

	// PhaseFatal means staging failed and the restore failed too
	PhaseFatal Phase = "fatal"

	// PhaseFailed means the transaction stopped before touching the
	// destination
	PhaseFailed Phase = "failed"
)

// Terminal reports whether no further transition can happen.
func (p Phase) Terminal() bool {
	switch p {
	case PhaseCommitted, PhaseRolledBack, PhaseFatal, PhaseFailed:
		return true
	}
	return false
}

func (p Phase) String() string {
	return string(p)
}
