package orchestrating

import (
	"fmt"
	"time"

	"LoadMonitor/pkg/sampling"
)

// Window is the wall-clock span of one phase.
type Window struct {
	Start time.Time
	End   time.Time
}

// Session collects the recordings of one run. It is only mutated by Run.
type Session struct {
	ID        string
	StartedAt time.Time

	Pre    sampling.PhaseRecording
	During sampling.PhaseRecording
	Post   sampling.PhaseRecording

	Windows map[string]Window
	// Artifacts lists charts and export files written during the run.
	Artifacts []string
	// TransferErr is the tolerated upload failure, if any.
	TransferErr error
}

func newSession(id string) *Session {
	return &Session{
		ID:        id,
		StartedAt: time.Now(),
		Windows:   make(map[string]Window),
	}
}

func (s *Session) markWindow(phase string, start, end time.Time) {
	s.Windows[phase] = Window{Start: start, End: end}
}

// PhaseError reports the phase a fatal error happened in.
type PhaseError struct {
	Phase string
	Err   error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("%s phase failed: %v", e.Phase, e.Err)
}

func (e *PhaseError) Unwrap() error {
	return e.Err
}
