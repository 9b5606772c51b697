package engine

import (
	"sync"
	"time"
)

// Phase is a step of an import run.
type Phase string

const (
	PhasePreflight  Phase = "preflight"
	PhaseDetecting  Phase = "detecting"
	PhaseExtracting Phase = "extracting"
	PhaseLocating   Phase = "locating"
	PhaseBackingUp  Phase = "backing_up"
	PhaseImporting  Phase = "importing"
	PhaseCleanup    Phase = "cleanup"
	PhaseComplete   Phase = "complete"
	PhaseFailed     Phase = "failed"
	PhaseCancelled  Phase = "cancelled"
)

// PhaseEvent records when a phase was entered.
type PhaseEvent struct {
	Phase   Phase     `json:"phase"`
	At      time.Time `json:"at"`
	Message string    `json:"message,omitempty"`
}

// Progress is a snapshot of the current run state, safe for JSON serialization.
type Progress struct {
	RunID     string       `json:"run_id"`
	Phase     Phase        `json:"phase"`
	Message   string       `json:"message,omitempty"`
	StartTime time.Time    `json:"start_time"`
	Elapsed   string       `json:"elapsed"`
	Events    []PhaseEvent `json:"events"`
}

// Tracker accumulates phase transitions of one run in a thread-safe manner.
// Observers use Wait() to block until the next update.
type Tracker struct {
	mu sync.Mutex

	runID     string
	phase     Phase
	message   string
	startTime time.Time
	events    []PhaseEvent

	// Close-and-replace: any update closes the current channel and
	// installs a fresh one.
	notify chan struct{}
}

// NewTracker creates a tracker for the given run.
func NewTracker(runID string) *Tracker {
	return &Tracker{
		runID:     runID,
		startTime: time.Now(),
		notify:    make(chan struct{}),
	}
}

// Snapshot returns a copy of the current progress state.
func (t *Tracker) Snapshot() Progress {
	t.mu.Lock()
	defer t.mu.Unlock()

	events := make([]PhaseEvent, len(t.events))
	copy(events, t.events)

	return Progress{
		RunID:     t.runID,
		Phase:     t.phase,
		Message:   t.message,
		StartTime: t.startTime,
		Elapsed:   time.Since(t.startTime).Truncate(time.Millisecond).String(),
		Events:    events,
	}
}

// Wait returns a channel that will be closed when the next update occurs.
func (t *Tracker) Wait() <-chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.notify
}

// signal must be called with t.mu held.
func (t *Tracker) signal() {
	close(t.notify)
	t.notify = make(chan struct{})
}

// SetPhase enters a new phase and records the transition.
func (t *Tracker) SetPhase(phase Phase, msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.phase = phase
	t.message = msg
	t.events = append(t.events, PhaseEvent{Phase: phase, At: time.Now(), Message: msg})
	t.signal()
}

// SetMessage sets a human-readable status message without changing phase.
func (t *Tracker) SetMessage(msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.message = msg
	t.signal()
}

// Phase returns the current phase.
func (t *Tracker) Phase() Phase {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.phase
}
