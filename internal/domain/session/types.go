package session

import (
	"time"

	"voicerelay-server-go/internal/domain/source"
)

// Reason identifies which collaborator asked for a session reset.
type Reason string

const (
	// ReasonTimeout is raised by the controller's own deadline timer when a
	// session reaches its budget.
	ReasonTimeout Reason = "timeout"
	// ReasonTriggerDetected is raised when a wake word fires and recognition
	// should restart with a clean transcript.
	ReasonTriggerDetected Reason = "trigger_detected"
	// ReasonExternalCommit is raised by an outside commit signal, the only
	// way an external actor may influence the controller.
	ReasonExternalCommit Reason = "external_commit"
	// ReasonEngineError is raised when the transcription source fails or
	// closes the stream mid-session.
	ReasonEngineError Reason = "engine_error"
	// ReasonUserToggle is raised by an explicit restart from the control API.
	ReasonUserToggle Reason = "user_toggle"
)

// ResetRequest asks the controller to run one stop, settle, start cycle.
// Requests arriving while a reset is in flight are coalesced into it,
// never executed in parallel.
type ResetRequest struct {
	Reason          Reason
	ClearSink       bool
	SourceComponent string
}

// ResetNotice tells the event sink that a reset cycle cleared session
// state. It is delivered after the outgoing session's fragments have
// drained and before the replacement session produces any.
type ResetNotice struct {
	SessionID       string
	Reason          Reason
	ClearSink       bool
	SourceComponent string
}

// EventSink consumes the controller's output. OnFragment is called from
// the session pump goroutine and OnReset from the controller goroutine;
// implementations serialize the two internally.
type EventSink interface {
	OnFragment(frag source.Fragment)
	OnReset(notice ResetNotice)
}

// Descriptor identifies one recognition run. Descriptors are replaced,
// never mutated, on every restart.
type Descriptor struct {
	ID         string
	Generation uint64
	StartedAt  time.Time
	Deadline   time.Time
}

// State is the controller's lifecycle phase.
type State int

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateResetting
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateResetting:
		return "resetting"
	default:
		return "unknown"
	}
}

// Status is a point-in-time snapshot of the controller for the control
// API. Listening reports the logical toggle, which stays true across
// internal restart cycles.
type Status struct {
	State      State
	Listening  bool
	SessionID  string
	Generation uint64
	StartedAt  time.Time
	Deadline   time.Time
}
