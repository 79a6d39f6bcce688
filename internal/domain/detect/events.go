package detect

// State is the detector's per-cycle position.
type State int

const (
	// StateIdle means no trigger is active.
	StateIdle State = iota
	// StateTriggerDetected means a trigger fired and command text is
	// accumulating for its owner.
	StateTriggerDetected
	// StateCommandReady is the transient state between a commit and the
	// return to idle.
	StateCommandReady
)

func (s State) String() string {
	switch s {
	case StateTriggerDetected:
		return "trigger_detected"
	case StateCommandReady:
		return "command_ready"
	default:
		return "idle"
	}
}

// EventKind tags the closed set of detector events.
type EventKind int

const (
	// EventTriggerFired marks a trigger match that opened (or superseded
	// into) a new detection cycle.
	EventTriggerFired EventKind = iota
	// EventBufferUpdated carries the full command text after a fragment
	// was merged.
	EventBufferUpdated
	// EventCommandCommitted closes the cycle with the final command.
	EventCommandCommitted
)

func (k EventKind) String() string {
	switch k {
	case EventTriggerFired:
		return "trigger_fired"
	case EventBufferUpdated:
		return "buffer_updated"
	case EventCommandCommitted:
		return "command_committed"
	default:
		return "unknown"
	}
}

// Event is one detector output. Kind selects which fields carry data:
// TriggerFired fills Phrase and Score, BufferUpdated fills Text,
// CommandCommitted fills Command. Owner is always set.
type Event struct {
	Kind    EventKind
	Owner   string
	Phrase  string
	Score   float64
	Text    string
	Command string
}
