package eventbus

import "time"

// Topic names carried by the bus.
const (
	// Lifecycle events published by the session controller.
	EventSessionStarted   = "session:started"
	EventSessionStopped   = "session:stopped"
	EventSessionReset     = "session:reset"
	EventListeningChanged = "listening:changed"

	// Detection events published by the relay on behalf of the detector.
	EventTriggerFired     = "detect:trigger"
	EventBufferUpdated    = "detect:buffer"
	EventCommandCommitted = "detect:command"

	// Sink events published as edits flow out.
	EventSinkEdit      = "sink:edit"
	EventSinkCleared   = "sink:cleared"
	EventSinkCommitted = "sink:committed"

	// Configuration events.
	EventTriggersUpdated = "trigger:updated"

	// Source failures surfaced for observers.
	EventSourceError = "source:error"
)

// SessionEventData accompanies session:started and session:stopped.
type SessionEventData struct {
	SessionID  string    `json:"session_id"`
	Generation uint64    `json:"generation"`
	StartedAt  time.Time `json:"started_at,omitempty"`
	Deadline   time.Time `json:"deadline,omitempty"`
}

// ResetEventData accompanies session:reset, published once per executed
// reset cycle.
type ResetEventData struct {
	SessionID       string `json:"session_id"`
	Reason          string `json:"reason"`
	ClearSink       bool   `json:"clear_sink"`
	SourceComponent string `json:"source_component,omitempty"`
}

// ListeningEventData accompanies listening:changed.
type ListeningEventData struct {
	Listening bool `json:"listening"`
}

// TriggerFiredData accompanies detect:trigger.
type TriggerFiredData struct {
	Owner  string  `json:"owner"`
	Phrase string  `json:"phrase"`
	Score  float64 `json:"score"`
}

// BufferUpdatedData accompanies detect:buffer.
type BufferUpdatedData struct {
	Owner string `json:"owner"`
	Text  string `json:"text"`
}

// CommandCommittedData accompanies detect:command.
type CommandCommittedData struct {
	Owner   string `json:"owner"`
	Command string `json:"command"`
}

// SinkEditData accompanies sink:edit.
type SinkEditData struct {
	SessionID   string `json:"session_id"`
	DeleteCount int    `json:"delete_count"`
	AppendText  string `json:"append_text"`
}

// SinkClearedData accompanies sink:cleared.
type SinkClearedData struct {
	Reason string `json:"reason"`
}

// SinkCommittedData accompanies sink:committed.
type SinkCommittedData struct {
	Command string `json:"command"`
}

// TriggersUpdatedData accompanies trigger:updated.
type TriggersUpdatedData struct {
	Count int `json:"count"`
}

// SourceErrorData accompanies source:error.
type SourceErrorData struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}
