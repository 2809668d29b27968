package models

// EventKind tags a ProgressEvent.
type EventKind string

const (
	EventProgress EventKind = "progress"
	EventComplete EventKind = "complete"
	EventError    EventKind = "error"
)

// ProgressEvent is a single broadcast for one run: either a percentage tick or
// a terminal complete/error signal.
type ProgressEvent struct {
	RunID    string    `json:"runId"`
	Kind     EventKind `json:"kind"`
	Progress int       `json:"progress"`
	Message  string    `json:"message,omitempty"`
}

// Terminal reports whether the event ends its run.
func (e ProgressEvent) Terminal() bool {
	return e.Kind == EventComplete || e.Kind == EventError
}

// NewProgress builds a percentage tick.
func NewProgress(runID string, pct int) ProgressEvent {
	return ProgressEvent{RunID: runID, Kind: EventProgress, Progress: pct}
}

// NewComplete builds the success terminal event.
func NewComplete(runID, msg string) ProgressEvent {
	return ProgressEvent{RunID: runID, Kind: EventComplete, Progress: 100, Message: msg}
}

// NewFailure builds the error terminal event.
func NewFailure(runID, msg string) ProgressEvent {
	return ProgressEvent{RunID: runID, Kind: EventError, Message: msg}
}
