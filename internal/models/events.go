// Package models defines telemetry event structures for CoachPipe.
package models

import "time"

// EventType identifies a discrete analytics event emitted by the engine.
type EventType string

const (
	// EventSessionStarted fires when a session is created, and again on
	// repeated start calls while a session is already in flight.
	EventSessionStarted EventType = "session_started"
	// EventSessionResumed fires when a persisted session is resumed. Carries
	// the node ID the session resumed at.
	EventSessionResumed EventType = "session_resumed"
	// EventResponseSubmitted fires after a response is accepted and committed.
	EventResponseSubmitted EventType = "response_submitted"
	// EventNodeSkipped fires after a skip is committed.
	EventNodeSkipped EventType = "node_skipped"
	// EventSessionCompleted fires when the session advances past the terminal node.
	EventSessionCompleted EventType = "session_completed"
	// EventErrorOccurred fires for engine errors worth recording.
	EventErrorOccurred EventType = "error_occurred"
)

// AnalyticsEvent is a fire-and-forget telemetry record. Failure to record one
// is never fatal to the engine.
type AnalyticsEvent struct {
	Type         EventType     `json:"type"`
	UserID       string        `json:"user_id,omitempty"`
	SessionID    string        `json:"session_id,omitempty"`
	NodeID       string        `json:"node_id,omitempty"`
	ResponseKind ResponseKind  `json:"response_kind,omitempty"`
	Elapsed      time.Duration `json:"elapsed,omitempty"` // time spent on the node
	Error        string        `json:"error,omitempty"`
	At           time.Time     `json:"at"`
}
