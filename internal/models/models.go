// Package models defines the core data structures for CoachPipe.
//
// It includes the response value union, conversation graph and session types,
// the synthesized coach persona, and user records shared across modules.
package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ResponseKind identifies the payload shape of a ResponseValue.
type ResponseKind string

const (
	// ResponseKindText is a free-form text answer.
	ResponseKindText ResponseKind = "text"
	// ResponseKindNumber is a numeric answer.
	ResponseKindNumber ResponseKind = "number"
	// ResponseKindChoice is a single selection from a fixed option list.
	ResponseKindChoice ResponseKind = "choice"
	// ResponseKindMultiChoice is a multi-selection from a fixed option list.
	ResponseKindMultiChoice ResponseKind = "multi_choice"
	// ResponseKindScale is a position on a bounded numeric scale.
	ResponseKindScale ResponseKind = "scale"
	// ResponseKindVoice is a voice capture reduced to transcript plus duration.
	ResponseKindVoice ResponseKind = "voice"
	// ResponseKindSkipped marks a node the user skipped. It carries no payload.
	ResponseKindSkipped ResponseKind = "skipped"
)

// IsValidResponseKind checks if the given response kind is supported.
func IsValidResponseKind(k ResponseKind) bool {
	switch k {
	case ResponseKindText, ResponseKindNumber, ResponseKindChoice,
		ResponseKindMultiChoice, ResponseKindScale, ResponseKindVoice, ResponseKindSkipped:
		return true
	default:
		return false
	}
}

// ResponseValue is a tagged union holding a single answer to a conversation node.
// Values are immutable once created; use the constructor functions.
type ResponseValue struct {
	Kind       ResponseKind `json:"kind"`
	Text       string       `json:"text,omitempty"`
	Number     float64      `json:"number,omitempty"`
	Choice     string       `json:"choice,omitempty"`
	Choices    []string     `json:"choices,omitempty"`
	Scale      float64      `json:"scale,omitempty"`
	Transcript string       `json:"transcript,omitempty"`
	Duration   float64      `json:"duration,omitempty"`
}

// TextValue creates a free-form text response value.
func TextValue(s string) ResponseValue { return ResponseValue{Kind: ResponseKindText, Text: s} }

// NumberValue creates a numeric response value.
func NumberValue(n float64) ResponseValue { return ResponseValue{Kind: ResponseKindNumber, Number: n} }

// ChoiceValue creates a single-choice response value.
func ChoiceValue(c string) ResponseValue { return ResponseValue{Kind: ResponseKindChoice, Choice: c} }

// MultiChoiceValue creates a multi-choice response value.
func MultiChoiceValue(cs ...string) ResponseValue {
	return ResponseValue{Kind: ResponseKindMultiChoice, Choices: cs}
}

// ScaleValue creates a scale response value.
func ScaleValue(n float64) ResponseValue { return ResponseValue{Kind: ResponseKindScale, Scale: n} }

// VoiceValue creates a voice response value from a transcript and capture duration in seconds.
func VoiceValue(transcript string, duration float64) ResponseValue {
	return ResponseValue{Kind: ResponseKindVoice, Transcript: transcript, Duration: duration}
}

// SkippedValue creates the marker value recorded when a node is skipped.
func SkippedValue() ResponseValue { return ResponseValue{Kind: ResponseKindSkipped} }

// Equal reports whether two response values have the same kind and payload.
func (v ResponseValue) Equal(o ResponseValue) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case ResponseKindText:
		return v.Text == o.Text
	case ResponseKindNumber:
		return v.Number == o.Number
	case ResponseKindChoice:
		return v.Choice == o.Choice
	case ResponseKindMultiChoice:
		if len(v.Choices) != len(o.Choices) {
			return false
		}
		for i := range v.Choices {
			if v.Choices[i] != o.Choices[i] {
				return false
			}
		}
		return true
	case ResponseKindScale:
		return v.Scale == o.Scale
	case ResponseKindVoice:
		return v.Transcript == o.Transcript && v.Duration == o.Duration
	case ResponseKindSkipped:
		return true
	default:
		return false
	}
}

// IsSkipped reports whether the value is the skip marker.
func (v ResponseValue) IsSkipped() bool { return v.Kind == ResponseKindSkipped }

// TextContent returns the human-readable text carried by the value, regardless
// of kind. Voice values yield their transcript, numeric values are formatted.
func (v ResponseValue) TextContent() string {
	switch v.Kind {
	case ResponseKindText:
		return v.Text
	case ResponseKindChoice:
		return v.Choice
	case ResponseKindMultiChoice:
		out := ""
		for i, c := range v.Choices {
			if i > 0 {
				out += ", "
			}
			out += c
		}
		return out
	case ResponseKindNumber:
		return fmt.Sprintf("%g", v.Number)
	case ResponseKindScale:
		return fmt.Sprintf("%g", v.Scale)
	case ResponseKindVoice:
		return v.Transcript
	default:
		return ""
	}
}

// ToJSON serializes the response value for durable storage.
func (v ResponseValue) ToJSON() (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal response value: %w", err)
	}
	return string(data), nil
}

// ResponseValueFromJSON deserializes a stored response value.
func ResponseValueFromJSON(jsonStr string) (ResponseValue, error) {
	var v ResponseValue
	if err := json.Unmarshal([]byte(jsonStr), &v); err != nil {
		return ResponseValue{}, fmt.Errorf("failed to unmarshal response value: %w", err)
	}
	if !IsValidResponseKind(v.Kind) {
		return ResponseValue{}, fmt.Errorf("%w: %q", ErrInvalidResponseKind, v.Kind)
	}
	return v, nil
}

// Error variables for the engine-wide error taxonomy. Callers branch on these
// with errors.Is to decide between retry, abort, and user-facing messaging.
var (
	// ErrInvalidResponseKind indicates a stored or submitted value with an unknown kind tag.
	ErrInvalidResponseKind = errors.New("invalid response kind")
	// ErrValidation indicates the submitted answer failed the current node's validation rules.
	ErrValidation = errors.New("response failed validation")
	// ErrPersistence indicates a save or fetch against the store failed.
	ErrPersistence = errors.New("persistence operation failed")
	// ErrInvalidPersonaResponse indicates the LLM reply could not be parsed into the minimum persona fields.
	ErrInvalidPersonaResponse = errors.New("invalid persona synthesis response")
	// ErrProvider indicates the LLM call itself failed (network or provider error).
	ErrProvider = errors.New("language model provider error")
	// ErrUserNotFound indicates the referenced user does not exist.
	ErrUserNotFound = errors.New("user not found")
	// ErrSessionNotFound indicates no session exists for the requested lookup.
	ErrSessionNotFound = errors.New("session not found")
	// ErrActiveSessionExists indicates the user already has a session in flight.
	ErrActiveSessionExists = errors.New("active session already exists")
	// ErrNodeRequired indicates an attempt to skip a node whose answer is required.
	ErrNodeRequired = errors.New("current node requires an answer")
	// ErrPersonaNotFound indicates the user has no saved persona yet.
	ErrPersonaNotFound = errors.New("persona not found")
)

// MissingFieldError reports a required profile blob field that is absent.
// It carries the specific snake_case field name for precise messaging.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("profile is missing required field %q", e.Field)
}

// ConversationResponse is the durable record of one accepted answer.
// Records are append-only: revisiting a node appends a new record and the
// newest one wins when the session is read for synthesis.
type ConversationResponse struct {
	ID           string    `json:"id"`
	SessionID    string    `json:"session_id"`
	NodeID       string    `json:"node_id"`
	ResponseData string    `json:"response_data"` // encoded ResponseValue
	CreatedAt    time.Time `json:"created_at"`
}

// Value decodes the stored response data.
func (r ConversationResponse) Value() (ResponseValue, error) {
	return ResponseValueFromJSON(r.ResponseData)
}

// ConversationSession is the durable record of one user's progress through the
// onboarding graph. CurrentNodeID is empty before Start and after completion.
type ConversationSession struct {
	ID            string                 `json:"id"`
	UserID        string                 `json:"user_id"`
	CurrentNodeID string                 `json:"current_node_id,omitempty"`
	StartedAt     time.Time              `json:"started_at"`
	CompletedAt   *time.Time             `json:"completed_at,omitempty"`
	Responses     []ConversationResponse `json:"responses"`
}

// IsComplete reports whether the session finished the conversation.
func (s *ConversationSession) IsComplete() bool {
	return s.CompletedAt != nil
}

// IsActive reports whether the session is still collecting answers.
func (s *ConversationSession) IsActive() bool {
	return s.CompletedAt == nil
}

// LatestResponseFor returns the newest recorded response for a node, honoring
// the append-only last-write-wins contract. The second return is false when
// the node was never answered.
func (s *ConversationSession) LatestResponseFor(nodeID string) (ConversationResponse, bool) {
	for i := len(s.Responses) - 1; i >= 0; i-- {
		if s.Responses[i].NodeID == nodeID {
			return s.Responses[i], true
		}
	}
	return ConversationResponse{}, false
}
