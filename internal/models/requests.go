package models

import (
	"errors"
	"fmt"
	"strings"
)

// EnrollmentRequest is the payload for enrolling a new user.
type EnrollmentRequest struct {
	Name        string            `json:"name,omitempty"`
	PhoneNumber string            `json:"phone_number"`
	Timezone    string            `json:"timezone,omitempty"`
	Absence     AbsencePreference `json:"absence_response,omitempty"`
}

// Validate checks required enrollment fields.
func (r *EnrollmentRequest) Validate() error {
	if strings.TrimSpace(r.PhoneNumber) == "" {
		return errors.New("phone_number is required")
	}
	switch r.Absence {
	case "", AbsenceCheckIn, AbsenceGentleReminder, AbsenceGiveMeSpace:
	default:
		return fmt.Errorf("unknown absence_response %q", r.Absence)
	}
	return nil
}

// SubmitResponseRequest is the payload for answering the current question.
type SubmitResponseRequest struct {
	Value ResponseValue `json:"value"`
}

// Validate checks that the response value carries a known kind.
func (r *SubmitResponseRequest) Validate() error {
	switch r.Value.Kind {
	case ResponseKindText, ResponseKindNumber, ResponseKindChoice,
		ResponseKindMultiChoice, ResponseKindScale, ResponseKindVoice, ResponseKindSkipped:
		return nil
	case "":
		return errors.New("value.kind is required")
	default:
		return fmt.Errorf("%w: %q", ErrInvalidResponseKind, r.Value.Kind)
	}
}

// SkipRequest is the payload for skipping the current question.
type SkipRequest struct {
	Force bool `json:"force,omitempty"`
}

// AdjustPersonaRequest is the payload for refining a saved persona.
type AdjustPersonaRequest struct {
	Instruction string `json:"instruction"`
}

// Validate checks that an instruction was given.
func (r *AdjustPersonaRequest) Validate() error {
	if strings.TrimSpace(r.Instruction) == "" {
		return errors.New("instruction is required")
	}
	return nil
}

// SavePersonaRequest is the payload for persisting a persona for a user.
// When SessionID names a session, the profile is composed from it and saved
// alongside the persona.
type SavePersonaRequest struct {
	Persona   CoachPersona `json:"persona"`
	SessionID string       `json:"session_id,omitempty"`
}

// Validate checks the minimum persona fields.
func (r *SavePersonaRequest) Validate() error {
	if strings.TrimSpace(r.Persona.Name) == "" {
		return errors.New("persona.name is required")
	}
	if strings.TrimSpace(r.Persona.Archetype) == "" {
		return errors.New("persona.archetype is required")
	}
	return nil
}
