// Package models defines the persisted profile blob exchanged with the client.
package models

import (
	"encoding/json"
	"fmt"
)

// ProfileBlob is the on-disk JSON shape of the synthesized profile attached to
// a user. Field names are stable snake_case keys; every field listed here is
// required for the blob to be considered valid.
type ProfileBlob struct {
	LifeContext           []string               `json:"life_context"`
	Goal                  string                 `json:"goal"`
	Blend                 map[string]float64     `json:"blend"` // persona mode mix, weights 0-1
	EngagementPreferences map[string]string      `json:"engagement_preferences"`
	SleepWindow           string                 `json:"sleep_window"` // e.g. "23:00-07:00"
	MotivationalStyle     string                 `json:"motivational_style"`
	Timezone              string                 `json:"timezone"`
	BaselineModeEnabled   *bool                  `json:"baseline_mode_enabled"`
}

// profileBlobFields lists the required keys in declaration order. Validation
// reports the first missing field in this order, deterministically.
var profileBlobFields = []string{
	"life_context",
	"goal",
	"blend",
	"engagement_preferences",
	"sleep_window",
	"motivational_style",
	"timezone",
	"baseline_mode_enabled",
}

// DecodeProfileBlob parses and validates a profile blob. A missing required
// key yields a MissingFieldError naming that key.
func DecodeProfileBlob(data []byte) (*ProfileBlob, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse profile blob: %w", err)
	}
	for _, field := range profileBlobFields {
		if _, ok := raw[field]; !ok {
			return nil, &MissingFieldError{Field: field}
		}
	}
	var blob ProfileBlob
	if err := json.Unmarshal(data, &blob); err != nil {
		return nil, fmt.Errorf("failed to decode profile blob: %w", err)
	}
	return &blob, nil
}

// Encode serializes the blob with its stable snake_case keys.
func (b *ProfileBlob) Encode() ([]byte, error) {
	data, err := json.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("failed to encode profile blob: %w", err)
	}
	return data, nil
}

// Validate checks that all required fields carry a usable value. Emptiness
// checks mirror the decode-time presence checks so a blob built in memory is
// held to the same contract as one read from disk.
func (b *ProfileBlob) Validate() error {
	if b.LifeContext == nil {
		return &MissingFieldError{Field: "life_context"}
	}
	if b.Goal == "" {
		return &MissingFieldError{Field: "goal"}
	}
	if b.Blend == nil {
		return &MissingFieldError{Field: "blend"}
	}
	if b.EngagementPreferences == nil {
		return &MissingFieldError{Field: "engagement_preferences"}
	}
	if b.SleepWindow == "" {
		return &MissingFieldError{Field: "sleep_window"}
	}
	if b.MotivationalStyle == "" {
		return &MissingFieldError{Field: "motivational_style"}
	}
	if b.Timezone == "" {
		return &MissingFieldError{Field: "timezone"}
	}
	if b.BaselineModeEnabled == nil {
		return &MissingFieldError{Field: "baseline_mode_enabled"}
	}
	return nil
}
