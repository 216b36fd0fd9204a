// Package models defines the synthesized coach persona structures for CoachPipe.
package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// EnergyLevel describes how energetic the coach's voice is.
type EnergyLevel string

const (
	EnergyCalm     EnergyLevel = "calm"
	EnergyModerate EnergyLevel = "moderate"
	EnergyHigh     EnergyLevel = "high"
	EnergyVeryHigh EnergyLevel = "very_high"
)

// WarmthLevel describes the emotional temperature of the coach's voice.
type WarmthLevel string

const (
	WarmthReserved WarmthLevel = "reserved"
	WarmthFriendly WarmthLevel = "friendly"
	WarmthWarm     WarmthLevel = "warm"
)

// FormalityLevel describes the register of the coach's voice.
type FormalityLevel string

const (
	FormalityCasual       FormalityLevel = "casual"
	FormalityConversational FormalityLevel = "conversational"
	FormalityProfessional FormalityLevel = "professional"
)

// VoiceCharacteristics captures the coach voice along three small axes.
type VoiceCharacteristics struct {
	Energy    EnergyLevel    `json:"energy"`
	Warmth    WarmthLevel    `json:"warmth"`
	Formality FormalityLevel `json:"formality"`
}

// CoachPersona is the structured, LLM-synthesized description of a user's AI
// coach. It is created by the synthesizer, updated in place by adjustment, and
// deleted only with the owning profile.
type CoachPersona struct {
	ID              string               `json:"id"`
	Name            string               `json:"name"`
	Archetype       string               `json:"archetype"`
	Voice           VoiceCharacteristics `json:"voice_characteristics"`
	SystemPrompt    string               `json:"system_prompt"`
	CoreValues      []string             `json:"core_values"`
	DominantTraits  []string             `json:"dominant_traits"`
	UniquenessScore float64              `json:"uniqueness_score"` // 0-1, derived locally
	AvatarGradient  []string             `json:"avatar_gradient,omitempty"`
	CreatedAt       time.Time            `json:"created_at"`
	UpdatedAt       time.Time            `json:"updated_at"`
}

// ToJSON serializes the persona for storage or LLM adjustment prompts.
func (p *CoachPersona) ToJSON() (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("failed to marshal coach persona: %w", err)
	}
	return string(data), nil
}

// PersonaFromJSON deserializes a stored persona.
func PersonaFromJSON(jsonStr string) (*CoachPersona, error) {
	var p CoachPersona
	if err := json.Unmarshal([]byte(jsonStr), &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal coach persona: %w", err)
	}
	return &p, nil
}

// PersonalityInsights are signals derived from the conversation responses and
// fed into persona synthesis. Extraction is pure; calling it twice on the same
// session yields the same insights.
type PersonalityInsights struct {
	TonePreference     string  `json:"tone_preference"`     // e.g. "gentle", "direct"
	MotivationStyle    string  `json:"motivation_style"`    // e.g. "encouragement", "accountability"
	DetailAppetite     string  `json:"detail_appetite"`     // e.g. "just_tell_me", "explain_the_science"
	CommitmentSignal   float64 `json:"commitment_signal"`   // 0-1 from the commitment scale answer
	PrefersVoiceInput  bool    `json:"prefers_voice_input"`
	ResponseWordCount  int     `json:"response_word_count"` // total words across free-form answers
	ExpressiveAnswers  bool    `json:"expressive_answers"`  // long free-form answers suggest an expressive user
}
