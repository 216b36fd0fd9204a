// Package persona converts a completed onboarding session into a structured
// coach persona via one LLM round trip with defensive parsing, and supports
// natural-language adjustment of an existing persona.
package persona

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/BTreeMap/CoachPipe/internal/conversation"
	"github.com/BTreeMap/CoachPipe/internal/genai"
	"github.com/BTreeMap/CoachPipe/internal/models"
)

// Synthesizer transforms conversation sessions into coach personas.
type Synthesizer struct {
	graph       *conversation.Graph
	genaiClient genai.ClientInterface
}

// NewSynthesizer creates a synthesizer over a conversation graph and an LLM client.
func NewSynthesizer(graph *conversation.Graph, genaiClient genai.ClientInterface) *Synthesizer {
	return &Synthesizer{graph: graph, genaiClient: genaiClient}
}

// ExtractConversationData walks the session's responses in order and builds
// the synthesis input. Name and goal nodes yield scalars, everything else is
// decoded into the typed field bag by data key. The function is total: an
// empty or partial session yields the documented defaults and never fails.
func (s *Synthesizer) ExtractConversationData(session *models.ConversationSession) models.ConversationData {
	data := models.ConversationData{
		UserName:    models.DefaultUserName,
		PrimaryGoal: models.DefaultPrimaryGoal,
		Fields:      make(map[models.DataKey]models.FieldValue),
	}
	if session == nil {
		return data
	}

	seen := make(map[string]bool)
	for i := len(session.Responses) - 1; i >= 0; i-- {
		r := session.Responses[i]
		if seen[r.NodeID] {
			continue // append-only log, newest record wins
		}
		seen[r.NodeID] = true

		node, ok := s.graph.Node(r.NodeID)
		if !ok {
			slog.Debug("Synthesizer.ExtractConversationData: response for unknown node, skipping", "nodeID", r.NodeID)
			continue
		}
		value, err := r.Value()
		if err != nil {
			slog.Warn("Synthesizer.ExtractConversationData: undecodable response, skipping", "nodeID", r.NodeID, "error", err)
			continue
		}
		if value.IsSkipped() {
			continue
		}

		switch node.DataKey {
		case models.DataKeyUserName:
			if name := strings.TrimSpace(value.TextContent()); name != "" {
				data.UserName = name
			}
		case models.DataKeyPrimaryGoal:
			if goal := strings.TrimSpace(value.TextContent()); goal != "" {
				data.PrimaryGoal = goal
			}
		default:
			data.Fields[node.DataKey] = fieldFromValue(value)
		}
	}
	return data
}

// fieldFromValue decodes a response value into the loosely-typed field bag:
// text and choice become strings, multi-choice a string list, scale and
// number a number, voice its transcript.
func fieldFromValue(v models.ResponseValue) models.FieldValue {
	switch v.Kind {
	case models.ResponseKindMultiChoice:
		return models.StringListField(v.Choices)
	case models.ResponseKindScale:
		return models.NumberField(v.Scale)
	case models.ResponseKindNumber:
		return models.NumberField(v.Number)
	default:
		return models.StringField(v.TextContent())
	}
}

// llmPersona is the JSON shape requested from the model.
type llmPersona struct {
	Name           string   `json:"name"`
	Archetype      string   `json:"archetype"`
	Energy         string   `json:"energy"`
	Warmth         string   `json:"warmth"`
	Formality      string   `json:"formality"`
	CoreValues     []string `json:"core_values"`
	DominantTraits []string `json:"dominant_traits"`
	SystemPrompt   string   `json:"system_prompt"`
}

// SynthesizePersona issues a single structured-completion request and parses
// the reply into a CoachPersona. A reply missing the minimum fields (name,
// archetype) fails with models.ErrInvalidPersonaResponse; there is no
// internal retry. Uniqueness score and avatar gradient are derived locally.
func (s *Synthesizer) SynthesizePersona(ctx context.Context, data models.ConversationData, insights models.PersonalityInsights) (*models.CoachPersona, error) {
	systemPrompt := buildSynthesisSystemPrompt()
	userPrompt := buildSynthesisUserPrompt(data, insights)

	slog.Debug("Synthesizer.SynthesizePersona: requesting synthesis", "user", data.UserName, "goal", data.PrimaryGoal)
	response, err := s.genaiClient.GeneratePrompt(ctx, systemPrompt, userPrompt)
	if err != nil {
		slog.Error("Synthesizer.SynthesizePersona: completion failed", "error", err)
		return nil, err
	}

	parsed, err := parsePersonaResponse(response)
	if err != nil {
		slog.Error("Synthesizer.SynthesizePersona: parse failed", "error", err)
		return nil, err
	}

	now := time.Now()
	persona := &models.CoachPersona{
		ID:             uuid.NewString(),
		Name:           parsed.Name,
		Archetype:      parsed.Archetype,
		Voice:          repairVoice(parsed, insights),
		SystemPrompt:   parsed.SystemPrompt,
		CoreValues:     parsed.CoreValues,
		DominantTraits: parsed.DominantTraits,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if persona.SystemPrompt == "" {
		persona.SystemPrompt = RenderSystemPrompt(persona, data, insights)
	}
	persona.UniquenessScore = UniquenessScore(persona)
	persona.AvatarGradient = DeriveAvatarGradient(persona.Name, persona.Archetype)

	slog.Info("Synthesizer.SynthesizePersona: persona synthesized",
		"name", persona.Name, "archetype", persona.Archetype, "uniqueness", persona.UniquenessScore)
	return persona, nil
}

// parsePersonaResponse extracts the JSON object from the model reply and
// validates the minimum required fields.
func parsePersonaResponse(response string) (*llmPersona, error) {
	raw := extractJSONObject(response)
	if raw == "" {
		return nil, fmt.Errorf("%w: no JSON object in reply", models.ErrInvalidPersonaResponse)
	}
	var parsed llmPersona
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidPersonaResponse, err)
	}
	parsed.Name = strings.TrimSpace(parsed.Name)
	parsed.Archetype = strings.TrimSpace(parsed.Archetype)
	if parsed.Name == "" || parsed.Archetype == "" {
		return nil, fmt.Errorf("%w: name and archetype are required", models.ErrInvalidPersonaResponse)
	}
	return &parsed, nil
}

// repairVoice coerces the model's voice fields into the known enums, falling
// back to values implied by the insights when an axis is missing or invalid.
func repairVoice(parsed *llmPersona, insights models.PersonalityInsights) models.VoiceCharacteristics {
	voice := models.VoiceCharacteristics{
		Energy:    models.EnergyModerate,
		Warmth:    models.WarmthFriendly,
		Formality: models.FormalityConversational,
	}
	switch models.EnergyLevel(parsed.Energy) {
	case models.EnergyCalm, models.EnergyModerate, models.EnergyHigh, models.EnergyVeryHigh:
		voice.Energy = models.EnergyLevel(parsed.Energy)
	}
	switch models.WarmthLevel(parsed.Warmth) {
	case models.WarmthReserved, models.WarmthFriendly, models.WarmthWarm:
		voice.Warmth = models.WarmthLevel(parsed.Warmth)
	}
	switch models.FormalityLevel(parsed.Formality) {
	case models.FormalityCasual, models.FormalityConversational, models.FormalityProfessional:
		voice.Formality = models.FormalityLevel(parsed.Formality)
	}
	if parsed.Warmth == "" && insights.TonePreference == "gentle" {
		voice.Warmth = models.WarmthWarm
	}
	if parsed.Formality == "" && insights.TonePreference == "professional" {
		voice.Formality = models.FormalityProfessional
	}
	return voice
}

// extractJSONObject returns the outermost {...} block of a reply, tolerating
// prose or code fences around it.
func extractJSONObject(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}
