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
	"github.com/BTreeMap/CoachPipe/internal/store"
)

// Service orchestrates persona generation, adjustment and persistence.
type Service struct {
	store       store.Store
	genaiClient genai.ClientInterface
	synthesizer *Synthesizer
}

// NewService creates a persona service backed by the given store and LLM client.
func NewService(st store.Store, genaiClient genai.ClientInterface, graph *conversation.Graph) *Service {
	return &Service{
		store:       st,
		genaiClient: genaiClient,
		synthesizer: NewSynthesizer(graph, genaiClient),
	}
}

// Synthesizer exposes the underlying synthesizer for callers that need
// extraction without generation.
func (s *Service) Synthesizer() *Synthesizer {
	return s.synthesizer
}

// GeneratePersona runs the full pipeline for a session: extract, derive
// insights, synthesize. Errors from synthesis are propagated unchanged and
// nothing is persisted; persistence is the caller's explicit second step.
func (s *Service) GeneratePersona(ctx context.Context, session *models.ConversationSession) (*models.CoachPersona, error) {
	data := s.synthesizer.ExtractConversationData(session)
	insights := conversation.InsightsFromSession(s.synthesizer.graph, session)
	return s.synthesizer.SynthesizePersona(ctx, data, insights)
}

// adjustmentPatch is the partial-update shape requested from the model.
// Pointer fields distinguish "absent" from "set to empty".
type adjustmentPatch struct {
	Name           *string   `json:"name"`
	Archetype      *string   `json:"archetype"`
	Energy         *string   `json:"energy"`
	Warmth         *string   `json:"warmth"`
	Formality      *string   `json:"formality"`
	CoreValues     *[]string `json:"core_values"`
	DominantTraits *[]string `json:"dominant_traits"`
	SystemPrompt   *string   `json:"system_prompt"`
}

// AdjustPersona applies a natural-language instruction to an existing
// persona. The model returns a partial JSON object containing only the
// fields to change; absent fields are preserved. A reply that cannot be
// parsed, or that changes nothing, leaves the persona unchanged and is not
// an error. Provider failures are returned to the caller.
func (s *Service) AdjustPersona(ctx context.Context, current *models.CoachPersona, instruction string) (*models.CoachPersona, error) {
	serialized, err := current.ToJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize persona: %w", err)
	}

	systemPrompt := buildAdjustmentSystemPrompt()
	userPrompt := fmt.Sprintf("## CURRENT PERSONA\n%s\n\n## ADJUSTMENT REQUEST\n%s\n", serialized, instruction)

	slog.Debug("Service.AdjustPersona: requesting adjustment", "personaID", current.ID, "instruction", instruction)
	response, err := s.genaiClient.GeneratePrompt(ctx, systemPrompt, userPrompt)
	if err != nil {
		slog.Error("Service.AdjustPersona: completion failed", "error", err)
		return nil, err
	}

	patch, ok := parseAdjustmentPatch(response)
	if !ok {
		slog.Warn("Service.AdjustPersona: unusable adjustment reply, persona unchanged", "personaID", current.ID)
		updated := *current
		return &updated, nil
	}

	updated := applyPatch(current, patch)
	slog.Info("Service.AdjustPersona: persona adjusted", "personaID", updated.ID, "name", updated.Name)
	return updated, nil
}

func buildAdjustmentSystemPrompt() string {
	var b strings.Builder
	b.WriteString("You refine an existing fitness coach persona per the user's request.\n\n")
	b.WriteString("Reply with a single JSON object containing ONLY the fields that should change. ")
	b.WriteString("Allowed keys: \"name\", \"archetype\", \"energy\", \"warmth\", \"formality\", ")
	b.WriteString("\"core_values\", \"dominant_traits\", \"system_prompt\". ")
	b.WriteString("Use the same value vocabularies as the current persona. ")
	b.WriteString("If the request needs no change, reply with {}.\n")
	return b.String()
}

// parseAdjustmentPatch extracts and decodes the partial object. The second
// return is false when the reply is unusable or empty.
func parseAdjustmentPatch(response string) (*adjustmentPatch, bool) {
	raw := extractJSONObject(response)
	if raw == "" {
		return nil, false
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &fields); err != nil || len(fields) == 0 {
		return nil, false
	}
	var patch adjustmentPatch
	if err := json.Unmarshal([]byte(raw), &patch); err != nil {
		return nil, false
	}
	return &patch, true
}

// applyPatch merges the patch onto a copy of the persona, preserving every
// absent field and the durable identifiers.
func applyPatch(current *models.CoachPersona, patch *adjustmentPatch) *models.CoachPersona {
	updated := *current
	if patch.Name != nil && strings.TrimSpace(*patch.Name) != "" {
		updated.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.Archetype != nil && strings.TrimSpace(*patch.Archetype) != "" {
		updated.Archetype = strings.TrimSpace(*patch.Archetype)
	}
	if patch.Energy != nil {
		switch models.EnergyLevel(*patch.Energy) {
		case models.EnergyCalm, models.EnergyModerate, models.EnergyHigh, models.EnergyVeryHigh:
			updated.Voice.Energy = models.EnergyLevel(*patch.Energy)
		}
	}
	if patch.Warmth != nil {
		switch models.WarmthLevel(*patch.Warmth) {
		case models.WarmthReserved, models.WarmthFriendly, models.WarmthWarm:
			updated.Voice.Warmth = models.WarmthLevel(*patch.Warmth)
		}
	}
	if patch.Formality != nil {
		switch models.FormalityLevel(*patch.Formality) {
		case models.FormalityCasual, models.FormalityConversational, models.FormalityProfessional:
			updated.Voice.Formality = models.FormalityLevel(*patch.Formality)
		}
	}
	if patch.CoreValues != nil && len(*patch.CoreValues) > 0 {
		updated.CoreValues = *patch.CoreValues
	}
	if patch.DominantTraits != nil && len(*patch.DominantTraits) > 0 {
		updated.DominantTraits = *patch.DominantTraits
	}
	if patch.SystemPrompt != nil && strings.TrimSpace(*patch.SystemPrompt) != "" {
		updated.SystemPrompt = *patch.SystemPrompt
	}
	updated.UniquenessScore = UniquenessScore(&updated)
	updated.AvatarGradient = DeriveAvatarGradient(updated.Name, updated.Archetype)
	updated.UpdatedAt = time.Now()
	return &updated
}

// SavePersona persists a persona for a user and marks their profile
// complete. A user who already has a persona keeps the same durable persona
// ID so downstream references never dangle; saving the same persona twice is
// a no-op beyond refreshed timestamps.
func (s *Service) SavePersona(ctx context.Context, p *models.CoachPersona, userID string) error {
	user, err := s.store.GetUser(userID)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrPersistence, err)
	}
	if user == nil {
		return fmt.Errorf("%w: %s", models.ErrUserNotFound, userID)
	}

	saved := *p
	if user.PersonaID != "" {
		saved.ID = user.PersonaID
	} else if saved.ID == "" {
		saved.ID = uuid.NewString()
	}
	saved.UpdatedAt = time.Now()

	if err := s.store.SavePersona(saved); err != nil {
		slog.Error("Service.SavePersona: failed to save persona", "personaID", saved.ID, "error", err)
		return fmt.Errorf("%w: %v", models.ErrPersistence, err)
	}

	user.PersonaID = saved.ID
	user.ProfileComplete = true
	if err := s.store.SaveUser(*user); err != nil {
		slog.Error("Service.SavePersona: failed to update user", "userID", userID, "error", err)
		return fmt.Errorf("%w: %v", models.ErrPersistence, err)
	}

	p.ID = saved.ID
	slog.Info("Service.SavePersona: persona saved", "userID", userID, "personaID", saved.ID)
	return nil
}

// SaveProfileBlob validates and persists the profile payload for a user.
func (s *Service) SaveProfileBlob(ctx context.Context, userID string, blob *models.ProfileBlob) error {
	if err := blob.Validate(); err != nil {
		return err
	}
	payload, err := blob.Encode()
	if err != nil {
		return fmt.Errorf("failed to encode profile: %w", err)
	}
	if err := s.store.SaveProfileBlob(userID, payload); err != nil {
		slog.Error("Service.SaveProfileBlob: persistence failed", "userID", userID, "error", err)
		return fmt.Errorf("%w: %v", models.ErrPersistence, err)
	}
	slog.Debug("Service.SaveProfileBlob: profile saved", "userID", userID)
	return nil
}

// GetProfileBlob loads and decodes the stored profile for a user. A missing
// profile returns nil, nil.
func (s *Service) GetProfileBlob(ctx context.Context, userID string) (*models.ProfileBlob, error) {
	payload, err := s.store.GetProfileBlob(userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrPersistence, err)
	}
	if payload == nil {
		return nil, nil
	}
	return models.DecodeProfileBlob(payload)
}
