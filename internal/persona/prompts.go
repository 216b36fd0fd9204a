package persona

import (
	"fmt"
	"strings"

	"github.com/BTreeMap/CoachPipe/internal/models"
)

// buildSynthesisSystemPrompt returns the fixed instruction block for persona
// synthesis. The reply contract is stated explicitly so the output can be
// parsed without a schema-enforcing API.
func buildSynthesisSystemPrompt() string {
	var b strings.Builder
	b.WriteString("## ROLE\n")
	b.WriteString("You design a personal fitness coach persona tailored to one user, based on their onboarding answers.\n\n")
	b.WriteString("## OUTPUT\n")
	b.WriteString("Reply with a single JSON object and nothing else. Keys:\n")
	b.WriteString("- \"name\": a memorable first name for the coach\n")
	b.WriteString("- \"archetype\": a two-to-four word coaching archetype\n")
	b.WriteString("- \"energy\": one of \"calm\", \"moderate\", \"high\", \"very_high\"\n")
	b.WriteString("- \"warmth\": one of \"reserved\", \"friendly\", \"warm\"\n")
	b.WriteString("- \"formality\": one of \"casual\", \"conversational\", \"professional\"\n")
	b.WriteString("- \"core_values\": three to five short value phrases\n")
	b.WriteString("- \"dominant_traits\": three to five single-word personality traits\n")
	b.WriteString("- \"system_prompt\": the full system prompt the coach will speak from, second person, under 300 words\n\n")
	b.WriteString("## GUIDELINES\n")
	b.WriteString("Match the coach's voice to the user's stated tone preference and motivation style. ")
	b.WriteString("Anchor the persona in the user's goal and life context. Do not invent facts about the user.\n")
	return b.String()
}

// buildSynthesisUserPrompt serializes the conversation data and derived
// insights into the user message.
func buildSynthesisUserPrompt(data models.ConversationData, insights models.PersonalityInsights) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## USER\nName: %s\nPrimary goal: %s\n", data.UserName, data.PrimaryGoal)

	if len(data.Fields) > 0 {
		b.WriteString("\n## ONBOARDING ANSWERS\n")
		for _, key := range orderedDataKeys {
			fv, ok := data.Fields[key]
			if !ok {
				continue
			}
			fmt.Fprintf(&b, "- %s: %s\n", key, formatField(fv))
		}
	}

	b.WriteString("\n## DERIVED INSIGHTS\n")
	fmt.Fprintf(&b, "- tone preference: %s\n", insights.TonePreference)
	fmt.Fprintf(&b, "- motivation style: %s\n", insights.MotivationStyle)
	fmt.Fprintf(&b, "- detail appetite: %s\n", insights.DetailAppetite)
	fmt.Fprintf(&b, "- commitment signal: %.2f\n", insights.CommitmentSignal)
	if insights.PrefersVoiceInput {
		b.WriteString("- prefers voice input\n")
	}
	if insights.ExpressiveAnswers {
		b.WriteString("- gives long, expressive answers\n")
	}
	return b.String()
}

// orderedDataKeys fixes the serialization order of the field bag so prompts
// are stable across runs.
var orderedDataKeys = []models.DataKey{
	models.DataKeyGoalWhy,
	models.DataKeyExperience,
	models.DataKeySchedule,
	models.DataKeyActivities,
	models.DataKeyMotivation,
	models.DataKeyTonePreference,
	models.DataKeyCommitment,
	models.DataKeyLifeContext,
	models.DataKeyAbsenceResponse,
	models.DataKeyAnythingElse,
}

func formatField(fv models.FieldValue) string {
	switch fv.Kind {
	case models.FieldKindStringList:
		return strings.Join(fv.AsStringList(), ", ")
	case models.FieldKindNumber:
		return fmt.Sprintf("%g", fv.AsNumber())
	default:
		return fv.AsString()
	}
}

// RenderSystemPrompt builds a coach system prompt locally. It is the
// fallback when the model reply omits one and is also used to refresh the
// prompt after an adjustment changes the voice.
func RenderSystemPrompt(p *models.CoachPersona, data models.ConversationData, insights models.PersonalityInsights) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## IDENTITY\nYou are %s, a %s fitness coach for %s.\n\n", p.Name, strings.ToLower(p.Archetype), data.UserName)
	fmt.Fprintf(&b, "## GOAL\nHelp %s with: %s.\n\n", data.UserName, data.PrimaryGoal)
	b.WriteString("## VOICE\n")
	fmt.Fprintf(&b, "Energy: %s. Warmth: %s. Formality: %s.\n", p.Voice.Energy, p.Voice.Warmth, p.Voice.Formality)
	fmt.Fprintf(&b, "Motivation style: %s. Tone: %s.\n", insights.MotivationStyle, insights.TonePreference)
	if len(p.CoreValues) > 0 {
		fmt.Fprintf(&b, "\n## VALUES\n%s.\n", strings.Join(p.CoreValues, ". "))
	}
	b.WriteString("\n## RULES\n")
	b.WriteString("Keep replies short and actionable. Never give medical advice. ")
	b.WriteString("Acknowledge setbacks without judgment and always suggest one concrete next step.\n")
	return b.String()
}
