package conversation

import (
	"strings"

	"github.com/BTreeMap/CoachPipe/internal/models"
)

// InsightsFromSession derives personality-insight signals from a session's
// responses. It is a pure function: no side effects, stable output for the
// same input, and it tolerates empty or partial sessions.
func InsightsFromSession(g *Graph, session *models.ConversationSession) models.PersonalityInsights {
	var insights models.PersonalityInsights
	if session == nil {
		return insights
	}

	seen := make(map[string]bool)
	wordCount := 0
	for i := len(session.Responses) - 1; i >= 0; i-- {
		r := session.Responses[i]
		if seen[r.NodeID] {
			continue // last-write-wins on revisits
		}
		seen[r.NodeID] = true

		node, ok := g.Node(r.NodeID)
		if !ok {
			continue
		}
		value, err := r.Value()
		if err != nil || value.IsSkipped() {
			continue
		}

		switch node.DataKey {
		case models.DataKeyTonePreference:
			insights.TonePreference = toneFromChoice(value.TextContent())
		case models.DataKeyMotivation:
			insights.MotivationStyle = motivationFromChoice(value.TextContent())
		case models.DataKeyCommitment:
			// Normalize the answer into 0-1. Scale nodes accept both scale
			// and number payloads, so read whichever carries the value.
			raw := value.Scale
			if value.Kind == models.ResponseKindNumber {
				raw = value.Number
			}
			if node.Input.ScaleMax > node.Input.ScaleMin {
				insights.CommitmentSignal = (raw - node.Input.ScaleMin) / (node.Input.ScaleMax - node.Input.ScaleMin)
			}
		}
		if value.Kind == models.ResponseKindVoice {
			insights.PrefersVoiceInput = true
		}
		if value.Kind == models.ResponseKindText || value.Kind == models.ResponseKindVoice {
			wordCount += len(strings.Fields(value.TextContent()))
		}
	}

	insights.ResponseWordCount = wordCount
	insights.ExpressiveAnswers = wordCount >= 40
	if insights.TonePreference == "" {
		insights.TonePreference = "gentle"
	}
	if insights.MotivationStyle == "" {
		insights.MotivationStyle = "encouragement"
	}
	if insights.DetailAppetite == "" {
		if insights.ExpressiveAnswers {
			insights.DetailAppetite = "explain_the_science"
		} else {
			insights.DetailAppetite = "just_tell_me"
		}
	}
	return insights
}

func toneFromChoice(choice string) string {
	switch {
	case strings.Contains(choice, "direct"):
		return "direct"
	case strings.Contains(choice, "playful"):
		return "playful"
	case strings.Contains(choice, "professional"):
		return "professional"
	default:
		return "gentle"
	}
}

func motivationFromChoice(choice string) string {
	switch {
	case strings.Contains(choice, "accountable"):
		return "accountability"
	case strings.Contains(choice, "data"):
		return "data_driven"
	case strings.Contains(choice, "chill"):
		return "low_pressure"
	default:
		return "encouragement"
	}
}
