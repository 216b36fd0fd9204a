package persona

import (
	"hash/fnv"
	"strings"

	"github.com/BTreeMap/CoachPipe/internal/models"
)

// commonArchetypeWords are words that appear in the most generic coach
// archetypes. Personas built only from these score low on uniqueness.
var commonArchetypeWords = map[string]bool{
	"motivational": true,
	"supportive":   true,
	"fitness":      true,
	"personal":     true,
	"coach":        true,
	"trainer":      true,
	"friendly":     true,
	"positive":     true,
}

// commonTraits mirrors the trait vocabulary the model falls back to when the
// onboarding answers carry little signal.
var commonTraits = map[string]bool{
	"motivated":     true,
	"supportive":    true,
	"encouraging":   true,
	"positive":      true,
	"friendly":      true,
	"energetic":     true,
	"passionate":    true,
	"enthusiastic":  true,
	"approachable":  true,
	"knowledgeable": true,
}

// UniquenessScore rates how distinctive a persona is on a 0 to 1 scale.
// The score is computed locally from the archetype and trait vocabulary, not
// by the model, so it stays comparable across personas.
func UniquenessScore(p *models.CoachPersona) float64 {
	score := 0.5

	words := strings.Fields(strings.ToLower(p.Archetype))
	uncommon := 0
	for _, w := range words {
		if !commonArchetypeWords[w] {
			uncommon++
		}
	}
	if len(words) > 0 {
		score += 0.25 * float64(uncommon) / float64(len(words))
	}

	distinct := 0
	for _, t := range p.DominantTraits {
		if !commonTraits[strings.ToLower(strings.TrimSpace(t))] {
			distinct++
		}
	}
	if n := len(p.DominantTraits); n > 0 {
		score += 0.15 * float64(distinct) / float64(n)
	}

	if len(p.CoreValues) >= 3 {
		score += 0.1
	}

	if score > 1 {
		score = 1
	}
	if score < 0 {
		score = 0
	}
	return score
}

// avatarPalettes are the gradient stop pairs used for coach avatars. The
// pick is a stable hash of the persona identity so regenerating UI state
// never reshuffles avatars.
var avatarPalettes = [][]string{
	{"#FF6B6B", "#FFD93D"},
	{"#6BCB77", "#4D96FF"},
	{"#9D4EDD", "#FF6FB5"},
	{"#FF9F1C", "#E71D36"},
	{"#2EC4B6", "#3A86FF"},
	{"#F72585", "#7209B7"},
	{"#06D6A0", "#118AB2"},
	{"#F4A261", "#E76F51"},
}

// DeriveAvatarGradient returns the two gradient colors for a persona.
func DeriveAvatarGradient(name, archetype string) []string {
	h := fnv.New32a()
	h.Write([]byte(strings.ToLower(name)))
	h.Write([]byte("|"))
	h.Write([]byte(strings.ToLower(archetype)))
	palette := avatarPalettes[h.Sum32()%uint32(len(avatarPalettes))]
	return []string{palette[0], palette[1]}
}
