package persona

import (
	"strings"

	"github.com/BTreeMap/CoachPipe/internal/models"
)

// DefaultSleepWindow is used when onboarding gave no schedule signal.
const DefaultSleepWindow = "23:00-07:00"

// ComposeProfileBlob folds the conversation data, derived insights and user
// record into the on-disk profile shape. Every required field is populated
// so the result always passes models.ProfileBlob.Validate.
func ComposeProfileBlob(data models.ConversationData, insights models.PersonalityInsights, user *models.User) *models.ProfileBlob {
	baseline := false
	blob := &models.ProfileBlob{
		LifeContext:           lifeContext(data),
		Goal:                  data.PrimaryGoal,
		Blend:                 blendFromInsights(insights),
		EngagementPreferences: engagementPrefs(data, insights),
		SleepWindow:           DefaultSleepWindow,
		MotivationalStyle:     insights.MotivationStyle,
		Timezone:              "UTC",
		BaselineModeEnabled:   &baseline,
	}
	if user != nil && user.Timezone != "" {
		blob.Timezone = user.Timezone
	}
	return blob
}

func lifeContext(data models.ConversationData) []string {
	var ctx []string
	if fv, ok := data.Fields[models.DataKeyLifeContext]; ok {
		if s := strings.TrimSpace(fv.AsString()); s != "" {
			ctx = append(ctx, s)
		}
	}
	if fv, ok := data.Fields[models.DataKeySchedule]; ok {
		if s := strings.TrimSpace(fv.AsString()); s != "" {
			ctx = append(ctx, "schedule: "+s)
		}
	}
	if fv, ok := data.Fields[models.DataKeyAnythingElse]; ok {
		if s := strings.TrimSpace(fv.AsString()); s != "" {
			ctx = append(ctx, s)
		}
	}
	if ctx == nil {
		ctx = []string{}
	}
	return ctx
}

// blendFromInsights weights the three coaching modes from the motivation
// style and commitment signal. Weights always sum to 1.
func blendFromInsights(insights models.PersonalityInsights) map[string]float64 {
	blend := map[string]float64{
		"mentor":  0.4,
		"hype":    0.3,
		"analyst": 0.3,
	}
	switch insights.MotivationStyle {
	case "accountability":
		blend["mentor"], blend["hype"], blend["analyst"] = 0.5, 0.3, 0.2
	case "data_driven":
		blend["mentor"], blend["hype"], blend["analyst"] = 0.25, 0.15, 0.6
	case "low_pressure":
		blend["mentor"], blend["hype"], blend["analyst"] = 0.6, 0.1, 0.3
	case "encouragement":
		blend["mentor"], blend["hype"], blend["analyst"] = 0.35, 0.45, 0.2
	}
	if insights.CommitmentSignal >= 0.8 {
		// Highly committed users respond to more direct energy.
		blend["hype"] += 0.1
		blend["mentor"] -= 0.1
	}
	return blend
}

func engagementPrefs(data models.ConversationData, insights models.PersonalityInsights) map[string]string {
	prefs := map[string]string{
		"tone":       insights.TonePreference,
		"nudge_time": "morning",
	}
	if fv, ok := data.Fields[models.DataKeyAbsenceResponse]; ok {
		if s := strings.TrimSpace(fv.AsString()); s != "" {
			prefs["absence_response"] = s
		}
	}
	return prefs
}
