package conversation

import "github.com/BTreeMap/CoachPipe/internal/models"

// DefaultOnboardingGraph builds the standard coaching onboarding conversation.
// Branches: users who just want to feel healthier skip the goal-why probe, and
// highly committed users skip the life-context probe.
func DefaultOnboardingGraph() *Graph {
	nodes := []models.ConversationNode{
		{
			ID: "welcome_name",
			Question: models.Question{
				Prompt:      "Hey! I'm going to be your coach. What should I call you?",
				VoicePrompt: "Hey there! I'm going to be your coach. What should I call you?",
			},
			Input:      models.InputSpec{Kind: models.InputKindOpenText, MinLength: 1, MaxLength: 40, Placeholder: "Your name"},
			NodeType:   models.NodeTypeName,
			DataKey:    models.DataKeyUserName,
			Validation: models.ValidationRules{Required: true, MinLength: 1, MaxLength: 40},
		},
		{
			ID: "primary_goal",
			Question: models.Question{
				Prompt:        "What brings you here? Pick the goal that fits best.",
				Clarification: "You can always refine this later.",
			},
			Input: models.InputSpec{Kind: models.InputKindSingleChoice, Options: []string{
				"lose weight", "build muscle", "improve endurance", "feel healthier", "train for an event",
			}},
			NodeType: models.NodeTypeGoal,
			DataKey:  models.DataKeyPrimaryGoal,
			BranchRules: []models.BranchRule{
				{Op: models.BranchOpChoiceIs, Operand: "feel healthier", Target: "experience_level"},
			},
			Validation: models.ValidationRules{Required: true},
		},
		{
			ID: "goal_why",
			Question: models.Question{
				Prompt:   "Why this goal, why now? A trigger, a timeline, anything.",
				Examples: []string{"wedding in June", "ski season prep", "doctor's advice"},
			},
			Input:      models.InputSpec{Kind: models.InputKindOpenText, MaxLength: 500, Placeholder: "Totally optional"},
			NodeType:   models.NodeTypeGoal,
			DataKey:    models.DataKeyGoalWhy,
			Validation: models.ValidationRules{MaxLength: 500},
		},
		{
			ID: "experience_level",
			Question: models.Question{
				Prompt: "How much training experience do you have?",
			},
			Input:      models.InputSpec{Kind: models.InputKindSingleChoice, Options: []string{"beginner", "intermediate", "advanced"}},
			NodeType:   models.NodeTypePreference,
			DataKey:    models.DataKeyExperience,
			Validation: models.ValidationRules{Required: true},
		},
		{
			ID: "weekly_schedule",
			Question: models.Question{
				Prompt: "Realistically, how many days a week can you train?",
			},
			Input:      models.InputSpec{Kind: models.InputKindSingleChoice, Options: []string{"1-2 days", "3-4 days", "5+ days"}},
			NodeType:   models.NodeTypeLifestyle,
			DataKey:    models.DataKeySchedule,
			Validation: models.ValidationRules{Required: true},
		},
		{
			ID: "favorite_activities",
			Question: models.Question{
				Prompt:        "What do you actually enjoy doing?",
				Clarification: "Pick as many as you like.",
			},
			Input: models.InputSpec{Kind: models.InputKindMultiChoice, Options: []string{
				"lifting", "running", "cycling", "swimming", "yoga", "team sports", "classes", "hiking",
			}},
			NodeType: models.NodeTypePreference,
			DataKey:  models.DataKeyActivities,
		},
		{
			ID: "motivation_style",
			Question: models.Question{
				Prompt: "What keeps you going on a hard day?",
			},
			Input: models.InputSpec{Kind: models.InputKindSingleChoice, Options: []string{
				"cheer me on", "hold me accountable", "show me the data", "keep it chill",
			}},
			NodeType:   models.NodeTypePersonality,
			DataKey:    models.DataKeyMotivation,
			Validation: models.ValidationRules{Required: true},
		},
		{
			ID: "tone_preference",
			Question: models.Question{
				Prompt: "How should your coach talk to you?",
			},
			Input: models.InputSpec{Kind: models.InputKindSingleChoice, Options: []string{
				"gentle and encouraging", "direct and no-nonsense", "playful", "professional",
			}},
			NodeType:   models.NodeTypePersonality,
			DataKey:    models.DataKeyTonePreference,
			Validation: models.ValidationRules{Required: true},
		},
		{
			ID: "commitment_level",
			Question: models.Question{
				Prompt:        "How committed are you feeling right now, 1 to 10?",
				Clarification: "Honest answers make for better coaching.",
			},
			Input:    models.InputSpec{Kind: models.InputKindScale, ScaleMin: 1, ScaleMax: 10},
			NodeType: models.NodeTypePersonality,
			DataKey:  models.DataKeyCommitment,
			BranchRules: []models.BranchRule{
				{Op: models.BranchOpScaleAtLeast, Threshold: 8, Target: "absence_response"},
			},
			Validation: models.ValidationRules{Required: true},
		},
		{
			ID: "life_context",
			Question: models.Question{
				Prompt:   "What tends to get in the way? Work, family, travel, sleep...",
				Examples: []string{"on-call weeks wreck my sleep", "two kids under five"},
			},
			Input:      models.InputSpec{Kind: models.InputKindOpenText, MaxLength: 500, Placeholder: "Optional, but it helps"},
			NodeType:   models.NodeTypeLifestyle,
			DataKey:    models.DataKeyLifeContext,
			Validation: models.ValidationRules{MaxLength: 500},
		},
		{
			ID: "absence_response",
			Question: models.Question{
				Prompt: "If you go quiet for a few days, what should I do?",
			},
			Input: models.InputSpec{Kind: models.InputKindSingleChoice, Options: []string{
				string(models.AbsenceCheckIn), string(models.AbsenceGentleReminder), string(models.AbsenceGiveMeSpace),
			}},
			NodeType:   models.NodeTypePreference,
			DataKey:    models.DataKeyAbsenceResponse,
			Validation: models.ValidationRules{Required: true},
		},
		{
			ID: "anything_else",
			Question: models.Question{
				Prompt:      "Last one: anything else I should know about you? Say it or type it.",
				VoicePrompt: "Last one. Anything else I should know about you? Just talk, I'm listening.",
			},
			Input:      models.InputSpec{Kind: models.InputKindVoice, MaxLength: 2000},
			NodeType:   models.NodeTypePersonality,
			DataKey:    models.DataKeyAnythingElse,
			Validation: models.ValidationRules{MaxLength: 2000},
		},
	}

	g, err := NewGraph(nodes)
	if err != nil {
		// The default graph is defined at build time; a validation failure
		// here is a programming error.
		panic(err)
	}
	return g
}
