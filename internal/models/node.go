// Package models defines conversation graph node structures for CoachPipe.
package models

import "fmt"

// NodeType tags a node for downstream extraction heuristics.
type NodeType string

const (
	// NodeTypeName marks the node whose answer is the user's name.
	NodeTypeName NodeType = "name"
	// NodeTypeGoal marks the node whose answer is the user's primary goal.
	NodeTypeGoal NodeType = "goal"
	// NodeTypeLifestyle marks nodes about schedule, constraints and life context.
	NodeTypeLifestyle NodeType = "lifestyle"
	// NodeTypePersonality marks nodes about communication and motivation style.
	NodeTypePersonality NodeType = "personality"
	// NodeTypePreference marks nodes about training preferences.
	NodeTypePreference NodeType = "preference"
)

// InputKind identifies how a node collects its answer.
type InputKind string

const (
	// InputKindOpenText collects free-form text with length bounds.
	InputKindOpenText InputKind = "open_text"
	// InputKindSingleChoice collects one selection from Options.
	InputKindSingleChoice InputKind = "single_choice"
	// InputKindMultiChoice collects any number of selections from Options.
	InputKindMultiChoice InputKind = "multi_choice"
	// InputKindScale collects a numeric position between ScaleMin and ScaleMax.
	InputKindScale InputKind = "scale"
	// InputKindVoice collects a voice capture reduced to a transcript.
	InputKindVoice InputKind = "voice"
)

// InputSpec describes the input surface for a node.
type InputSpec struct {
	Kind        InputKind `json:"kind"`
	MinLength   int       `json:"min_length,omitempty"`
	MaxLength   int       `json:"max_length,omitempty"`
	Placeholder string    `json:"placeholder,omitempty"`
	Options     []string  `json:"options,omitempty"`
	ScaleMin    float64   `json:"scale_min,omitempty"`
	ScaleMax    float64   `json:"scale_max,omitempty"`
}

// Question holds the prompt content for a node.
type Question struct {
	Prompt        string   `json:"prompt"`
	Clarification string   `json:"clarification,omitempty"`
	Examples      []string `json:"examples,omitempty"`
	VoicePrompt   string   `json:"voice_prompt,omitempty"` // spoken variant, falls back to Prompt
}

// BranchOp is the comparison applied by a branch rule.
type BranchOp string

const (
	// BranchOpChoiceIs matches a choice answer equal to Operand.
	BranchOpChoiceIs BranchOp = "choice_is"
	// BranchOpChoiceContains matches a multi-choice answer containing Operand.
	BranchOpChoiceContains BranchOp = "choice_contains"
	// BranchOpScaleBelow matches a scale or number answer strictly below Threshold.
	BranchOpScaleBelow BranchOp = "scale_below"
	// BranchOpScaleAtLeast matches a scale or number answer at or above Threshold.
	BranchOpScaleAtLeast BranchOp = "scale_at_least"
	// BranchOpAlways matches any answer. Useful as an explicit jump.
	BranchOpAlways BranchOp = "always"
)

// BranchRule routes an accepted answer to a target node. Rules are evaluated
// in order, first match wins; when none match the graph falls through to the
// next sequential node.
type BranchRule struct {
	Op        BranchOp `json:"op"`
	Operand   string   `json:"operand,omitempty"`
	Threshold float64  `json:"threshold,omitempty"`
	Target    string   `json:"target"` // next node ID, or TerminalNodeID
}

// Matches evaluates the rule against an accepted answer.
func (r BranchRule) Matches(v ResponseValue) bool {
	switch r.Op {
	case BranchOpAlways:
		return true
	case BranchOpChoiceIs:
		return v.Kind == ResponseKindChoice && v.Choice == r.Operand
	case BranchOpChoiceContains:
		if v.Kind != ResponseKindMultiChoice {
			return false
		}
		for _, c := range v.Choices {
			if c == r.Operand {
				return true
			}
		}
		return false
	case BranchOpScaleBelow:
		return numericPayload(v) < r.Threshold && isNumeric(v)
	case BranchOpScaleAtLeast:
		return numericPayload(v) >= r.Threshold && isNumeric(v)
	default:
		return false
	}
}

func isNumeric(v ResponseValue) bool {
	return v.Kind == ResponseKindScale || v.Kind == ResponseKindNumber
}

func numericPayload(v ResponseValue) float64 {
	if v.Kind == ResponseKindScale {
		return v.Scale
	}
	return v.Number
}

// TerminalNodeID is the sentinel branch target marking the end of the graph.
const TerminalNodeID = "__end__"

// DataKey is the logical field name a node's answer maps to during synthesis.
type DataKey string

// Well-known data keys consumed by the persona synthesizer.
const (
	DataKeyUserName        DataKey = "user_name"
	DataKeyPrimaryGoal     DataKey = "primary_goal"
	DataKeyGoalWhy         DataKey = "goal_why"
	DataKeyExperience      DataKey = "experience_level"
	DataKeySchedule        DataKey = "weekly_schedule"
	DataKeyActivities      DataKey = "favorite_activities"
	DataKeyMotivation      DataKey = "motivation_style"
	DataKeyTonePreference  DataKey = "tone_preference"
	DataKeyCommitment      DataKey = "commitment_level"
	DataKeyLifeContext     DataKey = "life_context"
	DataKeyAnythingElse    DataKey = "anything_else"
	DataKeyAbsenceResponse DataKey = "absence_response"
)

// ValidationRules constrain the answer accepted by a node.
type ValidationRules struct {
	Required  bool    `json:"required"`
	MinLength int     `json:"min_length,omitempty"`
	MaxLength int     `json:"max_length,omitempty"`
	MinValue  float64 `json:"min_value,omitempty"`
	MaxValue  float64 `json:"max_value,omitempty"`
}

// ConversationNode is a single immutable question in the conversation graph.
type ConversationNode struct {
	ID          string          `json:"id"`
	Question    Question        `json:"question"`
	Input       InputSpec       `json:"input"`
	NodeType    NodeType        `json:"node_type"`
	DataKey     DataKey         `json:"data_key"`
	BranchRules []BranchRule    `json:"branch_rules,omitempty"`
	Validation  ValidationRules `json:"validation"`
}

// ValidateAnswer checks a submitted value against the node's input spec and
// validation rules. A skip marker is only accepted for non-required nodes.
func (n *ConversationNode) ValidateAnswer(v ResponseValue) error {
	if v.IsSkipped() {
		if n.Validation.Required {
			return fmt.Errorf("%w: node %s", ErrNodeRequired, n.ID)
		}
		return nil
	}

	switch n.Input.Kind {
	case InputKindOpenText:
		if v.Kind != ResponseKindText {
			return fmt.Errorf("%w: node %s expects text, got %s", ErrValidation, n.ID, v.Kind)
		}
		return n.validateLength(len(v.Text))
	case InputKindVoice:
		if v.Kind != ResponseKindVoice && v.Kind != ResponseKindText {
			return fmt.Errorf("%w: node %s expects a voice transcript, got %s", ErrValidation, n.ID, v.Kind)
		}
		return n.validateLength(len(v.TextContent()))
	case InputKindSingleChoice:
		if v.Kind != ResponseKindChoice {
			return fmt.Errorf("%w: node %s expects a single choice, got %s", ErrValidation, n.ID, v.Kind)
		}
		if !n.hasOption(v.Choice) {
			return fmt.Errorf("%w: node %s has no option %q", ErrValidation, n.ID, v.Choice)
		}
		return nil
	case InputKindMultiChoice:
		if v.Kind != ResponseKindMultiChoice {
			return fmt.Errorf("%w: node %s expects multiple choices, got %s", ErrValidation, n.ID, v.Kind)
		}
		if n.Validation.Required && len(v.Choices) == 0 {
			return fmt.Errorf("%w: node %s requires at least one choice", ErrValidation, n.ID)
		}
		for _, c := range v.Choices {
			if !n.hasOption(c) {
				return fmt.Errorf("%w: node %s has no option %q", ErrValidation, n.ID, c)
			}
		}
		return nil
	case InputKindScale:
		if v.Kind != ResponseKindScale && v.Kind != ResponseKindNumber {
			return fmt.Errorf("%w: node %s expects a scale value, got %s", ErrValidation, n.ID, v.Kind)
		}
		val := numericPayload(v)
		if val < n.Input.ScaleMin || val > n.Input.ScaleMax {
			return fmt.Errorf("%w: node %s value %g outside scale [%g, %g]", ErrValidation, n.ID, val, n.Input.ScaleMin, n.Input.ScaleMax)
		}
		return nil
	default:
		return fmt.Errorf("%w: node %s has unknown input kind %q", ErrValidation, n.ID, n.Input.Kind)
	}
}

func (n *ConversationNode) validateLength(length int) error {
	min := n.Validation.MinLength
	if min == 0 {
		min = n.Input.MinLength
	}
	max := n.Validation.MaxLength
	if max == 0 {
		max = n.Input.MaxLength
	}
	if n.Validation.Required && length == 0 {
		return fmt.Errorf("%w: node %s requires an answer", ErrValidation, n.ID)
	}
	if min > 0 && length < min {
		return fmt.Errorf("%w: node %s answer shorter than %d characters", ErrValidation, n.ID, min)
	}
	if max > 0 && length > max {
		return fmt.Errorf("%w: node %s answer longer than %d characters", ErrValidation, n.ID, max)
	}
	return nil
}

func (n *ConversationNode) hasOption(opt string) bool {
	for _, o := range n.Input.Options {
		if o == opt {
			return true
		}
	}
	return false
}
