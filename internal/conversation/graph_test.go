package conversation

import (
	"testing"

	"github.com/BTreeMap/CoachPipe/internal/models"
)

func fourNodeGraph(t *testing.T) *Graph {
	t.Helper()
	g, err := NewGraph([]models.ConversationNode{
		{
			ID:         "q1",
			Input:      models.InputSpec{Kind: models.InputKindOpenText, MaxLength: 100},
			DataKey:    models.DataKeyUserName,
			Validation: models.ValidationRules{Required: true, MinLength: 1, MaxLength: 100},
		},
		{
			ID:      "q2",
			Input:   models.InputSpec{Kind: models.InputKindSingleChoice, Options: []string{"a", "b"}},
			DataKey: models.DataKeyPrimaryGoal,
			BranchRules: []models.BranchRule{
				{Op: models.BranchOpChoiceIs, Operand: "b", Target: "q4"},
			},
			Validation: models.ValidationRules{Required: true},
		},
		{
			ID:      "q3",
			Input:   models.InputSpec{Kind: models.InputKindScale, ScaleMin: 1, ScaleMax: 5},
			DataKey: models.DataKeyCommitment,
		},
		{
			ID:      "q4",
			Input:   models.InputSpec{Kind: models.InputKindOpenText, MaxLength: 100},
			DataKey: models.DataKeyAnythingElse,
		},
	})
	if err != nil {
		t.Fatalf("NewGraph failed: %v", err)
	}
	return g
}

func TestNewGraphRejectsEmpty(t *testing.T) {
	if _, err := NewGraph(nil); err == nil {
		t.Error("expected error for empty graph")
	}
}

func TestNewGraphRejectsDuplicateIDs(t *testing.T) {
	_, err := NewGraph([]models.ConversationNode{
		{ID: "q1", Input: models.InputSpec{Kind: models.InputKindOpenText}},
		{ID: "q1", Input: models.InputSpec{Kind: models.InputKindOpenText}},
	})
	if err == nil {
		t.Error("expected error for duplicate node IDs")
	}
}

func TestNewGraphRejectsReservedID(t *testing.T) {
	_, err := NewGraph([]models.ConversationNode{
		{ID: models.TerminalNodeID, Input: models.InputSpec{Kind: models.InputKindOpenText}},
	})
	if err == nil {
		t.Error("expected error for reserved terminal ID")
	}
}

func TestNewGraphRejectsUnknownBranchTarget(t *testing.T) {
	_, err := NewGraph([]models.ConversationNode{
		{
			ID:    "q1",
			Input: models.InputSpec{Kind: models.InputKindSingleChoice, Options: []string{"a"}},
			BranchRules: []models.BranchRule{
				{Op: models.BranchOpChoiceIs, Operand: "a", Target: "nowhere"},
			},
		},
	})
	if err == nil {
		t.Error("expected error for unknown branch target")
	}
}

func TestNewGraphRejectsBackwardBranch(t *testing.T) {
	_, err := NewGraph([]models.ConversationNode{
		{ID: "q1", Input: models.InputSpec{Kind: models.InputKindOpenText}},
		{
			ID:    "q2",
			Input: models.InputSpec{Kind: models.InputKindSingleChoice, Options: []string{"a"}},
			BranchRules: []models.BranchRule{
				{Op: models.BranchOpChoiceIs, Operand: "a", Target: "q1"},
			},
		},
	})
	if err == nil {
		t.Error("expected error for backward branch target")
	}
}

func TestNextBranchFirstMatch(t *testing.T) {
	g := fourNodeGraph(t)

	next, err := g.Next("q2", models.ChoiceValue("b"))
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if next != "q4" {
		t.Errorf("expected branch to q4, got %q", next)
	}
}

func TestNextSequentialFallthrough(t *testing.T) {
	g := fourNodeGraph(t)

	next, err := g.Next("q2", models.ChoiceValue("a"))
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if next != "q3" {
		t.Errorf("expected fallthrough to q3, got %q", next)
	}
}

func TestNextSkippedBypassesBranchRules(t *testing.T) {
	g := fourNodeGraph(t)

	next, err := g.Next("q2", models.SkippedValue())
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if next != "q3" {
		t.Errorf("expected skip to take sequential path, got %q", next)
	}
}

func TestNextTerminalPastLastNode(t *testing.T) {
	g := fourNodeGraph(t)

	next, err := g.Next("q4", models.TextValue("done"))
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if next != models.TerminalNodeID {
		t.Errorf("expected terminal, got %q", next)
	}
}

func TestNextUnknownNode(t *testing.T) {
	g := fourNodeGraph(t)

	if _, err := g.Next("bogus", models.TextValue("x")); err == nil {
		t.Error("expected error for unknown node")
	}
}

func TestDefaultOnboardingGraphValid(t *testing.T) {
	g := DefaultOnboardingGraph()

	if g.Len() == 0 {
		t.Fatal("expected non-empty default graph")
	}
	if g.Entry().ID != "welcome_name" {
		t.Errorf("unexpected entry node %q", g.Entry().ID)
	}

	// The healthy-goal branch skips the why probe.
	next, err := g.Next("primary_goal", models.ChoiceValue("feel healthier"))
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if next != "experience_level" {
		t.Errorf("expected branch to experience_level, got %q", next)
	}

	// High commitment skips the life-context probe.
	next, err = g.Next("commitment_level", models.ScaleValue(8))
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if next != "absence_response" {
		t.Errorf("expected branch to absence_response, got %q", next)
	}
	next, err = g.Next("commitment_level", models.ScaleValue(7))
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if next != "life_context" {
		t.Errorf("expected fallthrough to life_context, got %q", next)
	}
}
