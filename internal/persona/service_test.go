package persona

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/BTreeMap/CoachPipe/internal/models"
	"github.com/BTreeMap/CoachPipe/internal/store"
)

func basePersona() *models.CoachPersona {
	return &models.CoachPersona{
		ID:        "persona-1",
		Name:      "Kai",
		Archetype: "Steady Trail Guide",
		Voice: models.VoiceCharacteristics{
			Energy:    models.EnergyCalm,
			Warmth:    models.WarmthFriendly,
			Formality: models.FormalityCasual,
		},
		SystemPrompt:   "You are Kai.",
		CoreValues:     []string{"consistency", "patience"},
		DominantTraits: []string{"grounded", "observant"},
		CreatedAt:      time.Now().Add(-time.Hour),
		UpdatedAt:      time.Now().Add(-time.Hour),
	}
}

func TestAdjustPersonaPartialUpdate(t *testing.T) {
	mock := &mockGenAI{replies: []string{`{"energy":"very_high","warmth":"warm"}`}}
	svc := NewService(store.NewInMemoryStore(), mock, testGraph(t))
	current := basePersona()

	updated, err := svc.AdjustPersona(context.Background(), current, "more energetic please")
	if err != nil {
		t.Fatalf("AdjustPersona failed: %v", err)
	}

	if updated.Voice.Energy != models.EnergyVeryHigh {
		t.Errorf("expected energy very_high, got %q", updated.Voice.Energy)
	}
	if updated.Voice.Warmth != models.WarmthWarm {
		t.Errorf("expected warmth warm, got %q", updated.Voice.Warmth)
	}
	if updated.Name != "Kai" {
		t.Errorf("expected name preserved, got %q", updated.Name)
	}
	if len(updated.CoreValues) != 2 {
		t.Errorf("expected core values preserved, got %v", updated.CoreValues)
	}
	if current.Voice.Energy != models.EnergyCalm {
		t.Error("expected input persona untouched")
	}
}

func TestAdjustPersonaUnparseableReplyIsNoOp(t *testing.T) {
	mock := &mockGenAI{replies: []string{"I adjusted the persona for you!"}}
	svc := NewService(store.NewInMemoryStore(), mock, testGraph(t))
	current := basePersona()

	updated, err := svc.AdjustPersona(context.Background(), current, "make it louder")
	if err != nil {
		t.Fatalf("expected nil error on unusable reply, got %v", err)
	}
	if updated.Name != current.Name || updated.Voice != current.Voice {
		t.Error("expected persona unchanged on unusable reply")
	}
}

func TestAdjustPersonaEmptyObjectIsNoOp(t *testing.T) {
	mock := &mockGenAI{replies: []string{`{}`}}
	svc := NewService(store.NewInMemoryStore(), mock, testGraph(t))
	current := basePersona()

	updated, err := svc.AdjustPersona(context.Background(), current, "no change needed")
	if err != nil {
		t.Fatalf("expected nil error on empty patch, got %v", err)
	}
	if updated.Voice != current.Voice {
		t.Error("expected persona unchanged on empty patch")
	}
}

func TestAdjustPersonaProviderError(t *testing.T) {
	mock := &mockGenAI{err: models.ErrProvider}
	svc := NewService(store.NewInMemoryStore(), mock, testGraph(t))

	_, err := svc.AdjustPersona(context.Background(), basePersona(), "anything")
	if !errors.Is(err, models.ErrProvider) {
		t.Errorf("expected provider error, got %v", err)
	}
}

func TestAdjustPersonaInvalidEnumIgnored(t *testing.T) {
	mock := &mockGenAI{replies: []string{`{"energy":"nuclear","name":"Nova"}`}}
	svc := NewService(store.NewInMemoryStore(), mock, testGraph(t))

	updated, err := svc.AdjustPersona(context.Background(), basePersona(), "rename and energize")
	if err != nil {
		t.Fatalf("AdjustPersona failed: %v", err)
	}
	if updated.Voice.Energy != models.EnergyCalm {
		t.Errorf("expected unknown energy value ignored, got %q", updated.Voice.Energy)
	}
	if updated.Name != "Nova" {
		t.Errorf("expected valid field applied, got %q", updated.Name)
	}
}

func TestSavePersonaNewUser(t *testing.T) {
	st := store.NewInMemoryStore()
	if err := st.CreateUser(models.User{ID: "user-1", Status: models.UserStatusActive}); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	svc := NewService(st, &mockGenAI{}, testGraph(t))
	p := basePersona()
	p.ID = ""

	if err := svc.SavePersona(context.Background(), p, "user-1"); err != nil {
		t.Fatalf("SavePersona failed: %v", err)
	}

	if p.ID == "" {
		t.Fatal("expected persona ID assigned")
	}
	user, err := st.GetUser("user-1")
	if err != nil || user == nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if user.PersonaID != p.ID {
		t.Errorf("expected user linked to persona, got %q", user.PersonaID)
	}
	if !user.ProfileComplete {
		t.Error("expected profile marked complete")
	}
	stored, err := st.GetPersona(p.ID)
	if err != nil || stored == nil {
		t.Fatalf("expected persona persisted: %v", err)
	}
}

func TestSavePersonaPreservesDurableID(t *testing.T) {
	st := store.NewInMemoryStore()
	if err := st.CreateUser(models.User{ID: "user-1", PersonaID: "persona-original"}); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	svc := NewService(st, &mockGenAI{}, testGraph(t))
	p := basePersona()
	p.ID = "regenerated-id"

	if err := svc.SavePersona(context.Background(), p, "user-1"); err != nil {
		t.Fatalf("SavePersona failed: %v", err)
	}

	if p.ID != "persona-original" {
		t.Errorf("expected existing persona ID kept, got %q", p.ID)
	}
	user, _ := st.GetUser("user-1")
	if user.PersonaID != "persona-original" {
		t.Errorf("expected user persona ID unchanged, got %q", user.PersonaID)
	}
}

func TestSavePersonaUnknownUser(t *testing.T) {
	svc := NewService(store.NewInMemoryStore(), &mockGenAI{}, testGraph(t))

	err := svc.SavePersona(context.Background(), basePersona(), "ghost")
	if !errors.Is(err, models.ErrUserNotFound) {
		t.Errorf("expected ErrUserNotFound, got %v", err)
	}
}

func TestGeneratePersonaPropagatesSynthesisError(t *testing.T) {
	mock := &mockGenAI{replies: []string{"not json"}}
	svc := NewService(store.NewInMemoryStore(), mock, testGraph(t))

	_, err := svc.GeneratePersona(context.Background(), sessionWith(t))
	if !errors.Is(err, models.ErrInvalidPersonaResponse) {
		t.Errorf("expected synthesis error propagated, got %v", err)
	}
}

func TestSaveAndGetProfileBlob(t *testing.T) {
	st := store.NewInMemoryStore()
	svc := NewService(st, &mockGenAI{}, testGraph(t))
	blob := ComposeProfileBlob(
		models.ConversationData{UserName: "Sam", PrimaryGoal: "run a 10k", Fields: map[models.DataKey]models.FieldValue{}},
		models.PersonalityInsights{TonePreference: "gentle", MotivationStyle: "encouragement"},
		&models.User{ID: "user-1", Timezone: "America/Toronto"},
	)

	if err := svc.SaveProfileBlob(context.Background(), "user-1", blob); err != nil {
		t.Fatalf("SaveProfileBlob failed: %v", err)
	}

	loaded, err := svc.GetProfileBlob(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("GetProfileBlob failed: %v", err)
	}
	if loaded == nil {
		t.Fatal("expected stored profile")
	}
	if loaded.Goal != "run a 10k" {
		t.Errorf("unexpected goal: %q", loaded.Goal)
	}
	if loaded.Timezone != "America/Toronto" {
		t.Errorf("expected user timezone, got %q", loaded.Timezone)
	}
	if loaded.BaselineModeEnabled == nil || *loaded.BaselineModeEnabled {
		t.Error("expected baseline mode disabled by default")
	}
}

func TestGetProfileBlobMissing(t *testing.T) {
	svc := NewService(store.NewInMemoryStore(), &mockGenAI{}, testGraph(t))

	blob, err := svc.GetProfileBlob(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("expected nil error for missing profile, got %v", err)
	}
	if blob != nil {
		t.Errorf("expected nil blob, got %+v", blob)
	}
}

func TestComposeProfileBlobValidates(t *testing.T) {
	blob := ComposeProfileBlob(models.ConversationData{PrimaryGoal: "get stronger"}, models.PersonalityInsights{MotivationStyle: "data_driven"}, nil)
	if err := blob.Validate(); err != nil {
		t.Fatalf("composed blob failed validation: %v", err)
	}
	if blob.Blend["analyst"] <= blob.Blend["hype"] {
		t.Errorf("expected data_driven style to favor analyst blend: %+v", blob.Blend)
	}
	if blob.Timezone != "UTC" {
		t.Errorf("expected UTC fallback, got %q", blob.Timezone)
	}
}
