package engagement

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/openai/openai-go"

	"github.com/BTreeMap/CoachPipe/internal/genai"
	"github.com/BTreeMap/CoachPipe/internal/models"
	"github.com/BTreeMap/CoachPipe/internal/notify"
	"github.com/BTreeMap/CoachPipe/internal/store"
)

type mockGenAI struct {
	reply string
	err   error
	calls int
}

func (m *mockGenAI) GeneratePrompt(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	m.calls++
	return m.reply, m.err
}

func (m *mockGenAI) GenerateWithMessages(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error) {
	return m.GeneratePrompt(ctx, "", "")
}

func (m *mockGenAI) LastUsage() genai.Usage { return genai.Usage{} }

var _ genai.ClientInterface = (*mockGenAI)(nil)

func activeUser(id string, lastActive time.Time, pref models.AbsencePreference) models.User {
	return models.User{
		ID:              id,
		Name:            "Sam",
		PhoneNumber:     "15551234567",
		Status:          models.UserStatusActive,
		AbsenceResponse: pref,
		LastActiveAt:    lastActive,
	}
}

func TestDetectLapsedUsers(t *testing.T) {
	st := store.NewInMemoryStore()
	now := time.Now()
	fresh := activeUser("fresh", now.Add(-time.Hour), models.AbsenceCheckIn)
	lapsed := activeUser("lapsed", now.Add(-4*24*time.Hour), models.AbsenceCheckIn)
	for _, u := range []models.User{fresh, lapsed} {
		if err := st.CreateUser(u); err != nil {
			t.Fatalf("CreateUser failed: %v", err)
		}
	}
	p := NewPolicy(st, &mockGenAI{}, notify.NewMockNotifier())

	users, err := p.DetectLapsedUsers(context.Background(), now)
	if err != nil {
		t.Fatalf("DetectLapsedUsers failed: %v", err)
	}
	if len(users) != 1 || users[0].ID != "lapsed" {
		t.Errorf("expected only the lapsed user, got %+v", users)
	}
}

func TestDetectLapsedUsersBoundary(t *testing.T) {
	st := store.NewInMemoryStore()
	now := time.Now()
	// Exactly at the threshold is not yet lapsed; one second past is.
	atThreshold := activeUser("at", now.Add(-LapseThreshold), models.AbsenceCheckIn)
	past := activeUser("past", now.Add(-LapseThreshold-time.Second), models.AbsenceCheckIn)
	for _, u := range []models.User{atThreshold, past} {
		if err := st.CreateUser(u); err != nil {
			t.Fatalf("CreateUser failed: %v", err)
		}
	}
	p := NewPolicy(st, &mockGenAI{}, notify.NewMockNotifier())

	users, err := p.DetectLapsedUsers(context.Background(), now)
	if err != nil {
		t.Fatalf("DetectLapsedUsers failed: %v", err)
	}
	if len(users) != 1 || users[0].ID != "past" {
		t.Errorf("expected only the past-threshold user, got %+v", users)
	}
}

func TestSendReEngagementNotificationOptOut(t *testing.T) {
	mock := &mockGenAI{reply: "should not be called"}
	notifier := notify.NewMockNotifier()
	p := NewPolicy(store.NewInMemoryStore(), mock, notifier)
	user := activeUser("u1", time.Now().Add(-5*24*time.Hour), models.AbsenceGiveMeSpace)

	if err := p.SendReEngagementNotification(context.Background(), &user, nil); err != nil {
		t.Fatalf("expected nil error for opted-out user, got %v", err)
	}
	if mock.calls != 0 {
		t.Errorf("expected no generation call for opted-out user, got %d", mock.calls)
	}
	if len(notifier.Sent()) != 0 {
		t.Error("expected nothing sent to opted-out user")
	}
}

func TestSendReEngagementNotificationPersonaVoice(t *testing.T) {
	mock := &mockGenAI{reply: "Hey Sam, the trail misses you. One easy walk today?"}
	notifier := notify.NewMockNotifier()
	p := NewPolicy(store.NewInMemoryStore(), mock, notifier)
	user := activeUser("u1", time.Now().Add(-5*24*time.Hour), models.AbsenceGentleReminder)
	persona := &models.CoachPersona{Name: "Kai", SystemPrompt: "You are Kai."}

	if err := p.SendReEngagementNotification(context.Background(), &user, persona); err != nil {
		t.Fatalf("SendReEngagementNotification failed: %v", err)
	}

	sent := notifier.Sent()
	if len(sent) != 1 {
		t.Fatalf("expected 1 nudge, got %d", len(sent))
	}
	if sent[0].To != user.PhoneNumber {
		t.Errorf("unexpected recipient: %q", sent[0].To)
	}
	if sent[0].Notification.Body != mock.reply {
		t.Errorf("expected generated body, got %q", sent[0].Notification.Body)
	}
	if !strings.Contains(sent[0].Notification.Title, "Kai") {
		t.Errorf("expected persona name in title, got %q", sent[0].Notification.Title)
	}
}

func TestSendReEngagementNotificationGenerationFailure(t *testing.T) {
	mock := &mockGenAI{err: models.ErrProvider}
	notifier := notify.NewMockNotifier()
	p := NewPolicy(store.NewInMemoryStore(), mock, notifier)
	user := activeUser("u1", time.Now().Add(-5*24*time.Hour), models.AbsenceCheckIn)
	persona := &models.CoachPersona{Name: "Kai", SystemPrompt: "You are Kai."}

	if err := p.SendReEngagementNotification(context.Background(), &user, persona); err != nil {
		t.Fatalf("expected generation failure swallowed, got %v", err)
	}
	if sent := notifier.Sent(); len(sent) != 0 {
		t.Fatalf("expected no nudge after generation failure, got %d", len(sent))
	}
}

func TestSendReEngagementNotificationNoPersona(t *testing.T) {
	mock := &mockGenAI{reply: "unused"}
	notifier := notify.NewMockNotifier()
	p := NewPolicy(store.NewInMemoryStore(), mock, notifier)
	user := activeUser("u1", time.Now().Add(-5*24*time.Hour), models.AbsenceCheckIn)

	if err := p.SendReEngagementNotification(context.Background(), &user, nil); err != nil {
		t.Fatalf("SendReEngagementNotification failed: %v", err)
	}
	if mock.calls != 0 {
		t.Errorf("expected no generation without a persona, got %d calls", mock.calls)
	}
	if len(notifier.Sent()) != 1 {
		t.Fatal("expected template nudge sent")
	}
}

func TestSendReEngagementNotificationDeliveryError(t *testing.T) {
	notifier := notify.NewMockNotifier()
	notifier.Err = errors.New("channel unreachable")
	p := NewPolicy(store.NewInMemoryStore(), &mockGenAI{}, notifier)
	user := activeUser("u1", time.Now().Add(-5*24*time.Hour), models.AbsenceCheckIn)

	if err := p.SendReEngagementNotification(context.Background(), &user, nil); err == nil {
		t.Fatal("expected delivery error surfaced")
	}
}

func TestUpdateUserActivity(t *testing.T) {
	st := store.NewInMemoryStore()
	user := activeUser("u1", time.Now().Add(-10*24*time.Hour), models.AbsenceCheckIn)
	user.Status = models.UserStatusPaused
	if err := st.CreateUser(user); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	p := NewPolicy(st, &mockGenAI{}, notify.NewMockNotifier())

	at := time.Now()
	if err := p.UpdateUserActivity(context.Background(), "u1", at); err != nil {
		t.Fatalf("UpdateUserActivity failed: %v", err)
	}

	updated, _ := st.GetUser("u1")
	if !updated.LastActiveAt.Equal(at) {
		t.Errorf("expected last active %v, got %v", at, updated.LastActiveAt)
	}
	if updated.Status != models.UserStatusActive {
		t.Errorf("expected paused user reactivated, got %q", updated.Status)
	}
}

func TestUpdateUserActivityUnknownUser(t *testing.T) {
	p := NewPolicy(store.NewInMemoryStore(), &mockGenAI{}, notify.NewMockNotifier())

	err := p.UpdateUserActivity(context.Background(), "ghost", time.Now())
	if !errors.Is(err, models.ErrUserNotFound) {
		t.Errorf("expected ErrUserNotFound, got %v", err)
	}
}
