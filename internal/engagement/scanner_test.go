package engagement

import (
	"context"
	"testing"
	"time"

	"github.com/BTreeMap/CoachPipe/internal/models"
	"github.com/BTreeMap/CoachPipe/internal/notify"
	"github.com/BTreeMap/CoachPipe/internal/scheduler"
	"github.com/BTreeMap/CoachPipe/internal/store"
)

func newTestScanner(t *testing.T, st store.Store, notifier notify.Notifier) *Scanner {
	t.Helper()
	sched := scheduler.NewScheduler()
	t.Cleanup(sched.Stop)
	return NewScanner(NewPolicy(st, &mockGenAI{}, notifier), st, sched)
}

func TestScanNudgesLapsedUsers(t *testing.T) {
	st := store.NewInMemoryStore()
	now := time.Now()
	lapsed := activeUser("lapsed", now.Add(-4*24*time.Hour), models.AbsenceCheckIn)
	optedOut := activeUser("quiet", now.Add(-4*24*time.Hour), models.AbsenceGiveMeSpace)
	fresh := activeUser("fresh", now.Add(-time.Hour), models.AbsenceCheckIn)
	for _, u := range []models.User{lapsed, optedOut, fresh} {
		if err := st.CreateUser(u); err != nil {
			t.Fatalf("CreateUser failed: %v", err)
		}
	}
	notifier := notify.NewMockNotifier()
	s := newTestScanner(t, st, notifier)

	sent := s.Scan(context.Background(), now)

	if sent != 1 {
		t.Errorf("expected 1 nudge sent, got %d", sent)
	}
	deliveries := notifier.Sent()
	if len(deliveries) != 1 || deliveries[0].To != lapsed.PhoneNumber {
		t.Errorf("unexpected deliveries: %+v", deliveries)
	}
}

func TestScanUsesStoredPersona(t *testing.T) {
	st := store.NewInMemoryStore()
	now := time.Now()
	persona := models.CoachPersona{ID: "p1", Name: "Kai", SystemPrompt: "You are Kai."}
	if err := st.SavePersona(persona); err != nil {
		t.Fatalf("SavePersona failed: %v", err)
	}
	user := activeUser("u1", now.Add(-4*24*time.Hour), models.AbsenceCheckIn)
	user.PersonaID = "p1"
	if err := st.CreateUser(user); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	notifier := notify.NewMockNotifier()
	sched := scheduler.NewScheduler()
	t.Cleanup(sched.Stop)
	mock := &mockGenAI{reply: "Missing you on the trail, Sam."}
	s := NewScanner(NewPolicy(st, mock, notifier), st, sched)

	s.Scan(context.Background(), now)

	if mock.calls != 1 {
		t.Errorf("expected one generation call with stored persona, got %d", mock.calls)
	}
	deliveries := notifier.Sent()
	if len(deliveries) != 1 || deliveries[0].Notification.Body != mock.reply {
		t.Errorf("unexpected deliveries: %+v", deliveries)
	}
}

func TestScanSkipsWhenInFlight(t *testing.T) {
	st := store.NewInMemoryStore()
	now := time.Now()
	if err := st.CreateUser(activeUser("u1", now.Add(-4*24*time.Hour), models.AbsenceCheckIn)); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	s := newTestScanner(t, st, notify.NewMockNotifier())

	s.inFlight.Store(true)
	if got := s.Scan(context.Background(), now); got != 0 {
		t.Errorf("expected overlapping scan dropped, got %d sends", got)
	}

	s.inFlight.Store(false)
	if got := s.Scan(context.Background(), now); got != 1 {
		t.Errorf("expected scan to run after flag cleared, got %d sends", got)
	}
}

func TestStartRejectsInvalidCron(t *testing.T) {
	s := newTestScanner(t, store.NewInMemoryStore(), notify.NewMockNotifier())

	if err := s.Start("every blue moon"); err == nil {
		t.Error("expected error for invalid cron expression")
	}
	if err := s.Start(""); err != nil {
		t.Errorf("expected default schedule accepted, got %v", err)
	}
}
