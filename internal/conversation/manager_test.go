package conversation

import (
	"context"
	"errors"
	"testing"

	"github.com/BTreeMap/CoachPipe/internal/analytics"
	"github.com/BTreeMap/CoachPipe/internal/models"
	"github.com/BTreeMap/CoachPipe/internal/store"
)

// failingStore wraps a real store and fails CommitResponse on demand.
type failingStore struct {
	store.Store
	failCommit bool
}

func (f *failingStore) CommitResponse(s models.ConversationSession, r models.ConversationResponse) error {
	if f.failCommit {
		return errors.New("disk full")
	}
	return f.Store.CommitResponse(s, r)
}

func newManager(t *testing.T) (*FlowManager, *store.InMemoryStore, *analytics.CapturingRecorder) {
	t.Helper()
	st := store.NewInMemoryStore()
	recorder := analytics.NewCapturingRecorder()
	return NewFlowManager(st, fourNodeGraph(t), recorder), st, recorder
}

func TestStartNewSessionAtEntry(t *testing.T) {
	fm, _, recorder := newManager(t)

	session, err := fm.StartNewSession(context.Background(), "u1")
	if err != nil {
		t.Fatalf("StartNewSession failed: %v", err)
	}

	if session.CurrentNodeID != "q1" {
		t.Errorf("expected session at entry node, got %q", session.CurrentNodeID)
	}
	if session.ID == "" {
		t.Error("expected generated session ID")
	}
	if got := len(recorder.ByType(models.EventSessionStarted)); got != 1 {
		t.Errorf("expected 1 started event, got %d", got)
	}
}

func TestStartNewSessionExistingActive(t *testing.T) {
	fm, st, recorder := newManager(t)

	first, err := fm.StartNewSession(context.Background(), "u1")
	if err != nil {
		t.Fatalf("first start failed: %v", err)
	}

	// A second manager for the same user adopts the existing session.
	fm2 := NewFlowManager(st, fourNodeGraph(t), recorder)
	second, err := fm2.StartNewSession(context.Background(), "u1")
	if err != nil {
		t.Fatalf("second start failed: %v", err)
	}

	if second.ID != first.ID {
		t.Errorf("expected existing session returned, got %q vs %q", second.ID, first.ID)
	}
	// One creation, two per-call started events.
	if got := len(recorder.ByType(models.EventSessionStarted)); got != 2 {
		t.Errorf("expected 2 started events, got %d", got)
	}
}

func TestSubmitResponseAdvancesAndPersists(t *testing.T) {
	fm, st, recorder := newManager(t)
	fm.StartNewSession(context.Background(), "u1")

	if err := fm.SubmitResponse(context.Background(), models.TextValue("Sam")); err != nil {
		t.Fatalf("SubmitResponse failed: %v", err)
	}

	if fm.Session().CurrentNodeID != "q2" {
		t.Errorf("expected advance to q2, got %q", fm.Session().CurrentNodeID)
	}
	stored, err := st.GetSession(fm.Session().ID)
	if err != nil || stored == nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if stored.CurrentNodeID != "q2" {
		t.Errorf("expected persisted pointer q2, got %q", stored.CurrentNodeID)
	}
	if len(stored.Responses) != 1 {
		t.Fatalf("expected one persisted response, got %d", len(stored.Responses))
	}
	events := recorder.ByType(models.EventResponseSubmitted)
	if len(events) != 1 || events[0].NodeID != "q1" {
		t.Errorf("unexpected submit events: %+v", events)
	}
}

func TestSubmitResponseValidationFailureLeavesPointer(t *testing.T) {
	fm, _, recorder := newManager(t)
	fm.StartNewSession(context.Background(), "u1")

	err := fm.SubmitResponse(context.Background(), models.TextValue(""))
	if !errors.Is(err, models.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	if fm.Session().CurrentNodeID != "q1" {
		t.Errorf("expected pointer unchanged, got %q", fm.Session().CurrentNodeID)
	}
	if got := len(recorder.ByType(models.EventErrorOccurred)); got != 1 {
		t.Errorf("expected 1 error event, got %d", got)
	}
	if got := len(fm.Session().Responses); got != 0 {
		t.Errorf("expected no recorded responses, got %d", got)
	}
}

func TestSubmitResponseNoCurrentNodeIsNoOp(t *testing.T) {
	fm, _, recorder := newManager(t)

	if err := fm.SubmitResponse(context.Background(), models.TextValue("x")); err != nil {
		t.Fatalf("expected nil error with no session, got %v", err)
	}
	if len(recorder.Events) != 0 {
		t.Errorf("expected no events, got %d", len(recorder.Events))
	}
}

func TestSubmitResponsePersistFailureKeepsMemoryState(t *testing.T) {
	st := store.NewInMemoryStore()
	fs := &failingStore{Store: st}
	recorder := analytics.NewCapturingRecorder()
	fm := NewFlowManager(fs, fourNodeGraph(t), recorder)
	fm.StartNewSession(context.Background(), "u1")

	fs.failCommit = true
	err := fm.SubmitResponse(context.Background(), models.TextValue("Sam"))
	if !errors.Is(err, models.ErrPersistence) {
		t.Fatalf("expected persistence error, got %v", err)
	}

	if fm.Session().CurrentNodeID != "q1" {
		t.Errorf("expected in-memory pointer unchanged, got %q", fm.Session().CurrentNodeID)
	}
	if len(fm.Session().Responses) != 0 {
		t.Error("expected no response retained after failed commit")
	}

	// Store rejected the write, so a retry succeeds cleanly.
	fs.failCommit = false
	if err := fm.SubmitResponse(context.Background(), models.TextValue("Sam")); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if fm.Session().CurrentNodeID != "q2" {
		t.Errorf("expected advance after retry, got %q", fm.Session().CurrentNodeID)
	}
}

func TestSkipRequiredNode(t *testing.T) {
	fm, _, _ := newManager(t)
	fm.StartNewSession(context.Background(), "u1")

	err := fm.SkipCurrentNode(context.Background(), false)
	if !errors.Is(err, models.ErrNodeRequired) {
		t.Fatalf("expected ErrNodeRequired, got %v", err)
	}
	if fm.Session().CurrentNodeID != "q1" {
		t.Errorf("expected pointer unchanged, got %q", fm.Session().CurrentNodeID)
	}

	if err := fm.SkipCurrentNode(context.Background(), true); err != nil {
		t.Fatalf("forced skip failed: %v", err)
	}
	if fm.Session().CurrentNodeID != "q2" {
		t.Errorf("expected advance after forced skip, got %q", fm.Session().CurrentNodeID)
	}
}

func TestSkipOptionalNodeTakesSequentialPath(t *testing.T) {
	fm, _, recorder := newManager(t)
	fm.StartNewSession(context.Background(), "u1")
	fm.SubmitResponse(context.Background(), models.TextValue("Sam"))
	fm.SubmitResponse(context.Background(), models.ChoiceValue("a"))

	// q3 is optional.
	if err := fm.SkipCurrentNode(context.Background(), false); err != nil {
		t.Fatalf("skip failed: %v", err)
	}
	if fm.Session().CurrentNodeID != "q4" {
		t.Errorf("expected q4, got %q", fm.Session().CurrentNodeID)
	}
	if got := len(recorder.ByType(models.EventNodeSkipped)); got != 1 {
		t.Errorf("expected 1 skip event, got %d", got)
	}
}

func TestSessionCompletion(t *testing.T) {
	fm, _, recorder := newManager(t)

	var completed *models.ConversationSession
	fm.SetCompletionHandler(func(ctx context.Context, s *models.ConversationSession) {
		completed = s
	})

	var updates []ProgressUpdate
	fm.RegisterObserver(func(u ProgressUpdate) { updates = append(updates, u) })

	fm.StartNewSession(context.Background(), "u1")
	fm.SubmitResponse(context.Background(), models.TextValue("Sam"))
	fm.SubmitResponse(context.Background(), models.ChoiceValue("b")) // branch to q4
	if err := fm.SubmitResponse(context.Background(), models.TextValue("done")); err != nil {
		t.Fatalf("final submit failed: %v", err)
	}

	session := fm.Session()
	if !session.IsComplete() {
		t.Fatal("expected session complete")
	}
	if session.CurrentNodeID != "" {
		t.Errorf("expected cleared pointer, got %q", session.CurrentNodeID)
	}
	if session.CompletedAt == nil {
		t.Error("expected completion timestamp")
	}
	if fm.Progress() != 1 {
		t.Errorf("expected progress 1, got %g", fm.Progress())
	}
	if completed == nil || completed.ID != session.ID {
		t.Error("expected completion handler invoked with the session")
	}
	if got := len(recorder.ByType(models.EventSessionCompleted)); got != 1 {
		t.Errorf("expected 1 completion event, got %d", got)
	}
	last := updates[len(updates)-1]
	if !last.Completed || last.Fraction != 1 {
		t.Errorf("unexpected final progress update: %+v", last)
	}
}

func TestResumeSessionRestoresPointer(t *testing.T) {
	fm, st, _ := newManager(t)
	fm.StartNewSession(context.Background(), "u1")
	fm.SubmitResponse(context.Background(), models.TextValue("Sam"))
	sessionID := fm.Session().ID

	stored, err := st.GetSession(sessionID)
	if err != nil || stored == nil {
		t.Fatalf("GetSession failed: %v", err)
	}

	fm2 := NewFlowManager(st, fourNodeGraph(t), analytics.NewCapturingRecorder())
	if err := fm2.ResumeSession(context.Background(), stored); err != nil {
		t.Fatalf("ResumeSession failed: %v", err)
	}
	if fm2.CurrentNode().ID != "q2" {
		t.Errorf("expected resume at q2, got %q", fm2.CurrentNode().ID)
	}
}

func TestResumeSessionRederivesLostPointer(t *testing.T) {
	fm, st, _ := newManager(t)
	fm.StartNewSession(context.Background(), "u1")
	fm.SubmitResponse(context.Background(), models.TextValue("Sam"))
	fm.SubmitResponse(context.Background(), models.ChoiceValue("b"))

	// Simulate a crash that lost the pointer but kept the response log.
	damaged := *fm.Session()
	damaged.CurrentNodeID = ""
	damaged.CompletedAt = nil

	fm2 := NewFlowManager(st, fourNodeGraph(t), analytics.NewCapturingRecorder())
	if err := fm2.ResumeSession(context.Background(), &damaged); err != nil {
		t.Fatalf("ResumeSession failed: %v", err)
	}
	if fm2.Session().CurrentNodeID != "q4" {
		t.Errorf("expected replay to derive q4, got %q", fm2.Session().CurrentNodeID)
	}
}

func TestResumeSessionReplayToTerminalFinalizes(t *testing.T) {
	fm, st, _ := newManager(t)
	fm.StartNewSession(context.Background(), "u1")
	fm.SubmitResponse(context.Background(), models.TextValue("Sam"))
	fm.SubmitResponse(context.Background(), models.ChoiceValue("b"))
	fm.SubmitResponse(context.Background(), models.TextValue("done")) // q4, terminal next

	// Simulate a crash that kept the full response log but lost the
	// completion write.
	damaged := *fm.Session()
	damaged.CurrentNodeID = ""
	damaged.CompletedAt = nil
	if err := st.SaveSession(damaged); err != nil {
		t.Fatalf("SaveSession failed: %v", err)
	}

	recorder := analytics.NewCapturingRecorder()
	fm2 := NewFlowManager(st, fourNodeGraph(t), recorder)
	var handedOff bool
	fm2.SetCompletionHandler(func(ctx context.Context, s *models.ConversationSession) {
		handedOff = true
	})

	if err := fm2.ResumeSession(context.Background(), &damaged); err != nil {
		t.Fatalf("ResumeSession failed: %v", err)
	}
	if !fm2.Session().IsComplete() {
		t.Fatal("expected replayed session finalized as complete")
	}
	if fm2.CurrentNode() != nil {
		t.Error("expected no current node after finalization")
	}
	if !handedOff {
		t.Error("expected completion hand-off for the finalized session")
	}
	if got := len(recorder.ByType(models.EventSessionCompleted)); got != 1 {
		t.Errorf("expected 1 completed event, got %d", got)
	}

	// The finalized state is durable: the user is no longer stuck with an
	// unanswerable active session.
	active, err := st.GetActiveSessionForUser("u1")
	if err != nil {
		t.Fatalf("GetActiveSessionForUser failed: %v", err)
	}
	if active != nil {
		t.Errorf("expected no active session after finalization, got %q", active.ID)
	}
}

func TestResumeSessionUnknownPointer(t *testing.T) {
	fm, _, _ := newManager(t)

	bad := &models.ConversationSession{ID: "s1", UserID: "u1", CurrentNodeID: "vanished"}
	if err := fm.ResumeSession(context.Background(), bad); err == nil {
		t.Error("expected error for unknown node pointer")
	}
}

func TestResumeSessionEmitsResumeEvent(t *testing.T) {
	fm, st, _ := newManager(t)
	fm.StartNewSession(context.Background(), "u1")
	stored, _ := st.GetSession(fm.Session().ID)

	recorder := analytics.NewCapturingRecorder()
	fm2 := NewFlowManager(st, fourNodeGraph(t), recorder)
	if err := fm2.ResumeSession(context.Background(), stored); err != nil {
		t.Fatalf("ResumeSession failed: %v", err)
	}

	events := recorder.ByType(models.EventSessionResumed)
	if len(events) != 1 || events[0].NodeID != "q1" {
		t.Errorf("unexpected resume events: %+v", events)
	}
}

func TestProgressMonotonicAlongPrimaryPath(t *testing.T) {
	fm, _, _ := newManager(t)
	fm.StartNewSession(context.Background(), "u1")

	prev := fm.Progress()
	steps := []models.ResponseValue{
		models.TextValue("Sam"),
		models.ChoiceValue("a"),
		models.ScaleValue(3),
		models.TextValue("done"),
	}
	for _, v := range steps {
		if err := fm.SubmitResponse(context.Background(), v); err != nil {
			t.Fatalf("submit failed: %v", err)
		}
		cur := fm.Progress()
		if cur <= prev {
			t.Errorf("progress not monotonic: %g then %g", prev, cur)
		}
		prev = cur
	}
}
