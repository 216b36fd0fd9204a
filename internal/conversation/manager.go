package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/BTreeMap/CoachPipe/internal/analytics"
	"github.com/BTreeMap/CoachPipe/internal/models"
	"github.com/BTreeMap/CoachPipe/internal/store"
)

// ProgressUpdate is published to observers after every committed mutation.
type ProgressUpdate struct {
	SessionID string
	UserID    string
	NodeID    string  // node the session moved to; empty when complete
	Fraction  float64 // 0-1, monotonic along the primary path
	Completed bool
}

// ProgressObserver receives progress updates synchronously after each commit.
type ProgressObserver func(ProgressUpdate)

// CompletionHandler receives the completed session for synthesis hand-off.
type CompletionHandler func(ctx context.Context, session *models.ConversationSession)

// FlowManager drives one session at a time through the conversation graph.
// It is the single point of truth for "what question is next". Callers must
// not invoke two mutating operations on the same manager concurrently; the
// surrounding application serializes access per session.
type FlowManager struct {
	store     store.Store
	graph     *Graph
	recorder  analytics.Recorder
	observers []ProgressObserver
	onDone    CompletionHandler

	session       *models.ConversationSession
	nodeEnteredAt time.Time
}

// NewFlowManager creates a flow manager with its dependencies.
func NewFlowManager(st store.Store, graph *Graph, recorder analytics.Recorder) *FlowManager {
	if recorder == nil {
		recorder = analytics.Noop()
	}
	return &FlowManager{store: st, graph: graph, recorder: recorder}
}

// RegisterObserver adds a progress observer. Observers are notified
// synchronously, in registration order, after each committed mutation.
func (f *FlowManager) RegisterObserver(obs ProgressObserver) {
	f.observers = append(f.observers, obs)
}

// SetCompletionHandler installs the synthesis hand-off invoked when a session
// advances past the terminal node.
func (f *FlowManager) SetCompletionHandler(h CompletionHandler) {
	f.onDone = h
}

// Session returns the currently managed session, nil when none is active.
func (f *FlowManager) Session() *models.ConversationSession {
	return f.session
}

// CurrentNode returns the node the session is waiting on, nil when no session
// is active or the session is complete.
func (f *FlowManager) CurrentNode() *models.ConversationNode {
	if f.session == nil || f.session.CurrentNodeID == "" {
		return nil
	}
	node, ok := f.graph.Node(f.session.CurrentNodeID)
	if !ok {
		return nil
	}
	return node
}

// StartNewSession creates a session at the graph's entry node. When the user
// already has an active session the creation path is a no-op: the existing
// session becomes the managed one and is returned, while the per-call
// analytics event still fires.
func (f *FlowManager) StartNewSession(ctx context.Context, userID string) (*models.ConversationSession, error) {
	slog.Debug("FlowManager.StartNewSession: starting", "userID", userID)

	existing, err := f.store.GetActiveSessionForUser(userID)
	if err != nil {
		slog.Error("FlowManager.StartNewSession: active session lookup failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("%w: %v", models.ErrPersistence, err)
	}
	if existing != nil {
		slog.Debug("FlowManager.StartNewSession: active session already exists", "userID", userID, "sessionID", existing.ID)
		f.recorder.Record(ctx, models.AnalyticsEvent{
			Type: models.EventSessionStarted, UserID: userID, SessionID: existing.ID,
			NodeID: existing.CurrentNodeID, At: time.Now(),
		})
		f.session = existing
		f.nodeEnteredAt = time.Now()
		return existing, nil
	}

	session := models.ConversationSession{
		ID:            uuid.NewString(),
		UserID:        userID,
		CurrentNodeID: f.graph.Entry().ID,
		StartedAt:     time.Now(),
	}
	if err := f.store.CreateSession(session); err != nil {
		slog.Error("FlowManager.StartNewSession: create failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("%w: %v", models.ErrPersistence, err)
	}

	f.session = &session
	f.nodeEnteredAt = time.Now()
	f.recorder.Record(ctx, models.AnalyticsEvent{
		Type: models.EventSessionStarted, UserID: userID, SessionID: session.ID,
		NodeID: session.CurrentNodeID, At: time.Now(),
	})
	slog.Info("FlowManager.StartNewSession: session created", "userID", userID, "sessionID", session.ID, "entryNode", session.CurrentNodeID)
	return f.session, nil
}

// ResumeSession makes a persisted session the managed one, restoring its node
// pointer exactly and emitting a resume event carrying that node ID. When the
// pointer is inconsistent with the response list (crash between the two
// writes on a non-transactional backend) it is re-derived by replay.
func (f *FlowManager) ResumeSession(ctx context.Context, session *models.ConversationSession) error {
	if session == nil {
		return fmt.Errorf("%w: no session to resume", models.ErrSessionNotFound)
	}
	if session.CurrentNodeID != "" {
		if _, ok := f.graph.Node(session.CurrentNodeID); !ok {
			return fmt.Errorf("session %s points at unknown node %q", session.ID, session.CurrentNodeID)
		}
	} else if !session.IsComplete() {
		derived, err := ReplayPointer(f.graph, session)
		if err != nil {
			return err
		}
		if derived == "" {
			// The response list already walks past the terminal node; the
			// crash lost the completion write, not the pointer.
			return f.finalizeReplayedSession(ctx, session)
		}
		slog.Warn("FlowManager.ResumeSession: re-derived node pointer from response list", "sessionID", session.ID, "derived", derived)
		session.CurrentNodeID = derived
	}

	f.session = session
	f.nodeEnteredAt = time.Now()
	f.recorder.Record(ctx, models.AnalyticsEvent{
		Type: models.EventSessionResumed, UserID: session.UserID, SessionID: session.ID,
		NodeID: session.CurrentNodeID, At: time.Now(),
	})
	slog.Info("FlowManager.ResumeSession: session resumed", "sessionID", session.ID, "nodeID", session.CurrentNodeID, "progress", f.Progress())
	return nil
}

// finalizeReplayedSession closes out a session whose replayed response list
// reaches the terminal node, re-committing the completion write that the
// crash lost. The normal completion side effects fire: persisted state,
// events, observers and the synthesis hand-off.
func (f *FlowManager) finalizeReplayedSession(ctx context.Context, session *models.ConversationSession) error {
	now := time.Now()
	session.CurrentNodeID = ""
	session.CompletedAt = &now
	if err := f.store.SaveSession(*session); err != nil {
		slog.Error("FlowManager.finalizeReplayedSession: persist failed", "error", err, "sessionID", session.ID)
		return fmt.Errorf("%w: %v", models.ErrPersistence, err)
	}

	f.session = session
	f.nodeEnteredAt = now
	f.recorder.Record(ctx, models.AnalyticsEvent{
		Type: models.EventSessionResumed, UserID: session.UserID, SessionID: session.ID, At: now,
	})
	f.recorder.Record(ctx, models.AnalyticsEvent{
		Type: models.EventSessionCompleted, UserID: session.UserID, SessionID: session.ID, At: now,
	})
	f.notifyObservers()
	if f.onDone != nil {
		f.onDone(ctx, session)
	}
	slog.Info("FlowManager.finalizeReplayedSession: replayed session finalized", "sessionID", session.ID, "responses", len(session.Responses))
	return nil
}

// SubmitResponse validates the value against the current node, records it,
// advances the node pointer per the branching rules, and persists the session.
// With no current node set it is a true no-op: nothing recorded, no event
// emitted, no state change. A validation failure leaves the pointer untouched.
func (f *FlowManager) SubmitResponse(ctx context.Context, value models.ResponseValue) error {
	node := f.CurrentNode()
	if node == nil {
		slog.Debug("FlowManager.SubmitResponse: no current node, ignoring")
		return nil
	}
	elapsed := time.Since(f.nodeEnteredAt)

	if err := node.ValidateAnswer(value); err != nil {
		slog.Debug("FlowManager.SubmitResponse: validation failed", "sessionID", f.session.ID, "nodeID", node.ID, "error", err)
		f.recorder.Record(ctx, models.AnalyticsEvent{
			Type: models.EventErrorOccurred, UserID: f.session.UserID, SessionID: f.session.ID,
			NodeID: node.ID, Error: err.Error(), At: time.Now(),
		})
		return err
	}

	return f.commitAdvance(ctx, node, value, elapsed, models.EventResponseSubmitted)
}

// SkipCurrentNode records a skip marker for the current node and advances via
// the default sequential branch. Required nodes refuse the skip unless force
// is set. With no current node set it is a no-op.
func (f *FlowManager) SkipCurrentNode(ctx context.Context, force bool) error {
	node := f.CurrentNode()
	if node == nil {
		slog.Debug("FlowManager.SkipCurrentNode: no current node, ignoring")
		return nil
	}
	if node.Validation.Required && !force {
		return fmt.Errorf("%w: node %s", models.ErrNodeRequired, node.ID)
	}
	elapsed := time.Since(f.nodeEnteredAt)
	return f.commitAdvance(ctx, node, models.SkippedValue(), elapsed, models.EventNodeSkipped)
}

// commitAdvance computes the next node, persists response and pointer as one
// logical mutation, and only then mutates in-memory state and notifies.
func (f *FlowManager) commitAdvance(ctx context.Context, node *models.ConversationNode, value models.ResponseValue, elapsed time.Duration, event models.EventType) error {
	nextID, err := f.graph.Next(node.ID, value)
	if err != nil {
		return err
	}

	encoded, err := value.ToJSON()
	if err != nil {
		return err
	}
	response := models.ConversationResponse{
		ID:           uuid.NewString(),
		SessionID:    f.session.ID,
		NodeID:       node.ID,
		ResponseData: encoded,
		CreatedAt:    time.Now(),
	}

	updated := *f.session
	if nextID == models.TerminalNodeID {
		now := time.Now()
		updated.CurrentNodeID = ""
		updated.CompletedAt = &now
	} else {
		updated.CurrentNodeID = nextID
	}

	if err := f.store.CommitResponse(updated, response); err != nil {
		slog.Error("FlowManager.commitAdvance: persist failed", "error", err, "sessionID", f.session.ID, "nodeID", node.ID)
		f.recorder.Record(ctx, models.AnalyticsEvent{
			Type: models.EventErrorOccurred, UserID: f.session.UserID, SessionID: f.session.ID,
			NodeID: node.ID, Error: err.Error(), At: time.Now(),
		})
		return fmt.Errorf("%w: %v", models.ErrPersistence, err)
	}

	updated.Responses = append(f.session.Responses, response)
	f.session = &updated
	f.nodeEnteredAt = time.Now()

	f.recorder.Record(ctx, models.AnalyticsEvent{
		Type: event, UserID: updated.UserID, SessionID: updated.ID,
		NodeID: node.ID, ResponseKind: value.Kind, Elapsed: elapsed, At: time.Now(),
	})
	f.notifyObservers()

	if updated.IsComplete() {
		slog.Info("FlowManager.commitAdvance: session complete", "sessionID", updated.ID, "responses", len(updated.Responses))
		f.recorder.Record(ctx, models.AnalyticsEvent{
			Type: models.EventSessionCompleted, UserID: updated.UserID, SessionID: updated.ID, At: time.Now(),
		})
		if f.onDone != nil {
			f.onDone(ctx, f.session)
		}
	} else {
		slog.Debug("FlowManager.commitAdvance: advanced", "sessionID", updated.ID, "from", node.ID, "to", updated.CurrentNodeID, "progress", f.Progress())
	}
	return nil
}

// Progress returns the completion fraction: index of the node reached over
// the total node count on the primary path. Complete sessions report 1.
func (f *FlowManager) Progress() float64 {
	if f.session == nil {
		return 0
	}
	if f.session.IsComplete() {
		return 1
	}
	idx := f.graph.IndexOf(f.session.CurrentNodeID)
	if idx < 0 {
		return 0
	}
	return float64(idx) / float64(f.graph.Len())
}

// GenerateInsights derives personality-insight signals from the accumulated
// responses. Pure over the session; safe to call any number of times.
func (f *FlowManager) GenerateInsights() models.PersonalityInsights {
	if f.session == nil {
		return models.PersonalityInsights{}
	}
	return InsightsFromSession(f.graph, f.session)
}

func (f *FlowManager) notifyObservers() {
	update := ProgressUpdate{
		SessionID: f.session.ID,
		UserID:    f.session.UserID,
		NodeID:    f.session.CurrentNodeID,
		Fraction:  f.Progress(),
		Completed: f.session.IsComplete(),
	}
	for _, obs := range f.observers {
		obs(update)
	}
}
