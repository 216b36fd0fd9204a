// Package api provides onboarding session handlers for CoachPipe endpoints.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/BTreeMap/CoachPipe/internal/conversation"
	"github.com/BTreeMap/CoachPipe/internal/models"
)

// sessionState is the API view of an onboarding session: the session record,
// the question to show next, and overall progress.
type sessionState struct {
	Session     *models.ConversationSession `json:"session"`
	CurrentNode *models.ConversationNode    `json:"current_node,omitempty"`
	Progress    float64                     `json:"progress"`
}

func stateFrom(fm *conversation.FlowManager) sessionState {
	return sessionState{
		Session:     fm.Session(),
		CurrentNode: fm.CurrentNode(),
		Progress:    fm.Progress(),
	}
}

// newFlowManager builds a flow manager with the completion pipeline attached.
func (s *Server) newFlowManager() *conversation.FlowManager {
	fm := conversation.NewFlowManager(s.st, s.graph, s.recorder)
	fm.SetCompletionHandler(s.onSessionComplete)
	return fm
}

// resumeManager loads the user's active session into a flow manager.
func (s *Server) resumeManager(ctx context.Context, userID string) (*conversation.FlowManager, error) {
	session, err := s.st.GetActiveSessionForUser(userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrPersistence, err)
	}
	if session == nil {
		return nil, fmt.Errorf("%w: no active session for user %s", models.ErrSessionNotFound, userID)
	}
	fm := s.newFlowManager()
	if err := fm.ResumeSession(ctx, session); err != nil {
		return nil, err
	}
	return fm, nil
}

// onSessionComplete runs the persona pipeline when onboarding finishes:
// synthesize, persist the persona, and write the profile blob. Failures are
// logged; the completed session itself is already committed.
func (s *Server) onSessionComplete(ctx context.Context, session *models.ConversationSession) {
	slog.Info("Server.onSessionComplete: onboarding finished", "sessionID", session.ID, "userID", session.UserID)

	p, err := s.personaSvc.GeneratePersona(ctx, session)
	if err != nil {
		slog.Error("Server.onSessionComplete: persona generation failed", "sessionID", session.ID, "error", err)
		return
	}
	if err := s.personaSvc.SavePersona(ctx, p, session.UserID); err != nil {
		slog.Error("Server.onSessionComplete: persona save failed", "sessionID", session.ID, "error", err)
		return
	}

	user, err := s.st.GetUser(session.UserID)
	if err != nil {
		slog.Error("Server.onSessionComplete: user load failed", "userID", session.UserID, "error", err)
		return
	}
	if user != nil {
		s.applyAbsencePreference(session, user)
	}
	if err := s.saveProfileFromSession(ctx, session, user); err != nil {
		slog.Error("Server.onSessionComplete: profile save failed", "sessionID", session.ID, "error", err)
	}
}

// applyAbsencePreference copies the onboarding absence answer onto the user
// record so the engagement policy can honor it without replaying sessions.
func (s *Server) applyAbsencePreference(session *models.ConversationSession, user *models.User) {
	data := s.personaSvc.Synthesizer().ExtractConversationData(session)
	fv, ok := data.Fields[models.DataKeyAbsenceResponse]
	if !ok {
		return
	}
	pref := models.AbsencePreference(fv.AsString())
	switch pref {
	case models.AbsenceCheckIn, models.AbsenceGentleReminder, models.AbsenceGiveMeSpace:
	default:
		return
	}
	user.AbsenceResponse = pref
	if err := s.st.SaveUser(*user); err != nil {
		slog.Warn("Server.applyAbsencePreference: save failed", "userID", user.ID, "error", err)
	}
}

// startSessionHandler handles POST /users/{id}/session
func (s *Server) startSessionHandler(w http.ResponseWriter, r *http.Request) {
	userID := requestUserID(r)
	slog.Debug("Server.startSessionHandler: invoked", "userID", userID)

	user, err := s.st.GetUser(userID)
	if err != nil {
		slog.Error("Server.startSessionHandler: user lookup failed", "error", err, "userID", userID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to look up user"))
		return
	}
	if user == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("User not found"))
		return
	}

	fm := s.newFlowManager()
	if _, err := fm.StartNewSession(r.Context(), userID); err != nil {
		status, msg := statusForError(err)
		slog.Error("Server.startSessionHandler: start failed", "error", err, "userID", userID)
		writeJSONResponse(w, status, models.Error(msg))
		return
	}

	slog.Info("Server.startSessionHandler: session ready", "userID", userID, "sessionID", fm.Session().ID)
	writeJSONResponse(w, http.StatusOK, models.Success(stateFrom(fm)))
}

// getSessionStateHandler handles GET /users/{id}/session
func (s *Server) getSessionStateHandler(w http.ResponseWriter, r *http.Request) {
	userID := requestUserID(r)
	slog.Debug("Server.getSessionStateHandler: invoked", "userID", userID)

	fm, err := s.resumeManager(r.Context(), userID)
	if err != nil {
		status, msg := statusForError(err)
		writeJSONResponse(w, status, models.Error(msg))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(stateFrom(fm)))
}

// submitResponseHandler handles POST /users/{id}/session/responses
func (s *Server) submitResponseHandler(w http.ResponseWriter, r *http.Request) {
	userID := requestUserID(r)
	slog.Debug("Server.submitResponseHandler: invoked", "userID", userID)

	var req models.SubmitResponseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.submitResponseHandler: invalid JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	fm, err := s.resumeManager(r.Context(), userID)
	if err != nil {
		status, msg := statusForError(err)
		writeJSONResponse(w, status, models.Error(msg))
		return
	}

	if err := fm.SubmitResponse(r.Context(), req.Value); err != nil {
		status, msg := statusForError(err)
		slog.Warn("Server.submitResponseHandler: submit failed", "error", err, "userID", userID)
		writeJSONResponse(w, status, models.Error(msg))
		return
	}

	if err := s.policy.UpdateUserActivity(r.Context(), userID, time.Now()); err != nil {
		slog.Warn("Server.submitResponseHandler: activity update failed", "error", err, "userID", userID)
	}

	writeJSONResponse(w, http.StatusOK, models.Success(stateFrom(fm)))
}

// skipResponseHandler handles POST /users/{id}/session/skip
func (s *Server) skipResponseHandler(w http.ResponseWriter, r *http.Request) {
	userID := requestUserID(r)
	slog.Debug("Server.skipResponseHandler: invoked", "userID", userID)

	var req models.SkipRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			slog.Warn("Server.skipResponseHandler: invalid JSON", "error", err)
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
			return
		}
	}

	fm, err := s.resumeManager(r.Context(), userID)
	if err != nil {
		status, msg := statusForError(err)
		writeJSONResponse(w, status, models.Error(msg))
		return
	}

	if err := fm.SkipCurrentNode(r.Context(), req.Force); err != nil {
		status, msg := statusForError(err)
		slog.Warn("Server.skipResponseHandler: skip failed", "error", err, "userID", userID)
		writeJSONResponse(w, status, models.Error(msg))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(stateFrom(fm)))
}
