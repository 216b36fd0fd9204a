// Package api provides persona and profile handlers for CoachPipe endpoints.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/BTreeMap/CoachPipe/internal/conversation"
	"github.com/BTreeMap/CoachPipe/internal/models"
	"github.com/BTreeMap/CoachPipe/internal/persona"
)

// generatePersonaHandler handles POST /users/{id}/persona/generate.
// The persona is returned but not persisted; the client confirms it with a
// separate save call.
func (s *Server) generatePersonaHandler(w http.ResponseWriter, r *http.Request) {
	userID := requestUserID(r)
	slog.Debug("Server.generatePersonaHandler: invoked", "userID", userID)

	session, err := s.sessionForPersona(r, userID)
	if err != nil {
		status, msg := statusForError(err)
		writeJSONResponse(w, status, models.Error(msg))
		return
	}

	p, err := s.personaSvc.GeneratePersona(r.Context(), session)
	if err != nil {
		status, msg := statusForError(err)
		slog.Error("Server.generatePersonaHandler: generation failed", "error", err, "userID", userID)
		writeJSONResponse(w, status, models.Error(msg))
		return
	}

	slog.Info("Server.generatePersonaHandler: persona generated", "userID", userID, "name", p.Name)
	writeJSONResponse(w, http.StatusOK, models.Success(p))
}

// sessionForPersona resolves which session to synthesize from: an explicit
// session_id in the body, otherwise the user's active session.
func (s *Server) sessionForPersona(r *http.Request, userID string) (*models.ConversationSession, error) {
	var req struct {
		SessionID string `json:"session_id"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return nil, models.ErrValidation
		}
	}

	if req.SessionID != "" {
		session, err := s.st.GetSession(req.SessionID)
		if err != nil {
			return nil, err
		}
		if session == nil || session.UserID != userID {
			return nil, models.ErrSessionNotFound
		}
		return session, nil
	}

	session, err := s.st.GetActiveSessionForUser(userID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, models.ErrSessionNotFound
	}
	return session, nil
}

// adjustPersonaHandler handles POST /users/{id}/persona/adjust.
// It adjusts the user's saved persona and returns the result without
// persisting it.
func (s *Server) adjustPersonaHandler(w http.ResponseWriter, r *http.Request) {
	userID := requestUserID(r)
	slog.Debug("Server.adjustPersonaHandler: invoked", "userID", userID)

	var req models.AdjustPersonaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	current, err := s.personaForUser(userID)
	if err != nil {
		status, msg := statusForError(err)
		writeJSONResponse(w, status, models.Error(msg))
		return
	}

	adjusted, err := s.personaSvc.AdjustPersona(r.Context(), current, req.Instruction)
	if err != nil {
		status, msg := statusForError(err)
		slog.Error("Server.adjustPersonaHandler: adjustment failed", "error", err, "userID", userID)
		writeJSONResponse(w, status, models.Error(msg))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(adjusted))
}

// savePersonaHandler handles POST /users/{id}/persona
func (s *Server) savePersonaHandler(w http.ResponseWriter, r *http.Request) {
	userID := requestUserID(r)
	slog.Debug("Server.savePersonaHandler: invoked", "userID", userID)

	var req models.SavePersonaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	p := req.Persona
	if err := s.personaSvc.SavePersona(r.Context(), &p, userID); err != nil {
		status, msg := statusForError(err)
		slog.Error("Server.savePersonaHandler: save failed", "error", err, "userID", userID)
		writeJSONResponse(w, status, models.Error(msg))
		return
	}

	// When the client names the onboarding session, derive and persist the
	// profile alongside the persona.
	if req.SessionID != "" {
		session, err := s.st.GetSession(req.SessionID)
		if err != nil || session == nil || session.UserID != userID {
			slog.Warn("Server.savePersonaHandler: profile session not found", "sessionID", req.SessionID, "userID", userID)
		} else {
			user, _ := s.st.GetUser(userID)
			if err := s.saveProfileFromSession(r.Context(), session, user); err != nil {
				slog.Error("Server.savePersonaHandler: profile save failed", "error", err, "userID", userID)
			}
		}
	}

	slog.Info("Server.savePersonaHandler: persona saved", "userID", userID, "personaID", p.ID)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Persona saved successfully", p))
}

// saveProfileFromSession composes the profile blob from a session and
// persists it for the user.
func (s *Server) saveProfileFromSession(ctx context.Context, session *models.ConversationSession, user *models.User) error {
	data := s.personaSvc.Synthesizer().ExtractConversationData(session)
	insights := conversation.InsightsFromSession(s.graph, session)
	blob := persona.ComposeProfileBlob(data, insights, user)
	return s.personaSvc.SaveProfileBlob(ctx, session.UserID, blob)
}

// getPersonaHandler handles GET /users/{id}/persona
func (s *Server) getPersonaHandler(w http.ResponseWriter, r *http.Request) {
	userID := requestUserID(r)
	slog.Debug("Server.getPersonaHandler: invoked", "userID", userID)

	p, err := s.personaForUser(userID)
	if err != nil {
		status, msg := statusForError(err)
		writeJSONResponse(w, status, models.Error(msg))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(p))
}

// personaForUser loads the saved persona linked to a user.
func (s *Server) personaForUser(userID string) (*models.CoachPersona, error) {
	user, err := s.st.GetUser(userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, models.ErrUserNotFound
	}
	if user.PersonaID == "" {
		return nil, models.ErrPersonaNotFound
	}
	p, err := s.st.GetPersona(user.PersonaID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, models.ErrPersonaNotFound
	}
	return p, nil
}

// getProfileHandler handles GET /users/{id}/profile
func (s *Server) getProfileHandler(w http.ResponseWriter, r *http.Request) {
	userID := requestUserID(r)
	slog.Debug("Server.getProfileHandler: invoked", "userID", userID)

	blob, err := s.personaSvc.GetProfileBlob(r.Context(), userID)
	if err != nil {
		status, msg := statusForError(err)
		writeJSONResponse(w, status, models.Error(msg))
		return
	}
	if blob == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Profile not found"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(blob))
}
