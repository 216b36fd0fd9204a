// Package api provides user enrollment and activity handlers for CoachPipe endpoints.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/BTreeMap/CoachPipe/internal/models"
)

// enrollUserHandler handles POST /users
func (s *Server) enrollUserHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.enrollUserHandler: processing enrollment", "method", r.Method, "path", r.URL.Path)

	var req models.EnrollmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.enrollUserHandler: invalid JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := req.Validate(); err != nil {
		slog.Warn("Server.enrollUserHandler: validation failed", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	existing, err := s.findUserByPhone(req.PhoneNumber)
	if err != nil {
		slog.Error("Server.enrollUserHandler: existing-user check failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to check existing user"))
		return
	}
	if existing != nil {
		slog.Warn("Server.enrollUserHandler: user already enrolled", "phone", req.PhoneNumber, "userID", existing.ID)
		writeJSONResponse(w, http.StatusConflict, models.Error("User with this phone number already enrolled"))
		return
	}

	now := time.Now()
	user := models.User{
		ID:              uuid.NewString(),
		Name:            req.Name,
		PhoneNumber:     req.PhoneNumber,
		Timezone:        req.Timezone,
		Status:          models.UserStatusActive,
		AbsenceResponse: req.Absence,
		CreatedAt:       now,
		LastActiveAt:    now,
	}
	if err := s.st.CreateUser(user); err != nil {
		slog.Error("Server.enrollUserHandler: save failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to enroll user"))
		return
	}

	slog.Info("Server.enrollUserHandler: user enrolled", "userID", user.ID)
	writeJSONResponse(w, http.StatusCreated, models.SuccessWithMessage("User enrolled successfully", user))
}

func (s *Server) findUserByPhone(phone string) (*models.User, error) {
	users, err := s.st.ListUsers()
	if err != nil {
		return nil, err
	}
	for i := range users {
		if users[i].PhoneNumber == phone {
			return &users[i], nil
		}
	}
	return nil, nil
}

// getUserHandler handles GET /users/{id}
func (s *Server) getUserHandler(w http.ResponseWriter, r *http.Request) {
	userID := requestUserID(r)
	slog.Debug("Server.getUserHandler: invoked", "userID", userID)

	user, err := s.st.GetUser(userID)
	if err != nil {
		slog.Error("Server.getUserHandler: lookup failed", "error", err, "userID", userID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to get user"))
		return
	}
	if user == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("User not found"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(user))
}

// activityHandler handles POST /users/{id}/activity. The mobile app pings it
// whenever the user does anything meaningful, feeding the lapse detector.
func (s *Server) activityHandler(w http.ResponseWriter, r *http.Request) {
	userID := requestUserID(r)
	slog.Debug("Server.activityHandler: invoked", "userID", userID)

	if err := s.policy.UpdateUserActivity(r.Context(), userID, time.Now()); err != nil {
		status, msg := statusForError(err)
		slog.Warn("Server.activityHandler: update failed", "error", err, "userID", userID)
		writeJSONResponse(w, status, models.Error(msg))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Activity recorded", nil))
}
