package store

import (
	"database/sql"
	"fmt"

	"github.com/BTreeMap/CoachPipe/internal/models"
)

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanUser scans a User from a row or rows cursor.
func scanUser(row rowScanner) (models.User, error) {
	var u models.User
	var name, phone, timezone, absence, personaID sql.NullString
	err := row.Scan(
		&u.ID, &name, &phone, &timezone, &u.Status, &absence,
		&u.ProfileComplete, &personaID, &u.CreatedAt, &u.LastActiveAt,
	)
	if err != nil {
		return u, err
	}
	u.Name = name.String
	u.PhoneNumber = phone.String
	u.Timezone = timezone.String
	u.AbsenceResponse = models.AbsencePreference(absence.String)
	u.PersonaID = personaID.String
	return u, nil
}

// scanSession scans a ConversationSession (without responses).
func scanSession(row rowScanner) (models.ConversationSession, error) {
	var s models.ConversationSession
	var currentNode sql.NullString
	var completedAt sql.NullTime
	err := row.Scan(&s.ID, &s.UserID, &currentNode, &s.StartedAt, &completedAt)
	if err != nil {
		return s, err
	}
	s.CurrentNodeID = currentNode.String
	if completedAt.Valid {
		t := completedAt.Time
		s.CompletedAt = &t
	}
	return s, nil
}

// scanResponse scans a ConversationResponse.
func scanResponse(row rowScanner) (models.ConversationResponse, error) {
	var r models.ConversationResponse
	err := row.Scan(&r.ID, &r.SessionID, &r.NodeID, &r.ResponseData, &r.CreatedAt)
	if err != nil {
		return r, fmt.Errorf("scan response failed: %w", err)
	}
	return r, nil
}

// collectResponses drains a rows cursor of responses.
func collectResponses(rows *sql.Rows) ([]models.ConversationResponse, error) {
	defer rows.Close()
	var responses []models.ConversationResponse
	for rows.Next() {
		r, err := scanResponse(rows)
		if err != nil {
			return nil, err
		}
		responses = append(responses, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate response rows failed: %w", err)
	}
	return responses, nil
}
