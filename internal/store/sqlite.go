// Package store provides storage backends for CoachPipe.
//
// This file implements the SQLite-backed store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/BTreeMap/CoachPipe/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions defines the default permissions for database directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore is a file-backed Store suitable for single-node deployments.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN is a file path to the database file; the parent directory is
// created if it does not exist.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("SQLiteStore.NewSQLiteStore: opening store", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run SQLite migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLiteStore ready", "dir", dir)
	return &SQLiteStore{db: db}, nil
}

// CreateUser inserts a new user row.
func (s *SQLiteStore) CreateUser(u models.User) error {
	_, err := s.db.Exec(
		`INSERT INTO users (id, name, phone_number, timezone, status, absence_response, profile_complete, persona_id, created_at, last_active_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, nilIfEmpty(u.Name), nilIfEmpty(u.PhoneNumber), nilIfEmpty(u.Timezone), u.Status,
		nilIfEmpty(string(u.AbsenceResponse)), u.ProfileComplete, nilIfEmpty(u.PersonaID), u.CreatedAt, u.LastActiveAt,
	)
	if err != nil {
		slog.Error("SQLiteStore.CreateUser failed", "error", err, "userID", u.ID)
		return fmt.Errorf("failed to insert user %s: %w", u.ID, err)
	}
	slog.Debug("SQLiteStore.CreateUser succeeded", "userID", u.ID)
	return nil
}

// GetUser fetches a user by ID, nil when absent.
func (s *SQLiteStore) GetUser(id string) (*models.User, error) {
	row := s.db.QueryRow(`SELECT id, name, phone_number, timezone, status, absence_response, profile_complete, persona_id, created_at, last_active_at FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore.GetUser failed", "error", err, "userID", id)
		return nil, fmt.Errorf("failed to query user %s: %w", id, err)
	}
	return &u, nil
}

// SaveUser overwrites a user row.
func (s *SQLiteStore) SaveUser(u models.User) error {
	_, err := s.db.Exec(
		`UPDATE users SET name = ?, phone_number = ?, timezone = ?, status = ?, absence_response = ?, profile_complete = ?, persona_id = ?, last_active_at = ? WHERE id = ?`,
		nilIfEmpty(u.Name), nilIfEmpty(u.PhoneNumber), nilIfEmpty(u.Timezone), u.Status,
		nilIfEmpty(string(u.AbsenceResponse)), u.ProfileComplete, nilIfEmpty(u.PersonaID), u.LastActiveAt, u.ID,
	)
	if err != nil {
		slog.Error("SQLiteStore.SaveUser failed", "error", err, "userID", u.ID)
		return fmt.Errorf("failed to update user %s: %w", u.ID, err)
	}
	return nil
}

// ListUsers returns all users ordered by creation time.
func (s *SQLiteStore) ListUsers() ([]models.User, error) {
	rows, err := s.db.Query(`SELECT id, name, phone_number, timezone, status, absence_response, profile_complete, persona_id, created_at, last_active_at FROM users ORDER BY created_at`)
	if err != nil {
		slog.Error("SQLiteStore.ListUsers query failed", "error", err)
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()
	var users []models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user row: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate user rows: %w", err)
	}
	return users, nil
}

// GetMostRecentUser returns the most recently created user, nil when none exist.
func (s *SQLiteStore) GetMostRecentUser() (*models.User, error) {
	row := s.db.QueryRow(`SELECT id, name, phone_number, timezone, status, absence_response, profile_complete, persona_id, created_at, last_active_at FROM users ORDER BY created_at DESC LIMIT 1`)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query most recent user: %w", err)
	}
	return &u, nil
}

// ListUsersInactiveSince returns active users whose last activity predates the cutoff.
func (s *SQLiteStore) ListUsersInactiveSince(cutoff time.Time) ([]models.User, error) {
	rows, err := s.db.Query(
		`SELECT id, name, phone_number, timezone, status, absence_response, profile_complete, persona_id, created_at, last_active_at
		 FROM users WHERE status = ? AND last_active_at < ? ORDER BY last_active_at`,
		models.UserStatusActive, cutoff,
	)
	if err != nil {
		slog.Error("SQLiteStore.ListUsersInactiveSince query failed", "error", err)
		return nil, fmt.Errorf("failed to query inactive users: %w", err)
	}
	defer rows.Close()
	var users []models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user row: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate user rows: %w", err)
	}
	return users, nil
}

// CreateSession inserts a new session row.
func (s *SQLiteStore) CreateSession(sess models.ConversationSession) error {
	_, err := s.db.Exec(
		`INSERT INTO sessions (id, user_id, current_node_id, started_at, completed_at) VALUES (?, ?, ?, ?, ?)`,
		sess.ID, sess.UserID, nilIfEmpty(sess.CurrentNodeID), sess.StartedAt, sess.CompletedAt,
	)
	if err != nil {
		slog.Error("SQLiteStore.CreateSession failed", "error", err, "sessionID", sess.ID)
		return fmt.Errorf("failed to insert session %s: %w", sess.ID, err)
	}
	slog.Debug("SQLiteStore.CreateSession succeeded", "sessionID", sess.ID, "userID", sess.UserID)
	return nil
}

// GetSession fetches a session with its responses in creation order, nil when absent.
func (s *SQLiteStore) GetSession(id string) (*models.ConversationSession, error) {
	row := s.db.QueryRow(`SELECT id, user_id, current_node_id, started_at, completed_at FROM sessions WHERE id = ?`, id)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore.GetSession failed", "error", err, "sessionID", id)
		return nil, fmt.Errorf("failed to query session %s: %w", id, err)
	}
	if err := s.loadResponses(&sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// GetActiveSessionForUser fetches the single non-completed session for a user.
func (s *SQLiteStore) GetActiveSessionForUser(userID string) (*models.ConversationSession, error) {
	row := s.db.QueryRow(`SELECT id, user_id, current_node_id, started_at, completed_at FROM sessions WHERE user_id = ? AND completed_at IS NULL LIMIT 1`, userID)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore.GetActiveSessionForUser failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query active session for %s: %w", userID, err)
	}
	if err := s.loadResponses(&sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *SQLiteStore) loadResponses(sess *models.ConversationSession) error {
	rows, err := s.db.Query(`SELECT id, session_id, node_id, response_data, created_at FROM responses WHERE session_id = ? ORDER BY created_at, id`, sess.ID)
	if err != nil {
		return fmt.Errorf("failed to query responses for session %s: %w", sess.ID, err)
	}
	responses, err := collectResponses(rows)
	if err != nil {
		return err
	}
	sess.Responses = responses
	return nil
}

// SaveSession overwrites the session pointer and completion state.
func (s *SQLiteStore) SaveSession(sess models.ConversationSession) error {
	_, err := s.db.Exec(
		`UPDATE sessions SET current_node_id = ?, completed_at = ? WHERE id = ?`,
		nilIfEmpty(sess.CurrentNodeID), sess.CompletedAt, sess.ID,
	)
	if err != nil {
		slog.Error("SQLiteStore.SaveSession failed", "error", err, "sessionID", sess.ID)
		return fmt.Errorf("failed to update session %s: %w", sess.ID, err)
	}
	return nil
}

// CommitResponse writes the response row and the session pointer in one
// transaction so a crash cannot separate them.
func (s *SQLiteStore) CommitResponse(sess models.ConversationSession, r models.ConversationResponse) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`INSERT INTO responses (id, session_id, node_id, response_data, created_at) VALUES (?, ?, ?, ?, ?)`,
		r.ID, r.SessionID, r.NodeID, r.ResponseData, r.CreatedAt,
	); err != nil {
		slog.Error("SQLiteStore.CommitResponse insert failed", "error", err, "sessionID", sess.ID, "nodeID", r.NodeID)
		return fmt.Errorf("failed to insert response for session %s: %w", sess.ID, err)
	}
	if _, err := tx.Exec(
		`UPDATE sessions SET current_node_id = ?, completed_at = ? WHERE id = ?`,
		nilIfEmpty(sess.CurrentNodeID), sess.CompletedAt, sess.ID,
	); err != nil {
		slog.Error("SQLiteStore.CommitResponse update failed", "error", err, "sessionID", sess.ID)
		return fmt.Errorf("failed to update session %s: %w", sess.ID, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit response transaction: %w", err)
	}
	slog.Debug("SQLiteStore.CommitResponse succeeded", "sessionID", sess.ID, "nodeID", r.NodeID)
	return nil
}

// SavePersona creates or overwrites a persona row, payload stored as JSON.
func (s *SQLiteStore) SavePersona(p models.CoachPersona) error {
	payload, err := p.ToJSON()
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		`INSERT INTO personas (id, payload, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		p.ID, payload, p.UpdatedAt,
	)
	if err != nil {
		slog.Error("SQLiteStore.SavePersona failed", "error", err, "personaID", p.ID)
		return fmt.Errorf("failed to save persona %s: %w", p.ID, err)
	}
	return nil
}

// GetPersona fetches a persona by ID, nil when absent.
func (s *SQLiteStore) GetPersona(id string) (*models.CoachPersona, error) {
	var payload string
	err := s.db.QueryRow(`SELECT payload FROM personas WHERE id = ?`, id).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore.GetPersona failed", "error", err, "personaID", id)
		return nil, fmt.Errorf("failed to query persona %s: %w", id, err)
	}
	return models.PersonaFromJSON(payload)
}

// SaveProfileBlob stores the encoded profile blob for a user.
func (s *SQLiteStore) SaveProfileBlob(userID string, blob []byte) error {
	_, err := s.db.Exec(
		`INSERT INTO profile_blobs (user_id, blob, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET blob = excluded.blob, updated_at = excluded.updated_at`,
		userID, string(blob), time.Now(),
	)
	if err != nil {
		slog.Error("SQLiteStore.SaveProfileBlob failed", "error", err, "userID", userID)
		return fmt.Errorf("failed to save profile blob for %s: %w", userID, err)
	}
	return nil
}

// GetProfileBlob fetches the encoded profile blob for a user, nil when absent.
func (s *SQLiteStore) GetProfileBlob(userID string) ([]byte, error) {
	var blob string
	err := s.db.QueryRow(`SELECT blob FROM profile_blobs WHERE user_id = ?`, userID).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query profile blob for %s: %w", userID, err)
	}
	return []byte(blob), nil
}

// Close closes the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
