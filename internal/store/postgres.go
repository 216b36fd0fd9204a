// Package store provides storage backends for CoachPipe.
//
// This file implements the PostgreSQL-backed store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/BTreeMap/CoachPipe/internal/models"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants.
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database.
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool.
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused.
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore is a PostgreSQL-backed Store for shared deployments.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating store", "DSN_set", cfg.DSN != "")
	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}
	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run Postgres migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("PostgresStore ready")
	return &PostgresStore{db: db}, nil
}

// CreateUser inserts a new user row.
func (s *PostgresStore) CreateUser(u models.User) error {
	_, err := s.db.Exec(
		`INSERT INTO users (id, name, phone_number, timezone, status, absence_response, profile_complete, persona_id, created_at, last_active_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		u.ID, nilIfEmpty(u.Name), nilIfEmpty(u.PhoneNumber), nilIfEmpty(u.Timezone), u.Status,
		nilIfEmpty(string(u.AbsenceResponse)), u.ProfileComplete, nilIfEmpty(u.PersonaID), u.CreatedAt, u.LastActiveAt,
	)
	if err != nil {
		slog.Error("PostgresStore.CreateUser failed", "error", err, "userID", u.ID)
		return fmt.Errorf("failed to insert user %s: %w", u.ID, err)
	}
	return nil
}

// GetUser fetches a user by ID, nil when absent.
func (s *PostgresStore) GetUser(id string) (*models.User, error) {
	row := s.db.QueryRow(`SELECT id, name, phone_number, timezone, status, absence_response, profile_complete, persona_id, created_at, last_active_at FROM users WHERE id = $1`, id)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore.GetUser failed", "error", err, "userID", id)
		return nil, fmt.Errorf("failed to query user %s: %w", id, err)
	}
	return &u, nil
}

// SaveUser overwrites a user row.
func (s *PostgresStore) SaveUser(u models.User) error {
	_, err := s.db.Exec(
		`UPDATE users SET name = $1, phone_number = $2, timezone = $3, status = $4, absence_response = $5, profile_complete = $6, persona_id = $7, last_active_at = $8 WHERE id = $9`,
		nilIfEmpty(u.Name), nilIfEmpty(u.PhoneNumber), nilIfEmpty(u.Timezone), u.Status,
		nilIfEmpty(string(u.AbsenceResponse)), u.ProfileComplete, nilIfEmpty(u.PersonaID), u.LastActiveAt, u.ID,
	)
	if err != nil {
		slog.Error("PostgresStore.SaveUser failed", "error", err, "userID", u.ID)
		return fmt.Errorf("failed to update user %s: %w", u.ID, err)
	}
	return nil
}

// ListUsers returns all users ordered by creation time.
func (s *PostgresStore) ListUsers() ([]models.User, error) {
	rows, err := s.db.Query(`SELECT id, name, phone_number, timezone, status, absence_response, profile_complete, persona_id, created_at, last_active_at FROM users ORDER BY created_at`)
	if err != nil {
		slog.Error("PostgresStore.ListUsers query failed", "error", err)
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
func (s *PostgresStore) GetMostRecentUser() (*models.User, error) {
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
func (s *PostgresStore) ListUsersInactiveSince(cutoff time.Time) ([]models.User, error) {
	rows, err := s.db.Query(
		`SELECT id, name, phone_number, timezone, status, absence_response, profile_complete, persona_id, created_at, last_active_at
		 FROM users WHERE status = $1 AND last_active_at < $2 ORDER BY last_active_at`,
		models.UserStatusActive, cutoff,
	)
	if err != nil {
		slog.Error("PostgresStore.ListUsersInactiveSince query failed", "error", err)
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
func (s *PostgresStore) CreateSession(sess models.ConversationSession) error {
	_, err := s.db.Exec(
		`INSERT INTO sessions (id, user_id, current_node_id, started_at, completed_at) VALUES ($1, $2, $3, $4, $5)`,
		sess.ID, sess.UserID, nilIfEmpty(sess.CurrentNodeID), sess.StartedAt, sess.CompletedAt,
	)
	if err != nil {
		slog.Error("PostgresStore.CreateSession failed", "error", err, "sessionID", sess.ID)
		return fmt.Errorf("failed to insert session %s: %w", sess.ID, err)
	}
	return nil
}

// GetSession fetches a session with its responses in creation order, nil when absent.
func (s *PostgresStore) GetSession(id string) (*models.ConversationSession, error) {
	row := s.db.QueryRow(`SELECT id, user_id, current_node_id, started_at, completed_at FROM sessions WHERE id = $1`, id)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore.GetSession failed", "error", err, "sessionID", id)
		return nil, fmt.Errorf("failed to query session %s: %w", id, err)
	}
	if err := s.loadResponses(&sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// GetActiveSessionForUser fetches the single non-completed session for a user.
func (s *PostgresStore) GetActiveSessionForUser(userID string) (*models.ConversationSession, error) {
	row := s.db.QueryRow(`SELECT id, user_id, current_node_id, started_at, completed_at FROM sessions WHERE user_id = $1 AND completed_at IS NULL LIMIT 1`, userID)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore.GetActiveSessionForUser failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query active session for %s: %w", userID, err)
	}
	if err := s.loadResponses(&sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *PostgresStore) loadResponses(sess *models.ConversationSession) error {
	rows, err := s.db.Query(`SELECT id, session_id, node_id, response_data, created_at FROM responses WHERE session_id = $1 ORDER BY created_at, id`, sess.ID)
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
func (s *PostgresStore) SaveSession(sess models.ConversationSession) error {
	_, err := s.db.Exec(
		`UPDATE sessions SET current_node_id = $1, completed_at = $2 WHERE id = $3`,
		nilIfEmpty(sess.CurrentNodeID), sess.CompletedAt, sess.ID,
	)
	if err != nil {
		slog.Error("PostgresStore.SaveSession failed", "error", err, "sessionID", sess.ID)
		return fmt.Errorf("failed to update session %s: %w", sess.ID, err)
	}
	return nil
}

// CommitResponse writes the response row and the session pointer in one
// transaction so a crash cannot separate them.
func (s *PostgresStore) CommitResponse(sess models.ConversationSession, r models.ConversationResponse) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`INSERT INTO responses (id, session_id, node_id, response_data, created_at) VALUES ($1, $2, $3, $4, $5)`,
		r.ID, r.SessionID, r.NodeID, r.ResponseData, r.CreatedAt,
	); err != nil {
		slog.Error("PostgresStore.CommitResponse insert failed", "error", err, "sessionID", sess.ID, "nodeID", r.NodeID)
		return fmt.Errorf("failed to insert response for session %s: %w", sess.ID, err)
	}
	if _, err := tx.Exec(
		`UPDATE sessions SET current_node_id = $1, completed_at = $2 WHERE id = $3`,
		nilIfEmpty(sess.CurrentNodeID), sess.CompletedAt, sess.ID,
	); err != nil {
		slog.Error("PostgresStore.CommitResponse update failed", "error", err, "sessionID", sess.ID)
		return fmt.Errorf("failed to update session %s: %w", sess.ID, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit response transaction: %w", err)
	}
	return nil
}

// SavePersona creates or overwrites a persona row, payload stored as JSON.
func (s *PostgresStore) SavePersona(p models.CoachPersona) error {
	payload, err := p.ToJSON()
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		`INSERT INTO personas (id, payload, updated_at) VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO UPDATE SET payload = EXCLUDED.payload, updated_at = EXCLUDED.updated_at`,
		p.ID, payload, p.UpdatedAt,
	)
	if err != nil {
		slog.Error("PostgresStore.SavePersona failed", "error", err, "personaID", p.ID)
		return fmt.Errorf("failed to save persona %s: %w", p.ID, err)
	}
	return nil
}

// GetPersona fetches a persona by ID, nil when absent.
func (s *PostgresStore) GetPersona(id string) (*models.CoachPersona, error) {
	var payload string
	err := s.db.QueryRow(`SELECT payload FROM personas WHERE id = $1`, id).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore.GetPersona failed", "error", err, "personaID", id)
		return nil, fmt.Errorf("failed to query persona %s: %w", id, err)
	}
	return models.PersonaFromJSON(payload)
}

// SaveProfileBlob stores the encoded profile blob for a user.
func (s *PostgresStore) SaveProfileBlob(userID string, blob []byte) error {
	_, err := s.db.Exec(
		`INSERT INTO profile_blobs (user_id, blob, updated_at) VALUES ($1, $2, $3)
		 ON CONFLICT (user_id) DO UPDATE SET blob = EXCLUDED.blob, updated_at = EXCLUDED.updated_at`,
		userID, string(blob), time.Now(),
	)
	if err != nil {
		slog.Error("PostgresStore.SaveProfileBlob failed", "error", err, "userID", userID)
		return fmt.Errorf("failed to save profile blob for %s: %w", userID, err)
	}
	return nil
}

// GetProfileBlob fetches the encoded profile blob for a user, nil when absent.
func (s *PostgresStore) GetProfileBlob(userID string) ([]byte, error) {
	var blob string
	err := s.db.QueryRow(`SELECT blob FROM profile_blobs WHERE user_id = $1`, userID).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query profile blob for %s: %w", userID, err)
	}
	return []byte(blob), nil
}

// Close closes the underlying database handle.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
