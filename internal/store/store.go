// Package store provides storage backends for CoachPipe.
//
// It defines the persistence collaborator used by the conversation flow
// manager, the persona service and the engagement policy, with in-memory,
// SQLite and PostgreSQL implementations.
package store

import (
	"sort"
	"sync"
	"time"

	"github.com/BTreeMap/CoachPipe/internal/models"
)

// Store is the persistence boundary for users, sessions, responses, personas
// and profile blobs. All mutating methods persist the full record they are
// given; CommitResponse writes the response and the session pointer as one
// logical mutation.
type Store interface {
	// Users
	CreateUser(u models.User) error
	GetUser(id string) (*models.User, error)
	SaveUser(u models.User) error
	ListUsers() ([]models.User, error)
	GetMostRecentUser() (*models.User, error)
	ListUsersInactiveSince(cutoff time.Time) ([]models.User, error)

	// Sessions and responses
	CreateSession(s models.ConversationSession) error
	GetSession(id string) (*models.ConversationSession, error)
	GetActiveSessionForUser(userID string) (*models.ConversationSession, error)
	SaveSession(s models.ConversationSession) error
	CommitResponse(s models.ConversationSession, r models.ConversationResponse) error

	// Personas
	SavePersona(p models.CoachPersona) error
	GetPersona(id string) (*models.CoachPersona, error)

	// Profile blobs (snake_case JSON, see models.ProfileBlob)
	SaveProfileBlob(userID string, blob []byte) error
	GetProfileBlob(userID string) ([]byte, error)

	Close() error
}

// InMemoryStore is a map-backed Store used in tests and local development.
type InMemoryStore struct {
	mu        sync.RWMutex
	users     map[string]models.User
	sessions  map[string]models.ConversationSession
	responses map[string][]models.ConversationResponse // keyed by session ID
	personas  map[string]models.CoachPersona
	blobs     map[string][]byte
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		users:     make(map[string]models.User),
		sessions:  make(map[string]models.ConversationSession),
		responses: make(map[string][]models.ConversationResponse),
		personas:  make(map[string]models.CoachPersona),
		blobs:     make(map[string][]byte),
	}
}

// CreateUser stores a new user record.
func (s *InMemoryStore) CreateUser(u models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
	return nil
}

// GetUser fetches a user by ID. Returns nil without error when absent.
func (s *InMemoryStore) GetUser(id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

// SaveUser overwrites a user record.
func (s *InMemoryStore) SaveUser(u models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
	return nil
}

// ListUsers returns all users ordered by creation time.
func (s *InMemoryStore) ListUsers() ([]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := make([]models.User, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].CreatedAt.Before(users[j].CreatedAt) })
	return users, nil
}

// GetMostRecentUser returns the most recently created user, or nil when none exist.
func (s *InMemoryStore) GetMostRecentUser() (*models.User, error) {
	users, err := s.ListUsers()
	if err != nil || len(users) == 0 {
		return nil, err
	}
	u := users[len(users)-1]
	return &u, nil
}

// ListUsersInactiveSince returns active users whose LastActiveAt is strictly
// before the cutoff.
func (s *InMemoryStore) ListUsersInactiveSince(cutoff time.Time) ([]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var lapsed []models.User
	for _, u := range s.users {
		if u.Status == models.UserStatusActive && u.LastActiveAt.Before(cutoff) {
			lapsed = append(lapsed, u)
		}
	}
	sort.Slice(lapsed, func(i, j int) bool { return lapsed[i].LastActiveAt.Before(lapsed[j].LastActiveAt) })
	return lapsed, nil
}

// CreateSession stores a new session record.
func (s *InMemoryStore) CreateSession(sess models.ConversationSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess.Responses = nil // responses live in their own collection
	s.sessions[sess.ID] = sess
	return nil
}

// GetSession fetches a session with its responses in creation order. Returns
// nil without error when absent.
func (s *InMemoryStore) GetSession(id string) (*models.ConversationSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, nil
	}
	sess.Responses = append([]models.ConversationResponse(nil), s.responses[id]...)
	return &sess, nil
}

// GetActiveSessionForUser fetches the single non-completed session for a user,
// or nil when the user has none.
func (s *InMemoryStore) GetActiveSessionForUser(userID string) (*models.ConversationSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for id, sess := range s.sessions {
		if sess.UserID == userID && sess.CompletedAt == nil {
			sess.Responses = append([]models.ConversationResponse(nil), s.responses[id]...)
			return &sess, nil
		}
	}
	return nil, nil
}

// SaveSession overwrites the session record (pointer, completion state).
func (s *InMemoryStore) SaveSession(sess models.ConversationSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess.Responses = nil
	s.sessions[sess.ID] = sess
	return nil
}

// CommitResponse appends the response and saves the session in one step.
func (s *InMemoryStore) CommitResponse(sess models.ConversationSession, r models.ConversationResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses[r.SessionID] = append(s.responses[r.SessionID], r)
	sess.Responses = nil
	s.sessions[sess.ID] = sess
	return nil
}

// SavePersona creates or overwrites a persona by ID.
func (s *InMemoryStore) SavePersona(p models.CoachPersona) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.personas[p.ID] = p
	return nil
}

// GetPersona fetches a persona by ID. Returns nil without error when absent.
func (s *InMemoryStore) GetPersona(id string) (*models.CoachPersona, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.personas[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

// SaveProfileBlob stores the encoded profile blob for a user.
func (s *InMemoryStore) SaveProfileBlob(userID string, blob []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[userID] = append([]byte(nil), blob...)
	return nil
}

// GetProfileBlob fetches the encoded profile blob for a user, nil when absent.
func (s *InMemoryStore) GetProfileBlob(userID string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	blob, ok := s.blobs[userID]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), blob...), nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error { return nil }
