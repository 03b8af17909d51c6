// Package session keeps per-session state: the user-supplied service key and
// the current cohort selection. State lives in process memory only and is
// never persisted to disk.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned for unknown session IDs
var ErrNotFound = errors.New("session not found")

// Selection is the cohort the user is currently looking at
type Selection struct {
	District     string  `json:"district,omitempty"`
	Neighborhood string  `json:"neighborhood,omitempty"`
	Complex      string  `json:"complex,omitempty"`
	AreaSqm      float64 `json:"floor_area_sqm,omitempty"`
}

// Session is one user's dashboard state
type Session struct {
	ID         string    `json:"id"`
	ServiceKey string    `json:"-"`
	Selection  Selection `json:"selection"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Store is an in-memory session registry
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewStore creates an empty session store
func NewStore() *Store {
	return &Store{sessions: make(map[string]*Session)}
}

// Create registers a new session, optionally seeded with a service key
func (s *Store) Create(serviceKey string) *Session {
	now := time.Now()
	sess := &Session{
		ID:         uuid.New().String(),
		ServiceKey: serviceKey,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()

	return sess
}

// Get returns a copy of the session with the given ID
func (s *Store) Get(id string) (Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return Session{}, ErrNotFound
	}
	return *sess, nil
}

// SetServiceKey updates the session's service key
func (s *Store) SetServiceKey(id, serviceKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return ErrNotFound
	}
	sess.ServiceKey = serviceKey
	sess.UpdatedAt = time.Now()
	return nil
}

// SetSelection updates the session's cohort selection
func (s *Store) SetSelection(id string, sel Selection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return ErrNotFound
	}
	sess.Selection = sel
	sess.UpdatedAt = time.Now()
	return nil
}
