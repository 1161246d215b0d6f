// Package session provides the per-sender session registry.
package session

import (
	"log/slog"
	"sync"

	"github.com/mhealthlab/demobot/internal/models"
)

// Store is the injectable session registry abstraction. Implementations must
// guarantee that no two logical identities ever share a session and that Get
// atomically creates a default session on first contact. Creation never fails.
//
// Store guards only its own registry; callers must serialize message
// processing per identity (see messaging.Listener).
type Store interface {
	// Get returns the existing session for the identity, creating a default
	// one if none exists.
	Get(identity string) *models.Session

	// Reset replaces the session wholesale with first-contact defaults.
	Reset(identity string)
}

// MemoryStore is the in-process Store implementation.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*models.Session
}

// NewMemoryStore creates an empty in-memory session registry.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*models.Session)}
}

// Get returns the session for the identity, creating one on first contact.
func (s *MemoryStore) Get(identity string) *models.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[identity]; ok {
		return sess
	}
	sess := models.NewSession(identity)
	s.sessions[identity] = sess
	slog.Debug("MemoryStore.Get: created session", "identity", identity)
	return sess
}

// Reset replaces the identity's session with a fresh default one. The next
// message from the identity is treated as first contact.
func (s *MemoryStore) Reset(identity string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[identity] = models.NewSession(identity)
	slog.Info("MemoryStore.Reset: session replaced", "identity", identity)
}

// Len returns the number of registered sessions.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
