package store

import (
	"sync"
	"time"

	"github.com/AbdalrahmanMG/book-shop/internal/util"
)

type sessionEntry struct {
	userID    int
	expiresAt time.Time
}

// MemorySessionStore keeps sessions in-process with TTL.
type MemorySessionStore struct {
	mu   sync.Mutex
	sess map[string]sessionEntry
	ttl  time.Duration
	now  func() time.Time
}

// NewMemorySessionStore builds an in-memory session store.
func NewMemorySessionStore(ttl time.Duration) *MemorySessionStore {
	return &MemorySessionStore{
		sess: make(map[string]sessionEntry),
		ttl:  ttl,
		now:  time.Now,
	}
}

// NewSession creates an opaque token bound to a user id.
func (s *MemorySessionStore) NewSession(userID int) (string, error) {
	token := util.NewID()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sess[token] = sessionEntry{userID: userID, expiresAt: s.now().Add(s.ttl)}
	return token, nil
}

// GetUserIDByToken resolves a token to the user id it was issued for.
func (s *MemorySessionStore) GetUserIDByToken(token string) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.sess[token]
	if !ok {
		return 0, false, nil
	}
	if s.now().After(entry.expiresAt) {
		delete(s.sess, token)
		return 0, false, nil
	}
	return entry.userID, true, nil
}

// DeleteSession removes a token mapping.
func (s *MemorySessionStore) DeleteSession(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sess, token)
	return nil
}
