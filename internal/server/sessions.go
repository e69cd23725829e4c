package server

import (
	"net/http"
	"sync"

	"github.com/google/uuid"

	"github.com/voxmail/voxmail/internal/metrics"
)

// Session identifies one logged-in browser or CLI client
type Session struct {
	ID       string
	Email    string
	FullName string
}

// SessionStore holds active sessions in memory. Sessions do not survive a
// restart; clients log in again.
type SessionStore struct {
	cookieName string
	metrics    *metrics.Metrics

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewSessionStore creates an empty session store
func NewSessionStore(cookieName string, m *metrics.Metrics) *SessionStore {
	return &SessionStore{
		cookieName: cookieName,
		metrics:    m,
		sessions:   make(map[string]*Session),
	}
}

// Issue creates a session for a user and sets its cookie on the response
func (s *SessionStore) Issue(w http.ResponseWriter, email, fullName string) *Session {
	session := &Session{
		ID:       uuid.New().String(),
		Email:    email,
		FullName: fullName,
	}

	s.mu.Lock()
	s.sessions[session.ID] = session
	count := len(s.sessions)
	s.mu.Unlock()

	s.metrics.SetActiveSessions(count)

	http.SetCookie(w, &http.Cookie{
		Name:     s.cookieName,
		Value:    session.ID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	return session
}

// Get resolves the session referenced by the request cookie
func (s *SessionStore) Get(r *http.Request) (*Session, bool) {
	cookie, err := r.Cookie(s.cookieName)
	if err != nil {
		return nil, false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[cookie.Value]
	return session, ok
}
