package handlers

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const sessionCookie = "lead_session"

// SessionStore holds the one live CSRF token per session. Simple
// in-memory store keyed by the session cookie; in production behind
// multiple replicas, use Redis or similar.
type SessionStore struct {
	mu     sync.Mutex
	tokens map[string]string
}

func NewSessionStore() *SessionStore {
	return &SessionStore{tokens: make(map[string]string)}
}

// Token returns the session's CSRF token, generating one on first use.
func (s *SessionStore) Token(sessionID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if token, ok := s.tokens[sessionID]; ok {
		return token, nil
	}
	token, err := newCSRFToken()
	if err != nil {
		return "", err
	}
	s.tokens[sessionID] = token
	return token, nil
}

// Verify compares the submitted token against the session's live token
// in constant time. A session with no token yet, or an empty submitted
// token, never verifies.
func (s *SessionStore) Verify(sessionID, submitted string) bool {
	s.mu.Lock()
	token, ok := s.tokens[sessionID]
	s.mu.Unlock()

	if !ok || token == "" || submitted == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(submitted)) == 1
}

// Rotate replaces the session's token; the previous one is no longer
// accepted. Called after every accepted submission.
func (s *SessionStore) Rotate(sessionID string) (string, error) {
	token, err := newCSRFToken()
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	s.tokens[sessionID] = token
	s.mu.Unlock()
	return token, nil
}

func newCSRFToken() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

// sessionID reads the visitor's session cookie, minting a new session
// when absent.
func (s *Server) sessionID(c *gin.Context) string {
	if id, err := c.Cookie(sessionCookie); err == nil && id != "" {
		return id
	}
	id := uuid.New().String()
	c.SetCookie(sessionCookie, id, 0, "/", "", false, true)
	return id
}
