package memory

import (
	"context"
	"sync"

	"skillforge/internal/domain"
)

// SessionStore is an in-memory implementation of app.QuizSessionStore.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]domain.QuizSession
}

func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]domain.QuizSession)}
}

func (s *SessionStore) Get(_ context.Context, userID, lessonID string) (domain.QuizSession, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionKey(userID, lessonID)]
	return session, ok, nil
}

func (s *SessionStore) Save(_ context.Context, session domain.QuizSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sessionKey(session.UserID, session.LessonID)] = session
	return nil
}

func (s *SessionStore) Delete(_ context.Context, userID, lessonID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionKey(userID, lessonID))
	return nil
}

func sessionKey(userID, lessonID string) string {
	return userID + ":" + lessonID
}
