package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"skillforge/internal/domain"
	"github.com/redis/go-redis/v9"
)

// SessionStore keeps in-flight quiz sessions in Redis as JSON values with a
// TTL, so abandoned sessions expire on their own and any instance can pick
// up a session started elsewhere.
// Keys: quiz:session:{userID}:{lessonID}.
type SessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{client: client, ttl: ttl}
}

func (s *SessionStore) Get(ctx context.Context, userID, lessonID string) (domain.QuizSession, bool, error) {
	raw, err := s.client.Get(ctx, s.key(userID, lessonID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.QuizSession{}, false, nil
	}
	if err != nil {
		return domain.QuizSession{}, false, err
	}
	var session domain.QuizSession
	if err := json.Unmarshal(raw, &session); err != nil {
		return domain.QuizSession{}, false, err
	}
	return session, true, nil
}

func (s *SessionStore) Save(ctx context.Context, session domain.QuizSession) error {
	raw, err := json.Marshal(session)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(session.UserID, session.LessonID), raw, s.ttl).Err()
}

func (s *SessionStore) Delete(ctx context.Context, userID, lessonID string) error {
	return s.client.Del(ctx, s.key(userID, lessonID)).Err()
}

func (s *SessionStore) key(userID, lessonID string) string {
	return "quiz:session:" + userID + ":" + lessonID
}
