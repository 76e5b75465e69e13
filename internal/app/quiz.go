package app

import (
	"context"
	"fmt"
	"time"

	"skillforge/internal/domain"
)

// QuizService runs users through a lesson's question sequence. Session state
// lives in a QuizSessionStore so the state machine is testable without any
// UI; the persisted completion record is written once per run-through.
//
// XP policy: a (user, lesson) pair is rewarded on the first completion only.
// Retakes overwrite the score record for display and never touch the ledger.
type QuizService struct {
	content  ContentRepository
	store    ProgressStore
	sessions QuizSessionStore
	notifier GrantNotifier
	now      func() time.Time
}

func NewQuizService(content ContentRepository, store ProgressStore, sessions QuizSessionStore) *QuizService {
	return &QuizService{content: content, store: store, sessions: sessions, now: time.Now}
}

func (s *QuizService) SetNotifier(n GrantNotifier) {
	s.notifier = n
}

// WithClock is test-only for deterministic timestamps.
func (s *QuizService) WithClock(now func() time.Time) *QuizService {
	s.now = now
	return s
}

// AnswerQuestion locks in the answer for the session's current question and
// advances. Answering the final question persists the completion and, on the
// first completion only, grants the accumulated session XP.
func (s *QuizService) AnswerQuestion(ctx context.Context, userID, lessonID string, optionIndex int) (domain.AnswerResult, error) {
	quiz, err := s.content.Quiz(ctx, lessonID)
	if err != nil {
		return domain.AnswerResult{}, err
	}
	total := len(quiz.Questions)
	if total == 0 {
		return domain.AnswerResult{}, domain.ErrQuizNotFound
	}

	session, ok, err := s.sessions.Get(ctx, userID, lessonID)
	if err != nil {
		return domain.AnswerResult{}, err
	}
	if !ok || session.QuestionIndex >= total {
		// No session, or a stale one left behind by content changes: start over.
		session = domain.QuizSession{
			UserID:    userID,
			LessonID:  lessonID,
			StartedAt: s.now(),
		}
	}

	question := quiz.Questions[session.QuestionIndex]
	if optionIndex < 0 || optionIndex >= len(question.Options) {
		return domain.AnswerResult{}, domain.ErrOptionOutOfRange
	}

	correct := question.Options[optionIndex].Correct
	if correct {
		session.Score++
		session.SessionXP += question.XPReward
	}
	session.Answers = append(session.Answers, optionIndex)
	session.QuestionIndex++

	result := domain.AnswerResult{
		Correct:        correct,
		Explanation:    question.Explanation,
		QuestionIndex:  session.QuestionIndex,
		Score:          session.Score,
		TotalQuestions: total,
	}

	if session.QuestionIndex < total {
		if err := s.sessions.Save(ctx, session); err != nil {
			return domain.AnswerResult{}, err
		}
		return result, nil
	}

	completion, err := s.CompleteQuiz(ctx, userID, lessonID, session.Score, total, session.SessionXP)
	if err != nil {
		return domain.AnswerResult{}, err
	}
	_ = s.sessions.Delete(ctx, userID, lessonID)
	result.Finished = true
	result.XPEarned = completion.XPEarned
	return result, nil
}

// CompleteQuiz persists the (user, lesson) completion record. The returned
// record's XPEarned is the amount granted by this call: the full session XP
// on the first completion, zero on retakes.
func (s *QuizService) CompleteQuiz(ctx context.Context, userID, lessonID string, score, totalQuestions, sessionXP int) (domain.QuizCompletion, error) {
	if totalQuestions <= 0 || score < 0 || score > totalQuestions {
		return domain.QuizCompletion{}, domain.ErrInvalidScore
	}
	if sessionXP < 0 {
		return domain.QuizCompletion{}, domain.ErrInvalidAmount
	}

	rec := domain.QuizCompletion{
		UserID:         userID,
		LessonID:       lessonID,
		Score:          score,
		TotalQuestions: totalQuestions,
		XPEarned:       sessionXP,
		CompletedAt:    s.now(),
	}
	grant := domain.XPGrant{
		UserID:      userID,
		Amount:      sessionXP,
		Source:      domain.SourceQuiz,
		SourceID:    lessonID,
		Description: fmt.Sprintf("Quiz completed: %d/%d", score, totalQuestions),
	}
	first, err := s.store.SaveQuizCompletion(ctx, rec, grant)
	if err != nil {
		return domain.QuizCompletion{}, err
	}
	if !first {
		rec.XPEarned = 0
		return rec, nil
	}
	if s.notifier != nil && sessionXP > 0 {
		s.notifier.XPGranted(userID)
	}
	return rec, nil
}

// Retry resets the in-flight session back to question one. The previously
// persisted completion record is left alone until a new run-through finishes.
func (s *QuizService) Retry(ctx context.Context, userID, lessonID string) error {
	return s.sessions.Delete(ctx, userID, lessonID)
}

// Completion exposes the persisted record for return-visit displays.
func (s *QuizService) Completion(ctx context.Context, userID, lessonID string) (domain.QuizCompletion, bool, error) {
	return s.store.QuizCompletion(ctx, userID, lessonID)
}
