package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"skillforge/internal/domain"
	"skillforge/internal/progression"
	"github.com/google/uuid"
)

// Store is an in-memory implementation of app.ProgressStore. The single
// mutex serializes every check-then-set, so the at-most-once guards hold the
// same way the conditional updates do in Postgres.
type Store struct {
	mu    sync.RWMutex
	now   func() time.Time
	newID func() string

	profiles     map[string]*domain.Profile
	transactions map[string][]domain.XPTransaction
	labAttempts  map[string]*domain.LabAttempt
	completions  map[string]*domain.QuizCompletion
}

func NewStore() *Store {
	return &Store{
		now:          time.Now,
		newID:        uuid.NewString,
		profiles:     make(map[string]*domain.Profile),
		transactions: make(map[string][]domain.XPTransaction),
		labAttempts:  make(map[string]*domain.LabAttempt),
		completions:  make(map[string]*domain.QuizCompletion),
	}
}

// WithClock is test-only for deterministic timestamps.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// CreateProfile seeds a user. Profiles are otherwise owned by the external
// account system; this exists for demos and tests.
func (s *Store) CreateProfile(p domain.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.Level < 1 {
		p.Level = progression.LevelForXP(p.XP)
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now()
	}
	s.profiles[p.UserID] = &p
}

func (s *Store) Profile(_ context.Context, userID string) (domain.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[userID]
	if !ok {
		return domain.Profile{}, domain.ErrUserNotFound
	}
	return *p, nil
}

func (s *Store) Transactions(_ context.Context, userID string) ([]domain.XPTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.profiles[userID]; !ok {
		return nil, domain.ErrUserNotFound
	}
	txs := s.transactions[userID]
	out := make([]domain.XPTransaction, len(txs))
	for i := range txs {
		out[i] = txs[len(txs)-1-i] // newest first
	}
	return out, nil
}

func (s *Store) GrantXP(_ context.Context, grant domain.XPGrant) (domain.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.grantLocked(grant)
}

func (s *Store) grantLocked(grant domain.XPGrant) (domain.Profile, error) {
	p, ok := s.profiles[grant.UserID]
	if !ok {
		return domain.Profile{}, domain.ErrUserNotFound
	}
	now := s.now()
	s.transactions[grant.UserID] = append(s.transactions[grant.UserID], domain.XPTransaction{
		ID:          s.newID(),
		UserID:      grant.UserID,
		Amount:      grant.Amount,
		Source:      grant.Source,
		SourceID:    grant.SourceID,
		Description: grant.Description,
		CreatedAt:   now,
	})
	p.XP += grant.Amount
	p.Level = progression.LevelForXP(p.XP)
	p.Streak = progression.NextStreak(p.LastActiveAt, p.Streak, now)
	p.LastActiveAt = now
	return *p, nil
}

func (s *Store) ResetProgress(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	delete(s.transactions, userID)
	for key, attempt := range s.labAttempts {
		if attempt.UserID == userID {
			delete(s.labAttempts, key)
		}
	}
	for key, rec := range s.completions {
		if rec.UserID == userID {
			delete(s.completions, key)
		}
	}
	p.XP = 0
	p.Level = 1
	p.Streak = 0
	return nil
}

func (s *Store) LabAttempt(_ context.Context, userID, labID string) (domain.LabAttempt, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	attempt, ok := s.labAttempts[userID+"/"+labID]
	if !ok {
		return domain.LabAttempt{}, false, nil
	}
	return copyAttempt(attempt), true, nil
}

func (s *Store) RecordLabAttempt(_ context.Context, userID, labID, command string) (domain.LabAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.profiles[userID]; !ok {
		return domain.LabAttempt{}, domain.ErrUserNotFound
	}
	key := userID + "/" + labID
	attempt, ok := s.labAttempts[key]
	if !ok {
		attempt = &domain.LabAttempt{UserID: userID, LabID: labID}
		s.labAttempts[key] = attempt
	}
	attempt.Attempts++
	attempt.CommandsUsed = append(attempt.CommandsUsed, command)
	return copyAttempt(attempt), nil
}

func (s *Store) CompleteLab(_ context.Context, userID, labID string, grant domain.XPGrant) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	attempt, ok := s.labAttempts[userID+"/"+labID]
	if !ok {
		attempt = &domain.LabAttempt{UserID: userID, LabID: labID}
		s.labAttempts[userID+"/"+labID] = attempt
	}
	if attempt.Completed {
		return false, nil
	}
	now := s.now()
	attempt.Completed = true
	attempt.CompletedAt = &now
	if grant.Amount > 0 {
		if _, err := s.grantLocked(grant); err != nil {
			attempt.Completed = false
			attempt.CompletedAt = nil
			return false, err
		}
	}
	return true, nil
}

func (s *Store) QuizCompletion(_ context.Context, userID, lessonID string) (domain.QuizCompletion, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.completions[userID+"/"+lessonID]
	if !ok {
		return domain.QuizCompletion{}, false, nil
	}
	return *rec, true, nil
}

func (s *Store) SaveQuizCompletion(_ context.Context, rec domain.QuizCompletion, grant domain.XPGrant) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.profiles[rec.UserID]; !ok {
		return false, domain.ErrUserNotFound
	}
	key := rec.UserID + "/" + rec.LessonID
	if existing, ok := s.completions[key]; ok {
		existing.Score = rec.Score
		existing.TotalQuestions = rec.TotalQuestions
		existing.CompletedAt = rec.CompletedAt
		// XPEarned keeps the first completion's grant.
		return false, nil
	}
	stored := rec
	s.completions[key] = &stored
	if grant.Amount > 0 {
		if _, err := s.grantLocked(grant); err != nil {
			delete(s.completions, key)
			return false, err
		}
	}
	return true, nil
}

func (s *Store) ProfilesByXP(_ context.Context, limit int, cohort []string) ([]domain.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	scope := cohortSet(cohort)
	out := make([]domain.Profile, 0, len(s.profiles))
	for _, p := range s.profiles {
		if p.XP <= 0 {
			continue
		}
		if scope != nil {
			if _, ok := scope[p.UserID]; !ok {
				continue
			}
		}
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].XP != out[j].XP {
			return out[i].XP > out[j].XP
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].UserID < out[j].UserID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) WindowedTotals(_ context.Context, since time.Time, limit int, cohort []string) ([]domain.WindowedTotal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	scope := cohortSet(cohort)
	sums := make(map[string]int)
	for userID, txs := range s.transactions {
		if scope != nil {
			if _, ok := scope[userID]; !ok {
				continue
			}
		}
		for _, tx := range txs {
			if !tx.CreatedAt.Before(since) {
				sums[userID] += tx.Amount
			}
		}
	}
	out := make([]domain.WindowedTotal, 0, len(sums))
	for userID, sum := range sums {
		if sum <= 0 {
			continue
		}
		total := domain.WindowedTotal{UserID: userID, XPGained: sum}
		if p, ok := s.profiles[userID]; ok {
			total.DisplayName = p.DisplayName
			total.Handle = p.Handle
		}
		out = append(out, total)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].XPGained != out[j].XPGained {
			return out[i].XPGained > out[j].XPGained
		}
		return out[i].UserID < out[j].UserID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func cohortSet(cohort []string) map[string]struct{} {
	if cohort == nil {
		return nil
	}
	set := make(map[string]struct{}, len(cohort))
	for _, id := range cohort {
		set[id] = struct{}{}
	}
	return set
}

func copyAttempt(a *domain.LabAttempt) domain.LabAttempt {
	out := *a
	out.CommandsUsed = append([]string(nil), a.CommandsUsed...)
	if a.CompletedAt != nil {
		at := *a.CompletedAt
		out.CompletedAt = &at
	}
	return out
}
