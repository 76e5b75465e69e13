package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"skillforge/internal/domain"
)

func seededStore() *Store {
	store := NewStore()
	store.CreateProfile(domain.Profile{UserID: "u1", DisplayName: "Alice"})
	return store
}

func TestCompleteLabAtMostOnceUnderConcurrency(t *testing.T) {
	ctx := context.Background()
	store := seededStore()

	if _, err := store.RecordLabAttempt(ctx, "u1", "lab-1", "deploy"); err != nil {
		t.Fatalf("record: %v", err)
	}

	grant := domain.XPGrant{UserID: "u1", Amount: 40, Source: domain.SourceLab, SourceID: "lab-1"}
	const racers = 32
	var wg sync.WaitGroup
	wins := make(chan bool, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			won, err := store.CompleteLab(ctx, "u1", "lab-1", grant)
			if err != nil {
				t.Errorf("complete: %v", err)
				return
			}
			wins <- won
		}()
	}
	wg.Wait()
	close(wins)

	winners := 0
	for won := range wins {
		if won {
			winners++
		}
	}
	if winners != 1 {
		t.Fatalf("expected exactly one winner, got %d", winners)
	}

	profile, _ := store.Profile(ctx, "u1")
	if profile.XP != 40 {
		t.Fatalf("xp after race = %d, want 40", profile.XP)
	}
	txs, _ := store.Transactions(ctx, "u1")
	if len(txs) != 1 {
		t.Fatalf("transactions after race = %d, want 1", len(txs))
	}
}

func TestSaveQuizCompletionFirstWinsTheGrant(t *testing.T) {
	ctx := context.Background()
	store := seededStore()

	rec := domain.QuizCompletion{UserID: "u1", LessonID: "l1", Score: 3, TotalQuestions: 3, XPEarned: 30, CompletedAt: time.Now()}
	grant := domain.XPGrant{UserID: "u1", Amount: 30, Source: domain.SourceQuiz, SourceID: "l1"}

	first, err := store.SaveQuizCompletion(ctx, rec, grant)
	if err != nil || !first {
		t.Fatalf("first save: first=%v err=%v", first, err)
	}

	retake := rec
	retake.Score = 1
	retake.XPEarned = 10
	first, err = store.SaveQuizCompletion(ctx, retake, domain.XPGrant{UserID: "u1", Amount: 10, Source: domain.SourceQuiz})
	if err != nil || first {
		t.Fatalf("retake save: first=%v err=%v", first, err)
	}

	stored, ok, _ := store.QuizCompletion(ctx, "u1", "l1")
	if !ok || stored.Score != 1 || stored.XPEarned != 30 {
		t.Fatalf("retake must update score and keep first grant: %+v", stored)
	}
	profile, _ := store.Profile(ctx, "u1")
	if profile.XP != 30 {
		t.Fatalf("xp = %d, want 30", profile.XP)
	}
}

func TestRecordLabAttemptAccumulatesHistory(t *testing.T) {
	ctx := context.Background()
	store := seededStore()

	for _, cmd := range []string{"ls", "pwd", "deploy"} {
		if _, err := store.RecordLabAttempt(ctx, "u1", "lab-1", cmd); err != nil {
			t.Fatalf("record %q: %v", cmd, err)
		}
	}
	attempt, ok, _ := store.LabAttempt(ctx, "u1", "lab-1")
	if !ok || attempt.Attempts != 3 {
		t.Fatalf("attempt counter: %+v", attempt)
	}
	if len(attempt.CommandsUsed) != 3 || attempt.CommandsUsed[2] != "deploy" {
		t.Fatalf("history: %+v", attempt.CommandsUsed)
	}
}

func TestProfilesByXPOrderingAndLimit(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	store.CreateProfile(domain.Profile{UserID: "u1", CreatedAt: base})
	store.CreateProfile(domain.Profile{UserID: "u2", CreatedAt: base.Add(time.Minute)})
	store.CreateProfile(domain.Profile{UserID: "u3", CreatedAt: base.Add(2 * time.Minute)})

	for user, xp := range map[string]int{"u1": 100, "u2": 100, "u3": 300} {
		if _, err := store.GrantXP(ctx, domain.XPGrant{UserID: user, Amount: xp, Source: domain.SourceLesson}); err != nil {
			t.Fatalf("grant: %v", err)
		}
	}

	profiles, err := store.ProfilesByXP(ctx, 0, nil)
	if err != nil {
		t.Fatalf("profiles: %v", err)
	}
	got := []string{profiles[0].UserID, profiles[1].UserID, profiles[2].UserID}
	if got[0] != "u3" || got[1] != "u1" || got[2] != "u2" {
		t.Fatalf("ordering: %v", got)
	}

	limited, _ := store.ProfilesByXP(ctx, 2, nil)
	if len(limited) != 2 {
		t.Fatalf("limit ignored: %d", len(limited))
	}
}

func TestWindowedTotalsSumsOnlyRecent(t *testing.T) {
	ctx := context.Background()
	store := seededStore()
	now := time.Now()

	old := now.AddDate(0, 0, -10)
	store.WithClock(func() time.Time { return old })
	if _, err := store.GrantXP(ctx, domain.XPGrant{UserID: "u1", Amount: 100, Source: domain.SourceLesson}); err != nil {
		t.Fatalf("old grant: %v", err)
	}
	store.WithClock(func() time.Time { return now })
	if _, err := store.GrantXP(ctx, domain.XPGrant{UserID: "u1", Amount: 30, Source: domain.SourceLesson}); err != nil {
		t.Fatalf("recent grant: %v", err)
	}

	totals, err := store.WindowedTotals(ctx, now.AddDate(0, 0, -7), 0, nil)
	if err != nil {
		t.Fatalf("totals: %v", err)
	}
	if len(totals) != 1 || totals[0].XPGained != 30 {
		t.Fatalf("windowed sum: %+v", totals)
	}
}

func TestResetProgressRemovesPerUserRecordsOnly(t *testing.T) {
	ctx := context.Background()
	store := seededStore()
	store.CreateProfile(domain.Profile{UserID: "u2", DisplayName: "Bob"})

	if _, err := store.GrantXP(ctx, domain.XPGrant{UserID: "u2", Amount: 10, Source: domain.SourceLesson}); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if _, err := store.RecordLabAttempt(ctx, "u1", "lab-1", "ls"); err != nil {
		t.Fatalf("record: %v", err)
	}
	if _, err := store.GrantXP(ctx, domain.XPGrant{UserID: "u1", Amount: 20, Source: domain.SourceLab}); err != nil {
		t.Fatalf("grant: %v", err)
	}

	if err := store.ResetProgress(ctx, "u1"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if _, ok, _ := store.LabAttempt(ctx, "u1", "lab-1"); ok {
		t.Fatalf("lab attempt survived reset")
	}
	other, _ := store.Profile(ctx, "u2")
	if other.XP != 10 {
		t.Fatalf("reset leaked into another user: %+v", other)
	}
}
