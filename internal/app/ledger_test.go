package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"skillforge/internal/app"
	"skillforge/internal/domain"
	"skillforge/internal/infra/memory"
)

func newLedgerFixture() (*app.LedgerService, *memory.Store) {
	store := memory.NewStore()
	store.CreateProfile(domain.Profile{UserID: "u1", DisplayName: "Alice", Handle: "alice"})
	store.CreateProfile(domain.Profile{UserID: "u2", DisplayName: "Bob", Handle: "bob"})
	return app.NewLedgerService(store), store
}

func TestGrantXPUpdatesProfileAndLedger(t *testing.T) {
	ctx := context.Background()
	ledger, _ := newLedgerFixture()

	profile, err := ledger.GrantXP(ctx, domain.XPGrant{
		UserID: "u1", Amount: 75, Source: domain.SourceLesson, SourceID: "lesson-1",
	})
	if err != nil {
		t.Fatalf("grant failed: %v", err)
	}
	if profile.XP != 75 {
		t.Fatalf("expected xp 75, got %d", profile.XP)
	}
	if profile.Level != 2 {
		t.Fatalf("expected level 2 at 75 xp, got %d", profile.Level)
	}

	txs, err := ledger.Transactions(ctx, "u1")
	if err != nil {
		t.Fatalf("transactions: %v", err)
	}
	if len(txs) != 1 || txs[0].Amount != 75 || txs[0].Source != domain.SourceLesson {
		t.Fatalf("unexpected ledger contents: %+v", txs)
	}
}

func TestGrantXPRejectsNonPositiveAmounts(t *testing.T) {
	ctx := context.Background()
	ledger, _ := newLedgerFixture()

	for _, amount := range []int{0, -10} {
		_, err := ledger.GrantXP(ctx, domain.XPGrant{UserID: "u1", Amount: amount, Source: domain.SourceQuiz})
		if !errors.Is(err, domain.ErrInvalidAmount) {
			t.Fatalf("amount %d: expected ErrInvalidAmount, got %v", amount, err)
		}
	}
	txs, _ := ledger.Transactions(ctx, "u1")
	if len(txs) != 0 {
		t.Fatalf("rejected grants must not write: %+v", txs)
	}
}

func TestGrantXPRejectsUnknownSource(t *testing.T) {
	ledger, _ := newLedgerFixture()
	_, err := ledger.GrantXP(context.Background(), domain.XPGrant{UserID: "u1", Amount: 10, Source: "bonus"})
	if !errors.Is(err, domain.ErrInvalidSource) {
		t.Fatalf("expected ErrInvalidSource, got %v", err)
	}
}

func TestGrantXPUnknownUser(t *testing.T) {
	ledger, _ := newLedgerFixture()
	_, err := ledger.GrantXP(context.Background(), domain.XPGrant{UserID: "ghost", Amount: 10, Source: domain.SourceQuiz})
	if !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestLedgerConservation(t *testing.T) {
	ctx := context.Background()
	ledger, _ := newLedgerFixture()

	amounts := []int{10, 25, 5, 100, 42}
	sum := 0
	for _, a := range amounts {
		if _, err := ledger.GrantXP(ctx, domain.XPGrant{UserID: "u1", Amount: a, Source: domain.SourceLesson}); err != nil {
			t.Fatalf("grant %d: %v", a, err)
		}
		sum += a
	}

	profile, err := ledger.Profile(ctx, "u1")
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	txs, _ := ledger.Transactions(ctx, "u1")
	txSum := 0
	for _, tx := range txs {
		txSum += tx.Amount
	}
	if profile.XP != sum || txSum != sum {
		t.Fatalf("ledger out of balance: profile=%d transactions=%d want=%d", profile.XP, txSum, sum)
	}
}

func TestResetProgressWipesEverything(t *testing.T) {
	ctx := context.Background()
	ledger, _ := newLedgerFixture()

	if _, err := ledger.GrantXP(ctx, domain.XPGrant{UserID: "u1", Amount: 500, Source: domain.SourceModule}); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if err := ledger.ResetProgress(ctx, "u1"); err != nil {
		t.Fatalf("reset: %v", err)
	}

	profile, err := ledger.Profile(ctx, "u1")
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	if profile.XP != 0 || profile.Level != 1 || profile.Streak != 0 {
		t.Fatalf("reset incomplete: %+v", profile)
	}
	txs, _ := ledger.Transactions(ctx, "u1")
	if len(txs) != 0 {
		t.Fatalf("transactions survived reset: %+v", txs)
	}
}

func TestResetProgressUnknownUser(t *testing.T) {
	ledger, _ := newLedgerFixture()
	if err := ledger.ResetProgress(context.Background(), "ghost"); !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestStreakAcrossDays(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	store.CreateProfile(domain.Profile{UserID: "u1", DisplayName: "Alice"})
	ledger := app.NewLedgerService(store)

	day := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return day }
	store.WithClock(func() time.Time { return clock() })

	grant := func() domain.Profile {
		p, err := ledger.GrantXP(ctx, domain.XPGrant{UserID: "u1", Amount: 5, Source: domain.SourceLesson})
		if err != nil {
			t.Fatalf("grant: %v", err)
		}
		return p
	}

	if p := grant(); p.Streak != 1 {
		t.Fatalf("first activity streak = %d, want 1", p.Streak)
	}
	// Later the same day: unchanged.
	day = day.Add(4 * time.Hour)
	if p := grant(); p.Streak != 1 {
		t.Fatalf("same-day streak = %d, want 1", p.Streak)
	}
	// Next day: incremented.
	day = day.Add(24 * time.Hour)
	if p := grant(); p.Streak != 2 {
		t.Fatalf("next-day streak = %d, want 2", p.Streak)
	}
	// Three-day gap: reset to 1.
	day = day.Add(72 * time.Hour)
	if p := grant(); p.Streak != 1 {
		t.Fatalf("post-gap streak = %d, want 1", p.Streak)
	}
}
