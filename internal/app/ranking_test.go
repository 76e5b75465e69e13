package app_test

import (
	"context"
	"testing"
	"time"

	"skillforge/internal/app"
	"skillforge/internal/domain"
	"skillforge/internal/infra/memory"
)

func newRankingFixture(t *testing.T) (*app.RankingService, *memory.Store, *app.LedgerService) {
	t.Helper()
	store := memory.NewStore()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store.CreateProfile(domain.Profile{UserID: "a", DisplayName: "Alice", Handle: "alice", CreatedAt: base})
	store.CreateProfile(domain.Profile{UserID: "b", DisplayName: "Bob", Handle: "bob", CreatedAt: base.Add(time.Hour)})
	store.CreateProfile(domain.Profile{UserID: "c", DisplayName: "Cara", Handle: "cara", CreatedAt: base.Add(2 * time.Hour)})
	store.CreateProfile(domain.Profile{UserID: "d", DisplayName: "Dan", Handle: "dan", CreatedAt: base.Add(3 * time.Hour)})
	return app.NewRankingService(store), store, app.NewLedgerService(store)
}

func grantAt(t *testing.T, store *memory.Store, ledger *app.LedgerService, userID string, amount int, at time.Time) {
	t.Helper()
	store.WithClock(func() time.Time { return at })
	if _, err := ledger.GrantXP(context.Background(), domain.XPGrant{UserID: userID, Amount: amount, Source: domain.SourceLesson}); err != nil {
		t.Fatalf("grant %s: %v", userID, err)
	}
	store.WithClock(time.Now)
}

func TestGlobalRankingDeterministicTieBreak(t *testing.T) {
	ctx := context.Background()
	rankings, store, ledger := newRankingFixture(t)
	now := time.Now()

	grantAt(t, store, ledger, "a", 100, now)
	grantAt(t, store, ledger, "b", 100, now)
	grantAt(t, store, ledger, "c", 50, now)

	want := []string{"a", "b", "c"} // tie broken by profile creation order
	for i := 0; i < 5; i++ {
		lb, err := rankings.GlobalRanking(ctx, 10, nil)
		if err != nil {
			t.Fatalf("ranking: %v", err)
		}
		if len(lb.Entries) != 3 {
			t.Fatalf("expected 3 ranked users, got %d", len(lb.Entries))
		}
		for j, entry := range lb.Entries {
			if entry.UserID != want[j] || entry.Rank != j+1 {
				t.Fatalf("call %d: unstable order %+v", i, lb.Entries)
			}
		}
	}
}

func TestGlobalRankingExcludesZeroXP(t *testing.T) {
	ctx := context.Background()
	rankings, store, ledger := newRankingFixture(t)
	grantAt(t, store, ledger, "a", 10, time.Now())

	lb, err := rankings.GlobalRanking(ctx, 10, nil)
	if err != nil {
		t.Fatalf("ranking: %v", err)
	}
	if len(lb.Entries) != 1 || lb.Entries[0].UserID != "a" {
		t.Fatalf("zero-xp users must be absent: %+v", lb.Entries)
	}
}

func TestGlobalRankingCohortScope(t *testing.T) {
	ctx := context.Background()
	rankings, store, ledger := newRankingFixture(t)
	now := time.Now()
	grantAt(t, store, ledger, "a", 100, now)
	grantAt(t, store, ledger, "b", 200, now)
	grantAt(t, store, ledger, "c", 300, now)

	lb, err := rankings.GlobalRanking(ctx, 10, []string{"a", "b"})
	if err != nil {
		t.Fatalf("ranking: %v", err)
	}
	if len(lb.Entries) != 2 || lb.Entries[0].UserID != "b" {
		t.Fatalf("cohort scoping wrong: %+v", lb.Entries)
	}
}

func TestWindowedRankingExcludesStaleActivity(t *testing.T) {
	ctx := context.Background()
	rankings, store, ledger := newRankingFixture(t)
	now := time.Now()

	grantAt(t, store, ledger, "a", 500, now.AddDate(0, 0, -30)) // outside window
	grantAt(t, store, ledger, "b", 20, now.Add(-2*time.Hour))   // inside
	grantAt(t, store, ledger, "c", 80, now.Add(-time.Hour))     // inside

	weekly, err := rankings.WindowedRanking(ctx, 7, 10, nil)
	if err != nil {
		t.Fatalf("weekly: %v", err)
	}
	if len(weekly.Entries) != 2 {
		t.Fatalf("expected 2 active users, got %+v", weekly.Entries)
	}
	if weekly.Entries[0].UserID != "c" || weekly.Entries[1].UserID != "b" {
		t.Fatalf("weekly order wrong: %+v", weekly.Entries)
	}
	for _, e := range weekly.Entries {
		if e.UserID == "a" {
			t.Fatalf("stale user ranked in window: %+v", weekly.Entries)
		}
	}

	global, err := rankings.GlobalRanking(ctx, 10, nil)
	if err != nil {
		t.Fatalf("global: %v", err)
	}
	if len(global.Entries) != 3 || global.Entries[0].UserID != "a" {
		t.Fatalf("lifetime leader must still top global: %+v", global.Entries)
	}
}

func TestRankOf(t *testing.T) {
	ctx := context.Background()
	rankings, store, ledger := newRankingFixture(t)
	now := time.Now()
	grantAt(t, store, ledger, "a", 300, now)
	grantAt(t, store, ledger, "b", 200, now)
	grantAt(t, store, ledger, "c", 100, now)
	grantAt(t, store, ledger, "d", 50, now)

	info, err := rankings.RankOf(ctx, "b", app.RankScope{})
	if err != nil {
		t.Fatalf("rankOf: %v", err)
	}
	if info.Rank != 2 || info.Total != 4 {
		t.Fatalf("rank: %+v", info)
	}
	if info.Percentile != 75 {
		t.Fatalf("percentile = %v, want 75", info.Percentile)
	}
	if info.NextUserID == nil || *info.NextUserID != "a" || info.XPToNext == nil || *info.XPToNext != 100 {
		t.Fatalf("gap to next: %+v", info)
	}
}

func TestRankOfLeaderHasNoTarget(t *testing.T) {
	ctx := context.Background()
	rankings, store, ledger := newRankingFixture(t)
	grantAt(t, store, ledger, "a", 300, time.Now())

	info, err := rankings.RankOf(ctx, "a", app.RankScope{})
	if err != nil {
		t.Fatalf("rankOf: %v", err)
	}
	if info.Rank != 1 || info.NextUserID != nil || info.XPToNext != nil {
		t.Fatalf("leader info: %+v", info)
	}
	if info.Percentile != 100 {
		t.Fatalf("leader percentile = %v", info.Percentile)
	}
}

func TestRankOfUnrankedUser(t *testing.T) {
	ctx := context.Background()
	rankings, store, ledger := newRankingFixture(t)
	grantAt(t, store, ledger, "a", 300, time.Now())

	// b has no transactions yet: absent from the board, not an error.
	info, err := rankings.RankOf(ctx, "b", app.RankScope{})
	if err != nil {
		t.Fatalf("rankOf: %v", err)
	}
	if info.Rank != 0 || info.Total != 1 || info.NextUserID != nil {
		t.Fatalf("unranked info: %+v", info)
	}
}

func TestRankOfEmptyScope(t *testing.T) {
	rankings, _, _ := newRankingFixture(t)
	info, err := rankings.RankOf(context.Background(), "a", app.RankScope{Cohort: []string{}})
	if err != nil {
		t.Fatalf("rankOf: %v", err)
	}
	if info.Rank != 0 || info.Total != 0 {
		t.Fatalf("empty scope info: %+v", info)
	}
}

func TestRankOfWindowed(t *testing.T) {
	ctx := context.Background()
	rankings, store, ledger := newRankingFixture(t)
	now := time.Now()
	grantAt(t, store, ledger, "a", 1000, now.AddDate(0, 0, -60))
	grantAt(t, store, ledger, "b", 40, now.Add(-time.Hour))
	grantAt(t, store, ledger, "c", 10, now.Add(-time.Hour))

	info, err := rankings.RankOf(ctx, "c", app.RankScope{WindowDays: 7})
	if err != nil {
		t.Fatalf("rankOf: %v", err)
	}
	if info.Rank != 2 || info.Total != 2 {
		t.Fatalf("windowed rank: %+v", info)
	}
	if info.XPToNext == nil || *info.XPToNext != 30 {
		t.Fatalf("windowed gap: %+v", info)
	}
}
