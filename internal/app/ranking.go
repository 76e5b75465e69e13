package app

import (
	"context"
	"math"
	"time"

	"skillforge/internal/domain"
	"skillforge/internal/progression"
)

// RankScope selects the population and time window for RankOf.
// WindowDays == 0 means lifetime XP; a non-nil Cohort restricts the scope to
// pre-authorized user IDs supplied by the caller.
type RankScope struct {
	Cohort     []string
	WindowDays int
}

// RankingService derives leaderboards from the ledger's materialized totals.
// Everything here is a read-time computation; nothing is persisted.
type RankingService struct {
	store ProgressStore
	now   func() time.Time
}

func NewRankingService(store ProgressStore) *RankingService {
	return &RankingService{store: store, now: time.Now}
}

// WithClock is test-only for deterministic windows.
func (s *RankingService) WithClock(now func() time.Time) *RankingService {
	s.now = now
	return s
}

// GlobalRanking orders users by lifetime XP. Ties break by earliest profile
// creation, then user ID, so repeated calls over unchanged data return the
// same order. Users without any XP yet are absent.
func (s *RankingService) GlobalRanking(ctx context.Context, limit int, cohort []string) (domain.Leaderboard, error) {
	profiles, err := s.store.ProfilesByXP(ctx, limit, cohort)
	if err != nil {
		return domain.Leaderboard{}, err
	}
	entries := make([]domain.RankedEntry, 0, len(profiles))
	for i, p := range profiles {
		entries = append(entries, domain.RankedEntry{
			Rank:        i + 1,
			UserID:      p.UserID,
			DisplayName: p.DisplayName,
			Handle:      p.Handle,
			XP:          p.XP,
			Level:       p.Level,
		})
	}
	return domain.Leaderboard{Scope: "global", Entries: entries, UpdatedAt: s.now()}, nil
}

// WindowedRanking orders users by XP gained inside the trailing window,
// summed from ledger entries, not lifetime totals. Users with no activity in
// the window are excluded rather than ranked at zero.
func (s *RankingService) WindowedRanking(ctx context.Context, windowDays, limit int, cohort []string) (domain.Leaderboard, error) {
	since := s.now().AddDate(0, 0, -windowDays)
	totals, err := s.store.WindowedTotals(ctx, since, limit, cohort)
	if err != nil {
		return domain.Leaderboard{}, err
	}
	entries := make([]domain.RankedEntry, 0, len(totals))
	for i, t := range totals {
		entries = append(entries, domain.RankedEntry{
			Rank:        i + 1,
			UserID:      t.UserID,
			DisplayName: t.DisplayName,
			Handle:      t.Handle,
			XP:          t.XPGained,
			Level:       progression.LevelForXP(t.XPGained),
		})
	}
	return domain.Leaderboard{Scope: "weekly", Entries: entries, UpdatedAt: s.now()}, nil
}

// RankOf locates one user inside a scope: 1-based rank, participant count,
// percentile and the gap to the next-higher user for "closing the gap"
// displays. An unranked user (no XP in scope) gets Rank 0 and no target.
func (s *RankingService) RankOf(ctx context.Context, userID string, scope RankScope) (domain.RankInfo, error) {
	var lb domain.Leaderboard
	var err error
	if scope.WindowDays > 0 {
		lb, err = s.WindowedRanking(ctx, scope.WindowDays, 0, scope.Cohort)
	} else {
		lb, err = s.GlobalRanking(ctx, 0, scope.Cohort)
	}
	if err != nil {
		return domain.RankInfo{}, err
	}

	info := domain.RankInfo{Total: len(lb.Entries)}
	idx := -1
	for i := range lb.Entries {
		if lb.Entries[i].UserID == userID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return info, nil
	}

	info.Rank = idx + 1
	info.Percentile = math.Round(100 * (1 - float64(idx)/float64(info.Total)))
	if idx > 0 {
		next := lb.Entries[idx-1]
		gap := next.XP - lb.Entries[idx].XP
		info.NextUserID = &next.UserID
		info.NextName = next.DisplayName
		info.XPToNext = &gap
	}
	return info, nil
}
