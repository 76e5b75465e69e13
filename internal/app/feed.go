package app

import (
	"context"
	"sync"

	"skillforge/internal/domain"
	"go.uber.org/zap"
)

// LeaderboardFeed pushes fresh global rankings to live subscribers after XP
// grants. Grant signals are coalesced: a burst of grants between recomputes
// produces a single refresh.
type LeaderboardFeed struct {
	rankings *RankingService
	limit    int
	log      *zap.Logger

	kick chan struct{}

	mu          sync.Mutex
	subscribers map[chan domain.Leaderboard]struct{}
}

func NewLeaderboardFeed(rankings *RankingService, limit int, log *zap.Logger) *LeaderboardFeed {
	if log == nil {
		log = zap.NewNop()
	}
	return &LeaderboardFeed{
		rankings:    rankings,
		limit:       limit,
		log:         log,
		kick:        make(chan struct{}, 1),
		subscribers: make(map[chan domain.Leaderboard]struct{}),
	}
}

// XPGranted implements GrantNotifier. Never blocks; a pending refresh
// already covers this grant.
func (f *LeaderboardFeed) XPGranted(string) {
	select {
	case f.kick <- struct{}{}:
	default:
	}
}

// Run recomputes and broadcasts until ctx is canceled.
func (f *LeaderboardFeed) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			f.closeAll()
			return
		case <-f.kick:
			lb, err := f.rankings.GlobalRanking(ctx, f.limit, nil)
			if err != nil {
				f.log.Warn("leaderboard refresh failed", zap.Error(err))
				continue
			}
			f.broadcast(lb)
		}
	}
}

// Subscribe returns a channel receiving leaderboard snapshots, primed with
// the current one. The caller must invoke cancel to avoid leaks.
func (f *LeaderboardFeed) Subscribe(ctx context.Context) (<-chan domain.Leaderboard, func(), error) {
	initial, err := f.rankings.GlobalRanking(ctx, f.limit, nil)
	if err != nil {
		return nil, nil, err
	}

	ch := make(chan domain.Leaderboard, 8)
	f.mu.Lock()
	f.subscribers[ch] = struct{}{}
	f.mu.Unlock()

	ch <- initial

	cancel := func() {
		f.mu.Lock()
		if _, ok := f.subscribers[ch]; ok {
			delete(f.subscribers, ch)
			close(ch)
		}
		f.mu.Unlock()
	}
	return ch, cancel, nil
}

func (f *LeaderboardFeed) broadcast(lb domain.Leaderboard) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for ch := range f.subscribers {
		select {
		case ch <- lb:
		default:
			// Drop the stale snapshot so a slow client never blocks the feed.
			select {
			case <-ch:
			default:
			}
			ch <- lb
		}
	}
}

func (f *LeaderboardFeed) closeAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for ch := range f.subscribers {
		delete(f.subscribers, ch)
		close(ch)
	}
}
