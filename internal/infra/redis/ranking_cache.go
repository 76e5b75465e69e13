package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"skillforge/internal/domain"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// RankingSource computes leaderboards (normally *app.RankingService).
type RankingSource interface {
	GlobalRanking(ctx context.Context, limit int, cohort []string) (domain.Leaderboard, error)
	WindowedRanking(ctx context.Context, windowDays, limit int, cohort []string) (domain.Leaderboard, error)
}

// RankingCache serves leaderboard reads from Redis for a few seconds.
// Leaderboard staleness is acceptable; grant guards stay strongly consistent
// in Postgres. Cohort-scoped requests bypass the cache since the key space
// would be unbounded.
// Keys: ranking:global:{limit} and ranking:weekly:{days}:{limit}.
type RankingCache struct {
	client *redis.Client
	source RankingSource
	ttl    time.Duration
	sf     singleflight.Group
}

func NewRankingCache(client *redis.Client, source RankingSource, ttl time.Duration) *RankingCache {
	return &RankingCache{client: client, source: source, ttl: ttl}
}

func (c *RankingCache) GlobalRanking(ctx context.Context, limit int, cohort []string) (domain.Leaderboard, error) {
	if cohort != nil {
		return c.source.GlobalRanking(ctx, limit, cohort)
	}
	key := fmt.Sprintf("ranking:global:%d", limit)
	return c.cached(ctx, key, func() (domain.Leaderboard, error) {
		return c.source.GlobalRanking(ctx, limit, nil)
	})
}

func (c *RankingCache) WindowedRanking(ctx context.Context, windowDays, limit int, cohort []string) (domain.Leaderboard, error) {
	if cohort != nil {
		return c.source.WindowedRanking(ctx, windowDays, limit, cohort)
	}
	key := fmt.Sprintf("ranking:weekly:%d:%d", windowDays, limit)
	return c.cached(ctx, key, func() (domain.Leaderboard, error) {
		return c.source.WindowedRanking(ctx, windowDays, limit, nil)
	})
}

func (c *RankingCache) cached(ctx context.Context, key string, compute func() (domain.Leaderboard, error)) (domain.Leaderboard, error) {
	if raw, err := c.client.Get(ctx, key).Bytes(); err == nil && len(raw) > 0 {
		var lb domain.Leaderboard
		if json.Unmarshal(raw, &lb) == nil {
			return lb, nil
		}
	}

	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		if raw, err := c.client.Get(ctx, key).Bytes(); err == nil && len(raw) > 0 {
			var lb domain.Leaderboard
			if json.Unmarshal(raw, &lb) == nil {
				return lb, nil
			}
		}
		lb, err := compute()
		if err != nil {
			return domain.Leaderboard{}, err
		}
		if raw, err := json.Marshal(lb); err == nil {
			_ = c.client.Set(ctx, key, raw, c.ttl).Err()
		}
		return lb, nil
	})
	if err != nil {
		return domain.Leaderboard{}, err
	}
	return result.(domain.Leaderboard), nil
}
