package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"skillforge/internal/domain"
	"skillforge/internal/infra/memory"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// ContentCache caches lab and quiz definitions in Redis as JSON values and
// falls back to a loader on cache miss.
// Keys: content:lab:{labID} and content:quiz:{lessonID}.
type ContentCache struct {
	client *redis.Client
	loader memory.ContentLoader
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewContentCache(client *redis.Client, loader memory.ContentLoader, ttl time.Duration) *ContentCache {
	return &ContentCache{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *ContentCache) Lab(ctx context.Context, labID string) (domain.Lab, error) {
	key := "content:lab:" + labID

	var cached domain.Lab
	if ok := c.fromCache(ctx, key, &cached); ok {
		return cached, nil
	}

	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		// Re-check in case another goroutine filled the key.
		var lab domain.Lab
		if ok := c.fromCache(ctx, key, &lab); ok {
			return lab, nil
		}
		lab, err := c.loader.LoadLab(ctx, labID)
		if err != nil {
			return domain.Lab{}, err
		}
		c.fill(ctx, key, lab)
		return lab, nil
	})
	if err != nil {
		return domain.Lab{}, err
	}
	return result.(domain.Lab), nil
}

func (c *ContentCache) Quiz(ctx context.Context, lessonID string) (domain.Quiz, error) {
	key := "content:quiz:" + lessonID

	var cached domain.Quiz
	if ok := c.fromCache(ctx, key, &cached); ok {
		return cached, nil
	}

	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		var quiz domain.Quiz
		if ok := c.fromCache(ctx, key, &quiz); ok {
			return quiz, nil
		}
		quiz, err := c.loader.LoadQuiz(ctx, lessonID)
		if err != nil {
			return domain.Quiz{}, err
		}
		c.fill(ctx, key, quiz)
		return quiz, nil
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	return result.(domain.Quiz), nil
}

func (c *ContentCache) fromCache(ctx context.Context, key string, out interface{}) bool {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil || len(raw) == 0 {
		return false
	}
	return json.Unmarshal(raw, out) == nil
}

// fill is best-effort; a failed cache write only costs the next reader a
// loader round-trip.
func (c *ContentCache) fill(ctx context.Context, key string, value interface{}) {
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	_ = c.client.Set(ctx, key, raw, c.ttlWithJitter()).Err()
}

func (c *ContentCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
