package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"skillforge/internal/domain"
	"golang.org/x/sync/singleflight"
)

// ContentLoader fetches lab/quiz definitions from a backing store.
type ContentLoader interface {
	LoadLab(ctx context.Context, labID string) (domain.Lab, error)
	LoadQuiz(ctx context.Context, lessonID string) (domain.Quiz, error)
}

// ContentCache caches definitions with TTL to avoid repeated DB hits.
type ContentCache struct {
	loader ContentLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand

	mu      sync.RWMutex
	labs    map[string]cachedLab
	quizzes map[string]cachedQuiz
}

type cachedLab struct {
	lab       domain.Lab
	expiresAt time.Time
}

type cachedQuiz struct {
	quiz      domain.Quiz
	expiresAt time.Time
}

func NewContentCache(loader ContentLoader, ttl time.Duration) *ContentCache {
	return &ContentCache{
		loader:  loader,
		ttl:     ttl,
		clock:   time.Now,
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
		labs:    make(map[string]cachedLab),
		quizzes: make(map[string]cachedQuiz),
	}
}

func (c *ContentCache) Lab(ctx context.Context, labID string) (domain.Lab, error) {
	now := c.clock()

	c.mu.RLock()
	if entry, ok := c.labs[labID]; ok && entry.expiresAt.After(now) {
		c.mu.RUnlock()
		return entry.lab, nil
	}
	c.mu.RUnlock()

	result, err, _ := c.sf.Do("lab:"+labID, func() (interface{}, error) {
		now := c.clock()
		c.mu.RLock()
		if entry, ok := c.labs[labID]; ok && entry.expiresAt.After(now) {
			c.mu.RUnlock()
			return entry.lab, nil
		}
		c.mu.RUnlock()

		lab, err := c.loader.LoadLab(ctx, labID)
		if err != nil {
			return domain.Lab{}, err
		}

		c.mu.Lock()
		c.labs[labID] = cachedLab{lab: lab, expiresAt: now.Add(c.ttlWithJitter())}
		c.mu.Unlock()
		return lab, nil
	})
	if err != nil {
		return domain.Lab{}, err
	}
	return result.(domain.Lab), nil
}

func (c *ContentCache) Quiz(ctx context.Context, lessonID string) (domain.Quiz, error) {
	now := c.clock()

	c.mu.RLock()
	if entry, ok := c.quizzes[lessonID]; ok && entry.expiresAt.After(now) {
		c.mu.RUnlock()
		return entry.quiz, nil
	}
	c.mu.RUnlock()

	result, err, _ := c.sf.Do("quiz:"+lessonID, func() (interface{}, error) {
		now := c.clock()
		c.mu.RLock()
		if entry, ok := c.quizzes[lessonID]; ok && entry.expiresAt.After(now) {
			c.mu.RUnlock()
			return entry.quiz, nil
		}
		c.mu.RUnlock()

		quiz, err := c.loader.LoadQuiz(ctx, lessonID)
		if err != nil {
			return domain.Quiz{}, err
		}

		c.mu.Lock()
		c.quizzes[lessonID] = cachedQuiz{quiz: quiz, expiresAt: now.Add(c.ttlWithJitter())}
		c.mu.Unlock()
		return quiz, nil
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	return result.(domain.Quiz), nil
}

func (c *ContentCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}

// StaticContentLoader serves definitions from in-memory maps (tests/demos).
type StaticContentLoader struct {
	labs    map[string]domain.Lab
	quizzes map[string]domain.Quiz
}

func NewStaticContentLoader(labs map[string]domain.Lab, quizzes map[string]domain.Quiz) *StaticContentLoader {
	return &StaticContentLoader{labs: labs, quizzes: quizzes}
}

func (l *StaticContentLoader) LoadLab(_ context.Context, labID string) (domain.Lab, error) {
	if lab, ok := l.labs[labID]; ok {
		return lab, nil
	}
	return domain.Lab{}, domain.ErrLabNotFound
}

func (l *StaticContentLoader) LoadQuiz(_ context.Context, lessonID string) (domain.Quiz, error) {
	if quiz, ok := l.quizzes[lessonID]; ok {
		return quiz, nil
	}
	return domain.Quiz{}, domain.ErrQuizNotFound
}
