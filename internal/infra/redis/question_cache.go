package redis

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"livequiz-player/internal/domain"
)

// QuestionLoader fetches a game's immutable question set from the backing
// store (Postgres in production).
type QuestionLoader interface {
	LoadQuestions(ctx context.Context, gameID string) ([]domain.Question, error)
}

// QuestionCache keeps question sets in Redis in front of a loader. The set
// is immutable once a game starts, so plain TTL expiry is enough; jitter
// spreads refills and singleflight collapses concurrent misses.
type QuestionCache struct {
	client *redis.Client
	loader QuestionLoader
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewQuestionCache(client *redis.Client, loader QuestionLoader, ttl time.Duration) *QuestionCache {
	return &QuestionCache{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *QuestionCache) GetQuestions(ctx context.Context, gameID string) ([]domain.Question, error) {
	if qs, ok, err := c.fromCache(ctx, gameID); err == nil && ok {
		return qs, nil
	}

	result, err, _ := c.sf.Do(gameID, func() (interface{}, error) {
		// Re-check in case another goroutine filled the cache.
		if qs, ok, err := c.fromCache(ctx, gameID); err == nil && ok {
			return qs, nil
		}

		qs, err := c.loader.LoadQuestions(ctx, gameID)
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(qs)
		if err != nil {
			return nil, err
		}
		_ = c.client.Set(ctx, questionsKey(gameID), raw, c.ttlWithJitter()).Err()
		return qs, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

// Invalidate drops the cached set, forcing the next read through the loader.
func (c *QuestionCache) Invalidate(ctx context.Context, gameID string) error {
	return c.client.Del(ctx, questionsKey(gameID)).Err()
}

func (c *QuestionCache) fromCache(ctx context.Context, gameID string) ([]domain.Question, bool, error) {
	raw, err := c.client.Get(ctx, questionsKey(gameID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var qs []domain.Question
	if err := json.Unmarshal(raw, &qs); err != nil {
		return nil, false, err
	}
	return qs, true, nil
}

func (c *QuestionCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}

func questionsKey(gameID string) string { return "game:" + gameID + ":questions" }
