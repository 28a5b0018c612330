package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/mediabud/recsys/pkg/models"
)

// CachedRecommendationService is a read-through cache in front of the
// recommendation server. Results always live in a small in-process store and
// are mirrored to Redis when a client is configured. A successful retrain
// invalidates every entry scoped to that content type regardless of TTL, so
// stale personalized lists are never served across a model swap.
type CachedRecommendationService struct {
	next    RecommendationReader
	redis   *redis.Client
	ttl     time.Duration
	metrics *Metrics
	logger  *logrus.Logger

	mu    sync.Mutex
	local map[string]cacheEntry
}

type cacheEntry struct {
	items   []models.ScoredItem
	expires time.Time
}

func NewCachedRecommendationService(
	next RecommendationReader,
	redisClient *redis.Client,
	ttl time.Duration,
	metrics *Metrics,
	logger *logrus.Logger,
) *CachedRecommendationService {
	return &CachedRecommendationService{
		next:    next,
		redis:   redisClient,
		ttl:     ttl,
		metrics: metrics,
		logger:  logger,
		local:   make(map[string]cacheEntry),
	}
}

func (c *CachedRecommendationService) GetRecommendations(
	ctx context.Context,
	userID string,
	contentType models.ContentType,
	n int,
) ([]models.ScoredItem, error) {
	return c.readThrough(ctx, cacheKey("recommendations", contentType, userID, n), func() ([]models.ScoredItem, error) {
		return c.next.GetRecommendations(ctx, userID, contentType, n)
	})
}

func (c *CachedRecommendationService) GetSimilarItems(
	ctx context.Context,
	itemID string,
	contentType models.ContentType,
	n int,
) ([]models.ScoredItem, error) {
	return c.readThrough(ctx, cacheKey("similar", contentType, itemID, n), func() ([]models.ScoredItem, error) {
		return c.next.GetSimilarItems(ctx, itemID, contentType, n)
	})
}

func (c *CachedRecommendationService) GetPopularItems(
	ctx context.Context,
	contentType models.ContentType,
	n int,
) ([]models.ScoredItem, error) {
	return c.readThrough(ctx, cacheKey("popular", contentType, "-", n), func() ([]models.ScoredItem, error) {
		return c.next.GetPopularItems(ctx, contentType, n)
	})
}

// Invalidate drops every cached result for one content type, local and
// Redis. Called by the trainer after each successful publish.
func (c *CachedRecommendationService) Invalidate(ctx context.Context, contentType models.ContentType) error {
	marker := ":" + string(contentType) + ":"

	c.mu.Lock()
	for key := range c.local {
		if strings.Contains(key, marker) {
			delete(c.local, key)
		}
	}
	c.mu.Unlock()

	if c.redis == nil {
		return nil
	}

	pattern := "rec:*" + marker + "*"
	var cursor uint64
	for {
		keys, next, err := c.redis.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return fmt.Errorf("failed to scan cache keys for %s: %w", contentType, err)
		}
		if len(keys) > 0 {
			if err := c.redis.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("failed to delete cache keys for %s: %w", contentType, err)
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

func (c *CachedRecommendationService) readThrough(
	ctx context.Context,
	key string,
	compute func() ([]models.ScoredItem, error),
) ([]models.ScoredItem, error) {
	if items, ok := c.getLocal(key); ok {
		c.observe("hit")
		return items, nil
	}
	if items, ok := c.getRedis(ctx, key); ok {
		c.setLocal(key, items)
		c.observe("hit")
		return items, nil
	}

	c.observe("miss")
	items, err := compute()
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []models.ScoredItem{}
	}

	c.setLocal(key, items)
	c.setRedis(ctx, key, items)
	return items, nil
}

func (c *CachedRecommendationService) getLocal(key string) ([]models.ScoredItem, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.local[key]
	if !ok {
		return nil, false
	}
	if time.Now().After(entry.expires) {
		delete(c.local, key)
		return nil, false
	}
	return entry.items, true
}

func (c *CachedRecommendationService) setLocal(key string, items []models.ScoredItem) {
	c.mu.Lock()
	c.local[key] = cacheEntry{items: items, expires: time.Now().Add(c.ttl)}
	c.mu.Unlock()
}

func (c *CachedRecommendationService) getRedis(ctx context.Context, key string) ([]models.ScoredItem, bool) {
	if c.redis == nil {
		return nil, false
	}
	cached, err := c.redis.Get(ctx, key).Result()
	if err != nil {
		if err != redis.Nil {
			c.logger.WithError(err).Warn("Result cache read failed")
		}
		return nil, false
	}
	var items []models.ScoredItem
	if err := json.Unmarshal([]byte(cached), &items); err != nil {
		c.logger.WithError(err).Warn("Failed to decode cached result")
		return nil, false
	}
	return items, true
}

func (c *CachedRecommendationService) setRedis(ctx context.Context, key string, items []models.ScoredItem) {
	if c.redis == nil {
		return
	}
	data, err := json.Marshal(items)
	if err != nil {
		c.logger.WithError(err).Warn("Failed to encode result for cache")
		return
	}
	if err := c.redis.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.WithError(err).Warn("Result cache write failed")
	}
}

func (c *CachedRecommendationService) observe(outcome string) {
	if c.metrics != nil {
		c.metrics.ObserveCache(outcome)
	}
}

func cacheKey(operation string, contentType models.ContentType, subject string, n int) string {
	return fmt.Sprintf("rec:%s:%s:%s:%d", operation, contentType, subject, n)
}
