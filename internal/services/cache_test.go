package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediabud/recsys/pkg/models"
)

// countingReader records how often the underlying server is hit, so the
// tests can tell a cache hit from a recompute.
type countingReader struct {
	calls int
	items []models.ScoredItem
	fail  bool
}

func (r *countingReader) compute() ([]models.ScoredItem, error) {
	r.calls++
	if r.fail {
		return nil, errors.New("scoring failed")
	}
	return r.items, nil
}

func (r *countingReader) GetRecommendations(_ context.Context, _ string, _ models.ContentType, _ int) ([]models.ScoredItem, error) {
	return r.compute()
}

func (r *countingReader) GetSimilarItems(_ context.Context, _ string, _ models.ContentType, _ int) ([]models.ScoredItem, error) {
	return r.compute()
}

func (r *countingReader) GetPopularItems(_ context.Context, _ models.ContentType, _ int) ([]models.ScoredItem, error) {
	return r.compute()
}

func newTestCache(reader RecommendationReader, ttl time.Duration) *CachedRecommendationService {
	return NewCachedRecommendationService(reader, nil, ttl, nil, testLogger())
}

func TestCachedRecommendationService(t *testing.T) {
	ctx := context.Background()

	t.Run("serves repeated requests from cache", func(t *testing.T) {
		reader := &countingReader{items: []models.ScoredItem{{ItemID: "i1", Score: 5.0}}}
		cache := newTestCache(reader, time.Hour)

		first, err := cache.GetRecommendations(ctx, "u1", models.ContentTypeMovie, 10)
		require.NoError(t, err)
		second, err := cache.GetRecommendations(ctx, "u1", models.ContentTypeMovie, 10)
		require.NoError(t, err)

		assert.Equal(t, first, second)
		assert.Equal(t, 1, reader.calls)
	})

	t.Run("different parameters get their own entries", func(t *testing.T) {
		reader := &countingReader{items: []models.ScoredItem{{ItemID: "i1", Score: 5.0}}}
		cache := newTestCache(reader, time.Hour)

		_, err := cache.GetRecommendations(ctx, "u1", models.ContentTypeMovie, 10)
		require.NoError(t, err)
		_, err = cache.GetRecommendations(ctx, "u2", models.ContentTypeMovie, 10)
		require.NoError(t, err)
		_, err = cache.GetRecommendations(ctx, "u1", models.ContentTypeMovie, 5)
		require.NoError(t, err)

		assert.Equal(t, 3, reader.calls)
	})

	t.Run("operations do not share keys", func(t *testing.T) {
		reader := &countingReader{items: []models.ScoredItem{{ItemID: "i1", Score: 5.0}}}
		cache := newTestCache(reader, time.Hour)

		_, err := cache.GetPopularItems(ctx, models.ContentTypeMovie, 10)
		require.NoError(t, err)
		_, err = cache.GetSimilarItems(ctx, "i1", models.ContentTypeMovie, 10)
		require.NoError(t, err)

		assert.Equal(t, 2, reader.calls)
	})

	t.Run("invalidation is scoped to the content type", func(t *testing.T) {
		reader := &countingReader{items: []models.ScoredItem{{ItemID: "i1", Score: 5.0}}}
		cache := newTestCache(reader, time.Hour)

		_, err := cache.GetRecommendations(ctx, "u1", models.ContentTypeMovie, 10)
		require.NoError(t, err)
		_, err = cache.GetRecommendations(ctx, "u1", models.ContentTypeManga, 10)
		require.NoError(t, err)
		require.Equal(t, 2, reader.calls)

		require.NoError(t, cache.Invalidate(ctx, models.ContentTypeMovie))

		// Movie recomputes, manga is still cached.
		_, err = cache.GetRecommendations(ctx, "u1", models.ContentTypeMovie, 10)
		require.NoError(t, err)
		assert.Equal(t, 3, reader.calls)
		_, err = cache.GetRecommendations(ctx, "u1", models.ContentTypeManga, 10)
		require.NoError(t, err)
		assert.Equal(t, 3, reader.calls)
	})

	t.Run("entries expire after the TTL", func(t *testing.T) {
		reader := &countingReader{items: []models.ScoredItem{{ItemID: "i1", Score: 5.0}}}
		cache := newTestCache(reader, 10*time.Millisecond)

		_, err := cache.GetPopularItems(ctx, models.ContentTypeMovie, 10)
		require.NoError(t, err)
		time.Sleep(25 * time.Millisecond)
		_, err = cache.GetPopularItems(ctx, models.ContentTypeMovie, 10)
		require.NoError(t, err)

		assert.Equal(t, 2, reader.calls)
	})

	t.Run("errors are returned and never cached", func(t *testing.T) {
		reader := &countingReader{fail: true}
		cache := newTestCache(reader, time.Hour)

		_, err := cache.GetRecommendations(ctx, "u1", models.ContentTypeMovie, 10)
		require.Error(t, err)

		reader.fail = false
		reader.items = []models.ScoredItem{{ItemID: "i1", Score: 5.0}}
		items, err := cache.GetRecommendations(ctx, "u1", models.ContentTypeMovie, 10)
		require.NoError(t, err)
		assert.Len(t, items, 1)
		assert.Equal(t, 2, reader.calls)
	})

	t.Run("a nil result is cached as an empty list", func(t *testing.T) {
		reader := &countingReader{items: nil}
		cache := newTestCache(reader, time.Hour)

		items, err := cache.GetSimilarItems(ctx, "i1", models.ContentTypeManga, 10)
		require.NoError(t, err)
		assert.NotNil(t, items)
		assert.Empty(t, items)

		_, err = cache.GetSimilarItems(ctx, "i1", models.ContentTypeManga, 10)
		require.NoError(t, err)
		assert.Equal(t, 1, reader.calls)
	})
}
