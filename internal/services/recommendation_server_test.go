package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediabud/recsys/pkg/models"
)

type stubArtifactSource struct {
	artifacts map[models.ContentType]*models.Artifact
	err       error
}

func (s *stubArtifactSource) Load(_ context.Context, contentType models.ContentType) (*models.Artifact, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.artifacts[contentType], nil
}

func popularityArtifact(contentType models.ContentType, interactions []models.Interaction) *models.Artifact {
	ds := BuildDataset(interactions, MaxWeight)
	return &models.Artifact{
		TrainingID:  uuid.New(),
		ContentType: contentType,
		Mode:        models.ModePopularity,
		Users:       ds.Users,
		Items:       ds.Items,
		UserIndex:   ds.UserIndex,
		ItemIndex:   ds.ItemIndex,
		Popularity:  ds.PopularityTable("weight_sum"),
		Seen:        ds.SeenSets(),
		CreatedAt:   time.Now().UTC(),
	}
}

func factorizationArtifact(t *testing.T, contentType models.ContentType) *models.Artifact {
	t.Helper()
	ds := clusteredDataset()
	model, err := fitFactorization(context.Background(), ds, fitConfig(), testLogger())
	require.NoError(t, err)
	return &models.Artifact{
		TrainingID:  uuid.New(),
		ContentType: contentType,
		Mode:        models.ModeFactorization,
		Users:       ds.Users,
		Items:       ds.Items,
		UserIndex:   ds.UserIndex,
		ItemIndex:   ds.ItemIndex,
		UserFactors: model.UserFactors,
		ItemFactors: model.ItemFactors,
		ItemBias:    model.ItemBias,
		Popularity:  ds.PopularityTable("weight_sum"),
		Seen:        ds.SeenSets(),
		CreatedAt:   time.Now().UTC(),
	}
}

func serverWith(artifact *models.Artifact) *RecommendationService {
	source := &stubArtifactSource{artifacts: map[models.ContentType]*models.Artifact{}}
	if artifact != nil {
		source.artifacts[artifact.ContentType] = artifact
	}
	return NewRecommendationService(source, nil, nil, testLogger())
}

func TestGetRecommendations(t *testing.T) {
	t.Run("rejects an unknown content type", func(t *testing.T) {
		server := serverWith(nil)
		_, err := server.GetRecommendations(context.Background(), "u1", "podcast", 10)
		assert.ErrorIs(t, err, models.ErrInvalidContentType)
	})

	t.Run("rejects a non-positive count", func(t *testing.T) {
		server := serverWith(nil)
		_, err := server.GetRecommendations(context.Background(), "u1", models.ContentTypeMovie, 0)
		assert.ErrorIs(t, err, models.ErrInvalidCount)
	})

	t.Run("never recommends an item the user has interacted with", func(t *testing.T) {
		artifact := factorizationArtifact(t, models.ContentTypeMovie)
		server := serverWith(artifact)

		for _, user := range artifact.Users {
			items, err := server.GetRecommendations(context.Background(), user, models.ContentTypeMovie, len(artifact.Items))
			require.NoError(t, err)

			u := artifact.UserIndex[user]
			for _, item := range items {
				i := artifact.ItemIndex[item.ItemID]
				assert.False(t, artifact.HasSeen(u, i),
					"user %s was recommended already-seen item %s", user, item.ItemID)
			}
		}
	})

	t.Run("breaks score ties by item id ascending", func(t *testing.T) {
		artifact := popularityArtifact(models.ContentTypeMovie, []models.Interaction{
			{UserID: "u1", ItemID: "zeta", Weight: 3.0},
			{UserID: "u2", ItemID: "alpha", Weight: 3.0},
			{UserID: "u3", ItemID: "omega", Weight: 5.0},
		})
		server := serverWith(artifact)

		items, err := server.GetRecommendations(context.Background(), "nobody", models.ContentTypeMovie, 3)
		require.NoError(t, err)
		require.Len(t, items, 3)
		assert.Equal(t, "omega", items[0].ItemID)
		assert.Equal(t, "alpha", items[1].ItemID)
		assert.Equal(t, "zeta", items[2].ItemID)
	})

	t.Run("repeated calls return identical rankings", func(t *testing.T) {
		server := serverWith(factorizationArtifact(t, models.ContentTypeMovie))

		first, err := server.GetRecommendations(context.Background(), "x1", models.ContentTypeMovie, 4)
		require.NoError(t, err)
		second, err := server.GetRecommendations(context.Background(), "x1", models.ContentTypeMovie, 4)
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})

	t.Run("returns a short list rather than padding", func(t *testing.T) {
		artifact := popularityArtifact(models.ContentTypeMovie, []models.Interaction{
			{UserID: "u1", ItemID: "i1", Weight: 5.0},
			{UserID: "u1", ItemID: "i2", Weight: 3.0},
			{UserID: "u2", ItemID: "i3", Weight: 2.0},
		})
		server := serverWith(artifact)

		items, err := server.GetRecommendations(context.Background(), "u1", models.ContentTypeMovie, 10)
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, "i3", items[0].ItemID)
	})

	t.Run("an unknown user gets the popularity ranking", func(t *testing.T) {
		artifact := factorizationArtifact(t, models.ContentTypeMovie)
		server := serverWith(artifact)

		recommended, err := server.GetRecommendations(context.Background(), "stranger", models.ContentTypeMovie, 5)
		require.NoError(t, err)
		popular, err := server.GetPopularItems(context.Background(), models.ContentTypeMovie, 5)
		require.NoError(t, err)
		assert.Equal(t, popular, recommended)
	})

	t.Run("no artifact degrades to the live popularity query", func(t *testing.T) {
		provider := &fakeProvider{
			popular: map[models.ContentType][]models.ScoredItem{
				models.ContentTypeMovie: {
					{ItemID: "i1", Score: 9.0},
					{ItemID: "i2", Score: 4.0},
				},
			},
		}
		source := &stubArtifactSource{artifacts: map[models.ContentType]*models.Artifact{}}
		server := NewRecommendationService(source, provider, nil, testLogger())

		items, err := server.GetRecommendations(context.Background(), "u1", models.ContentTypeMovie, 1)
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, "i1", items[0].ItemID)
	})

	t.Run("a failing store degrades to empty rather than erroring", func(t *testing.T) {
		source := &stubArtifactSource{err: errors.New("database down")}
		server := NewRecommendationService(source, nil, nil, testLogger())

		items, err := server.GetRecommendations(context.Background(), "u1", models.ContentTypeMovie, 5)
		require.NoError(t, err)
		assert.Empty(t, items)
	})
}

func TestGetSimilarItems(t *testing.T) {
	t.Run("rejects an unknown content type", func(t *testing.T) {
		server := serverWith(nil)
		_, err := server.GetSimilarItems(context.Background(), "i1", "vhs", 10)
		assert.ErrorIs(t, err, models.ErrInvalidContentType)
	})

	t.Run("never returns the query item itself", func(t *testing.T) {
		artifact := factorizationArtifact(t, models.ContentTypeAnime)
		server := serverWith(artifact)

		for _, itemID := range artifact.Items {
			items, err := server.GetSimilarItems(context.Background(), itemID, models.ContentTypeAnime, len(artifact.Items))
			require.NoError(t, err)
			require.Len(t, items, len(artifact.Items)-1)
			for _, item := range items {
				assert.NotEqual(t, itemID, item.ItemID)
			}
		}
	})

	t.Run("ranks in-cluster items first", func(t *testing.T) {
		server := serverWith(factorizationArtifact(t, models.ContentTypeAnime))

		items, err := server.GetSimilarItems(context.Background(), "a", models.ContentTypeAnime, 5)
		require.NoError(t, err)
		require.NotEmpty(t, items)
		assert.Contains(t, []string{"b", "c"}, items[0].ItemID)
	})

	t.Run("popularity mode has no item representation to compare", func(t *testing.T) {
		artifact := popularityArtifact(models.ContentTypeManga, []models.Interaction{
			{UserID: "u1", ItemID: "m1", Weight: 5.0},
			{UserID: "u2", ItemID: "m2", Weight: 5.0},
		})
		server := serverWith(artifact)

		items, err := server.GetSimilarItems(context.Background(), "m1", models.ContentTypeManga, 5)
		require.NoError(t, err)
		assert.NotNil(t, items)
		assert.Empty(t, items)
	})

	t.Run("an unknown item yields an empty list", func(t *testing.T) {
		server := serverWith(factorizationArtifact(t, models.ContentTypeMovie))

		items, err := server.GetSimilarItems(context.Background(), "never-seen", models.ContentTypeMovie, 5)
		require.NoError(t, err)
		assert.Empty(t, items)
	})

	t.Run("no artifact yields an empty list", func(t *testing.T) {
		server := serverWith(nil)

		items, err := server.GetSimilarItems(context.Background(), "i1", models.ContentTypeMovie, 5)
		require.NoError(t, err)
		assert.NotNil(t, items)
		assert.Empty(t, items)
	})
}

func TestGetPopularItems(t *testing.T) {
	t.Run("serves the artifact popularity table", func(t *testing.T) {
		artifact := popularityArtifact(models.ContentTypeMovie, []models.Interaction{
			{UserID: "u1", ItemID: "i1", Weight: 5.0},
			{UserID: "u2", ItemID: "i1", Weight: 4.0},
			{UserID: "u2", ItemID: "i2", Weight: 2.0},
		})
		server := serverWith(artifact)

		items, err := server.GetPopularItems(context.Background(), models.ContentTypeMovie, 2)
		require.NoError(t, err)
		require.Len(t, items, 2)
		assert.Equal(t, models.ScoredItem{ItemID: "i1", Score: 9.0}, items[0])
		assert.Equal(t, models.ScoredItem{ItemID: "i2", Score: 2.0}, items[1])
	})

	t.Run("truncates to the requested count", func(t *testing.T) {
		artifact := popularityArtifact(models.ContentTypeMovie, []models.Interaction{
			{UserID: "u1", ItemID: "i1", Weight: 5.0},
			{UserID: "u1", ItemID: "i2", Weight: 3.0},
			{UserID: "u1", ItemID: "i3", Weight: 2.0},
		})
		server := serverWith(artifact)

		items, err := server.GetPopularItems(context.Background(), models.ContentTypeMovie, 1)
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, "i1", items[0].ItemID)
	})

	t.Run("rejects a negative count", func(t *testing.T) {
		server := serverWith(nil)
		_, err := server.GetPopularItems(context.Background(), models.ContentTypeMovie, -3)
		assert.ErrorIs(t, err, models.ErrInvalidCount)
	})
}
