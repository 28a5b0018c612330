package services

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"

	"github.com/mediabud/recsys/pkg/models"
)

// ArtifactSource supplies the current artifact for a content type, or nil
// when none has been published.
type ArtifactSource interface {
	Load(ctx context.Context, contentType models.ContentType) (*models.Artifact, error)
}

// RecommendationReader is the read surface exposed to the calling layer,
// implemented by both the server and the cache wrapper in front of it.
type RecommendationReader interface {
	GetRecommendations(ctx context.Context, userID string, contentType models.ContentType, n int) ([]models.ScoredItem, error)
	GetSimilarItems(ctx context.Context, itemID string, contentType models.ContentType, n int) ([]models.ScoredItem, error)
	GetPopularItems(ctx context.Context, contentType models.ContentType, n int) ([]models.ScoredItem, error)
}

// RecommendationService scores and ranks against the current immutable
// artifact. It holds no per-request state and is safe for concurrent use;
// readers keep the artifact pointer they loaded, so an in-flight retrain
// never mixes old and new model state.
type RecommendationService struct {
	store    ArtifactSource
	provider InteractionProvider
	metrics  *Metrics
	logger   *logrus.Logger
}

func NewRecommendationService(
	store ArtifactSource,
	provider InteractionProvider,
	metrics *Metrics,
	logger *logrus.Logger,
) *RecommendationService {
	return &RecommendationService{
		store:    store,
		provider: provider,
		metrics:  metrics,
		logger:   logger,
	}
}

// GetRecommendations returns the top n unseen items for a user, ordered by
// score descending with item id as the tie-break. Unknown users get the
// popularity ranking; a missing artifact degrades to the provider's
// popular-items query. The list is never padded: fewer than n eligible items
// yield a shorter list.
func (s *RecommendationService) GetRecommendations(
	ctx context.Context,
	userID string,
	contentType models.ContentType,
	n int,
) ([]models.ScoredItem, error) {
	if err := validateRequest(contentType, n); err != nil {
		return nil, err
	}
	defer s.observe("recommendations", time.Now())

	artifact, err := s.store.Load(ctx, contentType)
	if err != nil {
		s.logger.WithError(err).WithField("content_type", contentType).
			Warn("Artifact unavailable, falling back to live popularity")
		artifact = nil
	}
	if artifact == nil {
		return s.livePopular(ctx, contentType, n), nil
	}

	userIndex, known := artifact.UserIndex[userID]
	if !known {
		// Cold start: no history to personalize on and nothing to exclude.
		s.logger.WithFields(logrus.Fields{
			"user_id":      userID,
			"content_type": contentType,
		}).Debug("Unknown user, serving popular items")
		return artifact.TopPopular(n), nil
	}

	ranked := make([]models.ScoredItem, 0, len(artifact.Items))
	for i, itemID := range artifact.Items {
		idx := int32(i)
		if artifact.HasSeen(userIndex, idx) {
			continue
		}
		ranked = append(ranked, models.ScoredItem{
			ItemID: itemID,
			Score:  artifact.Score(userIndex, idx),
		})
	}
	models.SortScored(ranked)
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked, nil
}

// GetSimilarItems ranks items by cosine similarity to the query item's
// latent vector. Defined only for factorization-mode artifacts; popularity
// mode has no item representation to compare, so the result is empty rather
// than an error. The query item never appears in its own result.
func (s *RecommendationService) GetSimilarItems(
	ctx context.Context,
	itemID string,
	contentType models.ContentType,
	n int,
) ([]models.ScoredItem, error) {
	if err := validateRequest(contentType, n); err != nil {
		return nil, err
	}
	defer s.observe("similar_items", time.Now())

	artifact, err := s.store.Load(ctx, contentType)
	if err != nil {
		s.logger.WithError(err).WithField("content_type", contentType).
			Warn("Artifact unavailable for similarity query")
		return []models.ScoredItem{}, nil
	}
	if artifact == nil {
		return []models.ScoredItem{}, nil
	}
	if !artifact.SupportsSimilarity() {
		s.logger.WithFields(logrus.Fields{
			"content_type": contentType,
			"mode":         artifact.Mode,
		}).Debug("Similarity not supported by current artifact")
		return []models.ScoredItem{}, nil
	}

	queryIndex, known := artifact.ItemIndex[itemID]
	if !known {
		return []models.ScoredItem{}, nil
	}

	target := artifact.ItemFactors[queryIndex]
	targetNorm := floats.Norm(target, 2)

	ranked := make([]models.ScoredItem, 0, len(artifact.Items)-1)
	for i, id := range artifact.Items {
		if int32(i) == queryIndex {
			continue
		}
		vec := artifact.ItemFactors[i]
		similarity := floats.Dot(vec, target) / (floats.Norm(vec, 2)*targetNorm + 1e-10)
		ranked = append(ranked, models.ScoredItem{ItemID: id, Score: similarity})
	}
	models.SortScored(ranked)
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked, nil
}

// GetPopularItems returns the globally most popular items for a content
// type, from the artifact's popularity table or the live provider query when
// nothing has been trained yet.
func (s *RecommendationService) GetPopularItems(
	ctx context.Context,
	contentType models.ContentType,
	n int,
) ([]models.ScoredItem, error) {
	if err := validateRequest(contentType, n); err != nil {
		return nil, err
	}
	defer s.observe("popular_items", time.Now())

	artifact, err := s.store.Load(ctx, contentType)
	if err != nil {
		s.logger.WithError(err).WithField("content_type", contentType).
			Warn("Artifact unavailable, falling back to live popularity")
		artifact = nil
	}
	if artifact == nil {
		return s.livePopular(ctx, contentType, n), nil
	}
	return artifact.TopPopular(n), nil
}

func (s *RecommendationService) livePopular(ctx context.Context, contentType models.ContentType, n int) []models.ScoredItem {
	if s.provider == nil {
		return []models.ScoredItem{}
	}
	items, err := s.provider.PopularItems(ctx, contentType, n)
	if err != nil {
		s.logger.WithError(err).WithField("content_type", contentType).
			Warn("Live popularity query failed")
		return []models.ScoredItem{}
	}
	if items == nil {
		items = []models.ScoredItem{}
	}
	return items
}

func (s *RecommendationService) observe(operation string, start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveServe(operation, time.Since(start))
	}
}

func validateRequest(contentType models.ContentType, n int) error {
	if _, err := models.ParseContentType(string(contentType)); err != nil {
		return err
	}
	if n <= 0 {
		return fmt.Errorf("%w: %d", models.ErrInvalidCount, n)
	}
	return nil
}
