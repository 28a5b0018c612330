package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/mediabud/recsys/internal/config"
	"github.com/mediabud/recsys/pkg/models"
)

// CacheInvalidator drops cached results scoped to a content type. Wired to
// the result cache so a successful retrain never leaves stale personalized
// lists behind.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, contentType models.ContentType) error
}

// TrainingEventPublisher notifies surrounding systems about training
// outcomes. Implemented by the Kafka message bus; optional.
type TrainingEventPublisher interface {
	ModelPublished(ctx context.Context, contentType models.ContentType, trainingID uuid.UUID, mode models.ModelMode)
	TrainingFailed(ctx context.Context, contentType models.ContentType, reason string)
}

// ModelTrainer runs the batch training pipeline: snapshot extraction, matrix
// build, factorization or popularity fit, publish, cache invalidation.
type ModelTrainer struct {
	provider InteractionProvider
	store    *ModelStore
	cache    CacheInvalidator
	events   TrainingEventPublisher
	metrics  *Metrics
	cfg      *config.RecommendationConfig
	policy   WeightPolicy
	logger   *logrus.Logger
}

func NewModelTrainer(
	provider InteractionProvider,
	store *ModelStore,
	cache CacheInvalidator,
	events TrainingEventPublisher,
	metrics *Metrics,
	cfg *config.RecommendationConfig,
	logger *logrus.Logger,
) (*ModelTrainer, error) {
	policy, err := WeightPolicyFromName(cfg.WeightPolicy)
	if err != nil {
		return nil, err
	}
	return &ModelTrainer{
		provider: provider,
		store:    store,
		cache:    cache,
		events:   events,
		metrics:  metrics,
		cfg:      cfg,
		policy:   policy,
		logger:   logger,
	}, nil
}

// TrainAll retrains every content type independently. A failure in one type
// never prevents the others from training.
func (t *ModelTrainer) TrainAll(ctx context.Context) map[models.ContentType]bool {
	results := make(map[models.ContentType]bool, len(models.AllContentTypes))
	for _, contentType := range models.AllContentTypes {
		results[contentType] = t.Train(ctx, contentType)
	}
	return results
}

// Train builds and publishes a fresh artifact for one content type. Returns
// false on any failure; in that case nothing is published and the previously
// active artifact (if any) remains authoritative.
func (t *ModelTrainer) Train(ctx context.Context, contentType models.ContentType) bool {
	start := time.Now()
	artifact, err := t.buildArtifact(ctx, contentType)
	if err != nil {
		t.logger.WithError(err).WithField("content_type", contentType).
			Warn("Training failed")
		if t.events != nil {
			t.events.TrainingFailed(ctx, contentType, err.Error())
		}
		t.observeTraining(contentType, "failure", start)
		return false
	}

	if err := t.store.Publish(ctx, artifact); err != nil {
		t.logger.WithError(err).WithField("content_type", contentType).
			Warn("Failed to publish artifact")
		if t.events != nil {
			t.events.TrainingFailed(ctx, contentType, err.Error())
		}
		t.observeTraining(contentType, "failure", start)
		return false
	}

	if t.cache != nil {
		if err := t.cache.Invalidate(ctx, contentType); err != nil {
			// The cache still expires by TTL; log and continue.
			t.logger.WithError(err).WithField("content_type", contentType).
				Warn("Failed to invalidate result cache after retrain")
		}
	}
	if t.events != nil {
		t.events.ModelPublished(ctx, contentType, artifact.TrainingID, artifact.Mode)
	}
	t.observeTraining(contentType, "success", start)

	t.logger.WithFields(logrus.Fields{
		"content_type": contentType,
		"training_id":  artifact.TrainingID,
		"mode":         artifact.Mode,
		"duration":     time.Since(start).String(),
	}).Info("Training completed")

	return true
}

func (t *ModelTrainer) buildArtifact(ctx context.Context, contentType models.ContentType) (*models.Artifact, error) {
	// The extraction step is I/O bound and carries its own timeout,
	// independent of scoring latency.
	extractCtx, cancel := context.WithTimeout(ctx, t.cfg.ExtractTimeout)
	defer cancel()

	interactions, err := t.provider.Interactions(extractCtx, contentType)
	if err != nil {
		return nil, err
	}
	if len(interactions) == 0 {
		return nil, errEmptySnapshot(contentType)
	}

	ds := BuildDataset(interactions, t.policy)

	artifact := &models.Artifact{
		TrainingID:  uuid.New(),
		ContentType: contentType,
		Users:       ds.Users,
		Items:       ds.Items,
		UserIndex:   ds.UserIndex,
		ItemIndex:   ds.ItemIndex,
		Popularity:  ds.PopularityTable(t.cfg.Popularity.Metric),
		Seen:        ds.SeenSets(),
		CreatedAt:   time.Now().UTC(),
	}

	if t.factorizable(ds) {
		model, err := fitFactorization(ctx, ds, &t.cfg.Factorization, t.logger)
		if err != nil {
			// A half-trained model is never published.
			return nil, err
		}
		artifact.Mode = models.ModeFactorization
		artifact.UserFactors = model.UserFactors
		artifact.ItemFactors = model.ItemFactors
		artifact.ItemBias = model.ItemBias
	} else {
		// Insufficient data is not an error; it routes to popularity mode.
		t.logger.WithFields(logrus.Fields{
			"content_type": contentType,
			"users":        ds.CountUsers(),
			"items":        ds.CountItems(),
		}).Debug("Using popularity mode")
		artifact.Mode = models.ModePopularity
	}

	return artifact, nil
}

func (t *ModelTrainer) factorizable(ds *Dataset) bool {
	if !t.cfg.Factorization.Enabled {
		return false
	}
	return ds.CountUsers() >= t.cfg.Factorization.MinUsers &&
		ds.CountItems() >= t.cfg.Factorization.MinItems
}

func (t *ModelTrainer) observeTraining(contentType models.ContentType, result string, start time.Time) {
	if t.metrics != nil {
		t.metrics.ObserveTraining(contentType, result, time.Since(start))
	}
}

type emptySnapshotError struct {
	contentType models.ContentType
}

func errEmptySnapshot(contentType models.ContentType) error {
	return &emptySnapshotError{contentType: contentType}
}

func (e *emptySnapshotError) Error() string {
	return "no interactions available for " + string(e.contentType)
}
