package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/mediabud/recsys/internal/config"
	"github.com/mediabud/recsys/internal/database"
	"github.com/mediabud/recsys/internal/messaging"
)

type Services struct {
	Auth            *AuthService
	Provider        InteractionProvider
	ModelStore      *ModelStore
	Trainer         *ModelTrainer
	Recommendations RecommendationReader
	Cache           *CachedRecommendationService
	Scheduler       *TrainingScheduler
	MessageBus      *messaging.MessageBus
	Metrics         *Metrics
}

func New(cfg *config.Config, logger *logrus.Logger, db *database.Database) (*Services, error) {
	var metrics *Metrics
	if cfg.Monitoring.Enabled {
		metrics = NewMetrics(prometheus.DefaultRegisterer)
	}

	authService := NewAuthService(cfg, logger)
	provider := NewGraphInteractionProvider(db.Neo4j, logger)
	modelStore := NewModelStore(db.PG, logger)

	server := NewRecommendationService(modelStore, provider, metrics, logger)
	cache := NewCachedRecommendationService(server, db.Redis, cfg.Recommendation.CacheTTL, metrics, logger)

	var messageBus *messaging.MessageBus
	var events TrainingEventPublisher
	if cfg.Kafka.Enabled {
		bus, err := messaging.NewMessageBus(cfg, logger)
		if err != nil {
			return nil, err
		}
		messageBus = bus
		events = bus
	}

	trainer, err := NewModelTrainer(provider, modelStore, cache, events, metrics, &cfg.Recommendation, logger)
	if err != nil {
		return nil, err
	}

	var scheduler *TrainingScheduler
	if cfg.Recommendation.TrainSchedule != "" {
		scheduler, err = NewTrainingScheduler(trainer, cfg.Recommendation.TrainSchedule, logger)
		if err != nil {
			return nil, err
		}
	}

	return &Services{
		Auth:            authService,
		Provider:        provider,
		ModelStore:      modelStore,
		Trainer:         trainer,
		Recommendations: cache,
		Cache:           cache,
		Scheduler:       scheduler,
		MessageBus:      messageBus,
		Metrics:         metrics,
	}, nil
}
